package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BolKhata/BolKhata/internal/models"
	"github.com/BolKhata/BolKhata/internal/store"
)

var sweepNow = time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)

type recordingSender struct {
	sent    []string
	sendErr error
}

func (s *recordingSender) SendMessage(ctx context.Context, to, body string) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, to+"|"+body)
	return nil
}

func floatPtr(f float64) *float64 { return &f }

func TestSweepDeliversDueReminders(t *testing.T) {
	st := store.NewInMemoryStore()
	ctx := context.Background()
	st.InsertReminder(ctx, &models.Reminder{
		UserID: "919876543210", Title: "electricity bill", Amount: floatPtr(1200),
		DueDate: sweepNow.Add(-time.Hour),
	})
	st.InsertReminder(ctx, &models.Reminder{
		UserID: "919876543210", Title: "doctor visit",
		DueDate: sweepNow.Add(48 * time.Hour),
	})

	sender := &recordingSender{}
	d := NewDispatcher(st, sender, WithClock(func() time.Time { return sweepNow }))

	sent, err := d.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if sent != 1 {
		t.Fatalf("sent = %d, want 1", sent)
	}
	if len(sender.sent) != 1 || sender.sent[0] != "919876543210|Reminder: electricity bill (₹1,200)" {
		t.Errorf("sent messages = %v", sender.sent)
	}

	due, _ := st.DueReminders(ctx, sweepNow)
	if len(due) != 0 {
		t.Errorf("delivered reminder still due: %+v", due)
	}
}

func TestSweepRequeuesRecurring(t *testing.T) {
	st := store.NewInMemoryStore()
	ctx := context.Background()
	due := sweepNow.Add(-time.Hour)
	st.InsertReminder(ctx, &models.Reminder{
		UserID: "919876543210", Title: "pay rent",
		DueDate: due, Recurring: true, Frequency: "monthly",
	})

	d := NewDispatcher(st, &recordingSender{}, WithClock(func() time.Time { return sweepNow }))
	if _, err := d.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	rems, _ := st.ListReminders(ctx, "919876543210")
	if len(rems) != 2 {
		t.Fatalf("expected delivered original + requeued next, got %d", len(rems))
	}
	var next *models.Reminder
	for i := range rems {
		if !rems[i].Delivered {
			next = &rems[i]
		}
	}
	if next == nil {
		t.Fatal("no undelivered next occurrence found")
	}
	want := due.AddDate(0, 1, 0)
	if !next.DueDate.Equal(want) {
		t.Errorf("next due = %v, want %v", next.DueDate, want)
	}
	if !next.Recurring || next.Frequency != "monthly" {
		t.Errorf("next occurrence = %+v", next)
	}
}

func TestSweepRetriesFailedSends(t *testing.T) {
	st := store.NewInMemoryStore()
	ctx := context.Background()
	st.InsertReminder(ctx, &models.Reminder{
		UserID: "919876543210", Title: "electricity bill",
		DueDate: sweepNow.Add(-time.Hour),
	})

	sender := &recordingSender{sendErr: errors.New("channel down")}
	d := NewDispatcher(st, sender, WithClock(func() time.Time { return sweepNow }))

	sent, err := d.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if sent != 0 {
		t.Fatalf("sent = %d, want 0", sent)
	}

	// Still due for the next sweep.
	sender.sendErr = nil
	sent, err = d.Sweep(ctx)
	if err != nil {
		t.Fatalf("second Sweep: %v", err)
	}
	if sent != 1 {
		t.Fatalf("second sweep sent = %d, want 1", sent)
	}
}

func TestReminderMessage(t *testing.T) {
	cases := []struct {
		rem  models.Reminder
		want string
	}{
		{models.Reminder{Title: "electricity bill"}, "Reminder: electricity bill"},
		{models.Reminder{Title: "electricity bill", Amount: floatPtr(1234.5)}, "Reminder: electricity bill (₹1,234.50)"},
		{models.Reminder{Title: "pay rent", Recurring: true, Frequency: "monthly"}, "Reminder: pay rent - due monthly"},
	}
	for _, tc := range cases {
		if got := ReminderMessage(tc.rem); got != tc.want {
			t.Errorf("ReminderMessage(%+v) = %q, want %q", tc.rem, got, tc.want)
		}
	}
}

func TestNextDueDate(t *testing.T) {
	from := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		frequency string
		want      time.Time
	}{
		{"daily", from.AddDate(0, 0, 1)},
		{"weekly", from.AddDate(0, 0, 7)},
		{"monthly", from.AddDate(0, 1, 0)},
		{"yearly", from.AddDate(1, 0, 0)},
		{"", from.AddDate(0, 1, 0)},
	}
	for _, tc := range cases {
		if got := nextDueDate(tc.frequency, from); !got.Equal(tc.want) {
			t.Errorf("nextDueDate(%q) = %v, want %v", tc.frequency, got, tc.want)
		}
	}
}
