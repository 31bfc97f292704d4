// Package scheduler delivers due reminders over a messaging channel.
//
// A cron-driven sweep picks up reminders whose due date has passed, sends
// each one to its user, marks it delivered, and re-queues the next occurrence
// for recurring reminders.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/BolKhata/BolKhata/internal/models"
	"github.com/BolKhata/BolKhata/internal/processor"
)

// DefaultCronSpec sweeps once a minute.
const DefaultCronSpec = "* * * * *"

// DefaultSweepTimeout bounds one full sweep, sends included.
const DefaultSweepTimeout = 2 * time.Minute

// ReminderStore is the slice of persistence the dispatcher needs.
type ReminderStore interface {
	DueReminders(ctx context.Context, by time.Time) ([]models.Reminder, error)
	MarkReminderDelivered(ctx context.Context, id int64) error
	InsertReminder(ctx context.Context, r *models.Reminder) (int64, error)
}

// MessageSender delivers reminder texts. Satisfied by messaging.Service.
type MessageSender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// Opts holds dispatcher configuration.
type Opts struct {
	CronSpec string
	Clock    func() time.Time
}

// Option defines a configuration option for the dispatcher.
type Option func(*Opts)

// WithCronSpec overrides the sweep schedule (5-field cron expression).
func WithCronSpec(spec string) Option {
	return func(o *Opts) { o.CronSpec = spec }
}

// WithClock overrides the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(o *Opts) { o.Clock = clock }
}

// Dispatcher periodically sweeps due reminders and sends them out.
type Dispatcher struct {
	store    ReminderStore
	sender   MessageSender
	cron     *cron.Cron
	cronSpec string
	clock    func() time.Time
}

// NewDispatcher creates a dispatcher over the given store and sender.
func NewDispatcher(st ReminderStore, sender MessageSender, opts ...Option) *Dispatcher {
	cfg := Opts{CronSpec: DefaultCronSpec, Clock: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	return &Dispatcher{store: st, sender: sender, cron: c, cronSpec: cfg.CronSpec, clock: cfg.Clock}
}

// Start registers the sweep job and starts the cron scheduler.
func (d *Dispatcher) Start() error {
	_, err := d.cron.AddFunc(d.cronSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), DefaultSweepTimeout)
		defer cancel()
		if _, err := d.Sweep(ctx); err != nil {
			slog.Error("Dispatcher.Start: sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule reminder sweep: %w", err)
	}
	d.cron.Start()
	slog.Info("Dispatcher.Start: reminder sweep scheduled", "spec", d.cronSpec)
	return nil
}

// Stop stops the cron scheduler and waits for a running sweep to finish.
func (d *Dispatcher) Stop() {
	<-d.cron.Stop().Done()
}

// Sweep delivers every reminder due by now and returns how many were sent.
// A failed send leaves that reminder undelivered for the next sweep.
func (d *Dispatcher) Sweep(ctx context.Context) (int, error) {
	now := d.clock()
	due, err := d.store.DueReminders(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch due reminders: %w", err)
	}

	sent := 0
	for _, rem := range due {
		if err := d.sender.SendMessage(ctx, rem.UserID, ReminderMessage(rem)); err != nil {
			slog.Warn("Dispatcher.Sweep: send failed, will retry next sweep", "id", rem.ID, "userID", rem.UserID, "error", err)
			continue
		}
		if err := d.store.MarkReminderDelivered(ctx, rem.ID); err != nil {
			slog.Error("Dispatcher.Sweep: delivered reminder not marked, may repeat", "id", rem.ID, "error", err)
			continue
		}
		sent++
		slog.Info("Dispatcher.Sweep: reminder delivered", "id", rem.ID, "userID", rem.UserID, "title", rem.Title)

		if rem.Recurring {
			d.requeue(ctx, rem)
		}
	}
	return sent, nil
}

// requeue inserts the next occurrence of a recurring reminder.
func (d *Dispatcher) requeue(ctx context.Context, rem models.Reminder) {
	next := models.Reminder{
		UserID:    rem.UserID,
		Title:     rem.Title,
		DueDate:   nextDueDate(rem.Frequency, rem.DueDate),
		Amount:    rem.Amount,
		Recurring: true,
		Frequency: rem.Frequency,
	}
	if _, err := d.store.InsertReminder(ctx, &next); err != nil {
		slog.Error("Dispatcher.requeue: next occurrence not saved", "userID", rem.UserID, "title", rem.Title, "error", err)
		return
	}
	slog.Debug("Dispatcher.requeue: next occurrence queued", "userID", rem.UserID, "title", rem.Title, "due", next.DueDate)
}

// ReminderMessage renders the outbound text for one reminder.
func ReminderMessage(rem models.Reminder) string {
	msg := "Reminder: " + rem.Title
	if rem.Amount != nil {
		msg += fmt.Sprintf(" (%s)", processor.FormatINR(*rem.Amount))
	}
	if rem.Recurring && rem.Frequency != "" {
		msg += fmt.Sprintf(" - due %s", rem.Frequency)
	}
	return msg
}

func nextDueDate(frequency string, from time.Time) time.Time {
	switch frequency {
	case "daily":
		return from.AddDate(0, 0, 1)
	case "weekly":
		return from.AddDate(0, 0, 7)
	case "yearly":
		return from.AddDate(1, 0, 0)
	default:
		return from.AddDate(0, 1, 0)
	}
}
