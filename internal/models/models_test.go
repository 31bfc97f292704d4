package models

import (
	"testing"
	"time"
)

func TestNewDraftAllocatesVariant(t *testing.T) {
	cases := []struct {
		kind RecordKind
	}{
		{KindTransaction},
		{KindAttendance},
		{KindReminder},
	}
	for _, tc := range cases {
		d := NewDraft("user-1", tc.kind, "raw text")
		if d.Kind != tc.kind {
			t.Errorf("expected kind %s, got %s", tc.kind, d.Kind)
		}
		switch tc.kind {
		case KindTransaction:
			if d.Transaction == nil {
				t.Error("expected transaction variant to be allocated")
			}
		case KindAttendance:
			if d.Attendance == nil {
				t.Error("expected attendance variant to be allocated")
			}
		case KindReminder:
			if d.Reminder == nil {
				t.Error("expected reminder variant to be allocated")
			}
		}
	}
}

func TestDraftCloneIsDeep(t *testing.T) {
	amount := 2000.0
	visits := 3
	d := NewDraft("user-1", KindAttendance, "paid maid")
	d.Attendance.Name = "Lakshmi"
	d.Attendance.Wage.Amount = &amount
	d.Attendance.Wage.Schedule.VisitsPerWeek = &visits

	clone := d.Clone()
	*clone.Attendance.Wage.Amount = 9999
	clone.Attendance.Name = "Someone Else"
	*clone.Attendance.Wage.Schedule.VisitsPerWeek = 7

	if *d.Attendance.Wage.Amount != 2000 {
		t.Errorf("clone mutation leaked into original amount: %v", *d.Attendance.Wage.Amount)
	}
	if d.Attendance.Name != "Lakshmi" {
		t.Errorf("clone mutation leaked into original name: %s", d.Attendance.Name)
	}
	if *d.Attendance.Wage.Schedule.VisitsPerWeek != 3 {
		t.Errorf("clone mutation leaked into original schedule: %v", *d.Attendance.Wage.Schedule.VisitsPerWeek)
	}
}

func TestDraftCloneTransactionProvider(t *testing.T) {
	d := NewDraft("user-1", KindTransaction, "paid maid 2000")
	d.Transaction.Provider = &ServiceProviderRef{Type: "maid"}
	d.Transaction.Categories = []string{"logbook"}

	clone := d.Clone()
	clone.Transaction.Provider.Name = "Lakshmi"
	clone.Transaction.Categories[0] = "changed"

	if d.Transaction.Provider.Name != "" {
		t.Errorf("provider mutation leaked into original: %s", d.Transaction.Provider.Name)
	}
	if d.Transaction.Categories[0] != "logbook" {
		t.Errorf("category mutation leaked into original: %s", d.Transaction.Categories[0])
	}
}

func TestSlotsIsEmpty(t *testing.T) {
	var s Slots
	if !s.IsEmpty() {
		t.Error("zero-value slots should be empty")
	}
	amount := 100.0
	s.Amount = &amount
	if s.IsEmpty() {
		t.Error("slots with amount should not be empty")
	}

	var s2 Slots
	s2.ProviderType = "maid"
	if s2.IsEmpty() {
		t.Error("slots with provider type should not be empty")
	}

	var s3 Slots
	now := time.Now()
	s3.Date = &now
	if s3.IsEmpty() {
		t.Error("slots with date should not be empty")
	}
}

func TestUnknownIntent(t *testing.T) {
	intent := UnknownIntent()
	if intent.Kind != KindUnknown {
		t.Errorf("expected unknown kind, got %s", intent.Kind)
	}
	if intent.Confidence != 0 {
		t.Errorf("expected zero confidence, got %f", intent.Confidence)
	}
}

func TestIsValidWageFrequency(t *testing.T) {
	valid := []WageFrequency{WageHourly, WageDaily, WageWeekly, WageMonthly}
	for _, f := range valid {
		if !IsValidWageFrequency(f) {
			t.Errorf("expected %s to be valid", f)
		}
	}
	if IsValidWageFrequency("fortnightly") {
		t.Error("expected fortnightly to be invalid")
	}
	if IsValidWageFrequency("") {
		t.Error("expected empty frequency to be invalid")
	}
}

func TestAPIResponseHelpers(t *testing.T) {
	ok := Success(map[string]string{"key": "value"})
	if ok.Status != string(APIStatusOK) {
		t.Errorf("expected ok status, got %s", ok.Status)
	}
	if ok.Result == nil {
		t.Error("expected result to be set")
	}

	errResp := Error("something went wrong")
	if errResp.Status != string(APIStatusError) {
		t.Errorf("expected error status, got %s", errResp.Status)
	}
	if errResp.Message != "something went wrong" {
		t.Errorf("unexpected message: %s", errResp.Message)
	}
}
