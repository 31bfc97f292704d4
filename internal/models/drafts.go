// Package models defines the in-flight draft union tracked by the session store.
package models

import "time"

// ServiceProviderRef names a household service provider mentioned in an
// utterance (maid, cook, driver, ...).
type ServiceProviderRef struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

// TransactionDraft is a partially filled transaction awaiting more input.
type TransactionDraft struct {
	Amount        *float64            `json:"amount,omitempty"`
	Type          TransactionType     `json:"type,omitempty"`
	Description   string              `json:"description,omitempty"`
	Categories    []string            `json:"categories,omitempty"`
	PaymentMethod string              `json:"payment_method,omitempty"`
	Date          *time.Time          `json:"date,omitempty"`
	Provider      *ServiceProviderRef `json:"service_provider,omitempty"`
}

// WageSchedule captures how often and how long a provider visits.
type WageSchedule struct {
	VisitsPerWeek *int     `json:"visits_per_week,omitempty"`
	HoursPerVisit *float64 `json:"hours_per_visit,omitempty"`
}

// Wage captures what a provider is paid and on what cadence.
type Wage struct {
	Amount    *float64      `json:"amount,omitempty"`
	Frequency WageFrequency `json:"frequency,omitempty"`
	Schedule  WageSchedule  `json:"schedule,omitempty"`
}

// AttendanceDraft is a partially filled attendance record for a provider.
type AttendanceDraft struct {
	ProviderType string           `json:"provider_type,omitempty"`
	Name         string           `json:"name,omitempty"`
	Status       AttendanceStatus `json:"status,omitempty"`
	Date         *time.Time       `json:"date,omitempty"`
	Wage         Wage             `json:"wage,omitempty"`
}

// ReminderDraft is a partially filled reminder.
type ReminderDraft struct {
	Title     string     `json:"title,omitempty"`
	DueDate   *time.Time `json:"due_date,omitempty"`
	Amount    *float64   `json:"amount,omitempty"`
	Recurring bool       `json:"recurring,omitempty"`
	Frequency string     `json:"frequency,omitempty"`
}

// Draft is the tagged union of in-flight records. Exactly one of the variant
// pointers is non-nil, selected by Kind. The session store owns all Draft
// instances; at most one exists per (userID, kind) at any time.
type Draft struct {
	UserID        string            `json:"user_id"`
	Kind          RecordKind        `json:"kind"`
	RawText       string            `json:"raw_text"`
	Transaction   *TransactionDraft `json:"transaction,omitempty"`
	Attendance    *AttendanceDraft  `json:"attendance,omitempty"`
	Reminder      *ReminderDraft    `json:"reminder,omitempty"`
	AwaitingField FieldName         `json:"awaiting_field,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// NewDraft allocates a draft of the given kind with its variant initialized.
func NewDraft(userID string, kind RecordKind, rawText string) *Draft {
	now := time.Now()
	d := &Draft{
		UserID:    userID,
		Kind:      kind,
		RawText:   rawText,
		CreatedAt: now,
		UpdatedAt: now,
	}
	switch kind {
	case KindTransaction:
		d.Transaction = &TransactionDraft{}
	case KindAttendance:
		d.Attendance = &AttendanceDraft{}
	case KindReminder:
		d.Reminder = &ReminderDraft{}
	}
	return d
}

// Clone returns a deep copy. The coordinator merges into a clone and commits
// the clone back, so a failed merge never leaves a half-mutated draft visible.
func (d *Draft) Clone() *Draft {
	if d == nil {
		return nil
	}
	out := *d
	if d.Transaction != nil {
		t := *d.Transaction
		t.Amount = cloneFloat(d.Transaction.Amount)
		t.Date = cloneTime(d.Transaction.Date)
		if d.Transaction.Provider != nil {
			p := *d.Transaction.Provider
			t.Provider = &p
		}
		if d.Transaction.Categories != nil {
			t.Categories = append([]string(nil), d.Transaction.Categories...)
		}
		out.Transaction = &t
	}
	if d.Attendance != nil {
		a := *d.Attendance
		a.Date = cloneTime(d.Attendance.Date)
		a.Wage.Amount = cloneFloat(d.Attendance.Wage.Amount)
		a.Wage.Schedule.VisitsPerWeek = cloneInt(d.Attendance.Wage.Schedule.VisitsPerWeek)
		a.Wage.Schedule.HoursPerVisit = cloneFloat(d.Attendance.Wage.Schedule.HoursPerVisit)
		out.Attendance = &a
	}
	if d.Reminder != nil {
		r := *d.Reminder
		r.DueDate = cloneTime(d.Reminder.DueDate)
		r.Amount = cloneFloat(d.Reminder.Amount)
		out.Reminder = &r
	}
	return &out
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

func cloneInt(i *int) *int {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
