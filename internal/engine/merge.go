package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/BolKhata/BolKhata/internal/models"
	"github.com/BolKhata/BolKhata/internal/parser"
)

// MergeSlots fills the draft's empty fields from newly extracted slots.
// Already-filled fields are never overwritten, which makes the merge
// idempotent: re-applying the same slots is a no-op. The draft's variant must
// match its kind or the merge fails with ErrInvalidMergeState.
func MergeSlots(d *models.Draft, slots models.Slots) error {
	if d == nil {
		return fmt.Errorf("%w: nil draft", models.ErrInvalidMergeState)
	}
	switch d.Kind {
	case models.KindTransaction:
		if d.Transaction == nil {
			return fmt.Errorf("%w: transaction draft missing variant", models.ErrInvalidMergeState)
		}
		mergeTransaction(d.Transaction, slots)
	case models.KindAttendance:
		if d.Attendance == nil {
			return fmt.Errorf("%w: attendance draft missing variant", models.ErrInvalidMergeState)
		}
		mergeAttendance(d.Attendance, slots)
	case models.KindReminder:
		if d.Reminder == nil {
			return fmt.Errorf("%w: reminder draft missing variant", models.ErrInvalidMergeState)
		}
		mergeReminder(d.Reminder, slots)
	default:
		return fmt.Errorf("%w: kind %q holds no slots", models.ErrInvalidMergeState, d.Kind)
	}
	d.UpdatedAt = time.Now()
	return nil
}

func mergeTransaction(t *models.TransactionDraft, s models.Slots) {
	if t.Amount == nil && s.Amount != nil {
		t.Amount = s.Amount
	}
	if t.Type == "" && s.TransactionType != "" {
		t.Type = s.TransactionType
	}
	if t.Description == "" && s.Description != "" {
		t.Description = s.Description
	}
	if len(t.Categories) == 0 && len(s.Categories) > 0 {
		t.Categories = append([]string(nil), s.Categories...)
	}
	if t.PaymentMethod == "" && s.PaymentMethod != "" {
		t.PaymentMethod = s.PaymentMethod
	}
	if t.Date == nil && s.Date != nil {
		t.Date = s.Date
	}
	if s.ProviderType != "" || s.ProviderName != "" {
		if t.Provider == nil {
			t.Provider = &models.ServiceProviderRef{}
		}
		if t.Provider.Type == "" {
			t.Provider.Type = s.ProviderType
		}
		if t.Provider.Name == "" {
			t.Provider.Name = s.ProviderName
		}
	}
}

func mergeAttendance(a *models.AttendanceDraft, s models.Slots) {
	if a.ProviderType == "" && s.ProviderType != "" {
		a.ProviderType = s.ProviderType
	}
	if a.Name == "" && s.ProviderName != "" {
		a.Name = s.ProviderName
	}
	if a.Status == "" && s.Status != "" {
		a.Status = s.Status
	}
	if a.Date == nil && s.Date != nil {
		a.Date = s.Date
	}
	if a.Wage.Amount == nil && s.WageAmount != nil {
		a.Wage.Amount = s.WageAmount
	}
	// A bare amount in a wage answer lands in Slots.Amount rather than
	// WageAmount; take it when no transaction semantics compete for it.
	if a.Wage.Amount == nil && s.Amount != nil {
		a.Wage.Amount = s.Amount
	}
	if a.Wage.Frequency == "" && s.WageFrequency != "" {
		a.Wage.Frequency = s.WageFrequency
	}
	if a.Wage.Schedule.VisitsPerWeek == nil && s.VisitsPerWeek != nil {
		a.Wage.Schedule.VisitsPerWeek = s.VisitsPerWeek
	}
	if a.Wage.Schedule.HoursPerVisit == nil && s.HoursPerVisit != nil {
		a.Wage.Schedule.HoursPerVisit = s.HoursPerVisit
	}
}

func mergeReminder(r *models.ReminderDraft, s models.Slots) {
	if r.Title == "" && s.ReminderTitle != "" {
		r.Title = s.ReminderTitle
	}
	if r.DueDate == nil && s.Date != nil {
		r.DueDate = s.Date
	}
	if r.Amount == nil && s.Amount != nil {
		r.Amount = s.Amount
	}
	if !r.Recurring && s.Recurring {
		r.Recurring = true
	}
	if r.Frequency == "" && s.Frequency != "" {
		r.Frequency = s.Frequency
	}
}

// ApplyAnswer interprets the utterance as a direct answer to the awaited
// field, using field-specific parsing before any oracle round trip. It
// reports whether the answer filled anything.
func ApplyAnswer(d *models.Draft, field models.FieldName, answer string, now time.Time) (bool, error) {
	if d == nil {
		return false, fmt.Errorf("%w: nil draft", models.ErrInvalidMergeState)
	}
	var slots models.Slots
	switch field {
	case models.FieldAmount:
		slots.Amount = parser.ParseAmount(answer)
	case models.FieldProviderName:
		slots.ProviderName = parser.ParseName(answer)
	case models.FieldProviderType:
		if ref := parser.DetectProvider(answer); ref != nil {
			slots.ProviderType = ref.Type
			slots.ProviderName = ref.Name
		}
	case models.FieldStatus:
		slots.Status = parser.ParseStatus(answer)
	case models.FieldWageAmount:
		// "2000 monthly" answers amount and frequency in one go.
		slots.WageAmount, slots.WageFrequency = parser.ParseWage(answer)
	case models.FieldWageFrequency:
		slots.WageFrequency = parser.ParseFrequency(answer)
	case models.FieldVisitsPerWeek:
		if n := parser.ParseCount(answer); n != nil {
			slots.VisitsPerWeek = n
		}
	case models.FieldHoursPerVisit:
		if amount := parser.ParseAmount(answer); amount != nil {
			slots.HoursPerVisit = amount
		}
	case models.FieldTitle:
		if title := strings.TrimSpace(answer); title != "" {
			slots.ReminderTitle = title
		}
	case models.FieldDueDate:
		if phrase := parser.ResolveDate(answer, now); phrase != nil {
			slots.Date = &phrase.Date
		}
	default:
		return false, nil
	}
	if slots.IsEmpty() {
		return false, nil
	}
	if err := MergeSlots(d, slots); err != nil {
		return false, err
	}
	return true, nil
}
