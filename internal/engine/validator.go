package engine

import (
	"github.com/BolKhata/BolKhata/internal/models"
)

// MissingFields reports which required slots of the draft are still empty, in
// the fixed order they should be asked about. wageKnown tells the attendance
// path that a wage arrangement already exists for the provider, so the wage
// questions are skipped.
func MissingFields(d *models.Draft, wageKnown bool) []models.FieldName {
	if d == nil {
		return nil
	}
	switch d.Kind {
	case models.KindTransaction:
		return missingTransactionFields(d.Transaction)
	case models.KindAttendance:
		return missingAttendanceFields(d.Attendance, wageKnown)
	case models.KindReminder:
		return missingReminderFields(d.Reminder)
	default:
		return nil
	}
}

// IsComplete reports whether the draft can be committed as-is.
func IsComplete(d *models.Draft, wageKnown bool) bool {
	return len(MissingFields(d, wageKnown)) == 0
}

// NextMissingField returns the first field to ask about, or "" when complete.
func NextMissingField(d *models.Draft, wageKnown bool) models.FieldName {
	missing := MissingFields(d, wageKnown)
	if len(missing) == 0 {
		return ""
	}
	return missing[0]
}

// A transaction needs an amount, plus the provider's name when a service
// provider is attached. Type defaults to expense, the date to today, and the
// description to the raw utterance at commit time.
func missingTransactionFields(t *models.TransactionDraft) []models.FieldName {
	if t == nil {
		return []models.FieldName{models.FieldAmount}
	}
	var missing []models.FieldName
	if t.Amount == nil {
		missing = append(missing, models.FieldAmount)
	}
	if t.Provider != nil && t.Provider.Name == "" {
		missing = append(missing, models.FieldProviderName)
	}
	return missing
}

// Attendance needs the provider identified, the status known, and the full
// wage arrangement including the visit schedule. The wage and schedule
// questions are asked only the first time a provider is seen.
func missingAttendanceFields(a *models.AttendanceDraft, wageKnown bool) []models.FieldName {
	if a == nil {
		return []models.FieldName{models.FieldProviderType}
	}
	var missing []models.FieldName
	if a.ProviderType == "" {
		missing = append(missing, models.FieldProviderType)
	}
	if a.Name == "" {
		missing = append(missing, models.FieldProviderName)
	}
	if a.Status == "" {
		missing = append(missing, models.FieldStatus)
	}
	if wageKnown {
		return missing
	}
	if a.Wage.Amount == nil {
		missing = append(missing, models.FieldWageAmount)
	}
	if a.Wage.Frequency == "" {
		missing = append(missing, models.FieldWageFrequency)
	}
	if a.Wage.Schedule.VisitsPerWeek == nil {
		missing = append(missing, models.FieldVisitsPerWeek)
	}
	if a.Wage.Schedule.HoursPerVisit == nil {
		missing = append(missing, models.FieldHoursPerVisit)
	}
	return missing
}

func missingReminderFields(r *models.ReminderDraft) []models.FieldName {
	if r == nil {
		return []models.FieldName{models.FieldTitle}
	}
	var missing []models.FieldName
	if r.Title == "" {
		missing = append(missing, models.FieldTitle)
	}
	if r.DueDate == nil && !r.Recurring {
		missing = append(missing, models.FieldDueDate)
	}
	return missing
}
