package engine

import (
	"fmt"

	"github.com/BolKhata/BolKhata/internal/models"
)

// QuestionFor builds the single clarification question for the draft's next
// missing field. Questions reference what is already known ("the maid's
// name", "do we pay Lakshmi") so follow-ups read naturally to a senior user.
func QuestionFor(d *models.Draft, field models.FieldName) models.Clarification {
	return models.Clarification{Field: field, Question: questionText(d, field)}
}

func questionText(d *models.Draft, field models.FieldName) string {
	switch d.Kind {
	case models.KindTransaction:
		return transactionQuestion(d.Transaction, field)
	case models.KindAttendance:
		return attendanceQuestion(d.Attendance, field)
	case models.KindReminder:
		return reminderQuestion(field)
	}
	return genericQuestion(field)
}

func transactionQuestion(t *models.TransactionDraft, field models.FieldName) string {
	switch field {
	case models.FieldAmount:
		if t != nil && t.Provider != nil && t.Provider.Type != "" {
			return fmt.Sprintf("How much did you pay the %s?", t.Provider.Type)
		}
		return "How much was it?"
	case models.FieldDescription:
		return "What was this payment for?"
	case models.FieldProviderName:
		if t != nil && t.Provider != nil && t.Provider.Type != "" {
			return fmt.Sprintf("Could you please specify the %s's name?", t.Provider.Type)
		}
		return "Could you please tell me their name?"
	}
	return genericQuestion(field)
}

func attendanceQuestion(a *models.AttendanceDraft, field models.FieldName) string {
	who := "them"
	if a != nil {
		if a.Name != "" {
			who = a.Name
		} else if a.ProviderType != "" {
			who = "the " + a.ProviderType
		}
	}
	switch field {
	case models.FieldProviderType:
		return "Who is this about? For example your maid, cook, or driver."
	case models.FieldProviderName:
		if a != nil && a.ProviderType != "" {
			return fmt.Sprintf("Could you please specify the %s's name?", a.ProviderType)
		}
		return "Could you please tell me their name?"
	case models.FieldStatus:
		return fmt.Sprintf("Did %s come today or not?", who)
	case models.FieldWageAmount:
		return fmt.Sprintf("How much do we pay %s and how often (daily/weekly/monthly)?", who)
	case models.FieldWageFrequency:
		return fmt.Sprintf("How often do we pay %s? Daily, weekly, or monthly?", who)
	case models.FieldVisitsPerWeek:
		return fmt.Sprintf("How many times a week does %s come?", who)
	case models.FieldHoursPerVisit:
		return fmt.Sprintf("How many hours does %s work each visit?", who)
	}
	return genericQuestion(field)
}

func reminderQuestion(field models.FieldName) string {
	switch field {
	case models.FieldTitle:
		return "What should I remind you about?"
	case models.FieldDueDate:
		return "When should I remind you?"
	}
	return genericQuestion(field)
}

func genericQuestion(field models.FieldName) string {
	return fmt.Sprintf("Could you tell me the %s?", field)
}
