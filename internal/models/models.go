// Package models defines the core data structures for BolKhata.
//
// It includes record kinds, classified intents, extracted slots, and the API
// response envelope shared across modules.
package models

import (
	"errors"
	"time"
)

// RecordKind identifies what kind of record an utterance is about.
type RecordKind string

const (
	// KindTransaction covers expenses and incomes.
	KindTransaction RecordKind = "transaction"
	// KindAttendance covers household service provider attendance marking.
	KindAttendance RecordKind = "attendance"
	// KindReminder covers payment and task reminders.
	KindReminder RecordKind = "reminder"
	// KindQuery covers read-only questions about past records.
	KindQuery RecordKind = "query"
	// KindUnknown means the utterance could not be classified.
	KindUnknown RecordKind = "unknown"
)

// IsActionable reports whether the kind produces or reads records.
func (k RecordKind) IsActionable() bool {
	switch k {
	case KindTransaction, KindAttendance, KindReminder, KindQuery:
		return true
	default:
		return false
	}
}

// TransactionType distinguishes money going out from money coming in.
type TransactionType string

const (
	TransactionExpense TransactionType = "expense"
	TransactionIncome  TransactionType = "income"
)

// AttendanceStatus marks whether a service provider showed up.
type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceAbsent  AttendanceStatus = "absent"
)

// WageFrequency describes how often a service provider is paid.
type WageFrequency string

const (
	WageHourly  WageFrequency = "hourly"
	WageDaily   WageFrequency = "daily"
	WageWeekly  WageFrequency = "weekly"
	WageMonthly WageFrequency = "monthly"
)

// IsValidWageFrequency checks if the given frequency is supported.
func IsValidWageFrequency(f WageFrequency) bool {
	switch f {
	case WageHourly, WageDaily, WageWeekly, WageMonthly:
		return true
	default:
		return false
	}
}

// FieldName identifies a single slot of a draft record. Nested slots use
// dotted paths so the same name works in question tables, oracle replies,
// and merge logic.
type FieldName string

const (
	FieldAmount        FieldName = "amount"
	FieldDescription   FieldName = "description"
	FieldProviderName  FieldName = "name"
	FieldProviderType  FieldName = "provider_type"
	FieldStatus        FieldName = "status"
	FieldWageAmount    FieldName = "wage.amount"
	FieldWageFrequency FieldName = "wage.frequency"
	FieldVisitsPerWeek FieldName = "wage.schedule.visits_per_week"
	FieldHoursPerVisit FieldName = "wage.schedule.hours_per_visit"
	FieldTitle         FieldName = "title"
	FieldDueDate       FieldName = "due_date"
)

// Slots holds the partial fields extracted from a single utterance, either by
// the deterministic parser or the NLU oracle. Pointer fields distinguish
// "absent" from zero values; empty strings mean absent for text fields.
type Slots struct {
	Amount          *float64         `json:"amount,omitempty"`
	TransactionType TransactionType  `json:"transaction_type,omitempty"`
	Description     string           `json:"description,omitempty"`
	Categories      []string         `json:"categories,omitempty"`
	PaymentMethod   string           `json:"payment_method,omitempty"`
	Date            *time.Time       `json:"date,omitempty"`
	ProviderType    string           `json:"provider_type,omitempty"`
	ProviderName    string           `json:"provider_name,omitempty"`
	Status          AttendanceStatus `json:"status,omitempty"`
	WageAmount      *float64         `json:"wage_amount,omitempty"`
	WageFrequency   WageFrequency    `json:"wage_frequency,omitempty"`
	VisitsPerWeek   *int             `json:"visits_per_week,omitempty"`
	HoursPerVisit   *float64         `json:"hours_per_visit,omitempty"`
	ReminderTitle   string           `json:"reminder_title,omitempty"`
	Recurring       bool             `json:"recurring,omitempty"`
	Frequency       string           `json:"frequency,omitempty"`
}

// IsEmpty reports whether no slot at all was extracted.
func (s Slots) IsEmpty() bool {
	return s.Amount == nil && s.TransactionType == "" && s.Description == "" &&
		len(s.Categories) == 0 && s.PaymentMethod == "" && s.Date == nil &&
		s.ProviderType == "" && s.ProviderName == "" && s.Status == "" &&
		s.WageAmount == nil && s.WageFrequency == "" && s.VisitsPerWeek == nil &&
		s.HoursPerVisit == nil && s.ReminderTitle == "" && !s.Recurring && s.Frequency == ""
}

// ClassifiedIntent is the normalized output of the parser or the NLU oracle.
// It is never persisted directly.
type ClassifiedIntent struct {
	Kind          RecordKind  `json:"kind"`
	Confidence    float64     `json:"confidence"`
	Slots         Slots       `json:"slots"`
	MissingFields []FieldName `json:"missing_fields,omitempty"`
}

// UnknownIntent is the canonical degraded classification used whenever the
// oracle fails, times out, or returns an unparsable reply.
func UnknownIntent() ClassifiedIntent {
	return ClassifiedIntent{Kind: KindUnknown, Confidence: 0}
}

// Error variables shared across the engine for classifiable failures.
var (
	// ErrOracleUnavailable covers network errors, timeouts and malformed
	// oracle replies. Always recoverable: callers degrade to KindUnknown.
	ErrOracleUnavailable = errors.New("nlu oracle unavailable")
	// ErrAmbiguousIntent is returned when classification confidence is below
	// the routing threshold. Treated as a clarification, not a hard error.
	ErrAmbiguousIntent = errors.New("ambiguous intent")
	// ErrInvalidMergeState is returned when an answer is merged into a draft
	// of the wrong kind. Protocol error: the engine restarts the draft.
	ErrInvalidMergeState = errors.New("invalid merge state")
	// ErrStoreWrite wraps user-visible persistence failures.
	ErrStoreWrite = errors.New("store write failed")
	// ErrEmptyUtterance is returned when an inbound utterance has no content.
	ErrEmptyUtterance = errors.New("utterance cannot be empty")
	// ErrEmptyUserID is returned when the user identifier is missing.
	ErrEmptyUserID = errors.New("user id cannot be empty")
)

// Clarification describes the single question the engine wants answered next.
type Clarification struct {
	Field    FieldName `json:"field"`
	Question string    `json:"question"`
}

// EngineResult is the outcome of handling one utterance: the inbound surface
// contract consumed by the HTTP layer and the messaging channels.
type EngineResult struct {
	ResponseText  string           `json:"response_text"`
	NeedsMoreInfo *Clarification   `json:"needs_more_info,omitempty"`
	Operations    []StoreOperation `json:"store_operations,omitempty"`
	Patterns      []EventPattern   `json:"patterns,omitempty"`
}

// InboundMessage represents an incoming utterance from a messaging channel.
type InboundMessage struct {
	From string `json:"from"`
	Body string `json:"body"`
	Time int64  `json:"time"`
}

// MessageStatus represents the delivery state of an outbound message.
type MessageStatus string

const (
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
)

// Receipt represents a delivery receipt event for an outbound message.
type Receipt struct {
	To     string        `json:"to"`
	Status MessageStatus `json:"status"`
	Time   int64         `json:"time"`
}

// API response envelope shared by all HTTP handlers.

// APIStatus represents the status field of an API response.
type APIStatus string

const (
	APIStatusOK    APIStatus = "ok"
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
