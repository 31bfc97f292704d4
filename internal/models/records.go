// Package models defines committed record rows, derived patterns, and the
// store operations emitted by the processor layer.
package models

import "time"

// Transaction is a committed expense or income row.
type Transaction struct {
	ID            int64           `json:"id"`
	UserID        string          `json:"user_id"`
	Amount        float64         `json:"amount"`
	Type          TransactionType `json:"type"`
	Description   string          `json:"description"`
	Categories    []string        `json:"categories,omitempty"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	Date          time.Time       `json:"date"`
	ProviderType  string          `json:"provider_type,omitempty"`
	ProviderName  string          `json:"provider_name,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// AttendanceLog is a committed attendance row for a service provider.
type AttendanceLog struct {
	ID           int64            `json:"id"`
	UserID       string           `json:"user_id"`
	ProviderType string           `json:"provider_type"`
	ProviderName string           `json:"provider_name"`
	Status       AttendanceStatus `json:"status"`
	Date         time.Time        `json:"date"`
	CreatedAt    time.Time        `json:"created_at"`
}

// ServiceProvider is the household staff registry row, upserted whenever a
// provider is mentioned in a completed record.
type ServiceProvider struct {
	UserID string `json:"user_id"`
	Type   string `json:"type"`
	Name   string `json:"name"`
}

// ProviderWage is the wage arrangement row for a service provider.
type ProviderWage struct {
	UserID        string        `json:"user_id"`
	ProviderType  string        `json:"provider_type"`
	ProviderName  string        `json:"provider_name"`
	Amount        float64       `json:"amount"`
	Frequency     WageFrequency `json:"frequency"`
	VisitsPerWeek int           `json:"visits_per_week,omitempty"`
	HoursPerVisit float64       `json:"hours_per_visit,omitempty"`
}

// Reminder is a committed reminder row.
type Reminder struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	DueDate   time.Time `json:"due_date"`
	Amount    *float64  `json:"amount,omitempty"`
	Recurring bool      `json:"recurring"`
	Frequency string    `json:"frequency,omitempty"`
	Delivered bool      `json:"delivered"`
	CreatedAt time.Time `json:"created_at"`
}

// ContextLog is one turn of conversation history, persisted so the oracle can
// be given recent context on follow-up utterances.
type ContextLog struct {
	ID     int64     `json:"id"`
	UserID string    `json:"user_id"`
	Role   string    `json:"role"` // "user" or "assistant"
	Body   string    `json:"body"`
	Time   time.Time `json:"time"`
}

// PatternType identifies a derived behavioral pattern.
type PatternType string

const (
	PatternRecurring       PatternType = "recurring"
	PatternCategoryRelated PatternType = "category_related"
	PatternSequential      PatternType = "sequential"
)

// PatternMetadata carries the numeric summary of a detected pattern.
type PatternMetadata struct {
	FrequencyLabel    string  `json:"frequency_label,omitempty"`
	AverageAmount     float64 `json:"average_amount,omitempty"`
	AmountVariance    float64 `json:"amount_variance,omitempty"`
	TimeGapVarianceMs int64   `json:"time_gap_variance_ms,omitempty"`
	MeanGapMs         int64   `json:"mean_gap_ms,omitempty"`
}

// EventPattern is a derived, non-authoritative observation about a user's
// records. Recomputed on demand, never treated as source of truth.
type EventPattern struct {
	Type            PatternType     `json:"type"`
	Confidence      float64         `json:"confidence"`
	MemberRecordIDs []int64         `json:"member_record_ids"`
	Metadata        PatternMetadata `json:"metadata"`
}

// RelationshipType classifies a directed edge between two records.
type RelationshipType string

const (
	RelationSameCategory          RelationshipType = "same_category"
	RelationSimilarAmount         RelationshipType = "similar_amount"
	RelationTemporal              RelationshipType = "temporal"
	RelationPaymentAttendanceLink RelationshipType = "payment_attendance_link"
)

// EventRelationship is a persisted directed edge between two records.
// Edges are never mutated, only superseded by newer ones.
type EventRelationship struct {
	ID               int64            `json:"id"`
	UserID           string           `json:"user_id"`
	PrimaryID        int64            `json:"primary_id"`
	RelatedID        int64            `json:"related_id"`
	RelationshipType RelationshipType `json:"relationship_type"`
	Strength         float64          `json:"strength"`
	CreatedAt        time.Time        `json:"created_at"`
}

// LearningPattern is the advisory persisted form of an EventPattern.
type LearningPattern struct {
	ID          int64       `json:"id"`
	UserID      string      `json:"user_id"`
	PatternType PatternType `json:"pattern_type"`
	PayloadJSON string      `json:"payload_json"`
	Confidence  float64     `json:"confidence"`
	CreatedAt   time.Time   `json:"created_at"`
}

// OperationKind identifies what a StoreOperation writes.
type OperationKind string

const (
	OpInsertTransaction OperationKind = "insert_transaction"
	OpInsertAttendance  OperationKind = "insert_attendance"
	OpInsertReminder    OperationKind = "insert_reminder"
	OpUpsertProvider    OperationKind = "upsert_service_provider"
	OpSaveProviderWage  OperationKind = "save_provider_wage"
)

// StoreOperation is one persistence action emitted by a kind processor.
// Exactly one payload pointer is non-nil, selected by Kind.
type StoreOperation struct {
	Kind        OperationKind    `json:"kind"`
	Transaction *Transaction     `json:"transaction,omitempty"`
	Attendance  *AttendanceLog   `json:"attendance,omitempty"`
	Reminder    *Reminder        `json:"reminder,omitempty"`
	Provider    *ServiceProvider `json:"provider,omitempty"`
	Wage        *ProviderWage    `json:"wage,omitempty"`
}
