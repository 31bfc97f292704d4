// Package store provides storage backends for BolKhata.
//
// The same Store interface is implemented over SQLite for single-household
// deployments and PostgreSQL for hosted ones; the backend is selected from
// the DSN shape. An in-memory implementation backs tests.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/BolKhata/BolKhata/internal/models"
)

// Store is the persistence boundary for committed records, conversation
// context, and derived patterns.
type Store interface {
	// Transactions
	InsertTransaction(ctx context.Context, t *models.Transaction) (int64, error)
	RecentTransactions(ctx context.Context, userID string, limit int) ([]models.Transaction, error)
	TransactionsBetween(ctx context.Context, userID string, from, to time.Time) ([]models.Transaction, error)

	// Attendance
	InsertAttendance(ctx context.Context, a *models.AttendanceLog) (int64, error)
	AttendanceBetween(ctx context.Context, userID, providerType string, from, to time.Time) ([]models.AttendanceLog, error)

	// Reminders
	InsertReminder(ctx context.Context, r *models.Reminder) (int64, error)
	ListReminders(ctx context.Context, userID string) ([]models.Reminder, error)
	DueReminders(ctx context.Context, by time.Time) ([]models.Reminder, error)
	MarkReminderDelivered(ctx context.Context, id int64) error

	// Service providers and wages
	UpsertServiceProvider(ctx context.Context, p models.ServiceProvider) error
	ListServiceProviders(ctx context.Context, userID string) ([]models.ServiceProvider, error)
	SaveProviderWage(ctx context.Context, w models.ProviderWage) error
	GetProviderWage(ctx context.Context, userID, providerType, providerName string) (*models.ProviderWage, error)

	// Conversation context
	LogTurn(ctx context.Context, userID, role, body string) error
	RecentTurns(ctx context.Context, userID string, limit int) ([]models.ContextLog, error)

	// Derived patterns
	SaveLearningPattern(ctx context.Context, p models.LearningPattern) error
	ListLearningPatterns(ctx context.Context, userID string) ([]models.LearningPattern, error)
	SaveEventRelationship(ctx context.Context, r models.EventRelationship) error

	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithDSN sets the database connection string or file path.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType inspects a DSN and reports the database driver it targets:
// "postgres" for URL or key=value style connection strings, "sqlite3" for
// plain file paths.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres"
	}
	if strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite3"
}

// NewStore opens the backend matching the DSN type.
func NewStore(dsn string) (Store, error) {
	if DetectDSNType(dsn) == "postgres" {
		return NewPostgresStore(WithDSN(dsn))
	}
	return NewSQLiteStore(WithDSN(dsn))
}
