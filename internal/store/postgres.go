// Package store provides storage backends for BolKhata.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BolKhata/BolKhata/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("PostgresStore failed to open connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("PostgresStore ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("PostgresStore failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgresStore.NewPostgresStore: migrations applied")

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) InsertTransaction(ctx context.Context, t *models.Transaction) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO transactions (user_id, amount, type, description, payment_method, date, provider_type, provider_name)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		t.UserID, t.Amount, t.Type, t.Description, nilIfEmpty(t.PaymentMethod), t.Date,
		nilIfEmpty(t.ProviderType), nilIfEmpty(t.ProviderName)).Scan(&id)
	if err != nil {
		slog.Error("PostgresStore InsertTransaction failed", "error", err, "userID", t.UserID)
		return 0, fmt.Errorf("failed to insert transaction: %w", err)
	}
	for _, c := range t.Categories {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO transaction_categories (transaction_id, category) VALUES ($1, $2) ON CONFLICT DO NOTHING`, id, c); err != nil {
			slog.Error("PostgresStore InsertTransaction category failed", "error", err, "category", c)
			return 0, fmt.Errorf("failed to insert transaction category: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	t.ID = id
	slog.Debug("PostgresStore InsertTransaction succeeded", "id", id, "userID", t.UserID, "amount", t.Amount)
	return id, nil
}

func (s *PostgresStore) RecentTransactions(ctx context.Context, userID string, limit int) ([]models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, amount, type, description, payment_method, date, provider_type, provider_name, created_at
		 FROM transactions WHERE user_id = $1 ORDER BY date DESC LIMIT $2`, userID, limit)
	if err != nil {
		slog.Error("PostgresStore RecentTransactions query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	return s.collectTransactions(ctx, rows)
}

func (s *PostgresStore) TransactionsBetween(ctx context.Context, userID string, from, to time.Time) ([]models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, amount, type, description, payment_method, date, provider_type, provider_name, created_at
		 FROM transactions WHERE user_id = $1 AND date >= $2 AND date < $3 ORDER BY date`, userID, from, to)
	if err != nil {
		slog.Error("PostgresStore TransactionsBetween query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	return s.collectTransactions(ctx, rows)
}

func (s *PostgresStore) collectTransactions(ctx context.Context, rows *sql.Rows) ([]models.Transaction, error) {
	defer rows.Close()
	var txns []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transaction rows: %w", err)
	}
	for i := range txns {
		categories, err := s.transactionCategories(ctx, txns[i].ID)
		if err != nil {
			return nil, err
		}
		txns[i].Categories = categories
	}
	return txns, nil
}

func (s *PostgresStore) transactionCategories(ctx context.Context, transactionID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT category FROM transaction_categories WHERE transaction_id = $1 ORDER BY category`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transaction categories: %w", err)
	}
	defer rows.Close()
	var categories []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("failed to scan category row: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (s *PostgresStore) InsertAttendance(ctx context.Context, a *models.AttendanceLog) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO attendance_logs (user_id, provider_type, provider_name, status, date)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		a.UserID, a.ProviderType, a.ProviderName, a.Status, a.Date).Scan(&id)
	if err != nil {
		slog.Error("PostgresStore InsertAttendance failed", "error", err, "userID", a.UserID)
		return 0, fmt.Errorf("failed to insert attendance: %w", err)
	}
	a.ID = id
	slog.Debug("PostgresStore InsertAttendance succeeded", "id", id, "userID", a.UserID, "provider", a.ProviderType)
	return id, nil
}

func (s *PostgresStore) AttendanceBetween(ctx context.Context, userID, providerType string, from, to time.Time) ([]models.AttendanceLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, provider_type, provider_name, status, date, created_at
		 FROM attendance_logs WHERE user_id = $1 AND provider_type = $2 AND date >= $3 AND date < $4 ORDER BY date`,
		userID, providerType, from, to)
	if err != nil {
		slog.Error("PostgresStore AttendanceBetween query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query attendance: %w", err)
	}
	defer rows.Close()
	var logs []models.AttendanceLog
	for rows.Next() {
		a, err := scanAttendance(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, a)
	}
	return logs, rows.Err()
}

func (s *PostgresStore) InsertReminder(ctx context.Context, r *models.Reminder) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO reminders (user_id, title, due_date, amount, recurring, frequency)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		r.UserID, r.Title, nullableTime(r.DueDate), r.Amount, r.Recurring, nilIfEmpty(r.Frequency)).Scan(&id)
	if err != nil {
		slog.Error("PostgresStore InsertReminder failed", "error", err, "userID", r.UserID)
		return 0, fmt.Errorf("failed to insert reminder: %w", err)
	}
	r.ID = id
	slog.Debug("PostgresStore InsertReminder succeeded", "id", id, "userID", r.UserID, "title", r.Title)
	return id, nil
}

func (s *PostgresStore) ListReminders(ctx context.Context, userID string) ([]models.Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, due_date, amount, recurring, frequency, delivered, created_at
		 FROM reminders WHERE user_id = $1 ORDER BY due_date`, userID)
	if err != nil {
		slog.Error("PostgresStore ListReminders query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query reminders: %w", err)
	}
	return collectReminders(rows)
}

func (s *PostgresStore) DueReminders(ctx context.Context, by time.Time) ([]models.Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, due_date, amount, recurring, frequency, delivered, created_at
		 FROM reminders WHERE delivered = FALSE AND due_date IS NOT NULL AND due_date <= $1 ORDER BY due_date`, by)
	if err != nil {
		slog.Error("PostgresStore DueReminders query failed", "error", err)
		return nil, fmt.Errorf("failed to query due reminders: %w", err)
	}
	return collectReminders(rows)
}

func (s *PostgresStore) MarkReminderDelivered(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE reminders SET delivered = TRUE WHERE id = $1`, id); err != nil {
		slog.Error("PostgresStore MarkReminderDelivered failed", "error", err, "id", id)
		return fmt.Errorf("failed to mark reminder delivered: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpsertServiceProvider(ctx context.Context, p models.ServiceProvider) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO service_providers (user_id, provider_type, name) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
		p.UserID, p.Type, p.Name)
	if err != nil {
		slog.Error("PostgresStore UpsertServiceProvider failed", "error", err, "userID", p.UserID, "type", p.Type)
		return fmt.Errorf("failed to upsert service provider: %w", err)
	}
	slog.Debug("PostgresStore UpsertServiceProvider succeeded", "userID", p.UserID, "type", p.Type, "name", p.Name)
	return nil
}

func (s *PostgresStore) ListServiceProviders(ctx context.Context, userID string) ([]models.ServiceProvider, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, provider_type, name FROM service_providers WHERE user_id = $1 ORDER BY provider_type, name`, userID)
	if err != nil {
		slog.Error("PostgresStore ListServiceProviders query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query service providers: %w", err)
	}
	defer rows.Close()
	var providers []models.ServiceProvider
	for rows.Next() {
		var p models.ServiceProvider
		if err := rows.Scan(&p.UserID, &p.Type, &p.Name); err != nil {
			return nil, fmt.Errorf("failed to scan provider row: %w", err)
		}
		providers = append(providers, p)
	}
	return providers, rows.Err()
}

func (s *PostgresStore) SaveProviderWage(ctx context.Context, w models.ProviderWage) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO service_provider_wages
		 (user_id, provider_type, provider_name, amount, frequency, visits_per_week, hours_per_visit)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (user_id, provider_type, provider_name) DO UPDATE SET
		   amount = EXCLUDED.amount,
		   frequency = EXCLUDED.frequency,
		   visits_per_week = EXCLUDED.visits_per_week,
		   hours_per_visit = EXCLUDED.hours_per_visit`,
		w.UserID, w.ProviderType, w.ProviderName, w.Amount, w.Frequency,
		nullableInt(w.VisitsPerWeek), nullableFloat(w.HoursPerVisit))
	if err != nil {
		slog.Error("PostgresStore SaveProviderWage failed", "error", err, "userID", w.UserID, "provider", w.ProviderType)
		return fmt.Errorf("failed to save provider wage: %w", err)
	}
	slog.Debug("PostgresStore SaveProviderWage succeeded", "userID", w.UserID, "provider", w.ProviderType, "amount", w.Amount)
	return nil
}

func (s *PostgresStore) GetProviderWage(ctx context.Context, userID, providerType, providerName string) (*models.ProviderWage, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT user_id, provider_type, provider_name, amount, frequency, visits_per_week, hours_per_visit
		 FROM service_provider_wages
		 WHERE user_id = $1 AND provider_type = $2 AND (provider_name = $3 OR $3 = '')
		 LIMIT 1`,
		userID, providerType, providerName)
	return scanWage(row)
}

func (s *PostgresStore) LogTurn(ctx context.Context, userID, role, body string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO context_logs (user_id, role, body, time) VALUES ($1, $2, $3, $4)`,
		userID, role, body, time.Now())
	if err != nil {
		slog.Error("PostgresStore LogTurn failed", "error", err, "userID", userID, "role", role)
		return fmt.Errorf("failed to insert context log: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecentTurns(ctx context.Context, userID string, limit int) ([]models.ContextLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, role, body, time FROM
		 (SELECT id, user_id, role, body, time FROM context_logs WHERE user_id = $1 ORDER BY time DESC, id DESC LIMIT $2) recent
		 ORDER BY time, id`, userID, limit)
	if err != nil {
		slog.Error("PostgresStore RecentTurns query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query context logs: %w", err)
	}
	defer rows.Close()
	var turns []models.ContextLog
	for rows.Next() {
		var c models.ContextLog
		if err := rows.Scan(&c.ID, &c.UserID, &c.Role, &c.Body, &c.Time); err != nil {
			return nil, fmt.Errorf("failed to scan context log row: %w", err)
		}
		turns = append(turns, c)
	}
	return turns, rows.Err()
}

func (s *PostgresStore) SaveLearningPattern(ctx context.Context, p models.LearningPattern) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO learning_patterns (user_id, pattern_type, payload_json, confidence) VALUES ($1, $2, $3, $4)`,
		p.UserID, p.PatternType, p.PayloadJSON, p.Confidence)
	if err != nil {
		slog.Error("PostgresStore SaveLearningPattern failed", "error", err, "userID", p.UserID, "type", p.PatternType)
		return fmt.Errorf("failed to insert learning pattern: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListLearningPatterns(ctx context.Context, userID string) ([]models.LearningPattern, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, pattern_type, payload_json, confidence, created_at
		 FROM learning_patterns WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		slog.Error("PostgresStore ListLearningPatterns query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query learning patterns: %w", err)
	}
	defer rows.Close()
	var patterns []models.LearningPattern
	for rows.Next() {
		var p models.LearningPattern
		if err := rows.Scan(&p.ID, &p.UserID, &p.PatternType, &p.PayloadJSON, &p.Confidence, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan learning pattern row: %w", err)
		}
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}

func (s *PostgresStore) SaveEventRelationship(ctx context.Context, r models.EventRelationship) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO event_relationships (user_id, primary_id, related_id, relationship_type, strength)
		 VALUES ($1, $2, $3, $4, $5)`,
		r.UserID, r.PrimaryID, r.RelatedID, r.RelationshipType, r.Strength)
	if err != nil {
		slog.Error("PostgresStore SaveEventRelationship failed", "error", err, "userID", r.UserID)
		return fmt.Errorf("failed to insert event relationship: %w", err)
	}
	return nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("PostgresStore.Close: closing database connection")
	return s.db.Close()
}
