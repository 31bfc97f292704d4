// Package store provides storage backends for BolKhata.
//
// This file implements the SQLite-backed store.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/BolKhata/BolKhata/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("SQLiteStore.NewSQLiteStore: creating SQLite store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("SQLiteStore failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn+"?_foreign_keys=on")
	if err != nil {
		slog.Error("SQLiteStore failed to open connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLiteStore ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("SQLiteStore failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLiteStore.NewSQLiteStore: migrations applied")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) InsertTransaction(ctx context.Context, t *models.Transaction) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO transactions (user_id, amount, type, description, payment_method, date, provider_type, provider_name)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.UserID, t.Amount, t.Type, t.Description, nilIfEmpty(t.PaymentMethod), t.Date,
		nilIfEmpty(t.ProviderType), nilIfEmpty(t.ProviderName))
	if err != nil {
		slog.Error("SQLiteStore InsertTransaction failed", "error", err, "userID", t.UserID)
		return 0, fmt.Errorf("failed to insert transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read transaction id: %w", err)
	}
	for _, c := range t.Categories {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO transaction_categories (transaction_id, category) VALUES (?, ?)`, id, c); err != nil {
			slog.Error("SQLiteStore InsertTransaction category failed", "error", err, "category", c)
			return 0, fmt.Errorf("failed to insert transaction category: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	t.ID = id
	slog.Debug("SQLiteStore InsertTransaction succeeded", "id", id, "userID", t.UserID, "amount", t.Amount)
	return id, nil
}

func (s *SQLiteStore) RecentTransactions(ctx context.Context, userID string, limit int) ([]models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, amount, type, description, payment_method, date, provider_type, provider_name, created_at
		 FROM transactions WHERE user_id = ? ORDER BY date DESC LIMIT ?`, userID, limit)
	if err != nil {
		slog.Error("SQLiteStore RecentTransactions query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	return s.collectTransactions(ctx, rows)
}

func (s *SQLiteStore) TransactionsBetween(ctx context.Context, userID string, from, to time.Time) ([]models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, amount, type, description, payment_method, date, provider_type, provider_name, created_at
		 FROM transactions WHERE user_id = ? AND date >= ? AND date < ? ORDER BY date`, userID, from, to)
	if err != nil {
		slog.Error("SQLiteStore TransactionsBetween query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	return s.collectTransactions(ctx, rows)
}

func (s *SQLiteStore) collectTransactions(ctx context.Context, rows *sql.Rows) ([]models.Transaction, error) {
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

func (s *SQLiteStore) transactionCategories(ctx context.Context, transactionID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT category FROM transaction_categories WHERE transaction_id = ? ORDER BY category`, transactionID)
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

func (s *SQLiteStore) InsertAttendance(ctx context.Context, a *models.AttendanceLog) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO attendance_logs (user_id, provider_type, provider_name, status, date)
		 VALUES (?, ?, ?, ?, ?)`,
		a.UserID, a.ProviderType, a.ProviderName, a.Status, a.Date)
	if err != nil {
		slog.Error("SQLiteStore InsertAttendance failed", "error", err, "userID", a.UserID)
		return 0, fmt.Errorf("failed to insert attendance: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read attendance id: %w", err)
	}
	a.ID = id
	slog.Debug("SQLiteStore InsertAttendance succeeded", "id", id, "userID", a.UserID, "provider", a.ProviderType)
	return id, nil
}

func (s *SQLiteStore) AttendanceBetween(ctx context.Context, userID, providerType string, from, to time.Time) ([]models.AttendanceLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, provider_type, provider_name, status, date, created_at
		 FROM attendance_logs WHERE user_id = ? AND provider_type = ? AND date >= ? AND date < ? ORDER BY date`,
		userID, providerType, from, to)
	if err != nil {
		slog.Error("SQLiteStore AttendanceBetween query failed", "error", err, "userID", userID)
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

func (s *SQLiteStore) InsertReminder(ctx context.Context, r *models.Reminder) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO reminders (user_id, title, due_date, amount, recurring, frequency)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.UserID, r.Title, nullableTime(r.DueDate), r.Amount, r.Recurring, nilIfEmpty(r.Frequency))
	if err != nil {
		slog.Error("SQLiteStore InsertReminder failed", "error", err, "userID", r.UserID)
		return 0, fmt.Errorf("failed to insert reminder: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read reminder id: %w", err)
	}
	r.ID = id
	slog.Debug("SQLiteStore InsertReminder succeeded", "id", id, "userID", r.UserID, "title", r.Title)
	return id, nil
}

func (s *SQLiteStore) ListReminders(ctx context.Context, userID string) ([]models.Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, due_date, amount, recurring, frequency, delivered, created_at
		 FROM reminders WHERE user_id = ? ORDER BY due_date`, userID)
	if err != nil {
		slog.Error("SQLiteStore ListReminders query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query reminders: %w", err)
	}
	return collectReminders(rows)
}

func (s *SQLiteStore) DueReminders(ctx context.Context, by time.Time) ([]models.Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, due_date, amount, recurring, frequency, delivered, created_at
		 FROM reminders WHERE delivered = 0 AND due_date IS NOT NULL AND due_date <= ? ORDER BY due_date`, by)
	if err != nil {
		slog.Error("SQLiteStore DueReminders query failed", "error", err)
		return nil, fmt.Errorf("failed to query due reminders: %w", err)
	}
	return collectReminders(rows)
}

func (s *SQLiteStore) MarkReminderDelivered(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE reminders SET delivered = 1 WHERE id = ?`, id); err != nil {
		slog.Error("SQLiteStore MarkReminderDelivered failed", "error", err, "id", id)
		return fmt.Errorf("failed to mark reminder delivered: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpsertServiceProvider(ctx context.Context, p models.ServiceProvider) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO service_providers (user_id, provider_type, name) VALUES (?, ?, ?)`,
		p.UserID, p.Type, p.Name)
	if err != nil {
		slog.Error("SQLiteStore UpsertServiceProvider failed", "error", err, "userID", p.UserID, "type", p.Type)
		return fmt.Errorf("failed to upsert service provider: %w", err)
	}
	slog.Debug("SQLiteStore UpsertServiceProvider succeeded", "userID", p.UserID, "type", p.Type, "name", p.Name)
	return nil
}

func (s *SQLiteStore) ListServiceProviders(ctx context.Context, userID string) ([]models.ServiceProvider, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, provider_type, name FROM service_providers WHERE user_id = ? ORDER BY provider_type, name`, userID)
	if err != nil {
		slog.Error("SQLiteStore ListServiceProviders query failed", "error", err, "userID", userID)
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

func (s *SQLiteStore) SaveProviderWage(ctx context.Context, w models.ProviderWage) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO service_provider_wages
		 (user_id, provider_type, provider_name, amount, frequency, visits_per_week, hours_per_visit)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		w.UserID, w.ProviderType, w.ProviderName, w.Amount, w.Frequency,
		nullableInt(w.VisitsPerWeek), nullableFloat(w.HoursPerVisit))
	if err != nil {
		slog.Error("SQLiteStore SaveProviderWage failed", "error", err, "userID", w.UserID, "provider", w.ProviderType)
		return fmt.Errorf("failed to save provider wage: %w", err)
	}
	slog.Debug("SQLiteStore SaveProviderWage succeeded", "userID", w.UserID, "provider", w.ProviderType, "amount", w.Amount)
	return nil
}

func (s *SQLiteStore) GetProviderWage(ctx context.Context, userID, providerType, providerName string) (*models.ProviderWage, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT user_id, provider_type, provider_name, amount, frequency, visits_per_week, hours_per_visit
		 FROM service_provider_wages
		 WHERE user_id = ? AND provider_type = ? AND (provider_name = ? OR ? = '')
		 LIMIT 1`,
		userID, providerType, providerName, providerName)
	return scanWage(row)
}

func (s *SQLiteStore) LogTurn(ctx context.Context, userID, role, body string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO context_logs (user_id, role, body, time) VALUES (?, ?, ?, ?)`,
		userID, role, body, time.Now())
	if err != nil {
		slog.Error("SQLiteStore LogTurn failed", "error", err, "userID", userID, "role", role)
		return fmt.Errorf("failed to insert context log: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RecentTurns(ctx context.Context, userID string, limit int) ([]models.ContextLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, role, body, time FROM
		 (SELECT id, user_id, role, body, time FROM context_logs WHERE user_id = ? ORDER BY time DESC, id DESC LIMIT ?)
		 ORDER BY time, id`, userID, limit)
	if err != nil {
		slog.Error("SQLiteStore RecentTurns query failed", "error", err, "userID", userID)
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

func (s *SQLiteStore) SaveLearningPattern(ctx context.Context, p models.LearningPattern) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO learning_patterns (user_id, pattern_type, payload_json, confidence) VALUES (?, ?, ?, ?)`,
		p.UserID, p.PatternType, p.PayloadJSON, p.Confidence)
	if err != nil {
		slog.Error("SQLiteStore SaveLearningPattern failed", "error", err, "userID", p.UserID, "type", p.PatternType)
		return fmt.Errorf("failed to insert learning pattern: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListLearningPatterns(ctx context.Context, userID string) ([]models.LearningPattern, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, pattern_type, payload_json, confidence, created_at
		 FROM learning_patterns WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		slog.Error("SQLiteStore ListLearningPatterns query failed", "error", err, "userID", userID)
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

func (s *SQLiteStore) SaveEventRelationship(ctx context.Context, r models.EventRelationship) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO event_relationships (user_id, primary_id, related_id, relationship_type, strength)
		 VALUES (?, ?, ?, ?, ?)`,
		r.UserID, r.PrimaryID, r.RelatedID, r.RelationshipType, r.Strength)
	if err != nil {
		slog.Error("SQLiteStore SaveEventRelationship failed", "error", err, "userID", r.UserID)
		return fmt.Errorf("failed to insert event relationship: %w", err)
	}
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("SQLiteStore.Close: closing database connection")
	return s.db.Close()
}
