package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/BolKhata/BolKhata/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

func nullableInt(n int) interface{} {
	if n == 0 {
		return nil
	}
	return n
}

func nullableFloat(f float64) interface{} {
	if f == 0 {
		return nil
	}
	return f
}

// scanTransaction scans a Transaction row without its categories; callers
// attach those from transaction_categories.
func scanTransaction(rows *sql.Rows) (models.Transaction, error) {
	var t models.Transaction
	var paymentMethod, providerType, providerName sql.NullString
	err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.Type, &t.Description,
		&paymentMethod, &t.Date, &providerType, &providerName, &t.CreatedAt)
	if err != nil {
		return t, fmt.Errorf("scan transaction failed: %w", err)
	}
	t.PaymentMethod = paymentMethod.String
	t.ProviderType = providerType.String
	t.ProviderName = providerName.String
	return t, nil
}

// scanAttendance scans an AttendanceLog row.
func scanAttendance(rows *sql.Rows) (models.AttendanceLog, error) {
	var a models.AttendanceLog
	err := rows.Scan(&a.ID, &a.UserID, &a.ProviderType, &a.ProviderName, &a.Status, &a.Date, &a.CreatedAt)
	if err != nil {
		return a, fmt.Errorf("scan attendance failed: %w", err)
	}
	return a, nil
}

// collectReminders drains a reminder result set.
func collectReminders(rows *sql.Rows) ([]models.Reminder, error) {
	defer rows.Close()
	var reminders []models.Reminder
	for rows.Next() {
		var r models.Reminder
		var dueDate sql.NullTime
		var amount sql.NullFloat64
		var frequency sql.NullString
		err := rows.Scan(&r.ID, &r.UserID, &r.Title, &dueDate, &amount, &r.Recurring, &frequency, &r.Delivered, &r.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan reminder failed: %w", err)
		}
		if dueDate.Valid {
			r.DueDate = dueDate.Time
		}
		if amount.Valid {
			v := amount.Float64
			r.Amount = &v
		}
		r.Frequency = frequency.String
		reminders = append(reminders, r)
	}
	return reminders, rows.Err()
}

// scanWage scans a ProviderWage from a single row, mapping no-rows to nil.
func scanWage(row *sql.Row) (*models.ProviderWage, error) {
	var w models.ProviderWage
	var visits sql.NullInt64
	var hours sql.NullFloat64
	err := row.Scan(&w.UserID, &w.ProviderType, &w.ProviderName, &w.Amount, &w.Frequency, &visits, &hours)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan wage failed: %w", err)
	}
	w.VisitsPerWeek = int(visits.Int64)
	w.HoursPerVisit = hours.Float64
	return &w, nil
}
