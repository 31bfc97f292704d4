// Package store provides storage backends for BolKhata.
//
// This file implements an in-memory store used by tests and by development
// runs that do not need persistence.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BolKhata/BolKhata/internal/models"
)

// InMemoryStore keeps all records in process memory. Safe for concurrent use.
type InMemoryStore struct {
	mu            sync.Mutex
	nextID        int64
	transactions  []models.Transaction
	attendance    []models.AttendanceLog
	reminders     []models.Reminder
	providers     map[string]models.ServiceProvider
	wages         map[string]models.ProviderWage
	turns         []models.ContextLog
	patterns      []models.LearningPattern
	relationships []models.EventRelationship
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		providers: make(map[string]models.ServiceProvider),
		wages:     make(map[string]models.ProviderWage),
	}
}

func (s *InMemoryStore) nextRecordID() int64 {
	s.nextID++
	return s.nextID
}

func providerKey(userID, providerType, name string) string {
	return userID + "\x00" + providerType + "\x00" + name
}

func (s *InMemoryStore) InsertTransaction(ctx context.Context, t *models.Transaction) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = s.nextRecordID()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	s.transactions = append(s.transactions, *t)
	return t.ID, nil
}

func (s *InMemoryStore) RecentTransactions(ctx context.Context, userID string, limit int) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Transaction
	for _, t := range s.transactions {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) TransactionsBetween(ctx context.Context, userID string, from, to time.Time) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Transaction
	for _, t := range s.transactions {
		if t.UserID == userID && !t.Date.Before(from) && t.Date.Before(to) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *InMemoryStore) InsertAttendance(ctx context.Context, a *models.AttendanceLog) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = s.nextRecordID()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	s.attendance = append(s.attendance, *a)
	return a.ID, nil
}

func (s *InMemoryStore) AttendanceBetween(ctx context.Context, userID, providerType string, from, to time.Time) ([]models.AttendanceLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.AttendanceLog
	for _, a := range s.attendance {
		if a.UserID == userID && a.ProviderType == providerType && !a.Date.Before(from) && a.Date.Before(to) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *InMemoryStore) InsertReminder(ctx context.Context, r *models.Reminder) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = s.nextRecordID()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	s.reminders = append(s.reminders, *r)
	return r.ID, nil
}

func (s *InMemoryStore) ListReminders(ctx context.Context, userID string) ([]models.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Reminder
	for _, r := range s.reminders {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return out, nil
}

func (s *InMemoryStore) DueReminders(ctx context.Context, by time.Time) ([]models.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Reminder
	for _, r := range s.reminders {
		if !r.Delivered && !r.DueDate.IsZero() && !r.DueDate.After(by) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return out, nil
}

func (s *InMemoryStore) MarkReminderDelivered(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.reminders {
		if s.reminders[i].ID == id {
			s.reminders[i].Delivered = true
			return nil
		}
	}
	return nil
}

func (s *InMemoryStore) UpsertServiceProvider(ctx context.Context, p models.ServiceProvider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers[providerKey(p.UserID, p.Type, p.Name)] = p
	return nil
}

func (s *InMemoryStore) ListServiceProviders(ctx context.Context, userID string) ([]models.ServiceProvider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ServiceProvider
	for _, p := range s.providers {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *InMemoryStore) SaveProviderWage(ctx context.Context, w models.ProviderWage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wages[providerKey(w.UserID, w.ProviderType, w.ProviderName)] = w
	return nil
}

func (s *InMemoryStore) GetProviderWage(ctx context.Context, userID, providerType, providerName string) (*models.ProviderWage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.wages[providerKey(userID, providerType, providerName)]; ok {
		copy := w
		return &copy, nil
	}
	// Fall back to any wage for the provider type when the name was not given.
	if providerName == "" {
		for _, w := range s.wages {
			if w.UserID == userID && w.ProviderType == providerType {
				copy := w
				return &copy, nil
			}
		}
	}
	return nil, nil
}

func (s *InMemoryStore) LogTurn(ctx context.Context, userID, role, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, models.ContextLog{
		ID:     s.nextRecordID(),
		UserID: userID,
		Role:   role,
		Body:   body,
		Time:   time.Now(),
	})
	return nil
}

func (s *InMemoryStore) RecentTurns(ctx context.Context, userID string, limit int) ([]models.ContextLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ContextLog
	for _, t := range s.turns {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *InMemoryStore) SaveLearningPattern(ctx context.Context, p models.LearningPattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.nextRecordID()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	s.patterns = append(s.patterns, p)
	return nil
}

func (s *InMemoryStore) ListLearningPatterns(ctx context.Context, userID string) ([]models.LearningPattern, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.LearningPattern
	for _, p := range s.patterns {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *InMemoryStore) SaveEventRelationship(ctx context.Context, r models.EventRelationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = s.nextRecordID()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	s.relationships = append(s.relationships, r)
	return nil
}

// EventRelationships returns all stored edges for a user (test helper).
func (s *InMemoryStore) EventRelationships(userID string) []models.EventRelationship {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.EventRelationship
	for _, r := range s.relationships {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
