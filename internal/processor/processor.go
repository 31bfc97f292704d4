// Package processor turns complete drafts into store writes and plain-language
// confirmations, and answers read-only queries. Processors never call the NLU
// oracle; by the time a draft reaches them every required field is filled.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BolKhata/BolKhata/internal/models"
	"github.com/BolKhata/BolKhata/internal/patterns"
	"github.com/BolKhata/BolKhata/internal/store"
)

// DefaultPatternWindow is how many recent transactions feed pattern detection
// after each transaction commit.
const DefaultPatternWindow = 50

// Opts holds router configuration.
type Opts struct {
	PatternWindow int
	Clock         func() time.Time
}

// Option defines a configuration option for the router.
type Option func(*Opts)

// WithPatternWindow overrides the post-commit pattern detection window.
func WithPatternWindow(n int) Option {
	return func(o *Opts) { o.PatternWindow = n }
}

// WithClock overrides the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(o *Opts) { o.Clock = clock }
}

// Router dispatches complete drafts to the processor for their kind.
type Router struct {
	store         store.Store
	detector      *patterns.Detector
	patternWindow int
	clock         func() time.Time
}

// NewRouter creates a router over the given store. detector may be nil to
// disable pattern detection.
func NewRouter(st store.Store, detector *patterns.Detector, opts ...Option) *Router {
	cfg := Opts{PatternWindow: DefaultPatternWindow, Clock: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Router{store: st, detector: detector, patternWindow: cfg.PatternWindow, clock: cfg.Clock}
}

// Process commits the draft and returns the confirmation. The store write is
// the only fallible step; everything after it (pattern detection, insight
// text) is best-effort.
func (r *Router) Process(ctx context.Context, draft *models.Draft) (*models.EngineResult, error) {
	switch draft.Kind {
	case models.KindTransaction:
		return r.processTransaction(ctx, draft)
	case models.KindAttendance:
		return r.processAttendance(ctx, draft)
	case models.KindReminder:
		return r.processReminder(ctx, draft)
	default:
		return nil, fmt.Errorf("no processor for kind %q", draft.Kind)
	}
}

func (r *Router) processTransaction(ctx context.Context, draft *models.Draft) (*models.EngineResult, error) {
	t := draft.Transaction
	if t == nil || t.Amount == nil {
		return nil, fmt.Errorf("%w: transaction draft incomplete", models.ErrInvalidMergeState)
	}

	txn := models.Transaction{
		UserID:        draft.UserID,
		Amount:        *t.Amount,
		Type:          t.Type,
		Description:   t.Description,
		Categories:    t.Categories,
		PaymentMethod: t.PaymentMethod,
		Date:          r.dateOrToday(t.Date),
	}
	if txn.Type == "" {
		txn.Type = models.TransactionExpense
	}
	if txn.Description == "" {
		txn.Description = draft.RawText
	}
	if len(txn.Categories) == 0 {
		txn.Categories = []string{"miscellaneous"}
	}
	if t.Provider != nil {
		txn.ProviderType = t.Provider.Type
		txn.ProviderName = t.Provider.Name
	}

	var ops []models.StoreOperation
	if t.Provider != nil && t.Provider.Name != "" {
		provider := models.ServiceProvider{UserID: draft.UserID, Type: t.Provider.Type, Name: t.Provider.Name}
		if err := r.store.UpsertServiceProvider(ctx, provider); err != nil {
			return nil, err
		}
		ops = append(ops, models.StoreOperation{Kind: models.OpUpsertProvider, Provider: &provider})
	}

	if _, err := r.store.InsertTransaction(ctx, &txn); err != nil {
		return nil, err
	}
	ops = append(ops, models.StoreOperation{Kind: models.OpInsertTransaction, Transaction: &txn})
	slog.Info("Router.processTransaction: transaction committed", "userID", draft.UserID, "id", txn.ID, "amount", txn.Amount, "type", txn.Type)

	result := &models.EngineResult{
		ResponseText: r.transactionConfirmation(txn),
		Operations:   ops,
	}
	result.Patterns = r.detectPatterns(ctx, draft.UserID)
	if insight := recurringInsight(result.Patterns, txn); insight != "" {
		result.ResponseText += " " + insight
	}
	return result, nil
}

func (r *Router) processAttendance(ctx context.Context, draft *models.Draft) (*models.EngineResult, error) {
	a := draft.Attendance
	if a == nil || a.ProviderType == "" || a.Status == "" {
		return nil, fmt.Errorf("%w: attendance draft incomplete", models.ErrInvalidMergeState)
	}

	provider := models.ServiceProvider{UserID: draft.UserID, Type: a.ProviderType, Name: a.Name}
	if err := r.store.UpsertServiceProvider(ctx, provider); err != nil {
		return nil, err
	}
	ops := []models.StoreOperation{{Kind: models.OpUpsertProvider, Provider: &provider}}

	log := models.AttendanceLog{
		UserID:       draft.UserID,
		ProviderType: a.ProviderType,
		ProviderName: a.Name,
		Status:       a.Status,
		Date:         r.dateOrToday(a.Date),
	}
	if _, err := r.store.InsertAttendance(ctx, &log); err != nil {
		return nil, err
	}
	ops = append(ops, models.StoreOperation{Kind: models.OpInsertAttendance, Attendance: &log})

	wageSaved := false
	if a.Wage.Amount != nil && a.Wage.Frequency != "" {
		wage := models.ProviderWage{
			UserID:       draft.UserID,
			ProviderType: a.ProviderType,
			ProviderName: a.Name,
			Amount:       *a.Wage.Amount,
			Frequency:    a.Wage.Frequency,
		}
		if a.Wage.Schedule.VisitsPerWeek != nil {
			wage.VisitsPerWeek = *a.Wage.Schedule.VisitsPerWeek
		}
		if a.Wage.Schedule.HoursPerVisit != nil {
			wage.HoursPerVisit = *a.Wage.Schedule.HoursPerVisit
		}
		if err := r.store.SaveProviderWage(ctx, wage); err != nil {
			return nil, err
		}
		ops = append(ops, models.StoreOperation{Kind: models.OpSaveProviderWage, Wage: &wage})
		wageSaved = true
	}
	slog.Info("Router.processAttendance: attendance committed", "userID", draft.UserID, "id", log.ID, "provider", log.ProviderType, "status", log.Status)

	return &models.EngineResult{
		ResponseText: attendanceConfirmation(log, wageSaved),
		Operations:   ops,
	}, nil
}

func (r *Router) processReminder(ctx context.Context, draft *models.Draft) (*models.EngineResult, error) {
	rd := draft.Reminder
	if rd == nil || rd.Title == "" {
		return nil, fmt.Errorf("%w: reminder draft incomplete", models.ErrInvalidMergeState)
	}

	rem := models.Reminder{
		UserID:    draft.UserID,
		Title:     rd.Title,
		Amount:    rd.Amount,
		Recurring: rd.Recurring,
		Frequency: rd.Frequency,
	}
	if rd.DueDate != nil {
		rem.DueDate = *rd.DueDate
	} else if rd.Recurring {
		rem.DueDate = nextOccurrence(rd.Frequency, r.clock())
	}
	if _, err := r.store.InsertReminder(ctx, &rem); err != nil {
		return nil, err
	}
	slog.Info("Router.processReminder: reminder committed", "userID", draft.UserID, "id", rem.ID, "title", rem.Title)

	return &models.EngineResult{
		ResponseText: reminderConfirmation(rem),
		Operations:   []models.StoreOperation{{Kind: models.OpInsertReminder, Reminder: &rem}},
	}, nil
}

// detectPatterns runs the detector over recent transactions. Failures only
// cost the insight, never the commit.
func (r *Router) detectPatterns(ctx context.Context, userID string) []models.EventPattern {
	if r.detector == nil {
		return nil
	}
	recent, err := r.store.RecentTransactions(ctx, userID, r.patternWindow)
	if err != nil {
		slog.Warn("Router.detectPatterns: recent transactions fetch failed", "userID", userID, "error", err)
		return nil
	}
	return r.detector.Detect(ctx, userID, recent)
}

func (r *Router) dateOrToday(d *time.Time) time.Time {
	if d != nil {
		return *d
	}
	now := r.clock()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

func (r *Router) transactionConfirmation(t models.Transaction) string {
	verb := "spent"
	if t.Type == models.TransactionIncome {
		verb = "received"
	}
	target := ""
	if t.ProviderName != "" {
		target = fmt.Sprintf(" for %s (%s)", t.ProviderName, t.ProviderType)
	} else if t.ProviderType != "" {
		target = fmt.Sprintf(" for the %s", t.ProviderType)
	}
	return fmt.Sprintf("Got it. %s %s%s on %s.", FormatINR(t.Amount), verb, target, t.Date.Format("2 January"))
}

func attendanceConfirmation(a models.AttendanceLog, wageSaved bool) string {
	who := a.ProviderName
	if who == "" {
		who = "the " + a.ProviderType
	} else {
		who = fmt.Sprintf("%s (%s)", a.ProviderName, a.ProviderType)
	}
	status := "present"
	if a.Status == models.AttendanceAbsent {
		status = "absent"
	}
	msg := fmt.Sprintf("Noted. %s marked %s for %s.", who, status, a.Date.Format("2 January"))
	if wageSaved {
		msg += " I've saved the wage details too."
	}
	return msg
}

func reminderConfirmation(r models.Reminder) string {
	if r.Recurring {
		freq := r.Frequency
		if freq == "" {
			freq = "regularly"
		} else {
			freq = everyPhrase(freq)
		}
		return fmt.Sprintf("Reminder set: %s, %s.", r.Title, freq)
	}
	return fmt.Sprintf("Reminder set: %s on %s.", r.Title, r.DueDate.Format("2 January 2006"))
}

func everyPhrase(frequency string) string {
	switch frequency {
	case "daily":
		return "every day"
	case "weekly":
		return "every week"
	case "monthly":
		return "every month"
	case "yearly":
		return "every year"
	default:
		return frequency
	}
}

// nextOccurrence picks the first due date of a recurring reminder created
// without an explicit one.
func nextOccurrence(frequency string, now time.Time) time.Time {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch frequency {
	case "daily":
		return midnight.AddDate(0, 0, 1)
	case "weekly":
		return midnight.AddDate(0, 0, 7)
	case "yearly":
		return midnight.AddDate(1, 0, 0)
	default:
		return midnight.AddDate(0, 1, 0)
	}
}

// recurringInsight surfaces a detected cadence that includes the transaction
// just committed.
func recurringInsight(detected []models.EventPattern, txn models.Transaction) string {
	for _, p := range detected {
		if p.Type != models.PatternRecurring {
			continue
		}
		for _, id := range p.MemberRecordIDs {
			if id == txn.ID && p.Metadata.FrequencyLabel != "" && p.Metadata.FrequencyLabel != "irregular" {
				return fmt.Sprintf("This looks like a %s payment of about %s.",
					p.Metadata.FrequencyLabel, FormatINR(p.Metadata.AverageAmount))
			}
		}
	}
	return ""
}
