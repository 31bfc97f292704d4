package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/BolKhata/BolKhata/internal/models"
)

var testNow = time.Date(2026, time.March, 10, 14, 30, 0, 0, time.UTC)

type stubOracle struct {
	intent      models.ClassifiedIntent
	seenHistory []models.ContextLog
	seenPrior   *models.Draft
	calls       int
}

func (s *stubOracle) Classify(ctx context.Context, utterance string, prior *models.Draft, history []models.ContextLog) models.ClassifiedIntent {
	s.calls++
	s.seenPrior = prior
	s.seenHistory = history
	return s.intent
}

type stubProcessor struct {
	err       error
	processed []*models.Draft
	queries   int
}

func (p *stubProcessor) Process(ctx context.Context, draft *models.Draft) (*models.EngineResult, error) {
	if p.err != nil {
		return nil, p.err
	}
	p.processed = append(p.processed, draft)
	return &models.EngineResult{ResponseText: "Saved."}, nil
}

func (p *stubProcessor) Query(ctx context.Context, userID string, intent models.ClassifiedIntent) (*models.EngineResult, error) {
	p.queries++
	return &models.EngineResult{ResponseText: "You paid ₹2,000 this month."}, nil
}

type stubConvo struct {
	turns   []models.ContextLog
	wage    *models.ProviderWage
	wageErr error
}

func (c *stubConvo) LogTurn(ctx context.Context, userID, role, body string) error {
	c.turns = append(c.turns, models.ContextLog{UserID: userID, Role: role, Body: body})
	return nil
}

func (c *stubConvo) RecentTurns(ctx context.Context, userID string, limit int) ([]models.ContextLog, error) {
	return c.turns, nil
}

func (c *stubConvo) GetProviderWage(ctx context.Context, userID, providerType, providerName string) (*models.ProviderWage, error) {
	return c.wage, c.wageErr
}

func newTestCoordinator(oracle IntentClassifier, proc *stubProcessor, convo *stubConvo) *Coordinator {
	return NewCoordinator(NewSessionStore(0), oracle, proc, convo, WithClock(func() time.Time { return testNow }))
}

func TestHandleUtteranceValidation(t *testing.T) {
	c := newTestCoordinator(&stubOracle{}, &stubProcessor{}, &stubConvo{})
	if _, err := c.HandleUtterance(context.Background(), "", "hello"); !errors.Is(err, models.ErrEmptyUserID) {
		t.Errorf("expected ErrEmptyUserID, got %v", err)
	}
	if _, err := c.HandleUtterance(context.Background(), "u1", "   "); !errors.Is(err, models.ErrEmptyUtterance) {
		t.Errorf("expected ErrEmptyUtterance, got %v", err)
	}
}

func TestCompleteTransactionInOneTurn(t *testing.T) {
	proc := &stubProcessor{}
	c := newTestCoordinator(&stubOracle{}, proc, &stubConvo{})

	result, err := c.HandleUtterance(context.Background(), "u1", "spent 500 on groceries")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.NeedsMoreInfo != nil {
		t.Errorf("expected no clarification, got %+v", result.NeedsMoreInfo)
	}
	if len(proc.processed) != 1 {
		t.Fatalf("expected one processed draft, got %d", len(proc.processed))
	}
	draft := proc.processed[0]
	if draft.Kind != models.KindTransaction || draft.Transaction.Amount == nil || *draft.Transaction.Amount != 500 {
		t.Errorf("unexpected draft: %+v", draft.Transaction)
	}
	if c.sessions.Active("u1") != nil {
		t.Error("expected session cleared after commit")
	}
}

func TestProviderTransactionAsksForName(t *testing.T) {
	proc := &stubProcessor{}
	c := newTestCoordinator(&stubOracle{}, proc, &stubConvo{})
	ctx := context.Background()

	result, err := c.HandleUtterance(ctx, "u1", "paid maid 2000 rupees")
	if err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	if result.NeedsMoreInfo == nil || result.NeedsMoreInfo.Field != models.FieldProviderName {
		t.Fatalf("turn 1: expected name question, got %+v", result.NeedsMoreInfo)
	}
	if result.ResponseText != "Could you please specify the maid's name?" {
		t.Errorf("turn 1: unexpected question %q", result.ResponseText)
	}
	if len(proc.processed) != 0 {
		t.Fatalf("turn 1: nothing should be committed yet, got %d drafts", len(proc.processed))
	}

	result, err = c.HandleUtterance(ctx, "u1", "Lakshmi")
	if err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	if result.NeedsMoreInfo != nil {
		t.Fatalf("turn 2: expected commit, got question %+v", result.NeedsMoreInfo)
	}
	if len(proc.processed) != 1 {
		t.Fatalf("expected one processed draft, got %d", len(proc.processed))
	}
	txn := proc.processed[0].Transaction
	if txn.Amount == nil || *txn.Amount != 2000 {
		t.Errorf("unexpected amount: %+v", txn.Amount)
	}
	if txn.Provider == nil || txn.Provider.Type != "maid" || txn.Provider.Name != "Lakshmi" {
		t.Errorf("unexpected provider: %+v", txn.Provider)
	}
	if c.sessions.Active("u1") != nil {
		t.Error("expected session cleared after commit")
	}
}

func TestAttendanceSlotFillingFlow(t *testing.T) {
	proc := &stubProcessor{}
	c := newTestCoordinator(&stubOracle{}, proc, &stubConvo{})
	ctx := context.Background()

	result, err := c.HandleUtterance(ctx, "u1", "maid didn't come today")
	if err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	if result.NeedsMoreInfo == nil || result.NeedsMoreInfo.Field != models.FieldProviderName {
		t.Fatalf("turn 1: expected name question, got %+v", result.NeedsMoreInfo)
	}
	if result.ResponseText != "Could you please specify the maid's name?" {
		t.Errorf("turn 1: unexpected question %q", result.ResponseText)
	}

	result, err = c.HandleUtterance(ctx, "u1", "Lakshmi")
	if err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	if result.NeedsMoreInfo == nil || result.NeedsMoreInfo.Field != models.FieldWageAmount {
		t.Fatalf("turn 2: expected wage question, got %+v", result.NeedsMoreInfo)
	}
	if result.ResponseText != "How much do we pay Lakshmi and how often (daily/weekly/monthly)?" {
		t.Errorf("turn 2: unexpected question %q", result.ResponseText)
	}

	result, err = c.HandleUtterance(ctx, "u1", "2000 monthly")
	if err != nil {
		t.Fatalf("turn 3: %v", err)
	}
	if result.NeedsMoreInfo == nil || result.NeedsMoreInfo.Field != models.FieldVisitsPerWeek {
		t.Fatalf("turn 3: expected visits question, got %+v", result.NeedsMoreInfo)
	}

	result, err = c.HandleUtterance(ctx, "u1", "three times a week")
	if err != nil {
		t.Fatalf("turn 4: %v", err)
	}
	if result.NeedsMoreInfo == nil || result.NeedsMoreInfo.Field != models.FieldHoursPerVisit {
		t.Fatalf("turn 4: expected hours question, got %+v", result.NeedsMoreInfo)
	}

	result, err = c.HandleUtterance(ctx, "u1", "2 hours")
	if err != nil {
		t.Fatalf("turn 5: %v", err)
	}
	if result.NeedsMoreInfo != nil {
		t.Fatalf("turn 5: expected commit, got question %+v", result.NeedsMoreInfo)
	}
	if len(proc.processed) != 1 {
		t.Fatalf("expected one processed draft, got %d", len(proc.processed))
	}
	a := proc.processed[0].Attendance
	if a.Name != "Lakshmi" || a.Status != models.AttendanceAbsent {
		t.Errorf("unexpected attendance draft: %+v", a)
	}
	if a.Wage.Amount == nil || *a.Wage.Amount != 2000 || a.Wage.Frequency != models.WageMonthly {
		t.Errorf("unexpected wage: %+v", a.Wage)
	}
	if a.Wage.Schedule.VisitsPerWeek == nil || *a.Wage.Schedule.VisitsPerWeek != 3 {
		t.Errorf("unexpected schedule: %+v", a.Wage.Schedule)
	}
	if a.Wage.Schedule.HoursPerVisit == nil || *a.Wage.Schedule.HoursPerVisit != 2 {
		t.Errorf("unexpected hours: %+v", a.Wage.Schedule)
	}
	if c.sessions.Active("u1") != nil {
		t.Error("expected session cleared after commit")
	}
}

func TestKnownWageShortensAttendanceFlow(t *testing.T) {
	proc := &stubProcessor{}
	convo := &stubConvo{wage: &models.ProviderWage{Amount: 2000, Frequency: models.WageMonthly}}
	c := newTestCoordinator(&stubOracle{}, proc, convo)
	ctx := context.Background()

	result, err := c.HandleUtterance(ctx, "u1", "maid didn't come today")
	if err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	if result.NeedsMoreInfo == nil || result.NeedsMoreInfo.Field != models.FieldProviderName {
		t.Fatalf("turn 1: expected name question, got %+v", result.NeedsMoreInfo)
	}

	result, err = c.HandleUtterance(ctx, "u1", "Lakshmi")
	if err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	if result.NeedsMoreInfo != nil {
		t.Fatalf("expected commit with known wage, got %+v", result.NeedsMoreInfo)
	}
	if len(proc.processed) != 1 {
		t.Errorf("expected one processed draft, got %d", len(proc.processed))
	}
}

func TestCancelMidFlow(t *testing.T) {
	c := newTestCoordinator(&stubOracle{}, &stubProcessor{}, &stubConvo{})
	ctx := context.Background()

	if _, err := c.HandleUtterance(ctx, "u1", "maid didn't come today"); err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	result, err := c.HandleUtterance(ctx, "u1", "never mind")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if result.ResponseText != CancelledResponse {
		t.Errorf("expected cancel confirmation, got %q", result.ResponseText)
	}
	if c.sessions.Active("u1") != nil {
		t.Error("expected draft cleared on cancel")
	}
}

func TestStoreFailureRetainsDraft(t *testing.T) {
	proc := &stubProcessor{err: errors.New("disk full")}
	c := newTestCoordinator(&stubOracle{}, proc, &stubConvo{})

	_, err := c.HandleUtterance(context.Background(), "u1", "paid maid 2000 rupees")
	if !errors.Is(err, models.ErrStoreWrite) {
		t.Fatalf("expected ErrStoreWrite, got %v", err)
	}
	if !IsRecoverable(err) {
		t.Error("store write failures should be recoverable")
	}
	if c.sessions.Active("u1") == nil {
		t.Error("expected draft retained for retry after store failure")
	}
}

func TestOracleFallbackWhenParserFails(t *testing.T) {
	amount := 450.0
	oracle := &stubOracle{intent: models.ClassifiedIntent{
		Kind:       models.KindTransaction,
		Confidence: 0.9,
		Slots:      models.Slots{Amount: &amount, TransactionType: models.TransactionExpense},
	}}
	proc := &stubProcessor{}
	convo := &stubConvo{}
	c := newTestCoordinator(oracle, proc, convo)

	_, err := c.HandleUtterance(context.Background(), "u1", "four hundred fifty to the vegetable vendor")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if oracle.calls != 1 {
		t.Fatalf("expected one oracle call, got %d", oracle.calls)
	}
	if len(oracle.seenHistory) == 0 {
		t.Error("expected conversation history passed to oracle")
	}
	if len(proc.processed) != 1 {
		t.Errorf("expected oracle intent processed, got %d drafts", len(proc.processed))
	}
}

func TestOracleReceivesPriorDraft(t *testing.T) {
	oracle := &stubOracle{intent: models.UnknownIntent()}
	c := newTestCoordinator(oracle, &stubProcessor{}, &stubConvo{})
	ctx := context.Background()

	if _, err := c.HandleUtterance(ctx, "u1", "maid didn't come today"); err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	// Not a name and not parseable; coordinator falls back to the oracle
	// with the open draft attached.
	result, err := c.HandleUtterance(ctx, "u1", "arre what was it again")
	if err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	if oracle.seenPrior == nil || oracle.seenPrior.Kind != models.KindAttendance {
		t.Errorf("expected prior attendance draft passed to oracle, got %+v", oracle.seenPrior)
	}
	// The pending question is re-asked rather than dropped.
	if result.NeedsMoreInfo == nil || result.NeedsMoreInfo.Field != models.FieldProviderName {
		t.Errorf("expected name question re-asked, got %+v", result.NeedsMoreInfo)
	}
}

func TestKindSwitchMidFlow(t *testing.T) {
	proc := &stubProcessor{}
	c := newTestCoordinator(&stubOracle{}, proc, &stubConvo{})
	ctx := context.Background()

	result, err := c.HandleUtterance(ctx, "u1", "remind me to pay rent")
	if err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	if result.NeedsMoreInfo == nil || result.NeedsMoreInfo.Field != models.FieldDueDate {
		t.Fatalf("turn 1: expected due date question, got %+v", result.NeedsMoreInfo)
	}

	// The user changes topic entirely; the reminder is parked, not lost.
	result, err = c.HandleUtterance(ctx, "u1", "paid maid 2000 rupees")
	if err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	if result.NeedsMoreInfo != nil {
		t.Fatalf("turn 2: expected transaction commit, got %+v", result.NeedsMoreInfo)
	}
	if len(proc.processed) != 1 || proc.processed[0].Kind != models.KindTransaction {
		t.Fatalf("expected transaction processed, got %+v", proc.processed)
	}
	if c.sessions.Get("u1", models.KindReminder) == nil {
		t.Error("expected reminder draft parked, not deleted")
	}
}

func TestQueryDoesNotDisturbDraft(t *testing.T) {
	proc := &stubProcessor{}
	c := newTestCoordinator(&stubOracle{}, proc, &stubConvo{})
	ctx := context.Background()

	if _, err := c.HandleUtterance(ctx, "u1", "maid didn't come today"); err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	result, err := c.HandleUtterance(ctx, "u1", "how much did I pay the maid this month")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if proc.queries != 1 {
		t.Errorf("expected one query, got %d", proc.queries)
	}
	if !strings.Contains(result.ResponseText, "paid") {
		t.Errorf("unexpected query response %q", result.ResponseText)
	}
	if c.sessions.Active("u1") == nil {
		t.Error("expected attendance draft still open after query")
	}
}

func TestUnknownUtteranceFallsBack(t *testing.T) {
	c := newTestCoordinator(&stubOracle{intent: models.UnknownIntent()}, &stubProcessor{}, &stubConvo{})
	result, err := c.HandleUtterance(context.Background(), "u1", "what a lovely morning")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ResponseText != FallbackResponse {
		t.Errorf("expected fallback, got %q", result.ResponseText)
	}
}

func TestNilConversationStoreTolerated(t *testing.T) {
	oracle := &stubOracle{intent: models.UnknownIntent()}
	proc := &stubProcessor{}
	c := NewCoordinator(NewSessionStore(0), oracle, proc, nil, WithClock(func() time.Time { return testNow }))
	ctx := context.Background()

	result, err := c.HandleUtterance(ctx, "u1", "maid didn't come today")
	if err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	if result.NeedsMoreInfo == nil || result.NeedsMoreInfo.Field != models.FieldProviderName {
		t.Fatalf("turn 1: expected name question, got %+v", result.NeedsMoreInfo)
	}

	// Unparseable follow-up reaches the oracle without stored history.
	result, err = c.HandleUtterance(ctx, "u1", "arre what was it again")
	if err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	if oracle.calls != 1 {
		t.Errorf("expected one oracle call, got %d", oracle.calls)
	}
	if oracle.seenHistory != nil {
		t.Errorf("expected no history without a conversation store, got %+v", oracle.seenHistory)
	}
	if result.NeedsMoreInfo == nil || result.NeedsMoreInfo.Field != models.FieldProviderName {
		t.Errorf("expected name question re-asked, got %+v", result.NeedsMoreInfo)
	}
}

func TestTurnsAreLogged(t *testing.T) {
	convo := &stubConvo{}
	c := newTestCoordinator(&stubOracle{intent: models.UnknownIntent()}, &stubProcessor{}, convo)
	if _, err := c.HandleUtterance(context.Background(), "u1", "hello hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(convo.turns) != 2 {
		t.Fatalf("expected user and assistant turns logged, got %d", len(convo.turns))
	}
	if convo.turns[0].Role != "user" || convo.turns[1].Role != "assistant" {
		t.Errorf("unexpected roles: %+v", convo.turns)
	}
}
