package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BolKhata/BolKhata/internal/models"
	"github.com/BolKhata/BolKhata/internal/parser"
)

// DefaultHistoryTurns bounds the conversation history handed to the oracle.
const DefaultHistoryTurns = 6

// FallbackResponse is sent when an utterance cannot be understood at all.
const FallbackResponse = "Sorry, I didn't quite get that. You can tell me about a payment, mark attendance for your household help, or ask me to set a reminder."

// CancelledResponse confirms an abandoned draft.
const CancelledResponse = "Okay, I've cancelled that."

// IntentClassifier is the oracle side of classification. The deterministic
// parser runs first; the oracle is consulted only when the parser comes up
// empty.
type IntentClassifier interface {
	Classify(ctx context.Context, utterance string, prior *models.Draft, history []models.ContextLog) models.ClassifiedIntent
}

// Processor turns a complete draft into store writes and a confirmation, and
// answers read-only queries.
type Processor interface {
	Process(ctx context.Context, draft *models.Draft) (*models.EngineResult, error)
	Query(ctx context.Context, userID string, intent models.ClassifiedIntent) (*models.EngineResult, error)
}

// ConversationStore is the slice of persistence the coordinator needs:
// turn logging for oracle context, and wage lookups that decide whether
// attendance drafts must ask wage questions.
type ConversationStore interface {
	LogTurn(ctx context.Context, userID, role, body string) error
	RecentTurns(ctx context.Context, userID string, limit int) ([]models.ContextLog, error)
	GetProviderWage(ctx context.Context, userID, providerType, providerName string) (*models.ProviderWage, error)
}

// Opts holds coordinator configuration.
type Opts struct {
	HistoryTurns int
	Clock        func() time.Time
}

// Option defines a configuration option for the coordinator.
type Option func(*Opts)

// WithHistoryTurns overrides how many recent turns are fetched for the oracle.
func WithHistoryTurns(n int) Option {
	return func(o *Opts) { o.HistoryTurns = n }
}

// WithClock overrides the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(o *Opts) { o.Clock = clock }
}

// Coordinator drives the slot-filling conversation: it classifies each
// utterance, merges extracted slots into the user's in-flight draft, asks
// exactly one question per turn while fields are missing, and hands complete
// drafts to the processor.
type Coordinator struct {
	sessions     *SessionStore
	oracle       IntentClassifier
	proc         Processor
	convo        ConversationStore
	historyTurns int
	clock        func() time.Time
}

// NewCoordinator wires the engine together. convo may be nil, in which case
// turns are not logged, the oracle classifies without history, and wage
// lookups always miss.
func NewCoordinator(sessions *SessionStore, oracle IntentClassifier, proc Processor, convo ConversationStore, opts ...Option) *Coordinator {
	cfg := Opts{HistoryTurns: DefaultHistoryTurns, Clock: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Coordinator{
		sessions:     sessions,
		oracle:       oracle,
		proc:         proc,
		convo:        convo,
		historyTurns: cfg.HistoryTurns,
		clock:        cfg.Clock,
	}
}

// HandleUtterance processes one utterance for one user. All handling runs
// inside the user's critical section, so concurrent utterances from the same
// user are serialized.
func (c *Coordinator) HandleUtterance(ctx context.Context, userID, text string) (*models.EngineResult, error) {
	userID = strings.TrimSpace(userID)
	text = strings.TrimSpace(text)
	if userID == "" {
		return nil, models.ErrEmptyUserID
	}
	if text == "" {
		return nil, models.ErrEmptyUtterance
	}

	lock := c.sessions.UserLock(userID)
	lock.Lock()
	defer lock.Unlock()

	c.logTurn(ctx, userID, "user", text)
	slog.Debug("Coordinator.HandleUtterance: utterance received", "userID", userID, "length", len(text))

	active := c.sessions.Active(userID)
	if active != nil && parser.IsCancelPhrase(text) {
		c.sessions.Clear(userID, active.Kind)
		slog.Info("Coordinator.HandleUtterance: draft cancelled", "userID", userID, "kind", active.Kind)
		return c.respond(ctx, userID, &models.EngineResult{ResponseText: CancelledResponse}), nil
	}

	if active != nil {
		return c.continueDraft(ctx, userID, active, text)
	}
	return c.startConversation(ctx, userID, text)
}

// startConversation classifies a fresh utterance and either answers a query,
// opens a draft, or falls back to the help message.
func (c *Coordinator) startConversation(ctx context.Context, userID, text string) (*models.EngineResult, error) {
	intent := c.classify(ctx, userID, text, nil)
	slog.Debug("Coordinator.startConversation: classified", "userID", userID, "kind", intent.Kind, "confidence", intent.Confidence)

	switch intent.Kind {
	case models.KindQuery:
		result, err := c.proc.Query(ctx, userID, intent)
		if err != nil {
			return nil, fmt.Errorf("query failed: %w", err)
		}
		return c.respond(ctx, userID, result), nil
	case models.KindTransaction, models.KindAttendance, models.KindReminder:
		draft := models.NewDraft(userID, intent.Kind, text)
		if err := MergeSlots(draft, intent.Slots); err != nil {
			slog.Error("Coordinator.startConversation: merge into fresh draft failed", "userID", userID, "error", err)
			return c.respond(ctx, userID, &models.EngineResult{ResponseText: FallbackResponse}), nil
		}
		return c.advance(ctx, userID, draft)
	default:
		return c.respond(ctx, userID, &models.EngineResult{ResponseText: FallbackResponse}), nil
	}
}

// continueDraft treats the utterance as part of an open conversation: first
// as a direct answer to the awaited field, then as a general utterance that
// may add slots or switch to a different record kind.
func (c *Coordinator) continueDraft(ctx context.Context, userID string, active *models.Draft, text string) (*models.EngineResult, error) {
	clone := active.Clone()

	if field := active.AwaitingField; field != "" {
		filled, err := ApplyAnswer(clone, field, text, c.clock())
		if err != nil {
			// The draft is structurally broken. Drop it and start over from
			// this utterance.
			slog.Error("Coordinator.continueDraft: answer merge failed, restarting", "userID", userID, "kind", active.Kind, "error", err)
			c.sessions.Clear(userID, active.Kind)
			return c.startConversation(ctx, userID, text)
		}
		if filled {
			clone.AwaitingField = ""
			return c.advance(ctx, userID, clone)
		}
	}

	intent := c.classify(ctx, userID, text, active)
	switch {
	case intent.Kind == active.Kind || (intent.Kind == models.KindUnknown && !intent.Slots.IsEmpty()):
		if err := MergeSlots(clone, intent.Slots); err != nil {
			slog.Error("Coordinator.continueDraft: slot merge failed, restarting", "userID", userID, "error", err)
			c.sessions.Clear(userID, active.Kind)
			return c.startConversation(ctx, userID, text)
		}
		clone.AwaitingField = ""
		return c.advance(ctx, userID, clone)
	case intent.Kind == models.KindQuery:
		// Answer the question without disturbing the open draft.
		result, err := c.proc.Query(ctx, userID, intent)
		if err != nil {
			return nil, fmt.Errorf("query failed: %w", err)
		}
		return c.respond(ctx, userID, result), nil
	case intent.Kind.IsActionable():
		// Kind switch: the old draft stays parked under its own key until the
		// idle purge collects it; the new conversation becomes active.
		slog.Info("Coordinator.continueDraft: switching record kind", "userID", userID, "from", active.Kind, "to", intent.Kind)
		draft := models.NewDraft(userID, intent.Kind, text)
		if err := MergeSlots(draft, intent.Slots); err != nil {
			return c.respond(ctx, userID, &models.EngineResult{ResponseText: FallbackResponse}), nil
		}
		return c.advance(ctx, userID, draft)
	default:
		// Nothing usable. Re-ask the pending question rather than losing it.
		if field := active.AwaitingField; field != "" {
			q := QuestionFor(active, field)
			return c.respond(ctx, userID, &models.EngineResult{ResponseText: q.Question, NeedsMoreInfo: &q}), nil
		}
		return c.respond(ctx, userID, &models.EngineResult{ResponseText: FallbackResponse}), nil
	}
}

// advance commits a complete draft or asks for the next missing field.
func (c *Coordinator) advance(ctx context.Context, userID string, draft *models.Draft) (*models.EngineResult, error) {
	wageKnown := c.wageKnown(ctx, draft)
	field := NextMissingField(draft, wageKnown)
	if field == "" {
		result, err := c.proc.Process(ctx, draft)
		if err != nil {
			// Keep the draft so the user's next message retries the commit.
			c.sessions.Put(draft)
			slog.Error("Coordinator.advance: processing failed, draft retained", "userID", userID, "kind", draft.Kind, "error", err)
			return nil, fmt.Errorf("%w: %v", models.ErrStoreWrite, err)
		}
		c.sessions.Clear(userID, draft.Kind)
		slog.Info("Coordinator.advance: draft committed", "userID", userID, "kind", draft.Kind, "operations", len(result.Operations))
		return c.respond(ctx, userID, result), nil
	}

	draft.AwaitingField = field
	c.sessions.Put(draft)
	q := QuestionFor(draft, field)
	slog.Debug("Coordinator.advance: awaiting field", "userID", userID, "kind", draft.Kind, "field", field)
	return c.respond(ctx, userID, &models.EngineResult{ResponseText: q.Question, NeedsMoreInfo: &q}), nil
}

// classify runs the deterministic parser first and falls back to the oracle,
// which receives the prior draft and recent turns as context.
func (c *Coordinator) classify(ctx context.Context, userID, text string, prior *models.Draft) models.ClassifiedIntent {
	intent := parser.ParseAt(text, c.clock())
	if intent.Kind != models.KindUnknown {
		return intent
	}
	if c.oracle == nil {
		return intent
	}
	var history []models.ContextLog
	if c.convo != nil {
		var err error
		history, err = c.convo.RecentTurns(ctx, userID, c.historyTurns)
		if err != nil {
			slog.Warn("Coordinator.classify: history fetch failed, classifying without it", "userID", userID, "error", err)
			history = nil
		}
	}
	return c.oracle.Classify(ctx, text, prior, history)
}

// wageKnown reports whether the provider on an attendance draft already has a
// wage arrangement on record. Lookup failures count as unknown, which at
// worst re-asks a question the user has answered before.
func (c *Coordinator) wageKnown(ctx context.Context, draft *models.Draft) bool {
	if c.convo == nil || draft.Kind != models.KindAttendance || draft.Attendance == nil || draft.Attendance.ProviderType == "" {
		return false
	}
	wage, err := c.convo.GetProviderWage(ctx, draft.UserID, draft.Attendance.ProviderType, draft.Attendance.Name)
	if err != nil {
		slog.Warn("Coordinator.wageKnown: wage lookup failed", "userID", draft.UserID, "providerType", draft.Attendance.ProviderType, "error", err)
		return false
	}
	return wage != nil
}

// respond logs the assistant turn best-effort and returns the result.
func (c *Coordinator) respond(ctx context.Context, userID string, result *models.EngineResult) *models.EngineResult {
	c.logTurn(ctx, userID, "assistant", result.ResponseText)
	return result
}

func (c *Coordinator) logTurn(ctx context.Context, userID, role, body string) {
	if c.convo == nil {
		return
	}
	if err := c.convo.LogTurn(ctx, userID, role, body); err != nil {
		slog.Warn("Coordinator.logTurn: context log write failed", "userID", userID, "role", role, "error", err)
	}
}

// StartSessionJanitor purges idle drafts on the given interval until the
// context is cancelled.
func (c *Coordinator) StartSessionJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.sessions.PurgeIdle(c.clock())
			}
		}
	}()
}

// IsRecoverable reports whether an error from HandleUtterance should be shown
// to the user as a retryable condition rather than a hard failure.
func IsRecoverable(err error) bool {
	return errors.Is(err, models.ErrStoreWrite) || errors.Is(err, models.ErrOracleUnavailable)
}
