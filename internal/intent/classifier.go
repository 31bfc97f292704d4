// Package intent classifies utterances via the NLU oracle.
//
// The classifier is the only component that talks to the oracle about intent.
// It embeds the in-flight draft and recent conversation turns in the prompt,
// and defensively normalizes whatever comes back: fenced JSON is unwrapped,
// malformed replies degrade to KindUnknown, and oracle errors never propagate.
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BolKhata/BolKhata/internal/genai"
	"github.com/BolKhata/BolKhata/internal/models"
)

// DefaultConfidenceThreshold is the routing cutoff: classifications below it
// are treated as unknown even when the oracle proposed a kind.
const DefaultConfidenceThreshold = 0.5

// DefaultHistoryLimit bounds how many recent turns are embedded in the prompt.
const DefaultHistoryLimit = 6

const systemPrompt = `You are a strict JSON parser for a voice-driven household finance assistant used by senior citizens in India.
Users speak informally about expenses, incomes, household staff (maid, cook, driver, gardener, watchman), attendance, and reminders.
Utterances routinely omit required information. NEVER guess missing values; report them in missing_fields instead.

You MUST respond with ONLY raw JSON matching this shape. No explanation. No markdown.

{
  "intent": {
    "primary": "transaction" | "attendance" | "reminder" | "query" | "unknown",
    "confidence": number between 0 and 1,
    "missing_fields": ["amount", "name", ...] or null
  },
  "context": {
    "temporal": { "date": "YYYY-MM-DD" or null },
    "financial": {
      "amount": number or null,
      "transaction_type": "expense" | "income" | null,
      "categories": ["groceries", ...] or null,
      "payment_method": "cash" | "card" | "upi" | "cheque" | "netbanking" | "online" | null,
      "description": "string" or null
    },
    "service_provider": {
      "type": "maid" | "cook" | "driver" | ... or null,
      "name": "string" or null,
      "attendance_status": "present" | "absent" | null,
      "wage_amount": number or null,
      "wage_frequency": "hourly" | "daily" | "weekly" | "monthly" | null,
      "visits_per_week": number or null,
      "hours_per_visit": number or null
    },
    "reminder": {
      "title": "string" or null,
      "due_date": "YYYY-MM-DD" or null,
      "recurring": boolean or null,
      "frequency": "daily" | "weekly" | "monthly" | "yearly" | null
    }
  }
}

If an in-flight draft is provided, interpret the utterance as a continuation of
that record: short answers usually fill the draft's missing fields.
If you really cannot understand the message, use intent.primary "unknown".`

// oracleReply mirrors the oracle's fixed response contract.
type oracleReply struct {
	Intent struct {
		Primary       string   `json:"primary"`
		Confidence    float64  `json:"confidence"`
		MissingFields []string `json:"missing_fields"`
	} `json:"intent"`
	Context struct {
		Temporal struct {
			Date string `json:"date"`
		} `json:"temporal"`
		Financial struct {
			Amount          *float64 `json:"amount"`
			TransactionType string   `json:"transaction_type"`
			Categories      []string `json:"categories"`
			PaymentMethod   string   `json:"payment_method"`
			Description     string   `json:"description"`
		} `json:"financial"`
		ServiceProvider struct {
			Type             string   `json:"type"`
			Name             string   `json:"name"`
			AttendanceStatus string   `json:"attendance_status"`
			WageAmount       *float64 `json:"wage_amount"`
			WageFrequency    string   `json:"wage_frequency"`
			VisitsPerWeek    *int     `json:"visits_per_week"`
			HoursPerVisit    *float64 `json:"hours_per_visit"`
		} `json:"service_provider"`
		Reminder struct {
			Title     string `json:"title"`
			DueDate   string `json:"due_date"`
			Recurring bool   `json:"recurring"`
			Frequency string `json:"frequency"`
		} `json:"reminder"`
	} `json:"context"`
}

// Opts holds classifier configuration.
type Opts struct {
	ConfidenceThreshold float64
	HistoryLimit        int
}

// Option defines a configuration option for the classifier.
type Option func(*Opts)

// WithConfidenceThreshold overrides the routing cutoff.
func WithConfidenceThreshold(t float64) Option {
	return func(o *Opts) { o.ConfidenceThreshold = t }
}

// WithHistoryLimit overrides how many recent turns go into the prompt.
func WithHistoryLimit(n int) Option {
	return func(o *Opts) { o.HistoryLimit = n }
}

// Classifier wraps the NLU oracle behind the fixed degrade-on-failure contract.
type Classifier struct {
	client       genai.ClientInterface
	threshold    float64
	historyLimit int
}

// NewClassifier creates a classifier around the given oracle client.
func NewClassifier(client genai.ClientInterface, opts ...Option) *Classifier {
	cfg := Opts{ConfidenceThreshold: DefaultConfidenceThreshold, HistoryLimit: DefaultHistoryLimit}
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("intent.NewClassifier: classifier created", "threshold", cfg.ConfidenceThreshold, "historyLimit", cfg.HistoryLimit)
	return &Classifier{client: client, threshold: cfg.ConfidenceThreshold, historyLimit: cfg.HistoryLimit}
}

// Classify asks the oracle to interpret the utterance given the prior draft
// and recent history. It never returns an error: any oracle failure, timeout
// or malformed reply degrades to {KindUnknown, confidence 0}.
func (c *Classifier) Classify(ctx context.Context, utterance string, prior *models.Draft, history []models.ContextLog) models.ClassifiedIntent {
	if c.client == nil {
		slog.Error("intent.Classify: no oracle client configured")
		return models.UnknownIntent()
	}

	userPrompt := c.buildUserPrompt(utterance, prior, history)
	raw, err := c.client.GeneratePromptWithContext(ctx, systemPrompt, userPrompt)
	if err != nil {
		slog.Warn("intent.Classify: oracle call failed, degrading to unknown", "error", err)
		return models.UnknownIntent()
	}

	reply, err := parseReply(raw)
	if err != nil {
		slog.Warn("intent.Classify: unparsable oracle reply, degrading to unknown", "error", err, "reply_length", len(raw))
		return models.UnknownIntent()
	}

	intent := c.normalize(reply)
	slog.Debug("intent.Classify: classified", "kind", intent.Kind, "confidence", intent.Confidence, "missing", intent.MissingFields)
	return intent
}

// buildUserPrompt embeds today's date, the prior draft and recent turns so the
// oracle can resolve relative dates and short follow-up answers.
func (c *Classifier) buildUserPrompt(utterance string, prior *models.Draft, history []models.ContextLog) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Today's date is: %s\n\n", time.Now().Format("2006-01-02"))

	if prior != nil {
		if draftJSON, err := json.Marshal(prior); err == nil {
			fmt.Fprintf(&b, "In-flight draft (%s):\n%s\n\n", prior.Kind, draftJSON)
		}
	}

	if limit := c.historyLimit; limit > 0 && len(history) > 0 {
		if len(history) > limit {
			history = history[len(history)-limit:]
		}
		b.WriteString("Recent conversation:\n")
		for _, turn := range history {
			fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Body)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "User message:\n%s", utterance)
	return b.String()
}

// parseReply strips markdown fences and unmarshals the oracle reply. A reply
// without an intent kind is treated as malformed.
func parseReply(raw string) (*oracleReply, error) {
	cleaned := StripCodeFences(raw)
	var reply oracleReply
	if err := json.Unmarshal([]byte(cleaned), &reply); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrOracleUnavailable, err)
	}
	if reply.Intent.Primary == "" {
		return nil, fmt.Errorf("%w: reply missing intent.primary", models.ErrOracleUnavailable)
	}
	return &reply, nil
}

// normalize converts the wire reply into the internal ClassifiedIntent,
// applying the confidence threshold.
func (c *Classifier) normalize(reply *oracleReply) models.ClassifiedIntent {
	kind := kindFromPrimary(reply.Intent.Primary)
	confidence := clamp01(reply.Intent.Confidence)
	if confidence < c.threshold {
		// Below the routing threshold a proposed kind is no better than a
		// guess; callers must ask for clarification instead of acting on it.
		slog.Debug("intent.normalize: confidence below threshold", "kind", kind, "confidence", confidence, "threshold", c.threshold)
		kind = models.KindUnknown
	}

	intent := models.ClassifiedIntent{Kind: kind, Confidence: confidence}
	for _, f := range reply.Intent.MissingFields {
		intent.MissingFields = append(intent.MissingFields, models.FieldName(f))
	}

	fin := reply.Context.Financial
	sp := reply.Context.ServiceProvider
	rem := reply.Context.Reminder

	intent.Slots.Amount = fin.Amount
	intent.Slots.TransactionType = models.TransactionType(fin.TransactionType)
	intent.Slots.Categories = fin.Categories
	intent.Slots.PaymentMethod = fin.PaymentMethod
	intent.Slots.Description = fin.Description
	intent.Slots.ProviderType = sp.Type
	intent.Slots.ProviderName = sp.Name
	intent.Slots.Status = models.AttendanceStatus(sp.AttendanceStatus)
	intent.Slots.WageAmount = sp.WageAmount
	if models.IsValidWageFrequency(models.WageFrequency(sp.WageFrequency)) {
		intent.Slots.WageFrequency = models.WageFrequency(sp.WageFrequency)
	}
	intent.Slots.VisitsPerWeek = sp.VisitsPerWeek
	intent.Slots.HoursPerVisit = sp.HoursPerVisit
	intent.Slots.ReminderTitle = rem.Title
	intent.Slots.Recurring = rem.Recurring
	intent.Slots.Frequency = rem.Frequency

	if date := parseISODate(reply.Context.Temporal.Date); date != nil {
		intent.Slots.Date = date
	} else if due := parseISODate(rem.DueDate); due != nil {
		intent.Slots.Date = due
	}

	return intent
}

// StripCodeFences removes a surrounding markdown code fence, with or without
// a language tag, from an oracle reply.
func StripCodeFences(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	// Drop a language tag like "json" on the opening fence line.
	if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
		firstLine := strings.TrimSpace(trimmed[:idx])
		if firstLine == "" || isLanguageTag(firstLine) {
			trimmed = trimmed[idx+1:]
		}
	}
	trimmed = strings.TrimSpace(trimmed)
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}

func isLanguageTag(s string) bool {
	for _, r := range s {
		if !('a' <= r && r <= 'z') {
			return false
		}
	}
	return len(s) > 0
}

func kindFromPrimary(primary string) models.RecordKind {
	switch strings.ToLower(strings.TrimSpace(primary)) {
	case "transaction":
		return models.KindTransaction
	case "attendance":
		return models.KindAttendance
	case "reminder":
		return models.KindReminder
	case "query":
		return models.KindQuery
	default:
		return models.KindUnknown
	}
}

func parseISODate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil
	}
	return &t
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
