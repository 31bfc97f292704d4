// Package patterns derives behavioral observations from committed records.
//
// Patterns are advisory and recomputed on demand over a bounded window of
// recent transactions; they are persisted best-effort and never treated as a
// source of truth.
package patterns

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/BolKhata/BolKhata/internal/models"
)

// Detection thresholds. All overridable through options.
const (
	// DefaultWindow bounds how many recent transactions are examined.
	DefaultWindow = 50
	// DefaultAmountTolerance is the relative spread within which two amounts
	// count as "the same payment".
	DefaultAmountTolerance = 0.10
	// DefaultGapSpreadTolerance is the allowed relative deviation of the gaps
	// between occurrences before a cadence stops counting as regular.
	DefaultGapSpreadTolerance = 0.20
	// DefaultSequentialChunk is the span of a burst of related spending.
	DefaultSequentialChunk = 7 * 24 * time.Hour

	recurringConfidence  = 0.8
	categoryConfidence   = 0.7
	sequentialConfidence = 0.6
)

// Cadence label boundaries, in days between occurrences.
const (
	weeklyMinDays   = 6
	weeklyMaxDays   = 8
	biweeklyMinDays = 13
	biweeklyMaxDays = 15
	monthlyMinDays  = 28
	monthlyMaxDays  = 31
)

// PatternSink persists derived patterns and relationships. Failures are
// logged and swallowed by the detector.
type PatternSink interface {
	SaveLearningPattern(ctx context.Context, p models.LearningPattern) error
	SaveEventRelationship(ctx context.Context, r models.EventRelationship) error
}

// Opts holds detector configuration.
type Opts struct {
	Window             int
	AmountTolerance    float64
	GapSpreadTolerance float64
	SequentialChunk    time.Duration
}

// Option defines a configuration option for the detector.
type Option func(*Opts)

// WithWindow overrides how many recent transactions are examined.
func WithWindow(n int) Option {
	return func(o *Opts) { o.Window = n }
}

// WithAmountTolerance overrides the relative amount-similarity spread.
func WithAmountTolerance(t float64) Option {
	return func(o *Opts) { o.AmountTolerance = t }
}

// WithGapSpreadTolerance overrides the allowed cadence irregularity.
func WithGapSpreadTolerance(t float64) Option {
	return func(o *Opts) { o.GapSpreadTolerance = t }
}

// WithSequentialChunk overrides the burst window for sequential patterns.
func WithSequentialChunk(d time.Duration) Option {
	return func(o *Opts) { o.SequentialChunk = d }
}

// Detector finds recurring, category-related, and sequential patterns in a
// user's recent transactions.
type Detector struct {
	sink PatternSink
	cfg  Opts
}

// NewDetector creates a detector. sink may be nil, in which case patterns are
// computed but not persisted.
func NewDetector(sink PatternSink, opts ...Option) *Detector {
	cfg := Opts{
		Window:             DefaultWindow,
		AmountTolerance:    DefaultAmountTolerance,
		GapSpreadTolerance: DefaultGapSpreadTolerance,
		SequentialChunk:    DefaultSequentialChunk,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Detector{sink: sink, cfg: cfg}
}

// Detect computes all pattern types over the given transactions, newest last.
// The input is truncated to the configured window. Persistence of the results
// is best-effort; Detect itself never fails.
func (d *Detector) Detect(ctx context.Context, userID string, txns []models.Transaction) []models.EventPattern {
	if len(txns) < 2 {
		return nil
	}
	sorted := make([]models.Transaction, len(txns))
	copy(sorted, txns)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })
	if len(sorted) > d.cfg.Window {
		sorted = sorted[len(sorted)-d.cfg.Window:]
	}

	var patterns []models.EventPattern
	patterns = append(patterns, d.detectRecurring(sorted)...)
	patterns = append(patterns, d.detectCategoryRelated(sorted)...)
	patterns = append(patterns, d.detectSequential(sorted)...)

	d.persist(ctx, userID, patterns)
	slog.Debug("Detector.Detect: patterns computed", "userID", userID, "transactions", len(sorted), "patterns", len(patterns))
	return patterns
}

// detectRecurring groups transactions by similar amount and checks whether
// the gaps between occurrences are regular enough to name a cadence.
func (d *Detector) detectRecurring(txns []models.Transaction) []models.EventPattern {
	var patterns []models.EventPattern
	used := make(map[int64]bool)

	for i, anchor := range txns {
		if used[anchor.ID] {
			continue
		}
		group := []models.Transaction{anchor}
		for _, candidate := range txns[i+1:] {
			if used[candidate.ID] {
				continue
			}
			if similarAmount(anchor.Amount, candidate.Amount, d.cfg.AmountTolerance) {
				group = append(group, candidate)
			}
		}
		if len(group) < 2 {
			continue
		}

		gaps := dateGaps(group)
		mean := meanDuration(gaps)
		if mean <= 0 || maxDeviation(gaps, mean) > d.cfg.GapSpreadTolerance {
			continue
		}

		for _, t := range group {
			used[t.ID] = true
		}
		patterns = append(patterns, models.EventPattern{
			Type:            models.PatternRecurring,
			Confidence:      recurringConfidence,
			MemberRecordIDs: recordIDs(group),
			Metadata: models.PatternMetadata{
				FrequencyLabel:    cadenceLabel(mean),
				AverageAmount:     meanAmount(group),
				AmountVariance:    amountVariance(group),
				TimeGapVarianceMs: gapVarianceMs(gaps, mean),
			},
		})
	}
	return patterns
}

// detectCategoryRelated groups transactions sharing a category.
func (d *Detector) detectCategoryRelated(txns []models.Transaction) []models.EventPattern {
	byCategory := make(map[string][]models.Transaction)
	for _, t := range txns {
		for _, c := range t.Categories {
			byCategory[c] = append(byCategory[c], t)
		}
	}

	categories := make([]string, 0, len(byCategory))
	for c := range byCategory {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	var patterns []models.EventPattern
	for _, c := range categories {
		group := byCategory[c]
		if len(group) < 2 {
			continue
		}
		patterns = append(patterns, models.EventPattern{
			Type:            models.PatternCategoryRelated,
			Confidence:      categoryConfidence,
			MemberRecordIDs: recordIDs(group),
			Metadata: models.PatternMetadata{
				FrequencyLabel: c,
				AverageAmount:  meanAmount(group),
			},
		})
	}
	return patterns
}

// detectSequential finds the longest burst of spending, chunking greedily so
// that consecutive transactions within the chunk window stay together.
func (d *Detector) detectSequential(txns []models.Transaction) []models.EventPattern {
	var best []models.Transaction
	for i := 0; i < len(txns); {
		chunk := []models.Transaction{txns[i]}
		j := i + 1
		for j < len(txns) && txns[j].Date.Sub(txns[j-1].Date) <= d.cfg.SequentialChunk {
			chunk = append(chunk, txns[j])
			j++
		}
		if len(chunk) > len(best) {
			best = chunk
		}
		i = j
	}
	if len(best) < 2 {
		return nil
	}
	return []models.EventPattern{{
		Type:            models.PatternSequential,
		Confidence:      sequentialConfidence,
		MemberRecordIDs: recordIDs(best),
		Metadata: models.PatternMetadata{
			AverageAmount: meanAmount(best),
			MeanGapMs:     meanDuration(dateGaps(best)).Milliseconds(),
		},
	}}
}

// Relationships derives pairwise edges implied by the detected patterns.
func Relationships(userID string, patterns []models.EventPattern) []models.EventRelationship {
	var rels []models.EventRelationship
	for _, p := range patterns {
		relType := relationshipFor(p.Type)
		if relType == "" {
			continue
		}
		ids := p.MemberRecordIDs
		for i := 0; i+1 < len(ids); i++ {
			rels = append(rels, models.EventRelationship{
				UserID:           userID,
				PrimaryID:        ids[i],
				RelatedID:        ids[i+1],
				RelationshipType: relType,
				Strength:         p.Confidence,
			})
		}
	}
	return rels
}

func relationshipFor(pt models.PatternType) models.RelationshipType {
	switch pt {
	case models.PatternRecurring:
		return models.RelationSimilarAmount
	case models.PatternCategoryRelated:
		return models.RelationSameCategory
	case models.PatternSequential:
		return models.RelationTemporal
	default:
		return ""
	}
}

// persist saves patterns and their relationships, logging and swallowing any
// failure. Pattern persistence must never block or fail record commits.
func (d *Detector) persist(ctx context.Context, userID string, patterns []models.EventPattern) {
	if d.sink == nil || len(patterns) == 0 {
		return
	}
	for _, p := range patterns {
		payload, err := json.Marshal(p)
		if err != nil {
			slog.Warn("Detector.persist: pattern marshal failed", "userID", userID, "type", p.Type, "error", err)
			continue
		}
		lp := models.LearningPattern{
			UserID:      userID,
			PatternType: p.Type,
			PayloadJSON: string(payload),
			Confidence:  p.Confidence,
		}
		if err := d.sink.SaveLearningPattern(ctx, lp); err != nil {
			slog.Warn("Detector.persist: pattern save failed", "userID", userID, "type", p.Type, "error", err)
		}
	}
	for _, r := range Relationships(userID, patterns) {
		if err := d.sink.SaveEventRelationship(ctx, r); err != nil {
			slog.Warn("Detector.persist: relationship save failed", "userID", userID, "type", r.RelationshipType, "error", err)
		}
	}
}

func similarAmount(a, b, tolerance float64) bool {
	if a == 0 && b == 0 {
		return true
	}
	base := math.Max(math.Abs(a), math.Abs(b))
	return math.Abs(a-b) <= base*tolerance
}

func recordIDs(txns []models.Transaction) []int64 {
	ids := make([]int64, 0, len(txns))
	for _, t := range txns {
		ids = append(ids, t.ID)
	}
	return ids
}

func dateGaps(txns []models.Transaction) []time.Duration {
	gaps := make([]time.Duration, 0, len(txns)-1)
	for i := 1; i < len(txns); i++ {
		gaps = append(gaps, txns[i].Date.Sub(txns[i-1].Date))
	}
	return gaps
}

func meanDuration(gaps []time.Duration) time.Duration {
	if len(gaps) == 0 {
		return 0
	}
	var total time.Duration
	for _, g := range gaps {
		total += g
	}
	return total / time.Duration(len(gaps))
}

func maxDeviation(gaps []time.Duration, mean time.Duration) float64 {
	worst := 0.0
	for _, g := range gaps {
		dev := math.Abs(float64(g-mean)) / float64(mean)
		if dev > worst {
			worst = dev
		}
	}
	return worst
}

func cadenceLabel(mean time.Duration) string {
	days := mean.Hours() / 24
	switch {
	case days >= weeklyMinDays && days <= weeklyMaxDays:
		return "weekly"
	case days >= biweeklyMinDays && days <= biweeklyMaxDays:
		return "biweekly"
	case days >= monthlyMinDays && days <= monthlyMaxDays:
		return "monthly"
	default:
		return "irregular"
	}
}

func meanAmount(txns []models.Transaction) float64 {
	var total float64
	for _, t := range txns {
		total += t.Amount
	}
	return total / float64(len(txns))
}

func amountVariance(txns []models.Transaction) float64 {
	mean := meanAmount(txns)
	var sum float64
	for _, t := range txns {
		diff := t.Amount - mean
		sum += diff * diff
	}
	return sum / float64(len(txns))
}

func gapVarianceMs(gaps []time.Duration, mean time.Duration) int64 {
	var sum float64
	for _, g := range gaps {
		diff := float64(g-mean) / float64(time.Millisecond)
		sum += diff * diff
	}
	variance := sum / float64(len(gaps))
	return int64(math.Sqrt(variance))
}

// PaymentAttendanceLink builds the edge between a wage payment and the
// attendance record it settles.
func PaymentAttendanceLink(userID string, paymentID, attendanceID int64, strength float64) models.EventRelationship {
	return models.EventRelationship{
		UserID:           userID,
		PrimaryID:        paymentID,
		RelatedID:        attendanceID,
		RelationshipType: models.RelationPaymentAttendanceLink,
		Strength:         strength,
	}
}
