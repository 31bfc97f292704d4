package patterns

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BolKhata/BolKhata/internal/models"
)

type mockSink struct {
	patterns      []models.LearningPattern
	relationships []models.EventRelationship
	err           error
}

func (m *mockSink) SaveLearningPattern(ctx context.Context, p models.LearningPattern) error {
	if m.err != nil {
		return m.err
	}
	m.patterns = append(m.patterns, p)
	return nil
}

func (m *mockSink) SaveEventRelationship(ctx context.Context, r models.EventRelationship) error {
	if m.err != nil {
		return m.err
	}
	m.relationships = append(m.relationships, r)
	return nil
}

func monthlyMaidPayments() []models.Transaction {
	base := time.Date(2025, time.October, 1, 0, 0, 0, 0, time.UTC)
	amounts := []float64{1980, 2000, 2010, 1995, 2005}
	gaps := []int{0, 30, 60, 90, 120}
	txns := make([]models.Transaction, len(amounts))
	for i := range amounts {
		txns[i] = models.Transaction{
			ID:         int64(i + 1),
			UserID:     "u1",
			Amount:     amounts[i],
			Type:       models.TransactionExpense,
			Categories: []string{"logbook"},
			Date:       base.AddDate(0, 0, gaps[i]),
		}
	}
	return txns
}

func findPattern(patterns []models.EventPattern, pt models.PatternType) *models.EventPattern {
	for i := range patterns {
		if patterns[i].Type == pt {
			return &patterns[i]
		}
	}
	return nil
}

func TestDetectRecurringMonthly(t *testing.T) {
	d := NewDetector(nil)
	patterns := d.Detect(context.Background(), "u1", monthlyMaidPayments())

	p := findPattern(patterns, models.PatternRecurring)
	if p == nil {
		t.Fatalf("expected recurring pattern, got %+v", patterns)
	}
	if p.Confidence != recurringConfidence {
		t.Errorf("expected confidence %v, got %v", recurringConfidence, p.Confidence)
	}
	if p.Metadata.FrequencyLabel != "monthly" {
		t.Errorf("expected monthly cadence, got %q", p.Metadata.FrequencyLabel)
	}
	if len(p.MemberRecordIDs) != 5 {
		t.Errorf("expected all five payments grouped, got %v", p.MemberRecordIDs)
	}
	if p.Metadata.AverageAmount < 1990 || p.Metadata.AverageAmount > 2005 {
		t.Errorf("unexpected average amount %v", p.Metadata.AverageAmount)
	}
}

func TestNoRecurringWhenAmountsDiffer(t *testing.T) {
	base := time.Date(2025, time.October, 1, 0, 0, 0, 0, time.UTC)
	txns := []models.Transaction{
		{ID: 1, Amount: 2000, Date: base},
		{ID: 2, Amount: 3000, Date: base.AddDate(0, 0, 30)},
		{ID: 3, Amount: 4500, Date: base.AddDate(0, 0, 60)},
	}
	d := NewDetector(nil)
	if p := findPattern(d.Detect(context.Background(), "u1", txns), models.PatternRecurring); p != nil {
		t.Errorf("expected no recurring pattern, got %+v", p)
	}
}

func TestNoRecurringWhenGapsIrregular(t *testing.T) {
	base := time.Date(2025, time.October, 1, 0, 0, 0, 0, time.UTC)
	txns := []models.Transaction{
		{ID: 1, Amount: 2000, Date: base},
		{ID: 2, Amount: 2000, Date: base.AddDate(0, 0, 3)},
		{ID: 3, Amount: 2000, Date: base.AddDate(0, 0, 60)},
	}
	d := NewDetector(nil)
	if p := findPattern(d.Detect(context.Background(), "u1", txns), models.PatternRecurring); p != nil {
		t.Errorf("expected no recurring pattern for irregular gaps, got %+v", p)
	}
}

func TestCadenceLabels(t *testing.T) {
	cases := []struct {
		days     int
		expected string
	}{
		{7, "weekly"},
		{14, "biweekly"},
		{30, "monthly"},
		{45, "irregular"},
	}
	for _, tc := range cases {
		if got := cadenceLabel(time.Duration(tc.days) * 24 * time.Hour); got != tc.expected {
			t.Errorf("cadenceLabel(%dd) = %q, expected %q", tc.days, got, tc.expected)
		}
	}
}

func TestDetectCategoryRelated(t *testing.T) {
	base := time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC)
	txns := []models.Transaction{
		{ID: 1, Amount: 200, Categories: []string{"medical"}, Date: base},
		{ID: 2, Amount: 850, Categories: []string{"medical"}, Date: base.AddDate(0, 0, 40)},
		{ID: 3, Amount: 300, Categories: []string{"groceries"}, Date: base.AddDate(0, 0, 41)},
	}
	d := NewDetector(nil)
	p := findPattern(d.Detect(context.Background(), "u1", txns), models.PatternCategoryRelated)
	if p == nil {
		t.Fatal("expected category pattern")
	}
	if p.Confidence != categoryConfidence {
		t.Errorf("expected confidence %v, got %v", categoryConfidence, p.Confidence)
	}
	if p.Metadata.FrequencyLabel != "medical" {
		t.Errorf("expected medical group, got %q", p.Metadata.FrequencyLabel)
	}
	if len(p.MemberRecordIDs) != 2 {
		t.Errorf("expected two medical records, got %v", p.MemberRecordIDs)
	}
}

func TestDetectSequentialBurst(t *testing.T) {
	base := time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)
	txns := []models.Transaction{
		{ID: 1, Amount: 100, Date: base},
		{ID: 2, Amount: 5000, Date: base.AddDate(0, 0, 1)},
		{ID: 3, Amount: 700, Date: base.AddDate(0, 0, 3)},
		{ID: 4, Amount: 250, Date: base.AddDate(0, 0, 40)},
	}
	d := NewDetector(nil)
	p := findPattern(d.Detect(context.Background(), "u1", txns), models.PatternSequential)
	if p == nil {
		t.Fatal("expected sequential pattern")
	}
	if len(p.MemberRecordIDs) != 3 {
		t.Errorf("expected the three-day burst, got %v", p.MemberRecordIDs)
	}
	wantGap := (36 * time.Hour).Milliseconds()
	if p.Metadata.MeanGapMs != wantGap {
		t.Errorf("expected mean gap %dms, got %d", wantGap, p.Metadata.MeanGapMs)
	}
}

func TestDetectSequentialChainsConsecutiveGaps(t *testing.T) {
	// Every 5 days: each consecutive gap is inside the chunk window even
	// though the run spans well past it.
	base := time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)
	txns := make([]models.Transaction, 4)
	for i := range txns {
		txns[i] = models.Transaction{ID: int64(i + 1), Amount: 100 * float64(i+1), Date: base.AddDate(0, 0, 5*i)}
	}
	d := NewDetector(nil)
	p := findPattern(d.Detect(context.Background(), "u1", txns), models.PatternSequential)
	if p == nil {
		t.Fatal("expected sequential pattern")
	}
	if len(p.MemberRecordIDs) != 4 {
		t.Errorf("expected the whole run chunked together, got %v", p.MemberRecordIDs)
	}
	wantGap := (5 * 24 * time.Hour).Milliseconds()
	if p.Metadata.MeanGapMs != wantGap {
		t.Errorf("expected mean gap %dms, got %d", wantGap, p.Metadata.MeanGapMs)
	}
}

func TestDetectNeedsAtLeastTwo(t *testing.T) {
	d := NewDetector(nil)
	if got := d.Detect(context.Background(), "u1", []models.Transaction{{ID: 1, Amount: 100}}); got != nil {
		t.Errorf("expected nil for a single transaction, got %+v", got)
	}
}

func TestDetectPersistsBestEffort(t *testing.T) {
	sink := &mockSink{}
	d := NewDetector(sink)
	patterns := d.Detect(context.Background(), "u1", monthlyMaidPayments())
	if len(sink.patterns) != len(patterns) {
		t.Errorf("expected %d patterns persisted, got %d", len(patterns), len(sink.patterns))
	}
	if len(sink.relationships) == 0 {
		t.Error("expected relationships persisted")
	}
	for _, lp := range sink.patterns {
		if lp.UserID != "u1" || lp.PayloadJSON == "" {
			t.Errorf("malformed persisted pattern: %+v", lp)
		}
	}
}

func TestDetectSwallowsSinkErrors(t *testing.T) {
	sink := &mockSink{err: errors.New("db down")}
	d := NewDetector(sink)
	patterns := d.Detect(context.Background(), "u1", monthlyMaidPayments())
	if len(patterns) == 0 {
		t.Error("expected patterns returned despite sink failure")
	}
}

func TestRelationshipsFromPatterns(t *testing.T) {
	patterns := []models.EventPattern{
		{Type: models.PatternRecurring, Confidence: 0.8, MemberRecordIDs: []int64{1, 2, 3}},
		{Type: models.PatternCategoryRelated, Confidence: 0.7, MemberRecordIDs: []int64{4, 5}},
	}
	rels := Relationships("u1", patterns)
	if len(rels) != 3 {
		t.Fatalf("expected 3 edges, got %d", len(rels))
	}
	if rels[0].RelationshipType != models.RelationSimilarAmount || rels[0].Strength != 0.8 {
		t.Errorf("unexpected edge: %+v", rels[0])
	}
	if rels[2].RelationshipType != models.RelationSameCategory {
		t.Errorf("unexpected edge: %+v", rels[2])
	}
}

func TestPaymentAttendanceLink(t *testing.T) {
	r := PaymentAttendanceLink("u1", 10, 20, 0.9)
	if r.RelationshipType != models.RelationPaymentAttendanceLink || r.PrimaryID != 10 || r.RelatedID != 20 {
		t.Errorf("unexpected link: %+v", r)
	}
}

func TestWindowTruncation(t *testing.T) {
	base := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	var txns []models.Transaction
	for i := 0; i < 10; i++ {
		txns = append(txns, models.Transaction{ID: int64(i + 1), Amount: 2000, Date: base.AddDate(0, 0, 30*i)})
	}
	d := NewDetector(nil, WithWindow(3))
	p := findPattern(d.Detect(context.Background(), "u1", txns), models.PatternRecurring)
	if p == nil {
		t.Fatal("expected recurring pattern")
	}
	if len(p.MemberRecordIDs) != 3 {
		t.Errorf("expected only the newest 3 records considered, got %v", p.MemberRecordIDs)
	}
}
