package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PatternType classifies a detected spending pattern.
type PatternType string

const (
	PatternRecurringPayment      PatternType = "RECURRING_PAYMENT"
	PatternPeriodicSpending      PatternType = "PERIODIC_SPENDING"
	PatternCategoryConcentration PatternType = "CATEGORY_CONCENTRATION"
	PatternMerchantLoyalty       PatternType = "MERCHANT_LOYALTY"
	PatternTimeOfDay             PatternType = "TIME_OF_DAY"
	PatternLocationBased         PatternType = "LOCATION_BASED"
	PatternSeasonal              PatternType = "SEASONAL"
	PatternUnusualSpending       PatternType = "UNUSUAL_SPENDING"
	PatternBudgetOverrun         PatternType = "BUDGET_OVERRUN"
	PatternGoalProgress          PatternType = "GOAL_PROGRESS"
)

// MinPatternFrequency is the number of occurrences a pattern needs to be meaningful.
const MinPatternFrequency = 3

// Timeframe bounds the observations that produced a pattern.
type Timeframe struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// SpendingPattern is a derived, read-only aggregate computed from the graph.
type SpendingPattern struct {
	ID              string         `json:"id"`
	UserID          string         `json:"userId"`
	Type            PatternType    `json:"patternType"`
	NodeIDs         []string       `json:"nodes"`
	RelationshipIDs []string       `json:"relationships,omitempty"`
	Confidence      float64        `json:"confidence"`
	Frequency       int            `json:"frequency"`
	TotalAmount     float64        `json:"totalAmount"`
	Timeframe       Timeframe      `json:"timeframe"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	DetectedAt      time.Time      `json:"detectedAt"`
}

// PatternInput carries the fields needed to construct a SpendingPattern.
type PatternInput struct {
	UserID          string
	Type            PatternType
	NodeIDs         []string
	RelationshipIDs []string
	Confidence      float64
	Frequency       int
	TotalAmount     float64
	Timeframe       Timeframe
	Metadata        map[string]any
	DetectedAt      time.Time
}

// NewSpendingPattern validates in and returns a pattern.
// Patterns with fewer than MinPatternFrequency occurrences are rejected.
func NewSpendingPattern(in PatternInput) (*SpendingPattern, error) {
	if in.Frequency < MinPatternFrequency {
		return nil, NewValidationError("frequency", "pattern requires at least %d occurrences, got %d", MinPatternFrequency, in.Frequency)
	}
	return buildPattern(in)
}

// NewAnomalyPattern builds a single-occurrence UNUSUAL_SPENDING pattern.
// Anomalies are rare by nature, so frequency is fixed at 1 and the
// MinPatternFrequency rule does not apply.
func NewAnomalyPattern(in PatternInput) (*SpendingPattern, error) {
	in.Type = PatternUnusualSpending
	in.Frequency = 1
	return buildPattern(in)
}

func buildPattern(in PatternInput) (*SpendingPattern, error) {
	if in.UserID == "" {
		return nil, NewValidationError("userId", "pattern requires a user id")
	}
	if in.Type == "" {
		return nil, NewValidationError("patternType", "pattern type is required")
	}
	if !unitInterval(in.Confidence) {
		return nil, NewValidationError("confidence", "confidence %.4f outside [0,1]", in.Confidence)
	}
	detected := in.DetectedAt
	if detected.IsZero() {
		detected = time.Now()
	}
	return &SpendingPattern{
		ID:              uuid.NewString(),
		UserID:          in.UserID,
		Type:            in.Type,
		NodeIDs:         append([]string(nil), in.NodeIDs...),
		RelationshipIDs: append([]string(nil), in.RelationshipIDs...),
		Confidence:      in.Confidence,
		Frequency:       in.Frequency,
		TotalAmount:     in.TotalAmount,
		Timeframe:       in.Timeframe,
		Metadata:        in.Metadata,
		DetectedAt:      detected.UTC(),
	}, nil
}

// IsActionable reports whether the pattern is confident and frequent enough to act on.
func (p *SpendingPattern) IsActionable() bool {
	return p.Confidence >= 0.7 && p.Frequency >= 5
}

// IsRecurring reports whether the pattern describes a repeating payment.
func (p *SpendingPattern) IsRecurring() bool {
	return p.Type == PatternRecurringPayment || p.Type == PatternPeriodicSpending
}

// IsAnomalous reports whether the pattern describes unexpected activity.
func (p *SpendingPattern) IsAnomalous() bool {
	return p.Type == PatternUnusualSpending || p.Type == PatternBudgetOverrun
}

// IsAutomated reports whether the underlying payments were already marked as automated.
func (p *SpendingPattern) IsAutomated() bool {
	automated, _ := p.Metadata[MetaAutomated].(bool)
	return automated
}

// Metadata keys shared by detectors and recommendation logic.
const (
	MetaAutomated     = "automated"
	MetaMerchantName  = "merchantName"
	MetaCategoryName  = "categoryName"
	MetaTransactionID = "transactionId"
)

// RecommendationType names the kind of suggested follow-up.
type RecommendationType string

const (
	RecommendAutomatePayment RecommendationType = "AUTOMATE_PAYMENT"
	RecommendReviewActivity  RecommendationType = "REVIEW_ACTIVITY"
	RecommendReviewBudget    RecommendationType = "REVIEW_BUDGET"
)

// Recommendation is a user-facing suggestion derived from a pattern.
type Recommendation struct {
	Type      RecommendationType `json:"type"`
	Priority  string             `json:"priority"`
	Title     string             `json:"title"`
	Message   string             `json:"message"`
	PatternID string             `json:"patternId"`
}

// GenerateRecommendations maps the pattern to follow-up suggestions.
func (p *SpendingPattern) GenerateRecommendations() []Recommendation {
	var recs []Recommendation

	if p.IsRecurring() && !p.IsAutomated() {
		recs = append(recs, Recommendation{
			Type:      RecommendAutomatePayment,
			Priority:  "medium",
			Title:     "Automate this payment",
			Message:   fmt.Sprintf("Payments to %s repeat regularly; consider setting up automatic payment.", p.label(MetaMerchantName, "this merchant")),
			PatternID: p.ID,
		})
	}

	if p.IsAnomalous() {
		recs = append(recs, Recommendation{
			Type:      RecommendReviewActivity,
			Priority:  "high",
			Title:     "Review this activity",
			Message:   fmt.Sprintf("A charge of %.2f is well above your usual spending.", p.TotalAmount),
			PatternID: p.ID,
		})
	}

	if p.Type == PatternCategoryConcentration {
		recs = append(recs, Recommendation{
			Type:      RecommendReviewBudget,
			Priority:  "medium",
			Title:     "Review this category's budget",
			Message:   fmt.Sprintf("%s accounts for a large share of your spending.", p.label(MetaCategoryName, "This category")),
			PatternID: p.ID,
		})
	}

	return recs
}

func (p *SpendingPattern) label(key, fallback string) string {
	if v, ok := p.Metadata[key].(string); ok && v != "" {
		return v
	}
	return fallback
}
