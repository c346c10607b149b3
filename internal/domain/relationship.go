package domain

import (
	"time"

	"github.com/google/uuid"
)

// RelationshipType enumerates the edge types stored in the graph.
type RelationshipType string

const (
	RelOwns              RelationshipType = "OWNS"
	RelMadeTransaction   RelationshipType = "MADE_TRANSACTION"
	RelBelongsToCategory RelationshipType = "BELONGS_TO_CATEGORY"
	RelAtMerchant        RelationshipType = "AT_MERCHANT"
	RelAtLocation        RelationshipType = "AT_LOCATION"
	RelHasTag            RelationshipType = "HAS_TAG"
	RelAffectsBudget     RelationshipType = "AFFECTS_BUDGET"
	RelHasBudget         RelationshipType = "HAS_BUDGET"
	RelHasGoal           RelationshipType = "HAS_GOAL"
	RelContributesToGoal RelationshipType = "CONTRIBUTES_TO_GOAL"
	RelSubcategoryOf     RelationshipType = "SUBCATEGORY_OF"
	RelSimilarMerchant   RelationshipType = "SIMILAR_MERCHANT"
	RelMerchantChain     RelationshipType = "MERCHANT_CHAIN"
	RelSimilarSpending   RelationshipType = "SIMILAR_SPENDING"
	RelSimilarGoals      RelationshipType = "SIMILAR_GOALS"
	RelRecommends        RelationshipType = "RECOMMENDS"
)

// RelationshipTypes lists every supported relationship type in a stable order.
var RelationshipTypes = []RelationshipType{
	RelOwns,
	RelMadeTransaction,
	RelBelongsToCategory,
	RelAtMerchant,
	RelAtLocation,
	RelHasTag,
	RelAffectsBudget,
	RelHasBudget,
	RelHasGoal,
	RelContributesToGoal,
	RelSubcategoryOf,
	RelSimilarMerchant,
	RelMerchantChain,
	RelSimilarSpending,
	RelSimilarGoals,
	RelRecommends,
}

// NodePair is an allowed (from, to) combination for a relationship type.
type NodePair struct {
	From NodeType
	To   NodeType
}

type relationshipRule struct {
	pairs     []NodePair
	symmetric bool
}

var relationshipRules = map[RelationshipType]relationshipRule{
	RelOwns:            {pairs: []NodePair{{NodeTypeUser, NodeTypeAccount}}},
	RelMadeTransaction: {pairs: []NodePair{{NodeTypeAccount, NodeTypeTransaction}, {NodeTypeUser, NodeTypeTransaction}}},
	RelBelongsToCategory: {pairs: []NodePair{
		{NodeTypeTransaction, NodeTypeCategory},
		{NodeTypeMerchant, NodeTypeCategory},
		{NodeTypeBudget, NodeTypeCategory},
	}},
	RelAtMerchant:        {pairs: []NodePair{{NodeTypeTransaction, NodeTypeMerchant}}},
	RelAtLocation:        {pairs: []NodePair{{NodeTypeTransaction, NodeTypeLocation}, {NodeTypeMerchant, NodeTypeLocation}}},
	RelHasTag:            {pairs: []NodePair{{NodeTypeTransaction, NodeTypeTag}}},
	RelAffectsBudget:     {pairs: []NodePair{{NodeTypeTransaction, NodeTypeBudget}}},
	RelHasBudget:         {pairs: []NodePair{{NodeTypeUser, NodeTypeBudget}}},
	RelHasGoal:           {pairs: []NodePair{{NodeTypeUser, NodeTypeGoal}}},
	RelContributesToGoal: {pairs: []NodePair{{NodeTypeTransaction, NodeTypeGoal}, {NodeTypeAccount, NodeTypeGoal}}},
	RelSubcategoryOf:     {pairs: []NodePair{{NodeTypeCategory, NodeTypeCategory}}},
	RelSimilarMerchant:   {pairs: []NodePair{{NodeTypeMerchant, NodeTypeMerchant}}, symmetric: true},
	RelMerchantChain:     {pairs: []NodePair{{NodeTypeMerchant, NodeTypeMerchant}}, symmetric: true},
	RelSimilarSpending:   {pairs: []NodePair{{NodeTypeUser, NodeTypeUser}}, symmetric: true},
	RelSimilarGoals:      {pairs: []NodePair{{NodeTypeGoal, NodeTypeGoal}, {NodeTypeUser, NodeTypeUser}}, symmetric: true},
	RelRecommends:        {pairs: []NodePair{{NodeTypeUser, NodeTypeMerchant}, {NodeTypeUser, NodeTypeCategory}, {NodeTypeMerchant, NodeTypeMerchant}}},
}

// Valid reports whether t is one of the known relationship types.
func (t RelationshipType) Valid() bool {
	_, ok := relationshipRules[t]
	return ok
}

// ParseRelationshipType converts a type name into a RelationshipType.
func ParseRelationshipType(name string) (RelationshipType, error) {
	t := RelationshipType(name)
	if !t.Valid() {
		return "", NewValidationError("type", "unknown relationship type %q", name)
	}
	return t, nil
}

// Allows reports whether an edge of type t may run from a node of type from to a node of type to.
func (t RelationshipType) Allows(from, to NodeType) bool {
	for _, pair := range relationshipRules[t].pairs {
		if pair.From == from && pair.To == to {
			return true
		}
	}
	return false
}

// AllowedPairs returns the whitelist for t.
func (t RelationshipType) AllowedPairs() []NodePair {
	return append([]NodePair(nil), relationshipRules[t].pairs...)
}

// Symmetric reports whether t is semantically undirected. Symmetric edges are still stored once.
func (t RelationshipType) Symmetric() bool {
	return relationshipRules[t].symmetric
}

// Relationship is a typed, directed, weighted edge between two nodes.
type Relationship struct {
	ID         string
	Type       RelationshipType
	From       NodeRef
	To         NodeRef
	Weight     float64
	Frequency  int
	Confidence float64
	Metadata   map[string]any
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// RelationshipOption customises a relationship at construction.
type RelationshipOption func(*Relationship)

// WithWeight sets the initial weight.
func WithWeight(w float64) RelationshipOption {
	return func(r *Relationship) { r.Weight = w }
}

// WithConfidence sets the initial confidence.
func WithConfidence(c float64) RelationshipOption {
	return func(r *Relationship) { r.Confidence = c }
}

// WithFrequency sets the initial frequency.
func WithFrequency(f int) RelationshipOption {
	return func(r *Relationship) { r.Frequency = f }
}

// WithMetadata attaches free-form metadata.
func WithMetadata(md map[string]any) RelationshipOption {
	return func(r *Relationship) { r.Metadata = md }
}

// NewRelationship validates the endpoint types against the whitelist and builds the edge.
func NewRelationship(t RelationshipType, from, to NodeRef, opts ...RelationshipOption) (*Relationship, error) {
	if !t.Valid() {
		return nil, NewValidationError("type", "unknown relationship type %q", t)
	}
	if from.ID == "" || to.ID == "" {
		return nil, NewValidationError("endpoints", "relationship endpoints require ids")
	}
	if !t.Allows(from.Type, to.Type) {
		return nil, NewValidationError("type", "%s cannot connect %s to %s", t, from.Type, to.Type)
	}

	now := time.Now().UTC()
	rel := &Relationship{
		ID:         uuid.NewString(),
		Type:       t,
		From:       from,
		To:         to,
		Weight:     1,
		Frequency:  1,
		Confidence: 1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for _, opt := range opts {
		opt(rel)
	}

	if !unitInterval(rel.Weight) {
		return nil, NewValidationError("weight", "weight %.4f outside [0,1]", rel.Weight)
	}
	if !unitInterval(rel.Confidence) {
		return nil, NewValidationError("confidence", "confidence %.4f outside [0,1]", rel.Confidence)
	}
	if rel.Frequency < 1 {
		return nil, NewValidationError("frequency", "frequency must be at least 1, got %d", rel.Frequency)
	}
	return rel, nil
}

// IncrementFrequency adds n (minimum 1) to the observed frequency.
func (r *Relationship) IncrementFrequency(n int) {
	if n < 1 {
		n = 1
	}
	r.Frequency += n
	r.UpdatedAt = advance(r.UpdatedAt)
}

// UpdateWeight replaces the weight; values outside [0,1] are rejected.
func (r *Relationship) UpdateWeight(w float64) error {
	if !unitInterval(w) {
		return NewValidationError("weight", "weight %.4f outside [0,1]", w)
	}
	r.Weight = w
	r.UpdatedAt = advance(r.UpdatedAt)
	return nil
}

// unitInterval reports whether v lies in [0,1]. NaN does not.
func unitInterval(v float64) bool {
	return v >= 0 && v <= 1
}

// IsSignificant reports whether the edge meets both thresholds.
func (r *Relationship) IsSignificant(minWeight, minConfidence float64) bool {
	return r.Weight >= minWeight && r.Confidence >= minConfidence
}
