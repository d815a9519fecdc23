package models

import "time"

// PredicateOp compares a metadata field against a rule value.
type PredicateOp string

const (
	OpGT PredicateOp = "gt"
	OpLT PredicateOp = "lt"
	OpEQ PredicateOp = "eq"
	OpNE PredicateOp = "ne"
)

func (op PredicateOp) Valid() bool {
	switch op {
	case OpGT, OpLT, OpEQ, OpNE:
		return true
	}
	return false
}

// Predicate is a typed condition over event metadata.
type Predicate struct {
	Field string      `json:"field" yaml:"field"`
	Op    PredicateOp `json:"op" yaml:"op"`
	Value float64     `json:"value" yaml:"value"`
}

// Eval applies the predicate to an event's metadata. Missing or
// non-numeric fields never match.
func (p Predicate) Eval(e *AIEvent) bool {
	v, ok := e.MetadataFloat(p.Field)
	if !ok {
		return false
	}
	switch p.Op {
	case OpGT:
		return v > p.Value
	case OpLT:
		return v < p.Value
	case OpEQ:
		return v == p.Value
	case OpNE:
		return v != p.Value
	}
	return false
}

// MaxRuleAdjustment bounds how far a single rule can move a priority.
const MaxRuleAdjustment = 2

// PriorityRule bumps (or drops) event priority when its predicate holds.
type PriorityRule struct {
	Name       string        `json:"name" yaml:"name"`
	When       Predicate     `json:"when" yaml:"when"`
	Adjustment int           `json:"adjustment" yaml:"adjustment"` // clamped to +-MaxRuleAdjustment
	Cooldown   time.Duration `json:"cooldown" yaml:"cooldown"`
}

// ClampedAdjustment returns the adjustment bounded to +-MaxRuleAdjustment.
func (r *PriorityRule) ClampedAdjustment() int {
	if r.Adjustment > MaxRuleAdjustment {
		return MaxRuleAdjustment
	}
	if r.Adjustment < -MaxRuleAdjustment {
		return -MaxRuleAdjustment
	}
	return r.Adjustment
}

// DefaultPriorityRules returns the built-in rule set.
func DefaultPriorityRules() []PriorityRule {
	return []PriorityRule{
		{Name: "high_volume", When: Predicate{Field: "volume", Op: OpGT, Value: 1000}, Adjustment: 1, Cooldown: 5 * time.Minute},
		{Name: "price_change", When: Predicate{Field: "price_change", Op: OpGT, Value: 0.05}, Adjustment: 1, Cooldown: 5 * time.Minute},
		{Name: "high_risk", When: Predicate{Field: "risk_level", Op: OpGT, Value: 0.8}, Adjustment: 2, Cooldown: time.Minute},
		{Name: "high_confidence", When: Predicate{Field: "confidence", Op: OpGT, Value: 0.9}, Adjustment: 1, Cooldown: 5 * time.Minute},
	}
}
