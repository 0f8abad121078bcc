package models

import "fmt"

// RuleKind names an aggregation rule
type RuleKind string

const (
	RuleAnyOneMatches      RuleKind = "any_one_matches"
	RuleAllRequiredMatch   RuleKind = "all_required_match"
	RuleWeightedSumAtLeast RuleKind = "weighted_sum_at_least"
)

// AggregationRule combines probe results into a verdict
type AggregationRule struct {
	Kind      RuleKind `json:"kind" yaml:"kind"`
	Threshold int      `json:"threshold,omitempty" yaml:"threshold,omitempty"` // weighted_sum_at_least only
}

// AnyOneMatches passes when at least one probe matched
func AnyOneMatches() AggregationRule {
	return AggregationRule{Kind: RuleAnyOneMatches}
}

// AllRequiredMatch passes when every required probe matched
func AllRequiredMatch() AggregationRule {
	return AggregationRule{Kind: RuleAllRequiredMatch}
}

// WeightedSumAtLeast passes when the summed weights reach threshold
func WeightedSumAtLeast(threshold int) AggregationRule {
	return AggregationRule{Kind: RuleWeightedSumAtLeast, Threshold: threshold}
}

// Validate checks the rule kind is known
func (r AggregationRule) Validate() error {
	switch r.Kind {
	case RuleAnyOneMatches, RuleAllRequiredMatch, RuleWeightedSumAtLeast:
		return nil
	default:
		return fmt.Errorf("unknown aggregation rule %q", r.Kind)
	}
}

func (r AggregationRule) String() string {
	if r.Kind == RuleWeightedSumAtLeast {
		return fmt.Sprintf("%s(%d)", r.Kind, r.Threshold)
	}
	return string(r.Kind)
}

// Verdict is the pass/fail decision for one scenario run.
// Passed is determined only by applying Rule to RawResults.
type Verdict struct {
	Passed     bool            `json:"passed" yaml:"passed"`
	Rule       AggregationRule `json:"rule" yaml:"rule"`
	Reasons    []string        `json:"reasons" yaml:"reasons"`
	RawResults []ProbeResult   `json:"raw_results" yaml:"raw_results"`
}

// Fired returns the names of matched probes in input order
func (v Verdict) Fired() []string {
	var names []string
	for _, r := range v.RawResults {
		if r.Matched {
			names = append(names, r.Name)
		}
	}
	return names
}

// Missed returns the names of unmatched probes in input order
func (v Verdict) Missed() []string {
	var names []string
	for _, r := range v.RawResults {
		if !r.Matched {
			names = append(names, r.Name)
		}
	}
	return names
}
