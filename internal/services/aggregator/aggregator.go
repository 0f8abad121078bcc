// -----------------------------------------------------------------------
// Probe Aggregator - combination rules over probe results
// -----------------------------------------------------------------------

package aggregator

import (
	"fmt"
	"strings"

	"github.com/ternarybob/siteprobe/internal/models"
)

// Aggregate applies rule to results. The verdict depends on nothing else.
// Reasons follow input order with one summary line appended.
func Aggregate(rule models.AggregationRule, results []models.ProbeResult) models.Verdict {
	raw := make([]models.ProbeResult, len(results))
	copy(raw, results)

	v := models.Verdict{
		Rule:       rule,
		RawResults: raw,
		Reasons:    make([]string, 0, len(raw)+1),
	}

	for _, r := range raw {
		v.Reasons = append(v.Reasons, Describe(rule, r))
	}

	if err := rule.Validate(); err != nil {
		v.Reasons = append(v.Reasons, err.Error())
		return v
	}

	var summary string
	switch rule.Kind {
	case models.RuleAnyOneMatches:
		matched := countMatched(raw)
		v.Passed = matched > 0
		summary = fmt.Sprintf("%s: %d of %d probes matched", rule, matched, len(raw))

	case models.RuleAllRequiredMatch:
		required, missed := 0, []string{}
		for _, r := range raw {
			if !r.Required {
				continue
			}
			required++
			if !r.Matched {
				missed = append(missed, r.Name)
			}
		}
		v.Passed = len(missed) == 0
		summary = fmt.Sprintf("%s: %d of %d required probes matched", rule, required-len(missed), required)
		if len(missed) > 0 {
			summary += ", missing " + strings.Join(missed, ", ")
		}

	case models.RuleWeightedSumAtLeast:
		sum := WeightedSum(raw)
		v.Passed = sum >= rule.Threshold
		summary = fmt.Sprintf("%s: weighted sum %d, threshold %d", rule, sum, rule.Threshold)
	}

	if v.Passed {
		summary += " -> passed"
	} else {
		summary += " -> failed"
	}
	v.Reasons = append(v.Reasons, summary)
	return v
}

// WeightedSum adds the weight of every result
func WeightedSum(results []models.ProbeResult) int {
	sum := 0
	for _, r := range results {
		sum += r.Weight()
	}
	return sum
}

func countMatched(results []models.ProbeResult) int {
	n := 0
	for _, r := range results {
		if r.Matched {
			n++
		}
	}
	return n
}

// Describe renders the reason line for one probe result
func Describe(rule models.AggregationRule, r models.ProbeResult) string {
	var b strings.Builder

	status := "matched"
	if !r.Matched {
		status = "not matched"
	}
	fmt.Fprintf(&b, "%s: %s (count %d, min %d", r.Name, status, r.Count, r.MinCount)
	if r.VisibilityRequired {
		if r.Visible {
			b.WriteString(", visible")
		} else {
			b.WriteString(", not visible")
		}
	}
	fmt.Fprintf(&b, ", %dms)", r.ElapsedMs)

	switch {
	case rule.Kind == models.RuleAllRequiredMatch && !r.Required:
		b.WriteString(" advisory")
	case rule.Kind == models.RuleWeightedSumAtLeast:
		fmt.Fprintf(&b, " weight %d", r.Weight())
	}

	if r.FallbackFired() {
		fmt.Fprintf(&b, " via fallback %d %s", r.ChainIndex, r.Descriptor)
	}
	if len(r.SampleValues) > 0 {
		fmt.Fprintf(&b, " samples [%s]", strings.Join(r.SampleValues, "; "))
	}
	if r.Error != "" {
		fmt.Fprintf(&b, " error: %s", r.Error)
	}
	return b.String()
}
