package models

import "time"

const (
	// DefaultMinCount is the minimum number of matches a probe needs unless told otherwise
	DefaultMinCount = 1

	// MinProbeTimeout is the floor for any probe timeout, explicit or defaulted
	MinProbeTimeout = 2 * time.Second

	// SampleCap bounds how many sample values and visibility checks a probe records
	SampleCap = 5
)

// ProbeResult is the outcome of one probe evaluation.
// Matched always equals MatchedFor(Count, MinCount, VisibilityRequired, Visible).
type ProbeResult struct {
	Name               string   `json:"name" yaml:"name"`
	Descriptor         string   `json:"descriptor,omitempty" yaml:"descriptor,omitempty"` // Descriptor that produced Count
	Required           bool     `json:"required" yaml:"required"`
	MinCount           int      `json:"min_count" yaml:"min_count"`
	VisibilityRequired bool     `json:"visibility_required,omitempty" yaml:"visibility_required,omitempty"`
	BooleanOnly        bool     `json:"boolean_only,omitempty" yaml:"boolean_only,omitempty"`
	Matched            bool     `json:"matched" yaml:"matched"`
	Count              int      `json:"count" yaml:"count"`
	Visible            bool     `json:"visible,omitempty" yaml:"visible,omitempty"`
	ChainIndex         int      `json:"chain_index" yaml:"chain_index"` // 0 = primary descriptor, k = k-th fallback
	AttemptCounts      []int    `json:"attempt_counts,omitempty" yaml:"attempt_counts,omitempty"`
	SampleValues       []string `json:"sample_values,omitempty" yaml:"sample_values,omitempty"`
	ElapsedMs          int64    `json:"elapsed_ms" yaml:"elapsed_ms"`
	Error              string   `json:"error,omitempty" yaml:"error,omitempty"`
}

// MatchedFor is the single definition of a probe match
func MatchedFor(count, minCount int, visibilityRequired, visible bool) bool {
	return count >= minCount && (!visibilityRequired || visible)
}

// Consistent reports whether Matched agrees with the other fields
func (r ProbeResult) Consistent() bool {
	return r.Matched == MatchedFor(r.Count, r.MinCount, r.VisibilityRequired, r.Visible)
}

// FallbackFired reports whether a fallback descriptor produced the result
func (r ProbeResult) FallbackFired() bool {
	return r.ChainIndex > 0
}

// Weight is the contribution of this result to a weighted sum
func (r ProbeResult) Weight() int {
	if r.BooleanOnly {
		if r.Matched {
			return 1
		}
		return 0
	}
	return r.Count
}
