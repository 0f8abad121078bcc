package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/siteprobe/internal/interfaces"
	"github.com/ternarybob/siteprobe/internal/models"
)

// Observation is what a Signal reports about the page
type Observation struct {
	Count   int
	Samples []string
}

// Signal measures something that is not a DOM element set: the title, response
// headers, collected evidence. A returned error is recorded, never raised.
type Signal func(ctx context.Context, page interfaces.Page, sctx *models.ScenarioContext) (Observation, error)

// Spec is a descriptor (or signal) plus the policy that reduces it to a result.
// Specs are values; the builder methods return modified copies.
type Spec struct {
	Name               string
	Descriptor         models.Descriptor
	Signal             Signal
	Required           bool
	MinCount           int
	VisibilityRequired bool
	Timeout            time.Duration // 0 uses the policy action timeout
	Fallbacks          []models.Descriptor
	SampleAttribute    string // Empty samples text content
	BooleanOnly        bool   // Weighs 1 or 0 in a weighted sum instead of Count
	Deferred           bool   // Evaluated after the other probes, used by evidence thresholds
}

// New creates a required probe that needs one match of d
func New(name string, d models.Descriptor) Spec {
	return Spec{Name: name, Descriptor: d, Required: true, MinCount: models.DefaultMinCount}
}

// NewSignal creates a required pass/fail probe backed by fn
func NewSignal(name string, fn Signal) Spec {
	return Spec{Name: name, Signal: fn, Required: true, MinCount: 1, BooleanOnly: true}
}

// NewCountSignal creates a required probe backed by fn that needs min counted items
func NewCountSignal(name string, min int, fn Signal) Spec {
	return Spec{Name: name, Signal: fn, Required: true, MinCount: min}
}

func (s Spec) Optional() Spec {
	s.Required = false
	return s
}

func (s Spec) Require() Spec {
	s.Required = true
	return s
}

// AtLeast sets the minimum match count; 0 makes the probe informational
func (s Spec) AtLeast(n int) Spec {
	s.MinCount = n
	return s
}

// Visible requires one of the first sampled matches to be visible
func (s Spec) Visible() Spec {
	s.VisibilityRequired = true
	return s
}

func (s Spec) WithTimeout(d time.Duration) Spec {
	s.Timeout = d
	return s
}

// Fallback appends descriptors tried in order when the previous ones fall short
func (s Spec) Fallback(ds ...models.Descriptor) Spec {
	fallbacks := make([]models.Descriptor, 0, len(s.Fallbacks)+len(ds))
	fallbacks = append(fallbacks, s.Fallbacks...)
	fallbacks = append(fallbacks, ds...)
	s.Fallbacks = fallbacks
	return s
}

// Samples records attribute values instead of text for diagnostics
func (s Spec) Samples(attribute string) Spec {
	s.SampleAttribute = attribute
	return s
}

// Boolean weighs the probe as 1 or 0 under a weighted sum
func (s Spec) Boolean() Spec {
	s.BooleanOnly = true
	return s
}

// Defer evaluates the probe after the others have joined
func (s Spec) Defer() Spec {
	s.Deferred = true
	return s
}

// Chain returns the primary descriptor followed by the fallbacks
func (s Spec) Chain() []models.Descriptor {
	chain := make([]models.Descriptor, 0, 1+len(s.Fallbacks))
	chain = append(chain, s.Descriptor)
	return append(chain, s.Fallbacks...)
}

// Validate checks the spec can be evaluated
func (s Spec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("probe requires a name")
	}
	if s.MinCount < 0 {
		return fmt.Errorf("probe %s: min count must be >= 0, got %d", s.Name, s.MinCount)
	}
	if s.Timeout != 0 && s.Timeout < models.MinProbeTimeout {
		return fmt.Errorf("probe %s: timeout %s is below the %s floor", s.Name, s.Timeout, models.MinProbeTimeout)
	}

	if s.Signal != nil {
		if !s.Descriptor.IsZero() || len(s.Fallbacks) > 0 {
			return fmt.Errorf("probe %s: a signal probe takes no descriptors", s.Name)
		}
		if s.VisibilityRequired {
			return fmt.Errorf("probe %s: visibility applies to descriptor probes only", s.Name)
		}
		return nil
	}

	if s.VisibilityRequired && s.MinCount == 0 {
		return fmt.Errorf("probe %s: visibility needs at least one match", s.Name)
	}
	for i, d := range s.Chain() {
		if err := d.Validate(); err != nil {
			if i == 0 {
				return fmt.Errorf("probe %s: %w", s.Name, err)
			}
			return fmt.Errorf("probe %s: fallback %d: %w", s.Name, i, err)
		}
	}
	return nil
}
