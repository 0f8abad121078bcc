package scenarios

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/siteprobe/internal/models"
	"github.com/ternarybob/siteprobe/internal/services/probe"
	"github.com/ternarybob/siteprobe/internal/services/scenario"
)

// DefinitionFile is the TOML layout of a scenario definition file.
// Each [[scenario]] table becomes one definition with descriptor-only probes.
type DefinitionFile struct {
	Scenario []ScenarioFile `toml:"scenario"`
}

// ScenarioFile is one [[scenario]] table
type ScenarioFile struct {
	Name        string      `toml:"name"`
	Description string      `toml:"description"`
	Tags        []string    `toml:"tags"`
	Path        string      `toml:"path"`
	LoadState   string      `toml:"load_state"`
	Rule        string      `toml:"rule"`      // any_one_matches, all_required_match (default), weighted_sum_at_least
	Threshold   int         `toml:"threshold"` // weighted_sum_at_least only
	Viewports   []string    `toml:"viewports"`
	Browsers    []string    `toml:"browsers"`
	Steps       []StepFile  `toml:"step"`
	Probes      []ProbeFile `toml:"probe"`
}

// StepFile is one [[scenario.step]] table
type StepFile struct {
	Kind         string         `toml:"kind"` // scroll, pause, follow
	Fraction     float64        `toml:"fraction"`
	Duration     string         `toml:"duration"`
	Link         DescriptorFile `toml:"link"`
	HrefContains string         `toml:"href_contains"`
}

// DescriptorFile describes content; set exactly one of text, text_case, css,
// attribute (with contains) or any_of
type DescriptorFile struct {
	Text      string           `toml:"text"`
	TextCase  string           `toml:"text_case"`
	CSS       string           `toml:"css"`
	Attribute string           `toml:"attribute"`
	Contains  string           `toml:"contains"`
	Element   string           `toml:"element"`
	AnyOf     []DescriptorFile `toml:"any_of"`
	Within    *DescriptorFile  `toml:"within"`
}

// ProbeFile is one [[scenario.probe]] table
type ProbeFile struct {
	DescriptorFile
	Name            string           `toml:"name"`
	Required        *bool            `toml:"required"`  // Defaults to true
	MinCount        *int             `toml:"min_count"` // Defaults to 1
	Visible         bool             `toml:"visible"`
	Timeout         string           `toml:"timeout"`
	SampleAttribute string           `toml:"sample_attribute"`
	Boolean         bool             `toml:"boolean"`
	Fallback        []DescriptorFile `toml:"fallback"`
}

// ParseTOML parses definition file content
func ParseTOML(content []byte) (*DefinitionFile, error) {
	var file DefinitionFile
	if err := toml.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("invalid TOML syntax: %w", err)
	}
	return &file, nil
}

// ToDefinitions converts and validates every scenario in the file
func (f *DefinitionFile) ToDefinitions() ([]scenario.Definition, error) {
	defs := make([]scenario.Definition, 0, len(f.Scenario))
	for i := range f.Scenario {
		def, err := f.Scenario[i].ToDefinition()
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// ToDefinition converts the table to a validated definition
func (s *ScenarioFile) ToDefinition() (scenario.Definition, error) {
	def := scenario.Definition{
		Name:        strings.TrimSpace(s.Name),
		Description: s.Description,
		Tags:        s.Tags,
		Path:        s.Path,
		LoadState:   models.LoadState(strings.ToLower(s.LoadState)),
		Viewports:   s.Viewports,
	}

	switch models.RuleKind(strings.ToLower(s.Rule)) {
	case "", models.RuleAllRequiredMatch:
		def.Rule = models.AllRequiredMatch()
	case models.RuleAnyOneMatches:
		def.Rule = models.AnyOneMatches()
	case models.RuleWeightedSumAtLeast:
		def.Rule = models.WeightedSumAtLeast(s.Threshold)
	default:
		return def, fmt.Errorf("scenario %s: unknown rule %q", s.Name, s.Rule)
	}

	for _, b := range s.Browsers {
		name, err := models.ParseBrowserName(b)
		if err != nil {
			return def, fmt.Errorf("scenario %s: %w", s.Name, err)
		}
		def.Browsers = append(def.Browsers, name)
	}

	for i, st := range s.Steps {
		step, err := st.toStep()
		if err != nil {
			return def, fmt.Errorf("scenario %s: step %d: %w", s.Name, i, err)
		}
		def.Steps = append(def.Steps, step)
	}

	for _, p := range s.Probes {
		spec, err := p.toSpec()
		if err != nil {
			return def, fmt.Errorf("scenario %s: %w", s.Name, err)
		}
		def.Probes = append(def.Probes, spec)
	}

	if err := def.Validate(); err != nil {
		return def, err
	}
	return def, nil
}

func (st StepFile) toStep() (scenario.Step, error) {
	switch strings.ToLower(st.Kind) {
	case "scroll":
		return scenario.ScrollTo(st.Fraction), nil
	case "pause":
		d, err := time.ParseDuration(st.Duration)
		if err != nil {
			return nil, fmt.Errorf("invalid pause duration %q: %w", st.Duration, err)
		}
		return scenario.Pause(d), nil
	case "follow":
		link := models.AttrOn("a", "href", st.HrefContains)
		if !st.Link.isZero() {
			d, err := st.Link.toDescriptor()
			if err != nil {
				return nil, err
			}
			link = d
		}
		return scenario.FollowLink(link, st.HrefContains), nil
	default:
		return nil, fmt.Errorf("unknown step kind %q (scroll, pause, follow)", st.Kind)
	}
}

func (p ProbeFile) toSpec() (probe.Spec, error) {
	d, err := p.DescriptorFile.toDescriptor()
	if err != nil {
		return probe.Spec{}, fmt.Errorf("probe %s: %w", p.Name, err)
	}

	spec := probe.New(p.Name, d)
	if p.Required != nil && !*p.Required {
		spec = spec.Optional()
	}
	if p.MinCount != nil {
		spec = spec.AtLeast(*p.MinCount)
	}
	if p.Visible {
		spec = spec.Visible()
	}
	if p.Boolean {
		spec = spec.Boolean()
	}
	if p.SampleAttribute != "" {
		spec = spec.Samples(p.SampleAttribute)
	}
	if p.Timeout != "" {
		t, err := time.ParseDuration(p.Timeout)
		if err != nil {
			return probe.Spec{}, fmt.Errorf("probe %s: invalid timeout %q: %w", p.Name, p.Timeout, err)
		}
		spec = spec.WithTimeout(t)
	}
	for i, f := range p.Fallback {
		fd, err := f.toDescriptor()
		if err != nil {
			return probe.Spec{}, fmt.Errorf("probe %s: fallback %d: %w", p.Name, i, err)
		}
		spec = spec.Fallback(fd)
	}
	return spec, spec.Validate()
}

func (d DescriptorFile) isZero() bool {
	return d.Text == "" && d.TextCase == "" && d.CSS == "" && d.Attribute == "" && len(d.AnyOf) == 0
}

func (d DescriptorFile) toDescriptor() (models.Descriptor, error) {
	var out models.Descriptor
	set := 0
	if d.Text != "" {
		out, set = models.Text(d.Text), set+1
	}
	if d.TextCase != "" {
		out, set = models.TextCase(d.TextCase), set+1
	}
	if d.CSS != "" {
		out, set = models.CSS(d.CSS), set+1
	}
	if d.Attribute != "" {
		if d.Element != "" {
			out = models.AttrOn(d.Element, d.Attribute, d.Contains)
		} else {
			out = models.Attr(d.Attribute, d.Contains)
		}
		set++
	}
	if len(d.AnyOf) > 0 {
		parts := make([]models.Descriptor, 0, len(d.AnyOf))
		for i, p := range d.AnyOf {
			pd, err := p.toDescriptor()
			if err != nil {
				return out, fmt.Errorf("any_of %d: %w", i, err)
			}
			parts = append(parts, pd)
		}
		out, set = models.AnyOf(parts...), set+1
	}

	switch set {
	case 0:
		return out, fmt.Errorf("descriptor needs one of text, text_case, css, attribute or any_of")
	case 1:
	default:
		return out, fmt.Errorf("descriptor sets %d kinds, expected one", set)
	}

	if d.Within != nil {
		scope, err := d.Within.toDescriptor()
		if err != nil {
			return out, fmt.Errorf("within: %w", err)
		}
		out = out.Within(scope)
	}
	return out, out.Validate()
}

// LoadDir loads every *.toml definition file in dir, in name order.
// A missing directory yields no definitions.
func LoadDir(dir string, logger arbor.ILogger) ([]scenario.Definition, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Debug().Str("dir", dir).Msg("Definitions directory not found, skipping")
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read definitions directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".toml") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	var defs []scenario.Definition
	for _, path := range files {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		file, err := ParseTOML(content)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		loaded, err := file.ToDefinitions()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		logger.Debug().Str("file", path).Int("scenarios", len(loaded)).Msg("Loaded scenario definitions")
		defs = append(defs, loaded...)
	}
	return defs, nil
}
