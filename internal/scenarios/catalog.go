// Package scenarios holds the canonical scenario definitions run against the
// target site, one per check family, plus the TOML loader for extra ones.
package scenarios

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/ternarybob/siteprobe/internal/common"
	"github.com/ternarybob/siteprobe/internal/models"
	"github.com/ternarybob/siteprobe/internal/services/scenario"
)

// Tags shared across the catalog
const (
	TagSmoke        = "smoke"
	TagHomepage     = "homepage"
	TagNavigation   = "navigation"
	TagContent      = "content"
	TagPerformance  = "performance"
	TagAccessible   = "accessibility"
	TagSEO          = "seo"
	TagSecurity     = "security"
	TagResponsive   = "responsive"
	TagCrossBrowser = "cross-browser"
	TagEngagement   = "engagement"
	TagJourney      = "journey"
)

var brandPattern = regexp.MustCompile(`(?i)rebet`)

// site carries the target details the definitions are parameterized on
type site struct {
	paths    map[string]string
	playHost string
}

func newSite(target common.TargetConfig) site {
	s := site{paths: target.Paths, playHost: "play."}
	if u, err := url.Parse(target.PlayURL); err == nil && u.Host != "" {
		s.playHost = u.Host
	}
	return s
}

// path returns the configured sub-path for key, else fallback
func (s site) path(key, fallback string) string {
	if p, ok := s.paths[key]; ok && p != "" {
		return p
	}
	return fallback
}

// Catalog returns every built-in definition in a stable order
func Catalog(target common.TargetConfig) []scenario.Definition {
	s := newSite(target)

	var defs []scenario.Definition
	defs = append(defs, homepage(s)...)
	defs = append(defs, navigation(s)...)
	defs = append(defs, content(s)...)
	defs = append(defs, quality(s)...)
	defs = append(defs, security(s)...)
	defs = append(defs, layout(s)...)
	defs = append(defs, engagement(s)...)
	return defs
}

// Select returns the definitions matching filter, in order. Every filter term
// must name at least one definition or tag.
func Select(defs []scenario.Definition, filter []string) ([]scenario.Definition, error) {
	for _, term := range filter {
		found := false
		for _, d := range defs {
			if d.Matches([]string{term}) {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("no scenario or tag named %q", term)
		}
	}

	out := make([]scenario.Definition, 0, len(defs))
	for _, d := range defs {
		if d.Matches(filter) {
			out = append(out, d)
		}
	}
	return out, nil
}

// Merge appends extra definitions; an extra definition replaces a built-in one of the same name
func Merge(builtin, extra []scenario.Definition) []scenario.Definition {
	index := make(map[string]int, len(builtin))
	out := make([]scenario.Definition, len(builtin))
	copy(out, builtin)
	for i, d := range out {
		index[strings.ToLower(d.Name)] = i
	}
	for _, d := range extra {
		if i, ok := index[strings.ToLower(d.Name)]; ok {
			out[i] = d
			continue
		}
		index[strings.ToLower(d.Name)] = len(out)
		out = append(out, d)
	}
	return out
}

// Tags lists every tag used by defs, sorted
func Tags(defs []scenario.Definition) []string {
	seen := map[string]bool{}
	for _, d := range defs {
		for _, t := range d.Tags {
			seen[strings.ToLower(t)] = true
		}
	}
	tags := make([]string, 0, len(seen))
	for t := range seen {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

// exact matches an element whose whole text is label, ignoring surrounding space
func exact(label string) models.Descriptor {
	return models.Text(`^\s*` + regexp.QuoteMeta(label) + `\s*$`)
}

// anyText unions case-insensitive text patterns
func anyText(patterns ...string) models.Descriptor {
	parts := make([]models.Descriptor, len(patterns))
	for i, p := range patterns {
		parts[i] = models.Text(p)
	}
	return models.AnyOf(parts...)
}

func hrefContains(substring string) models.Descriptor {
	return models.AttrOn("a", "href", substring)
}

// regexpFor matches a URL containing key, case-insensitive
func regexpFor(key string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)` + regexp.QuoteMeta(key))
}
