package models

import (
	"fmt"
	"regexp"
	"strings"
)

// DescriptorKind identifies how a Descriptor locates content
type DescriptorKind string

const (
	DescriptorText      DescriptorKind = "text_pattern"        // Regex over rendered text content
	DescriptorAttribute DescriptorKind = "attribute_substring" // Attribute value contains a substring
	DescriptorCSS       DescriptorKind = "css_hint"            // Structural CSS selector, passed through
	DescriptorComposite DescriptorKind = "composite"           // Union of sub-descriptors
)

// Descriptor describes how to find content on a page.
// Descriptors are values: the helpers below always return copies and never
// share the Parts or Scope of their receiver.
type Descriptor struct {
	Kind          DescriptorKind `json:"kind" yaml:"kind"`
	Pattern       string         `json:"pattern,omitempty" yaml:"pattern,omitempty"`               // Regex, substring or selector depending on Kind
	Attribute     string         `json:"attribute,omitempty" yaml:"attribute,omitempty"`           // Attribute name for attribute_substring
	Element       string         `json:"element,omitempty" yaml:"element,omitempty"`               // Optional tag restriction for attribute_substring
	CaseSensitive bool           `json:"case_sensitive,omitempty" yaml:"case_sensitive,omitempty"` // text_pattern only, default is case-insensitive
	Parts         []Descriptor   `json:"parts,omitempty" yaml:"parts,omitempty"`
	Scope         *Descriptor    `json:"scope,omitempty" yaml:"scope,omitempty"` // Resolve only within matches of Scope
}

// Text matches elements whose text content matches the regex, case-insensitive
func Text(pattern string) Descriptor {
	return Descriptor{Kind: DescriptorText, Pattern: pattern}
}

// TextCase matches elements whose text content matches the regex, case-sensitive
func TextCase(pattern string) Descriptor {
	return Descriptor{Kind: DescriptorText, Pattern: pattern, CaseSensitive: true}
}

// Attr matches any element whose attribute contains substring
func Attr(attribute, substring string) Descriptor {
	return Descriptor{Kind: DescriptorAttribute, Attribute: attribute, Pattern: substring}
}

// AttrOn matches elements with the given tag whose attribute contains substring
func AttrOn(element, attribute, substring string) Descriptor {
	return Descriptor{Kind: DescriptorAttribute, Element: element, Attribute: attribute, Pattern: substring}
}

// CSS passes selector through to the driver unchanged
func CSS(selector string) Descriptor {
	return Descriptor{Kind: DescriptorCSS, Pattern: selector}
}

// AnyOf unions the matches of every part
func AnyOf(parts ...Descriptor) Descriptor {
	copied := make([]Descriptor, len(parts))
	copy(copied, parts)
	return Descriptor{Kind: DescriptorComposite, Parts: copied}
}

// Within returns a copy of d restricted to the matches of scope
func (d Descriptor) Within(scope Descriptor) Descriptor {
	out := d.clone()
	s := scope.clone()
	out.Scope = &s
	return out
}

func (d Descriptor) clone() Descriptor {
	out := d
	if d.Parts != nil {
		out.Parts = make([]Descriptor, len(d.Parts))
		for i, p := range d.Parts {
			out.Parts[i] = p.clone()
		}
	}
	if d.Scope != nil {
		s := d.Scope.clone()
		out.Scope = &s
	}
	return out
}

// IsZero reports whether the descriptor has not been set
func (d Descriptor) IsZero() bool {
	return d.Kind == "" && d.Pattern == "" && len(d.Parts) == 0 && d.Scope == nil
}

// unportableGroup returns the first "(?" group that JavaScript RegExp rejects.
// Text patterns run as Go RE2 in the static driver and as JavaScript in
// browsers, so only non-capturing and (?<name>) groups are allowed.
func unportableGroup(pattern string) string {
	inClass := false
	for i := 0; i < len(pattern); i++ {
		switch c := pattern[i]; {
		case c == '\\':
			i++
		case inClass:
			if c == ']' {
				inClass = false
			}
		case c == '[':
			inClass = true
		case c == '(' && strings.HasPrefix(pattern[i:], "(?"):
			rest := pattern[i+2:]
			if strings.HasPrefix(rest, ":") || (strings.HasPrefix(rest, "<") && !strings.HasPrefix(rest, "<=") && !strings.HasPrefix(rest, "<!")) {
				continue
			}
			end := strings.IndexAny(rest, ":)")
			if end < 0 {
				end = len(rest) - 1
			}
			return pattern[i : i+3+end]
		}
	}
	return ""
}

// Validate checks the descriptor is well-formed, including nested parts and scope
func (d Descriptor) Validate() error {
	switch d.Kind {
	case DescriptorText:
		if d.Pattern == "" {
			return fmt.Errorf("text_pattern descriptor requires a pattern")
		}
		if _, err := regexp.Compile(d.Pattern); err != nil {
			return fmt.Errorf("invalid text pattern %q: %w", d.Pattern, err)
		}
		if group := unportableGroup(d.Pattern); group != "" {
			return fmt.Errorf("invalid text pattern %q: group %q is not supported by browser regular expressions, case is set by the probe", d.Pattern, group)
		}
	case DescriptorAttribute:
		if d.Attribute == "" {
			return fmt.Errorf("attribute_substring descriptor requires an attribute name")
		}
		if d.Pattern == "" {
			return fmt.Errorf("attribute_substring descriptor requires a substring")
		}
	case DescriptorCSS:
		if strings.TrimSpace(d.Pattern) == "" {
			return fmt.Errorf("css_hint descriptor requires a selector")
		}
	case DescriptorComposite:
		if len(d.Parts) == 0 {
			return fmt.Errorf("composite descriptor requires at least one part")
		}
		for i, p := range d.Parts {
			if err := p.Validate(); err != nil {
				return fmt.Errorf("composite part %d: %w", i, err)
			}
		}
	default:
		return fmt.Errorf("unknown descriptor kind %q", d.Kind)
	}

	if d.Scope != nil {
		if err := d.Scope.Validate(); err != nil {
			return fmt.Errorf("scope: %w", err)
		}
	}
	return nil
}

// String renders a compact, stable identity used in verdict reasons
func (d Descriptor) String() string {
	var s string
	switch d.Kind {
	case DescriptorText:
		flags := "i"
		if d.CaseSensitive {
			flags = ""
		}
		s = fmt.Sprintf("text(/%s/%s)", d.Pattern, flags)
	case DescriptorAttribute:
		el := d.Element
		if el == "" {
			el = "*"
		}
		s = fmt.Sprintf("attr(%s[%s*=%q])", el, d.Attribute, d.Pattern)
	case DescriptorCSS:
		s = fmt.Sprintf("css(%s)", d.Pattern)
	case DescriptorComposite:
		parts := make([]string, len(d.Parts))
		for i, p := range d.Parts {
			parts[i] = p.String()
		}
		s = "any(" + strings.Join(parts, " | ") + ")"
	default:
		s = "invalid(" + string(d.Kind) + ")"
	}
	if d.Scope != nil {
		s += " within " + d.Scope.String()
	}
	return s
}
