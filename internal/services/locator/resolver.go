// -----------------------------------------------------------------------
// Locator Resolver - descriptors to element handles, tolerant of absence
// -----------------------------------------------------------------------

package locator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/siteprobe/internal/interfaces"
	"github.com/ternarybob/siteprobe/internal/models"
)

// Resolver turns a Descriptor into element handles. An absent element is an
// empty result, only driver failures are errors.
type Resolver struct {
	logger arbor.ILogger
}

// NewResolver creates a resolver
func NewResolver(logger arbor.ILogger) *Resolver {
	return &Resolver{logger: logger}
}

// Resolve returns the elements matching d, within scope when scope is non-nil.
// Results are in document order per primitive query and deduplicated.
func (r *Resolver) Resolve(ctx context.Context, page interfaces.Page, d models.Descriptor, scope *interfaces.Element) ([]interfaces.Element, error) {
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("invalid descriptor %s: %w", d, err)
	}
	return r.resolve(ctx, page, d, scope)
}

func (r *Resolver) resolve(ctx context.Context, page interfaces.Page, d models.Descriptor, scope *interfaces.Element) ([]interfaces.Element, error) {
	if d.Scope != nil {
		return r.resolveScoped(ctx, page, d, scope)
	}

	if d.Kind == models.DescriptorComposite {
		set := newElementSet()
		for _, part := range d.Parts {
			els, err := r.resolve(ctx, page, part, scope)
			if err != nil {
				return nil, err
			}
			set.add(els...)
		}
		return set.elements, nil
	}

	q, err := Compile(d)
	if err != nil {
		return nil, err
	}
	els, err := page.QueryAll(ctx, q, scope)
	if err != nil {
		if errors.Is(err, interfaces.ErrElementDetached) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query %s: %w", d, err)
	}
	return els, nil
}

// resolveScoped resolves the scope first, then d inside every scope match
func (r *Resolver) resolveScoped(ctx context.Context, page interfaces.Page, d models.Descriptor, scope *interfaces.Element) ([]interfaces.Element, error) {
	containers, err := r.resolve(ctx, page, *d.Scope, scope)
	if err != nil {
		return nil, err
	}

	inner := d
	inner.Scope = nil

	set := newElementSet()
	for i := range containers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		els, err := r.resolve(ctx, page, inner, &containers[i])
		if err != nil {
			return nil, err
		}
		set.add(els...)
	}

	r.logger.Debug().
		Str("descriptor", d.String()).
		Int("scopes", len(containers)).
		Int("matches", len(set.elements)).
		Msg("Resolved scoped descriptor")
	return set.elements, nil
}

// Compile turns a primitive descriptor into a driver query
func Compile(d models.Descriptor) (interfaces.Query, error) {
	switch d.Kind {
	case models.DescriptorText:
		return interfaces.Query{Kind: interfaces.QueryText, Pattern: d.Pattern, CaseSensitive: d.CaseSensitive}, nil
	case models.DescriptorAttribute:
		return interfaces.Query{Kind: interfaces.QueryCSS, Selector: AttributeSelector(d.Element, d.Attribute, d.Pattern)}, nil
	case models.DescriptorCSS:
		return interfaces.Query{Kind: interfaces.QueryCSS, Selector: d.Pattern}, nil
	default:
		return interfaces.Query{}, fmt.Errorf("descriptor kind %q is not a primitive query", d.Kind)
	}
}

// AttributeSelector builds element[attribute*="substring"] with the value escaped
func AttributeSelector(element, attribute, substring string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\a `).Replace(substring)
	return fmt.Sprintf(`%s[%s*="%s"]`, element, attribute, escaped)
}

type elementSet struct {
	seen     map[string]bool
	elements []interfaces.Element
}

func newElementSet() *elementSet {
	return &elementSet{seen: make(map[string]bool)}
}

func (s *elementSet) add(els ...interfaces.Element) {
	for _, el := range els {
		if s.seen[el.Ref] {
			continue
		}
		s.seen[el.Ref] = true
		s.elements = append(s.elements, el)
	}
}
