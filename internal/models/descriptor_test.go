package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescriptor_Validate(t *testing.T) {
	tests := []struct {
		name    string
		d       Descriptor
		wantErr bool
	}{
		{name: "text", d: Text("rebet")},
		{name: "text with bad regex", d: Text("(unclosed"), wantErr: true},
		{name: "empty text", d: Text(""), wantErr: true},
		{name: "inline flags", d: Text("(?i)rebet"), wantErr: true},
		{name: "scoped flags", d: Text("play (?s:now)"), wantErr: true},
		{name: "python named group", d: Text("(?P<brand>rebet)"), wantErr: true},
		{name: "non-capturing group", d: Text("(?:play|bet) now")},
		{name: "named group", d: Text("(?<brand>rebet)")},
		{name: "escaped paren", d: Text(`\(?rebet\)?`)},
		{name: "paren in class", d: Text("[(?]rebet")},
		{name: "attribute", d: AttrOn("a", "href", "apps.apple.com")},
		{name: "attribute without name", d: Attr("", "x"), wantErr: true},
		{name: "attribute without substring", d: Attr("href", ""), wantErr: true},
		{name: "css", d: CSS("nav a, header a")},
		{name: "blank css", d: CSS("   "), wantErr: true},
		{name: "composite", d: AnyOf(CSS("footer"), Text("contact"))},
		{name: "empty composite", d: AnyOf(), wantErr: true},
		{name: "composite with bad part", d: AnyOf(CSS("a"), Text("[")), wantErr: true},
		{name: "scoped", d: CSS("input").Within(CSS("form"))},
		{name: "bad scope", d: CSS("input").Within(Text("(")), wantErr: true},
		{name: "unknown kind", d: Descriptor{Kind: "xpath", Pattern: "//a"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.d.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDescriptor_WithinDoesNotShareState(t *testing.T) {
	form := CSS("form")
	base := AnyOf(CSS("input"), CSS("select"))

	scoped := base.Within(form)
	require.NotNil(t, scoped.Scope)
	assert.Nil(t, base.Scope, "receiver must stay unscoped")

	scoped.Parts[0].Pattern = "textarea"
	assert.Equal(t, "input", base.Parts[0].Pattern, "parts must be copied")

	scoped.Scope.Pattern = "section"
	assert.Equal(t, "form", form.Pattern)
}

func TestDescriptor_String(t *testing.T) {
	assert.Equal(t, "text(/rebet/i)", Text("rebet").String())
	assert.Equal(t, "text(/Rebet/)", TextCase("Rebet").String())
	assert.Equal(t, `attr(a[href*="apps.apple.com"])`, AttrOn("a", "href", "apps.apple.com").String())
	assert.Equal(t, `attr(*[class*="game"])`, Attr("class", "game").String())
	assert.Equal(t, "any(css(footer) | text(/contact/i))", AnyOf(CSS("footer"), Text("contact")).String())
	assert.Equal(t, "css(input) within css(form)", CSS("input").Within(CSS("form")).String())
}

func TestMatchedFor(t *testing.T) {
	assert.True(t, MatchedFor(1, 1, false, false))
	assert.False(t, MatchedFor(0, 1, false, false))
	assert.True(t, MatchedFor(0, 0, false, false))
	assert.False(t, MatchedFor(3, 1, true, false))
	assert.True(t, MatchedFor(3, 1, true, true))
}

func TestProbeResult_Weight(t *testing.T) {
	assert.Equal(t, 4, ProbeResult{Count: 4}.Weight())
	assert.Equal(t, 1, ProbeResult{BooleanOnly: true, Count: 1, Matched: true}.Weight())
	assert.Equal(t, 0, ProbeResult{BooleanOnly: true, Count: 0}.Weight())
}
