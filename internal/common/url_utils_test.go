package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveTargetURL(t *testing.T) {
	tests := []struct {
		base, path, want string
	}{
		{"https://rebet.app", "/", "https://rebet.app/"},
		{"https://rebet.app", "", "https://rebet.app/"},
		{"https://rebet.app", "/contact-us", "https://rebet.app/contact-us"},
		{"https://rebet.app/", "faq", "https://rebet.app/faq"},
		{"https://example.test/site", "/terms-of-use", "https://example.test/site/terms-of-use"},
		{"https://rebet.app", "https://play.rebet.app/", "https://play.rebet.app/"},
		{"https://rebet.app", "/blog?page=2", "https://rebet.app/blog?page=2"},
	}
	for _, tt := range tests {
		got, err := ResolveTargetURL(tt.base, tt.path)
		require.NoError(t, err, "%s + %s", tt.base, tt.path)
		assert.Equal(t, tt.want, got)
	}

	_, err := ResolveTargetURL("rebet.app", "/")
	assert.Error(t, err)
	_, err = ResolveTargetURL("https://rebet.app", "ftp://files.example/")
	assert.Error(t, err)
}

func TestSameHostAndSecure(t *testing.T) {
	assert.True(t, SameHost("https://www.rebet.app/a", "https://rebet.app/b"))
	assert.False(t, SameHost("https://play.rebet.app/", "https://rebet.app/"))
	assert.True(t, IsSecureURL("https://rebet.app"))
	assert.False(t, IsSecureURL("http://rebet.app"))
}
