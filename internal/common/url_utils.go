package common

import (
	"fmt"
	"net/url"
	"strings"
)

// ResolveTargetURL joins a scenario path onto the base URL.
// Absolute http(s) paths are returned unchanged so cross-domain targets work.
func ResolveTargetURL(baseURL, path string) (string, error) {
	if path == "" {
		path = "/"
	}

	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("failed to parse path %q: %w", path, err)
	}
	if ref.IsAbs() {
		if ref.Scheme != "http" && ref.Scheme != "https" {
			return "", fmt.Errorf("unsupported scheme %q in %s", ref.Scheme, path)
		}
		return ref.String(), nil
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse base URL %q: %w", baseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("base URL %q must be absolute", baseURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	return base.ResolveReference(&url.URL{Path: strings.TrimPrefix(ref.Path, "/"), RawQuery: ref.RawQuery, Fragment: ref.Fragment}).String(), nil
}

// IsSecureURL reports whether raw uses https
func IsSecureURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && strings.EqualFold(u.Scheme, "https")
}

// SameHost reports whether two URLs share a host, ignoring a leading www.
func SameHost(a, b string) bool {
	ua, errA := url.Parse(a)
	ub, errB := url.Parse(b)
	if errA != nil || errB != nil {
		return false
	}
	return strings.TrimPrefix(strings.ToLower(ua.Hostname()), "www.") == strings.TrimPrefix(strings.ToLower(ub.Hostname()), "www.")
}
