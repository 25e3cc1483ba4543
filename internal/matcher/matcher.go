// Package matcher normalizes URLs and domain strings and decides
// containment (subdomain-of-parent) relationships. Pure functions, no
// dependencies.
package matcher

import (
	"net/url"
	"strings"
)

// internalPrefixes are URL schemes the blocker never acts on: browser
// pages, extension pages, local files and pseudo-URLs.
var internalPrefixes = []string{
	"chrome://",
	"chrome-extension://",
	"moz-extension://",
	"edge://",
	"about:",
	"file://",
	"data:",
	"javascript:",
	"blob:",
	"view-source:",
	"devtools://",
}

// Normalize accepts a full URL or a bare domain string and returns the
// canonical domain: lowercase host, single leading "www." stripped, no
// scheme, port, path, query or fragment. Returns "" on unparseable input;
// it never panics.
func Normalize(input string) string {
	s := strings.TrimSpace(input)
	if s == "" {
		return ""
	}

	// Bare domains have no scheme; prepend one so url.Parse yields a host.
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return ""
	}

	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	return host
}

// IsBlockable reports whether a URL is even a candidate for blocking.
// Internal and non-web schemes are never blockable. Anything that cannot
// be classified is treated as not blockable: parse failure means "cannot
// determine, do not block".
func IsBlockable(rawURL string) bool {
	s := strings.ToLower(strings.TrimSpace(rawURL))
	if s == "" {
		return false
	}
	for _, prefix := range internalPrefixes {
		if strings.HasPrefix(s, prefix) {
			return false
		}
	}
	return true
}

// Matches reports whether candidate is covered by blocked: either the same
// domain or a subdomain of it. This is containment, not substring -
// "notexample.com" does not match "example.com". It is asymmetric: a
// parent is never matched by its own subdomain being in the block list.
func Matches(candidate, blocked string) bool {
	if candidate == "" || blocked == "" {
		return false
	}
	if candidate == blocked {
		return true
	}
	return strings.HasSuffix(candidate, "."+blocked)
}
