package urlutil

import (
	"fmt"
	"net"
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/idna"
)

// Normalize returns the deduplication key for a URL: lowercase scheme and
// host (IDN hosts converted to punycode), default ports and userinfo
// dropped, path cleaned with the trailing slash removed, fragment and query
// stripped. Two URLs that normalize equally are the same candidate page.
func Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("normalize: empty url")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("normalize %q: %w", raw, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("normalize %q: missing host", raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)

	host := strings.ToLower(u.Hostname())
	if puny, err := idna.Lookup.ToASCII(host); err == nil {
		host = puny
	}

	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") || port == "" {
		u.Host = host
	} else {
		u.Host = net.JoinHostPort(host, port)
	}

	u.User = nil
	u.Fragment = ""
	u.RawQuery = ""

	cleanPath := path.Clean(u.Path)
	if cleanPath == "." || cleanPath == "/" {
		cleanPath = ""
	}
	u.Path = strings.TrimRight(cleanPath, "/")

	return u.String(), nil
}

// Clean prepares user-submitted input for scanning: trims whitespace,
// defaults the scheme to https and drops any fragment. Unlike Normalize it
// keeps the query string, since it addresses a concrete page to fetch.
func Clean(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}
	frag, _, _ := strings.Cut(raw, "#")
	return frag
}

// SLD extracts the second-level domain: "omv" from "www.omv.at" or
// "investors.omv.com". Used for the same-brand check, which deliberately
// ignores the TLD so omv.at and omv.com count as one brand.
func SLD(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	parts := strings.Split(host, ".")
	if len(parts) >= 2 {
		return parts[len(parts)-2]
	}
	return host
}

// SameBrand reports whether two URLs belong to the same brand domain.
func SameBrand(a, b string) bool {
	sa, sb := SLD(a), SLD(b)
	return sa != "" && sa == sb
}

// SameHost reports whether two URLs share an exact hostname.
func SameHost(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	return ua.Hostname() != "" && strings.EqualFold(ua.Hostname(), ub.Hostname())
}

// Resolve resolves href (possibly relative) against base and returns an
// absolute URL string.
func Resolve(base, href string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("resolve: bad base %q: %w", base, err)
	}
	h, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("resolve: bad href %q: %w", href, err)
	}
	return b.ResolveReference(h).String(), nil
}

// PathDepth counts path segments: "/" is 0, "/about" is 1, "/a/b/c" is 3.
func PathDepth(raw string) int {
	u, err := url.Parse(raw)
	if err != nil {
		return 0
	}
	p := strings.Trim(u.Path, "/")
	if p == "" {
		return 0
	}
	return strings.Count(p, "/") + 1
}
