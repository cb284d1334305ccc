package scrape

import (
	"net/url"
	"strings"
)

// trackingParams are dropped during canonicalization, plus any utm_* key.
var trackingParams = map[string]bool{
	"gclid":   true,
	"fbclid":  true,
	"srsltid": true,
	"ref":     true,
	"v":       true,
}

// Canonicalize normalizes a URL into the stable identity used for policy
// checks and deduplication. The operation is idempotent: canonicalizing a
// canonical URL returns it unchanged.
func Canonicalize(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", NewValidationError("invalid url %q: %v", rawURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", NewValidationError("url %q must be absolute with scheme and host", rawURL)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	host = strings.TrimPrefix(host, "www.")
	if u.Scheme == "http" {
		host = strings.TrimSuffix(host, ":80")
	}
	if u.Scheme == "https" {
		host = strings.TrimSuffix(host, ":443")
	}
	u.Host = host

	switch u.Path {
	case "", "/":
		u.Path = "/"
	default:
		u.Path = strings.TrimSuffix(u.Path, "/")
	}

	q := u.Query()
	for key := range q {
		if trackingParams[key] || strings.HasPrefix(key, "utm_") {
			q.Del(key)
		}
	}
	// Encode sorts keys lexicographically.
	u.RawQuery = q.Encode()
	u.Fragment = ""

	return u.String(), nil
}

// ExtractDomain returns the normalized host: lowercase, no www prefix, no port.
func ExtractDomain(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", NewValidationError("invalid url %q: %v", rawURL, err)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", NewValidationError("url %q has no host", rawURL)
	}
	return strings.TrimPrefix(host, "www."), nil
}

// DomainPolicy decides which domains the pipeline may scrape.
type DomainPolicy struct {
	enforce bool
	entries []string
}

// NewDomainPolicy builds a policy. With enforce false every domain passes.
func NewDomainPolicy(enforce bool, allowlist []string) *DomainPolicy {
	entries := make([]string, 0, len(allowlist))
	for _, raw := range allowlist {
		entry := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(raw)), "www.")
		if entry != "" {
			entries = append(entries, entry)
		}
	}
	return &DomainPolicy{enforce: enforce, entries: entries}
}

// Allowed reports whether the URL's domain equals, or is a subdomain of, an
// allowlisted entry.
func (p *DomainPolicy) Allowed(rawURL string) bool {
	if !p.enforce {
		return true
	}
	domain, err := ExtractDomain(rawURL)
	if err != nil {
		return false
	}
	for _, entry := range p.entries {
		if domain == entry || strings.HasSuffix(domain, "."+entry) {
			return true
		}
	}
	return false
}

// Validate returns a ValidationError when the URL is not allowed.
func (p *DomainPolicy) Validate(rawURL string) error {
	if !p.Allowed(rawURL) {
		return NewValidationError("domain of %q is not allowlisted", rawURL)
	}
	return nil
}
