package security

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// HostAllowlist holds the hosts that are permitted as post-login redirect
// targets. Supports exact hosts and wildcard subdomains ("*.example.com").
// IP addresses are never allowed.
type HostAllowlist struct {
	exact map[string]struct{}
	wild  map[string]struct{}
}

// NewHostAllowlist builds an allowlist from host patterns. Entries are
// normalized to lowercase; empty entries are skipped.
func NewHostAllowlist(hosts []string) (*HostAllowlist, error) {
	h := &HostAllowlist{
		exact: make(map[string]struct{}),
		wild:  make(map[string]struct{}),
	}

	for _, host := range hosts {
		host = strings.ToLower(strings.TrimSpace(host))
		if host == "" {
			continue
		}

		if err := validateHostPattern(host); err != nil {
			return nil, fmt.Errorf("invalid host %q: %w", host, err)
		}

		if base, ok := strings.CutPrefix(host, "*."); ok {
			if base == "" {
				return nil, fmt.Errorf("invalid wildcard host %q: empty base", host)
			}
			h.wild[base] = struct{}{}
		} else {
			h.exact[host] = struct{}{}
		}
	}

	return h, nil
}

// IsAllowed reports whether host matches an exact or wildcard entry.
func (h *HostAllowlist) IsAllowed(host string) bool {
	host = strings.ToLower(strings.TrimSpace(host))
	host = strings.TrimSuffix(host, ".")

	if host == "" {
		return false
	}

	// Raw IPs are rejected even if someone lists one
	if net.ParseIP(host) != nil {
		return false
	}

	if _, ok := h.exact[host]; ok {
		return true
	}

	for base := range h.wild {
		if host == base || strings.HasSuffix(host, "."+base) {
			return true
		}
	}

	return false
}

// SanitizeReturnURL validates and normalizes a client-supplied return URL.
// The URL must be absolute HTTPS on the default port with an allowlisted
// host. The fragment is stripped and an empty path becomes "/". Query
// parameters are preserved as-is; the URL only ever receives a one-time
// exchange code appended by the callback handler, never a token.
func (h *HostAllowlist) SanitizeReturnURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty URL")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}

	if u.Scheme != "https" {
		return "", fmt.Errorf("URL must use HTTPS scheme, got %q", u.Scheme)
	}

	hostname := strings.ToLower(strings.TrimSpace(u.Hostname()))
	hostname = strings.TrimRight(hostname, ".")

	if port := u.Port(); port != "" && port != "443" {
		return "", fmt.Errorf("URL must use default HTTPS port (443), got port %q", port)
	}

	if !h.IsAllowed(hostname) {
		return "", fmt.Errorf("host %q is not allowed", hostname)
	}

	u.Host = hostname
	if u.Path == "" {
		u.Path = "/"
	}
	u.Fragment = ""

	return u.String(), nil
}

func validateHostPattern(host string) error {
	if strings.Contains(host, "://") {
		return fmt.Errorf("must not contain scheme")
	}
	if strings.ContainsAny(host, " \t\n") {
		return fmt.Errorf("must not contain whitespace")
	}

	cleaned := strings.TrimPrefix(host, "*.")
	if strings.Contains(cleaned, ":") {
		return fmt.Errorf("must not contain port")
	}

	return nil
}
