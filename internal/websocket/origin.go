package websocket

import (
	"net/url"
	"strings"
)

// OriginPolicy accepts loopback origins and the configured host:port
// entries. A request without an Origin header comes from a native client,
// not a browser, and is accepted.
type OriginPolicy struct {
	allowed map[string]struct{}
}

// NewOriginPolicy builds a policy from host:port or URL entries.
func NewOriginPolicy(allowed []string) *OriginPolicy {
	p := &OriginPolicy{allowed: make(map[string]struct{}, len(allowed))}
	for _, a := range allowed {
		a = strings.TrimSpace(a)
		if u, err := url.Parse(a); err == nil && u.Host != "" {
			a = u.Host
		}
		if a != "" {
			p.allowed[strings.ToLower(a)] = struct{}{}
		}
	}
	return p
}

// IsAllowedOrigin implements OriginValidator.
func (p *OriginPolicy) IsAllowedOrigin(origin string) bool {
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}

	switch strings.ToLower(u.Hostname()) {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	_, ok := p.allowed[strings.ToLower(u.Host)]
	return ok
}
