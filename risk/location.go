package risk

import (
	"context"
	"fmt"
	"net/netip"
	"strings"
)

// LocationClassifier flags addresses from suspicious networks. Geolocation
// providers plug in here.
type LocationClassifier interface {
	Suspicious(ctx context.Context, ip string) bool
}

// DefaultSuspiciousRanges are the placeholder ranges used when none are configured.
var DefaultSuspiciousRanges = []string{"192.168.1.0/24", "10.0.0.0/8"}

// CIDRClassifier flags addresses inside any configured prefix.
type CIDRClassifier struct {
	prefixes []netip.Prefix
}

// NewCIDRClassifier parses ranges in CIDR notation.
func NewCIDRClassifier(ranges ...string) (*CIDRClassifier, error) {
	c := &CIDRClassifier{prefixes: make([]netip.Prefix, 0, len(ranges))}
	for _, r := range ranges {
		p, err := netip.ParsePrefix(strings.TrimSpace(r))
		if err != nil {
			return nil, fmt.Errorf("risk: invalid range %q: %w", r, err)
		}
		c.prefixes = append(c.prefixes, p.Masked())
	}
	return c, nil
}

// Suspicious implements LocationClassifier. Unparseable addresses are not flagged.
func (c *CIDRClassifier) Suspicious(_ context.Context, ip string) bool {
	if c == nil {
		return false
	}
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range c.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
