// Package access decides whether a request may download or upload files. Requests from allowed networks pass
// without credentials; all others need HTTP Basic credentials matching the account table.
package access

import (
	"fmt"
	"net/netip"
	"strings"

	pe "dogbox.io/dogbox/errors"
)

// Range is a network address range parsed from CIDR text
type Range struct {
	prefix netip.Prefix
}

// ParseRange parses s as CIDR, e.g. "10.0.0.0/8" or "fd00::/8"
func ParseRange(s string) (Range, error) {
	p, err := netip.ParsePrefix(strings.TrimSpace(s))
	if err != nil {
		return Range{}, pe.NewConfig(fmt.Sprintf("invalid CIDR: %s", s)).WithCause(err)
	}
	return Range{prefix: p.Masked()}, nil
}

// Contains reports whether addr lies in r. Addresses of the other family never match.
func (r Range) Contains(addr netip.Addr) bool {
	return r.prefix.Contains(addr)
}

func (r Range) String() string {
	return r.prefix.String()
}

// ParseRanges parses every entry of list; a single invalid entry fails the whole list. A nil list stays nil,
// which marks the list as absent.
func ParseRanges(list []string) ([]Range, error) {
	if list == nil {
		return nil, nil
	}
	rs := make([]Range, 0, len(list))
	for _, s := range list {
		r, err := ParseRange(s)
		if err != nil {
			return nil, err
		}
		rs = append(rs, r)
	}
	return rs, nil
}

// NetRules holds the networks allowed to skip authentication. Deny takes precedence over allow; with no
// allow list every address not denied is allowed.
type NetRules struct {
	Allow []Range // nil if absent
	Deny  []Range // nil if absent
}

// Allowed reports whether the textual address addr passes the rules. Unparsable addresses never pass.
func (n NetRules) Allowed(addr string) bool {
	ip, err := netip.ParseAddr(strings.TrimSpace(addr))
	if err != nil {
		return false
	}
	// match "::ffff:10.0.0.1" against IPv4 ranges; zones never take part in matching
	ip = ip.Unmap().WithZone("")
	if n.Deny != nil && matchAny(n.Deny, ip) {
		return false
	}
	if n.Allow != nil {
		return matchAny(n.Allow, ip)
	}
	return true
}

func matchAny(rs []Range, ip netip.Addr) bool {
	for _, r := range rs {
		if r.Contains(ip) {
			return true
		}
	}
	return false
}
