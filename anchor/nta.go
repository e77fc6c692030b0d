package anchor

import (
	"strings"
	"time"

	"github.com/miekg/dns"
)

// NegativeTrustAnchors is the BIND9-derived (dns_view_getntatable /
// dns_view_saveNTA) policy surface from SPEC_FULL.md's SUPPLEMENTED
// FEATURES #1: a set of zones for which validation is bypassed until the
// attached expiry, consulted unless the caller's request set options.NONTA.
type NegativeTrustAnchors map[string]time.Time

// NewNegativeTrustAnchors builds a table from a zone->expiry map, lower-
// casing and fully-qualifying each name.
func NewNegativeTrustAnchors(entries map[string]time.Time) NegativeTrustAnchors {
	nta := make(NegativeTrustAnchors, len(entries))
	for name, expiry := range entries {
		nta[normalizeNTAName(name)] = expiry
	}
	return nta
}

// Covers reports whether name falls under a live (unexpired) negative
// trust anchor at now.
func (nta NegativeTrustAnchors) Covers(name string, now time.Time) bool {
	name = normalizeNTAName(name)
	for zone, expiry := range nta {
		if now.Before(expiry) && dns.IsSubDomain(zone, name) {
			return true
		}
	}
	return false
}

func normalizeNTAName(name string) string {
	name = strings.ToLower(name)
	if !strings.HasSuffix(name, ".") {
		name += "."
	}
	return name
}
