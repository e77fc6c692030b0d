// Package doe implements the denial-of-existence reasoning over NSEC and
// NSEC3 rdatasets that the validator needs for NODATA, NOQNAME, NOWILDCARD,
// closest-encloser, opt-out, and unknown-hash proofs (spec.md §4.D).
package doe

import (
	"github.com/miekg/dns"
)

// NsecResult is the outcome of comparing a candidate qname/qtype against an
// NSEC rdataset.
type NsecResult struct {
	// Exists reports whether qname itself was proven to exist by the NSEC
	// chain: true only when some record's owner name equals qname. It is
	// false both when a record covers qname and when nothing speaks to it;
	// NsecQNameCovered tells those two apart.
	Exists bool
	// Data reports whether qtype is present in the matched record's type
	// bitmap. Only meaningful when Exists is true.
	Data bool
	// Wildcard names the wildcard a covering proof points at. NsecNoexistNodata
	// never sets it, so it is always empty; wildcard coverage is checked
	// separately by NsecWildcardCovered.
	Wildcard string
}

// NsecNoexistNodata classifies qname/qtype against a validated NSEC
// rdataset for the zone owning it (spec.md §4.D).
func NsecNoexistNodata(qtype uint16, qname string, rrset []*dns.NSEC) NsecResult {
	qname = dns.CanonicalName(qname)

	for _, nsec := range rrset {
		owner := dns.CanonicalName(nsec.Header().Name)
		if owner == qname {
			return NsecResult{Exists: true, Data: hasType(nsec.TypeBitMap, qtype)}
		}
	}

	// qname doesn't match any owner directly; is it covered by a range?
	for _, nsec := range rrset {
		if covers(nsec, qname) {
			return NsecResult{Exists: false}
		}
	}

	return NsecResult{Exists: false}
}

// covers reports whether qname falls strictly between nsec's owner name and
// its Next Domain Name, wrapping at the zone apex (the owner of the last
// NSEC record in a zone points back to the apex).
func covers(nsec *dns.NSEC, qname string) bool {
	owner := dns.CanonicalName(nsec.Header().Name)
	next := dns.CanonicalName(nsec.NextDomain)

	if canonicalLess(owner, next) {
		return canonicalLess(owner, qname) && canonicalLess(qname, next)
	}
	// The NSEC wraps around the zone: owner > next means next is the apex.
	return canonicalLess(owner, qname) || canonicalLess(qname, next)
}

func hasType(bitmap []uint16, t uint16) bool {
	for _, b := range bitmap {
		if b == t {
			return true
		}
	}
	return false
}

// canonicalLess reports whether a sorts strictly before b under RFC 4034
// §6.1 canonical DNS name ordering.
func canonicalLess(a, b string) bool {
	return canonicalCompare(a, b) < 0
}

func canonicalCompare(a, b string) int {
	la := dns.SplitDomainName(dns.CanonicalName(a))
	lb := dns.SplitDomainName(dns.CanonicalName(b))

	// Compare from the rightmost (most-significant) label inward.
	reverse(la)
	reverse(lb)

	n := len(la)
	if len(lb) < n {
		n = len(lb)
	}
	for i := 0; i < n; i++ {
		if la[i] != lb[i] {
			if la[i] < lb[i] {
				return -1
			}
			return 1
		}
	}
	return len(la) - len(lb)
}

func reverse(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// WildcardName replaces the first label of name with "*".
func WildcardName(name string) string {
	idx := dns.Split(name)
	if len(idx) < 2 {
		return "*."
	}
	return "*." + name[idx[1]:]
}
