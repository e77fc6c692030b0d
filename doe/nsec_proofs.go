package doe

import "github.com/miekg/dns"

// NsecQNameCovered reports whether some record in rrset covers qname
// (proves qname itself does not exist).
func NsecQNameCovered(rrset []*dns.NSEC, qname string) bool {
	qname = dns.CanonicalName(qname)
	for _, nsec := range rrset {
		if covers(nsec, qname) {
			return true
		}
	}
	return false
}

// NsecWildcardCovered reports whether some record in rrset covers the
// wildcard synthesized from qname's immediate parent (i.e. proves no
// wildcard could have answered for qname either).
func NsecWildcardCovered(rrset []*dns.NSEC, qname string) bool {
	return NsecQNameCovered(rrset, WildcardName(qname))
}

// NsecNoqnameProof performs the combined NOQNAME + NOWILDCARD proof spec.md
// §4.D requires for a full NXDOMAIN denial: qname must be covered, and the
// wildcard immediately below its parent must also be covered.
func NsecNoqnameProof(rrset []*dns.NSEC, qname string) bool {
	return NsecQNameCovered(rrset, qname) && NsecWildcardCovered(rrset, qname)
}

// NsecExpandedWildcardProof proves that qname does not exist, but some
// wildcard still could have synthesized the answer (the NOQNAME half only;
// used when the answer itself came from a wildcard expansion and all that's
// left to prove is that the literal qname is absent).
func NsecExpandedWildcardProof(rrset []*dns.NSEC, qname string) bool {
	return NsecQNameCovered(rrset, qname) && !NsecWildcardCovered(rrset, qname)
}

// NsecTypeBitmapContains reports whether some record in rrset is owned by
// name and whether its type bitmap includes any of types.
func NsecTypeBitmapContains(rrset []*dns.NSEC, name string, types []uint16) (nameSeen, typeSeen bool) {
	name = dns.CanonicalName(name)
	for _, nsec := range rrset {
		if dns.CanonicalName(nsec.Header().Name) != name {
			continue
		}
		nameSeen = true
		for _, t := range types {
			if hasType(nsec.TypeBitMap, t) {
				return nameSeen, true
			}
		}
	}
	return nameSeen, false
}
