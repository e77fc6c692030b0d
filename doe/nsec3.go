package doe

import (
	"slices"

	"github.com/miekg/dns"
)

// Nsec3Result is the outcome of classifying a candidate qname/qtype against
// a validated NSEC3 rdataset (spec.md §4.D).
type Nsec3Result struct {
	Exists  bool
	Data    bool
	OptOut  bool
	Unknown bool

	SetClosest bool
	SetNearest bool
	Closest    string
	Nearest    string
}

// FilterKnown drops NSEC3 records using a hash algorithm or flag value this
// validator doesn't implement, per spec.md §4.D's UNKNOWN HASH case: such
// records can still contribute to an "insecure" verdict, but may not be
// used as a NODATA/NOQNAME proof.
func FilterKnown(rrset []*dns.NSEC3) (known []*dns.NSEC3, sawUnknown bool) {
	known = make([]*dns.NSEC3, 0, len(rrset))
	for _, r := range rrset {
		if r.Hash != dns.SHA1 || r.Flags > 1 {
			sawUnknown = true
			continue
		}
		known = append(known, r)
	}
	return known, sawUnknown
}

// Nsec3NoexistNodata classifies qname/qtype against rrset, which must
// already be filtered to the zone's records and validated to secure trust.
// zone scopes the closest-encloser walk to records plausibly belonging to
// it.
func Nsec3NoexistNodata(qtype uint16, qname string, rrset []*dns.NSEC3, zone string) Nsec3Result {
	known, unknown := FilterKnown(rrset)

	var result Nsec3Result
	result.Unknown = unknown

	qname = dns.CanonicalName(qname)

	for _, nsec3 := range known {
		if nsec3.Match(qname) {
			result.Exists = true
			result.Data = hasType(nsec3.TypeBitMap, qtype)
			return result
		}
	}

	closest, nearest, ok := FindClosestEncloser(known, zone, qname)
	if !ok {
		return result
	}

	result.SetClosest = true
	result.Closest = closest
	result.SetNearest = true
	result.Nearest = nearest

	optOut, _ := Nsec3CoversName(known, nearest)
	result.OptOut = optOut

	return result
}

// Nsec3TypeBitmapContains reports whether some record in rrset matches name
// and whether its type bitmap includes any of types.
func Nsec3TypeBitmapContains(rrset []*dns.NSEC3, name string, types []uint16) (nameSeen, typeSeen bool) {
	for _, nsec3 := range rrset {
		if !nsec3.Match(name) {
			continue
		}
		nameSeen = true
		for _, t := range types {
			if hasType(nsec3.TypeBitMap, t) {
				return nameSeen, true
			}
		}
	}
	return nameSeen, false
}

// Nsec3ClosestEncloserProof performs the full RFC 5155 §7.2.1 closest
// encloser proof for qname: it must have a closest encloser within zone, an
// NSEC3 covering its "next closer" name (optionally with opt-out), and an
// NSEC3 covering the synthesized wildcard immediately below the closest
// encloser.
func Nsec3ClosestEncloserProof(rrset []*dns.NSEC3, zone, qname string) (optOut, closestEncloserProof, nextCloserProof, wildcardProof bool, closest string) {
	closest, nextCloser, ok := FindClosestEncloser(rrset, zone, qname)
	if !ok {
		return
	}
	closestEncloserProof = true
	wildcardProof = Nsec3WildcardCovered(rrset, closest)
	optOut, nextCloserProof = Nsec3CoversName(rrset, nextCloser)
	return
}

// Nsec3ExpandedWildcardProof proves a wildcard-synthesized answer was
// legitimate: the immediate ancestor of the synthesizing wildcard is the
// true closest encloser of sigOwner (derived from the RRSIG's Labels
// field), and its next-closer name is covered (qname itself doesn't exist),
// per RFC 5155 §7.2.6.
func Nsec3ExpandedWildcardProof(rrset []*dns.NSEC3, sigOwner string, sigLabels uint8) bool {
	idx := dns.Split(sigOwner)
	ceIndex := len(idx) - int(sigLabels)
	if ceIndex <= 0 || ceIndex > len(idx) {
		return false
	}
	closestEncloser := sigOwner[idx[ceIndex]:]
	nextCloser := sigOwner[idx[ceIndex-1]:]

	// wildcardProof true would mean an NSEC3 proves the wildcard doesn't
	// exist - but it does, it's what answered the query. We need that to
	// be false, and the next-closer name (the real qname's ancestor) to be
	// covered instead, proving qname itself is absent.
	wildcardProof := Nsec3WildcardCovered(rrset, closestEncloser)
	_, nextCloserProof := Nsec3CoversName(rrset, nextCloser)

	return !wildcardProof && nextCloserProof
}

// Nsec3CoversName reports whether some record in rrset covers name (proves name
// itself does not exist), and whether any covering record has the opt-out
// flag set.
func Nsec3CoversName(rrset []*dns.NSEC3, name string) (optOut, covered bool) {
	for _, nsec3 := range rrset {
		if nsec3.Match(name) {
			return false, false
		}
		if nsec3.Cover(name) {
			covered = true
			if nsec3.Flags == 1 {
				optOut = true
			}
		}
	}
	return optOut, covered
}

// Nsec3WildcardCovered reports whether the wildcard "*.closestEncloser" is
// covered by rrset (it must not be matched — a match would mean the
// wildcard itself exists and answers the query).
func Nsec3WildcardCovered(rrset []*dns.NSEC3, closestEncloser string) bool {
	wildcard := "*." + closestEncloser
	covered := false
	for _, nsec3 := range rrset {
		if nsec3.Match(wildcard) {
			return false
		}
		if nsec3.Cover(wildcard) {
			covered = true
		}
	}
	return covered
}

// FindClosestEncloser implements the RFC 5155 §7.2.1 closest-encloser walk:
// starting from qname and removing labels one at a time, find the longest
// ancestor name whose hash matches an owner name in rrset. Returns the
// closest encloser and the "next closer name" (the one label below it, on
// the path to qname), or ok=false if no ancestor within zone matched.
func FindClosestEncloser(rrset []*dns.NSEC3, zone, qname string) (closest, nextCloser string, ok bool) {
	type candidate struct{ ce, ncn string }

	var best *candidate

	for _, nsec3 := range rrset {
		last := 0
		for _, idx := range dns.Split(qname) {
			name := qname[idx:]

			if !dns.IsSubDomain(zone, name) {
				break
			}

			if nsec3.Match(name) {
				if slices.Contains(nsec3.TypeBitMap, dns.TypeDNAME) {
					last = idx
					continue
				}
				if slices.Contains(nsec3.TypeBitMap, dns.TypeNS) && !slices.Contains(nsec3.TypeBitMap, dns.TypeSOA) {
					last = idx
					continue
				}

				c := candidate{ce: name, ncn: qname[last:]}
				if best == nil || len(c.ce) > len(best.ce) {
					best = &c
				}
				break
			}
			last = idx
		}
	}

	if best == nil {
		return "", "", false
	}
	return best.ce, best.ncn, true
}
