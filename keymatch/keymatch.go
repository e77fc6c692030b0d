// Package keymatch implements the two lookups the validator needs against
// key material: finding the next DNSKEY that could have produced a given
// RRSIG, and finding the DNSKEY a DS rdataset points at.
package keymatch

import (
	"strings"

	"github.com/miekg/dns"
)

const zoneKeyFlag = 1 << 8 // bit 7 of the Flags field (RFC 4034 §2.1.1)

// isZoneKey reports whether key has the Zone Key flag set.
func isZoneKey(key *dns.DNSKEY) bool {
	return key.Flags&zoneKeyFlag != 0
}

// NextDNSKey iterates keyset looking for a key matching rrsig's algorithm,
// key tag, and signer name, that is also flagged as a zone key. previous, if
// non-nil, causes the scan to resume after the last key tried: every key up
// to and including previous is skipped. This mirrors spec.md §4.C's
// resumable "get_dst_key" contract, since more than one DNSKEY can share an
// algorithm/key-tag/owner combination (RFC 4035 §5.3.1) and the caller may
// need to retry with the next candidate after a failed verification.
func NextDNSKey(rrsig *dns.RRSIG, keyset []*dns.DNSKEY, previous *dns.DNSKEY) *dns.DNSKEY {
	skipping := previous != nil
	for _, key := range keyset {
		if skipping {
			if key == previous {
				skipping = false
			}
			continue
		}
		if matchesSignature(key, rrsig) {
			return key
		}
	}
	return nil
}

func matchesSignature(key *dns.DNSKEY, rrsig *dns.RRSIG) bool {
	return key.Algorithm == rrsig.Algorithm &&
		key.KeyTag() == rrsig.KeyTag &&
		dns.CanonicalName(key.Header().Name) == dns.CanonicalName(rrsig.SignerName) &&
		isZoneKey(key)
}

// KeyFromDS finds the DNSKEY in keyset whose computed digest matches one of
// the DS records in dsset. When preferStrongDigest is true and a DS record
// for the same (algorithm, key tag) pair exists with both SHA-1 and a
// stronger digest (SHA-256/SHA-384), the SHA-1 record is ignored: this
// mirrors spec.md §4.C/§4.F's digest-preference rule, and RFC 4509 §3's
// requirement that validators not fall back to a weaker digest just because
// it appears first.
func KeyFromDS(dsset []*dns.DS, keyset []*dns.DNSKEY, preferStrongDigest bool) *dns.DNSKEY {
	candidates := dsset
	if preferStrongDigest {
		candidates = filterWeakerDigests(dsset)
	}

	for _, ds := range candidates {
		for _, key := range keyset {
			if ds.Algorithm != key.Algorithm || ds.KeyTag != key.KeyTag() {
				continue
			}
			computed := key.ToDS(ds.DigestType)
			if computed == nil {
				continue
			}
			if strings.EqualFold(computed.Digest, ds.Digest) {
				return key
			}
		}
	}
	return nil
}

// SupportedDigest reports whether ds has a digest type this validator is
// able to verify, as judged purely by whether computing a digest of that
// type is possible (delegated to github.com/miekg/dns's ToDS, which returns
// nil for digest types it cannot compute). Resolver-level policy
// (vconfig.Policy.DSDigestSupported) can additionally disable a digest type
// that is mechanically computable but administratively disallowed.
func SupportedDigest(ds *dns.DS, key *dns.DNSKEY) bool {
	return key.ToDS(ds.DigestType) != nil
}

// filterWeakerDigests drops SHA-1 (digest type 1) DS records when a
// stronger digest (SHA-256 = 2, SHA-384 = 4) exists for the same
// (algorithm, key tag) pair.
func filterWeakerDigests(dsset []*dns.DS) []*dns.DS {
	hasStrong := make(map[[2]any]bool, len(dsset))
	for _, ds := range dsset {
		if ds.DigestType == dns.SHA256 || ds.DigestType == dns.SHA384 {
			hasStrong[[2]any{ds.Algorithm, ds.KeyTag}] = true
		}
	}

	out := make([]*dns.DS, 0, len(dsset))
	for _, ds := range dsset {
		if ds.DigestType == dns.SHA1 && hasStrong[[2]any{ds.Algorithm, ds.KeyTag}] {
			continue
		}
		out = append(out, ds)
	}
	return out
}
