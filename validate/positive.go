package validate

import (
	"context"
	"fmt"

	"github.com/miekg/dns"
	"github.com/nsmithuk/dnsvalidate/doe"
	"github.com/nsmithuk/dnsvalidate/keymatch"
	"github.com/nsmithuk/dnsvalidate/sigverify"
	"github.com/nsmithuk/dnsvalidate/trust"
	"github.com/nsmithuk/dnsvalidate/vlog"
)

// sigverifyLogger adapts a *vlog.Logger (which logs plain messages) to the
// printf-style hook sigverify.Verify expects for its accepted-expired event.
func sigverifyLogger(l *vlog.Logger) sigverify.Logger {
	if l == nil {
		return nil
	}
	return l.Infof
}

// Positive implements spec.md §4.E: validate req.RDataset via req.SigRDataset.
// Entry requires both to be present.
func Positive(ctx context.Context, d Deps, req Request) Outcome {
	if req.QType == dns.TypeDNSKEY && selfSigned(req.RDataset, req.SigRDataset) {
		return ZoneKey(ctx, d, req)
	}

	triedVerify := false

	for _, rrsig := range extractRRSIGs(req.SigRDataset) {
		if ctx.Err() != nil {
			return Outcome{Result: Canceled, Err: ctx.Err()}
		}

		if !d.Resolver.AlgorithmSupported(rrsig.Algorithm) {
			continue
		}

		rrset := matchingRRset(req.RDataset, rrsig)
		if len(rrset) == 0 {
			continue
		}

		if err := checkSignerIsAncestor(rrsig, req.Name, req.QType); err != nil {
			continue
		}

		keys, keyLevel, err := getKey(ctx, d, req, dns.CanonicalName(rrsig.SignerName))
		if err != nil || keyLevel == trust.None {
			continue
		}
		if !keyLevel.IsSecure() {
			// A key that is itself not secure cannot raise this RRset past
			// pending; treat as no usable key and move to the next RRSIG.
			continue
		}

		triedVerify = true

		var previous *dns.DNSKEY
		for {
			key := keymatch.NextDNSKey(rrsig, keys, previous)
			if key == nil {
				break
			}
			previous = key

			result := sigverify.Verify(rrset, rrsig, key, d.now(), d.MaxClockSkew, d.AcceptExpired, sigverifyLogger(d.Log))
			switch result.Outcome {
			case sigverify.Ok:
				return Outcome{Result: Success}
			case sigverify.FromWildcard:
				if dns.CanonicalName(result.WildcardName) != dns.CanonicalName(req.Name) {
					return noqnameProofForWildcard(d, req, rrsig, result.WildcardName)
				}
				return Outcome{Result: Success}
			default:
				continue
			}
		}
	}

	if !triedVerify {
		sub := Insecurity(ctx, d, req)
		if sub.Result == NotInsecure {
			return Outcome{Result: NoValidSig, Err: ErrSignerNameNotParentOfQName}
		}
		return sub
	}

	return Outcome{Result: NoValidSig, Err: fmt.Errorf("%s/%d: no rrsig verified", req.Name, req.QType)}
}

// selfSigned reports whether at least one RRSIG over a DNSKEY rdataset
// verifies under one of that rdataset's own keys (spec.md §4.E step 1).
func selfSigned(keys, sigs []dns.RR) bool {
	dnskeys := extractDNSKEYs(keys)
	for _, rrsig := range extractRRSIGs(sigs) {
		rrset := matchingRRsetRaw(keys, rrsig)
		if len(rrset) == 0 {
			continue
		}
		var previous *dns.DNSKEY
		for {
			key := keymatch.NextDNSKey(rrsig, dnskeys, previous)
			if key == nil {
				break
			}
			previous = key
			if rrsig.Verify(key, rrset) == nil {
				return true
			}
		}
	}
	return false
}

func matchingRRset(rrset []dns.RR, rrsig *dns.RRSIG) []dns.RR {
	return matchingRRsetRaw(rrset, rrsig)
}

func matchingRRsetRaw(rrset []dns.RR, rrsig *dns.RRSIG) []dns.RR {
	out := make([]dns.RR, 0, len(rrset))
	name := dns.CanonicalName(rrsig.Header().Name)
	for _, rr := range rrset {
		if rr.Header().Rrtype == rrsig.TypeCovered && dns.CanonicalName(rr.Header().Name) == name {
			out = append(out, rr)
		}
	}
	return out
}

// checkSignerIsAncestor enforces spec.md §4.E step 2.b's ownership rules:
// the signer must be the owner or an ancestor of it; SOA/NS may only be
// signed by a same-name key (they never legitimately live at the parent
// side of a delegation).
func checkSignerIsAncestor(rrsig *dns.RRSIG, owner string, qtype uint16) error {
	signer := dns.CanonicalName(rrsig.SignerName)
	owner = dns.CanonicalName(owner)

	if !dns.IsSubDomain(signer, owner) {
		return ErrSignerNameNotParentOfQName
	}
	if (qtype == dns.TypeSOA || qtype == dns.TypeNS) && signer != owner {
		return ErrSignerNameNotParentOfQName
	}
	return nil
}

// noqnameProofForWildcard implements spec.md §4.E step 2.d's fallthrough: a
// wildcard-synthesized signature whose synthesizing name differs from qname
// requires a NOQNAME + closest-encloser proof before the answer can be
// marked secure.
func noqnameProofForWildcard(d Deps, req Request, rrsig *dns.RRSIG, wildcard string) Outcome {
	if req.Message == nil {
		return Outcome{Result: NoValidNSEC, Err: ErrBogusWildcardDoeNotFound}
	}

	nsec := extractNSEC(req.Message.Ns)
	nsec3 := extractNSEC3(req.Message.Ns)

	if len(nsec) > 0 {
		if doe.NsecExpandedWildcardProof(nsec, req.Name) {
			return Outcome{Result: Success, Proofs: proofsFor(req.Name, wildcard)}
		}
	}
	if len(nsec3) > 0 {
		if doe.Nsec3ExpandedWildcardProof(nsec3, req.Name, rrsig.Labels) {
			return Outcome{Result: Success, Proofs: proofsFor(req.Name, wildcard)}
		}
	}

	return Outcome{Result: NoValidNSEC, Err: ErrBogusWildcardDoeNotFound}
}

func proofsFor(qname, wildcard string) [proofSlotCount]string {
	var proofs [proofSlotCount]string
	proofs[ProofNOQNAME] = qname
	proofs[ProofCLOSESTENCLOSER] = wildcard
	return proofs
}
