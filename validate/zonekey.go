package validate

import (
	"context"

	"github.com/miekg/dns"
	"github.com/nsmithuk/dnsvalidate/anchor"
	"github.com/nsmithuk/dnsvalidate/keymatch"
	"github.com/nsmithuk/dnsvalidate/resolve"
	"github.com/nsmithuk/dnsvalidate/trust"
	"github.com/nsmithuk/dnsvalidate/view"
)

// ZoneKey implements spec.md §4.F: validate a self-signed DNSKEY RRset
// either directly against the trust-anchor table (the zone is, or sits
// beneath, a configured secure entry point) or against a DS rdataset
// fetched from the parent zone.
func ZoneKey(ctx context.Context, d Deps, req Request) Outcome {
	owner := dns.CanonicalName(req.Name)
	keys := extractDNSKEYs(req.RDataset)
	sigs := extractRRSIGs(req.SigRDataset)

	if outcome, handled := zoneKeyFromAnchor(d, owner, keys, sigs); handled {
		return outcome
	}

	dsset, dsLevel, err := getDS(ctx, d, req, owner)
	switch {
	case err != nil:
		return Outcome{Result: NoValidDS, Err: err}
	case dsLevel == trust.None:
		return Outcome{Result: NoValidDS, Err: ErrNoDSForZone}
	case !dsLevel.IsSecure():
		return Outcome{Result: NoValidDS, Err: ErrUnsignedDS}
	}

	return zoneKeyFromDS(d, keys, sigs, dsset)
}

// zoneKeyFromAnchor implements step 1: if owner is at or beneath a
// configured secure entry point, the DNSKEY set must verify under one of
// the anchor's DS records; a name sitting exactly at an anchor with no
// matching key is bogus rather than falling through to a DS lookup.
func zoneKeyFromAnchor(d Deps, owner string, keys []*dns.DNSKEY, sigs []*dns.RRSIG) (Outcome, bool) {
	if d.Anchors == nil {
		return Outcome{}, false
	}

	node, status := d.Anchors.FindKeyNode(owner, 0, 0)
	atAnchor := status != anchor.NotFound
	if status == anchor.NotFound {
		deepest, ok := d.Anchors.FindDeepestMatch(owner)
		if !ok || deepest == owner {
			return Outcome{}, false
		}
		node, status = d.Anchors.FindKeyNode(deepest, 0, 0)
		if status == anchor.NotFound {
			return Outcome{}, false
		}
	}

	if key := keymatch.KeyFromDS(node.Anchors, keys, true); key != nil {
		if verifySelfSigned(key, keys, sigs) {
			return Outcome{Result: Success}, true
		}
	}
	if !atAnchor {
		return Outcome{}, false
	}
	return Outcome{Result: NoValidKey, Err: ErrKeySigningKeysNotFound}, true
}

// verifySelfSigned reports whether some RRSIG in sigs, produced by key
// itself, verifies over keys.
func verifySelfSigned(key *dns.DNSKEY, keys []*dns.DNSKEY, sigs []*dns.RRSIG) bool {
	rrset := keysToRR(keys)
	for _, rrsig := range sigs {
		if rrsig.KeyTag != key.KeyTag() || rrsig.Algorithm != key.Algorithm {
			continue
		}
		if rrsig.Verify(key, rrset) == nil {
			return true
		}
	}
	return false
}

func keysToRR(keys []*dns.DNSKEY) []dns.RR {
	out := make([]dns.RR, 0, len(keys))
	for _, k := range keys {
		out = append(out, k)
	}
	return out
}

// getDS implements step 2: resolve a DS rdataset for owner, either from the
// view cache or via a fresh fetch/sub-validation.
func getDS(ctx context.Context, d Deps, req Request, owner string) ([]*dns.DS, trust.Level, error) {
	found, err := d.View.Find(owner, dns.TypeDS, view.FindOptions{})
	if err != nil {
		return nil, trust.None, err
	}

	switch found.Status {
	case view.Success:
		if found.Secure {
			return extractDS(found.RDataset), trust.Secure, nil
		}
		if len(found.SigRDataset) > 0 {
			return subvalidateDS(ctx, d, req, owner, found.RDataset, found.SigRDataset)
		}
		return nil, trust.None, ErrUnsignedDS
	case view.NcacheNXRRset, view.NXDomain, view.CNAME:
		return nil, trust.None, ErrNoDSForZone
	}

	if req.WouldCycle(owner, dns.TypeDS, false) {
		return nil, trust.None, ErrAncestorCycle
	}

	fetch, err := d.Resolver.CreateFetch(ctx, owner, dns.TypeDS, resolve.FetchOptions{NoNTA: req.NoNTA})
	if err != nil {
		return nil, trust.None, err
	}
	select {
	case <-ctx.Done():
		fetch.Cancel()
		return nil, trust.None, ctx.Err()
	case result := <-fetch.Done():
		if result.Err != nil {
			return nil, trust.None, result.Err
		}
		if len(result.RDataset) == 0 {
			return nil, trust.None, ErrNoDSForZone
		}
		if len(result.SigRDataset) == 0 {
			return nil, trust.None, ErrUnsignedDS
		}
		return subvalidateDS(ctx, d, req, owner, result.RDataset, result.SigRDataset)
	}
}

func subvalidateDS(ctx context.Context, d Deps, req Request, owner string, rdataset, sigrdataset []dns.RR) ([]*dns.DS, trust.Level, error) {
	if d.Sub == nil {
		return extractDS(rdataset), trust.Pending, nil
	}
	child := req.Child(owner, dns.TypeDS)
	child.RDataset = rdataset
	child.SigRDataset = sigrdataset

	sub := d.Sub(ctx, child)
	if sub.Err != nil {
		return nil, trust.None, sub.Err
	}
	return extractDS(sub.RDataset), sub.Level, nil
}

// zoneKeyFromDS implements step 3: prefer strong-digest DS records, find a
// matching DNSKEY, and verify the DNSKEY RRset's own RRSIG with it.
func zoneKeyFromDS(d Deps, keys []*dns.DNSKEY, sigs []*dns.RRSIG, dsset []*dns.DS) Outcome {
	supported := supportedDS(d, dsset)
	if len(supported) == 0 {
		return Outcome{Result: AnswerInsecure, Err: ErrNoSupportedDigest}
	}

	key := keymatch.KeyFromDS(supported, keys, true)
	if key == nil {
		return Outcome{Result: NoValidKey, Err: ErrKeySigningKeysNotFound}
	}

	if verifySelfSigned(key, keys, sigs) {
		return Outcome{Result: Success}
	}
	return Outcome{Result: NoValidKey, Err: ErrKeySigningKeysNotFound}
}

// supportedDS narrows dsset to records whose algorithm and digest type are
// both allowed by resolver policy.
func supportedDS(d Deps, dsset []*dns.DS) []*dns.DS {
	out := make([]*dns.DS, 0, len(dsset))
	for _, ds := range dsset {
		if d.Resolver != nil {
			if !d.Resolver.AlgorithmSupported(ds.Algorithm) || !d.Resolver.DSDigestSupported(ds.DigestType) {
				continue
			}
		}
		out = append(out, ds)
	}
	return out
}
