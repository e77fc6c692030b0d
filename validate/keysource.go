package validate

import (
	"context"

	"github.com/miekg/dns"
	"github.com/nsmithuk/dnsvalidate/resolve"
	"github.com/nsmithuk/dnsvalidate/trust"
	"github.com/nsmithuk/dnsvalidate/view"
)

// getKey resolves signerName's DNSKEY rdataset (spec.md §4.E step 2.b
// "get_key"): a cache hit already secure is used directly; a cache hit
// pending-with-signature starts a sub-validator; a cache miss starts a
// resolver fetch. Either suspension path is synchronous from this
// function's point of view — the cooperative "suspend" spec.md describes
// is realized as this goroutine blocking on the sub-validator/fetch
// completion channel, matching the teacher's single-goroutine
// `Authenticator.start()` loop generalized to recursive calls.
func getKey(ctx context.Context, d Deps, req Request, signerName string) ([]*dns.DNSKEY, trust.Level, error) {
	found, err := d.View.Find(signerName, dns.TypeDNSKEY, view.FindOptions{})
	if err != nil {
		return nil, trust.None, err
	}

	switch found.Status {
	case view.Success:
		if found.Secure {
			return extractDNSKEYs(found.RDataset), trust.Secure, nil
		}
		if len(found.SigRDataset) > 0 {
			return subvalidateDNSKEY(ctx, d, req, signerName, found.RDataset, found.SigRDataset)
		}
	}

	if req.WouldCycle(signerName, dns.TypeDNSKEY, false) {
		return nil, trust.None, ErrAncestorCycle
	}

	fetch, err := d.Resolver.CreateFetch(ctx, signerName, dns.TypeDNSKEY, resolve.FetchOptions{NoNTA: req.NoNTA})
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
		if len(result.SigRDataset) == 0 {
			return extractDNSKEYs(result.RDataset), trust.Answer, nil
		}
		return subvalidateDNSKEY(ctx, d, req, signerName, result.RDataset, result.SigRDataset)
	}
}

func subvalidateDNSKEY(ctx context.Context, d Deps, req Request, signerName string, rdataset, sigrdataset []dns.RR) ([]*dns.DNSKEY, trust.Level, error) {
	if d.Sub == nil {
		return extractDNSKEYs(rdataset), trust.Pending, nil
	}
	child := req.Child(signerName, dns.TypeDNSKEY)
	child.RDataset = rdataset
	child.SigRDataset = sigrdataset

	sub := d.Sub(ctx, child)
	if sub.Err != nil {
		return nil, trust.None, sub.Err
	}
	return extractDNSKEYs(sub.RDataset), sub.Level, nil
}

func extractDNSKEYs(rrs []dns.RR) []*dns.DNSKEY {
	out := make([]*dns.DNSKEY, 0, len(rrs))
	for _, rr := range rrs {
		if key, ok := rr.(*dns.DNSKEY); ok {
			out = append(out, key)
		}
	}
	return out
}

func extractDS(rrs []dns.RR) []*dns.DS {
	out := make([]*dns.DS, 0, len(rrs))
	for _, rr := range rrs {
		if ds, ok := rr.(*dns.DS); ok {
			out = append(out, ds)
		}
	}
	return out
}

func extractRRSIGs(rrs []dns.RR) []*dns.RRSIG {
	out := make([]*dns.RRSIG, 0, len(rrs))
	for _, rr := range rrs {
		if sig, ok := rr.(*dns.RRSIG); ok {
			out = append(out, sig)
		}
	}
	return out
}

func extractNSEC(rrs []dns.RR) []*dns.NSEC {
	out := make([]*dns.NSEC, 0, len(rrs))
	for _, rr := range rrs {
		if n, ok := rr.(*dns.NSEC); ok {
			out = append(out, n)
		}
	}
	return out
}

func extractNSEC3(rrs []dns.RR) []*dns.NSEC3 {
	out := make([]*dns.NSEC3, 0, len(rrs))
	for _, rr := range rrs {
		if n, ok := rr.(*dns.NSEC3); ok {
			out = append(out, n)
		}
	}
	return out
}
