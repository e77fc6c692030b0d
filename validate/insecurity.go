package validate

import (
	"context"
	"errors"

	"github.com/miekg/dns"
	"github.com/nsmithuk/dnsvalidate/doe"
	"github.com/nsmithuk/dnsvalidate/resolve"
	"github.com/nsmithuk/dnsvalidate/trust"
	"github.com/nsmithuk/dnsvalidate/view"
)

// Insecurity implements spec.md §4.G: walk label-by-label from the nearest
// configured trust anchor down to qname, at each label seeking a DS
// rdataset that proves (or refutes) a break in the chain of trust.
func Insecurity(ctx context.Context, d Deps, req Request) Outcome {
	qname := dns.CanonicalName(req.Name)

	anchorDepth := 0
	if d.Anchors != nil {
		if deepest, ok := d.Anchors.FindDeepestMatch(qname); ok {
			anchorDepth = depthOf(deepest)
		}
	}
	qnameDepth := depthOf(qname)

	for l := anchorDepth + 1; l <= qnameDepth; l++ {
		if ctx.Err() != nil {
			return Outcome{Result: Canceled, Err: ctx.Err()}
		}

		name := nameAtDepth(qname, l)
		outcome, stop, err := seekDS(ctx, d, req, name)
		if err != nil {
			return Outcome{Result: BrokenChain, Err: err}
		}
		if stop {
			return outcome
		}
	}

	return Outcome{Result: NotInsecure, Err: ErrNoProofFound}
}

// seekDS implements one row of spec.md §4.G's decision table for a single
// label. stop reports whether the walk should halt and return outcome;
// err is a fatal collaborator failure (surfaced as BrokenChain by the
// caller).
func seekDS(ctx context.Context, d Deps, req Request, name string) (outcome Outcome, stop bool, err error) {
	found, ferr := d.View.Find(name, dns.TypeDS, view.FindOptions{})
	if ferr != nil {
		return Outcome{}, true, ferr
	}

	switch found.Status {
	case view.Success:
		if found.Secure {
			if len(supportedDS(d, extractDS(found.RDataset))) == 0 {
				return markAnswer(ctx, req), true, nil
			}
			return Outcome{}, false, nil
		}
		if len(found.SigRDataset) > 0 {
			dsset, level, serr := subvalidateDS(ctx, d, req, name, found.RDataset, found.SigRDataset)
			if serr != nil {
				return Outcome{}, true, serr
			}
			if !level.IsSecure() || len(supportedDS(d, dsset)) == 0 {
				return markAnswer(ctx, req), true, nil
			}
			return Outcome{}, false, nil
		}
		return Outcome{Result: NoValidDS, Err: ErrUnsignedDS}, true, nil

	case view.NcacheNXRRset, view.NXRRset:
		if isDelegationProof(found.RDataset, name) {
			return markAnswer(ctx, req), true, nil
		}
		if found.Status == view.NXRRset && !hasProofRecords(found.RDataset) {
			cut, cerr := d.View.FindZoneCut(name)
			if cerr == nil && dns.CanonicalName(cut) == name {
				return markAnswer(ctx, req), true, nil
			}
		}
		return Outcome{}, false, nil

	case view.CNAME:
		if len(found.SigRDataset) > 0 {
			level, serr := subvalidateCNAME(ctx, d, req, name, found.RDataset, found.SigRDataset)
			if serr != nil {
				return Outcome{}, true, serr
			}
			if !level.IsSecure() {
				return markAnswer(ctx, req), true, nil
			}
		}
		return Outcome{}, false, nil

	case view.NcacheNXDomain, view.NXDomain:
		if hasNxdomainProof(found.RDataset, name) {
			return Outcome{}, false, nil
		}
		return Outcome{Result: NoValidNSEC, Err: ErrNoProofFound}, true, nil

	case view.NotFound:
		return seekDSFetch(ctx, d, req, name)

	default:
		return Outcome{Result: BrokenChain, Err: ErrNoDSForZone}, true, nil
	}
}

// seekDSFetch handles the "not found in view" row: issue a resolver fetch
// for the DS rdataset and re-apply the same supported-digest/sub-validation
// rules to its result.
func seekDSFetch(ctx context.Context, d Deps, req Request, name string) (Outcome, bool, error) {
	if req.WouldCycle(name, dns.TypeDS, false) {
		return Outcome{Result: NoValidSig, Err: ErrAncestorCycle}, true, nil
	}

	fetch, err := d.Resolver.CreateFetch(ctx, name, dns.TypeDS, resolve.FetchOptions{NoNTA: req.NoNTA})
	if err != nil {
		return Outcome{}, true, err
	}

	select {
	case <-ctx.Done():
		fetch.Cancel()
		return Outcome{Result: Canceled, Err: ctx.Err()}, true, nil
	case result := <-fetch.Done():
		if result.Err != nil {
			return Outcome{}, true, result.Err
		}
		if len(result.RDataset) == 0 {
			if result.Msg != nil && isDelegationProof(result.Msg.Ns, name) {
				return markAnswer(ctx, req), true, nil
			}
			return Outcome{}, false, nil
		}
		if len(result.SigRDataset) == 0 {
			return Outcome{Result: NoValidDS, Err: ErrUnsignedDS}, true, nil
		}
		dsset, level, serr := subvalidateDS(ctx, d, req, name, result.RDataset, result.SigRDataset)
		if serr != nil {
			return Outcome{}, true, serr
		}
		if !level.IsSecure() || len(supportedDS(d, dsset)) == 0 {
			return markAnswer(ctx, req), true, nil
		}
		return Outcome{}, false, nil
	}
}

func subvalidateCNAME(ctx context.Context, d Deps, req Request, name string, rdataset, sigrdataset []dns.RR) (trust.Level, error) {
	if d.Sub == nil {
		return trust.Pending, nil
	}
	child := req.Child(name, dns.TypeCNAME)
	child.RDataset = rdataset
	child.SigRDataset = sigrdataset

	sub := d.Sub(ctx, child)
	if sub.Err != nil {
		return trust.None, sub.Err
	}
	return sub.Level, nil
}

// markAnswer implements spec.md §4.G's must-be-secure override: a policy
// that requires qname to be secure turns every attempted "INSECURE" verdict
// into MustBeSecureResult instead.
func markAnswer(ctx context.Context, req Request) Outcome {
	if err := applyMustBeSecure(ctx, req.MustBeSecure); err != nil {
		if errors.Is(err, trust.ErrMustBeSecure) {
			return Outcome{Result: MustBeSecureResult, Err: err}
		}
		return Outcome{Result: Canceled, Err: err}
	}
	return Outcome{Result: AnswerInsecure}
}

func hasProofRecords(rrs []dns.RR) bool {
	return len(extractNSEC(rrs)) > 0 || len(extractNSEC3(rrs)) > 0
}

// isDelegationProof reports whether rrs (a view/fetch result's auxiliary
// NSEC/NSEC3 records) proves name is a zone cut (its type bitmap includes
// NS but not SOA/DS, per RFC 4035 §2.3 / RFC 5155 §7.2.1).
func isDelegationProof(rrs []dns.RR, name string) bool {
	nsec := extractNSEC(rrs)
	if len(nsec) > 0 {
		seen, hasNS := doe.NsecTypeBitmapContains(nsec, name, []uint16{dns.TypeNS})
		_, hasSOAorDS := doe.NsecTypeBitmapContains(nsec, name, []uint16{dns.TypeSOA, dns.TypeDS})
		return seen && hasNS && !hasSOAorDS
	}
	nsec3 := extractNSEC3(rrs)
	if len(nsec3) > 0 {
		seen, hasNS := doe.Nsec3TypeBitmapContains(nsec3, name, []uint16{dns.TypeNS})
		_, hasSOAorDS := doe.Nsec3TypeBitmapContains(nsec3, name, []uint16{dns.TypeSOA, dns.TypeDS})
		return seen && hasNS && !hasSOAorDS
	}
	return false
}

// hasNxdomainProof reports whether rrs contains an NSEC/NSEC3 record
// covering name, proving name itself does not exist.
func hasNxdomainProof(rrs []dns.RR, name string) bool {
	nsec := extractNSEC(rrs)
	if len(nsec) > 0 {
		return doe.NsecQNameCovered(nsec, name)
	}
	nsec3 := extractNSEC3(rrs)
	if len(nsec3) > 0 {
		_, covered := doe.Nsec3CoversName(nsec3, name)
		return covered
	}
	return false
}

// depthOf returns name's label count (the root has depth 0).
func depthOf(name string) int {
	name = dns.CanonicalName(name)
	if name == "." {
		return 0
	}
	return len(dns.Split(name))
}

// nameAtDepth returns the suffix of qname consisting of its rightmost l
// labels (l=0 is the root, l=depthOf(qname) is qname itself).
func nameAtDepth(qname string, l int) string {
	qname = dns.CanonicalName(qname)
	total := depthOf(qname)
	if l <= 0 {
		return "."
	}
	if l >= total {
		return qname
	}
	idx := dns.Split(qname)
	return qname[idx[total-l]:]
}
