package validator

import (
	"context"

	"github.com/hashicorp/go-multierror"
	"github.com/miekg/dns"
	"github.com/nsmithuk/dnsvalidate/doe"
	"github.com/nsmithuk/dnsvalidate/validate"
)

// nsecGroup is every record sharing one owner name in the authority
// section, split by whether it's the NSEC/NSEC3 rdata itself or its
// covering RRSIG (spec.md §4.H `validate_nx` launches one sub-validator
// per (owner, type) pair).
type nsecGroup struct {
	owner string
	qtype uint16
	rr    []dns.RR
	sigs  []dns.RR
}

// validateNX implements spec.md §4.H's `validate_nx`: launch a
// sub-validator for every NSEC/NSEC3 (owner, type) pair in the message's
// authority section, fold each secured result into the engine in §4.D via
// authvalidated, and decide whether the accumulated FOUND flags satisfy
// whichever NEED flags the request's rcode set.
func (v *Validator) validateNX(ctx context.Context, deps validate.Deps) validate.Outcome {
	v.mu.Lock()
	if v.req.Message != nil && v.req.Message.Rcode == dns.RcodeNameError {
		v.attrs.set(AttrNeedNoQName | AttrNeedNoWildcard)
	} else {
		v.attrs.set(AttrNeedNoData)
	}
	v.mu.Unlock()

	groups := groupAuthority(v.req.Message)

	var securedNSEC []*dns.NSEC
	var securedNSEC3 []*dns.NSEC3
	var nsec3Zone string

	authcount := 0
	authfail := 0
	var errs *multierror.Error

	for _, g := range groups {
		if ctx.Err() != nil {
			return validate.Outcome{Result: validate.Canceled, Err: ctx.Err()}
		}
		authcount++

		child := v.req.Child(g.owner, g.qtype)
		child.RDataset = g.rr
		child.SigRDataset = g.sigs
		sub := v.subValidate(ctx, child)
		if sub.Err != nil || !sub.Level.IsSecure() {
			authfail++
			if sub.Err != nil {
				errs = multierror.Append(errs, sub.Err)
			}
			continue
		}

		switch g.qtype {
		case dns.TypeNSEC:
			securedNSEC = append(securedNSEC, extractNSECRR(sub.RDataset)...)
		case dns.TypeNSEC3:
			securedNSEC3 = append(securedNSEC3, extractNSEC3RR(sub.RDataset)...)
			if nsec3Zone == "" {
				nsec3Zone = zoneOfSigs(g.sigs)
			}
		}
	}

	if authcount > 0 && authfail == authcount {
		if v.log != nil && errs != nil {
			v.log.Warn("all auxiliary nsec/nsec3 validators failed: " + errs.Error())
		}
		return validate.Outcome{Result: validate.BrokenChain, Err: errs.ErrorOrNil()}
	}

	if nsec3Zone == "" {
		nsec3Zone = "."
	}
	v.authvalidated(securedNSEC, securedNSEC3, nsec3Zone)

	if v.needSatisfied() {
		return v.markSecureOutcome()
	}

	v.mu.Lock()
	v.attrs.set(AttrInsecurity)
	v.mu.Unlock()

	return validate.Insecurity(ctx, deps, v.req)
}

// authvalidated implements spec.md §4.H's `authvalidated` callback: feed
// every now-secure NSEC/NSEC3 rdataset into the denial-of-existence engine
// (§4.D) and raise the FOUND- attribute bits and proofs[] slots accordingly.
func (v *Validator) authvalidated(nsec []*dns.NSEC, nsec3 []*dns.NSEC3, zone string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	qname := dns.CanonicalName(v.req.Name)

	if len(nsec) > 0 {
		result := doe.NsecNoexistNodata(v.req.QType, qname, nsec)
		if result.Exists && !result.Data {
			v.attrs.set(AttrFoundNoData)
			v.proofs[validate.ProofNODATA] = qname
		}
		if !result.Exists && doe.NsecQNameCovered(nsec, qname) {
			v.attrs.set(AttrFoundNoQName | AttrFoundClosest)
			if owner := coveringOwner(nsec, qname); owner != "" {
				v.proofs[validate.ProofNOQNAME] = owner
				v.proofs[validate.ProofCLOSESTENCLOSER] = owner
			}
		}
		if doe.NsecWildcardCovered(nsec, qname) {
			v.attrs.set(AttrFoundNoWildcard)
			if owner := coveringOwner(nsec, doe.WildcardName(qname)); owner != "" {
				v.proofs[validate.ProofNOWILDCARD] = owner
			}
		}
	}

	if len(nsec3) > 0 {
		result := doe.Nsec3NoexistNodata(v.req.QType, qname, nsec3, zone)
		if result.Unknown {
			v.attrs.set(AttrFoundUnknown)
		}
		if result.Exists && !result.Data {
			v.attrs.set(AttrFoundNoData)
			v.proofs[validate.ProofNODATA] = qname
		}
		if result.SetClosest {
			v.attrs.set(AttrFoundClosest)
			v.proofs[validate.ProofCLOSESTENCLOSER] = result.Closest
		}
		if !result.Exists && result.SetNearest {
			v.attrs.set(AttrFoundNoQName)
			v.proofs[validate.ProofNOQNAME] = result.Nearest
			if result.OptOut {
				v.attrs.set(AttrFoundOptOut)
			}
		}

		optOut, closestProof, _, wildcardProof, closest := doe.Nsec3ClosestEncloserProof(nsec3, zone, qname)
		if closestProof {
			v.attrs.set(AttrFoundClosest)
			v.proofs[validate.ProofCLOSESTENCLOSER] = closest
		}
		if wildcardProof {
			v.attrs.set(AttrFoundNoWildcard)
			v.proofs[validate.ProofNOWILDCARD] = closest
		}
		if optOut {
			v.attrs.set(AttrFoundOptOut)
		}
	}
}

// needSatisfied reports whether the FOUND- bits accumulated by
// authvalidated satisfy every NEED- bit the request's rcode set, per
// spec.md §4.D's opt-out/unknown-hash carve-outs (either stands in for a
// literal NOQNAME/NOWILDCARD proof).
func (v *Validator) needSatisfied() bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	standin := v.attrs.has(AttrFoundOptOut) || v.attrs.has(AttrFoundUnknown)

	if v.attrs.has(AttrNeedNoData) && !v.attrs.has(AttrFoundNoData) {
		return false
	}
	if v.attrs.has(AttrNeedNoQName) {
		if !v.attrs.has(AttrFoundNoQName) && !standin {
			return false
		}
		if !v.attrs.has(AttrFoundClosest) && !standin {
			return false
		}
	}
	if v.attrs.has(AttrNeedNoWildcard) {
		if !v.attrs.has(AttrFoundNoWildcard) && !standin {
			return false
		}
	}
	return true
}

// markSecureOutcome implements spec.md §4.A's `mark_secure`: it returns the
// Success outcome with the accumulated proofs[] and opt-out bit. It does not
// touch the request's rdatasets; the delivered Event's Secure flag is
// derived from the Success result by deliver.
func (v *Validator) markSecureOutcome() validate.Outcome {
	v.mu.Lock()
	defer v.mu.Unlock()

	return validate.Outcome{
		Result: validate.Success,
		Proofs: v.proofs,
		OptOut: v.attrs.has(AttrFoundOptOut),
	}
}

func groupAuthority(msg *dns.Msg) []nsecGroup {
	if msg == nil {
		return nil
	}

	index := map[string]*nsecGroup{}
	order := make([]string, 0)

	key := func(owner string, qtype uint16) string {
		return dns.CanonicalName(owner) + "/" + dns.TypeToString[qtype]
	}

	for _, rr := range msg.Ns {
		var owner string
		var qtype uint16
		switch rr.(type) {
		case *dns.NSEC:
			owner, qtype = dns.CanonicalName(rr.Header().Name), dns.TypeNSEC
		case *dns.NSEC3:
			owner, qtype = dns.CanonicalName(rr.Header().Name), dns.TypeNSEC3
		default:
			continue
		}
		k := key(owner, qtype)
		g, ok := index[k]
		if !ok {
			g = &nsecGroup{owner: owner, qtype: qtype}
			index[k] = g
			order = append(order, k)
		}
		g.rr = append(g.rr, rr)
	}

	for _, rr := range msg.Ns {
		rrsig, ok := rr.(*dns.RRSIG)
		if !ok {
			continue
		}
		var typeCovered uint16
		switch rrsig.TypeCovered {
		case dns.TypeNSEC, dns.TypeNSEC3:
			typeCovered = rrsig.TypeCovered
		default:
			continue
		}
		k := key(rrsig.Header().Name, typeCovered)
		if g, ok := index[k]; ok {
			g.sigs = append(g.sigs, rr)
		}
	}

	groups := make([]nsecGroup, 0, len(order))
	for _, k := range order {
		groups = append(groups, *index[k])
	}
	return groups
}

func extractNSECRR(rrs []dns.RR) []*dns.NSEC {
	out := make([]*dns.NSEC, 0, len(rrs))
	for _, rr := range rrs {
		if n, ok := rr.(*dns.NSEC); ok {
			out = append(out, n)
		}
	}
	return out
}

func extractNSEC3RR(rrs []dns.RR) []*dns.NSEC3 {
	out := make([]*dns.NSEC3, 0, len(rrs))
	for _, rr := range rrs {
		if n, ok := rr.(*dns.NSEC3); ok {
			out = append(out, n)
		}
	}
	return out
}

func zoneOfSigs(sigs []dns.RR) string {
	for _, rr := range sigs {
		if rrsig, ok := rr.(*dns.RRSIG); ok {
			return dns.CanonicalName(rrsig.SignerName)
		}
	}
	return ""
}

// coveringOwner returns the owner name of whichever NSEC in rrset covers
// name, used to populate proofs[] with the record that actually proved it.
func coveringOwner(rrset []*dns.NSEC, name string) string {
	for _, nsec := range rrset {
		if doe.NsecQNameCovered([]*dns.NSEC{nsec}, name) {
			return dns.CanonicalName(nsec.Header().Name)
		}
	}
	return ""
}
