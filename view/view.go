// Package view implements the view/cache external collaborator (spec.md §6
// "View / cache"): a lookup surface over cached positive and negative
// answers that the validator consults before issuing a resolver fetch.
package view

import (
	"time"

	"github.com/miekg/dns"
	"github.com/nsmithuk/dnsvalidate/anchor"
)

// FindStatus is the outcome of a View.Find call (spec.md §6's view_find
// result set, unchanged).
type FindStatus int

const (
	NotFound FindStatus = iota
	Success
	NcacheNXDomain
	NcacheNXRRset
	NXRRset
	NXDomain
	EmptyName
	BrokenChain
	CNAME
)

func (s FindStatus) String() string {
	switch s {
	case Success:
		return "success"
	case NcacheNXDomain:
		return "ncache-nxdomain"
	case NcacheNXRRset:
		return "ncache-nxrrset"
	case NXRRset:
		return "nxrrset"
	case NXDomain:
		return "nxdomain"
	case EmptyName:
		return "empty-name"
	case BrokenChain:
		return "broken-chain"
	case CNAME:
		return "cname"
	default:
		return "not-found"
	}
}

// FindOptions narrows a Find lookup.
type FindOptions struct {
	// NoCDFlag mirrors spec.md §6's NOCDFLAG fetch option: do not suppress
	// server-side validation when the cache needs to refresh this entry.
	NoCDFlag bool
}

// FindResult carries whatever the cache had for the (name, qtype) pair:
// the answer rdataset and, if signed, its RRSIG set; or the CNAME target
// that redirected the lookup.
type FindResult struct {
	Status       FindStatus
	RDataset     []dns.RR
	SigRDataset  []dns.RR
	FoundName    string
	CNAMETarget  string
	Secure       bool
	Expires      time.Time
}

// View is the cache lookup surface a Validator consults (spec.md §6).
type View interface {
	Find(name string, qtype uint16, opts FindOptions) (FindResult, error)
	FindZoneCut(name string) (string, error)
	Untrust(name string, revoked *dns.DNSKEY)
}

// cacheKey identifies a single cached rdataset.
type cacheKey struct {
	name  string
	qtype uint16
}

func newCacheKey(name string, qtype uint16) cacheKey {
	return cacheKey{name: dns.CanonicalName(name), qtype: qtype}
}

// entry is what LRUView stores per cacheKey.
type entry struct {
	result  FindResult
	expires time.Time
}

// anchorTable is the subset of anchor.Table Untrust needs; kept narrow so
// LRUView doesn't require a full Table implementation in tests.
type anchorTable interface {
	Untrust(name string, revoked *dns.DNSKEY)
}

var _ anchorTable = (*anchor.MapTable)(nil)
