package view

import (
	"time"

	"github.com/miekg/dns"
	lru "github.com/hashicorp/golang-lru/v2"
)

// LRUView is the reference View implementation: a bounded positive/negative
// cache backed by github.com/hashicorp/golang-lru/v2 (the pack's caching
// idiom, carried over from 0xERR0R-blocky), fronting an anchor.Table for
// Untrust. Zone-cut tracking is a small in-memory map, since it is derived
// data rather than cached answers.
type LRUView struct {
	cache   *lru.Cache[cacheKey, entry]
	anchors anchorTable
	cuts    map[string]string
}

// NewLRUView returns a View with room for size cached entries.
func NewLRUView(size int, anchors anchorTable) (*LRUView, error) {
	cache, err := lru.New[cacheKey, entry](size)
	if err != nil {
		return nil, err
	}
	return &LRUView{cache: cache, anchors: anchors, cuts: make(map[string]string)}, nil
}

// Store installs result under (name, qtype) with the given TTL-derived
// expiry, for later retrieval by Find.
func (v *LRUView) Store(name string, qtype uint16, result FindResult, expires time.Time) {
	result.Expires = expires
	v.cache.Add(newCacheKey(name, qtype), entry{result: result, expires: expires})
}

// StoreZoneCut records that zone is the known zone cut covering name.
func (v *LRUView) StoreZoneCut(name, zone string) {
	v.cuts[dns.CanonicalName(name)] = dns.CanonicalName(zone)
}

func (v *LRUView) Find(name string, qtype uint16, _ FindOptions) (FindResult, error) {
	key := newCacheKey(name, qtype)
	e, ok := v.cache.Get(key)
	if !ok {
		return FindResult{Status: NotFound}, nil
	}
	if time.Now().After(e.expires) {
		v.cache.Remove(key)
		return FindResult{Status: NotFound}, nil
	}
	return e.result, nil
}

func (v *LRUView) FindZoneCut(name string) (string, error) {
	name = dns.CanonicalName(name)
	for {
		if zone, ok := v.cuts[name]; ok {
			return zone, nil
		}
		if name == "." {
			return "", ErrZoneCutUnknown
		}
		idx := dns.Split(name)
		if len(idx) < 2 {
			name = "."
			continue
		}
		name = name[idx[1]:]
	}
}

func (v *LRUView) Untrust(name string, revoked *dns.DNSKEY) {
	if v.anchors == nil {
		return
	}
	v.anchors.Untrust(name, revoked)
}
