// Package anchor implements the trust-anchor table external collaborator
// (spec.md §6 "Trust-anchor table"): the process-wide, read-mostly set of
// configured secure entry points a zone-key validator (validate.ZoneKey)
// checks a DNSKEY RRset against.
package anchor

import (
	"sort"

	"github.com/miekg/dns"
	cmap "github.com/orcaman/concurrent-map/v2"
)

// Status is the outcome of a FindKeyNode lookup.
type Status int

const (
	NotFound Status = iota
	Success
	PartialMatch
)

// KeyNode is a single configured secure entry point: a zone name and the DS
// records trusted to vouch for that zone's DNSKEY RRset (spec.md §3
// `keynode`/`key`). Root anchors are typically shipped in DS form (as the
// IANA root anchors feed publishes them); anchors for other zones may be
// configured the same way.
type KeyNode struct {
	Name    string
	Anchors []*dns.DS
}

// Table is the read-mostly trust-anchor store a Validator consults. From a
// validator's perspective it is a snapshot handle: FindKeyNode/FindNextKeyNode
// never mutate the table, only Untrust (spec.md §6 `view_untrust`, surfaced
// here since revocation targets the same table) does.
type Table interface {
	FindKeyNode(name string, algo uint8, keyid uint16) (*KeyNode, Status)
	FindNextKeyNode(prev *KeyNode) *KeyNode
	FindDeepestMatch(name string) (string, bool)
	DetachKeyNode(node *KeyNode)
	Untrust(name string, revoked *dns.DNSKEY)
}

// MapTable is the reference Table implementation, backed by
// github.com/orcaman/concurrent-map/v2 so that many validators running in
// parallel (spec.md §5's "parallel across unrelated requests") can read the
// table without a shared mutex, matching the johanix-tdns keytable idiom.
type MapTable struct {
	zones cmap.ConcurrentMap[string, *KeyNode]
}

// NewMapTable returns an empty table.
func NewMapTable() *MapTable {
	return &MapTable{zones: cmap.New[*KeyNode]()}
}

// Add installs or replaces the anchor set for zone.
func (t *MapTable) Add(zone string, anchors []*dns.DS) {
	zone = dns.CanonicalName(zone)
	t.zones.Set(zone, &KeyNode{Name: zone, Anchors: anchors})
}

// FindKeyNode looks up the anchor configured for name. algo/keyid narrow a
// PartialMatch (a node exists for the name but none of its anchors matches
// that algorithm/key-tag pair) from a true Success.
func (t *MapTable) FindKeyNode(name string, algo uint8, keyid uint16) (*KeyNode, Status) {
	node, ok := t.zones.Get(dns.CanonicalName(name))
	if !ok {
		return nil, NotFound
	}
	for _, ds := range node.Anchors {
		if ds.Algorithm == algo && ds.KeyTag == keyid {
			return node, Success
		}
	}
	return node, PartialMatch
}

// FindNextKeyNode returns the next KeyNode, by canonical name order, after
// prev. With prev nil it returns the first. It is part of the Table
// interface; the validate and validator packages do not call it.
func (t *MapTable) FindNextKeyNode(prev *KeyNode) *KeyNode {
	names := t.zones.Keys()
	if len(names) == 0 {
		return nil
	}
	sortNames(names)

	if prev == nil {
		node, _ := t.zones.Get(names[0])
		return node
	}
	for i, n := range names {
		if n == prev.Name && i+1 < len(names) {
			node, _ := t.zones.Get(names[i+1])
			return node
		}
	}
	return nil
}

// FindDeepestMatch returns the longest configured anchor name that is an
// ancestor of (or equal to) name, used by the insecurity prover to find
// `labels = depth_of_nearest_trust_anchor`.
func (t *MapTable) FindDeepestMatch(name string) (string, bool) {
	name = dns.CanonicalName(name)
	best := ""
	for _, zone := range t.zones.Keys() {
		if dns.IsSubDomain(zone, name) && len(zone) > len(best) {
			best = zone
		}
	}
	if best == "" {
		return "", false
	}
	return best, true
}

// DetachKeyNode is a no-op for MapTable: nodes are plain values retrieved by
// copy-free pointer, there is no refcounted resource to release. It exists
// to satisfy the Table contract spec.md §6 names explicitly.
func (t *MapTable) DetachKeyNode(*KeyNode) {}

// Untrust removes revoked from zone's anchor set, per spec.md §6
// `view_untrust` (retiring a compromised trust anchor).
func (t *MapTable) Untrust(name string, revoked *dns.DNSKEY) {
	zone := dns.CanonicalName(name)
	node, ok := t.zones.Get(zone)
	if !ok {
		return
	}
	kept := make([]*dns.DS, 0, len(node.Anchors))
	for _, ds := range node.Anchors {
		if ds.Algorithm == revoked.Algorithm && ds.KeyTag == revoked.KeyTag() {
			continue
		}
		kept = append(kept, ds)
	}
	t.zones.Set(zone, &KeyNode{Name: zone, Anchors: kept})
}

// sortNames orders names by depth (label count) then lexically, so the root
// zone always sorts first and a parent always precedes its children.
func sortNames(names []string) {
	sort.Slice(names, func(i, j int) bool {
		li, lj := len(dns.Split(names[i])), len(dns.Split(names[j]))
		if li != lj {
			return li < lj
		}
		return names[i] < names[j]
	})
}
