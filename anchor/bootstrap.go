package anchor

import (
	"github.com/nsmithuk/dnssec-root-anchors-go/anchors"
)

// NewRootBootstrappedTable returns a MapTable pre-populated with the root
// zone's current secure entry points, matching the teacher's package-level
// `RootTrustAnchors = anchors.GetValid()` bootstrap
// (_examples/nsmithuk-resolver/dnssec/config.go), generalized here into an
// explicit constructor so tests can supply a synthetic table instead
// (spec.md §9 "treat them as injected dependencies, not singletons").
func NewRootBootstrappedTable() *MapTable {
	t := NewMapTable()
	t.Add(".", anchors.GetValid())
	return t
}
