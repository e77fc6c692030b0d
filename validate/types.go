// Package validate implements the three algorithmic cores spec.md §4.E–§4.G
// name as separate components: the positive validator, the zone-key
// validator, and the insecurity prover. They are pure-ish functions over a
// shared Deps bundle of external collaborators (resolve.Resolver, view.View,
// anchor.Table) rather than methods on a stateful object, so each can be
// unit-tested independently of the orchestrator in package validator, which
// is the only caller that stitches them into the full suspend/resume state
// machine (spec.md §4.H).
package validate

import (
	"context"
	"time"

	"github.com/miekg/dns"
	"github.com/nsmithuk/dnsvalidate/anchor"
	"github.com/nsmithuk/dnsvalidate/resolve"
	"github.com/nsmithuk/dnsvalidate/trust"
	"github.com/nsmithuk/dnsvalidate/view"
	"github.com/nsmithuk/dnsvalidate/vlog"
)

// Result is the validation-outcome taxonomy (spec.md §7, unchanged values).
type Result int

const (
	Success Result = iota
	AnswerInsecure
	NoValidSig
	NoValidKey
	NoValidDS
	NoValidNSEC
	MustBeSecureResult
	NotInsecure
	BrokenChain
	Canceled
)

func (r Result) String() string {
	switch r {
	case Success:
		return "success"
	case AnswerInsecure:
		return "answer-insecure"
	case NoValidSig:
		return "no-valid-sig"
	case NoValidKey:
		return "no-valid-key"
	case NoValidDS:
		return "no-valid-ds"
	case NoValidNSEC:
		return "no-valid-nsec"
	case MustBeSecureResult:
		return "must-be-secure"
	case NotInsecure:
		return "not-insecure"
	case BrokenChain:
		return "broken-chain"
	case Canceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// ProofSlot names the five proof slots spec.md §3 `proofs[5]` describes.
type ProofSlot int

const (
	ProofNODATA ProofSlot = iota
	ProofNOQNAME
	ProofNOWILDCARD
	ProofCLOSESTENCLOSER
	proofSlotCount
)

// Outcome is what a validate.* entry point returns: a Result plus whatever
// trust-relevant side information the orchestrator needs to fold into the
// delivered event (spec.md §6's `{proofs[5], optout, secure}`).
type Outcome struct {
	Result  Result
	Proofs  [proofSlotCount]string
	OptOut  bool
	Err     error
}

// SubResult is what a recursive sub-validator (spec.md §3 `subvalidator`)
// reports back to its caller: the outcome plus whatever trust level and
// rdatasets the sub-validation produced, so the caller can fold a newly
// secured DNSKEY/DS/NSEC set into its own decision.
type SubResult struct {
	Outcome     Outcome
	Level       trust.Level
	RDataset    []dns.RR
	SigRDataset []dns.RR
	Err         error
}

// SubValidate runs a full recursive validation of req (spec.md §4.H's
// dispatch, applied to a child request) and reports the result. The
// orchestrator (package validator) supplies this; validate's own entry
// points never import validator, avoiding a cycle while still letting §4.E
// step 2.b and §4.F step 2 start genuine sub-validators per spec.md §5.
type SubValidate func(ctx context.Context, req Request) SubResult

// Deps bundles the external collaborators spec.md §6 names, shared by every
// entry point in this package plus the orchestrator.
type Deps struct {
	Resolver resolve.Resolver
	View     view.View
	Anchors  anchor.Table
	Log      *vlog.Logger
	Sub      SubValidate

	// Now returns the wall-clock time signatures are checked against
	// (spec.md §3 `start`); overridable so tests are deterministic.
	Now func() time.Time

	AcceptExpired bool
	MaxClockSkew  time.Duration
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Request is the subset of spec.md §3's validation-request entity (V) the
// algorithmic cores need: input material, options, and the ancestor-chain
// bookkeeping used for cycle/deadlock avoidance (spec.md §4.H, §9).
type Request struct {
	Name        string
	QType       uint16
	RDataset    []dns.RR
	SigRDataset []dns.RR
	Message     *dns.Msg

	MustBeSecure bool
	NoNTA        bool

	// Depth and Ancestors implement spec.md §3's parent/depth linkage and
	// §4.H's deadlock-avoidance walk: before starting a sub-validator the
	// orchestrator checks this request's (name, qtype) against every
	// ancestor's.
	Depth     int
	Ancestors []AncestorKey
}

// AncestorKey is one entry in a validation request's ancestor chain.
type AncestorKey struct {
	Name  string
	QType uint16
}

// WouldCycle reports whether (name, qtype) already appears in req's
// ancestor chain, per spec.md §4.H/§9's deadlock check. The NSEC3
// meta-data exception spec.md names is narrow enough (distinguishing an
// NSEC3 covering-proof lookup from a direct RRset fetch of the same owner)
// that callers pass allowMetaException to skip the check for that case.
func (req Request) WouldCycle(name string, qtype uint16, allowMetaException bool) bool {
	if allowMetaException {
		return false
	}
	name = dns.CanonicalName(name)
	for _, a := range req.Ancestors {
		if a.Name == name && a.QType == qtype {
			return true
		}
	}
	return false
}

// Child returns a Request for a sub-validator of req, with depth/ancestors
// extended (spec.md §3 `depth = parent.depth + 1`).
func (req Request) Child(name string, qtype uint16) Request {
	child := req
	child.Depth = req.Depth + 1
	child.Ancestors = append(append([]AncestorKey{}, req.Ancestors...), AncestorKey{Name: dns.CanonicalName(req.Name), QType: req.QType})
	child.Name = name
	child.QType = qtype
	child.RDataset = nil
	child.SigRDataset = nil
	return child
}

// applyMustBeSecure converts mark_answer's downgrade into the
// trust.ErrMustBeSecure policy failure spec.md §4.A/§4.G require, unless
// ctx has already been canceled.
func applyMustBeSecure(ctx context.Context, mustBeSecure bool) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if mustBeSecure {
		return trust.ErrMustBeSecure
	}
	return nil
}
