// Package validator implements the top-level orchestrator spec.md §4.H
// describes: the Validator entity V, its suspend/resume lifecycle, the
// cycle/deadlock check, and the dispatch that routes a request to the
// positive validator, the zone-key validator, or denial-of-existence
// validation (validate_nx), falling back to the insecurity prover.
//
// The cooperative state machine spec.md §3/§5 describes as callback-driven
// (every suspension point is a return from a callback, resumed by a later
// callback on the same task) is realized here the way the teacher's
// Authenticator realizes it: a goroutine that runs the whole request to
// completion, blocking on channels at each suspension point instead of
// returning and waiting to be re-entered. Two models produce the same
// observable suspend/resume discipline; this one needs no separate state-
// machine dispatch table because Go's goroutine stack already is that
// dispatch table.
package validator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/miekg/dns"
	"github.com/nsmithuk/dnsvalidate/anchor"
	"github.com/nsmithuk/dnsvalidate/resolve"
	"github.com/nsmithuk/dnsvalidate/trust"
	"github.com/nsmithuk/dnsvalidate/validate"
	"github.com/nsmithuk/dnsvalidate/vconfig"
	"github.com/nsmithuk/dnsvalidate/view"
	"github.com/nsmithuk/dnsvalidate/vlog"
)

// Attribute is the bit set spec.md §3 `attributes` describes.
type Attribute uint32

const (
	AttrShutdown Attribute = 1 << iota
	AttrCanceled
	AttrTriedVerify
	AttrInsecurity

	AttrNeedNoData
	AttrNeedNoQName
	AttrNeedNoWildcard
	AttrFoundNoData
	AttrFoundNoQName
	AttrFoundNoWildcard
	AttrFoundClosest
	AttrFoundOptOut
	AttrFoundUnknown
)

func (a *attrSet) has(bits Attribute) bool { return a.bits&bits != 0 }
func (a *attrSet) set(bits Attribute)      { a.bits |= bits }

type attrSet struct{ bits Attribute }

// Options mirrors spec.md §3 `options`: DEFER, NOCDFLAG, NONTA.
type Options struct {
	Defer        bool
	NoCDFlag     bool
	NoNTA        bool
	MustBeSecure bool
}

// Event is the delivered-to-caller event spec.md §6 describes. Proofs uses
// package validate's four named slots (NODATA/NOQNAME/NOWILDCARD/CLOSEST-
// ENCLOSER); spec.md §3 sizes the backing array at five for the original's
// internal layout, but only ever names these four.
type Event struct {
	Result      validate.Result
	Name        string
	Type        uint16
	RDataset    []dns.RR
	SigRDataset []dns.RR
	Message     *dns.Msg
	Proofs      [4]string
	OptOut      bool
	Secure      bool
}

// Deps bundles the external collaborators the orchestrator and the
// algorithmic cores (package validate) both need.
type Deps struct {
	Resolver resolve.Resolver
	View     view.View
	Anchors  anchor.Table
	Log      *vlog.Logger

	// Policy is the resolver-local policy bundle (spec.md §6/§9,
	// SPEC_FULL.md SUPPLEMENTED FEATURES #1/#3): per-name must-be-secure
	// overrides and negative-trust-anchor coverage. May be nil, in which
	// case neither policy applies and Options.MustBeSecure/NoNTA alone
	// govern the request.
	Policy *vconfig.Policy

	Now           func() time.Time
	AcceptExpired bool
	MaxClockSkew  time.Duration
}

// Validator is spec.md §3's validation-request entity V: created by the
// caller, optionally deferred, started once, and delivering exactly one
// Event before it is destroyed.
type Validator struct {
	mu sync.Mutex

	deps Deps
	req  validate.Request
	opts Options

	attrs  attrSet
	proofs [4]string

	parent *Validator
	depth  int

	started   bool
	done      chan Event
	delivered bool
	cancel    context.CancelFunc

	traceID uuid.UUID
	log     *vlog.Logger
}

// New creates a Validator for name/qtype with the given rdataset/sigset
// (either may be nil; the combination is classified on Start, spec.md §4.H).
func New(deps Deps, name string, qtype uint16, rdataset, sigrdataset []dns.RR, msg *dns.Msg, opts Options) *Validator {
	v := &Validator{
		deps:    deps,
		opts:    opts,
		done:    make(chan Event, 1),
		traceID: uuid.Must(uuid.NewRandom()),
	}
	mustBeSecure := opts.MustBeSecure
	if deps.Policy != nil && deps.Policy.MustBeSecureName(name) {
		mustBeSecure = true
	}
	v.req = validate.Request{
		Name:         dns.CanonicalName(name),
		QType:        qtype,
		RDataset:     rdataset,
		SigRDataset:  sigrdataset,
		Message:      msg,
		MustBeSecure: mustBeSecure,
		NoNTA:        opts.NoNTA,
	}
	if deps.Log != nil {
		v.log = deps.Log.WithDepth(0)
	}
	return v
}

// child creates a sub-validator of v for a recursive request, inheriting
// the ancestor chain for the deadlock check (spec.md §3 `parent`/`depth`,
// §4.H's deadlock avoidance).
func (v *Validator) child(req validate.Request) *Validator {
	child := &Validator{
		deps:    v.deps,
		opts:    v.opts,
		req:     req,
		parent:  v,
		depth:   req.Depth,
		done:    make(chan Event, 1),
		traceID: uuid.Must(uuid.NewRandom()),
	}
	if v.deps.Log != nil {
		child.log = v.deps.Log.WithDepth(child.depth)
	}
	return child
}

// Start begins validation. It runs to completion on the calling goroutine
// unless Options.Defer is set, in which case it is launched on its own
// goroutine and the caller receives the result from Wait.
//
// Deferred or not, Start (and every suspension it passes through) is the
// only place V's single lock is taken for any appreciable duration; per
// spec.md §5, V never holds mu while calling out to the resolver or a
// sub-validator, since those calls are themselves just further goroutine
// stack, not reentrant callbacks into V.
func (v *Validator) Start(ctx context.Context) {
	v.mu.Lock()
	if v.started {
		v.mu.Unlock()
		return
	}
	v.started = true
	ctx, cancel := context.WithCancel(ctx)
	v.cancel = cancel
	alreadyCanceled := v.attrs.has(AttrCanceled)
	v.mu.Unlock()

	if alreadyCanceled {
		cancel()
	}

	if v.opts.Defer {
		go v.run(ctx)
		return
	}
	v.run(ctx)
}

// Wait blocks until v has delivered its event, or ctx is done first.
func (v *Validator) Wait(ctx context.Context) (Event, error) {
	select {
	case ev := <-v.done:
		v.done <- ev // allow repeated Wait calls to observe the same event
		return ev, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

func (v *Validator) run(ctx context.Context) {
	if v.log != nil {
		v.log.Debug(fmt.Sprintf("validating %s/%d (trace %s)", v.req.Name, v.req.QType, v.traceID))
	}

	outcome := v.dispatch(ctx)
	outcome = v.applyNegativeTrustAnchor(outcome)
	v.deliver(outcome)
}

// applyNegativeTrustAnchor implements SPEC_FULL.md SUPPLEMENTED FEATURE #1:
// a name covered by a live negative trust anchor has its chain-of-trust
// break masked — a result that would otherwise be bogus is reported as
// Answer-insecure instead, unless the caller asked to bypass NTAs
// (Options.NoNTA, spec.md §6's NONTA) or the request is itself must-be-secure.
func (v *Validator) applyNegativeTrustAnchor(outcome validate.Outcome) validate.Outcome {
	if v.opts.NoNTA || v.req.MustBeSecure || v.deps.Policy == nil || !isBogusResult(outcome.Result) {
		return outcome
	}
	now := time.Now()
	if v.deps.Now != nil {
		now = v.deps.Now()
	}
	if !v.deps.Policy.UnderNegativeTrustAnchor(v.req.Name, now) {
		return outcome
	}
	if v.log != nil {
		v.log.Warn(fmt.Sprintf("%s/%d: masking %s under negative trust anchor", v.req.Name, v.req.QType, outcome.Result))
	}
	return validate.Outcome{Result: validate.AnswerInsecure}
}

// isBogusResult reports whether result is one of the "would otherwise be
// bogus" outcomes a negative trust anchor is entitled to mask (spec.md §7's
// taxonomy, excluding Success/AnswerInsecure/Canceled/MustBeSecureResult,
// which are not chain-of-trust breaks for an NTA to paper over).
func isBogusResult(result validate.Result) bool {
	switch result {
	case validate.NoValidSig, validate.NoValidKey, validate.NoValidDS, validate.NoValidNSEC, validate.NotInsecure, validate.BrokenChain:
		return true
	default:
		return false
	}
}

// dispatch implements spec.md §4.H's classification: the shape of the
// request's input material selects positive validation, direct insecurity
// proving, or denial validation.
func (v *Validator) dispatch(ctx context.Context) validate.Outcome {
	deps := v.validateDeps()

	req := v.req
	switch {
	case len(req.RDataset) > 0 && len(req.SigRDataset) > 0:
		v.mu.Lock()
		v.attrs.set(AttrTriedVerify)
		v.mu.Unlock()
		return validate.Positive(ctx, deps, req)

	case len(req.RDataset) > 0 && len(req.SigRDataset) == 0 && req.QType != 0:
		v.mu.Lock()
		v.attrs.set(AttrInsecurity)
		v.mu.Unlock()
		return validate.Insecurity(ctx, deps, req)

	default:
		return v.validateNX(ctx, deps)
	}
}

// validateDeps assembles a validate.Deps whose Sub hook recurses back into
// this package, closing the loop spec.md §3 `subvalidator` describes
// without validate importing validator (which would cycle).
func (v *Validator) validateDeps() validate.Deps {
	return validate.Deps{
		Resolver:      v.deps.Resolver,
		View:          v.deps.View,
		Anchors:       v.deps.Anchors,
		Log:           v.log,
		Now:           v.deps.Now,
		AcceptExpired: v.deps.AcceptExpired,
		MaxClockSkew:  v.deps.MaxClockSkew,
		Sub:           v.subValidate,
	}
}

// subValidate runs req as a full recursive sub-validation (spec.md §4.H
// "starts a sub-validator"), applying the ancestor-chain deadlock check
// before doing any work (spec.md §9, §4.H).
func (v *Validator) subValidate(ctx context.Context, req validate.Request) validate.SubResult {
	if req.WouldCycle(req.Name, req.QType, false) {
		return validate.SubResult{Outcome: validate.Outcome{Result: validate.NoValidSig, Err: validate.ErrAncestorCycle}, Err: validate.ErrAncestorCycle}
	}

	if ctx.Err() != nil {
		return validate.SubResult{Outcome: validate.Outcome{Result: validate.Canceled, Err: ctx.Err()}, Err: ctx.Err()}
	}

	sub := v.child(req)
	ev, err := sub.validateSync(ctx)
	if err != nil {
		return validate.SubResult{Outcome: validate.Outcome{Result: validate.Canceled, Err: err}, Err: err}
	}

	level := trust.Pending
	if ev.Secure {
		level = trust.Secure
	} else if ev.Result == validate.AnswerInsecure {
		level = trust.Answer
	}

	return validate.SubResult{
		Outcome: validate.Outcome{
			Result: ev.Result,
			Proofs: ev.Proofs,
			OptOut: ev.OptOut,
		},
		Level:       level,
		RDataset:    ev.RDataset,
		SigRDataset: ev.SigRDataset,
	}
}

// validateSync runs a sub-validator to completion and returns its event
// synchronously, matching spec.md §5's "two sub-validators are never
// outstanding at the same time" by never returning control to the parent
// until this one is fully resolved.
func (v *Validator) validateSync(ctx context.Context) (Event, error) {
	v.Start(ctx)
	return v.Wait(ctx)
}

// deliver folds outcome into the final Event and sends it exactly once
// (spec.md §3 "a result is delivered to the caller exactly once").
func (v *Validator) deliver(outcome validate.Outcome) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.delivered {
		return
	}
	v.delivered = true
	v.attrs.set(AttrShutdown)

	ev := Event{
		Result:      outcome.Result,
		Name:        v.req.Name,
		Type:        v.req.QType,
		RDataset:    v.req.RDataset,
		SigRDataset: v.req.SigRDataset,
		Message:     v.req.Message,
		Proofs:      outcome.Proofs,
		OptOut:      outcome.OptOut,
		Secure:      outcome.Result == validate.Success,
	}
	if v.log != nil {
		v.log.Info(fmt.Sprintf("%s/%d: %s (secure=%v)", v.req.Name, v.req.QType, ev.Result, ev.Secure))
	}
	v.done <- ev
}

// Cancel implements spec.md §4.H's cancellation: mark CANCELED, and if V
// has not been started and hasn't yet delivered, synchronously deliver a
// Canceled event. Once Start has run, Cancel cancels the run's context
// instead; the run observes it at its next context check and delivers
// Canceled itself.
func (v *Validator) Cancel() {
	v.mu.Lock()
	already := v.attrs.has(AttrCanceled)
	v.attrs.set(AttrCanceled)
	started := v.started
	delivered := v.delivered
	cancel := v.cancel
	v.mu.Unlock()

	if already {
		return
	}
	if cancel != nil {
		// The running (or about-to-run) goroutine observes ctx.Done() at
		// its next suspension point and delivers Canceled itself.
		cancel()
		return
	}
	if started || delivered {
		return
	}
	// Started is false and nothing will ever run: deliver synchronously so
	// a caller blocked in Wait still observes exactly one event, per
	// spec.md §3's "a result is delivered to the caller exactly once" —
	// unless the caller never calls Start at all, in which case Destroy
	// simply drops v with zero events delivered.
	v.deliver(validate.Outcome{Result: validate.Canceled})
}

// Destroy releases v. It is always safe to call regardless of whether v
// has started, finished, or is still suspended on a fetch/sub-validator —
// unlike spec.md §4.H's C original, Go's garbage collector reclaims V's
// memory once nothing references it, so Destroy has no free() to perform;
// it exists to document the call site and to make cancellation-before-
// destroy explicit the way the teacher's Close()/context-cancel pairing
// does in _examples/nsmithuk-resolver/dnssec/authenticator.go.
func (v *Validator) Destroy() {
	v.mu.Lock()
	neverStarted := !v.started && !v.delivered
	if neverStarted {
		// Nothing ran and nothing was delivered: drop v with zero events.
		v.attrs.set(AttrCanceled | AttrShutdown)
		v.delivered = true
	}
	v.mu.Unlock()
	if !neverStarted {
		v.Cancel()
	}
}
