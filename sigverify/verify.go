// Package sigverify checks a single RRSIG against a single candidate key,
// the way the validator's signature-iteration loop expects: one call per
// (rrset, rrsig, key) triple, returning a small result enum rather than
// raising an error for the expected "this key doesn't apply" case.
package sigverify

import (
	"fmt"
	"time"

	"github.com/miekg/dns"
)

// Outcome enumerates what happened when a candidate key was tried against a
// signature. It deliberately mirrors spec.md's verifier contract: Ok,
// FromWildcard, SigExpired, SigFuture, or an opaque BadSig.
type Outcome uint8

const (
	Ok Outcome = iota
	FromWildcard
	SigExpired
	SigFuture
	BadSig
)

func (o Outcome) String() string {
	switch o {
	case Ok:
		return "ok"
	case FromWildcard:
		return "from-wildcard"
	case SigExpired:
		return "sig-expired"
	case SigFuture:
		return "sig-future"
	case BadSig:
		return "bad-sig"
	default:
		return "unknown"
	}
}

// Result is the full outcome of a single verification attempt.
type Result struct {
	Outcome Outcome

	// WildcardName is set when Outcome is FromWildcard: the name that
	// synthesized the answer (dropping one label of the owner's qname-side
	// labels count short of the RRSIG's Labels field).
	WildcardName string

	// AcceptedExpired is true when the signature was outside its validity
	// window but was accepted anyway under an accept-expired policy.
	AcceptedExpired bool

	Err error
}

// Logger lets callers observe accepted-expired events without pulling a
// logging dependency into this package's API.
type Logger func(format string, args ...any)

// Verify checks rrsig over rrset using key, at time now. maxClockSkew
// widens the signature's validity window by that much tolerance in either
// direction before the window is considered lapsed (BIND9's max-clock-skew
// knob, spec.md §4.B's "expired/future" classification made skew-tolerant
// per SPEC_FULL.md's SUPPLEMENTED FEATURES). Only once the skew-widened
// window still rejects the signature does Verify, when acceptExpired is
// true, retry once more with the time check ignored entirely and report
// AcceptedExpired, logging the event via info (if non-nil).
func Verify(rrset []dns.RR, rrsig *dns.RRSIG, key *dns.DNSKEY, now time.Time, maxClockSkew time.Duration, acceptExpired bool, info Logger) Result {
	if dns.CountLabel(rrsig.Header().Name) > int(rrsig.Labels) {
		// The owner name has more labels than the RRSIG claims were
		// signed: this is a wildcard-synthesized answer. The caller
		// derives the actual synthesizing name; we just flag it.
		wildcard := wildcardName(rrsig)
		if !withinSkewedValidity(rrsig, now, maxClockSkew) {
			if !acceptExpired {
				return timeResult(rrsig, now)
			}
			if err := rrsig.Verify(key, rrset); err != nil {
				return Result{Outcome: BadSig, Err: fmt.Errorf("wildcard signature invalid even ignoring time: %w", err)}
			}
			if info != nil {
				info("accepted expired signature for wildcard %s (owner %s)", wildcard, rrsig.Header().Name)
			}
			return Result{Outcome: FromWildcard, WildcardName: wildcard, AcceptedExpired: true}
		}
		if err := rrsig.Verify(key, rrset); err != nil {
			return Result{Outcome: BadSig, Err: err}
		}
		return Result{Outcome: FromWildcard, WildcardName: wildcard}
	}

	if !withinSkewedValidity(rrsig, now, maxClockSkew) {
		if !acceptExpired {
			return timeResult(rrsig, now)
		}
		if err := rrsig.Verify(key, rrset); err != nil {
			return Result{Outcome: BadSig, Err: fmt.Errorf("signature invalid even ignoring time: %w", err)}
		}
		if info != nil {
			info("accepted expired signature for %s", rrsig.Header().Name)
		}
		return Result{Outcome: Ok, AcceptedExpired: true}
	}

	if err := rrsig.Verify(key, rrset); err != nil {
		return Result{Outcome: BadSig, Err: err}
	}

	return Result{Outcome: Ok}
}

// withinSkewedValidity reports whether rrsig's validity window contains now
// once widened by maxClockSkew in either direction: a signature that just
// missed the strict window because the local clock (or the signer's) drifted
// by less than maxClockSkew is still treated as valid, the same tolerance
// BIND9's named.conf max-clock-skew grants.
func withinSkewedValidity(rrsig *dns.RRSIG, now time.Time, maxClockSkew time.Duration) bool {
	if rrsig.ValidityPeriod(now) {
		return true
	}
	if maxClockSkew <= 0 {
		return false
	}
	// A clock running behind makes "now" look earlier than it is: check as
	// though more time had passed. A clock running ahead makes "now" look
	// later: check as though less time had passed.
	return rrsig.ValidityPeriod(now.Add(maxClockSkew)) || rrsig.ValidityPeriod(now.Add(-maxClockSkew))
}

func timeResult(rrsig *dns.RRSIG, now time.Time) Result {
	nowSecs := uint32(now.Unix())
	if dns.SerialArithmeticLess(nowSecs, rrsig.Inception) {
		return Result{Outcome: SigFuture, Err: fmt.Errorf("signature not yet valid: inception %s", dns.TimeToString(rrsig.Inception))}
	}
	return Result{Outcome: SigExpired, Err: fmt.Errorf("signature expired: expiration %s", dns.TimeToString(rrsig.Expiration))}
}

// wildcardName derives the synthesizing wildcard name for rrsig: the
// owner's qname with all but rrsig.Labels+1 labels replaced by "*".
func wildcardName(rrsig *dns.RRSIG) string {
	owner := dns.CanonicalName(rrsig.Header().Name)
	indexes := dns.Split(owner)
	labels := int(rrsig.Labels)
	if labels <= 0 || labels >= len(indexes) {
		return "*." + owner
	}
	// The signed (pre-synthesis) name has exactly `labels` labels; keep the
	// last `labels` labels of the owner name and prepend the wildcard.
	return "*." + owner[indexes[len(indexes)-labels]:]
}
