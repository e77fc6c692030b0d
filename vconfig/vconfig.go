// Package vconfig loads validator policy (spec.md §6/§9's resolver-level
// predicates: accept-expired, algorithm/digest allow-lists, must-be-secure
// names, negative trust anchors, and BIND9-derived ambient policy knobs
// carried in SPEC_FULL.md's SUPPLEMENTED FEATURES) from a viper-backed
// config source.
package vconfig

import (
	"strings"
	"time"

	"github.com/nsmithuk/dnsvalidate/anchor"
	"github.com/spf13/viper"
)

// Policy is the resolver-local policy a validator consults while running.
// It is immutable once loaded; callers load a new Policy to pick up changes.
type Policy struct {
	// AcceptExpired mirrors the view's accept-expired configuration
	// (spec.md §4.B): retry a failed time check once with ignore_time=true.
	AcceptExpired bool

	// MaxClockSkew tolerates bounded clock drift before rejecting a
	// signature as expired/not-yet-valid (BIND9 validator.c's inception/
	// expiration fuzz, SPEC_FULL.md SUPPLEMENTED FEATURES #5).
	MaxClockSkew time.Duration

	// DisabledAlgorithms and DisabledDigests are resolver-level policy
	// predicates (spec.md §6's algorithm_supported/ds_digest_supported),
	// given first-class config surface per SUPPLEMENTED FEATURES #2.
	DisabledAlgorithms map[uint8]bool
	DisabledDigests    map[uint8]bool

	// MustBeSecure is the per-name policy table (SUPPLEMENTED FEATURES #3):
	// names in this set that fail to validate as secure return
	// trust.ErrMustBeSecure instead of downgrading to answer/insecure.
	MustBeSecure map[string]bool

	// NegativeTrustAnchors lists zones for which validation is bypassed
	// until the attached expiry, unless the caller set options.NONTA
	// (SUPPLEMENTED FEATURES #1).
	NegativeTrustAnchors anchor.NegativeTrustAnchors
}

// Load reads policy from v, applying defaults for anything unset. v may be
// nil, in which case an all-defaults Policy is returned.
func Load(v *viper.Viper) *Policy {
	if v == nil {
		v = viper.New()
	}
	v.SetDefault("accept_expired", false)
	v.SetDefault("max_clock_skew", "0s")
	v.SetDefault("disabled_algorithms", []int{})
	v.SetDefault("disabled_digests", []int{})
	v.SetDefault("must_be_secure", []string{})
	v.SetDefault("negative_trust_anchors", map[string]string{})

	ntaEntries := map[string]time.Time{}
	for name, expiry := range v.GetStringMapString("negative_trust_anchors") {
		t, err := time.Parse(time.RFC3339, expiry)
		if err != nil {
			continue
		}
		ntaEntries[name] = t
	}

	p := &Policy{
		AcceptExpired:        v.GetBool("accept_expired"),
		MaxClockSkew:         v.GetDuration("max_clock_skew"),
		DisabledAlgorithms:   toUint8Set(v.GetIntSlice("disabled_algorithms")),
		DisabledDigests:      toUint8Set(v.GetIntSlice("disabled_digests")),
		MustBeSecure:         toNameSet(v.GetStringSlice("must_be_secure")),
		NegativeTrustAnchors: anchor.NewNegativeTrustAnchors(ntaEntries),
	}

	return p
}

func toUint8Set(vals []int) map[uint8]bool {
	out := make(map[uint8]bool, len(vals))
	for _, v := range vals {
		out[uint8(v)] = true
	}
	return out
}

func toNameSet(names []string) map[string]bool {
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[normalizeName(n)] = true
	}
	return out
}

func normalizeName(name string) string {
	name = strings.ToLower(name)
	if !strings.HasSuffix(name, ".") {
		name += "."
	}
	return name
}

// AlgorithmSupported reports whether algo is permitted by policy.
func (p *Policy) AlgorithmSupported(algo uint8) bool {
	return !p.DisabledAlgorithms[algo]
}

// DSDigestSupported reports whether digestType is permitted by policy.
func (p *Policy) DSDigestSupported(digestType uint8) bool {
	return !p.DisabledDigests[digestType]
}

// MustBeSecureName reports whether name carries a must-be-secure policy.
func (p *Policy) MustBeSecureName(name string) bool {
	return p.MustBeSecure[normalizeName(name)]
}

// UnderNegativeTrustAnchor reports whether name is covered by a live
// (unexpired) negative trust anchor at now.
func (p *Policy) UnderNegativeTrustAnchor(name string, now time.Time) bool {
	return p.NegativeTrustAnchors.Covers(name, now)
}
