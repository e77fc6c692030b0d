// Package resolve implements the resolver external collaborator (spec.md §6
// "Resolver"): the fetch machinery a Validator suspends on when it needs a
// DNSKEY, DS, or other rdataset it cannot find in the view cache.
package resolve

import (
	"context"
	"time"

	"github.com/miekg/dns"
)

// FetchOptions mirrors spec.md §6's resolver fetch options.
type FetchOptions struct {
	// NoCDFlag: do not suppress server-side (CD=0) validation.
	NoCDFlag bool
	// NoNTA: bypass negative trust anchors for this fetch.
	NoNTA bool
}

// FetchResult is what a completed Fetch delivers back to the Validator
// (spec.md §6's callback event, minus the db/node fields the spec says the
// validator detaches immediately — this module has no such cache handles to
// detach, so the result only carries the rdatasets).
type FetchResult struct {
	Name        string
	RDataset    []dns.RR
	SigRDataset []dns.RR
	Msg         *dns.Msg
	Err         error
}

// Fetch is a single outstanding resolver operation (spec.md §3 `fetch`,
// §5 "at most one outstanding resolver fetch").
type Fetch struct {
	cancel context.CancelFunc
	done   chan FetchResult
}

// Cancel aborts the fetch. The completion channel still receives a result
// (possibly with context.Canceled as Err) so the Validator's select loop
// always makes progress.
func (f *Fetch) Cancel() {
	if f.cancel != nil {
		f.cancel()
	}
}

// Done returns the channel the Validator selects on to learn the fetch's
// outcome. It is closed after exactly one send.
func (f *Fetch) Done() <-chan FetchResult {
	return f.done
}

// Resolver is the external fetch collaborator a Validator depends on.
type Resolver interface {
	// CreateFetch starts an asynchronous lookup for (name, qtype) and
	// returns immediately; the Validator suspends until Fetch.Done() fires.
	CreateFetch(ctx context.Context, name string, qtype uint16, opts FetchOptions) (*Fetch, error)

	// BadCacheCheck reports whether (name, qtype) was recently found to be
	// unresolvable and should not be retried yet (spec.md §6
	// `badcache_check`; SPEC_FULL.md SUPPLEMENTED FEATURES #4).
	BadCacheCheck(name string, qtype uint16, now time.Time) bool

	// AlgorithmSupported and DSDigestSupported expose resolver-level policy
	// (spec.md §6).
	AlgorithmSupported(algo uint8) bool
	DSDigestSupported(digestType uint8) bool
}
