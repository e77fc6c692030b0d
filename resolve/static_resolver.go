package resolve

import (
	"context"
	"sync"
	"time"

	"github.com/nsmithuk/dnsvalidate/vconfig"
)

// staticKey identifies one canned answer in a StaticResolver.
type staticKey struct {
	name  string
	qtype uint16
}

// StaticResolver is an in-process Resolver backed by a fixed answer table,
// for tests that need deterministic fetch completions without a live
// resolver (spec.md §9 "treat them as injected dependencies, not
// singletons, so that tests can supply synthetic tables").
type StaticResolver struct {
	mu      sync.Mutex
	answers map[staticKey]FetchResult
	policy  *vconfig.Policy
}

// NewStaticResolver returns an empty StaticResolver. policy may be nil, in
// which case all algorithms/digests are reported as supported.
func NewStaticResolver(policy *vconfig.Policy) *StaticResolver {
	return &StaticResolver{answers: make(map[staticKey]FetchResult), policy: policy}
}

// Set installs the canned FetchResult returned for (name, qtype).
func (s *StaticResolver) Set(name string, qtype uint16, result FetchResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers[staticKey{name, qtype}] = result
}

func (s *StaticResolver) CreateFetch(ctx context.Context, name string, qtype uint16, _ FetchOptions) (*Fetch, error) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan FetchResult, 1)

	s.mu.Lock()
	result, ok := s.answers[staticKey{name, qtype}]
	s.mu.Unlock()
	if !ok {
		result = FetchResult{Name: name}
	}

	go func() {
		select {
		case <-ctx.Done():
			done <- FetchResult{Name: name, Err: ctx.Err()}
		default:
			done <- result
		}
		close(done)
	}()

	return &Fetch{cancel: cancel, done: done}, nil
}

func (s *StaticResolver) BadCacheCheck(string, uint16, time.Time) bool {
	return false
}

func (s *StaticResolver) AlgorithmSupported(algo uint8) bool {
	if s.policy == nil {
		return true
	}
	return s.policy.AlgorithmSupported(algo)
}

func (s *StaticResolver) DSDigestSupported(digestType uint8) bool {
	if s.policy == nil {
		return true
	}
	return s.policy.DSDigestSupported(digestType)
}

var _ Resolver = (*StaticResolver)(nil)
