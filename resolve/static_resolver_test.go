package resolve

import (
	"context"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
)

func TestStaticResolverReturnsConfiguredAnswer(t *testing.T) {
	r := NewStaticResolver(nil)
	a := &dns.A{Hdr: dns.RR_Header{Name: "example.com.", Rrtype: dns.TypeA}}
	r.Set("example.com.", dns.TypeA, FetchResult{Name: "example.com.", RDataset: []dns.RR{a}})

	fetch, err := r.CreateFetch(context.Background(), "example.com.", dns.TypeA, FetchOptions{})
	require.NoError(t, err)

	select {
	case result := <-fetch.Done():
		require.NoError(t, result.Err)
		require.Len(t, result.RDataset, 1)
	case <-time.After(time.Second):
		t.Fatal("fetch did not complete")
	}
}

func TestStaticResolverDefaultsToEmptyResult(t *testing.T) {
	r := NewStaticResolver(nil)

	fetch, err := r.CreateFetch(context.Background(), "nope.example.", dns.TypeA, FetchOptions{})
	require.NoError(t, err)

	result := <-fetch.Done()
	require.NoError(t, result.Err)
	require.Empty(t, result.RDataset)
}

func TestStaticResolverCancel(t *testing.T) {
	r := NewStaticResolver(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetch, err := r.CreateFetch(ctx, "example.com.", dns.TypeA, FetchOptions{})
	require.NoError(t, err)

	result := <-fetch.Done()
	require.Error(t, result.Err)
}

func TestStaticResolverPolicyDefaultsToSupportedWhenNil(t *testing.T) {
	r := NewStaticResolver(nil)
	require.True(t, r.AlgorithmSupported(8))
	require.True(t, r.DSDigestSupported(2))
}
