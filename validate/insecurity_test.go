package validate

import (
	"context"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"

	"github.com/nsmithuk/dnsvalidate/anchor"
	"github.com/nsmithuk/dnsvalidate/resolve"
	"github.com/nsmithuk/dnsvalidate/vconfig"
	"github.com/nsmithuk/dnsvalidate/view"
)

func TestInsecurityProvesUnsignedDelegation(t *testing.T) {
	anchors := anchor.NewMapTable()
	anchors.Add(testZone, nil)

	delegated := "insecure." + testZone
	nsec := &dns.NSEC{
		Hdr:        dns.RR_Header{Name: delegated, Rrtype: dns.TypeNSEC, Class: dns.ClassINET},
		TypeBitMap: []uint16{dns.TypeNS},
	}

	lru, err := view.NewLRUView(16, nil)
	require.NoError(t, err)
	lru.Store(delegated, dns.TypeDS, view.FindResult{
		Status:   view.NcacheNXRRset,
		RDataset: []dns.RR{nsec},
	}, time.Now().Add(time.Hour))

	deps := Deps{
		Resolver: resolve.NewStaticResolver(vconfig.Load(nil)),
		View:     lru,
		Anchors:  anchors,
		Now:      time.Now,
	}

	req := Request{Name: delegated, QType: dns.TypeA}
	outcome := Insecurity(context.Background(), deps, req)

	require.Equal(t, AnswerInsecure, outcome.Result)
	require.NoError(t, outcome.Err)
}

func TestInsecurityHonorsMustBeSecureOverride(t *testing.T) {
	anchors := anchor.NewMapTable()
	anchors.Add(testZone, nil)

	delegated := "insecure." + testZone
	nsec := &dns.NSEC{
		Hdr:        dns.RR_Header{Name: delegated, Rrtype: dns.TypeNSEC, Class: dns.ClassINET},
		TypeBitMap: []uint16{dns.TypeNS},
	}

	lru, err := view.NewLRUView(16, nil)
	require.NoError(t, err)
	lru.Store(delegated, dns.TypeDS, view.FindResult{
		Status:   view.NcacheNXRRset,
		RDataset: []dns.RR{nsec},
	}, time.Now().Add(time.Hour))

	deps := Deps{
		Resolver: resolve.NewStaticResolver(vconfig.Load(nil)),
		View:     lru,
		Anchors:  anchors,
		Now:      time.Now,
	}

	req := Request{Name: delegated, QType: dns.TypeA, MustBeSecure: true}
	outcome := Insecurity(context.Background(), deps, req)

	require.Equal(t, MustBeSecureResult, outcome.Result)
	require.Error(t, outcome.Err)
}
