package validate

import (
	"context"
	"crypto/ecdsa"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"

	"github.com/nsmithuk/dnsvalidate/resolve"
	"github.com/nsmithuk/dnsvalidate/vconfig"
	"github.com/nsmithuk/dnsvalidate/view"
)

const testZone = "example.com."

func genKey(t *testing.T) (*dns.DNSKEY, *ecdsa.PrivateKey) {
	t.Helper()
	key := &dns.DNSKEY{
		Hdr:       dns.RR_Header{Name: testZone, Rrtype: dns.TypeDNSKEY, Class: dns.ClassINET, Ttl: 3600},
		Flags:     257,
		Protocol:  3,
		Algorithm: dns.ECDSAP256SHA256,
	}
	priv, err := key.Generate(256)
	require.NoError(t, err)
	ecdsaPriv, ok := priv.(*ecdsa.PrivateKey)
	require.True(t, ok)
	return key, ecdsaPriv
}

func sign(t *testing.T, owner, signer string, key *dns.DNSKEY, priv *ecdsa.PrivateKey, rrset []dns.RR) *dns.RRSIG {
	t.Helper()
	now := time.Now()
	rrsig := &dns.RRSIG{
		Hdr:        dns.RR_Header{Name: owner, Rrtype: dns.TypeRRSIG, Class: dns.ClassINET},
		Inception:  uint32(now.Add(-time.Hour).Unix()),
		Expiration: uint32(now.Add(time.Hour).Unix()),
		KeyTag:     key.KeyTag(),
		SignerName: signer,
		Algorithm:  key.Algorithm,
		Labels:     uint8(len(dns.SplitDomainName(owner))),
	}
	require.NoError(t, rrsig.Sign(priv, rrset))
	return rrsig
}

func aRR(t *testing.T, owner string) dns.RR {
	t.Helper()
	rr, err := dns.NewRR(owner + " 300 IN A 192.0.2.1")
	require.NoError(t, err)
	return rr
}

// depsWithSecureKey builds a Deps whose view already holds zsk as a secure
// DNSKEY rdataset, so Positive never needs to recurse through Deps.Sub.
func depsWithSecureKey(t *testing.T, zsk *dns.DNSKEY) Deps {
	t.Helper()
	lru, err := view.NewLRUView(16, nil)
	require.NoError(t, err)
	lru.Store(testZone, dns.TypeDNSKEY, view.FindResult{
		Status:   view.Success,
		RDataset: []dns.RR{zsk},
		Secure:   true,
	}, time.Now().Add(time.Hour))

	return Deps{
		Resolver: resolve.NewStaticResolver(vconfig.Load(nil)),
		View:     lru,
		Now:      time.Now,
	}
}

func TestPositiveVerifiesSignedAnswer(t *testing.T) {
	zsk, priv := genKey(t)
	owner := "www." + testZone
	a := aRR(t, owner)
	rrsig := sign(t, owner, testZone, zsk, priv, []dns.RR{a})

	req := Request{Name: owner, QType: dns.TypeA, RDataset: []dns.RR{a}, SigRDataset: []dns.RR{rrsig}}
	outcome := Positive(context.Background(), depsWithSecureKey(t, zsk), req)

	require.Equal(t, Success, outcome.Result)
	require.NoError(t, outcome.Err)
}

func TestPositiveRejectsTamperedAnswer(t *testing.T) {
	zsk, priv := genKey(t)
	owner := "www." + testZone
	a := aRR(t, owner)
	rrsig := sign(t, owner, testZone, zsk, priv, []dns.RR{a})

	tampered := a.(*dns.A)
	tampered.A = tampered.A.To4()
	tampered.A[3] ^= 0xFF

	req := Request{Name: owner, QType: dns.TypeA, RDataset: []dns.RR{a}, SigRDataset: []dns.RR{rrsig}}
	outcome := Positive(context.Background(), depsWithSecureKey(t, zsk), req)

	require.Equal(t, NoValidSig, outcome.Result)
	require.Error(t, outcome.Err)
}

func TestPositiveRejectsSignerOutsideQNameAncestry(t *testing.T) {
	zsk, priv := genKey(t)
	owner := "www." + testZone
	a := aRR(t, owner)
	// Signed as if by a completely unrelated zone; checkSignerIsAncestor must reject it.
	rrsig := sign(t, owner, "other.test.", zsk, priv, []dns.RR{a})

	req := Request{Name: owner, QType: dns.TypeA, RDataset: []dns.RR{a}, SigRDataset: []dns.RR{rrsig}}
	outcome := Positive(context.Background(), depsWithSecureKey(t, zsk), req)

	require.Equal(t, NoValidSig, outcome.Result)
	require.ErrorIs(t, outcome.Err, ErrSignerNameNotParentOfQName)
}
