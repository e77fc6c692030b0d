package doe

import (
	"sort"
	"strings"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
)

const testIterations = 1
const testSalt = "ab"

func hashLabel(t *testing.T, name string) string {
	t.Helper()
	return strings.ToLower(dns.HashName(name, dns.SHA1, testIterations, testSalt))
}

// buildNsec3Chain hashes each of names plus zone's apex, sorts the hashed
// owners, and links each record's NextDomain to the following one in the
// ring (wrapping around), producing a valid covering NSEC3 chain.
func buildNsec3Chain(t *testing.T, zone string, entries map[string][]uint16, optOut bool) []*dns.NSEC3 {
	t.Helper()

	type entry struct {
		hash  string
		types []uint16
	}

	var es []entry
	for name, types := range entries {
		es = append(es, entry{hash: hashLabel(t, name), types: types})
	}
	sort.Slice(es, func(i, j int) bool { return es[i].hash < es[j].hash })

	flags := uint8(0)
	if optOut {
		flags = 1
	}

	records := make([]*dns.NSEC3, len(es))
	for i, e := range es {
		next := es[(i+1)%len(es)].hash
		records[i] = &dns.NSEC3{
			Hdr:        dns.RR_Header{Name: e.hash + "." + zone, Rrtype: dns.TypeNSEC3, Class: dns.ClassINET},
			Hash:       dns.SHA1,
			Flags:      flags,
			Iterations: testIterations,
			SaltLength: uint8(len(testSalt) / 2),
			Salt:       testSalt,
			HashLength: uint8(len(next) / 2),
			NextDomain: next,
			TypeBitMap: e.types,
		}
	}
	return records
}

func TestNsec3NoexistNodataExactMatch(t *testing.T) {
	rrset := buildNsec3Chain(t, "example.com.", map[string][]uint16{
		"host.example.com.": {dns.TypeA, dns.TypeRRSIG},
		"other.example.com.": {dns.TypeA},
	}, false)

	result := Nsec3NoexistNodata(dns.TypeAAAA, "host.example.com.", rrset, "example.com.")
	require.True(t, result.Exists)
	require.False(t, result.Data)

	result = Nsec3NoexistNodata(dns.TypeA, "host.example.com.", rrset, "example.com.")
	require.True(t, result.Exists)
	require.True(t, result.Data)
}

func TestNsec3NoexistNodataClosestEncloser(t *testing.T) {
	rrset := buildNsec3Chain(t, "example.com.", map[string][]uint16{
		"example.com.":       {dns.TypeSOA, dns.TypeNS},
		"host.example.com.":  {dns.TypeA},
		"other.example.com.": {dns.TypeA},
	}, false)

	// "ghost.host.example.com." doesn't exist; its closest encloser is
	// "host.example.com.", one label below qname.
	result := Nsec3NoexistNodata(dns.TypeA, "ghost.host.example.com.", rrset, "example.com.")
	require.False(t, result.Exists)
	require.True(t, result.SetClosest)
	require.Equal(t, "host.example.com.", result.Closest)
	require.False(t, result.OptOut)
}

func TestNsec3NoexistNodataOptOut(t *testing.T) {
	rrset := buildNsec3Chain(t, "example.com.", map[string][]uint16{
		"example.com.":       {dns.TypeSOA, dns.TypeNS},
		"host.example.com.":  {dns.TypeA},
		"other.example.com.": {dns.TypeA},
	}, true)

	result := Nsec3NoexistNodata(dns.TypeA, "ghost.host.example.com.", rrset, "example.com.")
	require.False(t, result.Exists)
	require.True(t, result.OptOut)
}

func TestNsec3FilterKnownUnknownHash(t *testing.T) {
	rrset := buildNsec3Chain(t, "example.com.", map[string][]uint16{
		"host.example.com.": {dns.TypeA},
	}, false)
	rrset[0].Hash = 99 // unknown hash algorithm

	known, unknown := FilterKnown(rrset)
	require.True(t, unknown)
	require.Empty(t, known)
}

func TestNsec3ClosestEncloserProof(t *testing.T) {
	rrset := buildNsec3Chain(t, "example.com.", map[string][]uint16{
		"example.com.":       {dns.TypeSOA, dns.TypeNS},
		"host.example.com.":  {dns.TypeA},
		"other.example.com.": {dns.TypeA},
	}, false)

	optOut, ceProof, ncProof, wcProof, closest := Nsec3ClosestEncloserProof(rrset, "example.com.", "ghost.host.example.com.")
	require.True(t, ceProof)
	require.True(t, ncProof)
	require.False(t, optOut)
	require.Equal(t, "host.example.com.", closest)
	// The synthesized wildcard "*.host.example.com." is also covered (no
	// record owns it), so a wildcard could not have answered either.
	require.True(t, wcProof)
}

func TestNsec3ExpandedWildcardProof(t *testing.T) {
	rrset := buildNsec3Chain(t, "example.com.", map[string][]uint16{
		"example.com.":        {dns.TypeSOA, dns.TypeNS},
		"host.example.com.":   {dns.TypeA},
		"*.host.example.com.": {dns.TypeA},
	}, false)

	// A wildcard "*.host.example.com." answered for "ghost.host.example.com.";
	// the wildcard owns an NSEC3 record, so it is matched rather than covered.
	// RFC 4034 §3.1.3: RRSIG.Labels counts the owner's labels excluding the
	// root and excluding the synthesizing "*", so a wildcard expansion one
	// label below "host.example.com." (3 labels) signs with Labels=3.
	ok := Nsec3ExpandedWildcardProof(rrset, "ghost.host.example.com.", 3)
	require.True(t, ok)
}

func TestNsec3TypeBitmapContains(t *testing.T) {
	rrset := buildNsec3Chain(t, "example.com.", map[string][]uint16{
		"host.example.com.": {dns.TypeA, dns.TypeMX},
	}, false)

	seen, typeSeen := Nsec3TypeBitmapContains(rrset, "host.example.com.", []uint16{dns.TypeAAAA, dns.TypeMX})
	require.True(t, seen)
	require.True(t, typeSeen)

	seen, typeSeen = Nsec3TypeBitmapContains(rrset, "nope.example.com.", []uint16{dns.TypeMX})
	require.False(t, seen)
	require.False(t, typeSeen)
}
