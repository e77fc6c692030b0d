package validate

import "errors"

var (
	ErrKeysNotFound               = errors.New("no dnskey records found for zone")
	ErrKeySigningKeysNotFound     = errors.New("no dnskey records found that match the parent ds records")
	ErrAuthSignerNameMismatch     = errors.New("rrsig signer name does not match the zone's origin")
	ErrInvalidLabelCount          = errors.New("number of labels in the rrset owner name is less than the rrsig labels field")
	ErrUnsupportedAlgorithm       = errors.New("rrsig algorithm is disabled by policy")
	ErrNoSupportedDigest          = errors.New("no ds record uses a supported digest algorithm")
	ErrUnsignedDS                 = errors.New("ds rrset is pending but carries no signature")
	ErrNoDSForZone                = errors.New("zone has no ds rrset at its parent")
	ErrSignerNameNotParentOfQName = errors.New("the signer name is not an ancestor of the qname")
	ErrMultipleWildcardSignatures = errors.New("multiple wildcard signatures seen in one answer")
	ErrBogusWildcardDoeNotFound   = errors.New("wildcard synthesis seen but no denial-of-existence proof for qname found")
	ErrNoProofFound               = errors.New("denial-of-existence proof required but absent or insufficient")
	ErrAncestorCycle              = errors.New("request would revisit an ancestor (name, qtype) pair")
)
