// Package identity encodes wallet addresses and the previous-login record
// the client persists across runs (§6 "Environment at boot").
//
// Addresses follow the same base58 idiom used for node DID encoding
// (server/nodedid/nodedid.go's encodeDIDKey), applied here to the raw
// 20-byte wallet address rather than a did:key-wrapped ed25519 public key.
package identity

import (
	"github.com/mr-tron/base58"

	"github.com/coreworld/explorer/errors"
)

// AddressLength is the byte length of a wallet address (§3, "Foreign
// player record").
const AddressLength = 20

// Address is a 20-byte wallet address identifying a peer.
type Address [AddressLength]byte

// String returns the base58 encoding of the address.
func (a Address) String() string {
	return base58.Encode(a[:])
}

// IsZero reports whether the address is the all-zero sentinel, used for
// "no address assigned yet" in foreign-player bookkeeping.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Parse decodes a base58-encoded wallet address.
func Parse(s string) (Address, error) {
	var addr Address
	decoded, err := base58.Decode(s)
	if err != nil {
		return addr, errors.Wrapf(err, "decode address %q", s)
	}
	if len(decoded) != AddressLength {
		return addr, errors.Newf("address %q decodes to %d bytes, want %d", s, len(decoded), AddressLength)
	}
	copy(addr[:], decoded)
	return addr, nil
}

// FromBytes copies a byte slice into an Address, erroring if the length
// doesn't match.
func FromBytes(b []byte) (Address, error) {
	var addr Address
	if len(b) != AddressLength {
		return addr, errors.Newf("address bytes have length %d, want %d", len(b), AddressLength)
	}
	copy(addr[:], b)
	return addr, nil
}
