package changelog

import (
	"encoding/hex"
	"fmt"
)

const IdentityBytes = 32

// Identity names a tree, a channel or an authorizer.
type Identity [IdentityBytes]byte

// IdentityFromBytes copies b, which must be exactly IdentityBytes long.
func IdentityFromBytes(b []byte) (Identity, error) {
	var id Identity
	if len(b) != IdentityBytes {
		return id, fmt.Errorf("identity must be %d bytes, got %d", IdentityBytes, len(b))
	}
	copy(id[:], b)
	return id, nil
}

// ParseIdentity decodes a 64 character hex string.
func ParseIdentity(s string) (Identity, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Identity{}, err
	}
	return IdentityFromBytes(b)
}

func (id Identity) String() string { return hex.EncodeToString(id[:]) }

func (id Identity) IsZero() bool { return id == Identity{} }
