// Package seal signs a summary of one completed invocation as a COSE Sign1
// message. The summary commits to the digest of every message the
// invocation emitted, so a consumer holding the seal can check it has seen
// each batch exactly once.
package seal

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"fmt"

	dtcbor "github.com/datatrails/go-datatrails-common/cbor"
	dtcose "github.com/datatrails/go-datatrails-common/cose"
	"github.com/veraison/go-cose"
)

var (
	ErrSealVerifyFailed = errors.New("seal: the seal signature verification failed")
)

// PublicKeyProvider supplies the key a seal is verified against.
// dtcose.NewCWTPublicKeyProvider reads it from the seal's own CWT claims.
type PublicKeyProvider interface {
	PublicKey() (crypto.PublicKey, cose.Algorithm, error)
}
// InvocationState is the signed summary of one invocation.
type InvocationState struct {
	// InvocationID is the 16 byte uuid of the invocation.
	InvocationID []byte `cbor:"1,keyasint"`
	TreeID       []byte `cbor:"2,keyasint"`
	Batches      uint64 `cbor:"3,keyasint"`
	Records      uint64 `cbor:"4,keyasint"`
	// LastSequence is the sequence number of the last record emitted.
	LastSequence uint64 `cbor:"5,keyasint"`
	// Digest is the running SHA256 over every emitted message, in emission
	// order.
	Digest []byte `cbor:"6,keyasint"`
	// Timestamp is the unix time (milliseconds) read when the state was
	// sealed.
	Timestamp int64 `cbor:"7,keyasint"`
}

// Sealer produces seals over invocation states.
type Sealer struct {
	issuer    string
	cborCodec dtcbor.CBORCodec
}

func NewSealer(issuer string, cborCodec dtcbor.CBORCodec) Sealer {
	return Sealer{
		issuer:    issuer,
		cborCodec: cborCodec,
	}
}

// Sign1 signs state. The public key is carried in a CWT confirmation claim
// so the seal can be checked from its own bytes, trusting that key is a
// decision for the verifier. The payload stays attached, unlike a log
// checkpoint there is nothing a verifier could use to recover it.
func (s Sealer) Sign1(
	coseSigner cose.Signer, keyIdentifier string, publicKey *ecdsa.PublicKey, subject string,
	state InvocationState, external []byte) ([]byte, error) {

	payload, err := s.cborCodec.MarshalCBOR(state)
	if err != nil {
		return nil, err
	}

	claims := dtcose.NewCNFClaim(s.issuer, subject, keyIdentifier, coseSigner.Algorithm(), *publicKey)
	msg := cose.Sign1Message{
		Headers: cose.Headers{
			Protected: cose.ProtectedHeader{
				cose.HeaderLabelAlgorithm:   coseSigner.Algorithm(),
				cose.HeaderLabelKeyID:       []byte(keyIdentifier),
				dtcose.HeaderLabelCWTClaims: claims,
			},
		},
		Payload: payload,
	}
	if err = msg.Sign(rand.Reader, external, coseSigner); err != nil {
		return nil, err
	}
	return msg.MarshalCBOR()
}

// DecodeSeal decodes the state from a seal without verifying it.
func DecodeSeal(codec dtcbor.CBORCodec, data []byte) (*dtcose.CoseSign1Message, InvocationState, error) {
	signed, err := dtcose.NewCoseSign1MessageFromCBOR(data, newDecOptions()...)
	if err != nil {
		return nil, InvocationState{}, err
	}
	var unverified InvocationState
	if err = codec.UnmarshalInto(signed.Payload, &unverified); err != nil {
		return nil, InvocationState{}, err
	}
	return signed, unverified, nil
}

// VerifySeal checks the seal signature against the key from keyProvider
// and returns the verified state. A nil keyProvider uses the key embedded
// in the seal.
func VerifySeal(
	codec dtcbor.CBORCodec, keyProvider PublicKeyProvider, data []byte, external []byte) (InvocationState, error) {
	signed, state, err := DecodeSeal(codec, data)
	if err != nil {
		return InvocationState{}, err
	}
	if keyProvider == nil {
		keyProvider = dtcose.NewCWTPublicKeyProvider(signed)
	}
	if err = signed.VerifyWithProvider(keyProvider, external); err != nil {
		return InvocationState{}, fmt.Errorf("%w: %v", ErrSealVerifyFailed, err)
	}
	return state, nil
}

// VerifyEmbedded verifies data against the public key in its own CWT
// confirmation claim.
func VerifyEmbedded(codec dtcbor.CBORCodec, data []byte, external []byte) (InvocationState, error) {
	return VerifySeal(codec, nil, data, external)
}

// NewCodec returns the deterministic codec seals are encoded with.
func NewCodec() (dtcbor.CBORCodec, error) {
	codec, err := dtcbor.NewCBORCodec(
		dtcbor.NewDeterministicEncOpts(),
		dtcbor.NewDeterministicDecOpts(), // unsigned int decodes to uint64
	)
	if err != nil {
		return dtcbor.CBORCodec{}, err
	}
	return codec, nil
}

func newDecOptions() []dtcose.SignOption {
	return []dtcose.SignOption{dtcose.WithDecOptions(dtcbor.NewDeterministicDecOpts())}
}
