// Package message implements the signed envelope that carries site
// announcements between peers.
//
// An envelope is a CBOR array [id, signature, public_key, payload] using the
// RFC 8949 core deterministic encoding. The signature is an ed25519
// signature over the canonical encoding of the payload alone, so any
// receiver can verify it by re-encoding the decoded payload.
package message

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/udit2303/sitegossip/pkg/keys"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	if encMode, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:        cbor.DupMapKeyEnforcedAPF,
		IndefLength:      cbor.IndefLengthForbidden,
		UTF8:             cbor.UTF8RejectInvalid,
		MaxNestedLevels:  8,
		MaxArrayElements: 16,
		MaxMapPairs:      16,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// Envelope is a signed payload as it travels between peers.
//
// ID is a random nonce that makes repeated broadcasts of the same payload
// distinct for the transport's duplicate filter. It has no meaning above
// the transport.
type Envelope struct {
	ID        uint32
	Signature []byte
	PublicKey []byte
	Payload   Payload
}

type envelopeWire struct {
	_         struct{} `cbor:",toarray"`
	ID        uint32
	Signature []byte
	PublicKey []byte
	Payload   cbor.RawMessage
}

// Author returns a short fingerprint of the signing key.
func (e *Envelope) Author() string {
	return keys.Fingerprint(e.PublicKey)
}

// Encode serializes e as is. It does not sign.
func (e *Envelope) Encode() ([]byte, error) {
	payload, err := EncodePayload(e.Payload)
	if err != nil {
		return nil, err
	}
	return encMode.Marshal(envelopeWire{
		ID:        e.ID,
		Signature: e.Signature,
		PublicKey: e.PublicKey,
		Payload:   payload,
	})
}

// SignAndEncode signs p with id and returns the encoded envelope under a
// fresh random nonce.
func SignAndEncode(id *keys.Identity, p Payload) ([]byte, error) {
	nonce, err := randomID()
	if err != nil {
		return nil, err
	}
	return SignAndEncodeWithID(id, nonce, p)
}

// SignAndEncodeWithID is SignAndEncode with a caller supplied nonce. The
// output is fully determined by its arguments.
func SignAndEncodeWithID(id *keys.Identity, nonce uint32, p Payload) ([]byte, error) {
	payload, err := EncodePayload(p)
	if err != nil {
		return nil, err
	}
	b, err := encMode.Marshal(envelopeWire{
		ID:        nonce,
		Signature: id.Sign(payload),
		PublicKey: id.PublicKey(),
		Payload:   payload,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return b, nil
}

// DecodeAndVerify parses b and checks its signature. It fails with a
// *DecodeError if b is not an envelope and with a *SignatureError if the
// signature does not verify. Payload contents are not validated.
func DecodeAndVerify(b []byte) (*Envelope, error) {
	var w envelopeWire
	if err := decMode.Unmarshal(b, &w); err != nil {
		return nil, decodeErr("malformed envelope", err)
	}
	if len(w.Signature) != keys.SignatureSize {
		return nil, decodeErr(fmt.Sprintf("signature is %d bytes, want %d", len(w.Signature), keys.SignatureSize), nil)
	}
	if len(w.PublicKey) != keys.PublicKeySize {
		return nil, decodeErr(fmt.Sprintf("public key is %d bytes, want %d", len(w.PublicKey), keys.PublicKeySize), nil)
	}
	p, err := decodePayload(w.Payload)
	if err != nil {
		return nil, err
	}

	// Verify against our own canonical encoding, not the received bytes.
	signed, err := EncodePayload(p)
	if err != nil {
		return nil, decodeErr("re-encode payload", err)
	}
	if !keys.Verify(w.PublicKey, signed, w.Signature) {
		return nil, &SignatureError{ID: w.ID, PublicKey: w.PublicKey}
	}
	return &Envelope{
		ID:        w.ID,
		Signature: w.Signature,
		PublicKey: w.PublicKey,
		Payload:   p,
	}, nil
}

func randomID() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("failed to generate envelope id: %w", err)
	}
	return binary.BigEndian.Uint32(b[:]), nil
}
