package message

import (
	"errors"
	"fmt"
)

// Kind categorizes codec failures so callers can branch without matching
// error strings.
type Kind string

const (
	// KindDecode means the bytes are not a structurally valid envelope.
	KindDecode Kind = "decode"
	// KindSignature means the envelope parsed but its signature does not
	// verify against the embedded public key.
	KindSignature Kind = "signature"
)

// DecodeError is returned for input that cannot be an envelope at all:
// malformed CBOR, wrong field types, truncation, trailing bytes, unknown
// payload tags or wrongly sized keys and signatures.
type DecodeError struct {
	Reason string
	Cause  error
}

func (e *DecodeError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("decode envelope: %s", e.Reason)
	}
	return fmt.Sprintf("decode envelope: %s: %v", e.Reason, e.Cause)
}

func (e *DecodeError) Unwrap() error { return e.Cause }

// Kind returns KindDecode.
func (e *DecodeError) Kind() Kind { return KindDecode }

// SignatureError is returned for a well-formed envelope whose signature
// does not match its payload and public key.
type SignatureError struct {
	ID        uint32
	PublicKey []byte
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("invalid signature on envelope %08x from %x", e.ID, e.PublicKey)
}

// Kind returns KindSignature.
func (e *SignatureError) Kind() Kind { return KindSignature }

// IsDecodeError reports whether err is or wraps a *DecodeError.
func IsDecodeError(err error) bool {
	var e *DecodeError
	return errors.As(err, &e)
}

// IsSignatureError reports whether err is or wraps a *SignatureError.
func IsSignatureError(err error) bool {
	var e *SignatureError
	return errors.As(err, &e)
}

// KindOf returns the Kind of a codec error, or "" for anything else.
func KindOf(err error) Kind {
	switch {
	case IsDecodeError(err):
		return KindDecode
	case IsSignatureError(err):
		return KindSignature
	default:
		return ""
	}
}

func decodeErr(reason string, cause error) error {
	return &DecodeError{Reason: reason, Cause: cause}
}
