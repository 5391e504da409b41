package message

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udit2303/sitegossip/pkg/keys"
)

const fixedID uint32 = 0xdeadbeef

func identity(t *testing.T, seed byte) *keys.Identity {
	t.Helper()
	id, err := keys.IdentityFromSeed(bytes.Repeat([]byte{seed}, keys.SeedSize))
	require.NoError(t, err)
	return id
}

func payloads() map[string]Payload {
	return map[string]Payload{
		"registration":       SiteRegistration{SiteName: "rosa"},
		"empty registration": SiteRegistration{},
		"unicode site":       SiteRegistration{SiteName: "café-Ωmega"},
		"notification":       SiteNotification{Notification: "hello"},
		"long notification":  SiteNotification{Notification: string(bytes.Repeat([]byte("x"), 4000))},
	}
}

func TestRoundTrip(t *testing.T) {
	id := identity(t, 1)
	for name, p := range payloads() {
		t.Run(name, func(t *testing.T) {
			b, err := SignAndEncode(id, p)
			require.NoError(t, err)

			env, err := DecodeAndVerify(b)
			require.NoError(t, err)
			assert.Equal(t, p, env.Payload)
			assert.Equal(t, []byte(id.PublicKey()), env.PublicKey)
			assert.Equal(t, id.Fingerprint(), env.Author())
		})
	}
}

func TestPointerPayloadsEncodeLikeValues(t *testing.T) {
	a, err := EncodePayload(SiteRegistration{SiteName: "rosa"})
	require.NoError(t, err)
	b, err := EncodePayload(&SiteRegistration{SiteName: "rosa"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEncodingIsDeterministic(t *testing.T) {
	id := identity(t, 1)
	p := SiteRegistration{SiteName: "rosa"}

	a, err := SignAndEncodeWithID(id, fixedID, p)
	require.NoError(t, err)
	b, err := SignAndEncodeWithID(id, fixedID, p)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	// Fresh nonces still decode to the same payload.
	c, err := SignAndEncode(id, p)
	require.NoError(t, err)
	env, err := DecodeAndVerify(c)
	require.NoError(t, err)
	assert.Equal(t, p, env.Payload)
}

func TestPayloadWireLayout(t *testing.T) {
	got, err := EncodePayload(SiteRegistration{SiteName: "rosa"})
	require.NoError(t, err)
	// [0, ["rosa"]]
	assert.Equal(t, "82008164726f7361", hex.EncodeToString(got))

	got, err = EncodePayload(SiteNotification{Notification: "hi"})
	require.NoError(t, err)
	// [1, ["hi"]]
	assert.Equal(t, "820181626869", hex.EncodeToString(got))
}

func TestEnvelopeWireLayout(t *testing.T) {
	id := identity(t, 1)
	b, err := SignAndEncodeWithID(id, fixedID, SiteRegistration{SiteName: "rosa"})
	require.NoError(t, err)

	payload, err := EncodePayload(SiteRegistration{SiteName: "rosa"})
	require.NoError(t, err)

	var want []byte
	want = append(want, 0x84)                         // array(4)
	want = append(want, 0x1a, 0xde, 0xad, 0xbe, 0xef) // id
	want = append(want, 0x58, 0x40)                   // bstr(64)
	want = append(want, id.Sign(payload)...)
	want = append(want, 0x58, 0x20) // bstr(32)
	want = append(want, id.PublicKey()...)
	want = append(want, payload...)
	assert.Equal(t, want, b)
}

func TestTamperedSignatureFails(t *testing.T) {
	id := identity(t, 1)
	for name, p := range payloads() {
		t.Run(name, func(t *testing.T) {
			b, err := SignAndEncodeWithID(id, fixedID, p)
			require.NoError(t, err)
			payload, err := EncodePayload(p)
			require.NoError(t, err)
			sigAt := bytes.Index(b, id.Sign(payload))
			require.Positive(t, sigAt)

			for i := sigAt; i < sigAt+keys.SignatureSize; i++ {
				for bit := 0; bit < 8; bit++ {
					tampered := bytes.Clone(b)
					tampered[i] ^= 1 << bit
					_, err := DecodeAndVerify(tampered)
					require.Truef(t, IsSignatureError(err), "byte %d bit %d: %v", i, bit, err)
				}
			}
		})
	}
}

func TestTamperedPayloadFails(t *testing.T) {
	id := identity(t, 1)
	tests := map[string]struct {
		payload Payload
		text    string
	}{
		"registration": {payload: SiteRegistration{SiteName: "rosa"}, text: "rosa"},
		"notification": {payload: SiteNotification{Notification: "hello there"}, text: "hello there"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			b, err := SignAndEncodeWithID(id, fixedID, tc.payload)
			require.NoError(t, err)
			at := bytes.LastIndex(b, []byte(tc.text))
			require.Positive(t, at)

			// Bits 0-6 keep ASCII text valid UTF-8, so the envelope still
			// parses and only the signature check can catch the change.
			for i := at; i < at+len(tc.text); i++ {
				for bit := 0; bit < 7; bit++ {
					tampered := bytes.Clone(b)
					tampered[i] ^= 1 << bit
					_, err := DecodeAndVerify(tampered)
					require.Truef(t, IsSignatureError(err), "byte %d bit %d: %v", i, bit, err)
				}
			}
		})
	}
}

func TestSwappedVariantFails(t *testing.T) {
	id := identity(t, 1)
	b, err := SignAndEncodeWithID(id, fixedID, SiteRegistration{SiteName: "rosa"})
	require.NoError(t, err)

	// The payload starts with 0x82 0x00; turning the tag into 0x01 yields a
	// well-formed SiteNotification that was never signed.
	at := bytes.LastIndex(b, []byte{0x82, 0x00, 0x81})
	require.Positive(t, at)
	b[at+1] = 0x01

	_, err = DecodeAndVerify(b)
	assert.True(t, IsSignatureError(err), "%v", err)
}

func TestForeignKeyRejected(t *testing.T) {
	a := identity(t, 1)
	b := identity(t, 2)

	encoded, err := SignAndEncodeWithID(a, fixedID, SiteRegistration{SiteName: "rosa"})
	require.NoError(t, err)
	env, err := DecodeAndVerify(encoded)
	require.NoError(t, err)

	env.PublicKey = b.PublicKey()
	swapped, err := env.Encode()
	require.NoError(t, err)

	_, err = DecodeAndVerify(swapped)
	require.Error(t, err)
	assert.True(t, IsSignatureError(err))
	assert.Equal(t, KindSignature, KindOf(err))
}

func TestResignedUnderOtherKeyRejected(t *testing.T) {
	a := identity(t, 1)
	b := identity(t, 2)
	p := SiteRegistration{SiteName: "rosa"}

	payload, err := EncodePayload(p)
	require.NoError(t, err)
	env := &Envelope{ID: fixedID, Signature: b.Sign(payload), PublicKey: a.PublicKey(), Payload: p}
	encoded, err := env.Encode()
	require.NoError(t, err)

	_, err = DecodeAndVerify(encoded)
	assert.True(t, IsSignatureError(err))
}

func TestTruncationIsDecodeError(t *testing.T) {
	id := identity(t, 1)
	b, err := SignAndEncodeWithID(id, fixedID, SiteRegistration{SiteName: "rosa"})
	require.NoError(t, err)

	for n := 0; n < len(b); n++ {
		_, err := DecodeAndVerify(b[:n])
		require.Truef(t, IsDecodeError(err), "length %d: %v", n, err)
	}
}

func TestCorruptLeadingByteIsDecodeError(t *testing.T) {
	id := identity(t, 1)
	b, err := SignAndEncodeWithID(id, fixedID, SiteRegistration{SiteName: "rosa"})
	require.NoError(t, err)
	require.Equal(t, byte(0x84), b[0])

	for v := 0; v < 256; v++ {
		if byte(v) == b[0] {
			continue
		}
		corrupted := bytes.Clone(b)
		corrupted[0] = byte(v)
		_, err := DecodeAndVerify(corrupted)
		require.Truef(t, IsDecodeError(err), "leading byte %#x: %v", v, err)
	}
}

func TestMalformedEnvelopes(t *testing.T) {
	id := identity(t, 1)
	valid, err := SignAndEncodeWithID(id, fixedID, SiteRegistration{SiteName: "rosa"})
	require.NoError(t, err)
	goodPayload, err := EncodePayload(SiteRegistration{SiteName: "rosa"})
	require.NoError(t, err)

	encode := func(t *testing.T, v interface{}) []byte {
		b, err := encMode.Marshal(v)
		require.NoError(t, err)
		return b
	}
	sig := id.Sign(goodPayload)
	pub := []byte(id.PublicKey())

	tests := map[string]func(t *testing.T) []byte{
		"empty": func(t *testing.T) []byte { return nil },
		"garbage": func(t *testing.T) []byte {
			return []byte("definitely not cbor")
		},
		"trailing bytes": func(t *testing.T) []byte {
			return append(bytes.Clone(valid), 0x00)
		},
		"map instead of array": func(t *testing.T) []byte {
			return encode(t, map[string]interface{}{"id": 1})
		},
		"id is a string": func(t *testing.T) []byte {
			return encode(t, []interface{}{"one", sig, pub, cbor.RawMessage(goodPayload)})
		},
		"id overflows uint32": func(t *testing.T) []byte {
			return encode(t, []interface{}{uint64(1) << 40, sig, pub, cbor.RawMessage(goodPayload)})
		},
		"short signature": func(t *testing.T) []byte {
			return encode(t, []interface{}{1, sig[:10], pub, cbor.RawMessage(goodPayload)})
		},
		"short public key": func(t *testing.T) []byte {
			return encode(t, []interface{}{1, sig, pub[:10], cbor.RawMessage(goodPayload)})
		},
		"unknown payload tag": func(t *testing.T) []byte {
			p := encode(t, []interface{}{7, []interface{}{"rosa"}})
			return encode(t, []interface{}{1, sig, pub, cbor.RawMessage(p)})
		},
		"payload body wrong arity": func(t *testing.T) []byte {
			p := encode(t, []interface{}{0, []interface{}{"rosa", "extra"}})
			return encode(t, []interface{}{1, sig, pub, cbor.RawMessage(p)})
		},
		"payload body wrong type": func(t *testing.T) []byte {
			p := encode(t, []interface{}{0, []interface{}{42}})
			return encode(t, []interface{}{1, sig, pub, cbor.RawMessage(p)})
		},
		"invalid utf8 site name": func(t *testing.T) []byte {
			b := bytes.Clone(valid)
			b[len(b)-2], b[len(b)-1] = 0xff, 0xfe
			return b
		},
	}
	for name, build := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeAndVerify(build(t))
			require.Error(t, err)
			assert.True(t, IsDecodeError(err), "%v", err)
			assert.False(t, IsSignatureError(err))
			assert.Equal(t, KindDecode, KindOf(err))
		})
	}
}

func TestNoSemanticValidation(t *testing.T) {
	id := identity(t, 1)
	b, err := SignAndEncode(id, SiteRegistration{SiteName: ""})
	require.NoError(t, err)
	env, err := DecodeAndVerify(b)
	require.NoError(t, err)
	assert.Equal(t, SiteRegistration{}, env.Payload)
}

func TestTagString(t *testing.T) {
	assert.Equal(t, "SiteRegistration", TagSiteRegistration.String())
	assert.Equal(t, "SiteNotification", TagSiteNotification.String())
	assert.Equal(t, "Tag(9)", Tag(9).String())
}
