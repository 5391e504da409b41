package message

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Tag is the wire discriminant of a payload variant. Values are part of the
// wire format and must never be reused.
type Tag uint8

const (
	TagSiteRegistration Tag = 0
	TagSiteNotification Tag = 1
)

func (t Tag) String() string {
	switch t {
	case TagSiteRegistration:
		return "SiteRegistration"
	case TagSiteNotification:
		return "SiteNotification"
	default:
		return fmt.Sprintf("Tag(%d)", uint8(t))
	}
}

// Payload is the application content of an envelope. The set of variants
// is closed: SiteRegistration and SiteNotification.
type Payload interface {
	Tag() Tag
	isPayload()
}

// SiteRegistration announces that a site exists.
type SiteRegistration struct {
	_        struct{} `cbor:",toarray"`
	SiteName string
}

// SiteNotification carries free text. Receivers only display it.
type SiteNotification struct {
	_            struct{} `cbor:",toarray"`
	Notification string
}

func (SiteRegistration) Tag() Tag { return TagSiteRegistration }
func (SiteNotification) Tag() Tag { return TagSiteNotification }

func (SiteRegistration) isPayload() {}
func (SiteNotification) isPayload() {}

// payloadWire is the on-wire form: [tag, [fields...]].
type payloadWire struct {
	_    struct{} `cbor:",toarray"`
	Tag  Tag
	Body cbor.RawMessage
}

// EncodePayload returns the canonical encoding of p. This is the exact byte
// string that gets signed.
func EncodePayload(p Payload) ([]byte, error) {
	var body []byte
	var err error
	switch v := p.(type) {
	case SiteRegistration:
		body, err = encMode.Marshal(v)
	case *SiteRegistration:
		body, err = encMode.Marshal(*v)
	case SiteNotification:
		body, err = encMode.Marshal(v)
	case *SiteNotification:
		body, err = encMode.Marshal(*v)
	default:
		return nil, fmt.Errorf("unsupported payload type %T", p)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s body: %w", p.Tag(), err)
	}
	return encMode.Marshal(payloadWire{Tag: p.Tag(), Body: body})
}

func decodePayload(raw []byte) (Payload, error) {
	var w payloadWire
	if err := decMode.Unmarshal(raw, &w); err != nil {
		return nil, decodeErr("malformed payload", err)
	}
	switch w.Tag {
	case TagSiteRegistration:
		var v SiteRegistration
		if err := decMode.Unmarshal(w.Body, &v); err != nil {
			return nil, decodeErr("malformed SiteRegistration", err)
		}
		return v, nil
	case TagSiteNotification:
		var v SiteNotification
		if err := decMode.Unmarshal(w.Body, &v); err != nil {
			return nil, decodeErr("malformed SiteNotification", err)
		}
		return v, nil
	default:
		return nil, decodeErr(fmt.Sprintf("unknown payload tag %d", uint8(w.Tag)), nil)
	}
}
