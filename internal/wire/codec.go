package wire

import (
	"encoding/binary"

	"github.com/deepaksubu/norbert/errors"
)

// Wire tags, per the envelope field table.
const (
	tagRequestIDHigh uint8 = 1
	tagRequestIDLow  uint8 = 2
	tagMessageName   uint8 = 3
	tagStatus        uint8 = 4
	tagPayload       uint8 = 5
	tagErrorMessage  uint8 = 6
)

// packetEncoder accumulates tagged fields into a growable byte buffer. It
// mirrors the put-style encoder used by tag/length-delimited binary
// protocols: every field writes its own tag before its value.
type packetEncoder struct {
	buf []byte
}

func (pe *packetEncoder) putTag(tag uint8) {
	pe.buf = append(pe.buf, tag)
}

func (pe *packetEncoder) putUint64(tag uint8, v uint64) {
	pe.putTag(tag)
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	pe.buf = append(pe.buf, b[:]...)
}

func (pe *packetEncoder) putUint8(tag uint8, v uint8) {
	pe.putTag(tag)
	pe.buf = append(pe.buf, v)
}

func (pe *packetEncoder) putBytes(tag uint8, v []byte) {
	pe.putTag(tag)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(v)))
	pe.buf = append(pe.buf, lenBuf[:]...)
	pe.buf = append(pe.buf, v...)
}

func (pe *packetEncoder) putString(tag uint8, v string) {
	pe.putBytes(tag, []byte(v))
}

// packetDecoder reads tagged fields off a fixed byte slice in whatever
// order they appear on the wire.
type packetDecoder struct {
	buf []byte
	pos int
}

func newPacketDecoder(buf []byte) *packetDecoder {
	return &packetDecoder{buf: buf}
}

func (pd *packetDecoder) remaining() bool {
	return pd.pos < len(pd.buf)
}

func (pd *packetDecoder) getTag() (uint8, error) {
	if pd.pos >= len(pd.buf) {
		return 0, errors.New("wire: truncated envelope reading tag")
	}
	tag := pd.buf[pd.pos]
	pd.pos++
	return tag, nil
}

func (pd *packetDecoder) getUint64() (uint64, error) {
	if pd.pos+8 > len(pd.buf) {
		return 0, errors.New("wire: truncated envelope reading uint64")
	}
	v := binary.BigEndian.Uint64(pd.buf[pd.pos : pd.pos+8])
	pd.pos += 8
	return v, nil
}

func (pd *packetDecoder) getUint8() (uint8, error) {
	if pd.pos+1 > len(pd.buf) {
		return 0, errors.New("wire: truncated envelope reading uint8")
	}
	v := pd.buf[pd.pos]
	pd.pos++
	return v, nil
}

func (pd *packetDecoder) getBytes() ([]byte, error) {
	if pd.pos+4 > len(pd.buf) {
		return nil, errors.New("wire: truncated envelope reading length prefix")
	}
	n := binary.BigEndian.Uint32(pd.buf[pd.pos : pd.pos+4])
	pd.pos += 4
	if pd.pos+int(n) > len(pd.buf) {
		return nil, errors.New("wire: truncated envelope reading bytes body")
	}
	v := pd.buf[pd.pos : pd.pos+int(n)]
	pd.pos += int(n)
	return v, nil
}

func (pd *packetDecoder) getString() (string, error) {
	b, err := pd.getBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Encode serializes an envelope into its tagged binary body (without the
// outer length prefix — see WriteFrame).
func Encode(e Envelope) []byte {
	pe := &packetEncoder{}
	pe.putUint64(tagRequestIDHigh, e.RequestIDHigh)
	pe.putUint64(tagRequestIDLow, e.RequestIDLow)
	pe.putString(tagMessageName, e.MessageName)
	pe.putUint8(tagStatus, uint8(e.Status))
	pe.putBytes(tagPayload, e.Payload)
	if e.Status == StatusError {
		pe.putString(tagErrorMessage, e.ErrorMessage)
	}
	return pe.buf
}

// Decode parses a tagged binary body into an Envelope. Unknown tags are
// rejected rather than skipped, since the wire contract defines a closed
// field set; this keeps decode failures loud instead of silently dropping
// data a future field addition would need.
//
// avoidPayloadCopy controls whether the payload field aliases the decoded
// body slice directly instead of being defensively copied. body is always
// a fresh per-frame allocation (see ReadFrame), so aliasing it is safe as
// long as the caller does not mutate or reuse body afterward.
func Decode(body []byte, avoidPayloadCopy bool) (Envelope, error) {
	pd := newPacketDecoder(body)
	var e Envelope

	for pd.remaining() {
		tag, err := pd.getTag()
		if err != nil {
			return Envelope{}, err
		}

		switch tag {
		case tagRequestIDHigh:
			if e.RequestIDHigh, err = pd.getUint64(); err != nil {
				return Envelope{}, err
			}
		case tagRequestIDLow:
			if e.RequestIDLow, err = pd.getUint64(); err != nil {
				return Envelope{}, err
			}
		case tagMessageName:
			if e.MessageName, err = pd.getString(); err != nil {
				return Envelope{}, err
			}
		case tagStatus:
			v, err := pd.getUint8()
			if err != nil {
				return Envelope{}, err
			}
			e.Status = Status(v)
		case tagPayload:
			b, err := pd.getBytes()
			if err != nil {
				return Envelope{}, err
			}
			if avoidPayloadCopy {
				e.Payload = b
			} else {
				// Defensive copy: keeps the payload independent of body's
				// backing array even if a future caller pools/reuses it.
				e.Payload = append([]byte(nil), b...)
			}
		case tagErrorMessage:
			if e.ErrorMessage, err = pd.getString(); err != nil {
				return Envelope{}, err
			}
		default:
			return Envelope{}, errors.Newf("wire: unknown envelope tag %d", tag)
		}
	}

	return e, nil
}
