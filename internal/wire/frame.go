package wire

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/deepaksubu/norbert/errors"
)

// MaxFrameLen is the largest frame body this server will accept, matching
// the wire contract's "max frame = INT_MAX" ceiling.
const MaxFrameLen = math.MaxInt32

// ReadFrame reads one [u32 length][body] frame from r and returns the body.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}

	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > MaxFrameLen {
		return nil, errors.Newf("wire: frame length %d exceeds max %d", n, MaxFrameLen)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}

// WriteFrame writes body prefixed with its 4-byte big-endian length.
func WriteFrame(w io.Writer, body []byte) error {
	if len(body) > MaxFrameLen {
		return errors.Newf("wire: frame length %d exceeds max %d", len(body), MaxFrameLen)
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

// ReadEnvelope reads and decodes one framed envelope from r. avoidPayloadCopy
// is forwarded to Decode (see Decode's doc comment).
func ReadEnvelope(r io.Reader, avoidPayloadCopy bool) (Envelope, error) {
	body, err := ReadFrame(r)
	if err != nil {
		return Envelope{}, err
	}
	return Decode(body, avoidPayloadCopy)
}

// WriteEnvelope encodes and writes one framed envelope to w.
func WriteEnvelope(w io.Writer, e Envelope) error {
	return WriteFrame(w, Encode(e))
}
