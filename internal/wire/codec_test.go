package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	e := Envelope{
		RequestIDHigh: 0x0123456789ABCDEF,
		RequestIDLow:  0xFEDCBA9876543210,
		MessageName:   "echo",
		Status:        StatusOK,
		Payload:       []byte("hi"),
	}

	decoded, err := Decode(Encode(e), false)
	require.NoError(t, err)
	assert.Equal(t, e, decoded)
}

func TestEncodeDecodeErrorCarriesMessage(t *testing.T) {
	e := Envelope{
		RequestIDHigh: 1,
		RequestIDLow:  2,
		MessageName:   "echo",
		Status:        StatusError,
		ErrorMessage:  "no handler for message",
	}

	decoded, err := Decode(Encode(e), false)
	require.NoError(t, err)
	assert.Equal(t, "no handler for message", decoded.ErrorMessage)
	assert.Equal(t, StatusError, decoded.Status)
}

func TestDecodeRejectsUnknownTag(t *testing.T) {
	_, err := Decode([]byte{0xFF, 0x00}, false)
	assert.Error(t, err)
}

func TestDecodeRejectsTruncatedBody(t *testing.T) {
	_, err := Decode([]byte{tagRequestIDHigh, 0x01, 0x02}, false)
	assert.Error(t, err)
}

func TestFrameRoundTrip(t *testing.T) {
	e := Envelope{RequestIDHigh: 7, RequestIDLow: 9, MessageName: "echo", Status: StatusOK, Payload: []byte("payload")}

	var buf bytes.Buffer
	require.NoError(t, WriteEnvelope(&buf, e))

	got, err := ReadEnvelope(&buf, false)
	require.NoError(t, err)
	assert.Equal(t, e, got)
}

func TestDecodeAvoidPayloadCopyAliasesBody(t *testing.T) {
	e := Envelope{RequestIDHigh: 1, MessageName: "echo", Status: StatusOK, Payload: []byte("hi")}
	body := Encode(e)

	decoded, err := Decode(body, true)
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), decoded.Payload)

	// Mutating body through the decoded payload proves it aliases body's
	// backing array rather than a defensive copy.
	decoded.Payload[0] = 'X'
	assert.Equal(t, byte('X'), body[len(body)-2])
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	_, err := ReadFrame(&buf)
	assert.Error(t, err)
}
