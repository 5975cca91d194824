package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoHandler(_ context.Context, payload []byte) ([]byte, error) {
	return payload, nil
}

func TestRegisterAndLookup(t *testing.T) {
	r := New()
	r.Register("echo", echoHandler, "bytes", "bytes")

	entry, ok := r.Lookup("echo")
	require.True(t, ok)
	assert.Equal(t, "echo", entry.MessageName)

	out, err := entry.Handler(context.Background(), []byte("hi"))
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), out)
}

func TestLookupMissingReturnsFalse(t *testing.T) {
	r := New()
	_, ok := r.Lookup("unknown")
	assert.False(t, ok)
}

func TestRegisterIsIdempotentAndReplaces(t *testing.T) {
	r := New()
	calls := 0
	r.Register("echo", func(_ context.Context, payload []byte) ([]byte, error) {
		calls++
		return payload, nil
	}, "bytes", "bytes")

	r.Register("echo", func(_ context.Context, payload []byte) ([]byte, error) {
		calls += 100
		return payload, nil
	}, "bytes", "bytes")

	entry, ok := r.Lookup("echo")
	require.True(t, ok)
	_, err := entry.Handler(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 100, calls, "re-registration should replace, not stack, the handler")
}

func TestNamesListsAllRegistered(t *testing.T) {
	r := New()
	r.Register("a", echoHandler, "", "")
	r.Register("b", echoHandler, "", "")
	assert.ElementsMatch(t, []string{"a", "b"}, r.Names())
}
