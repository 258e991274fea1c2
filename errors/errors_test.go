package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClassString(t *testing.T) {
	assert.Equal(t, "transient", ErrorTransient.String())
	assert.Equal(t, "invalid", ErrorInvalid.String())
	assert.Equal(t, "fatal", ErrorFatal.String())
	assert.Equal(t, "unknown", ErrorClass(99).String())
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, "c", "m", "a"))
	assert.Nil(t, WrapTransient(nil, "c", "m", "a"))
	assert.Nil(t, WrapInvalid(nil, "c", "m", "a"))
	assert.Nil(t, WrapFatal(nil, "c", "m", "a"))
}

func TestWrapFormatsContext(t *testing.T) {
	base := errors.New("boom")
	err := Wrap(base, "Listener", "Run", "receive")
	require.Error(t, err)
	assert.Equal(t, "Listener.Run: receive failed: boom", err.Error())
	assert.True(t, errors.Is(err, base))
}

func TestClassifiedErrorUnwrap(t *testing.T) {
	base := errors.New("socket gone")
	err := WrapTransient(base, "Listener", "Run", "receive")

	var ce *ClassifiedError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, ErrorTransient, ce.Class)
	assert.Equal(t, "Listener", ce.Component)
	assert.True(t, errors.Is(err, base))
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"classified transient", WrapTransient(errors.New("x"), "c", "m", "a"), true},
		{"classified invalid", WrapInvalid(errors.New("x"), "c", "m", "a"), false},
		{"receive timeout sentinel", ErrReceiveTimeout, true},
		{"context deadline", context.DeadlineExceeded, true},
		{"timeout in message", errors.New("dial tcp: i/o timeout"), true},
		{"plain error", errors.New("x"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsInvalid(t *testing.T) {
	assert.True(t, IsInvalid(ErrParsingFailed))
	assert.True(t, IsInvalid(fmt.Errorf("wrapped: %w", ErrUnknownStream)))
	assert.True(t, IsInvalid(WrapInvalid(errors.New("bad json"), "Store", "DrainAndRoute", "decode")))
	assert.False(t, IsInvalid(errors.New("x")))
	assert.False(t, IsInvalid(nil))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ErrorFatal, Classify(ErrInvalidConfig))
	assert.Equal(t, ErrorInvalid, Classify(ErrParsingFailed))
	assert.Equal(t, ErrorTransient, Classify(ErrConnectionLost))
	// Unknown errors default to transient so callers may retry
	assert.Equal(t, ErrorTransient, Classify(errors.New("mystery")))
}
