package status

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorString(t *testing.T) {
	err := New(InvalidArgument, "key length %d != 16", 9)
	assert.Equal(t, "INVALID_ARGUMENT: key length 9 != 16", err.Error())
}

func TestOf(t *testing.T) {
	assert.Equal(t, OK, Of(nil))
	assert.Equal(t, UnknownError, Of(errors.New("boom")))
	assert.Equal(t, NotFound, Of(New(NotFound, "missing")))
}

func TestIsSentinel(t *testing.T) {
	err := New(ComparatorMismatch, "expected foo")
	require.True(t, errors.Is(err, Sentinel(ComparatorMismatch)))
	require.False(t, errors.Is(err, Sentinel(NotFound)))
}
