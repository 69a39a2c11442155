package lib

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapErrorMatchesBoth(t *testing.T) {
	outer := errors.New("outer")
	inner := errors.New("inner")

	err := WrapError(outer, inner)

	require.ErrorIs(t, err, outer)
	require.ErrorIs(t, err, inner)
}

func TestWrapErrorNested(t *testing.T) {
	sentinel := errors.New("sentinel")
	cause := fmt.Errorf("cause: %w", errors.New("root"))

	err := WrapError(sentinel, WrapError(cause, errors.New("deepest")))

	require.ErrorIs(t, err, sentinel)
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "sentinel")
	require.Contains(t, err.Error(), "deepest")
}
