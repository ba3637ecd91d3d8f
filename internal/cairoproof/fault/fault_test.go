package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCodeOf(t *testing.T) {
	err := New(CodeDecode, "bad word %#x", 42)
	require.Equal(t, CodeDecode, CodeOf(err))

	wrapped := fmt.Errorf("outer context: %w", err)
	require.Equal(t, CodeDecode, CodeOf(wrapped))

	require.Equal(t, CodeUnknown, CodeOf(errors.New("plain")))
	require.Equal(t, CodeUnknown, CodeOf(nil))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("disk on fire")
	err := Wrap(CodeIO, cause, "reading trace")
	require.ErrorIs(t, err, cause)
	require.Equal(t, CodeIO, CodeOf(err))
	require.Contains(t, err.Error(), "reading trace")
	require.Contains(t, err.Error(), "disk on fire")
}

func TestIsMatchesOnCode(t *testing.T) {
	a := New(CodeConsistency, "first")
	b := New(CodeConsistency, "second")
	require.ErrorIs(t, a, b)

	c := New(CodeRejected, "third")
	require.NotErrorIs(t, a, c)
}
