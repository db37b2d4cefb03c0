package ids

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewULID(t *testing.T) {
	first, err := NewULID()
	require.NoError(t, err)
	second, err := NewULID()
	require.NoError(t, err)

	require.Len(t, first, 26)
	require.NotEqual(t, first, second)
	require.True(t, IsULID(first))
	require.True(t, IsULID(strings.ToLower(first)))
}

func TestValidateULID(t *testing.T) {
	require.NoError(t, ValidateULID(MustULID()))
	require.ErrorIs(t, ValidateULID("not-a-ulid"), ErrInvalidULID)
	require.ErrorIs(t, ValidateULID(""), ErrInvalidULID)
	// I, L, O and U are not part of Crockford Base32.
	require.ErrorIs(t, ValidateULID("01ARZ3NDEKTSV4RRFFQ69G5FAU"), ErrInvalidULID)
}
