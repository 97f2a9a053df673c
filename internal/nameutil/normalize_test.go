package nameutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeCollapsesInternalWhitespace(t *testing.T) {
	got, ok := Normalize("  hello    world  ")
	require.True(t, ok)
	require.Equal(t, "hello world", got)
}

func TestNormalizeTabsAndNewlinesBecomeSpace(t *testing.T) {
	got, ok := Normalize("a\tb\nc")
	require.True(t, ok)
	require.Equal(t, "a b c", got)
}

func TestNormalizeRejectsOnlyWhitespace(t *testing.T) {
	_, ok := Normalize("   \t  ")
	require.False(t, ok)
}

func TestNormalizeRejectsControlByte(t *testing.T) {
	_, ok := Normalize("abc\x01def")
	require.False(t, ok)
}

func TestNormalizeRejectsTooLong(t *testing.T) {
	_, ok := Normalize(strings.Repeat("a", MaxLength+1))
	require.False(t, ok)
}

func TestNormalizeAcceptsMaxLength(t *testing.T) {
	got, ok := Normalize(strings.Repeat("a", MaxLength))
	require.True(t, ok)
	require.Len(t, got, MaxLength)
}
