package host

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nacht-org/quelle-sub001/pkg/extpkg"
)

func manifestWithBaseURLs(name string, urls ...string) extpkg.ExtensionManifest {
	return extpkg.ExtensionManifest{ID: name, Name: name, BaseURLs: urls}
}

func TestSelectExtensionMatchesByHost(t *testing.T) {
	candidates := []RoutableExtension{
		{Manifest: manifestWithBaseURLs("a", "example.com"), SourceName: "local", Priority: 0},
		{Manifest: manifestWithBaseURLs("b", "other.com"), SourceName: "local", Priority: 0},
	}

	picked, ok := SelectExtension(candidates, "https://example.com/novel/1")
	require.True(t, ok)
	assert.Equal(t, "a", picked.Manifest.ID)
}

func TestSelectExtensionBreaksTiesByPriorityThenName(t *testing.T) {
	candidates := []RoutableExtension{
		{Manifest: manifestWithBaseURLs("zeta", "example.com"), SourceName: "s1", Priority: 1},
		{Manifest: manifestWithBaseURLs("alpha", "example.com"), SourceName: "s2", Priority: 0},
		{Manifest: manifestWithBaseURLs("beta", "example.com"), SourceName: "s3", Priority: 0},
	}

	picked, ok := SelectExtension(candidates, "https://example.com/novel/1")
	require.True(t, ok)
	assert.Equal(t, "alpha", picked.Manifest.ID)
}

func TestSelectExtensionReturnsFalseWhenNothingMatches(t *testing.T) {
	candidates := []RoutableExtension{
		{Manifest: manifestWithBaseURLs("a", "example.com")},
	}
	_, ok := SelectExtension(candidates, "https://unrelated.test/x")
	assert.False(t, ok)
}
