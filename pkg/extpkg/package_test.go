package extpkg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nacht-org/quelle-sub001/pkg/quelleerr"
)

func validManifest(t *testing.T, wasm []byte) ExtensionManifest {
	t.Helper()
	ref, err := NewFileReference("extension.wasm", AlgoBLAKE3, wasm)
	require.NoError(t, err)
	return ExtensionManifest{
		ID:       "example-source",
		Name:     "Example Source",
		Version:  "1.0.0",
		BaseURLs: []string{"example.com"},
		WASMFile: ref,
	}
}

func TestPackageValidateAcceptsWellFormedPackage(t *testing.T) {
	wasm := []byte{0x00, 0x61, 0x73, 0x6d}
	pkg := ExtensionPackage{Manifest: validManifest(t, wasm), WASM: wasm}

	assert.Nil(t, pkg.Validate())
}

func TestPackageValidateRejectsChecksumMismatch(t *testing.T) {
	wasm := []byte{0x00, 0x61, 0x73, 0x6d}
	manifest := validManifest(t, wasm)
	pkg := ExtensionPackage{Manifest: manifest, WASM: []byte("different bytes")}

	qerr := pkg.Validate()
	require.NotNil(t, qerr)
	assert.Equal(t, quelleerr.ValidationFailed, qerr.Code)
	assert.True(t, qerr.HasCritical())
}

func TestPackageValidateRejectsMissingManifestFields(t *testing.T) {
	wasm := []byte{0x00, 0x61, 0x73, 0x6d}
	manifest := validManifest(t, wasm)
	manifest.BaseURLs = nil
	pkg := ExtensionPackage{Manifest: manifest, WASM: wasm}

	qerr := pkg.Validate()
	require.NotNil(t, qerr)
	assert.Equal(t, quelleerr.ValidationFailed, qerr.Code)
}

func TestPackageValidateRejectsMissingAsset(t *testing.T) {
	wasm := []byte{0x00, 0x61, 0x73, 0x6d}
	manifest := validManifest(t, wasm)
	assetRef, err := NewFileReference("cover.jpg", AlgoSHA256, []byte("cover-bytes"))
	require.NoError(t, err)
	manifest.Assets = []AssetReference{{Name: "cover", File: assetRef}}

	pkg := ExtensionPackage{Manifest: manifest, WASM: wasm, Assets: map[string][]byte{}}

	qerr := pkg.Validate()
	require.NotNil(t, qerr)
}

func TestRecomputeRewritesChecksums(t *testing.T) {
	wasm := []byte{0x00, 0x61, 0x73, 0x6d}
	manifest := validManifest(t, wasm)
	pkg := ExtensionPackage{Manifest: manifest, WASM: wasm}

	newWASM := append(wasm, 0xFF)
	pkg.WASM = newWASM
	require.NoError(t, pkg.Recompute(AlgoBLAKE3))

	assert.True(t, pkg.Manifest.WASMFile.Verify(newWASM))
	assert.Nil(t, pkg.Validate())
}

func TestManifestMatchesHost(t *testing.T) {
	m := ExtensionManifest{BaseURLs: []string{"example.com"}}

	assert.True(t, m.MatchesHost("sub.example.com"))
	assert.True(t, m.MatchesHost("example.com"))
	assert.False(t, m.MatchesHost("example.org"))
}
