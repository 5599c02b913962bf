package providers

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nacht-org/quelle-sub001/pkg/extpkg"
	"github.com/nacht-org/quelle-sub001/pkg/quelleerr"
)

func testPackage(t *testing.T, id, version string) extpkg.ExtensionPackage {
	t.Helper()
	wasm := []byte("wasm-bytes-" + id + "-" + version)
	ref, err := extpkg.NewFileReference("extension.wasm", extpkg.AlgoBLAKE3, wasm)
	require.NoError(t, err)
	return extpkg.ExtensionPackage{
		Manifest: extpkg.ExtensionManifest{
			ID:       id,
			Name:     id,
			Version:  version,
			BaseURLs: []string{"example.com"},
			WASMFile: ref,
		},
		WASM: wasm,
	}
}

func TestFilesystemProviderPublishAndGet(t *testing.T) {
	p, err := NewFilesystemProvider(t.TempDir())
	require.NoError(t, err)

	pkg := testPackage(t, "example-source", "1.0.0")
	require.NoError(t, p.Publish(context.Background(), pkg))

	got, err := p.GetExtensionPackage(context.Background(), "example-source", "")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", got.Manifest.Version)
	assert.True(t, got.Manifest.WASMFile.Verify(got.WASM))
}

func TestFilesystemProviderPublishRejectsDuplicateVersion(t *testing.T) {
	p, err := NewFilesystemProvider(t.TempDir())
	require.NoError(t, err)

	pkg := testPackage(t, "example-source", "1.0.0")
	require.NoError(t, p.Publish(context.Background(), pkg))

	err = p.Publish(context.Background(), pkg)
	require.Error(t, err)
}

func TestFilesystemProviderListExtensionsAndVersions(t *testing.T) {
	p, err := NewFilesystemProvider(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, p.Publish(context.Background(), testPackage(t, "source-a", "1.0.0")))
	require.NoError(t, p.Publish(context.Background(), testPackage(t, "source-a", "1.1.0")))
	require.NoError(t, p.Publish(context.Background(), testPackage(t, "source-b", "1.0.0")))

	ids, err := p.ListExtensions(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"source-a", "source-b"}, ids)

	versions, err := p.ListExtensionVersions(context.Background(), "source-a")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"1.0.0", "1.1.0"}, versions)
}

func TestFilesystemProviderUnpublishWithTombstone(t *testing.T) {
	p, err := NewFilesystemProvider(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, p.Publish(context.Background(), testPackage(t, "example-source", "1.0.0")))
	require.NoError(t, p.Unpublish(context.Background(), "example-source", "1.0.0", true))

	versions, err := p.ListExtensionVersions(context.Background(), "example-source")
	require.NoError(t, err)
	assert.Empty(t, versions)
}

func TestFilesystemProviderGetUnknownExtensionIsExtensionNotFound(t *testing.T) {
	p, err := NewFilesystemProvider(t.TempDir())
	require.NoError(t, err)

	_, err = p.GetExtensionPackage(context.Background(), "missing", "")
	require.Error(t, err)
	assert.True(t, quelleerr.Is(err, quelleerr.ExtensionNotFound))
}

func TestFilesystemProviderPublishRecordsBLAKE3ChecksumOnDisk(t *testing.T) {
	root := t.TempDir()
	p, err := NewFilesystemProvider(root)
	require.NoError(t, err)

	pkg := testPackage(t, "blake3-source", "1.0.0")
	require.NoError(t, p.Publish(context.Background(), pkg))

	raw, err := os.ReadFile(filepath.Join(root, manifestPath("blake3-source", "1.0.0")))
	require.NoError(t, err)

	var onDisk extpkg.ExtensionManifest
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	assert.True(t, strings.HasPrefix(onDisk.WASMFile.Checksum, "blake3:"))

	got, err := p.GetExtensionPackage(context.Background(), "blake3-source", "1.0.0")
	require.NoError(t, err)
	assert.True(t, got.Manifest.WASMFile.Verify(got.WASM))
}
