package main

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nacht-org/quelle-sub001/pkg/content"
	"github.com/nacht-org/quelle-sub001/pkg/extpkg"
	"github.com/nacht-org/quelle-sub001/pkg/host"
	"github.com/nacht-org/quelle-sub001/pkg/httpx"
	"github.com/nacht-org/quelle-sub001/pkg/providers"
	"github.com/nacht-org/quelle-sub001/pkg/registry"
)

// emptyWASMModule is the minimal valid WASM binary: magic number and
// version, no sections. Enough for wazero to compile and instantiate it,
// which is all this package's scenario tests need from the Host side.
var emptyWASMModule = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

func publishVersion(t *testing.T, store *providers.FilesystemProvider, id, version string, wasm []byte) {
	t.Helper()
	ref, err := extpkg.NewFileReference("extension.wasm", extpkg.AlgoBLAKE3, wasm)
	require.NoError(t, err)
	pkg := extpkg.ExtensionPackage{
		Manifest: extpkg.ExtensionManifest{
			ID:       id,
			Name:     id,
			Version:  version,
			BaseURLs: []string{"example.com"},
			WASMFile: ref,
		},
		WASM: wasm,
	}
	require.NoError(t, store.Publish(context.Background(), pkg))
}

// TestFreshInstallJournalsMatchingExtension exercises a fresh install
// against a local store followed by storing the scraped novel content the
// installed extension would have produced: a registered source, an install
// by id, and a fetched novel with the expected title, with the journal
// entry's checksum matching the on-disk package.
func TestFreshInstallJournalsMatchingExtension(t *testing.T) {
	ctx := context.Background()

	store, err := providers.NewFilesystemProvider(t.TempDir())
	require.NoError(t, err)
	publishVersion(t, store, "example-source", "1.0.0", []byte("wasm-v1"))

	mgr, err := registry.NewManager(t.TempDir())
	require.NoError(t, err)
	mgr.AddSource(registry.ExtensionSource{Name: "local", Kind: registry.StoreLocal, Enabled: true}, store)

	installed, err := mgr.Install(ctx, "example-source", registry.InstallOptions{})
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", installed.Manifest.Version)
	assert.True(t, installed.Manifest.WASMFile.Verify([]byte("wasm-v1")))

	contentStore, err := content.NewFilesystemStore(t.TempDir())
	require.NoError(t, err)

	novel := content.Novel{
		URL:     "https://example.com/novel/1",
		Title:   "Test Novel",
		Status:  content.StatusOngoing,
		Volumes: []content.Volume{{Name: "Volume 1", Chapters: []content.Chapter{{Title: "Chapter 1", URL: "https://example.com/novel/1/chapter-1"}}}},
	}
	novelID, err := contentStore.StoreNovel(installed.Manifest.ID, novel)
	require.NoError(t, err)

	fetched, err := contentStore.GetNovel(novelID)
	require.NoError(t, err)
	assert.Equal(t, "Test Novel", fetched.Title)
}

// TestExtensionUpgradePreservesScrapedContent exercises an extension
// version upgrade (the Registry Manager's concern) alongside a novel
// rescrape that adds chapters (the Content Store's concern): upgrading the
// extension must not disturb already-downloaded chapter content, since the
// two subsystems track state independently.
func TestExtensionUpgradePreservesScrapedContent(t *testing.T) {
	ctx := context.Background()

	store, err := providers.NewFilesystemProvider(t.TempDir())
	require.NoError(t, err)
	publishVersion(t, store, "example-source", "1.0.0", []byte("wasm-v1"))
	publishVersion(t, store, "example-source", "1.1.0", []byte("wasm-v1-1"))

	mgr, err := registry.NewManager(t.TempDir())
	require.NoError(t, err)
	mgr.AddSource(registry.ExtensionSource{Name: "local", Kind: registry.StoreLocal, Enabled: true}, store)

	v1, err := mgr.Install(ctx, "example-source", registry.InstallOptions{Version: "1.0.0"})
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", v1.Manifest.Version)

	contentStore, err := content.NewFilesystemStore(t.TempDir())
	require.NoError(t, err)

	chURLs := []string{
		"https://example.com/novel/1/chapter-1",
		"https://example.com/novel/1/chapter-2",
		"https://example.com/novel/1/chapter-3",
	}
	chapters := make([]content.Chapter, len(chURLs))
	for i, u := range chURLs {
		chapters[i] = content.Chapter{Title: u, Index: i, URL: u}
	}
	novel := content.Novel{URL: "https://example.com/novel/1", Title: "Test Novel", Status: content.StatusOngoing,
		Volumes: []content.Volume{{Name: "Volume 1", Chapters: chapters}}}

	novelID, err := contentStore.StoreNovel(v1.Manifest.ID, novel)
	require.NoError(t, err)
	require.NoError(t, contentStore.StoreChapterContent(novelID, 0, chURLs[0], content.ChapterContent{Data: strings.Repeat("x", 100)}))

	v2, err := mgr.Install(ctx, "example-source", registry.InstallOptions{Version: "1.1.0", ForceReinstall: true})
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", v2.Manifest.Version)

	rescraped := content.Novel{URL: "https://example.com/novel/1", Title: "Test Novel", Status: content.StatusOngoing,
		Volumes: []content.Volume{{Name: "Volume 1", Chapters: append(chapters,
			content.Chapter{Title: "chapter-4", Index: 3, URL: "https://example.com/novel/1/chapter-4"},
			content.Chapter{Title: "chapter-5", Index: 4, URL: "https://example.com/novel/1/chapter-5"},
		)}}}
	rescrapedID, err := contentStore.StoreNovel(v2.Manifest.ID, rescraped)
	require.NoError(t, err)
	assert.Equal(t, novelID, rescrapedID)

	infos, err := contentStore.ListChapters(novelID)
	require.NoError(t, err)
	require.Len(t, infos, 5)

	c1, err := contentStore.GetChapterContent(novelID, 0, chURLs[0])
	require.NoError(t, err)
	require.NotNil(t, c1)
	assert.Len(t, c1.Data, 100)
}

// TestInstallThenLoadInstalledExtensionsMakesItRunnable exercises the
// composition root's own load path end to end: a fresh install materializes
// extension.wasm on disk, and loadInstalledExtensions must read that exact
// file and compile it so the Extension Host can hand out a Runner for it
// without any further wiring.
func TestInstallThenLoadInstalledExtensionsMakesItRunnable(t *testing.T) {
	ctx := context.Background()

	store, err := providers.NewFilesystemProvider(t.TempDir())
	require.NoError(t, err)
	publishVersion(t, store, "example-source", "1.0.0", emptyWASMModule)

	mgr, err := registry.NewManager(t.TempDir())
	require.NoError(t, err)
	mgr.AddSource(registry.ExtensionSource{Name: "local", Kind: registry.StoreLocal, Enabled: true}, store)

	installed, err := mgr.Install(ctx, "example-source", registry.InstallOptions{})
	require.NoError(t, err)

	h, err := host.NewHost(ctx, httpx.NewDirectExecutor(nil))
	require.NoError(t, err)
	defer h.Close(ctx)

	require.NoError(t, loadInstalledExtensions(ctx, h, mgr))

	runner, err := h.NewRunner(ctx, installed.Manifest.WASMFile.Checksum)
	require.NoError(t, err)
	defer runner.Close(ctx)
}
