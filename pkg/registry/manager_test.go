package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nacht-org/quelle-sub001/pkg/extpkg"
	"github.com/nacht-org/quelle-sub001/pkg/quelleerr"
)

// fakeStore is an in-memory ReadableStore for exercising Manager without a
// real filesystem/git/github backend.
type fakeStore struct {
	name         string
	packages     map[string]map[string]extpkg.ExtensionPackage // extID -> version -> package
	latest       map[string]string
	failNotFound bool
}

func newFakeStore(name string) *fakeStore {
	return &fakeStore{name: name, packages: make(map[string]map[string]extpkg.ExtensionPackage), latest: make(map[string]string)}
}

func (s *fakeStore) addVersion(t *testing.T, extID, version string) {
	t.Helper()
	wasm := []byte("wasm-" + extID + "-" + version)
	ref, err := extpkg.NewFileReference("extension.wasm", extpkg.AlgoBLAKE3, wasm)
	require.NoError(t, err)

	manifest := extpkg.ExtensionManifest{
		ID:       extID,
		Name:     extID,
		Version:  version,
		BaseURLs: []string{"example.com"},
		WASMFile: ref,
	}
	pkg := extpkg.ExtensionPackage{Manifest: manifest, WASM: wasm}

	if s.packages[extID] == nil {
		s.packages[extID] = make(map[string]extpkg.ExtensionPackage)
	}
	s.packages[extID][version] = pkg
	s.latest[extID] = version
}

func (s *fakeStore) ListExtensions(ctx context.Context) ([]string, error) {
	out := make([]string, 0, len(s.packages))
	for id := range s.packages {
		out = append(out, id)
	}
	return out, nil
}

func (s *fakeStore) ListExtensionVersions(ctx context.Context, extID string) ([]string, error) {
	var out []string
	for v := range s.packages[extID] {
		out = append(out, v)
	}
	return out, nil
}

func (s *fakeStore) GetExtensionManifest(ctx context.Context, extID, version string) (extpkg.ExtensionManifest, error) {
	pkg, err := s.GetExtensionPackage(ctx, extID, version)
	if err != nil {
		return extpkg.ExtensionManifest{}, err
	}
	return pkg.Manifest, nil
}

func (s *fakeStore) GetExtensionPackage(ctx context.Context, extID, version string) (extpkg.ExtensionPackage, error) {
	versions, ok := s.packages[extID]
	if !ok {
		return extpkg.ExtensionPackage{}, quelleerr.New(quelleerr.ExtensionNotFound, "get_package").WithPath(extID)
	}
	if version == "" {
		version = s.latest[extID]
	}
	pkg, ok := versions[version]
	if !ok {
		return extpkg.ExtensionPackage{}, quelleerr.New(quelleerr.VersionNotFound, "get_package").WithPath(extID + "@" + version)
	}
	return pkg, nil
}

func testSource(name string, priority int, trusted bool) ExtensionSource {
	return ExtensionSource{Name: name, Kind: StoreLocal, Enabled: true, Priority: priority, Trusted: trusted}
}

func TestInstallFreshExtensionJournalsRecord(t *testing.T) {
	mgr, err := NewManager(t.TempDir())
	require.NoError(t, err)

	store := newFakeStore("local")
	store.addVersion(t, "example-source", "1.0.0")
	mgr.AddSource(testSource("local", 0, true), store)

	installed, err := mgr.Install(context.Background(), "example-source", InstallOptions{})
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", installed.Manifest.Version)
	assert.NotEmpty(t, installed.UUID)

	got, ok := mgr.GetInstalled("example-source")
	require.True(t, ok)
	assert.Equal(t, installed.UUID, got.UUID)
}

func TestInstallReturnsExistingRecordWithoutForceReinstall(t *testing.T) {
	mgr, err := NewManager(t.TempDir())
	require.NoError(t, err)

	store := newFakeStore("local")
	store.addVersion(t, "example-source", "1.0.0")
	mgr.AddSource(testSource("local", 0, true), store)

	first, err := mgr.Install(context.Background(), "example-source", InstallOptions{})
	require.NoError(t, err)

	second, err := mgr.Install(context.Background(), "example-source", InstallOptions{})
	require.NoError(t, err)
	assert.Equal(t, first.UUID, second.UUID)
}

func TestInstallTriesNextSourceOnNotFound(t *testing.T) {
	mgr, err := NewManager(t.TempDir())
	require.NoError(t, err)

	empty := newFakeStore("empty")
	mgr.AddSource(testSource("empty", 0, false), empty)

	fallback := newFakeStore("fallback")
	fallback.addVersion(t, "example-source", "1.0.0")
	mgr.AddSource(testSource("fallback", 1, false), fallback)

	installed, err := mgr.Install(context.Background(), "example-source", InstallOptions{})
	require.NoError(t, err)
	assert.Equal(t, "fallback", installed.SourceName)
}

func TestInstallBlocksDowngradeWithoutAllowDowngrades(t *testing.T) {
	mgr, err := NewManager(t.TempDir())
	require.NoError(t, err)

	store := newFakeStore("local")
	store.addVersion(t, "example-source", "2.0.0")
	mgr.AddSource(testSource("local", 0, true), store)

	_, err = mgr.Install(context.Background(), "example-source", InstallOptions{})
	require.NoError(t, err)

	store.addVersion(t, "example-source", "1.0.0")
	_, err = mgr.Install(context.Background(), "example-source", InstallOptions{Version: "1.0.0", ForceReinstall: true})
	require.Error(t, err)
}

func TestUninstallRemovesJournalEntry(t *testing.T) {
	mgr, err := NewManager(t.TempDir())
	require.NoError(t, err)

	store := newFakeStore("local")
	store.addVersion(t, "example-source", "1.0.0")
	mgr.AddSource(testSource("local", 0, true), store)

	_, err = mgr.Install(context.Background(), "example-source", InstallOptions{})
	require.NoError(t, err)

	require.NoError(t, mgr.Uninstall(context.Background(), "example-source"))
	_, ok := mgr.GetInstalled("example-source")
	assert.False(t, ok)
}

func TestSearchAllStoresDedupesTrustedPreferred(t *testing.T) {
	mgr, err := NewManager(t.TempDir())
	require.NoError(t, err)

	trusted := newFakeStore("trusted")
	trusted.addVersion(t, "example-source", "1.0.0")
	mgr.AddSource(testSource("trusted", 0, true), trusted)

	untrusted := newFakeStore("untrusted")
	untrusted.addVersion(t, "example-source", "1.0.0")
	mgr.AddSource(testSource("untrusted", 1, false), untrusted)

	results, err := mgr.SearchAllStores(context.Background(), SearchQuery{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "trusted", results[0].SourceName)
}

func TestCheckUpdatesFindsNewerVersion(t *testing.T) {
	mgr, err := NewManager(t.TempDir())
	require.NoError(t, err)

	store := newFakeStore("local")
	store.addVersion(t, "example-source", "1.0.0")
	mgr.AddSource(testSource("local", 0, true), store)

	_, err = mgr.Install(context.Background(), "example-source", InstallOptions{})
	require.NoError(t, err)

	store.addVersion(t, "example-source", "1.1.0")

	updates, err := mgr.CheckUpdates(context.Background())
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, "1.0.0", updates[0].CurrentVersion)
	assert.Equal(t, "1.1.0", updates[0].LatestVersion)
}

func TestInstallWithNoSourcesConfiguredReturnsErrNoSources(t *testing.T) {
	mgr, err := NewManager(t.TempDir())
	require.NoError(t, err)

	_, err = mgr.Install(context.Background(), "example-source", InstallOptions{})
	assert.ErrorIs(t, err, ErrNoSourcesConfigured)
}

func TestSearchAllStoresWithNoSourcesConfiguredReturnsErrNoSources(t *testing.T) {
	mgr, err := NewManager(t.TempDir())
	require.NoError(t, err)

	_, err = mgr.SearchAllStores(context.Background(), SearchQuery{})
	assert.ErrorIs(t, err, ErrNoSourcesConfigured)
}

func (s *fakeStore) addVersionWithAsset(t *testing.T, extID, version, assetName, assetRelPath string, assetData []byte) {
	t.Helper()
	wasm := []byte("wasm-" + extID + "-" + version)
	wasmRef, err := extpkg.NewFileReference("extension.wasm", extpkg.AlgoBLAKE3, wasm)
	require.NoError(t, err)
	assetRef, err := extpkg.NewFileReference(assetRelPath, extpkg.AlgoBLAKE3, assetData)
	require.NoError(t, err)

	manifest := extpkg.ExtensionManifest{
		ID:       extID,
		Name:     extID,
		Version:  version,
		BaseURLs: []string{"example.com"},
		WASMFile: wasmRef,
		Assets:   []extpkg.AssetReference{{Name: assetName, File: assetRef}},
	}
	pkg := extpkg.ExtensionPackage{Manifest: manifest, WASM: wasm, Assets: map[string][]byte{assetName: assetData}}

	if s.packages[extID] == nil {
		s.packages[extID] = make(map[string]extpkg.ExtensionPackage)
	}
	s.packages[extID][version] = pkg
	s.latest[extID] = version
}

// TestInstallMaterializesPackageUnderInstallDir verifies the on-disk
// materialize() contract: manifest.json, extension.wasm, and every
// manifest-declared asset land under <installDir>/<ext_id>/.
func TestInstallMaterializesPackageUnderInstallDir(t *testing.T) {
	installDir := t.TempDir()
	mgr, err := NewManager(installDir)
	require.NoError(t, err)

	store := newFakeStore("local")
	store.addVersionWithAsset(t, "example-source", "1.0.0", "icon", "icon.png", []byte("icon-bytes"))
	mgr.AddSource(testSource("local", 0, true), store)

	installed, err := mgr.Install(context.Background(), "example-source", InstallOptions{})
	require.NoError(t, err)

	extDir := filepath.Join(installDir, "example-source")
	assert.Equal(t, extDir, installed.InstallPath)

	manifestData, err := os.ReadFile(filepath.Join(extDir, "manifest.json"))
	require.NoError(t, err)
	assert.Contains(t, string(manifestData), `"id": "example-source"`)

	wasmData, err := os.ReadFile(filepath.Join(extDir, "extension.wasm"))
	require.NoError(t, err)
	assert.True(t, installed.Manifest.WASMFile.Verify(wasmData))

	assetData, err := os.ReadFile(filepath.Join(extDir, "icon.png"))
	require.NoError(t, err)
	assert.Equal(t, "icon-bytes", string(assetData))

	assert.Greater(t, installed.InstallSize, int64(len(wasmData)))
}
