package providers

import (
	"context"
	"encoding/json"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nacht-org/quelle-sub001/internal/logger"
	"github.com/nacht-org/quelle-sub001/pkg/extpkg"
	"github.com/nacht-org/quelle-sub001/pkg/quelleerr"
	"github.com/nacht-org/quelle-sub001/pkg/registry"
)

// FilesystemProvider is the trivial ReadableStore/WritableStore backed by a
// plain directory on the local machine.
type FilesystemProvider struct {
	root         string
	requirements registry.PublishRequirements
}

// NewFilesystemProvider opens root as a provider, creating it if absent.
func NewFilesystemProvider(root string) (*FilesystemProvider, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, quelleerr.Wrap(quelleerr.IO, "open_filesystem_provider", err).WithPath(root)
	}
	return &FilesystemProvider{root: root}, nil
}

// WithRequirements overrides the default (empty) publish requirements.
func (p *FilesystemProvider) WithRequirements(r registry.PublishRequirements) *FilesystemProvider {
	p.requirements = r
	return p
}

func (p *FilesystemProvider) abs(rel string) string {
	return filepath.Join(p.root, filepath.FromSlash(rel))
}

// ReadFile reads rel relative to the provider root.
func (p *FilesystemProvider) ReadFile(ctx context.Context, rel string) ([]byte, error) {
	data, err := os.ReadFile(p.abs(rel))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, quelleerr.New(quelleerr.ExtensionNotFound, "read_file").WithPath(rel)
		}
		return nil, quelleerr.Wrap(quelleerr.IO, "read_file", err).WithPath(rel)
	}
	return data, nil
}

// FileExists reports whether rel exists under the provider root.
func (p *FilesystemProvider) FileExists(ctx context.Context, rel string) (bool, error) {
	_, err := os.Stat(p.abs(rel))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, quelleerr.Wrap(quelleerr.IO, "file_exists", err).WithPath(rel)
}

// ListDirectory lists the entry names directly under rel.
func (p *FilesystemProvider) ListDirectory(ctx context.Context, rel string) ([]string, error) {
	entries, err := os.ReadDir(p.abs(rel))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, quelleerr.Wrap(quelleerr.IO, "list_directory", err).WithPath(rel)
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	sort.Strings(names)
	return names, nil
}

// ListExtensions enumerates the extension ids present under extensions/.
func (p *FilesystemProvider) ListExtensions(ctx context.Context) ([]string, error) {
	return p.ListDirectory(ctx, extensionsDir)
}

// ListExtensionVersions lists the version directories for extID, excluding
// versions carrying a tombstone marker.
func (p *FilesystemProvider) ListExtensionVersions(ctx context.Context, extID string) ([]string, error) {
	all, err := p.ListDirectory(ctx, path.Join(extensionRoot(extID), versionsDir))
	if err != nil {
		return nil, err
	}
	var live []string
	for _, v := range all {
		if exists, _ := p.FileExists(ctx, tombstonePath(extID, v)); !exists {
			live = append(live, v)
		}
	}
	return live, nil
}

func (p *FilesystemProvider) resolveVersion(ctx context.Context, extID, version string) (string, error) {
	if version != "" {
		return version, nil
	}
	if data, err := p.ReadFile(ctx, latestPointerPath(extID)); err == nil {
		return strings.TrimSpace(string(data)), nil
	}
	versions, err := p.ListExtensionVersions(ctx, extID)
	if err != nil {
		return "", err
	}
	if len(versions) == 0 {
		return "", quelleerr.New(quelleerr.ExtensionNotFound, "resolve_version").WithPath(extID)
	}
	return newestVersion(versions), nil
}

// GetExtensionManifest loads extID's manifest at version (or the resolved
// latest if version is empty).
func (p *FilesystemProvider) GetExtensionManifest(ctx context.Context, extID, version string) (extpkg.ExtensionManifest, error) {
	v, err := p.resolveVersion(ctx, extID, version)
	if err != nil {
		return extpkg.ExtensionManifest{}, err
	}
	data, err := p.ReadFile(ctx, manifestPath(extID, v))
	if err != nil {
		if quelleerr.Is(err, quelleerr.ExtensionNotFound) {
			return extpkg.ExtensionManifest{}, quelleerr.New(quelleerr.VersionNotFound, "get_manifest").WithPath(extID + "@" + v)
		}
		return extpkg.ExtensionManifest{}, err
	}
	var manifest extpkg.ExtensionManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return extpkg.ExtensionManifest{}, quelleerr.Wrap(quelleerr.InvalidManifest, "parse_manifest", err).WithPath(extID + "@" + v)
	}
	return manifest, nil
}

// GetExtensionPackage loads the full package: manifest, wasm bytes, and
// every manifest-declared asset.
func (p *FilesystemProvider) GetExtensionPackage(ctx context.Context, extID, version string) (extpkg.ExtensionPackage, error) {
	v, err := p.resolveVersion(ctx, extID, version)
	if err != nil {
		return extpkg.ExtensionPackage{}, err
	}
	manifest, err := p.GetExtensionManifest(ctx, extID, v)
	if err != nil {
		return extpkg.ExtensionPackage{}, err
	}
	wasm, err := p.ReadFile(ctx, wasmPath(extID, v))
	if err != nil {
		return extpkg.ExtensionPackage{}, err
	}

	assets := make(map[string][]byte, len(manifest.Assets))
	for _, ref := range manifest.Assets {
		data, err := p.ReadFile(ctx, assetPath(extID, v, ref.File.Path))
		if err != nil {
			return extpkg.ExtensionPackage{}, err
		}
		assets[ref.Name] = data
	}

	return extpkg.ExtensionPackage{Manifest: manifest, WASM: wasm, Assets: assets, Source: "filesystem"}, nil
}

// Requirements returns the provider's configured publish constraints.
func (p *FilesystemProvider) Requirements(ctx context.Context) (registry.PublishRequirements, error) {
	return p.requirements, nil
}

// Publish validates pkg, recomputes its checksums, and writes the on-disk
// layout for a new version, refusing to overwrite an existing one.
func (p *FilesystemProvider) Publish(ctx context.Context, pkg extpkg.ExtensionPackage) error {
	if qerr := pkg.Validate(); qerr != nil && qerr.HasCritical() {
		return qerr
	}

	if err := pkg.Recompute(extpkg.AlgoBLAKE3); err != nil {
		return quelleerr.Wrap(quelleerr.IO, "publish_recompute", err)
	}

	extID, version := pkg.Manifest.ID, pkg.Manifest.Version
	if exists, _ := p.FileExists(ctx, manifestPath(extID, version)); exists {
		return quelleerr.New(quelleerr.ExtensionVersionExists, "publish").WithPath(extID + "@" + version)
	}

	manifestData, err := json.MarshalIndent(pkg.Manifest, "", "  ")
	if err != nil {
		return quelleerr.Wrap(quelleerr.Serialization, "publish_marshal_manifest", err)
	}
	if err := p.writeFile(manifestPath(extID, version), manifestData); err != nil {
		return err
	}
	if err := p.writeFile(wasmPath(extID, version), pkg.WASM); err != nil {
		return err
	}
	for _, ref := range pkg.Manifest.Assets {
		if err := p.writeFile(assetPath(extID, version, ref.File.Path), pkg.Assets[ref.Name]); err != nil {
			return err
		}
	}
	if err := p.writeFile(latestPointerPath(extID), []byte(version)); err != nil {
		return err
	}

	logger.InfoCtx(ctx, "published extension", logger.ExtensionID(extID), logger.Version(version))
	return nil
}

// Unpublish removes version (or every version, if empty) of extID. With
// keepRecord set, a tombstone marker replaces the removed content instead
// of deleting the version directory outright.
func (p *FilesystemProvider) Unpublish(ctx context.Context, extID, version string, keepRecord bool) error {
	versions := []string{version}
	if version == "" {
		all, err := p.ListExtensionVersions(ctx, extID)
		if err != nil {
			return err
		}
		versions = all
	}

	for _, v := range versions {
		dir := p.abs(versionRoot(extID, v))
		if keepRecord {
			if err := os.RemoveAll(dir); err != nil {
				return quelleerr.Wrap(quelleerr.IO, "unpublish_remove", err).WithPath(dir)
			}
			if err := p.writeFile(tombstonePath(extID, v), []byte("removed")); err != nil {
				return err
			}
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			return quelleerr.Wrap(quelleerr.IO, "unpublish_remove", err).WithPath(dir)
		}
	}
	return nil
}

func (p *FilesystemProvider) writeFile(rel string, data []byte) error {
	abs := p.abs(rel)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return quelleerr.Wrap(quelleerr.IO, "write_file_mkdir", err).WithPath(rel)
	}
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		return quelleerr.Wrap(quelleerr.IO, "write_file", err).WithPath(rel)
	}
	return nil
}

var _ registry.ReadableStore = (*FilesystemProvider)(nil)
var _ registry.WritableStore = (*FilesystemProvider)(nil)
