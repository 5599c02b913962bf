package registry

import (
	"context"

	"github.com/nacht-org/quelle-sub001/pkg/extpkg"
)

// ReadableStore is the uniform read-side contract every Backend Provider
// (filesystem, git, github) satisfies for the extensions/<id>/versions/<ver>
// layout.
type ReadableStore interface {
	// ListExtensions returns every extension id the store currently offers.
	ListExtensions(ctx context.Context) ([]string, error)

	// ListExtensionVersions returns the semver strings available for extID.
	ListExtensionVersions(ctx context.Context, extID string) ([]string, error)

	// GetExtensionManifest fetches extID's manifest. An empty version
	// resolves via latest.txt, falling back to the newest semver present.
	GetExtensionManifest(ctx context.Context, extID, version string) (extpkg.ExtensionManifest, error)

	// GetExtensionPackage fetches the full package (manifest + wasm + assets).
	GetExtensionPackage(ctx context.Context, extID, version string) (extpkg.ExtensionPackage, error)
}

// WritableStore additionally supports publish/unpublish. The Filesystem and
// Git providers implement this; GitHub (read via raw URLs) does not.
type WritableStore interface {
	ReadableStore

	// Requirements reports this store's publish-time constraints.
	Requirements(ctx context.Context) (PublishRequirements, error)

	// Publish validates pkg, recomputes its checksums, and emits the
	// on-disk layout for a new version.
	Publish(ctx context.Context, pkg extpkg.ExtensionPackage) error

	// Unpublish removes a version (or, if version is empty, every version)
	// of extID. If keepRecord is set, a tombstone file is left behind.
	Unpublish(ctx context.Context, extID, version string, keepRecord bool) error
}

// PublishRequirements are the constraints a store imposes on published
// packages, as returned by a WritableStore's Requirements call.
type PublishRequirements struct {
	RequiresAuth        bool
	RequiresSigning     bool
	MaxPackageSize      int64
	AllowedExtensions   []string
	ForbiddenPatterns   []string
	RequiredMetadata    []string
	SupportedVisibility []string
}
