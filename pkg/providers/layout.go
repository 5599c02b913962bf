// Package providers implements the three readable Backend Providers
// (filesystem, git, github) sharing the uniform extensions/<id>/versions/<ver>
// on-disk layout, plus the Filesystem and Git writable (publish/unpublish)
// variants.
package providers

import (
	"path"
	"sort"

	"github.com/Masterminds/semver/v3"
)

const (
	extensionsDir = "extensions"
	versionsDir   = "versions"
	manifestFile  = "manifest.json"
	wasmFile      = "extension.wasm"
	metadataFile  = "metadata.json"
	latestPointer = "latest.txt"
	tombstoneFile = ".removed"
)

func extensionRoot(extID string) string {
	return path.Join(extensionsDir, extID)
}

func versionRoot(extID, version string) string {
	return path.Join(extensionRoot(extID), versionsDir, version)
}

func manifestPath(extID, version string) string {
	return path.Join(versionRoot(extID, version), manifestFile)
}

func wasmPath(extID, version string) string {
	return path.Join(versionRoot(extID, version), wasmFile)
}

func metadataPath(extID, version string) string {
	return path.Join(versionRoot(extID, version), metadataFile)
}

func assetPath(extID, version, assetRelPath string) string {
	return path.Join(versionRoot(extID, version), assetRelPath)
}

func latestPointerPath(extID string) string {
	return path.Join(extensionRoot(extID), latestPointer)
}

func tombstonePath(extID, version string) string {
	return path.Join(versionRoot(extID, version), tombstoneFile)
}

// newestVersion picks the highest semver string from versions, falling
// back to lexicographic ordering for unparsable entries so a malformed
// version directory never panics resolution.
func newestVersion(versions []string) string {
	if len(versions) == 0 {
		return ""
	}
	sorted := append([]string(nil), versions...)
	sort.Slice(sorted, func(i, j int) bool {
		vi, erri := semver.NewVersion(sorted[i])
		vj, errj := semver.NewVersion(sorted[j])
		if erri != nil || errj != nil {
			return sorted[i] < sorted[j]
		}
		return vi.LessThan(vj)
	})
	return sorted[len(sorted)-1]
}
