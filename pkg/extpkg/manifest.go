// Package extpkg implements the extension Package Model: the typed
// manifest, file-reference checksums, asset bundle, and signature slot
// shared by every Backend Provider and the Registry Manager.
package extpkg

import (
	"strings"
	"time"
)

// ReadingDirection is the guest-declared text flow for a novel source.
type ReadingDirection string

const (
	ReadingLTR ReadingDirection = "Ltr"
	ReadingRTL ReadingDirection = "Rtl"
)

// SignatureInfo is a reserved signature slot on a manifest. Verification is
// out of scope; the field only needs to round-trip through (de)serialization.
type SignatureInfo struct {
	Algorithm string    `json:"algorithm" validate:"required"`
	Signature []byte    `json:"signature" validate:"required"`
	KeyID     string    `json:"key_id" validate:"required"`
	SignedAt  time.Time `json:"signed_at"`
}

// AssetReference names one auxiliary file bundled with an extension,
// alongside its checksum.
type AssetReference struct {
	Name string        `json:"name" validate:"required"`
	File FileReference `json:"file" validate:"required"`
}

// ExtensionManifest is the metadata record describing an extension
// package, persisted at manifest.json within the package layout.
type ExtensionManifest struct {
	ID        string            `json:"id" validate:"required"`
	Name      string            `json:"name" validate:"required"`
	Version   string            `json:"version" validate:"required,semver"`
	Author    string            `json:"author"`
	Langs     []string          `json:"langs"`
	BaseURLs  []string          `json:"base_urls" validate:"required,min=1"`
	Direction ReadingDirection  `json:"direction"`
	Attrs     map[string]string `json:"attrs,omitempty"`

	Signature *SignatureInfo   `json:"signature,omitempty"`
	WASMFile  FileReference    `json:"wasm_file" validate:"required"`
	Assets    []AssetReference `json:"assets,omitempty"`
}

// MatchesHost reports whether host matches one of m's BaseURLs via a
// simple substring test in either direction, per the URL-routing rule.
func (m ExtensionManifest) MatchesHost(host string) bool {
	for _, base := range m.BaseURLs {
		if containsEitherWay(host, base) {
			return true
		}
	}
	return false
}

func containsEitherWay(a, b string) bool {
	return strings.Contains(a, b) || strings.Contains(b, a)
}
