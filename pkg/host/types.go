// Package host runs untrusted extension WASM components inside wazero,
// mediating their single HTTP capability and marshaling the four typed
// guest operations over a JSON-over-linear-memory ABI.
package host

import (
	"github.com/nacht-org/quelle-sub001/pkg/content"
	"github.com/nacht-org/quelle-sub001/pkg/extpkg"
)

// SourceMeta is the guest-reported identity and capability descriptor
// returned by the exported `meta` function.
type SourceMeta struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Langs        []string `json:"langs"`
	BaseURLs     []string `json:"base_urls"`
	Direction    string   `json:"direction"`
	Capabilities []string `json:"capabilities"` // e.g. "simple_search"
}

// HasCapability reports whether name is listed in m.Capabilities.
func (m SourceMeta) HasCapability(name string) bool {
	for _, c := range m.Capabilities {
		if c == name {
			return true
		}
	}
	return false
}

// ExtensionError is the guest-reported error shape, distinct from host
// transport failures: a guest can fail a scrape without the WASM call
// itself trapping.
type ExtensionError struct {
	Message  string `json:"message"`
	Location string `json:"location,omitempty"`
}

func (e *ExtensionError) Error() string {
	if e.Location != "" {
		return e.Message + " (" + e.Location + ")"
	}
	return e.Message
}

// novelResult and chapterResult are the tagged Result<T, ExtensionError>
// envelopes the guest serializes its typed operations' return values as.
type novelResult struct {
	Novel *content.Novel  `json:"novel,omitempty"`
	Err   *ExtensionError `json:"error,omitempty"`
}

type chapterResult struct {
	Content *content.ChapterContent `json:"content,omitempty"`
	Err     *ExtensionError         `json:"error,omitempty"`
}

// SearchQuery is the guest-facing simple_search argument.
type SearchQuery struct {
	Query string `json:"query"`
	Page  int    `json:"page,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// SearchHit is one entry of a simple_search result.
type SearchHit struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Cover string `json:"cover,omitempty"`
}

// SearchResult is the guest-facing simple_search return value.
type SearchResult struct {
	Hits       []SearchHit `json:"hits"`
	HasNext    bool        `json:"has_next"`
	TotalCount int         `json:"total_count,omitempty"`
}

type searchResultEnvelope struct {
	Result *SearchResult   `json:"result,omitempty"`
	Err    *ExtensionError `json:"error,omitempty"`
}

// RoutableExtension is the minimal shape the Registry supplies for URL
// routing: a manifest plus the ordering fields the Registry already tracks.
type RoutableExtension struct {
	Manifest   extpkg.ExtensionManifest
	SourceName string
	Priority   int
}
