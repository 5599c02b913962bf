// Package registry implements the Registry Manager: the set of configured
// extension sources, the installation journal, and the multi-source
// search/install/update/uninstall operations that sit on top of it.
package registry

import (
	"time"

	"github.com/nacht-org/quelle-sub001/pkg/extpkg"
)

// StoreKind tags how a source's backend is reached. Exactly one of the
// embedded configs is meaningful for a given Kind.
type StoreKind string

const (
	StoreLocal  StoreKind = "local"
	StoreGit    StoreKind = "git"
	StoreGitHub StoreKind = "github"
)

// GitAuth selects how the Git/GitHub provider authenticates.
type GitAuth struct {
	Token      string `json:"token,omitempty"`
	SSHKeyPath string `json:"ssh_key_path,omitempty"`
	Passphrase string `json:"passphrase,omitempty"`
	Username   string `json:"username,omitempty"`
	Password   string `json:"password,omitempty"`
}

// LocalConfig is StoreLocal's backend configuration.
type LocalConfig struct {
	Path string `json:"path"`
}

// GitConfig is StoreGit's backend configuration.
type GitConfig struct {
	URL      string  `json:"url"`
	CacheDir string  `json:"cache_dir"`
	Ref      string  `json:"ref,omitempty"` // empty = default branch
	Auth     GitAuth `json:"auth,omitempty"`
}

// GitHubConfig is StoreGitHub's backend configuration.
type GitHubConfig struct {
	Owner    string  `json:"owner"`
	Repo     string  `json:"repo"`
	CacheDir string  `json:"cache_dir"`
	Ref      string  `json:"ref,omitempty"`
	Auth     GitAuth `json:"auth,omitempty"`
}

// ExtensionSource is a configured store entry: name, backend, trust and
// priority used to order and dedupe aggregate operations.
type ExtensionSource struct {
	Name     string        `json:"name"`
	Kind     StoreKind     `json:"kind"`
	Local    *LocalConfig  `json:"local,omitempty"`
	Git      *GitConfig    `json:"git,omitempty"`
	GitHub   *GitHubConfig `json:"github,omitempty"`
	Enabled  bool          `json:"enabled"`
	Priority int           `json:"priority"` // lower = preferred
	Trusted  bool          `json:"trusted"`
	AddedAt  time.Time     `json:"added_at"`
}

// InstalledExtension is one entry of the Registry Journal: metadata about
// an extension materialized on disk. The on-disk extension.wasm is the
// single source of truth for execution; this record is a metadata cache.
type InstalledExtension struct {
	UUID        string                   `json:"uuid"`
	Manifest    extpkg.ExtensionManifest `json:"manifest"`
	InstallPath string                   `json:"install_path"`
	InstalledAt time.Time                `json:"installed_at"`
	SourceName  string                   `json:"source_name"`
	AutoUpdate  bool                     `json:"auto_update"`
	Deps        []string                 `json:"deps,omitempty"`
	InstallSize int64                    `json:"install_size"`
}

// SortKey selects the ordering for aggregated search results.
type SortKey string

const (
	SortRelevance     SortKey = "relevance" // no sorting; result order is not defined
	SortName          SortKey = "name"
	SortVersion       SortKey = "version" // semver descending
	SortLastUpdated   SortKey = "last_updated"
	SortAuthor        SortKey = "author"
	SortSize          SortKey = "size"
	SortDownloadCount SortKey = "download_count"
)

// SearchQuery parameterizes search_all_stores.
type SearchQuery struct {
	Text    string
	Page    int
	Limit   int
	SortKey SortKey
}

// SearchResult is one hit from an aggregate search.
type SearchResult struct {
	Manifest      extpkg.ExtensionManifest
	SourceName    string
	Trusted       bool
	LastUpdated   time.Time
	Size          int64
	DownloadCount int64
}

// InstallOptions parameterizes Manager.Install.
type InstallOptions struct {
	Version         string // empty = latest
	ForceReinstall  bool
	AllowDowngrades bool
}

// UpdateRecord reports an available update for an installed extension.
type UpdateRecord struct {
	ExtensionID    string
	CurrentVersion string
	LatestVersion  string
	SourceName     string
	BreakingChange bool
	Security       bool
}
