package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/nacht-org/quelle-sub001/internal/logger"
	"github.com/nacht-org/quelle-sub001/pkg/extpkg"
	"github.com/nacht-org/quelle-sub001/pkg/quelleerr"
	"github.com/nacht-org/quelle-sub001/pkg/registry"
)

const (
	githubAPIBase = "https://api.github.com"
	githubRawBase = "https://raw.githubusercontent.com"
)

// GitHubProvider is a read-only ReadableStore backed by a GitHub repository,
// read through the REST contents API (directory listings) and
// raw.githubusercontent.com (file bodies). It never clones; every read is a
// plain HTTP request. Responses are cached in memory for ttl, except the
// repository metadata lookup and latest.txt reads, which always hit the
// network.
type GitHubProvider struct {
	owner   string
	repo    string
	ref     string
	token   string
	client  *http.Client
	ttl     time.Duration
	apiBase string
	rawBase string

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	data    []byte
	expires time.Time
}

// GitHubProviderConfig configures NewGitHubProvider.
type GitHubProviderConfig struct {
	Owner string
	Repo  string
	// Ref pins a branch, tag, or commit. Empty selects the default ref,
	// resolved according to Async (see NewGitHubProvider).
	Ref   string
	Token string
	// Async, when true, probes the repository at construction time to
	// resolve the true default branch (via the repo metadata endpoint,
	// falling back to probing "main" then "master"). When false (naive
	// mode), construction never touches the network and Ref defaults to
	// "main" outright.
	Async  bool
	Client *http.Client
	TTL    time.Duration // default 5 minutes

	// APIBase and RawBase override the GitHub hosts; empty means the real
	// api.github.com / raw.githubusercontent.com. Tests point these at a
	// local httptest.Server.
	APIBase string
	RawBase string
}

// NewGitHubProvider constructs a GitHubProvider. In naive mode (Async false)
// construction is network-free and assumes "main" absent an explicit Ref.
// In async mode it resolves the repository's actual default branch.
func NewGitHubProvider(ctx context.Context, cfg GitHubProviderConfig) (*GitHubProvider, error) {
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.APIBase == "" {
		cfg.APIBase = githubAPIBase
	}
	if cfg.RawBase == "" {
		cfg.RawBase = githubRawBase
	}

	p := &GitHubProvider{
		owner:   cfg.Owner,
		repo:    cfg.Repo,
		ref:     cfg.Ref,
		token:   cfg.Token,
		client:  cfg.Client,
		ttl:     cfg.TTL,
		apiBase: cfg.APIBase,
		rawBase: cfg.RawBase,
		cache:   make(map[string]cacheEntry),
	}

	if p.ref != "" {
		return p, nil
	}
	if !cfg.Async {
		p.ref = "main"
		return p, nil
	}

	ref, err := p.resolveDefaultRef(ctx)
	if err != nil {
		logger.WarnCtx(ctx, "could not resolve github default branch, falling back to main", logger.Err(err))
		ref = "main"
	}
	p.ref = ref
	return p, nil
}

// resolveDefaultRef queries the repository metadata endpoint for
// default_branch, falling back to probing "main" then "master" if the
// metadata call fails (private repo without a token, rate limiting, etc).
func (p *GitHubProvider) resolveDefaultRef(ctx context.Context) (string, error) {
	url := fmt.Sprintf("%s/repos/%s/%s", p.apiBase, p.owner, p.repo)
	data, err := p.getRaw(ctx, url, false)
	if err == nil {
		var meta struct {
			DefaultBranch string `json:"default_branch"`
		}
		if jsonErr := json.Unmarshal(data, &meta); jsonErr == nil && meta.DefaultBranch != "" {
			return meta.DefaultBranch, nil
		}
	}

	for _, candidate := range []string{"main", "master"} {
		if _, probeErr := p.getRaw(ctx, p.rawURL("README.md", candidate), true); probeErr == nil {
			return candidate, nil
		}
	}
	return "", quelleerr.New(quelleerr.StoreUnavailable, "resolve_default_ref").WithPath(p.owner + "/" + p.repo)
}

func (p *GitHubProvider) rawURL(relPath, ref string) string {
	return fmt.Sprintf("%s/%s/%s/%s/%s", p.rawBase, p.owner, p.repo, ref, relPath)
}

func (p *GitHubProvider) contentsURL(relPath string) string {
	if relPath == "" {
		return fmt.Sprintf("%s/repos/%s/%s/contents?ref=%s", p.apiBase, p.owner, p.repo, p.ref)
	}
	return fmt.Sprintf("%s/repos/%s/%s/contents/%s?ref=%s", p.apiBase, p.owner, p.repo, relPath, p.ref)
}

// getRaw performs a cached GET, returning ExtensionNotFound on 404 and
// StoreUnavailable/Network on other failures. cacheable controls whether a
// successful response is memoized for ttl.
func (p *GitHubProvider) getRaw(ctx context.Context, url string, cacheable bool) ([]byte, error) {
	if cacheable {
		if data, ok := p.fromCache(url); ok {
			return data, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, quelleerr.Wrap(quelleerr.IO, "github_request", err).WithPath(url)
	}
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}
	req.Header.Set("Accept", "application/vnd.github.raw+json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, quelleerr.Wrap(quelleerr.Network, "github_request", err).WithPath(url)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, quelleerr.Wrap(quelleerr.Network, "github_read_body", err).WithPath(url)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, quelleerr.New(quelleerr.ExtensionNotFound, "github_request").WithPath(url)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, quelleerr.New(quelleerr.StoreUnhealthy, "github_request").WithPath(url)
	case resp.StatusCode >= 500:
		return nil, quelleerr.New(quelleerr.StoreUnavailable, "github_request").WithPath(url)
	case resp.StatusCode >= 400:
		return nil, quelleerr.Wrap(quelleerr.Network, "github_request", fmt.Errorf("status %d", resp.StatusCode)).WithPath(url)
	}

	if cacheable {
		p.mu.Lock()
		p.cache[url] = cacheEntry{data: body, expires: time.Now().Add(p.ttl)}
		p.mu.Unlock()
	}
	return body, nil
}

func (p *GitHubProvider) fromCache(url string) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.cache[url]
	if !ok || time.Now().After(entry.expires) {
		return nil, false
	}
	return entry.data, true
}

type githubContentEntry struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

func (p *GitHubProvider) listDir(ctx context.Context, relPath string) ([]string, error) {
	data, err := p.getRaw(ctx, p.contentsURL(relPath), true)
	if err != nil {
		if quelleerr.Is(err, quelleerr.ExtensionNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var entries []githubContentEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, quelleerr.Wrap(quelleerr.Serialization, "github_parse_listing", err).WithPath(relPath)
	}
	var names []string
	for _, e := range entries {
		if e.Type == "dir" {
			names = append(names, e.Name)
		}
	}
	return names, nil
}

// ListExtensions enumerates the extension ids under extensions/.
func (p *GitHubProvider) ListExtensions(ctx context.Context) ([]string, error) {
	return p.listDir(ctx, extensionsDir)
}

// ListExtensionVersions lists extID's live (non-tombstoned) versions.
func (p *GitHubProvider) ListExtensionVersions(ctx context.Context, extID string) ([]string, error) {
	all, err := p.listDir(ctx, pathJoin(extensionRoot(extID), versionsDir))
	if err != nil {
		return nil, err
	}
	var live []string
	for _, v := range all {
		if _, tombErr := p.getRaw(ctx, p.rawURL(tombstonePath(extID, v), p.ref), true); quelleerr.Is(tombErr, quelleerr.ExtensionNotFound) {
			live = append(live, v)
		}
	}
	return live, nil
}

func pathJoin(parts ...string) string {
	return strings.Join(parts, "/")
}

func (p *GitHubProvider) resolveVersion(ctx context.Context, extID, version string) (string, error) {
	if version != "" {
		return version, nil
	}
	if data, err := p.getRaw(ctx, p.rawURL(latestPointerPath(extID), p.ref), false); err == nil {
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

// GetExtensionManifest fetches extID's manifest at version (or resolved
// latest if version is empty).
func (p *GitHubProvider) GetExtensionManifest(ctx context.Context, extID, version string) (extpkg.ExtensionManifest, error) {
	v, err := p.resolveVersion(ctx, extID, version)
	if err != nil {
		return extpkg.ExtensionManifest{}, err
	}
	data, err := p.getRaw(ctx, p.rawURL(manifestPath(extID, v), p.ref), true)
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

// GetExtensionPackage fetches the full package: manifest, wasm bytes, and
// every manifest-declared asset.
func (p *GitHubProvider) GetExtensionPackage(ctx context.Context, extID, version string) (extpkg.ExtensionPackage, error) {
	v, err := p.resolveVersion(ctx, extID, version)
	if err != nil {
		return extpkg.ExtensionPackage{}, err
	}
	manifest, err := p.GetExtensionManifest(ctx, extID, v)
	if err != nil {
		return extpkg.ExtensionPackage{}, err
	}
	wasm, err := p.getRaw(ctx, p.rawURL(wasmPath(extID, v), p.ref), true)
	if err != nil {
		return extpkg.ExtensionPackage{}, err
	}

	assets := make(map[string][]byte, len(manifest.Assets))
	for _, ref := range manifest.Assets {
		data, err := p.getRaw(ctx, p.rawURL(assetPath(extID, v, ref.File.Path), p.ref), true)
		if err != nil {
			return extpkg.ExtensionPackage{}, err
		}
		assets[ref.Name] = data
	}

	return extpkg.ExtensionPackage{Manifest: manifest, WASM: wasm, Assets: assets, Source: "github:" + p.owner + "/" + p.repo}, nil
}

var _ registry.ReadableStore = (*GitHubProvider)(nil)
