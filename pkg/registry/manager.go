package registry

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/nacht-org/quelle-sub001/internal/logger"
	"github.com/nacht-org/quelle-sub001/pkg/extpkg"
	"github.com/nacht-org/quelle-sub001/pkg/quelleerr"
)

// defaultInstallConcurrency bounds how many installs proceed at once, to
// avoid overwhelming remote sources and the local disk.
const defaultInstallConcurrency = 3

// defaultSearchTimeout bounds how long search_all_stores waits on any one
// source before treating it as a per-source failure.
const defaultSearchTimeout = 10 * time.Second

// Manager maintains the configured ExtensionSources and the installation
// Journal, and implements the multi-source search/install/update/uninstall
// operations built on top of them.
type Manager struct {
	mu         sync.RWMutex
	sources    map[string]ExtensionSource
	stores     map[string]ReadableStore
	journal    *Journal
	installDir string
	sem        *semaphore.Weighted
	metrics    *Metrics
}

// NewManager creates a Manager backed by a Journal opened at installDir.
func NewManager(installDir string) (*Manager, error) {
	j, err := OpenJournal(installDir)
	if err != nil {
		return nil, err
	}
	return &Manager{
		sources:    make(map[string]ExtensionSource),
		stores:     make(map[string]ReadableStore),
		journal:    j,
		installDir: installDir,
		sem:        semaphore.NewWeighted(defaultInstallConcurrency),
	}, nil
}

// WithMetrics attaches Prometheus metrics, returning m for chaining. A nil
// metrics leaves Install/SearchAllStores uninstrumented.
func (m *Manager) WithMetrics(metrics *Metrics) *Manager {
	m.metrics = metrics
	return m
}

// AddSource registers source and its resolved backend. store may be nil for
// a source that is configured but not yet reachable; such a source is
// skipped during aggregate operations until re-registered.
func (m *Manager) AddSource(source ExtensionSource, store ReadableStore) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources[source.Name] = source
	if store != nil {
		m.stores[source.Name] = store
	}
}

// orderedSources returns enabled sources in ascending priority, then name.
func (m *Manager) orderedSources() []ExtensionSource {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ExtensionSource, 0, len(m.sources))
	for _, s := range m.sources {
		if s.Enabled {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (m *Manager) storeFor(name string) (ReadableStore, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.stores[name]
	return s, ok
}

// SearchAllStores fans out query to every enabled source with a per-source
// timeout; individual source failures are logged and do not fail the
// aggregate. Results are deduplicated by name@version (trusted sources win
// ties) and sorted per query.SortKey.
func (m *Manager) SearchAllStores(ctx context.Context, query SearchQuery) ([]SearchResult, error) {
	start := time.Now()
	defer func() { m.metrics.observeSearch(time.Since(start).Seconds()) }()

	sources := m.orderedSources()
	if len(sources) == 0 {
		return nil, ErrNoSourcesConfigured
	}

	type sourceResult struct {
		source  ExtensionSource
		results []SearchResult
	}

	resultsCh := make(chan sourceResult, len(sources))
	var wg sync.WaitGroup

	for _, source := range sources {
		store, ok := m.storeFor(source.Name)
		if !ok {
			continue
		}
		wg.Add(1)
		go func(source ExtensionSource, store ReadableStore) {
			defer wg.Done()
			sctx, cancel := context.WithTimeout(ctx, defaultSearchTimeout)
			defer cancel()

			hits, err := m.searchOneStore(sctx, source, store, query)
			if err != nil {
				logger.WarnCtx(ctx, "search source failed", logger.SourceID(source.Name), logger.Err(err))
				return
			}
			resultsCh <- sourceResult{source: source, results: hits}
		}(source, store)
	}

	wg.Wait()
	close(resultsCh)

	var all []SearchResult
	for sr := range resultsCh {
		all = append(all, sr.results...)
	}

	deduped := dedupeBySourcePreference(all)
	sortSearchResults(deduped, query.SortKey)
	return deduped, nil
}

func (m *Manager) searchOneStore(ctx context.Context, source ExtensionSource, store ReadableStore, query SearchQuery) ([]SearchResult, error) {
	ids, err := store.ListExtensions(ctx)
	if err != nil {
		return nil, err
	}

	var hits []SearchResult
	for _, id := range ids {
		if query.Text != "" && !strings.Contains(strings.ToLower(id), strings.ToLower(query.Text)) {
			continue
		}
		manifest, err := store.GetExtensionManifest(ctx, id, "")
		if err != nil {
			continue
		}
		hits = append(hits, SearchResult{
			Manifest:   manifest,
			SourceName: source.Name,
			Trusted:    source.Trusted,
		})
	}
	return hits, nil
}

func searchResultKey(r SearchResult) string {
	return r.Manifest.ID + "@" + r.Manifest.Version
}

// dedupeBySourcePreference keeps one result per name@version, preferring a
// trusted source's copy when duplicates disagree.
func dedupeBySourcePreference(results []SearchResult) []SearchResult {
	best := make(map[string]SearchResult)
	for _, r := range results {
		key := searchResultKey(r)
		existing, ok := best[key]
		if !ok || (r.Trusted && !existing.Trusted) {
			best[key] = r
		}
	}
	out := make([]SearchResult, 0, len(best))
	for _, r := range best {
		out = append(out, r)
	}
	return out
}

func sortSearchResults(results []SearchResult, key SortKey) {
	switch key {
	case SortName:
		sort.Slice(results, func(i, j int) bool { return results[i].Manifest.Name < results[j].Manifest.Name })
	case SortVersion:
		sort.Slice(results, func(i, j int) bool { return compareSemver(results[i].Manifest.Version, results[j].Manifest.Version) > 0 })
	case SortLastUpdated:
		sort.Slice(results, func(i, j int) bool { return results[i].LastUpdated.After(results[j].LastUpdated) })
	case SortAuthor:
		sort.Slice(results, func(i, j int) bool { return results[i].Manifest.Author < results[j].Manifest.Author })
	case SortSize:
		sort.Slice(results, func(i, j int) bool { return results[i].Size > results[j].Size })
	case SortDownloadCount:
		sort.Slice(results, func(i, j int) bool { return results[i].DownloadCount > results[j].DownloadCount })
	case SortRelevance, "":
		// no sorting: results keep the map order of the dedupe step, which
		// does not follow source priority and is not defined
	}
}

// Install resolves extID against the configured sources and, on success,
// atomically journals the installation. Concurrency across simultaneous
// Install calls is bounded by m.sem.
func (m *Manager) Install(ctx context.Context, extID string, opts InstallOptions) (InstalledExtension, error) {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return InstalledExtension{}, quelleerr.Wrap(quelleerr.IO, "install_acquire_semaphore", err)
	}
	defer m.sem.Release(1)

	if existing, ok := m.findInstalled(extID); ok {
		if !opts.ForceReinstall && (opts.Version == "" || opts.Version == existing.Manifest.Version) {
			return existing, nil
		}
		if opts.Version != "" && compareSemver(existing.Manifest.Version, opts.Version) > 0 && !opts.AllowDowngrades {
			m.metrics.recordInstall("downgrade_blocked")
			return InstalledExtension{}, quelleerr.New(quelleerr.ValidationFailed, "install_downgrade_blocked").
				WithIssues([]quelleerr.Issue{{
					Severity: quelleerr.SeverityError,
					Message:  "installed version " + existing.Manifest.Version + " is newer than requested " + opts.Version,
				}})
		}
	}

	sources := m.orderedSources()
	if len(sources) == 0 {
		return InstalledExtension{}, ErrNoSourcesConfigured
	}

	var lastErr error
	for _, source := range sources {
		store, ok := m.storeFor(source.Name)
		if !ok {
			continue
		}

		pkg, err := store.GetExtensionPackage(ctx, extID, opts.Version)
		if err != nil {
			code, _ := quelleerr.CodeOf(err)
			switch code {
			case quelleerr.ExtensionNotFound, quelleerr.VersionNotFound:
				continue
			case quelleerr.Network, quelleerr.Timeout, quelleerr.StoreUnavailable, quelleerr.StoreUnhealthy:
				lastErr = err
				continue
			default:
				return InstalledExtension{}, err
			}
		}

		if qerr := pkg.Validate(); qerr != nil {
			lastErr = qerr
			continue
		}

		installed, err := m.materialize(pkg, source.Name)
		if err != nil {
			return InstalledExtension{}, err
		}
		if err := m.journal.Put(installed); err != nil {
			return InstalledExtension{}, err
		}
		m.metrics.recordInstall("success")
		m.metrics.setInstalledTotal(len(m.journal.List()))
		return installed, nil
	}

	if lastErr != nil {
		m.metrics.recordInstall("failed")
		return InstalledExtension{}, lastErr
	}
	m.metrics.recordInstall("not_found")
	return InstalledExtension{}, quelleerr.New(quelleerr.ExtensionNotFound, "install").WithPath(extID)
}

// materialize writes pkg's manifest, wasm, and assets under
// <installDir>/<ext_id>/ and builds the InstalledExtension record from
// what actually landed on disk. The written extension.wasm becomes the
// single source of truth for execution; the journal entry only caches its
// metadata.
func (m *Manager) materialize(pkg extpkg.ExtensionPackage, sourceName string) (InstalledExtension, error) {
	extDir := filepath.Join(m.installDir, pkg.Manifest.ID)

	manifestData, err := json.MarshalIndent(pkg.Manifest, "", "  ")
	if err != nil {
		return InstalledExtension{}, quelleerr.Wrap(quelleerr.Serialization, "materialize_marshal_manifest", err)
	}
	if err := writeMaterializedFile(filepath.Join(extDir, "manifest.json"), manifestData); err != nil {
		return InstalledExtension{}, err
	}
	if err := writeMaterializedFile(filepath.Join(extDir, "extension.wasm"), pkg.WASM); err != nil {
		return InstalledExtension{}, err
	}

	size := int64(len(manifestData)) + int64(len(pkg.WASM))
	for _, ref := range pkg.Manifest.Assets {
		data := pkg.Assets[ref.Name]
		if err := writeMaterializedFile(filepath.Join(extDir, filepath.FromSlash(ref.File.Path)), data); err != nil {
			return InstalledExtension{}, err
		}
		size += int64(len(data))
	}

	return InstalledExtension{
		UUID:        uuid.NewString(),
		Manifest:    pkg.Manifest,
		InstallPath: extDir,
		InstalledAt: time.Now().UTC(),
		SourceName:  sourceName,
		InstallSize: size,
	}, nil
}

// writeMaterializedFile writes data to path, creating parent directories as
// needed, mirroring the Filesystem Provider's own publish-time writeFile.
func writeMaterializedFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return quelleerr.Wrap(quelleerr.IO, "materialize_mkdir", err).WithPath(path)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return quelleerr.Wrap(quelleerr.IO, "materialize_write", err).WithPath(path)
	}
	return nil
}

func (m *Manager) findInstalled(extID string) (InstalledExtension, bool) {
	for _, rec := range m.journal.List() {
		if rec.Manifest.ID == extID {
			return rec, true
		}
	}
	return InstalledExtension{}, false
}

// ListInstalled returns every installed extension record.
func (m *Manager) ListInstalled() []InstalledExtension {
	return m.journal.List()
}

// GetInstalled returns the record for extID, if installed.
func (m *Manager) GetInstalled(extID string) (InstalledExtension, bool) {
	return m.findInstalled(extID)
}

// Uninstall drops extID's journal entry via the atomic update path. Disk
// cleanup of the install directory is the caller's responsibility (the
// journal only owns metadata).
func (m *Manager) Uninstall(ctx context.Context, extID string) error {
	rec, ok := m.findInstalled(extID)
	if !ok {
		return quelleerr.New(quelleerr.ExtensionNotFound, "uninstall").WithPath(extID)
	}
	if err := m.journal.Remove(rec.UUID); err != nil {
		return err
	}
	m.metrics.setInstalledTotal(len(m.journal.List()))
	return nil
}

// CheckUpdates queries every enabled source for a newer version of each
// installed extension, deduplicating trusted-preferred.
func (m *Manager) CheckUpdates(ctx context.Context) ([]UpdateRecord, error) {
	if len(m.orderedSources()) == 0 {
		return nil, ErrNoSourcesConfigured
	}

	installed := m.journal.List()
	var updates []UpdateRecord

	for _, rec := range installed {
		best := findNewestAcrossSources(ctx, m, rec.Manifest.ID)
		if best == nil {
			continue
		}
		if compareSemver(best.Manifest.Version, rec.Manifest.Version) > 0 {
			updates = append(updates, UpdateRecord{
				ExtensionID:    rec.Manifest.ID,
				CurrentVersion: rec.Manifest.Version,
				LatestVersion:  best.Manifest.Version,
				SourceName:     best.SourceName,
			})
		}
	}
	return updates, nil
}

func findNewestAcrossSources(ctx context.Context, m *Manager, extID string) *SearchResult {
	var best *SearchResult
	for _, source := range m.orderedSources() {
		store, ok := m.storeFor(source.Name)
		if !ok {
			continue
		}
		manifest, err := store.GetExtensionManifest(ctx, extID, "")
		if err != nil {
			continue
		}
		candidate := SearchResult{Manifest: manifest, SourceName: source.Name, Trusted: source.Trusted}
		if best == nil || candidate.Trusted && !best.Trusted || compareSemver(candidate.Manifest.Version, best.Manifest.Version) > 0 {
			best = &candidate
		}
	}
	return best
}

// ErrNoSourcesConfigured is returned by aggregate operations when no source
// is both enabled and registered with a resolved backend.
var ErrNoSourcesConfigured = errors.New("registry: no sources configured")
