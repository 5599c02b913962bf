package providers

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
	"golang.org/x/time/rate"

	"github.com/nacht-org/quelle-sub001/internal/logger"
	"github.com/nacht-org/quelle-sub001/pkg/extpkg"
	"github.com/nacht-org/quelle-sub001/pkg/quelleerr"
	"github.com/nacht-org/quelle-sub001/pkg/registry"
)

// GitRef selects what a GitProvider checks out after clone/fetch.
type GitRef struct {
	Branch string
	Tag    string
	Commit string // full or abbreviated hash; empty with Branch/Tag empty means default branch
}

// GitAuthConfig mirrors registry.GitAuth, decoupled so this package does not
// need to import registry's config shape directly for construction.
type GitAuthConfig struct {
	Token      string
	SSHKeyPath string
	Passphrase string
	Username   string
	Password   string
}

func (a GitAuthConfig) toTransportAuth() (transport.AuthMethod, error) {
	switch {
	case a.Token != "":
		return &http.BasicAuth{Username: "token", Password: a.Token}, nil
	case a.SSHKeyPath != "":
		return ssh.NewPublicKeysFromFile("git", a.SSHKeyPath, a.Passphrase)
	case a.Username != "":
		return &http.BasicAuth{Username: a.Username, Password: a.Password}, nil
	default:
		return nil, nil
	}
}

// GitProvider is a ReadableStore/WritableStore backed by a local clone of a
// remote git repository. The clone is refreshed (fetch + fast-forward,
// reset to the requested ref) at most once per FetchInterval.
type GitProvider struct {
	url          string
	cacheDir     string
	ref          GitRef
	auth         GitAuthConfig
	writeCfg     WriteConfig
	requirements registry.PublishRequirements

	limiter *rate.Limiter

	mu       sync.Mutex
	repo     *gogit.Repository
	lastSync time.Time
}

// WriteConfig parameterizes how GitProvider.Publish/Unpublish commit (and
// optionally push) changes.
type WriteConfig struct {
	AuthorName  string
	AuthorEmail string
	Push        bool
	CommitStyle func(name, version string) string // defaults to "publish: <name>@<version>"
}

func defaultCommitMessage(name, version string) string {
	return "publish: " + name + "@" + version
}

// GitProviderConfig configures NewGitProvider.
type GitProviderConfig struct {
	URL           string
	CacheDir      string
	Ref           GitRef
	Auth          GitAuthConfig
	FetchInterval time.Duration // default 1 minute
	Write         WriteConfig
	Requirements  registry.PublishRequirements
}

// NewGitProvider clones (or opens an existing clone of) cfg.URL under
// cfg.CacheDir.
func NewGitProvider(ctx context.Context, cfg GitProviderConfig) (*GitProvider, error) {
	if cfg.FetchInterval <= 0 {
		cfg.FetchInterval = time.Minute
	}
	if cfg.Write.CommitStyle == nil {
		cfg.Write.CommitStyle = defaultCommitMessage
	}

	p := &GitProvider{
		url:          cfg.URL,
		cacheDir:     cfg.CacheDir,
		ref:          cfg.Ref,
		auth:         cfg.Auth,
		writeCfg:     cfg.Write,
		requirements: cfg.Requirements,
		limiter:      rate.NewLimiter(rate.Every(cfg.FetchInterval), 1),
	}

	if err := p.ensureCloned(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *GitProvider) authMethod() (transport.AuthMethod, error) {
	return p.auth.toTransportAuth()
}

func (p *GitProvider) ensureCloned(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := os.Stat(filepath.Join(p.cacheDir, ".git")); err == nil {
		repo, err := gogit.PlainOpen(p.cacheDir)
		if err != nil {
			return quelleerr.Wrap(quelleerr.IO, "open_git_clone", err).WithPath(p.cacheDir)
		}
		p.repo = repo
		return p.checkoutRefLocked(ctx)
	}

	auth, err := p.authMethod()
	if err != nil {
		return quelleerr.Wrap(quelleerr.AuthenticationRequired, "git_auth", err)
	}

	repo, err := gogit.PlainCloneContext(ctx, p.cacheDir, false, &gogit.CloneOptions{
		URL:  p.url,
		Auth: auth,
	})
	if err != nil {
		return quelleerr.Wrap(quelleerr.Network, "git_clone", err).WithPath(p.url)
	}
	p.repo = repo
	p.lastSync = time.Now()
	return p.checkoutRefLocked(ctx)
}

// sync fetches and fast-forwards, throttled by the configured fetch
// interval; callers that just need a fresh read should call this first.
func (p *GitProvider) sync(ctx context.Context) error {
	if !p.limiter.Allow() {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	auth, err := p.authMethod()
	if err != nil {
		return quelleerr.Wrap(quelleerr.AuthenticationRequired, "git_auth", err)
	}

	err = p.repo.FetchContext(ctx, &gogit.FetchOptions{Auth: auth, Force: true})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return quelleerr.Wrap(quelleerr.Network, "git_fetch", err).WithPath(p.url)
	}
	p.lastSync = time.Now()
	return p.checkoutRefLocked(ctx)
}

// checkoutRefLocked resets the worktree to the configured ref. Callers must
// hold p.mu.
func (p *GitProvider) checkoutRefLocked(ctx context.Context) error {
	wt, err := p.repo.Worktree()
	if err != nil {
		return quelleerr.Wrap(quelleerr.IO, "git_worktree", err)
	}

	opts := &gogit.CheckoutOptions{Force: true}
	switch {
	case p.ref.Commit != "":
		opts.Hash = plumbing.NewHash(p.ref.Commit)
	case p.ref.Tag != "":
		opts.Branch = plumbing.NewTagReferenceName(p.ref.Tag)
	case p.ref.Branch != "":
		opts.Branch = plumbing.NewRemoteReferenceName("origin", p.ref.Branch)
	default:
		head, err := p.repo.Head()
		if err != nil {
			return quelleerr.Wrap(quelleerr.IO, "git_head", err)
		}
		opts.Hash = head.Hash()
	}

	if err := wt.Checkout(opts); err != nil {
		return quelleerr.Wrap(quelleerr.IO, "git_checkout", err).WithPath(p.ref.Branch + p.ref.Tag + p.ref.Commit)
	}
	return nil
}

func (p *GitProvider) fs() (*FilesystemProvider, error) {
	return NewFilesystemProvider(p.cacheDir)
}

// ListExtensions enumerates extension ids in the checked-out tree.
func (p *GitProvider) ListExtensions(ctx context.Context) ([]string, error) {
	if err := p.sync(ctx); err != nil {
		logger.WarnCtx(ctx, "git sync failed, serving stale checkout", logger.Err(err))
	}
	fp, err := p.fs()
	if err != nil {
		return nil, err
	}
	return fp.ListExtensions(ctx)
}

// ListExtensionVersions lists extID's live versions in the checked-out tree.
func (p *GitProvider) ListExtensionVersions(ctx context.Context, extID string) ([]string, error) {
	if err := p.sync(ctx); err != nil {
		logger.WarnCtx(ctx, "git sync failed, serving stale checkout", logger.Err(err))
	}
	fp, err := p.fs()
	if err != nil {
		return nil, err
	}
	return fp.ListExtensionVersions(ctx, extID)
}

// GetExtensionManifest loads extID's manifest from the checked-out tree.
func (p *GitProvider) GetExtensionManifest(ctx context.Context, extID, version string) (extpkg.ExtensionManifest, error) {
	if err := p.sync(ctx); err != nil {
		logger.WarnCtx(ctx, "git sync failed, serving stale checkout", logger.Err(err))
	}
	fp, err := p.fs()
	if err != nil {
		return extpkg.ExtensionManifest{}, err
	}
	return fp.GetExtensionManifest(ctx, extID, version)
}

// GetExtensionPackage loads the full package from the checked-out tree.
func (p *GitProvider) GetExtensionPackage(ctx context.Context, extID, version string) (extpkg.ExtensionPackage, error) {
	if err := p.sync(ctx); err != nil {
		logger.WarnCtx(ctx, "git sync failed, serving stale checkout", logger.Err(err))
	}
	fp, err := p.fs()
	if err != nil {
		return extpkg.ExtensionPackage{}, err
	}
	pkg, err := fp.GetExtensionPackage(ctx, extID, version)
	if err == nil {
		pkg.Source = "git:" + p.url
	}
	return pkg, err
}

// Requirements returns the provider's configured publish constraints.
func (p *GitProvider) Requirements(ctx context.Context) (registry.PublishRequirements, error) {
	return p.requirements, nil
}

// Publish writes pkg's layout via the underlying filesystem view, then
// stages, commits, and (if configured) pushes the change. A dirty working
// tree before the operation aborts with DirtyRepository.
func (p *GitProvider) Publish(ctx context.Context, pkg extpkg.ExtensionPackage) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	wt, err := p.repo.Worktree()
	if err != nil {
		return quelleerr.Wrap(quelleerr.IO, "git_worktree", err)
	}
	status, err := wt.Status()
	if err != nil {
		return quelleerr.Wrap(quelleerr.IO, "git_status", err)
	}
	if !status.IsClean() {
		return quelleerr.New(quelleerr.DirtyRepository, "publish").WithPath(p.cacheDir)
	}

	fp, err := p.fs()
	if err != nil {
		return err
	}
	if err := fp.Publish(ctx, pkg); err != nil {
		return err
	}

	if _, err := wt.Add("."); err != nil {
		return quelleerr.Wrap(quelleerr.IO, "git_add", err)
	}

	msg := p.writeCfg.CommitStyle(pkg.Manifest.Name, pkg.Manifest.Version)
	authorName, authorEmail := p.writeCfg.AuthorName, p.writeCfg.AuthorEmail
	if authorName == "" {
		authorName, authorEmail = "quelle", "quelle@localhost"
	}
	commitOpts := &gogit.CommitOptions{
		Author: &object.Signature{Name: authorName, Email: authorEmail, When: time.Now()},
	}
	if _, err := wt.Commit(msg, commitOpts); err != nil {
		return quelleerr.Wrap(quelleerr.IO, "git_commit", err)
	}

	if p.writeCfg.Push {
		auth, err := p.authMethod()
		if err != nil {
			return quelleerr.Wrap(quelleerr.AuthenticationRequired, "git_auth", err)
		}
		if err := p.repo.PushContext(ctx, &gogit.PushOptions{Auth: auth}); err != nil {
			return quelleerr.Wrap(quelleerr.PushRejected, "git_push", err)
		}
	}

	return nil
}

// Unpublish removes version(s) of extID the same way Publish writes them,
// then commits (and optionally pushes) the removal.
func (p *GitProvider) Unpublish(ctx context.Context, extID, version string, keepRecord bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	fp, err := p.fs()
	if err != nil {
		return err
	}
	if err := fp.Unpublish(ctx, extID, version, keepRecord); err != nil {
		return err
	}

	wt, err := p.repo.Worktree()
	if err != nil {
		return quelleerr.Wrap(quelleerr.IO, "git_worktree", err)
	}
	if _, err := wt.Add("."); err != nil {
		return quelleerr.Wrap(quelleerr.IO, "git_add", err)
	}
	authorName, authorEmail := p.writeCfg.AuthorName, p.writeCfg.AuthorEmail
	if authorName == "" {
		authorName, authorEmail = "quelle", "quelle@localhost"
	}
	msg := "unpublish: " + extID + " " + strings.TrimSpace(version)
	commitOpts := &gogit.CommitOptions{Author: &object.Signature{Name: authorName, Email: authorEmail, When: time.Now()}}
	if _, err := wt.Commit(msg, commitOpts); err != nil {
		return quelleerr.Wrap(quelleerr.IO, "git_commit", err)
	}
	if p.writeCfg.Push {
		auth, err := p.authMethod()
		if err != nil {
			return quelleerr.Wrap(quelleerr.AuthenticationRequired, "git_auth", err)
		}
		if err := p.repo.PushContext(ctx, &gogit.PushOptions{Auth: auth}); err != nil {
			return quelleerr.Wrap(quelleerr.PushRejected, "git_push", err)
		}
	}
	return nil
}

var (
	_ registry.ReadableStore = (*GitProvider)(nil)
	_ registry.WritableStore = (*GitProvider)(nil)
)
