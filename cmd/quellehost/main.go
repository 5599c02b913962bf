// Command quellehost is the minimal composition root for a quelle host
// process: it loads configuration, sets up logging, and wires the Caching
// HTTP Executor, Extension Host, and Registry Manager together. It is not
// a CLI — argument parsing and subcommands are out of scope here, the same
// way a thin dittofs daemon entry point defers all of that to cobra
// commands it does not reimplement.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nacht-org/quelle-sub001/internal/logger"
	"github.com/nacht-org/quelle-sub001/pkg/config"
	"github.com/nacht-org/quelle-sub001/pkg/host"
	"github.com/nacht-org/quelle-sub001/pkg/httpx"
	"github.com/nacht-org/quelle-sub001/pkg/providers"
	"github.com/nacht-org/quelle-sub001/pkg/registry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "quellehost:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := os.Getenv("QUELLE_CONFIG")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	executor := buildExecutor(cfg)

	h, err := host.NewHost(ctx, executor)
	if err != nil {
		return fmt.Errorf("init extension host: %w", err)
	}
	defer h.Close(ctx)

	mgr, err := registry.NewManager(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("init registry manager: %w", err)
	}
	mgr = mgr.WithMetrics(registry.NewMetrics(prometheus.DefaultRegisterer))

	if err := addConfiguredSources(ctx, mgr, cfg); err != nil {
		return fmt.Errorf("configure sources: %w", err)
	}

	if err := loadInstalledExtensions(ctx, h, mgr); err != nil {
		return fmt.Errorf("load installed extensions: %w", err)
	}

	logger.Info("quellehost started", "data_dir", cfg.DataDir, "sources", len(cfg.Sources))

	<-ctx.Done()
	logger.Info("quellehost shutting down")
	return nil
}

// buildExecutor assembles the Caching HTTP Executor cfg.Cache describes,
// wrapping a plain DirectExecutor.
func buildExecutor(cfg *config.Config) httpx.Executor {
	inner := httpx.NewDirectExecutor(nil)

	cacheCfg := httpx.Config{
		DefaultTTLSeconds: int64(cfg.Cache.DefaultTTL.Seconds()),
		MaxMemoryEntries:  cfg.Cache.MaxMemoryEntries,
		CacheDir:          cfg.Cache.Dir,
	}
	caching := httpx.NewCachingExecutor(inner, cacheCfg)
	caching.WithMetrics(httpx.NewCacheMetrics(prometheus.DefaultRegisterer))
	return caching
}

// addConfiguredSources resolves each configured ExtensionSource to a
// concrete Backend Provider and registers it with the Registry Manager.
func addConfiguredSources(ctx context.Context, mgr *registry.Manager, cfg *config.Config) error {
	for _, source := range cfg.Sources {
		if !source.Enabled {
			continue
		}

		store, err := buildStore(ctx, source, cfg)
		if err != nil {
			return fmt.Errorf("source %q: %w", source.Name, err)
		}
		mgr.AddSource(source, store)
	}
	return nil
}

func buildStore(ctx context.Context, source registry.ExtensionSource, cfg *config.Config) (registry.ReadableStore, error) {
	switch source.Kind {
	case registry.StoreLocal:
		if source.Local == nil {
			return nil, fmt.Errorf("local source missing configuration")
		}
		return providers.NewFilesystemProvider(source.Local.Path)

	case registry.StoreGit:
		if source.Git == nil {
			return nil, fmt.Errorf("git source missing configuration")
		}
		return providers.NewGitProvider(ctx, providers.GitProviderConfig{
			URL:      source.Git.URL,
			CacheDir: source.Git.CacheDir,
			Ref:      providers.GitRef{Branch: source.Git.Ref},
			Auth:     toGitAuthConfig(source.Git.Auth),
		})

	case registry.StoreGitHub:
		if source.GitHub == nil {
			return nil, fmt.Errorf("github source missing configuration")
		}
		return providers.NewGitHubProvider(ctx, providers.GitHubProviderConfig{
			Owner: source.GitHub.Owner,
			Repo:  source.GitHub.Repo,
			Ref:   source.GitHub.Ref,
			Token: source.GitHub.Auth.Token,
			Async: true,
		})

	default:
		return nil, fmt.Errorf("unknown source kind %q", source.Kind)
	}
}

// loadInstalledExtensions compiles the materialized extension.wasm of every
// journaled install, keyed by its manifest checksum, so the Host has every
// already-installed extension ready for NewRunner without recompiling on
// first use.
func loadInstalledExtensions(ctx context.Context, h *host.Host, mgr *registry.Manager) error {
	for _, installed := range mgr.ListInstalled() {
		wasmPath := filepath.Join(installed.InstallPath, "extension.wasm")
		wasm, err := os.ReadFile(wasmPath)
		if err != nil {
			return fmt.Errorf("%s: read extension.wasm: %w", installed.Manifest.ID, err)
		}
		if err := h.CompileExtension(ctx, installed.Manifest.WASMFile.Checksum, wasm); err != nil {
			return fmt.Errorf("%s: compile extension: %w", installed.Manifest.ID, err)
		}
	}
	return nil
}

func toGitAuthConfig(auth registry.GitAuth) providers.GitAuthConfig {
	return providers.GitAuthConfig{
		Token:      auth.Token,
		SSHKeyPath: auth.SSHKeyPath,
		Passphrase: auth.Passphrase,
		Username:   auth.Username,
		Password:   auth.Password,
	}
}
