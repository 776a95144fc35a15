// Command slicectl runs the bandwidth-slicing control plane: it loads the
// topology and tunnel ledger from disk, starts the Reconciler and optional
// ledger watcher as supervised background workers, and serves the
// control-plane JSON/HTTP API until it receives a shutdown signal.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"slicectl/internal/agent"
	"slicectl/internal/allocator"
	"slicectl/internal/archive"
	"slicectl/internal/controller"
	"slicectl/internal/httpapi"
	"slicectl/internal/ledger"
	"slicectl/internal/reconciler"
	"slicectl/internal/topology"
	"slicectl/pkg/cache"
	"slicectl/pkg/config"
	"slicectl/pkg/database"
	"slicectl/pkg/logger"
	"slicectl/pkg/passhash"
	"slicectl/pkg/ratelimit"
	"slicectl/pkg/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "slicectl:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadWithServiceDefaults("slicectl", 8080)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger.InitWithConfig(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		FilePath:   cfg.Log.FilePath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	topo, err := loadTopology(cfg)
	if err != nil {
		return fmt.Errorf("load topology: %w", err)
	}

	ledgerStore, err := loadLedger(ctx, cfg)
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}

	agentClient := agent.New(agent.Config{
		BaseURL: cfg.Agent.BaseURL,
		Timeout: cfg.Agent.Timeout,
	})
	ctrl := controller.New(agentClient)

	pathCache, err := buildPathCache(cfg)
	if err != nil {
		logger.Log.Warn("path cache unavailable, every allocation will run Yen's algorithm fresh", "error", err)
		pathCache = nil
	}

	alloc := allocator.New(topo, ledgerStore, ctrl, pathCache, cfg.Limits.MaxCandidatePaths)

	recon := reconciler.New(ledgerStore, ctrl, cfg.Reconciler.Interval)
	go recon.Run(ctx)

	watcher := ledger.NewWatcher(ledgerStore, cfg.Ledger.FilePath, cfg.Reconciler.Interval)
	go watcher.Run(ctx)

	var authManager *passhash.JWTManager
	// Auth is opt-in: a non-empty signing key enables bearer-token
	// validation on /v1/tunnels*; the local/dev default leaves it nil.
	if key := os.Getenv("SLICECTL_AUTH_SECRET"); key != "" {
		// When an Argon2id hash of the secret is also configured, verify the
		// two agree before starting, catching a rotated or mistyped signing
		// secret instead of quietly validating tokens against a secret no
		// deployment trusts.
		if hash := os.Getenv("SLICECTL_AUTH_SECRET_HASH"); hash != "" {
			authManager, err = passhash.NewJWTManagerVerified(&passhash.JWTConfig{SecretKey: key}, hash)
			if err != nil {
				return fmt.Errorf("verify auth secret: %w", err)
			}
		} else {
			authManager = passhash.NewJWTManager(&passhash.JWTConfig{SecretKey: key})
		}
	}

	var bwLimiter ratelimit.Limiter
	if cfg.RateLimit.AllocationMbpsPerWindow > 0 {
		bwLimiter = ratelimit.NewBandwidthAdmissionLimiter(cfg.RateLimit.AllocationMbpsPerWindow, cfg.RateLimit.AllocationWindow)
	}

	srv := server.New(cfg)
	handler := httpapi.New(alloc, ledgerStore, topo, 0.1, authManager, bwLimiter)
	handler.Register(srv.Mux())
	srv.SetReady(true)

	logger.Log.Info("slicectl starting",
		"http_port", cfg.HTTP.Port,
		"agent", cfg.Agent.BaseURL,
		"reconciler_interval", cfg.Reconciler.Interval,
	)

	return srv.Run(ctx)
}

func loadTopology(cfg *config.Config) (*topology.Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Topology.InitialPath), 0o755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Topology.RunningPath), 0o755); err != nil {
		return nil, err
	}
	return topology.LoadStore(cfg.Topology.InitialPath, cfg.Topology.RunningPath)
}

func loadLedger(ctx context.Context, cfg *config.Config) (*ledger.Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Ledger.FilePath), 0o755); err != nil {
		return nil, err
	}
	tunnels, err := ledger.LoadFile(cfg.Ledger.FilePath)
	if err != nil {
		return nil, err
	}

	var archiver ledger.Archiver
	if cfg.Ledger.ArchiveEnabled {
		mirror, err := buildArchiveMirror(ctx, cfg)
		if err != nil {
			logger.Log.Warn("ledger archive mirror unavailable, continuing without it", "error", err)
		} else {
			archiver = mirror
		}
	}

	return ledger.New(tunnels, &ledger.FilePersister{Path: cfg.Ledger.FilePath}, archiver), nil
}

func buildArchiveMirror(ctx context.Context, cfg *config.Config) (*archive.AsyncMirror, error) {
	db, err := database.NewPostgresDB(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect archive database: %w", err)
	}
	if err := database.RunMigrations(ctx, db.Pool(), &cfg.Database, archive.Migrations, archive.MigrationsDir); err != nil {
		return nil, fmt.Errorf("run archive migrations: %w", err)
	}
	repo := archive.NewPostgresRepository(db)
	return archive.NewAsyncMirror(repo, func(err error) {
		logger.Log.Warn("archive mirror write failed", "error", err)
	}), nil
}

func buildPathCache(cfg *config.Config) (*cache.PathCache, error) {
	if !cfg.Cache.Enabled {
		return nil, nil
	}
	backend, err := cache.New(cache.FromConfig(&cfg.Cache))
	if err != nil {
		return nil, err
	}
	return cache.NewPathCache(backend, cfg.Cache.DefaultTTL), nil
}
