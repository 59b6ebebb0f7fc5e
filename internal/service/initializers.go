// File: internal/service/initializers.go
package service

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/skilltree/api/schemas"
	"github.com/xkilldash9x/skilltree/internal/certs"
	"github.com/xkilldash9x/skilltree/internal/config"
	"github.com/xkilldash9x/skilltree/internal/server"
	"github.com/xkilldash9x/skilltree/internal/skillgraph"
	"github.com/xkilldash9x/skilltree/internal/store"
)

// Repository is the server-side store plus item seeding.
type Repository interface {
	schemas.PlayerProgressRepository
	PutItems(ctx context.Context, items []schemas.Item) error
}

// InitializeRepository connects to PostgreSQL or starts an in-memory repository.
// The returned cleanup function may be nil.
func InitializeRepository(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger, useInMemory bool) (Repository, func(), error) {
	if useInMemory || cfg.URL == "" {
		// Only warn when memory was not asked for explicitly.
		if !useInMemory {
			logger.Warn("No database configured; defaulting to a temporary in-memory store. All progress will be lost on exit.")
		}
		logger.Info("Initializing in-memory progress repository.")
		return store.NewMemory(), nil, nil
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to parse PGX pool config: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to create PGX connection pool: %w", err)
	}

	db, err := store.New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to initialize database store: %w", err)
	}
	if err := db.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	logger.Info("PostgreSQL progress repository initialized.", zap.String("host", poolConfig.ConnConfig.Host))

	cleanup := func() {
		logger.Info("Closing PostgreSQL connection pool.")
		pool.Close()
	}
	return db, cleanup, nil
}

// LoadGraph reads and validates the tree at cfg.Path.
func LoadGraph(ctx context.Context, cfg config.TreeConfig, logger *zap.Logger) (*skillgraph.Graph, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("tree.path is required (hint: pass --tree or set SKILLTREE_TREE_PATH)")
	}
	data, err := store.FileTree{Path: cfg.Path}.FetchTree(ctx)
	if err != nil {
		return nil, err
	}
	graph, _, err := skillgraph.Load(data, skillgraph.NewOptions(cfg, logger))
	if err != nil {
		return nil, err
	}
	return graph, nil
}

// InitializeServer builds the reference API server: graph, repository and
// the optional item seed. The cleanup function is never nil.
func InitializeServer(ctx context.Context, cfg config.Interface, logger *zap.Logger, useInMemory bool) (*server.Server, func(), error) {
	noop := func() {}

	graph, err := LoadGraph(ctx, cfg.Tree(), logger)
	if err != nil {
		return nil, noop, err
	}

	repo, cleanup, err := InitializeRepository(ctx, cfg.Database(), logger, useInMemory)
	if err != nil {
		return nil, noop, err
	}
	if cleanup == nil {
		cleanup = noop
	}

	if path := cfg.Server().ItemsPath; path != "" {
		items, err := store.LoadItems(path)
		if err == nil {
			err = repo.PutItems(ctx, items)
		}
		if err != nil {
			cleanup()
			return nil, noop, fmt.Errorf("failed to seed items: %w", err)
		}
		logger.Info("Items seeded.", zap.Int("count", len(items)))
	}

	srv, err := server.New(graph, repo, cfg.Server(), cfg.Auth(), logger)
	if err != nil {
		cleanup()
		return nil, noop, err
	}
	if err := ConfigureTLS(srv, cfg.Server().TLS, logger); err != nil {
		cleanup()
		return nil, noop, err
	}
	return srv, cleanup, nil
}

// ConfigureTLS loads or mints the server certificate. It is a no-op when
// TLS is disabled.
func ConfigureTLS(srv *server.Server, cfg config.TLSConfig, logger *zap.Logger) error {
	if !cfg.Enabled() {
		return nil
	}
	if !cfg.SelfSigned {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return fmt.Errorf("failed to load TLS key pair: %w", err)
		}
		srv.UseTLS(cert)
		return nil
	}

	ca, err := certs.NewCA(24 * time.Hour)
	if err != nil {
		return err
	}
	cert, err := ca.IssueServerCert(cfg.Hosts, 24*time.Hour)
	if err != nil {
		return err
	}
	if cfg.CAOut != "" {
		if err := ca.WritePEM(cfg.CAOut); err != nil {
			return err
		}
	}
	logger.Warn("Serving with a self-signed development certificate.",
		zap.Strings("hosts", cfg.Hosts), zap.String("ca_out", cfg.CAOut))
	srv.UseTLS(cert)
	return nil
}
