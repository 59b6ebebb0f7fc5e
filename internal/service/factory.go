// File: internal/service/factory.go
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/skilltree/api/schemas"
	"github.com/xkilldash9x/skilltree/internal/apiclient"
	"github.com/xkilldash9x/skilltree/internal/cache"
	"github.com/xkilldash9x/skilltree/internal/config"
	"github.com/xkilldash9x/skilltree/internal/controller"
	"github.com/xkilldash9x/skilltree/internal/network"
	"github.com/xkilldash9x/skilltree/internal/render"
	"github.com/xkilldash9x/skilltree/internal/skillgraph"
	"github.com/xkilldash9x/skilltree/internal/store"
)

// ComponentFactory creates the set of components for a skill tree session.
// Commands depend on this interface so they can be tested with a fake.
type ComponentFactory interface {
	Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error)
}

// concreteFactory is the production implementation of the ComponentFactory.
type concreteFactory struct{}

// NewComponentFactory creates a new production-ready component factory.
func NewComponentFactory() ComponentFactory {
	return &concreteFactory{}
}

// Create wires the tree source, progress store, cache and renderer into a
// controller and loads the session. Local files take precedence over the API
// for both the tree and the progress.
func (f *concreteFactory) Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error) {
	components := &Components{}

	// Ensure cleanup happens if initialization fails midway.
	var initializationErr error
	defer func() {
		if initializationErr != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(initializationErr))
			components.Shutdown()
		}
	}()

	// 1. API client, only when something is remote.
	if cfg.Tree().Path == "" || cfg.Progress().Path == "" {
		httpClient := network.NewClient(network.ClientConfigFromAPI(cfg.API(), logger))
		api, err := apiclient.New(cfg.API(), httpClient, logger)
		if err != nil {
			initializationErr = fmt.Errorf("failed to create API client: %w", err)
			return nil, initializationErr
		}
		components.API = api
		components.Items = api
		logger.Debug("API client initialized.", zap.String("base_url", cfg.API().BaseURL))
	}

	// 2. Tree source
	var source schemas.TreeSource = components.API
	if path := cfg.Tree().Path; path != "" {
		source = store.FileTree{Path: path}
		logger.Debug("Using local skill tree.", zap.String("path", path))
	}

	// 3. Progress store
	var progress schemas.ProgressStore = components.API
	if path := cfg.Progress().Path; path != "" {
		start := schemas.NewPlayerProgress(cfg.Server().StartingReputation, cfg.Server().StartingSkillPoints)
		progress = store.NewFileProgress(path, start)
		logger.Debug("Using local progress file.", zap.String("path", path))
	}

	opts := []controller.Option{
		controller.WithLogger(logger),
		controller.WithTreeSource(source, skillgraph.NewOptions(cfg.Tree(), logger)),
	}

	// 4. Fallback tree
	if path := cfg.Tree().FallbackPath; path != "" {
		fallback, err := store.FileTree{Path: path}.FetchTree(ctx)
		if err != nil {
			initializationErr = fmt.Errorf("failed to read fallback tree: %w", err)
			return nil, initializationErr
		}
		opts = append(opts, controller.WithFallbackTree(fallback))
		logger.Debug("Fallback tree loaded.", zap.String("path", path))
	}

	// 5. Progress cache
	if cfg.Cache().Enabled {
		c, err := cache.Open(ctx, cfg.Cache().Path, logger)
		if err != nil {
			initializationErr = fmt.Errorf("failed to open progress cache: %w", err)
			return nil, initializationErr
		}
		components.Cache = c
		opts = append(opts, controller.WithCache(c, cfg.Progress().CacheKey))
		logger.Debug("Progress cache opened.", zap.String("path", cfg.Cache().Path))
	}

	// 6. Renderer
	components.Renderer = render.NewSVGRenderer(render.Options{Indent: 2}, logger)
	opts = append(opts, controller.WithRenderer(components.Renderer))

	// 7. Controller
	ctrl := controller.New(nil, nil, progress, opts...)
	if err := ctrl.Load(ctx); err != nil {
		initializationErr = fmt.Errorf("failed to load skill tree session: %w", err)
		return nil, initializationErr
	}
	components.Controller = ctrl

	logger.Info("Skill tree session initialized.", zap.String("session_id", ctrl.SessionID()))
	return components, nil
}
