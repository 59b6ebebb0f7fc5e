// File: internal/service/components.go
package service

import (
	"go.uber.org/zap"

	"github.com/xkilldash9x/skilltree/api/schemas"
	"github.com/xkilldash9x/skilltree/internal/apiclient"
	"github.com/xkilldash9x/skilltree/internal/cache"
	"github.com/xkilldash9x/skilltree/internal/controller"
	"github.com/xkilldash9x/skilltree/internal/observability"
	"github.com/xkilldash9x/skilltree/internal/render"
)

// Components holds everything a client-side skill tree session needs.
// This struct centralizes the lifecycle management of session dependencies.
type Components struct {
	Controller *controller.Controller
	Renderer   *render.SVGRenderer
	// API is nil when both the tree and the progress are read from local files.
	API *apiclient.Client
	// Items is nil without an API client.
	Items schemas.ItemSource
	Cache *cache.Cache
}

// Shutdown releases the resources held by the session, in reverse order of creation.
func (c *Components) Shutdown() {
	logger := observability.GetLogger()
	logger.Debug("Beginning components shutdown sequence.")

	if c.Cache != nil {
		if err := c.Cache.Close(); err != nil {
			logger.Warn("Error closing progress cache.", zap.Error(err))
		} else {
			logger.Debug("Progress cache closed.")
		}
		c.Cache = nil
	}

	logger.Debug("Session components shut down.")
}
