package server

import (
	"errors"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xkilldash9x/skilltree/api/schemas"
	"github.com/xkilldash9x/skilltree/internal/config"
	"github.com/xkilldash9x/skilltree/internal/skillgraph"
	"github.com/xkilldash9x/skilltree/internal/store"
)

// maxBodyBytes bounds a progress submission.
const maxBodyBytes = 1 << 20

// Handlers serves the skill API routes.
type Handlers struct {
	log   *zap.Logger
	graph *skillgraph.Graph
	repo  schemas.PlayerProgressRepository
	start schemas.PlayerProgress

	// playerLocks serializes read-modify-write cycles per player.
	playerLocks sync.Map
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(logger *zap.Logger, graph *skillgraph.Graph, repo schemas.PlayerProgressRepository, cfg config.ServerConfig) *Handlers {
	return &Handlers{
		log:   logger.Named("handlers"),
		graph: graph,
		repo:  repo,
		start: schemas.NewPlayerProgress(cfg.StartingReputation, cfg.StartingSkillPoints),
	}
}

// RegisterRoutes mounts the /api routes on r.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/skill-tree", h.HandleGetTree)
		r.Get("/skill-progress", h.HandleGetProgress)
		r.Post("/skill-progress", h.HandlePostProgress)
		r.Get("/item/{itemID}", h.HandleGetItem)
	})
}

// HandleHealthCheck is a simple handler to confirm the server is responsive.
func (h *Handlers) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *Handlers) HandleGetTree(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.graph.Data())
}

func (h *Handlers) HandleGetProgress(w http.ResponseWriter, r *http.Request) {
	progress, err := h.current(r)
	if err != nil {
		h.log.Error("Failed to load progress", zap.Error(err), zap.String("request_id", middleware.GetReqID(r.Context())))
		h.respondWithError(w, http.StatusInternalServerError, "internal", "failed to load progress")
		return
	}
	h.respondJSON(w, http.StatusOK, progress)
}

func (h *Handlers) HandlePostProgress(w http.ResponseWriter, r *http.Request) {
	submitted, err := schemas.DecodeProgress(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	playerID := PlayerID(r.Context())
	mu := h.lockFor(playerID)
	mu.Lock()
	defer mu.Unlock()

	stored, err := h.current(r)
	if err != nil {
		h.log.Error("Failed to load progress", zap.Error(err), zap.String("player_id", playerID))
		h.respondWithError(w, http.StatusInternalServerError, "internal", "failed to load progress")
		return
	}

	next, err := Reconcile(h.graph, stored, submitted)
	if err != nil {
		h.log.Info("Rejected progress submission.", zap.String("player_id", playerID), zap.Error(err))
		h.respondWithError(w, http.StatusUnprocessableEntity, "invalid_progress", err.Error())
		return
	}
	if !next.Equal(submitted) {
		h.log.Warn("Submitted progress differs from the reconciled record; storing the reconciled one.",
			zap.String("player_id", playerID),
			zap.Int("submitted_reputation", submitted.Reputation),
			zap.Int("stored_reputation", next.Reputation))
	}

	saved, err := h.repo.PutProgress(r.Context(), playerID, next)
	if err != nil {
		h.log.Error("Failed to store progress", zap.Error(err), zap.String("player_id", playerID))
		h.respondWithError(w, http.StatusInternalServerError, "internal", "failed to store progress")
		return
	}
	h.respondJSON(w, http.StatusOK, saved)
}

func (h *Handlers) HandleGetItem(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")
	item, err := h.repo.GetItem(r.Context(), itemID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.respondWithError(w, http.StatusNotFound, "not_found", "item "+itemID+" not found")
	case err != nil:
		h.log.Error("Failed to load item", zap.Error(err), zap.String("item_id", itemID))
		h.respondWithError(w, http.StatusInternalServerError, "internal", "failed to load item")
	default:
		h.respondJSON(w, http.StatusOK, item)
	}
}

// current returns the stored record, or the starting record for a new player.
func (h *Handlers) current(r *http.Request) (schemas.PlayerProgress, error) {
	progress, err := h.repo.GetProgress(r.Context(), PlayerID(r.Context()))
	if errors.Is(err, store.ErrNotFound) {
		return h.start.Clone(), nil
	}
	return progress, err
}

func (h *Handlers) lockFor(playerID string) *sync.Mutex {
	mu, _ := h.playerLocks.LoadOrStore(playerID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (h *Handlers) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := schemas.JSON.NewEncoder(w).Encode(data); err != nil {
		h.log.Error("Failed to encode response", zap.Error(err))
	}
}

// respondWithError sends the standard error envelope.
func (h *Handlers) respondWithError(w http.ResponseWriter, statusCode int, code, message string) {
	h.respondJSON(w, statusCode, schemas.ErrorEnvelope{Error: message, Code: code})
}
