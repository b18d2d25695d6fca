package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jwebster45206/ability-forge/internal/cache"
	"github.com/jwebster45206/ability-forge/internal/forge"
	"github.com/jwebster45206/ability-forge/pkg/effect"
)

// ownerTimeout bounds how long a handler waits for the owner loop.
const ownerTimeout = 5 * time.Second

type AbilityRequest struct {
	PlayerID   string   `json:"player_id"`
	Primitives []string `json:"primitives"`
	Force      bool     `json:"force,omitempty"`
}

// AbilityResponse is returned for a cache hit or a cached record lookup.
type AbilityResponse struct {
	PlayerID  string            `json:"player_id"`
	ComboKey  string            `json:"combo_key"`
	Ability   *effect.AbilityV2 `json:"ability"`
	Version   int               `json:"version"`
	UseCount  int               `json:"use_count"`
	CreatedAt time.Time         `json:"created_at"`
	LastUsed  time.Time         `json:"last_used"`
}

// PendingResponse is returned when generation was queued.
type PendingResponse struct {
	RequestID string `json:"request_id"`
	ComboKey  string `json:"combo_key"`
	Status    string `json:"status"`
}

// AbilitiesHandler serves the per-player ability cache through the forge
// owner loop.
type AbilitiesHandler struct {
	forge  *forge.Forge
	logger *slog.Logger
}

func NewAbilitiesHandler(f *forge.Forge, logger *slog.Logger) *AbilitiesHandler {
	return &AbilitiesHandler{forge: f, logger: logger}
}

func toResponse(playerID string, rec *cache.CachedAbility, ability *effect.AbilityV2) AbilityResponse {
	return AbilityResponse{
		PlayerID:  playerID,
		ComboKey:  rec.ComboKey,
		Ability:   ability,
		Version:   rec.Version,
		UseCount:  rec.UseCount,
		CreatedAt: rec.CreatedAt,
		LastUsed:  rec.LastUsed,
	}
}

// onOwner runs fn on the forge loop with a bounded wait.
func (h *AbilitiesHandler) onOwner(r *http.Request, fn func(ctx context.Context)) error {
	ctx, cancel := context.WithTimeout(r.Context(), ownerTimeout)
	defer cancel()
	return h.forge.Do(ctx, func() { fn(ctx) })
}

func (h *AbilitiesHandler) ownerError(w http.ResponseWriter, err error) {
	h.logger.Error("Owner loop did not respond", "error", err)
	writeError(w, h.logger, http.StatusServiceUnavailable, "ability service is busy, try again")
}

func (h *AbilitiesHandler) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, cache.ErrInvalidPlayer) {
		writeError(w, h.logger, http.StatusBadRequest, "invalid player_id")
		return
	}
	h.logger.Error("Ability cache error", "error", err)
	writeError(w, h.logger, http.StatusInternalServerError, "internal error")
}

// Create handles POST /v1/abilities: 200 with a cached ability, or 202 with
// the generation request.
func (h *AbilitiesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req AbilityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid JSON in request body")
		return
	}

	var out forge.Outcome
	var reqErr error
	if err := h.onOwner(r, func(ctx context.Context) {
		out, reqErr = h.forge.Request(ctx, req.PlayerID, req.Primitives, req.Force)
	}); err != nil {
		h.ownerError(w, err)
		return
	}
	if errors.Is(reqErr, forge.ErrNoPrimitives) || errors.Is(reqErr, effect.ErrPrimitiveSeparator) {
		writeError(w, h.logger, http.StatusBadRequest, reqErr.Error())
		return
	}
	if reqErr != nil {
		h.storeError(w, reqErr)
		return
	}

	if out.Hit {
		writeJSON(w, h.logger, http.StatusOK, toResponse(req.PlayerID, out.Record, out.Ability))
		return
	}
	w.Header().Set("Location", "/v1/requests/"+out.Request.RequestID)
	writeJSON(w, h.logger, http.StatusAccepted, PendingResponse{
		RequestID: out.Request.RequestID,
		ComboKey:  out.Request.ComboKey,
		Status:    string(out.Request.Status),
	})
}

// Get handles GET /v1/abilities/{player_id}/{combo_key}. Looking a record
// up here does not count as a use.
func (h *AbilitiesHandler) Get(w http.ResponseWriter, r *http.Request) {
	playerID := r.PathValue("player_id")
	comboKey := effect.ComboKey(effect.SplitComboKey(r.PathValue("combo_key")))

	var rec *cache.CachedAbility
	var getErr error
	if err := h.onOwner(r, func(ctx context.Context) {
		rec, getErr = h.forge.Cached(ctx, playerID, comboKey)
	}); err != nil {
		h.ownerError(w, err)
		return
	}
	if getErr != nil {
		h.storeError(w, getErr)
		return
	}
	if rec == nil {
		writeError(w, h.logger, http.StatusNotFound, "ability not cached")
		return
	}
	ability, err := rec.Ability()
	if err != nil {
		h.logger.Error("Cached ability is unreadable", "error", err, "combo_key", comboKey)
		writeError(w, h.logger, http.StatusInternalServerError, "cached ability is unreadable")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, toResponse(playerID, rec, ability))
}

// List handles GET /v1/abilities/{player_id}.
func (h *AbilitiesHandler) List(w http.ResponseWriter, r *http.Request) {
	playerID := r.PathValue("player_id")

	var recs []cache.CachedAbility
	var listErr error
	if err := h.onOwner(r, func(ctx context.Context) {
		recs, listErr = h.forge.List(ctx, playerID)
	}); err != nil {
		h.ownerError(w, err)
		return
	}
	if listErr != nil {
		h.storeError(w, listErr)
		return
	}

	out := make([]AbilityResponse, 0, len(recs))
	for i := range recs {
		ability, err := recs[i].Ability()
		if err != nil {
			h.logger.Warn("Skipping unreadable cached ability", "error", err, "combo_key", recs[i].ComboKey)
			continue
		}
		out = append(out, toResponse(playerID, &recs[i], ability))
	}
	writeJSON(w, h.logger, http.StatusOK, out)
}

// Request handles GET /v1/requests/{request_id}.
func (h *AbilitiesHandler) Request(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("request_id")

	var st forge.RequestState
	var ok bool
	if err := h.onOwner(r, func(context.Context) {
		st, ok = h.forge.RequestStatus(id)
	}); err != nil {
		h.ownerError(w, err)
		return
	}
	if !ok {
		writeError(w, h.logger, http.StatusNotFound, "unknown request")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, st)
}

// Stats handles GET /v1/cache/{player_id}/stats.
func (h *AbilitiesHandler) Stats(w http.ResponseWriter, r *http.Request) {
	playerID := r.PathValue("player_id")

	var stats cache.Stats
	var statsErr error
	if err := h.onOwner(r, func(ctx context.Context) {
		stats, statsErr = h.forge.Stats(ctx, playerID)
	}); err != nil {
		h.ownerError(w, err)
		return
	}
	if statsErr != nil {
		h.storeError(w, statsErr)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{
		"player_id":  playerID,
		"count":      stats.Count,
		"total_uses": stats.TotalUses,
	})
}

// Clear handles DELETE /v1/cache/{player_id}.
func (h *AbilitiesHandler) Clear(w http.ResponseWriter, r *http.Request) {
	playerID := r.PathValue("player_id")

	var clearErr error
	if err := h.onOwner(r, func(ctx context.Context) {
		clearErr = h.forge.Clear(ctx, playerID)
	}); err != nil {
		h.ownerError(w, err)
		return
	}
	if clearErr != nil {
		h.storeError(w, clearErr)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// rawAbility accepts either an embedded JSON object or a string holding
// model output.
type rawAbility json.RawMessage

func (r *rawAbility) UnmarshalJSON(b []byte) error {
	*r = append((*r)[:0], b...)
	return nil
}

func (r rawAbility) text() string {
	var s string
	if err := json.Unmarshal(r, &s); err == nil {
		return s
	}
	return string(r)
}

// Register mounts the ability and cache routes on mux.
func (h *AbilitiesHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/abilities", h.Create)
	mux.HandleFunc("GET /v1/abilities/{player_id}", h.List)
	mux.HandleFunc("GET /v1/abilities/{player_id}/{combo_key}", h.Get)
	mux.HandleFunc("GET /v1/requests/{request_id}", h.Request)
	mux.HandleFunc("GET /v1/cache/{player_id}/stats", h.Stats)
	mux.HandleFunc("DELETE /v1/cache/{player_id}", h.Clear)
}
