package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/jwebster45206/ability-forge/pkg/effect"
	"github.com/jwebster45206/ability-forge/pkg/ingest"
	"github.com/jwebster45206/ability-forge/pkg/interpreter"
	"github.com/jwebster45206/ability-forge/pkg/schema"
)

type SimulateRequest struct {
	Ability  rawAbility           `json:"ability"`
	Entities []interpreter.Entity `json:"entities,omitempty"`
}

type SimulateResponse struct {
	Ability     *effect.AbilityV2   `json:"ability"`
	Diagnostics []schema.Diagnostic `json:"diagnostics,omitempty"`
	Notes       []string            `json:"notes,omitempty"`
	Trace       interpreter.Trace   `json:"trace"`
}

// SimulateHandler casts an ability in the recording sandbox. It runs on the
// request goroutine because the sandbox world is private to the call.
type SimulateHandler struct {
	logger *slog.Logger
}

func NewSimulateHandler(logger *slog.Logger) *SimulateHandler {
	return &SimulateHandler{logger: logger}
}

func (h *SimulateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req SimulateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid JSON in request body")
		return
	}
	if len(req.Ability) == 0 {
		writeError(w, h.logger, http.StatusBadRequest, "ability is required")
		return
	}

	clean, err := ingest.Sanitize(req.Ability.text())
	if err != nil {
		writeError(w, h.logger, http.StatusUnprocessableEntity, err.Error())
		return
	}
	res := schema.Validate(clean)
	if res.Fatal() {
		writeJSON(w, h.logger, http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "ability failed validation",
			Details: res.Diagnostics,
		})
		return
	}

	ability, notes, err := ingest.ParseAbilityNotes(clean)
	if err != nil {
		var pe *ingest.ParseError
		if errors.As(err, &pe) {
			h.logger.Debug("Simulate parse failed", "error", pe.Err)
		}
		writeError(w, h.logger, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if ability.Malformed() {
		writeError(w, h.logger, http.StatusUnprocessableEntity, "ability has no executable effects")
		return
	}

	trace := interpreter.Simulate(ability, req.Entities, h.logger)
	writeJSON(w, h.logger, http.StatusOK, SimulateResponse{
		Ability:     ability,
		Diagnostics: res.Diagnostics,
		Notes:       notes,
		Trace:       trace,
	})
}
