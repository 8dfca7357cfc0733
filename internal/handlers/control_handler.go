package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/spabas/libreo-bridge/internal/interfaces"
)

// ControlHandler accepts writes to the station control points. A write
// lands in the store unconfirmed; the control dispatcher forwards it to the
// provider and confirms it once accepted.
type ControlHandler struct {
	store  interfaces.NodeStore
	logger arbor.ILogger
}

// NewControlHandler creates a control handler
func NewControlHandler(store interfaces.NodeStore, logger arbor.ILogger) *ControlHandler {
	return &ControlHandler{
		store:  store,
		logger: logger,
	}
}

type controlWriteRequest struct {
	Path  string      `json:"path"`
	Value interface{} `json:"value"`
}

// WriteHandler queues one control write
func (h *ControlHandler) WriteHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var request controlWriteRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if request.Path == "" {
		writeError(w, http.StatusBadRequest, "missing node path")
		return
	}

	if err := h.store.SetValue(r.Context(), request.Path, request.Value, false); err != nil {
		if errors.Is(err, interfaces.ErrNodeNotFound) {
			writeError(w, http.StatusNotFound, "node not found")
			return
		}
		h.logger.Warn().Err(err).Str("path", request.Path).Msg("Control write failed")
		writeError(w, http.StatusInternalServerError, "control write failed")
		return
	}

	h.logger.Info().Str("path", request.Path).Msg("Control write queued")
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"path":   request.Path,
		"queued": true,
	})
}
