package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/spabas/libreo-bridge/internal/interfaces"
)

// NodeHandler exposes read access to the mirrored node store
type NodeHandler struct {
	store  interfaces.NodeStore
	logger arbor.ILogger
}

// NewNodeHandler creates a node handler
func NewNodeHandler(store interfaces.NodeStore, logger arbor.ILogger) *NodeHandler {
	return &NodeHandler{
		store:  store,
		logger: logger,
	}
}

// ListHandler returns the values of all state nodes matching a glob
// pattern, defaulting to everything
func (h *NodeHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	pattern := r.URL.Query().Get("pattern")
	if pattern == "" {
		pattern = "*"
	}

	values, err := h.store.ListValues(r.Context(), pattern)
	if err != nil {
		h.logger.Warn().Err(err).Str("pattern", pattern).Msg("Node list failed")
		writeError(w, http.StatusBadRequest, "invalid pattern")
		return
	}

	result := make(map[string]interface{}, len(values))
	for path, value := range values {
		result[path] = map[string]interface{}{
			"value":     value.Value,
			"confirmed": value.Confirmed,
		}
	}

	writeJSON(w, http.StatusOK, result)
}

// GetHandler returns one node's value; the path follows /api/nodes/
func (h *NodeHandler) GetHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/nodes/")
	if path == "" {
		writeError(w, http.StatusBadRequest, "missing node path")
		return
	}

	value, err := h.store.GetValue(r.Context(), path)
	if err != nil {
		if errors.Is(err, interfaces.ErrNodeNotFound) {
			writeError(w, http.StatusNotFound, "node not found")
			return
		}
		h.logger.Warn().Err(err).Str("path", path).Msg("Node read failed")
		writeError(w, http.StatusInternalServerError, "node read failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"path":      path,
		"value":     value.Value,
		"confirmed": value.Confirmed,
	})
}
