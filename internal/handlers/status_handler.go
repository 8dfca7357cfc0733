package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/spabas/libreo-bridge/internal/common"
	"github.com/spabas/libreo-bridge/internal/interfaces"
	"github.com/spabas/libreo-bridge/internal/services/mirror"
	"github.com/spabas/libreo-bridge/internal/services/realtime"
)

// StatusHandler serves application status and version
type StatusHandler struct {
	session  interfaces.SessionManager
	mirror   *mirror.Service
	realtime *realtime.Manager
	logger   arbor.ILogger
}

// NewStatusHandler creates a status handler
func NewStatusHandler(session interfaces.SessionManager, mirrorService *mirror.Service, realtimeManager *realtime.Manager, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		session:  session,
		mirror:   mirrorService,
		realtime: realtimeManager,
		logger:   logger,
	}
}

// GetStatusHandler reports session and mirror state
func (h *StatusHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	status := map[string]interface{}{
		"status":    "running",
		"version":   common.GetVersion(),
		"logged_in": h.session.LoggedIn(),
	}
	if orgPath, nodePath, ok := h.mirror.ActiveOrg(); ok {
		status["active_org"] = orgPath
		status["active_org_node"] = nodePath
		if channel, ok := h.realtime.Channel(orgPath); ok {
			status["channel_state"] = channel.State().String()
		}
	}

	writeJSON(w, http.StatusOK, status)
}

// HealthHandler is the liveness probe
func (h *StatusHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// VersionHandler reports the full build version
func (h *StatusHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version": common.GetFullVersion(),
	})
}
