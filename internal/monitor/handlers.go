package monitor

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/nav-lambda/safety.report/internal/httputil"
	"github.com/nav-lambda/safety.report/internal/version"
)

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

// handleStatus reports the latest cycle output plus compiler statistics.
func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	out := ws.core.LastOutput()
	httputil.WriteJSONOK(w, map[string]interface{}{
		"output": out,
		"alpha":  ws.core.Alpha(),
		"stats":  ws.core.Stats(),
	})
}

func (ws *WebServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, ws.core.Stats())
}

// handleCertificates returns the persisted certificate log in chronological
// order. Query params: limit (optional, default 100, 0 = all).
func (ws *WebServer) handleCertificates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if ws.store == nil {
		httputil.NotFound(w, "no certificate store configured")
		return
	}

	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		v, err := strconv.Atoi(l)
		if err != nil || v < 0 {
			httputil.BadRequest(w, "invalid 'limit' parameter")
			return
		}
		limit = v
	}

	certs, err := ws.store.List(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("list certificates: %v", err))
		return
	}
	httputil.WriteJSONOK(w, certs)
}

// paramsUpdate is the runtime-tunable subset of the configuration.
type paramsUpdate struct {
	Alpha *float64 `json:"alpha,omitempty"`
}

// handleParams reads (GET) or updates (POST) runtime tuning parameters.
// Updates are clamped to their configured bounds; the applied values are
// echoed back.
func (ws *WebServer) handleParams(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		httputil.WriteJSONOK(w, map[string]float64{"alpha": ws.core.Alpha()})
	case http.MethodPost:
		var update paramsUpdate
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			httputil.BadRequest(w, fmt.Sprintf("decode params: %v", err))
			return
		}
		applied := map[string]float64{}
		if update.Alpha != nil {
			applied["alpha"] = ws.core.UpdateSafetyAlpha(*update.Alpha)
		} else {
			applied["alpha"] = ws.core.Alpha()
		}
		httputil.WriteJSONOK(w, applied)
	default:
		httputil.MethodNotAllowed(w)
	}
}

// handleReset attempts to clear a latched failure state.
func (ws *WebServer) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	if !ws.core.Reset() {
		httputil.WriteJSONError(w, http.StatusConflict, "reset refused: P-score still below threshold")
		return
	}
	httputil.WriteJSONOK(w, map[string]string{"status": "reset"})
}
