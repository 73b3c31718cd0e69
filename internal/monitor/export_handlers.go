package monitor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/nav-lambda/safety.report/internal/httputil"
	"github.com/nav-lambda/safety.report/internal/security"
)

// handleExport writes the persisted certificate log as JSONL under the
// configured export directory. The caller may name the file with the
// 'file' query parameter; the name is validated so writes cannot escape
// the export directory.
func (ws *WebServer) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if ws.store == nil {
		httputil.NotFound(w, "no certificate store configured")
		return
	}
	if ws.exportDir == "" {
		httputil.NotFound(w, "no export directory configured")
		return
	}

	name := r.URL.Query().Get("file")
	if name == "" {
		name = fmt.Sprintf("certificates_%s.jsonl", time.Now().UTC().Format("20060102T150405Z"))
	}
	if !strings.HasSuffix(name, ".jsonl") {
		httputil.BadRequest(w, "export file must end in .jsonl")
		return
	}

	path := filepath.Join(ws.exportDir, name)
	if err := security.ValidatePathWithinDirectory(path, ws.exportDir); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid export file name: %v", err))
		return
	}

	certs, err := ws.store.List(0)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("list certificates: %v", err))
		return
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, cert := range certs {
		if err := enc.Encode(cert); err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("encode certificate: %v", err))
			return
		}
	}

	if err := ws.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("create export directory: %v", err))
		return
	}
	if err := ws.fs.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("write export: %v", err))
		return
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"status": "ok",
		"path":   path,
		"count":  len(certs),
	})
}
