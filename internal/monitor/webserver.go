// Package monitor provides the HTTP surface for observing the safety core:
// live status, the certificate log, runtime tuning, and debug charts.
package monitor

import (
	"context"
	"net/http"
	"time"

	"github.com/nav-lambda/safety.report/internal/certify"
	"github.com/nav-lambda/safety.report/internal/fsutil"
	"github.com/nav-lambda/safety.report/internal/monitoring"
	"github.com/nav-lambda/safety.report/internal/pipeline"
	"github.com/nav-lambda/safety.report/internal/storage/sqlite"
)

// SafetyCore is the read/control surface the web server needs from the
// evaluation loop. The loop owner decides how access is synchronized.
type SafetyCore interface {
	LastOutput() pipeline.CycleOutput
	Stats() certify.Stats
	Alpha() float64
	UpdateSafetyAlpha(alpha float64) float64
	Reset() bool
}

// WebServer handles the HTTP interface for monitoring the safety core.
type WebServer struct {
	address   string
	core      SafetyCore
	store     *sqlite.CertificateStore
	exportDir string
	fs        fsutil.FileSystem
	server    *http.Server
}

// WebServerConfig contains configuration options for the web server.
type WebServerConfig struct {
	Address string
	Core    SafetyCore
	// Store is the certificate store backing the log endpoints; may be
	// nil when running without a database.
	Store *sqlite.CertificateStore
	// ExportDir is the directory certificate log exports are written
	// under. Empty disables the export endpoint.
	ExportDir string
	// FS backs export writes. Nil means the real filesystem.
	FS fsutil.FileSystem
}

// NewWebServer creates a new web server with the provided configuration.
func NewWebServer(config WebServerConfig) *WebServer {
	ws := &WebServer{
		address:   config.Address,
		core:      config.Core,
		store:     config.Store,
		exportDir: config.ExportDir,
		fs:        config.FS,
	}
	if ws.fs == nil {
		ws.fs = fsutil.OSFileSystem{}
	}

	ws.server = &http.Server{
		Addr:    ws.address,
		Handler: ws.setupRoutes(),
	}

	return ws
}

// Start begins the HTTP server in a goroutine and blocks until ctx is
// cancelled, then shuts the server down.
func (ws *WebServer) Start(ctx context.Context) error {
	go func() {
		monitoring.Logf("starting HTTP server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			monitoring.Logf("HTTP server failed: %v", err)
		}
	}()

	<-ctx.Done()
	monitoring.Logf("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("HTTP server shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			monitoring.Logf("HTTP server force close error: %v", err)
		}
	}
	return nil
}

// setupRoutes configures the HTTP routes and handlers.
func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/api/safety/status", ws.handleStatus)
	mux.HandleFunc("/api/safety/stats", ws.handleStats)
	mux.HandleFunc("/api/safety/certificates", ws.handleCertificates)
	mux.HandleFunc("/api/safety/params", ws.handleParams)
	mux.HandleFunc("/api/safety/reset", ws.handleReset)
	mux.HandleFunc("/api/safety/chart", ws.handlePScoreChart)
	mux.HandleFunc("/api/safety/export", ws.handleExport)

	return mux
}

// Handler exposes the route table for tests.
func (ws *WebServer) Handler() http.Handler {
	return ws.server.Handler
}
