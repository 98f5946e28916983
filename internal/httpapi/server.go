// Package httpapi is the thin HTTP adapter over the Run Manager, Script
// Registry, and Auth Gate: it is the external contract, not where any of
// their logic lives.
package httpapi

import (
	"net/http"
	"sync"

	"github.com/oriys/scriptd/internal/auth"
	"github.com/oriys/scriptd/internal/config"
	"github.com/oriys/scriptd/internal/logging"
	"github.com/oriys/scriptd/internal/registry"
	"github.com/oriys/scriptd/internal/runner"
)

const (
	scopeScriptsRead = "scripts:read"
	scopeScriptsRun  = "scripts:run"
	scopeLogsRead    = "logs:read"
)

// Handler wires the Run Manager, Script Registry, and Auth Gate to the
// daemon's HTTP route table.
type Handler struct {
	cfg      *config.Config
	registry *registry.Registry
	manager  *runner.Manager
	gate     *auth.Gate

	mu      sync.Mutex
	scanned []registry.ScriptInfo
}

// New builds a Handler. It performs an initial scan so GET /scripts has
// something to return before any explicit rescan.
func New(cfg *config.Config, reg *registry.Registry, mgr *runner.Manager, gate *auth.Gate) *Handler {
	h := &Handler{cfg: cfg, registry: reg, manager: mgr, gate: gate}
	if scripts, err := reg.Scan(); err == nil {
		h.scanned = scripts
	} else {
		logging.Op().Warn("initial script scan failed", "error", err)
	}
	return h
}

// NewServeMux builds the full route table under cfg.APIPrefix.
func (h *Handler) NewServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	prefix := h.cfg.APIPrefix

	mux.HandleFunc("GET "+prefix+"/health", h.handleHealth)
	mux.HandleFunc("POST "+prefix+"/auth/admin/token", h.handleAdminToken)

	mux.HandleFunc("GET "+prefix+"/scripts", h.gate.Require(h.handleListScripts, scopeScriptsRead))
	mux.HandleFunc("POST "+prefix+"/scripts/rescan", h.gate.Require(h.handleRescan, scopeScriptsRead))

	mux.HandleFunc("GET "+prefix+"/runs", h.gate.Require(h.handleListRuns, scopeScriptsRead))
	mux.HandleFunc("GET "+prefix+"/runs/active", h.gate.Require(h.handleListActiveRuns, scopeScriptsRead))
	mux.HandleFunc("POST "+prefix+"/runs", h.gate.Require(h.handleStartRun, scopeScriptsRun))
	mux.HandleFunc("POST "+prefix+"/runs/all", h.gate.Require(h.handleStartAll, scopeScriptsRun))
	mux.HandleFunc("POST "+prefix+"/runs/stop_all", h.gate.Require(h.handleStopAll, scopeScriptsRun))
	mux.HandleFunc("GET "+prefix+"/runs/{id}", h.gate.Require(h.handleGetRun, scopeScriptsRead))
	mux.HandleFunc("POST "+prefix+"/runs/{id}/stop", h.gate.Require(h.handleStopRun, scopeScriptsRun))
	mux.HandleFunc("GET "+prefix+"/runs/{id}/logs", h.gate.Require(h.handleRunLogs, scopeLogsRead))

	return mux
}
