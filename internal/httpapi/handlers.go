package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/oriys/scriptd/internal/auth"
	"github.com/oriys/scriptd/internal/logging"
	"github.com/oriys/scriptd/internal/registry"
	"github.com/oriys/scriptd/internal/runner"
)

// writeJSON writes v as the response body with status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError writes the {"detail": ...} error body used across the surface,
// logging at Warn for client faults and Error for server faults.
func writeError(w http.ResponseWriter, status int, detail string) {
	if status >= 500 {
		logging.Op().Error("request failed", "status", status, "detail", detail)
	} else {
		logging.Op().Warn("request rejected", "status", status, "detail", detail)
	}
	writeJSON(w, status, map[string]string{"detail": detail})
}

// handleHealth handles GET {prefix}/health. No auth.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"scripts_root": h.registry.Root(),
		"jwt_auth":     h.cfg.JWT.Enabled,
	})
}

type adminTokenRequest struct {
	Secret string `json:"secret"`
}

type adminTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// handleAdminToken handles POST {prefix}/auth/admin/token. No auth beyond
// the shared secret itself.
func (h *Handler) handleAdminToken(w http.ResponseWriter, r *http.Request) {
	var req adminTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, expiresIn, err := h.gate.ExchangeAdminToken(req.Secret)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, adminTokenResponse{AccessToken: token, TokenType: "Bearer", ExpiresIn: expiresIn})
	case errors.Is(err, auth.ErrAdminExchangeNotEnabled):
		writeError(w, http.StatusNotFound, "admin token exchange not enabled")
	case errors.Is(err, auth.ErrMisconfigured):
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeError(w, http.StatusUnauthorized, "invalid admin secret")
	}
}

type scriptsResponse struct {
	Count   int                    `json:"count"`
	Scripts []registry.ScriptInfo `json:"scripts"`
}

// handleListScripts handles GET {prefix}/scripts.
func (h *Handler) handleListScripts(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	scripts := h.scanned
	h.mu.Unlock()
	writeJSON(w, http.StatusOK, scriptsResponse{Count: len(scripts), Scripts: scripts})
}

// handleRescan handles POST {prefix}/scripts/rescan.
func (h *Handler) handleRescan(w http.ResponseWriter, r *http.Request) {
	scripts, err := h.registry.Scan()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "scan failed: "+err.Error())
		return
	}
	h.mu.Lock()
	h.scanned = scripts
	h.mu.Unlock()
	writeJSON(w, http.StatusOK, scriptsResponse{Count: len(scripts), Scripts: scripts})
}

// handleListRuns handles GET {prefix}/runs.
func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.List(false))
}

// handleListActiveRuns handles GET {prefix}/runs/active.
func (h *Handler) handleListActiveRuns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.List(true))
}

type startRunRequest struct {
	Script    string            `json:"script"`
	Args      []string          `json:"args"`
	Env       map[string]string `json:"env"`
	Cwd       string            `json:"cwd"`
	Duplicate bool              `json:"duplicate"`
}

// resolveAndValidateCwd validates an optional cwd override lies under the
// scripts root and is a directory, per §4.8's POST /runs contract. An empty
// cwd yields the scripts root.
func (h *Handler) resolveAndValidateCwd(cwd string) (string, error) {
	if cwd == "" {
		return h.registry.Root(), nil
	}
	if !h.registry.UnderRoot(cwd) {
		return "", &registry.ResolveError{Kind: registry.ErrNotUnderRoot, Msg: "cwd must be under scripts_root"}
	}
	info, err := os.Stat(cwd)
	if err != nil || !info.IsDir() {
		return "", &registry.ResolveError{Kind: registry.ErrNotFound, Msg: "cwd is not a directory"}
	}
	return cwd, nil
}

// resolveStatus maps a *registry.ResolveError to the HTTP status §4.1 names.
func resolveStatus(err error) (int, string) {
	rerr, ok := err.(*registry.ResolveError)
	if !ok {
		return http.StatusBadRequest, err.Error()
	}
	switch rerr.Kind {
	case registry.ErrNotUnderRoot, registry.ErrWrongExtension:
		return http.StatusBadRequest, rerr.Msg
	default:
		return http.StatusNotFound, rerr.Msg
	}
}

// handleStartRun handles POST {prefix}/runs.
func (h *Handler) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Script) == "" {
		writeError(w, http.StatusBadRequest, "script is required")
		return
	}

	absolute, err := h.registry.Resolve(req.Script)
	if err != nil {
		status, detail := resolveStatus(err)
		writeError(w, status, detail)
		return
	}

	cwd, err := h.resolveAndValidateCwd(req.Cwd)
	if err != nil {
		status, detail := resolveStatus(err)
		writeError(w, status, detail)
		return
	}

	record, err := h.manager.Start(req.Script, absolute, req.Args, req.Env, cwd, req.Duplicate)
	if err != nil {
		if err == runner.ErrDuplicateActive {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, record)
}

type startAllResult struct {
	Script string `json:"script"`
	Status string `json:"status"`
	RunID  string `json:"run_id,omitempty"`
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`
}

// handleStartAll handles POST {prefix}/runs/all.
func (h *Handler) handleStartAll(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Args      []string          `json:"args"`
		Env       map[string]string `json:"env"`
		Duplicate bool              `json:"duplicate"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	h.mu.Lock()
	scripts := h.scanned
	h.mu.Unlock()

	results := make([]startAllResult, 0, len(scripts))
	for _, s := range scripts {
		absolute, err := h.registry.Resolve(s.Path)
		if err != nil {
			_, detail := resolveStatus(err)
			results = append(results, startAllResult{Script: s.Path, Status: "error", Error: detail})
			continue
		}
		record, err := h.manager.Start(s.Path, absolute, req.Args, req.Env, h.registry.Root(), req.Duplicate)
		switch {
		case err == runner.ErrDuplicateActive:
			results = append(results, startAllResult{Script: s.Path, Status: "skipped", Reason: err.Error()})
		case err != nil:
			results = append(results, startAllResult{Script: s.Path, Status: "error", Error: err.Error()})
		default:
			results = append(results, startAllResult{Script: s.Path, Status: "started", RunID: record.RunID})
		}
	}
	writeJSON(w, http.StatusOK, results)
}

// handleStopAll handles POST {prefix}/runs/stop_all.
func (h *Handler) handleStopAll(w http.ResponseWriter, r *http.Request) {
	active := h.manager.List(true)
	results := make([]*runner.RunRecord, 0, len(active))
	for _, run := range active {
		stopped, err := h.manager.Stop(run.RunID)
		if err != nil {
			logging.Op().Warn("stop failed during stop_all", "run_id", run.RunID, "error", err)
			continue
		}
		if stopped != nil {
			results = append(results, stopped)
		}
	}
	writeJSON(w, http.StatusOK, results)
}

// handleGetRun handles GET {prefix}/runs/{id}.
func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	record := h.manager.Get(r.PathValue("id"))
	if record == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// handleStopRun handles POST {prefix}/runs/{id}/stop.
func (h *Handler) handleStopRun(w http.ResponseWriter, r *http.Request) {
	record, err := h.manager.Stop(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if record == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// handleRunLogs handles GET {prefix}/runs/{id}/logs?stream=stdout|stderr|both&tail_bytes=N.
func (h *Handler) handleRunLogs(w http.ResponseWriter, r *http.Request) {
	stream := r.URL.Query().Get("stream")
	if stream == "" {
		stream = "both"
	}
	if stream != "stdout" && stream != "stderr" && stream != "both" {
		writeError(w, http.StatusBadRequest, "stream must be stdout, stderr, or both")
		return
	}

	tailBytes := int64(8192)
	if raw := r.URL.Query().Get("tail_bytes"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "tail_bytes must be a non-negative integer")
			return
		}
		tailBytes = n
	}

	out, err := h.manager.ReadLogs(r.PathValue("id"), stream, tailBytes)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if out == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, out)
}
