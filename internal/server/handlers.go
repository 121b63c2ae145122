package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/michaelbrown/toolselector/internal/mcpconfig"
	"github.com/michaelbrown/toolselector/internal/storage"
	"github.com/michaelbrown/toolselector/internal/tools"
)

const maxBodySize = 1 << 20

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(v)
}

func readBody(r *http.Request) (string, error) {
	defer r.Body.Close()
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	return string(data), err
}

// --- Response shapes ---

type toolResponse struct {
	Name    string               `json:"name"`
	Enabled bool                 `json:"enabled"`
	Config  mcpconfig.ToolConfig `json:"config"`
}

func newToolResponse(t tools.Tool) toolResponse {
	return toolResponse{Name: t.Name, Enabled: t.Enabled, Config: t.Config}
}

type resultResponse struct {
	OK       bool     `json:"ok"`
	Error    string   `json:"error,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	Added    []string `json:"added,omitempty"`
	Skipped  []string `json:"skipped,omitempty"`
}

// writeResult maps a registry Result onto an HTTP status. A write failure
// after a successful in-memory change is a 500 with ok set.
func writeResult(w http.ResponseWriter, res tools.Result, okStatus int) {
	body := resultResponse{OK: res.OK, Warnings: res.Warnings.Strings()}
	if res.Err != nil {
		body.Error = res.Err.Error()
	}
	writeJSON(w, resultStatus(res, okStatus), body)
}

func resultStatus(res tools.Result, okStatus int) int {
	switch {
	case res.OK && res.Err != nil:
		return http.StatusInternalServerError
	case res.OK:
		return okStatus
	case errors.Is(res.Err, tools.ErrToolNotFound):
		return http.StatusNotFound
	case errors.Is(res.Err, tools.ErrToolExists), errors.Is(res.Err, tools.ErrNothingAdded):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

// --- Tool handlers ---

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	switch state {
	case "", "all", "enabled", "disabled":
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown state %q", state))
		return
	}

	s.mu.Lock()
	all := s.registry.Tools()
	only, _ := s.registry.BackupOnly()
	s.mu.Unlock()
	all = append(all, only...)

	out := []toolResponse{}
	for _, t := range all {
		if (state == "enabled" && !t.Enabled) || (state == "disabled" && t.Enabled) {
			continue
		}
		out = append(out, newToolResponse(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetTool(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	s.mu.Lock()
	t, ok := s.registry.Tool(name)
	if !ok {
		t, ok = s.backupOnly(name)
	}
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "tool not found")
		return
	}
	writeJSON(w, http.StatusOK, newToolResponse(t))
}

func (s *Server) backupOnly(name string) (tools.Tool, bool) {
	only, _ := s.registry.BackupOnly()
	for _, t := range only {
		if t.Name == name {
			return t, true
		}
	}
	return tools.Tool{}, false
}

type addToolRequest struct {
	Name   string               `json:"name"`
	Config mcpconfig.ToolConfig `json:"config"`
}

func (s *Server) handleAddTool(w http.ResponseWriter, r *http.Request) {
	var req addToolRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	s.mu.Lock()
	res := s.registry.Add(req.Name, req.Config)
	s.mu.Unlock()

	writeResult(w, res, http.StatusCreated)
}

func (s *Server) handleUpdateTool(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var cfg mcpconfig.ToolConfig
	if err := decodeJSON(r, &cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	s.mu.Lock()
	res := s.registry.Update(name, cfg)
	s.mu.Unlock()

	writeResult(w, res, http.StatusOK)
}

func (s *Server) handleRemoveTool(w http.ResponseWriter, r *http.Request) {
	s.applyNamed(w, r, s.registry.Remove)
}

func (s *Server) handleEnableTool(w http.ResponseWriter, r *http.Request) {
	s.applyNamed(w, r, s.registry.Enable)
}

func (s *Server) handleDisableTool(w http.ResponseWriter, r *http.Request) {
	s.applyNamed(w, r, s.registry.Disable)
}

func (s *Server) applyNamed(w http.ResponseWriter, r *http.Request, op func(string) tools.Result) {
	name := chi.URLParam(r, "name")

	s.mu.Lock()
	res := op(name)
	s.mu.Unlock()

	writeResult(w, res, http.StatusOK)
}

// --- Document handlers ---

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	text, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading body: "+err.Error())
		return
	}

	s.mu.Lock()
	res := s.registry.AddFromJSON(text)
	s.mu.Unlock()

	body := resultResponse{OK: res.OK, Warnings: res.Warnings.Strings(), Added: res.Added, Skipped: res.Skipped}
	if res.Err != nil {
		body.Error = res.Err.Error()
	}
	writeJSON(w, resultStatus(res.Result, http.StatusOK), body)
}

type validateResponse struct {
	Valid bool     `json:"valid"`
	Error string   `json:"error,omitempty"`
	Tool  string   `json:"tool,omitempty"`
	Names []string `json:"names,omitempty"`
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	text, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading body: "+err.Error())
		return
	}

	doc, err := mcpconfig.Validate(text)
	if err != nil {
		resp := validateResponse{Error: err.Error()}
		var verr *mcpconfig.ValidationError
		if errors.As(err, &verr) {
			resp.Tool = verr.Tool
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}
	writeJSON(w, http.StatusOK, validateResponse{Valid: true, Names: doc.Names()})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	err := s.registry.Reload()
	all := s.registry.Tools()
	s.mu.Unlock()

	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]toolResponse, 0, len(all))
	for _, t := range all {
		out = append(out, newToolResponse(t))
	}
	writeJSON(w, http.StatusOK, out)
}

type backupResponse struct {
	Tools     []toolResponse `json:"tools"`
	Conflicts []string       `json:"conflicts"`
	Warnings  []string       `json:"warnings,omitempty"`
}

func (s *Server) handleBackup(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	only, warnings := s.registry.BackupOnly()
	conflicts := s.registry.Conflicts()
	s.mu.Unlock()

	resp := backupResponse{Tools: []toolResponse{}, Conflicts: conflicts, Warnings: warnings.Strings()}
	if resp.Conflicts == nil {
		resp.Conflicts = []string{}
	}
	for _, t := range only {
		resp.Tools = append(resp.Tools, newToolResponse(t))
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- History ---

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusOK, []storage.Event{})
		return
	}

	opts := storage.ListOptions{
		Action: r.URL.Query().Get("action"),
		Tool:   r.URL.Query().Get("tool"),
		Limit:  50,
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			opts.Limit = n
		}
	}

	events, err := s.history.List(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if events == nil {
		events = []storage.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}
