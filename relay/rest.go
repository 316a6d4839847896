package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/CalvinMagezi/agent-hq-sub000/ai/openrouter"
	"github.com/CalvinMagezi/agent-hq-sub000/errors"
	"github.com/CalvinMagezi/agent-hq-sub000/vault"
)

// registerRESTRoutes mounts the /api surface. Every route goes through
// Bearer auth; the handlers mirror the WebSocket surface minus streaming.
func (g *Gateway) registerRESTRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/status", g.requireAuth(g.restStatus))
	mux.HandleFunc("/api/jobs", g.requireAuth(g.restJobs))
	mux.HandleFunc("/api/jobs/", g.requireAuth(g.restJobByID))
	mux.HandleFunc("/api/chat", g.requireAuth(g.restChat))
	mux.HandleFunc("/api/notes/search", g.requireAuth(g.restNotesSearch))
	mux.HandleFunc("/api/threads", g.requireAuth(g.restThreads))
}

// requireAuth wraps a handler with Bearer validation (raw key or live
// session token).
func (g *Gateway) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !g.auth.ValidateBearer(r.Header.Get("Authorization")) {
			writeJSONError(w, http.StatusUnauthorized, "missing or invalid Authorization header")
			return
		}
		next(w, r)
	}
}

func (g *Gateway) restStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, g.snapshot())
}

type restJobRequest struct {
	Instruction     string `json:"instruction"`
	Type            string `json:"type,omitempty"`
	Priority        int    `json:"priority,omitempty"`
	SecurityProfile string `json:"securityProfile,omitempty"`
	ModelOverride   string `json:"modelOverride,omitempty"`
	ThinkingLevel   string `json:"thinkingLevel,omitempty"`
	ThreadID        string `json:"threadId,omitempty"`
}

func (g *Gateway) restJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req restJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "request body is not valid JSON")
		return
	}
	if strings.TrimSpace(req.Instruction) == "" {
		writeJSONError(w, http.StatusBadRequest, "instruction is required")
		return
	}

	job, err := g.vault.CreateJob(vault.JobSpec{
		Instruction:     req.Instruction,
		Type:            req.Type,
		Priority:        req.Priority,
		SecurityProfile: req.SecurityProfile,
		ModelOverride:   req.ModelOverride,
		ThinkingLevel:   req.ThinkingLevel,
		ThreadID:        req.ThreadID,
	})
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"jobId":     job.ID,
		"status":    job.Status,
		"createdAt": job.CreatedAt.UTC().Format(time.RFC3339),
	})
}

// restJobByID serves GET /api/jobs/{id} and POST /api/jobs/{id}/cancel
func (g *Gateway) restJobByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		g.restGetJob(w, parts[0])
	case len(parts) == 2 && parts[1] == "cancel" && r.Method == http.MethodPost:
		g.restCancelJob(w, parts[0])
	default:
		writeJSONError(w, http.StatusNotFound, "not found")
	}
}

func (g *Gateway) restGetJob(w http.ResponseWriter, jobID string) {
	job, err := g.vault.GetJob(jobID)
	if err != nil {
		if errors.IsNotFoundError(err) {
			writeJSONError(w, http.StatusNotFound, "job not found")
			return
		}
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, jobJSON(job))
}

func (g *Gateway) restCancelJob(w http.ResponseWriter, jobID string) {
	job, err := g.vault.CancelJob(jobID, "cancelled via REST")
	if err != nil {
		if errors.IsNotFoundError(err) {
			writeJSONError(w, http.StatusNotFound, "job not found or not cancellable")
			return
		}
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, jobJSON(job))
}

type restChatRequest struct {
	Content       string `json:"content"`
	ModelOverride string `json:"modelOverride,omitempty"`
	ThreadID      string `json:"threadId,omitempty"`
}

// restChat is the non-streaming synchronous chat path
func (g *Gateway) restChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req restChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "request body is not valid JSON")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeJSONError(w, http.StatusBadRequest, "content is required")
		return
	}
	if !g.llm.Configured() {
		writeJSONError(w, http.StatusServiceUnavailable, "no chat API key configured")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), chatDeadline)
	defer cancel()

	model := req.ModelOverride
	if model == "" {
		model = g.cfg.Chat.DefaultModel
	}

	messages := []openrouter.Message{
		{Role: "system", Content: g.buildSystemPrompt("rest", req.Content)},
		{Role: "user", Content: req.Content},
	}

	resp, err := g.llm.Chat(ctx, messages, openrouter.ChatOptions{
		Model:       model,
		Temperature: g.cfg.Chat.Temperature,
		MaxTokens:   g.cfg.Chat.MaxTokens,
	})
	if err != nil {
		writeJSONError(w, http.StatusBadGateway, err.Error())
		return
	}

	cleaned := g.processMemoryTags(resp.Content)

	if resp.Usage.TotalTokens > 0 {
		if uerr := g.vault.AppendUsage(resp.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.Cost); uerr != nil {
			g.log.Warnw("Usage append failed", "error", uerr)
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"content": cleaned,
		"model":   resp.Model,
	})
}

func (g *Gateway) restNotesSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	query := r.URL.Query().Get("q")
	if strings.TrimSpace(query) == "" {
		writeJSONError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}

	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 50 {
			limit = n
		}
	}

	results, err := g.vault.SearchNotes(query, limit)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (g *Gateway) restThreads(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	threads, err := g.vault.ListThreads(20)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"threads": threads})
}

func jobJSON(job *vault.Job) map[string]any {
	out := map[string]any{
		"jobId":     job.ID,
		"type":      job.Type,
		"status":    job.Status,
		"priority":  job.Priority,
		"createdAt": job.CreatedAt.UTC().Format(time.RFC3339),
		"version":   job.Version,
	}
	if job.Result != "" {
		out["result"] = job.Result
	}
	if job.Error != "" {
		out["error"] = job.Error
	}
	if job.WorkerID != "" {
		out["workerId"] = job.WorkerID
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
