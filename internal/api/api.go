package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/datasage-io/datasage/internal/dataset"
	"github.com/datasage-io/datasage/internal/history"
	"github.com/datasage-io/datasage/internal/pipeline"
	"github.com/datasage-io/datasage/internal/query"
	"github.com/datasage-io/datasage/internal/session"
)

const maxUploadBodySize = 200 << 20 // 200MB, matching the upload limit
const maxRequestBodySize = 1 << 20

// AppDeps holds the wired components the API serves.
type AppDeps struct {
	Store    *session.Store
	Pipeline *pipeline.Pipeline
	History  *history.Store // optional; nil disables the history endpoint
}

// NewAppHandler builds the HTTP surface over the session and query operations.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", handleCreateSession(deps))
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", handleGetSession(deps))
			r.Delete("/", handleDeleteSession(deps))
			r.Post("/dataset", handleAttachDataset(deps))
			r.Patch("/metadata", handleUpdateMetadata(deps))
			r.Get("/schema", handleGetSchema(deps))
			r.Post("/translate", handleTranslate(deps))
			r.Post("/sql", handleExecuteSQL(deps))
			r.Post("/query", handleNaturalLanguageQuery(deps))
			r.Get("/history", handleHistory(deps))
		})
	})

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleCreateSession(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := deps.Store.Create(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create session: %v", err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"session_id": id})
	}
}

func handleGetSession(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := deps.Store.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func handleDeleteSession(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := deps.Store.Delete(r.Context(), id); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete session: %v", err)
			return
		}
		if deps.History != nil {
			if err := deps.History.DeleteBySession(id); err != nil {
				// History is advisory; the session itself is gone.
				httpError(w, http.StatusInternalServerError, "api_error", "failed to clear session history: %v", err)
				return
			}
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// AttachDatasetRequest carries the uploaded dataset: filename plus CSV text,
// base64-encoded.
type AttachDatasetRequest struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

func handleAttachDataset(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBodySize)
		defer r.Body.Close()

		var req AttachDatasetRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Content == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "content is required")
			return
		}

		decoded, err := base64.StdEncoding.DecodeString(req.Content)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid base64 content")
			return
		}

		frame, err := dataset.ReadCSV(strings.NewReader(string(decoded)))
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "failed to parse dataset: %v", err)
			return
		}

		id := chi.URLParam(r, "id")
		if err := deps.Store.AttachDataset(r.Context(), id, frame, req.Filename); err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"session_id": id,
			"rows":       frame.RowCount(),
			"columns":    frame.ColumnCount(),
		})
	}
}

func handleUpdateMetadata(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var partial map[string]any
		if err := json.NewDecoder(r.Body).Decode(&partial); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		if err := deps.Store.UpdateMetadata(r.Context(), chi.URLParam(r, "id"), partial); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
	}
}

func handleGetSchema(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		schema, err := deps.Pipeline.Schema(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, err)
			return
		}

		type columnInfo struct {
			Name string `json:"name"`
			Type string `json:"type"`
		}
		out := make([]columnInfo, len(schema))
		for i, c := range schema {
			out[i] = columnInfo{Name: c.Name, Type: c.Type.SQLType()}
		}
		writeJSON(w, http.StatusOK, map[string]any{"schema": out})
	}
}

// TranslateRequest is a natural-language request plus the remote-path flag.
type TranslateRequest struct {
	Question  string `json:"question"`
	UseRemote bool   `json:"use_remote"`
}

func handleTranslate(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req TranslateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Question == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "question is required")
			return
		}

		sql, err := deps.Pipeline.Translate(r.Context(), chi.URLParam(r, "id"), req.Question, req.UseRemote)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"sql": sql})
	}
}

// ExecuteSQLRequest carries literal query text.
type ExecuteSQLRequest struct {
	Query string `json:"query"`
}

func handleExecuteSQL(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req ExecuteSQLRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Query == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "query is required")
			return
		}

		result, err := deps.Pipeline.ExecuteSQL(r.Context(), chi.URLParam(r, "id"), req.Query)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func handleNaturalLanguageQuery(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req TranslateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Question == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "question is required")
			return
		}

		out, err := deps.Pipeline.RunNaturalLanguage(r.Context(), chi.URLParam(r, "id"), req.Question, req.UseRemote)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleHistory(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.History == nil {
			httpError(w, http.StatusNotFound, "not_found", "query history is disabled")
			return
		}
		limit := parseIntParam(r, "limit", 50, 200)
		entries, err := deps.History.BySession(chi.URLParam(r, "id"), limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load history: %v", err)
			return
		}
		if entries == nil {
			entries = []history.Entry{}
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

// writeDomainError maps domain errors to client-facing status codes:
// missing/expired sessions and missing datasets read as not found, engine
// errors from submitted query text read as bad requests, and an engine that
// cannot be created reads as unavailable.
func writeDomainError(w http.ResponseWriter, err error) {
	var execErr *query.ExecError
	switch {
	case errors.Is(err, session.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found", "session not found or expired")
	case errors.Is(err, session.ErrNoDataset):
		httpError(w, http.StatusNotFound, "not_found", "no dataset associated with session")
	case errors.As(err, &execErr):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", execErr)
	case errors.Is(err, query.ErrEngineUnavailable):
		httpError(w, http.StatusServiceUnavailable, "api_error", "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}

func parseIntParam(r *http.Request, name string, def, max int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if max > 0 && n > max {
		return max
	}
	return n
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
