package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/lore/internal/config"
	"github.com/hyperjump/lore/internal/transfer"
	loreerr "github.com/hyperjump/lore/pkg/errors"
	"github.com/hyperjump/lore/pkg/lore"
	"github.com/hyperjump/lore/pkg/models"
)

// defaultMaxImportBytes caps import request bodies.
const defaultMaxImportBytes = 32 << 20

type queryRequest struct {
	models.LessonQuery
	// Prompt adds the results rendered for a system prompt.
	Prompt    bool `json:"prompt,omitempty"`
	MaxTokens int  `json:"max_tokens,omitempty"`
}

type queryResponse struct {
	Results []*models.QueryResult `json:"results"`
	Prompt  *string               `json:"prompt,omitempty"`
}

type searchRequest struct {
	Text string `json:"text"`
	K    int    `json:"k,omitempty"`
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	var input models.LessonInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondBadRequest(w, "invalid request body")
		return
	}
	id, err := s.engine.Publish(r.Context(), input)
	if err != nil {
		s.respondError(w, "publish failed", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	lessons, err := s.engine.List(r.Context())
	if err != nil {
		s.respondError(w, "list failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"lessons": lessons, "count": len(lessons)})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	lesson, err := s.engine.Get(r.Context(), id)
	if err != nil {
		s.respondError(w, "get failed", err)
		return
	}
	if lesson == nil {
		s.respondNotFound(w, id)
		return
	}
	s.respondJSON(w, http.StatusOK, lesson)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	deleted, err := s.engine.Delete(r.Context(), id)
	if err != nil {
		s.respondError(w, "delete failed", err)
		return
	}
	if !deleted {
		s.respondNotFound(w, id)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondBadRequest(w, "invalid request body")
		return
	}
	results, err := s.engine.QueryWith(r.Context(), req.LessonQuery)
	if err != nil {
		s.respondError(w, "query failed", err)
		return
	}
	resp := queryResponse{Results: results}
	if req.Prompt {
		opts := lore.DefaultPromptOptions()
		if s.config != nil && s.config.Lore.PromptMaxTokens > 0 {
			opts.MaxTokens = s.config.Lore.PromptMaxTokens
		}
		if req.MaxTokens > 0 {
			opts.MaxTokens = req.MaxTokens
		}
		prompt := s.engine.AsPromptWith(results, opts)
		resp.Prompt = &prompt
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondBadRequest(w, "invalid request body")
		return
	}
	results, err := s.engine.KeywordSearch(r.Context(), req.Text, req.K)
	if err != nil {
		s.respondError(w, "search failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, queryResponse{Results: results})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := transfer.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.respondError(w, "export failed", err)
		return
	}
	lessons, err := s.engine.Export(r.Context())
	if err != nil {
		s.respondError(w, "export failed", err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="lessons.`+string(format)+`"`)
	if err := transfer.Encode(w, format, lessons); err != nil {
		s.logger.Error("export encode failed", zap.Error(err))
	}
}

// handleImport reads an export body. The format comes from ?format= or the
// Content-Type, defaulting to JSON.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("format")
	if name == "" && r.Header.Get("Content-Type") == transfer.FormatXLSX.ContentType() {
		name = string(transfer.FormatXLSX)
	}
	format, err := transfer.ParseFormat(name)
	if err != nil {
		s.respondError(w, "import failed", err)
		return
	}
	lessons, err := transfer.Decode(http.MaxBytesReader(w, r.Body, s.maxImportBytes), format)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			err = loreerr.Errorf(loreerr.CodeServerRequestTooLarge, "import body exceeds %d bytes", tooLarge.Limit)
		}
		s.respondError(w, "import failed", err)
		return
	}
	n, err := s.engine.Import(r.Context(), lessons)
	if err != nil {
		s.respondError(w, "import failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]int{"imported": n, "skipped": len(lessons) - n})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.Stats(r.Context())
	if err != nil {
		s.respondError(w, "status failed", err)
		return
	}
	resp := map[string]any{
		"lessons":    stats.Lessons,
		"dimensions": stats.Dimensions,
		"redaction":  stats.Redaction,
		"default_k":  stats.DefaultK,
		"cache":      stats.Cache,
		"disk_bytes": stats.DiskBytes,
	}
	if s.config != nil {
		resp["config"] = map[string]any{
			"storage_backend":    s.config.Storage.Backend,
			"database_path":      s.config.Storage.DatabasePath,
			"embedding_provider": s.config.Embedding.Provider,
			"rate_limit":         s.config.RateLimit.Enabled,
		}
	}
	if s.inbox != nil {
		resp["inbox"] = s.inbox.Stats()
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWatchDirectoriesList(w http.ResponseWriter, r *http.Request) {
	if s.inbox == nil {
		s.respondNotImplemented(w, "watch not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"directories": s.inbox.Directories()})
}

type watchRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleWatchDirectoriesAdd(w http.ResponseWriter, r *http.Request) {
	if s.inbox == nil {
		s.respondNotImplemented(w, "watch not enabled")
		return
	}
	var req watchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondBadRequest(w, "invalid request body")
		return
	}
	if req.Path == "" {
		s.respondBadRequest(w, "path is required")
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		s.respondBadRequest(w, "invalid path")
		return
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			s.respondJSON(w, http.StatusNotFound, errorBody{Error: "directory not found", Code: string(loreerr.CodeServerEntityNotFound)})
			return
		}
		s.respondError(w, "watch add directory failed", err)
		return
	}
	if !info.IsDir() {
		s.respondBadRequest(w, "path is not a directory")
		return
	}
	if err := s.inbox.AddDirectory(abs); err != nil {
		s.respondError(w, "watch add directory failed", err)
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleWatchDirectoriesRemove(w http.ResponseWriter, r *http.Request) {
	if s.inbox == nil {
		s.respondNotImplemented(w, "watch not enabled")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		var req watchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			path = req.Path
		}
	}
	if path == "" {
		s.respondBadRequest(w, "path is required (query or body)")
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondBadRequest(w, "invalid path")
		return
	}
	if err := s.inbox.RemoveDirectory(abs); err != nil {
		s.respondError(w, "watch remove directory failed", err)
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

// persistWatchDirectories writes the inbox directories back to the config file.
func (s *Server) persistWatchDirectories() {
	if s.configPath == "" || s.config == nil {
		return
	}
	s.configMu.Lock()
	defer s.configMu.Unlock()
	dirs := s.inbox.Directories()
	s.config.Watch.Directories = dirs
	if err := config.SaveWatchDirectories(s.configPath, dirs); err != nil {
		s.logger.Warn("failed to persist watch config", zap.Error(err))
	}
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// respondError maps err to a status and logs server-side failures.
func (s *Server) respondError(w http.ResponseWriter, msg string, err error) {
	status := loreerr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(msg, zap.Error(err))
	} else {
		s.logger.Debug(msg, zap.Error(err))
	}
	s.respondJSON(w, status, errorBody{Error: err.Error(), Code: string(loreerr.CodeOf(err))})
}

func (s *Server) respondBadRequest(w http.ResponseWriter, msg string) {
	s.respondJSON(w, http.StatusBadRequest, errorBody{Error: msg, Code: string(loreerr.CodeServerRequestInvalid)})
}

func (s *Server) respondNotFound(w http.ResponseWriter, id string) {
	s.respondJSON(w, http.StatusNotFound, errorBody{Error: "lesson not found: " + id, Code: string(loreerr.CodeServerEntityNotFound)})
}

func (s *Server) respondNotImplemented(w http.ResponseWriter, msg string) {
	s.respondJSON(w, http.StatusNotImplemented, errorBody{Error: msg, Code: string(loreerr.CodeEngineNotImplemented)})
}
