package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/seoforge/orchestrator/internal/engine"
	"github.com/seoforge/orchestrator/internal/workflow"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("content-type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleWorkflows(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	type item struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	items := make([]item, 0)
	for _, plan := range workflow.Plans() {
		items = append(items, item{Name: plan.Name, Description: plan.Description})
	}
	writeJSON(w, map[string]any{"items": items})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body := readBody(r)
	if len(body) == 0 {
		http.Error(w, "request body required", http.StatusBadRequest)
		return
	}
	req, err := workflow.ParseRequest(body)
	if err != nil {
		s.writeError(w, err)
		return
	}
	run, err := s.engine.Submit(req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(run)
}

func (s *Server) handleRunByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/runs/")
	if path == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	parts := strings.Split(path, "/")
	id := parts[0]
	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}

	switch r.Method {
	case http.MethodGet:
		switch action {
		case "":
			run, err := s.engine.Run(id)
			if err != nil {
				s.writeError(w, err)
				return
			}
			writeJSON(w, run)
		case "progress":
			progress, err := s.engine.Progress(id)
			if err != nil {
				s.writeError(w, err)
				return
			}
			writeJSON(w, progress)
		case "result":
			result, err := s.engine.Result(id)
			if err != nil {
				s.writeError(w, err)
				return
			}
			writeJSON(w, result)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	case http.MethodPost:
		var err error
		switch action {
		case "pause":
			err = s.engine.Pause(id)
		case "resume":
			err = s.engine.Resume(id)
		case "cancel":
			err = s.engine.Cancel(id)
		default:
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if err != nil {
			s.writeError(w, err)
			return
		}
		run, err := s.engine.Run(id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, run)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// archiveReader is the query surface the Postgres archive provides on top
// of the write-only Archive interface.
type archiveReader interface {
	GetResult(ctx context.Context, runID string) (workflow.Result, error)
	ListResults(ctx context.Context, target string, limit int) ([]workflow.Result, error)
}

func (s *Server) handleArchiveList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	reader, ok := s.archive.(archiveReader)
	if !ok {
		http.Error(w, "archive not configured", http.StatusNotFound)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := reader.ListResults(r.Context(), r.URL.Query().Get("target"), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"items": results})
}

func (s *Server) handleArchiveByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	reader, ok := s.archive.(archiveReader)
	if !ok {
		http.Error(w, "archive not configured", http.StatusNotFound)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/archive/")
	if id == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	result, err := reader.GetResult(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, result)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var verr *workflow.ValidationError
	switch {
	case errors.As(err, &verr):
		http.Error(w, verr.Error(), http.StatusBadRequest)
	case errors.Is(err, workflow.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, workflow.ErrTerminal),
		errors.Is(err, workflow.ErrInvalidTransition),
		errors.Is(err, engine.ErrRunActive):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		s.logger.Error("request failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("content-type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func readBody(r *http.Request) []byte {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	b, _ := io.ReadAll(r.Body)
	return b
}
