package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/texforge/texforge/internal/compile"
	"github.com/texforge/texforge/internal/engine"
	"github.com/texforge/texforge/internal/eqdoc"
	apperrors "github.com/texforge/texforge/internal/errors"
	"github.com/texforge/texforge/internal/gitsource"
	"github.com/texforge/texforge/internal/history"
	"github.com/texforge/texforge/internal/logfields"
)

// statusClientClosedRequest mirrors the nginx convention for requests the
// client abandoned before a response was produced.
const statusClientClosedRequest = 499

// renderRequest is the JSON submission shape. Exactly one source form must
// be provided: inline LaTeX, a raw equation list, or a git reference.
type renderRequest struct {
	Source           string             `json:"source,omitempty"`
	EquationsRaw     string             `json:"equations_raw,omitempty"`
	Title            string             `json:"title,omitempty"`
	PageBreakBetween bool               `json:"page_break_between,omitempty"`
	Git              *gitsource.Request `json:"git,omitempty"`

	Engine string `json:"engine,omitempty"` // per-job override
}

type errorResponse struct {
	JobID   string           `json:"job_id,omitempty"`
	Error   string           `json:"error"`
	Failure *compile.Failure `json:"failure,omitempty"`
	Passes  int              `json:"passes,omitempty"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Version   string    `json:"version,omitempty"`
	Uptime    float64   `json:"uptime"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxSourceBytes)

	source, opts, err := s.resolveSubmission(r)
	if err != nil {
		s.writeRequestError(w, err)
		return
	}

	res := s.builder.Build(r.Context(), source, opts)
	s.recordResult(r.Context(), res, opts)

	if res.Succeeded() {
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("X-Job-Id", res.JobID)
		w.Header().Set("X-Passes", strconv.Itoa(res.Passes))
		w.Header().Set("X-Pages", strconv.Itoa(res.Pages))
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(res.Artifact); err != nil {
			slog.Warn("Failed writing artifact response", logfields.JobID(res.JobID), logfields.Error(err))
		}
		return
	}

	writeJSON(w, statusForKind(res.Failure.Kind), errorResponse{
		JobID:   res.JobID,
		Error:   res.Failure.Diagnostic.Message,
		Failure: res.Failure,
		Passes:  res.Passes,
	})
}

// resolveSubmission parses the request body into source bytes plus the
// effective build options.
func (s *Server) resolveSubmission(r *http.Request) ([]byte, compile.Options, error) {
	opts := s.currentLimits()

	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct != "application/json" {
		// Raw submission: the body is the document itself.
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(r.Body); err != nil {
			return nil, opts, err
		}
		if buf.Len() == 0 {
			return nil, opts, apperrors.ValidationError("request body must not be empty")
		}
		return buf.Bytes(), opts, nil
	}

	var req renderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, opts, err
		}
		return nil, opts, apperrors.ValidationError(fmt.Sprintf("invalid JSON body: %v", err))
	}

	if req.Engine != "" {
		v := engine.Variant(req.Engine)
		if !v.Valid() {
			return nil, opts, apperrors.ValidationError(fmt.Sprintf("unsupported engine %q", req.Engine))
		}
		opts.Engine = v
	}

	forms := 0
	for _, present := range []bool{req.Source != "", req.EquationsRaw != "", req.Git != nil} {
		if present {
			forms++
		}
	}
	if forms != 1 {
		return nil, opts, apperrors.ValidationError("exactly one of source, equations_raw, or git must be provided")
	}

	switch {
	case req.Source != "":
		return []byte(req.Source), opts, nil
	case req.EquationsRaw != "":
		doc, err := eqdoc.Build(eqdoc.Request{
			EquationsRaw:     req.EquationsRaw,
			Title:            req.Title,
			PageBreakBetween: req.PageBreakBetween,
		})
		if err != nil {
			return nil, opts, apperrors.ValidationError(err.Error())
		}
		return doc, opts, nil
	default:
		if s.fetcher == nil {
			return nil, opts, apperrors.ValidationError("git sources are not enabled")
		}
		src, err := s.fetcher.Fetch(r.Context(), *req.Git)
		if err != nil {
			return nil, opts, err
		}
		return src, opts, nil
	}
}

// writeRequestError maps submission errors to HTTP statuses.
func (s *Server) writeRequestError(w http.ResponseWriter, err error) {
	var maxErr *http.MaxBytesError
	status := http.StatusBadRequest
	switch {
	case errors.As(err, &maxErr):
		status = http.StatusRequestEntityTooLarge
	case apperrors.IsCategory(err, apperrors.CategoryValidation):
		status = http.StatusBadRequest
	case apperrors.IsCategory(err, apperrors.CategoryGit), apperrors.IsCategory(err, apperrors.CategoryNetwork):
		status = http.StatusBadGateway
	case errors.Is(err, context.Canceled):
		status = statusClientClosedRequest
	default:
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Version:   s.version,
		Uptime:    time.Since(s.startTime).Seconds(),
		Timestamp: time.Now(),
	})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "job history is disabled"})
		return
	}
	entry, err := s.store.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, history.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown job"})
		return
	}
	if err != nil {
		slog.Error("Job lookup failed", logfields.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "job lookup failed"})
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleJobList(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "job history is disabled"})
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}
	entries, err := s.store.Recent(r.Context(), limit)
	if err != nil {
		slog.Error("Job listing failed", logfields.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "job listing failed"})
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// recordResult persists the terminal outcome. History failures never affect
// the client response.
func (s *Server) recordResult(ctx context.Context, res *compile.Result, opts compile.Options) {
	if s.store == nil {
		return
	}
	entry := history.Entry{
		JobID:    res.JobID,
		Status:   "succeeded",
		Engine:   string(opts.Engine),
		Passes:   res.Passes,
		Pages:    res.Pages,
		Duration: res.Duration.Milliseconds(),
	}
	if res.Failure != nil {
		entry.Status = "failed"
		entry.FailureKind = string(res.Failure.Kind)
		entry.Diagnostic = res.Failure.Diagnostic.Message
	}
	if err := s.store.Record(context.WithoutCancel(ctx), entry); err != nil {
		slog.Warn("Failed to record job history", logfields.JobID(res.JobID), logfields.Error(err))
	}
}

// statusForKind maps the failure taxonomy onto HTTP statuses.
func statusForKind(kind compile.FailureKind) int {
	switch kind {
	case compile.CompileError, compile.ConvergenceFailed:
		return http.StatusUnprocessableEntity
	case compile.Timeout:
		return http.StatusGatewayTimeout
	case compile.ResourceExhausted, compile.EngineUnavailable:
		return http.StatusServiceUnavailable
	case compile.Cancelled:
		return statusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON encodes into a buffer first so serialization failures never send
// a partial body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		slog.Error("Failed encoding JSON response", logfields.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Error("Failed writing JSON response body", logfields.Error(err))
	}
}

func engineVariant(name string) engine.Variant { return engine.Variant(name) }
