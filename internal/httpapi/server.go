// Package httpapi exposes pipeline runs as asynchronous jobs over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/joelkehle/jury-instructions/internal/assembly"
	"github.com/joelkehle/jury-instructions/internal/legal"
	"github.com/joelkehle/jury-instructions/internal/pipeline"
	"github.com/joelkehle/jury-instructions/internal/report"
	"github.com/joelkehle/jury-instructions/internal/store"
)

const maxBody = 32 << 20

// Runner executes one case. *pipeline.Pipeline satisfies it.
type Runner interface {
	RunWithProgress(ctx context.Context, req pipeline.Request, progress pipeline.StageProgressFn) (pipeline.Result, error)
}

// JobStore records job lifecycle. *store.Store satisfies it.
type JobStore interface {
	StartJob(ctx context.Context, caseID string, sources []string) (string, error)
	CompleteJob(ctx context.Context, id string, result any) error
	FailJob(ctx context.Context, id, stage string, cause error) error
	GetJob(ctx context.Context, id string) (store.Job, error)
}

type PDFRenderer interface {
	Render(ctx context.Context, title, markdown string) ([]byte, error)
}

type Server struct {
	ctx    context.Context
	runner Runner
	jobs   JobStore
	pdf     PDFRenderer
	logger  *zap.Logger
	timeout time.Duration

	wg       sync.WaitGroup
	mu       sync.Mutex
	progress map[string]string
}

type Option func(*Server)

func WithPDFRenderer(r PDFRenderer) Option {
	return func(s *Server) { s.pdf = r }
}

// WithRunTimeout bounds each background run. Zero leaves runs unbounded.
func WithRunTimeout(d time.Duration) Option {
	return func(s *Server) { s.timeout = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer builds the job API. Background runs inherit ctx, so cancelling it
// stops in-flight jobs.
func NewServer(ctx context.Context, runner Runner, jobs JobStore, opts ...Option) *Server {
	s := &Server{
		ctx:      ctx,
		runner:   runner,
		jobs:     jobs,
		logger:   zap.NewNop(),
		progress: map[string]string{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/health", s.handleHealth)
	mux.HandleFunc("/v1/jobs", s.handleSubmit)
	mux.HandleFunc("/v1/jobs/", s.handleJob)
	return mux
}

// Wait blocks until every background run has recorded its outcome.
func (s *Server) Wait() { s.wg.Wait() }

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type submitRequest struct {
	CaseID      string          `json:"case_id"`
	Complaint   []string        `json:"complaint"`
	Answer      []string        `json:"answer"`
	WitnessList []string        `json:"witness_list"`
	Config      assembly.Config `json:"config"`
	Sources     []string        `json:"sources"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	var in submitRequest
	if err := json.Unmarshal(body, &in); err != nil {
		writeError(w, http.StatusBadRequest, "request body must be a JSON object")
		return
	}
	req := pipeline.Request{
		CaseID:      strings.TrimSpace(in.CaseID),
		Complaint:   in.Complaint,
		Answer:      in.Answer,
		WitnessList: in.WitnessList,
		Config:      in.Config,
	}
	if err := req.Validate(); err != nil {
		var ve *legal.ValidationError
		if errors.As(err, &ve) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error(), "field": ve.Field})
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := s.jobs.StartJob(r.Context(), req.CaseID, in.Sources)
	if err != nil {
		s.logger.Error("start job", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to record job")
		return
	}
	s.setProgress(id, pipeline.StageValidate)
	s.wg.Add(1)
	go s.execute(id, req)

	writeJSON(w, http.StatusAccepted, map[string]any{"job_id": id, "status": store.StatusProcessing})
}

func (s *Server) execute(id string, req pipeline.Request) {
	defer s.wg.Done()
	defer s.clearProgress(id)
	log := s.logger.With(zap.String("job_id", id), zap.String("case_id", req.CaseID))

	runCtx := s.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(s.ctx, s.timeout)
		defer cancel()
	}
	res, err := s.runner.RunWithProgress(runCtx, req, func(stage, message string) {
		s.setProgress(id, stage)
		log.Debug(message, zap.String("stage", stage))
	})
	// The outcome is recorded even when the server context is gone.
	ctx := context.WithoutCancel(s.ctx)
	if err != nil {
		stage := pipeline.StageNameFromError(err)
		log.Warn("job failed", zap.String("stage", stage), zap.Error(err))
		if ferr := s.jobs.FailJob(ctx, id, stage, err); ferr != nil {
			log.Error("record failure", zap.Error(ferr))
		}
		return
	}
	if cerr := s.jobs.CompleteJob(ctx, id, res); cerr != nil {
		log.Error("record result", zap.Error(cerr))
		return
	}
	log.Info("job complete", zap.Int("instructions", len(res.Instructions)))
}

func (s *Server) setProgress(id, stage string) {
	s.mu.Lock()
	s.progress[id] = stage
	s.mu.Unlock()
}

func (s *Server) clearProgress(id string) {
	s.mu.Lock()
	delete(s.progress, id)
	s.mu.Unlock()
}

func (s *Server) currentStage(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress[id]
}

// handleJob serves /v1/jobs/{id}, /v1/jobs/{id}/result and /v1/jobs/{id}/report.
func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/jobs/"), "/")
	id, sub, _ := strings.Cut(path, "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "job id is required")
		return
	}
	job, err := s.jobs.GetJob(r.Context(), id)
	if errors.Is(err, store.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		s.logger.Error("get job", zap.String("job_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}

	switch sub {
	case "":
		s.writeStatus(w, job)
	case "result":
		if job.Status != store.StatusComplete {
			writeError(w, http.StatusConflict, "job is "+strings.ToLower(job.Status))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(job.Result)
	case "report":
		s.writeReport(w, r, job)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) writeStatus(w http.ResponseWriter, job store.Job) {
	stage := job.Stage
	if job.Status == store.StatusProcessing {
		stage = s.currentStage(job.ID)
	}
	payload := map[string]any{
		"job_id":     job.ID,
		"case_id":    job.CaseID,
		"status":     job.Status,
		"sources":    job.Sources,
		"created_at": job.CreatedAt.Format(time.RFC3339),
		"updated_at": job.UpdatedAt.Format(time.RFC3339),
	}
	if stage != "" {
		payload["stage"] = stage
	}
	if job.Error != "" {
		payload["error"] = job.Error
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) writeReport(w http.ResponseWriter, r *http.Request, job store.Job) {
	if job.Status != store.StatusComplete {
		writeError(w, http.StatusConflict, "job is "+strings.ToLower(job.Status))
		return
	}
	var res pipeline.Result
	if err := json.Unmarshal(job.Result, &res); err != nil {
		writeError(w, http.StatusInternalServerError, "stored result is unreadable")
		return
	}
	md := report.BuildMarkdown(res)
	title := "Jury Instructions " + res.CaseID

	switch format := r.URL.Query().Get("format"); format {
	case "", "md":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(md))
	case "html":
		doc, err := report.Document(title, md)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to render html")
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(doc))
	case "pdf":
		if s.pdf == nil {
			writeError(w, http.StatusServiceUnavailable, "pdf renderer unavailable")
			return
		}
		pdf, err := s.pdf.Render(r.Context(), title, md)
		if err != nil {
			s.logger.Error("render pdf", zap.String("job_id", job.ID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to render pdf")
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", sanitizeFilename(res.CaseID)+".pdf"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(pdf)
	default:
		writeError(w, http.StatusBadRequest, "format must be md, html or pdf")
	}
}

func sanitizeFilename(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "jury-instructions"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, v)
}
