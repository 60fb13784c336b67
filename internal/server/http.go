package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/joseph-ayodele/ocr-enricher/internal/common"
	"github.com/joseph-ayodele/ocr-enricher/internal/entity"
	"github.com/joseph-ayodele/ocr-enricher/internal/progress"
	"github.com/joseph-ayodele/ocr-enricher/internal/services/jobs"
)

// JobService is what the transports need from the jobs service.
type JobService interface {
	Submit(ctx context.Context, req jobs.SubmitRequest) (*entity.Job, error)
	Progress(ctx context.Context, id string) (progress.Report, error)
	Result(ctx context.Context, id string) (string, error)
	List(ctx context.Context, limit int) ([]*entity.Job, error)
	Watch(ctx context.Context, id string) (<-chan progress.Report, func(), error)
}

// Exporter renders the job history as a spreadsheet.
type Exporter interface {
	ExportJobsXLSX(ctx context.Context, from, to *time.Time) ([]byte, error)
}

type Options struct {
	MaxUploadBytes      int64
	DefaultStrategy     string
	DefaultCacheEnabled bool
	RequestTimeout      time.Duration
	HealthTimeout       time.Duration
}

// API holds the HTTP handlers' dependencies.
type API struct {
	jobs     JobService
	exporter Exporter
	checks   []Check
	opts     Options
	logger   *slog.Logger
}

func NewAPI(svc JobService, exporter Exporter, checks []Check, opts Options, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 64 << 20
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	if opts.HealthTimeout <= 0 {
		opts.HealthTimeout = 3 * time.Second
	}
	return &API{jobs: svc, exporter: exporter, checks: checks, opts: opts, logger: logger}
}

// Router sets up and returns the HTTP routes.
func (a *API) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(a.logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", a.handleHealth)

	r.Route("/api/jobs", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(a.opts.RequestTimeout))

			r.Post("/", a.handleSubmit)
			r.Get("/", a.handleList)
			r.Get("/export.xlsx", a.handleExport)
			r.Get("/{jobID}", a.handleProgress)
			r.Get("/{jobID}/result", a.handleResult)
		})
		// long-lived; no request timeout
		r.Get("/{jobID}/ws", a.handleWatch)
	})

	return r
}

// requestLogger logs one line per request and carries chi's request id into the context.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := middleware.GetReqID(r.Context())
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ctx := common.WithRequestID(r.Context(), reqID)

			next.ServeHTTP(ww, r.WithContext(ctx))

			logger.Info("http.request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"elapsed_ms", time.Since(start).Milliseconds(),
				"req_id", reqID,
			)
		})
	}
}

type jobResponse struct {
	ID          string `json:"id"`
	Phase       string `json:"phase"`
	Percent     int    `json:"percent"`
	Strategy    string `json:"strategy"`
	Fingerprint string `json:"fingerprint"`
	Source      string `json:"source,omitempty"`
	CreatedAt   string `json:"created_at"`
	FinishedAt  string `json:"finished_at,omitempty"`
	ErrorKind   string `json:"error_kind,omitempty"`
}

func toJobResponse(j *entity.Job) jobResponse {
	out := jobResponse{
		ID:          j.ID,
		Phase:       string(j.Phase),
		Percent:     j.Percent,
		Strategy:    string(j.Strategy),
		Fingerprint: j.Fingerprint,
		Source:      j.Source,
		CreatedAt:   j.CreatedAt.Format(time.RFC3339Nano),
		ErrorKind:   j.ErrorKind,
	}
	if j.FinishedAt != nil {
		out.FinishedAt = j.FinishedAt.Format(time.RFC3339Nano)
	}
	return out
}

// handleSubmit accepts either a multipart form with a "document" file part or
// a raw application/pdf body. Options come from form fields or query parameters.
func (a *API) handleSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.opts.MaxUploadBytes)

	var (
		doc    []byte
		source string
		err    error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		doc, source, err = readMultipart(r, a.opts.MaxUploadBytes)
	} else {
		doc, err = io.ReadAll(r.Body)
		source = r.URL.Query().Get("source")
		if err == nil && len(doc) == 0 {
			err = errors.New("request body is empty")
		}
	}
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			RespondWithError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("document exceeds %d bytes", tooBig.Limit))
			return
		}
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	// FormValue covers both multipart fields and query parameters
	field := r.FormValue
	cacheEnabled := a.opts.DefaultCacheEnabled
	if v := field("cache"); v != "" {
		b, perr := strconv.ParseBool(v)
		if perr != nil {
			RespondWithError(w, http.StatusBadRequest, "cache must be a boolean")
			return
		}
		cacheEnabled = b
	}
	strategy := field("strategy")
	if strategy == "" {
		strategy = a.opts.DefaultStrategy
	}

	job, err := a.jobs.Submit(r.Context(), jobs.SubmitRequest{
		Document:     doc,
		Strategy:     strategy,
		Fingerprint:  field("fingerprint"),
		CacheEnabled: cacheEnabled,
		Prompt:       field("prompt"),
		Model:        field("model"),
		Source:       source,
	})
	if err != nil {
		respondWithErr(w, err)
		return
	}
	w.Header().Set("Location", "/api/jobs/"+job.ID)
	RespondWithJSON(w, http.StatusAccepted, toJobResponse(job))
}

func readMultipart(r *http.Request, limit int64) ([]byte, string, error) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return nil, "", err
	}
	file, header, err := r.FormFile("document")
	if err != nil {
		return nil, "", fmt.Errorf("document file part is required: %w", err)
	}
	defer file.Close()
	doc, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return nil, "", err
	}
	if int64(len(doc)) > limit {
		return nil, "", &http.MaxBytesError{Limit: limit}
	}
	return doc, header.Filename, nil
}

func (a *API) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			RespondWithError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	list, err := a.jobs.List(r.Context(), limit)
	if err != nil {
		respondWithErr(w, err)
		return
	}
	out := make([]jobResponse, 0, len(list))
	for _, j := range list {
		out = append(out, toJobResponse(j))
	}
	RespondWithJSON(w, http.StatusOK, map[string]any{"jobs": out})
}

func (a *API) handleProgress(w http.ResponseWriter, r *http.Request) {
	rep, err := a.jobs.Progress(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		respondWithErr(w, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, rep)
}

func (a *API) handleResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	text, err := a.jobs.Result(r.Context(), id)
	if err != nil {
		respondWithErr(w, err)
		return
	}
	if strings.Contains(r.Header.Get("Accept"), "text/plain") {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, text)
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]string{"id": id, "result": text})
}

func (a *API) handleExport(w http.ResponseWriter, r *http.Request) {
	from, err := parseDate(r.URL.Query().Get("from"), false)
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, "from must be YYYY-MM-DD")
		return
	}
	to, err := parseDate(r.URL.Query().Get("to"), true)
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, "to must be YYYY-MM-DD")
		return
	}
	xlsx, err := a.exporter.ExportJobsXLSX(r.Context(), from, to)
	if err != nil {
		a.logger.Error("export.xlsx.failed", "error", err)
		respondWithErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="jobs.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(xlsx)
}

// parseDate reads YYYY-MM-DD; endOfDay makes the bound inclusive.
func parseDate(s string, endOfDay bool) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	ok, results := RunChecks(r.Context(), a.checks, a.opts.HealthTimeout)
	status := http.StatusOK
	state := "ok"
	if !ok {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}
	RespondWithJSON(w, status, map[string]any{"status": state, "checks": results})
}
