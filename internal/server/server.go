// Package server exposes routing, analysis and the session archive over HTTP.
package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/msageha/tradedesk/internal/coordinator"
	"github.com/msageha/tradedesk/internal/history"
	"github.com/msageha/tradedesk/internal/logger"
	"github.com/msageha/tradedesk/internal/router"
)

const (
	CodeBadRequest   = "BAD_REQUEST"
	CodeNotFound     = "NOT_FOUND"
	CodeNoWorker     = "NO_WORKER"
	CodeWorkerFailed = "WORKER_FAILED"
	CodeCancelled    = "CANCELLED"
	CodeInternal     = "INTERNAL_ERROR"
)

const (
	defaultHistoryLimit = 20
	maxRequestBytes     = 64 << 10
	shutdownTimeout     = 10 * time.Second
)

// Analyzer routes requests and runs sessions.
type Analyzer interface {
	Route(request string) router.Decision
	Run(ctx context.Context, request string) (*coordinator.ConsolidatedArtifact, error)
}

// Archive lists finalized sessions.
type Archive interface {
	List(ctx context.Context, limit int) ([]history.Run, error)
	Get(ctx context.Context, sessionID string) (history.Run, error)
}

type Config struct {
	Analyzer Analyzer
	// History is optional; the history routes answer 404 without it.
	History Archive
	Version string
}

type Response struct {
	Success bool         `json:"success"`
	Data    any          `json:"data,omitempty"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AnalysisRequest is the body of the route and analyses endpoints.
type AnalysisRequest struct {
	Request string `json:"request"`
}

type handlers struct {
	cfg Config
}

// New returns the HTTP handler.
func New(cfg Config) (http.Handler, error) {
	if cfg.Analyzer == nil {
		return nil, errors.New("server: analyzer is required")
	}
	h := &handlers{cfg: cfg}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", h.health)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/route", h.route)
		r.Post("/analyses", h.analyze)
		r.Get("/history", h.listHistory)
		r.Get("/history/{session}", h.getHistory)
	})
	return r, nil
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", addr)
	}
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	logger.G(ctx).WithField("addr", ln.Addr().String()).Info("http server listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "serve")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown http server")
	}
	logger.G(ctx).Info("http server stopped")
	return nil
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		ctx := logger.WithFields(r.Context(), logrus.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
		})
		next.ServeHTTP(ww, r.WithContext(ctx))
		logger.G(ctx).WithField("status", ww.Status()).
			WithField("duration", time.Since(start).String()).
			Debug("http request")
	})
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": h.cfg.Version})
}

func (h *handlers) route(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.cfg.Analyzer.Route(req.Request))
}

func (h *handlers) analyze(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}
	out, err := h.cfg.Analyzer.Run(r.Context(), req.Request)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) listHistory(w http.ResponseWriter, r *http.Request) {
	if h.cfg.History == nil {
		writeFailure(w, http.StatusNotFound, CodeNotFound, "history is disabled")
		return
	}
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeFailure(w, http.StatusBadRequest, CodeBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	runs, err := h.cfg.History.List(r.Context(), limit)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	if runs == nil {
		runs = []history.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *handlers) getHistory(w http.ResponseWriter, r *http.Request) {
	if h.cfg.History == nil {
		writeFailure(w, http.StatusNotFound, CodeNotFound, "history is disabled")
		return
	}
	run, err := h.cfg.History.Get(r.Context(), chi.URLParam(r, "session"))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func decodeRequest(w http.ResponseWriter, r *http.Request) (AnalysisRequest, bool) {
	var req AnalysisRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, CodeBadRequest, "invalid JSON body: "+err.Error())
		return req, false
	}
	req.Request = strings.TrimSpace(req.Request)
	if req.Request == "" {
		writeFailure(w, http.StatusBadRequest, CodeBadRequest, "request is required")
		return req, false
	}
	return req, true
}

// statusFor maps domain errors onto HTTP statuses and error codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, history.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, coordinator.ErrNoWorker):
		return http.StatusUnprocessableEntity, CodeNoWorker
	case errors.Is(err, coordinator.ErrWorkerFailed):
		return http.StatusBadGateway, CodeWorkerFailed
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, CodeCancelled
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, CodeCancelled
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.G(ctx).WithError(err).Warn("request failed")
	}
	writeFailure(w, status, code, err.Error())
}

func writeFailure(w http.ResponseWriter, status int, code, message string) {
	writeResponse(w, status, Response{Error: &ErrorDetail{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	writeResponse(w, status, Response{Success: true, Data: data})
}

func writeResponse(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
