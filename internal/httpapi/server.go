package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/starnet/starwatch/internal/metrics"
	"github.com/starnet/starwatch/internal/model"
	"github.com/starnet/starwatch/internal/state"
	"github.com/starnet/starwatch/internal/syncer"
)

// Dashboard is the controller surface the API exposes.
type Dashboard interface {
	CurrentSnapshot() state.Snapshot
	Subscribe(fn state.Listener) (unsubscribe func())
	RetryFailedEndpoints(ctx context.Context) map[model.Endpoint]syncer.Outcome
	RefreshAll(ctx context.Context) map[model.Endpoint]syncer.Outcome
	SubmitEdit(ctx context.Context, ep model.Endpoint, row map[string]any) error
	QueryCounterpartyWindow(ctx context.Context, counterparty string, days int) []model.DayUsage
	CounterpartyPayments(key string) []model.Payment
	Theme() string
	ToggleTheme(ctx context.Context) (string, error)
	ClearCache(ctx context.Context) error
}

const (
	defaultReadTimeout  = 15 * time.Second
	defaultWriteTimeout = 60 * time.Second
	defaultIdleTimeout  = 120 * time.Second
	shutdownTimeout     = 5 * time.Second
	maxEditBody         = 1 << 20
)

// Server serves the dashboard over JSON and a websocket stream.
type Server struct {
	dash     Dashboard
	metrics  *metrics.Recorder
	log      zerolog.Logger
	router   *mux.Router
	upgrader websocket.Upgrader
}

// New builds the router. rec may be nil.
func New(dash Dashboard, rec *metrics.Recorder, logger zerolog.Logger) *Server {
	s := &Server{
		dash:    dash,
		metrics: rec,
		log:     logger.With().Str("component", "httpapi").Logger(),
		router:  mux.NewRouter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Handle("/healthz", http.HandlerFunc(s.handleHealth)).Methods(http.MethodGet)
	s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	s.handle(api, "/snapshot", "snapshot", s.handleSnapshot, http.MethodGet)
	s.handle(api, "/failed", "failed", s.handleFailed, http.MethodGet)
	s.handle(api, "/retry", "retry", s.handleRetry, http.MethodPost)
	s.handle(api, "/refresh", "refresh", s.handleRefresh, http.MethodPost)
	s.handle(api, "/edit/{endpoint}", "edit", s.handleEdit, http.MethodPost)
	s.handle(api, "/counterparty/{key}/window", "window", s.handleWindow, http.MethodGet)
	s.handle(api, "/counterparty/{key}/payments", "payments", s.handlePayments, http.MethodGet)
	s.handle(api, "/theme", "theme", s.handleTheme, http.MethodGet)
	s.handle(api, "/theme/toggle", "theme_toggle", s.handleToggleTheme, http.MethodPost)
	s.handle(api, "/cache", "cache_clear", s.handleClearCache, http.MethodDelete)
	s.handle(api, "/stream", "stream", s.handleStream, http.MethodGet)
}

func (s *Server) handle(r *mux.Router, path, name string, fn http.HandlerFunc, method string) {
	r.Handle(path, s.metrics.WrapHandler(name, fn)).Methods(method).Name(name)
}

// Handler returns the router wrapped with panic recovery, CORS and access
// logging.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.router
	h = handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)(h)
	h = handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{s.log}), handlers.PrintRecoveryStack(false))(h)
	return handlers.CustomLoggingHandler(io.Discard, h, s.logRequest)
}

func (s *Server) logRequest(_ io.Writer, p handlers.LogFormatterParams) {
	s.log.Debug().
		Str("method", p.Request.Method).
		Str("path", p.URL.Path).
		Int("status", p.StatusCode).
		Int("size", p.Size).
		Dur("duration", time.Since(p.TimeStamp)).
		Msg("http request")
}

type recoveryLogger struct{ log zerolog.Logger }

func (l recoveryLogger) Println(v ...any) {
	l.log.Error().Msg(fmt.Sprint(v...))
}

// Run serves on addr until ctx is done, then shuts down gracefully. Stream
// connections are closed when ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
		IdleTimeout:  defaultIdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.Info().Str("addr", ln.Addr().String()).Msg("http api listening")

	select {
	case err := <-errCh:
		return fmt.Errorf("serve http: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve http: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.dash.CurrentSnapshot())
}

func (s *Server) handleFailed(w http.ResponseWriter, _ *http.Request) {
	failed := s.dash.CurrentSnapshot().Failed()
	if failed == nil {
		failed = []state.FailedEndpoint{}
	}
	writeJSON(w, http.StatusOK, failed)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, outcomeBody(s.dash.RetryFailedEndpoints(r.Context())))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, outcomeBody(s.dash.RefreshAll(r.Context())))
}

type editRequest struct {
	Row map[string]any `json:"row"`
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	ep, err := model.ParseEndpoint(mux.Vars(r)["endpoint"])
	if err != nil {
		writeError(w, err.Error(), http.StatusNotFound)
		return
	}

	var req editRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxEditBody)).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Row) == 0 {
		writeError(w, "row is required", http.StatusBadRequest)
		return
	}

	if err := s.dash.SubmitEdit(r.Context(), ep, req.Row); err != nil {
		writeError(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (s *Server) handleWindow(w http.ResponseWriter, r *http.Request) {
	days := 0
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, "days must be a non-negative integer", http.StatusBadRequest)
			return
		}
		days = n
	}
	writeJSON(w, http.StatusOK, s.dash.QueryCounterpartyWindow(r.Context(), mux.Vars(r)["key"], days))
}

func (s *Server) handlePayments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.dash.CounterpartyPayments(mux.Vars(r)["key"]))
}

func (s *Server) handleTheme(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"theme": s.dash.Theme()})
}

func (s *Server) handleToggleTheme(w http.ResponseWriter, r *http.Request) {
	theme, err := s.dash.ToggleTheme(r.Context())
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"theme": theme})
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	if err := s.dash.ClearCache(r.Context()); err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func outcomeBody(outcomes map[model.Endpoint]syncer.Outcome) map[string]string {
	body := make(map[string]string, len(outcomes))
	for ep, out := range outcomes {
		body[string(ep)] = out.String()
	}
	return body
}

type errorResponse struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, errorResponse{Message: message, Status: status})
}
