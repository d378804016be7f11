package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"vidsub/internal/deps"
	"vidsub/internal/history"
	"vidsub/internal/logging"
	"vidsub/internal/pipeline"
	"vidsub/internal/services"
	"vidsub/internal/settings"
)

const defaultHistoryLimit = 50

// Controller is the subset of *pipeline.Controller the API drives.
type Controller interface {
	Start(ctx context.Context, req pipeline.Request) (string, error)
	Stop() error
	Status() pipeline.Snapshot
}

// HistoryReader is the subset of *history.Store the API reads.
type HistoryReader interface {
	List(ctx context.Context, limit int) ([]history.Entry, error)
	Get(ctx context.Context, runID string) (history.Entry, error)
}

// Options wires the router to the running components. Controller is
// required; History, Settings and Dependencies are optional.
type Options struct {
	Controller   Controller
	History      HistoryReader
	Settings     *settings.Store
	Dependencies func() []deps.Status
	Hub          *Hub
	Token        string
	Logger       *slog.Logger
}

type handlers struct {
	opts   Options
	logger *slog.Logger
}

// NewRouter constructs a gin engine with every /api route registered.
func NewRouter(opts Options) *gin.Engine {
	if opts.Hub == nil {
		opts.Hub = NewHub()
	}
	h := &handlers{opts: opts, logger: logging.NewComponentLogger(opts.Logger, "api")}

	r := gin.New()
	r.Use(gin.Recovery())

	g := r.Group("/api")
	g.GET("/health", h.health)

	authed := g.Group("", authMiddleware(opts.Token))
	authed.POST("/runs", h.startRun)
	authed.DELETE("/runs/current", h.stopRun)
	authed.GET("/status", h.status)
	authed.GET("/history", h.listHistory)
	authed.GET("/history/:id", h.getHistory)
	authed.GET("/events", h.events)
	return r
}

// authMiddleware validates bearer tokens. An empty token disables
// authentication. Websocket clients that cannot set headers may pass
// ?token= instead.
func authMiddleware(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		provided := c.Query("token")
		if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			provided = strings.TrimPrefix(auth, "Bearer ")
		}
		if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
			return
		}
		c.Next()
	}
}

func (h *handlers) startRun(c *gin.Context) {
	var body StartRunRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid JSON payload: " + err.Error()})
		return
	}
	req := pipeline.Request{Input: strings.TrimSpace(body.Input), OutputDir: strings.TrimSpace(body.OutputDir)}
	req.SRT, req.TXT = h.sinkDefaults()
	if body.SRT != nil {
		req.SRT = *body.SRT
	}
	if body.TXT != nil {
		req.TXT = *body.TXT
	}

	id, err := h.opts.Controller.Start(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if h.opts.Settings != nil {
		if _, err := h.opts.Settings.Remember(req.Input); err != nil {
			h.logger.Debug("remember video dir failed", logging.Error(err))
		}
	}
	c.JSON(http.StatusAccepted, StartRunResponse{RunID: id})
}

func (h *handlers) sinkDefaults() (bool, bool) {
	if h.opts.Settings == nil {
		defaults := settings.Default()
		return defaults.SRTEnabled, defaults.TXTEnabled
	}
	current, err := h.opts.Settings.Load()
	if err != nil {
		logging.WarnWithContext(h.logger, "settings unreadable, using defaults", "settings_load_failed",
			logging.String("path", h.opts.Settings.Path()),
			logging.Error(err))
	}
	return current.SRTEnabled, current.TXTEnabled
}

func (h *handlers) stopRun(c *gin.Context) {
	if err := h.opts.Controller.Stop(); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, FromSnapshot(h.opts.Controller.Status()))
}

func (h *handlers) status(c *gin.Context) {
	c.JSON(http.StatusOK, FromSnapshot(h.opts.Controller.Status()))
}

func (h *handlers) listHistory(c *gin.Context) {
	if h.opts.History == nil {
		c.JSON(http.StatusOK, HistoryResponse{Runs: []HistoryRun{}})
		return
	}
	limit := defaultHistoryLimit
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
			return
		}
		limit = parsed
	}
	entries, err := h.opts.History.List(c.Request.Context(), limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	runs := make([]HistoryRun, 0, len(entries))
	for _, entry := range entries {
		runs = append(runs, FromHistory(entry))
	}
	c.JSON(http.StatusOK, HistoryResponse{Runs: runs})
}

func (h *handlers) getHistory(c *gin.Context) {
	if h.opts.History == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "run not found"})
		return
	}
	entry, err := h.opts.History.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, FromHistory(entry))
}

func (h *handlers) health(c *gin.Context) {
	resp := HealthResponse{Ready: true, Dependencies: []DependencyStatus{}}
	if h.opts.Dependencies != nil {
		resp.Dependencies = FromDependencies(h.opts.Dependencies())
	}
	for _, dep := range resp.Dependencies {
		if !dep.Available && !dep.Optional {
			resp.Ready = false
		}
	}
	code := http.StatusOK
	if !resp.Ready {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, resp)
}

func (h *handlers) writeError(c *gin.Context, err error) {
	code := statusCode(err)
	if code >= http.StatusInternalServerError {
		h.logger.Error("api request failed",
			logging.String("path", c.FullPath()),
			logging.Error(err))
	}
	c.JSON(code, ErrorResponse{Error: err.Error()})
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, services.ErrNotRunning), errors.Is(err, history.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Server runs the router on a TCP listener.
type Server struct {
	bind     string
	logger   *slog.Logger
	listener net.Listener
	server   *http.Server
}

// NewServer wraps handler in an http.Server bound to bind. WriteTimeout is
// left unset so websocket streams stay open.
func NewServer(bind string, handler http.Handler, logger *slog.Logger) *Server {
	return &Server{
		bind:   strings.TrimSpace(bind),
		logger: logging.NewComponentLogger(logger, "api"),
		server: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}
}

// Start listens and serves in the background until ctx is done or Stop is
// called.
func (s *Server) Start(ctx context.Context) error {
	if s.bind == "" {
		return services.Wrap(services.ErrConfiguration, "api", "listen", "server bind address is empty", nil)
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("api server listening",
		logging.String(logging.FieldEventType, "api_listen"),
		logging.String("address", listener.Addr().String()),
	)
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down, waiting up to five seconds for requests.
func (s *Server) Stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
}
