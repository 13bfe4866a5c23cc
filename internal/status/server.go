package status

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rickgao/mmorpg-client/internal/journal"
	"github.com/rickgao/mmorpg-client/internal/probe"
	"github.com/rickgao/mmorpg-client/internal/session"
)

// Pinger checks a backing database. *pgxpool.Pool satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Sources are the snapshots the server reads from.
type Sources struct {
	Session func() session.Status
	Journal func() journal.Metrics      // optional
	DB      Pinger                      // optional
	Service func() (probe.Result, bool) // optional
}

// Server serves health and status over HTTP.
type Server struct {
	addr    string
	src     Sources
	logger  *slog.Logger
	handler http.Handler

	srv      *http.Server
	listener net.Listener
}

// New creates a server that will listen on addr (e.g. ":8080").
func New(addr string, src Sources, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		addr:   addr,
		src:    src,
		logger: logger.With("component", "status"),
	}
	s.handler = s.routes()
	return s
}

// Handler returns the HTTP handler, for mounting or testing.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start binds the listener and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	if s.srv != nil {
		return errors.New("status server already started")
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.listener = ln
	s.srv = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("status server error", "error", err)
		}
	}()

	s.logger.Info("status server started", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address, empty before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	err := s.srv.Shutdown(ctx)
	s.srv = nil
	s.logger.Info("status server stopped")
	return err
}

func (s *Server) routes() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", s.handleHealth)
	r.GET("/status", s.handleStatus)
	if s.src.Journal != nil {
		r.GET("/debug/journal", s.handleJournal)
	}
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
