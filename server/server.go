package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/poiesic/embedsearch/core"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

const (
	// DefaultAddr listens on all interfaces, port 5000.
	DefaultAddr = "0.0.0.0:5000"

	// DefaultRequestTimeout bounds a single search request.
	DefaultRequestTimeout = 30 * time.Second

	defaultShutdownTimeout = 10 * time.Second
)

// ErrServiceRequired is returned when no search service is provided.
var ErrServiceRequired = errors.New("search service required")

// Searcher is the part of the search service the HTTP layer needs.
type Searcher interface {
	Search(ctx context.Context, query string) ([]*core.SearchResult, error)
}

// Server exposes the search service over HTTP.
type Server struct {
	service         Searcher
	model           string
	requestTimeout  time.Duration
	shutdownTimeout time.Duration
	limiter         *rate.Limiter
	inflight        *semaphore.Weighted
	logger          *slog.Logger
	engine          *gin.Engine
}

// Option configures a Server.
type Option func(*Server) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithModel sets the model identifier reported by /health.
func WithModel(model string) Option {
	return func(s *Server) error {
		s.model = model
		return nil
	}
}

// WithRequestTimeout bounds each search. Zero disables the limit.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) error {
		if d < 0 {
			return fmt.Errorf("request timeout must not be negative")
		}
		s.requestTimeout = d
		return nil
	}
}

// WithShutdownTimeout bounds graceful shutdown in Run.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) error {
		s.shutdownTimeout = d
		return nil
	}
}

// WithRateLimit limits /search to rps requests per second with the given
// burst. rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) error {
		if rps <= 0 {
			s.limiter = nil
			return nil
		}
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		return nil
	}
}

// WithMaxInFlight caps concurrent searches. n <= 0 removes the cap.
func WithMaxInFlight(n int64) Option {
	return func(s *Server) error {
		if n <= 0 {
			s.inflight = nil
			return nil
		}
		s.inflight = semaphore.NewWeighted(n)
		return nil
	}
}

// New creates a server for service.
func New(service Searcher, opts ...Option) (*Server, error) {
	if service == nil {
		return nil, ErrServiceRequired
	}

	s := &Server{
		service:         service,
		requestTimeout:  DefaultRequestTimeout,
		shutdownTimeout: defaultShutdownTimeout,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "server")
	s.engine = s.routes()
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(recovery(s.logger), requestID(), accessLog(s.logger), corsPolicy())

	r.GET("/health", s.handleHealth)

	chain := []gin.HandlerFunc{}
	if s.limiter != nil {
		chain = append(chain, rateLimit(s.limiter))
	}
	if s.inflight != nil {
		chain = append(chain, maxInFlight(s.inflight))
	}
	chain = append(chain, s.handleSearch)
	r.POST("/search", chain...)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
	return r
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		s.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
