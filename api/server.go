// Package api serves backtests over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/rustyeddy/barsim/config"
)

// Server runs backtests posted as JSON against a base configuration.
type Server struct {
	base    config.Config
	log     *zap.Logger
	origins []string
}

type Option func(*Server)

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithAllowedOrigins restricts CORS. The default allows any origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) { s.origins = origins }
}

func NewServer(base *config.Config, opts ...Option) *Server {
	if base == nil {
		base = config.Default()
	}
	s := &Server{base: *base, log: zap.NewNop(), origins: []string{"*"}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the router wrapped in CORS handling.
func (s *Server) Handler() http.Handler {
	router := gin.New()
	router.Use(errorHandler(s.log))
	router.Use(requestLogger(s.log))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	v1.POST("/backtest", s.runBacktest)

	return cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         300,
	}).Handler(router)
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.Info("api listening", zap.String("addr", addr))

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdown)
	}
}
