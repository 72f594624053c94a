// Package server exposes the credit service over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/fnordcredit/fnordcredit/internal/credit"
	"github.com/fnordcredit/fnordcredit/pkg/events"
	"github.com/fnordcredit/fnordcredit/pkg/lifecycle"
	"github.com/fnordcredit/fnordcredit/pkg/log"
)

// Store is what the server reads from the document store.
type Store interface {
	credit.Store
	Dirty() bool
	Status() lifecycle.State
	Subscribe(h events.Handler) (unsubscribe func())
}

// Config holds the HTTP settings.
type Config struct {
	// ListenAddr is the address to serve on. Default: ":8000"
	ListenAddr string

	// StaticDir, if set, is served at "/".
	StaticDir string

	// RateLimit is the sustained requests per second allowed per client IP.
	// Zero disables rate limiting.
	RateLimit float64

	// RateBurst is the burst size. Default: twice RateLimit, at least 1.
	RateBurst int
}

// Server represents the HTTP server.
type Server struct {
	echo        *echo.Echo
	cfg         Config
	store       Store
	credit      *credit.Service
	logger      log.Logger
	metrics     *metrics
	unsubscribe func()
}

// requestValidator adapts validator to echo.
type requestValidator struct {
	validator *validator.Validate
}

func (v *requestValidator) Validate(i any) error {
	return v.validator.Struct(i)
}

// New builds the server and subscribes its metrics to the store's events.
func New(cfg Config, store Store, logger log.Logger) *Server {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8000"
	}
	if cfg.RateLimit > 0 && cfg.RateBurst <= 0 {
		cfg.RateBurst = max(1, int(2*cfg.RateLimit))
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &requestValidator{validator: validator.New()}
	e.HTTPErrorHandler = errorHandler(logger)

	s := &Server{
		echo:    e,
		cfg:     cfg,
		store:   store,
		credit:  credit.NewService(store, logger),
		logger:  logger,
		metrics: newMetrics(store),
	}
	s.unsubscribe = store.Subscribe(s.metrics)

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.Recover())

	s.echo.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))

	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogLatency:   true,
		LogError:     true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []log.Field{
				log.String("method", v.Method),
				log.String("uri", v.URI),
				log.Int("status", v.Status),
				log.Float64("latency_ms", float64(v.Latency.Nanoseconds())/1e6),
				log.String("remote_ip", v.RemoteIP),
				log.String("request_id", v.RequestID),
			}
			if v.Error != nil {
				s.logger.Warn("HTTP request failed", append(fields, log.Err(v.Error))...)
			} else {
				s.logger.Debug("HTTP request", fields...)
			}
			return nil
		},
	}))

	if s.cfg.RateLimit > 0 {
		s.echo.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
			Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(s.cfg.RateLimit),
				Burst:     s.cfg.RateBurst,
				ExpiresIn: 3 * time.Minute,
			}),
			IdentifierExtractor: func(c echo.Context) (string, error) {
				return c.RealIP(), nil
			},
			ErrorHandler: func(c echo.Context, err error) error {
				return echo.NewHTTPError(http.StatusForbidden, "Rate limit identifier unavailable")
			},
			DenyHandler: func(c echo.Context, identifier string, err error) error {
				return echo.NewHTTPError(http.StatusTooManyRequests, "Rate limit exceeded")
			},
		}))
	}

	s.echo.Use(s.metrics.middleware)
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.health)
	s.echo.GET("/metrics", echo.WrapHandler(s.metrics.handler()))

	s.echo.GET("/users/all", s.listUsers)
	s.echo.POST("/user/add", s.addUser)
	s.echo.POST("/user/credit", s.updateCredit)
	s.echo.GET("/user/:name/credit", s.userCredit)

	if s.cfg.StaticDir != "" {
		s.echo.Static("/", s.cfg.StaticDir)
	}
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("Serving web", log.String("addr", s.cfg.ListenAddr))
	err := s.echo.Start(s.cfg.ListenAddr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Closing webserver")
	s.unsubscribe()
	return s.echo.Shutdown(ctx)
}
