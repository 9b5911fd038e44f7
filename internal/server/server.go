package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"scip/internal/handler"
	"scip/internal/middleware"
	"scip/internal/service"
)

// Options carries everything the router needs. Metrics is optional.
type Options struct {
	Auth        service.AuthService
	Evaluations service.EvaluationService
	Audit       service.AuditService
	Ping        handler.Pinger
	AnchorState handler.AnchorState
	Metrics     prometheus.Gatherer
	MetricsPath string
	CORSOrigins []string
}

type Server struct {
	router *gin.Engine
	logger *zap.Logger
}

func NewServer(opts Options, logger *zap.Logger) *Server {
	router := gin.New()
	s := &Server{router: router, logger: logger}
	s.setupRoutes(opts)
	return s
}

func (s *Server) setupRoutes(opts Options) {
	authHandler := handler.NewAuthHandler(opts.Auth, s.logger)
	evaluationHandler := handler.NewEvaluationHandler(opts.Evaluations, opts.Audit, s.logger)
	healthHandler := handler.NewHealthHandler(opts.Ping, opts.AnchorState, s.logger)

	s.router.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.AccessLog(s.logger),
		middleware.CORS(opts.CORSOrigins),
	)

	s.router.GET("/ping", healthHandler.Ping)
	if opts.Metrics != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		s.router.GET(path, gin.WrapH(promhttp.HandlerFor(opts.Metrics, promhttp.HandlerOpts{})))
	}

	api := s.router.Group("/api")
	api.GET("/health", healthHandler.Health)
	api.POST("/register", authHandler.Register)
	api.POST("/login", authHandler.Login)

	authRequired := api.Group("")
	authRequired.Use(middleware.Auth(opts.Auth, s.logger))
	{
		authRequired.POST("/logout", authHandler.Logout)
		authRequired.POST("/analyze_commit", evaluationHandler.AnalyzeCommit)
		authRequired.GET("/logs", evaluationHandler.ListLogs)
		authRequired.GET("/logs/verify", evaluationHandler.VerifyLogs)
	}
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is done, then drains in-flight requests for
// at most shutdownTimeout.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Server starting", zap.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed to start: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	s.logger.Info("Server exited")
	return nil
}
