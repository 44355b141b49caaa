package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/Nzyazin/lnmo/internal/core/handler"
	"github.com/Nzyazin/lnmo/internal/core/logger"
	"github.com/Nzyazin/lnmo/internal/core/metrics"
	middlWre "github.com/Nzyazin/lnmo/internal/core/middleware"
	"github.com/Nzyazin/lnmo/internal/core/mpesa"
	"github.com/Nzyazin/lnmo/internal/core/repository/postgres"
	"github.com/Nzyazin/lnmo/internal/core/usecase"
	"github.com/Nzyazin/lnmo/pkg/config"
	"github.com/Nzyazin/lnmo/pkg/postgresdb"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpmetrics "github.com/slok/go-http-metrics/metrics/prometheus"
	"github.com/slok/go-http-metrics/middleware"
	"github.com/slok/go-http-metrics/middleware/std"
)

type Server struct {
	router         *mux.Router
	log            logger.Logger
	httpServer     *http.Server
	paymentHandler *handler.PaymentHandler
	rateLimit      func(http.Handler) http.Handler
	db             *postgresdb.Database
}

func NewServer(cfg *config.Config, log logger.Logger) (*Server, error) {
	if err := postgres.Migrate(cfg.DB.URL, log); err != nil {
		return nil, err
	}

	db, err := postgresdb.NewPostgresDB(cfg.DB, log)
	if err != nil {
		return nil, err
	}

	httpClient := mpesa.NewHTTPClient(cfg.Mpesa.HTTPTimeout)
	host := cfg.Mpesa.Host()
	gateway := mpesa.NewClient(
		httpClient,
		host,
		mpesa.NewTokenSource(httpClient, host, cfg.Mpesa.ConsumerKey, cfg.Mpesa.ConsumerSecret),
		mpesa.NewEncoder(cfg.Mpesa.ShortCode, cfg.Mpesa.PassKey, cfg.Mpesa.CallbackURL),
		log,
	)

	rateLimit, err := middlWre.RateLimit(cfg.RateLimit, log)
	if err != nil {
		db.Close()
		return nil, err
	}

	transactionRepository := postgres.NewPostgresTransactionRepo(db.DB, log, cfg.DB.QueryTimeout)
	recorder := metrics.NewPrometheusRecorder(prometheus.DefaultRegisterer)
	paymentUsecase := usecase.NewPaymentUsecase(transactionRepository, gateway, recorder, log)
	paymentHandler := handler.NewPaymentHandler(paymentUsecase, log)

	server := &Server{
		log:            log,
		router:         mux.NewRouter(),
		paymentHandler: paymentHandler,
		rateLimit:      rateLimit,
		db:             db,
	}

	mw := middleware.New(middleware.Config{
		Recorder: httpmetrics.NewRecorder(httpmetrics.Config{}),
	})

	server.router.Use(func(next http.Handler) http.Handler {
		return std.Handler("", mw, next)
	})

	server.RegisterRoutes()

	log.Info("Server configured",
		logger.StringField("mpesa_environment", cfg.Mpesa.Environment),
		logger.StringField("mpesa_host", host),
		logger.StringField("rate_limit", cfg.RateLimit))

	return server, nil
}

func (s *Server) RegisterRoutes() {
	s.router.Use(
		middlWre.RequestLogger(s.log),
		middlWre.Recovery(s.log),
	)
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	s.paymentHandler.RegisterRoutes(s.router, s.rateLimit)
}

func (s *Server) Run(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       9 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 6 * time.Second,
	}

	s.httpServer = srv

	return srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	var shutdownErr error

	go func() {
		if s.httpServer != nil {
			err := s.httpServer.Shutdown(ctx)
			if err != nil {
				s.log.Error("failed to shutdown HTTP server", logger.ErrorField("error", err))
				shutdownErr = fmt.Errorf("HTTP server shutdown error: %w", err)
			}
		}

		if s.db != nil {
			err := s.db.Close()
			if err != nil {
				s.log.Error("failed to close database connection", logger.ErrorField("error", err))
				shutdownErr = fmt.Errorf("database shutdown error: %w", err)
			}
		}

		close(done)
	}()

	select {
	case <-done:
		return shutdownErr
	case <-ctx.Done():
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (s *Server) RunTLS(addr, certFile, keyFile string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       9 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 6 * time.Second,
		TLSConfig:         &tls.Config{MinVersion: tls.VersionTLS12},
	}

	s.httpServer = srv
	return srv.ListenAndServeTLS(certFile, keyFile)
}
