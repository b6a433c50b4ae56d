package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"warehouse.dev/monitor/internal/alerting"
	"warehouse.dev/monitor/internal/auth"
	"warehouse.dev/monitor/internal/events"
	"warehouse.dev/monitor/internal/ingest"
	"warehouse.dev/monitor/internal/notify"
	"warehouse.dev/monitor/internal/store"
	"warehouse.dev/monitor/pkg/logger"
	"warehouse.dev/monitor/pkg/metrics"
	"warehouse.dev/monitor/pkg/mq"
)

// Server is the api service: HTTP API, websocket hub, optional queue
// consumer and optional in-process alerting engine.
type Server struct {
	logger     *slog.Logger
	config     *ServerConfig
	store      *store.Store
	hub        *events.Hub
	consumer   *ingest.Consumer
	kafka      *events.KafkaSink
	httpServer *http.Server
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// ServerConfig holds the configuration for the Server.
type ServerConfig struct {
	Logger  *slog.Logger
	DB      *store.DBConfig
	Metrics *metrics.APIMetrics

	HTTPPort       int
	JWTSecret      string
	TokenTTL       time.Duration
	InternalAPIKey string

	// RabbitMQURL enables the reading consumer.
	RabbitMQURL string
	QueueName   string
	MQMetrics   *metrics.MQMetrics

	// EmbeddedEngine runs the alerting engine in this process, publishing
	// straight to the websocket hub.
	EmbeddedEngine  bool
	AlertingMetrics *metrics.AlertingMetrics
	SMTP            notify.SMTPConfig
	KafkaBrokers    []string
	KafkaTopic      string
	Interval        time.Duration
	Workers         int
	CallTimeout     time.Duration
}

// NewServer creates a new api Server instance.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.DB == nil {
		return nil, errors.New("database config cannot be nil")
	}
	if cfg.HTTPPort <= 0 {
		return nil, errors.New("HTTP port must be positive")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("jwt secret cannot be empty")
	}
	if cfg.RabbitMQURL != "" && cfg.QueueName == "" {
		return nil, errors.New("queue name cannot be empty")
	}

	return &Server{
		logger: cfg.Logger,
		config: cfg,
	}, nil
}

// Run starts the api server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting api server")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.cancel = cancel

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	st, err := store.Open(s.config.DB)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	s.store = st

	issuer, err := auth.NewIssuer(s.config.JWTSecret, s.config.TokenTTL)
	if err != nil {
		return errors.Join(err, s.Shutdown())
	}

	s.hub = events.NewHub(logger.WithComponent(s.logger, "ws"), s.config.Metrics)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.hub.Run(ctx)
	}()

	router, err := NewRouter(&RouterConfig{
		Logger:         s.logger,
		Store:          st,
		Hub:            s.hub,
		Issuer:         issuer,
		Metrics:        s.config.Metrics,
		InternalAPIKey: s.config.InternalAPIKey,
	})
	if err != nil {
		return errors.Join(err, s.Shutdown())
	}

	if s.config.RabbitMQURL != "" {
		if err := s.startConsumer(ctx); err != nil {
			return errors.Join(err, s.Shutdown())
		}
	}

	if s.config.EmbeddedEngine {
		if err := s.startEngine(ctx); err != nil {
			return errors.Join(err, s.Shutdown())
		}
	}

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("starting HTTP server", "address", s.httpServer.Addr)

	httpErr := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- fmt.Errorf("HTTP server error: %w", err)
		}
		close(httpErr)
	}()

	s.logger.Info("api server started successfully")

	select {
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context canceled")
	case err := <-httpErr:
		if err != nil {
			s.logger.Error("HTTP server error", "error", err)
			return errors.Join(err, s.Shutdown())
		}
	}

	return s.Shutdown()
}

func (s *Server) startConsumer(ctx context.Context) error {
	client := mq.New(s.config.QueueName, s.config.RabbitMQURL, logger.WithComponent(s.logger, "mq-client"))
	if s.config.MQMetrics != nil {
		client.SetMetrics(s.config.MQMetrics)
	}

	consumer, err := ingest.NewConsumer(&ingest.ConsumerConfig{
		Logger:    s.logger,
		Readings:  s.store.Readings,
		Queue:     client,
		Publisher: s.hub,
		Metrics:   s.config.MQMetrics,
		QueueName: s.config.QueueName,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}
	s.consumer = consumer

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := consumer.Start(ctx); err != nil {
			s.logger.Warn("consumer did not start", "error", err)
		}
	}()
	return nil
}

func (s *Server) startEngine(ctx context.Context) error {
	dispatcher, err := alerting.NewDispatcher(s.logger, s.store.Users, s.config.SMTP, s.config.AlertingMetrics, s.config.CallTimeout)
	if err != nil {
		return err
	}

	pubs := []events.Publisher{s.hub}
	if len(s.config.KafkaBrokers) > 0 {
		s.kafka, err = events.NewKafkaSink(&events.KafkaConfig{
			Logger:  s.logger,
			Brokers: s.config.KafkaBrokers,
			Topic:   s.config.KafkaTopic,
		})
		if err != nil {
			return fmt.Errorf("failed to configure kafka sink: %w", err)
		}
		pubs = append(pubs, s.kafka)
	}

	engine, err := alerting.NewEngine(&alerting.EngineConfig{
		Logger:      s.logger,
		Sensors:     s.store.Sensors,
		Readings:    s.store.Readings,
		Alerts:      s.store.Alerts,
		Notifier:    dispatcher,
		Publisher:   events.NewMulti(pubs...),
		Metrics:     s.config.AlertingMetrics,
		Interval:    s.config.Interval,
		Workers:     s.config.Workers,
		CallTimeout: s.config.CallTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = engine.Run(ctx)
	}()
	s.logger.Info("embedded alerting engine started")
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	s.logger.Info("shutting down api server")

	var shutdownErr error

	if s.httpServer != nil {
		s.logger.Info("stopping HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("failed to shutdown HTTP server", "error", err)
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("HTTP server shutdown error: %w", err))
		}
	}

	if s.cancel != nil {
		s.cancel()
	}

	if s.consumer != nil {
		if err := s.consumer.Stop(); err != nil {
			s.logger.Error("failed to stop consumer", "error", err)
			shutdownErr = errors.Join(shutdownErr, err)
		}
	}

	// engine passes and effects drain before the store closes
	s.wg.Wait()

	if s.kafka != nil {
		if err := s.kafka.Close(); err != nil {
			s.logger.Error("failed to close kafka sink", "error", err)
			shutdownErr = errors.Join(shutdownErr, err)
		}
	}

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			shutdownErr = errors.Join(shutdownErr, err)
		}
	}

	if shutdownErr != nil {
		s.logger.Error("api server shutdown completed with errors", "error", shutdownErr)
		return shutdownErr
	}

	s.logger.Info("api server shutdown completed successfully")
	return nil
}
