package alerting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"warehouse.dev/monitor/internal/events"
	"warehouse.dev/monitor/internal/notify"
	"warehouse.dev/monitor/internal/store"
	"warehouse.dev/monitor/pkg/metrics"
)

// ServiceConfig holds the configuration of the standalone alerting service.
type ServiceConfig struct {
	Logger  *slog.Logger
	DB      *store.DBConfig
	Metrics *metrics.AlertingMetrics

	// SMTP is used for email when Host is set; otherwise email is logged.
	SMTP notify.SMTPConfig

	// MainAppURL and InternalAPIKey forward alert updates to the api service.
	MainAppURL     string
	InternalAPIKey string

	KafkaBrokers []string
	KafkaTopic   string

	Interval    time.Duration
	Workers     int
	CallTimeout time.Duration
}

// Service runs the evaluation engine as its own process.
type Service struct {
	logger *slog.Logger
	config *ServiceConfig
	store  *store.Store
	kafka  *events.KafkaSink
	engine *Engine
}

// NewService creates a Service.
func NewService(cfg *ServiceConfig) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("service config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.DB == nil {
		return nil, errors.New("database config cannot be nil")
	}
	if cfg.MainAppURL != "" && cfg.InternalAPIKey == "" {
		return nil, errors.New("internal api key is required with a main app url")
	}
	return &Service{logger: cfg.Logger, config: cfg}, nil
}

// NewDispatcher builds the notification dispatcher used by the engine.
// Email goes over SMTP when a host is configured and is logged otherwise;
// SMS is always logged.
func NewDispatcher(logger *slog.Logger, users notify.UserDirectory, smtp notify.SMTPConfig, m *metrics.AlertingMetrics, timeout time.Duration) (*notify.Dispatcher, error) {
	var email notify.Channel = notify.NewLogChannel("email", logger)
	if smtp.Host != "" {
		ch, err := notify.NewSMTPChannel(smtp)
		if err != nil {
			return nil, fmt.Errorf("failed to configure smtp: %w", err)
		}
		email = ch
	}

	return notify.NewDispatcher(&notify.DispatcherConfig{
		Logger:  logger,
		Users:   users,
		Email:   email,
		SMS:     notify.NewLogChannel("sms", logger),
		Metrics: m,
		Timeout: timeout,
	})
}

// Run starts the engine and blocks until shutdown.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("starting alerting service")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	st, err := store.Open(s.config.DB)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	s.store = st

	dispatcher, err := NewDispatcher(s.logger, st.Users, s.config.SMTP, s.config.Metrics, s.config.CallTimeout)
	if err != nil {
		return errors.Join(err, s.Shutdown())
	}

	publisher, err := s.publishers()
	if err != nil {
		return errors.Join(err, s.Shutdown())
	}

	s.engine, err = NewEngine(&EngineConfig{
		Logger:      s.logger,
		Sensors:     st.Sensors,
		Readings:    st.Readings,
		Alerts:      st.Alerts,
		Notifier:    dispatcher,
		Publisher:   publisher,
		Metrics:     s.config.Metrics,
		Interval:    s.config.Interval,
		Workers:     s.config.Workers,
		CallTimeout: s.config.CallTimeout,
	})
	if err != nil {
		return errors.Join(fmt.Errorf("failed to initialize engine: %w", err), s.Shutdown())
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = s.engine.Run(ctx)
	}()

	s.logger.Info("alerting service started successfully")

	select {
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context canceled")
	}
	cancel()
	wg.Wait()

	return s.Shutdown()
}

func (s *Service) publishers() (events.Publisher, error) {
	var pubs []events.Publisher

	if s.config.MainAppURL != "" {
		n, err := events.NewMainAppNotifier(&events.MainAppConfig{
			Logger:  s.logger,
			BaseURL: s.config.MainAppURL,
			APIKey:  s.config.InternalAPIKey,
			Timeout: s.config.CallTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to configure main app notifier: %w", err)
		}
		pubs = append(pubs, n)
	} else {
		s.logger.Warn("no main app url configured, dashboards will not receive alert updates")
	}

	if len(s.config.KafkaBrokers) > 0 {
		k, err := events.NewKafkaSink(&events.KafkaConfig{
			Logger:  s.logger,
			Brokers: s.config.KafkaBrokers,
			Topic:   s.config.KafkaTopic,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to configure kafka sink: %w", err)
		}
		s.kafka = k
		pubs = append(pubs, k)
	}

	return events.NewMulti(pubs...), nil
}

// Shutdown releases the service's connections.
func (s *Service) Shutdown() error {
	s.logger.Info("shutting down alerting service")

	var shutdownErr error
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

	s.logger.Info("alerting service shutdown complete")
	return shutdownErr
}
