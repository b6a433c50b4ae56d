package simulator

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

	"warehouse.dev/monitor/pkg/logger"
	"warehouse.dev/monitor/pkg/metrics"
	"warehouse.dev/monitor/pkg/mq"
)

// ServerConfig holds the configuration for the simulator.
type ServerConfig struct {
	Logger *slog.Logger

	// Sink overrides the transport built from the fields below.
	Sink Sink

	// RabbitMQURL and QueueName select queue delivery.
	RabbitMQURL string
	QueueName   string

	// APIEndpoint and Token select HTTP delivery instead.
	APIEndpoint string
	Token       string

	// Devices to simulate. When empty, SensorCount random devices are
	// generated, or the default devices when SensorCount is zero.
	Devices     []Device
	SensorCount int
	Warehouses  []string

	Temperature Range
	Humidity    Range
	Seed        uint64

	Interval time.Duration

	Metrics   *metrics.SimulatorMetrics
	MQMetrics *metrics.MQMetrics
}

// Server publishes one reading per device on every interval.
type Server struct {
	logger    *slog.Logger
	config    *ServerConfig
	sink      Sink
	client    *mq.Client
	generator *Generator
	devices   []Device
	metrics   *metrics.SimulatorMetrics
	wg        sync.WaitGroup
}

var (
	errInvalidInterval = errors.New("interval must be greater than 0")
	errLoggerRequired  = errors.New("logger is required")
	errNoTransport     = errors.New("either a rabbitmq url or an api endpoint is required")
)

// NewServer creates a new simulator with the given configuration.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errLoggerRequired
	}
	if cfg.Interval <= 0 {
		return nil, errInvalidInterval
	}

	temp, hum := cfg.Temperature, cfg.Humidity
	if temp == (Range{}) {
		temp = DefaultTemperature
	}
	if hum == (Range{}) {
		hum = DefaultHumidity
	}

	s := &Server{
		logger:    logger.WithComponent(cfg.Logger, "simulator"),
		config:    cfg,
		generator: NewGenerator(cfg.Seed, temp, hum),
		metrics:   cfg.Metrics,
	}

	switch {
	case cfg.Sink != nil:
		s.sink = cfg.Sink
	case cfg.APIEndpoint != "":
		if cfg.Token == "" {
			return nil, errors.New("token is required for http delivery")
		}
		s.sink = NewHTTPSink(cfg.APIEndpoint, cfg.Token)
	case cfg.RabbitMQURL != "":
		if cfg.QueueName == "" {
			return nil, errors.New("queue name cannot be empty")
		}
		s.client = mq.New(cfg.QueueName, cfg.RabbitMQURL, logger.WithComponent(cfg.Logger, "mq-client"))
		if cfg.MQMetrics != nil {
			s.client.SetMetrics(cfg.MQMetrics)
		}
		s.sink = NewQueueSink(s.client)
	default:
		return nil, errNoTransport
	}

	switch {
	case len(cfg.Devices) > 0:
		s.devices = cfg.Devices
	case cfg.SensorCount > 0:
		s.devices = s.generator.RandomDevices(cfg.SensorCount, cfg.Warehouses)
	default:
		s.devices = DefaultDevices()
	}
	if s.metrics != nil {
		s.metrics.SimulatedSensors.Set(float64(len(s.devices)))
	}

	return s, nil
}

// Devices returns the simulated devices.
func (s *Server) Devices() []Device {
	return s.devices
}

// Run publishes readings until a shutdown signal or ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	s.wg.Add(1)
	go s.loop(ctx)

	s.logger.Info("simulator started",
		"sensors", len(s.devices),
		"interval", s.config.Interval,
	)

	select {
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context canceled")
	}
	cancel()

	return s.Shutdown()
}

func (s *Server) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick sends one reading for every device and returns the number sent.
func (s *Server) Tick(ctx context.Context) int {
	now := time.Now()
	sent := 0
	for _, d := range s.devices {
		r := s.generator.Reading(d, now)

		start := time.Now()
		err := s.sink.Send(ctx, &r)
		if s.metrics != nil {
			s.metrics.PublishDuration.Observe(time.Since(start).Seconds())
		}
		if err != nil {
			s.logger.Error("failed to send reading", "sensor", d.SensorID, "error", err)
			if s.metrics != nil {
				s.metrics.PublishFailures.Inc()
			}
			continue
		}

		sent++
		if s.metrics != nil {
			s.metrics.ReadingsPublished.WithLabelValues(d.WarehouseID).Inc()
		}
		s.logger.Debug("reading sent",
			"sensor", d.SensorID,
			"temperature", *r.Temperature,
			"humidity", *r.Humidity,
		)
	}
	return sent
}

// Shutdown stops the loop and closes the queue connection.
func (s *Server) Shutdown() error {
	s.logger.Info("shutting down simulator")
	s.wg.Wait()

	if s.client != nil {
		if err := s.client.Close(); err != nil {
			return fmt.Errorf("failed to close mq client: %w", err)
		}
	}
	s.logger.Info("simulator stopped")
	return nil
}
