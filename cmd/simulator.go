package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"warehouse.dev/monitor/internal/simulator"
	"warehouse.dev/monitor/pkg/metrics"
)

var simulatorCmd = &cobra.Command{
	Use:   "simulator",
	Short: "Run the reading simulator",
	Long: `Run the reading simulator that:
- Generates temperature and humidity readings for a set of sensors
- Publishes them to RabbitMQ, or posts them to the api ingest endpoint
- Repeats on a fixed interval`,
	RunE: runSimulator,
}

func init() {
	rootCmd.AddCommand(simulatorCmd)

	simulatorCmd.Flags().String("rabbitmq-url", "amqp://localhost:5672", "RabbitMQ URL")
	simulatorCmd.Flags().String("queue-name", "sensor-readings", "RabbitMQ queue name for sensor readings")
	simulatorCmd.Flags().String("api-endpoint", "", "api ingest URL; takes precedence over RabbitMQ")
	simulatorCmd.Flags().String("token", "", "bearer token for the api endpoint")
	simulatorCmd.Flags().Int("sensor-count", 0, "number of random sensors; 0 uses the configured or default devices")
	simulatorCmd.Flags().StringSlice("warehouses", []string{"WH-A", "WH-B"}, "warehouse ids for random sensors")
	simulatorCmd.Flags().Duration("interval", 10*time.Second, "interval between readings")
	simulatorCmd.Flags().Uint64("seed", 0, "random seed; 0 picks one")
	simulatorCmd.Flags().Float64("temperature-min", simulator.DefaultTemperature.Min, "lowest generated temperature")
	simulatorCmd.Flags().Float64("temperature-max", simulator.DefaultTemperature.Max, "highest generated temperature")
	simulatorCmd.Flags().Float64("humidity-min", simulator.DefaultHumidity.Min, "lowest generated humidity")
	simulatorCmd.Flags().Float64("humidity-max", simulator.DefaultHumidity.Max, "highest generated humidity")
	simulatorCmd.Flags().Int("metrics-port", 0, "port serving /metrics; 0 disables")

	_ = viper.BindPFlag("simulator.rabbitmq.url", simulatorCmd.Flags().Lookup("rabbitmq-url"))
	_ = viper.BindPFlag("simulator.rabbitmq.queue_name", simulatorCmd.Flags().Lookup("queue-name"))
	_ = viper.BindPFlag("simulator.api_endpoint", simulatorCmd.Flags().Lookup("api-endpoint"))
	_ = viper.BindPFlag("simulator.token", simulatorCmd.Flags().Lookup("token"))
	_ = viper.BindPFlag("simulator.sensor_count", simulatorCmd.Flags().Lookup("sensor-count"))
	_ = viper.BindPFlag("simulator.warehouses", simulatorCmd.Flags().Lookup("warehouses"))
	_ = viper.BindPFlag("simulator.interval", simulatorCmd.Flags().Lookup("interval"))
	_ = viper.BindPFlag("simulator.seed", simulatorCmd.Flags().Lookup("seed"))
	_ = viper.BindPFlag("simulator.temperature.min", simulatorCmd.Flags().Lookup("temperature-min"))
	_ = viper.BindPFlag("simulator.temperature.max", simulatorCmd.Flags().Lookup("temperature-max"))
	_ = viper.BindPFlag("simulator.humidity.min", simulatorCmd.Flags().Lookup("humidity-min"))
	_ = viper.BindPFlag("simulator.humidity.max", simulatorCmd.Flags().Lookup("humidity-max"))
	_ = viper.BindPFlag("simulator.metrics_port", simulatorCmd.Flags().Lookup("metrics-port"))
}

func runSimulator(_ *cobra.Command, _ []string) error {
	logger := GetLogger()
	logger.Info("starting simulator")

	// simulator.devices is only settable from the config file
	var devices []simulator.Device
	if err := viper.UnmarshalKey("simulator.devices", &devices); err != nil {
		return fmt.Errorf("failed to read simulator.devices: %w", err)
	}

	config := &simulator.ServerConfig{
		Logger:      logger,
		APIEndpoint: viper.GetString("simulator.api_endpoint"),
		Token:       viper.GetString("simulator.token"),
		Devices:     devices,
		SensorCount: viper.GetInt("simulator.sensor_count"),
		Warehouses:  viper.GetStringSlice("simulator.warehouses"),
		Temperature: simulator.Range{
			Min: viper.GetFloat64("simulator.temperature.min"),
			Max: viper.GetFloat64("simulator.temperature.max"),
		},
		Humidity: simulator.Range{
			Min: viper.GetFloat64("simulator.humidity.min"),
			Max: viper.GetFloat64("simulator.humidity.max"),
		},
		Seed:     viper.GetUint64("simulator.seed"),
		Interval: viper.GetDuration("simulator.interval"),
		Metrics:  metrics.NewSimulatorMetrics(metricsNamespace),
	}
	if config.APIEndpoint == "" {
		config.RabbitMQURL = viper.GetString("simulator.rabbitmq.url")
		config.QueueName = viper.GetString("simulator.rabbitmq.queue_name")
		config.MQMetrics = metrics.NewMQMetrics(metricsNamespace)
	}

	server, err := simulator.NewServer(config)
	if err != nil {
		logger.Error("failed to create simulator", "error", err)
		return err
	}

	logger.Info("simulator configuration",
		"rabbitmq_url", config.RabbitMQURL,
		"queue", config.QueueName,
		"api_endpoint", config.APIEndpoint,
		"sensors", len(server.Devices()),
		"interval", config.Interval,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	serveMetrics(ctx, logger, viper.GetInt("simulator.metrics_port"))

	if err := server.Run(ctx); err != nil {
		logger.Error("simulator error", "error", err)
		return err
	}

	logger.Info("simulator stopped")
	return nil
}
