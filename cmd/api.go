package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"warehouse.dev/monitor/internal/alerting"
	"warehouse.dev/monitor/internal/api"
	"warehouse.dev/monitor/pkg/metrics"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Run the api server",
	Long: `Run the api server that:
- Serves the REST API and the live dashboard page
- Broadcasts alert updates and new readings over websockets
- Accepts alert updates from a standalone alerting service
- Optionally consumes readings from RabbitMQ
- Optionally runs the alerting engine in-process`,
	RunE: runAPI,
}

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().Int("http-port", 5001, "HTTP server port")
	apiCmd.Flags().String("jwt-secret", "", "secret used to sign access tokens")
	apiCmd.Flags().Duration("token-ttl", 12*time.Hour, "access token lifetime")
	apiCmd.Flags().String("internal-api-key", "", "shared key for service-to-service calls")
	apiCmd.Flags().Bool("embedded-engine", false, "run the alerting engine in this process")
	apiCmd.Flags().String("rabbitmq-url", "", "RabbitMQ URL; empty disables the reading consumer")
	apiCmd.Flags().String("queue-name", "sensor-readings", "RabbitMQ queue name for sensor readings")

	_ = viper.BindPFlag("api.http_port", apiCmd.Flags().Lookup("http-port"))
	_ = viper.BindPFlag("api.jwt_secret", apiCmd.Flags().Lookup("jwt-secret"))
	_ = viper.BindPFlag("api.token_ttl", apiCmd.Flags().Lookup("token-ttl"))
	_ = viper.BindPFlag("api.internal_api_key", apiCmd.Flags().Lookup("internal-api-key"))
	_ = viper.BindPFlag("api.embedded_engine", apiCmd.Flags().Lookup("embedded-engine"))
	_ = viper.BindPFlag("api.rabbitmq.url", apiCmd.Flags().Lookup("rabbitmq-url"))
	_ = viper.BindPFlag("api.rabbitmq.queue_name", apiCmd.Flags().Lookup("queue-name"))

	viper.SetDefault("alerting.interval", alerting.DefaultInterval)
	viper.SetDefault("alerting.workers", alerting.DefaultWorkers)
	viper.SetDefault("alerting.call_timeout", alerting.DefaultCallTimeout)
	viper.SetDefault("kafka.topic", "alert-updates")
}

func runAPI(_ *cobra.Command, _ []string) error {
	logger := GetLogger()
	logger.Info("starting api service")

	config := &api.ServerConfig{
		Logger:         logger,
		DB:             dbConfig(logger),
		Metrics:        metrics.NewAPIMetrics(metricsNamespace),
		HTTPPort:       viper.GetInt("api.http_port"),
		JWTSecret:      viper.GetString("api.jwt_secret"),
		TokenTTL:       viper.GetDuration("api.token_ttl"),
		InternalAPIKey: viper.GetString("api.internal_api_key"),
		RabbitMQURL:    viper.GetString("api.rabbitmq.url"),
		QueueName:      viper.GetString("api.rabbitmq.queue_name"),
		EmbeddedEngine: viper.GetBool("api.embedded_engine"),
		SMTP:           smtpConfig(),
		KafkaBrokers:   kafkaBrokers(),
		KafkaTopic:     viper.GetString("kafka.topic"),
		Interval:       viper.GetDuration("alerting.interval"),
		Workers:        viper.GetInt("alerting.workers"),
		CallTimeout:    viper.GetDuration("alerting.call_timeout"),
	}
	if config.RabbitMQURL != "" {
		config.MQMetrics = metrics.NewMQMetrics(metricsNamespace)
	}
	if config.EmbeddedEngine {
		config.AlertingMetrics = metrics.NewAlertingMetrics(metricsNamespace)
	}

	server, err := api.NewServer(config)
	if err != nil {
		logger.Error("failed to create api server", "error", err)
		return err
	}

	logger.Info("api server configuration",
		"db_driver", config.DB.Driver,
		"http_port", config.HTTPPort,
		"rabbitmq_url", config.RabbitMQURL,
		"queue", config.QueueName,
		"embedded_engine", config.EmbeddedEngine,
	)

	if err := server.Run(context.Background()); err != nil {
		logger.Error("api server error", "error", err)
		return err
	}

	logger.Info("api server stopped")
	return nil
}
