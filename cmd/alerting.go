package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"warehouse.dev/monitor/internal/alerting"
	"warehouse.dev/monitor/pkg/metrics"
)

var alertingCmd = &cobra.Command{
	Use:   "alerting",
	Short: "Run the alerting service",
	Long: `Run the alerting service that:
- Evaluates the latest reading of every sensor on a fixed interval
- Creates, escalates and resolves alerts
- Notifies zone staff by email and SMS
- Forwards alert updates to the api service and optionally to Kafka`,
	RunE: runAlerting,
}

func init() {
	rootCmd.AddCommand(alertingCmd)

	alertingCmd.Flags().Duration("interval", alerting.DefaultInterval, "evaluation interval")
	alertingCmd.Flags().Int("workers", alerting.DefaultWorkers, "sensors evaluated in parallel")
	alertingCmd.Flags().Duration("call-timeout", alerting.DefaultCallTimeout, "timeout of each notification or publish call")
	alertingCmd.Flags().String("main-app-url", "", "base URL of the api service")
	alertingCmd.Flags().String("internal-api-key", "", "shared key for the api service")
	alertingCmd.Flags().Int("metrics-port", 9101, "port serving /metrics; 0 disables")

	_ = viper.BindPFlag("alerting.interval", alertingCmd.Flags().Lookup("interval"))
	_ = viper.BindPFlag("alerting.workers", alertingCmd.Flags().Lookup("workers"))
	_ = viper.BindPFlag("alerting.call_timeout", alertingCmd.Flags().Lookup("call-timeout"))
	_ = viper.BindPFlag("alerting.main_app_url", alertingCmd.Flags().Lookup("main-app-url"))
	_ = viper.BindPFlag("alerting.internal_api_key", alertingCmd.Flags().Lookup("internal-api-key"))
	_ = viper.BindPFlag("alerting.metrics_port", alertingCmd.Flags().Lookup("metrics-port"))
}

func runAlerting(_ *cobra.Command, _ []string) error {
	logger := GetLogger()
	logger.Info("starting alerting service")

	config := &alerting.ServiceConfig{
		Logger:         logger,
		DB:             dbConfig(logger),
		Metrics:        metrics.NewAlertingMetrics(metricsNamespace),
		SMTP:           smtpConfig(),
		MainAppURL:     viper.GetString("alerting.main_app_url"),
		InternalAPIKey: viper.GetString("alerting.internal_api_key"),
		KafkaBrokers:   kafkaBrokers(),
		KafkaTopic:     viper.GetString("kafka.topic"),
		Interval:       viper.GetDuration("alerting.interval"),
		Workers:        viper.GetInt("alerting.workers"),
		CallTimeout:    viper.GetDuration("alerting.call_timeout"),
	}

	service, err := alerting.NewService(config)
	if err != nil {
		logger.Error("failed to create alerting service", "error", err)
		return err
	}

	logger.Info("alerting service configuration",
		"db_driver", config.DB.Driver,
		"interval", config.Interval,
		"workers", config.Workers,
		"main_app_url", config.MainAppURL,
		"smtp_enabled", config.SMTP.Host != "",
		"kafka_brokers", config.KafkaBrokers,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	serveMetrics(ctx, logger, viper.GetInt("alerting.metrics_port"))

	if err := service.Run(ctx); err != nil {
		logger.Error("alerting service error", "error", err)
		return err
	}

	logger.Info("alerting service stopped")
	return nil
}
