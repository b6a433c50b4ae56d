package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/viper"

	"warehouse.dev/monitor/internal/notify"
	"warehouse.dev/monitor/internal/store"
	"warehouse.dev/monitor/pkg/logger"
	"warehouse.dev/monitor/pkg/metrics"
)

// metricsNamespace prefixes every exported metric.
const metricsNamespace = "warehouse"

// InitConfig initializes Viper configuration.
// It supports reading from config files (config.yaml) and environment variables.
func InitConfig(cfgFile string) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/warehouse-monitor/")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// WAREHOUSE_DB_HOST overrides db.host
	viper.SetEnvPrefix("WAREHOUSE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var configNotFoundErr viper.ConfigFileNotFoundError
		if errors.As(err, &configNotFoundErr) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// GetLogger creates a slog.Logger based on configuration.
func GetLogger() *slog.Logger {
	return logger.NewWithLevel(logger.ParseLevel(viper.GetString("log.level")))
}

func dbConfig(l *slog.Logger) *store.DBConfig {
	return &store.DBConfig{
		Logger:   l,
		Driver:   viper.GetString("db.driver"),
		Host:     viper.GetString("db.host"),
		Port:     viper.GetInt("db.port"),
		User:     viper.GetString("db.user"),
		Password: viper.GetString("db.password"),
		DBName:   viper.GetString("db.name"),
		SSLMode:  viper.GetString("db.sslmode"),
		Path:     viper.GetString("db.path"),
	}
}

func smtpConfig() notify.SMTPConfig {
	return notify.SMTPConfig{
		Host:     viper.GetString("smtp.host"),
		Port:     viper.GetInt("smtp.port"),
		Username: viper.GetString("smtp.user"),
		Password: viper.GetString("smtp.password"),
		From:     viper.GetString("smtp.from"),
	}
}

// kafkaBrokers accepts a yaml list or a comma separated env value.
func kafkaBrokers() []string {
	var brokers []string
	for _, b := range viper.GetStringSlice("kafka.brokers") {
		for _, part := range strings.Split(b, ",") {
			if part = strings.TrimSpace(part); part != "" {
				brokers = append(brokers, part)
			}
		}
	}
	return brokers
}

// serveMetrics exposes /metrics for services without their own HTTP server.
// A non-positive port disables it.
func serveMetrics(ctx context.Context, l *slog.Logger, port int) {
	if port <= 0 {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		l.Info("serving metrics", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("metrics server error", "error", err)
		}
	}()
}
