// Package main provides the warehouse-monitor CLI: the api, alerting and
// simulator services plus a token helper.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "warehouse-monitor",
		Short: "Warehouse temperature and humidity monitoring",
		Long: `Warehouse monitoring services:
- api: HTTP API, live dashboard feed and reading ingestion
- alerting: periodic threshold evaluation and alert escalation
- simulator: synthetic sensor readings
- token: issue an access token for an existing user`,
		Version: "1.0.0",
	}
)

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml or /etc/warehouse-monitor/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.PersistentFlags().String("db-driver", "postgres", "database driver (postgres, sqlite)")
	rootCmd.PersistentFlags().String("db-host", "localhost", "PostgreSQL host")
	rootCmd.PersistentFlags().Int("db-port", 5432, "PostgreSQL port")
	rootCmd.PersistentFlags().String("db-user", "postgres", "PostgreSQL user")
	rootCmd.PersistentFlags().String("db-password", "", "PostgreSQL password")
	rootCmd.PersistentFlags().String("db-name", "warehouse", "PostgreSQL database name")
	rootCmd.PersistentFlags().String("db-sslmode", "disable", "PostgreSQL SSL mode")
	rootCmd.PersistentFlags().String("db-path", "warehouse.db", "sqlite database file")

	if err := viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level")); err != nil {
		log.Fatalf("failed to bind log-level flag: %v", err)
	}
	_ = viper.BindPFlag("db.driver", rootCmd.PersistentFlags().Lookup("db-driver"))
	_ = viper.BindPFlag("db.host", rootCmd.PersistentFlags().Lookup("db-host"))
	_ = viper.BindPFlag("db.port", rootCmd.PersistentFlags().Lookup("db-port"))
	_ = viper.BindPFlag("db.user", rootCmd.PersistentFlags().Lookup("db-user"))
	_ = viper.BindPFlag("db.password", rootCmd.PersistentFlags().Lookup("db-password"))
	_ = viper.BindPFlag("db.name", rootCmd.PersistentFlags().Lookup("db-name"))
	_ = viper.BindPFlag("db.sslmode", rootCmd.PersistentFlags().Lookup("db-sslmode"))
	_ = viper.BindPFlag("db.path", rootCmd.PersistentFlags().Lookup("db-path"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if err := InitConfig(cfgFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}
