package store

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Supported values of DBConfig.Driver.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// openAlertIndex enforces at most one non-resolved alert per sensor.
// Both postgres and sqlite accept partial unique indexes in this form.
const openAlertIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_alerts_open_sensor ON alerts (sensor_id) WHERE status <> 'resolved'`

// DBConfig holds the database configuration.
type DBConfig struct {
	Logger   *slog.Logger
	Driver   string
	Host     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	// Path is the sqlite file, or ":memory:".
	Path string
	Port int
}

// NewDB opens the configured database and runs migrations.
func NewDB(cfg *DBConfig) (*gorm.DB, error) {
	if cfg == nil {
		return nil, errors.New("database config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	var (
		dialector gorm.Dialector
		single    bool
	)
	switch cfg.Driver {
	case DriverPostgres, "":
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
		cfg.Logger.Info("connecting to database",
			"driver", DriverPostgres,
			"host", cfg.Host,
			"port", cfg.Port,
			"dbname", cfg.DBName,
		)
		dialector = postgres.Open(dsn)
	case DriverSQLite:
		if cfg.Path == "" {
			return nil, errors.New("sqlite path cannot be empty")
		}
		cfg.Logger.Info("connecting to database", "driver", DriverSQLite, "path", cfg.Path)
		dialector = sqlite.Open(cfg.Path)
		// sqlite serialises writers; one connection also keeps ":memory:" databases shared.
		single = true
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	gormConfig := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	if single {
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	cfg.Logger.Info("database connection established")

	if err := runMigrations(db, cfg.Logger); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// runMigrations runs database migrations for all models.
func runMigrations(db *gorm.DB, logger *slog.Logger) error {
	logger.Info("running database migrations")

	if err := db.AutoMigrate(
		&Zone{},
		&Sensor{},
		&Reading{},
		&User{},
		&Alert{},
		&AlertHistory{},
	); err != nil {
		return fmt.Errorf("auto-migration failed: %w", err)
	}

	if err := db.Exec(openAlertIndex).Error; err != nil {
		return fmt.Errorf("failed to create open alert index: %w", err)
	}

	logger.Info("database migrations completed successfully")
	return nil
}

// CloseDB closes the database connection.
func CloseDB(db *gorm.DB, logger *slog.Logger) error {
	if db == nil {
		return nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	logger.Info("closing database connection")
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	logger.Info("database connection closed")
	return nil
}
