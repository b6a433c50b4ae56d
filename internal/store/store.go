package store

import (
	"errors"
	"log/slog"

	"gorm.io/gorm"
)

// Store bundles the repositories over one database handle. It is the
// process-wide storage context shared by the api and alerting services.
type Store struct {
	DB       *gorm.DB
	Zones    *ZoneRepository
	Sensors  *SensorRepository
	Readings *ReadingRepository
	Alerts   *AlertRepository
	Users    *UserRepository
	logger   *slog.Logger
}

// New wraps an open database.
func New(db *gorm.DB, logger *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("database cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &Store{
		DB:       db,
		Zones:    &ZoneRepository{db: db},
		Sensors:  &SensorRepository{db: db},
		Readings: &ReadingRepository{db: db},
		Alerts:   &AlertRepository{db: db},
		Users:    &UserRepository{db: db},
		logger:   logger,
	}, nil
}

// Open connects with cfg, migrates and returns the Store.
func Open(cfg *DBConfig) (*Store, error) {
	db, err := NewDB(cfg)
	if err != nil {
		return nil, err
	}
	return New(db, cfg.Logger)
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return CloseDB(s.DB, s.logger)
}
