package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// DefaultHistoryLimit bounds History when the caller passes no limit.
const DefaultHistoryLimit = 100

// latestReadingSQL selects, per sensor, the reading with the greatest
// timestamp; equal timestamps resolve to the highest insertion id.
const latestReadingSQL = `SELECT r.* FROM readings r
WHERE r.id = (
	SELECT r2.id FROM readings r2
	WHERE r2.sensor_id = r.sensor_id
	ORDER BY r2.timestamp DESC, r2.id DESC
	LIMIT 1
)`

// Aggregate summarises a sensor's readings over a window.
type Aggregate struct {
	AvgTemperature *float64 `json:"avgTemperature"`
	MinTemperature *float64 `json:"minTemperature"`
	MaxTemperature *float64 `json:"maxTemperature"`
	AvgHumidity    *float64 `json:"avgHumidity"`
	MinHumidity    *float64 `json:"minHumidity"`
	MaxHumidity    *float64 `json:"maxHumidity"`
	Count          int64    `gorm:"column:reading_count" json:"count"`
}

// ReadingRepository is the append-only reading store.
type ReadingRepository struct {
	db *gorm.DB
}

// NewReadingRepository creates a ReadingRepository.
func NewReadingRepository(db *gorm.DB) *ReadingRepository {
	return &ReadingRepository{db: db}
}

// Append stores a reading. A zero timestamp is replaced by the current time.
func (r *ReadingRepository) Append(ctx context.Context, reading *Reading) error {
	reading.SensorID = strings.TrimSpace(reading.SensorID)
	if reading.SensorID == "" {
		return fmt.Errorf("%w: sensorId is required", ErrInvalid)
	}
	if reading.Timestamp.IsZero() {
		reading.Timestamp = time.Now()
	}
	reading.Timestamp = reading.Timestamp.UTC()

	if err := r.db.WithContext(ctx).Create(reading).Error; err != nil {
		return fmt.Errorf("failed to append reading: %w", err)
	}
	return nil
}

// LatestBySensor returns the most recent reading of each requested sensor.
// Sensors without readings are absent from the map.
func (r *ReadingRepository) LatestBySensor(ctx context.Context, sensorIDs []string) (map[string]Reading, error) {
	latest := make(map[string]Reading, len(sensorIDs))
	if len(sensorIDs) == 0 {
		return latest, nil
	}

	var rows []Reading
	if err := r.db.WithContext(ctx).Raw(latestReadingSQL+" AND r.sensor_id IN ?", sensorIDs).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load latest readings: %w", err)
	}
	for _, row := range rows {
		latest[row.SensorID] = row
	}
	return latest, nil
}

// LatestAll returns the most recent reading of every sensor that reported.
func (r *ReadingRepository) LatestAll(ctx context.Context) ([]Reading, error) {
	var rows []Reading
	if err := r.db.WithContext(ctx).Raw(latestReadingSQL + " ORDER BY r.sensor_id").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load latest readings: %w", err)
	}
	return rows, nil
}

// History returns up to limit readings of a sensor, newest first.
func (r *ReadingRepository) History(ctx context.Context, sensorID string, limit int) ([]Reading, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	var rows []Reading
	err := r.db.WithContext(ctx).
		Where("sensor_id = ?", sensorID).
		Order("timestamp DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load reading history: %w", err)
	}
	return rows, nil
}

// Aggregates summarises the readings of a sensor taken at or after since.
// ErrNotFound is returned when there are none.
func (r *ReadingRepository) Aggregates(ctx context.Context, sensorID string, since time.Time) (*Aggregate, error) {
	var agg Aggregate
	err := r.db.WithContext(ctx).
		Model(&Reading{}).
		Select(`AVG(temperature) AS avg_temperature, MIN(temperature) AS min_temperature, MAX(temperature) AS max_temperature,
			AVG(humidity) AS avg_humidity, MIN(humidity) AS min_humidity, MAX(humidity) AS max_humidity,
			COUNT(*) AS reading_count`).
		Where("sensor_id = ? AND timestamp >= ?", sensorID, since.UTC()).
		Scan(&agg).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate readings: %w", err)
	}
	if agg.Count == 0 {
		return nil, ErrNotFound
	}
	return &agg, nil
}
