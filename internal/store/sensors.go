package store

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SensorRepository is the sensor registry.
type SensorRepository struct {
	db *gorm.DB
}

// NewSensorRepository creates a SensorRepository.
func NewSensorRepository(db *gorm.DB) *SensorRepository {
	return &SensorRepository{db: db}
}

// List returns every sensor with its zone, ordered by sensor id.
func (r *SensorRepository) List(ctx context.Context) ([]Sensor, error) {
	var sensors []Sensor
	if err := r.db.WithContext(ctx).Preload("Zone").Order("sensor_id").Find(&sensors).Error; err != nil {
		return nil, fmt.Errorf("failed to list sensors: %w", err)
	}
	return sensors, nil
}

// Get returns the sensor with the given primary key.
func (r *SensorRepository) Get(ctx context.Context, id uint) (*Sensor, error) {
	var sensor Sensor
	if err := r.db.WithContext(ctx).Preload("Zone").First(&sensor, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &sensor, nil
}

// GetBySensorID looks a sensor up by its logical identifier.
func (r *SensorRepository) GetBySensorID(ctx context.Context, sensorID string) (*Sensor, error) {
	var sensor Sensor
	if err := r.db.WithContext(ctx).Preload("Zone").Where("sensor_id = ?", sensorID).First(&sensor).Error; err != nil {
		return nil, notFound(err)
	}
	return &sensor, nil
}

// Create registers a sensor.
func (r *SensorRepository) Create(ctx context.Context, sensor *Sensor) error {
	if err := normalizeSensor(sensor); err != nil {
		return err
	}
	if err := r.checkZone(ctx, sensor.ZoneID); err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(sensor).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: sensor %q", ErrAlreadyExists, sensor.SensorID)
		}
		return fmt.Errorf("failed to create sensor: %w", err)
	}
	return nil
}

// Update overwrites every column of an existing sensor.
func (r *SensorRepository) Update(ctx context.Context, sensor *Sensor) error {
	if sensor.ID == 0 {
		return fmt.Errorf("%w: sensor id is required", ErrInvalid)
	}
	if err := normalizeSensor(sensor); err != nil {
		return err
	}
	if err := r.checkZone(ctx, sensor.ZoneID); err != nil {
		return err
	}
	res := r.db.WithContext(ctx).Model(&Sensor{ID: sensor.ID}).Select("*").Omit("id", "created_at", clause.Associations).Updates(sensor)
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return fmt.Errorf("%w: sensor %q", ErrAlreadyExists, sensor.SensorID)
		}
		return fmt.Errorf("failed to update sensor: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a sensor.
func (r *SensorRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&Sensor{}, id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete sensor: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SensorRepository) checkZone(ctx context.Context, zoneID *uint) error {
	if zoneID == nil {
		return nil
	}
	var n int64
	if err := r.db.WithContext(ctx).Model(&Zone{}).Where("id = ?", *zoneID).Count(&n).Error; err != nil {
		return fmt.Errorf("failed to look up zone: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: zone %d does not exist", ErrInvalid, *zoneID)
	}
	return nil
}

func normalizeSensor(s *Sensor) error {
	s.SensorID = strings.TrimSpace(s.SensorID)
	if s.SensorID == "" {
		return fmt.Errorf("%w: sensorId is required", ErrInvalid)
	}
	if !s.Type.Valid() {
		return fmt.Errorf("%w: type must be temperature or humidity", ErrInvalid)
	}
	switch s.TemperatureUnit {
	case "":
		s.TemperatureUnit = "C"
	case "C", "F":
	default:
		return fmt.Errorf("%w: temperatureUnit must be C or F", ErrInvalid)
	}
	s.Zone = nil
	return nil
}
