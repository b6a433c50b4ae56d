package store

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// ZoneRepository manages warehouse zones.
type ZoneRepository struct {
	db *gorm.DB
}

// NewZoneRepository creates a ZoneRepository.
func NewZoneRepository(db *gorm.DB) *ZoneRepository {
	return &ZoneRepository{db: db}
}

// List returns all zones ordered by name.
func (r *ZoneRepository) List(ctx context.Context) ([]Zone, error) {
	var zones []Zone
	if err := r.db.WithContext(ctx).Order("name").Find(&zones).Error; err != nil {
		return nil, fmt.Errorf("failed to list zones: %w", err)
	}
	return zones, nil
}

// Get returns the zone with the given id.
func (r *ZoneRepository) Get(ctx context.Context, id uint) (*Zone, error) {
	var zone Zone
	if err := r.db.WithContext(ctx).First(&zone, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &zone, nil
}

// Create inserts a zone. Names are trimmed and must be unique.
func (r *ZoneRepository) Create(ctx context.Context, zone *Zone) error {
	zone.Name = strings.TrimSpace(zone.Name)
	if zone.Name == "" {
		return fmt.Errorf("%w: zone name is required", ErrInvalid)
	}
	if err := r.db.WithContext(ctx).Create(zone).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: zone %q", ErrAlreadyExists, zone.Name)
		}
		return fmt.Errorf("failed to create zone: %w", err)
	}
	return nil
}

// Update renames a zone or changes its description.
func (r *ZoneRepository) Update(ctx context.Context, zone *Zone) error {
	zone.Name = strings.TrimSpace(zone.Name)
	if zone.ID == 0 || zone.Name == "" {
		return fmt.Errorf("%w: zone id and name are required", ErrInvalid)
	}
	res := r.db.WithContext(ctx).Model(&Zone{ID: zone.ID}).Updates(map[string]any{
		"name":        zone.Name,
		"description": zone.Description,
	})
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return fmt.Errorf("%w: zone %q", ErrAlreadyExists, zone.Name)
		}
		return fmt.Errorf("failed to update zone: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a zone that no sensor or alert references.
func (r *ZoneRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sensors, alerts int64
		if err := tx.Model(&Sensor{}).Where("zone_id = ?", id).Count(&sensors).Error; err != nil {
			return fmt.Errorf("failed to count zone sensors: %w", err)
		}
		if err := tx.Model(&Alert{}).Where("zone_id = ?", id).Count(&alerts).Error; err != nil {
			return fmt.Errorf("failed to count zone alerts: %w", err)
		}
		if sensors > 0 || alerts > 0 {
			return fmt.Errorf("%w: %d sensors, %d alerts", ErrZoneInUse, sensors, alerts)
		}

		if err := tx.Exec("DELETE FROM user_zones WHERE zone_id = ?", id).Error; err != nil {
			return fmt.Errorf("failed to remove zone memberships: %w", err)
		}
		res := tx.Delete(&Zone{}, id)
		if res.Error != nil {
			return fmt.Errorf("failed to delete zone: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}
