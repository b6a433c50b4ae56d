package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// AlertRepository persists alerts and their history.
type AlertRepository struct {
	db *gorm.DB
}

// NewAlertRepository creates an AlertRepository.
func NewAlertRepository(db *gorm.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

func historyByID(db *gorm.DB) *gorm.DB {
	return db.Order("alert_history.id ASC")
}

// FindOpenBySensor returns the sensor's non-resolved alert, or ErrNotFound.
func (r *AlertRepository) FindOpenBySensor(ctx context.Context, sensorID uint) (*Alert, error) {
	var alert Alert
	err := r.db.WithContext(ctx).
		Preload("History", historyByID).
		Where("sensor_id = ? AND status <> ?", sensorID, AlertResolved).
		Take(&alert).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &alert, nil
}

// Create inserts a new alert together with its history entries.
// A second open alert for the same sensor fails with ErrDuplicateOpenAlert.
func (r *AlertRepository) Create(ctx context.Context, alert *Alert) error {
	if err := r.db.WithContext(ctx).Omit("Zone").Create(alert).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateOpenAlert
		}
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

// Update saves the fields the evaluation engine owns and appends history
// entries that have not been stored yet. Acknowledgement fields are only
// written by Acknowledge, and status only when the alert is being resolved,
// so a concurrent acknowledgement is never overwritten. A resolved alert is
// never updated again; a stale writer gets ErrAlertResolved.
func (r *AlertRepository) Update(ctx context.Context, alert *Alert) error {
	if alert.ID == 0 {
		return fmt.Errorf("%w: alert id is required", ErrInvalid)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fields := map[string]any{
			"severity":             alert.Severity,
			"escalation_level":     alert.EscalationLevel,
			"consecutive_breaches": alert.ConsecutiveBreaches,
		}
		if alert.Status == AlertResolved {
			fields["status"] = AlertResolved
			fields["resolved_at"] = alert.ResolvedAt
		}

		res := tx.Model(&Alert{}).
			Where("id = ? AND status <> ?", alert.ID, AlertResolved).
			Updates(fields)
		if res.Error != nil {
			return fmt.Errorf("failed to update alert: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			var n int64
			if err := tx.Model(&Alert{}).Where("id = ?", alert.ID).Count(&n).Error; err != nil {
				return fmt.Errorf("failed to check alert: %w", err)
			}
			if n == 0 {
				return ErrNotFound
			}
			return ErrAlertResolved
		}

		for i := range alert.History {
			entry := &alert.History[i]
			if entry.ID != 0 {
				continue
			}
			entry.AlertID = alert.ID
			if err := tx.Create(entry).Error; err != nil {
				return fmt.Errorf("failed to append alert history: %w", err)
			}
		}
		return nil
	})
}

// Acknowledge moves a triggered alert to acknowledged and records who did it.
// It fails with ErrAlertNotTriggered when the alert is in any other state.
func (r *AlertRepository) Acknowledge(ctx context.Context, alertID, userID uint, userName string, now time.Time) (*Alert, error) {
	now = now.UTC()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Alert{}).
			Where("id = ? AND status = ?", alertID, AlertTriggered).
			Updates(map[string]any{
				"status":          AlertAcknowledged,
				"acknowledged_at": now,
				"acknowledged_by": userID,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to acknowledge alert: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			var n int64
			if err := tx.Model(&Alert{}).Where("id = ?", alertID).Count(&n).Error; err != nil {
				return fmt.Errorf("failed to look up alert: %w", err)
			}
			if n == 0 {
				return ErrNotFound
			}
			return ErrAlertNotTriggered
		}

		entry := AlertHistory{
			AlertID:   alertID,
			Status:    HistoryAcknowledged,
			Timestamp: now,
			Note:      "Acknowledged by " + userName,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("failed to append alert history: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, alertID)
}

// Get returns an alert with its sensor, zone and history.
func (r *AlertRepository) Get(ctx context.Context, id uint) (*Alert, error) {
	var alert Alert
	err := r.db.WithContext(ctx).
		Preload("Zone").
		Preload("History", historyByID).
		First(&alert, id).Error
	if err != nil {
		return nil, notFound(err)
	}

	alerts := []Alert{alert}
	if err := r.attachSensors(ctx, alerts); err != nil {
		return nil, err
	}
	return &alerts[0], nil
}

// Active returns triggered and acknowledged alerts, newest first.
func (r *AlertRepository) Active(ctx context.Context) ([]Alert, error) {
	var alerts []Alert
	err := r.db.WithContext(ctx).
		Preload("Zone").
		Preload("History", historyByID).
		Where("status IN ?", []AlertStatus{AlertTriggered, AlertAcknowledged}).
		Order("triggered_at DESC").
		Order("id DESC").
		Find(&alerts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active alerts: %w", err)
	}
	if err := r.attachSensors(ctx, alerts); err != nil {
		return nil, err
	}
	return alerts, nil
}

// CountOpen returns the number of non-resolved alerts.
func (r *AlertRepository) CountOpen(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&Alert{}).Where("status <> ?", AlertResolved).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count open alerts: %w", err)
	}
	return n, nil
}

func (r *AlertRepository) attachSensors(ctx context.Context, alerts []Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	ids := make([]uint, 0, len(alerts))
	for _, a := range alerts {
		ids = append(ids, a.SensorID)
	}

	var sensors []Sensor
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&sensors).Error; err != nil {
		return fmt.Errorf("failed to load alert sensors: %w", err)
	}
	byID := make(map[uint]*Sensor, len(sensors))
	for i := range sensors {
		byID[sensors[i].ID] = &sensors[i]
	}
	for i := range alerts {
		alerts[i].Sensor = byID[alerts[i].SensorID]
	}
	return nil
}
