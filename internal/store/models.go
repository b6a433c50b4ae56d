// Package store persists zones, sensors, readings, alerts and users with gorm.
package store

import (
	"math"
	"time"
)

// Metric names a measured quantity.
type Metric string

const (
	MetricTemperature Metric = "temperature"
	MetricHumidity    Metric = "humidity"
)

// Valid reports whether m is a known metric.
func (m Metric) Valid() bool {
	return m == MetricTemperature || m == MetricHumidity
}

// Role is a user role and, for alerts, the escalation level.
type Role string

const (
	RoleOperator Role = "Operator"
	RoleManager  Role = "Manager"
	RoleAdmin    Role = "Admin"
)

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleOperator, RoleManager, RoleAdmin:
		return true
	}
	return false
}

// AlertStatus is the lifecycle state of an alert.
type AlertStatus string

const (
	AlertTriggered    AlertStatus = "triggered"
	AlertAcknowledged AlertStatus = "acknowledged"
	AlertResolved     AlertStatus = "resolved"
)

// Severity of an alert. New alerts are always SeverityMedium.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// HistoryStatus labels an alert history entry.
type HistoryStatus string

const (
	HistoryTriggered    HistoryStatus = "triggered"
	HistoryEscalated    HistoryStatus = "escalated"
	HistoryAcknowledged HistoryStatus = "acknowledged"
	HistoryResolved     HistoryStatus = "resolved"
)

// Zone is a named physical area of the warehouse.
type Zone struct {
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
	Name        string    `gorm:"uniqueIndex;size:128;not null" json:"name"`
	Description string    `gorm:"size:512" json:"description,omitempty"`
	ID          uint      `gorm:"primaryKey" json:"id"`
}

// TableName specifies the table name for Zone model.
func (Zone) TableName() string {
	return "zones"
}

// Range is an optional min/max pair. A nil bound is unset.
type Range struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// Thresholds is the nested threshold configuration of a sensor.
type Thresholds struct {
	Temperature Range `gorm:"embedded;embeddedPrefix:temperature_" json:"temperature"`
	Humidity    Range `gorm:"embedded;embeddedPrefix:humidity_" json:"humidity"`
}

// Sensor is a physical device in a zone. The flat Min*/Max* fields are the
// legacy threshold fields and take precedence over Thresholds per bound.
type Sensor struct {
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
	Zone            *Zone      `gorm:"foreignKey:ZoneID;constraint:OnDelete:RESTRICT" json:"zone,omitempty"`
	ZoneID          *uint      `gorm:"index" json:"zoneId,omitempty"`
	MinTemperature  *float64   `json:"minTemperature,omitempty"`
	MaxTemperature  *float64   `json:"maxTemperature,omitempty"`
	MinHumidity     *float64   `json:"minHumidity,omitempty"`
	MaxHumidity     *float64   `json:"maxHumidity,omitempty"`
	SensorID        string     `gorm:"uniqueIndex;size:64;not null" json:"sensorId"`
	Type            Metric     `gorm:"size:16;not null" json:"type"`
	TemperatureUnit string     `gorm:"size:1;not null;default:C" json:"temperatureUnit"`
	Thresholds      Thresholds `gorm:"embedded;embeddedPrefix:thr_" json:"thresholds"`
	Latitude        float64    `json:"latitude"`
	Longitude       float64    `json:"longitude"`
	ID              uint       `gorm:"primaryKey" json:"id"`
}

// TableName specifies the table name for Sensor model.
func (Sensor) TableName() string {
	return "sensors"
}

// Metric returns the metric the sensor's type selects.
func (s *Sensor) Metric() Metric {
	return s.Type
}

// Unit returns the display unit for the sensor's metric.
func (s *Sensor) Unit() string {
	if s.Type == MetricHumidity {
		return "%"
	}
	if s.TemperatureUnit == "" {
		return "C"
	}
	return s.TemperatureUnit
}

// Reading is one append-only measurement. ID orders readings by insertion.
type Reading struct {
	Timestamp   time.Time `gorm:"index:idx_readings_sensor_ts,priority:2;not null" json:"timestamp"`
	Temperature *float64  `json:"temperature,omitempty"`
	Humidity    *float64  `json:"humidity,omitempty"`
	SensorID    string    `gorm:"index:idx_readings_sensor_ts,priority:1;size:64;not null" json:"sensorId"`
	WarehouseID string    `gorm:"size:64" json:"warehouseId"`
	ID          uint      `gorm:"primaryKey" json:"id"`
}

// TableName specifies the table name for Reading model.
func (Reading) TableName() string {
	return "readings"
}

// Value returns the reading's value for m, or ok=false when it is missing
// or not a finite number.
func (r *Reading) Value(m Metric) (float64, bool) {
	var v *float64
	switch m {
	case MetricTemperature:
		v = r.Temperature
	case MetricHumidity:
		v = r.Humidity
	}
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return 0, false
	}
	return *v, true
}

// Alert tracks one excursion of a sensor outside its safe range.
// At most one non-resolved alert exists per sensor (idx_alerts_open_sensor).
// Sensor is not a gorm association; AlertRepository attaches it on reads.
type Alert struct {
	TriggeredAt         time.Time      `gorm:"not null;index" json:"triggeredAt"`
	UpdatedAt           time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
	AcknowledgedAt      *time.Time     `json:"acknowledgedAt,omitempty"`
	ResolvedAt          *time.Time     `json:"resolvedAt,omitempty"`
	AcknowledgedBy      *uint          `json:"acknowledgedBy,omitempty"`
	Sensor              *Sensor        `gorm:"-" json:"sensor,omitempty"`
	Zone                *Zone          `gorm:"foreignKey:ZoneID" json:"zone,omitempty"`
	Status              AlertStatus    `gorm:"size:16;not null;index" json:"status"`
	Severity            Severity       `gorm:"size:16;not null" json:"severity"`
	EscalationLevel     Role           `gorm:"size:16;not null" json:"escalationLevel"`
	History             []AlertHistory `gorm:"foreignKey:AlertID;constraint:OnDelete:CASCADE" json:"history"`
	ConsecutiveBreaches int            `gorm:"not null;default:0" json:"consecutiveBreaches"`
	SensorID            uint           `gorm:"not null;index" json:"sensorId"`
	ZoneID              uint           `gorm:"not null;index" json:"zoneId"`
	ID                  uint           `gorm:"primaryKey" json:"id"`
}

// TableName specifies the table name for Alert model.
func (Alert) TableName() string {
	return "alerts"
}

// Open reports whether the alert is not yet resolved.
func (a *Alert) Open() bool {
	return a.Status != AlertResolved
}

// AlertHistory is one append-only entry of an alert's audit trail.
type AlertHistory struct {
	Timestamp time.Time     `gorm:"not null" json:"timestamp"`
	Status    HistoryStatus `gorm:"size:16;not null" json:"status"`
	Note      string        `gorm:"size:512" json:"note"`
	AlertID   uint          `gorm:"not null;index" json:"-"`
	ID        uint          `gorm:"primaryKey" json:"-"`
}

// TableName specifies the table name for AlertHistory model.
func (AlertHistory) TableName() string {
	return "alert_history"
}

// User is a notification recipient. Admins are never members of zones.
type User struct {
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
	Name        string    `gorm:"size:128;not null" json:"name"`
	Email       string    `gorm:"uniqueIndex;size:256;not null" json:"email"`
	PhoneNumber string    `gorm:"size:32" json:"phoneNumber,omitempty"`
	Role        Role      `gorm:"size:16;not null;index" json:"role"`
	Zones       []Zone    `gorm:"many2many:user_zones" json:"zones"`
	ID          uint      `gorm:"primaryKey" json:"id"`
}

// TableName specifies the table name for User model.
func (User) TableName() string {
	return "users"
}

// InZone reports whether the user is a member of zoneID.
func (u *User) InZone(zoneID uint) bool {
	for _, z := range u.Zones {
		if z.ID == zoneID {
			return true
		}
	}
	return false
}
