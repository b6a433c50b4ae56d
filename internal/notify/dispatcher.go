package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"warehouse.dev/monitor/internal/store"
	"warehouse.dev/monitor/pkg/metrics"
)

// DefaultTimeout bounds every recipient lookup and every delivery.
const DefaultTimeout = 5 * time.Second

// UserDirectory is the subset of the user store used for routing.
type UserDirectory interface {
	FindByRole(ctx context.Context, role store.Role) ([]store.User, error)
	FindByRoleAndZone(ctx context.Context, role store.Role, zoneID uint) ([]store.User, error)
}

// DispatcherConfig holds the configuration for the notification dispatcher.
type DispatcherConfig struct {
	Logger *slog.Logger
	Users  UserDirectory
	// Email receives messages for users with an email address. Optional.
	Email Channel
	// SMS receives messages for users with a phone number. Optional.
	SMS     Channel
	Metrics *metrics.AlertingMetrics
	Timeout time.Duration
}

// Result counts the deliveries of one Dispatch call.
type Result struct {
	Recipients int
	Sent       int
	Failed     int
}

// Dispatcher resolves recipients for an escalation level and fans a
// notification out to their channels.
type Dispatcher struct {
	logger  *slog.Logger
	users   UserDirectory
	email   Channel
	sms     Channel
	metrics *metrics.AlertingMetrics
	timeout time.Duration
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(cfg *DispatcherConfig) (*Dispatcher, error) {
	if cfg == nil {
		return nil, errors.New("dispatcher config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.Users == nil {
		return nil, errors.New("user directory cannot be nil")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Dispatcher{
		logger:  cfg.Logger,
		users:   cfg.Users,
		email:   cfg.Email,
		sms:     cfg.SMS,
		metrics: cfg.Metrics,
		timeout: timeout,
	}, nil
}

// Recipients returns the users to notify at level for an alert in zoneID.
// Admin alerts go to every Admin; lower levels go to users holding exactly
// that role who are members of the zone.
func (d *Dispatcher) Recipients(ctx context.Context, zoneID uint, level store.Role) ([]store.User, error) {
	switch level {
	case store.RoleAdmin:
		return d.users.FindByRole(ctx, store.RoleAdmin)
	case store.RoleOperator, store.RoleManager:
		return d.users.FindByRoleAndZone(ctx, level, zoneID)
	default:
		return nil, fmt.Errorf("unknown escalation level %q", level)
	}
}

// Dispatch delivers n to every recipient over every channel they have.
// Deliveries run concurrently, each under its own timeout; a failed delivery
// is logged and counted but never stops the others. The returned error only
// reports a failed recipient lookup.
func (d *Dispatcher) Dispatch(ctx context.Context, n Notification) (Result, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, d.timeout)
	users, err := d.Recipients(lookupCtx, n.ZoneID, n.Level)
	cancel()
	if err != nil {
		return Result{}, fmt.Errorf("failed to resolve recipients: %w", err)
	}

	log := d.logger.With("alert_id", n.AlertID, "sensor_id", n.SensorID, "level", n.Level)
	result := Result{Recipients: len(users)}
	if len(users) == 0 {
		log.Warn("no recipients for notification", "zone_id", n.ZoneID)
		return result, nil
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	deliver := func(ch Channel, to string, userID uint) {
		defer wg.Done()
		sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()

		err := send(sendCtx, ch, n.MessageTo(to))

		mu.Lock()
		defer mu.Unlock()
		status := "sent"
		if err != nil {
			status = "failed"
			result.Failed++
			log.Error("notification delivery failed",
				"channel", ch.Name(),
				"recipient", userID,
				"error", err,
			)
		} else {
			result.Sent++
		}
		if d.metrics != nil {
			d.metrics.NotificationsTotal.WithLabelValues(ch.Name(), status).Inc()
		}
	}

	for _, u := range users {
		if d.email != nil && u.Email != "" {
			wg.Add(1)
			go deliver(d.email, u.Email, u.ID)
		}
		if d.sms != nil && u.PhoneNumber != "" {
			wg.Add(1)
			go deliver(d.sms, u.PhoneNumber, u.ID)
		}
	}
	wg.Wait()

	log.Info("notification dispatched",
		"recipients", result.Recipients,
		"sent", result.Sent,
		"failed", result.Failed,
	)
	return result, nil
}

// send calls ch.Send and turns a panic into an error.
func send(ctx context.Context, ch Channel, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s channel: %v", ch.Name(), r)
		}
	}()
	return ch.Send(ctx, msg)
}
