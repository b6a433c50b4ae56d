// Package auth decides what each role may do and issues and verifies the
// bearer tokens that carry a user's role.
package auth

import (
	"errors"
	"fmt"
	"strings"

	"warehouse.dev/monitor/internal/store"
)

var (
	// ErrUnauthorized is returned when no valid credentials were presented.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden is returned when the caller's role may not perform the action.
	ErrForbidden = errors.New("forbidden")
)

// Action is an operation subject to authorization.
type Action string

const (
	ViewDashboard    Action = "view-dashboard"
	ViewAlerts       Action = "view-alerts"
	AcknowledgeAlert Action = "acknowledge-alert"
	IngestReading    Action = "ingest-reading"
	ViewZones        Action = "view-zones"
	ManageSensors    Action = "manage-sensors"
	ManageZones      Action = "manage-zones"
	ManageUsers      Action = "manage-users"
)

var (
	everyone    = roles(store.RoleOperator, store.RoleManager, store.RoleAdmin)
	supervisors = roles(store.RoleManager, store.RoleAdmin)
	adminsOnly  = roles(store.RoleAdmin)
	policy      = map[Action]map[store.Role]bool{
		ViewDashboard:    everyone,
		ViewAlerts:       everyone,
		AcknowledgeAlert: supervisors,
		IngestReading:    supervisors,
		ViewZones:        supervisors,
		ManageSensors:    supervisors,
		ManageZones:      adminsOnly,
		ManageUsers:      adminsOnly,
	}
)

func roles(rs ...store.Role) map[store.Role]bool {
	m := make(map[store.Role]bool, len(rs))
	for _, r := range rs {
		m[r] = true
	}
	return m
}

// Allowed reports whether role may perform action. Unknown roles and
// actions are denied.
func Allowed(role store.Role, action Action) bool {
	return policy[action][role]
}

// Authorize returns ErrForbidden unless role may perform action.
func Authorize(role store.Role, action Action) error {
	if !Allowed(role, action) {
		return fmt.Errorf("%w: %s may not %s", ErrForbidden, role, action)
	}
	return nil
}

// ParseRole accepts a role name in any letter case.
func ParseRole(s string) (store.Role, error) {
	for _, r := range []store.Role{store.RoleOperator, store.RoleManager, store.RoleAdmin} {
		if strings.EqualFold(s, string(r)) {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role %q", s)
}
