package store

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository is the user directory used for notification routing.
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a UserRepository.
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// List returns all users with their zones, ordered by name.
func (r *UserRepository) List(ctx context.Context) ([]User, error) {
	var users []User
	if err := r.db.WithContext(ctx).Preload("Zones").Order("name").Order("id").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// Get returns one user with zones.
func (r *UserRepository) Get(ctx context.Context, id uint) (*User, error) {
	var user User
	if err := r.db.WithContext(ctx).Preload("Zones").First(&user, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// Create inserts a user and its zone memberships.
func (r *UserRepository) Create(ctx context.Context, user *User) error {
	user.Name = strings.TrimSpace(user.Name)
	user.Email = strings.TrimSpace(user.Email)
	switch {
	case user.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalid)
	case user.Email == "":
		return fmt.Errorf("%w: email is required", ErrInvalid)
	case !user.Role.Valid():
		return fmt.Errorf("%w: role must be Operator, Manager or Admin", ErrInvalid)
	case user.Role == RoleAdmin && len(user.Zones) > 0:
		return ErrAdminZones
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		zones := user.Zones
		user.Zones = nil
		if err := tx.Omit(clause.Associations).Create(user).Error; err != nil {
			return err
		}
		if len(zones) == 0 {
			return nil
		}
		resolved, err := findZones(tx, zoneIDs(zones))
		if err != nil {
			return err
		}
		if err := tx.Model(user).Association("Zones").Replace(resolved); err != nil {
			return fmt.Errorf("failed to assign zones: %w", err)
		}
		user.Zones = resolved
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: email %q", ErrAlreadyExists, user.Email)
		}
		return err
	}
	return nil
}

// AssignZones replaces the zone memberships of a non-Admin user.
func (r *UserRepository) AssignZones(ctx context.Context, userID uint, ids []uint) (*User, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user User
		if err := tx.First(&user, userID).Error; err != nil {
			return notFound(err)
		}
		if user.Role == RoleAdmin {
			return ErrAdminZones
		}
		zones, err := findZones(tx, ids)
		if err != nil {
			return err
		}
		if err := tx.Model(&user).Association("Zones").Replace(zones); err != nil {
			return fmt.Errorf("failed to assign zones: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, userID)
}

// FindByRole returns every user holding role.
func (r *UserRepository) FindByRole(ctx context.Context, role Role) ([]User, error) {
	var users []User
	if err := r.db.WithContext(ctx).Where("role = ?", role).Order("id").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to find users by role: %w", err)
	}
	return users, nil
}

// FindByRoleAndZone returns users holding role who are members of zoneID.
func (r *UserRepository) FindByRoleAndZone(ctx context.Context, role Role, zoneID uint) ([]User, error) {
	var users []User
	err := r.db.WithContext(ctx).
		Joins("JOIN user_zones ON user_zones.user_id = users.id").
		Where("users.role = ? AND user_zones.zone_id = ?", role, zoneID).
		Order("users.id").
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find users by role and zone: %w", err)
	}
	return users, nil
}

func findZones(tx *gorm.DB, ids []uint) ([]Zone, error) {
	zones := []Zone{}
	if len(ids) == 0 {
		return zones, nil
	}
	if err := tx.Where("id IN ?", ids).Find(&zones).Error; err != nil {
		return nil, fmt.Errorf("failed to load zones: %w", err)
	}
	if len(zones) != len(dedupe(ids)) {
		return nil, fmt.Errorf("%w: unknown zone in %v", ErrInvalid, ids)
	}
	return zones, nil
}

func zoneIDs(zones []Zone) []uint {
	ids := make([]uint, len(zones))
	for i, z := range zones {
		ids[i] = z.ID
	}
	return ids
}

func dedupe(ids []uint) map[uint]struct{} {
	set := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
