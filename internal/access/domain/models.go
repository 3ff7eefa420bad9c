// Package domain holds the access resolver's inputs and outputs.
package domain

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	contractdomain "github.com/smallbiznis/accessd/internal/contract/domain"
	"github.com/smallbiznis/accessd/internal/permission"
	roledomain "github.com/smallbiznis/accessd/internal/role/domain"
	seatdomain "github.com/smallbiznis/accessd/internal/seat/domain"
)

// AccessibleStore is one resolved store with the strongest rights any seat grants on it.
type AccessibleStore struct {
	StoreID        snowflake.ID           `json:"store_id"`
	PublicID       string                 `json:"public_id"`
	StoreName      string                 `json:"store_name"`
	ContractID     snowflake.ID           `json:"contract_id"`
	HasIntegration bool                   `json:"has_integration"`
	SeatID         snowflake.ID           `json:"seat_id"`
	RoleID         snowflake.ID           `json:"role_id"`
	RoleName       string                 `json:"role_name"`
	RoleLevel      int                    `json:"role_level"`
	Permissions    permission.Permissions `json:"permissions"`
}

// Purpose narrows resolution to seats and stores that can serve one capability.
type Purpose struct {
	Name               string
	Feature            permission.Feature
	Action             permission.Action
	MinScope           permission.Scope
	RequireIntegration bool
	// Any admits every role that grants at least one capability.
	Any bool
}

var (
	PurposeAny = Purpose{Name: "any", Any: true}

	PurposeAnalytics = Purpose{
		Name:               "analytics",
		Feature:            permission.FeatureAnalytics,
		Action:             permission.ActionView,
		MinScope:           permission.ScopeOwn,
		RequireIntegration: true,
	}
)

var ErrUnknownPurpose = errors.New("unknown_purpose")

func ParsePurpose(raw string) (Purpose, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", PurposeAny.Name:
		return PurposeAny, nil
	case PurposeAnalytics.Name:
		return PurposeAnalytics, nil
	}
	return Purpose{}, ErrUnknownPurpose
}

// Admits reports whether a permission table serves the purpose.
func (p Purpose) Admits(perms permission.Permissions) bool {
	if p.Any {
		return perms.Grants()
	}
	return perms.Allows(p.Feature, p.Action, p.MinScope)
}

// Snapshot is the read-only state one resolution runs over.
type Snapshot struct {
	Seats  []seatdomain.ContractSeat
	Roles  map[snowflake.ID]roledomain.Role
	Stores map[snowflake.ID][]contractdomain.Store
}

type ValidateAccessResult struct {
	Allowed []string `json:"allowed"`
	Denied  []string `json:"denied"`
}

type Service interface {
	ResolveAccessibleStores(ctx context.Context, userID snowflake.ID, purpose Purpose) ([]AccessibleStore, error)
	CheckStoreAccess(ctx context.Context, userID snowflake.ID, storePublicID string) (bool, error)
	ValidateAccess(ctx context.Context, userID snowflake.ID, storePublicIDs []string) (ValidateAccessResult, error)
	CheckPermission(ctx context.Context, roleID snowflake.ID, feature permission.Feature, action permission.Action) (permission.Scope, error)
}
