package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/accessd/internal/permission"
)

type Service interface {
	GetRole(ctx context.Context, id snowflake.ID) (*Role, error)
	ListSystemRoles(ctx context.Context) ([]Role, error)
	ListContractRoles(ctx context.Context, contractID snowflake.ID) ([]Role, error)
	CreateCustomRole(ctx context.Context, actorID snowflake.ID, contractID snowflake.ID, req CreateRoleRequest) (*Role, error)
	UpdateRole(ctx context.Context, actorID snowflake.ID, id snowflake.ID, patch UpdateRoleRequest) (*Role, error)
	DeleteRole(ctx context.Context, actorID snowflake.ID, id snowflake.ID) error
	CheckPermission(ctx context.Context, id snowflake.ID, feature permission.Feature, action permission.Action) (permission.Scope, error)
	SeedSystemRoles(ctx context.Context) error
}

type CreateRoleRequest struct {
	Name        string
	DisplayName string
	Description string
	Level       int
	Permissions permission.Permissions
}

// UpdateRoleRequest is a patch; nil fields are left untouched.
type UpdateRoleRequest struct {
	DisplayName *string
	Description *string
	Permissions *permission.Permissions
}

var (
	ErrNotFound            = errors.New("role_not_found")
	ErrSystemRoleImmutable = errors.New("system_role_immutable")
	ErrInvalidName         = errors.New("invalid_role_name")
	ErrInvalidLevel        = errors.New("invalid_role_level")
	ErrQuotaExceeded       = errors.New("role_quota_exceeded")
	ErrDuplicateName       = errors.New("role_name_taken")
)
