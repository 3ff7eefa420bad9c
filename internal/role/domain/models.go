// Package domain contains persistence models for roles.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/accessd/internal/permission"
)

const (
	LevelOwner   = 100
	LevelAdmin   = 80
	LevelManager = 60
	LevelAnalyst = 40
	LevelViewer  = 20
)

// Role is a named, ranked permission bundle. System roles have no contract.
type Role struct {
	ID           snowflake.ID           `gorm:"primaryKey" json:"id"`
	ContractID   *snowflake.ID          `gorm:"column:contract_id;uniqueIndex:ux_roles_contract_name,priority:1" json:"contract_id,omitempty"`
	Name         string                 `gorm:"type:text;not null;uniqueIndex:ux_roles_contract_name,priority:2" json:"name"`
	DisplayName  string                 `gorm:"type:text;not null" json:"display_name"`
	Description  string                 `gorm:"type:text" json:"description"`
	IsSystemRole bool                   `gorm:"column:is_system_role;not null" json:"is_system_role"`
	IsActive     bool                   `gorm:"column:is_active;not null" json:"is_active"`
	Level        int                    `gorm:"not null" json:"level"`
	Permissions  permission.Permissions `gorm:"type:text;not null;serializer:json" json:"permissions"`
	CreatedAt    time.Time              `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time              `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Role) TableName() string { return "roles" }

// UsableIn reports whether the role can be newly assigned on the given contract.
func (r Role) UsableIn(contractID snowflake.ID) bool {
	if !r.IsActive {
		return false
	}
	if r.IsSystemRole {
		return true
	}
	return r.ContractID != nil && *r.ContractID == contractID
}

// IsOwnerLevel reports whether the role may own a contract.
func (r Role) IsOwnerLevel() bool {
	return r.Level >= LevelOwner
}
