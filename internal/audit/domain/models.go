package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/accessd/pkg/db/pagination"
	"gorm.io/datatypes"
)

type ActorType string

const (
	ActorTypeUser   ActorType = "user"
	ActorTypeSystem ActorType = "system"
)

const (
	ActionContractCreated      = "contract.created"
	ActionContractQuotas       = "contract.quotas_updated"
	ActionOwnershipTransferred = "contract.ownership_transferred"
	ActionStoreCreated         = "store.created"
	ActionStoreDeleted         = "store.deleted"
	ActionSeatInvited          = "seat.invited"
	ActionSeatActivated        = "seat.activated"
	ActionSeatSuspended        = "seat.suspended"
	ActionSeatReactivated      = "seat.reactivated"
	ActionSeatRoleChanged      = "seat.role_changed"
	ActionSeatStoreAccess      = "seat.store_access_updated"
	ActionSeatStoreTags        = "seat.store_tags_updated"
	ActionAuthorizationDenied  = "authorization.denied"
	ActionInvitationResent     = "invitation.resent"
	ActionRoleCreated          = "role.created"
	ActionRoleUpdated          = "role.updated"
	ActionRoleDeleted          = "role.deleted"
)

type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	ContractID *snowflake.ID     `gorm:"column:contract_id;index" json:"contract_id,omitempty"`
	ActorType  string            `gorm:"type:text;not null" json:"actor_type"`
	ActorID    *string           `gorm:"type:text" json:"actor_id,omitempty"`
	Action     string            `gorm:"type:text;not null;index" json:"action"`
	TargetType string            `gorm:"type:text;not null" json:"target_type"`
	TargetID   *string           `gorm:"type:text" json:"target_id,omitempty"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty"`
	IPAddress  *string           `gorm:"type:text" json:"ip_address,omitempty"`
	UserAgent  *string           `gorm:"type:text" json:"user_agent,omitempty"`
	CreatedAt  time.Time         `gorm:"not null;index" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }

type ListFilter struct {
	ContractID snowflake.ID
	Action     string
	TargetType string
	TargetID   string
	Cursor     *pagination.Cursor
	Limit      int
}
