// Package domain holds seat persistence models and the pure access rules over them.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
)

type SeatStatus string

const (
	SeatStatusPending   SeatStatus = "PENDING"
	SeatStatusActive    SeatStatus = "ACTIVE"
	SeatStatusSuspended SeatStatus = "SUSPENDED"
)

// ContractSeat binds one user to one contract.
type ContractSeat struct {
	ID                     snowflake.ID      `gorm:"primaryKey" json:"id"`
	UserID                 snowflake.ID      `gorm:"column:user_id;not null;uniqueIndex:ux_contract_seats_user_contract,priority:1" json:"user_id"`
	ContractID             snowflake.ID      `gorm:"column:contract_id;not null;index;uniqueIndex:ux_contract_seats_user_contract,priority:2" json:"contract_id"`
	Email                  string            `gorm:"type:text;not null" json:"email"`
	DefaultRoleID          snowflake.ID      `gorm:"column:default_role_id;not null" json:"default_role_id"`
	Status                 SeatStatus        `gorm:"type:text;not null" json:"status"`
	InvitationTokenHash    *string           `gorm:"column:invitation_token_hash;type:text;uniqueIndex" json:"-"`
	InvitationTokenExpires *time.Time        `gorm:"column:invitation_token_expires" json:"invitation_token_expires,omitempty"`
	InvitedBy              *snowflake.ID     `gorm:"column:invited_by" json:"invited_by,omitempty"`
	ActivatedAt            *time.Time        `json:"activated_at,omitempty"`
	SuspendedAt            *time.Time        `json:"suspended_at,omitempty"`
	CreatedAt              time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt              time.Time         `gorm:"not null" json:"updated_at"`
	StoreAccess            []SeatStoreAccess `gorm:"foreignKey:SeatID" json:"store_access"`
}

func (ContractSeat) TableName() string { return "contract_seats" }

// SeatStoreAccess is one entry of a seat's ordered store allow-list.
type SeatStoreAccess struct {
	SeatID    snowflake.ID  `gorm:"primaryKey;column:seat_id" json:"-"`
	StoreID   snowflake.ID  `gorm:"primaryKey;column:store_id" json:"store_id"`
	RoleID    *snowflake.ID `gorm:"column:role_id" json:"role_id,omitempty"`
	Position  int           `gorm:"not null" json:"position"`
	ExpiresAt *time.Time    `json:"expires_at,omitempty"`
	CreatedAt time.Time     `gorm:"not null" json:"created_at"`
}

func (SeatStoreAccess) TableName() string { return "seat_store_access" }

// Live reports whether the entry still grants access at now.
func (a SeatStoreAccess) Live(now time.Time) bool {
	return a.ExpiresAt == nil || now.Before(*a.ExpiresAt)
}

type SeatStoreTag struct {
	SeatID    snowflake.ID   `gorm:"primaryKey;column:seat_id" json:"seat_id"`
	StoreID   snowflake.ID   `gorm:"primaryKey;column:store_id" json:"store_id"`
	Tags      pq.StringArray `gorm:"type:text" json:"tags"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
}

func (SeatStoreTag) TableName() string { return "seat_store_tags" }

// SeatUsageEvent is append-only; counters are derived from it.
type SeatUsageEvent struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	SeatID         snowflake.ID `gorm:"column:seat_id;not null;uniqueIndex:ux_seat_usage_events_idem,priority:1" json:"seat_id"`
	ContractID     snowflake.ID `gorm:"column:contract_id;not null;index" json:"contract_id"`
	Metric         string       `gorm:"type:text;not null" json:"metric"`
	Quantity       int64        `gorm:"not null" json:"quantity"`
	IdempotencyKey *string      `gorm:"column:idempotency_key;type:text;uniqueIndex:ux_seat_usage_events_idem,priority:2" json:"idempotency_key,omitempty"`
	RecordedAt     time.Time    `gorm:"not null" json:"recorded_at"`
}

func (SeatUsageEvent) TableName() string { return "seat_usage_events" }

type SeatUsageCounter struct {
	SeatID    snowflake.ID `gorm:"primaryKey;column:seat_id" json:"seat_id"`
	Metric    string       `gorm:"primaryKey;type:text" json:"metric"`
	Total     int64        `gorm:"not null" json:"total"`
	UpdatedAt time.Time    `gorm:"not null" json:"updated_at"`
}

func (SeatUsageCounter) TableName() string { return "seat_usage_counters" }
