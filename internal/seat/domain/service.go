package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	GetSeat(ctx context.Context, id snowflake.ID) (*ContractSeat, error)
	ListActiveSeatsByUser(ctx context.Context, userID snowflake.ID) ([]ContractSeat, error)
	ListSeatsByContract(ctx context.Context, contractID snowflake.ID) ([]ContractSeat, error)
	Suspend(ctx context.Context, id snowflake.ID) (*ContractSeat, error)
	Reactivate(ctx context.Context, id snowflake.ID) (*ContractSeat, error)
	SetStoreAccess(ctx context.Context, id snowflake.ID, entries []StoreAccessInput) (*ContractSeat, error)
	SetDefaultRole(ctx context.Context, id snowflake.ID, roleID snowflake.ID) (*ContractSeat, error)
	SetStoreTags(ctx context.Context, id snowflake.ID, storeID snowflake.ID, tags []string) (*SeatStoreTag, error)
	ListStoreTags(ctx context.Context, id snowflake.ID) ([]SeatStoreTag, error)
	RecordUsage(ctx context.Context, req RecordUsageRequest) (*SeatUsageCounter, error)
	GetUsage(ctx context.Context, id snowflake.ID) ([]SeatUsageCounter, error)
}

type StoreAccessInput struct {
	StoreID   snowflake.ID
	RoleID    *snowflake.ID
	ExpiresAt *time.Time
}

type RecordUsageRequest struct {
	SeatID         snowflake.ID
	Metric         string
	Quantity       int64
	IdempotencyKey string
}

var (
	ErrNotFound          = errors.New("seat_not_found")
	ErrSeatExists        = errors.New("seat_exists")
	ErrInvalidTransition = errors.New("invalid_seat_transition")
	ErrSeatNotActive     = errors.New("seat_not_active")
	ErrOwnerSeat         = errors.New("owner_seat_protected")
	ErrDuplicateStore    = errors.New("duplicate_store_access")
	ErrStoreNotInScope   = errors.New("store_not_in_contract")
	ErrRoleNotUsable     = errors.New("role_not_usable")
	ErrInvalidUsage      = errors.New("invalid_usage")
	ErrQuotaExceeded     = errors.New("user_quota_exceeded")
)
