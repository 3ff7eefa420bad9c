package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, seat *ContractSeat) error
	FindByID(ctx context.Context, id snowflake.ID) (*ContractSeat, error)
	FindByTokenHash(ctx context.Context, hash string) (*ContractSeat, error)
	FindByUserAndContract(ctx context.Context, userID, contractID snowflake.ID) (*ContractSeat, error)
	ListByUser(ctx context.Context, userID snowflake.ID, statuses ...SeatStatus) ([]ContractSeat, error)
	ListByContract(ctx context.Context, contractID snowflake.ID) ([]ContractSeat, error)
	CountByContract(ctx context.Context, contractID snowflake.ID, statuses ...SeatStatus) (int64, error)
	// CompareAndSetStatus moves the seat only when it is still in from; it reports whether a row changed.
	CompareAndSetStatus(ctx context.Context, id snowflake.ID, from, to SeatStatus, fields map[string]any) (bool, error)
	// ActivatePending moves a PENDING seat still holding tokenHash to ACTIVE; it reports whether a row changed.
	ActivatePending(ctx context.Context, id snowflake.ID, tokenHash string, fields map[string]any) (bool, error)
	UpdateFields(ctx context.Context, id snowflake.ID, fields map[string]any) error
	ReplaceStoreAccess(ctx context.Context, seatID snowflake.ID, entries []SeatStoreAccess) error
	UpsertStoreTags(ctx context.Context, tag SeatStoreTag) error
	ListStoreTags(ctx context.Context, seatID snowflake.ID) ([]SeatStoreTag, error)
	InsertUsageEvent(ctx context.Context, event *SeatUsageEvent) (bool, error)
	IncrementUsageCounter(ctx context.Context, seatID snowflake.ID, metric string, delta int64, at time.Time) error
	ListUsageCounters(ctx context.Context, seatID snowflake.ID) ([]SeatUsageCounter, error)
}
