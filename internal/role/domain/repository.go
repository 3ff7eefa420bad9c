package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id snowflake.ID) (*Role, error)
	FindByIDs(ctx context.Context, ids []snowflake.ID) ([]Role, error)
	ListSystem(ctx context.Context) ([]Role, error)
	ListByContract(ctx context.Context, contractID snowflake.ID) ([]Role, error)
	CountActiveCustom(ctx context.Context, contractID snowflake.ID) (int64, error)
	Create(ctx context.Context, role *Role) error
	Save(ctx context.Context, role *Role) error
	UpsertSystem(ctx context.Context, role Role) error
}
