package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateContract(ctx context.Context, contract *Contract) error
	FindContract(ctx context.Context, id snowflake.ID) (*Contract, error)
	UpdateContract(ctx context.Context, id snowflake.ID, fields map[string]any) error
	CreateStore(ctx context.Context, store *Store) error
	FindStore(ctx context.Context, id snowflake.ID) (*Store, error)
	FindStoreByPublicID(ctx context.Context, publicID string) (*Store, error)
	ListStores(ctx context.Context, contractID snowflake.ID) ([]Store, error)
	ListStoresByContracts(ctx context.Context, contractIDs []snowflake.ID) ([]Store, error)
	CountStores(ctx context.Context, contractID snowflake.ID) (int64, error)
	SoftDeleteStore(ctx context.Context, contractID, storeID snowflake.ID) (bool, error)
}
