package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/accessd/internal/contract/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) CreateContract(ctx context.Context, contract *domain.Contract) error {
	return r.db.WithContext(ctx).Create(contract).Error
}

func (r *repository) FindContract(ctx context.Context, id snowflake.ID) (*domain.Contract, error) {
	var contract domain.Contract
	err := r.db.WithContext(ctx).
		Where("id = ? AND is_deleted = ?", id, false).
		First(&contract).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &contract, nil
}

func (r *repository) UpdateContract(ctx context.Context, id snowflake.ID, fields map[string]any) error {
	res := r.db.WithContext(ctx).
		Model(&domain.Contract{}).
		Where("id = ? AND is_deleted = ?", id, false).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *repository) CreateStore(ctx context.Context, store *domain.Store) error {
	return r.db.WithContext(ctx).Create(store).Error
}

func (r *repository) FindStore(ctx context.Context, id snowflake.ID) (*domain.Store, error) {
	return r.firstStore(r.db.WithContext(ctx).Where("id = ? AND is_deleted = ?", id, false))
}

func (r *repository) FindStoreByPublicID(ctx context.Context, publicID string) (*domain.Store, error) {
	return r.firstStore(r.db.WithContext(ctx).Where("public_id = ? AND is_deleted = ?", publicID, false))
}

func (r *repository) firstStore(stmt *gorm.DB) (*domain.Store, error) {
	var store domain.Store
	if err := stmt.First(&store).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrStoreNotFound
		}
		return nil, err
	}
	return &store, nil
}

func (r *repository) ListStores(ctx context.Context, contractID snowflake.ID) ([]domain.Store, error) {
	return r.ListStoresByContracts(ctx, []snowflake.ID{contractID})
}

func (r *repository) ListStoresByContracts(ctx context.Context, contractIDs []snowflake.ID) ([]domain.Store, error) {
	if len(contractIDs) == 0 {
		return nil, nil
	}
	var stores []domain.Store
	err := r.db.WithContext(ctx).
		Where("contract_id IN ? AND is_deleted = ?", contractIDs, false).
		Order("contract_id ASC, id ASC").
		Find(&stores).Error
	if err != nil {
		return nil, err
	}
	return stores, nil
}

func (r *repository) CountStores(ctx context.Context, contractID snowflake.ID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.Store{}).
		Where("contract_id = ? AND is_deleted = ?", contractID, false).
		Count(&count).Error
	return count, err
}

func (r *repository) SoftDeleteStore(ctx context.Context, contractID, storeID snowflake.ID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.Store{}).
		Where("id = ? AND contract_id = ? AND is_deleted = ?", storeID, contractID, false).
		Update("is_deleted", true)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
