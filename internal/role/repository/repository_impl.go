package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/accessd/internal/role/domain"
	"github.com/smallbiznis/accessd/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
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

func (r *repository) FindByID(ctx context.Context, id snowflake.ID) (*domain.Role, error) {
	var role domain.Role
	if err := r.db.WithContext(ctx).First(&role, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &role, nil
}

func (r *repository) FindByIDs(ctx context.Context, ids []snowflake.ID) ([]domain.Role, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var roles []domain.Role
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&roles).Error; err != nil {
		return nil, err
	}
	return roles, nil
}

func (r *repository) ListSystem(ctx context.Context) ([]domain.Role, error) {
	var roles []domain.Role
	err := r.db.WithContext(ctx).
		Where("is_system_role = ? AND is_active = ?", true, true).
		Order("level DESC, id ASC").
		Find(&roles).Error
	if err != nil {
		return nil, err
	}
	return roles, nil
}

func (r *repository) ListByContract(ctx context.Context, contractID snowflake.ID) ([]domain.Role, error) {
	var roles []domain.Role
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND (is_system_role = ? OR contract_id = ?)", true, true, contractID).
		Order("level DESC, id ASC").
		Find(&roles).Error
	if err != nil {
		return nil, err
	}
	return roles, nil
}

func (r *repository) CountActiveCustom(ctx context.Context, contractID snowflake.ID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.Role{}).
		Where("contract_id = ? AND is_system_role = ? AND is_active = ?", contractID, false, true).
		Count(&count).Error
	return count, err
}

func (r *repository) Create(ctx context.Context, role *domain.Role) error {
	err := r.db.WithContext(ctx).Create(role).Error
	if db.IsDuplicateKeyErr(err) {
		return domain.ErrDuplicateName
	}
	return err
}

func (r *repository) Save(ctx context.Context, role *domain.Role) error {
	return r.db.WithContext(ctx).Save(role).Error
}

// UpsertSystem inserts the role or rewrites the existing row from its definition.
func (r *repository) UpsertSystem(ctx context.Context, role domain.Role) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "display_name", "description", "level",
				"permissions", "is_system_role", "is_active", "updated_at",
			}),
		}).
		Create(&role).Error
}
