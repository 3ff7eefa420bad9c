package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/accessd/internal/user/domain"
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

func (r *repository) Create(ctx context.Context, user *domain.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *repository) FindByID(ctx context.Context, id snowflake.ID) (*domain.User, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *repository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.first(r.db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))))
}

func (r *repository) first(stmt *gorm.DB) (*domain.User, error) {
	var user domain.User
	if err := stmt.First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *repository) SetPasswordIfEmpty(ctx context.Context, id snowflake.ID, hash string, displayName string, at time.Time) (bool, error) {
	fields := map[string]any{
		"password_hash": hash,
		"updated_at":    at,
	}
	if displayName != "" {
		fields["display_name"] = displayName
	}
	res := r.db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ? AND (password_hash IS NULL OR password_hash = '')", id).
		Updates(fields)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
