package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/accessd/internal/seat/domain"
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

func (r *repository) Create(ctx context.Context, seat *domain.ContractSeat) error {
	err := r.db.WithContext(ctx).Omit(clause.Associations).Create(seat).Error
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.ErrSeatExists
		}
		return err
	}
	if len(seat.StoreAccess) == 0 {
		return nil
	}
	return r.ReplaceStoreAccess(ctx, seat.ID, seat.StoreAccess)
}

func (r *repository) preloaded(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Preload("StoreAccess", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("position ASC")
	})
}

func (r *repository) FindByID(ctx context.Context, id snowflake.ID) (*domain.ContractSeat, error) {
	return r.first(r.preloaded(ctx).Where("id = ?", id))
}

func (r *repository) FindByTokenHash(ctx context.Context, hash string) (*domain.ContractSeat, error) {
	return r.first(r.preloaded(ctx).Where("invitation_token_hash = ?", hash))
}

func (r *repository) FindByUserAndContract(ctx context.Context, userID, contractID snowflake.ID) (*domain.ContractSeat, error) {
	return r.first(r.preloaded(ctx).Where("user_id = ? AND contract_id = ?", userID, contractID))
}

func (r *repository) first(stmt *gorm.DB) (*domain.ContractSeat, error) {
	var seat domain.ContractSeat
	if err := stmt.First(&seat).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &seat, nil
}

func (r *repository) ListByUser(ctx context.Context, userID snowflake.ID, statuses ...domain.SeatStatus) ([]domain.ContractSeat, error) {
	stmt := r.preloaded(ctx).Where("user_id = ?", userID)
	if len(statuses) > 0 {
		stmt = stmt.Where("status IN ?", statuses)
	}
	var seats []domain.ContractSeat
	if err := stmt.Order("contract_id ASC, id ASC").Find(&seats).Error; err != nil {
		return nil, err
	}
	return seats, nil
}

func (r *repository) ListByContract(ctx context.Context, contractID snowflake.ID) ([]domain.ContractSeat, error) {
	var seats []domain.ContractSeat
	err := r.preloaded(ctx).
		Where("contract_id = ?", contractID).
		Order("created_at ASC, id ASC").
		Find(&seats).Error
	if err != nil {
		return nil, err
	}
	return seats, nil
}

func (r *repository) CountByContract(ctx context.Context, contractID snowflake.ID, statuses ...domain.SeatStatus) (int64, error) {
	stmt := r.db.WithContext(ctx).Model(&domain.ContractSeat{}).Where("contract_id = ?", contractID)
	if len(statuses) > 0 {
		stmt = stmt.Where("status IN ?", statuses)
	}
	var count int64
	if err := stmt.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repository) CompareAndSetStatus(ctx context.Context, id snowflake.ID, from, to domain.SeatStatus, fields map[string]any) (bool, error) {
	updates := map[string]any{"status": to}
	for k, v := range fields {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&domain.ContractSeat{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ActivatePending(ctx context.Context, id snowflake.ID, tokenHash string, fields map[string]any) (bool, error) {
	updates := map[string]any{"status": domain.SeatStatusActive}
	for k, v := range fields {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&domain.ContractSeat{}).
		Where("id = ? AND status = ? AND invitation_token_hash = ?", id, domain.SeatStatusPending, tokenHash).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) UpdateFields(ctx context.Context, id snowflake.ID, fields map[string]any) error {
	res := r.db.WithContext(ctx).
		Model(&domain.ContractSeat{}).
		Where("id = ?", id).
		Updates(fields)
	if res.Error != nil {
		if db.IsDuplicateKeyErr(res.Error) {
			return domain.ErrSeatExists
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *repository) ReplaceStoreAccess(ctx context.Context, seatID snowflake.ID, entries []domain.SeatStoreAccess) error {
	if err := r.db.WithContext(ctx).
		Where("seat_id = ?", seatID).
		Delete(&domain.SeatStoreAccess{}).Error; err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	rows := make([]domain.SeatStoreAccess, len(entries))
	for i, entry := range entries {
		entry.SeatID = seatID
		entry.Position = i
		rows[i] = entry
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}

func (r *repository) UpsertStoreTags(ctx context.Context, tag domain.SeatStoreTag) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "seat_id"}, {Name: "store_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"tags", "updated_at"}),
	}).Create(&tag).Error
}

func (r *repository) ListStoreTags(ctx context.Context, seatID snowflake.ID) ([]domain.SeatStoreTag, error) {
	var tags []domain.SeatStoreTag
	err := r.db.WithContext(ctx).
		Where("seat_id = ?", seatID).
		Order("store_id ASC").
		Find(&tags).Error
	if err != nil {
		return nil, err
	}
	return tags, nil
}

func (r *repository) InsertUsageEvent(ctx context.Context, event *domain.SeatUsageEvent) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(event)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) IncrementUsageCounter(ctx context.Context, seatID snowflake.ID, metric string, delta int64, at time.Time) error {
	counter := domain.SeatUsageCounter{
		SeatID:    seatID,
		Metric:    metric,
		Total:     delta,
		UpdatedAt: at,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "seat_id"}, {Name: "metric"}},
		DoUpdates: clause.Assignments(map[string]any{
			"total":      gorm.Expr("seat_usage_counters.total + ?", delta),
			"updated_at": at,
		}),
	}).Create(&counter).Error
}

func (r *repository) ListUsageCounters(ctx context.Context, seatID snowflake.ID) ([]domain.SeatUsageCounter, error) {
	var counters []domain.SeatUsageCounter
	err := r.db.WithContext(ctx).
		Where("seat_id = ?", seatID).
		Order("metric ASC").
		Find(&counters).Error
	if err != nil {
		return nil, err
	}
	return counters, nil
}
