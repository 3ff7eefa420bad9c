package service

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/accessd/internal/audit/domain"
	"github.com/smallbiznis/accessd/internal/cache"
	"github.com/smallbiznis/accessd/internal/clock"
	contractdomain "github.com/smallbiznis/accessd/internal/contract/domain"
	"github.com/smallbiznis/accessd/internal/observability/metrics"
	roledomain "github.com/smallbiznis/accessd/internal/role/domain"
	"github.com/smallbiznis/accessd/internal/seat/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxMetricLength = 64

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      domain.Repository
	Contracts contractdomain.Repository
	Roles     roledomain.Repository
	Audit     auditdomain.Service
	Cache     cache.AccessCache
	Metrics   *metrics.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	contracts contractdomain.Repository
	roles     roledomain.Repository
	audit     auditdomain.Service
	cache     cache.AccessCache
	metrics   *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("seat.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		contracts: p.Contracts,
		roles:     p.Roles,
		audit:     p.Audit,
		cache:     p.Cache,
		metrics:   p.Metrics,
	}
}

func (s *Service) GetSeat(ctx context.Context, id snowflake.ID) (*domain.ContractSeat, error) {
	if id == 0 {
		return nil, domain.ErrNotFound
	}
	return s.repo.FindByID(ctx, id)
}

func (s *Service) ListActiveSeatsByUser(ctx context.Context, userID snowflake.ID) ([]domain.ContractSeat, error) {
	return s.repo.ListByUser(ctx, userID, domain.SeatStatusActive)
}

func (s *Service) ListSeatsByContract(ctx context.Context, contractID snowflake.ID) ([]domain.ContractSeat, error) {
	if _, err := s.contracts.FindContract(ctx, contractID); err != nil {
		return nil, err
	}
	return s.repo.ListByContract(ctx, contractID)
}

// Suspend moves an ACTIVE seat to SUSPENDED. The contract owner's seat cannot be suspended.
func (s *Service) Suspend(ctx context.Context, id snowflake.ID) (*domain.ContractSeat, error) {
	seat, err := s.GetSeat(ctx, id)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(seat.Status, domain.SeatStatusSuspended) {
		return nil, domain.ErrInvalidTransition
	}
	if err := s.guardOwner(ctx, seat); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	ok, err := s.repo.CompareAndSetStatus(ctx, seat.ID, domain.SeatStatusActive, domain.SeatStatusSuspended, map[string]any{
		"suspended_at": now,
		"updated_at":   now,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrInvalidTransition
	}

	return s.afterTransition(ctx, seat, domain.SeatStatusSuspended, auditdomain.ActionSeatSuspended)
}

// Reactivate moves a SUSPENDED seat back to ACTIVE when the contract still has user capacity.
func (s *Service) Reactivate(ctx context.Context, id snowflake.ID) (*domain.ContractSeat, error) {
	seat, err := s.GetSeat(ctx, id)
	if err != nil {
		return nil, err
	}
	if seat.Status != domain.SeatStatusSuspended {
		return nil, domain.ErrInvalidTransition
	}
	contract, err := s.contracts.FindContract(ctx, seat.ContractID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		used, err := repo.CountByContract(ctx, seat.ContractID, domain.SeatStatusPending, domain.SeatStatusActive)
		if err != nil {
			return err
		}
		if used >= int64(contract.MaxUsers) {
			return domain.ErrQuotaExceeded
		}
		ok, err := repo.CompareAndSetStatus(ctx, seat.ID, domain.SeatStatusSuspended, domain.SeatStatusActive, map[string]any{
			"suspended_at": nil,
			"updated_at":   now,
		})
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrInvalidTransition
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.afterTransition(ctx, seat, domain.SeatStatusActive, auditdomain.ActionSeatReactivated)
}

func (s *Service) afterTransition(ctx context.Context, seat *domain.ContractSeat, to domain.SeatStatus, action string) (*domain.ContractSeat, error) {
	s.cache.InvalidateUser(ctx, seat.UserID)
	s.metrics.RecordSeatTransition(ctx, string(to))
	s.log.Info("seat status changed",
		zap.String("seat_id", seat.ID.String()),
		zap.String("from", string(seat.Status)),
		zap.String("to", string(to)),
	)
	s.record(ctx, seat, action, map[string]any{
		"from": string(seat.Status),
		"to":   string(to),
	})
	return s.repo.FindByID(ctx, seat.ID)
}

// SetStoreAccess replaces the seat's ordered allow-list. An empty list grants every store of the contract.
func (s *Service) SetStoreAccess(ctx context.Context, id snowflake.ID, entries []domain.StoreAccessInput) (*domain.ContractSeat, error) {
	seat, err := s.GetSeat(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	rows := make([]domain.SeatStoreAccess, 0, len(entries))
	seen := make(map[snowflake.ID]struct{}, len(entries))
	for _, entry := range entries {
		if _, dup := seen[entry.StoreID]; dup {
			return nil, domain.ErrDuplicateStore
		}
		seen[entry.StoreID] = struct{}{}

		if err := s.ensureStoreInScope(ctx, seat.ContractID, entry.StoreID); err != nil {
			return nil, err
		}
		if entry.RoleID != nil && *entry.RoleID != 0 {
			if err := s.ensureRoleUsable(ctx, seat.ContractID, *entry.RoleID); err != nil {
				return nil, err
			}
		}
		rows = append(rows, domain.SeatStoreAccess{
			StoreID:   entry.StoreID,
			RoleID:    entry.RoleID,
			ExpiresAt: entry.ExpiresAt,
			CreatedAt: now,
		})
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.ReplaceStoreAccess(ctx, seat.ID, rows); err != nil {
			return err
		}
		return repo.UpdateFields(ctx, seat.ID, map[string]any{"updated_at": now})
	})
	if err != nil {
		return nil, err
	}

	s.cache.InvalidateUser(ctx, seat.UserID)
	storeIDs := make([]string, len(rows))
	for i, row := range rows {
		storeIDs[i] = row.StoreID.String()
	}
	s.record(ctx, seat, auditdomain.ActionSeatStoreAccess, map[string]any{
		"store_ids": storeIDs,
	})
	return s.repo.FindByID(ctx, seat.ID)
}

// SetDefaultRole changes the seat's contract-wide role. Owner-level roles are never assignable here;
// ownership moves only through contract ownership transfer.
func (s *Service) SetDefaultRole(ctx context.Context, id snowflake.ID, roleID snowflake.ID) (*domain.ContractSeat, error) {
	seat, err := s.GetSeat(ctx, id)
	if err != nil {
		return nil, err
	}
	if seat.DefaultRoleID == roleID {
		return seat, nil
	}
	role, err := s.usableRole(ctx, seat.ContractID, roleID)
	if err != nil {
		return nil, err
	}
	if err := s.guardOwner(ctx, seat); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateFields(ctx, seat.ID, map[string]any{
		"default_role_id": role.ID,
		"updated_at":      s.clock.Now(),
	}); err != nil {
		return nil, err
	}

	s.cache.InvalidateUser(ctx, seat.UserID)
	s.record(ctx, seat, auditdomain.ActionSeatRoleChanged, map[string]any{
		"from_role_id": seat.DefaultRoleID.String(),
		"to_role_id":   role.ID.String(),
	})
	return s.repo.FindByID(ctx, seat.ID)
}

// SetStoreTags replaces the tags the seat carries for one store. Tags are trimmed, lowercased and deduplicated.
func (s *Service) SetStoreTags(ctx context.Context, id snowflake.ID, storeID snowflake.ID, tags []string) (*domain.SeatStoreTag, error) {
	seat, err := s.GetSeat(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.ensureStoreInScope(ctx, seat.ContractID, storeID); err != nil {
		return nil, err
	}

	tag := domain.SeatStoreTag{
		SeatID:    seat.ID,
		StoreID:   storeID,
		Tags:      normalizeTags(tags),
		UpdatedAt: s.clock.Now(),
	}
	if err := s.repo.UpsertStoreTags(ctx, tag); err != nil {
		return nil, err
	}

	s.record(ctx, seat, auditdomain.ActionSeatStoreTags, map[string]any{
		"store_id": storeID.String(),
		"tags":     []string(tag.Tags),
	})
	return &tag, nil
}

func (s *Service) ListStoreTags(ctx context.Context, id snowflake.ID) ([]domain.SeatStoreTag, error) {
	if _, err := s.GetSeat(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListStoreTags(ctx, id)
}

// RecordUsage appends a usage event and bumps its counter. Replaying an idempotency key is a no-op.
func (s *Service) RecordUsage(ctx context.Context, req domain.RecordUsageRequest) (*domain.SeatUsageCounter, error) {
	metric := strings.ToLower(strings.TrimSpace(req.Metric))
	if metric == "" || len(metric) > maxMetricLength || req.Quantity <= 0 {
		return nil, domain.ErrInvalidUsage
	}

	seat, err := s.GetSeat(ctx, req.SeatID)
	if err != nil {
		return nil, err
	}
	if seat.Status != domain.SeatStatusActive {
		return nil, domain.ErrSeatNotActive
	}

	now := s.clock.Now()
	event := domain.SeatUsageEvent{
		ID:         s.genID.Generate(),
		SeatID:     seat.ID,
		ContractID: seat.ContractID,
		Metric:     metric,
		Quantity:   req.Quantity,
		RecordedAt: now,
	}
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		event.IdempotencyKey = &key
	}

	var counter *domain.SeatUsageCounter
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		inserted, err := repo.InsertUsageEvent(ctx, &event)
		if err != nil {
			return err
		}
		if inserted {
			if err := repo.IncrementUsageCounter(ctx, seat.ID, metric, req.Quantity, now); err != nil {
				return err
			}
		} else {
			s.log.Debug("duplicate usage event ignored",
				zap.String("seat_id", seat.ID.String()),
				zap.String("metric", metric),
			)
		}
		counters, err := repo.ListUsageCounters(ctx, seat.ID)
		if err != nil {
			return err
		}
		for i := range counters {
			if counters[i].Metric == metric {
				counter = &counters[i]
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if counter == nil {
		return &domain.SeatUsageCounter{SeatID: seat.ID, Metric: metric}, nil
	}
	return counter, nil
}

func (s *Service) GetUsage(ctx context.Context, id snowflake.ID) ([]domain.SeatUsageCounter, error) {
	if _, err := s.GetSeat(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListUsageCounters(ctx, id)
}

func (s *Service) guardOwner(ctx context.Context, seat *domain.ContractSeat) error {
	contract, err := s.contracts.FindContract(ctx, seat.ContractID)
	if err != nil {
		return err
	}
	if contract.OwnerID == seat.UserID {
		return domain.ErrOwnerSeat
	}
	return nil
}

func (s *Service) ensureStoreInScope(ctx context.Context, contractID, storeID snowflake.ID) error {
	store, err := s.contracts.FindStore(ctx, storeID)
	if err != nil {
		if errors.Is(err, contractdomain.ErrStoreNotFound) {
			return domain.ErrStoreNotInScope
		}
		return err
	}
	if store.ContractID != contractID {
		return domain.ErrStoreNotInScope
	}
	return nil
}

func (s *Service) ensureRoleUsable(ctx context.Context, contractID, roleID snowflake.ID) error {
	_, err := s.usableRole(ctx, contractID, roleID)
	return err
}

func (s *Service) usableRole(ctx context.Context, contractID, roleID snowflake.ID) (*roledomain.Role, error) {
	role, err := s.roles.FindByID(ctx, roleID)
	if err != nil {
		if errors.Is(err, roledomain.ErrNotFound) {
			return nil, domain.ErrRoleNotUsable
		}
		return nil, err
	}
	if !role.UsableIn(contractID) || role.IsOwnerLevel() {
		return nil, domain.ErrRoleNotUsable
	}
	return role, nil
}

func (s *Service) record(ctx context.Context, seat *domain.ContractSeat, action string, metadata map[string]any) {
	target := seat.ID.String()
	contractID := seat.ContractID
	if err := s.audit.AuditLog(ctx, &contractID, action, "seat", &target, metadata); err != nil {
		s.log.Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}
