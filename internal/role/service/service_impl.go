package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/accessd/internal/audit/domain"
	"github.com/smallbiznis/accessd/internal/cache"
	"github.com/smallbiznis/accessd/internal/clock"
	"github.com/smallbiznis/accessd/internal/config"
	contractdomain "github.com/smallbiznis/accessd/internal/contract/domain"
	"github.com/smallbiznis/accessd/internal/permission"
	"github.com/smallbiznis/accessd/internal/role/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var reservedNames = map[string]struct{}{}

func init() {
	for _, r := range domain.SystemRoles() {
		reservedNames[r.Name] = struct{}{}
	}
}

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      domain.Repository
	Contracts contractdomain.Repository
	Quotas    *config.QuotaHolder
	Audit     auditdomain.Service
	Cache     cache.AccessCache
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	contracts contractdomain.Repository
	quotas    *config.QuotaHolder
	audit     auditdomain.Service
	cache     cache.AccessCache
}

func NewService(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("role.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		contracts: p.Contracts,
		quotas:    p.Quotas,
		audit:     p.Audit,
		cache:     p.Cache,
	}
}

func (s *Service) GetRole(ctx context.Context, id snowflake.ID) (*domain.Role, error) {
	if id == 0 {
		return nil, domain.ErrNotFound
	}
	return s.repo.FindByID(ctx, id)
}

func (s *Service) ListSystemRoles(ctx context.Context) ([]domain.Role, error) {
	return s.repo.ListSystem(ctx)
}

func (s *Service) ListContractRoles(ctx context.Context, contractID snowflake.ID) ([]domain.Role, error) {
	if _, err := s.contracts.FindContract(ctx, contractID); err != nil {
		return nil, err
	}
	return s.repo.ListByContract(ctx, contractID)
}

func (s *Service) CreateCustomRole(ctx context.Context, actorID snowflake.ID, contractID snowflake.ID, req domain.CreateRoleRequest) (*domain.Role, error) {
	name := strings.ToLower(strings.TrimSpace(req.Name))
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	if _, reserved := reservedNames[name]; reserved {
		return nil, domain.ErrDuplicateName
	}
	if req.Level <= 0 || req.Level >= domain.LevelOwner {
		return nil, domain.ErrInvalidLevel
	}
	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = req.Name
	}

	contract, err := s.contracts.FindContract(ctx, contractID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	role := domain.Role{
		ID:          s.genID.Generate(),
		ContractID:  &contract.ID,
		Name:        name,
		DisplayName: displayName,
		Description: strings.TrimSpace(req.Description),
		IsActive:    true,
		Level:       req.Level,
		Permissions: req.Permissions,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		count, err := repo.CountActiveCustom(ctx, contract.ID)
		if err != nil {
			return err
		}
		if count >= int64(s.quotas.For(contract.ContractType).MaxCustomRoles) {
			return domain.ErrQuotaExceeded
		}
		return repo.Create(ctx, &role)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("custom role created",
		zap.String("role_id", role.ID.String()),
		zap.String("contract_id", contract.ID.String()),
		zap.String("actor_id", actorID.String()),
	)
	s.record(ctx, &contract.ID, auditdomain.ActionRoleCreated, role, map[string]any{
		"name":  role.Name,
		"level": role.Level,
	})
	return &role, nil
}

func (s *Service) UpdateRole(ctx context.Context, actorID snowflake.ID, id snowflake.ID, patch domain.UpdateRoleRequest) (*domain.Role, error) {
	role, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if role.IsSystemRole {
		return nil, domain.ErrSystemRoleImmutable
	}
	if !role.IsActive {
		return nil, domain.ErrNotFound
	}

	if patch.DisplayName != nil {
		name := strings.TrimSpace(*patch.DisplayName)
		if name == "" {
			return nil, domain.ErrInvalidName
		}
		role.DisplayName = name
	}
	if patch.Description != nil {
		role.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Permissions != nil {
		role.Permissions = *patch.Permissions
	}
	role.UpdatedAt = s.clock.Now()

	if err := s.repo.Save(ctx, role); err != nil {
		return nil, err
	}

	s.cache.InvalidateAll(ctx)
	s.log.Info("role updated",
		zap.String("role_id", role.ID.String()),
		zap.String("actor_id", actorID.String()),
	)
	s.record(ctx, role.ContractID, auditdomain.ActionRoleUpdated, *role, map[string]any{
		"permissions": role.Permissions.Grant(),
	})
	return role, nil
}

// DeleteRole deactivates the role. Seats that already reference it keep resolving.
func (s *Service) DeleteRole(ctx context.Context, actorID snowflake.ID, id snowflake.ID) error {
	role, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if role.IsSystemRole {
		return domain.ErrSystemRoleImmutable
	}
	if !role.IsActive {
		return nil
	}

	role.IsActive = false
	role.UpdatedAt = s.clock.Now()
	if err := s.repo.Save(ctx, role); err != nil {
		return err
	}

	s.cache.InvalidateAll(ctx)
	s.log.Info("role deleted",
		zap.String("role_id", role.ID.String()),
		zap.String("actor_id", actorID.String()),
	)
	s.record(ctx, role.ContractID, auditdomain.ActionRoleDeleted, *role, nil)
	return nil
}

func (s *Service) CheckPermission(ctx context.Context, id snowflake.ID, feature permission.Feature, action permission.Action) (permission.Scope, error) {
	role, err := s.GetRole(ctx, id)
	if err != nil {
		return permission.ScopeNone, err
	}
	return role.Permissions.Check(feature, action), nil
}

func (s *Service) SeedSystemRoles(ctx context.Context) error {
	now := s.clock.Now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		for _, role := range domain.SystemRoles() {
			role.IsSystemRole = true
			role.IsActive = true
			role.CreatedAt = now
			role.UpdatedAt = now
			if err := repo.UpsertSystem(ctx, role); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Service) record(ctx context.Context, contractID *snowflake.ID, action string, role domain.Role, metadata map[string]any) {
	target := role.ID.String()
	if err := s.audit.AuditLog(ctx, contractID, action, "role", &target, metadata); err != nil {
		s.log.Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}
