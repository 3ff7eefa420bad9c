package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/oklog/ulid/v2"
	auditdomain "github.com/smallbiznis/accessd/internal/audit/domain"
	"github.com/smallbiznis/accessd/internal/cache"
	"github.com/smallbiznis/accessd/internal/clock"
	"github.com/smallbiznis/accessd/internal/config"
	"github.com/smallbiznis/accessd/internal/contract/domain"
	roledomain "github.com/smallbiznis/accessd/internal/role/domain"
	seatdomain "github.com/smallbiznis/accessd/internal/seat/domain"
	userdomain "github.com/smallbiznis/accessd/internal/user/domain"
	"github.com/smallbiznis/accessd/pkg/crypto"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Repo   domain.Repository
	Seats  seatdomain.Repository
	Roles  roledomain.Repository
	Users  userdomain.Repository
	Quotas *config.QuotaHolder
	Sealer crypto.Sealer
	Audit  auditdomain.Service
	Cache  cache.AccessCache
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	repo   domain.Repository
	seats  seatdomain.Repository
	roles  roledomain.Repository
	users  userdomain.Repository
	quotas *config.QuotaHolder
	sealer crypto.Sealer
	audit  auditdomain.Service
	cache  cache.AccessCache
}

func NewService(p Params) domain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("contract.service"),
		genID:  p.GenID,
		clock:  p.Clock,
		repo:   p.Repo,
		seats:  p.Seats,
		roles:  p.Roles,
		users:  p.Users,
		quotas: p.Quotas,
		sealer: p.Sealer,
		audit:  p.Audit,
		cache:  p.Cache,
	}
}

// CreateContract creates the contract and the owner's ACTIVE seat in one transaction.
func (s *Service) CreateContract(ctx context.Context, ownerUserID snowflake.ID, req domain.CreateContractRequest) (*domain.Contract, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	contractType := strings.ToLower(strings.TrimSpace(req.ContractType))
	if contractType == "" {
		contractType = config.ContractTypeIndividual
	}
	if _, ok := s.quotas.Get().Plans[contractType]; !ok {
		return nil, domain.ErrInvalidContractType
	}

	owner, err := s.users.FindByID(ctx, ownerUserID)
	if err != nil {
		return nil, err
	}

	billingEmail := strings.ToLower(strings.TrimSpace(req.BillingEmail))
	if billingEmail == "" {
		billingEmail = owner.Email
	}
	if _, err := mail.ParseAddress(billingEmail); err != nil {
		return nil, domain.ErrInvalidEmail
	}

	ownerRole, err := s.roles.FindByID(ctx, roledomain.SystemRoleOwnerID)
	if err != nil {
		return nil, fmt.Errorf("owner role: %w", err)
	}

	quota := s.quotas.For(contractType)
	now := s.clock.Now()
	id := s.genID.Generate()
	contract := domain.Contract{
		ID:           id,
		Name:         name,
		Slug:         fmt.Sprintf("%s-%s", slug.Make(name), strings.ToLower(id.Base36())),
		BillingEmail: billingEmail,
		OwnerID:      owner.ID,
		ContractType: contractType,
		MaxStores:    quota.MaxStores,
		MaxUsers:     quota.MaxUsers,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	seat := seatdomain.ContractSeat{
		ID:            s.genID.Generate(),
		UserID:        owner.ID,
		ContractID:    contract.ID,
		Email:         owner.Email,
		DefaultRoleID: ownerRole.ID,
		Status:        seatdomain.SeatStatusActive,
		ActivatedAt:   &now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).CreateContract(ctx, &contract); err != nil {
			return err
		}
		return s.seats.WithTx(tx).Create(ctx, &seat)
	})
	if err != nil {
		return nil, err
	}

	s.cache.InvalidateUser(ctx, owner.ID)
	s.log.Info("contract created",
		zap.String("contract_id", contract.ID.String()),
		zap.String("owner_id", owner.ID.String()),
		zap.String("contract_type", contractType),
	)
	s.record(ctx, contract.ID, auditdomain.ActionContractCreated, "contract", contract.ID, map[string]any{
		"name":          contract.Name,
		"contract_type": contractType,
	})
	return &contract, nil
}

func (s *Service) GetContract(ctx context.Context, id snowflake.ID) (*domain.Contract, error) {
	if id == 0 {
		return nil, domain.ErrNotFound
	}
	return s.repo.FindContract(ctx, id)
}

func (s *Service) ListStores(ctx context.Context, contractID snowflake.ID) ([]domain.Store, error) {
	if _, err := s.repo.FindContract(ctx, contractID); err != nil {
		return nil, err
	}
	return s.repo.ListStores(ctx, contractID)
}

func (s *Service) GetStoreByPublicID(ctx context.Context, publicID string) (*domain.Store, error) {
	publicID = strings.TrimSpace(publicID)
	if publicID == "" {
		return nil, domain.ErrStoreNotFound
	}
	return s.repo.FindStoreByPublicID(ctx, publicID)
}

// AddStore registers a store after checking the store quota. Secrets are sealed before they reach the database.
func (s *Service) AddStore(ctx context.Context, contractID snowflake.ID, req domain.AddStoreRequest) (*domain.Store, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	contract, err := s.repo.FindContract(ctx, contractID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	store := domain.Store{
		ID:         s.genID.Generate(),
		PublicID:   ulid.Make().String(),
		ContractID: contract.ID,
		Name:       name,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if req.Integration != nil {
		if err := s.applyIntegration(&store, *req.Integration); err != nil {
			return nil, err
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		count, err := repo.CountStores(ctx, contract.ID)
		if err != nil {
			return err
		}
		if count >= int64(contract.MaxStores) {
			return domain.ErrQuotaExceeded
		}
		return repo.CreateStore(ctx, &store)
	})
	if err != nil {
		return nil, err
	}

	s.cache.InvalidateAll(ctx)
	s.log.Info("store added",
		zap.String("store_id", store.ID.String()),
		zap.String("contract_id", contract.ID.String()),
		zap.String("integration", string(store.IntegrationKind)),
	)
	s.record(ctx, contract.ID, auditdomain.ActionStoreCreated, "store", store.ID, map[string]any{
		"name":        store.Name,
		"public_id":   store.PublicID,
		"integration": string(store.IntegrationKind),
	})
	return &store, nil
}

func (s *Service) applyIntegration(store *domain.Store, in domain.IntegrationInput) error {
	kind, err := in.Kind()
	if err != nil {
		return err
	}
	store.IntegrationKind = kind
	switch kind {
	case domain.IntegrationOAuth:
		sealed, err := s.sealer.Seal(strings.TrimSpace(in.OAuthSecret))
		if err != nil {
			return fmt.Errorf("seal oauth secret: %w", err)
		}
		store.OAuthClientID = strings.TrimSpace(in.OAuthClientID)
		store.OAuthSecretSealed = sealed
	case domain.IntegrationAPIKey:
		sealed, err := s.sealer.Seal(strings.TrimSpace(in.APIKey))
		if err != nil {
			return fmt.Errorf("seal api key: %w", err)
		}
		store.APIKeySealed = sealed
	}
	return nil
}

// StoreCredentials opens the sealed integration of a live store for in-process collaborators.
func (s *Service) StoreCredentials(ctx context.Context, storeID snowflake.ID) (*domain.IntegrationInput, error) {
	store, err := s.repo.FindStore(ctx, storeID)
	if err != nil {
		return nil, err
	}
	out := &domain.IntegrationInput{}
	switch store.IntegrationKind {
	case domain.IntegrationOAuth:
		secret, err := s.sealer.Open(store.OAuthSecretSealed)
		if err != nil {
			return nil, fmt.Errorf("open oauth secret: %w", err)
		}
		out.OAuthClientID = store.OAuthClientID
		out.OAuthSecret = secret
	case domain.IntegrationAPIKey:
		key, err := s.sealer.Open(store.APIKeySealed)
		if err != nil {
			return nil, fmt.Errorf("open api key: %w", err)
		}
		out.APIKey = key
	default:
		return nil, domain.ErrInvalidIntegration
	}
	return out, nil
}

func (s *Service) DeleteStore(ctx context.Context, contractID, storeID snowflake.ID) error {
	deleted, err := s.repo.SoftDeleteStore(ctx, contractID, storeID)
	if err != nil {
		return err
	}
	if !deleted {
		return domain.ErrStoreNotFound
	}

	s.cache.InvalidateAll(ctx)
	s.log.Info("store deleted",
		zap.String("store_id", storeID.String()),
		zap.String("contract_id", contractID.String()),
	)
	s.record(ctx, contractID, auditdomain.ActionStoreDeleted, "store", storeID, nil)
	return nil
}

// TransferOwnership moves ownership to a user holding an ACTIVE owner-level seat.
func (s *Service) TransferOwnership(ctx context.Context, contractID, newOwnerUserID snowflake.ID) (*domain.Contract, error) {
	contract, err := s.repo.FindContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if contract.OwnerID == newOwnerUserID {
		return contract, nil
	}

	seat, err := s.seats.FindByUserAndContract(ctx, newOwnerUserID, contractID)
	if err != nil {
		if errors.Is(err, seatdomain.ErrNotFound) {
			return nil, domain.ErrOwnerNotEligible
		}
		return nil, err
	}
	if seat.Status != seatdomain.SeatStatusActive {
		return nil, domain.ErrOwnerNotEligible
	}
	role, err := s.roles.FindByID(ctx, seat.DefaultRoleID)
	if err != nil {
		return nil, err
	}
	if !role.IsOwnerLevel() {
		return nil, domain.ErrOwnerNotEligible
	}

	previous := contract.OwnerID
	now := s.clock.Now()
	if err := s.repo.UpdateContract(ctx, contractID, map[string]any{
		"owner_id":   newOwnerUserID,
		"updated_at": now,
	}); err != nil {
		return nil, err
	}
	contract.OwnerID = newOwnerUserID
	contract.UpdatedAt = now

	s.log.Info("contract ownership transferred",
		zap.String("contract_id", contractID.String()),
		zap.String("from", previous.String()),
		zap.String("to", newOwnerUserID.String()),
	)
	s.record(ctx, contractID, auditdomain.ActionOwnershipTransferred, "contract", contractID, map[string]any{
		"previous_owner_id": previous.String(),
		"owner_id":          newOwnerUserID.String(),
	})
	return contract, nil
}

// UpdateQuotas changes the contract limits. Limits below current usage are rejected.
func (s *Service) UpdateQuotas(ctx context.Context, contractID snowflake.ID, maxStores, maxUsers int) (*domain.Contract, error) {
	if maxStores <= 0 || maxUsers <= 0 {
		return nil, domain.ErrInvalidQuota
	}
	contract, err := s.repo.FindContract(ctx, contractID)
	if err != nil {
		return nil, err
	}

	stores, err := s.repo.CountStores(ctx, contractID)
	if err != nil {
		return nil, err
	}
	users, err := s.seats.CountByContract(ctx, contractID, seatdomain.SeatStatusPending, seatdomain.SeatStatusActive)
	if err != nil {
		return nil, err
	}
	if int64(maxStores) < stores || int64(maxUsers) < users {
		return nil, domain.ErrInvalidQuota
	}

	now := s.clock.Now()
	if err := s.repo.UpdateContract(ctx, contractID, map[string]any{
		"max_stores": maxStores,
		"max_users":  maxUsers,
		"updated_at": now,
	}); err != nil {
		return nil, err
	}
	contract.MaxStores = maxStores
	contract.MaxUsers = maxUsers
	contract.UpdatedAt = now

	s.record(ctx, contractID, auditdomain.ActionContractQuotas, "contract", contractID, map[string]any{
		"max_stores": maxStores,
		"max_users":  maxUsers,
	})
	return contract, nil
}

func (s *Service) record(ctx context.Context, contractID snowflake.ID, action, targetType string, targetID snowflake.ID, metadata map[string]any) {
	target := targetID.String()
	if err := s.audit.AuditLog(ctx, &contractID, action, targetType, &target, metadata); err != nil {
		s.log.Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}
