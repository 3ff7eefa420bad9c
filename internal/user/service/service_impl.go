package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/accessd/internal/clock"
	"github.com/smallbiznis/accessd/internal/user/domain"
	"github.com/smallbiznis/accessd/internal/user/password"
	"github.com/smallbiznis/accessd/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("user.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// NormalizeEmail lowercases and validates an address.
func NormalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", domain.ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", domain.ErrInvalidEmail
	}
	return email, nil
}

func (s *Service) FindByID(ctx context.Context, id snowflake.ID) (*domain.User, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *Service) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	return s.repo.FindByEmail(ctx, normalized)
}

// EnsureByEmail returns the user for email, creating a credential-less entry when absent.
func (s *Service) EnsureByEmail(ctx context.Context, tx *gorm.DB, email string) (*domain.User, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	repo := s.repoFor(tx)

	user, err := repo.FindByEmail(ctx, normalized)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	now := s.clock.Now()
	user = &domain.User{
		ID:         s.genID.Generate(),
		ExternalID: uuid.NewString(),
		Email:      normalized,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := repo.Create(ctx, user); err != nil {
		// A failed insert poisons an open postgres transaction, so only retry outside one.
		if db.IsDuplicateKeyErr(err) && tx == nil {
			return repo.FindByEmail(ctx, normalized)
		}
		return nil, err
	}
	s.log.Info("directory user created", zap.String("user_id", user.ID.String()))
	return user, nil
}

// SetInitialPassword stores a credential for a user that has none. Existing passwords are kept.
func (s *Service) SetInitialPassword(ctx context.Context, tx *gorm.DB, id snowflake.ID, plain, displayName string) (bool, error) {
	if plain == "" {
		return false, nil
	}
	hash, err := password.Hash(plain)
	if err != nil {
		return false, err
	}
	return s.repoFor(tx).SetPasswordIfEmpty(ctx, id, hash, strings.TrimSpace(displayName), s.clock.Now())
}

func (s *Service) repoFor(tx *gorm.DB) domain.Repository {
	if tx == nil {
		return s.repo
	}
	return s.repo.WithTx(tx)
}
