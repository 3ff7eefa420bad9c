package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/accessd/internal/audit/domain"
	"github.com/smallbiznis/accessd/internal/cache"
	"github.com/smallbiznis/accessd/internal/clock"
	contractdomain "github.com/smallbiznis/accessd/internal/contract/domain"
	"github.com/smallbiznis/accessd/internal/invitation/domain"
	"github.com/smallbiznis/accessd/internal/invitation/token"
	"github.com/smallbiznis/accessd/internal/observability/metrics"
	"github.com/smallbiznis/accessd/internal/providers/email"
	roledomain "github.com/smallbiznis/accessd/internal/role/domain"
	seatdomain "github.com/smallbiznis/accessd/internal/seat/domain"
	userdomain "github.com/smallbiznis/accessd/internal/user/domain"
	"github.com/smallbiznis/accessd/internal/user/password"
	userservice "github.com/smallbiznis/accessd/internal/user/service"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("accessd/invitation")

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Seats     seatdomain.Repository
	Contracts contractdomain.Repository
	Roles     roledomain.Repository
	Users     userdomain.Service
	Audit     auditdomain.Service
	Cache     cache.AccessCache
	Mailer    *email.InvitationMailer `optional:"true"`
	Metrics   *metrics.Metrics        `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	seats     seatdomain.Repository
	contracts contractdomain.Repository
	roles     roledomain.Repository
	users     userdomain.Service
	audit     auditdomain.Service
	cache     cache.AccessCache
	mailer    *email.InvitationMailer
	metrics   *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("invitation.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		seats:     p.Seats,
		contracts: p.Contracts,
		roles:     p.Roles,
		users:     p.Users,
		audit:     p.Audit,
		cache:     p.Cache,
		mailer:    p.Mailer,
		metrics:   p.Metrics,
	}
}

// CreateInvitation opens a PENDING seat for email and returns the one-time token.
func (s *Service) CreateInvitation(ctx context.Context, actorID snowflake.ID, req domain.CreateInvitationRequest) (_ *domain.Issued, err error) {
	ctx, span := tracer.Start(ctx, "invitation.create", trace.WithAttributes(
		attribute.String("contract_id", req.ContractID.String()),
	))
	defer endSpan(span, &err)

	emailAddr, err := userservice.NormalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	contract, err := s.contracts.FindContract(ctx, req.ContractID)
	if err != nil {
		return nil, err
	}
	role, err := s.roles.FindByID(ctx, req.RoleID)
	if err != nil {
		if errors.Is(err, roledomain.ErrNotFound) {
			return nil, seatdomain.ErrRoleNotUsable
		}
		return nil, err
	}
	// Ownership only moves through an explicit transfer.
	if !role.UsableIn(contract.ID) || role.IsOwnerLevel() {
		return nil, seatdomain.ErrRoleNotUsable
	}

	now := s.clock.Now()
	access, err := s.scopeEntries(ctx, contract.ID, req.StoreScope, now)
	if err != nil {
		return nil, err
	}

	raw, err := token.Generate()
	if err != nil {
		return nil, err
	}
	hash := token.Hash(raw)
	expires := token.ExpiresAt(now)

	seat := &seatdomain.ContractSeat{
		ID:                     s.genID.Generate(),
		ContractID:             contract.ID,
		DefaultRoleID:          role.ID,
		Status:                 seatdomain.SeatStatusPending,
		InvitationTokenHash:    &hash,
		InvitationTokenExpires: &expires,
		CreatedAt:              now,
		UpdatedAt:              now,
		StoreAccess:            access,
	}
	if actorID != 0 {
		seat.InvitedBy = &actorID
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seats := s.seats.WithTx(tx)
		used, err := seats.CountByContract(ctx, contract.ID, seatdomain.SeatStatusPending, seatdomain.SeatStatusActive)
		if err != nil {
			return err
		}
		if used >= int64(contract.MaxUsers) {
			return seatdomain.ErrQuotaExceeded
		}

		user, err := s.users.EnsureByEmail(ctx, tx, emailAddr)
		if err != nil {
			return err
		}
		if _, err := seats.FindByUserAndContract(ctx, user.ID, contract.ID); err == nil {
			return seatdomain.ErrSeatExists
		} else if !errors.Is(err, seatdomain.ErrNotFound) {
			return err
		}

		seat.UserID = user.ID
		seat.Email = user.Email
		return seats.Create(ctx, seat)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordInvitationEvent(ctx, "created")
	s.log.Info("invitation created",
		zap.String("seat_id", seat.ID.String()),
		zap.String("contract_id", contract.ID.String()),
		zap.String("role", role.Name),
	)
	s.record(ctx, seat, auditdomain.ActionSeatInvited, map[string]any{
		"email":   seat.Email,
		"role_id": role.ID.String(),
		"stores":  len(access),
	})
	s.sendMail(ctx, actorID, contract, role, seat.Email, raw, expires)

	return &domain.Issued{PlaintextToken: raw, ExpiresAt: expires, Seat: seat}, nil
}

// ResendInvitation rotates the token of a PENDING seat. The previous token stops working.
func (s *Service) ResendInvitation(ctx context.Context, actorID snowflake.ID, seatID snowflake.ID) (_ *domain.Issued, err error) {
	ctx, span := tracer.Start(ctx, "invitation.resend", trace.WithAttributes(
		attribute.String("seat_id", seatID.String()),
	))
	defer endSpan(span, &err)

	seat, err := s.seats.FindByID(ctx, seatID)
	if err != nil {
		return nil, err
	}
	if seat.Status != seatdomain.SeatStatusPending {
		return nil, domain.ErrNotPending
	}

	raw, err := token.Generate()
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	hash := token.Hash(raw)
	expires := token.ExpiresAt(now)

	ok, err := s.seats.CompareAndSetStatus(ctx, seat.ID, seatdomain.SeatStatusPending, seatdomain.SeatStatusPending, map[string]any{
		"invitation_token_hash":    hash,
		"invitation_token_expires": expires,
		"updated_at":               now,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrNotPending
	}

	s.metrics.RecordInvitationEvent(ctx, "resent")
	s.record(ctx, seat, auditdomain.ActionInvitationResent, map[string]any{
		"email": seat.Email,
	})
	if contract, err := s.contracts.FindContract(ctx, seat.ContractID); err == nil {
		if role, err := s.roles.FindByID(ctx, seat.DefaultRoleID); err == nil {
			s.sendMail(ctx, actorID, contract, role, seat.Email, raw, expires)
		}
	}

	seat.InvitationTokenHash = &hash
	seat.InvitationTokenExpires = &expires
	seat.UpdatedAt = now
	return &domain.Issued{PlaintextToken: raw, ExpiresAt: expires, Seat: seat}, nil
}

func (s *Service) ValidateInvitation(ctx context.Context, raw string) (domain.ValidateResult, error) {
	ctx, span := tracer.Start(ctx, "invitation.validate")
	defer span.End()

	seat, err := s.lookup(ctx, raw)
	if err != nil {
		if reason, ok := tokenReason(err); ok {
			return domain.ValidateResult{Valid: false, Reason: reason}, nil
		}
		return domain.ValidateResult{}, err
	}

	summary := domain.SeatSummary{
		SeatID:     seat.ID,
		ContractID: seat.ContractID,
		Email:      seat.Email,
		RoleID:     seat.DefaultRoleID,
		ExpiresAt:  *seat.InvitationTokenExpires,
	}
	if contract, err := s.contracts.FindContract(ctx, seat.ContractID); err == nil {
		summary.ContractName = contract.Name
	} else if errors.Is(err, contractdomain.ErrNotFound) {
		return domain.ValidateResult{Valid: false, Reason: token.Reason(token.ErrInvalidToken)}, nil
	} else {
		return domain.ValidateResult{}, err
	}
	if role, err := s.roles.FindByID(ctx, seat.DefaultRoleID); err == nil {
		summary.RoleName = role.DisplayName
	}
	return domain.ValidateResult{Valid: true, Seat: &summary}, nil
}

// AcceptInvitation activates the seat behind token. Exactly one concurrent caller wins;
// the rest get ErrAlreadyActivated and write nothing. A token superseded by a resend
// after the check gets ErrInvalidToken.
func (s *Service) AcceptInvitation(ctx context.Context, req domain.AcceptRequest) (_ *domain.AcceptResult, err error) {
	ctx, span := tracer.Start(ctx, "invitation.accept")
	defer endSpan(span, &err)
	defer func() {
		if err != nil {
			s.metrics.RecordInvitationEvent(ctx, "rejected")
		}
	}()

	seat, err := s.lookup(ctx, req.Token)
	if err != nil {
		return nil, err
	}
	user, err := s.users.FindByID(ctx, seat.UserID)
	if err != nil {
		return nil, err
	}
	if !user.HasPassword() {
		if req.Password == "" {
			return nil, domain.ErrCredentialsRequired
		}
		if len(req.Password) < password.MinLength {
			return nil, password.ErrTooShort
		}
	}

	now := s.clock.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seats := s.seats.WithTx(tx)
		ok, err := seats.ActivatePending(ctx, seat.ID, token.Hash(req.Token), map[string]any{
			"activated_at": now,
			"updated_at":   now,
		})
		if err != nil {
			return err
		}
		if !ok {
			return lostActivation(ctx, seats, seat.ID)
		}
		if !user.HasPassword() {
			if _, err := s.users.SetInitialPassword(ctx, tx, user.ID, req.Password, req.DisplayName); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.InvalidateUser(ctx, seat.UserID)
	s.metrics.RecordInvitationEvent(ctx, "accepted")
	s.metrics.RecordSeatTransition(ctx, string(seatdomain.SeatStatusActive))
	s.log.Info("invitation accepted",
		zap.String("seat_id", seat.ID.String()),
		zap.String("user_id", seat.UserID.String()),
	)
	s.record(ctx, seat, auditdomain.ActionSeatActivated, map[string]any{
		"user_id": seat.UserID.String(),
	})

	activated, err := s.seats.FindByID(ctx, seat.ID)
	if err != nil {
		return nil, err
	}
	refreshed, err := s.users.FindByID(ctx, seat.UserID)
	if err != nil {
		return nil, err
	}
	return &domain.AcceptResult{User: refreshed, Seat: activated}, nil
}

// lookup finds the PENDING seat behind raw and checks the token. It has no side effects.
func (s *Service) lookup(ctx context.Context, raw string) (*seatdomain.ContractSeat, error) {
	if raw == "" {
		return nil, token.ErrInvalidToken
	}
	seat, err := s.seats.FindByTokenHash(ctx, token.Hash(raw))
	if err != nil {
		if errors.Is(err, seatdomain.ErrNotFound) {
			return nil, token.ErrInvalidToken
		}
		return nil, err
	}
	if seat.Status != seatdomain.SeatStatusPending {
		return nil, token.ErrAlreadyActivated
	}
	if seat.InvitationTokenHash == nil || seat.InvitationTokenExpires == nil {
		return nil, token.ErrInvalidToken
	}
	if err := token.Validate(raw, *seat.InvitationTokenHash, *seat.InvitationTokenExpires, s.clock.Now()); err != nil {
		return nil, err
	}
	return seat, nil
}

func (s *Service) scopeEntries(ctx context.Context, contractID snowflake.ID, scope []seatdomain.StoreAccessInput, now time.Time) ([]seatdomain.SeatStoreAccess, error) {
	out := make([]seatdomain.SeatStoreAccess, 0, len(scope))
	seen := make(map[snowflake.ID]struct{}, len(scope))
	for _, entry := range scope {
		if _, dup := seen[entry.StoreID]; dup {
			return nil, seatdomain.ErrDuplicateStore
		}
		seen[entry.StoreID] = struct{}{}

		store, err := s.contracts.FindStore(ctx, entry.StoreID)
		if err != nil {
			if errors.Is(err, contractdomain.ErrStoreNotFound) {
				return nil, seatdomain.ErrStoreNotInScope
			}
			return nil, err
		}
		if store.ContractID != contractID {
			return nil, seatdomain.ErrStoreNotInScope
		}
		if entry.RoleID != nil && *entry.RoleID != 0 {
			role, err := s.roles.FindByID(ctx, *entry.RoleID)
			if err != nil || !role.UsableIn(contractID) || role.IsOwnerLevel() {
				if err != nil && !errors.Is(err, roledomain.ErrNotFound) {
					return nil, err
				}
				return nil, seatdomain.ErrRoleNotUsable
			}
		}
		out = append(out, seatdomain.SeatStoreAccess{
			StoreID:   entry.StoreID,
			RoleID:    entry.RoleID,
			ExpiresAt: entry.ExpiresAt,
			CreatedAt: now,
		})
	}
	return out, nil
}

func (s *Service) sendMail(ctx context.Context, actorID snowflake.ID, contract *contractdomain.Contract, role *roledomain.Role, to, raw string, expires time.Time) {
	if s.mailer == nil {
		return
	}
	inv := email.Invitation{
		To:           to,
		ContractName: contract.Name,
		RoleName:     role.DisplayName,
		Token:        raw,
		ExpiresAt:    expires,
	}
	if actorID != 0 {
		if inviter, err := s.users.FindByID(ctx, actorID); err == nil {
			inv.InviterName = inviter.DisplayName
		}
	}
	if err := s.mailer.Send(ctx, inv); err != nil {
		s.log.Warn("invitation mail failed", zap.String("contract_id", contract.ID.String()), zap.Error(err))
	}
}

func (s *Service) record(ctx context.Context, seat *seatdomain.ContractSeat, action string, metadata map[string]any) {
	target := seat.ID.String()
	contractID := seat.ContractID
	if err := s.audit.AuditLog(ctx, &contractID, action, "seat", &target, metadata); err != nil {
		s.log.Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}

// lostActivation explains a failed activation: another caller won, or a
// resend rotated the token after it was checked.
func lostActivation(ctx context.Context, seats seatdomain.Repository, id snowflake.ID) error {
	current, err := seats.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, seatdomain.ErrNotFound) {
			return token.ErrInvalidToken
		}
		return err
	}
	if current.Status != seatdomain.SeatStatusPending {
		return token.ErrAlreadyActivated
	}
	return token.ErrInvalidToken
}

func tokenReason(err error) (string, bool) {
	switch {
	case errors.Is(err, token.ErrInvalidToken),
		errors.Is(err, token.ErrExpiredToken),
		errors.Is(err, token.ErrTokenMismatch),
		errors.Is(err, token.ErrAlreadyActivated):
		return token.Reason(err), true
	default:
		return "", false
	}
}

func endSpan(span trace.Span, errp *error) {
	if errp != nil && *errp != nil {
		span.SetStatus(codes.Error, (*errp).Error())
	}
	span.End()
}
