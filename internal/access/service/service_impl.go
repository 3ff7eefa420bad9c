package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/accessd/internal/access/domain"
	"github.com/smallbiznis/accessd/internal/cache"
	"github.com/smallbiznis/accessd/internal/clock"
	contractdomain "github.com/smallbiznis/accessd/internal/contract/domain"
	"github.com/smallbiznis/accessd/internal/observability/metrics"
	"github.com/smallbiznis/accessd/internal/permission"
	roledomain "github.com/smallbiznis/accessd/internal/role/domain"
	seatdomain "github.com/smallbiznis/accessd/internal/seat/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("accessd/access")

type Params struct {
	fx.In

	Log       *zap.Logger
	Clock     clock.Clock
	Seats     seatdomain.Repository
	Roles     roledomain.Repository
	Contracts contractdomain.Repository
	Cache     cache.AccessCache
	Metrics   *metrics.Metrics `optional:"true"`
}

type Service struct {
	log       *zap.Logger
	clock     clock.Clock
	seats     seatdomain.Repository
	roles     roledomain.Repository
	contracts contractdomain.Repository
	cache     cache.AccessCache
	metrics   *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		log:       p.Log.Named("access.service"),
		clock:     p.Clock,
		seats:     p.Seats,
		roles:     p.Roles,
		contracts: p.Contracts,
		cache:     p.Cache,
		metrics:   p.Metrics,
	}
}

// ResolveAccessibleStores returns every store userID may act on for purpose.
// A user without access gets an empty list, not an error.
func (s *Service) ResolveAccessibleStores(ctx context.Context, userID snowflake.ID, purpose domain.Purpose) (_ []domain.AccessibleStore, err error) {
	ctx, span := tracer.Start(ctx, "access.resolve", trace.WithAttributes(
		attribute.String("purpose", purpose.Name),
	))
	defer func() {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			s.metrics.RecordAccessResolution(ctx, purpose.Name, "error")
		}
		span.End()
	}()

	cached, version, ok := s.cache.Get(ctx, userID, purpose.Name)
	if ok {
		span.SetAttributes(attribute.Bool("cache_hit", true))
		s.metrics.RecordAccessResolution(ctx, purpose.Name, "hit")
		return cached, nil
	}

	snap, err := s.loadSnapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	stores := domain.Resolve(snap, purpose, s.clock.Now())

	// Dropped if a mutation invalidated the user while the snapshot loaded.
	s.cache.Set(ctx, userID, purpose.Name, version, stores)
	s.metrics.RecordAccessResolution(ctx, purpose.Name, "miss")
	span.SetAttributes(
		attribute.Int("seats", len(snap.Seats)),
		attribute.Int("stores", len(stores)),
	)
	return stores, nil
}

// CheckStoreAccess reports whether userID reaches the store with any capability.
func (s *Service) CheckStoreAccess(ctx context.Context, userID snowflake.ID, storePublicID string) (bool, error) {
	storePublicID = strings.TrimSpace(storePublicID)
	if storePublicID == "" {
		return false, nil
	}
	stores, err := s.ResolveAccessibleStores(ctx, userID, domain.PurposeAny)
	if err != nil {
		return false, err
	}
	for _, store := range stores {
		if store.PublicID == storePublicID {
			return true, nil
		}
	}
	return false, nil
}

// ValidateAccess partitions the requested store ids. Duplicates are reported once, in request order.
func (s *Service) ValidateAccess(ctx context.Context, userID snowflake.ID, storePublicIDs []string) (domain.ValidateAccessResult, error) {
	result := domain.ValidateAccessResult{Allowed: []string{}, Denied: []string{}}
	if len(storePublicIDs) == 0 {
		return result, nil
	}
	stores, err := s.ResolveAccessibleStores(ctx, userID, domain.PurposeAny)
	if err != nil {
		return result, err
	}
	reachable := make(map[string]struct{}, len(stores))
	for _, store := range stores {
		reachable[store.PublicID] = struct{}{}
	}

	seen := make(map[string]struct{}, len(storePublicIDs))
	for _, raw := range storePublicIDs {
		id := strings.TrimSpace(raw)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := reachable[id]; ok && id != "" {
			result.Allowed = append(result.Allowed, id)
		} else {
			result.Denied = append(result.Denied, id)
		}
	}
	return result, nil
}

func (s *Service) CheckPermission(ctx context.Context, roleID snowflake.ID, feature permission.Feature, action permission.Action) (permission.Scope, error) {
	if !feature.Valid() {
		return permission.ScopeNone, permission.ErrUnknownFeature
	}
	if !action.Valid() {
		return permission.ScopeNone, permission.ErrUnknownAction
	}
	role, err := s.roles.FindByID(ctx, roleID)
	if err != nil {
		return permission.ScopeNone, err
	}
	return role.Permissions.Check(feature, action), nil
}

// loadSnapshot reads the user's ACTIVE seats with the roles and live stores they reference.
func (s *Service) loadSnapshot(ctx context.Context, userID snowflake.ID) (domain.Snapshot, error) {
	seats, err := s.seats.ListByUser(ctx, userID, seatdomain.SeatStatusActive)
	if err != nil {
		return domain.Snapshot{}, err
	}
	snap := domain.Snapshot{
		Seats:  seats,
		Roles:  map[snowflake.ID]roledomain.Role{},
		Stores: map[snowflake.ID][]contractdomain.Store{},
	}
	if len(seats) == 0 {
		return snap, nil
	}

	roleIDs := make([]snowflake.ID, 0, len(seats))
	contractIDs := make([]snowflake.ID, 0, len(seats))
	seenRole := map[snowflake.ID]struct{}{}
	for _, seat := range seats {
		contractIDs = append(contractIDs, seat.ContractID)
		for _, id := range seat.RoleIDs() {
			if _, ok := seenRole[id]; ok {
				continue
			}
			seenRole[id] = struct{}{}
			roleIDs = append(roleIDs, id)
		}
	}

	roles, err := s.roles.FindByIDs(ctx, roleIDs)
	if err != nil {
		return domain.Snapshot{}, err
	}
	for _, role := range roles {
		snap.Roles[role.ID] = role
	}
	if len(roles) < len(roleIDs) {
		s.log.Warn("seats reference missing roles",
			zap.String("user_id", userID.String()),
			zap.Int("expected", len(roleIDs)),
			zap.Int("found", len(roles)),
		)
	}

	stores, err := s.contracts.ListStoresByContracts(ctx, contractIDs)
	if err != nil && !errors.Is(err, contractdomain.ErrNotFound) {
		return domain.Snapshot{}, err
	}
	for _, store := range stores {
		snap.Stores[store.ContractID] = append(snap.Stores[store.ContractID], store)
	}
	return snap, nil
}
