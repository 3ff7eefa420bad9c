package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	accessdomain "github.com/smallbiznis/accessd/internal/access/domain"
	auditdomain "github.com/smallbiznis/accessd/internal/audit/domain"
	"github.com/smallbiznis/accessd/internal/config"
	contractdomain "github.com/smallbiznis/accessd/internal/contract/domain"
	"github.com/smallbiznis/accessd/internal/permission"
	roledomain "github.com/smallbiznis/accessd/internal/role/domain"
	"github.com/smallbiznis/accessd/internal/seat/domain"
	"github.com/smallbiznis/accessd/internal/testkit"
	"github.com/smallbiznis/accessd/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(f *testkit.Fixture) domain.Service {
	return NewService(Params{
		DB:        f.DB,
		Log:       f.Log,
		GenID:     f.Node,
		Clock:     f.Clock,
		Repo:      f.Seats,
		Contracts: f.Contracts,
		Roles:     f.Roles,
		Audit:     f.Audit,
		Cache:     f.Cache,
	})
}

type world struct {
	f        *testkit.Fixture
	svc      domain.Service
	contract *contractdomain.Contract
	ownerID  snowflake.ID
}

func setup(t *testing.T, contractType string) world {
	f := testkit.New(t)
	owner := f.User(t, "owner@example.com")
	contract := f.Contract(t, owner, contractType)
	return world{f: f, svc: newService(f), contract: contract, ownerID: owner.ID}
}

func (w world) ownerSeat(t *testing.T) *domain.ContractSeat {
	seat, err := w.f.Seats.FindByUserAndContract(context.Background(), w.ownerID, w.contract.ID)
	require.NoError(t, err)
	return seat
}

func TestSuspendAndReactivate(t *testing.T) {
	w := setup(t, config.ContractTypeIndividual)
	ctx := context.Background()
	member := w.f.User(t, "member@example.com")
	seat := w.f.Seat(t, member, w.contract.ID, roledomain.SystemRoleAnalystID, domain.SeatStatusActive)

	_, version, _ := w.f.Cache.Get(ctx, member.ID, "any")
	w.f.Cache.Set(ctx, member.ID, "any", version, []accessdomain.AccessibleStore{{StoreName: "cached"}})
	_, _, hit := w.f.Cache.Get(ctx, member.ID, "any")
	require.True(t, hit)

	suspended, err := w.svc.Suspend(ctx, seat.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SeatStatusSuspended, suspended.Status)
	require.NotNil(t, suspended.SuspendedAt)
	_, _, hit = w.f.Cache.Get(ctx, member.ID, "any")
	assert.False(t, hit, "suspension must drop cached access")

	_, err = w.svc.Suspend(ctx, seat.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	w.f.Clock.Advance(time.Hour)
	active, err := w.svc.Reactivate(ctx, seat.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SeatStatusActive, active.Status)
	assert.Nil(t, active.SuspendedAt)

	_, err = w.svc.Reactivate(ctx, seat.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	logs, err := w.f.Audit.List(ctx, auditdomain.ListAuditLogRequest{
		ContractID: w.contract.ID,
		TargetType: "seat",
		Pagination: pagination.Pagination{PageSize: 10},
	})
	require.NoError(t, err)
	actions := make([]string, 0, len(logs.AuditLogs))
	for _, entry := range logs.AuditLogs {
		actions = append(actions, entry.Action)
	}
	assert.ElementsMatch(t, []string{auditdomain.ActionSeatSuspended, auditdomain.ActionSeatReactivated}, actions)
}

func TestPendingSeatCannotBeSuspended(t *testing.T) {
	w := setup(t, config.ContractTypeIndividual)
	invitee := w.f.User(t, "invitee@example.com")
	seat := w.f.Seat(t, invitee, w.contract.ID, roledomain.SystemRoleViewerID, domain.SeatStatusPending)

	_, err := w.svc.Suspend(context.Background(), seat.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = w.svc.Reactivate(context.Background(), seat.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestOwnerSeatIsProtected(t *testing.T) {
	w := setup(t, config.ContractTypeIndividual)
	ctx := context.Background()
	owner := w.ownerSeat(t)

	_, err := w.svc.Suspend(ctx, owner.ID)
	assert.ErrorIs(t, err, domain.ErrOwnerSeat)

	_, err = w.svc.SetDefaultRole(ctx, owner.ID, roledomain.SystemRoleViewerID)
	assert.ErrorIs(t, err, domain.ErrOwnerSeat)

	unchanged, err := w.svc.SetDefaultRole(ctx, owner.ID, roledomain.SystemRoleOwnerID)
	require.NoError(t, err)
	assert.Equal(t, roledomain.SystemRoleOwnerID, unchanged.DefaultRoleID)
}

func TestReactivateRespectsUserQuota(t *testing.T) {
	w := setup(t, config.ContractTypeIndividual)
	ctx := context.Background()

	suspendedUser := w.f.User(t, "suspended@example.com")
	seat := w.f.Seat(t, suspendedUser, w.contract.ID, roledomain.SystemRoleViewerID, domain.SeatStatusSuspended)
	w.f.Seat(t, w.f.User(t, "a@example.com"), w.contract.ID, roledomain.SystemRoleViewerID, domain.SeatStatusActive)
	w.f.Seat(t, w.f.User(t, "b@example.com"), w.contract.ID, roledomain.SystemRoleViewerID, domain.SeatStatusPending)

	_, err := w.svc.Reactivate(ctx, seat.ID)
	assert.ErrorIs(t, err, domain.ErrQuotaExceeded)

	current, err := w.svc.GetSeat(ctx, seat.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SeatStatusSuspended, current.Status)
}

func TestSetDefaultRole(t *testing.T) {
	w := setup(t, config.ContractTypeIndividual)
	ctx := context.Background()
	member := w.f.User(t, "member@example.com")
	seat := w.f.Seat(t, member, w.contract.ID, roledomain.SystemRoleViewerID, domain.SeatStatusActive)

	updated, err := w.svc.SetDefaultRole(ctx, seat.ID, roledomain.SystemRoleManagerID)
	require.NoError(t, err)
	assert.Equal(t, roledomain.SystemRoleManagerID, updated.DefaultRoleID)

	_, err = w.svc.SetDefaultRole(ctx, seat.ID, snowflake.ID(987654))
	assert.ErrorIs(t, err, domain.ErrRoleNotUsable)
}

func TestOwnerRoleIsNotAssignable(t *testing.T) {
	w := setup(t, config.ContractTypeAgency)
	ctx := context.Background()
	admin := w.f.User(t, "admin@example.com")
	seat := w.f.Seat(t, admin, w.contract.ID, roledomain.SystemRoleAdminID, domain.SeatStatusActive)
	store := w.f.Store(t, w.contract.ID, "A", true)

	_, err := w.svc.SetDefaultRole(ctx, seat.ID, roledomain.SystemRoleOwnerID)
	assert.ErrorIs(t, err, domain.ErrRoleNotUsable)

	owner := roledomain.SystemRoleOwnerID
	_, err = w.svc.SetStoreAccess(ctx, seat.ID, []domain.StoreAccessInput{{StoreID: store.ID, RoleID: &owner}})
	assert.ErrorIs(t, err, domain.ErrRoleNotUsable)

	current, err := w.svc.GetSeat(ctx, seat.ID)
	require.NoError(t, err)
	assert.Equal(t, roledomain.SystemRoleAdminID, current.DefaultRoleID)
	assert.True(t, current.Unrestricted())
}

func TestSetStoreAccessValidatesEntries(t *testing.T) {
	w := setup(t, config.ContractTypeAgency)
	ctx := context.Background()
	member := w.f.User(t, "member@example.com")
	seat := w.f.Seat(t, member, w.contract.ID, roledomain.SystemRoleViewerID, domain.SeatStatusActive)
	storeA := w.f.Store(t, w.contract.ID, "A", true)
	storeB := w.f.Store(t, w.contract.ID, "B", false)

	otherOwner := w.f.User(t, "other@example.com")
	other := w.f.Contract(t, otherOwner, config.ContractTypeAgency)
	foreign := w.f.Store(t, other.ID, "Foreign", true)
	foreignRole := &roledomain.Role{
		ID:          w.f.Node.Generate(),
		ContractID:  &other.ID,
		Name:        "auditor",
		DisplayName: "Auditor",
		IsActive:    true,
		Level:       30,
		Permissions: permission.MustGrants("analytics.view_all"),
	}
	require.NoError(t, w.f.Roles.Create(ctx, foreignRole))

	_, err := w.svc.SetStoreAccess(ctx, seat.ID, []domain.StoreAccessInput{{StoreID: storeA.ID}, {StoreID: storeA.ID}})
	assert.ErrorIs(t, err, domain.ErrDuplicateStore)

	_, err = w.svc.SetStoreAccess(ctx, seat.ID, []domain.StoreAccessInput{{StoreID: foreign.ID}})
	assert.ErrorIs(t, err, domain.ErrStoreNotInScope)

	_, err = w.svc.SetStoreAccess(ctx, seat.ID, []domain.StoreAccessInput{{StoreID: storeA.ID, RoleID: &foreignRole.ID}})
	assert.ErrorIs(t, err, domain.ErrRoleNotUsable)

	manager := roledomain.SystemRoleManagerID
	updated, err := w.svc.SetStoreAccess(ctx, seat.ID, []domain.StoreAccessInput{
		{StoreID: storeB.ID},
		{StoreID: storeA.ID, RoleID: &manager},
	})
	require.NoError(t, err)
	require.Len(t, updated.StoreAccess, 2)
	assert.Equal(t, storeB.ID, updated.StoreAccess[0].StoreID)
	assert.Equal(t, storeA.ID, updated.StoreAccess[1].StoreID)
	assert.Equal(t, manager, domain.EffectiveRoleID(*updated, storeA.ID, w.f.Clock.Now()))

	cleared, err := w.svc.SetStoreAccess(ctx, seat.ID, nil)
	require.NoError(t, err)
	assert.True(t, cleared.Unrestricted())
}

func TestSetStoreTagsNormalizes(t *testing.T) {
	w := setup(t, config.ContractTypeIndividual)
	ctx := context.Background()
	member := w.f.User(t, "member@example.com")
	seat := w.f.Seat(t, member, w.contract.ID, roledomain.SystemRoleViewerID, domain.SeatStatusActive)
	store := w.f.Store(t, w.contract.ID, "Main", true)

	tag, err := w.svc.SetStoreTags(ctx, seat.ID, store.ID, []string{" North ", "retail", "north", ""})
	require.NoError(t, err)
	assert.Equal(t, []string{"north", "retail"}, []string(tag.Tags))

	_, err = w.svc.SetStoreTags(ctx, seat.ID, store.ID, []string{"flagship"})
	require.NoError(t, err)

	tags, err := w.svc.ListStoreTags(ctx, seat.ID)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, []string{"flagship"}, []string(tags[0].Tags))
}

func TestRecordUsageIsIdempotent(t *testing.T) {
	w := setup(t, config.ContractTypeIndividual)
	ctx := context.Background()
	member := w.f.User(t, "member@example.com")
	seat := w.f.Seat(t, member, w.contract.ID, roledomain.SystemRoleViewerID, domain.SeatStatusActive)

	counter, err := w.svc.RecordUsage(ctx, domain.RecordUsageRequest{SeatID: seat.ID, Metric: "Reports", Quantity: 3, IdempotencyKey: "k1"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), counter.Total)

	counter, err = w.svc.RecordUsage(ctx, domain.RecordUsageRequest{SeatID: seat.ID, Metric: "reports", Quantity: 3, IdempotencyKey: "k1"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), counter.Total)

	counter, err = w.svc.RecordUsage(ctx, domain.RecordUsageRequest{SeatID: seat.ID, Metric: "reports", Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), counter.Total)

	_, err = w.svc.RecordUsage(ctx, domain.RecordUsageRequest{SeatID: seat.ID, Metric: "exports", Quantity: 1})
	require.NoError(t, err)

	counters, err := w.svc.GetUsage(ctx, seat.ID)
	require.NoError(t, err)
	require.Len(t, counters, 2)
	assert.Equal(t, "exports", counters[0].Metric)
	assert.Equal(t, "reports", counters[1].Metric)
}

func TestRecordUsageRejectsInvalidInput(t *testing.T) {
	w := setup(t, config.ContractTypeIndividual)
	ctx := context.Background()
	member := w.f.User(t, "member@example.com")
	seat := w.f.Seat(t, member, w.contract.ID, roledomain.SystemRoleViewerID, domain.SeatStatusSuspended)

	_, err := w.svc.RecordUsage(ctx, domain.RecordUsageRequest{SeatID: seat.ID, Metric: "", Quantity: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidUsage)
	_, err = w.svc.RecordUsage(ctx, domain.RecordUsageRequest{SeatID: seat.ID, Metric: "reports", Quantity: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidUsage)
	_, err = w.svc.RecordUsage(ctx, domain.RecordUsageRequest{SeatID: seat.ID, Metric: "reports", Quantity: 1})
	assert.ErrorIs(t, err, domain.ErrSeatNotActive)
}
