package service

import (
	"context"
	"strings"
	"testing"

	auditdomain "github.com/smallbiznis/accessd/internal/audit/domain"
	"github.com/smallbiznis/accessd/internal/config"
	"github.com/smallbiznis/accessd/internal/contract/domain"
	roledomain "github.com/smallbiznis/accessd/internal/role/domain"
	seatdomain "github.com/smallbiznis/accessd/internal/seat/domain"
	"github.com/smallbiznis/accessd/internal/testkit"
	"github.com/smallbiznis/accessd/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(f *testkit.Fixture) domain.Service {
	return NewService(Params{
		DB:     f.DB,
		Log:    f.Log,
		GenID:  f.Node,
		Clock:  f.Clock,
		Repo:   f.Contracts,
		Seats:  f.Seats,
		Roles:  f.Roles,
		Users:  f.Users,
		Quotas: f.Quotas,
		Sealer: f.Sealer,
		Audit:  f.Audit,
		Cache:  f.Cache,
	})
}

func TestCreateContractSeatsOwner(t *testing.T) {
	f := testkit.New(t)
	svc := newService(f)
	ctx := context.Background()
	owner := f.User(t, "owner@example.com")

	contract, err := svc.CreateContract(ctx, owner.ID, domain.CreateContractRequest{
		Name:         "Acme Retail",
		ContractType: config.ContractTypeAgency,
	})
	require.NoError(t, err)
	assert.Equal(t, owner.ID, contract.OwnerID)
	assert.Equal(t, owner.Email, contract.BillingEmail)
	assert.True(t, strings.HasPrefix(contract.Slug, "acme-retail-"), contract.Slug)
	agency := f.Quotas.For(config.ContractTypeAgency)
	assert.Equal(t, agency.MaxStores, contract.MaxStores)
	assert.Equal(t, agency.MaxUsers, contract.MaxUsers)

	seat, err := f.Seats.FindByUserAndContract(ctx, owner.ID, contract.ID)
	require.NoError(t, err)
	assert.Equal(t, seatdomain.SeatStatusActive, seat.Status)
	assert.Equal(t, roledomain.SystemRoleOwnerID, seat.DefaultRoleID)

	_, err = svc.CreateContract(ctx, owner.ID, domain.CreateContractRequest{Name: "Acme", ContractType: "enterprise"})
	assert.ErrorIs(t, err, domain.ErrInvalidContractType)
	_, err = svc.CreateContract(ctx, owner.ID, domain.CreateContractRequest{Name: "  "})
	assert.ErrorIs(t, err, domain.ErrInvalidName)
	_, err = svc.CreateContract(ctx, owner.ID, domain.CreateContractRequest{Name: "Acme", BillingEmail: "not-an-email"})
	assert.ErrorIs(t, err, domain.ErrInvalidEmail)
}

func TestAddStoreSealsCredentials(t *testing.T) {
	f := testkit.New(t)
	svc := newService(f)
	ctx := context.Background()
	owner := f.User(t, "owner@example.com")
	contract := f.Contract(t, owner, config.ContractTypeAgency)

	store, err := svc.AddStore(ctx, contract.ID, domain.AddStoreRequest{
		Name:        "Flagship",
		Integration: &domain.IntegrationInput{APIKey: "key-123"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.IntegrationAPIKey, store.IntegrationKind)
	assert.Len(t, store.PublicID, 26)
	assert.NotEmpty(t, store.APIKeySealed)
	assert.NotContains(t, store.APIKeySealed, "key-123")

	creds, err := svc.StoreCredentials(ctx, store.ID)
	require.NoError(t, err)
	assert.Equal(t, "key-123", creds.APIKey)

	oauth, err := svc.AddStore(ctx, contract.ID, domain.AddStoreRequest{
		Name:        "Outlet",
		Integration: &domain.IntegrationInput{OAuthClientID: "client", OAuthSecret: "shh"},
	})
	require.NoError(t, err)
	creds, err = svc.StoreCredentials(ctx, oauth.ID)
	require.NoError(t, err)
	assert.Equal(t, "client", creds.OAuthClientID)
	assert.Equal(t, "shh", creds.OAuthSecret)

	bare, err := svc.AddStore(ctx, contract.ID, domain.AddStoreRequest{Name: "Popup"})
	require.NoError(t, err)
	assert.False(t, bare.HasIntegration())
	_, err = svc.StoreCredentials(ctx, bare.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidIntegration)

	_, err = svc.AddStore(ctx, contract.ID, domain.AddStoreRequest{
		Name:        "Both",
		Integration: &domain.IntegrationInput{OAuthClientID: "client", OAuthSecret: "shh", APIKey: "key"},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidIntegration)
	_, err = svc.AddStore(ctx, contract.ID, domain.AddStoreRequest{
		Name:        "Half",
		Integration: &domain.IntegrationInput{OAuthClientID: "client"},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidIntegration)

	found, err := svc.GetStoreByPublicID(ctx, store.PublicID)
	require.NoError(t, err)
	assert.Equal(t, store.ID, found.ID)
}

func TestStoreQuotaCheckedBeforeWrite(t *testing.T) {
	f := testkit.New(t)
	svc := newService(f)
	ctx := context.Background()
	owner := f.User(t, "owner@example.com")
	contract := f.Contract(t, owner, config.ContractTypeIndividual)
	limit := f.Quotas.For(config.ContractTypeIndividual).MaxStores

	var first *domain.Store
	for i := 0; i < limit; i++ {
		store, err := svc.AddStore(ctx, contract.ID, domain.AddStoreRequest{Name: "Store"})
		require.NoError(t, err)
		if first == nil {
			first = store
		}
	}
	_, err := svc.AddStore(ctx, contract.ID, domain.AddStoreRequest{Name: "One too many"})
	assert.ErrorIs(t, err, domain.ErrQuotaExceeded)

	stores, err := svc.ListStores(ctx, contract.ID)
	require.NoError(t, err)
	assert.Len(t, stores, limit)

	require.NoError(t, svc.DeleteStore(ctx, contract.ID, first.ID))
	assert.ErrorIs(t, svc.DeleteStore(ctx, contract.ID, first.ID), domain.ErrStoreNotFound)

	_, err = svc.AddStore(ctx, contract.ID, domain.AddStoreRequest{Name: "Replacement"})
	require.NoError(t, err)

	logs, err := f.Audit.List(ctx, auditdomain.ListAuditLogRequest{
		ContractID: contract.ID,
		Action:     auditdomain.ActionStoreDeleted,
		Pagination: pagination.Pagination{PageSize: 10},
	})
	require.NoError(t, err)
	assert.Len(t, logs.AuditLogs, 1)
}

func TestTransferOwnershipRequiresActiveOwnerSeat(t *testing.T) {
	f := testkit.New(t)
	svc := newService(f)
	ctx := context.Background()
	owner := f.User(t, "owner@example.com")
	contract := f.Contract(t, owner, config.ContractTypeAgency)

	admin := f.User(t, "admin@example.com")
	f.Seat(t, admin, contract.ID, roledomain.SystemRoleAdminID, seatdomain.SeatStatusActive)
	_, err := svc.TransferOwnership(ctx, contract.ID, admin.ID)
	assert.ErrorIs(t, err, domain.ErrOwnerNotEligible)

	stranger := f.User(t, "stranger@example.com")
	_, err = svc.TransferOwnership(ctx, contract.ID, stranger.ID)
	assert.ErrorIs(t, err, domain.ErrOwnerNotEligible)

	dormant := f.User(t, "dormant@example.com")
	f.Seat(t, dormant, contract.ID, roledomain.SystemRoleOwnerID, seatdomain.SeatStatusSuspended)
	_, err = svc.TransferOwnership(ctx, contract.ID, dormant.ID)
	assert.ErrorIs(t, err, domain.ErrOwnerNotEligible)

	partner := f.User(t, "partner@example.com")
	f.Seat(t, partner, contract.ID, roledomain.SystemRoleOwnerID, seatdomain.SeatStatusActive)
	updated, err := svc.TransferOwnership(ctx, contract.ID, partner.ID)
	require.NoError(t, err)
	assert.Equal(t, partner.ID, updated.OwnerID)

	reloaded, err := svc.GetContract(ctx, contract.ID)
	require.NoError(t, err)
	assert.Equal(t, partner.ID, reloaded.OwnerID)
}

func TestUpdateQuotasRejectsLimitsBelowUsage(t *testing.T) {
	f := testkit.New(t)
	svc := newService(f)
	ctx := context.Background()
	owner := f.User(t, "owner@example.com")
	contract := f.Contract(t, owner, config.ContractTypeAgency)
	f.Store(t, contract.ID, "A", false)
	f.Store(t, contract.ID, "B", false)

	_, err := svc.UpdateQuotas(ctx, contract.ID, 1, 10)
	assert.ErrorIs(t, err, domain.ErrInvalidQuota)
	_, err = svc.UpdateQuotas(ctx, contract.ID, 0, 10)
	assert.ErrorIs(t, err, domain.ErrInvalidQuota)

	updated, err := svc.UpdateQuotas(ctx, contract.ID, 2, 5)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.MaxStores)
	assert.Equal(t, 5, updated.MaxUsers)

	_, err = svc.AddStore(ctx, contract.ID, domain.AddStoreRequest{Name: "C"})
	assert.ErrorIs(t, err, domain.ErrQuotaExceeded)
}
