// Package testkit builds migrated in-memory databases and fixtures for package tests.
package testkit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/accessd/internal/audit/domain"
	auditrepository "github.com/smallbiznis/accessd/internal/audit/repository"
	auditservice "github.com/smallbiznis/accessd/internal/audit/service"
	"github.com/smallbiznis/accessd/internal/cache"
	"github.com/smallbiznis/accessd/internal/clock"
	"github.com/smallbiznis/accessd/internal/config"
	contractdomain "github.com/smallbiznis/accessd/internal/contract/domain"
	contractrepository "github.com/smallbiznis/accessd/internal/contract/repository"
	"github.com/smallbiznis/accessd/internal/migration"
	roledomain "github.com/smallbiznis/accessd/internal/role/domain"
	rolerepository "github.com/smallbiznis/accessd/internal/role/repository"
	seatdomain "github.com/smallbiznis/accessd/internal/seat/domain"
	seatrepository "github.com/smallbiznis/accessd/internal/seat/repository"
	userdomain "github.com/smallbiznis/accessd/internal/user/domain"
	userrepository "github.com/smallbiznis/accessd/internal/user/repository"
	"github.com/smallbiznis/accessd/pkg/crypto"
	"github.com/smallbiznis/accessd/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// T0 is the default fixture time.
var T0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type Fixture struct {
	DB        *gorm.DB
	Log       *zap.Logger
	Node      *snowflake.Node
	Clock     *clock.FakeClock
	Quotas    *config.QuotaHolder
	Sealer    crypto.Sealer
	Cache     cache.AccessCache
	Audit     auditdomain.Service
	Users     userdomain.Repository
	Contracts contractdomain.Repository
	Roles     roledomain.Repository
	Seats     seatdomain.Repository
}

// New returns a fixture over a fresh migrated database with system roles seeded.
func New(t *testing.T) *Fixture {
	t.Helper()

	conn, err := db.NewTest(t.Name())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migration.AutoMigrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	sealer, err := crypto.NewEncryptor("")
	if err != nil {
		t.Fatalf("encryptor: %v", err)
	}

	fake := clock.NewFakeClock(T0)
	log := zap.NewNop()
	f := &Fixture{
		DB:        conn,
		Log:       log,
		Node:      node,
		Clock:     fake,
		Quotas:    config.NewStaticQuotaHolder(config.DefaultQuotaConfig()),
		Sealer:    sealer,
		Cache:     cache.NewMemoryAccessCache(time.Minute),
		Users:     userrepository.NewRepository(conn),
		Contracts: contractrepository.NewRepository(conn),
		Roles:     rolerepository.NewRepository(conn),
		Seats:     seatrepository.NewRepository(conn),
	}
	f.Audit = auditservice.NewService(auditservice.Params{
		DB:    conn,
		Log:   log,
		GenID: node,
		Clock: fake,
		Repo:  auditrepository.Provide(),
	})

	for _, role := range roledomain.SystemRoles() {
		role.IsSystemRole = true
		role.IsActive = true
		role.CreatedAt = T0
		role.UpdatedAt = T0
		if err := f.Roles.UpsertSystem(context.Background(), role); err != nil {
			t.Fatalf("seed role %s: %v", role.Name, err)
		}
	}
	return f
}

func (f *Fixture) User(t *testing.T, email string) *userdomain.User {
	t.Helper()
	user := &userdomain.User{
		ID:         f.Node.Generate(),
		ExternalID: fmt.Sprintf("ext-%s", email),
		Email:      email,
		CreatedAt:  f.Clock.Now(),
		UpdatedAt:  f.Clock.Now(),
	}
	if err := f.Users.Create(context.Background(), user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

// Contract creates a contract owned by owner together with the owner's ACTIVE seat.
func (f *Fixture) Contract(t *testing.T, owner *userdomain.User, contractType string) *contractdomain.Contract {
	t.Helper()
	quota := f.Quotas.For(contractType)
	id := f.Node.Generate()
	contract := &contractdomain.Contract{
		ID:           id,
		Name:         "Contract " + id.String(),
		Slug:         "contract-" + id.String(),
		BillingEmail: owner.Email,
		OwnerID:      owner.ID,
		ContractType: contractType,
		MaxStores:    quota.MaxStores,
		MaxUsers:     quota.MaxUsers,
		CreatedAt:    f.Clock.Now(),
		UpdatedAt:    f.Clock.Now(),
	}
	if err := f.Contracts.CreateContract(context.Background(), contract); err != nil {
		t.Fatalf("create contract: %v", err)
	}
	f.Seat(t, owner, contract.ID, roledomain.SystemRoleOwnerID, seatdomain.SeatStatusActive)
	return contract
}

func (f *Fixture) Store(t *testing.T, contractID snowflake.ID, name string, integrated bool) *contractdomain.Store {
	t.Helper()
	id := f.Node.Generate()
	store := &contractdomain.Store{
		ID:         id,
		PublicID:   "store-" + id.String(),
		ContractID: contractID,
		Name:       name,
		CreatedAt:  f.Clock.Now(),
		UpdatedAt:  f.Clock.Now(),
	}
	if integrated {
		store.IntegrationKind = contractdomain.IntegrationAPIKey
		store.APIKeySealed = "sealed"
	}
	if err := f.Contracts.CreateStore(context.Background(), store); err != nil {
		t.Fatalf("create store: %v", err)
	}
	return store
}

func (f *Fixture) Seat(t *testing.T, user *userdomain.User, contractID, roleID snowflake.ID, status seatdomain.SeatStatus, access ...seatdomain.SeatStoreAccess) *seatdomain.ContractSeat {
	t.Helper()
	now := f.Clock.Now()
	seat := &seatdomain.ContractSeat{
		ID:            f.Node.Generate(),
		UserID:        user.ID,
		ContractID:    contractID,
		Email:         user.Email,
		DefaultRoleID: roleID,
		Status:        status,
		CreatedAt:     now,
		UpdatedAt:     now,
		StoreAccess:   access,
	}
	if status == seatdomain.SeatStatusActive {
		seat.ActivatedAt = &now
	}
	for i := range seat.StoreAccess {
		seat.StoreAccess[i].CreatedAt = now
	}
	if err := f.Seats.Create(context.Background(), seat); err != nil {
		t.Fatalf("create seat: %v", err)
	}
	return seat
}

// Access builds a store-access entry.
func Access(storeID snowflake.ID) seatdomain.SeatStoreAccess {
	return seatdomain.SeatStoreAccess{StoreID: storeID}
}

// AccessAs builds a store-access entry with a per-store role override.
func AccessAs(storeID, roleID snowflake.ID) seatdomain.SeatStoreAccess {
	return seatdomain.SeatStoreAccess{StoreID: storeID, RoleID: &roleID}
}
