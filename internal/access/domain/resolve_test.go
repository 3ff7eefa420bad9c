package domain

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	contractdomain "github.com/smallbiznis/accessd/internal/contract/domain"
	"github.com/smallbiznis/accessd/internal/permission"
	roledomain "github.com/smallbiznis/accessd/internal/role/domain"
	seatdomain "github.com/smallbiznis/accessd/internal/seat/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

const contractC snowflake.ID = 100

func systemRoles() map[snowflake.ID]roledomain.Role {
	out := make(map[snowflake.ID]roledomain.Role)
	for _, r := range roledomain.SystemRoles() {
		r.IsSystemRole = true
		r.IsActive = true
		out[r.ID] = r
	}
	return out
}

func store(id snowflake.ID, contractID snowflake.ID, integrated bool) contractdomain.Store {
	s := contractdomain.Store{ID: id, PublicID: "pub-" + id.String(), ContractID: contractID, Name: "Store " + id.String()}
	if integrated {
		s.IntegrationKind = contractdomain.IntegrationOAuth
	}
	return s
}

func seat(id, contractID, roleID snowflake.ID, access ...seatdomain.SeatStoreAccess) seatdomain.ContractSeat {
	return seatdomain.ContractSeat{
		ID:            id,
		UserID:        7,
		ContractID:    contractID,
		DefaultRoleID: roleID,
		Status:        seatdomain.SeatStatusActive,
		StoreAccess:   access,
	}
}

func allow(storeID snowflake.ID) seatdomain.SeatStoreAccess {
	return seatdomain.SeatStoreAccess{StoreID: storeID}
}

func storeIDs(stores []AccessibleStore) []snowflake.ID {
	out := make([]snowflake.ID, len(stores))
	for i, s := range stores {
		out[i] = s.StoreID
	}
	return out
}

func threeStores() map[snowflake.ID][]contractdomain.Store {
	return map[snowflake.ID][]contractdomain.Store{
		contractC: {store(1, contractC, true), store(2, contractC, true), store(3, contractC, true)},
	}
}

func TestResolveZeroSeatsIsEmpty(t *testing.T) {
	out := Resolve(Snapshot{Roles: systemRoles(), Stores: threeStores()}, PurposeAny, now)
	assert.Empty(t, out)
}

func TestResolveEmptyStoreAccessCoversEveryLiveStore(t *testing.T) {
	stores := threeStores()
	deleted := store(4, contractC, true)
	deleted.IsDeleted = true
	stores[contractC] = append(stores[contractC], deleted)

	out := Resolve(Snapshot{
		Seats:  []seatdomain.ContractSeat{seat(10, contractC, roledomain.SystemRoleAnalystID)},
		Roles:  systemRoles(),
		Stores: stores,
	}, PurposeAny, now)

	assert.Equal(t, []snowflake.ID{1, 2, 3}, storeIDs(out))
	assert.Equal(t, "analyst", out[0].RoleName)
	assert.Equal(t, snowflake.ID(10), out[0].SeatID)
}

func TestResolveExplicitListScenario(t *testing.T) {
	snap := Snapshot{
		Seats:  []seatdomain.ContractSeat{seat(10, contractC, roledomain.SystemRoleAnalystID, allow(1))},
		Roles:  systemRoles(),
		Stores: threeStores(),
	}
	assert.Equal(t, []snowflake.ID{1}, storeIDs(Resolve(snap, PurposeAny, now)))

	snap.Seats[0].StoreAccess = append(snap.Seats[0].StoreAccess, allow(2))
	assert.Equal(t, []snowflake.ID{1, 2}, storeIDs(Resolve(snap, PurposeAny, now)))
}

func TestResolveMergeIsMonotonic(t *testing.T) {
	stores := map[snowflake.ID][]contractdomain.Store{contractC: {store(1, contractC, true)}}
	viewer := seat(10, contractC, roledomain.SystemRoleViewerID)
	analyst := seat(11, contractC, roledomain.SystemRoleAnalystID)

	for _, order := range [][]seatdomain.ContractSeat{{viewer, analyst}, {analyst, viewer}} {
		out := Resolve(Snapshot{Seats: order, Roles: systemRoles(), Stores: stores}, PurposeAnalytics, now)
		require.Len(t, out, 1)
		assert.Equal(t, permission.ScopeAll, out[0].Permissions.Check(permission.FeatureAnalytics, permission.ActionView))
		assert.Equal(t, "analyst", out[0].RoleName)
		assert.Equal(t, snowflake.ID(11), out[0].SeatID)
	}
}

func TestResolveTieKeepsFirstLabelAndUnionsCells(t *testing.T) {
	roles := systemRoles()
	left := roledomain.Role{ID: 50, Name: "left", Level: 30, IsActive: true, Permissions: permission.MustGrants("analytics.view_own", "brands.edit")}
	right := roledomain.Role{ID: 51, Name: "right", Level: 30, IsActive: true, Permissions: permission.MustGrants("analytics.view_all")}
	roles[left.ID] = left
	roles[right.ID] = right

	out := Resolve(Snapshot{
		Seats:  []seatdomain.ContractSeat{seat(10, contractC, left.ID, allow(1)), seat(11, contractC, right.ID, allow(1))},
		Roles:  roles,
		Stores: threeStores(),
	}, PurposeAny, now)

	require.Len(t, out, 1)
	assert.Equal(t, "left", out[0].RoleName)
	assert.Equal(t, permission.ScopeAll, out[0].Permissions.Check(permission.FeatureAnalytics, permission.ActionView))
	assert.True(t, out[0].Permissions.Check(permission.FeatureBrands, permission.ActionEdit).Allowed())
}

func TestResolveAnalyticsRequiresIntegration(t *testing.T) {
	stores := map[snowflake.ID][]contractdomain.Store{
		contractC: {store(1, contractC, true), store(2, contractC, false)},
	}
	snap := Snapshot{
		Seats:  []seatdomain.ContractSeat{seat(10, contractC, roledomain.SystemRoleViewerID)},
		Roles:  systemRoles(),
		Stores: stores,
	}

	assert.Equal(t, []snowflake.ID{1}, storeIDs(Resolve(snap, PurposeAnalytics, now)))
	assert.Equal(t, []snowflake.ID{1, 2}, storeIDs(Resolve(snap, PurposeAny, now)))
}

func TestResolvePerStoreOverride(t *testing.T) {
	manager := roledomain.SystemRoleManagerID
	out := Resolve(Snapshot{
		Seats: []seatdomain.ContractSeat{seat(10, contractC, roledomain.SystemRoleViewerID,
			allow(1),
			seatdomain.SeatStoreAccess{StoreID: 2, RoleID: &manager},
		)},
		Roles:  systemRoles(),
		Stores: threeStores(),
	}, PurposeAny, now)

	require.Len(t, out, 2)
	assert.Equal(t, "viewer", out[0].RoleName)
	assert.Equal(t, "manager", out[1].RoleName)
}

func TestResolveOverrideCanQualifySeat(t *testing.T) {
	roles := systemRoles()
	brandsOnly := roledomain.Role{ID: 60, Name: "brand_editor", Level: 30, IsActive: true, Permissions: permission.MustGrants("brands.edit")}
	roles[brandsOnly.ID] = brandsOnly
	analyst := roledomain.SystemRoleAnalystID

	out := Resolve(Snapshot{
		Seats: []seatdomain.ContractSeat{seat(10, contractC, brandsOnly.ID,
			allow(1),
			seatdomain.SeatStoreAccess{StoreID: 2, RoleID: &analyst},
		)},
		Roles:  roles,
		Stores: threeStores(),
	}, PurposeAnalytics, now)

	assert.Equal(t, []snowflake.ID{2}, storeIDs(out))
}

func TestResolveSkipsInactiveSeatsAndLapsedEntries(t *testing.T) {
	lapsed := now.Add(-time.Minute)
	suspended := seat(11, contractC, roledomain.SystemRoleAdminID)
	suspended.Status = seatdomain.SeatStatusSuspended

	out := Resolve(Snapshot{
		Seats: []seatdomain.ContractSeat{
			seat(10, contractC, roledomain.SystemRoleAnalystID,
				seatdomain.SeatStoreAccess{StoreID: 1, ExpiresAt: &lapsed},
				allow(3),
			),
			suspended,
		},
		Roles:  systemRoles(),
		Stores: threeStores(),
	}, PurposeAny, now)

	assert.Equal(t, []snowflake.ID{3}, storeIDs(out))
}

func TestResolveOrdersByContractThenStore(t *testing.T) {
	const contractA snowflake.ID = 50
	stores := threeStores()
	stores[contractA] = []contractdomain.Store{store(9, contractA, true)}

	out := Resolve(Snapshot{
		Seats: []seatdomain.ContractSeat{
			seat(10, contractC, roledomain.SystemRoleAnalystID),
			seat(11, contractA, roledomain.SystemRoleViewerID),
		},
		Roles:  systemRoles(),
		Stores: stores,
	}, PurposeAny, now)

	assert.Equal(t, []snowflake.ID{9, 1, 2, 3}, storeIDs(out))
}

func TestParsePurpose(t *testing.T) {
	p, err := ParsePurpose("")
	require.NoError(t, err)
	assert.Equal(t, PurposeAny, p)

	p, err = ParsePurpose(" Analytics ")
	require.NoError(t, err)
	assert.Equal(t, PurposeAnalytics, p)

	_, err = ParsePurpose("billing")
	assert.ErrorIs(t, err, ErrUnknownPurpose)
}
