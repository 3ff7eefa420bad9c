package domain

import (
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/accessd/internal/permission"
	seatdomain "github.com/smallbiznis/accessd/internal/seat/domain"
)

// Resolve computes every store the snapshot's seats reach for purpose at now.
// A store reachable through several seats keeps the strongest scope per cell;
// its role label moves only to a strictly higher level, so ties keep the first seat seen.
// Resolve reads the snapshot and nothing else.
func Resolve(snap Snapshot, purpose Purpose, now time.Time) []AccessibleStore {
	merged := make(map[snowflake.ID]*AccessibleStore)

	for _, seat := range snap.Seats {
		if seat.Status != seatdomain.SeatStatusActive || !seatServes(snap, seat, purpose) {
			continue
		}
		for _, store := range snap.Stores[seat.ContractID] {
			if store.IsDeleted || store.ContractID != seat.ContractID {
				continue
			}
			if !seatdomain.HasStoreAccess(seat, store.ID, now) {
				continue
			}
			role, ok := snap.Roles[seatdomain.EffectiveRoleID(seat, store.ID, now)]
			if !ok || !purpose.Admits(role.Permissions) {
				continue
			}
			if purpose.RequireIntegration && !store.HasIntegration() {
				continue
			}

			entry, seen := merged[store.ID]
			if !seen {
				merged[store.ID] = &AccessibleStore{
					StoreID:        store.ID,
					PublicID:       store.PublicID,
					StoreName:      store.Name,
					ContractID:     store.ContractID,
					HasIntegration: store.HasIntegration(),
					SeatID:         seat.ID,
					RoleID:         role.ID,
					RoleName:       role.Name,
					RoleLevel:      role.Level,
					Permissions:    role.Permissions,
				}
				continue
			}
			entry.Permissions = permission.Merge(entry.Permissions, role.Permissions)
			if role.Level > entry.RoleLevel {
				entry.SeatID = seat.ID
				entry.RoleID = role.ID
				entry.RoleName = role.Name
				entry.RoleLevel = role.Level
			}
		}
	}

	out := make([]AccessibleStore, 0, len(merged))
	for _, entry := range merged {
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ContractID != out[j].ContractID {
			return out[i].ContractID < out[j].ContractID
		}
		return out[i].StoreID < out[j].StoreID
	})
	return out
}

// seatServes reports whether any role the seat can act under admits purpose.
func seatServes(snap Snapshot, seat seatdomain.ContractSeat, purpose Purpose) bool {
	for _, id := range seat.RoleIDs() {
		if role, ok := snap.Roles[id]; ok && purpose.Admits(role.Permissions) {
			return true
		}
	}
	return false
}
