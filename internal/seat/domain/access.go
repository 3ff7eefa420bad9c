package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// AccessEntry returns the first entry for storeID. Later duplicates are ignored.
func (s ContractSeat) AccessEntry(storeID snowflake.ID) (SeatStoreAccess, bool) {
	for _, entry := range s.StoreAccess {
		if entry.StoreID == storeID {
			return entry, true
		}
	}
	return SeatStoreAccess{}, false
}

// Unrestricted reports whether the seat covers every store of its contract.
func (s ContractSeat) Unrestricted() bool {
	return len(s.StoreAccess) == 0
}

// HasStoreAccess applies the allow-list rule: an empty list means every store;
// otherwise the store must be listed with a live entry. Lapsed entries still
// keep the list non-empty.
func HasStoreAccess(seat ContractSeat, storeID snowflake.ID, now time.Time) bool {
	if seat.Unrestricted() {
		return true
	}
	entry, ok := seat.AccessEntry(storeID)
	return ok && entry.Live(now)
}

// EffectiveRoleID is the per-store override when a live entry carries one, else the default role.
func EffectiveRoleID(seat ContractSeat, storeID snowflake.ID, now time.Time) snowflake.ID {
	entry, ok := seat.AccessEntry(storeID)
	if ok && entry.Live(now) && entry.RoleID != nil && *entry.RoleID != 0 {
		return *entry.RoleID
	}
	return seat.DefaultRoleID
}

// RoleIDs lists the default role followed by every distinct override role.
func (s ContractSeat) RoleIDs() []snowflake.ID {
	seen := map[snowflake.ID]struct{}{s.DefaultRoleID: {}}
	out := []snowflake.ID{s.DefaultRoleID}
	for _, entry := range s.StoreAccess {
		if entry.RoleID == nil || *entry.RoleID == 0 {
			continue
		}
		if _, ok := seen[*entry.RoleID]; ok {
			continue
		}
		seen[*entry.RoleID] = struct{}{}
		out = append(out, *entry.RoleID)
	}
	return out
}

var transitions = map[SeatStatus][]SeatStatus{
	SeatStatusPending:   {SeatStatusActive, SeatStatusPending},
	SeatStatusActive:    {SeatStatusSuspended},
	SeatStatusSuspended: {SeatStatusActive},
}

// CanTransition reports whether a seat may move from one status to another.
func CanTransition(from, to SeatStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
