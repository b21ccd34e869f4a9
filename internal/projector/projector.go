// Package projector derives read-side views from event lists without
// touching the store or the ledger. Inputs may arrive in any order; every
// projection sorts by (block number, log index) before folding, so the
// result depends only on the event set.
package projector

import (
	"sort"
	"time"

	"github.com/veridoc/registry-indexer/internal/domain"
)

// ActiveRole is a role currently held by an identity
type ActiveRole struct {
	Role domain.Role `json:"role"`
	// GrantedAt is the chain timestamp of the grant that made the role active
	GrantedAt time.Time `json:"granted_at"`
}

// AuthenticationAttempt is one authentication event in an identity's history
type AuthenticationAttempt struct {
	Role      domain.Role     `json:"role"`
	Succeeded bool            `json:"succeeded"`
	Timestamp time.Time       `json:"timestamp"`
	Position  domain.Position `json:"position"`
}

func sortByPosition(events []*domain.RegistryEvent) []*domain.RegistryEvent {
	sorted := make([]*domain.RegistryEvent, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Position().Before(sorted[j].Position())
	})
	return sorted
}

// ActiveRoles folds grant and revoke events for a DID into the set of roles
// held after the last event. A role revoked and granted again is active with
// the timestamp of the latest grant.
func ActiveRoles(events []*domain.RegistryEvent, did domain.DID) []ActiveRole {
	grantedAt := make(map[domain.Role]time.Time)

	for _, ev := range sortByPosition(events) {
		if ev.DID != did {
			continue
		}
		switch ev.Kind {
		case domain.EventRoleGranted:
			grantedAt[ev.Role] = ev.Timestamp
		case domain.EventRoleRevoked:
			delete(grantedAt, ev.Role)
		}
	}

	roles := make([]ActiveRole, 0, len(grantedAt))
	for role, at := range grantedAt {
		roles = append(roles, ActiveRole{Role: role, GrantedAt: at})
	}
	sort.Slice(roles, func(i, j int) bool {
		return roles[i].Role < roles[j].Role
	})
	return roles
}

// AuthenticationHistory extracts a DID's authentication attempts,
// most recent first
func AuthenticationHistory(events []*domain.RegistryEvent, did domain.DID) []AuthenticationAttempt {
	var attempts []AuthenticationAttempt
	for _, ev := range sortByPosition(events) {
		if ev.DID != did {
			continue
		}
		if ev.Kind != domain.EventAuthSucceeded && ev.Kind != domain.EventAuthFailed {
			continue
		}
		attempts = append(attempts, AuthenticationAttempt{
			Role:      ev.Role,
			Succeeded: ev.Kind == domain.EventAuthSucceeded,
			Timestamp: ev.Timestamp,
			Position:  ev.Position(),
		})
	}

	// newest first
	for i, j := 0, len(attempts)-1; i < j; i, j = i+1, j-1 {
		attempts[i], attempts[j] = attempts[j], attempts[i]
	}
	return attempts
}
