package projector_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/veridoc/registry-indexer/internal/domain"
	"github.com/veridoc/registry-indexer/internal/projector"
)

const testDID = domain.DID("did:pkh:eip155:11155111:0xholder")

func roleEvent(kind domain.EventKind, role string, block uint64, index uint, at time.Time) *domain.RegistryEvent {
	return &domain.RegistryEvent{
		Kind:        kind,
		DID:         testDID,
		Role:        domain.Role(role),
		BlockNumber: block,
		LogIndex:    index,
		Timestamp:   at,
	}
}

func TestActiveRoles_GrantRevokeGrant(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	events := []*domain.RegistryEvent{
		roleEvent(domain.EventRoleGranted, "ISSUER_ROLE", 100, 0, t0),
		roleEvent(domain.EventRoleRevoked, "ISSUER_ROLE", 110, 2, t0.Add(time.Hour)),
		roleEvent(domain.EventRoleGranted, "ISSUER_ROLE", 120, 1, t0.Add(2*time.Hour)),
		roleEvent(domain.EventRoleGranted, "VERIFIER_ROLE", 105, 0, t0.Add(30*time.Minute)),
	}

	roles := projector.ActiveRoles(events, testDID)

	assert.Equal(t, []projector.ActiveRole{
		{Role: "ISSUER_ROLE", GrantedAt: t0.Add(2 * time.Hour)},
		{Role: "VERIFIER_ROLE", GrantedAt: t0.Add(30 * time.Minute)},
	}, roles)
}

func TestActiveRoles_OrderIndependent(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	ordered := []*domain.RegistryEvent{
		roleEvent(domain.EventRoleGranted, "ISSUER_ROLE", 100, 0, t0),
		roleEvent(domain.EventRoleRevoked, "ISSUER_ROLE", 110, 0, t0.Add(time.Hour)),
	}
	shuffled := []*domain.RegistryEvent{ordered[1], ordered[0]}

	assert.Equal(t, projector.ActiveRoles(ordered, testDID), projector.ActiveRoles(shuffled, testDID))
	assert.Empty(t, projector.ActiveRoles(shuffled, testDID))
}

func TestActiveRoles_IgnoresOtherDIDs(t *testing.T) {
	other := roleEvent(domain.EventRoleGranted, "ISSUER_ROLE", 100, 0, time.Now())
	other.DID = "did:pkh:eip155:11155111:0xsomeoneelse"

	assert.Empty(t, projector.ActiveRoles([]*domain.RegistryEvent{other}, testDID))
}

func TestAuthenticationHistory_NewestFirst(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	events := []*domain.RegistryEvent{
		roleEvent(domain.EventAuthFailed, "ISSUER_ROLE", 210, 4, t0.Add(time.Hour)),
		roleEvent(domain.EventAuthSucceeded, "ISSUER_ROLE", 200, 1, t0),
		// non-authentication events are not part of the history
		roleEvent(domain.EventRoleGranted, "ISSUER_ROLE", 205, 0, t0.Add(30*time.Minute)),
		roleEvent(domain.EventAuthSucceeded, "ISSUER_ROLE", 220, 0, t0.Add(2*time.Hour)),
	}

	history := projector.AuthenticationHistory(events, testDID)

	assert.Equal(t, []projector.AuthenticationAttempt{
		{Role: "ISSUER_ROLE", Succeeded: true, Timestamp: t0.Add(2 * time.Hour), Position: domain.Position{BlockNumber: 220, LogIndex: 0}},
		{Role: "ISSUER_ROLE", Succeeded: false, Timestamp: t0.Add(time.Hour), Position: domain.Position{BlockNumber: 210, LogIndex: 4}},
		{Role: "ISSUER_ROLE", Succeeded: true, Timestamp: t0, Position: domain.Position{BlockNumber: 200, LogIndex: 1}},
	}, history)
}

func TestAuthenticationHistory_Empty(t *testing.T) {
	assert.Empty(t, projector.AuthenticationHistory(nil, testDID))
}
