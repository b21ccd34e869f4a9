package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/veridoc/registry-indexer/internal/domain"
)

func TestPosition_Ordering(t *testing.T) {
	tests := []struct {
		name   string
		a, b   domain.Position
		before bool
	}{
		{
			name:   "earlier block",
			a:      domain.Position{BlockNumber: 10, LogIndex: 99},
			b:      domain.Position{BlockNumber: 11, LogIndex: 0},
			before: true,
		},
		{
			name:   "same block, earlier log index",
			a:      domain.Position{BlockNumber: 10, LogIndex: 3},
			b:      domain.Position{BlockNumber: 10, LogIndex: 4},
			before: true,
		},
		{
			name:   "equal positions",
			a:      domain.Position{BlockNumber: 10, LogIndex: 3},
			b:      domain.Position{BlockNumber: 10, LogIndex: 3},
			before: false,
		},
		{
			name:   "later block",
			a:      domain.Position{BlockNumber: 12, LogIndex: 0},
			b:      domain.Position{BlockNumber: 10, LogIndex: 50},
			before: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.before, tt.a.Before(tt.b))
			assert.Equal(t, tt.before, tt.b.After(tt.a))
		})
	}
}

func TestPosition_String(t *testing.T) {
	p := domain.Position{BlockNumber: 1234, LogIndex: 7}
	assert.Equal(t, "1234/7", p.String())
}

func TestRegistryEvent_Valid(t *testing.T) {
	base := domain.RegistryEvent{
		Chain:     domain.ChainEthereumSepolia,
		TxHash:    "0xtx",
		BlockHash: "0xblock",
	}

	trusted := true

	tests := []struct {
		name  string
		build func(ev *domain.RegistryEvent)
		valid bool
	}{
		{
			name: "identity registered",
			build: func(ev *domain.RegistryEvent) {
				ev.Kind = domain.EventIdentityRegistered
				ev.DID = "did:pkh:eip155:11155111:0xabc"
				ev.Controller = "0xController"
			},
			valid: true,
		},
		{
			name: "identity registered without controller",
			build: func(ev *domain.RegistryEvent) {
				ev.Kind = domain.EventIdentityRegistered
				ev.DID = "did:pkh:eip155:11155111:0xabc"
			},
			valid: false,
		},
		{
			name: "role granted without role",
			build: func(ev *domain.RegistryEvent) {
				ev.Kind = domain.EventRoleGranted
				ev.DID = "did:pkh:eip155:11155111:0xabc"
			},
			valid: false,
		},
		{
			name: "credential issued",
			build: func(ev *domain.RegistryEvent) {
				ev.Kind = domain.EventCredentialIssued
				ev.DID = "did:pkh:eip155:11155111:0xabc"
				ev.CredentialType = "DiplomaCredential"
				ev.CredentialID = "42"
			},
			valid: true,
		},
		{
			name: "trust update without trusted flag",
			build: func(ev *domain.RegistryEvent) {
				ev.Kind = domain.EventIssuerTrustUpdated
				ev.CredentialType = "DiplomaCredential"
				ev.Issuer = "0xIssuer"
			},
			valid: false,
		},
		{
			name: "trust update",
			build: func(ev *domain.RegistryEvent) {
				ev.Kind = domain.EventIssuerTrustUpdated
				ev.CredentialType = "DiplomaCredential"
				ev.Issuer = "0xIssuer"
				ev.Trusted = &trusted
			},
			valid: true,
		},
		{
			name: "document updated without previous id",
			build: func(ev *domain.RegistryEvent) {
				ev.Kind = domain.EventDocumentUpdated
				ev.DocumentID = "0xdoc2"
				ev.Issuer = "0xIssuer"
			},
			valid: false,
		},
		{
			name: "verification requested",
			build: func(ev *domain.RegistryEvent) {
				ev.Kind = domain.EventVerificationRequest
				ev.DocumentID = "0xdoc"
				ev.Holder = "0xHolder"
			},
			valid: true,
		},
		{
			name: "unknown kind",
			build: func(ev *domain.RegistryEvent) {
				ev.Kind = domain.EventKind("something_else")
			},
			valid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := base
			tt.build(&ev)
			assert.Equal(t, tt.valid, ev.Valid())
		})
	}

	t.Run("missing provenance", func(t *testing.T) {
		ev := domain.RegistryEvent{
			Kind: domain.EventIdentityUpdated,
			DID:  "did:pkh:eip155:11155111:0xabc",
		}
		assert.False(t, ev.Valid())
	})
}

func TestNewDID(t *testing.T) {
	did := domain.NewDID("0xAbCdEf0123456789aBcDeF0123456789AbCdEf01", domain.ChainEthereumMainnet)
	assert.Equal(t, domain.DID("did:pkh:eip155:1:0xabcdef0123456789abcdef0123456789abcdef01"), did)
	assert.True(t, did.Valid())
}

func TestDID_Valid(t *testing.T) {
	assert.True(t, domain.DID("did:web:example.com").Valid())
	assert.False(t, domain.DID("did:").Valid())
	assert.False(t, domain.DID("not-a-did").Valid())
	assert.False(t, domain.DID("did::identifier").Valid())
}

func TestRoleFromBytes32(t *testing.T) {
	var printable [32]byte
	copy(printable[:], "ISSUER_ROLE")
	assert.Equal(t, domain.Role("ISSUER_ROLE"), domain.RoleFromBytes32(printable))

	var zero [32]byte
	assert.Equal(t, domain.Role(""), domain.RoleFromBytes32(zero))

	// a keccak role hash is not printable and keeps its hex form
	var hashed [32]byte
	hashed[0] = 0x9f
	hashed[31] = 0x01
	role := domain.RoleFromBytes32(hashed)
	assert.Equal(t, 66, len(role.String()))
	assert.Equal(t, "0x9f", role.String()[:4])
}

func TestNormalizeAddress(t *testing.T) {
	// lowercased input comes back checksummed
	normalized := domain.NormalizeAddress("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")
	assert.Equal(t, "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", normalized)

	// non-address input passes through untouched
	assert.Equal(t, "did:web:example.com", domain.NormalizeAddress("did:web:example.com"))
}
