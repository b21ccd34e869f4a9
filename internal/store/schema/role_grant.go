package schema

import "time"

// RoleGrant represents the role_grants table - one row per (DID, role) pair.
// The row is reused across grant/revoke/re-grant cycles rather than being
// recreated; Granted reflects the latest transition.
type RoleGrant struct {
	// DID is the identity the role applies to
	DID string `gorm:"column:did;primaryKey;type:text"`
	// Role is the role identifier
	Role string `gorm:"column:role;primaryKey;type:text"`
	// Granted indicates whether the role is currently held
	Granted bool `gorm:"column:granted;not null;default:false"`
	// GrantedAt is the chain timestamp of the most recent grant
	GrantedAt *time.Time `gorm:"column:granted_at;type:timestamptz"`
	// RevokedAt is the chain timestamp of the most recent revocation
	// (cleared again when the role is re-granted)
	RevokedAt *time.Time `gorm:"column:revoked_at;type:timestamptz"`
	// LastEventBlock is the block number of the last event applied to this row
	LastEventBlock uint64 `gorm:"column:last_event_block;not null;default:0"`
	// CreatedAt is the timestamp when this record was first indexed
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
	// UpdatedAt is the timestamp when this record was last updated
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the RoleGrant model
func (RoleGrant) TableName() string {
	return "role_grants"
}
