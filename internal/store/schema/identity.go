package schema

import "time"

// Identity represents the identities table - one row per DID known to the
// registry. A row may begin life as a placeholder created by a dependent
// event (credential issuance, role grant) before the DID's own registration
// event arrives; registration then fills in the missing fields without
// replacing the row. Identities are never physically deleted.
type Identity struct {
	// DID is the decentralized identifier, the natural primary key
	DID string `gorm:"column:did;primaryKey;type:text"`
	// Controller is the controlling account address (nil until the
	// registration event or a ledger backfill supplies it)
	Controller *string `gorm:"column:controller;type:text"`
	// Active indicates whether the identity is currently active
	Active bool `gorm:"column:active;not null;default:true"`
	// RegisteredAt is the chain timestamp of the registration event
	RegisteredAt *time.Time `gorm:"column:registered_at;type:timestamptz"`
	// DeactivatedAt is the chain timestamp of the deactivation event
	DeactivatedAt *time.Time `gorm:"column:deactivated_at;type:timestamptz"`
	// LastEventBlock is the block number of the last event applied to this row
	LastEventBlock uint64 `gorm:"column:last_event_block;not null;default:0"`
	// LastEventTime is the chain timestamp of the last event applied to this row
	LastEventTime time.Time `gorm:"column:last_event_time;not null;type:timestamptz"`
	// CreatedAt is the timestamp when this record was first indexed
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
	// UpdatedAt is the timestamp when this record was last updated
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the Identity model
func (Identity) TableName() string {
	return "identities"
}
