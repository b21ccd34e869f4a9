package schema

import "time"

// Issuer represents the issuers table - address-keyed issuer records.
// Rows are created either by issuer lifecycle events or lazily on the first
// document that references the address.
type Issuer struct {
	// Address is the issuer's account address
	Address string `gorm:"column:address;primaryKey;type:text"`
	// Active indicates whether the issuer is currently active
	Active bool `gorm:"column:active;not null;default:true"`
	// RegisteredAt is the chain timestamp of the issuer registration event
	RegisteredAt *time.Time `gorm:"column:registered_at;type:timestamptz"`
	// StatusChangedAt is the chain timestamp of the latest activate/deactivate event
	StatusChangedAt *time.Time `gorm:"column:status_changed_at;type:timestamptz"`
	// LastEventBlock is the block number of the last event applied to this row
	LastEventBlock uint64 `gorm:"column:last_event_block;not null;default:0"`
	// CreatedAt is the timestamp when this record was first indexed
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
	// UpdatedAt is the timestamp when this record was last updated
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the Issuer model
func (Issuer) TableName() string {
	return "issuers"
}

// Holder represents the holders table - address-keyed holder records,
// lazily created on first reference by a document event.
type Holder struct {
	// Address is the holder's account address
	Address string `gorm:"column:address;primaryKey;type:text"`
	// FirstSeenAt is the chain timestamp of the first event referencing the address
	FirstSeenAt time.Time `gorm:"column:first_seen_at;not null;type:timestamptz"`
	// LastEventBlock is the block number of the last event applied to this row
	LastEventBlock uint64 `gorm:"column:last_event_block;not null;default:0"`
	// CreatedAt is the timestamp when this record was first indexed
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the Holder model
func (Holder) TableName() string {
	return "holders"
}
