package schema

import "time"

// TrustedIssuer represents the trusted_issuers table - one row per
// (credential type, issuer address) pair. Trust status events are
// last-writer-wins in event order.
type TrustedIssuer struct {
	// CredentialType is the credential type the trust applies to
	CredentialType string `gorm:"column:credential_type;primaryKey;type:text"`
	// Issuer is the issuing address
	Issuer string `gorm:"column:issuer;primaryKey;type:text"`
	// Trusted indicates whether the issuer is currently trusted for the type
	Trusted bool `gorm:"column:trusted;not null;default:false"`
	// StatusChangedAt is the chain timestamp of the latest trust-status event
	StatusChangedAt time.Time `gorm:"column:status_changed_at;not null;type:timestamptz"`
	// LastEventBlock is the block number of the last event applied to this row
	LastEventBlock uint64 `gorm:"column:last_event_block;not null;default:0"`
	// CreatedAt is the timestamp when this record was first indexed
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
	// UpdatedAt is the timestamp when this record was last updated
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the TrustedIssuer model
func (TrustedIssuer) TableName() string {
	return "trusted_issuers"
}
