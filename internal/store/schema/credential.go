package schema

import "time"

// Credential represents the credentials table - one row per issued
// credential. The subject DID may reference an identity that has not been
// registered yet; the reducer creates a placeholder identity in that case.
type Credential struct {
	// ID is the on-chain credential id (uint256, stored as decimal string)
	ID string `gorm:"column:id;primaryKey;type:text"`
	// CredentialType is the credential type name
	CredentialType string `gorm:"column:credential_type;not null;type:text;index:idx_credentials_type_issuer,priority:1"`
	// SubjectDID is the identity the credential was issued to
	SubjectDID string `gorm:"column:subject_did;not null;type:text;index"`
	// Issuer is the issuing address (nil until a ledger backfill supplies it;
	// issuance events do not carry it)
	Issuer *string `gorm:"column:issuer;type:text;index:idx_credentials_type_issuer,priority:2"`
	// IssuedAt is the chain timestamp of the issuance event
	IssuedAt time.Time `gorm:"column:issued_at;not null;type:timestamptz"`
	// Verified indicates whether the credential passed verification
	Verified bool `gorm:"column:verified;not null;default:false"`
	// VerifiedAt is the chain timestamp of the successful verification event
	VerifiedAt *time.Time `gorm:"column:verified_at;type:timestamptz"`
	// VerificationFailedAt is the chain timestamp of the latest failed verification
	VerificationFailedAt *time.Time `gorm:"column:verification_failed_at;type:timestamptz"`
	// LastEventBlock is the block number of the last event applied to this row
	LastEventBlock uint64 `gorm:"column:last_event_block;not null;default:0"`
	// CreatedAt is the timestamp when this record was first indexed
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
	// UpdatedAt is the timestamp when this record was last updated
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the Credential model
func (Credential) TableName() string {
	return "credentials"
}
