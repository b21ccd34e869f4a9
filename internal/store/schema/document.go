package schema

import "time"

// Document represents the documents table. Document updates never mutate an
// existing row; the update event registers a new document that points back to
// the previous version through PreviousVersionID, forming an explicit chain.
type Document struct {
	// ID is the on-chain document id (bytes32, stored as 0x-prefixed hex)
	ID string `gorm:"column:id;primaryKey;type:text"`
	// Issuer is the issuing address
	Issuer string `gorm:"column:issuer;not null;type:text;index"`
	// Holder is the holding address
	Holder string `gorm:"column:holder;not null;type:text;index"`
	// DocumentType is the registry's document type name (nil until a ledger
	// backfill supplies it; registration events do not carry it)
	DocumentType *string `gorm:"column:document_type;type:text"`
	// IssuedAt is the chain timestamp of the registration event
	IssuedAt time.Time `gorm:"column:issued_at;not null;type:timestamptz"`
	// ExpiresAt is the document expiration, when the registry defines one
	ExpiresAt *time.Time `gorm:"column:expires_at;type:timestamptz"`
	// Verified indicates whether the document has been verified
	Verified bool `gorm:"column:verified;not null;default:false"`
	// Verifier is the address that verified the document
	Verifier *string `gorm:"column:verifier;type:text"`
	// VerifiedAt is the chain timestamp of the verification event
	VerifiedAt *time.Time `gorm:"column:verified_at;type:timestamptz"`
	// PreviousVersionID links to the document this one supersedes
	PreviousVersionID *string `gorm:"column:previous_version_id;type:text;index"`
	// LastEventBlock is the block number of the last event applied to this row
	LastEventBlock uint64 `gorm:"column:last_event_block;not null;default:0"`
	// CreatedAt is the timestamp when this record was first indexed
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
	// UpdatedAt is the timestamp when this record was last updated
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the Document model
func (Document) TableName() string {
	return "documents"
}
