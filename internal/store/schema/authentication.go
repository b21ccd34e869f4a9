package schema

import "time"

// AuthenticationRecord represents the authentication_records table - an
// append-only log of authentication attempts. Rows are keyed by the event's
// chain position, never mutated after creation.
type AuthenticationRecord struct {
	// BlockNumber and LogIndex form the natural key: the position of the
	// authentication event on chain
	BlockNumber uint64 `gorm:"column:block_number;primaryKey;autoIncrement:false"`
	LogIndex    uint   `gorm:"column:log_index;primaryKey;autoIncrement:false"`
	// DID is the identity that attempted to authenticate
	DID string `gorm:"column:did;not null;type:text;index:idx_auth_records_did_time,priority:1"`
	// Role is the role the identity authenticated under
	Role string `gorm:"column:role;not null;type:text"`
	// Succeeded records the attempt outcome
	Succeeded bool `gorm:"column:succeeded;not null"`
	// Timestamp is the chain timestamp of the attempt
	Timestamp time.Time `gorm:"column:timestamp;not null;type:timestamptz;index:idx_auth_records_did_time,priority:2"`
	// TxHash is the transaction the event was emitted in
	TxHash string `gorm:"column:tx_hash;not null;type:text"`
	// CreatedAt is the timestamp when this record was indexed
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the AuthenticationRecord model
func (AuthenticationRecord) TableName() string {
	return "authentication_records"
}
