package schema

import "time"

// ConsentRequestType distinguishes why access to a document was requested
type ConsentRequestType string

const (
	// ConsentRequestShare is a request to share the document with the requester
	ConsentRequestShare ConsentRequestType = "share"
	// ConsentRequestVerification is the holder's request to have the document verified
	ConsentRequestVerification ConsentRequestType = "verification"
)

// ConsentStatus is the lifecycle state of a consent request
type ConsentStatus string

const (
	ConsentStatusPending ConsentStatus = "pending"
	ConsentStatusGranted ConsentStatus = "granted"
	ConsentStatusRejected ConsentStatus = "rejected"
)

// ConsentRequest represents the consent_requests table - one row per
// (document, requester) pair. A granted consent that is later revoked keeps
// Status granted with RevokedAt set; it is no longer active.
type ConsentRequest struct {
	// DocumentID is the document access was requested for
	DocumentID string `gorm:"column:document_id;primaryKey;type:text"`
	// Requester is the address that asked for access
	Requester string `gorm:"column:requester;primaryKey;type:text;index"`
	// RequestType distinguishes share requests from verification requests
	RequestType ConsentRequestType `gorm:"column:request_type;not null;type:text"`
	// Status is the current lifecycle state
	Status ConsentStatus `gorm:"column:status;not null;type:text"`
	// RequestedAt is the chain timestamp of the request event
	RequestedAt time.Time `gorm:"column:requested_at;not null;type:timestamptz"`
	// GrantedAt is the chain timestamp of the grant event
	GrantedAt *time.Time `gorm:"column:granted_at;type:timestamptz"`
	// RevokedAt is the chain timestamp of the revocation event
	RevokedAt *time.Time `gorm:"column:revoked_at;type:timestamptz"`
	// ValidUntil bounds how long a granted consent stays active
	ValidUntil *time.Time `gorm:"column:valid_until;type:timestamptz"`
	// LastEventBlock is the block number of the last event applied to this row
	LastEventBlock uint64 `gorm:"column:last_event_block;not null;default:0"`
	// CreatedAt is the timestamp when this record was first indexed
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
	// UpdatedAt is the timestamp when this record was last updated
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the ConsentRequest model
func (ConsentRequest) TableName() string {
	return "consent_requests"
}

// Active reports whether the consent currently allows access as of now
func (c *ConsentRequest) Active(now time.Time) bool {
	if c.Status != ConsentStatusGranted || c.RevokedAt != nil {
		return false
	}
	if c.ValidUntil != nil && now.After(*c.ValidUntil) {
		return false
	}
	return true
}
