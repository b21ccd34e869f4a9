package schema

import (
	"time"

	"gorm.io/datatypes"
)

// EventJournal represents the event_journal table - an append-only record of
// every event the indexer applied, in the order it applied them. Useful for
// debugging and for auditing a replay against what was actually committed.
type EventJournal struct {
	// BlockNumber and LogIndex are the event's chain position
	BlockNumber uint64 `gorm:"column:block_number;primaryKey;autoIncrement:false"`
	LogIndex    uint   `gorm:"column:log_index;primaryKey;autoIncrement:false"`
	// Kind is the decoded event kind
	Kind string `gorm:"column:kind;not null;type:text;index"`
	// TxHash is the transaction the event was emitted in
	TxHash string `gorm:"column:tx_hash;not null;type:text"`
	// BlockHash is the hash of the containing block
	BlockHash string `gorm:"column:block_hash;not null;type:text"`
	// Payload is the full normalized event as JSON
	Payload datatypes.JSON `gorm:"column:payload;type:jsonb"`
	// CreatedAt is the timestamp when this record was indexed
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the EventJournal model
func (EventJournal) TableName() string {
	return "event_journal"
}
