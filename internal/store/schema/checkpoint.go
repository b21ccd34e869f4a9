package schema

import "time"

// Checkpoint represents the checkpoints table - the highest fully committed
// (block number, log index) per chain. It only moves inside the same
// transaction that commits the batch it covers.
type Checkpoint struct {
	// Chain is the CAIP-2 chain identifier
	Chain string `gorm:"column:chain;primaryKey;type:text"`
	// BlockNumber is the committed block number
	BlockNumber uint64 `gorm:"column:block_number;not null"`
	// LogIndex is the committed log index within BlockNumber
	LogIndex uint `gorm:"column:log_index;not null"`
	// BlockHash is the hash of the committed block, kept for reorg detection
	BlockHash string `gorm:"column:block_hash;type:text"`
	// UpdatedAt is the timestamp when the checkpoint last advanced
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz;autoUpdateTime"`
}

// TableName specifies the table name for the Checkpoint model
func (Checkpoint) TableName() string {
	return "checkpoints"
}
