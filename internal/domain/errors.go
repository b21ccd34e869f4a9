package domain

import "errors"

var (
	// ErrAmbiguousOrder is returned when two events carry an identical
	// (block number, log index) position. The event source guarantees this
	// cannot happen; seeing it means the feed is corrupt.
	ErrAmbiguousOrder = errors.New("ambiguous event order: duplicate (block, log index) position")

	// ErrReorgBelowCheckpoint is returned when a retracted block is at or
	// below the committed checkpoint. State derived from it is already
	// durable, so the indexer must stop rather than re-derive silently.
	ErrReorgBelowCheckpoint = errors.New("reorg retracts a block at or below the committed checkpoint")

	// ErrCheckpointInconsistent is returned when the persisted checkpoint
	// cannot be reconciled with the entity snapshot
	ErrCheckpointInconsistent = errors.New("checkpoint inconsistent with entity snapshot")
)
