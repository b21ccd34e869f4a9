package block

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/veridoc/registry-indexer/internal/adapter"
	"github.com/veridoc/registry-indexer/internal/logger"
)

// HeadInfo represents the cached latest block
type HeadInfo struct {
	Number   uint64
	CachedAt time.Time
}

// Provider provides cached access to the latest block number and to block
// timestamps. It reduces RPC calls to the blockchain provider by caching the
// head for a configurable TTL and confirmed block timestamps in an LRU.
type Provider interface {
	// GetLatestBlock returns the latest block number, potentially from cache
	GetLatestBlock(ctx context.Context) (uint64, error)

	// GetBlockTimestamp returns the timestamp for a given block number,
	// potentially from cache
	GetBlockTimestamp(ctx context.Context, blockNumber uint64) (time.Time, error)
}

// Fetcher is the interface for fetching block information from the blockchain
type Fetcher interface {
	// FetchLatestBlock fetches the latest block from the blockchain
	FetchLatestBlock(ctx context.Context) (uint64, error)

	// FetchBlockTimestamp fetches the timestamp for a given block number
	FetchBlockTimestamp(ctx context.Context, blockNumber uint64) (time.Time, error)
}

// Config holds configuration for the Provider
type Config struct {
	// TTL is how long to cache the head block number
	TTL time.Duration

	// StaleWindow is how long to keep serving a stale head if fetching fails.
	// If the cached head is older than this and the fetch fails, return error.
	StaleWindow time.Duration

	// TimestampCacheSize is the LRU capacity for block timestamps.
	// The indexer only asks for timestamps of confirmed blocks, which are
	// immutable, so entries never expire and are only evicted by capacity.
	TimestampCacheSize int
}

type provider struct {
	fetcher Fetcher
	config  Config
	clock   adapter.Clock

	mu         sync.RWMutex
	head       *HeadInfo
	timestamps *lru.Cache[uint64, time.Time]
}

// NewProvider creates a new block Provider with caching
func NewProvider(fetcher Fetcher, config Config, clock adapter.Clock) (Provider, error) {
	size := config.TimestampCacheSize
	if size <= 0 {
		size = 4096
	}
	timestamps, err := lru.New[uint64, time.Time](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create timestamp cache: %w", err)
	}

	return &provider{
		fetcher:    fetcher,
		config:     config,
		clock:      clock,
		timestamps: timestamps,
	}, nil
}

// GetLatestBlock returns the latest block number, using cache if valid
func (p *provider) GetLatestBlock(ctx context.Context) (uint64, error) {
	p.mu.RLock()
	cached := p.head
	p.mu.RUnlock()

	now := p.clock.Now()

	if cached != nil && now.Sub(cached.CachedAt) < p.config.TTL {
		logger.DebugCtx(ctx, "Using cached block number", zap.Uint64("block_number", cached.Number))
		return cached.Number, nil
	}

	blockNumber, err := p.fetcher.FetchLatestBlock(ctx)
	if err != nil {
		// fall back to a stale head inside the stale window
		if cached != nil && now.Sub(cached.CachedAt) < p.config.StaleWindow {
			logger.DebugCtx(ctx, "Using stale block number", zap.Uint64("block_number", cached.Number))
			return cached.Number, nil
		}
		return 0, fmt.Errorf("failed to fetch latest block and no valid cache available: %w", err)
	}

	p.mu.Lock()
	p.head = &HeadInfo{
		Number:   blockNumber,
		CachedAt: now,
	}
	p.mu.Unlock()

	return blockNumber, nil
}

// GetBlockTimestamp returns the timestamp for a given block number,
// using cache if available
func (p *provider) GetBlockTimestamp(ctx context.Context, blockNumber uint64) (time.Time, error) {
	if timestamp, ok := p.timestamps.Get(blockNumber); ok {
		return timestamp, nil
	}

	logger.DebugCtx(ctx, "Fetching block timestamp from blockchain provider",
		zap.Uint64("block_number", blockNumber))
	timestamp, err := p.fetcher.FetchBlockTimestamp(ctx, blockNumber)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to fetch block timestamp for block %d: %w", blockNumber, err)
	}

	p.timestamps.Add(blockNumber, timestamp)
	return timestamp, nil
}
