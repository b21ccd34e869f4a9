package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/veridoc/registry-indexer/internal/adapter"
	"github.com/veridoc/registry-indexer/internal/logger"
)

const (
	defaultChunkSize    = uint64(10000)
	defaultFetchTimeout = time.Minute
)

// LogSource fetches registry contract logs over a bounded block range.
// Ranges larger than the chunk size are split, and chunks that hit provider
// result limits are retried with a halved step.
type LogSource struct {
	client    adapter.EthClient
	contract  common.Address
	chunkSize uint64
	timeout   time.Duration
}

// NewLogSource creates a log source for the registry contract.
// A chunkSize of 0 selects the default.
func NewLogSource(client adapter.EthClient, contractAddress string, chunkSize uint64) *LogSource {
	if chunkSize == 0 {
		chunkSize = defaultChunkSize
	}
	return &LogSource{
		client:    client,
		contract:  common.HexToAddress(contractAddress),
		chunkSize: chunkSize,
		timeout:   defaultFetchTimeout,
	}
}

// FetchLogs retrieves all registry logs in [fromBlock, toBlock], inclusive
func (s *LogSource) FetchLogs(ctx context.Context, fromBlock, toBlock uint64) ([]types.Log, error) {
	if fromBlock > toBlock {
		return nil, nil
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := ethereum.FilterQuery{
		Addresses: []common.Address{s.contract},
		Topics:    [][]common.Hash{EventSignatures()},
	}

	var allLogs []types.Log
	stepSize := s.chunkSize
	currentFrom := fromBlock

	for currentFrom <= toBlock {
		currentTo := currentFrom + stepSize - 1
		if currentTo > toBlock || currentTo < currentFrom {
			currentTo = toBlock
		}

		chunkQuery := query
		chunkQuery.FromBlock = new(big.Int).SetUint64(currentFrom)
		chunkQuery.ToBlock = new(big.Int).SetUint64(currentTo)

		logs, err := s.client.FilterLogs(timeoutCtx, chunkQuery)
		if err == nil {
			allLogs = append(allLogs, logs...)
			currentFrom = currentTo + 1
			continue
		}

		if !isTooManyResultsError(err) {
			return nil, fmt.Errorf("failed to fetch logs for range %d-%d: %w", currentFrom, currentTo, err)
		}

		// provider result limit hit, halve the step and retry the same range
		stepSize = stepSize / 2
		if stepSize == 0 {
			return nil, fmt.Errorf("failed to fetch logs: single block %d exceeds provider limits", currentFrom)
		}

		logger.Warn("Too many results, reducing step size",
			zap.Uint64("newStepSize", stepSize),
			zap.Uint64("fromBlock", currentFrom),
			zap.Uint64("toBlock", currentTo))
	}

	return allLogs, nil
}

// isTooManyResultsError checks if the error is related to too many results
func isTooManyResultsError(err error) bool {
	if err == nil {
		return false
	}

	errStr := err.Error()
	return strings.Contains(errStr, "query returned more than 10000 results") ||
		strings.Contains(errStr, "query timeout exceeded") ||
		strings.Contains(errStr, "too many results") ||
		strings.Contains(errStr, "exceeded maximum")
}
