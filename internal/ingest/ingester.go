package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/cenkalti/backoff/v4"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/veridoc/registry-indexer/internal/adapter"
	"github.com/veridoc/registry-indexer/internal/block"
	"github.com/veridoc/registry-indexer/internal/domain"
	"github.com/veridoc/registry-indexer/internal/logger"
	"github.com/veridoc/registry-indexer/internal/messaging"
	"github.com/veridoc/registry-indexer/internal/providers/ethereum"
	"github.com/veridoc/registry-indexer/internal/reducer"
	"github.com/veridoc/registry-indexer/internal/store"
	"github.com/veridoc/registry-indexer/internal/store/schema"
)

// Config holds the configuration for the ingester
type Config struct {
	Chain domain.Chain
	// StartBlock is the first block to index when no checkpoint exists
	StartBlock uint64
	// Confirmations is the reorg safety depth: only blocks at or below
	// head - Confirmations are fetched
	Confirmations uint64
	// PollInterval is the pause between ingestion cycles
	PollInterval time.Duration
	// MaxBlocksPerCycle bounds the block range of one batch
	MaxBlocksPerCycle uint64
	// DecodeWorkers is the size of the parallel decode pool
	DecodeWorkers int
}

// LogSource fetches raw contract logs over a block range
type LogSource interface {
	FetchLogs(ctx context.Context, fromBlock, toBlock uint64) ([]ethtypes.Log, error)
}

// Decoder turns a raw log into a normalized registry event
type Decoder interface {
	Decode(vLog ethtypes.Log) (*domain.RegistryEvent, error)
}

// RegistryReader is the read-through backfill surface of the registry contract
type RegistryReader interface {
	CredentialIssuer(ctx context.Context, credentialID string) (string, bool, error)
	DocumentInfo(ctx context.Context, documentID string) (*ethereum.DocumentInfo, bool, error)
	IdentityController(ctx context.Context, did string) (string, bool, error)
}

// Ingester is the single writer of the entity store. Each cycle fetches logs
// up to the confirmation-depth boundary, decodes them in parallel, filters
// everything at or below the committed cursor, sorts by (block, log index),
// reduces into a changeset and commits it atomically with the cursor advance.
type Ingester struct {
	source    LogSource
	decoder   Decoder
	store     store.Store
	blocks    block.Provider
	publisher messaging.Publisher
	reader    RegistryReader
	clock     adapter.Clock
	config    Config

	cursor *domain.Position
}

// NewIngester creates an ingester. publisher and reader are optional;
// nil disables change notifications and contract backfill respectively.
func NewIngester(
	source LogSource,
	decoder Decoder,
	st store.Store,
	blocks block.Provider,
	publisher messaging.Publisher,
	reader RegistryReader,
	clock adapter.Clock,
	cfg Config,
) *Ingester {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.MaxBlocksPerCycle == 0 {
		cfg.MaxBlocksPerCycle = 5000
	}
	if cfg.DecodeWorkers <= 0 {
		cfg.DecodeWorkers = 4
	}
	return &Ingester{
		source:    source,
		decoder:   decoder,
		store:     st,
		blocks:    blocks,
		publisher: publisher,
		reader:    reader,
		clock:     clock,
		config:    cfg,
	}
}

// isFatal reports whether an error must stop the indexer instead of being
// retried on the next cycle
func isFatal(err error) bool {
	return errors.Is(err, domain.ErrAmbiguousOrder) ||
		errors.Is(err, domain.ErrReorgBelowCheckpoint) ||
		errors.Is(err, domain.ErrCheckpointInconsistent)
}

// Run executes ingestion cycles until the context is cancelled or a fatal
// error occurs. Transient cycle errors are logged and retried next cycle.
func (in *Ingester) Run(ctx context.Context) error {
	checkpoint, err := in.store.GetCheckpoint(ctx, in.config.Chain)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if checkpoint != nil {
		in.cursor = &domain.Position{BlockNumber: checkpoint.BlockNumber, LogIndex: checkpoint.LogIndex}
		logger.Info("Resuming from checkpoint",
			zap.String("chain", string(in.config.Chain)),
			zap.String("position", in.cursor.String()))
	} else {
		logger.Info("No checkpoint, starting from configured block",
			zap.String("chain", string(in.config.Chain)),
			zap.Uint64("start_block", in.config.StartBlock))
	}

	pool := pond.NewPool(in.config.DecodeWorkers, pond.WithContext(ctx))
	defer pool.StopAndWait()

	for {
		if err := in.runCycle(ctx, pool); err != nil {
			if isFatal(err) {
				logger.Error(err, zap.String("chain", string(in.config.Chain)))
				return err
			}
			logger.Warn("Ingestion cycle failed, will retry",
				zap.String("chain", string(in.config.Chain)),
				zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-in.clock.After(in.config.PollInterval):
		}
	}
}

// fetchRange computes the [from, to] block range for this cycle.
// ok is false when no confirmed blocks are available yet.
func (in *Ingester) fetchRange(head uint64) (from, to uint64, ok bool) {
	if head < in.config.Confirmations {
		return 0, 0, false
	}
	safeHead := head - in.config.Confirmations

	from = in.config.StartBlock
	if in.cursor != nil {
		// refetch the cursor block so later logs in it are not missed;
		// the position filter drops everything already committed
		from = in.cursor.BlockNumber
	}
	if from > safeHead {
		return 0, 0, false
	}

	to = safeHead
	limit := from + in.config.MaxBlocksPerCycle - 1
	if in.cursor != nil {
		// the refetched cursor block does not count against the cycle
		// budget, otherwise a budget of one block could never advance
		limit = in.cursor.BlockNumber + in.config.MaxBlocksPerCycle
	}
	if to > limit {
		to = limit
	}
	return from, to, true
}

func (in *Ingester) runCycle(ctx context.Context, pool pond.Pool) error {
	head, err := in.blocks.GetLatestBlock(ctx)
	if err != nil {
		return fmt.Errorf("failed to get head block: %w", err)
	}

	from, to, ok := in.fetchRange(head)
	if !ok {
		return nil
	}

	logs, err := in.source.FetchLogs(ctx, from, to)
	if err != nil {
		return fmt.Errorf("failed to fetch logs for %d-%d: %w", from, to, err)
	}

	events, err := in.decodeLogs(ctx, pool, logs)
	if err != nil {
		return err
	}

	events, clampTo, err := in.handleRetractions(events)
	if err != nil {
		return err
	}
	if clampTo != nil && *clampTo < to {
		// the canonical logs for the retracted range arrive next cycle
		to = *clampTo
	}

	events = in.dedupAndSort(events)
	if err := assertUniquePositions(events); err != nil {
		return err
	}

	if err := in.stampTimestamps(ctx, events); err != nil {
		return err
	}

	cs, err := in.reduce(ctx, events)
	if err != nil {
		return err
	}

	checkpoint := in.nextCheckpoint(events, to)
	if err := in.commit(ctx, checkpoint, cs); err != nil {
		return err
	}

	in.cursor = &domain.Position{BlockNumber: checkpoint.BlockNumber, LogIndex: checkpoint.LogIndex}

	if len(events) > 0 {
		logger.Info("Committed batch",
			zap.String("chain", string(in.config.Chain)),
			zap.Int("events", len(events)),
			zap.Int("writes", cs.Size()),
			zap.String("position", in.cursor.String()))
	}

	// post-commit, best effort
	in.publish(ctx, events)
	in.backfill(ctx, cs)

	return nil
}

// decodeLogs decodes raw logs in parallel, preserving input order.
// Unrecognized logs are dropped silently; malformed known events are logged
// and skipped, never fatal.
func (in *Ingester) decodeLogs(ctx context.Context, pool pond.Pool, logs []ethtypes.Log) ([]*domain.RegistryEvent, error) {
	if len(logs) == 0 {
		return nil, nil
	}

	decoded := make([]*domain.RegistryEvent, len(logs))
	decodeErrs := make([]error, len(logs))

	group := pool.NewGroup()
	for i := range logs {
		i := i
		group.Submit(func() {
			decoded[i], decodeErrs[i] = in.decoder.Decode(logs[i])
		})
	}
	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("decode pool failed: %w", err)
	}

	events := make([]*domain.RegistryEvent, 0, len(logs))
	for i, ev := range decoded {
		if decodeErrs[i] != nil {
			logger.WarnCtx(ctx, "Skipping undecodable log",
				zap.Uint64("block", logs[i].BlockNumber),
				zap.Uint("log_index", logs[i].Index),
				zap.String("tx", logs[i].TxHash.Hex()),
				zap.Error(decodeErrs[i]))
			continue
		}
		if ev == nil {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// handleRetractions applies the reorg policy to removed logs in the batch.
// With B the lowest retracted block: retractions at or below the committed
// checkpoint are fatal, otherwise the batch from B upward is dropped and the
// returned bound clamps this cycle's checkpoint to B-1 so the next cycle
// refetches the canonical logs.
func (in *Ingester) handleRetractions(events []*domain.RegistryEvent) ([]*domain.RegistryEvent, *uint64, error) {
	lowestRetracted := uint64(0)
	found := false
	for _, ev := range events {
		if ev.Removed && (!found || ev.BlockNumber < lowestRetracted) {
			lowestRetracted = ev.BlockNumber
			found = true
		}
	}
	if !found {
		return events, nil, nil
	}

	if in.cursor != nil && lowestRetracted <= in.cursor.BlockNumber {
		return nil, nil, fmt.Errorf("%w: retraction at block %d, checkpoint at %s",
			domain.ErrReorgBelowCheckpoint, lowestRetracted, in.cursor)
	}

	kept := events[:0]
	for _, ev := range events {
		if ev.BlockNumber < lowestRetracted {
			kept = append(kept, ev)
		}
	}

	logger.Warn("Retracted logs in batch, truncating",
		zap.String("chain", string(in.config.Chain)),
		zap.Uint64("retracted_from_block", lowestRetracted),
		zap.Int("kept_events", len(kept)))

	clampTo := lowestRetracted - 1
	return kept, &clampTo, nil
}

// dedupAndSort drops events at or below the cursor and sorts the remainder
// in ascending (block, log index) order
func (in *Ingester) dedupAndSort(events []*domain.RegistryEvent) []*domain.RegistryEvent {
	kept := events[:0]
	for _, ev := range events {
		if in.cursor != nil && !ev.Position().After(*in.cursor) {
			continue
		}
		kept = append(kept, ev)
	}

	sort.Slice(kept, func(i, j int) bool {
		return kept[i].Position().Before(kept[j].Position())
	})
	return kept
}

// assertUniquePositions fails loudly on two events with identical
// (block, log index), which the event source excludes by construction
func assertUniquePositions(events []*domain.RegistryEvent) error {
	for i := 1; i < len(events); i++ {
		if events[i].Position() == events[i-1].Position() {
			return fmt.Errorf("%w: two events at %s", domain.ErrAmbiguousOrder, events[i].Position())
		}
	}
	return nil
}

// stampTimestamps fills in block timestamps for events whose payload does
// not carry one
func (in *Ingester) stampTimestamps(ctx context.Context, events []*domain.RegistryEvent) error {
	for _, ev := range events {
		if !ev.Timestamp.IsZero() {
			continue
		}
		ts, err := in.blocks.GetBlockTimestamp(ctx, ev.BlockNumber)
		if err != nil {
			return fmt.Errorf("failed to stamp event at %s: %w", ev.Position(), err)
		}
		ev.Timestamp = ts
	}
	return nil
}

// reduce folds the ordered events into a changeset
func (in *Ingester) reduce(ctx context.Context, events []*domain.RegistryEvent) (*reducer.Changeset, error) {
	applier := reducer.NewApplier(in.store)
	cs := reducer.NewChangeset()

	for _, ev := range events {
		if !ev.Valid() {
			logger.WarnCtx(ctx, "Skipping invalid event",
				zap.String("kind", string(ev.Kind)),
				zap.String("position", ev.Position().String()))
			continue
		}
		if err := applier.Apply(ctx, cs, ev); err != nil {
			return nil, fmt.Errorf("failed to apply event at %s: %w", ev.Position(), err)
		}
		if err := applier.Journal(cs, ev); err != nil {
			return nil, err
		}
	}

	for _, warning := range cs.Warnings {
		logger.WarnCtx(ctx, "Event skipped by reducer",
			zap.String("kind", string(warning.Kind)),
			zap.String("position", warning.Position.String()),
			zap.String("reason", warning.Reason))
	}

	return cs, nil
}

// nextCheckpoint computes the cursor position this batch commits up to.
// Every block up to `to` has been fully fetched, so the checkpoint lands on
// the last applied event when it sits in block `to`, or on (to, 0) otherwise.
func (in *Ingester) nextCheckpoint(events []*domain.RegistryEvent, to uint64) schema.Checkpoint {
	checkpoint := schema.Checkpoint{
		Chain:       string(in.config.Chain),
		BlockNumber: to,
	}
	if in.cursor != nil && in.cursor.BlockNumber == to {
		// refetch of the cursor block with nothing new past the cursor must
		// not move the log index backwards
		checkpoint.LogIndex = in.cursor.LogIndex
	}
	if len(events) > 0 {
		last := events[len(events)-1]
		checkpoint.BlockHash = last.BlockHash
		if last.BlockNumber == to {
			checkpoint.LogIndex = last.LogIndex
		}
	}
	return checkpoint
}

// commit writes the batch with retry on transient store failures.
// A checkpoint inconsistency is never retried.
func (in *Ingester) commit(ctx context.Context, checkpoint schema.Checkpoint, cs *reducer.Changeset) error {
	operation := func() error {
		err := in.store.CommitBatch(ctx, in.config.Chain, checkpoint, cs)
		if err != nil && errors.Is(err, domain.ErrCheckpointInconsistent) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

// publish notifies downstream consumers of committed events. Failures are
// logged only; the batch is already durable.
func (in *Ingester) publish(ctx context.Context, events []*domain.RegistryEvent) {
	if in.publisher == nil {
		return
	}
	for _, ev := range events {
		if err := in.publisher.PublishEvent(ctx, ev); err != nil {
			logger.WarnCtx(ctx, "Failed to publish committed event",
				zap.String("kind", string(ev.Kind)),
				zap.String("position", ev.Position().String()),
				zap.Error(err))
		}
	}
}

// backfill fills fields the events do not carry by reading the registry
// contract. Best effort: absent contract state and read errors both leave
// the row as the events built it.
func (in *Ingester) backfill(ctx context.Context, cs *reducer.Changeset) {
	if in.reader == nil {
		return
	}

	for id, credential := range cs.Credentials {
		if credential.Issuer != nil {
			continue
		}
		issuer, found, err := in.reader.CredentialIssuer(ctx, id)
		if err != nil {
			logger.DebugCtx(ctx, "Credential issuer backfill failed",
				zap.String("credential_id", id), zap.Error(err))
			continue
		}
		if !found {
			continue
		}
		if err := in.store.UpdateCredentialIssuer(ctx, id, issuer); err != nil {
			logger.WarnCtx(ctx, "Failed to store credential issuer",
				zap.String("credential_id", id), zap.Error(err))
		}
	}

	for id, document := range cs.Documents {
		if document.DocumentType != nil {
			continue
		}
		info, found, err := in.reader.DocumentInfo(ctx, id)
		if err != nil {
			logger.DebugCtx(ctx, "Document info backfill failed",
				zap.String("document_id", id), zap.Error(err))
			continue
		}
		if !found {
			continue
		}
		if err := in.store.UpdateDocumentInfo(ctx, id, info.DocumentType, info.ExpiresAt); err != nil {
			logger.WarnCtx(ctx, "Failed to store document info",
				zap.String("document_id", id), zap.Error(err))
		}
	}

	for did, identity := range cs.Identities {
		if identity.Controller != nil {
			continue
		}
		controller, found, err := in.reader.IdentityController(ctx, did)
		if err != nil {
			logger.DebugCtx(ctx, "Identity controller backfill failed",
				zap.String("did", did), zap.Error(err))
			continue
		}
		if !found {
			continue
		}
		if err := in.store.UpdateIdentityController(ctx, did, controller); err != nil {
			logger.WarnCtx(ctx, "Failed to store identity controller",
				zap.String("did", did), zap.Error(err))
		}
	}
}
