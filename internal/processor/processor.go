// Package processor orchestrates one batch of trace records through
// the Matcher, sinks, Transformer Engine, Watermark Manager, and
// enqueue boundaries, in a fixed, deterministic order.
package processor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/burnt-labs/dao-dao-indexer/internal/allowlist"
	"github.com/burnt-labs/dao-dao-indexer/internal/enqueue"
	"github.com/burnt-labs/dao-dao-indexer/internal/errkind"
	"github.com/burnt-labs/dao-dao-indexer/internal/matcher"
	"github.com/burnt-labs/dao-dao-indexer/internal/metrics"
	"github.com/burnt-labs/dao-dao-indexer/internal/retry"
	"github.com/burnt-labs/dao-dao-indexer/internal/store"
	"github.com/burnt-labs/dao-dao-indexer/internal/trace"
	"github.com/burnt-labs/dao-dao-indexer/internal/transform"
	"github.com/burnt-labs/dao-dao-indexer/internal/wasmkv"
	"github.com/burnt-labs/dao-dao-indexer/internal/watermark"
)

// Deps collects every component a Processor wires together. All
// fields are required except Webhook/CodeTracker, which may be nil
// no-ops, Metrics, which may be nil, and Log, which defaults to a no-op
// logger.
type Deps struct {
	ChainID      string
	Bech32Prefix string
	Variant      wasmkv.Variant
	SendWebhooks bool

	BlockSink    *store.BlockSink
	ContractSink *store.ContractSink
	EventSink    *store.EventSink
	Allowlist    *allowlist.Registry
	Transformer  *transform.Engine
	Watermark    *watermark.Manager
	Webhook      enqueue.WebhookEnqueuer
	CodeTracker  enqueue.CodeTrackerEnqueuer

	Metrics *metrics.Metrics
	Log     *zap.Logger
}

// Processor runs the batch pipeline. A single instance must not be
// run concurrently against the same database.
type Processor struct {
	deps Deps
	log  *zap.Logger
}

func New(deps Deps) *Processor {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Processor{deps: deps, log: log.Named("processor")}
}

// ProcessBatch runs one batch of trace records end to end. It returns
// an error when the batch aborts before the watermark advances.
// Decode-class and value-decode-class problems in individual trace
// records are handled per record and do not abort the batch; a
// Decode-kind error from the Transformer Engine (a rule output that
// fails to marshal) does.
func (p *Processor) ProcessBatch(ctx context.Context, records []trace.Record) (err error) {
	start := time.Now()
	defer func() {
		if p.deps.Metrics == nil {
			return
		}
		p.deps.Metrics.BatchDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			p.deps.Metrics.BatchFailures.Inc()
			return
		}
		p.deps.Metrics.BatchesProcessed.Inc()
	}()

	preState, err := p.deps.Watermark.Get(ctx, p.deps.ChainID)
	if err != nil {
		return errkind.AsTransient(fmt.Errorf("processor: read watermark: %w", err))
	}

	contractEvents, stateEvents := p.matchAll(records)
	if len(contractEvents) == 0 && len(stateEvents) == 0 {
		return nil
	}

	if err := retry.Do(ctx, p.log, "upsert_blocks", p.deps.Metrics, func() error {
		return p.deps.BlockSink.UpsertBlocks(ctx, contractEvents, stateEvents)
	}); err != nil {
		return errkind.AsTransient(fmt.Errorf("processor: block sink: %w", err))
	}

	if err := retry.Do(ctx, p.log, "upsert_contract_lifecycle", p.deps.Metrics, func() error {
		return p.deps.ContractSink.UpsertLifecycleEvents(ctx, contractEvents)
	}); err != nil {
		return errkind.AsTransient(fmt.Errorf("processor: contract lifecycle upsert: %w", err))
	}

	contracts, err := p.deps.ContractSink.BackfillFromStateEvents(ctx, stateEvents)
	if err != nil {
		return errkind.AsTransient(fmt.Errorf("processor: contract backfill: %w", err))
	}
	contracts, err = p.deps.ContractSink.BackfillCodeIDs(ctx, contracts)
	if err != nil {
		return errkind.AsTransient(fmt.Errorf("processor: code id backfill: %w", err))
	}

	lifecycleAddresses := make([]string, 0, len(contractEvents))
	for _, e := range contractEvents {
		lifecycleAddresses = append(lifecycleAddresses, e.Address)
	}
	lifecycleContracts, err := p.deps.ContractSink.ReadByAddresses(ctx, lifecycleAddresses)
	if err != nil {
		return errkind.AsTransient(fmt.Errorf("processor: read lifecycle contracts: %w", err))
	}
	for addr, c := range lifecycleContracts {
		contracts[addr] = c
	}

	filteredState := make([]matcher.StateEvent, 0, len(stateEvents))
	for _, e := range stateEvents {
		codeID := contracts[e.Address].CodeID
		if p.deps.Allowlist.Keep(p.deps.ChainID, codeID, e.Key) {
			filteredState = append(filteredState, e)
		}
	}

	var persisted []store.Persisted
	if err := retry.Do(ctx, p.log, "upsert_state_events", p.deps.Metrics, func() error {
		var upsertErr error
		persisted, upsertErr = p.deps.EventSink.Upsert(ctx, filteredState, contracts)
		return upsertErr
	}); err != nil {
		return errkind.AsTransient(fmt.Errorf("processor: event sink: %w", err))
	}

	if p.deps.Metrics != nil {
		p.deps.Metrics.EventsPersisted.Add(float64(len(persisted)))
		p.deps.Metrics.ContractsUpserted.Add(float64(len(contracts)))
	}

	kept := make([]matcher.StateEvent, 0, len(persisted))
	for _, r := range persisted {
		if r.Dropped {
			err := errkind.AsContractVanished(fmt.Errorf("contract %s absent after backfill", r.Event.Address))
			p.log.Warn("dropped state event",
				zap.String("address", r.Event.Address), zap.String("key", r.Event.Key), zap.Error(err))
			continue
		}
		kept = append(kept, r.Event)
	}

	transformInput := make([]matcher.StateEvent, 0, len(kept))
	for _, e := range kept {
		if e.CodeID > 0 {
			transformInput = append(transformInput, e)
		}
	}
	if _, err := p.deps.Transformer.Run(ctx, transformInput, contracts); err != nil {
		// Transformer.Run already classifies its failures; preserve the kind through the wrap.
		return fmt.Errorf("processor: transformer engine: %w", err)
	}

	if p.deps.SendWebhooks && p.deps.Webhook != nil {
		deliverable := make([]matcher.StateEvent, 0, len(kept))
		for _, e := range kept {
			if e.BlockHeight >= preState.LastWasmBlockHeightExported {
				deliverable = append(deliverable, e)
			}
		}
		if err := p.deps.Webhook.EnqueueStateEvents(ctx, deliverable); err != nil {
			p.log.Error("webhook enqueue failed", zap.Error(err))
		}
	}

	maxHeight, maxBlockTimeUnixMs := batchMax(contractEvents, stateEvents)
	if err := p.deps.Watermark.Advance(ctx, p.deps.ChainID, maxHeight, maxBlockTimeUnixMs); err != nil {
		return errkind.AsTransient(fmt.Errorf("processor: watermark advance: %w", err))
	}
	if p.deps.Metrics != nil && maxHeight > 0 {
		p.deps.Metrics.WatermarkHeight.Set(float64(maxHeight))
	}

	if len(contractEvents) > 0 && p.deps.CodeTracker != nil {
		key := fmt.Sprintf("%d", contractEvents[0].BlockHeight)
		if err := p.deps.CodeTracker.EnqueueCodeTrackerJob(ctx, key, contractEvents, kept); err != nil {
			p.log.Error("code tracker enqueue failed", zap.Error(err))
		}
	}

	return nil
}

// matchAll runs the Matcher over every record, deduplicating by event
// ID with last-write-wins while preserving first-seen order, before
// any of it reaches the database.
func (p *Processor) matchAll(records []trace.Record) ([]matcher.ContractEvent, []matcher.StateEvent) {
	contractOrder := make([]string, 0)
	contractByID := make(map[string]matcher.ContractEvent)
	stateOrder := make([]string, 0)
	stateByID := make(map[string]matcher.StateEvent)

	for _, rec := range records {
		ev, err := matcher.Match(rec, p.deps.Variant, p.deps.Bech32Prefix)
		if err != nil {
			p.log.Warn("matcher failed to encode contract address, dropping record", zap.Error(err))
			continue
		}
		switch ev.Kind {
		case matcher.KindContract:
			if _, exists := contractByID[ev.Contract.ID]; !exists {
				contractOrder = append(contractOrder, ev.Contract.ID)
			}
			contractByID[ev.Contract.ID] = ev.Contract
		case matcher.KindState:
			if _, exists := stateByID[ev.State.ID]; !exists {
				stateOrder = append(stateOrder, ev.State.ID)
			}
			stateByID[ev.State.ID] = ev.State
		}
	}

	contractEvents := make([]matcher.ContractEvent, 0, len(contractOrder))
	for _, id := range contractOrder {
		contractEvents = append(contractEvents, contractByID[id])
	}
	stateEvents := make([]matcher.StateEvent, 0, len(stateOrder))
	for _, id := range stateOrder {
		stateEvents = append(stateEvents, stateByID[id])
	}
	return contractEvents, stateEvents
}

func batchMax(contractEvents []matcher.ContractEvent, stateEvents []matcher.StateEvent) (height, blockTimeUnixMs uint64) {
	for _, e := range contractEvents {
		if e.BlockHeight > height {
			height, blockTimeUnixMs = e.BlockHeight, e.BlockTimeUnixMs
		}
	}
	for _, e := range stateEvents {
		if e.BlockHeight > height {
			height, blockTimeUnixMs = e.BlockHeight, e.BlockTimeUnixMs
		}
	}
	return height, blockTimeUnixMs
}
