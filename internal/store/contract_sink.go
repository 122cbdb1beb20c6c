package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/burnt-labs/dao-dao-indexer/internal/matcher"
)

// CodeIDResolver is the narrow surface ContractSink needs from
// internal/resolver, kept as an interface so tests can substitute a
// fake without dialing gRPC.
type CodeIDResolver interface {
	Resolve(ctx context.Context, address string) uint64
}

const resolveConcurrency = 8

// ContractSink implements three upsert paths: lifecycle events (A),
// state-event existence back-fill (B), and resolver code-ID back-fill
// (C).
type ContractSink struct {
	db       *gorm.DB
	resolver CodeIDResolver
	log      *zap.Logger
}

func NewContractSink(db *gorm.DB, resolver CodeIDResolver, log *zap.Logger) *ContractSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &ContractSink{db: db, resolver: resolver, log: log.Named("store.contract")}
}

// UpsertLifecycleEvents is path A: full-field upsert from contract
// events, updating code_id/admin/creator/label on conflict while
// leaving instantiation fields alone after first insert.
func (s *ContractSink) UpsertLifecycleEvents(ctx context.Context, events []matcher.ContractEvent) error {
	if len(events) == 0 {
		return nil
	}

	rows := make([]Contract, 0, len(events))
	for _, e := range events {
		rows = append(rows, Contract{
			Address:                       e.Address,
			CodeID:                        e.CodeID,
			Admin:                         e.Admin,
			Creator:                       e.Creator,
			Label:                         e.Label,
			InstantiatedAtBlockHeight:     e.BlockHeight,
			InstantiatedAtBlockTimeUnixMs: e.BlockTimeUnixMs,
			UpdatedAtBlockHeight:          e.BlockHeight,
		})
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		DoUpdates: clause.AssignmentColumns([]string{"code_id", "admin", "creator", "label", "updated_at_block_height"}),
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("store: upsert lifecycle contracts: %w", err)
	}
	return nil
}

// BackfillFromStateEvents is path B: for every address seen in
// stateEvents with no existing Contract row, insert a stub row with
// code_id 0 and instantiation fields from the earliest event for that
// address in the batch. Returns every Contract row for the addresses
// touched by stateEvents.
func (s *ContractSink) BackfillFromStateEvents(ctx context.Context, stateEvents []matcher.StateEvent) (map[string]Contract, error) {
	if len(stateEvents) == 0 {
		return map[string]Contract{}, nil
	}

	earliest := make(map[string]matcher.StateEvent, len(stateEvents))
	addresses := make([]string, 0, len(stateEvents))
	for _, e := range stateEvents {
		existing, ok := earliest[e.Address]
		if !ok {
			addresses = append(addresses, e.Address)
			earliest[e.Address] = e
			continue
		}
		if e.BlockHeight < existing.BlockHeight {
			earliest[e.Address] = e
		}
	}

	rows := make([]Contract, 0, len(earliest))
	for _, addr := range addresses {
		e := earliest[addr]
		rows = append(rows, Contract{
			Address:                       addr,
			CodeID:                        0,
			InstantiatedAtBlockHeight:     e.BlockHeight,
			InstantiatedAtBlockTimeUnixMs: e.BlockTimeUnixMs,
			UpdatedAtBlockHeight:          e.BlockHeight,
		})
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("store: backfill stub contracts: %w", err)
	}

	return s.ReadByAddresses(ctx, addresses)
}

// BackfillCodeIDs is path C: for every contract in contracts with
// CodeID <= 0, resolves its code ID with bounded concurrency and
// upserts the ones that came back nonzero, updating only code_id.
// Returns the re-read rows for every address in contracts.
func (s *ContractSink) BackfillCodeIDs(ctx context.Context, contracts map[string]Contract) (map[string]Contract, error) {
	pending := make([]string, 0)
	for addr, c := range contracts {
		if c.CodeID == 0 {
			pending = append(pending, addr)
		}
	}
	if len(pending) == 0 {
		return contracts, nil
	}

	resolved := make(map[string]uint64, len(pending))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resolveConcurrency)
	results := make([]uint64, len(pending))
	for i, addr := range pending {
		i, addr := i, addr
		g.Go(func() error {
			results[i] = s.resolver.Resolve(gctx, addr)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("store: resolve code ids: %w", err)
	}
	for i, addr := range pending {
		resolved[addr] = results[i]
	}

	rows := make([]Contract, 0, len(pending))
	for _, addr := range pending {
		codeID := resolved[addr]
		if codeID == 0 {
			continue
		}
		rows = append(rows, Contract{Address: addr, CodeID: codeID})
	}

	if len(rows) > 0 {
		err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "address"}},
			DoUpdates: clause.AssignmentColumns([]string{"code_id"}),
		}).Create(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("store: backfill code ids: %w", err)
		}
	}

	addresses := make([]string, 0, len(contracts))
	for addr := range contracts {
		addresses = append(addresses, addr)
	}
	return s.ReadByAddresses(ctx, addresses)
}

// ReadByAddresses re-reads Contract rows for the given addresses.
func (s *ContractSink) ReadByAddresses(ctx context.Context, addresses []string) (map[string]Contract, error) {
	if len(addresses) == 0 {
		return map[string]Contract{}, nil
	}
	var rows []Contract
	if err := s.db.WithContext(ctx).Where("address IN ?", addresses).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: read contracts: %w", err)
	}
	out := make(map[string]Contract, len(rows))
	for _, r := range rows {
		out[r.Address] = r
	}
	return out, nil
}
