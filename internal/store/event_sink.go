package store

import (
	"context"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/burnt-labs/dao-dao-indexer/internal/matcher"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// EventSink bulk-inserts state events and joins them to their
// Contract, dropping any event whose contract is still missing.
type EventSink struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewEventSink(db *gorm.DB, log *zap.Logger) *EventSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &EventSink{db: db, log: log.Named("store.event")}
}

// Persisted is one state event joined back to its contract, or a
// report that it was dropped for lack of a resolved contract.
type Persisted struct {
	Event   matcher.StateEvent
	Dropped bool
}

// Upsert bulk-inserts events (after attaching the given code IDs) with
// conflict target (block_height, contract_address, key), then joins
// each row to contracts. Events whose contract is still absent after
// back-fill are reported as dropped rather than persisted; an
// unresolved code_id (0) is still persisted and is instead excluded
// upstream from the Transformer Engine's input.
func (s *EventSink) Upsert(ctx context.Context, events []matcher.StateEvent, contracts map[string]Contract) ([]Persisted, error) {
	out := make([]Persisted, 0, len(events))
	toInsert := make([]WasmStateEvent, 0, len(events))
	kept := make([]matcher.StateEvent, 0, len(events))

	for _, e := range events {
		c, ok := contracts[e.Address]
		if !ok {
			out = append(out, Persisted{Event: e, Dropped: true})
			continue
		}

		e.CodeID = c.CodeID
		valueJSON := ""
		if e.ValueJSON != nil {
			encoded, err := json.Marshal(e.ValueJSON)
			if err == nil {
				valueJSON = string(encoded)
			}
		}

		toInsert = append(toInsert, WasmStateEvent{
			BlockHeight:     e.BlockHeight,
			ContractAddress: e.Address,
			Key:             e.Key,
			Value:           e.Value,
			ValueJSON:       valueJSON,
			Delete:          e.Delete,
			CodeID:          e.CodeID,
			BlockTimeUnixMs: e.BlockTimeUnixMs,
		})
		kept = append(kept, e)
	}

	if len(toInsert) > 0 {
		err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "block_height"}, {Name: "contract_address"}, {Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "value_json", "delete"}),
		}).Create(&toInsert).Error
		if err != nil {
			return nil, fmt.Errorf("store: upsert state events: %w", err)
		}
	}

	for _, e := range kept {
		out = append(out, Persisted{Event: e})
	}
	return out, nil
}
