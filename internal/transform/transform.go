// Package transform implements the Transformer Engine: a registry of
// data-driven rules that derive named values from state events.
package transform

import (
	"context"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/burnt-labs/dao-dao-indexer/internal/errkind"
	"github.com/burnt-labs/dao-dao-indexer/internal/matcher"
	"github.com/burnt-labs/dao-dao-indexer/internal/metrics"
	"github.com/burnt-labs/dao-dao-indexer/internal/retry"
	"github.com/burnt-labs/dao-dao-indexer/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Rule is one transformer: a name, the set of code IDs it applies to,
// a predicate over a state event's key and parsed JSON value, and an
// extraction function producing the value to persist.
type Rule struct {
	Name     string
	CodeIDs  map[uint64]struct{}
	Matches  func(key string, valueJSON any) bool
	Extract  func(event matcher.StateEvent) (any, error)
}

// Engine holds the registered rules and persists their output.
type Engine struct {
	db      *gorm.DB
	rules   []Rule
	log     *zap.Logger
	metrics *metrics.Metrics
}

// NewEngine builds an Engine. m may be nil.
func NewEngine(db *gorm.DB, rules []Rule, log *zap.Logger, m *metrics.Metrics) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{db: db, rules: rules, log: log.Named("transform"), metrics: m}
}

// Run evaluates every rule against events, persists matches with
// upsert semantics on (contract_address, name, block_height), and
// returns the rows written. Like the Event Sink, it joins each event to
// its Contract and drops any whose contract is still absent instead of
// writing an orphaned transformation row.
func (e *Engine) Run(ctx context.Context, events []matcher.StateEvent, contracts map[string]store.Contract) ([]store.WasmStateEventTransformation, error) {
	rows := make([]store.WasmStateEventTransformation, 0)

	for _, event := range events {
		if event.CodeID == 0 {
			continue
		}
		if _, ok := contracts[event.Address]; !ok {
			e.log.Warn("dropping transformer input: contract absent",
				zap.String("contract", event.Address))
			continue
		}
		for _, rule := range e.rules {
			if _, ok := rule.CodeIDs[event.CodeID]; !ok {
				continue
			}
			if !rule.Matches(event.Key, event.ValueJSON) {
				continue
			}

			value, err := rule.Extract(event)
			if err != nil {
				e.log.Warn("transformer rule extract failed",
					zap.String("rule", rule.Name),
					zap.String("contract", event.Address),
					zap.Error(err))
				continue
			}

			encoded, err := json.Marshal(value)
			if err != nil {
				return nil, errkind.AsDecode(fmt.Errorf("transform: marshal rule %q output: %w", rule.Name, err))
			}

			rows = append(rows, store.WasmStateEventTransformation{
				ContractAddress: event.Address,
				Name:            rule.Name,
				BlockHeight:     event.BlockHeight,
				Value:           string(encoded),
			})
		}
	}

	if len(rows) == 0 {
		return rows, nil
	}

	err := retry.Do(ctx, e.log, "transformer_upsert", e.metrics, func() error {
		return e.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "contract_address"}, {Name: "name"}, {Name: "block_height"}},
			DoUpdates: clause.AssignmentColumns([]string{"value"}),
		}).Create(&rows).Error
	})
	if err != nil {
		return nil, errkind.AsTransient(fmt.Errorf("transform: upsert transformations: %w", err))
	}

	return rows, nil
}
