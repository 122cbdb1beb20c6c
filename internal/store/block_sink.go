package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/burnt-labs/dao-dao-indexer/internal/matcher"
)

// BlockSink upserts one Block row per distinct height observed in a
// batch.
type BlockSink struct {
	db *gorm.DB
}

func NewBlockSink(db *gorm.DB) *BlockSink {
	return &BlockSink{db: db}
}

// UpsertBlocks inserts one row per distinct block height found across
// contractEvents and stateEvents, using the first blockTimeUnixMs seen
// for that height. Existing rows are left untouched (DoNothing on
// conflict), matching "existing rows are not overwritten".
func (s *BlockSink) UpsertBlocks(ctx context.Context, contractEvents []matcher.ContractEvent, stateEvents []matcher.StateEvent) error {
	blocks := make(map[uint64]uint64) // height -> first-seen time
	order := make([]uint64, 0)
	record := func(height, t uint64) {
		if _, ok := blocks[height]; !ok {
			order = append(order, height)
			blocks[height] = t
		}
	}
	for _, e := range contractEvents {
		record(e.BlockHeight, e.BlockTimeUnixMs)
	}
	for _, e := range stateEvents {
		record(e.BlockHeight, e.BlockTimeUnixMs)
	}
	if len(order) == 0 {
		return nil
	}

	rows := make([]Block, 0, len(order))
	for _, h := range order {
		rows = append(rows, Block{Height: h, TimeUnixMs: blocks[h]})
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "height"}},
		DoNothing: true,
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("store: upsert blocks: %w", err)
	}
	return nil
}
