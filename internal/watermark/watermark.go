// Package watermark advances the singleton IndexerState row with MAX
// semantics only: it never regresses a chain's recorded progress.
package watermark

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/burnt-labs/dao-dao-indexer/internal/store"
)

// Manager advances a chain's watermark after a batch commits
// successfully.
type Manager struct {
	db *gorm.DB
}

func NewManager(db *gorm.DB) *Manager {
	return &Manager{db: db}
}

// Advance sets last_wasm_block_height_exported, latest_block_height,
// and latest_block_time_unix_ms to the max of their existing value and
// the given batch maxima. Uses a portable CASE WHEN comparison rather
// than a Postgres-only GREATEST so the same statement runs against the
// sqlite backend used in tests.
func (m *Manager) Advance(ctx context.Context, chainID string, maxHeight, maxBlockTimeUnixMs uint64) error {
	result := m.db.WithContext(ctx).Exec(`
		UPDATE indexer_states SET
			last_wasm_block_height_exported = CASE WHEN last_wasm_block_height_exported >= ? THEN last_wasm_block_height_exported ELSE ? END,
			latest_block_height = CASE WHEN latest_block_height >= ? THEN latest_block_height ELSE ? END,
			latest_block_time_unix_ms = CASE WHEN latest_block_time_unix_ms >= ? THEN latest_block_time_unix_ms ELSE ? END
		WHERE chain_id = ?
	`, maxHeight, maxHeight, maxHeight, maxHeight, maxBlockTimeUnixMs, maxBlockTimeUnixMs, chainID)
	if result.Error != nil {
		return fmt.Errorf("watermark: advance: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		row := store.IndexerState{
			ChainID:                     chainID,
			LastWasmBlockHeightExported: maxHeight,
			LatestBlockHeight:           maxHeight,
			LatestBlockTimeUnixMs:       maxBlockTimeUnixMs,
		}
		if err := m.db.WithContext(ctx).Create(&row).Error; err != nil {
			return fmt.Errorf("watermark: insert initial row: %w", err)
		}
	}
	return nil
}

// Get reads the current watermark for chainID, returning the zero
// value if no row exists yet.
func (m *Manager) Get(ctx context.Context, chainID string) (store.IndexerState, error) {
	var state store.IndexerState
	err := m.db.WithContext(ctx).Where("chain_id = ?", chainID).First(&state).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return store.IndexerState{ChainID: chainID}, nil
		}
		return store.IndexerState{}, fmt.Errorf("watermark: read: %w", err)
	}
	return state, nil
}
