// Package store holds the GORM persistence models and sinks for
// blocks, contracts, and wasm state events.
package store

// Block is one observed block height, immutable once inserted.
type Block struct {
	Height    uint64 `gorm:"primaryKey"`
	TimeUnixMs uint64
}

func (Block) TableName() string { return "blocks" }

// Contract is one CosmWasm contract, identified by its bech32 address.
// CodeID of 0 means "unknown".
type Contract struct {
	Address                        string `gorm:"primaryKey"`
	CodeID                         uint64 `gorm:"index"`
	Admin                          string
	Creator                        string
	Label                          string
	InstantiatedAtBlockHeight      uint64
	InstantiatedAtBlockTimeUnixMs  uint64
	InstantiatedAtBlockTimestamp   int64
	UpdatedAtBlockHeight           uint64
}

func (Contract) TableName() string { return "contracts" }

// WasmStateEvent is one persisted state mutation under a contract's
// store namespace. Unique on (BlockHeight, ContractAddress, Key).
type WasmStateEvent struct {
	ID              uint64 `gorm:"primaryKey;autoIncrement"`
	BlockHeight     uint64 `gorm:"uniqueIndex:uq_wasm_state_event"`
	ContractAddress string `gorm:"uniqueIndex:uq_wasm_state_event"`
	Key             string `gorm:"uniqueIndex:uq_wasm_state_event"`
	Value           []byte
	ValueJSON       string // JSON-encoded; empty means null
	Delete          bool
	CodeID          uint64
	BlockTimeUnixMs uint64
}

func (WasmStateEvent) TableName() string { return "wasm_state_events" }

// WasmStateEventTransformation is one transformer-engine output row,
// unique on (ContractAddress, Name, BlockHeight).
type WasmStateEventTransformation struct {
	ID              uint64 `gorm:"primaryKey;autoIncrement"`
	ContractAddress string `gorm:"uniqueIndex:uq_wasm_state_event_transformation"`
	Name            string `gorm:"uniqueIndex:uq_wasm_state_event_transformation"`
	BlockHeight     uint64 `gorm:"uniqueIndex:uq_wasm_state_event_transformation"`
	Value           string // JSON-encoded
}

func (WasmStateEventTransformation) TableName() string { return "wasm_state_event_transformations" }

// IndexerState is the singleton bookkeeping row advanced with MAX
// semantics only.
type IndexerState struct {
	ChainID                     string `gorm:"primaryKey"`
	LastWasmBlockHeightExported uint64
	LatestBlockHeight           uint64
	LatestBlockTimeUnixMs       uint64
}

func (IndexerState) TableName() string { return "indexer_states" }

// AllModels lists every model AutoMigrate must know about, in
// dependency order.
func AllModels() []any {
	return []any{
		&Block{},
		&Contract{},
		&WasmStateEvent{},
		&WasmStateEventTransformation{},
		&IndexerState{},
	}
}
