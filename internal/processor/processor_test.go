package processor

import (
	"context"
	"testing"

	"github.com/cosmos/cosmos-sdk/types/bech32"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/burnt-labs/dao-dao-indexer/internal/allowlist"
	"github.com/burnt-labs/dao-dao-indexer/internal/config"
	"github.com/burnt-labs/dao-dao-indexer/internal/store"
	"github.com/burnt-labs/dao-dao-indexer/internal/trace"
	"github.com/burnt-labs/dao-dao-indexer/internal/transform"
	"github.com/burnt-labs/dao-dao-indexer/internal/wasmkv"
	"github.com/burnt-labs/dao-dao-indexer/internal/wasmpb"
	"github.com/burnt-labs/dao-dao-indexer/internal/watermark"
)

type fakeResolver struct {
	codeIDs map[string]uint64
}

func (f fakeResolver) Resolve(_ context.Context, address string) uint64 {
	return f.codeIDs[address]
}

func standardAddress(b byte) []byte {
	addr := make([]byte, 32)
	for i := range addr {
		addr[i] = b
	}
	return addr
}

func newHarness(t *testing.T, resolver fakeResolver, allowlistCfg config.Config, allowlistResolver allowlist.CodeKeyResolver) (*Processor, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(store.AllModels()...))

	if allowlistResolver == nil {
		allowlistResolver = allowlist.StaticCodeKeyResolver{}
	}
	reg := allowlist.NewRegistry(allowlistCfg, allowlistResolver)

	deps := Deps{
		ChainID:      "test-1",
		Bech32Prefix: "wasm",
		Variant:      wasmkv.VariantStandard,
		BlockSink:    store.NewBlockSink(db),
		ContractSink: store.NewContractSink(db, resolver, nil),
		EventSink:    store.NewEventSink(db, nil),
		Allowlist:    reg,
		Transformer:  transform.NewEngine(db, nil, nil, nil),
		Watermark:    watermark.NewManager(db),
	}
	return New(deps), db
}

func TestProcessBatchStandardChainInstantiation(t *testing.T) {
	p, db := newHarness(t, fakeResolver{}, config.Config{}, nil)
	ctx := context.Background()

	addr := standardAddress(0x01)
	key, err := wasmkv.Encode(wasmkv.FamilyContractInfo, addr, nil, wasmkv.VariantStandard)
	require.NoError(t, err)
	value := wasmpb.EncodeContractInfo(wasmpb.ContractInfo{CodeID: 42, Admin: "a", Creator: "c", Label: "L"})

	rec := trace.Record{Key: key, Value: value, Operation: trace.OpWrite, BlockHeight: 100, BlockTimeUnixMs: 1_700_000_000_000}
	require.NoError(t, p.ProcessBatch(ctx, []trace.Record{rec}))

	var block store.Block
	require.NoError(t, db.First(&block, "height = ?", 100).Error)

	var contract store.Contract
	require.NoError(t, db.First(&contract).Error)
	require.Equal(t, uint64(42), contract.CodeID)
	require.Equal(t, "a", contract.Admin)
	require.Equal(t, "c", contract.Creator)
	require.Equal(t, "L", contract.Label)
	require.Equal(t, uint64(100), contract.InstantiatedAtBlockHeight)

	state, err := p.deps.Watermark.Get(ctx, "test-1")
	require.NoError(t, err)
	require.Equal(t, uint64(100), state.LastWasmBlockHeightExported)
}

func TestProcessBatchStateWriteResolverBackfill(t *testing.T) {
	addr := standardAddress(0x02)
	addrEncoded, err := wasmkv.Encode(wasmkv.FamilyContractStore, addr, []byte{1, 2, 3}, wasmkv.VariantStandard)
	require.NoError(t, err)

	bech32Addr, err := bech32.ConvertAndEncode("wasm", addr)
	require.NoError(t, err)

	resolver := fakeResolver{codeIDs: map[string]uint64{bech32Addr: 7}}
	p, db := newHarness(t, resolver, config.Config{}, nil)
	ctx := context.Background()

	rec := trace.Record{Key: addrEncoded, Value: []byte(`{"x":1}`), Operation: trace.OpWrite, BlockHeight: 101}
	require.NoError(t, p.ProcessBatch(ctx, []trace.Record{rec}))

	var contract store.Contract
	require.NoError(t, db.First(&contract).Error)
	require.Equal(t, uint64(7), contract.CodeID)

	var event store.WasmStateEvent
	require.NoError(t, db.First(&event).Error)
	require.Equal(t, "1,2,3", event.Key)
	require.Equal(t, uint64(7), event.CodeID)
}

func TestProcessBatchColumbusFiveLengthPrefix(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(store.AllModels()...))

	deps := Deps{
		ChainID:      "columbus-5",
		Bech32Prefix: "terra",
		Variant:      wasmkv.VariantColumbusFive,
		BlockSink:    store.NewBlockSink(db),
		ContractSink: store.NewContractSink(db, fakeResolver{}, nil),
		EventSink:    store.NewEventSink(db, nil),
		Allowlist:    allowlist.NewRegistry(config.Config{}, allowlist.StaticCodeKeyResolver{}),
		Transformer:  transform.NewEngine(db, nil, nil, nil),
		Watermark:    watermark.NewManager(db),
	}
	p := New(deps)

	addr := make([]byte, 20)
	for i := range addr {
		addr[i] = 0x09
	}
	key, err := wasmkv.Encode(wasmkv.FamilyContractStore, addr, []byte{9, 9}, wasmkv.VariantColumbusFive)
	require.NoError(t, err)

	rec := trace.Record{Key: key, Value: []byte("v"), Operation: trace.OpWrite, BlockHeight: 1}
	require.NoError(t, p.ProcessBatch(context.Background(), []trace.Record{rec}))

	var event store.WasmStateEvent
	require.NoError(t, db.First(&event).Error)
	require.Equal(t, "9,9", event.Key)
}

func TestProcessBatchAllowlistEnforcement(t *testing.T) {
	cfg := config.Config{StateEventAllowlist: map[string][]config.AllowlistRule{
		"test-1": {{CodeIDsKeys: []string{"cl-vault"}, StateKeys: []string{wasmkv.CanonicalKey([]byte("contract_info"))}}},
	}}
	codeResolver := allowlist.StaticCodeKeyResolver{"cl-vault": {100}}
	p, db := newHarness(t, fakeResolver{}, cfg, codeResolver)
	ctx := context.Background()

	addr := standardAddress(0x03)
	infoKey, err := wasmkv.Encode(wasmkv.FamilyContractInfo, addr, nil, wasmkv.VariantStandard)
	require.NoError(t, err)
	infoValue := wasmpb.EncodeContractInfo(wasmpb.ContractInfo{CodeID: 100})
	infoRec := trace.Record{Key: infoKey, Value: infoValue, Operation: trace.OpWrite, BlockHeight: 1}

	keyA, err := wasmkv.Encode(wasmkv.FamilyContractStore, addr, []byte("contract_info"), wasmkv.VariantStandard)
	require.NoError(t, err)
	keyB, err := wasmkv.Encode(wasmkv.FamilyContractStore, addr, []byte("balances"), wasmkv.VariantStandard)
	require.NoError(t, err)

	recA := trace.Record{Key: keyA, Value: []byte("v"), Operation: trace.OpWrite, BlockHeight: 2}
	recB := trace.Record{Key: keyB, Value: []byte("v"), Operation: trace.OpWrite, BlockHeight: 2}

	require.NoError(t, p.ProcessBatch(ctx, []trace.Record{infoRec, recA, recB}))

	var count int64
	require.NoError(t, db.Model(&store.WasmStateEvent{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestProcessBatchIsIdempotent(t *testing.T) {
	p, db := newHarness(t, fakeResolver{codeIDs: map[string]uint64{}}, config.Config{}, nil)
	ctx := context.Background()

	addr := standardAddress(0x04)
	key, err := wasmkv.Encode(wasmkv.FamilyContractStore, addr, []byte{1}, wasmkv.VariantStandard)
	require.NoError(t, err)
	rec := trace.Record{Key: key, Value: []byte(`{"x":1}`), Operation: trace.OpWrite, BlockHeight: 5}

	require.NoError(t, p.ProcessBatch(ctx, []trace.Record{rec}))
	require.NoError(t, p.ProcessBatch(ctx, []trace.Record{rec}))

	var count int64
	require.NoError(t, db.Model(&store.WasmStateEvent{}).Count(&count).Error)
	require.Equal(t, int64(1), count)

	state, err := p.deps.Watermark.Get(ctx, "test-1")
	require.NoError(t, err)
	require.Equal(t, uint64(5), state.LastWasmBlockHeightExported)
}

func TestProcessBatchWriteThenDeleteSameKey(t *testing.T) {
	p, db := newHarness(t, fakeResolver{}, config.Config{}, nil)
	ctx := context.Background()

	addr := standardAddress(0x05)
	key, err := wasmkv.Encode(wasmkv.FamilyContractStore, addr, []byte{1}, wasmkv.VariantStandard)
	require.NoError(t, err)

	write := trace.Record{Key: key, Value: []byte(`{"x":1}`), Operation: trace.OpWrite, BlockHeight: 6}
	del := trace.Record{Key: key, Operation: trace.OpDelete, BlockHeight: 6}

	require.NoError(t, p.ProcessBatch(ctx, []trace.Record{write, del}))

	var count int64
	require.NoError(t, db.Model(&store.WasmStateEvent{}).Count(&count).Error)
	require.Equal(t, int64(1), count)

	var event store.WasmStateEvent
	require.NoError(t, db.First(&event).Error)
	require.True(t, event.Delete)
	require.Empty(t, event.ValueJSON)
}
