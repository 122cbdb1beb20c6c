// Package matcher classifies one decoded trace record into a
// contract-lifecycle event, a state event, or nothing.
package matcher

import (
	"fmt"
	"unicode/utf8"

	"github.com/cosmos/cosmos-sdk/types/bech32"
	jsoniter "github.com/json-iterator/go"

	"github.com/burnt-labs/dao-dao-indexer/internal/errkind"
	"github.com/burnt-labs/dao-dao-indexer/internal/trace"
	"github.com/burnt-labs/dao-dao-indexer/internal/wasmkv"
	"github.com/burnt-labs/dao-dao-indexer/internal/wasmpb"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Kind distinguishes the two event shapes a Record can decode into.
type Kind int

const (
	// KindNone means the record carries no event: the Matcher drops it.
	KindNone Kind = iota
	KindContract
	KindState
)

// ContractEvent is emitted when a write lands on a contract-info key
// and decodes to a ContractInfo with a nonzero code ID.
type ContractEvent struct {
	ID              string
	Address         string
	CodeID          uint64
	Admin           string
	Creator         string
	Label           string
	BlockHeight     uint64
	BlockTimeUnixMs uint64
}

// StateEvent is emitted for any write or delete on a contract-state
// key. CodeID is always 0 here; the Contract Sink resolves it later.
type StateEvent struct {
	ID              string
	Address         string
	CodeID          uint64
	Key             string // canonical form, per internal/wasmkv.CanonicalKey
	Value           []byte
	ValueJSON       any
	Delete          bool
	BlockHeight     uint64
	BlockTimeUnixMs uint64
}

// Event is the Matcher's output: exactly one of Contract or State is
// populated, selected by Kind.
type Event struct {
	Kind     Kind
	Contract ContractEvent
	State    StateEvent
}

// Match applies the key-classification decision procedure to one
// decoded trace record. bech32Prefix is the chain's human-readable
// address prefix (e.g. "wasm", "terra"), used to render the decoded
// contract address bytes as text.
func Match(rec trace.Record, variant wasmkv.Variant, bech32Prefix string) (Event, error) {
	family := wasmkv.ClassifyPrefix(rec.Key, variant)
	if family == wasmkv.FamilyUnknown {
		return Event{}, nil
	}

	decoded, err := wasmkv.Decode(rec.Key, variant)
	if err != nil {
		return Event{}, nil //nolint:nilerr // an undecodable key is a drop, not a pipeline failure
	}

	address, err := bech32.ConvertAndEncode(bech32Prefix, decoded.ContractAddress)
	if err != nil {
		return Event{}, errkind.AsDecode(fmt.Errorf("matcher: encode contract address: %w", err))
	}

	if decoded.Family == wasmkv.FamilyContractInfo {
		if rec.Operation != trace.OpWrite {
			return Event{}, nil
		}
		return matchContractInfo(rec, address)
	}

	return matchStateEvent(rec, address, decoded.UserKey), nil
}

func matchContractInfo(rec trace.Record, address string) (Event, error) {
	info, err := wasmpb.DecodeContractInfo(rec.Value)
	if err != nil {
		return Event{}, nil //nolint:nilerr // malformed ContractInfo bytes are dropped, not fatal
	}
	if info.CodeID == 0 {
		return Event{}, nil
	}

	return Event{
		Kind: KindContract,
		Contract: ContractEvent{
			ID:              fmt.Sprintf("contract:%d:%s", rec.BlockHeight, address),
			Address:         address,
			CodeID:          info.CodeID,
			Admin:           info.Admin,
			Creator:         info.Creator,
			Label:           info.Label,
			BlockHeight:     rec.BlockHeight,
			BlockTimeUnixMs: rec.BlockTimeUnixMs,
		},
	}, nil
}

func matchStateEvent(rec trace.Record, address string, userKey []byte) Event {
	canonicalKey := wasmkv.CanonicalKey(userKey)

	event := StateEvent{
		ID:              fmt.Sprintf("state:%d:%s:%s", rec.BlockHeight, address, canonicalKey),
		Address:         address,
		CodeID:          0,
		Key:             canonicalKey,
		Value:           rec.Value,
		Delete:          rec.Operation == trace.OpDelete,
		BlockHeight:     rec.BlockHeight,
		BlockTimeUnixMs: rec.BlockTimeUnixMs,
	}

	if !event.Delete && utf8.Valid(rec.Value) {
		var parsed any
		if json.Unmarshal(rec.Value, &parsed) == nil {
			event.ValueJSON = parsed
		}
	}

	return Event{Kind: KindState, State: event}
}
