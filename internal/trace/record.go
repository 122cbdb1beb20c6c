// Package trace decodes the raw trace-pipe records that feed the
// export pipeline.
package trace

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/burnt-labs/dao-dao-indexer/internal/wasmkv"
)

// Operation is the kind of store mutation a trace record describes.
type Operation string

const (
	OpWrite  Operation = "write"
	OpDelete Operation = "delete"
)

// flexInt accepts either a bare JSON number or a quoted numeric
// string for integer-valued trace fields.
type flexInt string

func (f *flexInt) UnmarshalJSON(data []byte) error {
	*f = flexInt(strings.Trim(string(data), `"`))
	return nil
}

// rawMetadata mirrors the "metadata" object on the wire, where
// blockHeight may arrive as either a JSON number or a numeric string.
type rawMetadata struct {
	BlockHeight flexInt `json:"blockHeight"`
}

// rawRecord mirrors the wire shape of one trace-pipe line.
type rawRecord struct {
	Operation       Operation   `json:"operation"`
	Key             string      `json:"key"`
	Value           string      `json:"value"`
	Metadata        rawMetadata `json:"metadata"`
	BlockTimeUnixMs flexInt     `json:"blockTimeUnixMs"`
}

// Record is a decoded trace-pipe record ready for the Matcher.
type Record struct {
	Operation       Operation
	Key             []byte
	Value           []byte
	BlockHeight     uint64
	BlockTimeUnixMs uint64
}

// ParseRecord decodes one JSON trace-pipe line, base64-decoding the
// key and value fields and the integer-valued metadata.
func ParseRecord(line []byte) (Record, error) {
	var raw rawRecord
	if err := json.Unmarshal(line, &raw); err != nil {
		return Record{}, fmt.Errorf("trace: decode record: %w", err)
	}

	key, err := base64.StdEncoding.DecodeString(raw.Key)
	if err != nil {
		return Record{}, fmt.Errorf("trace: decode key base64: %w", err)
	}

	var value []byte
	if raw.Value != "" {
		value, err = base64.StdEncoding.DecodeString(raw.Value)
		if err != nil {
			return Record{}, fmt.Errorf("trace: decode value base64: %w", err)
		}
	}

	height, ok := wasmkv.ParseUint64(string(raw.Metadata.BlockHeight))
	if !ok {
		return Record{}, fmt.Errorf("trace: invalid metadata.blockHeight %q", raw.Metadata.BlockHeight)
	}

	blockTime, ok := wasmkv.ParseUint64(string(raw.BlockTimeUnixMs))
	if !ok {
		return Record{}, fmt.Errorf("trace: invalid blockTimeUnixMs %q", raw.BlockTimeUnixMs)
	}

	if raw.Operation != OpWrite && raw.Operation != OpDelete {
		return Record{}, fmt.Errorf("trace: unrecognized operation %q", raw.Operation)
	}

	return Record{
		Operation:       raw.Operation,
		Key:             key,
		Value:           value,
		BlockHeight:     height,
		BlockTimeUnixMs: blockTime,
	}, nil
}
