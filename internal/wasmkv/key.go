// Package wasmkv parses and constructs the CosmWasm module's store key
// layout. It is pure: no I/O, no allocation beyond what's needed to
// return the decoded pieces.
package wasmkv

import (
	"fmt"
	"strconv"
	"strings"
)

// Variant selects the chain-specific prefix/address-length rules for
// the wasm store key layout.
type Variant int

const (
	// VariantStandard is the default CosmWasm layout: fixed 32-byte
	// addresses, no length prefix.
	VariantStandard Variant = iota
	// VariantColumbusFive is the terra-classic ("columbus-5") layout:
	// variable-length addresses preceded by a one-byte length.
	VariantColumbusFive
)

const (
	standardContractInfoPrefix  = 0x02
	standardContractStorePrefix = 0x03
	columbusContractInfoPrefix  = 0x04
	columbusContractStorePrefix = 0x05

	standardAddressLen = 32
)

// Family identifies which of the two CosmWasm key families a decoded
// key belongs to.
type Family int

const (
	// FamilyUnknown is returned when the key's first byte matches
	// neither prefix for the variant.
	FamilyUnknown Family = iota
	// FamilyContractInfo is the contract-info key family.
	FamilyContractInfo
	// FamilyContractStore is the contract-state key family.
	FamilyContractStore
)

// prefixes returns the (contractInfo, contractStore) prefix bytes and
// whether a one-byte address-length prefix follows them, for v.
func (v Variant) prefixes() (infoPrefix, storePrefix byte, lengthPrefixed bool) {
	switch v {
	case VariantColumbusFive:
		return columbusContractInfoPrefix, columbusContractStorePrefix, true
	default:
		return standardContractInfoPrefix, standardContractStorePrefix, false
	}
}

// Decoded is the result of parsing one raw wasm store key.
type Decoded struct {
	Family          Family
	ContractAddress []byte
	UserKey         []byte // empty for contract-info keys
}

// ClassifyPrefix reports which Family a key's first byte belongs to
// for the given variant, without fully decoding it. Returns
// FamilyUnknown for any other leading byte.
func ClassifyPrefix(key []byte, v Variant) Family {
	if len(key) == 0 {
		return FamilyUnknown
	}
	infoPrefix, storePrefix, _ := v.prefixes()
	switch key[0] {
	case infoPrefix:
		return FamilyContractInfo
	case storePrefix:
		return FamilyContractStore
	default:
		return FamilyUnknown
	}
}

// Decode parses a raw wasm store key into its family, contract
// address bytes, and (for contract-state keys) the user key bytes.
// Keys shorter than the minimum for their family are rejected.
func Decode(key []byte, v Variant) (Decoded, error) {
	family := ClassifyPrefix(key, v)
	if family == FamilyUnknown {
		return Decoded{}, fmt.Errorf("wasmkv: unrecognized key prefix %x", firstByte(key))
	}

	_, _, lengthPrefixed := v.prefixes()
	rest := key[1:]

	var addrLen int
	if lengthPrefixed {
		if len(rest) < 1 {
			return Decoded{}, fmt.Errorf("wasmkv: key too short for length prefix")
		}
		addrLen = int(rest[0])
		rest = rest[1:]
	} else {
		addrLen = standardAddressLen
	}

	if len(rest) < addrLen {
		return Decoded{}, fmt.Errorf("wasmkv: key too short for %d-byte address", addrLen)
	}

	addr := rest[:addrLen]
	userKey := rest[addrLen:]

	if family == FamilyContractInfo && len(userKey) != 0 {
		// Contract-info keys carry no trailing bytes; anything left
		// over means this wasn't actually a contract-info key.
		return Decoded{}, fmt.Errorf("wasmkv: unexpected trailing bytes on contract-info key")
	}

	return Decoded{Family: family, ContractAddress: addr, UserKey: userKey}, nil
}

// Encode builds a raw wasm store key from its parts. family must be
// FamilyContractInfo (userKey must then be empty) or
// FamilyContractStore.
func Encode(family Family, contractAddress, userKey []byte, v Variant) ([]byte, error) {
	infoPrefix, storePrefix, lengthPrefixed := v.prefixes()

	var prefix byte
	switch family {
	case FamilyContractInfo:
		if len(userKey) != 0 {
			return nil, fmt.Errorf("wasmkv: contract-info keys carry no user key")
		}
		prefix = infoPrefix
	case FamilyContractStore:
		prefix = storePrefix
	default:
		return nil, fmt.Errorf("wasmkv: unknown family %d", family)
	}

	out := make([]byte, 0, 2+len(contractAddress)+len(userKey))
	out = append(out, prefix)
	if lengthPrefixed {
		if len(contractAddress) > 0xff {
			return nil, fmt.Errorf("wasmkv: address too long for one-byte length prefix")
		}
		out = append(out, byte(len(contractAddress)))
	} else if len(contractAddress) != standardAddressLen {
		return nil, fmt.Errorf("wasmkv: standard variant requires a %d-byte address, got %d", standardAddressLen, len(contractAddress))
	}
	out = append(out, contractAddress...)
	out = append(out, userKey...)
	return out, nil
}

func firstByte(key []byte) int {
	if len(key) == 0 {
		return -1
	}
	return int(key[0])
}

// CanonicalKey renders a user key as a comma-joined list of decimal
// byte values, the storage form used for persisted state-event keys.
func CanonicalKey(userKey []byte) string {
	if len(userKey) == 0 {
		return ""
	}
	parts := make([]string, len(userKey))
	for i, b := range userKey {
		parts[i] = strconv.Itoa(int(b))
	}
	return strings.Join(parts, ",")
}

// ParseCanonicalKey is the inverse of CanonicalKey.
func ParseCanonicalKey(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]byte, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("wasmkv: invalid canonical key byte %q: %w", p, err)
		}
		if n < 0 || n > 0xff {
			return nil, fmt.Errorf("wasmkv: canonical key byte %d out of range", n)
		}
		out[i] = byte(n)
	}
	return out, nil
}
