package wasmpb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeContractInfoRoundTrip(t *testing.T) {
	info := ContractInfo{CodeID: 42, Creator: "c", Admin: "a", Label: "L"}
	data := EncodeContractInfo(info)

	decoded, err := DecodeContractInfo(data)
	require.NoError(t, err)
	require.Equal(t, info, decoded)
}

func TestDecodeContractInfoZeroCodeID(t *testing.T) {
	data := EncodeContractInfo(ContractInfo{Creator: "c"})
	decoded, err := DecodeContractInfo(data)
	require.NoError(t, err)
	require.Zero(t, decoded.CodeID)
}

func TestDecodeContractInfoRejectsGarbage(t *testing.T) {
	_, err := DecodeContractInfo([]byte{0xff})
	require.Error(t, err)
}
