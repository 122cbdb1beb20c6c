package errkind

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOfReturnsUnknownForPlainError(t *testing.T) {
	require.Equal(t, Unknown, Of(errors.New("plain")))
}

func TestOfClassifiesWrappedError(t *testing.T) {
	err := AsTransient(errors.New("rpc timeout"))
	require.Equal(t, Transient, Of(err))
}

func TestOfSeesThroughFmtErrorfWrap(t *testing.T) {
	inner := AsDecode(errors.New("bad key bytes"))
	outer := fmt.Errorf("matcher: encode contract address: %w", inner)
	require.Equal(t, Decode, Of(outer))
}

func TestRetryableOnlyTransient(t *testing.T) {
	require.True(t, Retryable(AsTransient(errors.New("db down"))))
	require.False(t, Retryable(AsDecode(errors.New("bad bytes"))))
	require.False(t, Retryable(errors.New("unclassified")))
}

func TestFatalClassification(t *testing.T) {
	cases := []struct {
		name  string
		err   error
		fatal bool
	}{
		{"fatal config", AsFatalConfig(errors.New("missing rpc_endpoint")), true},
		{"fatal state", AsFatalState(errors.New("missing indexer state")), true},
		{"decode is not fatal", AsDecode(errors.New("bad key")), false},
		{"value decode is not fatal", AsValueDecode(errors.New("bad json")), false},
		{"contract vanished is not fatal", AsContractVanished(errors.New("row gone")), false},
		{"unclassified is conservatively fatal", errors.New("?"), true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			require.Equal(t, c.fatal, Fatal(c.err))
		})
	}
}

func TestNewReturnsNilForNilError(t *testing.T) {
	require.NoError(t, New(Transient, nil))
}

func TestKindStringLabels(t *testing.T) {
	require.Equal(t, "transient", Transient.String())
	require.Equal(t, "decode", Decode.String())
	require.Equal(t, "value_decode", ValueDecode.String())
	require.Equal(t, "fatal_config", FatalConfig.String())
	require.Equal(t, "fatal_state", FatalState.String())
	require.Equal(t, "contract_vanished", ContractVanished.String())
	require.Equal(t, "unknown", Unknown.String())
}
