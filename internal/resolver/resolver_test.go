package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	calls   int
	codeIDs map[string]uint64
	failN   int // fail this many calls before succeeding
	err     error
}

func (f *fakeClient) ContractCodeID(_ context.Context, address string) (uint64, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	if f.failN > 0 {
		f.failN--
		return 0, errors.New("transient rpc failure")
	}
	id, ok := f.codeIDs[address]
	if !ok {
		return 0, ErrContractNotFound
	}
	return id, nil
}

func TestResolveCachesHit(t *testing.T) {
	client := &fakeClient{codeIDs: map[string]uint64{"addr1": 42}}
	r, err := New(client, nil, nil)
	require.NoError(t, err)

	require.Equal(t, uint64(42), r.Resolve(context.Background(), "addr1"))
	require.Equal(t, uint64(42), r.Resolve(context.Background(), "addr1"))
	require.Equal(t, 1, client.calls, "second resolve should hit the cache")
}

func TestResolveCachesNotFoundAsZero(t *testing.T) {
	client := &fakeClient{codeIDs: map[string]uint64{}}
	r, err := New(client, nil, nil)
	require.NoError(t, err)

	require.Equal(t, uint64(0), r.Resolve(context.Background(), "ghost"))
	require.Equal(t, uint64(0), r.Resolve(context.Background(), "ghost"))
	require.Equal(t, 1, client.calls)
}

func TestResolveRetriesTransientFailures(t *testing.T) {
	client := &fakeClient{codeIDs: map[string]uint64{"addr1": 7}, failN: 2}
	r, err := New(client, nil, nil)
	require.NoError(t, err)

	require.Equal(t, uint64(7), r.Resolve(context.Background(), "addr1"))
	require.Equal(t, 3, client.calls)
}

func TestResolveCachesZeroAfterExhaustingRetries(t *testing.T) {
	client := &fakeClient{err: errors.New("node unreachable")}
	r, err := New(client, nil, nil)
	require.NoError(t, err)

	require.Equal(t, uint64(0), r.Resolve(context.Background(), "addr1"))
	calls := client.calls
	require.Equal(t, uint64(0), r.Resolve(context.Background(), "addr1"))
	require.Equal(t, calls, client.calls, "failure result is still cached")
}

func TestResolveAll(t *testing.T) {
	client := &fakeClient{codeIDs: map[string]uint64{"a": 1, "b": 2}}
	r, err := New(client, nil, nil)
	require.NoError(t, err)

	got := ResolveAll(context.Background(), r, []string{"a", "b", "c"})
	require.Equal(t, map[string]uint64{"a": 1, "b": 2, "c": 0}, got)
}
