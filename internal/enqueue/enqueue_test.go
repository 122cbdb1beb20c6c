package enqueue

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/burnt-labs/dao-dao-indexer/internal/matcher"
)

func TestEnqueueStateEventsPostsPayload(t *testing.T) {
	var received webhookPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	enq := NewHTTPEnqueuer(server.URL, "", nil)
	events := []matcher.StateEvent{{Address: "addr1", Key: "k", BlockHeight: 10}}
	require.NoError(t, enq.EnqueueStateEvents(context.Background(), events))
	require.NotEmpty(t, received.IdempotencyKey)
	require.Len(t, received.Events, 1)
}

func TestEnqueueStateEventsSkippedWhenURLEmpty(t *testing.T) {
	enq := NewHTTPEnqueuer("", "", nil)
	err := enq.EnqueueStateEvents(context.Background(), []matcher.StateEvent{{Address: "a"}})
	require.NoError(t, err)
}

func TestEnqueueCodeTrackerJobPostsKey(t *testing.T) {
	var received codeTrackerPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	enq := NewHTTPEnqueuer("", server.URL, nil)
	err := enq.EnqueueCodeTrackerJob(context.Background(), "100",
		[]matcher.ContractEvent{{Address: "addr1", BlockHeight: 100}}, nil)
	require.NoError(t, err)
	require.Equal(t, "100", received.BlockHeightKey)
}

func TestEnqueuePropagatesServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	enq := NewHTTPEnqueuer(server.URL, "", nil)
	enq.client.RetryMax = 0
	err := enq.EnqueueStateEvents(context.Background(), []matcher.StateEvent{{Address: "a"}})
	require.Error(t, err)
}
