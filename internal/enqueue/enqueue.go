// Package enqueue implements the two fire-and-forget boundaries the
// Processor hands off to external subsystems: webhook delivery and
// the wasm-code tracker.
package enqueue

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/burnt-labs/dao-dao-indexer/internal/matcher"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// WebhookEnqueuer hands off persisted state events eligible for
// webhook delivery; the core never delivers them itself.
type WebhookEnqueuer interface {
	EnqueueStateEvents(ctx context.Context, events []matcher.StateEvent) error
}

// CodeTrackerEnqueuer hands off one batch's contract and state events
// so an external tracker can learn code-ID-to-name mappings.
type CodeTrackerEnqueuer interface {
	EnqueueCodeTrackerJob(ctx context.Context, key string, contractEvents []matcher.ContractEvent, stateEvents []matcher.StateEvent) error
}

// HTTPEnqueuer posts both kinds of job as JSON bodies to a configured
// endpoint, using a retrying HTTP client for a bounded synchronous
// wait: fire-and-forget from the caller's perspective, but the post
// itself is retried a bounded number of times before giving up.
type HTTPEnqueuer struct {
	client          *retryablehttp.Client
	webhookURL      string
	codeTrackerURL  string
	log             *zap.Logger
}

func NewHTTPEnqueuer(webhookURL, codeTrackerURL string, log *zap.Logger) *HTTPEnqueuer {
	if log == nil {
		log = zap.NewNop()
	}
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.Logger = nil

	return &HTTPEnqueuer{
		client:         client,
		webhookURL:     webhookURL,
		codeTrackerURL: codeTrackerURL,
		log:            log.Named("enqueue"),
	}
}

type webhookPayload struct {
	IdempotencyKey string                `json:"idempotencyKey"`
	Events         []matcher.StateEvent `json:"events"`
}

// EnqueueStateEvents posts events to the webhook endpoint with a
// fresh idempotency key per call.
func (h *HTTPEnqueuer) EnqueueStateEvents(ctx context.Context, events []matcher.StateEvent) error {
	if len(events) == 0 || h.webhookURL == "" {
		return nil
	}
	payload := webhookPayload{IdempotencyKey: uuid.NewString(), Events: events}
	return h.post(ctx, h.webhookURL, payload)
}

type codeTrackerPayload struct {
	BlockHeightKey string                  `json:"blockHeightKey"`
	ContractEvents []matcher.ContractEvent `json:"contractEvents"`
	StateEvents    []matcher.StateEvent    `json:"stateEvents"`
}

// EnqueueCodeTrackerJob posts one job keyed by key so redelivery is
// idempotent on the server side.
func (h *HTTPEnqueuer) EnqueueCodeTrackerJob(ctx context.Context, key string, contractEvents []matcher.ContractEvent, stateEvents []matcher.StateEvent) error {
	if h.codeTrackerURL == "" {
		return nil
	}
	payload := codeTrackerPayload{BlockHeightKey: key, ContractEvents: contractEvents, StateEvents: stateEvents}
	return h.post(ctx, h.codeTrackerURL, payload)
}

func (h *HTTPEnqueuer) post(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("enqueue: marshal payload: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("enqueue: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("enqueue: post to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("enqueue: %s responded with status %d", url, resp.StatusCode)
	}
	return nil
}
