// Package resolver maps a contract address to its code ID using the
// node's gRPC query endpoint, a bounded LRU cache, and retry-with-
// backoff.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	grpc_retry "github.com/grpc-ecosystem/go-grpc-middleware/retry"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	wasmtypes "github.com/CosmWasm/wasmd/x/wasm/types"

	"github.com/burnt-labs/dao-dao-indexer/internal/metrics"
	"github.com/burnt-labs/dao-dao-indexer/internal/retry"
)

// ErrContractNotFound is the sentinel the Client returns when the node
// reports the address has no contract, distinct from a transient RPC
// failure.
var ErrContractNotFound = errors.New("resolver: contract not found")

const cacheCapacity = 1000

// Client is the narrow RPC surface the Resolver needs, so tests can
// substitute a fake instead of dialing a real node.
type Client interface {
	ContractCodeID(ctx context.Context, address string) (uint64, error)
}

// Resolver consults the cache, falls back to the RPC client with
// retry, and caches 0 ("unknown") on any failure so the record stays
// eligible for re-resolution on a later batch.
type Resolver struct {
	client  Client
	cache   *lru.Cache[string, uint64]
	log     *zap.Logger
	metrics *metrics.Metrics
}

// New builds a Resolver backed by client, with a process-wide bounded
// LRU cache (capacity 1000). m may be nil.
func New(client Client, log *zap.Logger, m *metrics.Metrics) (*Resolver, error) {
	cache, err := lru.New[string, uint64](cacheCapacity)
	if err != nil {
		return nil, fmt.Errorf("resolver: build cache: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{client: client, cache: cache, log: log.Named("resolver"), metrics: m}, nil
}

// Resolve returns the contract's code ID, 0 if unknown or absent. It
// never returns an error: any RPC failure after retries is logged and
// cached as 0.
func (r *Resolver) Resolve(ctx context.Context, address string) uint64 {
	if codeID, ok := r.cache.Get(address); ok {
		if r.metrics != nil {
			r.metrics.ResolverCacheHits.Inc()
		}
		return codeID
	}
	if r.metrics != nil {
		r.metrics.ResolverCacheMisses.Inc()
	}

	var codeID uint64
	err := retry.Do(ctx, r.log, "resolve_code_id", r.metrics, func() error {
		id, err := r.client.ContractCodeID(ctx, address)
		if errors.Is(err, ErrContractNotFound) {
			codeID = 0
			return nil
		}
		if err != nil {
			return err
		}
		codeID = id
		return nil
	})
	if err != nil {
		r.log.Error("resolve code id failed after retries, caching as unknown",
			zap.String("address", address), zap.Error(err))
		codeID = 0
	}

	r.cache.Add(address, codeID)
	return codeID
}

// ResolveAll resolves every address in addresses sequentially; the
// bounded-parallel fan-out lives in store.ContractSink.BackfillCodeIDs,
// and this plain convenience is called only from tests.
func ResolveAll(ctx context.Context, r *Resolver, addresses []string) map[string]uint64 {
	out := make(map[string]uint64, len(addresses))
	for _, addr := range addresses {
		out[addr] = r.Resolve(ctx, addr)
	}
	return out
}

// grpcClient implements Client over a real node gRPC connection using
// the upstream x/wasm query service (the same package the in-pack
// DAODAO indexing action imports for its CosmWasm message types).
type grpcClient struct {
	query wasmtypes.QueryClient
}

// DialGRPC connects to endpoint and installs the grpc-ecosystem retry
// interceptor for transport-level retries, separate from the
// Resolver's own application-level retry-and-cache policy.
func DialGRPC(endpoint string) (Client, error) {
	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithChainUnaryInterceptor(grpc_retry.UnaryClientInterceptor(
			grpc_retry.WithMax(3),
			grpc_retry.WithBackoff(grpc_retry.BackoffExponential(100*time.Millisecond)),
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("resolver: dial %s: %w", endpoint, err)
	}
	return &grpcClient{query: wasmtypes.NewQueryClient(conn)}, nil
}

func (c *grpcClient) ContractCodeID(ctx context.Context, address string) (uint64, error) {
	resp, err := c.query.ContractInfo(ctx, &wasmtypes.QueryContractInfoRequest{Address: address})
	if err != nil {
		if isNotFoundErr(err) {
			return 0, ErrContractNotFound
		}
		return 0, fmt.Errorf("resolver: query contract info: %w", err)
	}
	return resp.ContractInfo.CodeID, nil
}

// isNotFoundErr reports whether err is the gRPC status the node
// returns for an address with no contract, as opposed to a transport
// or server-side failure that's worth retrying.
func isNotFoundErr(err error) bool {
	st, ok := status.FromError(err)
	return ok && st.Code() == codes.NotFound
}
