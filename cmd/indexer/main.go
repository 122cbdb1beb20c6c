// Command indexer drives the wasm export pipeline: it reads
// newline-delimited trace records from stdin and calls the Processor
// once per batch. There is no option to read trace records from a
// file.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/burnt-labs/dao-dao-indexer/internal/allowlist"
	"github.com/burnt-labs/dao-dao-indexer/internal/config"
	"github.com/burnt-labs/dao-dao-indexer/internal/enqueue"
	"github.com/burnt-labs/dao-dao-indexer/internal/errkind"
	"github.com/burnt-labs/dao-dao-indexer/internal/metrics"
	"github.com/burnt-labs/dao-dao-indexer/internal/processor"
	"github.com/burnt-labs/dao-dao-indexer/internal/resolver"
	"github.com/burnt-labs/dao-dao-indexer/internal/store"
	"github.com/burnt-labs/dao-dao-indexer/internal/trace"
	"github.com/burnt-labs/dao-dao-indexer/internal/transform"
	"github.com/burnt-labs/dao-dao-indexer/internal/wasmkv"
	"github.com/burnt-labs/dao-dao-indexer/internal/watermark"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

const batchSize = 500

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		variant    string
	)

	root := &cobra.Command{
		Use:   "indexer",
		Short: "Run the CosmWasm export pipeline against a trace-pipe feed",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Read trace records from stdin and drive the processor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd.Context(), configPath, variant)
		},
	}
	runCmd.Flags().StringVar(&configPath, "config", "", "path to a JSON file of config options; env:/envOptional: values are expanded on load")
	runCmd.Flags().StringVar(&variant, "variant", "standard", "chain key-layout variant: standard or columbus-5")

	root.AddCommand(runCmd)
	return root
}

func runExport(ctx context.Context, configPath, variantFlag string) error {
	log, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("indexer: build logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("indexer: load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("indexer: invalid config: %w", err)
	}

	variant := wasmkv.VariantStandard
	if variantFlag == "columbus-5" {
		variant = wasmkv.VariantColumbusFive
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("indexer: open database: %w", err)
	}
	if err := db.AutoMigrate(store.AllModels()...); err != nil {
		return fmt.Errorf("indexer: migrate schema: %w", err)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	grpcClient, err := resolver.DialGRPC(cfg.RPCEndpoint)
	if err != nil {
		return fmt.Errorf("indexer: dial rpc: %w", err)
	}
	res, err := resolver.New(grpcClient, log, m)
	if err != nil {
		return fmt.Errorf("indexer: build resolver: %w", err)
	}

	allowlistReg := allowlist.NewRegistry(cfg, allowlist.StaticCodeKeyResolver{})

	httpEnqueuer := enqueue.NewHTTPEnqueuer(os.Getenv("WEBHOOK_ENDPOINT"), os.Getenv("CODE_TRACKER_ENDPOINT"), log)

	p := processor.New(processor.Deps{
		ChainID:      cfg.ChainID,
		Bech32Prefix: cfg.Bech32Prefix,
		Variant:      variant,
		SendWebhooks: cfg.SendWebhooks,
		BlockSink:    store.NewBlockSink(db),
		ContractSink: store.NewContractSink(db, res, log),
		EventSink:    store.NewEventSink(db, log),
		Allowlist:    allowlistReg,
		Transformer:  transform.NewEngine(db, nil, log, m),
		Watermark:    watermark.NewManager(db),
		Webhook:      httpEnqueuer,
		CodeTracker:  httpEnqueuer,
		Metrics:      m,
		Log:          log,
	})

	return readAndProcess(ctx, os.Stdin, p, log)
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Config{}, fmt.Errorf("--config is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	var raw map[string]any
	if err := jsonAPI.NewDecoder(f).Decode(&raw); err != nil {
		return config.Config{}, fmt.Errorf("decode config file: %w", err)
	}

	expanded, err := config.ExpandEnv(raw)
	if err != nil {
		return config.Config{}, err
	}
	return config.Decode(expanded)
}

// readAndProcess reads newline-delimited trace records from r and
// drives p in fixed-size batches until EOF.
func readAndProcess(ctx context.Context, r io.Reader, p *processor.Processor, log *zap.Logger) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	batch := make([]trace.Record, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := p.ProcessBatch(ctx, batch)
		if err != nil && errkind.Retryable(err) {
			log.Warn("batch failed with a retryable error, attempting one extra pass", zap.Error(err))
			err = p.ProcessBatch(ctx, batch)
		}
		batch = batch[:0]
		if err == nil {
			return nil
		}
		if errkind.Fatal(err) {
			return err
		}
		log.Error("dropping batch after non-fatal failure", zap.Error(err))
		return nil
	}

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		rec, err := trace.ParseRecord(line)
		if err != nil {
			log.Warn("dropping unparseable trace line", zap.Error(err))
			continue
		}
		batch = append(batch, rec)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("indexer: read trace input: %w", err)
	}
	return flush()
}
