// Package config holds the recognized export-pipeline options and the
// env-var expansion contract the surrounding config loader depends on.
// Loading the option values from a file and watching that
// file for changes is out of scope; decoding an already-parsed
// map[string]any into Config, and expanding "env:"/"envOptional:"
// values within it, is not.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	"github.com/burnt-labs/dao-dao-indexer/internal/errkind"
)

// AllowlistRule is one per-chain rule from state_event_allowlist.
type AllowlistRule struct {
	CodeIDsKeys []string `mapstructure:"code_ids_keys"`
	StateKeys   []string `mapstructure:"state_keys"`
}

// Config is the typed form of the export pipeline's recognized options.
type Config struct {
	Bech32Prefix        string                     `mapstructure:"bech32_prefix"`
	ChainID             string                     `mapstructure:"chain_id"`
	RPCEndpoint         string                     `mapstructure:"rpc_endpoint"`
	DatabaseURL         string                     `mapstructure:"database_url"`
	SendWebhooks        bool                       `mapstructure:"send_webhooks"`
	StateEventAllowlist map[string][]AllowlistRule `mapstructure:"state_event_allowlist"`
}

// Decode decodes a raw, already-loaded options map (as produced by the
// out-of-scope file loader) into a Config.
func Decode(raw map[string]any) (Config, error) {
	var cfg Config
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return Config{}, fmt.Errorf("build config decoder: %w", err)
	}
	if err := dec.Decode(raw); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Validate enforces the required options, returning a FatalConfig-kind
// error when `bech32_prefix`, `rpc_endpoint`, or `database_url` are
// absent.
func (c Config) Validate() error {
	if c.Bech32Prefix == "" {
		return errkind.AsFatalConfig(fmt.Errorf("bech32_prefix is required"))
	}
	if c.RPCEndpoint == "" {
		return errkind.AsFatalConfig(fmt.Errorf("rpc_endpoint is required"))
	}
	if c.DatabaseURL == "" {
		return errkind.AsFatalConfig(fmt.Errorf("database_url is required"))
	}
	return nil
}

const (
	envPrefix         = "env:"
	envOptionalPrefix = "envOptional:"
)

// ExpandEnv walks every string value reachable from raw (recursing
// into maps and slices) and returns a copy in which "env:NAME" /
// "envOptional:NAME" values are replaced; raw itself is not modified.
// A missing required env var is a fatal error, a missing optional one
// silently becomes "".
func ExpandEnv(raw map[string]any) (map[string]any, error) {
	out, err := expandValue(raw)
	if err != nil {
		return nil, err
	}
	m, _ := out.(map[string]any)
	return m, nil
}

func expandValue(v any) (any, error) {
	switch val := v.(type) {
	case string:
		return expandString(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, vv := range val {
			expanded, err := expandValue(vv)
			if err != nil {
				return nil, err
			}
			out[k] = expanded
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, vv := range val {
			expanded, err := expandValue(vv)
			if err != nil {
				return nil, err
			}
			out[i] = expanded
		}
		return out, nil
	default:
		return v, nil
	}
}

func expandString(s string) (string, error) {
	switch {
	case strings.HasPrefix(s, envPrefix):
		name := strings.TrimPrefix(s, envPrefix)
		val, ok := os.LookupEnv(name)
		if !ok {
			return "", errkind.AsFatalConfig(fmt.Errorf("required environment variable %q is not set", name))
		}
		return val, nil
	case strings.HasPrefix(s, envOptionalPrefix):
		name := strings.TrimPrefix(s, envOptionalPrefix)
		val := os.Getenv(name)
		return val, nil
	default:
		return s, nil
	}
}
