// Package allowlist implements the per-chain state-event filter: for
// contracts whose code ID falls under a configured rule, only the
// rule's listed state keys are kept.
package allowlist

import (
	"github.com/burnt-labs/dao-dao-indexer/internal/config"
)

// CodeKeyResolver resolves a rule's symbolic code-key names to the
// concrete set of code IDs they currently cover. The real registry
// behind this (an external Wasm-code directory) is out of scope; only
// the interface and a static fake are built here.
type CodeKeyResolver interface {
	ResolveCodeIDs(codeKeys []string) map[uint64]struct{}
}

// StaticCodeKeyResolver is a CodeKeyResolver backed by a fixed
// in-memory map, used in tests and for chains with no external
// registry configured.
type StaticCodeKeyResolver map[string][]uint64

func (s StaticCodeKeyResolver) ResolveCodeIDs(codeKeys []string) map[uint64]struct{} {
	out := make(map[uint64]struct{})
	for _, key := range codeKeys {
		for _, id := range s[key] {
			out[id] = struct{}{}
		}
	}
	return out
}

type compiledRule struct {
	codeIDs   map[uint64]struct{}
	stateKeys map[string]struct{}
}

// Registry holds the compiled per-chain rule sets built from
// config.Config.StateEventAllowlist.
type Registry struct {
	rulesByChain map[string][]compiledRule
}

// NewRegistry compiles cfg's allowlist rules, resolving each rule's
// code-key names to code IDs via resolver.
func NewRegistry(cfg config.Config, resolver CodeKeyResolver) *Registry {
	rulesByChain := make(map[string][]compiledRule, len(cfg.StateEventAllowlist))
	for chainID, rules := range cfg.StateEventAllowlist {
		compiled := make([]compiledRule, 0, len(rules))
		for _, rule := range rules {
			stateKeys := make(map[string]struct{}, len(rule.StateKeys))
			for _, k := range rule.StateKeys {
				stateKeys[k] = struct{}{}
			}
			compiled = append(compiled, compiledRule{
				codeIDs:   resolver.ResolveCodeIDs(rule.CodeIDsKeys),
				stateKeys: stateKeys,
			})
		}
		rulesByChain[chainID] = compiled
	}
	return &Registry{rulesByChain: rulesByChain}
}

// Keep reports whether a state event with the given resolved codeID
// and canonical key should be persisted: keep unless some applicable
// rule's state-key set excludes the key (a conjunctive predicate
// across all applicable rules). Unknown code IDs (0) always pass,
// since they're pending later resolution.
func (r *Registry) Keep(chainID string, codeID uint64, key string) bool {
	if codeID == 0 {
		return true
	}

	for _, rule := range r.rulesByChain[chainID] {
		if _, covered := rule.codeIDs[codeID]; !covered {
			continue
		}
		if _, allowed := rule.stateKeys[key]; !allowed {
			return false
		}
	}
	return true
}
