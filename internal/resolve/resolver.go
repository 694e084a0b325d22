// Package resolve implements the Model-ID Resolver: a three-tier, failure-free mapping from an
// Anthropic model identifier to a Bedrock model identifier.
package resolve

import (
	"regexp"
	"strings"

	"github.com/agnivade/levenshtein"

	"anthrogate/internal/domain"
)

// builtin is the compile-time default mapping, tier 2 of §4.1. Entries are the short aliases
// clients commonly send mapped to the full Bedrock cross-region inference profile ID.
var builtin = map[string]string{
	"claude-sonnet-4-5":            "us.anthropic.claude-sonnet-4-5-20250929-v1:0",
	"claude-sonnet-4-5-20250929":   "us.anthropic.claude-sonnet-4-5-20250929-v1:0",
	"claude-opus-4-1":              "us.anthropic.claude-opus-4-1-20250805-v1:0",
	"claude-haiku-4-5":             "us.anthropic.claude-haiku-4-5-20251001-v1:0",
	"claude-3-7-sonnet":            "us.anthropic.claude-3-7-sonnet-20250219-v1:0",
	"claude-3-5-haiku":             "us.anthropic.claude-3-5-haiku-20241022-v1:0",
	"nova-pro":                     "us.amazon.nova-pro-v1:0",
	"nova-lite":                    "us.amazon.nova-lite-v1:0",
	"nova-premier":                 "us.amazon.nova-premier-v1:0",
}

// Store is the subset of the Key Repository Contract the resolver consults for tier 1 (custom
// mapping). A nil Store is valid: the resolver simply falls through to tier 2.
type Store interface {
	ModelMapping(anthropicID string) (backendID string, ok bool)
}

// Resolver maps Anthropic model IDs to Bedrock model identifiers. The zero value is usable with
// a nil Store (tiers 2-3 only).
type Resolver struct {
	store Store
}

func New(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve implements the three-tier lookup of §4.1. It never errors: an identifier unknown to
// every tier is passed through unchanged and will surface as a backend error later.
func (r *Resolver) Resolve(anthropicID string) string {
	if r.store != nil {
		if backendID, ok := r.store.ModelMapping(anthropicID); ok {
			return backendID
		}
	}
	if backendID, ok := builtin[anthropicID]; ok {
		return backendID
	}
	return anthropicID
}

// BuiltinModels returns the anthropic-facing aliases of the compile-time default mapping, for use
// by GET /v1/models (§6) to advertise what the resolver recognizes without a store round trip.
func BuiltinModels() []string {
	names := make([]string, 0, len(builtin))
	for alias := range builtin {
		names = append(names, alias)
	}
	return names
}

// Hint returns the built-in model ID nearest to query by edit distance, for use only in a
// not_found_error diagnostic message — it never changes resolution behavior (§4.1: "no failure
// mode").
func Hint(query string) string {
	best, bestDist := "", -1
	for alias := range builtin {
		d := levenshtein.ComputeDistance(query, alias)
		if bestDist == -1 || d < bestDist {
			best, bestDist = alias, d
		}
	}
	return best
}

var novaReasoningPattern = regexp.MustCompile(`^(us\.|eu\.|apac\.)?amazon\.nova-.*-2(:[0-9]+)?$`)

// Family classifies a resolved backend model ID into the three families §4.2 step 2 names.
func Family(backendID string) domain.ModelFamily {
	lower := strings.ToLower(backendID)
	switch {
	case strings.Contains(lower, "anthropic.claude"):
		return domain.FamilyClaude
	case novaReasoningPattern.MatchString(lower):
		return domain.FamilyNovaReasoning
	default:
		return domain.FamilyOther
	}
}
