package resolve

import (
	"context"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/bedrock"
)

// ProfileLister is the Bedrock control-plane call the startup seed uses to discover live
// cross-region inference profiles, narrowed to an interface so seeding can run against a fake in
// tests without AWS credentials.
type ProfileLister interface {
	ListInferenceProfiles(ctx context.Context, params *bedrock.ListInferenceProfilesInput, optFns ...func(*bedrock.Options)) (*bedrock.ListInferenceProfilesOutput, error)
}

// MappingWriter is the subset of the Key Repository Contract the startup seed writes tier-1
// custom mappings into.
type MappingWriter interface {
	PutModelMapping(ctx context.Context, anthropicID, backendID string) error
}

// SeedFromInferenceProfiles lists cross-region inference profiles from the Bedrock control plane
// and registers any the built-in table (tier 2) doesn't already cover as custom mappings (tier 1),
// keyed by a short alias derived from the profile ID. A failure here never blocks startup, matching
// §4.1's "no failure mode" for resolution: it is logged and seeding is simply skipped.
func SeedFromInferenceProfiles(ctx context.Context, client ProfileLister, store MappingWriter) {
	out, err := client.ListInferenceProfiles(ctx, &bedrock.ListInferenceProfilesInput{})
	if err != nil {
		slog.Warn("listing bedrock inference profiles failed, skipping model seed", "error", err)
		return
	}

	for _, p := range out.InferenceProfileSummaries {
		if p.InferenceProfileId == nil {
			continue
		}
		profileID := *p.InferenceProfileId
		alias := shortAlias(profileID)
		if _, ok := builtin[alias]; ok {
			continue
		}
		if err := store.PutModelMapping(ctx, alias, profileID); err != nil {
			slog.Warn("seeding model mapping failed", "alias", alias, "profile_id", profileID, "error", err)
		}
	}
}

// shortAlias derives a short anthropic-facing alias from a full Bedrock inference profile ID,
// e.g. "us.anthropic.claude-sonnet-4-5-20250929-v1:0" -> "claude-sonnet-4-5-20250929".
func shortAlias(profileID string) string {
	base := strings.SplitN(profileID, ":", 2)[0]
	if idx := strings.Index(base, "."); idx != -1 {
		base = base[idx+1:]
	}
	base = strings.TrimSuffix(base, "-v1")
	base = strings.TrimSuffix(base, "-v2")
	return base
}
