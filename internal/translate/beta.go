package translate

import "golang.org/x/text/cases"

// betaHeaderTable maps a client-facing anthropic_beta feature token to the corresponding Bedrock
// additionalModelRequestFields key the backend expects, per §4.2 step 8. Documented as
// configuration data (SPEC_FULL.md §9 open question): a deployer may need to extend this table as
// Bedrock's beta surface evolves; it is not derived from any backend discovery call.
var betaHeaderTable = map[string]string{
	"advanced-tool-use-2025-11-20": "tool-examples-2025-10-29",
	"interleaved-thinking-2025-05-14": "interleaved-thinking-2025-05-14",
	"token-efficient-tools-2025-02-19": "token-efficient-tools-2025-02-19",
}

var foldTitle = cases.Fold()

// mapBetaHeader folds case before lookup so "Advanced-Tool-Use-2025-11-20" still matches the
// lowercase table key.
func mapBetaHeader(token string) (string, bool) {
	folded := foldTitle.String(token)
	for k, v := range betaHeaderTable {
		if foldTitle.String(k) == folded {
			return v, true
		}
	}
	return "", false
}
