package translate

import (
	"encoding/json"
	"fmt"
	"io"

	"anthrogate/internal/domain"
)

// WriteSSE writes one Anthropic SSE frame in the exact framing §6 requires:
// "event: <type>\ndata: <minified-JSON>\n\n". Counterpart to the teacher's SSEReader — this
// package supplies the writer side the teacher never needed (it only ever consumed Bedrock's
// event-stream encoding, not Anthropic's).
func WriteSSE(w io.Writer, event domain.SSEEvent) error {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("marshal sse event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, payload); err != nil {
		return fmt.Errorf("write sse event: %w", err)
	}
	return nil
}
