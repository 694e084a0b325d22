package translate

import (
	"encoding/base64"
	"sort"

	"github.com/google/uuid"

	"anthrogate/internal/domain"
)

// StreamTranslator converts an ordered sequence of Bedrock frames into an ordered sequence of
// Anthropic SSE events, synthesizing any frames Bedrock omits (§4.4). One StreamTranslator is
// used per request; it is not safe for concurrent use.
type StreamTranslator struct {
	model          string
	requestedModel string
	messageStarted bool
	seenIndices    map[int]bool
	closedIndices  map[int]bool
	usage          domain.ConverseUsage
	messageStopped bool
}

// NewStreamTranslator constructs a translator for one streamed request.
func NewStreamTranslator(requestedModel string) *StreamTranslator {
	return &StreamTranslator{
		requestedModel: requestedModel,
		seenIndices:    make(map[int]bool),
		closedIndices:  make(map[int]bool),
	}
}

// closeOpenBlocks synthesizes a content_block_stop for every index that was opened (explicitly or
// synthetically) but never closed — Bedrock does not always emit an explicit contentBlockStop
// before messageStop (§4.4).
func (t *StreamTranslator) closeOpenBlocks() []domain.SSEEvent {
	var open []int
	for index := range t.seenIndices {
		if !t.closedIndices[index] {
			open = append(open, index)
		}
	}
	sort.Ints(open)

	events := make([]domain.SSEEvent, 0, len(open))
	for _, index := range open {
		t.closedIndices[index] = true
		events = append(events, domain.SSEEvent{
			Type: domain.EventContentBlockStop,
			Data: map[string]any{"type": "content_block_stop", "index": index},
		})
	}
	return events
}

// Feed consumes one Bedrock frame and returns zero or more Anthropic SSE events in emission
// order. Callers must call Finalize after the frame sequence ends (whether or not a messageStop
// frame was seen) to synthesize any trailing events §4.4 requires.
func (t *StreamTranslator) Feed(f domain.BedrockFrame) []domain.SSEEvent {
	var events []domain.SSEEvent

	if !t.messageStarted && f.Type != domain.FrameMessageStart {
		events = append(events, t.synthMessageStart())
	}

	switch f.Type {
	case domain.FrameMessageStart:
		events = append(events, t.synthMessageStart())
		if f.Role != "" {
			// Role is already fixed to "assistant" by synthMessageStart; Bedrock never emits
			// anything else on this side of the pipe.
			_ = f.Role
		}

	case domain.FrameContentBlockStart:
		// Bedrock did supply an explicit start — record it so the next delta at this index
		// doesn't synthesize a second one, and emit using whatever shape info is present.
		if !t.seenIndices[f.Index] {
			t.seenIndices[f.Index] = true
			events = append(events, domain.SSEEvent{
				Type: domain.EventContentBlockStart,
				Data: contentBlockStartPayload(f.Index, classifyStart(f)),
			})
		}

	case domain.FrameContentBlockDelta:
		events = append(events, t.deltaEvents(f)...)

	case domain.FrameContentBlockStop:
		t.closedIndices[f.Index] = true
		events = append(events, domain.SSEEvent{
			Type: domain.EventContentBlockStop,
			Data: map[string]any{"type": "content_block_stop", "index": f.Index},
		})

	case domain.FrameMessageStop:
		events = append(events, t.closeOpenBlocks()...)
		t.messageStopped = true
		events = append(events, domain.SSEEvent{
			Type: domain.EventMessageDelta,
			Data: map[string]any{
				"type":  "message_delta",
				"delta": map[string]any{"stop_reason": mapStopReason(f.StopReason)},
				"usage": usagePayload(t.usage),
			},
		})
		events = append(events, domain.SSEEvent{Type: domain.EventMessageStop, Data: map[string]any{"type": "message_stop"}})

	case domain.FrameMetadata:
		t.usage = f.Usage

	case domain.FrameException:
		events = append(events, domain.SSEEvent{
			Type: domain.EventError,
			Data: map[string]any{
				"type": "error",
				"error": map[string]any{
					"type":    f.ExceptionType,
					"message": f.ExceptionMessage,
				},
			},
		})
	}

	return events
}

// Finalize implements the finalization rule of §4.4: if the stream ended without a messageStop,
// synthesize message_delta{stop_reason: end_turn} + message_stop. Calling Finalize after an error
// frame or a normal messageStop is a no-op (§4.4: "No message_stop follows an error").
func (t *StreamTranslator) Finalize() []domain.SSEEvent {
	if t.messageStopped {
		return nil
	}
	events := t.closeOpenBlocks()
	t.messageStopped = true
	return append(events,
		domain.SSEEvent{
			Type: domain.EventMessageDelta,
			Data: map[string]any{
				"type":  "message_delta",
				"delta": map[string]any{"stop_reason": domain.StopEndTurn},
				"usage": usagePayload(t.usage),
			},
		},
		domain.SSEEvent{Type: domain.EventMessageStop, Data: map[string]any{"type": "message_stop"}},
	)
}

func (t *StreamTranslator) synthMessageStart() domain.SSEEvent {
	t.messageStarted = true
	return domain.SSEEvent{
		Type: domain.EventMessageStart,
		Data: map[string]any{
			"type": "message_start",
			"message": map[string]any{
				"id":          "msg_" + uuid.NewString(),
				"type":        "message",
				"role":        "assistant",
				"model":       t.requestedModel,
				"content":     []any{},
				"stop_reason": nil,
				"usage":       usagePayload(domain.ConverseUsage{}),
			},
		},
	}
}

// blockKind is the inferred initial shape of a synthesized content_block_start, per §4.4's
// start-event synthesis rule.
type blockKind string

const (
	kindText      blockKind = "text"
	kindToolUse   blockKind = "tool_use"
	kindThinking  blockKind = "thinking"
	kindRedacted  blockKind = "redacted_thinking"
)

func classifyStart(f domain.BedrockFrame) blockKind {
	switch {
	case f.HasReasoningRedacted:
		return kindRedacted
	case f.HasReasoningTextDelta || f.HasReasoningSigDelta:
		return kindThinking
	case f.HasToolUseDelta || f.StartToolUseID != "":
		return kindToolUse
	default:
		return kindText
	}
}

func contentBlockStartPayload(index int, kind blockKind) map[string]any {
	var block map[string]any
	switch kind {
	case kindToolUse:
		block = map[string]any{"type": "tool_use", "id": "", "name": "", "input": map[string]any{}}
	case kindThinking:
		block = map[string]any{"type": "thinking", "thinking": ""}
	case kindRedacted:
		block = map[string]any{"type": "redacted_thinking", "data": ""}
	default:
		block = map[string]any{"type": "text", "text": ""}
	}
	return map[string]any{"type": "content_block_start", "index": index, "content_block": block}
}

// deltaEvents implements the delta conversion table of §4.4 and the per-index start synthesis.
// redactedContent is emitted as a one-shot block (synthetic start + delta + stop) because Bedrock
// never streams it incrementally.
func (t *StreamTranslator) deltaEvents(f domain.BedrockFrame) []domain.SSEEvent {
	var events []domain.SSEEvent

	needsStart := !t.seenIndices[f.Index]
	if needsStart {
		t.seenIndices[f.Index] = true
		events = append(events, domain.SSEEvent{
			Type: domain.EventContentBlockStart,
			Data: contentBlockStartPayload(f.Index, classifyStart(f)),
		})
	}

	switch {
	case f.HasTextDelta:
		events = append(events, domain.SSEEvent{
			Type: domain.EventContentBlockDelta,
			Data: map[string]any{
				"type": "content_block_delta", "index": f.Index,
				"delta": map[string]any{"type": "text_delta", "text": f.DeltaText},
			},
		})
	case f.HasToolUseDelta:
		events = append(events, domain.SSEEvent{
			Type: domain.EventContentBlockDelta,
			Data: map[string]any{
				"type": "content_block_delta", "index": f.Index,
				"delta": map[string]any{"type": "input_json_delta", "partial_json": f.DeltaToolUseInput},
			},
		})
	case f.HasReasoningTextDelta:
		events = append(events, domain.SSEEvent{
			Type: domain.EventContentBlockDelta,
			Data: map[string]any{
				"type": "content_block_delta", "index": f.Index,
				"delta": map[string]any{"type": "thinking_delta", "thinking": f.DeltaReasoningText},
			},
		})
	case f.HasReasoningSigDelta:
		events = append(events, domain.SSEEvent{
			Type: domain.EventContentBlockDelta,
			Data: map[string]any{
				"type": "content_block_delta", "index": f.Index,
				"delta": map[string]any{"type": "signature_delta", "signature": f.DeltaReasoningSig},
			},
		})
	case f.HasReasoningRedacted:
		events = append(events, domain.SSEEvent{
			Type: domain.EventContentBlockDelta,
			Data: map[string]any{
				"type": "content_block_delta", "index": f.Index,
				"delta": map[string]any{
					"type": "redacted_thinking",
					"data": base64.StdEncoding.EncodeToString(f.DeltaReasoningRedacted),
				},
			},
		})
		t.closedIndices[f.Index] = true
		events = append(events, domain.SSEEvent{
			Type: domain.EventContentBlockStop,
			Data: map[string]any{"type": "content_block_stop", "index": f.Index},
		})
	}

	return events
}

func usagePayload(u domain.ConverseUsage) map[string]any {
	return map[string]any{
		"input_tokens":                u.InputTokens,
		"output_tokens":               u.OutputTokens,
		"cache_read_input_tokens":     u.CacheReadInputTokens,
		"cache_creation_input_tokens": u.CacheWriteInputTokens,
	}
}
