package translate

import (
	"testing"

	"anthrogate/internal/domain"
)

func feedAll(tr *StreamTranslator, frames []domain.BedrockFrame) []domain.SSEEvent {
	var events []domain.SSEEvent
	for _, f := range frames {
		events = append(events, tr.Feed(f)...)
	}
	return events
}

func eventTypes(events []domain.SSEEvent) []domain.AnthropicEventType {
	out := make([]domain.AnthropicEventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

func assertEventTypes(t *testing.T, got []domain.SSEEvent, want []domain.AnthropicEventType) {
	t.Helper()
	gotTypes := eventTypes(got)
	if len(gotTypes) != len(want) {
		t.Fatalf("event types = %v, want %v", gotTypes, want)
	}
	for i := range want {
		if gotTypes[i] != want[i] {
			t.Fatalf("event types = %v, want %v", gotTypes, want)
		}
	}
}

// TestStreamTranslatorSynthesizedStart implements literal scenario S3: Bedrock never sends an
// explicit contentBlockStart or contentBlockStop, yet the output must synthesize both and the
// metadata frame's usage must land in message_delta.
func TestStreamTranslatorSynthesizedStart(t *testing.T) {
	tr := NewStreamTranslator("claude-sonnet-4-5")
	frames := []domain.BedrockFrame{
		{Type: domain.FrameContentBlockDelta, Index: 0, HasTextDelta: true, DeltaText: "A"},
		{Type: domain.FrameContentBlockDelta, Index: 0, HasTextDelta: true, DeltaText: "B"},
		{Type: domain.FrameMessageStop, StopReason: "end_turn"},
		{Type: domain.FrameMetadata, Usage: domain.ConverseUsage{InputTokens: 3, OutputTokens: 2}},
	}

	events := feedAll(tr, frames)
	events = append(events, tr.Finalize()...)

	assertEventTypes(t, events, []domain.AnthropicEventType{
		domain.EventMessageStart,
		domain.EventContentBlockStart,
		domain.EventContentBlockDelta,
		domain.EventContentBlockDelta,
		domain.EventContentBlockStop,
		domain.EventMessageDelta,
		domain.EventMessageStop,
	})

	start := events[1].Data.(map[string]any)
	if start["index"] != 0 {
		t.Errorf("content_block_start index = %v, want 0", start["index"])
	}
	block := start["content_block"].(map[string]any)
	if block["type"] != "text" {
		t.Errorf("content_block type = %v, want text", block["type"])
	}

	stop := events[4].Data.(map[string]any)
	if stop["index"] != 0 {
		t.Errorf("content_block_stop index = %v, want 0", stop["index"])
	}

	delta := events[5].Data.(map[string]any)
	usage := delta["usage"].(map[string]any)
	if usage["input_tokens"] != 3 || usage["output_tokens"] != 2 {
		t.Errorf("message_delta usage = %+v", usage)
	}
}

// TestStreamTranslatorThinkingBeforeText implements literal scenario S4: a reasoning delta at
// index 1 followed by a text delta at index 2 introduces content_block_start events for indices 1
// and 2, in that order, with no index 0 synthesized.
func TestStreamTranslatorThinkingBeforeText(t *testing.T) {
	tr := NewStreamTranslator("claude-sonnet-4-5")
	frames := []domain.BedrockFrame{
		{Type: domain.FrameContentBlockDelta, Index: 1, HasReasoningTextDelta: true, DeltaReasoningText: "ponder"},
		{Type: domain.FrameContentBlockDelta, Index: 2, HasTextDelta: true, DeltaText: "answer"},
		{Type: domain.FrameMessageStop, StopReason: "end_turn"},
	}

	events := feedAll(tr, frames)
	events = append(events, tr.Finalize()...)

	var starts []map[string]any
	for _, e := range events {
		if e.Type == domain.EventContentBlockStart {
			starts = append(starts, e.Data.(map[string]any))
		}
	}
	if len(starts) != 2 {
		t.Fatalf("got %d content_block_start events, want 2: %+v", len(starts), starts)
	}
	if starts[0]["index"] != 1 {
		t.Errorf("first content_block_start index = %v, want 1", starts[0]["index"])
	}
	block1 := starts[0]["content_block"].(map[string]any)
	if block1["type"] != "thinking" {
		t.Errorf("first content_block type = %v, want thinking", block1["type"])
	}
	if starts[1]["index"] != 2 {
		t.Errorf("second content_block_start index = %v, want 2", starts[1]["index"])
	}
	block2 := starts[1]["content_block"].(map[string]any)
	if block2["type"] != "text" {
		t.Errorf("second content_block type = %v, want text", block2["type"])
	}
}

// TestStreamTranslatorFirstFrameIsDelta implements the boundary behavior: a stream whose very
// first frame is a contentBlockDelta must still begin with message_start then content_block_start.
func TestStreamTranslatorFirstFrameIsDelta(t *testing.T) {
	tr := NewStreamTranslator("claude-sonnet-4-5")
	events := tr.Feed(domain.BedrockFrame{Type: domain.FrameContentBlockDelta, Index: 0, HasTextDelta: true, DeltaText: "hi"})

	assertEventTypes(t, events, []domain.AnthropicEventType{
		domain.EventMessageStart,
		domain.EventContentBlockStart,
		domain.EventContentBlockDelta,
	})
}

// TestStreamTranslatorFinalizeWithoutMessageStop implements the boundary behavior: a Bedrock
// stream ending without messageStop must still end with a synthesized message_delta + message_stop,
// and any block left open must be closed first.
func TestStreamTranslatorFinalizeWithoutMessageStop(t *testing.T) {
	tr := NewStreamTranslator("claude-sonnet-4-5")
	tr.Feed(domain.BedrockFrame{Type: domain.FrameContentBlockDelta, Index: 0, HasTextDelta: true, DeltaText: "hi"})

	events := tr.Finalize()
	assertEventTypes(t, events, []domain.AnthropicEventType{
		domain.EventContentBlockStop,
		domain.EventMessageDelta,
		domain.EventMessageStop,
	})
	delta := events[1].Data.(map[string]any)
	if delta["delta"].(map[string]any)["stop_reason"] != domain.StopEndTurn {
		t.Errorf("stop_reason = %v, want end_turn", delta["delta"].(map[string]any)["stop_reason"])
	}
}

func TestStreamTranslatorFinalizeAfterMessageStopIsNoop(t *testing.T) {
	tr := NewStreamTranslator("claude-sonnet-4-5")
	feedAll(tr, []domain.BedrockFrame{
		{Type: domain.FrameContentBlockDelta, Index: 0, HasTextDelta: true, DeltaText: "hi"},
		{Type: domain.FrameMessageStop, StopReason: "end_turn"},
	})

	if events := tr.Finalize(); events != nil {
		t.Errorf("Finalize() after messageStop = %+v, want nil", events)
	}
}

func TestStreamTranslatorExplicitContentBlockStopNotDoubleClosed(t *testing.T) {
	tr := NewStreamTranslator("claude-sonnet-4-5")
	events := feedAll(tr, []domain.BedrockFrame{
		{Type: domain.FrameContentBlockStart, Index: 0},
		{Type: domain.FrameContentBlockDelta, Index: 0, HasTextDelta: true, DeltaText: "hi"},
		{Type: domain.FrameContentBlockStop, Index: 0},
		{Type: domain.FrameMessageStop, StopReason: "end_turn"},
	})

	stopCount := 0
	for _, e := range events {
		if e.Type == domain.EventContentBlockStop {
			stopCount++
		}
	}
	if stopCount != 1 {
		t.Errorf("got %d content_block_stop events, want exactly 1", stopCount)
	}
}

func TestStreamTranslatorExceptionFrameEmitsError(t *testing.T) {
	tr := NewStreamTranslator("claude-sonnet-4-5")
	events := tr.Feed(domain.BedrockFrame{
		Type:             domain.FrameException,
		ExceptionType:    "ValidationException",
		ExceptionMessage: "bad request",
	})

	assertEventTypes(t, events, []domain.AnthropicEventType{
		domain.EventMessageStart,
		domain.EventError,
	})
	errData := events[1].Data.(map[string]any)["error"].(map[string]any)
	if errData["type"] != "ValidationException" || errData["message"] != "bad request" {
		t.Errorf("error payload = %+v", errData)
	}
}

func TestStreamTranslatorRedactedThinkingIsOneShotBlock(t *testing.T) {
	tr := NewStreamTranslator("claude-sonnet-4-5")
	events := tr.Feed(domain.BedrockFrame{
		Type: domain.FrameContentBlockDelta, Index: 0,
		HasReasoningRedacted: true, DeltaReasoningRedacted: []byte("secret"),
	})

	assertEventTypes(t, events, []domain.AnthropicEventType{
		domain.EventMessageStart,
		domain.EventContentBlockStart,
		domain.EventContentBlockDelta,
		domain.EventContentBlockStop,
	})

	// messageStop afterward must not re-close (and thus re-emit a stop for) index 0.
	followUp := tr.Feed(domain.BedrockFrame{Type: domain.FrameMessageStop, StopReason: "end_turn"})
	for _, e := range followUp {
		if e.Type == domain.EventContentBlockStop {
			t.Errorf("unexpected second content_block_stop for already-closed index: %+v", e)
		}
	}
}
