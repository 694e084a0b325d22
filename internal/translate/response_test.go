package translate

import (
	"encoding/json"
	"strings"
	"testing"

	"anthrogate/internal/domain"
)

// TestBuildMessageResponseSimplestUnary implements literal scenario S1: a mock backend reply
// translates into the exact Anthropic response shape the scenario names.
func TestBuildMessageResponseSimplestUnary(t *testing.T) {
	resp := &domain.ConverseResponse{
		Message:    domain.ConverseMessage{Role: "assistant", Content: []domain.ConverseBlock{{Text: "Hello."}}},
		StopReason: "end_turn",
		Usage:      domain.ConverseUsage{InputTokens: 1, OutputTokens: 2},
	}

	out, err := BuildMessageResponse(resp, "claude-sonnet-4-5-20250929")
	if err != nil {
		t.Fatalf("BuildMessageResponse() error = %v", err)
	}
	if out.Model != "claude-sonnet-4-5-20250929" {
		t.Errorf("Model = %q", out.Model)
	}
	if !strings.HasPrefix(out.ID, "msg_") {
		t.Errorf("ID = %q, want msg_ prefix", out.ID)
	}
	if out.StopReason != domain.StopEndTurn {
		t.Errorf("StopReason = %q", out.StopReason)
	}
	if len(out.Content) != 1 || out.Content[0].Type != domain.BlockText || out.Content[0].Text != "Hello." {
		t.Fatalf("Content = %+v", out.Content)
	}
	if out.Usage.InputTokens != 1 || out.Usage.OutputTokens != 2 {
		t.Errorf("Usage = %+v", out.Usage)
	}
}

func TestBuildMessageResponseToolUse(t *testing.T) {
	resp := &domain.ConverseResponse{
		Message: domain.ConverseMessage{Content: []domain.ConverseBlock{
			{ToolUse: &domain.ConverseToolUse{ToolUseID: "toolu_1", Name: "x", Input: json.RawMessage(`{}`)}},
		}},
		StopReason: "tool_use",
		Usage:      domain.ConverseUsage{InputTokens: 5, OutputTokens: 3},
	}

	out, err := BuildMessageResponse(resp, "claude-sonnet-4-5")
	if err != nil {
		t.Fatalf("BuildMessageResponse() error = %v", err)
	}
	if out.StopReason != domain.StopToolUse {
		t.Errorf("StopReason = %q", out.StopReason)
	}
	if len(out.Content) != 1 || out.Content[0].Type != domain.BlockToolUse || out.Content[0].ID != "toolu_1" {
		t.Fatalf("Content = %+v", out.Content)
	}
}

func TestBuildMessageResponseUnknownStopReasonFallsBackToEndTurn(t *testing.T) {
	resp := &domain.ConverseResponse{
		Message:    domain.ConverseMessage{Content: []domain.ConverseBlock{{Text: "blocked"}}},
		StopReason: "guardrail_intervened",
	}

	out, err := BuildMessageResponse(resp, "claude-sonnet-4-5")
	if err != nil {
		t.Fatalf("BuildMessageResponse() error = %v", err)
	}
	if out.StopReason != domain.StopEndTurn {
		t.Errorf("StopReason = %q, want end_turn fallback", out.StopReason)
	}
	if out.Content[0].Text != "blocked" {
		t.Errorf("Content = %+v, want text preserved", out.Content)
	}
}

func TestBuildMessageResponseRedactedThinking(t *testing.T) {
	resp := &domain.ConverseResponse{
		Message: domain.ConverseMessage{Content: []domain.ConverseBlock{
			{Reasoning: &domain.ConverseReasoning{RedactedContent: []byte("secret")}},
		}},
		StopReason: "end_turn",
	}

	out, err := BuildMessageResponse(resp, "claude-sonnet-4-5")
	if err != nil {
		t.Fatalf("BuildMessageResponse() error = %v", err)
	}
	if len(out.Content) != 1 || out.Content[0].Type != domain.BlockRedactedThinking {
		t.Fatalf("Content = %+v", out.Content)
	}
	if out.Content[0].Data == "" {
		t.Error("Data is empty, want base64-encoded redacted payload")
	}
}

func TestMapStopReasonPassesThroughKnownReasons(t *testing.T) {
	cases := map[string]domain.StopReason{
		"end_turn":      domain.StopEndTurn,
		"stop_sequence": domain.StopSequenceStop,
		"max_tokens":    domain.StopMaxTokens,
		"tool_use":      domain.StopToolUse,
		"pause_turn":    domain.StopPauseTurn,
		"":              domain.StopEndTurn,
	}
	for reason, want := range cases {
		if got := mapStopReason(reason); got != want {
			t.Errorf("mapStopReason(%q) = %q, want %q", reason, got, want)
		}
	}
}
