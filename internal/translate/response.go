package translate

import (
	"encoding/base64"
	"encoding/json"

	"github.com/google/uuid"

	"anthrogate/internal/domain"
)

// BuildMessageResponse implements §4.3: translate a unary Bedrock Converse response into an
// Anthropic MessageResponse.
func BuildMessageResponse(resp *domain.ConverseResponse, requestedModel string) (*domain.MessageResponse, error) {
	content := make([]domain.ContentBlock, 0, len(resp.Message.Content))
	for _, b := range resp.Message.Content {
		cb, err := inverseBlock(b)
		if err != nil {
			return nil, err
		}
		content = append(content, cb)
	}

	return &domain.MessageResponse{
		ID:         "msg_" + uuid.NewString(),
		Type:       "message",
		Role:       domain.RoleAssistant,
		Model:      requestedModel,
		Content:    content,
		StopReason: mapStopReason(resp.StopReason),
		Usage: domain.Usage{
			InputTokens:              resp.Usage.InputTokens,
			OutputTokens:             resp.Usage.OutputTokens,
			CacheReadInputTokens:     resp.Usage.CacheReadInputTokens,
			CacheCreationInputTokens: resp.Usage.CacheWriteInputTokens,
		},
	}, nil
}

// mapStopReason implements §4.3's stopReason mapping: known reasons pass through; anything else
// (content_filtered, guardrail_intervened, ...) surfaces as end_turn with the full text
// preserved — no synthetic warning block is injected, per the spec's explicit choice to leave
// warnings to the observability layer.
func mapStopReason(reason string) domain.StopReason {
	switch reason {
	case "end_turn", string(domain.StopEndTurn):
		return domain.StopEndTurn
	case "stop_sequence", string(domain.StopSequenceStop):
		return domain.StopSequenceStop
	case "max_tokens", string(domain.StopMaxTokens):
		return domain.StopMaxTokens
	case "tool_use", string(domain.StopToolUse):
		return domain.StopToolUse
	case "pause_turn", string(domain.StopPauseTurn):
		return domain.StopPauseTurn
	default:
		return domain.StopEndTurn
	}
}

// inverseBlock is the §3 inverse table used by both the unary response translator and the stream
// translator's one-shot redacted_thinking block.
func inverseBlock(b domain.ConverseBlock) (domain.ContentBlock, error) {
	switch {
	case b.ToolUse != nil:
		return domain.ContentBlock{
			Type:  domain.BlockToolUse,
			ID:    b.ToolUse.ToolUseID,
			Name:  b.ToolUse.Name,
			Input: b.ToolUse.Input,
		}, nil
	case b.ToolResult != nil:
		content, err := json.Marshal(inverseBlocks(b.ToolResult.Content))
		if err != nil {
			return domain.ContentBlock{}, domain.NewError(domain.ErrInternal, "marshal tool_result content", err)
		}
		return domain.ContentBlock{
			Type:      domain.BlockToolResult,
			ToolUseID: b.ToolResult.ToolUseID,
			Content:   content,
			IsError:   b.ToolResult.Status == "error",
		}, nil
	case b.Reasoning != nil && b.Reasoning.ReasoningText != nil:
		return domain.ContentBlock{
			Type:      domain.BlockThinking,
			Thinking:  b.Reasoning.ReasoningText.Text,
			Signature: b.Reasoning.ReasoningText.Signature,
		}, nil
	case b.Reasoning != nil && b.Reasoning.RedactedContent != nil:
		return domain.ContentBlock{
			Type: domain.BlockRedactedThinking,
			Data: base64.StdEncoding.EncodeToString(b.Reasoning.RedactedContent),
		}, nil
	case b.Image != nil || b.Document != nil:
		// Bedrock responses never echo image/document blocks back to the client; translate
		// defensively as text so an unexpected backend payload doesn't crash the response path.
		return domain.ContentBlock{Type: domain.BlockText, Text: ""}, nil
	default:
		return domain.ContentBlock{Type: domain.BlockText, Text: b.Text}, nil
	}
}

func inverseBlocks(blocks []domain.ConverseBlock) []domain.ContentBlock {
	out := make([]domain.ContentBlock, 0, len(blocks))
	for _, b := range blocks {
		cb, err := inverseBlock(b)
		if err != nil {
			continue
		}
		out = append(out, cb)
	}
	return out
}
