package invoke

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"anthrogate/internal/domain"
)

// SDKClient adapts a real bedrockruntime.Client to the Invoker's Client interface. This is the
// one place domain.ConverseRequest/Response cross into AWS SDK types — translation itself (§4.2,
// §4.3, §4.4) stays entirely SDK-agnostic per the internal/domain/bedrock.go design note.
//
// Grounded on the teacher's internal/provider/bedrock.go (shared *bedrockruntime.Client held by
// one invoker, IAM-first credential resolution) and its use of document.NewLazyDocument to carry
// tool_use input/output through the SDK's untyped document.Interface fields.
type SDKClient struct {
	rt *bedrockruntime.Client
}

func NewSDKClient(rt *bedrockruntime.Client) *SDKClient {
	return &SDKClient{rt: rt}
}

func (c *SDKClient) Converse(ctx context.Context, req *domain.ConverseRequest) (*domain.ConverseResponse, error) {
	input, err := toConverseInput(req)
	if err != nil {
		return nil, err
	}
	out, err := c.rt.Converse(ctx, input)
	if err != nil {
		return nil, err
	}
	return fromConverseOutput(out)
}

func (c *SDKClient) ConverseStream(ctx context.Context, req *domain.ConverseRequest) (<-chan domain.BedrockFrame, error) {
	input, err := toConverseStreamInput(req)
	if err != nil {
		return nil, err
	}
	out, err := c.rt.ConverseStream(ctx, input)
	if err != nil {
		return nil, err
	}

	frames := make(chan domain.BedrockFrame, 16)
	go func() {
		defer close(frames)
		stream := out.GetStream()
		defer stream.Close()
		for event := range stream.Events() {
			frame, ok := toFrame(event)
			if !ok {
				continue
			}
			select {
			case frames <- frame:
			case <-ctx.Done():
				return
			}
			if frame.Type == domain.FrameException {
				return
			}
		}
		if err := stream.Err(); err != nil {
			select {
			case frames <- domain.BedrockFrame{Type: domain.FrameException, ExceptionType: "internal_error", ExceptionMessage: err.Error()}:
			case <-ctx.Done():
			}
		}
	}()
	return frames, nil
}

func toConverseInput(req *domain.ConverseRequest) (*bedrockruntime.ConverseInput, error) {
	messages, err := toSDKMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	input := &bedrockruntime.ConverseInput{
		ModelId:  &req.ModelID,
		Messages: messages,
		System:   toSDKSystem(req.System),
	}
	if req.InferenceConfig != nil {
		input.InferenceConfig = toSDKInferenceConfig(req.InferenceConfig)
	}
	if req.ToolConfig != nil {
		tc, err := toSDKToolConfig(req.ToolConfig)
		if err != nil {
			return nil, err
		}
		input.ToolConfig = tc
	}
	if len(req.AdditionalModelRequestFields) > 0 {
		raw, err := json.Marshal(req.AdditionalModelRequestFields)
		if err != nil {
			return nil, fmt.Errorf("marshal additionalModelRequestFields: %w", err)
		}
		input.AdditionalModelRequestFields = document.NewLazyDocument(json.RawMessage(raw))
	}
	return input, nil
}

func toConverseStreamInput(req *domain.ConverseRequest) (*bedrockruntime.ConverseStreamInput, error) {
	unary, err := toConverseInput(req)
	if err != nil {
		return nil, err
	}
	return &bedrockruntime.ConverseStreamInput{
		ModelId:                      unary.ModelId,
		Messages:                     unary.Messages,
		System:                       unary.System,
		InferenceConfig:              unary.InferenceConfig,
		ToolConfig:                   unary.ToolConfig,
		AdditionalModelRequestFields: unary.AdditionalModelRequestFields,
	}, nil
}

func toSDKSystem(blocks []domain.ConverseBlock) []types.SystemContentBlock {
	out := make([]types.SystemContentBlock, 0, len(blocks))
	for _, b := range blocks {
		if b.CachePoint != nil {
			out = append(out, &types.SystemContentBlockMemberCachePoint{Value: types.CachePointBlock{Type: types.CachePointTypeDefault}})
			continue
		}
		out = append(out, &types.SystemContentBlockMemberText{Value: b.Text})
	}
	return out
}

func toSDKMessages(messages []domain.ConverseMessage) ([]types.Message, error) {
	out := make([]types.Message, 0, len(messages))
	for _, m := range messages {
		blocks, err := toSDKContentBlocks(m.Content)
		if err != nil {
			return nil, err
		}
		out = append(out, types.Message{Role: types.ConversationRole(m.Role), Content: blocks})
	}
	return out, nil
}

func toSDKContentBlocks(blocks []domain.ConverseBlock) ([]types.ContentBlock, error) {
	out := make([]types.ContentBlock, 0, len(blocks))
	for _, b := range blocks {
		cb, err := toSDKContentBlock(b)
		if err != nil {
			return nil, err
		}
		if cb != nil {
			out = append(out, cb)
		}
	}
	return out, nil
}

func toSDKContentBlock(b domain.ConverseBlock) (types.ContentBlock, error) {
	switch {
	case b.CachePoint != nil:
		return &types.ContentBlockMemberCachePoint{Value: types.CachePointBlock{Type: types.CachePointTypeDefault}}, nil
	case b.ToolUse != nil:
		input := b.ToolUse.Input
		if len(input) == 0 {
			input = json.RawMessage("{}")
		}
		return &types.ContentBlockMemberToolUse{Value: types.ToolUseBlock{
			ToolUseId: &b.ToolUse.ToolUseID,
			Name:      &b.ToolUse.Name,
			Input:     document.NewLazyDocument(input),
		}}, nil
	case b.ToolResult != nil:
		content, err := toSDKToolResultBlocks(b.ToolResult.Content)
		if err != nil {
			return nil, err
		}
		status := types.ToolResultStatusSuccess
		if b.ToolResult.Status == "error" {
			status = types.ToolResultStatusError
		}
		return &types.ContentBlockMemberToolResult{Value: types.ToolResultBlock{
			ToolUseId: &b.ToolResult.ToolUseID,
			Content:   content,
			Status:    status,
		}}, nil
	case b.Reasoning != nil && b.Reasoning.ReasoningText != nil:
		return &types.ContentBlockMemberReasoningContent{
			Value: &types.ReasoningContentBlockMemberReasoningText{
				Value: types.ReasoningTextBlock{
					Text:      &b.Reasoning.ReasoningText.Text,
					Signature: &b.Reasoning.ReasoningText.Signature,
				},
			},
		}, nil
	case b.Reasoning != nil && b.Reasoning.RedactedContent != nil:
		return &types.ContentBlockMemberReasoningContent{
			Value: &types.ReasoningContentBlockMemberRedactedContent{Value: b.Reasoning.RedactedContent},
		}, nil
	case b.Image != nil:
		return &types.ContentBlockMemberImage{Value: types.ImageBlock{
			Format: types.ImageFormat(b.Image.Format),
			Source: &types.ImageSourceMemberBytes{Value: b.Image.Source.Bytes},
		}}, nil
	case b.Document != nil:
		name := b.Document.Name
		if name == "" {
			name = "document"
		}
		return &types.ContentBlockMemberDocument{Value: types.DocumentBlock{
			Format: types.DocumentFormat(b.Document.Format),
			Name:   &name,
			Source: &types.DocumentSourceMemberBytes{Value: b.Document.Source.Bytes},
		}}, nil
	default:
		return &types.ContentBlockMemberText{Value: b.Text}, nil
	}
}

func toSDKToolResultBlocks(blocks []domain.ConverseBlock) ([]types.ToolResultContentBlock, error) {
	out := make([]types.ToolResultContentBlock, 0, len(blocks))
	for _, b := range blocks {
		if b.Text != "" {
			out = append(out, &types.ToolResultContentBlockMemberText{Value: b.Text})
			continue
		}
		if b.Image != nil {
			out = append(out, &types.ToolResultContentBlockMemberImage{Value: types.ImageBlock{
				Format: types.ImageFormat(b.Image.Format),
				Source: &types.ImageSourceMemberBytes{Value: b.Image.Source.Bytes},
			}})
		}
	}
	return out, nil
}

func toSDKInferenceConfig(ic *domain.InferenceConfig) *types.InferenceConfiguration {
	out := &types.InferenceConfiguration{StopSequences: ic.StopSequences}
	if ic.MaxTokens != nil {
		v := int32(*ic.MaxTokens)
		out.MaxTokens = &v
	}
	if ic.Temperature != nil {
		v := float32(*ic.Temperature)
		out.Temperature = &v
	}
	if ic.TopP != nil {
		v := float32(*ic.TopP)
		out.TopP = &v
	}
	return out
}

func toSDKToolConfig(tc *domain.ToolConfig) (*types.ToolConfiguration, error) {
	tools := make([]types.Tool, 0, len(tc.Tools))
	for _, t := range tc.Tools {
		schema := t.ToolSpec.InputSchema.JSON
		if len(schema) == 0 {
			schema = json.RawMessage("{}")
		}
		name := t.ToolSpec.Name
		desc := t.ToolSpec.Description
		tools = append(tools, &types.ToolMemberToolSpec{Value: types.ToolSpecification{
			Name:        &name,
			Description: &desc,
			InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schema)},
		}})
	}
	out := &types.ToolConfiguration{Tools: tools}
	if tc.ToolChoice != nil {
		switch {
		case tc.ToolChoice.Auto != nil:
			out.ToolChoice = &types.ToolChoiceMemberAuto{Value: types.AutoToolChoice{}}
		case tc.ToolChoice.Any != nil:
			out.ToolChoice = &types.ToolChoiceMemberAny{Value: types.AnyToolChoice{}}
		case tc.ToolChoice.Tool != nil:
			name := tc.ToolChoice.Tool.Name
			out.ToolChoice = &types.ToolChoiceMemberTool{Value: types.SpecificToolChoice{Name: &name}}
		}
	}
	return out, nil
}

func fromConverseOutput(out *bedrockruntime.ConverseOutput) (*domain.ConverseResponse, error) {
	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return nil, fmt.Errorf("unexpected converse output shape")
	}
	blocks, err := fromSDKContentBlocks(msg.Value.Content)
	if err != nil {
		return nil, err
	}
	resp := &domain.ConverseResponse{
		Message:    domain.ConverseMessage{Role: string(msg.Value.Role), Content: blocks},
		StopReason: string(out.StopReason),
	}
	if out.Usage != nil {
		resp.Usage = domain.ConverseUsage{
			InputTokens:  int(derefI32(out.Usage.InputTokens)),
			OutputTokens: int(derefI32(out.Usage.OutputTokens)),
		}
		if out.Usage.CacheReadInputTokens != nil {
			resp.Usage.CacheReadInputTokens = int(*out.Usage.CacheReadInputTokens)
		}
		if out.Usage.CacheWriteInputTokens != nil {
			resp.Usage.CacheWriteInputTokens = int(*out.Usage.CacheWriteInputTokens)
		}
	}
	return resp, nil
}

func derefI32(v *int32) int32 {
	if v == nil {
		return 0
	}
	return *v
}

func fromSDKContentBlocks(blocks []types.ContentBlock) ([]domain.ConverseBlock, error) {
	out := make([]domain.ConverseBlock, 0, len(blocks))
	for _, b := range blocks {
		switch v := b.(type) {
		case *types.ContentBlockMemberText:
			out = append(out, domain.ConverseBlock{Text: v.Value})
		case *types.ContentBlockMemberToolUse:
			raw, _ := v.Value.Input.MarshalSmithyDocument()
			out = append(out, domain.ConverseBlock{ToolUse: &domain.ConverseToolUse{
				ToolUseID: derefStr(v.Value.ToolUseId),
				Name:      derefStr(v.Value.Name),
				Input:     raw,
			}})
		case *types.ContentBlockMemberReasoningContent:
			switch r := v.Value.(type) {
			case *types.ReasoningContentBlockMemberReasoningText:
				out = append(out, domain.ConverseBlock{Reasoning: &domain.ConverseReasoning{
					ReasoningText: &domain.ConverseReasoningText{
						Text:      derefStr(r.Value.Text),
						Signature: derefStr(r.Value.Signature),
					},
				}})
			case *types.ReasoningContentBlockMemberRedactedContent:
				out = append(out, domain.ConverseBlock{Reasoning: &domain.ConverseReasoning{RedactedContent: r.Value}})
			}
		}
	}
	return out, nil
}

func derefStr(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

// toFrame adapts one SDK ConverseStreamOutput union member to a domain.BedrockFrame, the boundary
// point for §4.4's stream translation.
func toFrame(event types.ConverseStreamOutput) (domain.BedrockFrame, bool) {
	switch v := event.(type) {
	case *types.ConverseStreamOutputMemberMessageStart:
		return domain.BedrockFrame{Type: domain.FrameMessageStart, Role: string(v.Value.Role)}, true

	case *types.ConverseStreamOutputMemberContentBlockStart:
		f := domain.BedrockFrame{Type: domain.FrameContentBlockStart, Index: int(derefI32(v.Value.ContentBlockIndex))}
		if tu, ok := v.Value.Start.(*types.ContentBlockStartMemberToolUse); ok {
			f.StartToolUseID = derefStr(tu.Value.ToolUseId)
			f.StartToolName = derefStr(tu.Value.Name)
		}
		return f, true

	case *types.ConverseStreamOutputMemberContentBlockDelta:
		f := domain.BedrockFrame{Type: domain.FrameContentBlockDelta, Index: int(derefI32(v.Value.ContentBlockIndex))}
		switch d := v.Value.Delta.(type) {
		case *types.ContentBlockDeltaMemberText:
			f.HasTextDelta, f.DeltaText = true, d.Value
		case *types.ContentBlockDeltaMemberToolUse:
			f.HasToolUseDelta = true
			if d.Value.Input != nil {
				f.DeltaToolUseInput = *d.Value.Input
			}
		case *types.ContentBlockDeltaMemberReasoningContent:
			switch r := d.Value.(type) {
			case *types.ReasoningContentBlockDeltaMemberText:
				f.HasReasoningTextDelta, f.DeltaReasoningText = true, r.Value
			case *types.ReasoningContentBlockDeltaMemberSignature:
				f.HasReasoningSigDelta, f.DeltaReasoningSig = true, r.Value
			case *types.ReasoningContentBlockDeltaMemberRedactedContent:
				f.HasReasoningRedacted, f.DeltaReasoningRedacted = true, r.Value
			}
		}
		return f, true

	case *types.ConverseStreamOutputMemberContentBlockStop:
		return domain.BedrockFrame{Type: domain.FrameContentBlockStop, Index: int(derefI32(v.Value.ContentBlockIndex))}, true

	case *types.ConverseStreamOutputMemberMessageStop:
		return domain.BedrockFrame{Type: domain.FrameMessageStop, StopReason: string(v.Value.StopReason)}, true

	case *types.ConverseStreamOutputMemberMetadata:
		f := domain.BedrockFrame{Type: domain.FrameMetadata}
		if v.Value.Usage != nil {
			f.Usage = domain.ConverseUsage{
				InputTokens:  int(derefI32(v.Value.Usage.InputTokens)),
				OutputTokens: int(derefI32(v.Value.Usage.OutputTokens)),
			}
		}
		return f, true

	case *types.ConverseStreamOutputMemberInternalServerException:
		return exceptionFrame("internal_error", v.Value.ErrorMessage()), true
	case *types.ConverseStreamOutputMemberModelStreamErrorException:
		return exceptionFrame("api_error", v.Value.ErrorMessage()), true
	case *types.ConverseStreamOutputMemberThrottlingException:
		return exceptionFrame("overloaded_error", v.Value.ErrorMessage()), true
	case *types.ConverseStreamOutputMemberValidationException:
		return exceptionFrame("invalid_request_error", v.Value.ErrorMessage()), true

	default:
		return domain.BedrockFrame{}, false
	}
}

func exceptionFrame(kind, message string) domain.BedrockFrame {
	return domain.BedrockFrame{Type: domain.FrameException, ExceptionType: kind, ExceptionMessage: message}
}
