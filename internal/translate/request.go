// Package translate implements the Request Translator, Response Translator, and Stream Translator
// components: pure functions (plus the stream translator's bookkeeping state) converting between
// the Anthropic Messages wire shape and the Bedrock Converse wire shape.
package translate

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"anthrogate/internal/domain"
	"anthrogate/internal/resolve"
)

// Resolver is the subset of the Model-ID Resolver the translator consults.
type Resolver interface {
	Resolve(anthropicID string) string
}

// BuildConverseRequest implements §4.2: translate a validated MessageRequest into a Bedrock
// Converse request, resolving the model and branching on model family for thinking/top_k/cache
// handling.
func BuildConverseRequest(resolver Resolver, req *domain.MessageRequest) (*domain.ConverseRequest, domain.ModelFamily, error) {
	if req.MaxTokens <= 0 {
		return nil, "", domain.NewError(domain.ErrInvalidRequest, "max_tokens must be a positive integer", nil)
	}

	backendID := resolver.Resolve(req.Model)
	family := resolve.Family(backendID)

	out := &domain.ConverseRequest{ModelID: backendID}

	if req.System != nil {
		sysBlocks, err := req.System.Blocks()
		if err != nil {
			return nil, "", domain.NewError(domain.ErrInvalidRequest, "invalid system prompt", err)
		}
		out.System = translateSystemBlocks(sysBlocks, family)
	}

	seenToolUseIDs := make(map[string]bool)
	messages := make([]domain.ConverseMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		blocks, err := m.Blocks()
		if err != nil {
			return nil, "", domain.NewError(domain.ErrInvalidRequest, "invalid message content", err)
		}
		cm := domain.ConverseMessage{Role: string(m.Role)}
		for _, b := range blocks {
			if b.Type == domain.BlockToolUse {
				seenToolUseIDs[b.ID] = true
			}
			if b.Type == domain.BlockToolResult {
				if !seenToolUseIDs[b.ToolUseID] {
					return nil, "", domain.NewError(domain.ErrInvalidRequest,
						fmt.Sprintf("tool_result references unknown tool_use_id %q", b.ToolUseID), nil)
				}
			}
			cb, err := translateBlock(b, family)
			if err != nil {
				return nil, "", err
			}
			cm.Content = append(cm.Content, cb...)
		}
		messages = append(messages, cm)
	}
	out.Messages = messages

	ic := &domain.InferenceConfig{
		MaxTokens:     intPtr(req.MaxTokens),
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		StopSequences: req.StopSequences,
	}
	out.InferenceConfig = ic

	if req.TopK != nil && familyAcceptsTopK(family) {
		setAdditional(out, "top_k", *req.TopK)
	}

	if len(req.Tools) > 0 {
		tc, err := buildToolConfig(req.Tools, req.ToolChoice)
		if err != nil {
			return nil, "", err
		}
		out.ToolConfig = tc
	}

	if req.Thinking != nil && req.Thinking.Type == domain.ThinkingEnabled {
		applyThinking(out, family, req.Thinking.BudgetTokens)
	}

	for _, beta := range req.AnthropicBeta {
		if mapped, ok := mapBetaHeader(beta); ok {
			setAdditional(out, mapped, true)
		}
	}

	if req.ServiceTier != "" {
		out.ServiceTier = req.ServiceTier
	}

	return out, family, nil
}

func setAdditional(out *domain.ConverseRequest, key string, value any) {
	if out.AdditionalModelRequestFields == nil {
		out.AdditionalModelRequestFields = make(map[string]any)
	}
	out.AdditionalModelRequestFields[key] = value
}

func intPtr(v int) *int { return &v }

func familyAcceptsTopK(family domain.ModelFamily) bool {
	// Nova-2-reasoning rejects inferenceConfig knobs outright when reasoning is enabled (§4.2
	// step 7) but top_k is an independent, non-reasoning concern; Claude and plain Nova accept
	// it via additionalModelRequestFields, "other" families are assumed not to.
	return family == domain.FamilyClaude || family == domain.FamilyNovaReasoning
}

// applyThinking implements §4.2 step 7.
func applyThinking(out *domain.ConverseRequest, family domain.ModelFamily, budget int) {
	switch family {
	case domain.FamilyClaude:
		setAdditional(out, "thinking", map[string]any{
			"type":          "enabled",
			"budget_tokens": budget,
		})
	case domain.FamilyNovaReasoning:
		effort := reasoningEffort(budget)
		setAdditional(out, "reasoningConfig", map[string]any{
			"type":               "enabled",
			"maxReasoningEffort": effort,
		})
		if out.InferenceConfig != nil {
			out.InferenceConfig.Temperature = nil
			out.InferenceConfig.MaxTokens = nil
		}
	default:
		// other families: drop thinking silently.
	}
}

// reasoningEffort maps a budget_tokens value to Nova's low/medium/high tier, per §4.2 step 7 and
// tested directly by SPEC_FULL.md §8's budget_tokens=5000 ⇒ "medium" boundary behavior. Not
// present in the teacher's bedrock_nova.go (no reasoningConfig/maxReasoningEffort/budget
// references there); authored fresh from the stated thresholds.
func reasoningEffort(budget int) string {
	switch {
	case budget < 1000:
		return "low"
	case budget <= 10000:
		return "medium"
	default:
		return "high"
	}
}

func translateSystemBlocks(blocks []domain.ContentBlock, family domain.ModelFamily) []domain.ConverseBlock {
	out := make([]domain.ConverseBlock, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, domain.ConverseBlock{Text: b.Text})
		if b.CacheControl != nil && family == domain.FamilyClaude {
			out = append(out, domain.ConverseBlock{CachePoint: &domain.ConverseCachePoint{Type: "default"}})
		}
	}
	return out
}

// translateBlock is the per-variant translation table of §3/§4.2 step 4.
func translateBlock(b domain.ContentBlock, family domain.ModelFamily) ([]domain.ConverseBlock, error) {
	var out domain.ConverseBlock
	switch b.Type {
	case domain.BlockText:
		out = domain.ConverseBlock{Text: b.Text}
	case domain.BlockImage:
		format, err := mediaTypeToFormat(b.Source)
		if err != nil {
			return nil, err
		}
		data, err := decodeSource(b.Source)
		if err != nil {
			return nil, err
		}
		out = domain.ConverseBlock{Image: &domain.ConverseImage{Format: format, Source: domain.ConverseByteSource{Bytes: data}}}
	case domain.BlockDocument:
		format, err := mediaTypeToFormat(b.Source)
		if err != nil {
			return nil, err
		}
		data, err := decodeSource(b.Source)
		if err != nil {
			return nil, err
		}
		name := ""
		if b.Source != nil {
			name = b.Source.Name
		}
		out = domain.ConverseBlock{Document: &domain.ConverseDocument{Format: format, Name: name, Source: domain.ConverseByteSource{Bytes: data}}}
	case domain.BlockToolUse:
		input := b.Input
		if len(input) == 0 {
			input = json.RawMessage("{}")
		}
		out = domain.ConverseBlock{ToolUse: &domain.ConverseToolUse{ToolUseID: b.ID, Name: b.Name, Input: input}}
	case domain.BlockToolResult:
		blocks, err := b.ToolResultContentBlocks()
		if err != nil {
			return nil, domain.NewError(domain.ErrInvalidRequest, "invalid tool_result content", err)
		}
		content := make([]domain.ConverseBlock, 0, len(blocks))
		for _, inner := range blocks {
			cb, err := translateBlock(inner, family)
			if err != nil {
				return nil, err
			}
			content = append(content, cb...)
		}
		status := "success"
		if b.IsError {
			status = "error"
		}
		out = domain.ConverseBlock{ToolResult: &domain.ConverseToolResult{ToolUseID: b.ToolUseID, Content: content, Status: status}}
	case domain.BlockThinking:
		out = domain.ConverseBlock{Reasoning: &domain.ConverseReasoning{
			ReasoningText: &domain.ConverseReasoningText{Text: b.Thinking, Signature: b.Signature},
		}}
	case domain.BlockRedactedThinking:
		data, err := base64.StdEncoding.DecodeString(b.Data)
		if err != nil {
			return nil, domain.NewError(domain.ErrInvalidRequest, "invalid redacted_thinking data", err)
		}
		out = domain.ConverseBlock{Reasoning: &domain.ConverseReasoning{RedactedContent: data}}
	default:
		return nil, domain.NewError(domain.ErrInvalidRequest, fmt.Sprintf("unknown content block type %q", b.Type), nil)
	}

	result := []domain.ConverseBlock{out}
	if b.CacheControl != nil && family == domain.FamilyClaude {
		result = append(result, domain.ConverseBlock{CachePoint: &domain.ConverseCachePoint{Type: "default"}})
	}
	return result, nil
}

var mediaTypeFormats = map[string]string{
	"image/png":             "png",
	"image/jpeg":             "jpeg",
	"image/gif":              "gif",
	"image/webp":             "webp",
	"application/pdf":        "pdf",
	"text/csv":               "csv",
	"application/msword":     "doc",
	"text/plain":              "txt",
	"text/html":               "html",
	"text/markdown":           "md",
}

func mediaTypeToFormat(src *domain.Source) (string, error) {
	if src == nil {
		return "", domain.NewError(domain.ErrInvalidRequest, "missing source for image/document block", nil)
	}
	format, ok := mediaTypeFormats[src.MediaType]
	if !ok {
		return "", domain.NewError(domain.ErrInvalidRequest, fmt.Sprintf("unrecognized media_type %q", src.MediaType), nil)
	}
	return format, nil
}

func decodeSource(src *domain.Source) ([]byte, error) {
	if src == nil {
		return nil, domain.NewError(domain.ErrInvalidRequest, "missing source", nil)
	}
	data, err := base64.StdEncoding.DecodeString(src.Data)
	if err != nil {
		return nil, domain.NewError(domain.ErrInvalidRequest, "invalid base64 source data", err)
	}
	return data, nil
}

func buildToolConfig(tools []domain.ToolDef, choice *domain.ToolChoice) (*domain.ToolConfig, error) {
	if choice != nil && choice.Type == domain.ToolChoiceNone {
		return nil, nil
	}
	converseTools := make([]domain.ConverseTool, 0, len(tools))
	for _, t := range tools {
		if len(t.InputSchema) > 0 {
			loader := gojsonschema.NewBytesLoader(t.InputSchema)
			if _, err := gojsonschema.NewSchema(loader); err != nil {
				return nil, domain.NewError(domain.ErrInvalidRequest,
					fmt.Sprintf("tool %q has a malformed input_schema", t.Name), err)
			}
		}
		converseTools = append(converseTools, domain.ConverseTool{
			ToolSpec: domain.ConverseToolSpec{
				Name:        t.Name,
				Description: t.Description,
				InputSchema: domain.ConverseSchema{JSON: t.InputSchema},
			},
		})
	}

	tc := &domain.ToolConfig{Tools: converseTools}
	if choice == nil {
		return tc, nil
	}
	switch choice.Type {
	case domain.ToolChoiceAuto:
		tc.ToolChoice = &domain.ConverseChoice{Auto: &struct{}{}}
	case domain.ToolChoiceAny:
		tc.ToolChoice = &domain.ConverseChoice{Any: &struct{}{}}
	case domain.ToolChoiceTool:
		tc.ToolChoice = &domain.ConverseChoice{Tool: &domain.ConverseToolRef{Name: choice.Name}}
	}
	return tc, nil
}
