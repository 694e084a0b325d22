package domain

import "encoding/json"

// ModelFamily is the model-family classification §4.2 step 2 branches on.
type ModelFamily string

const (
	FamilyClaude        ModelFamily = "claude"
	FamilyNovaReasoning  ModelFamily = "nova-2-reasoning"
	FamilyOther          ModelFamily = "other"
)

// ConverseRequest mirrors the Bedrock Converse request shape (§3 "Bedrock request (internal)").
// It is what the Request Translator produces and the Backend Invoker sends; it is kept as a plain
// struct here (rather than the AWS SDK's own types) so the translator stays a pure function the
// invoker adapts at its boundary — the teacher's bedrock_anthropic.go does the inverse (building
// SDK types directly in the translator), but keeping translation SDK-agnostic makes the property
// tests in §8 independent of the SDK's type churn.
type ConverseRequest struct {
	ModelID                         string                 `json:"modelId"`
	Messages                        []ConverseMessage      `json:"messages"`
	System                          []ConverseBlock        `json:"system,omitempty"`
	InferenceConfig                 *InferenceConfig       `json:"inferenceConfig,omitempty"`
	ToolConfig                      *ToolConfig            `json:"toolConfig,omitempty"`
	AdditionalModelRequestFields    map[string]any         `json:"additionalModelRequestFields,omitempty"`
	AdditionalModelResponseFieldPaths []string             `json:"additionalModelResponseFieldPaths,omitempty"`
	ServiceTier                     string                 `json:"serviceTier,omitempty"`
}

// ConverseMessage is one Bedrock message (role + content blocks).
type ConverseMessage struct {
	Role    string           `json:"role"`
	Content []ConverseBlock  `json:"content"`
}

// ConverseBlock is the Bedrock block taxonomy of §3. Only the fields relevant to the populated
// variant are set.
type ConverseBlock struct {
	Text       string              `json:"text,omitempty"`
	Image      *ConverseImage      `json:"image,omitempty"`
	Document   *ConverseDocument   `json:"document,omitempty"`
	ToolUse    *ConverseToolUse    `json:"toolUse,omitempty"`
	ToolResult *ConverseToolResult `json:"toolResult,omitempty"`
	Reasoning  *ConverseReasoning  `json:"reasoningContent,omitempty"`
	CachePoint *ConverseCachePoint `json:"cachePoint,omitempty"`
}

type ConverseImage struct {
	Format string            `json:"format"`
	Source ConverseByteSource `json:"source"`
}

type ConverseDocument struct {
	Format string            `json:"format"`
	Name   string            `json:"name,omitempty"`
	Source ConverseByteSource `json:"source"`
}

type ConverseByteSource struct {
	Bytes []byte `json:"bytes"`
}

type ConverseToolUse struct {
	ToolUseID string          `json:"toolUseId"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
}

type ConverseToolResult struct {
	ToolUseID string          `json:"toolUseId"`
	Content   []ConverseBlock `json:"content"`
	Status    string          `json:"status"` // "success" | "error"
}

// ConverseReasoning carries either a reasoningText pair or a redacted blob, mirroring the two
// reasoningContent variants of §3.
type ConverseReasoning struct {
	ReasoningText    *ConverseReasoningText `json:"reasoningText,omitempty"`
	RedactedContent  []byte                 `json:"redactedContent,omitempty"`
}

type ConverseReasoningText struct {
	Text      string `json:"text"`
	Signature string `json:"signature,omitempty"`
}

type ConverseCachePoint struct {
	Type string `json:"type"` // "default"
}

// InferenceConfig is the Converse inferenceConfig block.
type InferenceConfig struct {
	MaxTokens     *int     `json:"maxTokens,omitempty"`
	Temperature   *float64 `json:"temperature,omitempty"`
	TopP          *float64 `json:"topP,omitempty"`
	StopSequences []string `json:"stopSequences,omitempty"`
}

// ToolConfig is the Converse toolConfig block.
type ToolConfig struct {
	Tools      []ConverseTool    `json:"tools"`
	ToolChoice *ConverseChoice   `json:"toolChoice,omitempty"`
}

type ConverseTool struct {
	ToolSpec ConverseToolSpec `json:"toolSpec"`
}

type ConverseToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema ConverseSchema `json:"inputSchema"`
}

type ConverseSchema struct {
	JSON json.RawMessage `json:"json"`
}

// ConverseChoice is the Bedrock toolChoice variant: exactly one of Auto/Any/Tool is set.
type ConverseChoice struct {
	Auto *struct{}       `json:"auto,omitempty"`
	Any  *struct{}       `json:"any,omitempty"`
	Tool *ConverseToolRef `json:"tool,omitempty"`
}

type ConverseToolRef struct {
	Name string `json:"name"`
}

// ConverseResponse mirrors a unary Converse response.
type ConverseResponse struct {
	Message    ConverseMessage `json:"message"`
	StopReason string          `json:"stopReason"`
	Usage      ConverseUsage   `json:"usage"`
}

type ConverseUsage struct {
	InputTokens          int `json:"inputTokens"`
	OutputTokens         int `json:"outputTokens"`
	CacheReadInputTokens int `json:"cacheReadInputTokens,omitempty"`
	CacheWriteInputTokens int `json:"cacheWriteInputTokens,omitempty"`
}
