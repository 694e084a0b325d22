// Package domain holds the wire-level types shared by the translator, the pipeline, and the
// HTTP surface: the Anthropic-shaped request/response types and their Bedrock Converse
// counterparts.
package domain

import "encoding/json"

// Role is the speaker of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockType tags a ContentBlock variant.
type BlockType string

const (
	BlockText             BlockType = "text"
	BlockImage            BlockType = "image"
	BlockDocument         BlockType = "document"
	BlockToolUse          BlockType = "tool_use"
	BlockToolResult       BlockType = "tool_result"
	BlockThinking         BlockType = "thinking"
	BlockRedactedThinking BlockType = "redacted_thinking"
)

// CacheControl marks a content block as a cacheable prefix boundary.
type CacheControl struct {
	Type string `json:"type"`
}

// Source is the payload carried by an image or document block.
type Source struct {
	Type      string `json:"type"` // "base64"
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
	Name      string `json:"name,omitempty"`
}

// ContentBlock is a tagged variant over the block shapes named in the data model. Only the
// fields relevant to Type are populated; translation code is total over Type.
type ContentBlock struct {
	Type BlockType `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// image / document
	Source *Source `json:"source,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"` // string or []ContentBlock
	IsError   bool            `json:"is_error,omitempty"`

	// thinking / redacted_thinking
	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`
	Data      string `json:"data,omitempty"`

	CacheControl *CacheControl `json:"cache_control,omitempty"`
}

// ToolResultContentBlocks parses Content as a block sequence, wrapping a bare string as a single
// text block. Used by the request translator when folding tool_result into Bedrock content.
func (b *ContentBlock) ToolResultContentBlocks() ([]ContentBlock, error) {
	if len(b.Content) == 0 {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(b.Content, &s); err == nil {
		return []ContentBlock{{Type: BlockText, Text: s}}, nil
	}
	var blocks []ContentBlock
	if err := json.Unmarshal(b.Content, &blocks); err != nil {
		return nil, err
	}
	return blocks, nil
}

// Message is one turn of the conversation. Content is either a bare string (marshaled/unmarshaled
// via MessageContent) or an ordered sequence of ContentBlock.
type Message struct {
	Role    Role            `json:"role"`
	Content json.RawMessage `json:"content"`
}

// Blocks normalizes Content into a block sequence, per §4.2 step 4: a bare string becomes a
// single text block.
func (m *Message) Blocks() ([]ContentBlock, error) {
	var s string
	if err := json.Unmarshal(m.Content, &s); err == nil {
		return []ContentBlock{{Type: BlockText, Text: s}}, nil
	}
	var blocks []ContentBlock
	if err := json.Unmarshal(m.Content, &blocks); err != nil {
		return nil, err
	}
	return blocks, nil
}

// ToolChoiceKind tags the tool_choice variant.
type ToolChoiceKind string

const (
	ToolChoiceAuto ToolChoiceKind = "auto"
	ToolChoiceAny  ToolChoiceKind = "any"
	ToolChoiceTool ToolChoiceKind = "tool"
	ToolChoiceNone ToolChoiceKind = "none"
)

// ToolChoice selects how the model must use tools.
type ToolChoice struct {
	Type ToolChoiceKind `json:"type"`
	Name string         `json:"name,omitempty"`
}

// UnmarshalJSON accepts the degenerate forms {"type":"auto"} as well as a bare string "auto" for
// leniency, matching how Anthropic SDKs have historically serialized this field.
func (t *ToolChoice) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		t.Type = ToolChoiceKind(s)
		return nil
	}
	type alias ToolChoice
	return json.Unmarshal(data, (*alias)(t))
}

// ToolDef is a tool the model may call.
type ToolDef struct {
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	InputSchema  json.RawMessage `json:"input_schema"`
	CacheControl *CacheControl   `json:"cache_control,omitempty"`
}

// ThinkingMode tags the thinking variant.
type ThinkingMode string

const (
	ThinkingDisabled ThinkingMode = "disabled"
	ThinkingEnabled  ThinkingMode = "enabled"
)

// ThinkingConfig is the extended-thinking request toggle.
type ThinkingConfig struct {
	Type         ThinkingMode `json:"type"`
	BudgetTokens int          `json:"budget_tokens,omitempty"`
}

// SystemPrompt holds either a bare string or an ordered sequence of text blocks, per §3.
type SystemPrompt struct {
	Raw json.RawMessage
}

func (s *SystemPrompt) UnmarshalJSON(data []byte) error {
	s.Raw = append([]byte(nil), data...)
	return nil
}

func (s SystemPrompt) MarshalJSON() ([]byte, error) {
	if s.Raw == nil {
		return []byte("null"), nil
	}
	return s.Raw, nil
}

// Blocks normalizes the system prompt into a text-block sequence.
func (s SystemPrompt) Blocks() ([]ContentBlock, error) {
	if len(s.Raw) == 0 || string(s.Raw) == "null" {
		return nil, nil
	}
	var str string
	if err := json.Unmarshal(s.Raw, &str); err == nil {
		if str == "" {
			return nil, nil
		}
		return []ContentBlock{{Type: BlockText, Text: str}}, nil
	}
	var blocks []ContentBlock
	if err := json.Unmarshal(s.Raw, &blocks); err != nil {
		return nil, err
	}
	return blocks, nil
}

// MessageRequest is the inbound Anthropic-shaped request body for POST /v1/messages.
type MessageRequest struct {
	Model         string          `json:"model"`
	MaxTokens     int             `json:"max_tokens"`
	Messages      []Message       `json:"messages"`
	System        *SystemPrompt   `json:"system,omitempty"`
	Temperature   *float64        `json:"temperature,omitempty"`
	TopP          *float64        `json:"top_p,omitempty"`
	TopK          *int            `json:"top_k,omitempty"`
	StopSequences []string        `json:"stop_sequences,omitempty"`
	Stream        bool            `json:"stream,omitempty"`
	Tools         []ToolDef       `json:"tools,omitempty"`
	ToolChoice    *ToolChoice     `json:"tool_choice,omitempty"`
	Thinking      *ThinkingConfig `json:"thinking,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	AnthropicBeta []string        `json:"anthropic_beta,omitempty"`

	// ServiceTier is not part of the Anthropic wire body proper in every client, but the
	// Authenticator may attach a per-key override (§4.6); the orchestrator reads it here.
	ServiceTier string `json:"service_tier,omitempty"`
}

// StopReason is the terminal reason a message stopped generating.
type StopReason string

const (
	StopEndTurn      StopReason = "end_turn"
	StopMaxTokens    StopReason = "max_tokens"
	StopSequenceStop StopReason = "stop_sequence"
	StopToolUse      StopReason = "tool_use"
	StopPauseTurn    StopReason = "pause_turn"
)

// Usage mirrors Anthropic's usage accounting block.
type Usage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens,omitempty"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens,omitempty"`
}

// MessageResponse is the outbound unary Anthropic-shaped response body.
type MessageResponse struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Role         Role           `json:"role"`
	Model        string         `json:"model"`
	Content      []ContentBlock `json:"content"`
	StopReason   StopReason     `json:"stop_reason"`
	StopSequence *string        `json:"stop_sequence,omitempty"`
	Usage        Usage          `json:"usage"`
}
