// Package agent implements the agent router and tool runtime: user messages
// are routed to one of the registered capability sets, each of which exposes
// a typed tool set dispatched by name. Mutating tools are gated behind an
// explicit confirmation event.
package agent

import (
	"context"
	"encoding/json"
)

// AgentType is the closed enum of routable capability sets.
type AgentType string

const (
	// AgentTypeCampaign manages campaigns and their resources.
	AgentTypeCampaign AgentType = "campaign"

	// AgentTypeFiles manages uploaded files and their metadata.
	AgentTypeFiles AgentType = "files"

	// AgentTypeWorld queries and curates the knowledge graph.
	AgentTypeWorld AgentType = "world"

	// AgentTypeGeneral is the fallback for everything else.
	AgentTypeGeneral AgentType = "general"
)

// ToolHandler executes one tool call for one user.
type ToolHandler func(ctx context.Context, userID string, args json.RawMessage) (any, error)

// ToolDefinition is one registered tool.
type ToolDefinition struct {
	Name        string
	Description string

	// RequiresConfirmation gates execution behind a user confirmation
	// event; the call sits pending until confirmed or rejected.
	RequiresConfirmation bool

	Handler ToolHandler
}

// Descriptor is one registered agent.
type Descriptor struct {
	Type         AgentType
	Description  string
	SystemPrompt string
	Tools        []ToolDefinition
}

// ToolCall is one structured tool invocation.
type ToolCall struct {
	ToolName   string          `json:"toolName"`
	Args       json.RawMessage `json:"args"`
	ToolCallID string          `json:"toolCallId"`
}

// ToolResult is the uniform tool execution outcome.
type ToolResult struct {
	Success    bool   `json:"success"`
	Result     any    `json:"result,omitempty"`
	Error      string `json:"error,omitempty"`
	ToolCallID string `json:"toolCallId"`

	// Pending is true when the call awaits user confirmation.
	Pending bool `json:"pending,omitempty"`
}

// RouteDecision is the router's verdict for one message.
type RouteDecision struct {
	Agent      AgentType `json:"agent"`
	Confidence float64   `json:"confidence"`
	Reason     string    `json:"reason"`
}
