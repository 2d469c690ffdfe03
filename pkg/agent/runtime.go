package agent

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// pendingTTL bounds how long an unconfirmed mutating call stays resumable.
const pendingTTL = 10 * time.Minute

// pendingCall is one mutating tool call awaiting user confirmation.
type pendingCall struct {
	userID    string
	agentType AgentType
	call      ToolCall
	createdAt time.Time
}

// Runtime executes tool calls against the registry. Mutating tools surface
// a pending state and only run on the confirmation event.
type Runtime struct {
	registry *Registry

	mu      sync.Mutex
	pending map[string]*pendingCall // tool call id → call
}

// NewRuntime creates a Runtime.
func NewRuntime(registry *Registry) *Runtime {
	return &Runtime{
		registry: registry,
		pending:  make(map[string]*pendingCall),
	}
}

// Execute runs one tool call for the given agent. Confirmation-gated tools
// return a pending result instead of executing.
func (rt *Runtime) Execute(ctx context.Context, userID string, agentType AgentType, call ToolCall) ToolResult {
	descriptor, ok := rt.registry.Get(agentType)
	if !ok {
		return failure(call.ToolCallID, fmt.Sprintf("unknown agent %q", agentType))
	}
	tool, ok := descriptor.Tool(call.ToolName)
	if !ok {
		return failure(call.ToolCallID, fmt.Sprintf("agent %q has no tool %q", agentType, call.ToolName))
	}

	if tool.RequiresConfirmation {
		rt.mu.Lock()
		rt.prunePendingLocked()
		rt.pending[call.ToolCallID] = &pendingCall{
			userID:    userID,
			agentType: agentType,
			call:      call,
			createdAt: time.Now(),
		}
		rt.mu.Unlock()
		return ToolResult{
			Success:    true,
			Pending:    true,
			Result:     fmt.Sprintf("%s requires confirmation", call.ToolName),
			ToolCallID: call.ToolCallID,
		}
	}

	return rt.run(ctx, userID, tool, call)
}

// Confirm resolves a pending mutating call: approved calls execute,
// rejected ones are dropped. The confirming user must match the caller.
func (rt *Runtime) Confirm(ctx context.Context, userID, toolCallID string, approved bool) ToolResult {
	rt.mu.Lock()
	pc, ok := rt.pending[toolCallID]
	if ok {
		delete(rt.pending, toolCallID)
	}
	rt.mu.Unlock()

	if !ok {
		return failure(toolCallID, "no pending call with that id")
	}
	if pc.userID != userID {
		return failure(toolCallID, "pending call belongs to a different user")
	}
	if time.Since(pc.createdAt) > pendingTTL {
		return failure(toolCallID, "confirmation window expired")
	}
	if !approved {
		return ToolResult{
			Success:    true,
			Result:     "call rejected by user",
			ToolCallID: toolCallID,
		}
	}

	descriptor, ok := rt.registry.Get(pc.agentType)
	if !ok {
		return failure(toolCallID, fmt.Sprintf("unknown agent %q", pc.agentType))
	}
	tool, ok := descriptor.Tool(pc.call.ToolName)
	if !ok {
		return failure(toolCallID, fmt.Sprintf("tool %q no longer registered", pc.call.ToolName))
	}
	return rt.run(ctx, userID, tool, pc.call)
}

// run invokes the handler and normalizes the outcome.
func (rt *Runtime) run(ctx context.Context, userID string, tool *ToolDefinition, call ToolCall) ToolResult {
	result, err := tool.Handler(ctx, userID, call.Args)
	if err != nil {
		return failure(call.ToolCallID, err.Error())
	}
	return ToolResult{
		Success:    true,
		Result:     result,
		ToolCallID: call.ToolCallID,
	}
}

// prunePendingLocked drops expired pending calls. Caller holds mu.
func (rt *Runtime) prunePendingLocked() {
	cutoff := time.Now().Add(-pendingTTL)
	for id, pc := range rt.pending {
		if pc.createdAt.Before(cutoff) {
			delete(rt.pending, id)
		}
	}
}

func failure(toolCallID, message string) ToolResult {
	return ToolResult{
		Success:    false,
		Error:      message,
		ToolCallID: toolCallID,
	}
}
