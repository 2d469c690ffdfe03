package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/loresmith/loresmith/ent/messagehistory"
	"github.com/loresmith/loresmith/pkg/agent"
	"github.com/loresmith/loresmith/pkg/models"
)

// ChatMessage handles POST /chat/message: routes the message to an agent
// and records the transcript. Tool execution happens via explicit tool-call
// requests from the client against the chosen agent.
func (s *Server) ChatMessage(c *gin.Context) {
	var req models.ChatMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := currentUser(c)
	decision := s.router.Route(c.Request.Context(), req.Message)
	descriptor, _ := s.registry.Get(decision.Agent)

	if _, err := s.messages.AppendMessage(c.Request.Context(), userID, req.CampaignID,
		messagehistory.RoleUser, string(decision.Agent), req.Message, nil); err != nil {
		respondServiceError(c, err)
		return
	}

	tools := make([]gin.H, 0, len(descriptor.Tools))
	for _, tool := range descriptor.Tools {
		tools = append(tools, gin.H{
			"name":                 tool.Name,
			"description":          tool.Description,
			"requiresConfirmation": tool.RequiresConfirmation,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"agent":      decision.Agent,
		"confidence": decision.Confidence,
		"reason":     decision.Reason,
		"tools":      tools,
	})
}

// toolCallRequest is the body of a structured tool invocation.
type toolCallRequest struct {
	Agent      string          `json:"agent" validate:"required"`
	ToolName   string          `json:"toolName" validate:"required"`
	Args       json.RawMessage `json:"args"`
	ToolCallID string          `json:"toolCallId" validate:"required"`
}

// ToolCall handles POST /chat/tool-call: executes one structured tool call
// against the chosen agent. Mutating tools return a pending result until
// confirmed.
func (s *Server) ToolCall(c *gin.Context) {
	var req toolCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result := s.runtime.Execute(c.Request.Context(), currentUser(c), agent.AgentType(req.Agent), agent.ToolCall{
		ToolName:   req.ToolName,
		Args:       req.Args,
		ToolCallID: req.ToolCallID,
	})
	c.JSON(http.StatusOK, result)
}

// ToolConfirmation handles POST /chat/tool-confirmation: resolves a pending
// mutating tool call.
func (s *Server) ToolConfirmation(c *gin.Context) {
	var req models.ToolConfirmationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result := s.runtime.Confirm(c.Request.Context(), currentUser(c), req.ToolCallID, req.Approved)
	c.JSON(http.StatusOK, result)
}
