package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/loresmith/loresmith/pkg/llm"
)

// Router picks the agent for a user message with a single temperature-0
// LLM call.
type Router struct {
	llm      llm.Client
	registry *Registry
}

// NewRouter creates a Router. A nil LLM client routes everything to the
// default agent.
func NewRouter(llmClient llm.Client, registry *Registry) *Router {
	return &Router{llm: llmClient, registry: registry}
}

// Route decides which agent handles the message. Any failure — no LLM,
// malformed response, unregistered agent — falls back to the default agent
// rather than erroring.
func (r *Router) Route(ctx context.Context, message string) RouteDecision {
	fallback := RouteDecision{
		Agent:      r.registry.Default().Type,
		Confidence: 0,
		Reason:     "fallback to default agent",
	}
	if r.llm == nil {
		return fallback
	}

	response, err := r.llm.Complete(ctx, llm.CompletionRequest{
		System:      routerSystemPrompt,
		Prompt:      r.buildPrompt(message),
		Temperature: 0,
		MaxTokens:   100,
	})
	if err != nil {
		slog.Warn("Agent routing call failed, using default", "error", err)
		return fallback
	}

	decision, ok := parseRouteResponse(response)
	if !ok {
		slog.Warn("Unparseable routing response, using default", "response", response)
		return fallback
	}
	if _, registered := r.registry.Get(decision.Agent); !registered {
		slog.Warn("Router chose unregistered agent, using default", "agent", decision.Agent)
		return fallback
	}
	return decision
}

const routerSystemPrompt = "You route user messages to the best-suited agent. " +
	"Respond with exactly one line: agent|confidence|reason, where confidence is 0-1."

func (r *Router) buildPrompt(message string) string {
	var b strings.Builder
	b.WriteString("Agents:\n")
	for _, t := range r.registry.Types() {
		d, _ := r.registry.Get(t)
		fmt.Fprintf(&b, "%s: %s\n", t, d.Description)
	}
	b.WriteString("\nUser message:\n")
	b.WriteString(message)
	return b.String()
}

// parseRouteResponse parses "agent|confidence|reason", tolerating
// surrounding whitespace and extra lines.
func parseRouteResponse(response string) (RouteDecision, bool) {
	for _, line := range strings.Split(strings.TrimSpace(response), "\n") {
		parts := strings.SplitN(strings.TrimSpace(line), "|", 3)
		if len(parts) < 2 {
			continue
		}
		confidence, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil || confidence < 0 || confidence > 1 {
			continue
		}
		decision := RouteDecision{
			Agent:      AgentType(strings.TrimSpace(strings.ToLower(parts[0]))),
			Confidence: confidence,
		}
		if len(parts) == 3 {
			decision.Reason = strings.TrimSpace(parts[2])
		}
		return decision, true
	}
	return RouteDecision{}, false
}
