package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loresmith/loresmith/pkg/llm"
)

type fakeLLM struct {
	response string
	err      error
	lastReq  llm.CompletionRequest
}

func (f *fakeLLM) Complete(_ context.Context, req llm.CompletionRequest) (string, error) {
	f.lastReq = req
	return f.response, f.err
}

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	registry, err := NewRegistry(
		AgentTypeGeneral,
		&Descriptor{Type: AgentTypeCampaign, Description: "campaigns"},
		&Descriptor{Type: AgentTypeWorld, Description: "world graph"},
		&Descriptor{Type: AgentTypeGeneral, Description: "everything else"},
	)
	require.NoError(t, err)
	return registry
}

func TestRoute_ParsesDecision(t *testing.T) {
	fake := &fakeLLM{response: "campaign|0.92|user wants to create a campaign"}
	router := NewRouter(fake, testRegistry(t))

	decision := router.Route(context.Background(), "make me a new campaign")

	assert.Equal(t, AgentTypeCampaign, decision.Agent)
	assert.InDelta(t, 0.92, decision.Confidence, 1e-9)
	assert.Equal(t, "user wants to create a campaign", decision.Reason)
	// Routing is deterministic: temperature 0.
	assert.Zero(t, fake.lastReq.Temperature)
}

func TestRoute_UnregisteredAgentFallsBack(t *testing.T) {
	fake := &fakeLLM{response: "payments|0.99|unrelated"}
	router := NewRouter(fake, testRegistry(t))

	decision := router.Route(context.Background(), "hello")
	assert.Equal(t, AgentTypeGeneral, decision.Agent)
}

func TestRoute_ErrorsFallBack(t *testing.T) {
	tests := []struct {
		name string
		fake *fakeLLM
	}{
		{"llm error", &fakeLLM{err: errors.New("boom")}},
		{"garbage response", &fakeLLM{response: "I think the campaign agent fits best."}},
		{"confidence out of range", &fakeLLM{response: "campaign|7|sure"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := NewRouter(tt.fake, testRegistry(t))
			decision := router.Route(context.Background(), "hi")
			assert.Equal(t, AgentTypeGeneral, decision.Agent)
		})
	}
}

func TestRoute_NilLLMUsesDefault(t *testing.T) {
	router := NewRouter(nil, testRegistry(t))
	assert.Equal(t, AgentTypeGeneral, router.Route(context.Background(), "hi").Agent)
}

func TestParseRouteResponse_MultilineAndCase(t *testing.T) {
	decision, ok := parseRouteResponse("Here you go:\nWORLD|0.5|graph question\n")
	require.True(t, ok)
	assert.Equal(t, AgentTypeWorld, decision.Agent)
}
