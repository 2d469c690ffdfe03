package extraction

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAIResponse_PlainObject(t *testing.T) {
	parsed, err := ParseAIResponse(`{"monster":[{"name":"Goblin"}],"meta":{"source":"doc"}}`)
	require.NoError(t, err)

	assert.Len(t, parsed.Items["monster"], 1)
	assert.Equal(t, "Goblin", parsed.Items["monster"][0]["name"])
	assert.Equal(t, "doc", parsed.Meta["source"])
	assert.Empty(t, parsed.UnknownKeys)
}

func TestParseAIResponse_CodeFences(t *testing.T) {
	raw := "Here is the structured content you asked for:\n```json\n" +
		`{"npc":[{"name":"Lady Moira"}]}` + "\n```\nLet me know if you need more."
	parsed, err := ParseAIResponse(raw)
	require.NoError(t, err)
	assert.Len(t, parsed.Items["npc"], 1)
}

func TestParseAIResponse_SurroundingProse(t *testing.T) {
	parsed, err := ParseAIResponse(`The results follow. {"spell":[{"name":"Fireball"}]} Thanks!`)
	require.NoError(t, err)
	assert.Len(t, parsed.Items["spell"], 1)
}

func TestParseAIResponse_UnknownKeysCollected(t *testing.T) {
	parsed, err := ParseAIResponse(`{"monster":[],"weapon":[{"name":"Sword"}]}`)
	require.NoError(t, err)
	assert.Empty(t, parsed.Items)
	assert.Equal(t, []string{"weapon"}, parsed.UnknownKeys)
}

func TestParseAIResponse_EmptyCustomArray(t *testing.T) {
	parsed, err := ParseAIResponse(`{"custom":[]}`)
	require.NoError(t, err)
	assert.Zero(t, parsed.TotalItems())
	assert.Empty(t, parsed.UnknownKeys)
}

func TestParseAIResponse_NoObject(t *testing.T) {
	_, err := ParseAIResponse("no structured content here")
	assert.Error(t, err)
}

func TestParseAIResponse_RoundTrip(t *testing.T) {
	// parse(stringify(structured)) = structured for valid content.
	structured := map[string]any{
		"monster": []any{map[string]any{"name": "Goblin", "cr": 0.25}},
		"location": []any{
			map[string]any{"name": "Blackwood Keep"},
			map[string]any{"name": "The Sunken Vault"},
		},
	}
	raw, err := json.Marshal(structured)
	require.NoError(t, err)

	parsed, err := ParseAIResponse(string(raw))
	require.NoError(t, err)

	assert.Equal(t, "Goblin", parsed.Items["monster"][0]["name"])
	assert.Equal(t, 0.25, parsed.Items["monster"][0]["cr"])
	require.Len(t, parsed.Items["location"], 2)
	assert.Equal(t, "Blackwood Keep", parsed.Items["location"][0]["name"])
}
