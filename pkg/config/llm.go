package config

import "time"

// LLMConfig configures the Anthropic client used for agent routing and
// community summaries.
type LLMConfig struct {
	// Model is the Anthropic model identifier.
	Model string `yaml:"model"`

	// APIKeyEnv names the environment variable holding the API key.
	// An empty resolved key disables summary generation (rebuilds still run).
	APIKeyEnv string `yaml:"api_key_env"`

	// Timeout bounds one completion call.
	Timeout time.Duration `yaml:"timeout"`

	// SummaryTemperature and SummaryMaxTokens are used for community
	// summary generation.
	SummaryTemperature float64 `yaml:"summary_temperature"`
	SummaryMaxTokens   int     `yaml:"summary_max_tokens"`
}

// DefaultLLMConfig returns the built-in LLM defaults.
func DefaultLLMConfig() *LLMConfig {
	return &LLMConfig{
		Model:              "claude-sonnet-4-5",
		APIKeyEnv:          "ANTHROPIC_API_KEY",
		Timeout:            60 * time.Second,
		SummaryTemperature: 0.3,
		SummaryMaxTokens:   2000,
	}
}
