package config

import "time"

// ExtractionConfig controls the entity-extraction pipeline.
type ExtractionConfig struct {
	// MaxAttempts is the task-level retry budget (exponential backoff
	// between attempts: 2s, 4s, 8s).
	MaxAttempts int `yaml:"max_attempts"`

	// RetryBaseDelay seeds the task-level exponential backoff.
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`

	// ChunkSize is the number of AI-search results requested per chunk.
	ChunkSize int `yaml:"chunk_size"`

	// MaxChunks is how many chunks are requested before giving up.
	MaxChunks int `yaml:"max_chunks"`

	// ChunkDelay is the pause between consecutive chunk requests.
	ChunkDelay time.Duration `yaml:"chunk_delay"`
}

// DefaultExtractionConfig returns the built-in extraction defaults.
func DefaultExtractionConfig() *ExtractionConfig {
	return &ExtractionConfig{
		MaxAttempts:    3,
		RetryBaseDelay: 2 * time.Second,
		ChunkSize:      5,
		MaxChunks:      2,
		ChunkDelay:     5 * time.Second,
	}
}

// AISearchConfig configures the external AI search ("AutoRAG") endpoint.
type AISearchConfig struct {
	// BaseURL of the AI search service.
	BaseURL string `yaml:"base_url"`

	// APIKeyEnv names the environment variable holding the service key.
	APIKeyEnv string `yaml:"api_key_env"`

	// Timeout bounds a single search request.
	Timeout time.Duration `yaml:"timeout"`

	// TimeoutRetryDelays is the per-chunk retry schedule after timeouts.
	TimeoutRetryDelays []time.Duration `yaml:"timeout_retry_delays"`

	// CapacityRetryDelays is the per-chunk retry schedule after capacity errors.
	CapacityRetryDelays []time.Duration `yaml:"capacity_retry_delays"`

	// BreakerFailureThreshold is the consecutive-failure count that trips
	// the circuit breaker.
	BreakerFailureThreshold uint32 `yaml:"breaker_failure_threshold"`

	// BreakerOpenTimeout is how long the breaker stays open before a probe.
	BreakerOpenTimeout time.Duration `yaml:"breaker_open_timeout"`
}

// DefaultAISearchConfig returns the built-in AI search defaults.
func DefaultAISearchConfig() *AISearchConfig {
	return &AISearchConfig{
		APIKeyEnv:               "AUTORAG_API_KEY",
		Timeout:                 30 * time.Second,
		TimeoutRetryDelays:      []time.Duration{3 * time.Second, 6 * time.Second, 12 * time.Second},
		CapacityRetryDelays:     []time.Duration{10 * time.Second, 20 * time.Second, 40 * time.Second},
		BreakerFailureThreshold: 5,
		BreakerOpenTimeout:      30 * time.Second,
	}
}
