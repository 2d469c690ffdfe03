package config

import "time"

// RebuildConfig controls the graph rebuild orchestrator.
type RebuildConfig struct {
	// ImpactThreshold is the accumulated impact score that triggers a
	// rebuild. Ops-tunable; the default matches the seed scenario suite.
	ImpactThreshold float64 `yaml:"impact_threshold"`

	// PartialMaxAffected is the largest distinct-affected-entity count that
	// still schedules a partial rebuild; anything larger goes full. Zero
	// disables partial rebuilds entirely (every trigger goes full), which
	// is the default until ops opts in.
	PartialMaxAffected int `yaml:"partial_max_affected"`

	// MaxAttempts is the rebuild retry budget (2s/4s/8s backoff); after
	// that the rebuild is dead-lettered.
	MaxAttempts int `yaml:"max_attempts"`

	// RetryBaseDelay seeds the rebuild retry backoff.
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`

	// SummariesEnabled turns LLM community summaries on or off. Summaries
	// additionally require a resolvable LLM API key.
	SummariesEnabled bool `yaml:"summaries_enabled"`
}

// DefaultRebuildConfig returns the built-in rebuild defaults.
func DefaultRebuildConfig() *RebuildConfig {
	return &RebuildConfig{
		ImpactThreshold:    5.0,
		PartialMaxAffected: 0,
		MaxAttempts:        3,
		RetryBaseDelay:     2 * time.Second,
		SummariesEnabled:   true,
	}
}

// HubConfig controls the per-user Notification Hub.
type HubConfig struct {
	// PingInterval is the SSE keep-alive cadence.
	PingInterval time.Duration `yaml:"ping_interval"`

	// QueueTTL is how long an undelivered notification stays queued.
	QueueTTL time.Duration `yaml:"queue_ttl"`

	// IdleHubTTL is how long a hub with no subscribers and no traffic is
	// kept alive before the manager destroys it.
	IdleHubTTL time.Duration `yaml:"idle_hub_ttl"`
}

// DefaultHubConfig returns the built-in hub defaults.
func DefaultHubConfig() *HubConfig {
	return &HubConfig{
		PingInterval: 30 * time.Second,
		QueueTTL:     7 * 24 * time.Hour,
		IdleHubTTL:   15 * time.Minute,
	}
}
