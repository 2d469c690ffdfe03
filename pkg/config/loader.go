package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// yamlFile represents the complete loresmith.yaml file structure. Every
// section is optional; omitted sections fall back to built-in defaults.
type yamlFile struct {
	Server     *ServerConfig     `yaml:"server"`
	Queue      *QueueConfig      `yaml:"queue"`
	Extraction *ExtractionConfig `yaml:"extraction"`
	AISearch   *AISearchConfig   `yaml:"ai_search"`
	LLM        *LLMConfig        `yaml:"llm"`
	Graph      *GraphConfig      `yaml:"graph"`
	Rebuild    *RebuildConfig    `yaml:"rebuild"`
	Hub        *HubConfig        `yaml:"hub"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
//
// Steps performed:
//  1. Read loresmith.yaml from configDir (missing file = all defaults)
//  2. Expand ${VAR} environment references
//  3. Parse YAML into section structs
//  4. Fill omitted sections and zero fields from built-in defaults
//  5. Validate the result
func Initialize(configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	var parsed yamlFile
	path := filepath.Join(configDir, "loresmith.yaml")
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Info("No loresmith.yaml found, using built-in defaults")
	case err != nil:
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(ExpandEnv(data), &parsed); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	cfg := &Config{
		configDir:  configDir,
		Server:     applyServerDefaults(parsed.Server),
		Queue:      applyQueueDefaults(parsed.Queue),
		Extraction: applyExtractionDefaults(parsed.Extraction),
		AISearch:   applyAISearchDefaults(parsed.AISearch),
		LLM:        applyLLMDefaults(parsed.LLM),
		Graph:      applyGraphDefaults(parsed.Graph),
		Rebuild:    applyRebuildDefaults(parsed.Rebuild),
		Hub:        applyHubDefaults(parsed.Hub),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log.Info("Configuration initialized",
		"workers", cfg.Queue.WorkerCount,
		"impact_threshold", cfg.Rebuild.ImpactThreshold,
		"summaries_enabled", cfg.Rebuild.SummariesEnabled)
	return cfg, nil
}

func applyServerDefaults(c *ServerConfig) *ServerConfig {
	d := DefaultServerConfig()
	if c == nil {
		return d
	}
	if c.StreamTokenTTLSeconds <= 0 {
		c.StreamTokenTTLSeconds = d.StreamTokenTTLSeconds
	}
	return c
}

func applyQueueDefaults(c *QueueConfig) *QueueConfig {
	d := DefaultQueueConfig()
	if c == nil {
		return d
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = d.WorkerCount
	}
	if c.MaxConcurrentTasks <= 0 {
		c.MaxConcurrentTasks = d.MaxConcurrentTasks
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.PollIntervalJitter < 0 {
		c.PollIntervalJitter = d.PollIntervalJitter
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = d.TaskTimeout
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.OrphanDetectionInterval <= 0 {
		c.OrphanDetectionInterval = d.OrphanDetectionInterval
	}
	if c.OrphanThreshold <= 0 {
		c.OrphanThreshold = d.OrphanThreshold
	}
	if c.GracefulShutdownTimeout <= 0 {
		c.GracefulShutdownTimeout = c.TaskTimeout
	}
	return c
}

func applyExtractionDefaults(c *ExtractionConfig) *ExtractionConfig {
	d := DefaultExtractionConfig()
	if c == nil {
		return d
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = d.RetryBaseDelay
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = d.ChunkSize
	}
	if c.MaxChunks <= 0 {
		c.MaxChunks = d.MaxChunks
	}
	if c.ChunkDelay <= 0 {
		c.ChunkDelay = d.ChunkDelay
	}
	return c
}

func applyAISearchDefaults(c *AISearchConfig) *AISearchConfig {
	d := DefaultAISearchConfig()
	if c == nil {
		return d
	}
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = d.APIKeyEnv
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if len(c.TimeoutRetryDelays) == 0 {
		c.TimeoutRetryDelays = d.TimeoutRetryDelays
	}
	if len(c.CapacityRetryDelays) == 0 {
		c.CapacityRetryDelays = d.CapacityRetryDelays
	}
	if c.BreakerFailureThreshold == 0 {
		c.BreakerFailureThreshold = d.BreakerFailureThreshold
	}
	if c.BreakerOpenTimeout <= 0 {
		c.BreakerOpenTimeout = d.BreakerOpenTimeout
	}
	return c
}

func applyLLMDefaults(c *LLMConfig) *LLMConfig {
	d := DefaultLLMConfig()
	if c == nil {
		return d
	}
	if c.Model == "" {
		c.Model = d.Model
	}
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = d.APIKeyEnv
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.SummaryTemperature <= 0 {
		c.SummaryTemperature = d.SummaryTemperature
	}
	if c.SummaryMaxTokens <= 0 {
		c.SummaryMaxTokens = d.SummaryMaxTokens
	}
	return c
}

func applyGraphDefaults(c *GraphConfig) *GraphConfig {
	d := DefaultGraphConfig()
	if c == nil {
		return d
	}
	if c.MaxEntities <= 0 {
		c.MaxEntities = d.MaxEntities
	}
	if c.MaxRelationships <= 0 {
		c.MaxRelationships = d.MaxRelationships
	}
	if c.MemoryWarnMB <= 0 {
		c.MemoryWarnMB = d.MemoryWarnMB
	}
	if c.MemoryFailMB <= 0 {
		c.MemoryFailMB = d.MemoryFailMB
	}
	if c.Resolution <= 0 {
		c.Resolution = d.Resolution
	}
	if c.Seed == 0 {
		c.Seed = d.Seed
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = d.MaxIterations
	}
	if c.MinCommunitySize <= 0 {
		c.MinCommunitySize = d.MinCommunitySize
	}
	if c.MaxLevels <= 0 {
		c.MaxLevels = d.MaxLevels
	}
	if c.SublevelMinMembers <= 0 {
		c.SublevelMinMembers = d.SublevelMinMembers
	}
	return c
}

func applyRebuildDefaults(c *RebuildConfig) *RebuildConfig {
	d := DefaultRebuildConfig()
	if c == nil {
		return d
	}
	if c.ImpactThreshold <= 0 {
		c.ImpactThreshold = d.ImpactThreshold
	}
	if c.PartialMaxAffected < 0 {
		c.PartialMaxAffected = 0
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = d.RetryBaseDelay
	}
	return c
}

func applyHubDefaults(c *HubConfig) *HubConfig {
	d := DefaultHubConfig()
	if c == nil {
		return d
	}
	if c.PingInterval <= 0 {
		c.PingInterval = d.PingInterval
	}
	if c.QueueTTL <= 0 {
		c.QueueTTL = d.QueueTTL
	}
	if c.IdleHubTTL <= 0 {
		c.IdleHubTTL = d.IdleHubTTL
	}
	return c
}

// Validate rejects configurations that would misbehave at runtime.
func (c *Config) Validate() error {
	if c.Queue.HeartbeatInterval >= c.Queue.OrphanThreshold {
		return fmt.Errorf("queue.heartbeat_interval (%v) must be below queue.orphan_threshold (%v)",
			c.Queue.HeartbeatInterval, c.Queue.OrphanThreshold)
	}
	if c.Graph.MemoryWarnMB > c.Graph.MemoryFailMB {
		return fmt.Errorf("graph.memory_warn_mb (%v) cannot exceed graph.memory_fail_mb (%v)",
			c.Graph.MemoryWarnMB, c.Graph.MemoryFailMB)
	}
	if c.Hub.QueueTTL < time.Hour {
		return fmt.Errorf("hub.queue_ttl (%v) must be at least 1h", c.Hub.QueueTTL)
	}
	if c.Extraction.ChunkSize > 5 {
		return fmt.Errorf("extraction.chunk_size (%d) cannot exceed 5", c.Extraction.ChunkSize)
	}
	return nil
}
