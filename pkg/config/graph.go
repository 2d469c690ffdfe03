package config

// GraphConfig controls graph loading and community detection.
type GraphConfig struct {
	// MaxEntities and MaxRelationships cap graph size before any algorithm
	// runs. Exceeding a cap is an immediate, non-retried failure.
	MaxEntities      int `yaml:"max_entities"`
	MaxRelationships int `yaml:"max_relationships"`

	// MemoryWarnMB and MemoryFailMB bound the estimated in-memory graph
	// footprint (estimate: 5 MB + 0.00005*E + 0.0001*R).
	MemoryWarnMB float64 `yaml:"memory_warn_mb"`
	MemoryFailMB float64 `yaml:"memory_fail_mb"`

	// Resolution is the Leiden resolution parameter γ.
	Resolution float64 `yaml:"resolution"`

	// Seed makes community detection deterministic.
	Seed int64 `yaml:"seed"`

	// MaxIterations bounds Leiden's local-move/refine loop.
	MaxIterations int `yaml:"max_iterations"`

	// MinCommunitySize drops communities smaller than this.
	MinCommunitySize int `yaml:"min_community_size"`

	// MaxLevels bounds multi-level detection depth.
	MaxLevels int `yaml:"max_levels"`

	// SublevelMinMembers is the minimum level-0 community size that gets
	// re-detected into sub-communities.
	SublevelMinMembers int `yaml:"sublevel_min_members"`
}

// DefaultGraphConfig returns the built-in graph defaults.
func DefaultGraphConfig() *GraphConfig {
	return &GraphConfig{
		MaxEntities:        50000,
		MaxRelationships:   200000,
		MemoryWarnMB:       80,
		MemoryFailMB:       100,
		Resolution:         1.0,
		Seed:               42,
		MaxIterations:      10,
		MinCommunitySize:   2,
		MaxLevels:          3,
		SublevelMinMembers: 4,
	}
}
