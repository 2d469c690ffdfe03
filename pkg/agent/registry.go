package agent

import (
	"fmt"
	"sort"
)

// Registry holds the agent descriptors, built once at startup. No runtime
// reflection: routing and tool dispatch are map lookups.
type Registry struct {
	agents      map[AgentType]*Descriptor
	defaultType AgentType
}

// NewRegistry builds a registry from descriptors. The default agent must be
// among them.
func NewRegistry(defaultType AgentType, descriptors ...*Descriptor) (*Registry, error) {
	agents := make(map[AgentType]*Descriptor, len(descriptors))
	for _, d := range descriptors {
		if _, dup := agents[d.Type]; dup {
			return nil, fmt.Errorf("duplicate agent type %q", d.Type)
		}
		agents[d.Type] = d
	}
	if _, ok := agents[defaultType]; !ok {
		return nil, fmt.Errorf("default agent type %q not registered", defaultType)
	}
	return &Registry{agents: agents, defaultType: defaultType}, nil
}

// Get returns the descriptor for an agent type.
func (r *Registry) Get(agentType AgentType) (*Descriptor, bool) {
	d, ok := r.agents[agentType]
	return d, ok
}

// Default returns the fallback descriptor.
func (r *Registry) Default() *Descriptor {
	return r.agents[r.defaultType]
}

// Types returns all registered agent types, sorted for stable prompts.
func (r *Registry) Types() []AgentType {
	types := make([]AgentType, 0, len(r.agents))
	for t := range r.agents {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Tool resolves a tool by name within an agent's tool set.
func (d *Descriptor) Tool(name string) (*ToolDefinition, bool) {
	for i := range d.Tools {
		if d.Tools[i].Name == name {
			return &d.Tools[i], true
		}
	}
	return nil, false
}
