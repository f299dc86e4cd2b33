package agent

import "time"

// Default values for LoopConfig.
const (
	DefaultMaxIterations = 8
	DefaultTokenBudget   = 0 // unlimited
	DefaultTimeout       = 2 * time.Minute
	DefaultLoopThreshold = 3
	DefaultToolTimeout   = 30 * time.Second
)

// LoopConfig controls the behavior of the reasoning loop.
type LoopConfig struct {
	// MaxIterations caps the number of reason-act cycles.
	MaxIterations int

	// TokenBudget is the cumulative token limit (input + output).
	// Zero means unlimited.
	TokenBudget int

	// Timeout is the maximum wall-clock duration for the whole loop.
	Timeout time.Duration

	// LoopThreshold is how many times the same tool call (name + args)
	// can repeat before the loop is considered stuck.
	LoopThreshold int

	// ToolTimeout bounds each individual tool execution.
	ToolTimeout time.Duration
}

// withDefaults returns a copy with zero fields replaced by defaults.
func (c LoopConfig) withDefaults() LoopConfig {
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.LoopThreshold <= 0 {
		c.LoopThreshold = DefaultLoopThreshold
	}
	if c.ToolTimeout <= 0 {
		c.ToolTimeout = DefaultToolTimeout
	}
	return c
}
