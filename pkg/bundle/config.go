// Package bundle loads and validates the observer bundle configuration: which
// observers exist, what each one watches, and how a cycle executes them. The
// configuration is parsed and validated once at load time; the orchestration
// engine never re-parses it per cycle.
package bundle

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// WatchType selects what kind of content a watch target monitors.
type WatchType string

// Watch target kinds.
const (
	WatchFiles        WatchType = "files"
	WatchConversation WatchType = "conversation"
)

// WatchTarget declares one source an observer monitors: a set of file glob
// patterns, or the conversation transcript.
type WatchTarget struct {
	Type             WatchType `yaml:"type"`
	Paths            []string  `yaml:"paths,omitempty"`
	IncludeToolCalls bool      `yaml:"include_tool_calls"`
	IncludeReasoning bool      `yaml:"include_reasoning"`
}

// UnmarshalYAML applies defaults: type files, tool calls and reasoning
// included unless explicitly disabled.
func (w *WatchTarget) UnmarshalYAML(value *yaml.Node) error {
	type rawWatch struct {
		Type             string   `yaml:"type"`
		Paths            []string `yaml:"paths"`
		IncludeToolCalls *bool    `yaml:"include_tool_calls"`
		IncludeReasoning *bool    `yaml:"include_reasoning"`
	}
	var raw rawWatch
	if err := value.Decode(&raw); err != nil {
		return err
	}

	w.Type = WatchType(raw.Type)
	if raw.Type == "" {
		w.Type = WatchFiles
	}
	w.Paths = raw.Paths
	w.IncludeToolCalls = raw.IncludeToolCalls == nil || *raw.IncludeToolCalls
	w.IncludeReasoning = raw.IncludeReasoning == nil || *raw.IncludeReasoning
	return nil
}

// ObserverConfig is one configured reviewer unit. Either Focus holds the role
// prompt inline, or File references a markdown observer definition that is
// resolved at load time. Immutable per trigger cycle.
type ObserverConfig struct {
	Name    string        `yaml:"name"`
	Focus   string        `yaml:"focus,omitempty"`
	File    string        `yaml:"file,omitempty"`
	Model   string        `yaml:"model,omitempty"`
	Timeout int           `yaml:"timeout,omitempty"` // seconds; 0 inherits execution default
	Watch   []WatchTarget `yaml:"watch"`
	Tools   []string      `yaml:"tools,omitempty"`
	Enabled bool          `yaml:"enabled"`
}

// UnmarshalYAML defaults Enabled to true.
func (o *ObserverConfig) UnmarshalYAML(value *yaml.Node) error {
	type rawObserver struct {
		Name    string        `yaml:"name"`
		Focus   string        `yaml:"focus"`
		File    string        `yaml:"file"`
		Model   string        `yaml:"model"`
		Timeout int           `yaml:"timeout"`
		Watch   []WatchTarget `yaml:"watch"`
		Tools   []string      `yaml:"tools"`
		Enabled *bool         `yaml:"enabled"`
	}
	var raw rawObserver
	if err := value.Decode(&raw); err != nil {
		return err
	}

	o.Name = raw.Name
	o.Focus = raw.Focus
	o.File = raw.File
	o.Model = raw.Model
	o.Timeout = raw.Timeout
	o.Watch = raw.Watch
	o.Tools = raw.Tools
	o.Enabled = raw.Enabled == nil || *raw.Enabled
	return nil
}

// TimeoutDuration returns the observer's own timeout, or fallback when unset.
func (o ObserverConfig) TimeoutDuration(fallback time.Duration) time.Duration {
	if o.Timeout > 0 {
		return time.Duration(o.Timeout) * time.Second
	}
	return fallback
}

// TimeoutPolicy governs what a per-observer timeout does to the cycle.
type TimeoutPolicy string

// Timeout policies. Skip records the observer as timed out and continues;
// fail surfaces the timeout as an error on the cycle summary while still
// letting sibling observers complete and apply.
const (
	TimeoutSkip TimeoutPolicy = "skip"
	TimeoutFail TimeoutPolicy = "fail"
)

// ExecutionConfig governs the dispatcher.
type ExecutionConfig struct {
	Mode               string        `yaml:"mode"`
	MaxConcurrent      int           `yaml:"max_concurrent"`
	TimeoutPerObserver int           `yaml:"timeout_per_observer"` // seconds
	OnTimeout          TimeoutPolicy `yaml:"on_timeout"`
}

// ObserverTimeout returns the default per-observer timeout as a duration.
func (c ExecutionConfig) ObserverTimeout() time.Duration {
	return time.Duration(c.TimeoutPerObserver) * time.Second
}

// HookConfig declares one trigger event that starts an orchestration cycle.
type HookConfig struct {
	Trigger  string `yaml:"trigger"`
	Priority int    `yaml:"priority"`
}

// DefaultTrigger fires at the end of each orchestrator turn.
const DefaultTrigger = "orchestrator:complete"

// Config is the complete observer bundle configuration.
type Config struct {
	Hooks     []HookConfig     `yaml:"hooks"`
	Execution ExecutionConfig  `yaml:"execution"`
	Observers []ObserverConfig `yaml:"observers"`
}

// Parse decodes YAML configuration, applies defaults, and validates once.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse bundle config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads and parses a bundle configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bundle config: %w", err)
	}
	return Parse(data)
}

func (c *Config) applyDefaults() {
	if len(c.Hooks) == 0 {
		c.Hooks = []HookConfig{{Trigger: DefaultTrigger, Priority: 5}}
	}
	for i := range c.Hooks {
		if c.Hooks[i].Priority == 0 {
			c.Hooks[i].Priority = 5
		}
	}
	if c.Execution.Mode == "" {
		c.Execution.Mode = "parallel_sync"
	}
	if c.Execution.MaxConcurrent == 0 {
		c.Execution.MaxConcurrent = 10
	}
	if c.Execution.TimeoutPerObserver == 0 {
		c.Execution.TimeoutPerObserver = 30
	}
	if c.Execution.OnTimeout == "" {
		c.Execution.OnTimeout = TimeoutSkip
	}
}

func (c *Config) validate() error {
	if c.Execution.Mode != "parallel_sync" {
		return fmt.Errorf("bundle config: unsupported execution mode %q", c.Execution.Mode)
	}
	if c.Execution.MaxConcurrent < 1 {
		return fmt.Errorf("bundle config: max_concurrent must be positive, got %d", c.Execution.MaxConcurrent)
	}
	if c.Execution.TimeoutPerObserver < 1 {
		return fmt.Errorf("bundle config: timeout_per_observer must be positive, got %d", c.Execution.TimeoutPerObserver)
	}
	if c.Execution.OnTimeout != TimeoutSkip && c.Execution.OnTimeout != TimeoutFail {
		return fmt.Errorf("bundle config: on_timeout must be skip or fail, got %q", c.Execution.OnTimeout)
	}

	seen := make(map[string]bool, len(c.Observers))
	for i, obs := range c.Observers {
		if obs.Name == "" && obs.File == "" {
			return fmt.Errorf("bundle config: observer %d has neither name nor file", i)
		}
		if obs.Name != "" {
			if seen[obs.Name] {
				return fmt.Errorf("bundle config: duplicate observer name %q", obs.Name)
			}
			seen[obs.Name] = true
		}
		if len(obs.Watch) == 0 {
			return fmt.Errorf("bundle config: observer %q has no watch targets", obs.Name)
		}
		for _, w := range obs.Watch {
			switch w.Type {
			case WatchFiles:
				if len(w.Paths) == 0 {
					return fmt.Errorf("bundle config: observer %q files watch has no paths", obs.Name)
				}
			case WatchConversation:
				// No further validation.
			default:
				return fmt.Errorf("bundle config: observer %q has unknown watch type %q", obs.Name, w.Type)
			}
		}
	}
	return nil
}

// EnabledObservers returns the enabled observers in config order.
func (c *Config) EnabledObservers() []ObserverConfig {
	out := make([]ObserverConfig, 0, len(c.Observers))
	for _, o := range c.Observers {
		if o.Enabled {
			out = append(out, o)
		}
	}
	return out
}
