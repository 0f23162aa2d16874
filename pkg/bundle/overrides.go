package bundle

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// localOverrides is the shape of .vigil/config.toml, a per-project file that
// tunes execution without editing the shared bundle YAML.
type localOverrides struct {
	Execution struct {
		MaxConcurrent      int    `toml:"max_concurrent"`
		TimeoutPerObserver int    `toml:"timeout_per_observer"`
		OnTimeout          string `toml:"on_timeout"`
	} `toml:"execution"`
}

// ApplyLocalOverrides reads .vigil/config.toml under projectRoot, if present,
// and applies its execution settings over the bundle configuration. A missing
// file is not an error; a malformed one is.
func ApplyLocalOverrides(cfg *Config, projectRoot string) error {
	path := filepath.Join(projectRoot, ".vigil", "config.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read local overrides: %w", err)
	}

	var local localOverrides
	if err := toml.Unmarshal(data, &local); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	if local.Execution.MaxConcurrent > 0 {
		cfg.Execution.MaxConcurrent = local.Execution.MaxConcurrent
	}
	if local.Execution.TimeoutPerObserver > 0 {
		cfg.Execution.TimeoutPerObserver = local.Execution.TimeoutPerObserver
	}
	if local.Execution.OnTimeout != "" {
		policy := TimeoutPolicy(local.Execution.OnTimeout)
		if policy != TimeoutSkip && policy != TimeoutFail {
			return fmt.Errorf("local overrides: on_timeout must be skip or fail, got %q", local.Execution.OnTimeout)
		}
		cfg.Execution.OnTimeout = policy
	}
	return nil
}
