package bundle

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// frontmatter is the YAML header of a markdown observer definition.
type frontmatter struct {
	Name    string   `yaml:"name"`
	Model   string   `yaml:"model"`
	Timeout int      `yaml:"timeout"`
	Tools   []string `yaml:"tools"`
}

// ParseObserverFile parses a markdown observer definition: YAML frontmatter
// between --- markers carrying name/model/timeout/tools, followed by the
// body text that becomes the observer's focus prompt.
func ParseObserverFile(data []byte) (ObserverConfig, error) {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	if !strings.HasPrefix(text, "---\n") {
		return ObserverConfig{}, fmt.Errorf("observer definition: missing frontmatter")
	}

	rest := text[len("---\n"):]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return ObserverConfig{}, fmt.Errorf("observer definition: unterminated frontmatter")
	}

	var fm frontmatter
	if err := yaml.Unmarshal([]byte(rest[:end]), &fm); err != nil {
		return ObserverConfig{}, fmt.Errorf("observer definition frontmatter: %w", err)
	}
	if fm.Name == "" {
		return ObserverConfig{}, fmt.Errorf("observer definition: name is required")
	}

	body := rest[end+len("\n---"):]
	body = strings.TrimPrefix(body, "\n")

	return ObserverConfig{
		Name:    fm.Name,
		Focus:   strings.TrimSpace(body),
		Model:   fm.Model,
		Timeout: fm.Timeout,
		Tools:   fm.Tools,
		Enabled: true,
	}, nil
}

// LoadObserver reads and parses a markdown observer definition file.
func LoadObserver(path string) (ObserverConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ObserverConfig{}, fmt.Errorf("read observer definition: %w", err)
	}
	cfg, err := ParseObserverFile(data)
	if err != nil {
		return ObserverConfig{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ResolveObservers loads file-referenced observer definitions relative to
// baseDir and merges them with the bundle entries. Entry-level overrides
// (name, model, timeout) win over the definition file, matching how bundle
// composition applies overrides after loading.
func (c *Config) ResolveObservers(baseDir string) error {
	for i, obs := range c.Observers {
		if obs.File == "" {
			continue
		}

		path := obs.File
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		loaded, err := LoadObserver(path)
		if err != nil {
			return fmt.Errorf("resolve observer %q: %w", obs.File, err)
		}

		merged := loaded
		if obs.Name != "" {
			merged.Name = obs.Name
		}
		if obs.Model != "" {
			merged.Model = obs.Model
		}
		if obs.Timeout > 0 {
			merged.Timeout = obs.Timeout
		}
		if len(obs.Tools) > 0 {
			merged.Tools = obs.Tools
		}
		merged.Watch = obs.Watch
		merged.Enabled = obs.Enabled
		merged.File = obs.File
		c.Observers[i] = merged
	}
	return nil
}
