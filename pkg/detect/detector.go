package detect

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"vigil/pkg/bundle"
	"vigil/pkg/session"
)

// Changes is the outcome of one detection pass: which target keys changed,
// and the freshly computed fingerprints for every target that was inspected.
// Fingerprints are committed only after the cycle completes.
type Changes struct {
	Keys         map[string]bool
	Fingerprints map[string]Fingerprint
}

// Empty reports whether nothing changed.
func (c *Changes) Empty() bool {
	return len(c.Keys) == 0
}

// Detector compares current watch-target fingerprints against the committed
// map. It walks the working tree once per cycle regardless of how many
// observers share a pattern.
type Detector struct {
	store *Store
	root  string
}

// Directories never descended into during the walk.
var skipDirs = map[string]bool{
	".git":         true,
	".vigil":       true,
	"node_modules": true,
}

// NewDetector creates a Detector rooted at the session working tree.
func NewDetector(store *Store, root string) *Detector {
	return &Detector{store: store, root: root}
}

// Detect computes the changed-target set for the given observers. A
// fingerprint failure on one file is logged and skips that file only;
// other targets are still inspected.
func (d *Detector) Detect(ctx context.Context, observers []bundle.ObserverConfig, messages []session.Message) (*Changes, error) {
	committed, err := d.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	var patterns []string
	watchesConversation := false
	for _, obs := range observers {
		for _, w := range obs.Watch {
			switch w.Type {
			case bundle.WatchFiles:
				patterns = append(patterns, w.Paths...)
			case bundle.WatchConversation:
				watchesConversation = true
			}
		}
	}

	changes := &Changes{
		Keys:         make(map[string]bool),
		Fingerprints: make(map[string]Fingerprint),
	}

	if len(patterns) > 0 {
		if err := d.walkFiles(patterns, committed, changes); err != nil {
			return nil, err
		}
	}

	// An empty transcript carries nothing to review, so the conversation
	// target is not inspected and cannot change.
	if watchesConversation && len(messages) > 0 {
		key := ConversationKey
		fp := ConversationFingerprint(messages)
		changes.Fingerprints[key] = fp
		if committed[key] != fp {
			changes.Keys[key] = true
		}
	}

	return changes, nil
}

// walkFiles inspects every file under the root that matches any pattern.
func (d *Detector) walkFiles(patterns []string, committed map[string]Fingerprint, changes *Changes) error {
	err := filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("change detection: skipping unreadable entry")
			if entry != nil && entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if entry.IsDir() {
			if skipDirs[entry.Name()] {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(d.root, path)
		if err != nil {
			return fmt.Errorf("relativize %s: %w", path, err)
		}
		rel = filepath.ToSlash(rel)

		matched := false
		for _, pattern := range patterns {
			if PatternMatch(pattern, rel) {
				matched = true
				break
			}
		}
		if !matched {
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			log.Warn().Err(err).Str("path", rel).Msg("change detection: stat failed, skipping target")
			return nil
		}

		key := FileKey(rel)
		fp := FileFingerprint(rel, info)
		changes.Fingerprints[key] = fp
		if committed[key] != fp {
			changes.Keys[key] = true
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk %s: %w", d.root, err)
	}
	return nil
}
