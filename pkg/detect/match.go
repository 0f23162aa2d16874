package detect

import (
	"strings"

	"github.com/IGLOU-EU/go-wildcard/v2"

	"vigil/pkg/bundle"
)

// PatternMatch reports whether a slash-separated relative path matches a
// watch glob. Wildcards are not separator-aware, so "**/*.py" also has to
// match files at the tree root; the leading "**/" is retried stripped.
func PatternMatch(pattern, path string) bool {
	if wildcard.Match(pattern, path) {
		return true
	}
	if rest, ok := strings.CutPrefix(pattern, "**/"); ok {
		return wildcard.Match(rest, path)
	}
	return false
}

// MatchesTarget reports whether one watch target intersects the changed-key
// set. Pure function over its inputs: no I/O, no state.
func MatchesTarget(w bundle.WatchTarget, changed map[string]bool) bool {
	switch w.Type {
	case bundle.WatchConversation:
		return changed[ConversationKey]
	case bundle.WatchFiles:
		for key := range changed {
			path, ok := FilePath(key)
			if !ok {
				continue
			}
			for _, pattern := range w.Paths {
				if PatternMatch(pattern, path) {
					return true
				}
			}
		}
	}
	return false
}

// Matches reports whether any of an observer's watch targets intersects the
// changed-key set. Observers for which this is false are never dispatched.
func Matches(watch []bundle.WatchTarget, changed map[string]bool) bool {
	for _, w := range watch {
		if MatchesTarget(w, changed) {
			return true
		}
	}
	return false
}
