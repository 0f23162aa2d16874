package dispatch

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"vigil/pkg/bundle"
	"vigil/pkg/detect"
	"vigil/pkg/session"
)

// Content assembly limits. Files are truncated per file, conversation messages
// per message, so one oversized artifact cannot crowd out the rest.
const (
	maxFileBytes      = 50000
	maxMessageChars   = 2000
	maxRecentMessages = 20
)

// Builder assembles per-observer review content from the changed-target set.
// Each observer sees only the changed paths its own watch patterns match, plus
// the recent conversation when it watches the transcript.
type Builder struct {
	Root     string
	Messages []session.Message
}

// Build renders the observer's content sections joined by a separator. An
// unreadable changed file is noted inline rather than failing the unit; the
// observer still reviews everything else.
func (b *Builder) Build(obs bundle.ObserverConfig, changed map[string]bool) (string, error) {
	var sections []string

	if files := b.matchedFiles(obs, changed); len(files) > 0 {
		sections = append(sections, b.fileSection(files))
	}
	for _, w := range obs.Watch {
		if w.Type == bundle.WatchConversation && changed[detect.ConversationKey] {
			if sec := b.conversationSection(w); sec != "" {
				sections = append(sections, sec)
			}
			break
		}
	}

	if len(sections) == 0 {
		return "", fmt.Errorf("no reviewable content for observer %s", obs.Name)
	}
	return strings.Join(sections, "\n\n---\n\n"), nil
}

// matchedFiles returns the changed relative paths this observer's file watch
// patterns cover, sorted for stable prompts.
func (b *Builder) matchedFiles(obs bundle.ObserverConfig, changed map[string]bool) []string {
	var files []string
	for key := range changed {
		path, ok := detect.FilePath(key)
		if !ok {
			continue
		}
		for _, w := range obs.Watch {
			if w.Type != bundle.WatchFiles {
				continue
			}
			matched := false
			for _, pattern := range w.Paths {
				if detect.PatternMatch(pattern, path) {
					matched = true
					break
				}
			}
			if matched {
				files = append(files, path)
				break
			}
		}
	}
	sort.Strings(files)
	return files
}

func (b *Builder) fileSection(files []string) string {
	var sb strings.Builder
	sb.WriteString("## Files\n")
	for _, rel := range files {
		sb.WriteString("\n### ")
		sb.WriteString(rel)
		sb.WriteString("\n\n```\n")
		data, err := os.ReadFile(filepath.Join(b.Root, filepath.FromSlash(rel)))
		switch {
		case err != nil:
			log.Warn().Str("path", rel).Err(err).Msg("changed file unreadable")
			sb.WriteString("(unreadable: " + err.Error() + ")\n")
		case len(data) > maxFileBytes:
			sb.Write(data[:maxFileBytes])
			sb.WriteString("\n... (truncated)\n")
		default:
			sb.Write(data)
			if len(data) > 0 && data[len(data)-1] != '\n' {
				sb.WriteByte('\n')
			}
		}
		sb.WriteString("```\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (b *Builder) conversationSection(w bundle.WatchTarget) string {
	msgs := make([]session.Message, 0, len(b.Messages))
	for _, m := range b.Messages {
		if m.IsToolCall() && !w.IncludeToolCalls {
			continue
		}
		if m.IsReasoning() && !w.IncludeReasoning {
			continue
		}
		msgs = append(msgs, m)
	}
	if len(msgs) > maxRecentMessages {
		msgs = msgs[len(msgs)-maxRecentMessages:]
	}
	if len(msgs) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("## Conversation\n")
	for _, m := range msgs {
		content := m.Content
		if len(content) > maxMessageChars {
			content = content[:maxMessageChars] + "... (truncated)"
		}
		sb.WriteString(fmt.Sprintf("\n[%s] %s\n", m.Role, content))
	}
	return strings.TrimRight(sb.String(), "\n")
}
