// Package session holds the per-session inputs a trigger cycle runs against:
// the conversation transcript and the working tree root.
package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// Message is one transcript entry.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// IsToolCall reports whether the message is tool output rather than dialogue.
func (m Message) IsToolCall() bool {
	return m.Role == "tool"
}

// IsReasoning reports whether the message is model reasoning content.
func (m Message) IsReasoning() bool {
	return m.Role == "reasoning" || m.Role == "thinking"
}

// ReadTranscript parses a JSONL transcript file, one {"role","content"}
// object per line. Blank lines are skipped; a malformed line is an error.
func ReadTranscript(path string) ([]Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	var messages []Message
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var m Message
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("transcript line %d: %w", line, err)
		}
		messages = append(messages, m)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	return messages, nil
}
