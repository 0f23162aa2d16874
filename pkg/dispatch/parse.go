package dispatch

import (
	"encoding/json"
	"fmt"
	"strings"

	"vigil/pkg/observation"
)

// ParsePayload extracts the structured observer result from raw model output.
// The JSON object may be bare or wrapped in a markdown code fence. Findings
// with an unknown severity make the whole payload invalid: a malformed result
// is an invocation error, not a guessed observation.
func ParsePayload(raw string) (Payload, error) {
	text := extractJSON(raw)

	var payload Payload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return Payload{}, fmt.Errorf("parse observer result: %w", err)
	}

	for i, f := range payload.Observations {
		if f.Content == "" {
			return Payload{}, fmt.Errorf("parse observer result: observation %d has no content", i)
		}
		if _, err := observation.ParseSeverity(string(f.Severity)); err != nil {
			return Payload{}, fmt.Errorf("parse observer result: observation %d: %w", i, err)
		}
	}
	for i, r := range payload.Resolved {
		if r.ID == "" {
			return Payload{}, fmt.Errorf("parse observer result: resolution %d has no id", i)
		}
	}
	return payload, nil
}

// extractJSON strips a surrounding markdown code fence, if any.
func extractJSON(text string) string {
	if idx := strings.Index(text, "```json"); idx >= 0 {
		rest := text[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
	}
	if idx := strings.Index(text, "```"); idx >= 0 {
		rest := text[idx+len("```"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
	}
	return strings.TrimSpace(text)
}
