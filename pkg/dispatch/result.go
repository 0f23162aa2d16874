package dispatch

import (
	"encoding/json"
	"time"

	"vigil/pkg/observation"
)

// Finding is one new issue reported by an observer. Category and suggestion
// may arrive either at the top level or nested under "metadata", depending on
// how literally the model followed the output protocol.
type Finding struct {
	Content    string
	Severity   observation.Severity
	SourceRef  string
	Category   string
	Suggestion string
}

// UnmarshalJSON accepts both the flat and the metadata-nested shape.
func (f *Finding) UnmarshalJSON(data []byte) error {
	var raw struct {
		Content    string `json:"content"`
		Severity   string `json:"severity"`
		SourceRef  string `json:"source_ref"`
		Category   string `json:"category"`
		Suggestion string `json:"suggestion"`
		Metadata   struct {
			Category   string `json:"category"`
			Suggestion string `json:"suggestion"`
		} `json:"metadata"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	f.Content = raw.Content
	f.Severity = observation.Severity(raw.Severity)
	f.SourceRef = raw.SourceRef
	f.Category = raw.Category
	if f.Category == "" {
		f.Category = raw.Metadata.Category
	}
	f.Suggestion = raw.Suggestion
	if f.Suggestion == "" {
		f.Suggestion = raw.Metadata.Suggestion
	}
	return nil
}

// Resolution references a previously reported observation the observer now
// considers fixed.
type Resolution struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// Payload is the structured result of one successful observer invocation.
type Payload struct {
	Observations []Finding    `json:"observations"`
	Resolved     []Resolution `json:"resolved"`
}

// Status classifies how an observer unit finished.
type Status string

// Unit outcomes. Timeout and failure are isolated to their unit; how they
// affect the cycle is the on_timeout policy's business, not the dispatcher's.
const (
	StatusOK      Status = "ok"
	StatusTimeout Status = "timeout"
	StatusFailed  Status = "failed"
)

// Result is the outcome of one executed observer.
type Result struct {
	Observer string
	Status   Status
	Payload  Payload // valid only when Status is ok
	Err      error   // set for timeout and failed
	Elapsed  time.Duration
}
