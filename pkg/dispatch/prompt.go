package dispatch

import (
	"fmt"
	"strings"
)

const outputProtocol = `## Output

Respond with a single JSON object and nothing else:

{
  "observations": [
    {
      "content": "what you observed",
      "severity": "critical|high|medium|low|info",
      "source_ref": "file path or conversation reference",
      "metadata": {"category": "optional category", "suggestion": "optional fix"}
    }
  ],
  "resolved": [
    {"id": "observation id", "reason": "why it is fixed"}
  ]
}

Report only issues you can point at in the content above. If nothing is wrong,
return empty lists. List an id under "resolved" only when the content shows the
previously reported issue no longer applies.`

// BuildPrompt renders the full prompt for one observer invocation: role focus,
// review content, the open observations it may resolve, and the output
// protocol.
func BuildPrompt(req Request) string {
	var sb strings.Builder

	sb.WriteString("You are an observer named ")
	sb.WriteString(req.Observer.Name)
	sb.WriteString(". Review the content below through this lens:\n\n")
	sb.WriteString(strings.TrimSpace(req.Observer.Focus))
	sb.WriteString("\n\n")
	sb.WriteString(req.Content)
	sb.WriteString("\n\n")

	if len(req.OpenObservations) > 0 {
		sb.WriteString("## Previously Reported Issues\n\n")
		sb.WriteString("Do not report these again. If the content shows one is fixed, resolve it by id.\n")
		for _, o := range req.OpenObservations {
			sb.WriteString(fmt.Sprintf("\n- [%s] (%s, %s) %s", o.ID, o.Severity, o.Status, o.Content))
			if o.SourceRef != "" {
				sb.WriteString(" in " + o.SourceRef)
			}
		}
		sb.WriteString("\n\n")
	}

	sb.WriteString(outputProtocol)
	return sb.String()
}
