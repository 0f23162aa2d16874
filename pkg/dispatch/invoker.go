// Package dispatch runs matched observers under bounded concurrency with
// per-observer timeouts and failure isolation. Each observer call is a single
// opaque model invocation; a failure or timeout in one unit never prevents
// sibling units from completing.
package dispatch

import (
	"context"

	"vigil/pkg/bundle"
	"vigil/pkg/observation"
)

// Request is everything one observer invocation needs: the observer's
// configuration, the changed content to review, and the currently open
// observations handed over as deduplication context.
type Request struct {
	Observer         bundle.ObserverConfig
	Content          string
	OpenObservations []observation.Observation
}

// Invoker performs the model call for one observer and returns its raw text
// output. The call must honor ctx cancellation; the dispatcher stops waiting
// at the timeout boundary and discards any late result.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (string, error)
}

// ContentSource assembles the review content for one observer from the
// changed-target set.
type ContentSource interface {
	Build(obs bundle.ObserverConfig, changed map[string]bool) (string, error)
}
