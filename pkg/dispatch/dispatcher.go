package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"vigil/pkg/bundle"
	"vigil/pkg/detect"
	"vigil/pkg/observation"
)

// Dispatcher fans matched observers out over a bounded worker pool. One
// Dispatcher is safe for concurrent cycles, though cycles are normally serial.
type Dispatcher struct {
	invoker Invoker
	content ContentSource
}

// NewDispatcher creates a dispatcher over the given invoker and content source.
func NewDispatcher(invoker Invoker, content ContentSource) *Dispatcher {
	return &Dispatcher{invoker: invoker, content: content}
}

// Run executes every enabled observer whose watch targets intersect the
// changed-key set. Submission follows config order under a semaphore of
// exec.MaxConcurrent; each unit runs under its own timeout. Results come back
// in completion order, one per dispatched observer, with the same count and
// membership as the dispatched set regardless of individual failures.
func (d *Dispatcher) Run(ctx context.Context, observers []bundle.ObserverConfig, changed map[string]bool, open []observation.Observation, exec bundle.ExecutionConfig) []Result {
	work := make([]bundle.ObserverConfig, 0, len(observers))
	for _, obs := range observers {
		if !obs.Enabled {
			continue
		}
		if !detect.Matches(obs.Watch, changed) {
			log.Debug().Str("observer", obs.Name).Msg("no watched changes, skipping")
			continue
		}
		work = append(work, obs)
	}
	if len(work) == 0 {
		return nil
	}

	sem := make(chan struct{}, exec.MaxConcurrent)
	results := make(chan Result, len(work))
	var wg sync.WaitGroup

	for _, obs := range work {
		sem <- struct{}{}
		wg.Add(1)
		go func(obs bundle.ObserverConfig) {
			defer wg.Done()
			defer func() { <-sem }()
			results <- d.runOne(ctx, obs, changed, open, exec)
		}(obs)
	}
	wg.Wait()
	close(results)

	out := make([]Result, 0, len(work))
	for res := range results {
		out = append(out, res)
	}
	return out
}

// runOne executes a single observer unit: builds its content, invokes the
// model under the unit timeout, and parses the structured result. Any error
// is captured on the Result; it never propagates to sibling units.
func (d *Dispatcher) runOne(ctx context.Context, obs bundle.ObserverConfig, changed map[string]bool, open []observation.Observation, exec bundle.ExecutionConfig) Result {
	start := time.Now()

	content, err := d.content.Build(obs, changed)
	if err != nil {
		log.Error().Str("observer", obs.Name).Err(err).Msg("content build failed")
		return Result{Observer: obs.Name, Status: StatusFailed, Err: fmt.Errorf("build content: %w", err), Elapsed: time.Since(start)}
	}

	timeout := obs.TimeoutDuration(exec.ObserverTimeout())
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type invokeResult struct {
		raw string
		err error
	}
	done := make(chan invokeResult, 1) // buffered so a late invoker never leaks

	go func() {
		raw, err := d.invoker.Invoke(cctx, Request{Observer: obs, Content: content, OpenObservations: open})
		done <- invokeResult{raw: raw, err: err}
	}()

	select {
	case res := <-done:
		elapsed := time.Since(start)
		if res.err != nil {
			log.Warn().Str("observer", obs.Name).Err(res.err).Msg("observer invocation failed")
			return Result{Observer: obs.Name, Status: StatusFailed, Err: res.err, Elapsed: elapsed}
		}
		payload, err := ParsePayload(res.raw)
		if err != nil {
			log.Warn().Str("observer", obs.Name).Err(err).Msg("observer returned malformed result")
			return Result{Observer: obs.Name, Status: StatusFailed, Err: err, Elapsed: elapsed}
		}
		log.Debug().
			Str("observer", obs.Name).
			Int("observations", len(payload.Observations)).
			Int("resolved", len(payload.Resolved)).
			Dur("elapsed", elapsed).
			Msg("observer completed")
		return Result{Observer: obs.Name, Status: StatusOK, Payload: payload, Elapsed: elapsed}
	case <-cctx.Done():
		// Late result, if any, lands in the buffered channel and is discarded.
		elapsed := time.Since(start)
		err := fmt.Errorf("observer %s timed out after %s", obs.Name, timeout)
		log.Warn().Str("observer", obs.Name).Dur("timeout", timeout).Msg("observer timed out")
		if ctx.Err() != nil {
			return Result{Observer: obs.Name, Status: StatusFailed, Err: ctx.Err(), Elapsed: elapsed}
		}
		return Result{Observer: obs.Name, Status: StatusTimeout, Err: err, Elapsed: elapsed}
	}
}
