// Package pipeline orders the analysis stages and runs them
// sequentially, recording per-stage outcomes.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Status of one stage within a run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Stage is one runnable analysis step. Run returns the artifact path
// it produced, if any.
type Stage struct {
	Name string
	Run  func(ctx context.Context) (artifact string, err error)
}

// Result records one stage's outcome.
type Result struct {
	Stage    string
	Status   Status
	Artifact string
	Duration time.Duration
	Err      error
}

// Pipeline is an ordered stage list.
type Pipeline struct {
	stages []Stage
	logger *slog.Logger
}

// New builds a pipeline over the given stages, in order.
func New(stages []Stage, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Pipeline{stages: stages, logger: logger}
}

// Names lists the stages in pipeline order.
func (p *Pipeline) Names() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name
	}
	return names
}

// Run executes every stage in order. After the first failure the
// remaining stages are marked skipped; artifacts already written stay
// on disk.
func (p *Pipeline) Run(ctx context.Context) []Result {
	return p.run(ctx, p.stages)
}

// RunSelected executes only the named stages, still in pipeline order.
// Unknown names fail before anything runs.
func (p *Pipeline) RunSelected(ctx context.Context, names []string) ([]Result, error) {
	if len(names) == 0 {
		return p.Run(ctx), nil
	}

	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var selected []Stage
	for _, s := range p.stages {
		if want[s.Name] {
			selected = append(selected, s)
			delete(want, s.Name)
		}
	}
	for n := range want {
		return nil, fmt.Errorf("unknown stage %q", n)
	}
	return p.run(ctx, selected), nil
}

func (p *Pipeline) run(ctx context.Context, stages []Stage) []Result {
	results := make([]Result, 0, len(stages))
	failed := false

	for _, s := range stages {
		if failed {
			results = append(results, Result{Stage: s.Name, Status: StatusSkipped})
			continue
		}

		p.logger.Info("stage started", "stage", s.Name)
		start := time.Now()
		artifact, err := s.Run(ctx)
		elapsed := time.Since(start)

		r := Result{Stage: s.Name, Artifact: artifact, Duration: elapsed}
		if err != nil {
			r.Status = StatusFailed
			r.Err = err
			failed = true
			p.logger.Error("stage failed", "stage", s.Name, "elapsed", elapsed, "error", err)
		} else {
			r.Status = StatusSuccess
			p.logger.Info("stage finished", "stage", s.Name, "elapsed", elapsed, "artifact", artifact)
		}
		results = append(results, r)
	}
	return results
}

// Watch invokes run whenever a file under dir changes, so the caller
// decides what to execute (the full pipeline, or the same selection as
// the initial run). Bursts of events within the debounce window
// collapse into one invocation. Watch blocks until the context is
// canceled.
func (p *Pipeline) Watch(ctx context.Context, dir string, debounce time.Duration, run func(context.Context)) error {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	p.logger.Info("watching for changes", "dir", dir)

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			p.logger.Debug("input changed", "file", ev.Name, "op", ev.Op.String())
			if pending {
				if !timer.Stop() {
					<-timer.C
				}
			}
			timer.Reset(debounce)
			pending = true
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			p.logger.Error("watch error", "error", err)
		case <-timer.C:
			pending = false
			run(ctx)
		}
	}
}
