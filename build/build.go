// Package build contains the small orchestration layer that runs build steps
// in order and lets steps hand items to one another.
package build

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Producer is an append-only sink for items of type T. Steps produce items
// into it and later steps consume them. It is safe for concurrent use.
type Producer[T any] struct {
	mu    sync.Mutex
	items []T
}

// Produce appends the given item.
func (p *Producer[T]) Produce(item T) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = append(p.items, item)
}

// Items returns a copy of the items produced so far, in production order.
func (p *Producer[T]) Items() []T {
	p.mu.Lock()
	defer p.mu.Unlock()
	res := make([]T, len(p.items))
	copy(res, p.items)
	return res
}

// Len returns the number of items produced so far.
func (p *Producer[T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

// FeatureItem names a feature that a build installs.
type FeatureItem struct {
	Name string
}

// Step is a named unit of build work.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// StepError is returned by Pipeline.Run when a step fails.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("build step %s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Pipeline runs steps sequentially. Each step completes before the next one
// starts, and the first failure stops the pipeline.
type Pipeline struct {
	Steps  []Step
	Logger *slog.Logger
}

// Add appends a step to the pipeline.
func (p *Pipeline) Add(name string, run func(ctx context.Context) error) *Pipeline {
	p.Steps = append(p.Steps, Step{Name: name, Run: run})
	return p
}

// Run executes all steps. It returns a *StepError for the first step that
// fails or that could not start because ctx is done.
func (p *Pipeline) Run(ctx context.Context) error {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	for _, step := range p.Steps {
		if err := ctx.Err(); err != nil {
			return &StepError{Step: step.Name, Err: err}
		}
		start := time.Now()
		logger.Debug("running build step", "step", step.Name)
		if err := step.Run(ctx); err != nil {
			logger.Error("build step failed", "step", step.Name, "error", err)
			return &StepError{Step: step.Name, Err: err}
		}
		logger.Debug("build step finished", "step", step.Name, "duration", time.Since(start))
	}
	return nil
}
