// Package worker provides a parallel PBR channel generation worker pool.
package worker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/MeKo-Tech/pbrgen/internal/naming"
)

// Generator is the interface for channel generation.
// This matches the signature of pipeline.Generator.Generate.
type Generator interface {
	Generate(ctx context.Context, src naming.Source) (paths []string, err error)
}

// Task represents a single base-color source to process.
type Task struct {
	Source naming.Source
	Index  int
}

// Result represents the outcome of a task.
type Result struct {
	Err     error
	Task    Task
	Paths   []string
	Elapsed time.Duration
}

// ProgressFunc is called after each task completes.
type ProgressFunc func(completed, total, failed int)

// Config configures the worker pool.
type Config struct {
	Generator  Generator
	OnProgress ProgressFunc
	Workers    int
}

// Pool manages parallel channel generation.
type Pool struct {
	generator  Generator
	onProgress ProgressFunc
	workers    int
}

// New creates a new worker pool.
func New(cfg Config) *Pool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	return &Pool{
		workers:    workers,
		generator:  cfg.Generator,
		onProgress: cfg.OnProgress,
	}
}

// TasksFor builds one task per source, preserving plan order.
func TasksFor(sources []naming.Source) []Task {
	tasks := make([]Task, len(sources))
	for i, src := range sources {
		tasks[i] = Task{Index: i, Source: src}
	}
	return tasks
}

// Run executes all tasks and returns one result per task, ordered by
// Task.Index. A failing or panicking task never stops the others.
func (p *Pool) Run(ctx context.Context, tasks []Task) []Result {
	if len(tasks) == 0 {
		return nil
	}

	taskCh := make(chan Task, len(tasks))
	resultCh := make(chan Result, len(tasks))

	var (
		completed int
		failed    int
		mu        sync.Mutex
	)

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker(ctx, taskCh, resultCh)
		}()
	}

	// Every task is queued; workers report cancellation per task.
	for _, task := range tasks {
		taskCh <- task
	}
	close(taskCh)

	results := make([]Result, 0, len(tasks))
	done := make(chan struct{})

	go func() {
		for result := range resultCh {
			results = append(results, result)

			mu.Lock()
			completed++
			if result.Err != nil {
				failed++
			}
			c, f := completed, failed
			mu.Unlock()

			if p.onProgress != nil {
				p.onProgress(c, len(tasks), f)
			}
		}
		close(done)
	}()

	wg.Wait()
	close(resultCh)
	<-done

	sort.Slice(results, func(i, j int) bool {
		return results[i].Task.Index < results[j].Task.Index
	})
	return results
}

// worker processes tasks from the task channel and sends results to the result channel.
func (p *Pool) worker(ctx context.Context, tasks <-chan Task, results chan<- Result) {
	for task := range tasks {
		select {
		case <-ctx.Done():
			results <- Result{
				Task: task,
				Err:  ctx.Err(),
			}
			continue
		default:
		}

		start := time.Now()
		paths, err := p.generate(ctx, task)
		results <- Result{
			Task:    task,
			Paths:   paths,
			Err:     err,
			Elapsed: time.Since(start),
		}
	}
}

func (p *Pool) generate(ctx context.Context, task Task) (paths []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			paths = nil
			err = fmt.Errorf("panic while processing %s: %v", task.Source.Path, r)
		}
	}()
	return p.generator.Generate(ctx, task.Source)
}
