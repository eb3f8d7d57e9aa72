package engine

import (
	"fmt"
	"time"

	"github.com/bsaid97/go-boundary-fixer/handlers"
	"github.com/bsaid97/go-boundary-fixer/utils"
)

// Result summarises a finished command.
type Result struct {
	Output   string
	Features int
	// Filtered counts regions dropped by -filter-prefix.
	Filtered int
	Repair   *handlers.RepairReport
	Dissolve *handlers.DissolveReport
	Simplify *handlers.SimplifyReport
}

// Task is the future for one RunCommands call. It cannot be cancelled.
type Task struct {
	done   chan struct{}
	result *Result
	err    error
}

// Done is closed once the command has finished and its output is on disk.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the command finishes and returns its outcome.
func (t *Task) Wait() (*Result, error) {
	<-t.done
	return t.result, t.err
}

type Engine struct{}

func New() *Engine {
	return &Engine{}
}

// RunCommands parses commands and runs them in the background. Parse errors
// are reported through the task like any other failure.
func (e *Engine) RunCommands(commands string) *Task {
	task := &Task{done: make(chan struct{})}
	go func() {
		defer close(task.done)
		cmd, err := Parse(commands)
		if err != nil {
			task.err = fmt.Errorf("invalid command %q: %w", commands, err)
			return
		}
		task.result, task.err = e.Run(cmd)
	}()
	return task
}

// Run executes a parsed command synchronously.
func (e *Engine) Run(cmd *Command) (*Result, error) {
	start := time.Now()
	logger := utils.L().With("input", cmd.Input)

	fc, err := utils.ReadFeatureCollection(cmd.Input, cmd.NameProperty)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	for _, step := range cmd.Steps {
		logger.Debug("running step", "step", step.Name(), "features", len(fc.Regions))
		if err := step.Apply(fc, result); err != nil {
			return nil, fmt.Errorf("-%s on %s: %w", step.Name(), cmd.Input, err)
		}
	}

	if cmd.Output.Precision > 0 {
		utils.TruncateCollection(fc, utils.DecimalsForPrecision(cmd.Output.Precision))
	}
	if err := utils.WriteFeatureCollection(cmd.Output.Path, fc); err != nil {
		return nil, err
	}
	result.Output = cmd.Output.Path
	if cmd.Output.Gzip {
		compressed, err := utils.GzipFile(cmd.Output.Path)
		if err != nil {
			return nil, err
		}
		result.Output = compressed
	}
	result.Features = len(fc.Regions)

	logger.Info("engine command finished",
		"output", result.Output,
		"features", result.Features,
		"filtered", result.Filtered,
		"duration", time.Since(start).Round(time.Millisecond).String())
	return result, nil
}
