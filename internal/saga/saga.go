package saga

import (
	"context"
	"fmt"
	"log"
)

// Step is one unit of a multi-step workflow. Execute may mutate the
// shared saga state and may fail; Compensate semantically undoes a
// completed Execute and must never propagate a failure to the runner.
//
// Steps with irreversible effects (an SMS cannot be unsent) declare an
// explicit no-op compensation via NoCompensation rather than omitting
// the method; the step author owns the correctness of that choice.
type Step[S any] interface {
	Name() string
	Execute(ctx context.Context, state *S) error
	Compensate(ctx context.Context, state *S)
}

// Result reports which steps completed, which one failed and why.
type Result struct {
	Completed  []string
	FailedStep string
	Err        error
}

// Success reports whether all steps executed.
func (r Result) Success() bool {
	return r.Err == nil
}

// Run executes steps strictly in order, accumulating state. On the
// first failure it invokes Compensate for every already-completed step
// in reverse order. Every completed step gets exactly one compensation
// attempt; a panic inside a compensation is recovered and logged so the
// remaining compensations still run.
func Run[S any](ctx context.Context, steps []Step[S], state *S) Result {
	completed := make([]Step[S], 0, len(steps))
	names := make([]string, 0, len(steps))

	for _, step := range steps {
		if err := step.Execute(ctx, state); err != nil {
			compensate(ctx, completed, state)
			return Result{
				Completed:  names,
				FailedStep: step.Name(),
				Err:        fmt.Errorf("step %s: %w", step.Name(), err),
			}
		}
		completed = append(completed, step)
		names = append(names, step.Name())
	}

	return Result{Completed: names}
}

func compensate[S any](ctx context.Context, completed []Step[S], state *S) {
	for i := len(completed) - 1; i >= 0; i-- {
		step := completed[i]
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[SAGA] Compensation panic in step %s: %v", step.Name(), r)
				}
			}()
			step.Compensate(ctx, state)
		}()
	}
}

// Func wraps plain functions as a Step. A nil compensate means no-op.
type Func[S any] struct {
	StepName   string
	ExecuteFn  func(ctx context.Context, state *S) error
	CompensateFn func(ctx context.Context, state *S)
}

func (f Func[S]) Name() string { return f.StepName }

func (f Func[S]) Execute(ctx context.Context, state *S) error {
	return f.ExecuteFn(ctx, state)
}

func (f Func[S]) Compensate(ctx context.Context, state *S) {
	if f.CompensateFn != nil {
		f.CompensateFn(ctx, state)
	}
}

// NoCompensation documents an intentionally irreversible step.
func NoCompensation[S any](ctx context.Context, state *S) {}
