// Package engine orchestrates stack operations: it binds parameters,
// builds the dependency graph, plans against stored state, and drives the
// executor under the per-stack state lock.
package engine

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/stackwave/stackctl/pkg/engine/executor"
	"github.com/stackwave/stackctl/pkg/engine/expression"
	"github.com/stackwave/stackctl/pkg/engine/planner"
	"github.com/stackwave/stackctl/pkg/errors"
	"github.com/stackwave/stackctl/pkg/graph"
	"github.com/stackwave/stackctl/pkg/provider"
	"github.com/stackwave/stackctl/pkg/state"
	"github.com/stackwave/stackctl/pkg/state/types"
	"github.com/stackwave/stackctl/pkg/template"
)

// Options configures an engine instance.
type Options struct {
	// Region and AccountID feed the pseudo parameters of every
	// operation.
	Region    string
	AccountID string

	// Who identifies the operator in state locks.
	Who string
}

// Engine runs stack operations against one state store and provider
// registry.
type Engine struct {
	store     *state.Store
	providers *provider.Registry
	options   Options
}

// NewEngine creates an engine.
func NewEngine(store *state.Store, providers *provider.Registry, options Options) *Engine {
	if options.Region == "" {
		options.Region = "local"
	}
	if options.AccountID == "" {
		options.AccountID = "000000000000"
	}
	if options.Who == "" {
		options.Who = "stackctl"
	}
	return &Engine{store: store, providers: providers, options: options}
}

// Store returns the engine's state store.
func (e *Engine) Store() *state.Store {
	return e.store
}

// DeployOptions configures one deploy operation.
type DeployOptions struct {
	// StackName names the stack to create or update.
	StackName string

	// Template is the parsed template to apply.
	Template *template.Template

	// Parameters are the caller-supplied parameter overrides.
	Parameters map[string]interface{}

	// Parallelism bounds concurrent provider calls.
	Parallelism int

	// Output receives progress lines.
	Output io.Writer

	// OnProgress receives structured progress events.
	OnProgress executor.ProgressCallback
}

// DeployResult is the outcome of a deploy operation.
type DeployResult struct {
	Stack     *types.Stack
	Plan      *planner.Plan
	Execution *executor.Result
	Duration  time.Duration
}

// Deploy creates the stack if it does not exist, or updates it in place.
// Parse, validation, and graph errors abort before any provider call.
func (e *Engine) Deploy(ctx context.Context, opts DeployOptions) (*DeployResult, error) {
	start := time.Now()
	tmpl := opts.Template

	parameters, err := bindParameters(tmpl, opts.Parameters)
	if err != nil {
		return nil, err
	}

	lock, err := e.store.Lock(ctx, opts.StackName, "deploy", e.options.Who)
	if err != nil {
		return nil, err
	}
	defer lock.Unlock(context.WithoutCancel(ctx))

	current, err := e.store.Get(ctx, opts.StackName)
	if err != nil && !errors.Is(err, errors.ErrCodeNotFound) {
		return nil, err
	}

	working := current.Clone()
	if working == nil {
		working = &types.Stack{
			Name:      opts.StackName,
			CreatedAt: time.Now().UTC(),
		}
	}
	working.Status = types.StackStatusPending
	working.StatusReason = ""
	working.Parameters = parameters
	if working.Resources == nil {
		working.Resources = make(map[string]*types.RealizedResource)
	}

	env := &expression.Context{
		Parameters:    parameters,
		Pseudo:        e.pseudo(opts.StackName),
		ResourceNames: resourceNames(tmpl),
		Resources:     make(map[string]*types.RealizedResource),
		Exports:       e.store,
	}

	g, err := graph.Build(ctx, tmpl, env)
	if err != nil {
		return nil, err
	}
	// Cycles abort before any provider call.
	if _, err := g.TopologicalSort(); err != nil {
		return nil, err
	}

	plan := planner.New(tmpl, current)

	exec := executor.NewExecutor(e.providers, executor.Options{
		Parallelism: opts.Parallelism,
		Output:      opts.Output,
		Progress:    opts.OnProgress,
	})

	execResult, execErr := exec.Deploy(ctx, &executor.DeployRequest{
		Stack:      working,
		Template:   tmpl,
		Plan:       plan,
		Graph:      g,
		Env:        env,
		Checkpoint: e.checkpointFunc(working),
	})

	result := &DeployResult{
		Stack:     working,
		Plan:      plan,
		Execution: execResult,
		Duration:  time.Since(start),
	}

	saveCtx := context.WithoutCancel(ctx)
	if execErr != nil {
		// Status and resources were checkpointed along the way; one
		// final write captures the terminal state.
		if putErr := e.store.Put(saveCtx, working); putErr != nil {
			fmt.Fprintf(writerOf(opts.Output), "warning: failed to persist state: %v\n", putErr)
		}
		return result, execErr
	}

	if putErr := e.store.Put(saveCtx, working); putErr != nil {
		// An export collision surfaces here: the resources deployed but
		// the exports cannot be published, so the stack is marked
		// failed without them.
		if errors.Is(putErr, errors.ErrCodeExportCollision) {
			working.Exports = nil
			working.Status = types.StackStatusFailed
			working.StatusReason = putErr.Error()
			if retryErr := e.store.Put(saveCtx, working); retryErr != nil {
				fmt.Fprintf(writerOf(opts.Output), "warning: failed to persist state: %v\n", retryErr)
			}
		}
		return result, putErr
	}

	return result, nil
}

// DestroyOptions configures one destroy operation.
type DestroyOptions struct {
	StackName  string
	Output     io.Writer
	OnProgress executor.ProgressCallback
}

// Destroy deletes every resource in the stack and removes its state.
// A failure leaves the remaining records in place for a retry.
func (e *Engine) Destroy(ctx context.Context, opts DestroyOptions) (*executor.Result, error) {
	lock, err := e.store.Lock(ctx, opts.StackName, "destroy", e.options.Who)
	if err != nil {
		return nil, err
	}
	defer lock.Unlock(context.WithoutCancel(ctx))

	working, err := e.store.Get(ctx, opts.StackName)
	if err != nil {
		return nil, err
	}

	exec := executor.NewExecutor(e.providers, executor.Options{
		Output:   opts.Output,
		Progress: opts.OnProgress,
	})

	result, execErr := exec.Destroy(ctx, &executor.DestroyRequest{
		Stack:      working,
		Checkpoint: e.checkpointFunc(working),
	})

	saveCtx := context.WithoutCancel(ctx)
	if execErr != nil {
		if putErr := e.store.Put(saveCtx, working); putErr != nil {
			fmt.Fprintf(writerOf(opts.Output), "warning: failed to persist state: %v\n", putErr)
		}
		return result, execErr
	}

	if err := e.store.Delete(saveCtx, opts.StackName); err != nil {
		return result, err
	}
	return result, nil
}

// GetStack returns the stored record for a stack.
func (e *Engine) GetStack(ctx context.Context, name string) (*types.Stack, error) {
	return e.store.Get(ctx, name)
}

// ListStacks returns references to all stored stacks.
func (e *Engine) ListStacks(ctx context.Context) ([]types.StackRef, error) {
	return e.store.List(ctx)
}

// ListExports returns every published export.
func (e *Engine) ListExports(ctx context.Context) ([]types.Export, error) {
	return e.store.ListExports(ctx)
}

func (e *Engine) pseudo(stackName string) map[string]interface{} {
	return map[string]interface{}{
		"Region":    e.options.Region,
		"AccountId": e.options.AccountID,
		"StackName": stackName,
	}
}

func (e *Engine) checkpointFunc(working *types.Stack) func(context.Context) error {
	return func(ctx context.Context) error {
		return e.store.Put(ctx, working)
	}
}

// bindParameters resolves the effective parameter values: overrides win,
// defaults fill the rest, anything unbound or undeclared fails.
func bindParameters(tmpl *template.Template, overrides map[string]interface{}) (map[string]interface{}, error) {
	for name := range overrides {
		if tmpl.Parameter(name) == nil {
			return nil, errors.ValidationError(
				fmt.Sprintf("no parameter named %q is declared", name), nil)
		}
	}

	bound := make(map[string]interface{}, len(tmpl.Parameters))
	for _, name := range tmpl.ParameterOrder {
		param := tmpl.Parameters[name]
		if value, ok := overrides[name]; ok {
			if err := template.CheckParameterValue(param, value); err != nil {
				return nil, err
			}
			bound[name] = value
			continue
		}
		if param.HasDefault {
			bound[name] = param.Default
			continue
		}
		return nil, errors.ValidationError(
			fmt.Sprintf("parameter %q has no value and no default", name), nil)
	}
	return bound, nil
}

func resourceNames(tmpl *template.Template) map[string]bool {
	names := make(map[string]bool, len(tmpl.Resources))
	for name := range tmpl.Resources {
		names[name] = true
	}
	return names
}

func writerOf(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}
