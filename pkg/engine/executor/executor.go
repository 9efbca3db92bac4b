// Package executor walks a stack's dependency graph and drives resource
// providers through create, update, delete, and rollback.
//
// Independent resources run concurrently up to a parallelism bound. The
// first failure halts dispatch, the in-flight work drains, and every
// resource materialized during the operation is rolled back in strict
// reverse dependency order: creations are deleted, updates are reverted
// to their previous properties. Resources untouched by the operation are
// left alone.
package executor

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/stackwave/stackctl/pkg/engine/expression"
	"github.com/stackwave/stackctl/pkg/engine/planner"
	"github.com/stackwave/stackctl/pkg/errors"
	"github.com/stackwave/stackctl/pkg/graph"
	"github.com/stackwave/stackctl/pkg/provider"
	"github.com/stackwave/stackctl/pkg/state/types"
	"github.com/stackwave/stackctl/pkg/template"
)

// EventType classifies progress events.
type EventType string

const (
	EventResourceStarted    EventType = "resource-started"
	EventResourceCompleted  EventType = "resource-completed"
	EventResourceUnchanged  EventType = "resource-unchanged"
	EventResourceFailed     EventType = "resource-failed"
	EventResourceSkipped    EventType = "resource-skipped"
	EventResourceDeleted    EventType = "resource-deleted"
	EventResourceRolledBack EventType = "resource-rolled-back"
	EventStackStatus        EventType = "stack-status"
)

// Event is one progress notification.
type Event struct {
	Type        EventType
	LogicalName string
	Kind        string
	Status      types.StackStatus
	Err         error
}

// ProgressCallback receives progress events. Callbacks run on executor
// goroutines and must be fast.
type ProgressCallback func(Event)

// Options configures the executor.
type Options struct {
	// Parallelism bounds concurrent provider calls. Defaults to 4.
	Parallelism int

	// Output receives human-readable progress lines. Defaults to
	// io.Discard.
	Output io.Writer

	// Progress, when set, receives structured events.
	Progress ProgressCallback
}

const defaultParallelism = 4

// Executor drives providers for one stack operation at a time.
type Executor struct {
	providers *provider.Registry
	options   Options
}

// NewExecutor creates an executor over the given provider registry.
func NewExecutor(providers *provider.Registry, options Options) *Executor {
	if options.Parallelism <= 0 {
		options.Parallelism = defaultParallelism
	}
	if options.Output == nil {
		options.Output = io.Discard
	}
	return &Executor{providers: providers, options: options}
}

// Result summarizes an executed operation.
type Result struct {
	Created    int
	Updated    int
	Unchanged  int
	Deleted    int
	RolledBack int
	Duration   time.Duration
}

// DeployRequest carries everything needed to apply a template to a stack.
type DeployRequest struct {
	// Stack is the working record. The executor mutates its status and
	// resources as the operation progresses.
	Stack *types.Stack

	Template *template.Template
	Plan     *planner.Plan
	Graph    *graph.Graph

	// Env is the strict evaluation environment. Env.Resources fills in
	// as resources materialize.
	Env *expression.Context

	// Checkpoint persists the working record after state transitions.
	// Optional; checkpoint failures do not abort the operation.
	Checkpoint func(ctx context.Context) error
}

// materialized records one provider mutation made during this operation,
// for rollback.
type materialized struct {
	logicalName string
	created     bool
	previous    *types.RealizedResource
}

// Deploy applies the plan. On failure the returned error is the first
// provider or resolution error; the stack status reflects the rollback
// outcome.
func (e *Executor) Deploy(ctx context.Context, req *DeployRequest) (*Result, error) {
	start := time.Now()
	result := &Result{}
	stack := req.Stack

	e.setStatus(ctx, req, types.StackStatusInProgress, "")

	var (
		mu      sync.Mutex
		touched []materialized
		halted  bool
		opErr   error
	)

	sem := make(chan struct{}, e.options.Parallelism)
	pending := make(map[string]bool, req.Graph.Len())
	for _, node := range req.Graph.Nodes() {
		pending[node.ID] = true
	}

	for len(pending) > 0 {
		mu.Lock()
		stop := halted || ctx.Err() != nil
		mu.Unlock()

		var ready []*graph.Node
		for _, node := range req.Graph.Nodes() {
			if !pending[node.ID] {
				continue
			}
			if stop {
				node.State = graph.NodeStateSkipped
				delete(pending, node.ID)
				e.emit(Event{Type: EventResourceSkipped, LogicalName: node.ID, Kind: node.Kind})
				continue
			}
			if e.dependencyFailed(req.Graph, node) {
				node.State = graph.NodeStateSkipped
				delete(pending, node.ID)
				e.emit(Event{Type: EventResourceSkipped, LogicalName: node.ID, Kind: node.Kind})
				continue
			}
			if node.IsReady(req.Graph) {
				ready = append(ready, node)
			}
		}
		if len(ready) == 0 {
			break
		}

		var wg sync.WaitGroup
		for _, node := range ready {
			delete(pending, node.ID)
			node.State = graph.NodeStateRunning

			wg.Add(1)
			sem <- struct{}{}
			go func(node *graph.Node) {
				defer wg.Done()
				defer func() { <-sem }()

				err := e.runNode(ctx, req, node, &mu, result, &touched)

				mu.Lock()
				if err != nil {
					node.State = graph.NodeStateFailed
					if opErr == nil {
						opErr = err
					}
					halted = true
				} else {
					node.State = graph.NodeStateCompleted
				}
				mu.Unlock()
			}(node)
		}
		wg.Wait()
	}

	if opErr == nil && ctx.Err() != nil {
		opErr = ctx.Err()
	}

	if opErr != nil {
		e.rollback(ctx, req, result, touched, opErr)
		result.Duration = time.Since(start)
		return result, opErr
	}

	// Remove resources that are no longer declared.
	if err := e.cleanupOrphans(ctx, req, result); err != nil {
		e.setStatus(ctx, req, types.StackStatusFailed, err.Error())
		result.Duration = time.Since(start)
		return result, err
	}

	stack.UpdatedAt = time.Now().UTC()
	e.setStatus(ctx, req, types.StackStatusComplete, "")
	result.Duration = time.Since(start)
	return result, nil
}

// runNode executes one graph node: the synthetic outputs node evaluates
// outputs and exports, resource nodes drive the provider.
func (e *Executor) runNode(ctx context.Context, req *DeployRequest, node *graph.Node, mu *sync.Mutex, result *Result, touched *[]materialized) error {
	if node.IsSynthetic() {
		mu.Lock()
		defer mu.Unlock()
		return e.resolveOutputs(ctx, req)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	res := req.Template.Resource(node.ID)
	change := req.Plan.Change(node.ID)
	if res == nil || change == nil {
		return errors.New(errors.ErrCodeValidation, fmt.Sprintf("no plan entry for resource %q", node.ID))
	}

	mu.Lock()
	resolved, err := expression.New(req.Env).Evaluate(ctx, res.Properties)
	mu.Unlock()
	if err != nil {
		e.recordFailure(mu, req, node, err)
		return err
	}
	properties, _ := resolved.(map[string]interface{})

	// Updates whose resolved properties match the last provisioning are
	// left untouched.
	if change.Action == planner.ActionUpdate {
		if len(planner.Diff(properties, change.Current.Properties)) == 0 {
			mu.Lock()
			record := change.Current.Clone()
			record.Status = types.ResourceStatusReady
			record.StatusReason = ""
			record.DependsOn = resourceDependsOn(node)
			req.Stack.Resources[node.ID] = record
			req.Env.Resources[node.ID] = record
			result.Unchanged++
			mu.Unlock()
			e.emit(Event{Type: EventResourceUnchanged, LogicalName: node.ID, Kind: node.Kind})
			return nil
		}
	}

	prov, err := e.providers.Get(node.Kind)
	if err != nil {
		err = errors.ProviderError(node.Kind, node.ID, err)
		e.recordFailure(mu, req, node, err)
		return err
	}

	e.emit(Event{Type: EventResourceStarted, LogicalName: node.ID, Kind: node.Kind})

	var previous *types.RealizedResource
	if change.Action == planner.ActionUpdate {
		previous = change.Current
	}
	out, err := prov.CreateOrUpdate(ctx, node.Kind, properties, previous)
	if err != nil {
		err = errors.ProviderError(node.Kind, node.ID, err)
		e.recordFailure(mu, req, node, err)
		e.emit(Event{Type: EventResourceFailed, LogicalName: node.ID, Kind: node.Kind, Err: err})
		return err
	}

	now := time.Now().UTC()
	record := &types.RealizedResource{
		LogicalName: node.ID,
		Kind:        node.Kind,
		CreatedAt:   now,
		UpdatedAt:   now,
		PhysicalID:  out.PhysicalID,
		Attributes:  out.Attributes,
		Properties:  properties,
		DependsOn:   resourceDependsOn(node),
		Status:      types.ResourceStatusReady,
	}
	if previous != nil {
		record.CreatedAt = previous.CreatedAt
	}

	mu.Lock()
	req.Stack.Resources[node.ID] = record
	req.Env.Resources[node.ID] = record
	*touched = append(*touched, materialized{
		logicalName: node.ID,
		created:     previous == nil,
		previous:    previous.Clone(),
	})
	if previous == nil {
		result.Created++
	} else {
		result.Updated++
	}
	mu.Unlock()

	e.emit(Event{Type: EventResourceCompleted, LogicalName: node.ID, Kind: node.Kind})
	e.checkpoint(ctx, req.Checkpoint)
	return nil
}

// resolveOutputs evaluates outputs and export keys into the stack record.
// Runs after every resource node; caller holds the evaluation lock.
func (e *Executor) resolveOutputs(ctx context.Context, req *DeployRequest) error {
	ev := expression.New(req.Env)
	outputs := make(map[string]interface{}, len(req.Template.Outputs))
	exports := make(map[string]interface{})

	for _, name := range req.Template.OutputOrder {
		out := req.Template.Outputs[name]
		value, err := ev.Evaluate(ctx, out.Value)
		if err != nil {
			return err
		}
		outputs[name] = value

		if out.Export == nil {
			continue
		}
		key, err := ev.Evaluate(ctx, out.ExportKey())
		if err != nil {
			return err
		}
		keyStr := fmt.Sprintf("%v", key)
		if _, dup := exports[keyStr]; dup {
			return errors.ValidationError(
				fmt.Sprintf("export key %q is published twice by this template", keyStr), nil)
		}
		exports[keyStr] = value
	}

	req.Stack.Outputs = outputs
	if len(exports) > 0 {
		req.Stack.Exports = exports
	} else {
		req.Stack.Exports = nil
	}
	return nil
}

// rollback reverts everything materialized in this operation, dependents
// before dependencies.
func (e *Executor) rollback(ctx context.Context, req *DeployRequest, result *Result, touched []materialized, cause error) {
	stack := req.Stack
	e.setStatus(ctx, req, types.StackStatusFailed, cause.Error())

	// The operation context may already be canceled; rollback still has
	// to run.
	rbCtx := context.WithoutCancel(ctx)

	e.setStatus(rbCtx, req, types.StackStatusRollbackInProgress, cause.Error())

	for _, m := range e.reverseOrder(req.Graph, touched) {
		record := stack.Resources[m.logicalName]
		prov, err := e.providers.Get(record.Kind)
		if err == nil {
			if m.created {
				err = prov.Delete(rbCtx, record.Kind, record.PhysicalID)
			} else {
				_, err = prov.CreateOrUpdate(rbCtx, record.Kind, m.previous.Properties, m.previous)
			}
		}
		if err != nil {
			record.Status = types.ResourceStatusFailed
			record.StatusReason = err.Error()
			e.setStatus(rbCtx, req, types.StackStatusRollbackFailed,
				fmt.Sprintf("rollback of %q failed: %v", m.logicalName, err))
			e.emit(Event{Type: EventResourceFailed, LogicalName: m.logicalName, Kind: record.Kind, Err: err})
			return
		}

		if m.created {
			delete(stack.Resources, m.logicalName)
			delete(req.Env.Resources, m.logicalName)
		} else {
			restored := m.previous.Clone()
			restored.Status = types.ResourceStatusReady
			restored.UpdatedAt = time.Now().UTC()
			stack.Resources[m.logicalName] = restored
			req.Env.Resources[m.logicalName] = restored
		}
		result.RolledBack++
		e.emit(Event{Type: EventResourceRolledBack, LogicalName: m.logicalName, Kind: record.Kind})
		e.checkpoint(rbCtx, req.Checkpoint)
	}

	// Drop failure markers that never materialized anything.
	for name, record := range stack.Resources {
		if record.PhysicalID == "" {
			delete(stack.Resources, name)
		}
	}

	e.setStatus(rbCtx, req, types.StackStatusRollbackComplete, cause.Error())
}

// reverseOrder sorts the touched set dependents-first using the
// operation graph.
func (e *Executor) reverseOrder(g *graph.Graph, touched []materialized) []materialized {
	byName := make(map[string]materialized, len(touched))
	for _, m := range touched {
		byName[m.logicalName] = m
	}

	sorted, err := g.TopologicalSort()
	if err != nil {
		// The graph was already sorted once to execute; keep touch order
		// reversed as a fallback.
		out := make([]materialized, len(touched))
		for i, m := range touched {
			out[len(touched)-1-i] = m
		}
		return out
	}

	var out []materialized
	for i := len(sorted) - 1; i >= 0; i-- {
		if m, ok := byName[sorted[i].ID]; ok {
			out = append(out, m)
		}
	}
	return out
}

// cleanupOrphans deletes resources that are in state but no longer
// declared, dependents before dependencies.
func (e *Executor) cleanupOrphans(ctx context.Context, req *DeployRequest, result *Result) error {
	deletes := req.Plan.Deletes()
	if len(deletes) == 0 {
		return nil
	}

	records := make(map[string]*types.RealizedResource, len(deletes))
	for _, change := range deletes {
		records[change.LogicalName] = change.Current
	}
	ordered, err := deleteOrder(records)
	if err != nil {
		return err
	}

	for _, record := range ordered {
		if err := e.deleteResource(ctx, req.Stack, record); err != nil {
			return err
		}
		result.Deleted++
		e.checkpoint(ctx, req.Checkpoint)
	}
	return nil
}

// DestroyRequest carries a stack teardown.
type DestroyRequest struct {
	Stack      *types.Stack
	Checkpoint func(ctx context.Context) error
}

// Destroy deletes every realized resource, dependents before
// dependencies, stopping at the first failure.
func (e *Executor) Destroy(ctx context.Context, req *DestroyRequest) (*Result, error) {
	start := time.Now()
	result := &Result{}
	stack := req.Stack

	e.setStatusDestroy(ctx, req, types.StackStatusDeleteInProgress, "")

	records := make(map[string]*types.RealizedResource)
	for name, record := range stack.Resources {
		if record.PhysicalID != "" {
			records[name] = record
		}
	}
	ordered, err := deleteOrder(records)
	if err != nil {
		e.setStatusDestroy(ctx, req, types.StackStatusDeleteFailed, err.Error())
		return result, err
	}

	for _, record := range ordered {
		if err := ctx.Err(); err != nil {
			e.setStatusDestroy(ctx, req, types.StackStatusDeleteFailed, err.Error())
			return result, err
		}
		if err := e.deleteResource(ctx, stack, record); err != nil {
			e.setStatusDestroy(ctx, req, types.StackStatusDeleteFailed, err.Error())
			return result, err
		}
		result.Deleted++
		e.checkpoint(ctx, req.Checkpoint)
	}

	stack.Outputs = nil
	stack.Exports = nil
	result.Duration = time.Since(start)
	return result, nil
}

// deleteResource removes one realized resource and its record.
func (e *Executor) deleteResource(ctx context.Context, stack *types.Stack, record *types.RealizedResource) error {
	prov, err := e.providers.Get(record.Kind)
	if err != nil {
		return errors.ProviderError(record.Kind, record.LogicalName, err)
	}

	record.Status = types.ResourceStatusDeleting
	if err := prov.Delete(ctx, record.Kind, record.PhysicalID); err != nil {
		record.Status = types.ResourceStatusFailed
		record.StatusReason = err.Error()
		wrapped := errors.ProviderError(record.Kind, record.LogicalName, err)
		e.emit(Event{Type: EventResourceFailed, LogicalName: record.LogicalName, Kind: record.Kind, Err: wrapped})
		return wrapped
	}

	delete(stack.Resources, record.LogicalName)
	e.emit(Event{Type: EventResourceDeleted, LogicalName: record.LogicalName, Kind: record.Kind})
	return nil
}

// deleteOrder orders records dependents-first using the dependency lists
// persisted at provisioning time.
func deleteOrder(records map[string]*types.RealizedResource) ([]*types.RealizedResource, error) {
	names := make([]string, 0, len(records))
	for name := range records {
		names = append(names, name)
	}
	sort.Strings(names)

	g := graph.NewGraph()
	for _, name := range names {
		if err := g.AddNode(graph.NewNode(name, records[name].Kind)); err != nil {
			return nil, err
		}
	}
	for _, name := range names {
		for _, dep := range records[name].DependsOn {
			if _, ok := records[dep]; ok {
				if err := g.AddEdge(name, dep); err != nil {
					return nil, err
				}
			}
		}
	}

	sorted, err := g.ReverseTopologicalSort()
	if err != nil {
		return nil, err
	}
	out := make([]*types.RealizedResource, len(sorted))
	for i, node := range sorted {
		out[i] = records[node.ID]
	}
	return out, nil
}

func (e *Executor) dependencyFailed(g *graph.Graph, node *graph.Node) bool {
	for _, depID := range node.DependsOn {
		dep := g.GetNode(depID)
		if dep == nil {
			continue
		}
		if dep.State == graph.NodeStateFailed || dep.State == graph.NodeStateSkipped {
			return true
		}
	}
	return false
}

func (e *Executor) recordFailure(mu *sync.Mutex, req *DeployRequest, node *graph.Node, cause error) {
	mu.Lock()
	defer mu.Unlock()

	record := req.Stack.Resources[node.ID]
	if record == nil {
		record = &types.RealizedResource{
			LogicalName: node.ID,
			Kind:        node.Kind,
			CreatedAt:   time.Now().UTC(),
		}
		req.Stack.Resources[node.ID] = record
	}
	record.UpdatedAt = time.Now().UTC()
	record.Status = types.ResourceStatusFailed
	record.StatusReason = cause.Error()
}

func (e *Executor) setStatus(ctx context.Context, req *DeployRequest, status types.StackStatus, reason string) {
	req.Stack.Status = status
	req.Stack.StatusReason = reason
	req.Stack.UpdatedAt = time.Now().UTC()
	e.emit(Event{Type: EventStackStatus, Status: status})
	e.checkpoint(ctx, req.Checkpoint)
}

func (e *Executor) setStatusDestroy(ctx context.Context, req *DestroyRequest, status types.StackStatus, reason string) {
	req.Stack.Status = status
	req.Stack.StatusReason = reason
	req.Stack.UpdatedAt = time.Now().UTC()
	e.emit(Event{Type: EventStackStatus, Status: status})
	e.checkpoint(ctx, req.Checkpoint)
}

func (e *Executor) checkpoint(ctx context.Context, save func(context.Context) error) {
	if save == nil {
		return
	}
	if err := save(ctx); err != nil {
		fmt.Fprintf(e.options.Output, "warning: failed to checkpoint state: %v\n", err)
	}
}

func (e *Executor) emit(event Event) {
	switch event.Type {
	case EventStackStatus:
		fmt.Fprintf(e.options.Output, "stack status: %s\n", event.Status)
	case EventResourceFailed:
		fmt.Fprintf(e.options.Output, "%s %s: %v\n", event.Type, event.LogicalName, event.Err)
	default:
		if event.LogicalName != "" {
			fmt.Fprintf(e.options.Output, "%s %s\n", event.Type, event.LogicalName)
		}
	}
	if e.options.Progress != nil {
		e.options.Progress(event)
	}
}

// resourceDependsOn filters the synthetic outputs node out of a node's
// dependency list before persisting it.
func resourceDependsOn(node *graph.Node) []string {
	out := make([]string, 0, len(node.DependsOn))
	for _, dep := range node.DependsOn {
		if dep == graph.OutputsNodeID {
			continue
		}
		out = append(out, dep)
	}
	return out
}

