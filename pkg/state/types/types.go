// Package types defines the data structures for stackctl state.
package types

import (
	"time"
)

// StackStatus is the high-level lifecycle state of a stack. Pending is the
// only initial state; Complete and RollbackComplete are terminal-success
// states; RollbackFailed and DeleteFailed require operator intervention.
type StackStatus string

const (
	StackStatusPending            StackStatus = "pending"
	StackStatusInProgress         StackStatus = "in-progress"
	StackStatusComplete           StackStatus = "complete"
	StackStatusFailed             StackStatus = "failed"
	StackStatusRollbackInProgress StackStatus = "rollback-in-progress"
	StackStatusRollbackComplete   StackStatus = "rollback-complete"
	StackStatusRollbackFailed     StackStatus = "rollback-failed"
	StackStatusDeleteInProgress   StackStatus = "delete-in-progress"
	StackStatusDeleteFailed       StackStatus = "delete-failed"
)

// Terminal reports whether the status is an end state of an operation.
func (s StackStatus) Terminal() bool {
	switch s {
	case StackStatusComplete, StackStatusFailed, StackStatusRollbackComplete,
		StackStatusRollbackFailed, StackStatusDeleteFailed:
		return true
	}
	return false
}

// ResourceStatus is the per-resource state mirroring the owning stack's
// phase.
type ResourceStatus string

const (
	ResourceStatusPending      ResourceStatus = "pending"
	ResourceStatusProvisioning ResourceStatus = "provisioning"
	ResourceStatusReady        ResourceStatus = "ready"
	ResourceStatusFailed       ResourceStatus = "failed"
	ResourceStatusDeleting     ResourceStatus = "deleting"
	ResourceStatusDeleted      ResourceStatus = "deleted"
	ResourceStatusRolledBack   ResourceStatus = "rolled-back"
)

// Stack is the persisted record of one deployed stack: the unit the state
// store gets and puts atomically.
type Stack struct {
	// Metadata
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Status
	Status       StackStatus `json:"status"`
	StatusReason string      `json:"status_reason,omitempty"`

	// Parameters bound for the most recent operation.
	Parameters map[string]interface{} `json:"parameters,omitempty"`

	// Realized resources by logical name.
	Resources map[string]*RealizedResource `json:"resources,omitempty"`

	// Resolved output values by output name.
	Outputs map[string]interface{} `json:"outputs,omitempty"`

	// Exported output values by export key. Export keys are a scope-wide
	// namespace enforced by the store on put.
	Exports map[string]interface{} `json:"exports,omitempty"`
}

// RealizedResource is the persisted record of one provisioned resource.
// DependsOn is recorded at creation so a delete can rebuild the reverse
// walk without the original template.
type RealizedResource struct {
	LogicalName string    `json:"logical_name"`
	Kind        string    `json:"kind"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// PhysicalID is the provider-assigned identifier, opaque to the core.
	PhysicalID string `json:"physical_id"`

	// Attributes are the provider-returned attribute values.
	Attributes map[string]interface{} `json:"attributes,omitempty"`

	// Properties are the resolved input properties the resource was last
	// provisioned with. Used for change detection and rollback reverts.
	Properties map[string]interface{} `json:"properties,omitempty"`

	// DependsOn lists logical names this resource was ordered after.
	DependsOn []string `json:"depends_on,omitempty"`

	Status       ResourceStatus `json:"status"`
	StatusReason string         `json:"status_reason,omitempty"`
}

// Clone returns a deep copy of the stack record. The executor snapshots
// the pre-operation state so rollback can restore it.
func (s *Stack) Clone() *Stack {
	if s == nil {
		return nil
	}
	out := &Stack{
		Name:         s.Name,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
		Status:       s.Status,
		StatusReason: s.StatusReason,
		Parameters:   cloneValueMap(s.Parameters),
		Outputs:      cloneValueMap(s.Outputs),
		Exports:      cloneValueMap(s.Exports),
	}
	if s.Resources != nil {
		out.Resources = make(map[string]*RealizedResource, len(s.Resources))
		for k, v := range s.Resources {
			out.Resources[k] = v.Clone()
		}
	}
	return out
}

// Clone returns a deep copy of the resource record.
func (r *RealizedResource) Clone() *RealizedResource {
	if r == nil {
		return nil
	}
	out := *r
	out.Attributes = cloneValueMap(r.Attributes)
	out.Properties = cloneValueMap(r.Properties)
	out.DependsOn = append([]string(nil), r.DependsOn...)
	return &out
}

func cloneValueMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return cloneValueMap(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// StackRef is a lightweight reference to a stack used by listings.
type StackRef struct {
	Name      string      `json:"name"`
	Status    StackStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Export pairs a published value with its owning stack.
type Export struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
	Owner string      `json:"owner"`
}
