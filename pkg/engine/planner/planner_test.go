package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackwave/stackctl/pkg/state/types"
	"github.com/stackwave/stackctl/pkg/template"
)

func parse(t *testing.T, doc string) *template.Template {
	t.Helper()
	tmpl, err := template.Parse([]byte(doc))
	require.NoError(t, err)
	return tmpl
}

const twoResourceDoc = `
resources:
  Database:
    kind: database
    properties:
      size: small
  Cache:
    kind: cache
    properties:
      ttl: 60
`

func TestPlanAllCreates(t *testing.T) {
	plan := New(parse(t, twoResourceDoc), nil)

	assert.Equal(t, 2, plan.ToCreate)
	assert.Equal(t, 0, plan.ToUpdate)
	assert.Equal(t, 0, plan.ToDelete)
	assert.False(t, plan.IsEmpty())

	require.Len(t, plan.Changes, 2)
	assert.Equal(t, "Database", plan.Changes[0].LogicalName)
	assert.Equal(t, ActionCreate, plan.Changes[0].Action)
	assert.Equal(t, "Cache", plan.Changes[1].LogicalName)
}

func TestPlanExistingBecomesUpdate(t *testing.T) {
	current := &types.Stack{
		Name: "app",
		Resources: map[string]*types.RealizedResource{
			"Database": {LogicalName: "Database", Kind: "database", PhysicalID: "db-1"},
		},
	}

	plan := New(parse(t, twoResourceDoc), current)

	assert.Equal(t, 1, plan.ToCreate)
	assert.Equal(t, 1, plan.ToUpdate)

	db := plan.Change("Database")
	require.NotNil(t, db)
	assert.Equal(t, ActionUpdate, db.Action)
	assert.Equal(t, "db-1", db.Current.PhysicalID)

	cache := plan.Change("Cache")
	require.NotNil(t, cache)
	assert.Equal(t, ActionCreate, cache.Action)
}

func TestPlanOrphanBecomesDelete(t *testing.T) {
	current := &types.Stack{
		Name: "app",
		Resources: map[string]*types.RealizedResource{
			"Database": {LogicalName: "Database", Kind: "database", PhysicalID: "db-1"},
			"Legacy":   {LogicalName: "Legacy", Kind: "queue", PhysicalID: "q-1"},
		},
	}

	plan := New(parse(t, twoResourceDoc), current)

	assert.Equal(t, 1, plan.ToDelete)
	deletes := plan.Deletes()
	require.Len(t, deletes, 1)
	assert.Equal(t, "Legacy", deletes[0].LogicalName)
	assert.Equal(t, "q-1", deletes[0].Current.PhysicalID)
}

func TestPlanIgnoresUnrealizedRecords(t *testing.T) {
	// A failed create leaves a record without a physical identifier;
	// nothing real exists, so the next operation creates it.
	current := &types.Stack{
		Name: "app",
		Resources: map[string]*types.RealizedResource{
			"Database": {LogicalName: "Database", Kind: "database", Status: types.ResourceStatusFailed},
		},
	}

	plan := New(parse(t, twoResourceDoc), current)
	assert.Equal(t, ActionCreate, plan.Change("Database").Action)
}

func TestNewDestroy(t *testing.T) {
	current := &types.Stack{
		Name: "app",
		Resources: map[string]*types.RealizedResource{
			"Database": {LogicalName: "Database", Kind: "database", PhysicalID: "db-1"},
			"Cache":    {LogicalName: "Cache", Kind: "cache", PhysicalID: "c-1"},
		},
	}

	plan := NewDestroy(current)
	assert.Equal(t, 2, plan.ToDelete)
	for _, c := range plan.Changes {
		assert.Equal(t, ActionDelete, c.Action)
	}
}

func TestPlanDestroyEmpty(t *testing.T) {
	assert.True(t, NewDestroy(nil).IsEmpty())
	assert.True(t, NewDestroy(&types.Stack{Name: "empty"}).IsEmpty())
}

func TestDiff(t *testing.T) {
	desired := map[string]interface{}{
		"size":  "large",
		"ttl":   60,
		"added": true,
	}
	current := map[string]interface{}{
		"size":    "small",
		"ttl":     60,
		"removed": "x",
	}

	changes := Diff(desired, current)
	require.Len(t, changes, 3)

	byPath := make(map[string]PropertyChange)
	for _, c := range changes {
		byPath[c.Path] = c
	}
	assert.Equal(t, "small", byPath["size"].OldValue)
	assert.Equal(t, "large", byPath["size"].NewValue)
	assert.Nil(t, byPath["added"].OldValue)
	assert.Nil(t, byPath["removed"].NewValue)
}

func TestDiffNested(t *testing.T) {
	desired := map[string]interface{}{
		"tags": map[string]interface{}{"env": "prod"},
	}
	same := map[string]interface{}{
		"tags": map[string]interface{}{"env": "prod"},
	}
	changed := map[string]interface{}{
		"tags": map[string]interface{}{"env": "dev"},
	}

	assert.Empty(t, Diff(desired, same))
	assert.Len(t, Diff(desired, changed), 1)
}
