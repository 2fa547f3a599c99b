// Package pipeline implements the staged analysis pipeline: the shared
// data-flow context, the closed set of stage descriptors, the validation
// gate, the stage executor, and the controller state machine that drives
// them and assembles the persisted aggregate result.
package pipeline

import (
	"github.com/example/maps/internal/types"
)

// Context is the per-run key/value data-flow bus connecting pipeline stages.
// Each run owns an independent instance; nothing is shared across runs.
//
// Keys are write-once per run with one exception: the stage that first wrote
// a key may overwrite it. A write to a key owned by another stage is a
// programming-contract violation. Execution within a run is single-threaded
// by construction, so no locking is needed.
type Context struct {
	values map[string]any
	owners map[string]types.StageID
}

// NewContext creates an empty shared context for one run.
func NewContext() *Context {
	return &Context{
		values: make(map[string]any),
		owners: make(map[string]types.StageID),
	}
}

// Set stores a value under key on behalf of the given stage. Overwrites are
// permitted only when the same stage previously wrote the key.
func (c *Context) Set(stage types.StageID, key string, value any) error {
	if owner, exists := c.owners[key]; exists && owner != stage {
		return &types.ContextViolationError{Key: key, Owner: owner, Writer: stage}
	}
	c.values[key] = value
	c.owners[key] = stage
	return nil
}

// Get returns the value stored under key, or a MissingKeyError when absent.
func (c *Context) Get(key string) (any, error) {
	value, exists := c.values[key]
	if !exists {
		return nil, &types.MissingKeyError{Key: key}
	}
	return value, nil
}

// Has reports whether key exists in the context.
func (c *Context) Has(key string) bool {
	_, exists := c.values[key]
	return exists
}

// Owner returns the stage that wrote key, or empty when the key is absent.
func (c *Context) Owner(key string) types.StageID {
	return c.owners[key]
}

// Snapshot returns a fresh map copy of the current contents for assembly
// and audit. Mutating the snapshot never affects the live context.
func (c *Context) Snapshot() map[string]any {
	snap := make(map[string]any, len(c.values))
	for k, v := range c.values {
		snap[k] = v
	}
	return snap
}

// Len returns the number of stored keys.
func (c *Context) Len() int {
	return len(c.values)
}
