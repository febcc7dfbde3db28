package nn

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/born-ml/babel/internal/tensor"
)

// ModuleKind distinguishes the attention sublayers of one layer.
type ModuleKind int

const (
	// SelfAttentionModule caches accumulated keys and values.
	SelfAttentionModule ModuleKind = iota
	// SourceAttentionModule caches the projected encoder context.
	SourceAttentionModule
)

func (k ModuleKind) String() string {
	switch k {
	case SelfAttentionModule:
		return "self_attn"
	case SourceAttentionModule:
		return "src_attn"
	default:
		return fmt.Sprintf("ModuleKind(%d)", int(k))
	}
}

// CacheKey is the stable identity of one cached attention sublayer.
type CacheKey struct {
	Layer  int
	Module ModuleKind
}

// CacheEntry holds keys and values as [batch·heads, len, headDim].
type CacheEntry struct {
	owner uuid.UUID
	Key   *tensor.Tensor
	Value *tensor.Tensor

	// staged keys and values of the step in progress
	key, value *tensor.Tensor
	staged     bool
}

// Len returns the number of cached positions.
func (e *CacheEntry) Len() int {
	if e == nil || e.Key == nil {
		return 0
	}
	return e.Key.Dim(1)
}

// IncrementalCache is the state of one incremental decode session.
//
// It is created empty, appended to at every decode step, and discarded when
// the session ends. Entries are keyed by (layer, module) and remember which
// module instance wrote them; a different instance reading the same key is a
// contract violation. A cache also binds to the first stack that uses it and
// rejects overlapping steps.
//
// Inside a step opened by Acquire, appended keys, values and tokens are
// staged and only become visible when the step commits. A step that fails
// part way leaves every layer at the same length.
type IncrementalCache struct {
	id      uuid.UUID
	owner   uuid.UUID
	entries map[CacheKey]*CacheEntry
	busy    atomic.Bool
	steps   int

	inStep  bool
	tokens  []int
	pending []int
}

// NewIncrementalCache creates an empty cache with a fresh session id.
func NewIncrementalCache() *IncrementalCache {
	return &IncrementalCache{
		id:      uuid.New(),
		entries: make(map[CacheKey]*CacheEntry),
	}
}

// ID returns the session id.
func (c *IncrementalCache) ID() uuid.UUID {
	return c.id
}

// Bind attaches the cache to owner on first use and panics if it is already
// attached to a different owner.
func (c *IncrementalCache) Bind(owner uuid.UUID) {
	switch c.owner {
	case uuid.Nil:
		c.owner = owner
	case owner:
	default:
		violation("IncrementalCache.Bind: session %s belongs to %s, not %s", c.id, c.owner, owner)
	}
}

// Acquire opens a decode step and returns the function that ends it.
// release(true) commits everything staged during the step; release(false)
// discards it. Overlapping steps on the same cache panic.
func (c *IncrementalCache) Acquire() (release func(commit bool)) {
	if !c.busy.CompareAndSwap(false, true) {
		violation("IncrementalCache.Acquire: session %s is already in a forward call", c.id)
	}
	c.inStep = true
	return func(commit bool) {
		for _, e := range c.entries {
			if e.staged && commit {
				e.Key, e.Value = e.key, e.value
			}
			e.key, e.value, e.staged = nil, nil, false
		}
		if commit {
			c.tokens = append(c.tokens, c.pending...)
			c.steps++
		}
		c.pending = nil
		c.inStep = false
		c.busy.Store(false)
	}
}

// Steps returns the number of committed decode steps.
func (c *IncrementalCache) Steps() int {
	return c.steps
}

// Entry returns the entry for key, or nil.
func (c *IncrementalCache) Entry(key CacheKey) *CacheEntry {
	return c.entries[key]
}

// SelfLen returns how many positions layer's self-attention has cached.
func (c *IncrementalCache) SelfLen(layer int) int {
	return c.entries[CacheKey{Layer: layer, Module: SelfAttentionModule}].Len()
}

// Tokens returns the time-major token ids recorded by committed steps.
func (c *IncrementalCache) Tokens() []int {
	return c.tokens
}

// RecordTokens records the time-major token ids of the current step. Outside
// a step they are recorded immediately.
func (c *IncrementalCache) RecordTokens(ids []int) {
	if c.inStep {
		c.pending = append(c.pending, ids...)
		return
	}
	c.tokens = append(c.tokens, ids...)
}

// entry returns the entry for key owned by module, creating it if needed.
func (c *IncrementalCache) entry(op string, key CacheKey, module uuid.UUID) *CacheEntry {
	e, ok := c.entries[key]
	if !ok {
		e = &CacheEntry{owner: module}
		c.entries[key] = e
		return e
	}
	if e.owner != module {
		violation("%s: cache entry layer %d %s belongs to another module instance", op, key.Layer, key.Module)
	}
	return e
}

// store sets the keys and values of e, staging them inside a step.
func (c *IncrementalCache) store(e *CacheEntry, k, v *tensor.Tensor) {
	if c.inStep {
		e.key, e.value, e.staged = k, v, true
		return
	}
	e.Key, e.Value = k, v
}

// Reset drops every entry and recorded token, keeping the session id and
// owner.
func (c *IncrementalCache) Reset() {
	clear(c.entries)
	c.tokens = nil
	c.steps = 0
}
