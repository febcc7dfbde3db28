package nn

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/babel/internal/backend/cpu"
	"github.com/born-ml/babel/internal/tensor"
)

func TestCacheBind(t *testing.T) {
	c := NewIncrementalCache()
	assert.NotEqual(t, uuid.Nil, c.ID())

	owner := uuid.New()
	c.Bind(owner)
	c.Bind(owner)
	requireContract(t, func() { c.Bind(uuid.New()) })
}

func TestCacheRejectsOverlappingSteps(t *testing.T) {
	c := NewIncrementalCache()
	release := c.Acquire()
	requireContract(t, func() { c.Acquire() })
	release(true)
	assert.Equal(t, 1, c.Steps())

	c.Acquire()(true)
	assert.Equal(t, 2, c.Steps())

	c.Acquire()(false)
	assert.Equal(t, 2, c.Steps())
}

func TestCacheStepCommitsOrDiscards(t *testing.T) {
	cfg := testConfig(t, nil)
	g := tensor.NewGenerator(33)
	attn, err := NewSelfAttention("attn", 0, cfg, cpu.New(), g)
	require.NoError(t, err)
	x := tensor.Randn(g, 1, 1, 2, 16)
	c := NewIncrementalCache()

	release := c.Acquire()
	attn.ForwardIncremental(x, NewPositionEmbedding(cfg, 1, 0), nil, nil, c)
	c.RecordTokens([]int{4, 5})
	assert.Equal(t, 0, c.SelfLen(0), "staged until the step commits")
	release(true)
	assert.Equal(t, 1, c.SelfLen(0))
	assert.Equal(t, []int{4, 5}, c.Tokens())

	release = c.Acquire()
	attn.ForwardIncremental(x, NewPositionEmbedding(cfg, 1, 1), nil, nil, c)
	c.RecordTokens([]int{6, 7})
	release(false)
	assert.Equal(t, 1, c.SelfLen(0))
	assert.Equal(t, []int{4, 5}, c.Tokens())

	// A bad mask is rejected before anything is appended.
	bad := &AttentionMask{KeyPadding: []bool{true}}
	requireContract(t, func() {
		attn.ForwardIncremental(x, NewPositionEmbedding(cfg, 1, 1), bad, nil, c)
	})
	assert.Equal(t, 1, c.SelfLen(0))
}

func TestCacheIsScopedPerModuleInstance(t *testing.T) {
	cfg := testConfig(t, nil)
	g := tensor.NewGenerator(31)
	a, err := NewSelfAttention("a", 0, cfg, cpu.New(), g)
	require.NoError(t, err)
	b, err := NewSelfAttention("b", 0, cfg, cpu.New(), g)
	require.NoError(t, err)
	other, err := NewSelfAttention("c", 1, cfg, cpu.New(), g)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID(), b.ID())

	x := tensor.Randn(g, 1, 1, 1, 16)
	pos := NewPositionEmbedding(cfg, 1, 0)
	cache := NewIncrementalCache()
	a.ForwardIncremental(x, pos, nil, nil, cache)

	// Same layer index, different instance.
	requireContract(t, func() {
		b.ForwardIncremental(x, NewPositionEmbedding(cfg, 1, 1), nil, nil, cache)
	})

	// A different layer index has its own entry.
	other.ForwardIncremental(x, pos, nil, nil, cache)
	assert.Equal(t, 1, cache.SelfLen(0))
	assert.Equal(t, 1, cache.SelfLen(1))

	cache.Reset()
	assert.Equal(t, 0, cache.SelfLen(0))
	assert.Equal(t, 0, cache.Steps())
}

func TestCacheSessionsAreIndependent(t *testing.T) {
	cfg := testConfig(t, nil)
	g := tensor.NewGenerator(32)
	attn, err := NewSelfAttention("attn", 0, cfg, cpu.New(), g)
	require.NoError(t, err)

	x := tensor.Randn(g, 1, 2, 1, 16)
	s1, s2 := NewIncrementalCache(), NewIncrementalCache()
	attn.ForwardIncremental(timeStep(x, 0), NewPositionEmbedding(cfg, 1, 0), nil, nil, s1)
	attn.ForwardIncremental(timeStep(x, 1), NewPositionEmbedding(cfg, 1, 1), nil, nil, s1)
	attn.ForwardIncremental(timeStep(x, 0), NewPositionEmbedding(cfg, 1, 0), nil, nil, s2)

	assert.Equal(t, 2, s1.SelfLen(0))
	assert.Equal(t, 1, s2.SelfLen(0))
}
