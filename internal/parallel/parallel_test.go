package parallel

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForVisitsEveryItemOnce(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 4, MinWork: 1}
	seen := make([]int32, 1000)
	For(len(seen), 1, cfg, func(i int) {
		atomic.AddInt32(&seen[i], 1)
	})
	for i, n := range seen {
		assert.Equal(t, int32(1), n, "item %d", i)
	}
}

func TestRangeChunks(t *testing.T) {
	tests := []struct {
		name   string
		n      int
		cost   int
		cfg    Config
		chunks int
	}{
		{"sequential", 100, 1, Sequential, 1},
		{"too little work", 100, 1, Config{Enabled: true, NumWorkers: 8, MinWork: 1000}, 1},
		{"split", 100, 100, Config{Enabled: true, NumWorkers: 4, MinWork: 1000}, 4},
		{"fewer items than workers", 3, 1 << 20, Config{Enabled: true, NumWorkers: 8, MinWork: 1}, 3},
		{"empty", 0, 1, DefaultConfig(), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var chunks, covered atomic.Int64
			Range(tt.n, tt.cost, tt.cfg, func(lo, hi int) {
				chunks.Add(1)
				covered.Add(int64(hi - lo))
			})
			assert.Equal(t, int64(tt.chunks), chunks.Load())
			assert.Equal(t, int64(tt.n), covered.Load())
		})
	}
}
