package renderer

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func renderFrame(t *testing.T, q *JobQueue, grid TileGrid) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	q.Reset(grid)
	require.NoError(t, q.AwaitFrameComplete(ctx))
}

func TestWorkerPoolRendersEveryTile(t *testing.T) {
	sc := newTestScene("pool")
	tracer := &countingTracer{}
	q := NewJobQueue()
	pool := NewWorkerPool(q, tracer, sc, 3, 4, nil)
	defer pool.Stop()

	grid := NewTileGrid(sc.Width, sc.Height, 10)
	renderFrame(t, q, grid)

	assert.Equal(t, int64(grid.Count()), tracer.calls.Load())
	assert.Equal(t, int64(grid.Count()*3), tracer.samples.Load())

	r, g, b, ok := sc.Sample(39, 29)
	require.True(t, ok)
	assert.InDelta(t, 0.5, r, 1e-9)
	assert.InDelta(t, 0.25, g, 1e-9)
	assert.InDelta(t, 0.125, b, 1e-9)
}

func TestWorkerPoolResizeAppliedByManage(t *testing.T) {
	q := NewJobQueue()
	pool := NewWorkerPool(q, &countingTracer{}, newTestScene("pool"), 1, 2, nil)
	defer pool.Stop()

	require.Equal(t, 2, pool.Workers())

	pool.SetNumThreads(5)
	assert.Equal(t, 5, pool.NumThreads())
	assert.Equal(t, 2, pool.Workers(), "resize must wait for Manage")

	pool.Manage()
	assert.Equal(t, 5, pool.Workers())

	pool.SetNumThreads(1)
	pool.Manage()
	assert.Equal(t, 1, pool.Workers())

	pool.SetNumThreads(0)
	assert.Equal(t, 1, pool.NumThreads(), "at least one worker")
}

func TestWorkerPoolSeedsAreUnique(t *testing.T) {
	q := NewJobQueue()
	pool := NewWorkerPool(q, &countingTracer{}, newTestScene("pool"), 1, 3, nil)
	defer pool.Stop()

	seen := make(map[int64]bool)
	record := func() {
		for _, seed := range pool.Seeds() {
			seen[seed] = true
		}
	}

	record()
	for _, n := range []int{1, 4, 2, 6} {
		pool.SetNumThreads(n)
		pool.Manage()
		record()
	}

	// 3 initial workers, then 3 more at 4 and 4 more at 6
	assert.Len(t, seen, 10)
}

func TestWorkerPoolShrunkWorkersExit(t *testing.T) {
	sc := newTestScene("pool")
	tracer := &countingTracer{}
	q := NewJobQueue()
	pool := NewWorkerPool(q, tracer, sc, 1, 6, nil)
	defer pool.Stop()

	grid := NewTileGrid(sc.Width, sc.Height, 10)
	renderFrame(t, q, grid)

	pool.SetNumThreads(2)
	pool.Manage()

	// Frames keep completing with the remaining workers
	for i := 0; i < 3; i++ {
		renderFrame(t, q, grid)
	}
	assert.Equal(t, int64(4*grid.Count()), tracer.calls.Load())
}

func TestWorkerPoolStop(t *testing.T) {
	q := NewJobQueue()
	pool := NewWorkerPool(q, &countingTracer{}, newTestScene("pool"), 1, 4, nil)

	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
	assert.Equal(t, 0, pool.Workers())
}

func TestWorkerPoolSurvivesTileFailures(t *testing.T) {
	sc := newTestScene("pool")
	grid := NewTileGrid(sc.Width, sc.Height, 10)
	tracer := &countingTracer{
		fail: func(bounds image.Rectangle) error {
			switch bounds {
			case grid.Bounds(0):
				panic("tile exploded")
			case grid.Bounds(1):
				return errors.New("tile failed")
			}
			return nil
		},
	}
	q := NewJobQueue()
	pool := NewWorkerPool(q, tracer, sc, 1, 2, nil)
	defer pool.Stop()

	renderFrame(t, q, grid)
	renderFrame(t, q, grid)

	assert.Equal(t, int64(2*grid.Count()), tracer.calls.Load())
	assert.Equal(t, 2, pool.Workers())
}

func TestWorkerPoolCPULoad(t *testing.T) {
	q := NewJobQueue()
	pool := NewWorkerPool(q, &countingTracer{}, newTestScene("pool"), 1, 1, nil)
	defer pool.Stop()

	assert.Equal(t, 100, pool.CPULoad())
	pool.SetCPULoad(0)
	assert.Equal(t, 1, pool.CPULoad())
	pool.SetCPULoad(250)
	assert.Equal(t, 100, pool.CPULoad())
	pool.SetCPULoad(50)
	assert.Equal(t, 50, pool.CPULoad())
}
