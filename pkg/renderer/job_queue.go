package renderer

import (
	"context"
	"image"
	"sync"
)

// Job is one tile of the current frame
type Job struct {
	Index  int
	Bounds image.Rectangle
}

// ticket identifies a queue consumer that can be interrupted while it waits
// for work. Guarded by the queue mutex.
type ticket struct {
	interrupted bool
}

// JobQueue hands out the tiles of a frame exactly once and acts as the frame
// barrier. Indices are handed out in increasing order; completion order is
// unspecified.
type JobQueue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	grid     TileGrid
	numJobs  int
	next     int
	finished int
}

// NewJobQueue creates an empty job queue. Consumers block until the first Reset.
func NewJobQueue() *JobQueue {
	q := &JobQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Reset starts a new frame over the tiles of grid and wakes all consumers
// waiting on the previous frame.
func (q *JobQueue) Reset(grid TileGrid) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.grid = grid
	q.numJobs = grid.Count()
	q.next = 0
	q.finished = 0
	q.cond.Broadcast()
}

// Len returns the number of tiles in the current frame.
func (q *JobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.numJobs
}

// Next takes the next tile. When the frame is exhausted it blocks until the
// next Reset. It returns false once t has been interrupted.
func (q *JobQueue) Next(t *ticket) (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if t.interrupted {
			return Job{}, false
		}
		if q.next < q.numJobs {
			idx := q.next
			q.next++
			return Job{Index: idx, Bounds: q.grid.Bounds(idx)}, true
		}
		q.cond.Wait()
	}
}

// Interrupt makes t's current or next call to Next return false.
func (q *JobQueue) Interrupt(t *ticket) {
	q.mu.Lock()
	defer q.mu.Unlock()

	t.interrupted = true
	q.cond.Broadcast()
}

// Done reports completion of one tile.
func (q *JobQueue) Done() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.finished++
	if q.finished >= q.numJobs {
		q.cond.Broadcast()
	}
}

// AwaitFrameComplete blocks until every tile of the current frame has been
// reported done.
func (q *JobQueue) AwaitFrameComplete(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for q.finished < q.numJobs {
		if err := ctx.Err(); err != nil {
			return err
		}
		q.cond.Wait()
	}
	return nil
}
