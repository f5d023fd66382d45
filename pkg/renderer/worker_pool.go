package renderer

import (
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/df07/progressive-scheduler/pkg/log"
	"github.com/df07/progressive-scheduler/pkg/scene"
)

// WorkerPool manages the render workers. Resizing is requested at any time
// with SetNumThreads but only applied by Manage, which the render manager
// calls between frames.
type WorkerPool struct {
	queue   *JobQueue
	tracer  PassRenderer
	scene   *scene.Scene // buffered scene rendered by the workers
	samples int          // samples per pass
	logger  log.Logger

	mu       sync.Mutex // guards workers and nextSeed
	workers  []*Worker
	nextSeed int64
	wg       sync.WaitGroup

	numThreads atomic.Int32
	cpuLoad    atomic.Int32
}

// Worker renders tiles taken from the job queue with a private random source
type Worker struct {
	ID     int
	Seed   int64
	random *rand.Rand
	ticket ticket
	pool   *WorkerPool
}

// NewWorkerPool creates a worker pool rendering sc and starts numThreads
// workers (0 = use CPU count).
func NewWorkerPool(queue *JobQueue, tracer PassRenderer, sc *scene.Scene, samples, numThreads int, logger log.Logger) *WorkerPool {
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}
	if logger == nil {
		logger = log.New("renderer")
	}

	wp := &WorkerPool{
		queue:   queue,
		tracer:  tracer,
		scene:   sc,
		samples: max(1, samples),
		logger:  logger,
	}
	wp.numThreads.Store(int32(numThreads))
	wp.cpuLoad.Store(100)
	wp.Manage()
	return wp
}

// SetNumThreads requests a new worker count. It takes effect at the next
// frame boundary.
func (wp *WorkerPool) SetNumThreads(n int) {
	wp.numThreads.Store(int32(max(1, n)))
}

// NumThreads returns the requested worker count
func (wp *WorkerPool) NumThreads() int {
	return int(wp.numThreads.Load())
}

// SetCPULoad sets the target CPU utilization in percent (1-100)
func (wp *WorkerPool) SetCPULoad(load int) {
	wp.cpuLoad.Store(int32(min(100, max(1, load))))
}

// CPULoad returns the target CPU utilization in percent
func (wp *WorkerPool) CPULoad() int {
	return int(wp.cpuLoad.Load())
}

// Workers returns the number of running workers
func (wp *WorkerPool) Workers() int {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	return len(wp.workers)
}

// Seeds returns the seeds of the running workers
func (wp *WorkerPool) Seeds() []int64 {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	seeds := make([]int64, len(wp.workers))
	for i, w := range wp.workers {
		seeds[i] = w.Seed
	}
	return seeds
}

// Manage applies a pending resize. Surplus workers are interrupted and exit
// at their next tile acquisition; new workers get seeds that no earlier
// worker has used.
func (wp *WorkerPool) Manage() {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	n := int(wp.numThreads.Load())
	if n == len(wp.workers) {
		return
	}

	base := max(time.Now().UnixMilli(), wp.nextSeed)
	pool := make([]*Worker, n)
	i := copy(pool, wp.workers)
	for ; i < n; i++ {
		w := &Worker{
			ID:     i,
			Seed:   base + int64(i),
			random: rand.New(rand.NewSource(base + int64(i))),
			pool:   wp,
		}
		pool[i] = w
		wp.wg.Add(1)
		go w.run()
	}
	for ; i < len(wp.workers); i++ {
		wp.queue.Interrupt(&wp.workers[i].ticket)
	}
	wp.nextSeed = base + int64(n)

	wp.logger.Debugf("worker pool resized from %d to %d workers", len(wp.workers), n)
	wp.workers = pool
}

// Stop interrupts all workers and waits for them to exit
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	for _, w := range wp.workers {
		wp.queue.Interrupt(&w.ticket)
	}
	wp.workers = nil
	wp.mu.Unlock()

	wp.wg.Wait()
}

// run is the main worker loop
func (w *Worker) run() {
	defer w.pool.wg.Done()

	for {
		job, ok := w.pool.queue.Next(&w.ticket)
		if !ok {
			return
		}

		start := time.Now()
		w.renderTile(job)
		w.pool.queue.Done()
		w.throttle(time.Since(start))
	}
}

// renderTile renders one tile. Failures are logged and never escape: the
// frame barrier must still see the tile as done.
func (w *Worker) renderTile(job Job) {
	defer func() {
		if r := recover(); r != nil {
			w.pool.logger.Errorf("worker %d: tile %d %v panicked: %v", w.ID, job.Index, job.Bounds, r)
		}
	}()

	if err := w.pool.tracer.RenderTile(w.pool.scene, job.Bounds, w.random, w.pool.samples); err != nil {
		w.pool.logger.Warningf("worker %d: tile %d %v: %v", w.ID, job.Index, job.Bounds, err)
	}
}

// throttle sleeps long enough to keep this worker at the configured CPU load
func (w *Worker) throttle(elapsed time.Duration) {
	load := time.Duration(w.pool.cpuLoad.Load())
	if load >= 100 || load <= 0 {
		return
	}
	time.Sleep(elapsed * (100 - load) / load)
}
