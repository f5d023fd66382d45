package renderer

import (
	"context"
	"fmt"
	"image"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/df07/progressive-scheduler/pkg/log"
	"github.com/df07/progressive-scheduler/pkg/scene"
)

// previewPasses is the number of non-accumulating passes rendered after a
// scene edit while not path tracing.
const previewPasses = 2

// ProgressiveConfig contains configuration for progressive rendering
type ProgressiveConfig struct {
	TileWidth   int           // Edge length of a square tile
	SPPPass     int           // Samples per pixel added by each frame
	NumThreads  int           // Number of render workers (0 = use CPU count)
	CPULoad     int           // Target CPU utilization in percent
	SceneDir    string        // Directory for descriptions, dumps and snapshots
	GracePeriod time.Duration // Edits made later than this don't reset the render
	Oneshot     bool          // Return from Run when the target is reached
}

// DefaultProgressiveConfig returns sensible default values
func DefaultProgressiveConfig() ProgressiveConfig {
	return ProgressiveConfig{
		TileWidth:   64,
		SPPPass:     1,
		NumThreads:  runtime.NumCPU(),
		CPULoad:     100,
		SceneDir:    "scenes",
		GracePeriod: 30 * time.Second,
	}
}

// Collaborators are the external parts the render manager reports to. Nil
// members are replaced by no-op implementations.
type Collaborators struct {
	Display  Display
	Store    SceneStore
	Listener StatusListener
	Chunks   ChunkProvider // optional
}

// RenderManager drives progressive rendering of a scene. It owns the
// buffered scene rendered by the workers; user edits go to the live scene
// and are merged at frame boundaries.
//
// Lock order: bufferMu, then the live scene lock.
type RenderManager struct {
	config   ProgressiveConfig
	live     *scene.Live
	buffered *scene.Scene
	bufferMu sync.Mutex // held while a frame is in flight

	queue *JobQueue
	pool  *WorkerPool
	jobs  TileGrid // job set of the current frame, guarded by bufferMu

	display  Display
	store    SceneStore
	listener StatusListener
	chunks   ChunkProvider
	logger   log.Logger

	tileWidth    atomic.Int32
	updateBuffer atomic.Bool

	// Owned by the Run goroutine.
	dumpNextFrame bool
	pathTracing   bool
	paused        bool
}

// NewRenderManager creates a render manager for sc. Workers are started
// immediately but stay idle until Run issues the first frame.
func NewRenderManager(sc *scene.Scene, tracer PassRenderer, config ProgressiveConfig, collab Collaborators, logger log.Logger) *RenderManager {
	if logger == nil {
		logger = log.New("renderer")
	}
	if collab.Display == nil {
		collab.Display = NopDisplay{}
	}
	if collab.Store == nil {
		collab.Store = scene.NewFileStore()
	}
	if collab.Listener == nil {
		collab.Listener = NopListener{}
	}
	config.SPPPass = max(1, config.SPPPass)

	buffered := &scene.Scene{}
	if err := buffered.Set(sc); err != nil {
		logger.Errorf("failed to copy initial scene: %v", err)
	}
	buffered.CopyRenderState(sc)
	buffered.ResetAccumulation()

	rm := &RenderManager{
		config:   config,
		live:     scene.NewLive(sc),
		buffered: buffered,
		queue:    NewJobQueue(),
		display:  collab.Display,
		store:    collab.Store,
		listener: collab.Listener,
		chunks:   collab.Chunks,
		logger:   logger,
		paused:   true,
	}
	rm.SetTileWidth(config.TileWidth)
	rm.jobs = NewTileGrid(buffered.Width, buffered.Height, rm.TileWidth())
	rm.pool = NewWorkerPool(rm.queue, tracer, buffered, config.SPPPass, config.NumThreads, logger)
	if config.CPULoad > 0 {
		rm.pool.SetCPULoad(config.CPULoad)
	}
	return rm
}

// Scene returns the live scene. Edits made through it are picked up at the
// next frame boundary.
func (rm *RenderManager) Scene() *scene.Live { return rm.live }

// SetNumThreads requests a new worker count, applied after the current frame
func (rm *RenderManager) SetNumThreads(n int) { rm.pool.SetNumThreads(n) }

// NumThreads returns the requested worker count
func (rm *RenderManager) NumThreads() int { return rm.pool.NumThreads() }

// Workers returns the number of running workers
func (rm *RenderManager) Workers() int { return rm.pool.Workers() }

// SetCPULoad sets the target CPU utilization of the workers in percent
func (rm *RenderManager) SetCPULoad(load int) { rm.pool.SetCPULoad(load) }

// SetTileWidth sets the tile edge length used from the next frame on
func (rm *RenderManager) SetTileWidth(width int) { rm.tileWidth.Store(int32(max(1, width))) }

// TileWidth returns the tile edge length
func (rm *RenderManager) TileWidth() int { return int(rm.tileWidth.Load()) }

// SceneDir returns the directory scenes are saved to and loaded from
func (rm *RenderManager) SceneDir() string { return rm.config.SceneDir }

// SetBufferFinalization controls whether frames are tone mapped for display.
// Enabling it while previewing requests a refresh so the preview is redrawn.
func (rm *RenderManager) SetBufferFinalization(finalize bool) {
	if rm.updateBuffer.Swap(finalize) == finalize {
		return
	}
	if finalize {
		rm.logger.Debug("buffer finalization enabled")
		rm.live.Sync(func(live *scene.Scene) {
			if !live.PathTrace() {
				live.Refresh()
			}
		})
	} else {
		rm.logger.Debug("buffer finalization disabled")
	}
}

// Frame returns a copy of the last finalized frame
func (rm *RenderManager) Frame() *image.RGBA {
	rm.bufferMu.Lock()
	defer rm.bufferMu.Unlock()
	return rm.buffered.FrameCopy()
}

// Stats returns the render statistics of the buffered scene
func (rm *RenderManager) Stats() RenderStats {
	rm.bufferMu.Lock()
	defer rm.bufferMu.Unlock()
	return NewRenderStats(rm.buffered)
}

// PixelInfo describes the accumulated state of one pixel
type PixelInfo struct {
	X, Y    int
	R, G, B float64
	SPP     int
}

// Pixel returns the accumulated color of pixel (x, y)
func (rm *RenderManager) Pixel(x, y int) (PixelInfo, bool) {
	rm.bufferMu.Lock()
	defer rm.bufferMu.Unlock()

	r, g, b, ok := rm.buffered.Sample(x, y)
	if !ok {
		return PixelInfo{}, false
	}
	return PixelInfo{X: x, Y: y, R: r, G: g, B: b, SPP: rm.buffered.SPP}, true
}

// RevertPendingSceneChanges discards edits to the live scene that have not
// been merged yet.
func (rm *RenderManager) RevertPendingSceneChanges() {
	rm.bufferMu.Lock()
	defer rm.bufferMu.Unlock()

	rm.live.Sync(func(live *scene.Scene) {
		if err := live.Set(rm.buffered); err != nil {
			rm.logger.Errorf("failed to revert scene changes: %v", err)
		}
		live.SetRefreshed()
	})
	rm.logger.Info("pending scene changes reverted")
}

// Close stops the workers of a manager that is not running.
func (rm *RenderManager) Close() {
	rm.pool.Stop()
}

// Run executes the render loop until ctx is cancelled. In oneshot mode it
// returns after one pass through the preview or path tracing loop. The
// worker pool is stopped on return. Cancellation is not an error.
func (rm *RenderManager) Run(ctx context.Context) (err error) {
	defer rm.pool.Stop()
	defer func() {
		if r := recover(); r != nil {
			rm.logger.Errorf("uncaught exception in render manager: %v\n%s", r, debug.Stack())
			err = fmt.Errorf("%w: %v", ErrRenderFault, r)
		}
	}()

	for {
		refreshed, err := rm.live.WaitOnRefreshOrStateChange(ctx)
		if err != nil {
			return nil
		}

		pathTrace, err := rm.mergeLiveScene(refreshed)
		if err != nil {
			return err
		}

		if pathTrace {
			err = rm.pathTraceLoop(ctx)
		} else {
			err = rm.previewLoop(ctx)
		}
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return err
		}
		if rm.config.Oneshot {
			return nil
		}
	}
}

// mergeLiveScene brings the buffered scene up to date with the live scene
// after a wake-up. It returns whether the buffered scene is path tracing.
func (rm *RenderManager) mergeLiveScene(refreshed bool) (bool, error) {
	rm.bufferMu.Lock()
	defer rm.bufferMu.Unlock()

	var prevented, changed bool
	var err error
	rm.live.Sync(func(live *scene.Scene) {
		changed = rm.updateRenderState(live)
		rm.buffered.CopyRenderState(live)
		prevented, err = mergeScene(rm.buffered, live, refreshed, rm.config.GracePeriod)
	})
	if err != nil {
		return false, err
	}
	rm.jobs = NewTileGrid(rm.buffered.Width, rm.buffered.Height, rm.TileWidth())

	if changed {
		rm.listener.OnStateChanged(rm.pathTracing, rm.paused)
	}
	if prevented {
		rm.logger.Info("scene edit made after the grace period, reset prevented")
		rm.listener.OnResetPrevented()
	}
	return rm.buffered.PathTrace(), nil
}

// mergeScene applies live edits to buffered. An edit that does not force a
// reset is refused once buffered has rendered longer than the grace period;
// a plain render state change keeps the accumulated samples.
func mergeScene(buffered, live *scene.Scene, refreshed bool, grace time.Duration) (prevented bool, err error) {
	if refreshed && !live.ShouldReset() && buffered.RenderTime > grace.Milliseconds() {
		return true, nil
	}
	if !refreshed && !live.ShouldReset() {
		return false, nil
	}

	if err := buffered.Set(live); err != nil {
		return false, err
	}
	buffered.ResetAccumulation()
	live.SetRefreshed()
	return false, nil
}

// updateRenderState records the live render state and reports whether it
// changed since the last call. Must be called with the live lock held.
func (rm *RenderManager) updateRenderState(live *scene.Scene) bool {
	pathTracing, paused := live.PathTrace(), live.IsPaused()
	if pathTracing == rm.pathTracing && paused == rm.paused {
		return false
	}
	rm.pathTracing, rm.paused = pathTracing, paused
	return true
}

// refreshRenderState notifies the listener if the live render state changed.
func (rm *RenderManager) refreshRenderState() {
	var changed bool
	rm.live.Sync(func(live *scene.Scene) {
		changed = rm.updateRenderState(live)
	})
	if changed {
		rm.listener.OnStateChanged(rm.pathTracing, rm.paused)
	}
}

// previewLoop renders the non-accumulating preview passes. Previews are
// only rendered when someone is looking at the frames.
func (rm *RenderManager) previewLoop(ctx context.Context) error {
	rm.listener.OnProgress("Preview", 0, 0, previewPasses, "")

	rm.bufferMu.Lock()
	rm.buffered.PreviewCount = previewPasses
	rm.bufferMu.Unlock()

	for {
		if !rm.updateBuffer.Load() || rm.live.ShouldRefresh() {
			return nil
		}

		frame, remaining, err := rm.renderPreviewFrame(ctx)
		if err != nil || frame == nil {
			return err
		}
		rm.display.Present(frame, frame.Rect.Dx(), frame.Rect.Dy())
		rm.listener.OnProgress("Preview", previewPasses-remaining, 0, previewPasses, "")
	}
}

// renderPreviewFrame renders one preview pass. It returns a nil frame when
// all preview passes are done.
func (rm *RenderManager) renderPreviewFrame(ctx context.Context) (*image.RGBA, int, error) {
	rm.bufferMu.Lock()
	defer rm.bufferMu.Unlock()

	if rm.buffered.PreviewCount <= 0 {
		return nil, 0, nil
	}
	// Preview passes don't count toward the render time
	rm.giveTickets()
	if err := rm.waitOnWorkers(ctx); err != nil {
		return nil, 0, err
	}
	rm.buffered.UpdateCanvas()
	rm.buffered.PreviewCount--
	rm.buffered.SPP = 0
	return rm.buffered.FrameCopy(), rm.buffered.PreviewCount, nil
}

// pathTraceLoop accumulates frames until the live scene is edited. Once the
// target SPP is reached the scene is paused; in oneshot mode the loop returns.
func (rm *RenderManager) pathTraceLoop(ctx context.Context) error {
	for {
		if rm.live.IsPaused() {
			rm.refreshRenderState()
			if err := rm.live.PauseWait(ctx); err != nil {
				return err
			}
			rm.refreshRenderState()
		}

		if rm.live.ShouldRefresh() {
			return nil
		}

		frame, stats, dump, err := rm.renderPathTraceFrame(ctx)
		if err != nil {
			return err
		}

		if frame != nil {
			rm.display.Present(frame, frame.Rect.Dx(), frame.Rect.Dy())
		}
		rm.listener.OnProgress("Rendering", stats.SPP, 0, stats.TargetSPP, stats.ETA)

		if dump {
			// Failures are reported to the listener, rendering continues.
			_ = rm.SaveScene()
			rm.listener.OnProgress("Rendering", stats.SPP, 0, stats.TargetSPP, stats.ETA)
		}

		if stats.SPP >= stats.TargetSPP {
			rm.logger.Noticef("render target of %d spp reached in %s", stats.TargetSPP, FormatDuration(stats.RenderTime/1000))
			rm.live.PauseRender()
			rm.pathTracing, rm.paused = true, true
			rm.listener.OnStateChanged(true, true)
			rm.listener.OnJobFinished(stats.RenderTime, stats.SamplesPerSecond)
			if rm.config.Oneshot {
				return nil
			}
		}
	}
}

// renderPathTraceFrame renders one accumulating frame. The returned frame is
// nil unless the frame was finalized.
func (rm *RenderManager) renderPathTraceFrame(ctx context.Context) (frame *image.RGBA, stats RenderStats, dump bool, err error) {
	rm.bufferMu.Lock()
	defer rm.bufferMu.Unlock()

	start := time.Now()
	rm.giveTickets()
	if err := rm.waitOnWorkers(ctx); err != nil {
		return nil, stats, false, err
	}
	finalized := rm.buffered.UpdateCanvas()
	rm.buffered.RenderTime += time.Since(start).Milliseconds()
	rm.buffered.SPP += rm.config.SPPPass
	stats = NewRenderStats(rm.buffered)
	dump = rm.dumpNextFrame

	if finalized {
		frame = rm.buffered.FrameCopy()
		if dump && (rm.live.ShouldSaveSnapshots() || stats.SPP >= stats.TargetSPP) {
			rm.saveSnapshotLocked(frame)
		}
	}
	return frame, stats, dump, nil
}

// giveTickets starts a new frame. Must be called with bufferMu held.
func (rm *RenderManager) giveTickets() {
	rm.live.Sync(func(live *scene.Scene) {
		rm.buffered.CopyTransients(live)
	})

	nextSpp := rm.buffered.SPP + rm.config.SPPPass
	dumpFrequency := max(1, rm.buffered.DumpFrequency)
	rm.dumpNextFrame = nextSpp >= rm.buffered.TargetSPP ||
		rm.buffered.ShouldSaveDumps() && nextSpp%dumpFrequency == 0
	rm.buffered.SetBufferFinalization(rm.updateBuffer.Load() || rm.dumpNextFrame)

	rm.jobs = NewTileGrid(rm.buffered.Width, rm.buffered.Height, rm.TileWidth())
	rm.queue.Reset(rm.jobs)
}

// waitOnWorkers waits for the current frame and applies pending worker pool
// changes while the workers are idle.
func (rm *RenderManager) waitOnWorkers(ctx context.Context) error {
	if err := rm.queue.AwaitFrameComplete(ctx); err != nil {
		return err
	}
	rm.pool.Manage()
	return nil
}
