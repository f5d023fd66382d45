package scene

import (
	"context"
	"sync"
)

// Live is the scene instance owned by the editing surface. All access goes
// through its lock; waiters are woken on every edit.
type Live struct {
	mu           sync.Mutex
	cond         *sync.Cond
	scene        Scene
	stateChanged bool
}

// NewLive wraps a copy of sc's configuration and control flags. The live
// scene never owns an accumulation buffer.
func NewLive(sc *Scene) *Live {
	l := &Live{}
	l.cond = sync.NewCond(&l.mu)
	if sc != nil {
		_ = l.scene.Set(sc)
		l.scene.CopyRenderState(sc)
		l.scene.SPP = sc.SPP
		l.scene.RenderTime = sc.RenderTime
	}
	return l
}

// Sync runs fn with the live lock held and wakes all waiters afterwards.
func (l *Live) Sync(fn func(sc *Scene)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(&l.scene)
	l.cond.Broadcast()
}

// Snapshot returns a copy of the live configuration and flags.
func (l *Live) Snapshot() Scene {
	l.mu.Lock()
	defer l.mu.Unlock()
	var cp Scene
	_ = cp.Set(&l.scene)
	cp.CopyRenderState(&l.scene)
	cp.reset = l.scene.reset
	cp.SPP = l.scene.SPP
	cp.RenderTime = l.scene.RenderTime
	return cp
}

func (l *Live) wake() {
	l.mu.Lock()
	l.cond.Broadcast()
	l.mu.Unlock()
}

// WaitOnRefreshOrStateChange blocks until the scene is edited or its render
// state changes. It reports whether a refresh was pending and consumes both
// notifications.
func (l *Live) WaitOnRefreshOrStateChange(ctx context.Context) (bool, error) {
	stop := context.AfterFunc(ctx, l.wake)
	defer stop()

	l.mu.Lock()
	defer l.mu.Unlock()
	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if l.scene.refresh || l.stateChanged {
			break
		}
		l.cond.Wait()
	}

	refreshed := l.scene.refresh
	l.scene.refresh = false
	l.stateChanged = false
	return refreshed, nil
}

// PauseWait blocks while the scene is paused. An edit made while paused also
// ends the wait so that it can be merged.
func (l *Live) PauseWait(ctx context.Context) error {
	stop := context.AfterFunc(ctx, l.wake)
	defer stop()

	l.mu.Lock()
	defer l.mu.Unlock()
	for l.scene.paused && !l.scene.refresh {
		if err := ctx.Err(); err != nil {
			return err
		}
		l.cond.Wait()
	}
	l.stateChanged = false
	return nil
}

func (l *Live) read(fn func(sc *Scene) bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(&l.scene)
}

func (l *Live) IsPaused() bool {
	return l.read((*Scene).IsPaused)
}

func (l *Live) PathTrace() bool {
	return l.read((*Scene).PathTrace)
}

func (l *Live) ShouldRefresh() bool {
	return l.read((*Scene).ShouldRefresh)
}

func (l *Live) ShouldReset() bool {
	return l.read((*Scene).ShouldReset)
}

func (l *Live) ShouldSaveSnapshots() bool {
	return l.read((*Scene).ShouldSaveSnapshots)
}

// Name returns the current scene name.
func (l *Live) Name() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.scene.Name
}

func (l *Live) changeState(fn func(sc *Scene)) {
	l.Sync(func(sc *Scene) {
		fn(sc)
		l.stateChanged = true
	})
}

// StartRender switches to path tracing and resumes rendering.
func (l *Live) StartRender() {
	l.changeState(func(sc *Scene) {
		sc.pathTrace = true
		sc.paused = false
	})
}

// PauseRender pauses path tracing.
func (l *Live) PauseRender() {
	l.changeState(func(sc *Scene) { sc.paused = true })
}

// ResumeRender resumes a paused render.
func (l *Live) ResumeRender() {
	l.changeState(func(sc *Scene) { sc.paused = false })
}

// StopRender returns to preview mode. Preview frames do not accumulate, so
// this always discards the current render.
func (l *Live) StopRender() {
	l.changeState(func(sc *Scene) {
		sc.pathTrace = false
		sc.paused = false
		sc.ForceReset()
	})
}

// Refresh marks a discrete edit of the scene.
func (l *Live) Refresh() {
	l.Sync((*Scene).Refresh)
}

// ForceReset requests a refresh that always discards accumulated samples.
func (l *Live) ForceReset() {
	l.Sync((*Scene).ForceReset)
}

// SetCamera replaces the camera.
func (l *Live) SetCamera(cam Camera) {
	l.Sync(func(sc *Scene) {
		sc.Camera = cam
		sc.Refresh()
	})
}

// SetCanvasSize changes the canvas dimensions. The accumulation buffer can
// not survive a resize, so a reset is forced.
func (l *Live) SetCanvasSize(width, height int) {
	l.Sync(func(sc *Scene) {
		if sc.Width == width && sc.Height == height {
			return
		}
		sc.Width = width
		sc.Height = height
		sc.ForceReset()
	})
}

// SetTargetSPP changes the render target without touching the samples.
func (l *Live) SetTargetSPP(spp int) {
	l.Sync(func(sc *Scene) { sc.TargetSPP = max(0, spp) })
}

// SetDumpFrequency sets how often (in samples) a dump is written.
func (l *Live) SetDumpFrequency(freq int) {
	l.Sync(func(sc *Scene) { sc.DumpFrequency = max(1, freq) })
}

func (l *Live) SetSaveSnapshots(save bool) {
	l.Sync(func(sc *Scene) { sc.SaveSnapshots = save })
}

func (l *Live) SetSaveDumps(save bool) {
	l.Sync(func(sc *Scene) { sc.SaveDumps = save })
}

func (l *Live) SetExposure(exposure float64) {
	l.Sync(func(sc *Scene) { sc.Exposure = exposure })
}

func (l *Live) SetName(name string) {
	l.Sync(func(sc *Scene) { sc.Name = name })
}
