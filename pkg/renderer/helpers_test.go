package renderer

import (
	"errors"
	"image"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/df07/progressive-scheduler/pkg/scene"
)

// countingTracer writes a constant color and counts tile renders
type countingTracer struct {
	calls   atomic.Int64
	samples atomic.Int64
	fail    func(bounds image.Rectangle) error
}

func (c *countingTracer) RenderTile(sc *scene.Scene, bounds image.Rectangle, random *rand.Rand, samples int) error {
	c.calls.Add(1)
	c.samples.Add(int64(samples))
	if c.fail != nil {
		if err := c.fail(bounds); err != nil {
			return err
		}
	}
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			n := float64(samples)
			sc.Accumulate(x, y, 0.5*n, 0.25*n, 0.125*n, samples)
		}
	}
	return nil
}

// recordingListener records every notification
type recordingListener struct {
	mu             sync.Mutex
	progress       []string
	rendering      []int
	states         [][2]bool
	resetPrevented int
	jobsFinished   int
	saved          int
	loaded         int
	failed         []string
	chunks         int
}

func (l *recordingListener) OnProgress(task string, done, start, target int, eta string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.progress = append(l.progress, task)
	if task == "Rendering" {
		l.rendering = append(l.rendering, done)
	}
}

func (l *recordingListener) OnStateChanged(pathTracing, paused bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, [2]bool{pathTracing, paused})
}

func (l *recordingListener) OnResetPrevented() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetPrevented++
}

func (l *recordingListener) OnJobFinished(renderTime int64, samplesPerSecond float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.jobsFinished++
}

func (l *recordingListener) OnSceneSaved() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.saved++
}

func (l *recordingListener) OnSceneLoaded() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loaded++
}

func (l *recordingListener) OnTaskFailed(task string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failed = append(l.failed, task)
}

func (l *recordingListener) OnChunksLoaded() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.chunks++
}

func (l *recordingListener) count(task string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, p := range l.progress {
		if p == task {
			n++
		}
	}
	return n
}

// renderingProgress returns the SPP of every "Rendering" progress report
func (l *recordingListener) renderingProgress() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]int(nil), l.rendering...)
}

func (l *recordingListener) finishedJobs() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.jobsFinished
}

func (l *recordingListener) failures() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.failed...)
}

// channelDisplay forwards presented frames to a channel without blocking
type channelDisplay struct {
	frames chan *image.RGBA
}

func newChannelDisplay() *channelDisplay {
	return &channelDisplay{frames: make(chan *image.RGBA, 64)}
}

func (d *channelDisplay) Present(frame *image.RGBA, width, height int) {
	select {
	case d.frames <- frame:
	default:
	}
}

// failingStore fails every operation
type failingStore struct{}

var errStore = errors.New("store unavailable")

func (failingStore) Save(string, *scene.Scene) error { return errStore }

func (failingStore) Load(string, string) (*scene.Scene, error) { return nil, errStore }

func (failingStore) LoadDump(string) (*scene.Dump, error) { return nil, errStore }

func (failingStore) SaveSnapshot(string, image.Image) error { return errStore }

// newTestScene creates a small scene for manager tests
func newTestScene(name string) *scene.Scene {
	sc := scene.New(name)
	sc.Width = 40
	sc.Height = 30
	sc.ResetAccumulation()
	return sc
}

// newTestManager creates a manager with 10 pixel tiles writing to a
// temporary scene directory
func newTestManager(sc *scene.Scene, tracer PassRenderer, dir string, collab Collaborators) *RenderManager {
	config := DefaultProgressiveConfig()
	config.TileWidth = 10
	config.NumThreads = 4
	config.SceneDir = dir
	return NewRenderManager(sc, tracer, config, collab, nil)
}
