package renderer

import (
	"bytes"
	"fmt"
	"image"

	"github.com/olekukonko/tablewriter"

	"github.com/df07/progressive-scheduler/pkg/log"
	"github.com/df07/progressive-scheduler/pkg/scene"
)

// StatusListener receives fire-and-forget status notifications from the
// render manager. Implementations must not block and must not call back into
// the render manager synchronously.
type StatusListener interface {
	OnProgress(task string, done, start, target int, eta string)
	OnStateChanged(pathTracing, paused bool)
	OnResetPrevented()
	OnJobFinished(renderTime int64, samplesPerSecond float64)
	OnSceneSaved()
	OnSceneLoaded()
	OnTaskFailed(task string)
	OnChunksLoaded()
}

// Display presents finalized frames. The image belongs to the display.
type Display interface {
	Present(frame *image.RGBA, width, height int)
}

// DisplayFunc adapts a function to the Display interface
type DisplayFunc func(frame *image.RGBA, width, height int)

func (f DisplayFunc) Present(frame *image.RGBA, width, height int) { f(frame, width, height) }

// SceneStore persists scenes, render dumps and snapshots.
type SceneStore interface {
	Save(dir string, sc *scene.Scene) error
	Load(dir, name string) (*scene.Scene, error)
	LoadDump(path string) (*scene.Dump, error)
	SaveSnapshot(path string, img image.Image) error
}

// ChunkProvider loads world chunks for a scene. It returns the positions that
// were actually loaded.
type ChunkProvider interface {
	LoadChunks(positions []scene.ChunkPosition) ([]scene.ChunkPosition, error)
}

// NopListener ignores all notifications.
type NopListener struct{}

func (NopListener) OnProgress(string, int, int, int, string) {}
func (NopListener) OnStateChanged(bool, bool)                {}
func (NopListener) OnResetPrevented()                        {}
func (NopListener) OnJobFinished(int64, float64)             {}
func (NopListener) OnSceneSaved()                            {}
func (NopListener) OnSceneLoaded()                           {}
func (NopListener) OnTaskFailed(string)                      {}
func (NopListener) OnChunksLoaded()                          {}

// NopDisplay discards frames.
type NopDisplay struct{}

func (NopDisplay) Present(*image.RGBA, int, int) {}

// MultiListener fans notifications out to several listeners in order.
type MultiListener []StatusListener

func (m MultiListener) OnProgress(task string, done, start, target int, eta string) {
	for _, l := range m {
		l.OnProgress(task, done, start, target, eta)
	}
}

func (m MultiListener) OnStateChanged(pathTracing, paused bool) {
	for _, l := range m {
		l.OnStateChanged(pathTracing, paused)
	}
}

func (m MultiListener) OnResetPrevented() {
	for _, l := range m {
		l.OnResetPrevented()
	}
}

func (m MultiListener) OnJobFinished(renderTime int64, samplesPerSecond float64) {
	for _, l := range m {
		l.OnJobFinished(renderTime, samplesPerSecond)
	}
}

func (m MultiListener) OnSceneSaved() {
	for _, l := range m {
		l.OnSceneSaved()
	}
}

func (m MultiListener) OnSceneLoaded() {
	for _, l := range m {
		l.OnSceneLoaded()
	}
}

func (m MultiListener) OnTaskFailed(task string) {
	for _, l := range m {
		l.OnTaskFailed(task)
	}
}

func (m MultiListener) OnChunksLoaded() {
	for _, l := range m {
		l.OnChunksLoaded()
	}
}

// LogListener reports status through a logger. Finished jobs are summarised
// as a table.
type LogListener struct {
	logger log.Logger
}

// NewLogListener creates a listener logging to logger
func NewLogListener(logger log.Logger) *LogListener {
	return &LogListener{logger: logger}
}

func (l *LogListener) OnProgress(task string, done, start, target int, eta string) {
	if eta != "" {
		l.logger.Debugf("%s: %d/%d (ETA %s)", task, done-start, target-start, eta)
		return
	}
	l.logger.Debugf("%s: %d/%d", task, done-start, target-start)
}

func (l *LogListener) OnStateChanged(pathTracing, paused bool) {
	l.logger.Infof("render state: %s", stateName(pathTracing, paused))
}

func (l *LogListener) OnResetPrevented() {
	l.logger.Warning("scene edit ignored: render is past the grace period (force a reset or revert the change)")
}

func (l *LogListener) OnJobFinished(renderTime int64, samplesPerSecond float64) {
	l.logger.Noticef("render job finished\n%s", JobSummary(renderTime, samplesPerSecond))
}

func (l *LogListener) OnSceneSaved()  { l.logger.Info("scene saved") }
func (l *LogListener) OnSceneLoaded() { l.logger.Info("scene loaded") }

func (l *LogListener) OnTaskFailed(task string) {
	l.logger.Errorf("task failed: %s", task)
}

func (l *LogListener) OnChunksLoaded() { l.logger.Info("chunks loaded") }

// JobSummary renders a table describing a finished job.
func JobSummary(renderTime int64, samplesPerSecond float64) string {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetHeader([]string{"Render time", "Samples/sec"})
	table.Append([]string{
		FormatDuration(renderTime / 1000),
		fmt.Sprintf("%.0f", samplesPerSecond),
	})
	table.Render()
	return buf.String()
}

func stateName(pathTracing, paused bool) string {
	switch {
	case !pathTracing:
		return "preview"
	case paused:
		return "paused"
	default:
		return "rendering"
	}
}
