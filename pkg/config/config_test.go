package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/df07/progressive-scheduler/pkg/renderer"
)

const sampleConfig = `
render:
  threads: 3
  tile_width: 32
  spp_pass: 2
  cpu_load: 75
  oneshot: true
  grace_period: 10s
scene:
  name: courtyard
  scene_dir: renders
  width: 320
  height: 200
  target_spp: 256
  dump_frequency: 64
  save_snapshots: true
  save_dumps: false
  exposure: 1.5
`

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, t.TempDir(), sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, RenderConfig{
		Threads:     3,
		TileWidth:   32,
		SPPPass:     2,
		CPULoad:     75,
		Oneshot:     true,
		GracePeriod: 10 * time.Second,
	}, cfg.Render)
	assert.Equal(t, SceneConfig{
		Name:          "courtyard",
		Dir:           "renders",
		Width:         320,
		Height:        200,
		TargetSPP:     256,
		DumpFrequency: 64,
		SaveSnapshots: true,
		SaveDumps:     false,
		Exposure:      1.5,
	}, cfg.Scene)

	progressive := cfg.Progressive()
	assert.Equal(t, 32, progressive.TileWidth)
	assert.Equal(t, "renders", progressive.SceneDir)
	assert.Equal(t, 10*time.Second, progressive.GracePeriod)

	sc := cfg.NewScene()
	assert.Equal(t, "courtyard", sc.Name)
	assert.Equal(t, 320, sc.Width)
	assert.Len(t, sc.Samples(), 320*200*3)
}

func TestLoadConfigPartialKeepsDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, t.TempDir(), "scene:\n  name: partial\n"))
	require.NoError(t, err)

	defaults := Default()
	assert.Equal(t, "partial", cfg.Scene.Name)
	assert.Equal(t, defaults.Scene.Width, cfg.Scene.Width)
	assert.Equal(t, defaults.Render.TileWidth, cfg.Render.TileWidth)
	assert.Equal(t, defaults.Render.GracePeriod, cfg.Render.GracePeriod)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	_, err = LoadConfig(writeConfig(t, t.TempDir(), "render: [unclosed"))
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = LoadConfig(writeConfig(t, t.TempDir(), "scene:\n  width: 0\n"))
	assert.ErrorIs(t, err, ErrInvalid)

	assert.Panics(t, func() { MustLoadConfig(filepath.Join(t.TempDir(), "missing.yaml")) })
}

func TestNormalizeClamps(t *testing.T) {
	cfg := Default()
	cfg.Render.Threads = 0
	cfg.Render.TileWidth = -4
	cfg.Render.SPPPass = 0
	cfg.Render.CPULoad = 400
	cfg.Render.GracePeriod = -time.Second
	cfg.Scene.TargetSPP = -1
	cfg.Scene.DumpFrequency = 0
	cfg.Scene.Name = ""
	cfg.Scene.Exposure = 0

	require.NoError(t, cfg.Normalize())
	assert.Equal(t, 1, cfg.Render.Threads)
	assert.Equal(t, 1, cfg.Render.TileWidth)
	assert.Equal(t, 1, cfg.Render.SPPPass)
	assert.Equal(t, 100, cfg.Render.CPULoad)
	assert.Equal(t, time.Duration(0), cfg.Render.GracePeriod)
	assert.Equal(t, 0, cfg.Scene.TargetSPP)
	assert.Equal(t, 1, cfg.Scene.DumpFrequency)
	assert.Equal(t, "untitled", cfg.Scene.Name)
	assert.Equal(t, 1.0, cfg.Scene.Exposure)

	cfg.Scene.Dir = ""
	assert.ErrorIs(t, cfg.Normalize(), ErrInvalid)

	oversized := Default()
	oversized.Scene.Width = 100000
	assert.ErrorIs(t, oversized.Normalize(), ErrInvalid)
}

func TestApply(t *testing.T) {
	cfg := Default()
	cfg.Scene.Width, cfg.Scene.Height = 8, 8
	cfg.Render.Threads = 1

	progressive := cfg.Progressive()
	progressive.SceneDir = t.TempDir()
	rm := renderer.NewRenderManager(cfg.NewScene(), renderer.PassRendererFunc(nil), progressive, renderer.Collaborators{}, nil)
	defer rm.Close()

	cfg.Render.Threads = 3
	cfg.Render.TileWidth = 4
	cfg.Scene.TargetSPP = 12
	cfg.Scene.Exposure = 2
	cfg.Apply(rm)

	assert.Equal(t, 3, rm.NumThreads())
	assert.Equal(t, 4, rm.TileWidth())
	live := rm.Scene().Snapshot()
	assert.Equal(t, 12, live.TargetSPP)
	assert.Equal(t, 2.0, live.Exposure)
}

func TestWatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, sampleConfig)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var reloaded atomic.Pointer[Config]
	errs := make(chan error, 1)
	go func() {
		errs <- Watch(ctx, path, func(cfg *Config) { reloaded.Store(cfg) })
	}()

	// Keep writing until the watcher has registered and noticed
	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte("render:\n  threads: 7\n"), 0644)
		cfg := reloaded.Load()
		return cfg != nil && cfg.Render.Threads == 7
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-errs:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancellation")
	}
}
