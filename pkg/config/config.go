package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/df07/progressive-scheduler/pkg/log"
	"github.com/df07/progressive-scheduler/pkg/renderer"
	"github.com/df07/progressive-scheduler/pkg/scene"
)

// ErrInvalid is returned for configurations that can not be clamped into a
// usable range.
var ErrInvalid = errors.New("config: invalid configuration")

var logger = log.New("config")

// Config holds all scheduler configuration values
type Config struct {
	Render RenderConfig `yaml:"render"`
	Scene  SceneConfig  `yaml:"scene"`
}

type RenderConfig struct {
	Threads     int           `yaml:"threads"`
	TileWidth   int           `yaml:"tile_width"`
	SPPPass     int           `yaml:"spp_pass"`
	CPULoad     int           `yaml:"cpu_load"`
	Oneshot     bool          `yaml:"oneshot"`
	GracePeriod time.Duration `yaml:"grace_period"`
}

type SceneConfig struct {
	Name          string  `yaml:"name"`
	Dir           string  `yaml:"scene_dir"`
	Width         int     `yaml:"width"`
	Height        int     `yaml:"height"`
	TargetSPP     int     `yaml:"target_spp"`
	DumpFrequency int     `yaml:"dump_frequency"`
	SaveSnapshots bool    `yaml:"save_snapshots"`
	SaveDumps     bool    `yaml:"save_dumps"`
	Exposure      float64 `yaml:"exposure"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Render: RenderConfig{
			Threads:     runtime.NumCPU(),
			TileWidth:   64,
			SPPPass:     1,
			CPULoad:     100,
			GracePeriod: 30 * time.Second,
		},
		Scene: SceneConfig{
			Name:          "untitled",
			Dir:           "scenes",
			Width:         scene.DefaultWidth,
			Height:        scene.DefaultHeight,
			TargetSPP:     scene.DefaultTargetSPP,
			DumpFrequency: scene.DefaultDumpFrequency,
			SaveDumps:     true,
			Exposure:      scene.DefaultExposure,
		},
	}
}

// LoadConfig reads a YAML file on top of the defaults and normalizes it
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, filename, err)
	}
	if err := config.Normalize(); err != nil {
		return nil, err
	}
	return config, nil
}

// MustLoadConfig loads the configuration and panics on error
func MustLoadConfig(filename string) *Config {
	config, err := LoadConfig(filename)
	if err != nil {
		panic("Failed to load config: " + err.Error())
	}
	return config
}

// Normalize clamps values into their valid ranges. Canvas sizes can't be
// clamped meaningfully and are rejected.
func (c *Config) Normalize() error {
	if !scene.ValidCanvasSize(c.Scene.Width, c.Scene.Height) {
		return fmt.Errorf("%w: canvas size %dx%d", ErrInvalid, c.Scene.Width, c.Scene.Height)
	}
	if c.Scene.Dir == "" {
		return fmt.Errorf("%w: empty scene_dir", ErrInvalid)
	}

	c.Render.Threads = max(1, c.Render.Threads)
	c.Render.TileWidth = max(1, c.Render.TileWidth)
	c.Render.SPPPass = max(1, c.Render.SPPPass)
	c.Render.CPULoad = min(100, max(1, c.Render.CPULoad))
	c.Render.GracePeriod = max(0, c.Render.GracePeriod)
	c.Scene.TargetSPP = max(0, c.Scene.TargetSPP)
	c.Scene.DumpFrequency = max(1, c.Scene.DumpFrequency)
	if c.Scene.Name == "" {
		c.Scene.Name = "untitled"
	}
	if c.Scene.Exposure <= 0 {
		c.Scene.Exposure = scene.DefaultExposure
	}
	return nil
}

// Progressive returns the render manager settings
func (c *Config) Progressive() renderer.ProgressiveConfig {
	return renderer.ProgressiveConfig{
		TileWidth:   c.Render.TileWidth,
		SPPPass:     c.Render.SPPPass,
		NumThreads:  c.Render.Threads,
		CPULoad:     c.Render.CPULoad,
		SceneDir:    c.Scene.Dir,
		GracePeriod: c.Render.GracePeriod,
		Oneshot:     c.Render.Oneshot,
	}
}

// NewScene creates a scene with the configured canvas and render settings
func (c *Config) NewScene() *scene.Scene {
	sc := scene.New(c.Scene.Name)
	sc.Width = c.Scene.Width
	sc.Height = c.Scene.Height
	sc.TargetSPP = c.Scene.TargetSPP
	sc.DumpFrequency = c.Scene.DumpFrequency
	sc.SaveSnapshots = c.Scene.SaveSnapshots
	sc.SaveDumps = c.Scene.SaveDumps
	sc.Exposure = c.Scene.Exposure
	sc.ResetAccumulation()
	return sc
}

// Apply pushes the runtime adjustable settings to a running render manager.
// Canvas size, scene directory and tile layout of a running scene are left
// alone.
func (c *Config) Apply(rm *renderer.RenderManager) {
	rm.SetNumThreads(c.Render.Threads)
	rm.SetCPULoad(c.Render.CPULoad)
	rm.SetTileWidth(c.Render.TileWidth)
	live := rm.Scene()
	live.SetTargetSPP(c.Scene.TargetSPP)
	live.SetDumpFrequency(c.Scene.DumpFrequency)
	live.SetSaveSnapshots(c.Scene.SaveSnapshots)
	live.SetSaveDumps(c.Scene.SaveDumps)
	live.SetExposure(c.Scene.Exposure)
}

// Watch reloads filename whenever it changes and passes the new
// configuration to fn. Invalid files are logged and skipped. Watch blocks
// until ctx is done.
func Watch(ctx context.Context, filename string, fn func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory: editors often replace files instead of writing them
	abs, err := filepath.Abs(filename)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			config, err := LoadConfig(abs)
			if err != nil {
				logger.Warningf("ignoring configuration change: %v", err)
				continue
			}
			logger.Infof("configuration %s reloaded", filename)
			fn(config)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warningf("configuration watcher: %v", err)
		}
	}
}
