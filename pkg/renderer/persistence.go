package renderer

import (
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/df07/progressive-scheduler/pkg/log"
	"github.com/df07/progressive-scheduler/pkg/scene"
)

// SaveScene writes the buffered scene and its render dump to the scene
// directory. Existing files are kept as backups. A failed save is reported to
// the listener; rendering is not affected.
func (rm *RenderManager) SaveScene() error {
	name, err := rm.saveBuffered()
	if errors.Is(err, ErrNoScene) {
		rm.listener.OnTaskFailed("Saving scene")
		return err
	}
	if err != nil {
		rm.logger.Warningf("failed to save scene %s: %v", name, err)
		rm.listener.OnTaskFailed("Saving scene")
		return fmt.Errorf("save scene %s: %w", name, err)
	}
	rm.logger.Infof("scene %s saved", name)
	rm.listener.OnSceneSaved()
	return nil
}

func (rm *RenderManager) saveBuffered() (string, error) {
	rm.bufferMu.Lock()
	defer rm.bufferMu.Unlock()

	rm.live.Sync(func(live *scene.Scene) {
		rm.buffered.CopyTransients(live)
	})
	name := rm.buffered.Name
	if name == "" {
		return "", ErrNoScene
	}

	rm.logger.Infof("saving scene %s", name)
	backupFile(rm.config.SceneDir, scene.DescriptionFile(name), rm.logger)
	backupFile(rm.config.SceneDir, scene.DumpFile(name), rm.logger)
	return name, rm.store.Save(rm.config.SceneDir, rm.buffered)
}

// loadedScene is what LoadScene reports once the buffer lock is released
type loadedScene struct {
	frame       *image.RGBA
	stats       RenderStats
	pathTracing bool
	paused      bool
}

// LoadScene replaces the buffered and live scenes with the named scene from
// the scene directory. It waits for the current frame to complete. On failure
// the current scene is left untouched.
func (rm *RenderManager) LoadScene(name string) error {
	rm.listener.OnProgress("Loading scene", 0, 0, 1, "")
	loaded, err := rm.loadBuffered(name)
	if err != nil {
		rm.logger.Warningf("failed to load scene %s: %v", name, err)
		rm.listener.OnTaskFailed("Loading scene")
		return fmt.Errorf("load scene %s: %w", name, err)
	}

	frame, stats := loaded.frame, loaded.stats
	rm.logger.Infof("loaded scene %s (%dx%d, %d spp)", name, frame.Rect.Dx(), frame.Rect.Dy(), stats.SPP)
	rm.display.Present(frame, frame.Rect.Dx(), frame.Rect.Dy())
	rm.listener.OnProgress("Rendering", stats.SPP, 0, stats.TargetSPP, stats.ETA)
	rm.listener.OnSceneLoaded()
	rm.listener.OnStateChanged(loaded.pathTracing, loaded.paused)
	return nil
}

func (rm *RenderManager) loadBuffered(name string) (loadedScene, error) {
	rm.bufferMu.Lock()
	defer rm.bufferMu.Unlock()

	sc, err := rm.store.Load(rm.config.SceneDir, name)
	if err != nil {
		return loadedScene{}, err
	}

	*rm.buffered = *sc
	rm.jobs = NewTileGrid(rm.buffered.Width, rm.buffered.Height, rm.TileWidth())

	var result loadedScene
	rm.live.Sync(func(live *scene.Scene) {
		if err := live.Set(rm.buffered); err != nil {
			rm.logger.Errorf("failed to copy loaded scene: %v", err)
		}
		live.CopyRenderState(rm.buffered)
		live.CopyTransients(rm.buffered)
		live.SPP = rm.buffered.SPP
		live.RenderTime = rm.buffered.RenderTime
		live.SetRefreshed()
		result.pathTracing, result.paused = live.PathTrace(), live.IsPaused()
	})

	rm.buffered.Finalize()
	result.frame = rm.buffered.FrameCopy()
	result.stats = NewRenderStats(rm.buffered)
	return result, nil
}

// MergeDump adds the samples of a render dump made from the same scene to
// the current render.
func (rm *RenderManager) MergeDump(path string) error {
	dump, err := rm.store.LoadDump(path)
	if err == nil {
		var frame *image.RGBA
		var stats RenderStats
		frame, stats, err = rm.mergeBuffered(dump)
		if err == nil {
			rm.logger.Infof("merged render dump %s, now at %d spp", path, stats.SPP)
			rm.display.Present(frame, frame.Rect.Dx(), frame.Rect.Dy())
			rm.listener.OnProgress("Rendering", stats.SPP, 0, stats.TargetSPP, stats.ETA)
			return nil
		}
	}

	rm.logger.Warningf("failed to merge render dump %s: %v", path, err)
	rm.listener.OnTaskFailed("Merging render dump")
	return fmt.Errorf("merge dump %s: %w", path, err)
}

func (rm *RenderManager) mergeBuffered(dump *scene.Dump) (*image.RGBA, RenderStats, error) {
	rm.bufferMu.Lock()
	defer rm.bufferMu.Unlock()

	if err := rm.buffered.MergeDump(dump); err != nil {
		return nil, RenderStats{}, err
	}
	rm.live.Sync(func(live *scene.Scene) {
		live.SPP = rm.buffered.SPP
		live.RenderTime = rm.buffered.RenderTime
	})
	rm.buffered.Finalize()
	return rm.buffered.FrameCopy(), NewRenderStats(rm.buffered), nil
}

// SaveSnapshot writes the current frame as a PNG image to path.
func (rm *RenderManager) SaveSnapshot(path string) error {
	frame := rm.Frame()
	if err := rm.store.SaveSnapshot(path, frame); err != nil {
		rm.logger.Warningf("failed to save snapshot %s: %v", path, err)
		rm.listener.OnTaskFailed("Saving snapshot")
		return fmt.Errorf("save snapshot %s: %w", path, err)
	}
	rm.logger.Infof("snapshot saved to %s", path)
	return nil
}

// saveSnapshotLocked writes the frame to the scene directory as
// <name>-<spp>.png. Must be called with bufferMu held.
func (rm *RenderManager) saveSnapshotLocked(frame image.Image) {
	path := filepath.Join(rm.config.SceneDir, scene.SnapshotFile(rm.buffered.Name, rm.buffered.SPP))
	if err := rm.store.SaveSnapshot(path, frame); err != nil {
		rm.logger.Warningf("failed to save snapshot %s: %v", path, err)
		rm.listener.OnTaskFailed("Saving snapshot")
		return
	}
	rm.logger.Infof("snapshot saved to %s", path)
}

// backupFile renames dir/name to dir/name.backup, replacing an older backup.
// Missing files are skipped and failures only logged.
func backupFile(dir, name string, logger log.Logger) {
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); err != nil {
		return
	}

	backup := path + ".backup"
	if err := os.Remove(backup); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Infof("could not remove old backup %s: %v", backup, err)
	}
	if err := os.Rename(path, backup); err != nil {
		logger.Infof("could not create backup file %s: %v", backup, err)
	}
}
