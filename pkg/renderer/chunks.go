package renderer

import (
	"fmt"

	"github.com/df07/progressive-scheduler/pkg/scene"
)

// LoadChunks adds chunks to the live scene. Changing the world always
// discards the current render.
func (rm *RenderManager) LoadChunks(positions []scene.ChunkPosition) error {
	return rm.loadChunks(positions, false)
}

// LoadFreshChunks replaces the chunks of the live scene and moves the camera
// above them.
func (rm *RenderManager) LoadFreshChunks(positions []scene.ChunkPosition) error {
	return rm.loadChunks(positions, true)
}

// ReloadChunks loads the current chunk set again, picking up world changes.
func (rm *RenderManager) ReloadChunks() error {
	var positions []scene.ChunkPosition
	rm.live.Sync(func(live *scene.Scene) {
		positions = append(positions, live.Chunks...)
	})
	return rm.loadChunks(positions, false)
}

func (rm *RenderManager) loadChunks(positions []scene.ChunkPosition, fresh bool) error {
	if rm.chunks == nil {
		rm.listener.OnTaskFailed("Loading chunks")
		return ErrNoChunks
	}

	rm.listener.OnProgress("Loading chunks", 0, 0, len(positions), "")
	loaded, err := rm.chunks.LoadChunks(positions)
	if err != nil {
		rm.logger.Warningf("failed to load chunks: %v", err)
		rm.listener.OnTaskFailed("Loading chunks")
		return fmt.Errorf("load chunks: %w", err)
	}

	rm.live.Sync(func(live *scene.Scene) {
		if fresh {
			live.Chunks = loaded
			live.MoveCameraToCenter()
		} else {
			live.Chunks = mergeChunks(live.Chunks, loaded)
		}
		live.ForceReset()
	})

	rm.logger.Infof("loaded %d of %d chunks", len(loaded), len(positions))
	rm.listener.OnProgress("Loading chunks", len(positions), 0, len(positions), "")
	rm.listener.OnChunksLoaded()
	return nil
}

// mergeChunks appends the positions of loaded missing from current
func mergeChunks(current, loaded []scene.ChunkPosition) []scene.ChunkPosition {
	seen := make(map[scene.ChunkPosition]bool, len(current))
	merged := make([]scene.ChunkPosition, 0, len(current)+len(loaded))
	for _, c := range current {
		if !seen[c] {
			seen[c] = true
			merged = append(merged, c)
		}
	}
	for _, c := range loaded {
		if !seen[c] {
			seen[c] = true
			merged = append(merged, c)
		}
	}
	return merged
}
