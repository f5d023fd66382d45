package tracer

import (
	"fmt"

	"github.com/df07/progressive-scheduler/pkg/scene"
)

// ChunkSource provides the chunks of the procedural world: every chunk within
// Radius chunks of the origin exists, nothing beyond it.
type ChunkSource struct {
	Radius int
}

// NewChunkSource creates a chunk source for a square world
func NewChunkSource(radius int) *ChunkSource {
	return &ChunkSource{Radius: max(0, radius)}
}

// LoadChunks returns the positions that exist in the world. It fails only if
// none of the requested chunks exist.
func (c *ChunkSource) LoadChunks(positions []scene.ChunkPosition) ([]scene.ChunkPosition, error) {
	loaded := make([]scene.ChunkPosition, 0, len(positions))
	for _, p := range positions {
		if abs(p.X) <= c.Radius && abs(p.Z) <= c.Radius {
			loaded = append(loaded, p)
		}
	}
	if len(loaded) == 0 && len(positions) > 0 {
		return nil, fmt.Errorf("no chunks within %d of the origin", c.Radius)
	}
	return loaded, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
