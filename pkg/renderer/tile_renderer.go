package renderer

import (
	"image"
	"math/rand"

	"github.com/df07/progressive-scheduler/pkg/scene"
)

// PassRenderer renders one accumulation pass over a tile. Implementations add
// samples to the scene through scene.Accumulate and must only touch pixels
// inside bounds.
type PassRenderer interface {
	RenderTile(sc *scene.Scene, bounds image.Rectangle, random *rand.Rand, samples int) error
}

// PassRendererFunc adapts a function to the PassRenderer interface
type PassRendererFunc func(sc *scene.Scene, bounds image.Rectangle, random *rand.Rand, samples int) error

func (f PassRendererFunc) RenderTile(sc *scene.Scene, bounds image.Rectangle, random *rand.Rand, samples int) error {
	return f(sc, bounds, random, samples)
}

// TileGrid describes the tiles covering a canvas. Edge tiles are clipped to
// the canvas.
type TileGrid struct {
	Width     int
	Height    int
	TileWidth int
}

// NewTileGrid creates a grid of square tiles covering the canvas
func NewTileGrid(width, height, tileWidth int) TileGrid {
	return TileGrid{
		Width:     max(0, width),
		Height:    max(0, height),
		TileWidth: max(1, tileWidth),
	}
}

// TilesX returns the number of tile columns
func (g TileGrid) TilesX() int {
	return (g.Width + g.TileWidth - 1) / g.TileWidth // Ceiling division
}

// TilesY returns the number of tile rows
func (g TileGrid) TilesY() int {
	return (g.Height + g.TileWidth - 1) / g.TileWidth
}

// Count returns the number of tiles in the grid
func (g TileGrid) Count() int {
	return g.TilesX() * g.TilesY()
}

// Bounds returns the pixel bounds of tile i (row major).
func (g TileGrid) Bounds(i int) image.Rectangle {
	tilesX := g.TilesX()
	if tilesX == 0 {
		return image.Rectangle{}
	}
	x0 := (i % tilesX) * g.TileWidth
	y0 := (i / tilesX) * g.TileWidth
	x1 := min(x0+g.TileWidth, g.Width) // Don't exceed image bounds
	y1 := min(y0+g.TileWidth, g.Height)
	return image.Rect(x0, y0, x1, y1)
}
