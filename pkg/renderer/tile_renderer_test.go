package renderer

import (
	"image"
	"testing"
)

func TestTileGridCount(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		tileWidth     int
		expected      int
	}{
		{"exact fit", 400, 300, 50, 48},
		{"partial edge tiles", 100, 100, 64, 4},
		{"single tile", 10, 10, 64, 1},
		{"one pixel tiles", 3, 2, 1, 6},
		{"empty canvas", 0, 100, 16, 0},
		{"zero tile width clamps to one", 2, 2, 0, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			grid := NewTileGrid(tt.width, tt.height, tt.tileWidth)
			if got := grid.Count(); got != tt.expected {
				t.Errorf("Expected %d tiles, got %d", tt.expected, got)
			}
		})
	}
}

func TestTileGridCoversCanvasOnce(t *testing.T) {
	grid := NewTileGrid(100, 70, 32)
	covered := make([][]int, 70)
	for y := range covered {
		covered[y] = make([]int, 100)
	}

	for i := 0; i < grid.Count(); i++ {
		b := grid.Bounds(i)
		if b.Empty() {
			t.Errorf("Tile %d is empty", i)
		}
		if !b.In(image.Rect(0, 0, 100, 70)) {
			t.Errorf("Tile %d %v exceeds canvas", i, b)
		}
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				covered[y][x]++
			}
		}
	}

	for y := range covered {
		for x := range covered[y] {
			if covered[y][x] != 1 {
				t.Fatalf("Pixel (%d,%d) covered %d times", x, y, covered[y][x])
			}
		}
	}
}

func TestTileGridEdgeTileClipped(t *testing.T) {
	grid := NewTileGrid(100, 100, 64)
	expected := image.Rect(64, 64, 100, 100)
	if got := grid.Bounds(3); got != expected {
		t.Errorf("Expected last tile %v, got %v", expected, got)
	}
}
