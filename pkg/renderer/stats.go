package renderer

import (
	"fmt"
	"image"

	"github.com/df07/progressive-scheduler/pkg/scene"
)

// RenderStats contains statistics about the rendering process
type RenderStats struct {
	SPP              int     // Samples per pixel accumulated so far
	TargetSPP        int     // Samples per pixel to reach
	RenderTime       int64   // Accumulated render time in milliseconds
	Pixels           int64   // Pixels on the canvas
	SamplesPerSecond float64 // Zero until render time has been measured
	ETA              string  // Formatted remaining time, empty when unknown
}

// NewRenderStats computes render statistics for sc
func NewRenderStats(sc *scene.Scene) RenderStats {
	stats := RenderStats{
		SPP:        sc.SPP,
		TargetSPP:  sc.TargetSPP,
		RenderTime: sc.RenderTime,
		Pixels:     sc.PixelCount(),
	}

	// Guard against divide by zero on the first frames
	if stats.RenderTime <= 0 {
		return stats
	}
	stats.SamplesPerSecond = float64(stats.SPP) * float64(stats.Pixels) / (float64(stats.RenderTime) / 1000)

	if stats.SamplesPerSecond > 0 {
		remaining := max(0, stats.TargetSPP-stats.SPP)
		seconds := int64(float64(remaining) * float64(stats.Pixels) / stats.SamplesPerSecond)
		stats.ETA = FormatDuration(seconds)
	}
	return stats
}

// FormatDuration formats seconds as h:mm:ss
func FormatDuration(seconds int64) string {
	seconds = max(0, seconds)
	return fmt.Sprintf("%d:%02d:%02d", seconds/3600, (seconds/60)%60, seconds%60)
}

// CalculateAverageLuminance calculates the average luminance of an image
// using Rec. 709 coefficients.
func CalculateAverageLuminance(img *image.RGBA) float64 {
	bounds := img.Bounds()
	totalLuminance := 0.0
	pixelCount := 0

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := img.RGBAAt(x, y)
			r := float64(c.R) / 255.0
			g := float64(c.G) / 255.0
			b := float64(c.B) / 255.0
			totalLuminance += 0.2126*r + 0.7152*g + 0.0722*b
			pixelCount++
		}
	}

	if pixelCount == 0 {
		return 0
	}
	return totalLuminance / float64(pixelCount)
}
