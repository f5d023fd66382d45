package renderer

import (
	"image"
	"image/color"
	"testing"
)

func TestCalculateAverageLuminance(t *testing.T) {
	// Create a 2x2 image
	// Top-left: Red (1, 0, 0) -> Lum = 0.2126
	// Top-right: Green (0, 1, 0) -> Lum = 0.7152
	// Bottom-left: Blue (0, 0, 1) -> Lum = 0.0722
	// Bottom-right: Black (0, 0, 0) -> Lum = 0.0

	// Expected average: (0.2126 + 0.7152 + 0.0722 + 0.0) / 4 = 1.0 / 4 = 0.25

	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{255, 0, 0, 255})
	img.Set(1, 0, color.RGBA{0, 255, 0, 255})
	img.Set(0, 1, color.RGBA{0, 0, 255, 255})
	img.Set(1, 1, color.RGBA{0, 0, 0, 255})

	avgLum := CalculateAverageLuminance(img)
	expected := 0.25
	tolerance := 0.0001

	if avgLum < expected-tolerance || avgLum > expected+tolerance {
		t.Errorf("Expected average luminosity %f, got %f", expected, avgLum)
	}
}

func TestCalculateAverageLuminance_White(t *testing.T) {
	// 1x1 White pixel -> Lum = 1.0
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.RGBA{255, 255, 255, 255})

	avgLum := CalculateAverageLuminance(img)
	expected := 1.0
	tolerance := 0.0001

	if avgLum < expected-tolerance || avgLum > expected+tolerance {
		t.Errorf("Expected average luminosity %f, got %f", expected, avgLum)
	}
}

func TestNewRenderStats(t *testing.T) {
	sc := newTestScene("stats")
	sc.TargetSPP = 200
	sc.SPP = 100
	sc.RenderTime = 10000

	stats := NewRenderStats(sc)
	if stats.Pixels != 1200 {
		t.Errorf("Expected 1200 pixels, got %d", stats.Pixels)
	}
	// 100 spp * 1200 pixels in 10 seconds
	if stats.SamplesPerSecond != 12000 {
		t.Errorf("Expected 12000 samples/sec, got %f", stats.SamplesPerSecond)
	}
	if stats.ETA != "0:00:10" {
		t.Errorf("Expected ETA 0:00:10, got %q", stats.ETA)
	}
}

func TestNewRenderStats_NoRenderTime(t *testing.T) {
	sc := newTestScene("stats")
	sc.SPP = 4

	stats := NewRenderStats(sc)
	if stats.SamplesPerSecond != 0 {
		t.Errorf("Expected no sample rate, got %f", stats.SamplesPerSecond)
	}
	if stats.ETA != "" {
		t.Errorf("Expected empty ETA, got %q", stats.ETA)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		seconds  int64
		expected string
	}{
		{0, "0:00:00"},
		{59, "0:00:59"},
		{61, "0:01:01"},
		{3600, "1:00:00"},
		{90061, "25:01:01"},
		{-5, "0:00:00"},
	}

	for _, tt := range tests {
		if got := FormatDuration(tt.seconds); got != tt.expected {
			t.Errorf("FormatDuration(%d) = %q, expected %q", tt.seconds, got, tt.expected)
		}
	}
}
