package scene

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/jinzhu/copier"
)

// Defaults for a freshly created scene.
const (
	DefaultWidth         = 400
	DefaultHeight        = 300
	DefaultTargetSPP     = 1000
	DefaultDumpFrequency = 500
	DefaultExposure      = 1.0

	// MaxCanvasSize bounds the width and height of a canvas.
	MaxCanvasSize = 4096

	// ChunkSize is the edge length of one world chunk in blocks.
	ChunkSize = 16
)

// Camera holds the view parameters used by the pass renderer
type Camera struct {
	Position [3]float64 `json:"position"`
	Yaw      float64    `json:"yaw"`
	Pitch    float64    `json:"pitch"`
	FoV      float64    `json:"fov"`
}

// ChunkPosition identifies a loaded world chunk
type ChunkPosition struct {
	X int `json:"x"`
	Z int `json:"z"`
}

// Scene is one renderable configuration together with its accumulated samples.
//
// A scheduler keeps two independent instances: the live scene edited by the
// user (see Live) and the buffered scene that workers render against. Exported
// fields without a copier tag form the configuration copied by Set.
type Scene struct {
	Name   string          `json:"name"`
	Width  int             `json:"width"`
	Height int             `json:"height"`
	Camera Camera          `json:"camera"`
	Chunks []ChunkPosition `json:"chunks"`

	TargetSPP     int     `json:"sppTarget"`
	DumpFrequency int     `json:"dumpFrequency"`
	SaveSnapshots bool    `json:"saveSnapshots"`
	SaveDumps     bool    `json:"saveDumps"`
	Exposure      float64 `json:"exposure"`

	SPP        int   `json:"spp" copier:"-"`
	RenderTime int64 `json:"renderTime" copier:"-"` // milliseconds

	// PreviewCount counts down the remaining preview passes.
	PreviewCount int `json:"-" copier:"-"`

	pathTrace bool
	paused    bool
	refresh   bool
	reset     bool
	finalize  bool

	// Per-pixel running mean, 3 floats (RGB) per pixel, row major.
	samples []float64
	frame   *image.RGBA
}

// New creates a scene with default settings. The scene starts paused in
// preview mode with an allocated accumulation buffer.
func New(name string) *Scene {
	sc := &Scene{
		Name:          name,
		Width:         DefaultWidth,
		Height:        DefaultHeight,
		Camera:        Camera{Position: [3]float64{0, 1, 0}, FoV: 70},
		TargetSPP:     DefaultTargetSPP,
		DumpFrequency: DefaultDumpFrequency,
		SaveDumps:     true,
		Exposure:      DefaultExposure,
		paused:        true,
	}
	sc.ResetAccumulation()
	return sc
}

// ValidCanvasSize reports whether width x height is a canvas a scene can hold.
func ValidCanvasSize(width, height int) bool {
	return width > 0 && height > 0 && width <= MaxCanvasSize && height <= MaxCanvasSize
}

// Set copies the full configuration of other into s. The accumulation
// buffer, sample counters and control flags are left alone; callers that
// replace the configuration follow up with ResetAccumulation.
func (s *Scene) Set(other *Scene) error {
	if err := copier.CopyWithOption(s, other, copier.Option{DeepCopy: true}); err != nil {
		return fmt.Errorf("scene: copy configuration: %w", err)
	}
	return nil
}

// CopyRenderState copies the cheap control flags from other.
func (s *Scene) CopyRenderState(other *Scene) {
	s.pathTrace = other.pathTrace
	s.paused = other.paused
	s.refresh = other.refresh
}

// CopyTransients copies fields that may change without invalidating the
// accumulated samples.
func (s *Scene) CopyTransients(other *Scene) {
	s.Name = other.Name
	s.TargetSPP = other.TargetSPP
	s.DumpFrequency = other.DumpFrequency
	s.SaveSnapshots = other.SaveSnapshots
	s.SaveDumps = other.SaveDumps
	s.Exposure = other.Exposure
}

// ResetAccumulation discards all accumulated samples and (re)allocates the
// sample and frame buffers for the current canvas size.
func (s *Scene) ResetAccumulation() {
	s.SPP = 0
	s.RenderTime = 0

	n := s.Width * s.Height * 3
	if len(s.samples) != n {
		s.samples = make([]float64, n)
	} else {
		clear(s.samples)
	}

	if s.frame == nil || s.frame.Rect.Dx() != s.Width || s.frame.Rect.Dy() != s.Height {
		s.frame = image.NewRGBA(image.Rect(0, 0, s.Width, s.Height))
	}
}

func (s *Scene) PathTrace() bool           { return s.pathTrace }
func (s *Scene) IsPaused() bool            { return s.paused }
func (s *Scene) ShouldRefresh() bool       { return s.refresh }
func (s *Scene) ShouldReset() bool         { return s.reset }
func (s *Scene) ShouldSaveSnapshots() bool { return s.SaveSnapshots }
func (s *Scene) ShouldSaveDumps() bool     { return s.SaveDumps }

// SetPathTrace switches between preview and path tracing mode.
func (s *Scene) SetPathTrace(pathTrace bool) { s.pathTrace = pathTrace }

// SetPaused sets the paused flag.
func (s *Scene) SetPaused(paused bool) { s.paused = paused }

// Refresh marks a discrete edit.
func (s *Scene) Refresh() { s.refresh = true }

// ForceReset marks an edit that must discard accumulated samples regardless
// of how long the current render has been running.
func (s *Scene) ForceReset() {
	s.refresh = true
	s.reset = true
}

// SetRefreshed clears the pending refresh and reset requests.
func (s *Scene) SetRefreshed() {
	s.refresh = false
	s.reset = false
}

// SetBufferFinalization decides whether the next frame is written to the
// display frame.
func (s *Scene) SetBufferFinalization(finalize bool) { s.finalize = finalize }

// BufferFinalization reports whether frames are written to the display frame.
func (s *Scene) BufferFinalization() bool { return s.finalize }

// PixelCount returns the number of pixels on the canvas
func (s *Scene) PixelCount() int64 {
	return int64(s.Width) * int64(s.Height)
}

// Samples exposes the raw accumulation buffer.
func (s *Scene) Samples() []float64 { return s.samples }

// Sample returns the accumulated mean color of pixel (x, y).
func (s *Scene) Sample(x, y int) (r, g, b float64, ok bool) {
	if x < 0 || y < 0 || x >= s.Width || y >= s.Height {
		return 0, 0, 0, false
	}
	i := (y*s.Width + x) * 3
	if i+2 >= len(s.samples) {
		return 0, 0, 0, false
	}
	return s.samples[i], s.samples[i+1], s.samples[i+2], true
}

// Accumulate folds n new samples with the given RGB sum into the running mean
// of pixel (x, y). Tiles never overlap, so workers may call this concurrently
// for different pixels.
func (s *Scene) Accumulate(x, y int, r, g, b float64, n int) {
	i := (y*s.Width + x) * 3
	weight := float64(s.SPP)
	total := weight + float64(n)
	s.samples[i] = (s.samples[i]*weight + r) / total
	s.samples[i+1] = (s.samples[i+1]*weight + g) / total
	s.samples[i+2] = (s.samples[i+2]*weight + b) / total
}

// UpdateCanvas tone maps the accumulation buffer into the display frame if
// buffer finalization is enabled. It returns whether the frame changed.
func (s *Scene) UpdateCanvas() bool {
	if !s.finalize {
		return false
	}
	s.Finalize()
	return true
}

// Finalize tone maps the accumulation buffer into the display frame.
func (s *Scene) Finalize() {
	if s.frame == nil || s.frame.Rect.Dx() != s.Width || s.frame.Rect.Dy() != s.Height {
		s.frame = image.NewRGBA(image.Rect(0, 0, s.Width, s.Height))
	}
	for y := 0; y < s.Height; y++ {
		for x := 0; x < s.Width; x++ {
			i := (y*s.Width + x) * 3
			s.frame.SetRGBA(x, y, color.RGBA{
				R: toneMap(s.samples[i], s.Exposure),
				G: toneMap(s.samples[i+1], s.Exposure),
				B: toneMap(s.samples[i+2], s.Exposure),
				A: 255,
			})
		}
	}
}

// Frame returns the display frame. Callers must not retain it past the
// buffer lock that guards the scene.
func (s *Scene) Frame() *image.RGBA { return s.frame }

// FrameCopy returns a copy of the display frame safe to hand to other goroutines.
func (s *Scene) FrameCopy() *image.RGBA {
	if s.frame == nil {
		return image.NewRGBA(image.Rect(0, 0, s.Width, s.Height))
	}
	cp := image.NewRGBA(s.frame.Rect)
	copy(cp.Pix, s.frame.Pix)
	return cp
}

// MoveCameraToCenter places the camera above the centre of the loaded chunks.
func (s *Scene) MoveCameraToCenter() {
	if len(s.Chunks) == 0 {
		return
	}
	var sumX, sumZ float64
	for _, c := range s.Chunks {
		sumX += float64(c.X)
		sumZ += float64(c.Z)
	}
	n := float64(len(s.Chunks))
	s.Camera.Position[0] = sumX/n*ChunkSize + ChunkSize/2
	s.Camera.Position[2] = sumZ/n*ChunkSize + ChunkSize/2
}

// gamma corrected exposure mapping to 8 bits
func toneMap(v, exposure float64) uint8 {
	v = math.Pow(math.Max(0, v*exposure), 1/2.2)
	if v >= 1 {
		return 255
	}
	return uint8(v * 255)
}
