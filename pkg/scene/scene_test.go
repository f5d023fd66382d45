package scene

import (
	"math"
	"testing"
)

func TestAccumulateRunningMean(t *testing.T) {
	sc := New("mean")
	sc.Width, sc.Height = 2, 2
	sc.ResetAccumulation()

	// First pass: 2 samples summing to (1, 2, 3)
	sc.Accumulate(1, 1, 1, 2, 3, 2)
	sc.SPP += 2

	// Second pass: 2 samples summing to (3, 2, 1)
	sc.Accumulate(1, 1, 3, 2, 1, 2)
	sc.SPP += 2

	r, g, b, ok := sc.Sample(1, 1)
	if !ok {
		t.Fatal("Sample(1, 1) out of bounds")
	}
	expected := [3]float64{1, 1, 1}
	got := [3]float64{r, g, b}
	for i := range expected {
		if math.Abs(got[i]-expected[i]) > 1e-9 {
			t.Errorf("channel %d = %f, want %f", i, got[i], expected[i])
		}
	}

	if r, _, _, _ := sc.Sample(0, 0); r != 0 {
		t.Errorf("untouched pixel = %f, want 0", r)
	}
	if _, _, _, ok := sc.Sample(2, 0); ok {
		t.Error("Sample(2, 0) should be out of bounds")
	}
}

func TestSetDeepCopiesConfiguration(t *testing.T) {
	src := New("source")
	src.Chunks = []ChunkPosition{{X: 1, Z: 2}}
	src.Camera.Yaw = 12
	src.SPP = 99

	var dst Scene
	if err := dst.Set(src); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	if dst.Name != "source" || dst.Camera.Yaw != 12 {
		t.Errorf("configuration not copied: %q yaw %f", dst.Name, dst.Camera.Yaw)
	}
	if dst.SPP != 0 {
		t.Errorf("SPP = %d, sample counters must not be copied", dst.SPP)
	}

	src.Chunks[0].X = 7
	if dst.Chunks[0].X != 1 {
		t.Error("chunk list shared between scenes")
	}
}

func TestCopyTransientsKeepsSamples(t *testing.T) {
	a := New("a")
	a.Width, a.Height = 4, 4
	a.ResetAccumulation()
	a.Accumulate(0, 0, 1, 1, 1, 1)
	a.SPP = 1

	b := New("b")
	b.TargetSPP = 5
	b.Exposure = 2
	b.Camera.Yaw = 90

	a.CopyTransients(b)
	if a.Name != "b" || a.TargetSPP != 5 || a.Exposure != 2 {
		t.Errorf("transients not copied: %q %d %f", a.Name, a.TargetSPP, a.Exposure)
	}
	if a.Camera.Yaw != 0 {
		t.Error("camera is not a transient")
	}
	if r, _, _, _ := a.Sample(0, 0); r != 1 || a.SPP != 1 {
		t.Error("samples lost")
	}
}

func TestResetAccumulation(t *testing.T) {
	sc := New("reset")
	sc.Width, sc.Height = 3, 2
	sc.ResetAccumulation()
	sc.Accumulate(2, 1, 5, 5, 5, 1)
	sc.SPP = 1
	sc.RenderTime = 100

	sc.ResetAccumulation()
	if sc.SPP != 0 || sc.RenderTime != 0 {
		t.Errorf("counters = %d/%d, want 0/0", sc.SPP, sc.RenderTime)
	}
	if r, _, _, _ := sc.Sample(2, 1); r != 0 {
		t.Errorf("sample = %f, want 0", r)
	}

	sc.Width, sc.Height = 5, 5
	sc.ResetAccumulation()
	if len(sc.Samples()) != 75 {
		t.Errorf("len(samples) = %d, want 75", len(sc.Samples()))
	}
	if sc.Frame().Rect.Dx() != 5 {
		t.Errorf("frame width = %d, want 5", sc.Frame().Rect.Dx())
	}
}

func TestUpdateCanvas(t *testing.T) {
	sc := New("canvas")
	sc.Width, sc.Height = 2, 1
	sc.ResetAccumulation()
	sc.Accumulate(0, 0, 1, 0, 4, 1)

	if sc.UpdateCanvas() {
		t.Error("UpdateCanvas() changed the frame without finalization")
	}
	if c := sc.Frame().RGBAAt(0, 0); c.R != 0 {
		t.Errorf("frame written without finalization: %v", c)
	}

	sc.SetBufferFinalization(true)
	if !sc.UpdateCanvas() {
		t.Error("UpdateCanvas() did not report a finalized frame")
	}
	c := sc.Frame().RGBAAt(0, 0)
	if c.R != 255 || c.G != 0 || c.B != 255 || c.A != 255 {
		t.Errorf("pixel = %v, want {255 0 255 255}", c)
	}

	cp := sc.FrameCopy()
	cp.Pix[0] = 1
	if sc.Frame().Pix[0] != 255 {
		t.Error("FrameCopy() shares pixels with the frame")
	}
}

func TestControlFlags(t *testing.T) {
	sc := New("flags")
	if !sc.IsPaused() || sc.PathTrace() {
		t.Error("new scenes start paused in preview")
	}

	sc.Refresh()
	if !sc.ShouldRefresh() || sc.ShouldReset() {
		t.Error("Refresh() must not force a reset")
	}
	sc.ForceReset()
	if !sc.ShouldRefresh() || !sc.ShouldReset() {
		t.Error("ForceReset() must request refresh and reset")
	}
	sc.SetRefreshed()
	if sc.ShouldRefresh() || sc.ShouldReset() {
		t.Error("SetRefreshed() must clear both requests")
	}

	other := New("other")
	other.SetPathTrace(true)
	other.SetPaused(false)
	sc.CopyRenderState(other)
	if !sc.PathTrace() || sc.IsPaused() {
		t.Error("CopyRenderState() did not copy the mode")
	}
}

func TestMoveCameraToCenter(t *testing.T) {
	sc := New("chunks")
	sc.Chunks = []ChunkPosition{{X: 0, Z: 0}, {X: 2, Z: 4}}
	sc.MoveCameraToCenter()

	if sc.Camera.Position[0] != 24 || sc.Camera.Position[2] != 40 {
		t.Errorf("camera at %v, want x=24 z=40", sc.Camera.Position)
	}
}
