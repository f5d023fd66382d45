package scene

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
)

// dumpMagic prefixes every render dump ("SPPD").
const dumpMagic uint32 = 0x53505044

// Dump is a persisted accumulation state. Samples hold the per-pixel running
// mean over SPP samples.
type Dump struct {
	Width      int
	Height     int
	SPP        int
	RenderTime int64
	Samples    []float64
}

type dumpHeader struct {
	Magic      uint32
	Width      int32
	Height     int32
	SPP        int32
	RenderTime int64
}

// Dump returns the scene's accumulation state. The samples are shared, not
// copied.
func (s *Scene) Dump() *Dump {
	return &Dump{
		Width:      s.Width,
		Height:     s.Height,
		SPP:        s.SPP,
		RenderTime: s.RenderTime,
		Samples:    s.samples,
	}
}

// RestoreDump replaces the accumulation state with d.
func (s *Scene) RestoreDump(d *Dump) error {
	if d.Width != s.Width || d.Height != s.Height {
		return fmt.Errorf("%w: dump is %dx%d, canvas is %dx%d", ErrDumpMismatch, d.Width, d.Height, s.Width, s.Height)
	}
	s.ResetAccumulation()
	copy(s.samples, d.Samples)
	s.SPP = d.SPP
	s.RenderTime = d.RenderTime
	return nil
}

// MergeDump adds the samples of d into the running accumulation.
func (s *Scene) MergeDump(d *Dump) error {
	if d.Width != s.Width || d.Height != s.Height {
		return fmt.Errorf("%w: dump is %dx%d, canvas is %dx%d", ErrDumpMismatch, d.Width, d.Height, s.Width, s.Height)
	}
	if len(s.samples) != len(d.Samples) {
		s.ResetAccumulation()
	}

	total := float64(s.SPP + d.SPP)
	if total > 0 {
		wa, wb := float64(s.SPP)/total, float64(d.SPP)/total
		for i := range s.samples {
			s.samples[i] = s.samples[i]*wa + d.Samples[i]*wb
		}
	}
	s.SPP += d.SPP
	s.RenderTime += d.RenderTime
	return nil
}

// WriteDump writes d as a gzip compressed big endian stream.
func WriteDump(w io.Writer, d *Dump) error {
	zw := gzip.NewWriter(w)
	bw := bufio.NewWriter(zw)

	hdr := dumpHeader{
		Magic:      dumpMagic,
		Width:      int32(d.Width),
		Height:     int32(d.Height),
		SPP:        int32(d.SPP),
		RenderTime: d.RenderTime,
	}
	if err := binary.Write(bw, binary.BigEndian, hdr); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.BigEndian, d.Samples); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return zw.Close()
}

// ReadDump reads a dump written by WriteDump.
func ReadDump(r io.Reader) (*Dump, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSceneFormat, err)
	}
	defer zr.Close()

	br := bufio.NewReader(zr)
	var hdr dumpHeader
	if err := binary.Read(br, binary.BigEndian, &hdr); err != nil {
		return nil, fmt.Errorf("%w: dump header: %v", ErrSceneFormat, err)
	}
	if hdr.Magic != dumpMagic {
		return nil, fmt.Errorf("%w: bad dump magic %#x", ErrSceneFormat, hdr.Magic)
	}
	if !ValidCanvasSize(int(hdr.Width), int(hdr.Height)) || hdr.SPP < 0 {
		return nil, fmt.Errorf("%w: bad dump dimensions %dx%d", ErrSceneFormat, hdr.Width, hdr.Height)
	}

	n := int64(hdr.Width) * int64(hdr.Height) * 3
	d := &Dump{
		Width:      int(hdr.Width),
		Height:     int(hdr.Height),
		SPP:        int(hdr.SPP),
		RenderTime: hdr.RenderTime,
		Samples:    make([]float64, n),
	}
	if err := binary.Read(br, binary.BigEndian, d.Samples); err != nil {
		return nil, fmt.Errorf("%w: dump samples: %v", ErrSceneFormat, err)
	}
	return d, nil
}
