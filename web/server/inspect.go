package server

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
)

// InspectResponse represents the JSON response for pixel inspection
type InspectResponse struct {
	X        int        `json:"x"`
	Y        int        `json:"y"`
	Radiance [3]float64 `json:"radiance"` // Accumulated mean, linear RGB
	Color    string     `json:"color"`    // Tone mapped hex color
	SPP      int        `json:"spp"`
}

// handleInspect returns the accumulated value of one pixel
func (s *Server) handleInspect(w http.ResponseWriter, r *http.Request) {
	pixelX, err := strconv.Atoi(r.URL.Query().Get("x"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid x coordinate")
		return
	}
	pixelY, err := strconv.Atoi(r.URL.Query().Get("y"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid y coordinate")
		return
	}

	pixel, ok := s.manager.Pixel(pixelX, pixelY)
	if !ok {
		writeError(w, http.StatusBadRequest, "Pixel coordinates out of bounds")
		return
	}

	response := InspectResponse{
		X:        pixel.X,
		Y:        pixel.Y,
		Radiance: [3]float64{pixel.R, pixel.G, pixel.B},
		Color:    fmt.Sprintf("#%02x%02x%02x", toByte(pixel.R), toByte(pixel.G), toByte(pixel.B)),
		SPP:      pixel.SPP,
	}

	writeJSON(w, http.StatusOK, response)
}

// toByte gamma corrects a linear channel value to 8 bits
func toByte(v float64) int {
	v = math.Pow(math.Max(0, v), 1/2.2)
	return int(math.Min(255, v*255))
}
