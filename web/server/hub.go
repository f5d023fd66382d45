package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/png"
	"sync"

	"golang.org/x/image/draw"

	"github.com/df07/progressive-scheduler/pkg/log"
)

// SSEEvent represents a unified SSE event for thread-safe writing
type SSEEvent struct {
	Type string `json:"type"` // "progress", "state", "frame", "console", ...
	Data string `json:"data"` // JSON-encoded data
}

// ProgressUpdate is the payload of "progress" events
type ProgressUpdate struct {
	Task   string `json:"task"`
	Done   int    `json:"done"`
	Start  int    `json:"start"`
	Target int    `json:"target"`
	ETA    string `json:"eta,omitempty"`
}

// StateUpdate is the payload of "state" events
type StateUpdate struct {
	PathTracing bool `json:"pathTracing"`
	Paused      bool `json:"paused"`
}

// JobFinished is the payload of "jobFinished" events
type JobFinished struct {
	RenderTime       int64   `json:"renderTime"`
	SamplesPerSecond float64 `json:"samplesPerSecond"`
}

// FrameUpdate is the payload of "frame" events
type FrameUpdate struct {
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	ImageData string `json:"imageData"` // Base64 encoded PNG
}

// clientBuffer is the number of events buffered per client before events
// are dropped
const clientBuffer = 100

// Hub fans render status and frames out to the connected SSE clients. It
// implements renderer.StatusListener and renderer.Display without ever
// blocking the caller.
type Hub struct {
	mu      sync.Mutex
	clients map[chan SSEEvent]struct{}

	// OnWatchers is called when the first client connects (true) and when
	// the last one leaves (false).
	OnWatchers func(watching bool)

	frameMu  sync.Mutex
	latest   *image.RGBA
	frames   chan struct{}
	maxWidth int

	logger log.Logger
}

// NewHub creates a hub. Frames wider than maxWidth are scaled down before
// they are sent (0 = never scale).
func NewHub(maxWidth int) *Hub {
	return &Hub{
		clients:  make(map[chan SSEEvent]struct{}),
		frames:   make(chan struct{}, 1),
		maxWidth: maxWidth,
		logger:   log.New("web"),
	}
}

// Subscribe registers a new client. The returned function unregisters it.
func (h *Hub) Subscribe() (<-chan SSEEvent, func()) {
	ch := make(chan SSEEvent, clientBuffer)

	h.mu.Lock()
	h.clients[ch] = struct{}{}
	first := len(h.clients) == 1
	h.mu.Unlock()

	if first && h.OnWatchers != nil {
		h.OnWatchers(true)
	}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.clients, ch)
			last := len(h.clients) == 0
			h.mu.Unlock()

			if last && h.OnWatchers != nil {
				h.OnWatchers(false)
			}
		})
	}
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// broadcast sends an event to every client, dropping it for clients whose
// buffer is full.
func (h *Hub) broadcast(event SSEEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.clients {
		select {
		case ch <- event:
		default:
			// Channel full, skip (don't block)
		}
	}
}

func (h *Hub) publish(eventType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Errorf("error marshaling %s event: %v", eventType, err)
		return
	}
	h.broadcast(SSEEvent{Type: eventType, Data: string(data)})
}

func (h *Hub) OnProgress(task string, done, start, target int, eta string) {
	h.publish("progress", ProgressUpdate{Task: task, Done: done, Start: start, Target: target, ETA: eta})
}

func (h *Hub) OnStateChanged(pathTracing, paused bool) {
	h.publish("state", StateUpdate{PathTracing: pathTracing, Paused: paused})
}

func (h *Hub) OnResetPrevented() {
	h.publish("resetPrevented", struct{}{})
}

func (h *Hub) OnJobFinished(renderTime int64, samplesPerSecond float64) {
	h.publish("jobFinished", JobFinished{RenderTime: renderTime, SamplesPerSecond: samplesPerSecond})
}

func (h *Hub) OnSceneSaved()  { h.publish("sceneSaved", struct{}{}) }
func (h *Hub) OnSceneLoaded() { h.publish("sceneLoaded", struct{}{}) }

func (h *Hub) OnTaskFailed(task string) {
	h.publish("taskFailed", map[string]string{"task": task})
}

func (h *Hub) OnChunksLoaded() { h.publish("chunksLoaded", struct{}{}) }

// Present records the latest frame. Encoding happens on the Run goroutine;
// frames arriving faster than they can be encoded replace each other.
func (h *Hub) Present(frame *image.RGBA, width, height int) {
	h.frameMu.Lock()
	h.latest = frame
	h.frameMu.Unlock()

	select {
	case h.frames <- struct{}{}:
	default:
	}
}

// Run encodes presented frames and sends them to the clients until ctx is
// done.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-h.frames:
		}

		h.frameMu.Lock()
		frame := h.latest
		h.latest = nil
		h.frameMu.Unlock()
		if frame == nil || h.Clients() == 0 {
			continue
		}

		update, err := h.encodeFrame(frame)
		if err != nil {
			h.logger.Warningf("failed to encode frame: %v", err)
			continue
		}
		h.publish("frame", update)
	}
}

func (h *Hub) encodeFrame(frame *image.RGBA) (FrameUpdate, error) {
	img := scaleFrame(frame, h.maxWidth)
	imageData, err := imageToBase64PNG(img)
	if err != nil {
		return FrameUpdate{}, err
	}
	return FrameUpdate{Width: img.Bounds().Dx(), Height: img.Bounds().Dy(), ImageData: imageData}, nil
}

// scaleFrame scales frame down to maxWidth, keeping the aspect ratio
func scaleFrame(frame *image.RGBA, maxWidth int) image.Image {
	b := frame.Bounds()
	if maxWidth <= 0 || b.Dx() <= maxWidth {
		return frame
	}
	height := max(1, b.Dy()*maxWidth/b.Dx())
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), frame, b, draw.Src, nil)
	return dst
}

// imageToBase64PNG converts an image to base64-encoded PNG
func imageToBase64PNG(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
