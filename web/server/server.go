package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"io/fs"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/df07/progressive-scheduler/pkg/log"
	"github.com/df07/progressive-scheduler/pkg/renderer"
	"github.com/df07/progressive-scheduler/pkg/scene"
)

// Limits for request parameters
const (
	maxThreads   = 256
	maxTargetSPP = 1 << 24
)

// Server exposes control of a render manager over HTTP
type Server struct {
	port    int
	manager *renderer.RenderManager
	hub     *Hub
	logger  log.Logger
}

// NewServer creates a new web server. The hub must be registered as the
// manager's listener and display for clients to receive updates.
func NewServer(port int, manager *renderer.RenderManager, hub *Hub) *Server {
	return &Server{
		port:    port,
		manager: manager,
		hub:     hub,
		logger:  log.New("web"),
	}
}

// Handler returns the HTTP handler with all routes registered
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Serve static files
	mux.Handle("/", http.FileServer(http.Dir("static/")))

	// API endpoints
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/events", s.handleEvents)
	mux.HandleFunc("/api/control", s.post(s.handleControl))
	mux.HandleFunc("/api/target", s.post(s.handleTarget))
	mux.HandleFunc("/api/threads", s.post(s.handleThreads))
	mux.HandleFunc("/api/canvas", s.post(s.handleCanvas))
	mux.HandleFunc("/api/save", s.post(s.handleSave))
	mux.HandleFunc("/api/load", s.post(s.handleLoad))
	mux.HandleFunc("/api/merge", s.post(s.handleMerge))
	mux.HandleFunc("/api/scenes", s.handleScenes)
	mux.HandleFunc("/api/chunks", s.post(s.handleChunks))
	mux.HandleFunc("/api/frame.png", s.handleFrame)
	mux.HandleFunc("/api/inspect", s.handleInspect)
	return mux
}

// Start serves HTTP until ctx is done
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.logger.Noticef("starting web server on http://localhost%s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// post rejects requests that are not POST requests
func (s *Server) post(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		next(w, r)
	}
}

// handleHealth provides a simple health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleControl changes the render state
func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	live := s.manager.Scene()
	action := r.URL.Query().Get("action")

	switch action {
	case "start":
		live.StartRender()
	case "pause":
		live.PauseRender()
	case "resume":
		live.ResumeRender()
	case "stop":
		live.StopRender()
	case "reset":
		live.ForceReset()
	case "refresh":
		live.Refresh()
	case "revert":
		s.manager.RevertPendingSceneChanges()
	default:
		writeError(w, http.StatusBadRequest, "Unknown action: "+action)
		return
	}

	s.logger.Infof("control action %s", action)
	writeJSON(w, http.StatusOK, StateUpdate{PathTracing: live.PathTrace(), Paused: live.IsPaused()})
}

// handleTarget sets the target SPP
func (s *Server) handleTarget(w http.ResponseWriter, r *http.Request) {
	spp, err := parseIntParam(r.URL.Query(), "spp", -1, 0, maxTargetSPP)
	if err == nil && spp < 0 {
		err = errors.New("missing spp")
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.manager.Scene().SetTargetSPP(spp)
	writeJSON(w, http.StatusOK, map[string]int{"spp": spp})
}

// handleThreads requests a new worker count
func (s *Server) handleThreads(w http.ResponseWriter, r *http.Request) {
	n, err := parseIntParam(r.URL.Query(), "n", -1, 1, maxThreads)
	if err == nil && n < 0 {
		err = errors.New("missing n")
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.manager.SetNumThreads(n)
	writeJSON(w, http.StatusOK, map[string]int{"threads": n})
}

// handleCanvas resizes the canvas
func (s *Server) handleCanvas(w http.ResponseWriter, r *http.Request) {
	width, err := parseIntParam(r.URL.Query(), "width", -1, 1, scene.MaxCanvasSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	height, err := parseIntParam(r.URL.Query(), "height", -1, 1, scene.MaxCanvasSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if width < 0 || height < 0 {
		writeError(w, http.StatusBadRequest, "width and height are required")
		return
	}

	s.manager.Scene().SetCanvasSize(width, height)
	writeJSON(w, http.StatusOK, map[string]int{"width": width, "height": height})
}

// handleSave saves the current scene
func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.SaveScene(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

// handleLoad loads a scene from the scene directory
func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "missing name")
		return
	}

	if err := s.manager.LoadScene(name); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, fs.ErrNotExist) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "name": name})
}

// handleMerge merges a render dump into the current render
func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "missing path")
		return
	}

	if err := s.manager.MergeDump(path); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, fs.ErrNotExist) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"spp": s.manager.Stats().SPP})
}

// handleScenes lists the scenes saved in the scene directory
func (s *Server) handleScenes(w http.ResponseWriter, r *http.Request) {
	scenes, err := scene.ListScenes(s.manager.SceneDir())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, scenes)
}

// chunkRequest is the body of a chunk load request
type chunkRequest struct {
	Positions []scene.ChunkPosition `json:"positions"`
}

// handleChunks loads world chunks into the live scene
func (s *Server) handleChunks(w http.ResponseWriter, r *http.Request) {
	action := r.URL.Query().Get("action")

	var req chunkRequest
	if action != "reload" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid chunk list: "+err.Error())
			return
		}
	}

	var err error
	switch action {
	case "load":
		err = s.manager.LoadChunks(req.Positions)
	case "fresh":
		err = s.manager.LoadFreshChunks(req.Positions)
	case "reload":
		err = s.manager.ReloadChunks()
	default:
		writeError(w, http.StatusBadRequest, "Unknown action: "+action)
		return
	}
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, renderer.ErrNoChunks) {
			status = http.StatusNotImplemented
		}
		writeError(w, status, err.Error())
		return
	}

	live := s.manager.Scene().Snapshot()
	writeJSON(w, http.StatusOK, map[string]int{"chunks": len(live.Chunks)})
}

// handleFrame returns the last finalized frame as PNG
func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	frame := s.manager.Frame()
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	if err := png.Encode(w, frame); err != nil {
		s.logger.Warningf("failed to encode frame: %v", err)
	}
}

// parseIntParam parses an integer parameter from URL query with validation
func parseIntParam(values url.Values, key string, defaultValue, min, max int) (int, error) {
	if value := values.Get(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %s", key, value)
		}
		if parsed < min || parsed > max {
			return 0, fmt.Errorf("%s must be between %d and %d, got: %d", key, min, max, parsed)
		}
		return parsed, nil
	}
	return defaultValue, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
