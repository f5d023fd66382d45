package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// handleEvents streams render status, frames and console output via SSE
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	s.setSSEHeaders(w)

	ctx := r.Context()
	events, unsubscribe := s.hub.Subscribe()
	defer unsubscribe()

	// Send the current state first so new clients don't wait for a change
	stats := s.manager.Stats()
	live := s.manager.Scene()
	state, _ := json.Marshal(StateUpdate{PathTracing: live.PathTrace(), Paused: live.IsPaused()})
	progress, _ := json.Marshal(ProgressUpdate{Task: "Rendering", Done: stats.SPP, Target: stats.TargetSPP, ETA: stats.ETA})
	if err := s.sendSSEEvent(w, "state", string(state)); err != nil {
		return
	}
	if err := s.sendSSEEvent(w, "progress", string(progress)); err != nil {
		return
	}

	s.writeSSEEvents(ctx, w, events)
}

// setSSEHeaders sets the required headers for Server-Sent Events
func (s *Server) setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
}

// writeSSEEvents handles writing all SSE events of one client in a single
// goroutine
func (s *Server) writeSSEEvents(ctx context.Context, w http.ResponseWriter, events <-chan SSEEvent) {
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := s.sendSSEEvent(w, event.Type, event.Data); err != nil {
				// Client disconnected during write
				return
			}
		case <-ctx.Done():
			// Client disconnected
			return
		}
	}
}

// sendSSEEvent sends a generic SSE event
func (s *Server) sendSSEEvent(w http.ResponseWriter, event, data string) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("streaming not supported")
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
