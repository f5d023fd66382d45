package server

import (
	"context"
	"encoding/json"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nextEvent(t *testing.T, events <-chan SSEEvent) SSEEvent {
	t.Helper()
	select {
	case event := <-events:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for event")
		return SSEEvent{}
	}
}

func TestHubWatchers(t *testing.T) {
	hub := NewHub(0)
	var calls []bool
	hub.OnWatchers = func(watching bool) { calls = append(calls, watching) }

	_, unsubscribeA := hub.Subscribe()
	_, unsubscribeB := hub.Subscribe()
	assert.Equal(t, 2, hub.Clients())

	unsubscribeA()
	unsubscribeA()
	assert.Equal(t, 1, hub.Clients())

	unsubscribeB()
	assert.Equal(t, 0, hub.Clients())
	assert.Equal(t, []bool{true, false}, calls)
}

func TestHubListenerEvents(t *testing.T) {
	hub := NewHub(0)
	events, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	hub.OnProgress("Rendering", 4, 0, 16, "0:00:03")
	event := nextEvent(t, events)
	assert.Equal(t, "progress", event.Type)
	var progress ProgressUpdate
	require.NoError(t, json.Unmarshal([]byte(event.Data), &progress))
	assert.Equal(t, ProgressUpdate{Task: "Rendering", Done: 4, Target: 16, ETA: "0:00:03"}, progress)

	hub.OnStateChanged(true, true)
	event = nextEvent(t, events)
	assert.Equal(t, "state", event.Type)
	assert.JSONEq(t, `{"pathTracing":true,"paused":true}`, event.Data)

	hub.OnTaskFailed("Saving scene")
	event = nextEvent(t, events)
	assert.Equal(t, "taskFailed", event.Type)
	assert.JSONEq(t, `{"task":"Saving scene"}`, event.Data)

	for _, notify := range []func(){hub.OnResetPrevented, hub.OnSceneSaved, hub.OnSceneLoaded, hub.OnChunksLoaded} {
		notify()
	}
	for _, expected := range []string{"resetPrevented", "sceneSaved", "sceneLoaded", "chunksLoaded"} {
		assert.Equal(t, expected, nextEvent(t, events).Type)
	}

	hub.OnJobFinished(2000, 1.5)
	event = nextEvent(t, events)
	assert.JSONEq(t, `{"renderTime":2000,"samplesPerSecond":1.5}`, event.Data)
}

func TestHubDropsEventsForSlowClients(t *testing.T) {
	hub := NewHub(0)
	events, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < clientBuffer*2; i++ {
			hub.OnSceneSaved()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publishing blocked on a full client")
	}
	assert.Len(t, events, clientBuffer)
}

func TestHubPresentScalesFrames(t *testing.T) {
	hub := NewHub(50)
	events, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	hub.Present(image.NewRGBA(image.Rect(0, 0, 200, 100)), 200, 100)

	event := nextEvent(t, events)
	require.Equal(t, "frame", event.Type)
	var frame FrameUpdate
	require.NoError(t, json.Unmarshal([]byte(event.Data), &frame))
	assert.Equal(t, 50, frame.Width)
	assert.Equal(t, 25, frame.Height)
	assert.NotEmpty(t, frame.ImageData)
}

func TestScaleFrame(t *testing.T) {
	small := image.NewRGBA(image.Rect(0, 0, 40, 30))
	assert.Same(t, small, scaleFrame(small, 100).(*image.RGBA))
	assert.Same(t, small, scaleFrame(small, 0).(*image.RGBA))

	scaled := scaleFrame(image.NewRGBA(image.Rect(0, 0, 400, 1)), 100)
	assert.Equal(t, image.Rect(0, 0, 100, 1), scaled.Bounds())
}
