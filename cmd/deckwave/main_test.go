package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/deckwave/deckwave/internal/config"
	"github.com/deckwave/deckwave/internal/deck"
	"github.com/deckwave/deckwave/internal/engine"
	"github.com/deckwave/deckwave/internal/fx"
	"github.com/deckwave/deckwave/internal/mix"
	"github.com/deckwave/deckwave/internal/prerender"
	"github.com/deckwave/deckwave/internal/stream"
)

func newTestHandler(t *testing.T) (http.Handler, *fx.Manager) {
	t.Helper()
	logger := zerolog.Nop()
	effects := fx.NewManager(logger)
	eng := engine.New(effects, logger)
	b := stream.NewBroadcaster()
	mixer := mix.NewManager(eng, logger)
	mixer.SetBroadcaster(b)
	streamer := stream.NewStreamer(b, logger)
	renderer := prerender.NewRenderer(logger)
	srv := newServer(config.Load(), logger, eng, mixer, effects, streamer, renderer)
	return srv.routes(b), effects
}

func TestEffectLogLimitParam(t *testing.T) {
	h, effects := newTestHandler(t)

	for i := 0; i < 3; i++ {
		if _, err := effects.Apply(deck.A, fx.EffectSpec{Type: fx.Echo, Intensity: 0.5}); err != nil {
			t.Fatalf("Apply: %v", err)
		}
	}

	get := func(url string) []fx.Event {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("GET %s = %d", url, rec.Code)
		}
		var events []fx.Event
		if err := json.NewDecoder(rec.Body).Decode(&events); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
		return events
	}

	if events := get("/api/effects/log?limit=2"); len(events) != 2 {
		t.Errorf("limit=2 returned %d events", len(events))
	}
	if events := get("/api/effects/log"); len(events) != 3 {
		t.Errorf("default limit returned %d events, want all 3", len(events))
	}
	// malformed limit falls back to the default
	if events := get("/api/effects/log?limit=bogus"); len(events) != 3 {
		t.Errorf("malformed limit returned %d events, want all 3", len(events))
	}
}

func TestStatusEndpoint(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/status = %d", rec.Code)
	}
	var status map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if running, ok := status["running"].(bool); !ok || running {
		t.Errorf("running = %v, want false for a stopped engine", status["running"])
	}
	decks, ok := status["decks"].([]any)
	if !ok || len(decks) != deck.Count {
		t.Errorf("decks = %v, want %d entries", status["decks"], deck.Count)
	}
}
