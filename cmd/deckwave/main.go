package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/deckwave/deckwave/internal/config"
	"github.com/deckwave/deckwave/internal/deck"
	"github.com/deckwave/deckwave/internal/engine"
	"github.com/deckwave/deckwave/internal/fx"
	"github.com/deckwave/deckwave/internal/mix"
	"github.com/deckwave/deckwave/internal/monitor"
	"github.com/deckwave/deckwave/internal/prerender"
	"github.com/deckwave/deckwave/internal/stream"
)

func main() {
	cfg := config.Load()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).With().Timestamp().Logger()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info().Msg("deckwave starting up")

	// Explicit construction: the engine, mixer and effect manager are
	// built once here and passed by reference, no ambient lookup.
	effects := fx.NewManager(logger)
	eng := engine.New(effects, logger)
	broadcaster := stream.NewBroadcaster()
	mixer := mix.NewManager(eng, logger)
	mixer.SetBroadcaster(broadcaster)
	streamer := stream.NewStreamer(broadcaster, logger)
	renderer := prerender.NewRenderer(logger)

	eng.Start()
	go broadcaster.Run(ctx, eng.Frames())
	streamer.StartStreaming()

	if cfg.MonitorEnabled {
		out := monitor.NewOutput(eng.MonitorFrames(), logger)
		if err := out.Start(); err != nil {
			logger.Warn().Err(err).Msg("monitor output unavailable")
		}
	}

	srv := newServer(cfg, logger, eng, mixer, effects, streamer, renderer)

	addr := fmt.Sprintf(":%d", cfg.Port)
	httpServer := &http.Server{Addr: addr, Handler: srv.routes(broadcaster)}

	go func() {
		<-ctx.Done()
		logger.Info().Msg("shutting down")
		streamer.StopStreaming()
		if err := mixer.StopRecording(); err != nil {
			logger.Warn().Err(err).Msg("recording close failed")
		}
		eng.Stop()
		httpServer.Close()
	}()

	logger.Info().Str("addr", addr).Msg("deckwave live")
	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("http server error")
	}
}

type server struct {
	cfg      config.Config
	log      zerolog.Logger
	eng      *engine.Engine
	mixer    *mix.Manager
	effects  *fx.Manager
	streamer *stream.Streamer
	renderer *prerender.Renderer
}

func newServer(cfg config.Config, log zerolog.Logger, eng *engine.Engine, mixer *mix.Manager,
	effects *fx.Manager, streamer *stream.Streamer, renderer *prerender.Renderer) *server {
	return &server{cfg: cfg, log: log, eng: eng, mixer: mixer, effects: effects,
		streamer: streamer, renderer: renderer}
}

func (s *server) routes(b *stream.Broadcaster) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Method(http.MethodGet, "/stream", stream.NewHTTPHandler(s.streamer, s.log))

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus(b))

		r.Route("/deck/{id}", func(r chi.Router) {
			r.Post("/load", s.handleDeckLoad)
			r.Post("/play", s.deckTransport(s.eng.PlayDeck))
			r.Post("/pause", s.deckTransport(s.eng.PauseDeck))
			r.Post("/stop", s.deckTransport(s.eng.StopDeck))
			r.Post("/cue", s.deckTransport(s.eng.CueDeck))
			r.Post("/seek", s.handleDeckSeek)
			r.Post("/params", s.handleDeckParams)
			r.Post("/autogain", s.handleAutoGain)
			r.Post("/monitor", s.handleCueToggle)
			r.Delete("/effects", s.handleClearDeckEffects)
		})

		r.Post("/mixer/crossfader", s.handleCrossfader)
		r.Post("/mixer/curve", s.handleCurve)
		r.Post("/mixer/master", s.handleMaster)
		r.Post("/mixer/monitor", s.handleMonitor)
		r.Get("/mixer/levels", s.handleLevels)

		r.Post("/recording/start", s.handleRecordStart)
		r.Post("/recording/stop", s.handleRecordStop)

		r.Post("/effects", s.handleEffectApply)
		r.Get("/effects", s.handleEffectList)
		r.Get("/effects/log", s.handleEffectLog)
		r.Post("/effects/{id}/bypass", s.handleEffectBypass)
		r.Post("/effects/{id}/stop", s.handleEffectStop)

		r.Post("/prerender", s.handlePrerender)
	})
	return r
}

func (s *server) handleStatus(b *stream.Broadcaster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		decks := make([]map[string]any, 0, deck.Count)
		for _, snap := range s.eng.Snapshots() {
			decks = append(decks, map[string]any{
				"id":       snap.ID.String(),
				"status":   snap.Status.String(),
				"track":    snap.Track,
				"position": snap.Position,
				"peak":     snap.PeakLevel,
				"rms":      snap.RMSLevel,
				"cue":      snap.CueActive,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"running":      s.eng.Running(),
			"active_decks": s.eng.ActiveDeckCount(),
			"decks":        decks,
			"mixer":        s.mixer.StateSnapshot(),
			"recording":    s.mixer.Recording(),
			"stream":       s.streamer.Info(),
			"listeners":    b.ListenerCount(),
		})
	}
}

func (s *server) deckID(r *http.Request) (deck.ID, error) {
	return deck.ParseID(chi.URLParam(r, "id"))
}

func (s *server) deckTransport(op func(deck.ID) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := s.deckID(r)
		if err != nil {
			writeErr(w, err)
			return
		}
		if err := op(id); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "deck": id.String()})
	}
}

func (s *server) handleDeckLoad(w http.ResponseWriter, r *http.Request) {
	id, err := s.deckID(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		http.Error(w, "path required", http.StatusBadRequest)
		return
	}
	if err := s.eng.LoadDeck(id, req.Path); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "deck": id.String()})
}

func (s *server) handleDeckSeek(w http.ResponseWriter, r *http.Request) {
	id, err := s.deckID(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	var req struct {
		Position float64 `json:"position"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if err := s.eng.SeekDeck(id, req.Position); err != nil {
		writeErr(w, err)
		return
	}
	pos, _ := s.eng.DeckPosition(id)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "position": pos})
}

func (s *server) handleDeckParams(w http.ResponseWriter, r *http.Request) {
	id, err := s.deckID(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	var req struct {
		Volume *float64 `json:"volume"`
		Gain   *float64 `json:"gain"`
		EQLow  *float64 `json:"eq_low"`
		EQMid  *float64 `json:"eq_mid"`
		EQHigh *float64 `json:"eq_high"`
		Tempo  *float64 `json:"tempo"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if err := s.eng.SetDeckParams(id, req.Volume, req.Gain, req.EQLow, req.EQMid, req.EQHigh, req.Tempo); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *server) handleAutoGain(w http.ResponseWriter, r *http.Request) {
	id, err := s.deckID(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	var req struct {
		Apply bool `json:"apply"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	writeJSON(w, http.StatusOK, s.mixer.AutoGainDeck(id, req.Apply))
}

func (s *server) handleCueToggle(w http.ResponseWriter, r *http.Request) {
	id, err := s.deckID(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	on, err := s.mixer.ToggleDeckCue(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "cue": on})
}

func (s *server) handleClearDeckEffects(w http.ResponseWriter, r *http.Request) {
	id, err := s.deckID(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": s.effects.ClearDeckEffects(id)})
}

func (s *server) handleCrossfader(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Position float64 `json:"position"`
		Apply    bool    `json:"apply_to_decks"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	gainA, gainB, err := s.mixer.UpdateCrossfader(req.Position, req.Apply)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "gain_a": gainA, "gain_b": gainB})
}

func (s *server) handleCurve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Curve string `json:"curve"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if err := s.mixer.UpdateCrossfaderCurve(mix.CrossfaderCurve(req.Curve)); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "curve": req.Curve})
}

func (s *server) handleMaster(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Volume *float64 `json:"volume"`
		Gain   *float64 `json:"gain"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if err := s.mixer.UpdateMasterOutput(req.Volume, req.Gain); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *server) handleMonitor(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Volume *float64 `json:"volume"`
		CueMix *float64 `json:"cue_mix"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if err := s.mixer.UpdateMonitorSettings(req.Volume, req.CueMix); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *server) handleLevels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.mixer.AllChannelLevels())
}

func (s *server) handleRecordStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Path == "" {
		if err := os.MkdirAll(s.cfg.RecordDir, 0o755); err != nil {
			writeErr(w, err)
			return
		}
		req.Path = filepath.Join(s.cfg.RecordDir,
			fmt.Sprintf("session-%s.wav", time.Now().Format("20060102-150405")))
	}
	if err := s.mixer.StartRecording(req.Path); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "path": req.Path})
}

func (s *server) handleRecordStop(w http.ResponseWriter, r *http.Request) {
	if err := s.mixer.StopRecording(); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *server) handleEffectApply(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Deck      string             `json:"deck"`
		Type      string             `json:"type"`
		Intensity float64            `json:"intensity"`
		Duration  float64            `json:"duration"` // seconds
		Params    map[string]float64 `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	id, err := deck.ParseID(req.Deck)
	if err != nil {
		writeErr(w, err)
		return
	}
	effectID, err := s.effects.Apply(id, fx.EffectSpec{
		Type:      fx.Type(req.Type),
		Intensity: req.Intensity,
		Duration:  time.Duration(req.Duration * float64(time.Second)),
		Params:    req.Params,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": effectID})
}

func (s *server) handleEffectList(w http.ResponseWriter, r *http.Request) {
	if d := r.URL.Query().Get("deck"); d != "" {
		id, err := deck.ParseID(d)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.effects.DeckEffects(id))
		return
	}
	writeJSON(w, http.StatusOK, s.effects.AllActiveEffects())
}

func (s *server) handleEffectLog(w http.ResponseWriter, r *http.Request) {
	var filter fx.EventFilter
	if d := r.URL.Query().Get("deck"); d != "" {
		id, err := deck.ParseID(d)
		if err != nil {
			writeErr(w, err)
			return
		}
		filter.DeckID = &id
	}
	filter.EffectID = r.URL.Query().Get("effect")
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}
	writeJSON(w, http.StatusOK, s.effects.EventLog(filter, limit))
}

func (s *server) handleEffectBypass(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Bypassed bool `json:"bypassed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if !s.effects.Bypass(chi.URLParam(r, "id"), req.Bypassed) {
		writeErr(w, fx.ErrUnknownEffect)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *server) handleEffectStop(w http.ResponseWriter, r *http.Request) {
	if err := s.effects.Stop(chi.URLParam(r, "id")); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *server) handlePrerender(w http.ResponseWriter, r *http.Request) {
	var plan prerender.SetPlan
	if err := json.NewDecoder(r.Body).Decode(&plan); err != nil {
		http.Error(w, "invalid set plan", http.StatusBadRequest)
		return
	}
	if err := os.MkdirAll(s.cfg.RenderDir, 0o755); err != nil {
		writeErr(w, err)
		return
	}
	name := plan.Name
	if name == "" {
		name = time.Now().Format("20060102-150405")
	}
	out := filepath.Join(s.cfg.RenderDir, name+".wav")

	path, err := s.renderer.PrerenderSet(r.Context(), &plan, out)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "path": path})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeErr maps core errors onto HTTP status codes.
func writeErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, deck.ErrInvalidDeck),
		errors.Is(err, fx.ErrInvalidType),
		errors.Is(err, fx.ErrInvalidIntensity),
		errors.Is(err, mix.ErrInvalidPosition),
		errors.Is(err, mix.ErrInvalidCurve),
		errors.Is(err, mix.ErrInvalidLevel),
		errors.Is(err, prerender.ErrEmptyPlan),
		errors.Is(err, prerender.ErrBadTransition):
		status = http.StatusBadRequest
	case errors.Is(err, engine.ErrDeckEmpty),
		errors.Is(err, fx.ErrUnknownEffect):
		status = http.StatusNotFound
	case errors.Is(err, mix.ErrAlreadyRecording):
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]any{"ok": false, "error": err.Error()})
}
