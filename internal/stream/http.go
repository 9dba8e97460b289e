package stream

import (
	"net/http"

	"github.com/rs/zerolog"
)

// HTTPHandler serves the live mix as a chunked WAV audio stream.
type HTTPHandler struct {
	streamer *Streamer
	log      zerolog.Logger
}

// NewHTTPHandler creates an HTTP stream handler over the streamer.
func NewHTTPHandler(s *Streamer, logger zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{
		streamer: s,
		log:      logger.With().Str("component", "stream-http").Logger(),
	}
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Connection", "close")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	h.log.Info().Str("remote", r.RemoteAddr).Msg("stream listener connected")
	defer h.log.Info().Str("remote", r.RemoteAddr).Msg("stream listener disconnected")

	for chunk := range h.streamer.StreamWAV(r.Context()) {
		if _, err := w.Write(chunk); err != nil {
			return
		}
		flusher.Flush()
	}
}
