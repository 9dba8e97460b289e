package mix

import (
	"time"

	"github.com/deckwave/deckwave/internal/audio"
	"github.com/deckwave/deckwave/internal/stream"
)

// recorder captures the master bus to a WAV file by tapping the
// broadcaster like any other listener.
type recorder struct {
	listener *stream.Listener
	writer   *audio.WAVWriter
	stop     chan struct{}
	done     chan struct{}
}

// SetBroadcaster wires the master-bus broadcaster used by recording. Must
// be called before StartRecording.
func (m *Manager) SetBroadcaster(b *stream.Broadcaster) {
	m.mu.Lock()
	m.broadcaster = b
	m.mu.Unlock()
}

// StartRecording begins capturing the master bus to a WAV file at path.
// Starting while already recording is an error.
func (m *Manager) StartRecording(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.recorder != nil {
		return ErrAlreadyRecording
	}
	if m.broadcaster == nil {
		return ErrNoBroadcaster
	}

	writer, err := audio.NewWAVWriter(path)
	if err != nil {
		return err
	}

	rec := &recorder{
		listener: m.broadcaster.Subscribe(),
		writer:   writer,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	m.recorder = rec
	m.state.RecordingStartedAt = time.Now()

	go m.record(rec)
	m.log.Info().Str("path", path).Msg("recording started")
	return nil
}

func (m *Manager) record(rec *recorder) {
	defer close(rec.done)
	for {
		select {
		case <-rec.stop:
			return
		case buf, ok := <-rec.listener.C:
			if !ok {
				return
			}
			if err := rec.writer.WriteFrame(buf); err != nil {
				m.log.Error().Err(err).Msg("recording write failed")
				return
			}
		}
	}
}

// StopRecording finalizes the capture file. Stopping while not recording
// is a no-op success.
func (m *Manager) StopRecording() error {
	m.mu.Lock()
	rec := m.recorder
	m.recorder = nil
	m.state.RecordingStartedAt = time.Time{}
	b := m.broadcaster
	m.mu.Unlock()

	if rec == nil {
		return nil
	}

	close(rec.stop)
	<-rec.done
	b.Unsubscribe(rec.listener)
	if err := rec.writer.Close(); err != nil {
		return err
	}
	m.log.Info().Msg("recording stopped")
	return nil
}

// Recording reports whether a capture is in progress.
func (m *Manager) Recording() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.recorder != nil
}
