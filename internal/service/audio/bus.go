// Package audio routes externally supplied PCM audio to the recognizer
// handle that is currently listening.
package audio

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"speech-coordinator/internal/observability/metrics"
)

var (
	ErrNoStream      = errors.New("no audio stream open")
	ErrLimitExceeded = errors.New("audio stream limit exceeded")
	ErrBackpressure  = errors.New("audio stream buffer full, chunk dropped")
)

// Limits defines safety guardrails for one audio stream.
// These prevent unbounded resource usage when a recognizer stalls.
type Limits struct {
	MaxBytes    int64         // Max audio per stream
	MaxDuration time.Duration // Max stream duration
	BufferedMax int           // Max chunks waiting to be read
}

// DefaultLimits returns sensible default limits.
func DefaultLimits() Limits {
	return Limits{
		MaxBytes:    5 * 1024 * 1024, // 5MB (~160 seconds at 16kHz 16-bit mono)
		MaxDuration: 5 * time.Minute,
		BufferedMax: 256,
	}
}

// Bus hands chunks written by a producer (a gRPC client stream) to the
// reader opened by the recognition engine. At most one stream is open;
// opening a new one ends the previous one.
type Bus struct {
	mu      sync.Mutex
	current *stream
	limits  Limits
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// NewBus creates a Bus.
func NewBus(limits Limits, logger zerolog.Logger, m *metrics.Metrics) *Bus {
	if limits.BufferedMax <= 0 {
		limits.BufferedMax = DefaultLimits().BufferedMax
	}
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return &Bus{
		limits:  limits,
		logger:  logger.With().Str("component", "audio-bus").Logger(),
		metrics: m,
	}
}

// Open starts a new stream and returns its reader. Reads return io.EOF
// once the stream is ended and drained.
func (b *Bus) Open() (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current != nil {
		b.current.Close()
	}
	b.current = newStream(b.limits.BufferedMax)
	b.logger.Debug().Msg("Audio stream opened")
	return b.current, nil
}

// Write forwards one chunk to the open stream.
func (b *Bus) Write(chunk []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.current
	if s == nil || s.isClosed() {
		return 0, ErrNoStream
	}

	s.bytes += int64(len(chunk))
	if b.limits.MaxBytes > 0 && s.bytes > b.limits.MaxBytes {
		s.Close()
		b.logger.Warn().Int64("bytes", s.bytes).Msg("Audio stream ended, max bytes exceeded")
		return 0, fmt.Errorf("%w: max bytes %d", ErrLimitExceeded, b.limits.MaxBytes)
	}
	if b.limits.MaxDuration > 0 && time.Since(s.started) > b.limits.MaxDuration {
		s.Close()
		b.logger.Warn().Dur("duration", time.Since(s.started)).Msg("Audio stream ended, max duration exceeded")
		return 0, fmt.Errorf("%w: max duration %v", ErrLimitExceeded, b.limits.MaxDuration)
	}

	buf := make([]byte, len(chunk))
	copy(buf, chunk)
	select {
	case s.ch <- buf:
		b.metrics.RecordAudioReceived(len(chunk))
		return len(chunk), nil
	default:
		return 0, ErrBackpressure
	}
}

// End closes the open stream. Buffered chunks can still be read.
func (b *Bus) End() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current != nil {
		b.current.Close()
		b.current = nil
	}
}

// Active reports whether a stream is open.
func (b *Bus) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current != nil && !b.current.isClosed()
}

type stream struct {
	ch      chan []byte
	closed  chan struct{}
	once    sync.Once
	pending []byte
	bytes   int64
	started time.Time
}

func newStream(size int) *stream {
	return &stream{
		ch:      make(chan []byte, size),
		closed:  make(chan struct{}),
		started: time.Now(),
	}
}

func (s *stream) Read(p []byte) (int, error) {
	if len(s.pending) == 0 {
		select {
		case buf := <-s.ch:
			s.pending = buf
		case <-s.closed:
			select {
			case buf := <-s.ch:
				s.pending = buf
			default:
				return 0, io.EOF
			}
		}
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *stream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *stream) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}
