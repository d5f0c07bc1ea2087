// Package google provides a recognition engine backed by Google Cloud
// Speech-to-Text streaming recognition.
//
// Audio is not captured by the engine itself: each handle opens the
// configured AudioSource when it starts listening and streams from it
// until the source is closed or Google reports the end of the utterance.
package google

import (
	"context"
	"errors"
	"io"
	"math"
	"strings"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"speech-coordinator/internal/service/recognition"
)

// stableThreshold separates stable interim results from the unstable tail.
const stableThreshold = 0.8

// AudioSource supplies PCM audio for one listening session.
type AudioSource interface {
	Open() (io.ReadCloser, error)
}

// Config holds Google STT configuration.
type Config struct {
	SampleRateHz  int
	AudioEncoding string // LINEAR16, MULAW, FLAC, ...
	ChunkBytes    int    // Bytes per StreamingRecognize audio message
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		SampleRateHz:  16000,
		AudioEncoding: "LINEAR16",
		ChunkBytes:    3200, // 100ms at 16kHz 16-bit mono
	}
}

var (
	ErrDestroyed = errors.New("handle destroyed")
	ErrBusy      = errors.New("handle already listening")
)

// streamOpener opens one bidirectional recognition stream.
type streamOpener func(ctx context.Context) (speechpb.Speech_StreamingRecognizeClient, error)

// Engine implements recognition.Engine using Google Cloud Speech-to-Text.
type Engine struct {
	client *speech.Client
	open   streamOpener
	source AudioSource
	cfg    Config
	logger zerolog.Logger
}

// New creates a new Google recognition engine.
// Requires GOOGLE_APPLICATION_CREDENTIALS environment variable to be set.
func New(ctx context.Context, cfg Config, source AudioSource, logger zerolog.Logger) (*Engine, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	if cfg.ChunkBytes <= 0 {
		cfg.ChunkBytes = DefaultConfig().ChunkBytes
	}
	return &Engine{
		client: c,
		open: func(ctx context.Context) (speechpb.Speech_StreamingRecognizeClient, error) {
			return c.StreamingRecognize(ctx)
		},
		source: source,
		cfg:    cfg,
		logger: logger.With().Str("component", "google-recognizer").Logger(),
	}, nil
}

// Available reports whether the Speech client was created.
func (e *Engine) Available() bool {
	return e != nil && e.open != nil && e.source != nil
}

// NewHandle creates a fresh handle.
func (e *Engine) NewHandle() (recognition.Handle, error) {
	return &handle{engine: e}, nil
}

// Close releases the underlying client.
func (e *Engine) Close() error {
	if e.client == nil {
		return nil
	}
	return e.client.Close()
}

type handle struct {
	engine *Engine

	mu        sync.Mutex
	listener  recognition.Listener
	cancel    context.CancelFunc
	audio     io.ReadCloser
	destroyed bool

	// emitMu serializes listener calls from the send and receive goroutines.
	emitMu sync.Mutex
}

func (h *handle) SetListener(l recognition.Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listener = l
}

// StartListening opens the engine's audio source, so chunks buffer from
// this point on, and hands the request to a goroutine that opens the stream
// and sends the streaming config. It never waits on the network; connection
// failures arrive as OnError.
func (h *handle) StartListening(req recognition.Request) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.destroyed {
		return ErrDestroyed
	}
	if h.cancel != nil {
		return ErrBusy
	}
	if req.PreferOffline {
		h.engine.logger.Debug().Msg("Offline recognition is not supported, using the cloud service")
	}

	src, err := h.engine.source.Open()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.audio = src
	go h.run(ctx, req, src)
	return nil
}

// StopListening closes the audio source; Google then reports final results.
func (h *handle) StopListening() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.audio != nil {
		return h.audio.Close()
	}
	return nil
}

// Destroy cancels the stream. No events are delivered afterwards.
func (h *handle) Destroy() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.destroyed = true
	h.listener = nil
	if h.cancel != nil {
		h.cancel()
	}
	if h.audio != nil {
		return h.audio.Close()
	}
	return nil
}

func (h *handle) run(ctx context.Context, req recognition.Request, src io.ReadCloser) {
	stream, err := h.engine.open(ctx)
	if err != nil {
		_ = src.Close()
		h.fail(ctx, err, "Failed to open recognition stream")
		return
	}
	if err := stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: streamingConfig(req, h.engine.cfg),
		},
	}); err != nil {
		_ = src.Close()
		h.fail(ctx, err, "Failed to send streaming config")
		return
	}

	h.emit(func(l recognition.Listener) { l.OnReadyForSpeech() })
	go h.pump(stream, src)
	h.receive(ctx, stream, src)
}

// fail reports a setup failure unless the handle was destroyed meanwhile.
func (h *handle) fail(ctx context.Context, err error, msg string) {
	if ctx.Err() != nil {
		return
	}
	code := errorCode(err)
	h.engine.logger.Error().Err(err).Str("code", code.String()).Msg(msg)
	h.emit(func(l recognition.Listener) { l.OnError(code) })
}

// pump sends audio chunks until the source is exhausted or closed.
func (h *handle) pump(stream speechpb.Speech_StreamingRecognizeClient, src io.Reader) {
	buf := make([]byte, h.engine.cfg.ChunkBytes)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if sendErr := stream.Send(&speechpb.StreamingRecognizeRequest{
				StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
					AudioContent: chunk,
				},
			}); sendErr != nil {
				return
			}
			level := rmsDB(chunk)
			h.emit(func(l recognition.Listener) {
				l.OnBufferReceived(chunk)
				l.OnRmsChanged(level)
			})
		}
		if err != nil {
			_ = stream.CloseSend()
			return
		}
	}
}

// receive translates streaming responses into listener events.
func (h *handle) receive(ctx context.Context, stream speechpb.Speech_StreamingRecognizeClient, src io.Closer) {
	began, ended, gotFinal := false, false, false
	endOfSpeech := func() {
		if !ended {
			ended = true
			h.emit(func(l recognition.Listener) { l.OnEndOfSpeech() })
		}
	}

	for {
		resp, err := stream.Recv()
		if err == io.EOF {
			if gotFinal {
				return
			}
			if began {
				// Stream closed mid-utterance: let the session fall back to partials.
				endOfSpeech()
				h.emit(func(l recognition.Listener) { l.OnResults(nil) })
			} else {
				h.emit(func(l recognition.Listener) { l.OnError(recognition.ErrorSpeechTimeout) })
			}
			return
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			code := errorCode(err)
			h.engine.logger.Error().Err(err).Str("code", code.String()).Msg("Streaming recognition failed")
			h.emit(func(l recognition.Listener) { l.OnError(code) })
			return
		}
		if resp.GetError() != nil {
			h.engine.logger.Error().Str("message", resp.GetError().GetMessage()).Msg("Recognition error status")
			h.emit(func(l recognition.Listener) { l.OnError(recognition.ErrorServer) })
			return
		}

		if len(resp.GetResults()) > 0 && !began {
			began = true
			h.emit(func(l recognition.Listener) { l.OnBeginningOfSpeech() })
		}

		if resp.GetSpeechEventType() == speechpb.StreamingRecognizeResponse_END_OF_SINGLE_UTTERANCE {
			endOfSpeech()
			_ = src.Close()
		}

		final, candidates, unstable := classify(resp.GetResults())
		switch {
		case final != nil:
			gotFinal = true
			endOfSpeech()
			h.emit(func(l recognition.Listener) { l.OnResults(final) })
		case len(candidates) > 0:
			h.emit(func(l recognition.Listener) { l.OnPartialResults(candidates, unstable) })
		}
	}
}

func (h *handle) emit(fn func(l recognition.Listener)) {
	h.emitMu.Lock()
	defer h.emitMu.Unlock()

	h.mu.Lock()
	l := h.listener
	h.mu.Unlock()
	if l != nil {
		fn(l)
	}
}

func streamingConfig(req recognition.Request, cfg Config) *speechpb.StreamingRecognitionConfig {
	maxAlternatives := req.MaxResults
	if maxAlternatives <= 0 {
		maxAlternatives = 1
	}
	rc := &speechpb.RecognitionConfig{
		Encoding:        parseAudioEncoding(cfg.AudioEncoding),
		SampleRateHertz: int32(cfg.SampleRateHz),
		LanguageCode:    req.Language.String(),
		MaxAlternatives: int32(maxAlternatives),
	}
	if req.LanguageModel == recognition.LanguageModelWebSearch {
		rc.Model = "command_and_search"
	}
	return &speechpb.StreamingRecognitionConfig{
		Config:          rc,
		SingleUtterance: true,
		InterimResults:  req.PartialResults,
	}
}

// classify splits a response into final candidates, or stable interim
// candidates plus the unstable tail.
func classify(results []*speechpb.StreamingRecognitionResult) (final, candidates []string, unstable string) {
	var tail []string
	for _, r := range results {
		alts := r.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		if r.GetIsFinal() {
			for _, alt := range alts {
				if t := strings.TrimSpace(alt.GetTranscript()); t != "" {
					final = append(final, t)
				}
			}
			if final == nil {
				final = []string{}
			}
			continue
		}
		t := strings.TrimSpace(alts[0].GetTranscript())
		if t == "" {
			continue
		}
		if r.GetStability() >= stableThreshold {
			candidates = append(candidates, t)
		} else {
			tail = append(tail, t)
		}
	}
	if final != nil {
		return final, nil, ""
	}
	if len(candidates) == 0 && len(tail) > 0 {
		candidates, tail = tail[:1], tail[1:]
	}
	return nil, candidates, strings.Join(tail, " ")
}

// errorCode maps gRPC failures to recognition error codes.
func errorCode(err error) recognition.ErrorCode {
	switch status.Code(err) {
	case codes.DeadlineExceeded:
		return recognition.ErrorNetworkTimeout
	case codes.Unavailable:
		return recognition.ErrorNetwork
	case codes.PermissionDenied, codes.Unauthenticated:
		return recognition.ErrorInsufficientPermissions
	case codes.ResourceExhausted:
		return recognition.ErrorRecognizerBusy
	case codes.InvalidArgument, codes.OutOfRange:
		return recognition.ErrorClient
	default:
		return recognition.ErrorServer
	}
}

// rmsDB returns the level of 16-bit little-endian PCM in dBFS.
func rmsDB(pcm []byte) float32 {
	n := len(pcm) / 2
	if n == 0 {
		return float32(math.Inf(-1))
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8))
		sum += s * s
	}
	rms := math.Sqrt(sum / float64(n))
	if rms == 0 {
		return float32(math.Inf(-1))
	}
	return float32(20 * math.Log10(rms/32768))
}

func parseAudioEncoding(encoding string) speechpb.RecognitionConfig_AudioEncoding {
	switch encoding {
	case "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC
	case "AMR":
		return speechpb.RecognitionConfig_AMR
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_LINEAR16
	}
}
