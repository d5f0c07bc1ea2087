// Package grpcapi serves the speech façade over gRPC.
package grpcapi

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"speech-coordinator/internal/models"
	"speech-coordinator/internal/observability/logging"
	"speech-coordinator/internal/service/audio"
	"speech-coordinator/internal/service/coordinator"
	"speech-coordinator/internal/service/speech"
	"speech-coordinator/internal/service/synthesis"
	"speech-coordinator/internal/service/utterance"
)

// Coordinator is the façade as seen by the gRPC API.
type Coordinator interface {
	StartListening(d speech.Delegate) error
	StopListening() error
	Say(text string, cb utterance.Callback) (string, error)
	StopSpeaking() error
	Status() coordinator.Status
}

// AudioSink receives streamed audio.
type AudioSink interface {
	Write(chunk []byte) (int, error)
	End()
}

type Server struct {
	coord  Coordinator
	audio  AudioSink
	logger zerolog.Logger
}

// NewServer creates the API. sink may be nil when the recognizer does not
// consume streamed audio.
func NewServer(coord Coordinator, sink AudioSink, logger zerolog.Logger) *Server {
	return &Server{
		coord:  coord,
		audio:  sink,
		logger: logger.With().Str("component", "grpcApi").Logger(),
	}
}

// Register registers the API on g.
func Register(g *grpc.Server, s *Server) {
	RegisterSpeechServer(g, s)
}

func (s *Server) Listen(_ *emptypb.Empty, stream grpc.ServerStream) error {
	ctx := stream.Context()

	if s.coord.Status().Listening {
		return status.Error(codes.FailedPrecondition, "a session is already in progress")
	}

	d := newStreamDelegate(ctx)
	if err := s.coord.StartListening(d); err != nil {
		return toStatus(err)
	}
	st := s.coord.Status()
	if !st.Listening && len(d.events) == 0 {
		return status.Error(codes.Unavailable, "listen request dropped, retry later")
	}
	sessionID := st.SessionID
	logger := logging.WithSession(s.logger, sessionID)
	logger.Info().Msg("Listen stream opened")

	for {
		select {
		case <-ctx.Done():
			if err := s.coord.StopListening(); err != nil {
				logger.Warn().Err(err).Msg("Stop on client cancel failed")
			}
			return status.FromContextError(ctx.Err()).Err()
		case ev := <-d.events:
			msg, err := ev.toStruct(sessionID)
			if err != nil {
				return status.Error(codes.Internal, err.Error())
			}
			if err := stream.SendMsg(msg); err != nil {
				_ = s.coord.StopListening()
				return err
			}
			if ev.eventType == models.EventSpeechResult {
				logger.Info().Msg("Listen stream completed")
				return nil
			}
		}
	}
}

func (s *Server) StopListening(context.Context, *emptypb.Empty) (*emptypb.Empty, error) {
	if err := s.coord.StopListening(); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Server) Say(_ context.Context, in *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	text := strings.TrimSpace(in.GetValue())
	if text == "" {
		return nil, status.Error(codes.InvalidArgument, "text is required")
	}
	id, err := s.coord.Say(text, nil)
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.String(id), nil
}

func (s *Server) StopSpeaking(context.Context, *emptypb.Empty) (*emptypb.Empty, error) {
	if err := s.coord.StopSpeaking(); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Server) Status(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	st := s.coord.Status()
	return structpb.NewStruct(map[string]any{
		"state":                st.State,
		"listening":            st.Listening,
		"sessionId":            st.SessionID,
		"recognitionAvailable": st.RecognitionAvailable,
		"locale":               st.Locale,
	})
}

func (s *Server) StreamAudio(stream grpc.ServerStream) error {
	if s.audio == nil {
		return status.Error(codes.Unimplemented, "recognizer does not accept streamed audio")
	}
	defer s.audio.End()

	dropped := 0
	defer func() {
		if dropped > 0 {
			s.logger.Debug().Int("dropped", dropped).Msg("Audio chunks dropped")
		}
	}()

	for {
		chunk := new(wrapperspb.BytesValue)
		err := stream.RecvMsg(chunk)
		if errors.Is(err, io.EOF) {
			return stream.SendMsg(&emptypb.Empty{})
		}
		if err != nil {
			return err
		}
		_, err = s.audio.Write(chunk.GetValue())
		switch {
		case err == nil:
		case errors.Is(err, audio.ErrNoStream), errors.Is(err, audio.ErrBackpressure):
			// Nothing is listening or the recognizer is behind.
			dropped++
		default:
			return toStatus(err)
		}
	}
}

// toStatus maps façade errors to gRPC status codes.
func toStatus(err error) error {
	var engineErr *speech.EngineError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, speech.ErrNotInitialized), errors.Is(err, synthesis.ErrShutdown):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, speech.ErrEngineUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, speech.ErrVoiceInputDisabled):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, speech.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, audio.ErrNoStream):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, audio.ErrLimitExceeded), errors.Is(err, audio.ErrBackpressure):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.As(err, &engineErr):
		return status.Error(codes.Aborted, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

type streamEvent struct {
	eventType string
	partials  []string
	text      string
	rmsDB     float32
}

func (e streamEvent) toStruct(sessionID string) (*structpb.Struct, error) {
	fields := map[string]any{
		"eventType": e.eventType,
		"sessionId": sessionID,
	}
	switch e.eventType {
	case models.EventSpeechPartial:
		partials := make([]any, len(e.partials))
		for i, p := range e.partials {
			partials[i] = p
		}
		fields["partials"] = partials
	case models.EventSpeechResult:
		fields["text"] = e.text
	case models.EventSpeechRms:
		fields["rmsDb"] = float64(models.FiniteRms(e.rmsDB))
	}
	return structpb.NewStruct(fields)
}

// streamDelegate queues notifications for the Listen handler. Level
// updates are dropped when the queue is full; everything else waits until
// the stream goes away.
type streamDelegate struct {
	ctx    context.Context
	events chan streamEvent
}

func newStreamDelegate(ctx context.Context) *streamDelegate {
	return &streamDelegate{ctx: ctx, events: make(chan streamEvent, 64)}
}

func (d *streamDelegate) OnStartOfSpeech() {
	d.push(streamEvent{eventType: models.EventSpeechStarted})
}

func (d *streamDelegate) OnSpeechRmsChanged(value float32) {
	select {
	case d.events <- streamEvent{eventType: models.EventSpeechRms, rmsDB: value}:
	default:
	}
}

func (d *streamDelegate) OnSpeechPartialResults(results []string) {
	d.push(streamEvent{eventType: models.EventSpeechPartial, partials: append([]string(nil), results...)})
}

func (d *streamDelegate) OnSpeechResult(result string) {
	d.push(streamEvent{eventType: models.EventSpeechResult, text: result})
}

func (d *streamDelegate) push(ev streamEvent) {
	select {
	case d.events <- ev:
	case <-d.ctx.Done():
	}
}
