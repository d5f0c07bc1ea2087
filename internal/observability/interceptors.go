package observability

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"speech-coordinator/internal/observability/metrics"
)

// ClientIDKey is the metadata key callers use to identify themselves.
const ClientIDKey = "x-client-id"

// UnaryServerInterceptor records each Say/StopListening/Status style call
// and logs it with the caller's client id.
func UnaryServerInterceptor(m *metrics.Metrics) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		start := time.Now()

		resp, err := handler(ctx, req)

		duration := time.Since(start)
		code := status.Code(err)
		m.RecordRPC(info.FullMethod, code.String(), duration.Seconds())

		service, method := splitMethod(info.FullMethod)
		callEvent(code, err).
			Str("service", service).
			Str("method", method).
			Str("clientId", clientID(ctx)).
			Str("code", code.String()).
			Dur("duration", duration).
			Msg("gRPC unary call")

		return resp, err
	}
}

// StreamServerInterceptor records Listen and StreamAudio streams. Message
// counts show how many events were pushed and how many audio chunks arrived.
func StreamServerInterceptor(m *metrics.Metrics) grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		start := time.Now()
		cs := &countingStream{ServerStream: ss}

		err := handler(srv, cs)

		duration := time.Since(start)
		code := status.Code(err)
		m.RecordRPC(info.FullMethod, code.String(), duration.Seconds())

		service, method := splitMethod(info.FullMethod)
		ctx := context.Background()
		if ss != nil {
			ctx = ss.Context()
		}
		callEvent(code, err).
			Str("service", service).
			Str("method", method).
			Str("clientId", clientID(ctx)).
			Str("code", code.String()).
			Int64("sent", cs.sent.Load()).
			Int64("received", cs.received.Load()).
			Dur("duration", duration).
			Msg("gRPC stream completed")

		return err
	}
}

// callEvent picks the log level for a finished call. A client hanging up on
// a Listen stream is routine.
func callEvent(code codes.Code, err error) *zerolog.Event {
	switch code {
	case codes.OK, codes.Canceled:
		return log.Info()
	case codes.Internal, codes.Unknown:
		return log.Error().Err(err)
	default:
		return log.Warn().Err(err)
	}
}

// splitMethod turns "/speech.v1.SpeechService/Say" into its service and
// method names.
func splitMethod(fullMethod string) (service, method string) {
	name := strings.TrimPrefix(fullMethod, "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "unknown", name
}

func clientID(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if v := md.Get(ClientIDKey); len(v) > 0 {
		return v[0]
	}
	return ""
}

type countingStream struct {
	grpc.ServerStream
	sent, received atomic.Int64
}

func (s *countingStream) SendMsg(m any) error {
	err := s.ServerStream.SendMsg(m)
	if err == nil {
		s.sent.Add(1)
	}
	return err
}

func (s *countingStream) RecvMsg(m any) error {
	err := s.ServerStream.RecvMsg(m)
	if err == nil {
		s.received.Add(1)
	}
	return err
}
