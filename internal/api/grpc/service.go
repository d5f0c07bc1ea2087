package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "speech.v1.SpeechService"

const (
	methodListen        = "/" + ServiceName + "/Listen"
	methodStopListening = "/" + ServiceName + "/StopListening"
	methodSay           = "/" + ServiceName + "/Say"
	methodStopSpeaking  = "/" + ServiceName + "/StopSpeaking"
	methodStatus        = "/" + ServiceName + "/Status"
	methodStreamAudio   = "/" + ServiceName + "/StreamAudio"
)

// SpeechServer is the server API. Messages are protobuf well-known types.
type SpeechServer interface {
	// Listen starts a session and streams its events until the result.
	Listen(*emptypb.Empty, grpc.ServerStream) error
	StopListening(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	// Say returns the utterance id.
	Say(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
	StopSpeaking(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	Status(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	// StreamAudio feeds recognizer audio until the client closes the stream.
	StreamAudio(grpc.ServerStream) error
}

// ServiceDesc describes SpeechService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SpeechServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "StopListening", Handler: stopListeningHandler},
		{MethodName: "Say", Handler: sayHandler},
		{MethodName: "StopSpeaking", Handler: stopSpeakingHandler},
		{MethodName: "Status", Handler: statusHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Listen", Handler: listenHandler, ServerStreams: true},
		{StreamName: "StreamAudio", Handler: streamAudioHandler, ClientStreams: true},
	},
	Metadata: "speech/v1/speech.proto",
}

// RegisterSpeechServer registers srv on s.
func RegisterSpeechServer(s grpc.ServiceRegistrar, srv SpeechServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func listenHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(SpeechServer).Listen(in, stream)
}

func streamAudioHandler(srv any, stream grpc.ServerStream) error {
	return srv.(SpeechServer).StreamAudio(stream)
}

func stopListeningHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SpeechServer).StopListening(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodStopListening}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SpeechServer).StopListening(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func sayHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SpeechServer).Say(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodSay}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SpeechServer).Say(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func stopSpeakingHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SpeechServer).StopSpeaking(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodStopSpeaking}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SpeechServer).StopSpeaking(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func statusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SpeechServer).Status(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodStatus}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SpeechServer).Status(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}
