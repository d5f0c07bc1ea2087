package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"speech-coordinator/internal/observability"
)

// Client calls SpeechService over a gRPC connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// WithClientID tags outgoing calls on ctx with id, which the server logs.
func WithClientID(ctx context.Context, id string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, observability.ClientIDKey, id)
}

// ListenStream receives the events of one session.
type ListenStream struct {
	stream grpc.ClientStream
}

// Recv returns the next event. io.EOF follows the result event.
func (s *ListenStream) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := s.stream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Listen starts a session. Cancel ctx to stop it early.
func (c *Client) Listen(ctx context.Context, opts ...grpc.CallOption) (*ListenStream, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], methodListen, opts...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &ListenStream{stream: stream}, nil
}

func (c *Client) StopListening(ctx context.Context, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, methodStopListening, &emptypb.Empty{}, new(emptypb.Empty), opts...)
}

// Say returns the utterance id.
func (c *Client) Say(ctx context.Context, text string, opts ...grpc.CallOption) (string, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, methodSay, wrapperspb.String(text), out, opts...); err != nil {
		return "", err
	}
	return out.GetValue(), nil
}

func (c *Client) StopSpeaking(ctx context.Context, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, methodStopSpeaking, &emptypb.Empty{}, new(emptypb.Empty), opts...)
}

func (c *Client) Status(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodStatus, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// AudioStream sends recognizer audio.
type AudioStream struct {
	stream grpc.ClientStream
}

func (s *AudioStream) Send(chunk []byte) error {
	return s.stream.SendMsg(wrapperspb.Bytes(chunk))
}

// CloseAndRecv ends the audio and waits for the server to acknowledge.
func (s *AudioStream) CloseAndRecv() error {
	if err := s.stream.CloseSend(); err != nil {
		return err
	}
	return s.stream.RecvMsg(new(emptypb.Empty))
}

func (c *Client) StreamAudio(ctx context.Context, opts ...grpc.CallOption) (*AudioStream, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[1], methodStreamAudio, opts...)
	if err != nil {
		return nil, err
	}
	return &AudioStream{stream: stream}, nil
}
