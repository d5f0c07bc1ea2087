package google

import (
	"bytes"
	"context"
	"errors"
	"io"
	"slices"
	"sync"
	"testing"
	"time"

	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/rs/zerolog"
	"golang.org/x/text/language"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"speech-coordinator/internal/service/recognition"
)

type fakeStream struct {
	speechpb.Speech_StreamingRecognizeClient

	mu        sync.Mutex
	sent      []*speechpb.StreamingRecognizeRequest
	responses chan *speechpb.StreamingRecognizeResponse
}

func (s *fakeStream) Send(req *speechpb.StreamingRecognizeRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, req)
	return nil
}

func (s *fakeStream) Recv() (*speechpb.StreamingRecognizeResponse, error) {
	resp, ok := <-s.responses
	if !ok {
		return nil, io.EOF
	}
	return resp, nil
}

func (s *fakeStream) CloseSend() error { return nil }

func (s *fakeStream) Sent() []*speechpb.StreamingRecognizeRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*speechpb.StreamingRecognizeRequest(nil), s.sent...)
}

type fakeSource struct {
	data []byte
	err  error
}

func (s fakeSource) Open() (io.ReadCloser, error) {
	if s.err != nil {
		return nil, s.err
	}
	return io.NopCloser(bytes.NewReader(s.data)), nil
}

type eventListener struct {
	recognition.NopListener
	events chan string
	codes  chan recognition.ErrorCode
}

func newEventListener() *eventListener {
	return &eventListener{
		events: make(chan string, 32),
		codes:  make(chan recognition.ErrorCode, 4),
	}
}

func (l *eventListener) OnReadyForSpeech()    { l.events <- "ready" }
func (l *eventListener) OnBeginningOfSpeech() { l.events <- "begin" }
func (l *eventListener) OnEndOfSpeech()       { l.events <- "end" }
func (l *eventListener) OnResults(c []string) { l.events <- "results:" + c[0] }
func (l *eventListener) OnError(code recognition.ErrorCode) {
	l.events <- "error"
	l.codes <- code
}

func (l *eventListener) next(t *testing.T) string {
	t.Helper()
	select {
	case e := <-l.events:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for listener event")
		return ""
	}
}

func newTestEngine(open streamOpener, source AudioSource) *Engine {
	return &Engine{
		open:   open,
		source: source,
		cfg:    DefaultConfig(),
		logger: zerolog.Nop(),
	}
}

func testRequest() recognition.Request {
	return recognition.Request{Language: language.AmericanEnglish, PartialResults: true, MaxResults: 1}
}

func TestStartListening_DoesNotWaitForStream(t *testing.T) {
	opened := make(chan struct{})
	cancelled := make(chan struct{})
	e := newTestEngine(func(ctx context.Context) (speechpb.Speech_StreamingRecognizeClient, error) {
		close(opened)
		<-ctx.Done()
		close(cancelled)
		return nil, ctx.Err()
	}, fakeSource{})

	h, _ := e.NewHandle()
	l := newEventListener()
	h.SetListener(l)

	returned := make(chan error, 1)
	go func() { returned <- h.StartListening(testRequest()) }()
	select {
	case err := <-returned:
		if err != nil {
			t.Fatalf("StartListening failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("StartListening blocked on the stream opener")
	}

	<-opened
	if err := h.Destroy(); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("expected Destroy to cancel the pending open")
	}

	select {
	case e := <-l.events:
		t.Errorf("expected no events after Destroy, got %s", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStartListening_OpenFailureReported(t *testing.T) {
	e := newTestEngine(func(context.Context) (speechpb.Speech_StreamingRecognizeClient, error) {
		return nil, status.Error(codes.PermissionDenied, "denied")
	}, fakeSource{})

	h, _ := e.NewHandle()
	l := newEventListener()
	h.SetListener(l)

	if err := h.StartListening(testRequest()); err != nil {
		t.Fatalf("expected failure through the listener, got %v", err)
	}
	if got := l.next(t); got != "error" {
		t.Fatalf("expected error event, got %s", got)
	}
	if code := <-l.codes; code != recognition.ErrorInsufficientPermissions {
		t.Errorf("expected insufficient permissions, got %v", code)
	}
}

func TestStartListening_SourceFailure(t *testing.T) {
	opened := false
	e := newTestEngine(func(context.Context) (speechpb.Speech_StreamingRecognizeClient, error) {
		opened = true
		return nil, errors.New("unreachable")
	}, fakeSource{err: errors.New("no audio")})

	h, _ := e.NewHandle()
	if err := h.StartListening(testRequest()); err == nil {
		t.Fatal("expected source error")
	}
	if opened {
		t.Error("stream must not be opened without audio")
	}
}

func TestStopListening_BeforeStreamOpens(t *testing.T) {
	release := make(chan struct{})
	stream := &fakeStream{responses: make(chan *speechpb.StreamingRecognizeResponse)}
	close(stream.responses)
	e := newTestEngine(func(context.Context) (speechpb.Speech_StreamingRecognizeClient, error) {
		<-release
		return stream, nil
	}, fakeSource{})

	h, _ := e.NewHandle()
	l := newEventListener()
	h.SetListener(l)

	_ = h.StartListening(testRequest())
	if err := h.StopListening(); err != nil {
		t.Fatalf("StopListening failed: %v", err)
	}
	close(release)

	// No speech began before the stream ended.
	if got := l.next(t); got != "ready" {
		t.Fatalf("expected ready, got %s", got)
	}
	if got := l.next(t); got != "error" {
		t.Fatalf("expected error, got %s", got)
	}
	if code := <-l.codes; code != recognition.ErrorSpeechTimeout {
		t.Errorf("expected speech timeout, got %v", code)
	}
}

func TestStartListening_DeliversFinalResult(t *testing.T) {
	stream := &fakeStream{responses: make(chan *speechpb.StreamingRecognizeResponse, 1)}
	stream.responses <- &speechpb.StreamingRecognizeResponse{
		Results: []*speechpb.StreamingRecognitionResult{result("hello", 0, true)},
	}
	close(stream.responses)

	e := newTestEngine(func(context.Context) (speechpb.Speech_StreamingRecognizeClient, error) {
		return stream, nil
	}, fakeSource{data: make([]byte, 640)})

	h, _ := e.NewHandle()
	l := newEventListener()
	h.SetListener(l)

	if err := h.StartListening(testRequest()); err != nil {
		t.Fatalf("StartListening failed: %v", err)
	}
	if err := h.StartListening(testRequest()); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy on second start, got %v", err)
	}

	var got []string
	for len(got) < 4 {
		got = append(got, l.next(t))
	}
	if !slices.Equal(got, []string{"ready", "begin", "end", "results:hello"}) {
		t.Errorf("unexpected event order %v", got)
	}

	sent := stream.Sent()
	if len(sent) == 0 || sent[0].GetStreamingConfig() == nil {
		t.Fatal("expected streaming config as the first message")
	}
	if lang := sent[0].GetStreamingConfig().GetConfig().GetLanguageCode(); lang != "en-US" {
		t.Errorf("expected en-US, got %s", lang)
	}
}
