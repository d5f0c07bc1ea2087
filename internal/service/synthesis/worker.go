package synthesis

import (
	"context"
	"sync"
)

// Utterance is one queued synthesis request.
type Utterance struct {
	Id    string
	Text  string
	Voice Voice
}

// RenderFunc produces audio for one utterance. It must return promptly once
// ctx is cancelled.
type RenderFunc func(ctx context.Context, u Utterance) error

// Worker plays queued utterances one at a time on its own goroutine and
// reports progress to a ProgressListener. Engines embed it to get queue
// semantics for free.
type Worker struct {
	mu       sync.Mutex
	cond     *sync.Cond
	render   RenderFunc
	listener ProgressListener
	queue    []Utterance
	cancel   context.CancelFunc
	closed   bool
	done     chan struct{}
}

// NewWorker starts a worker that renders utterances with render.
func NewWorker(render RenderFunc) *Worker {
	w := &Worker{
		render: render,
		done:   make(chan struct{}),
	}
	w.cond = sync.NewCond(&w.mu)
	go w.loop()
	return w
}

// SetListener sets the progress listener. nil disables reporting.
func (w *Worker) SetListener(l ProgressListener) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listener = l
}

// Enqueue queues u. QueueFlush drops pending utterances and interrupts the
// one currently playing.
func (w *Worker) Enqueue(u Utterance, mode QueueMode) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrShutdown
	}
	if mode == QueueFlush {
		w.flushLocked()
	}
	w.queue = append(w.queue, u)
	w.cond.Signal()
	return nil
}

// Stop interrupts the current utterance and drops pending ones.
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushLocked()
}

// Pending returns the number of queued utterances not yet started.
func (w *Worker) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}

// Close stops the worker and waits for its goroutine to exit.
func (w *Worker) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		<-w.done
		return
	}
	w.closed = true
	w.flushLocked()
	w.cond.Broadcast()
	w.mu.Unlock()
	<-w.done
}

func (w *Worker) flushLocked() {
	w.queue = nil
	if w.cancel != nil {
		w.cancel()
	}
}

func (w *Worker) loop() {
	defer close(w.done)

	for {
		w.mu.Lock()
		for len(w.queue) == 0 && !w.closed {
			w.cond.Wait()
		}
		if w.closed {
			w.mu.Unlock()
			return
		}
		u := w.queue[0]
		w.queue = w.queue[1:]
		ctx, cancel := context.WithCancel(context.Background())
		w.cancel = cancel
		l := w.listener
		w.mu.Unlock()

		if l != nil {
			l.OnStart(u.Id)
		}
		err := w.render(ctx, u)

		w.mu.Lock()
		interrupted := ctx.Err() != nil
		w.cancel = nil
		l = w.listener
		w.mu.Unlock()
		cancel()

		if interrupted || l == nil {
			continue
		}
		if err != nil {
			l.OnError(u.Id, err)
		} else {
			l.OnDone(u.Id)
		}
	}
}
