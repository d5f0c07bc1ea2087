// eventviewer consumes speech events from Kafka and shows them in the
// browser over a websocket.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	apihttp "speech-coordinator/internal/http"
	"speech-coordinator/internal/models"
	"speech-coordinator/internal/observability/metrics"
)

const page = `<!doctype html>
<html><head><meta charset="utf-8"><title>Speech events</title>
<style>body{font-family:sans-serif;margin:2em}#partial{color:#888}li{margin:.3em 0}</style>
</head><body>
<h1>Speech events</h1>
<p id="partial"></p>
<ul id="results"></ul>
<script>
const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
ws.onmessage = (m) => {
  const ev = JSON.parse(m.data);
  if (ev.eventType === "speech.partial") {
    document.getElementById("partial").textContent = (ev.partials || []).join(" ");
  } else if (ev.eventType === "speech.result") {
    const li = document.createElement("li");
    li.textContent = ev.sessionId + ": " + (ev.text || "(no speech)");
    document.getElementById("results").prepend(li);
    document.getElementById("partial").textContent = "";
  }
};
</script>
</body></html>`

func main() {
	port := flag.String("port", "8081", "HTTP server port")
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	topicEvents := flag.String("topic-events", "speech.session.events", "Session events topic")
	topicResults := flag.String("topic-results", "speech.session.results", "Results topic")
	since := flag.Duration("since", time.Hour, "Replay messages newer than this")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := apihttp.NewHub(func() string { return "" }, nil, metrics.DefaultMetrics, logger)
	defer hub.Close()

	for _, topic := range []string{*topicEvents, *topicResults} {
		go consume(ctx, hub, strings.Split(*brokers, ","), topic, *since, logger)
	}

	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page))
	})
	r.Get("/ws", hub.ServeHTTP)

	srv := &http.Server{Addr: ":" + *port, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().
		Str("url", "http://localhost:"+*port).
		Str("brokers", *brokers).
		Strs("topics", []string{*topicEvents, *topicResults}).
		Msg("Event viewer starting")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("Server error")
	}
}

// consume reads partition 0 of topic without a consumer group, which works
// through a port-forward.
func consume(ctx context.Context, hub *apihttp.Hub, brokers []string, topic string, since time.Duration, logger zerolog.Logger) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   brokers,
		Topic:     topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer reader.Close()

	if err := reader.SetOffsetAt(ctx, time.Now().Add(-since)); err != nil {
		logger.Warn().Err(err).Str("topic", topic).Msg("Failed to seek")
	}
	logger.Info().Str("topic", topic).Msg("Consuming")

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn().Err(err).Str("topic", topic).Msg("Kafka read error")
			time.Sleep(time.Second)
			continue
		}

		var head struct {
			EventType string `json:"eventType"`
			SessionID string `json:"sessionId"`
		}
		if err := json.Unmarshal(msg.Value, &head); err != nil {
			logger.Warn().Err(err).Msg("Skipping malformed event")
			continue
		}
		if head.EventType == models.EventSpeechResult {
			logger.Info().Str("sessionId", head.SessionID).Msg("Result received")
		}
		hub.Broadcast(json.RawMessage(msg.Value))
	}
}
