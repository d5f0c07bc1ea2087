// Package http serves the REST control surface and the websocket event feed.
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"speech-coordinator/internal/service/coordinator"
	"speech-coordinator/internal/service/speech"
	"speech-coordinator/internal/service/synthesis"
	"speech-coordinator/internal/service/utterance"
)

// Coordinator is the façade as seen by the HTTP API.
type Coordinator interface {
	StartListening(d speech.Delegate) error
	StopListening() error
	Say(text string, cb utterance.Callback) (string, error)
	StopSpeaking() error
	Status() coordinator.Status
}

type api struct {
	coord  Coordinator
	logger zerolog.Logger
}

// NewRouter constructs the HTTP router for the service. hub may be nil.
func NewRouter(coord Coordinator, hub *Hub, logger zerolog.Logger) http.Handler {
	a := &api{coord: coord, logger: logger.With().Str("component", "httpApi").Logger()}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", a.status)
		r.Post("/listen/start", a.startListening)
		r.Post("/listen/stop", a.stopListening)
		r.Post("/say", a.say)
		r.Post("/say/stop", a.stopSpeaking)
		if hub != nil {
			r.Get("/events", hub.ServeHTTP)
		}
	})

	return r
}

type sayRequest struct {
	Text string `json:"text"`
}

type sayResponse struct {
	UtteranceID string `json:"utteranceId"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (a *api) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.coord.Status())
}

// startListening opens a session whose events reach the observers only.
func (a *api) startListening(w http.ResponseWriter, _ *http.Request) {
	if err := a.coord.StartListening(nil); err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, a.coord.Status())
}

func (a *api) stopListening(w http.ResponseWriter, _ *http.Request) {
	if err := a.coord.StopListening(); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) say(w http.ResponseWriter, r *http.Request) {
	var req sayRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "text is required"})
		return
	}
	id, err := a.coord.Say(text, nil)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, sayResponse{UtteranceID: id})
}

func (a *api) stopSpeaking(w http.ResponseWriter, _ *http.Request) {
	if err := a.coord.StopSpeaking(); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, speech.ErrNotInitialized), errors.Is(err, synthesis.ErrShutdown):
		code = http.StatusConflict
	case errors.Is(err, speech.ErrEngineUnavailable):
		code = http.StatusServiceUnavailable
	case errors.Is(err, speech.ErrVoiceInputDisabled):
		code = http.StatusForbidden
	case errors.Is(err, speech.ErrInvalidArgument):
		code = http.StatusBadRequest
	}
	if code == http.StatusInternalServerError {
		a.logger.Error().Err(err).Msg("Request failed")
	}
	writeJSON(w, code, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
