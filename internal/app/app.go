// Package app wires configuration, engines, the speech façade and its
// transports into one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"speech-coordinator/internal/config"
	"speech-coordinator/internal/events"
	apihttp "speech-coordinator/internal/http"
	"speech-coordinator/internal/mqtt"
	"speech-coordinator/internal/observability/logging"
	"speech-coordinator/internal/observability/metrics"
	"speech-coordinator/internal/schema"
	"speech-coordinator/internal/service/audio"
	"speech-coordinator/internal/service/coordinator"
	"speech-coordinator/internal/service/recognition"
	"speech-coordinator/internal/service/recognition/google"
	recmock "speech-coordinator/internal/service/recognition/mock"
	"speech-coordinator/internal/service/speech"
	"speech-coordinator/internal/service/synthesis"
	synthmock "speech-coordinator/internal/service/synthesis/mock"
	"speech-coordinator/internal/service/synthesis/piper"
)

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Configuration
	Metrics     *metrics.Metrics

	Speech      *speech.Speech
	Coordinator *coordinator.Coordinator
	Audio       *audio.Bus
	Publisher   *events.Publisher
	Hub         *apihttp.Hub
	Bridge      *mqtt.Bridge

	closers []func() error
}

// New constructs a new Application from the provided configuration.
func New(cfg *config.Configuration) *Application {
	a := &Application{
		Cfg:     cfg,
		Metrics: metrics.DefaultMetrics,
	}
	a.setupLogger()

	appLogger := a.Logger.With().
		Str("component", "application").
		Str("method", "New").
		Logger()

	appLogger.Info().Msg("Speech coordinator application created")
	return a
}

// setupLogger configures zerolog for the service. ZEROLOG_LOG_LEVEL and
// ENV=dev override the configured level and format.
func (a *Application) setupLogger() {
	lc := logging.DefaultConfig()
	lc.Level = a.Cfg.Observability.LogLevel
	lc.Format = a.Cfg.Observability.LogFormat
	lc.Service = a.Cfg.Service.Principal
	if envLevel := os.Getenv("ZEROLOG_LOG_LEVEL"); envLevel != "" {
		lc.Level = strings.ToLower(envLevel)
	}
	if os.Getenv("ENV") == "dev" {
		lc.Format = "console"
	}

	a.Logger = logging.Init(lc)

	a.Logger.Info().
		Str("logLevel", zerolog.GlobalLevel().String()).
		Str("environment", os.Getenv("ENV")).
		Msg("Logger setup completed")
}

// Start builds the engines, the façade and the event sinks.
func (a *Application) Start(ctx context.Context) error {
	startLogger := a.Logger.With().
		Str("method", "Start").
		Logger()

	a.StartupTime = time.Now().UTC()
	startLogger.Info().
		Time("startupTime", a.StartupTime).
		Msg("Speech coordinator starting")

	a.Audio = audio.NewBus(audio.Limits{
		MaxBytes:    a.Cfg.AudioLimits.MaxBytes,
		MaxDuration: a.Cfg.AudioLimits.MaxDuration,
	}, a.Logger, a.Metrics)

	recognizer, err := a.newRecognizer(ctx)
	if err != nil {
		return err
	}
	synthesizer, err := a.newSynthesizer()
	if err != nil {
		return err
	}
	speechCfg, err := a.speechConfig()
	if err != nil {
		return err
	}

	a.Speech, err = speech.Init(speech.Options{
		Recognizer:     recognizer,
		Synthesizer:    synthesizer,
		CallingPackage: a.Cfg.Service.CallingPackage,
		Config:         speechCfg,
		Logger:         a.Logger,
		Metrics:        a.Metrics,
	})
	if err != nil {
		return fmt.Errorf("init speech: %w", err)
	}

	a.Publisher = events.New(&events.Config{
		Enabled:      a.Cfg.Kafka.Enabled,
		Brokers:      a.Cfg.Kafka.Brokers,
		TopicEvents:  a.Cfg.Kafka.TopicEvents,
		TopicResults: a.Cfg.Kafka.TopicResults,
		Principal:    a.Cfg.Kafka.Principal,
	})
	eventDelegate := events.NewDelegate(a.Publisher, schema.New(a.Logger), a.Speech.SessionId, nil, a.Logger)

	a.Hub = apihttp.NewHub(a.Speech.SessionId, nil, a.Metrics, a.Logger)

	observers := []speech.Delegate{eventDelegate, a.Hub}
	if a.Cfg.MQTT.Enabled {
		a.Bridge = mqtt.NewBridge(mqtt.Config{
			BrokerURL:   a.Cfg.MQTT.Broker,
			ClientID:    a.Cfg.MQTT.ClientID,
			Username:    a.Cfg.MQTT.Username,
			Password:    a.Cfg.MQTT.Password,
			TopicPrefix: a.Cfg.MQTT.TopicPrefix,
			EchoResults: a.Cfg.MQTT.EchoResults,
		}, nil, a.Speech.SessionId, a.Metrics, a.Logger)
		observers = append(observers, a.Bridge)
	}

	a.Coordinator = coordinator.New(a.Speech, a.Logger, observers...)
	a.Coordinator.ObserveUtterances(eventDelegate.Utterance)

	if a.Bridge != nil {
		a.Bridge.SetCoordinator(a.Coordinator)
		if err := a.Bridge.Start(ctx); err != nil {
			return err
		}
	}

	startLogger.Info().
		Str("recognition", a.Cfg.Recognition.Provider).
		Str("synthesis", a.Cfg.Synthesis.Provider).
		Bool("recognitionAvailable", a.Speech.IsRecognitionAvailable()).
		Bool("kafka", a.Cfg.Kafka.Enabled).
		Bool("mqtt", a.Cfg.MQTT.Enabled).
		Msg("Speech coordinator started")
	return nil
}

// Ready reports whether a recognizer handle is available.
func (a *Application) Ready() bool {
	return a.Speech != nil && a.Speech.IsRecognitionAvailable()
}

func (a *Application) speechConfig() (speech.Config, error) {
	mode, err := synthesis.ParseQueueMode(strings.ToLower(a.Cfg.Synthesis.QueueMode))
	if err != nil {
		return speech.Config{}, err
	}
	return speech.Config{
		Locale:             a.Cfg.Recognition.Tag(),
		PreferOffline:      a.Cfg.Recognition.PreferOffline,
		PartialResults:     a.Cfg.Recognition.PartialResults,
		InactivityTimeout:  a.Cfg.Session.InactivityTimeout,
		TransitionMinDelay: a.Cfg.Session.TransitionMinDelay,
		TTSRate:            float32(a.Cfg.Synthesis.Rate),
		TTSPitch:           float32(a.Cfg.Synthesis.Pitch),
		TTSQueueMode:       mode,
	}, nil
}

func (a *Application) newRecognizer(ctx context.Context) (recognition.Engine, error) {
	rc := a.Cfg.Recognition
	switch strings.ToLower(rc.Provider) {
	case "google":
		gc := google.DefaultConfig()
		gc.SampleRateHz = rc.SampleRateHz
		gc.AudioEncoding = rc.AudioEncoding
		e, err := google.New(ctx, gc, a.Audio, a.Logger)
		if err != nil {
			return nil, fmt.Errorf("google speech client: %w", err)
		}
		a.closers = append(a.closers, e.Close)
		return e, nil
	case "mock", "":
		mc := recmock.DefaultConfig()
		mc.Interval = rc.MockInterval
		behavior, ok := recmock.ParseBehavior(rc.MockBehavior)
		if !ok {
			a.Logger.Warn().Str("behavior", rc.MockBehavior).Msg("Unknown mock behavior, using final")
		}
		mc.Behavior = behavior
		return recmock.New(mc), nil
	default:
		return nil, fmt.Errorf("unknown recognition provider %q", rc.Provider)
	}
}

func (a *Application) newSynthesizer() (synthesis.Engine, error) {
	sc := a.Cfg.Synthesis
	switch strings.ToLower(sc.Provider) {
	case "none":
		return nil, nil
	case "piper":
		var sink piper.Sink = piper.DiscardSink{}
		if sc.PiperOutputDir != "" {
			sink = piper.FileSink{Fs: afero.NewOsFs(), Dir: sc.PiperOutputDir}
		}
		pc := piper.DefaultConfig()
		pc.Endpoint = sc.PiperEndpoint
		return piper.New(pc, sink, a.Logger), nil
	case "mock", "":
		return synthmock.New(synthmock.DefaultConfig()), nil
	default:
		return nil, fmt.Errorf("unknown synthesis provider %q", sc.Provider)
	}
}

// Shutdown performs a best-effort cleanup before process exit.
func (a *Application) Shutdown() {
	shutdownLogger := a.Logger.With().
		Str("method", "Shutdown").
		Logger()

	shutdownLogger.Info().Msg("Speech coordinator shutting down")

	if a.Hub != nil {
		a.Hub.Close()
	}
	if a.Bridge != nil {
		a.Bridge.Close()
	}
	if a.Speech != nil {
		if err := a.Speech.Shutdown(); err != nil && !errors.Is(err, speech.ErrNotInitialized) {
			shutdownLogger.Warn().Err(err).Msg("Speech shutdown")
		}
	}
	if a.Audio != nil {
		a.Audio.End()
	}
	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			shutdownLogger.Warn().Err(err).Msg("Publisher close")
		}
	}
	for _, c := range a.closers {
		if err := c(); err != nil {
			shutdownLogger.Warn().Err(err).Msg("Engine close")
		}
	}
}
