// Package mqtt bridges the speech façade to an MQTT broker: devices send
// commands and receive session events and results.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"speech-coordinator/internal/models"
	"speech-coordinator/internal/observability/metrics"
	"speech-coordinator/internal/service/coordinator"
	"speech-coordinator/internal/service/speech"
	"speech-coordinator/internal/service/utterance"
)

const publishTimeout = 5 * time.Second

// Command actions.
const (
	ActionListen       = "listen"
	ActionStop         = "stop"
	ActionSay          = "say"
	ActionStopSpeaking = "stopSpeaking"
	ActionStatus       = "status"
)

var ErrUnknownAction = errors.New("unknown action")

type Config struct {
	BrokerURL   string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	// EchoResults speaks every non-empty final result back.
	EchoResults bool
}

// Coordinator is the façade as seen by the bridge.
type Coordinator interface {
	StartListening(d speech.Delegate) error
	StopListening() error
	Say(text string, cb utterance.Callback) (string, error)
	StopSpeaking() error
	Status() coordinator.Status
}

// Command is the payload of TopicCommand.
type Command struct {
	RequestID string `json:"requestId"`
	Action    string `json:"action"`
	Text      string `json:"text,omitempty"`
}

// Reply is published to TopicReply for every command.
type Reply struct {
	RequestID   string              `json:"requestId"`
	OK          bool                `json:"ok"`
	Error       string              `json:"error,omitempty"`
	UtteranceID string              `json:"utteranceId,omitempty"`
	Status      *coordinator.Status `json:"status,omitempty"`
}

type publishFunc func(topic string, qos byte, payload []byte) error

// Bridge is also a speech.Delegate observing every session.
type Bridge struct {
	cfg       Config
	coord     Coordinator
	client    paho.Client
	publish   publishFunc
	sessionID func() string
	clock     clock.Clock
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

func NewBridge(cfg Config, coord Coordinator, sessionID func() string, m *metrics.Metrics, logger zerolog.Logger) *Bridge {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "speech"
	}
	if m == nil {
		m = metrics.DefaultMetrics
	}
	b := &Bridge{
		cfg:       cfg,
		coord:     coord,
		sessionID: sessionID,
		clock:     clock.New(),
		metrics:   m,
		logger:    logger.With().Str("component", "mqttBridge").Logger(),
	}
	b.publish = b.pahoPublish
	return b
}

// SetCoordinator binds the façade. The bridge is created before the
// coordinator since it observes the sessions the coordinator starts.
func (b *Bridge) SetCoordinator(coord Coordinator) {
	b.coord = coord
}

// Start connects to the broker and subscribes to commands. The connection
// is closed when ctx is done.
func (b *Bridge) Start(ctx context.Context) error {
	opts := paho.NewClientOptions().
		AddBroker(b.cfg.BrokerURL).
		SetClientID(b.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true)

	if b.cfg.Username != "" {
		opts.SetUsername(b.cfg.Username)
		opts.SetPassword(b.cfg.Password)
	}

	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		b.logger.Error().Err(err).Msg("MQTT connection lost")
	})
	// Resubscribe after every reconnect.
	opts.SetOnConnectHandler(func(c paho.Client) {
		topic := TopicCommand(b.cfg.TopicPrefix)
		if token := c.Subscribe(topic, 1, b.handleMessage); token.Wait() && token.Error() != nil {
			b.logger.Error().Err(token.Error()).Str("topic", topic).Msg("MQTT subscribe failed")
			return
		}
		b.logger.Info().Str("topic", topic).Msg("MQTT subscribed")
	})

	b.client = paho.NewClient(opts)
	if token := b.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt connect: %w", token.Error())
	}

	go func() {
		<-ctx.Done()
		b.Close()
	}()

	b.logger.Info().Str("broker", b.cfg.BrokerURL).Msg("MQTT bridge started")
	return nil
}

// Close disconnects from the broker.
func (b *Bridge) Close() {
	if b.client != nil && b.client.IsConnected() {
		b.client.Disconnect(250)
	}
}

func (b *Bridge) handleMessage(_ paho.Client, msg paho.Message) {
	b.metrics.RecordMQTT("in")
	reply := b.handleCommand(msg.Payload())
	body, err := json.Marshal(reply)
	if err != nil {
		b.logger.Error().Err(err).Msg("Failed to marshal reply")
		return
	}
	b.send(TopicReply(b.cfg.TopicPrefix, reply.RequestID), 1, body)
}

// handleCommand executes one command payload.
func (b *Bridge) handleCommand(payload []byte) Reply {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.logger.Warn().Err(err).Msg("Invalid command payload")
		return Reply{RequestID: uuid.NewString(), Error: "invalid command payload"}
	}
	if cmd.RequestID == "" {
		cmd.RequestID = uuid.NewString()
	}

	reply := Reply{RequestID: cmd.RequestID}
	var err error
	switch strings.TrimSpace(cmd.Action) {
	case ActionListen:
		err = b.coord.StartListening(nil)
	case ActionStop:
		err = b.coord.StopListening()
	case ActionSay:
		text := strings.TrimSpace(cmd.Text)
		if text == "" {
			err = fmt.Errorf("%w: text is required", speech.ErrInvalidArgument)
			break
		}
		reply.UtteranceID, err = b.coord.Say(text, nil)
	case ActionStopSpeaking:
		err = b.coord.StopSpeaking()
	case ActionStatus:
		st := b.coord.Status()
		reply.Status = &st
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownAction, cmd.Action)
	}

	if err != nil {
		b.logger.Warn().Err(err).Str("action", cmd.Action).Str("requestId", cmd.RequestID).Msg("Command failed")
		reply.Error = err.Error()
		return reply
	}
	reply.OK = true
	return reply
}

func (b *Bridge) pahoPublish(topic string, qos byte, payload []byte) error {
	if b.client == nil || !b.client.IsConnected() {
		return nil
	}
	token := b.client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("mqtt publish to %s timed out", topic)
	}
	return token.Error()
}

func (b *Bridge) send(topic string, qos byte, payload []byte) {
	if err := b.publish(topic, qos, payload); err != nil {
		b.logger.Warn().Err(err).Str("topic", topic).Msg("MQTT publish failed")
		return
	}
	b.metrics.RecordMQTT("out")
}

func (b *Bridge) sendEvent(topic string, qos byte, event any) {
	body, err := json.Marshal(event)
	if err != nil {
		b.logger.Error().Err(err).Msg("Failed to marshal event")
		return
	}
	b.send(topic, qos, body)
}

func (b *Bridge) now() int64 {
	return b.clock.Now().UnixMilli()
}

func (b *Bridge) OnStartOfSpeech() {
	b.sendEvent(TopicEvent(b.cfg.TopicPrefix, models.EventSpeechStarted), 1, models.SpeechStarted{
		EventType: models.EventSpeechStarted,
		SessionID: b.sessionID(),
		Timestamp: b.now(),
	})
}

// OnSpeechRmsChanged is not forwarded.
func (b *Bridge) OnSpeechRmsChanged(float32) {}

func (b *Bridge) OnSpeechPartialResults(results []string) {
	b.sendEvent(TopicEvent(b.cfg.TopicPrefix, models.EventSpeechPartial), 0, models.SpeechPartial{
		EventType: models.EventSpeechPartial,
		SessionID: b.sessionID(),
		Timestamp: b.now(),
		Partials:  append([]string(nil), results...),
	})
}

func (b *Bridge) OnSpeechResult(result string) {
	b.sendEvent(TopicResult(b.cfg.TopicPrefix), 1, models.SpeechResult{
		EventType: models.EventSpeechResult,
		SessionID: b.sessionID(),
		Timestamp: b.now(),
		Text:      result,
	})

	if b.cfg.EchoResults && strings.TrimSpace(result) != "" && b.coord != nil {
		if _, err := b.coord.Say(result, nil); err != nil {
			b.logger.Warn().Err(err).Msg("Echo failed")
		}
	}
}
