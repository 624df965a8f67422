// Package mqttingest feeds readings published over MQTT into the ingestion pipeline.
package mqttingest

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kjstillabower/smart-farm-service/internal/ingest"
	"github.com/kjstillabower/smart-farm-service/internal/models"
	"github.com/kjstillabower/smart-farm-service/internal/observability"
	"github.com/kjstillabower/smart-farm-service/internal/reqctx"
)

// Ingester is the ingestion pipeline.
type Ingester interface {
	Ingest(ctx context.Context, p ingest.Payload) (models.Snapshot, error)
}

// Config holds broker connection settings.
type Config struct {
	BrokerURL      string
	ClientID       string
	Username       string
	Password       string
	Topic          string
	QoS            byte
	ConnectTimeout time.Duration
}

// Subscriber consumes sensor messages from one topic. Broker credentials
// authenticate devices; there is no per-message key.
type Subscriber struct {
	cfg      Config
	client   mqtt.Client
	ingester Ingester
	logger   *zap.Logger
}

// NewSubscriber prepares a client; call Start to connect.
func NewSubscriber(cfg Config, ingester Ingester, logger *zap.Logger) *Subscriber {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "smart-farm-service"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Subscriber{cfg: cfg, ingester: ingester, logger: logger}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	// unique per process so replicas do not kick each other off the broker
	opts.SetClientID(fmt.Sprintf("%s-%s", cfg.ClientID, uuid.New().String()[:8]))
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetCleanSession(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", zap.Error(err))
	})
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		logger.Info("mqtt connected", zap.String("broker", cfg.BrokerURL))
		// resubscribe after every reconnect; clean sessions drop subscriptions
		token := c.Subscribe(cfg.Topic, cfg.QoS, s.handle)
		if token.WaitTimeout(cfg.ConnectTimeout) && token.Error() != nil {
			logger.Error("mqtt subscribe failed", zap.String("topic", cfg.Topic), zap.Error(token.Error()))
		}
	})
	s.client = mqtt.NewClient(opts)
	return s
}

// Start connects to the broker. Subscription happens in the connect handler.
func (s *Subscriber) Start() error {
	token := s.client.Connect()
	if !token.WaitTimeout(s.cfg.ConnectTimeout) {
		return fmt.Errorf("mqtt connect %s: timed out", s.cfg.BrokerURL)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect %s: %w", s.cfg.BrokerURL, err)
	}
	return nil
}

// Close disconnects, allowing in-flight handlers 250ms to finish.
func (s *Subscriber) Close() {
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(250)
	}
}

func (s *Subscriber) handle(_ mqtt.Client, msg mqtt.Message) {
	logger := s.logger.With(zap.String("topic", msg.Topic()), zap.Uint16("message_id", msg.MessageID()))
	ctx := reqctx.WithLogger(context.Background(), logger)

	p, err := ingest.ParsePayload(msg.Payload())
	if err != nil {
		observability.ReadingsIngestedTotal.WithLabelValues("mqtt_rejected").Inc()
		logger.Warn("mqtt message dropped", zap.Error(err))
		return
	}
	if _, err := s.ingester.Ingest(ctx, p); err != nil {
		logger.Error("mqtt ingest failed", zap.Error(err))
	}
}
