// Package bridge mirrors the internal message bus onto an external MQTT
// broker so fleet tooling can watch battery state without linking the
// daemon. Uplink only: nothing on the broker is written back to the bus.
package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"fuelgauge-go/bus"
	"fuelgauge-go/config"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

type Service struct {
	conn   *bus.Connection
	client pahomqtt.Client
	cfg    config.MQTTConfig
	log    *slog.Logger
}

// Start connects to the broker and mirrors matching bus traffic until
// ctx is cancelled. It blocks; run it on its own goroutine.
func Start(ctx context.Context, conn *bus.Connection, cfg config.MQTTConfig, log *slog.Logger) error {
	s := &Service{
		conn: conn,
		cfg:  cfg,
		log:  log.With("service", "bridge"),
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(clientID(cfg.ClientID)).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetOrderMatters(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetOnConnectHandler(func(pahomqtt.Client) {
		s.log.Info("broker connected", "broker", cfg.BrokerURL)
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		s.log.Warn("broker connection lost", "err", err)
	})

	s.client = pahomqtt.NewClient(opts)
	token := s.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		s.log.Warn("initial broker connect still pending, continuing in background")
	} else if err := token.Error(); err != nil {
		return err
	}

	s.run(ctx)
	s.client.Disconnect(250)
	return nil
}

// clientID derives a stable-prefix, unique-suffix client identifier so
// two daemons never kick each other off the broker.
func clientID(base string) string {
	if base == "" {
		base = "fuelgauge"
	}
	return base + "-" + uuid.NewString()[:8]
}

func (s *Service) run(ctx context.Context) {
	sub := s.conn.Subscribe(bus.Topic{"power", bus.WildAll})
	defer s.conn.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}
			s.uplink(msg)
		}
	}
}

// uplink forwards one bus message. Bus topic segments map 1:1 onto MQTT
// levels under the configured prefix; retained flags carry through so
// the broker serves the latest state to late subscribers.
func (s *Service) uplink(msg *bus.Message) {
	payload, err := json.Marshal(msg.Payload)
	if err != nil {
		s.log.Error("payload encode failed", "topic", msg.Topic.String(), "err", err)
		return
	}

	topic := s.remoteTopic(msg.Topic)
	token := s.client.Publish(topic, byte(s.cfg.QoS), msg.Retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		s.log.Warn("publish timed out", "topic", topic)
		return
	}
	if err := token.Error(); err != nil {
		s.log.Error("publish failed", "topic", topic, "err", err)
	}
}

func (s *Service) remoteTopic(t bus.Topic) string {
	if s.cfg.TopicPrefix == "" {
		return strings.Join(t, "/")
	}
	// The bus topic already begins with the "power" segment; the prefix
	// replaces it rather than stacking in front.
	if len(t) > 0 && t[0] == s.cfg.TopicPrefix {
		return strings.Join(t, "/")
	}
	return s.cfg.TopicPrefix + "/" + strings.Join(t[1:], "/")
}
