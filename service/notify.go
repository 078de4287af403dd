package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-redis/redis/v8"

	"github.com/AnTengye/leaseflow/config"
	"github.com/AnTengye/leaseflow/lifecycle"
	"github.com/AnTengye/leaseflow/model"
	"github.com/AnTengye/leaseflow/pkg/logger"
)

type EventType string

const (
	EventTransitionSucceeded EventType = "transition_succeeded"
	EventTransitionFailed    EventType = "transition_failed"
)

// Event reports the outcome of one attempted transition.
type Event struct {
	Type       EventType        `json:"type"`
	ContractID string           `json:"contract_id"`
	Account    string           `json:"account,omitempty"`
	Action     lifecycle.Action `json:"action"`
	From       model.Status     `json:"from,omitempty"`
	To         model.Status     `json:"to,omitempty"`
	Reason     string           `json:"reason,omitempty"`
	At         time.Time        `json:"at"`
}

// Notifier delivers transition events. Delivery is best effort: sinks log
// their own failures and never report them to the caller.
type Notifier interface {
	Notify(ctx context.Context, e Event)
}

// Notifiers fans an event out to every sink in order.
type Notifiers []Notifier

func (n Notifiers) Notify(ctx context.Context, e Event) {
	for _, sink := range n {
		sink.Notify(ctx, e)
	}
}

// LogNotifier writes events to the structured log. The contract id comes
// from ctx (see logger.WithContractID).
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, e Event) {
	args := []any{
		"event", e.Type,
		"action", e.Action,
		"from", e.From,
	}
	if e.Type == EventTransitionFailed {
		logger.Warn(ctx, "contract transition failed", append(args, "reason", e.Reason)...)
		return
	}
	logger.Info(ctx, "contract transition succeeded", append(args, "to", e.To)...)
}

// RedisStreamNotifier appends events to a Redis stream.
type RedisStreamNotifier struct {
	client *redis.Client
	stream string
}

func NewRedisStreamNotifier(client *redis.Client, stream string) *RedisStreamNotifier {
	return &RedisStreamNotifier{client: client, stream: stream}
}

func (n *RedisStreamNotifier) Notify(ctx context.Context, e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		logger.Error(ctx, "failed to encode event", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	err = n.client.XAdd(ctx, &redis.XAddArgs{
		Stream: n.stream,
		Values: map[string]interface{}{
			"type":        string(e.Type),
			"contract_id": e.ContractID,
			"data":        string(data),
		},
	}).Err()
	if err != nil {
		logger.Error(ctx, "failed to publish event to stream", "stream", n.stream, "error", err)
	}
}

// MQTTNotifier publishes events to <prefix>/<contract id>/events.
type MQTTNotifier struct {
	client      mqtt.Client
	topicPrefix string
	timeout     time.Duration
}

func NewMQTTNotifier(client mqtt.Client, topicPrefix string) *MQTTNotifier {
	return &MQTTNotifier{client: client, topicPrefix: topicPrefix, timeout: 5 * time.Second}
}

// NewMQTTClient connects to the configured broker
func NewMQTTClient(cfg *config.MQTTConfig) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return client, nil
}

func (n *MQTTNotifier) Topic(contractID string) string {
	return fmt.Sprintf("%s/%s/events", n.topicPrefix, contractID)
}

func (n *MQTTNotifier) Notify(ctx context.Context, e Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		logger.Error(ctx, "failed to encode event", "error", err)
		return
	}

	topic := n.Topic(e.ContractID)
	token := n.client.Publish(topic, 1, false, payload)
	go func() {
		if !token.WaitTimeout(n.timeout) {
			logger.Warn(ctx, "mqtt publish timed out", "topic", topic)
			return
		}
		if err := token.Error(); err != nil {
			logger.Error(ctx, "mqtt publish failed", "topic", topic, "error", err)
		}
	}()
}
