// Package publisher streams webhook audit events to Kafka for downstream
// consumers. Publishing is best-effort and never blocks webhook handling.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"simkyc/internal/kyc/models"
	"simkyc/pkg/requestcontext"
)

// Message is the Kafka value for one webhook event.
type Message struct {
	EventID          string          `json:"event_id"`
	RecordID         int64           `json:"record_id"`
	Provider         string          `json:"provider"`
	EventName        string          `json:"event_name,omitempty"`
	FlowID           string          `json:"flow_id,omitempty"`
	VerificationID   string          `json:"verification_id,omitempty"`
	IdentityID       string          `json:"identity_id,omitempty"`
	ServiceRequestID *int64          `json:"service_request_id,omitempty"`
	SignatureValid   *bool           `json:"signature_valid,omitempty"`
	EventTimestamp   *time.Time      `json:"event_timestamp,omitempty"`
	ReceivedAt       time.Time       `json:"received_at"`
	RequestID        string          `json:"request_id,omitempty"`
	Payload          json.RawMessage `json:"payload,omitempty"`
}

// KafkaPublisher produces webhook events to a single topic, keyed by the
// provider verification id so one verification's events stay ordered.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
}

func NewKafka(client *kgo.Client, topic string) *KafkaPublisher {
	return &KafkaPublisher{client: client, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev *models.WebhookEvent) error {
	value, err := Encode(ctx, ev)
	if err != nil {
		return err
	}
	key := ev.VerificationID
	if key == "" {
		key = strconv.FormatInt(ev.ID, 10)
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(key),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_name", Value: []byte(ev.EventName)},
			{Key: "provider", Value: []byte(ev.Provider)},
		},
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce webhook event: %w", err)
	}
	return nil
}

// Encode renders ev as a Kafka message value.
func Encode(ctx context.Context, ev *models.WebhookEvent) ([]byte, error) {
	msg := Message{
		EventID:          uuid.NewString(),
		RecordID:         ev.ID,
		Provider:         ev.Provider,
		EventName:        ev.EventName,
		FlowID:           ev.FlowID,
		VerificationID:   ev.VerificationID,
		IdentityID:       ev.IdentityID,
		ServiceRequestID: ev.ServiceRequestID,
		SignatureValid:   ev.SignatureValid,
		EventTimestamp:   ev.EventTimestamp,
		ReceivedAt:       ev.CreatedAt,
		RequestID:        requestcontext.RequestID(ctx),
	}
	if ev.Payload != nil {
		raw, err := json.Marshal(ev.Payload)
		if err != nil {
			return nil, fmt.Errorf("marshal webhook payload: %w", err)
		}
		msg.Payload = raw
	}
	value, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal webhook message: %w", err)
	}
	return value, nil
}

// EnsureTopic creates topic if it does not exist yet.
func EnsureTopic(ctx context.Context, client *kgo.Client, topic string, partitions int32, replicas int16) error {
	admin := kadm.NewClient(client)
	resp, err := admin.CreateTopic(ctx, partitions, replicas, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", topic, resp.Err)
	}
	return nil
}
