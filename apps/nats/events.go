package nats

import (
	"encoding/json"
	"time"

	"github.com/getevo/evo/v2/lib/log"
)

// Delivery outcome subjects
const (
	SubjectDeliverySucceeded = "bot.delivery.succeeded"
	SubjectDeliveryFailed    = "bot.delivery.failed"
)

// DeliveryEvent is published after every delivery attempt
type DeliveryEvent struct {
	TaskID         string         `json:"task_id"`
	Kind           string         `json:"kind"`
	TenantID       string         `json:"tenant_id"`
	ConversationID string         `json:"conversation_id"`
	Success        bool           `json:"success"`
	StatusCode     int            `json:"status_code,omitempty"`
	AuthChallenge  string         `json:"auth_challenge,omitempty"`
	ErrorKind      string         `json:"error_kind,omitempty"`
	Error          string         `json:"error,omitempty"`
	Claims         map[string]any `json:"claims,omitempty"`
	DurationMs     int64          `json:"duration_ms"`
	Timestamp      time.Time      `json:"timestamp"`
}

// Subject returns the subject the event is published on
func (e DeliveryEvent) Subject() string {
	if e.Success {
		return SubjectDeliverySucceeded
	}
	return SubjectDeliveryFailed
}

// PublishDelivery publishes the event when NATS is connected
func PublishDelivery(event DeliveryEvent) {
	if !IsConnected() {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		log.Error("Failed to encode delivery event: %v", err)
		return
	}
	if err := Publish(event.Subject(), data); err != nil {
		log.Warning("Failed to publish %s: %v", event.Subject(), err)
	}
}
