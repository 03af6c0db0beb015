package models

import (
	"time"

	"github.com/getevo/restify"
	"gorm.io/datatypes"
)

// Delivery kinds
const (
	DeliveryKindReply   = "reply"
	DeliveryKindWelcome = "welcome"
)

// BotDelivery is one attempt to post a reply activity to a conversation
type BotDelivery struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	TaskID         string `gorm:"size:36;index" json:"task_id"`
	Kind           string `gorm:"size:20;not null" json:"kind"`
	TenantID       string `gorm:"size:100;index" json:"tenant_id"`
	ConversationID string `gorm:"size:255;index" json:"conversation_id"`
	ActivityID     string `gorm:"size:255" json:"activity_id,omitempty"`
	SurveyState    string `gorm:"size:20" json:"survey_state,omitempty"`

	Success bool `gorm:"not null;index" json:"success"`

	// Request details for debugging
	RequestURL string         `gorm:"type:text" json:"request_url,omitempty"`
	Payload    datatypes.JSON `json:"payload,omitempty"`

	// Response details
	StatusCode    int    `gorm:"default:0" json:"status_code"`
	AuthChallenge string `gorm:"size:1000" json:"auth_challenge,omitempty"`
	Response      string `gorm:"type:text" json:"response,omitempty"`

	// Failure classification
	ErrorKind string         `gorm:"size:50" json:"error_kind,omitempty"`
	Error     string         `gorm:"type:text" json:"error,omitempty"`
	Claims    datatypes.JSON `json:"claims,omitempty"`

	DurationMs int64     `gorm:"default:0" json:"duration_ms"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`

	restify.API
}

func (BotDelivery) TableName() string {
	return "bot_deliveries"
}
