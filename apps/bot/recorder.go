package bot

import (
	"encoding/json"

	"github.com/getevo/evo/v2/lib/db"
	"github.com/getevo/evo/v2/lib/log"
	"github.com/iesreza/homa-teams-bot/apps/models"
	"github.com/iesreza/homa-teams-bot/apps/nats"
	"github.com/iesreza/homa-teams-bot/lib/textutil"
	"gorm.io/datatypes"
)

// Row limits. Connector bodies arrive already cut to connector.MaxBodySnippet,
// so these only bound outcomes from elsewhere and never cut a snippet twice.
const (
	maxResponseLength = 4000
	maxErrorLength    = 8000
)

// deliveryLog writes outcomes to the bot_deliveries table and publishes them
// on NATS
type deliveryLog struct {
	persist bool
}

func (l deliveryLog) Record(o Outcome) {
	if l.persist {
		delivery := NewDeliveryRecord(o)
		if err := db.Create(&delivery).Error; err != nil {
			log.Error("Failed to log bot delivery: %v", err)
		}
	}
	nats.PublishDelivery(NewDeliveryEvent(o))
}

// NewDeliveryRecord converts an outcome into its log row
func NewDeliveryRecord(o Outcome) models.BotDelivery {
	delivery := models.BotDelivery{
		TaskID:         o.TaskID,
		Kind:           o.Kind,
		TenantID:       o.TenantID,
		ConversationID: o.ConversationID,
		ActivityID:     o.ActivityID,
		SurveyState:    string(o.SurveyState),
		Success:        o.Err == nil && o.Result.Success,
		RequestURL:     o.Result.URL,
		StatusCode:     o.Result.StatusCode,
		AuthChallenge:  o.Result.AuthChallenge,
		Response:       textutil.Truncate(o.Result.Body, maxResponseLength),
		ErrorKind:      o.ErrorKind,
		DurationMs:     o.Result.Duration.Milliseconds(),
	}
	if len(o.Payload) > 0 {
		delivery.Payload = datatypes.JSON(o.Payload)
	}
	if o.Err != nil {
		delivery.Error = textutil.Truncate(o.Err.Error(), maxErrorLength)
	}
	if len(o.Claims) > 0 {
		if raw, err := json.Marshal(o.Claims); err == nil {
			delivery.Claims = datatypes.JSON(raw)
		}
	}
	return delivery
}

// NewDeliveryEvent converts an outcome into its NATS event
func NewDeliveryEvent(o Outcome) nats.DeliveryEvent {
	event := nats.DeliveryEvent{
		TaskID:         o.TaskID,
		Kind:           o.Kind,
		TenantID:       o.TenantID,
		ConversationID: o.ConversationID,
		Success:        o.Err == nil && o.Result.Success,
		StatusCode:     o.Result.StatusCode,
		AuthChallenge:  o.Result.AuthChallenge,
		ErrorKind:      o.ErrorKind,
		Claims:         o.Claims,
		DurationMs:     o.Result.Duration.Milliseconds(),
		Timestamp:      o.At,
	}
	if o.Err != nil {
		event.Error = textutil.Truncate(o.Err.Error(), maxErrorLength)
	}
	return event
}

