package bot

import (
	"context"
	"strconv"

	"github.com/getevo/evo/v2"
	"github.com/getevo/evo/v2/lib/db"
	"github.com/getevo/evo/v2/lib/log"
	"github.com/getevo/pagination"
	"github.com/google/uuid"
	"github.com/iesreza/homa-teams-bot/apps/models"
	"github.com/iesreza/homa-teams-bot/apps/nats"
	"github.com/iesreza/homa-teams-bot/apps/redis"
	"github.com/iesreza/homa-teams-bot/lib/activity"
	"github.com/iesreza/homa-teams-bot/lib/response"
)

type Controller struct{}

// Messages handles POST /api/messages
// The activity is acknowledged immediately and answered from a tracked
// background task.
func (c Controller) Messages(request *evo.Request) any {
	act, err := activity.Parse([]byte(request.Body()))
	if err != nil {
		log.Warning("Rejected inbound activity: %v", err)
		appErr := response.ErrInvalidActivity
		appErr.Details = err.Error()
		return response.Error(appErr)
	}

	if service == nil || tracker == nil {
		return response.Error(response.ErrShuttingDown)
	}

	if inbound != nil {
		ctx, cancel := context.WithTimeout(context.Background(), config.TokenTimeout)
		err := inbound.Verify(ctx, request.Header("Authorization"), act.Common().ServiceURL)
		cancel()
		if err != nil {
			log.Warning("Rejected %s activity for conversation %s: %v", act.Common().Type, act.Common().Conversation.ID, err)
			return response.Unauthorized("Activity is not signed by the messaging platform")
		}
	}

	taskID := uuid.NewString()
	accepted := tracker.Go(taskID, func(ctx context.Context) error {
		return service.Handle(ctx, taskID, act)
	})
	if !accepted {
		return response.Error(response.ErrShuttingDown)
	}

	log.Debug("Accepted %s activity for conversation %s as task %s", act.Common().Type, act.Common().Conversation.ID, taskID)
	return response.OK(map[string]any{"task_id": taskID})
}

// ListDeliveries handles GET /api/bot/deliveries
func (c Controller) ListDeliveries(request *evo.Request) any {
	var deliveries []models.BotDelivery

	query := db.Model(&models.BotDelivery{})
	if conversationID := request.Query("conversation_id").String(); conversationID != "" {
		query = query.Where("conversation_id = ?", conversationID)
	}
	if tenantID := request.Query("tenant_id").String(); tenantID != "" {
		query = query.Where("tenant_id = ?", tenantID)
	}
	if taskID := request.Query("task_id").String(); taskID != "" {
		query = query.Where("task_id = ?", taskID)
	}
	if success := request.Query("success").String(); success != "" {
		query = query.Where("success = ?", success == "true")
	}
	query = query.Order("id DESC")

	p, err := pagination.New(query, request, &deliveries, pagination.Options{MaxSize: 100})
	if err != nil {
		log.Error("Failed to list bot deliveries: %v", err)
		return response.Error(response.ErrDatabaseError)
	}

	return response.OKWithMeta(deliveries, &response.Meta{
		Page:       p.CurrentPage,
		Limit:      p.Size,
		Total:      int64(p.Records),
		TotalPages: p.Pages,
	})
}

// GetDelivery handles GET /api/bot/deliveries/:id
func (c Controller) GetDelivery(request *evo.Request) any {
	id, err := strconv.ParseUint(request.Param("id").String(), 10, 64)
	if err != nil {
		return response.BadRequest("Invalid delivery ID")
	}

	var delivery models.BotDelivery
	if resp := response.HandleDBError(db.First(&delivery, id).Error, "Delivery not found", "GetDelivery"); resp != nil {
		return resp
	}
	return response.OK(delivery)
}

// Status handles GET /api/bot/status
func (c Controller) Status(request *evo.Request) any {
	if service == nil || tracker == nil {
		return response.Error(response.ErrShuttingDown)
	}
	sessionStore := "memory"
	if redis.IsAvailable() {
		sessionStore = "redis"
	}
	return response.OK(map[string]any{
		"tasks_in_flight": tracker.InFlight(),
		"tasks_failed":    tracker.Failed(),
		"cached_tenants":  service.tokens.Cache().Len(),
		"session_store":   sessionStore,
		"nats_connected":  nats.IsConnected(),
	})
}
