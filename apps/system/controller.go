package system

import (
	"time"

	"github.com/getevo/evo/v2"
	"github.com/iesreza/homa-teams-bot/lib/response"
)

type Controller struct{}

func (c Controller) HealthHandler(request *evo.Request) any {
	return response.OK("ok")
}

func (c Controller) UptimeHandler(request *evo.Request) any {
	return response.OK(map[string]any{
		"uptime": int64(time.Since(StartupTime).Seconds()),
	})
}
