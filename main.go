package main

import (
	"github.com/getevo/evo/v2"
	"github.com/getevo/evo/v2/lib/application"
	"github.com/iesreza/homa-teams-bot/apps/bot"
	"github.com/iesreza/homa-teams-bot/apps/models"
	"github.com/iesreza/homa-teams-bot/apps/nats"
	"github.com/iesreza/homa-teams-bot/apps/redis"
	"github.com/iesreza/homa-teams-bot/apps/system"
)

func main() {
	evo.Setup()

	var apps = application.GetInstance()
	apps.Register(system.App{}, models.App{}, redis.App{}, nats.App{}, bot.App{})

	evo.Run()
}
