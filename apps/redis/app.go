package redis

import (
	"github.com/getevo/evo/v2/lib/application"
	"github.com/getevo/evo/v2/lib/log"
)

// App owns the shared Redis connection
type App struct{}

func (App) Register() error {
	return Initialize()
}

func (App) Router() error {
	return nil
}

func (App) WhenReady() error {
	return nil
}

func (App) Name() string {
	return "redis"
}

// Shutdown closes the Redis connection
func (App) Shutdown() error {
	log.Info("Shutting down Redis connection...")
	return Close()
}

var _ application.Application = (*App)(nil)
