package nats

import (
	"github.com/getevo/evo/v2/lib/application"
	"github.com/getevo/evo/v2/lib/log"
	"github.com/getevo/evo/v2/lib/settings"
)

// App connects to NATS when NATS.ENABLED is set
type App struct{}

func (App) Register() error {
	return nil
}

func (App) Router() error {
	return nil
}

func (App) WhenReady() error {
	if !settings.Get("NATS.ENABLED", false).Bool() {
		log.Info("NATS disabled, delivery events will not be published")
		return nil
	}

	reconnectWait, _ := settings.Get("NATS.RECONNECT_WAIT", "2s").Duration()
	pingInterval, _ := settings.Get("NATS.PING_INTERVAL", "20s").Duration()
	drainTimeout, _ := settings.Get("NATS.DRAIN_TIMEOUT", "30s").Duration()

	config := Config{
		URL:            settings.Get("NATS.URL", "nats://localhost:4222").String(),
		Name:           settings.Get("NATS.NAME", "homa-teams-bot").String(),
		MaxReconnects:  int(settings.Get("NATS.MAX_RECONNECTS", 60).Int64()),
		ReconnectWait:  reconnectWait,
		PingInterval:   pingInterval,
		MaxPingsOut:    int(settings.Get("NATS.MAX_PINGS_OUT", 2).Int64()),
		AllowReconnect: settings.Get("NATS.ALLOW_RECONNECT", true).Bool(),
		DrainTimeout:   drainTimeout,
	}

	if err := Connect(config); err != nil {
		log.Error("Failed to connect to NATS: %v", err)
		return err
	}
	return nil
}

func (App) Name() string {
	return "nats"
}

// Shutdown drains the NATS connection
func (App) Shutdown() error {
	log.Info("Shutting down NATS connection...")
	return Close()
}

var _ application.Application = (*App)(nil)
