package nats

import (
	"fmt"
	"sync"
	"time"

	"github.com/getevo/evo/v2/lib/log"
	"github.com/nats-io/nats.go"
)

var (
	nc *nats.Conn
	mu sync.RWMutex
)

// Config holds NATS connection configuration
type Config struct {
	URL            string
	Name           string
	MaxReconnects  int
	ReconnectWait  time.Duration
	PingInterval   time.Duration
	MaxPingsOut    int
	AllowReconnect bool
	DrainTimeout   time.Duration
}

// Connect establishes a reconnecting connection to NATS
func Connect(config Config) error {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.PingInterval(config.PingInterval),
		nats.MaxPingsOutstanding(config.MaxPingsOut),
		nats.DrainTimeout(config.DrainTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warning("NATS disconnected: %v", err)
			} else {
				log.Warning("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			log.Info("NATS reconnected to %s", conn.ConnectedUrl())
		}),
		nats.ClosedHandler(func(conn *nats.Conn) {
			if conn.LastError() != nil {
				log.Error("NATS connection closed: %v", conn.LastError())
			} else {
				log.Info("NATS connection closed")
			}
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			if sub != nil {
				log.Error("NATS error on subscription %s: %v", sub.Subject, err)
			} else {
				log.Error("NATS async error: %v", err)
			}
		}),
	}
	if !config.AllowReconnect {
		opts = append(opts, nats.NoReconnect())
	}

	conn, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", config.URL, err)
	}

	mu.Lock()
	nc = conn
	mu.Unlock()

	log.Info("Connected to NATS at %s (server %s, version %s)", conn.ConnectedUrl(), conn.ConnectedServerName(), conn.ConnectedServerVersion())
	return nil
}

// GetConnection returns the NATS connection, nil when not connected
func GetConnection() *nats.Conn {
	mu.RLock()
	defer mu.RUnlock()
	return nc
}

// IsConnected checks if NATS is connected
func IsConnected() bool {
	conn := GetConnection()
	return conn != nil && conn.IsConnected()
}

// Close drains the connection, giving in-flight publishes until the
// configured drain timeout
func Close() error {
	mu.Lock()
	conn := nc
	nc = nil
	mu.Unlock()

	if conn == nil {
		return nil
	}
	if err := conn.Drain(); err != nil {
		log.Warning("Error draining NATS connection: %v", err)
		conn.Close()
		return err
	}
	return nil
}

// Publish publishes a message to a subject
func Publish(subject string, data []byte) error {
	conn := GetConnection()
	if conn == nil || !conn.IsConnected() {
		return fmt.Errorf("NATS not connected")
	}
	return conn.Publish(subject, data)
}
