package bot

import (
	"strings"
	"time"

	"github.com/getevo/evo/v2/lib/settings"
	"github.com/iesreza/homa-teams-bot/lib/botauth"
	"github.com/iesreza/homa-teams-bot/lib/connector"
)

// Config is read from the BOT.* settings
type Config struct {
	ClientID      string
	ClientSecret  string
	TenantID      string
	IssuerBaseURL string
	Audience      string

	TokenTimeout    time.Duration
	DeliveryTimeout time.Duration
	TaskTimeout     time.Duration
	ShutdownTimeout time.Duration
	SessionTTL      time.Duration

	VerifyInbound       bool
	InboundIssuer       string
	InboundKeysURL      string
	AllowedServiceHosts []string

	RecordDeliveries      bool
	DeliveryRetention     time.Duration
	AdminAPIKey           string
	ConversationRateLimit int
}

func duration(key string, fallback time.Duration) time.Duration {
	d, err := settings.Get(key, fallback.String()).Duration()
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// retention is like duration but keeps an explicit zero, which disables pruning
func retention(key string, fallback time.Duration) time.Duration {
	d, err := settings.Get(key, fallback.String()).Duration()
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

// DefaultAllowedServiceHosts are the connector hosts replies may be posted to.
var DefaultAllowedServiceHosts = []string{"smba.trafficmanager.net", "*.botframework.com", "*.botframework.azure.us"}

func hostList(key string, fallback []string) []string {
	var hosts []string
	for _, host := range strings.Split(settings.Get(key).String(), ",") {
		if host = strings.TrimSpace(host); host != "" {
			hosts = append(hosts, host)
		}
	}
	if len(hosts) == 0 {
		return fallback
	}
	return hosts
}

// LoadConfig reads the bot configuration
func LoadConfig() Config {
	return Config{
		ClientID:              settings.Get("BOT.CLIENT_ID").String(),
		ClientSecret:          settings.Get("BOT.CLIENT_SECRET").String(),
		TenantID:              settings.Get("BOT.TENANT_ID").String(),
		IssuerBaseURL:         settings.Get("BOT.ISSUER_BASE_URL", botauth.DefaultIssuerBaseURL).String(),
		Audience:              settings.Get("BOT.AUDIENCE", botauth.DefaultAudience).String(),
		TokenTimeout:          duration("BOT.TOKEN_TIMEOUT", botauth.DefaultTimeout),
		DeliveryTimeout:       duration("BOT.DELIVERY_TIMEOUT", connector.DefaultTimeout),
		TaskTimeout:           duration("BOT.TASK_TIMEOUT", 30*time.Second),
		ShutdownTimeout:       duration("BOT.SHUTDOWN_TIMEOUT", 15*time.Second),
		SessionTTL:            duration("BOT.SESSION_TTL", 24*time.Hour),
		VerifyInbound:         settings.Get("BOT.VERIFY_INBOUND", true).Bool(),
		InboundIssuer:         settings.Get("BOT.INBOUND_ISSUER", botauth.DefaultInboundIssuer).String(),
		InboundKeysURL:        settings.Get("BOT.INBOUND_KEYS_URL", botauth.DefaultInboundKeysURL).String(),
		AllowedServiceHosts:   hostList("BOT.ALLOWED_SERVICE_HOSTS", DefaultAllowedServiceHosts),
		RecordDeliveries:      settings.Get("BOT.RECORD_DELIVERIES", true).Bool(),
		DeliveryRetention:     retention("BOT.DELIVERY_RETENTION", 7*24*time.Hour),
		AdminAPIKey:           settings.Get("BOT.ADMIN_API_KEY").String(),
		ConversationRateLimit: settings.Get("BOT.CONVERSATION_RATE_LIMIT", 30).Int(),
	}
}
