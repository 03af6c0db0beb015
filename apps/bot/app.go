package bot

import (
	"net/http"
	"strings"
	"time"

	"github.com/getevo/evo/v2"
	"github.com/getevo/evo/v2/lib/log"
	"github.com/iesreza/homa-teams-bot/apps/redis"
	"github.com/iesreza/homa-teams-bot/lib/botauth"
	"github.com/iesreza/homa-teams-bot/lib/connector"
	"github.com/iesreza/homa-teams-bot/lib/survey"
)

var (
	config  Config
	service *Service
	tracker *Tracker
	inbound *botauth.InboundVerifier
)

// App receives activities from the messaging platform and answers them
type App struct{}

func (a App) Register() error {
	config = LoadConfig()
	if config.ClientID == "" || config.ClientSecret == "" {
		log.Warning("BOT.CLIENT_ID or BOT.CLIENT_SECRET is not set, replies will not be delivered")
	}
	tracker = NewTracker(config.TaskTimeout)
	return nil
}

func (a App) Router() error {
	var controller Controller
	evo.Post("/api/messages", controller.Messages)

	evo.Use("/api/bot", APIKeyMiddleware)
	evo.Get("/api/bot/status", controller.Status)
	evo.Get("/api/bot/deliveries", controller.ListDeliveries)
	evo.Get("/api/bot/deliveries/:id", controller.GetDelivery)

	evo.Use("/api/restify", APIKeyMiddleware)
	return nil
}

// WhenReady wires the service once Redis and NATS are connected
func (a App) WhenReady() error {
	provider := botauth.NewProvider(botauth.Config{
		ClientID:      config.ClientID,
		ClientSecret:  config.ClientSecret,
		IssuerBaseURL: config.IssuerBaseURL,
		Audience:      config.Audience,
		HTTPClient:    &http.Client{Timeout: config.TokenTimeout},
	}, botauth.NewCache())
	client := connector.NewClient(provider,
		connector.WithHTTPClient(&http.Client{Timeout: config.DeliveryTimeout}),
		connector.WithAllowedHosts(config.AllowedServiceHosts...),
	)

	if config.VerifyInbound {
		inbound = botauth.NewInboundVerifier(botauth.InboundConfig{
			AppID:      config.ClientID,
			Issuer:     config.InboundIssuer,
			KeysURL:    config.InboundKeysURL,
			HTTPClient: &http.Client{Timeout: config.TokenTimeout},
		})
	} else {
		log.Warning("BOT.VERIFY_INBOUND is off, activities are accepted without a platform token")
	}

	var sessions survey.Store = survey.NewMemoryStore()
	opts := []ServiceOption{
		WithFallbackTenant(config.TenantID),
		WithRecorder(deliveryLog{persist: config.RecordDeliveries}),
	}
	if redis.IsAvailable() {
		sessions = redis.NewSessionStore(redis.Client, config.SessionTTL)
		opts = append(opts, WithLimiter(redis.NewConversationLimiter(redis.Client, redis.ConversationLimit{
			MaxActivities: config.ConversationRateLimit,
			Window:        time.Minute,
		})))
	}

	service = NewService(provider, client, sessions, opts...)
	if config.RecordDeliveries && config.DeliveryRetention > 0 {
		go runRetention(tracker.Context(), config.DeliveryRetention)
	}
	log.Info("Bot ready (issuer %s, audience %s, service hosts %s)",
		provider.TokenURL("{tenant}"), provider.Audience(), strings.Join(config.AllowedServiceHosts, ","))
	return nil
}

func (a App) Name() string {
	return "bot"
}

// Shutdown waits for in-flight replies before the process exits
func (a App) Shutdown() error {
	if tracker == nil {
		return nil
	}
	log.Info("Waiting for %d background tasks...", tracker.InFlight())
	if !tracker.Wait(config.ShutdownTimeout) {
		log.Warning("Shutdown timeout reached with tasks still running")
	}
	return nil
}
