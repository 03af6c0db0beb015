package botauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
)

const (
	// DefaultInboundIssuer signs the tokens the platform sends with activities.
	DefaultInboundIssuer = "https://api.botframework.com"
	// DefaultInboundKeysURL publishes the keys those tokens are signed with.
	DefaultInboundKeysURL = "https://login.botframework.com/v1/.well-known/keys"
)

// ErrUnauthenticated is returned when an inbound activity does not carry a
// valid platform token.
var ErrUnauthenticated = errors.New("inbound activity is not authenticated")

// InboundConfig describes how inbound activity tokens are checked.
type InboundConfig struct {
	// AppID is the bot's client id, the expected audience.
	AppID      string
	Issuer     string
	KeysURL    string
	HTTPClient *http.Client
	// Now replaces time.Now, used by tests.
	Now func() time.Time
}

// InboundVerifier checks the bearer token the platform attaches to every
// activity it posts to the bot.
type InboundVerifier struct {
	appID    string
	verifier *oidc.IDTokenVerifier
}

type inboundClaims struct {
	ServiceURL string `json:"serviceurl"`
}

// NewInboundVerifier creates a verifier. Signing keys are fetched on first
// use and refreshed when a token names an unknown key.
func NewInboundVerifier(config InboundConfig) *InboundVerifier {
	if config.Issuer == "" {
		config.Issuer = DefaultInboundIssuer
	}
	if config.KeysURL == "" {
		config.KeysURL = DefaultInboundKeysURL
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}

	keys := oidc.NewRemoteKeySet(oidc.ClientContext(context.Background(), httpClient), config.KeysURL)
	return &InboundVerifier{
		appID: config.AppID,
		verifier: oidc.NewVerifier(config.Issuer, keys, &oidc.Config{
			ClientID: config.AppID,
			Now:      config.Now,
		}),
	}
}

// Verify checks the Authorization header of an inbound activity: signature,
// issuer, audience and expiry. When the token names a service URL it must be
// the one the activity asks replies to go to.
func (v *InboundVerifier) Verify(ctx context.Context, authorization, serviceURL string) error {
	if v.appID == "" {
		return &ConfigurationError{Field: "client_id"}
	}

	raw, ok := strings.CutPrefix(authorization, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%w: missing bearer token", ErrUnauthenticated)
	}

	token, err := v.verifier.Verify(ctx, strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	var claims inboundClaims
	if err := token.Claims(&claims); err != nil {
		return fmt.Errorf("%w: reading claims: %v", ErrUnauthenticated, err)
	}
	if claims.ServiceURL != "" && serviceURL != "" && !sameServiceURL(claims.ServiceURL, serviceURL) {
		return fmt.Errorf("%w: token was issued for %s, activity names %s", ErrUnauthenticated, claims.ServiceURL, serviceURL)
	}
	return nil
}

func sameServiceURL(a, b string) bool {
	return strings.EqualFold(strings.TrimRight(a, "/"), strings.TrimRight(b, "/"))
}
