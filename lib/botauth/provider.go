// Package botauth obtains and caches the bearer tokens the bot presents to
// the messaging platform's connector API.
package botauth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/getevo/evo/v2/lib/log"
	"github.com/go-playground/validator/v10"
	"github.com/iesreza/homa-teams-bot/lib/textutil"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultIssuerBaseURL is the identity platform that issues connector tokens.
	DefaultIssuerBaseURL = "https://login.microsoftonline.com"
	// DefaultAudience is the connector API the tokens are requested for.
	DefaultAudience = "https://api.botframework.com"
	// DefaultTimeout bounds a single token exchange.
	DefaultTimeout = 10 * time.Second
)

// MaxBodySnippet caps how much of an issuer response is kept on errors.
const MaxBodySnippet = 2000

// Config holds the bot's app registration.
type Config struct {
	ClientID      string
	ClientSecret  string
	IssuerBaseURL string
	Audience      string
	HTTPClient    *http.Client
}

type tokenRequest struct {
	ClientID     string `json:"client_id" validate:"required"`
	ClientSecret string `json:"client_secret" validate:"required"`
	TenantID     string `json:"tenant_id" validate:"required"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Provider exchanges the bot's client credentials for tenant-scoped tokens
// and keeps them in a Cache.
type Provider struct {
	config     Config
	cache      *Cache
	httpClient *http.Client
	flights    singleflight.Group
}

// NewProvider creates a Provider backed by cache. Empty issuer and audience
// fall back to the defaults.
func NewProvider(config Config, cache *Cache) *Provider {
	if config.IssuerBaseURL == "" {
		config.IssuerBaseURL = DefaultIssuerBaseURL
	}
	config.IssuerBaseURL = strings.TrimRight(config.IssuerBaseURL, "/")
	if config.Audience == "" {
		config.Audience = DefaultAudience
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	if cache == nil {
		cache = NewCache()
	}
	return &Provider{
		config:     config,
		cache:      cache,
		httpClient: httpClient,
	}
}

// Cache returns the cache the provider fills.
func (p *Provider) Cache() *Cache {
	return p.cache
}

// Audience returns the audience tokens are requested for.
func (p *Provider) Audience() string {
	return p.config.Audience
}

// TokenURL returns the issuance endpoint for tenantID.
func (p *Provider) TokenURL(tenantID string) string {
	return fmt.Sprintf("%s/%s/oauth2/v2.0/token", p.config.IssuerBaseURL, tenantID)
}

// Token returns a valid bearer token for tenantID, performing a
// client-credentials exchange only when the cache has nothing usable.
// Concurrent misses for the same tenant share one exchange.
func (p *Provider) Token(ctx context.Context, tenantID string) (string, error) {
	if err := p.check(tenantID); err != nil {
		return "", err
	}

	if cached, ok := p.cache.Get(tenantID); ok {
		return cached.Token, nil
	}

	// The exchange outlives a cancelled caller so the others waiting on it
	// still get a token; the HTTP client timeout bounds it.
	flightCtx := context.WithoutCancel(ctx)
	value, err, shared := p.flights.Do(tenantID, func() (any, error) {
		if cached, ok := p.cache.Get(tenantID); ok {
			return cached.Token, nil
		}
		return p.fetch(flightCtx, tenantID)
	})
	if err != nil {
		return "", err
	}
	if shared {
		log.Debug("Shared in-flight token exchange for tenant %s", tenantID)
	}
	return value.(string), nil
}

func (p *Provider) check(tenantID string) error {
	err := validate.Struct(tokenRequest{
		ClientID:     p.config.ClientID,
		ClientSecret: p.config.ClientSecret,
		TenantID:     tenantID,
	})
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return &ConfigurationError{Field: fieldErrs[0].Field()}
	}
	return fmt.Errorf("validating bot credentials: %w", err)
}

func (p *Provider) fetch(ctx context.Context, tenantID string) (string, error) {
	exchange := clientcredentials.Config{
		ClientID:     p.config.ClientID,
		ClientSecret: p.config.ClientSecret,
		TokenURL:     p.TokenURL(tenantID),
		Scopes:       []string{p.config.Audience + "/.default"},
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	recorder := &responseRecorder{base: p.httpClient.Transport}
	httpClient := *p.httpClient
	httpClient.Transport = recorder

	ctx = context.WithValue(ctx, oauth2.HTTPClient, &httpClient)
	token, err := exchange.Token(ctx)
	if err != nil {
		return "", classifyExchangeError(tenantID, err, recorder)
	}

	expiresAt := token.Expiry
	claims, err := DecodeClaims(token.AccessToken)
	if err != nil {
		log.Warning("Access token for tenant %s is not a readable JWT, using expires_in: %v", tenantID, err)
	} else {
		if mismatches := claims.Mismatches(p.config.Audience, tenantID, p.config.ClientID); len(mismatches) > 0 {
			log.Warning("Access token for tenant %s does not match the request, the connector will likely reject it: %s",
				tenantID, strings.Join(mismatches, "; "))
		}
		if exp, ok := claims.Expiry(); ok {
			expiresAt = exp
		}
	}

	p.cache.Put(tenantID, token.AccessToken, expiresAt)
	log.Info("Obtained connector token for tenant %s (expires %s)", tenantID, expiresAt.UTC().Format(time.RFC3339))

	return token.AccessToken, nil
}

// classifyExchangeError maps an x/oauth2 failure to a TokenAcquisitionError.
// A 2xx seen by the recorder means the issuer answered without a usable token.
func classifyExchangeError(tenantID string, err error, recorder *responseRecorder) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		return &TokenAcquisitionError{
			Kind:       KindIssuerRejected,
			TenantID:   tenantID,
			StatusCode: status,
			Body:       textutil.Truncate(string(retrieveErr.Body), MaxBodySnippet),
			Err:        err,
		}
	}
	if recorder.status >= 200 && recorder.status < 300 {
		return &TokenAcquisitionError{
			Kind:       KindMissingToken,
			TenantID:   tenantID,
			StatusCode: recorder.status,
			Body:       recorder.body,
			Err:        err,
		}
	}
	return &TokenAcquisitionError{
		Kind:     KindTransport,
		TenantID: tenantID,
		Err:      err,
	}
}

// responseRecorder keeps the status and a body snippet of the last issuer
// response. x/oauth2 drops both when a 2xx carries no access_token.
type responseRecorder struct {
	base   http.RoundTripper
	status int
	body   string
}

func (r *responseRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	base := r.base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("reading issuer response: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	r.status = resp.StatusCode
	r.body = textutil.Truncate(string(body), MaxBodySnippet)
	return resp, nil
}
