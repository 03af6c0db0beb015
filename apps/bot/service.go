package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/getevo/evo/v2/lib/log"
	"github.com/iesreza/homa-teams-bot/apps/models"
	"github.com/iesreza/homa-teams-bot/lib/activity"
	"github.com/iesreza/homa-teams-bot/lib/botauth"
	"github.com/iesreza/homa-teams-bot/lib/connector"
	"github.com/iesreza/homa-teams-bot/lib/survey"
)

// Limiter caps activities per conversation
type Limiter interface {
	Allow(ctx context.Context, conversationID string) bool
}

// Recorder receives every delivery outcome
type Recorder interface {
	Record(outcome Outcome)
}

// Outcome describes one delivery attempt
type Outcome struct {
	TaskID         string
	Kind           string
	TenantID       string
	ConversationID string
	ActivityID     string
	SurveyState    survey.State
	Payload        []byte
	Result         connector.Result
	Err            error
	ErrorKind      string
	Claims         map[string]any
	At             time.Time
}

// Service turns inbound activities into survey replies
type Service struct {
	tokens         *botauth.Provider
	connector      *connector.Client
	sessions       survey.Store
	limiter        Limiter
	recorder       Recorder
	fallbackTenant string
	now            func() time.Time
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

func WithLimiter(limiter Limiter) ServiceOption {
	return func(s *Service) { s.limiter = limiter }
}

func WithRecorder(recorder Recorder) ServiceOption {
	return func(s *Service) { s.recorder = recorder }
}

// WithFallbackTenant sets the tenant used when an activity names none
func WithFallbackTenant(tenantID string) ServiceOption {
	return func(s *Service) { s.fallbackTenant = tenantID }
}

func NewService(tokens *botauth.Provider, client *connector.Client, sessions survey.Store, opts ...ServiceOption) *Service {
	s := &Service{
		tokens:    tokens,
		connector: client,
		sessions:  sessions,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle processes one activity to completion
func (s *Service) Handle(ctx context.Context, taskID string, act activity.Activity) error {
	switch a := act.(type) {
	case *activity.Message:
		return s.advance(ctx, taskID, a.Common(), survey.Input{Text: a.Text, Answer: a.Answer})
	case *activity.Invoke:
		if a.Answer == nil {
			log.Debug("Ignoring invoke %q in conversation %s", a.Name, a.Conversation.ID)
			return nil
		}
		return s.advance(ctx, taskID, a.Common(), survey.Input{Answer: a.Answer})
	case *activity.ConversationUpdate:
		if !a.BotAdded {
			return nil
		}
		_, err := s.deliver(ctx, taskID, models.DeliveryKindWelcome, a.Common(), "", survey.WelcomeReply())
		return err
	case *activity.Unsupported:
		log.Debug("Ignoring %s activity", a.Type)
		return nil
	default:
		return fmt.Errorf("unhandled activity %T", act)
	}
}

func (s *Service) advance(ctx context.Context, taskID string, env *activity.Envelope, in survey.Input) error {
	conversationID := env.Conversation.ID
	if s.limiter != nil && !s.limiter.Allow(ctx, conversationID) {
		log.Warning("Conversation %s exceeded its activity limit, dropping activity %s", conversationID, env.ID)
		return nil
	}

	session, err := s.sessions.Load(ctx, conversationID)
	if err != nil {
		return err
	}
	next, reply := survey.Step(session, in, s.now())

	if _, err := s.deliver(ctx, taskID, models.DeliveryKindReply, env, next.State, reply); err != nil {
		// The user never saw the reply, so the session stays where it was.
		return err
	}
	if err := s.sessions.Save(ctx, next); err != nil {
		return err
	}
	log.Debug("Conversation %s moved from %s to %s", conversationID, session.State, next.State)
	return nil
}

func (s *Service) deliver(ctx context.Context, taskID, kind string, env *activity.Envelope, state survey.State, reply survey.Reply) (connector.Result, error) {
	tenantID := env.TenantID(s.fallbackTenant)
	payload, err := json.Marshal(reply)
	if err != nil {
		return connector.Result{}, fmt.Errorf("encoding reply: %w", err)
	}

	result, err := s.connector.Deliver(ctx, tenantID, connector.Request{
		ServiceURL:     env.ServiceURL,
		ConversationID: env.Conversation.ID,
		Payload:        json.RawMessage(payload),
	})

	outcome := Outcome{
		TaskID:         taskID,
		Kind:           kind,
		TenantID:       tenantID,
		ConversationID: env.Conversation.ID,
		ActivityID:     env.ID,
		SurveyState:    state,
		Payload:        payload,
		Result:         result,
		Err:            err,
		At:             s.now(),
	}
	if err != nil {
		outcome.ErrorKind = ErrorKind(err)
		outcome.Claims = s.claims(tenantID)
		logFailure(outcome)
	} else {
		log.Info("Delivered %s to conversation %s (tenant %s) in %s", kind, env.Conversation.ID, tenantID, result.Duration)
	}

	if s.recorder != nil {
		s.recorder.Record(outcome)
	}
	return result, err
}

// claims decodes the cached token of tenantID for failure diagnostics
func (s *Service) claims(tenantID string) map[string]any {
	cached, ok := s.tokens.Cache().Get(tenantID)
	if !ok {
		return nil
	}
	claims, err := botauth.DecodeClaims(cached.Token)
	if err != nil {
		return nil
	}
	return claims.Summary()
}

// ErrorKind names the failure class of a delivery error
func ErrorKind(err error) string {
	var configErr *botauth.ConfigurationError
	var tokenErr *botauth.TokenAcquisitionError
	var deliveryErr *connector.DeliveryError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &configErr):
		return "configuration"
	case errors.As(err, &tokenErr):
		return "token_" + string(tokenErr.Kind)
	case errors.As(err, &deliveryErr):
		return "delivery_" + string(deliveryErr.Kind)
	case errors.Is(err, connector.ErrUntrustedServiceURL):
		return "untrusted_service_url"
	case errors.Is(err, connector.ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	default:
		return "unknown"
	}
}

func logFailure(o Outcome) {
	var configErr *botauth.ConfigurationError
	var tokenErr *botauth.TokenAcquisitionError
	var deliveryErr *connector.DeliveryError

	switch {
	case errors.As(o.Err, &configErr):
		log.Error("Cannot deliver %s to conversation %s: %s is not configured", o.Kind, o.ConversationID, configErr.Field)
	case errors.As(o.Err, &tokenErr):
		log.Error("Cannot deliver %s to conversation %s: token for tenant %s unavailable (kind=%s status=%d body=%s): %v",
			o.Kind, o.ConversationID, o.TenantID, tokenErr.Kind, tokenErr.StatusCode, tokenErr.Body, tokenErr.Err)
	case errors.As(o.Err, &deliveryErr):
		log.Error("Delivery of %s to %s failed (kind=%s status=%d www-authenticate=%q claims=%v): %s",
			o.Kind, deliveryErr.URL, deliveryErr.Kind, deliveryErr.StatusCode, deliveryErr.AuthChallenge, o.Claims, deliveryErr.Body)
	default:
		log.Error("Delivery of %s to conversation %s failed: %v", o.Kind, o.ConversationID, o.Err)
	}
}
