package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/iesreza/homa-teams-bot/lib/survey"
	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "bot:survey:"

// SessionStore keeps survey sessions in Redis with a sliding TTL
type SessionStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewSessionStore creates a store on client. A zero ttl keeps sessions forever.
func NewSessionStore(client redis.UniversalClient, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

// SessionKey returns the Redis key of a conversation's session
func SessionKey(conversationID string) string {
	return sessionKeyPrefix + conversationID
}

func (s *SessionStore) Load(ctx context.Context, conversationID string) (survey.Session, error) {
	raw, err := s.client.Get(ctx, SessionKey(conversationID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return survey.NewSession(conversationID), nil
	}
	if err != nil {
		return survey.Session{}, fmt.Errorf("loading survey session %s: %w", conversationID, err)
	}
	return decodeSession(conversationID, raw)
}

func (s *SessionStore) Save(ctx context.Context, session survey.Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encoding survey session: %w", err)
	}
	if err := s.client.Set(ctx, SessionKey(session.ConversationID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("saving survey session %s: %w", session.ConversationID, err)
	}
	return nil
}

func decodeSession(conversationID string, raw []byte) (survey.Session, error) {
	var session survey.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return survey.Session{}, fmt.Errorf("decoding survey session %s: %w", conversationID, err)
	}
	if session.ConversationID == "" {
		session.ConversationID = conversationID
	}
	if session.State == "" {
		session.State = survey.NotStarted
	}
	return session, nil
}

var _ survey.Store = (*SessionStore)(nil)
