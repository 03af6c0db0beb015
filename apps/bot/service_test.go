package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/iesreza/homa-teams-bot/apps/models"
	"github.com/iesreza/homa-teams-bot/lib/activity"
	"github.com/iesreza/homa-teams-bot/lib/botauth"
	"github.com/iesreza/homa-teams-bot/lib/connector"
	"github.com/iesreza/homa-teams-bot/lib/survey"
)

const (
	testClientID = "bot-app-id"
	testTenant   = "tenant-a"
)

type fakePlatform struct {
	t           *testing.T
	issuer      *httptest.Server
	connector   *httptest.Server
	issuerCalls atomic.Int32

	mu        sync.Mutex
	status    int
	challenge string
	posts     []post
}

type post struct {
	path          string
	authorization string
	body          map[string]any
}

func newFakePlatform(t *testing.T) *fakePlatform {
	p := &fakePlatform{t: t, status: http.StatusOK}
	p.issuer = httptest.NewServer(http.HandlerFunc(p.serveToken))
	p.connector = httptest.NewServer(http.HandlerFunc(p.serveActivity))
	t.Cleanup(p.issuer.Close)
	t.Cleanup(p.connector.Close)
	return p
}

func (p *fakePlatform) serveToken(w http.ResponseWriter, r *http.Request) {
	p.issuerCalls.Add(1)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"aud":   botauth.DefaultAudience,
		"tid":   testTenant,
		"appid": testClientID,
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("test"))
	if err != nil {
		p.t.Errorf("signing token: %v", err)
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"token_type":"Bearer","expires_in":3599,"access_token":%q}`, token)
}

func (p *fakePlatform) serveActivity(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		p.t.Errorf("connector received invalid JSON: %v", err)
	}

	p.mu.Lock()
	p.posts = append(p.posts, post{path: r.URL.EscapedPath(), authorization: r.Header.Get("Authorization"), body: body})
	status, challenge := p.status, p.challenge
	p.mu.Unlock()

	if challenge != "" {
		w.Header().Set("WWW-Authenticate", challenge)
	}
	w.WriteHeader(status)
	io.WriteString(w, `{"id":"1"}`)
}

func (p *fakePlatform) respond(status int, challenge string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = status
	p.challenge = challenge
}

func (p *fakePlatform) received() []post {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]post(nil), p.posts...)
}

type recorded struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (r *recorded) Record(o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
}

func (r *recorded) last(t *testing.T) Outcome {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.outcomes) == 0 {
		t.Fatal("no outcome recorded")
	}
	return r.outcomes[len(r.outcomes)-1]
}

type denyAll struct{}

func (denyAll) Allow(context.Context, string) bool { return false }

type harness struct {
	platform *fakePlatform
	sessions *survey.MemoryStore
	recorder *recorded
	service  *Service
}

func newHarness(t *testing.T, opts ...ServiceOption) *harness {
	platform := newFakePlatform(t)
	provider := botauth.NewProvider(botauth.Config{
		ClientID:      testClientID,
		ClientSecret:  "secret",
		IssuerBaseURL: platform.issuer.URL,
	}, botauth.NewCache())
	h := &harness{
		platform: platform,
		sessions: survey.NewMemoryStore(),
		recorder: &recorded{},
	}
	opts = append([]ServiceOption{WithRecorder(h.recorder)}, opts...)
	client := connector.NewClient(provider, connector.WithAllowedHosts(platform.connector.Listener.Addr().String()))
	h.service = NewService(provider, client, h.sessions, opts...)
	return h
}

func (h *harness) activity(t *testing.T, body map[string]any) activity.Activity {
	t.Helper()
	if _, ok := body["serviceUrl"]; !ok {
		body["serviceUrl"] = h.platform.connector.URL + "/"
	}
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal activity: %v", err)
	}
	act, err := activity.Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return act
}

func message(text string, value map[string]any) map[string]any {
	body := map[string]any{
		"type":         "message",
		"id":           "act-1",
		"text":         text,
		"from":         map[string]any{"id": "29:user"},
		"recipient":    map[string]any{"id": "28:bot"},
		"conversation": map[string]any{"id": "19:conv/1", "tenantId": testTenant},
	}
	if value != nil {
		body["value"] = value
	}
	return body
}

func answerValue(question int, value string) map[string]any {
	return map[string]any{"action": activity.AnswerAction, "question": question, "answer": value}
}

func TestServiceWalksThroughSurvey(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	steps := []struct {
		body  map[string]any
		state survey.State
	}{
		{message("hello", nil), survey.AwaitingQ1},
		{message("", answerValue(1, "Satisfied")), survey.AwaitingQ2},
		{message("", answerValue(2, "Daily")), survey.AwaitingQ3},
		{message("", answerValue(3, "Yes")), survey.Completed},
	}
	for i, step := range steps {
		if err := h.service.Handle(ctx, fmt.Sprintf("task-%d", i), h.activity(t, step.body)); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		session, _ := h.sessions.Load(ctx, "19:conv/1")
		if session.State != step.state {
			t.Fatalf("step %d: state %s, want %s", i, session.State, step.state)
		}
	}

	session, _ := h.sessions.Load(ctx, "19:conv/1")
	if session.Answers != [survey.QuestionCount]string{"Satisfied", "Daily", "Yes"} {
		t.Errorf("Answers = %v", session.Answers)
	}

	posts := h.platform.received()
	if len(posts) != len(steps) {
		t.Fatalf("connector received %d posts, want %d", len(posts), len(steps))
	}
	if posts[0].path != "/v3/conversations/19:conv%2F1/activities" {
		t.Errorf("posted to %q", posts[0].path)
	}
	if posts[0].body["type"] != "message" {
		t.Errorf("reply body = %v", posts[0].body)
	}
	if calls := h.platform.issuerCalls.Load(); calls != 1 {
		t.Errorf("issuer called %d times, want 1", calls)
	}

	last := h.recorder.last(t)
	if last.Err != nil || !last.Result.Success || last.Kind != models.DeliveryKindReply {
		t.Errorf("last outcome = %+v", last)
	}
	if last.SurveyState != survey.Completed || last.TenantID != testTenant {
		t.Errorf("last outcome = %+v", last)
	}
}

func TestServiceKeepsSessionWhenDeliveryFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	challenge := `Bearer error="invalid_token", error_description="The audience is invalid"`
	h.platform.respond(http.StatusUnauthorized, challenge)

	err := h.service.Handle(ctx, "task-1", h.activity(t, message("hello", nil)))
	if err == nil {
		t.Fatal("Handle succeeded although the connector rejected the reply")
	}

	session, _ := h.sessions.Load(ctx, "19:conv/1")
	if session.State != survey.NotStarted {
		t.Errorf("state = %s, want NotStarted after a failed delivery", session.State)
	}

	outcome := h.recorder.last(t)
	if outcome.ErrorKind != "delivery_status" {
		t.Errorf("ErrorKind = %q", outcome.ErrorKind)
	}
	if outcome.Result.StatusCode != http.StatusUnauthorized || outcome.Result.AuthChallenge != challenge {
		t.Errorf("result = %+v", outcome.Result)
	}
	if outcome.Claims["tid"] != testTenant {
		t.Errorf("claims = %v", outcome.Claims)
	}
}

func TestServiceRequiresTenant(t *testing.T) {
	h := newHarness(t)
	body := message("hello", nil)
	body["conversation"] = map[string]any{"id": "c-no-tenant"}

	err := h.service.Handle(context.Background(), "task-1", h.activity(t, body))
	if err == nil {
		t.Fatal("Handle succeeded without a tenant")
	}
	if kind := h.recorder.last(t).ErrorKind; kind != "configuration" {
		t.Errorf("ErrorKind = %q, want configuration", kind)
	}
	if h.platform.issuerCalls.Load() != 0 || len(h.platform.received()) != 0 {
		t.Error("network calls were made without a tenant")
	}
}

func TestServiceFallbackTenant(t *testing.T) {
	h := newHarness(t, WithFallbackTenant("tenant-from-config"))
	body := message("hello", nil)
	body["conversation"] = map[string]any{"id": "c1"}

	if err := h.service.Handle(context.Background(), "task-1", h.activity(t, body)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if tenant := h.recorder.last(t).TenantID; tenant != "tenant-from-config" {
		t.Errorf("TenantID = %q", tenant)
	}
}

func TestServiceWelcomesOnInstall(t *testing.T) {
	h := newHarness(t)
	update := map[string]any{
		"type":         "conversationUpdate",
		"recipient":    map[string]any{"id": "28:bot"},
		"conversation": map[string]any{"id": "c1", "tenantId": testTenant},
		"membersAdded": []any{map[string]any{"id": "28:bot"}},
	}
	if err := h.service.Handle(context.Background(), "task-1", h.activity(t, update)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if kind := h.recorder.last(t).Kind; kind != models.DeliveryKindWelcome {
		t.Errorf("Kind = %q", kind)
	}
	if h.sessions.Len() != 0 {
		t.Error("welcome created a survey session")
	}
}

func TestServiceIgnoresOtherActivities(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	userJoined := map[string]any{
		"type":         "conversationUpdate",
		"recipient":    map[string]any{"id": "28:bot"},
		"conversation": map[string]any{"id": "c1", "tenantId": testTenant},
		"membersAdded": []any{map[string]any{"id": "29:user"}},
	}
	typing := map[string]any{"type": "typing"}
	invoke := map[string]any{
		"type":         "invoke",
		"name":         "composeExtension/query",
		"conversation": map[string]any{"id": "c1", "tenantId": testTenant},
	}
	for _, body := range []map[string]any{userJoined, typing, invoke} {
		if err := h.service.Handle(ctx, "task", h.activity(t, body)); err != nil {
			t.Errorf("Handle(%v): %v", body["type"], err)
		}
	}
	if len(h.platform.received()) != 0 {
		t.Error("ignored activities produced replies")
	}
}

func TestServiceRateLimited(t *testing.T) {
	h := newHarness(t, WithLimiter(denyAll{}))
	if err := h.service.Handle(context.Background(), "task-1", h.activity(t, message("hello", nil))); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(h.platform.received()) != 0 {
		t.Error("rate limited activity produced a reply")
	}
}

func TestServiceNeverSendsTokenToUntrustedServiceURL(t *testing.T) {
	h := newHarness(t)
	var leaked atomic.Int32
	attacker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		leaked.Add(1)
		t.Errorf("untrusted host received %s %s with Authorization %q", r.Method, r.URL.Path, r.Header.Get("Authorization"))
	}))
	defer attacker.Close()

	body := message("hello", nil)
	body["serviceUrl"] = attacker.URL + "/"
	err := h.service.Handle(context.Background(), "task-1", h.activity(t, body))
	if !errors.Is(err, connector.ErrUntrustedServiceURL) {
		t.Fatalf("Handle error = %v, want ErrUntrustedServiceURL", err)
	}

	if leaked.Load() != 0 {
		t.Error("reply was posted to an untrusted service url")
	}
	if h.platform.issuerCalls.Load() != 0 {
		t.Error("token was requested for an untrusted service url")
	}
	if kind := h.recorder.last(t).ErrorKind; kind != "untrusted_service_url" {
		t.Errorf("ErrorKind = %q, want untrusted_service_url", kind)
	}
	session, _ := h.sessions.Load(context.Background(), "19:conv/1")
	if session.State != survey.NotStarted {
		t.Errorf("state = %s, want NotStarted", session.State)
	}
}
