package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/iesreza/homa-teams-bot/apps/nats"
	"github.com/iesreza/homa-teams-bot/lib/botauth"
	"github.com/iesreza/homa-teams-bot/lib/connector"
	"github.com/iesreza/homa-teams-bot/lib/survey"
	"github.com/iesreza/homa-teams-bot/lib/textutil"
)

func TestErrorKind(t *testing.T) {
	cases := map[string]error{
		"":                      nil,
		"configuration":         &botauth.ConfigurationError{Field: "client_id"},
		"token_issuer_rejected": fmt.Errorf("wrapped: %w", &botauth.TokenAcquisitionError{Kind: botauth.KindIssuerRejected}),
		"delivery_no_response":  &connector.DeliveryError{Kind: connector.KindNoResponse},
		"delivery_status":       &connector.DeliveryError{Kind: connector.KindStatus, StatusCode: 403},
		"invalid_request":       fmt.Errorf("%w: service url is empty", connector.ErrInvalidRequest),
		"untrusted_service_url": fmt.Errorf("%w: https://attacker.example", connector.ErrUntrustedServiceURL),
		"timeout":               context.DeadlineExceeded,
		"unknown":               errors.New("disk full"),
	}
	for want, err := range cases {
		if got := ErrorKind(err); got != want {
			t.Errorf("ErrorKind(%v) = %q, want %q", err, got, want)
		}
	}
}

func TestNewDeliveryRecord(t *testing.T) {
	failure := &connector.DeliveryError{Kind: connector.KindStatus, StatusCode: http.StatusUnauthorized}
	outcome := Outcome{
		TaskID:         "task-1",
		Kind:           "reply",
		TenantID:       "tenant-a",
		ConversationID: "c1",
		SurveyState:    survey.AwaitingQ2,
		Payload:        []byte(`{"type":"message"}`),
		Result: connector.Result{
			URL:           "https://service.example/v3/conversations/c1/activities",
			StatusCode:    http.StatusUnauthorized,
			AuthChallenge: `Bearer error="invalid_token"`,
			Body:          textutil.Truncate(strings.Repeat("x", 1999)+"é"+strings.Repeat("y", 100), connector.MaxBodySnippet),
			Duration:      1500 * time.Millisecond,
		},
		Err:       failure,
		ErrorKind: ErrorKind(failure),
		Claims:    map[string]any{"tid": "tenant-a"},
		At:        time.Now(),
	}

	record := NewDeliveryRecord(outcome)
	if record.Success {
		t.Error("failed delivery recorded as success")
	}
	if record.SurveyState != "awaiting_q2" || record.StatusCode != 401 || record.DurationMs != 1500 {
		t.Errorf("record = %+v", record)
	}
	if record.AuthChallenge != `Bearer error="invalid_token"` {
		t.Errorf("AuthChallenge = %q", record.AuthChallenge)
	}
	if record.Response != strings.Repeat("x", 1999)+textutil.TruncatedMarker {
		t.Errorf("response was cut again: length %d, %d markers", len(record.Response), strings.Count(record.Response, textutil.TruncatedMarker))
	}
	if string(record.Claims) != `{"tid":"tenant-a"}` {
		t.Errorf("Claims = %s", record.Claims)
	}
	if string(record.Payload) != `{"type":"message"}` {
		t.Errorf("Payload = %s", record.Payload)
	}

	event := NewDeliveryEvent(outcome)
	if event.Subject() != nats.SubjectDeliveryFailed || event.ErrorKind != "delivery_status" || event.Error == "" {
		t.Errorf("event = %+v", event)
	}
}

func TestNewDeliveryRecordSuccess(t *testing.T) {
	record := NewDeliveryRecord(Outcome{
		Kind:   "welcome",
		Result: connector.Result{Success: true, StatusCode: 200},
	})
	if !record.Success || record.Error != "" || record.Claims != nil {
		t.Errorf("record = %+v", record)
	}
	if NewDeliveryEvent(Outcome{Result: connector.Result{Success: true}}).Subject() != nats.SubjectDeliverySucceeded {
		t.Error("successful delivery mapped to the failed subject")
	}
}

func TestNewDeliveryRecordKeepsValidUTF8(t *testing.T) {
	long := strings.Repeat("a", maxErrorLength-1) + "é"
	record := NewDeliveryRecord(Outcome{
		Kind:   "reply",
		Result: connector.Result{Body: "bad \xff byte"},
		Err:    errors.New(long),
	})

	if !utf8.ValidString(record.Response) || !utf8.ValidString(record.Error) {
		t.Fatal("record holds invalid UTF-8")
	}
	if record.Error != strings.Repeat("a", maxErrorLength-1)+textutil.TruncatedMarker {
		t.Errorf("Error cut to %d bytes", len(record.Error))
	}
	if event := NewDeliveryEvent(Outcome{Err: errors.New(long)}); !utf8.ValidString(event.Error) {
		t.Error("event holds invalid UTF-8")
	}
}
