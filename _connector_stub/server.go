// Command server stands in for the identity platform and the connector
// service during local development. Point BOT.ISSUER_BASE_URL at it, set
// BOT.ALLOWED_SERVICE_HOSTS=localhost:9000 and BOT.VERIFY_INBOUND=false, then
// send activities whose serviceUrl is http://localhost:9000.
//
//	go run ./_connector_stub/server.go
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	LogDir   = "_connector_stub/logs"
	audience = "https://api.botframework.com"
)

// ReceivedActivity is what we save to file for every posted reply
type ReceivedActivity struct {
	ReceivedAt     time.Time         `json:"received_at"`
	ConversationID string            `json:"conversation_id"`
	Headers        map[string]string `json:"headers"`
	Activity       json.RawMessage   `json:"activity"`
}

// failStatus makes the connector reject every reply, e.g. STUB_FAIL_STATUS=401
var failStatus, _ = strconv.Atoi(os.Getenv("STUB_FAIL_STATUS"))

func main() {
	if err := os.MkdirAll(LogDir, 0755); err != nil {
		log.Fatal("Failed to create logs directory:", err)
	}

	http.HandleFunc("POST /{tenant}/oauth2/v2.0/token", handleToken)
	http.HandleFunc("POST /v3/conversations/{conversation}/activities", handleActivity)

	port := ":9000"
	log.Printf("Connector stub listening on http://localhost%s (logs in %s)", port, LogDir)
	if failStatus != 0 {
		log.Printf("Rejecting every reply with status %d", failStatus)
	}
	if err := http.ListenAndServe(port, nil); err != nil {
		log.Fatal("Server failed:", err)
	}
}

func handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}
	tenant := r.PathValue("tenant")
	clientID := r.PostForm.Get("client_id")
	if clientID == "" || r.PostForm.Get("client_secret") == "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":"invalid_client","error_description":"client credentials are missing"}`)
		return
	}
	if scope := r.PostForm.Get("scope"); scope != audience+"/.default" {
		log.Printf("Unexpected scope %q from %s", scope, clientID)
	}

	expiresIn := 3600
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"aud":   audience,
		"iss":   "https://sts.windows.net/" + tenant + "/",
		"tid":   tenant,
		"appid": clientID,
		"exp":   time.Now().Add(time.Duration(expiresIn) * time.Second).Unix(),
	}).SignedString([]byte("connector-stub"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	log.Printf("Issued token for tenant %s to %s", tenant, clientID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"token_type":   "Bearer",
		"expires_in":   expiresIn,
		"access_token": token,
	})
}

func handleActivity(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}
	if !json.Valid(body) {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	headers := make(map[string]string)
	for key, values := range r.Header {
		headers[key] = strings.Join(values, ", ")
	}
	received := ReceivedActivity{
		ReceivedAt:     time.Now(),
		ConversationID: r.PathValue("conversation"),
		Headers:        headers,
		Activity:       body,
	}
	if err := saveActivity(received); err != nil {
		log.Printf("Error saving activity: %v", err)
	}

	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_request"`)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if failStatus != 0 {
		if failStatus == http.StatusUnauthorized {
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="The audience is invalid"`)
		}
		w.WriteHeader(failStatus)
		io.WriteString(w, `{"error":{"code":"Rejected","message":"rejected by connector stub"}}`)
		return
	}

	log.Printf("Reply to %s: %s", received.ConversationID, body)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	fmt.Fprintf(w, `{"id":"%d"}`, received.ReceivedAt.UnixMilli())
}

func saveActivity(received ReceivedActivity) error {
	name := fmt.Sprintf("%s_%s.json", received.ReceivedAt.Format("20060102_150405.000"), sanitize(received.ConversationID))
	data, err := json.MarshalIndent(received, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(LogDir, name), data, 0644)
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '#', '?', '*', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, s)
}
