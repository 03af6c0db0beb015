package botauth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testKeyID      = "signing-key-1"
	testServiceURL = "https://smba.trafficmanager.net/emea/"
)

type inboundPlatform struct {
	key    *rsa.PrivateKey
	server *httptest.Server
}

func newInboundPlatform(t *testing.T) *inboundPlatform {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	p := &inboundPlatform{key: key}
	p.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]any{{
				"kty": "RSA",
				"use": "sig",
				"alg": "RS256",
				"kid": testKeyID,
				"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
			}},
		})
	}))
	t.Cleanup(p.server.Close)
	return p
}

func (p *inboundPlatform) sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID
	signed, err := token.SignedString(p.key)
	if err != nil {
		t.Fatalf("signing inbound token: %v", err)
	}
	return signed
}

func (p *inboundPlatform) verifier() *InboundVerifier {
	return NewInboundVerifier(InboundConfig{
		AppID:   testClientID,
		KeysURL: p.server.URL,
	})
}

func inboundClaimsFor(audience string) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":        DefaultInboundIssuer,
		"aud":        audience,
		"serviceurl": testServiceURL,
		"nbf":        now.Add(-time.Minute).Unix(),
		"exp":        now.Add(time.Hour).Unix(),
	}
}

func TestInboundVerifierAcceptsPlatformToken(t *testing.T) {
	platform := newInboundPlatform(t)
	token := platform.sign(t, inboundClaimsFor(testClientID))

	if err := platform.verifier().Verify(context.Background(), "Bearer "+token, "https://smba.trafficmanager.net/emea"); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestInboundVerifierRejects(t *testing.T) {
	platform := newInboundPlatform(t)
	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	forged := jwt.NewWithClaims(jwt.SigningMethodRS256, inboundClaimsFor(testClientID))
	forged.Header["kid"] = testKeyID
	forgedToken, err := forged.SignedString(otherKey)
	if err != nil {
		t.Fatalf("signing forged token: %v", err)
	}

	wrongIssuer := inboundClaimsFor(testClientID)
	wrongIssuer["iss"] = "https://attacker.example"
	expired := inboundClaimsFor(testClientID)
	expired["exp"] = time.Now().Add(-time.Hour).Unix()

	cases := map[string]struct {
		authorization string
		serviceURL    string
	}{
		"no header":           {"", testServiceURL},
		"not bearer":          {"Basic dXNlcjpwYXNz", testServiceURL},
		"forged signature":    {"Bearer " + forgedToken, testServiceURL},
		"other audience":      {"Bearer " + platform.sign(t, inboundClaimsFor("someone-else")), testServiceURL},
		"other issuer":        {"Bearer " + platform.sign(t, wrongIssuer), testServiceURL},
		"expired":             {"Bearer " + platform.sign(t, expired), testServiceURL},
		"service url swapped": {"Bearer " + platform.sign(t, inboundClaimsFor(testClientID)), "https://attacker.example/"},
	}
	verifier := platform.verifier()
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := verifier.Verify(context.Background(), tc.authorization, tc.serviceURL)
			if !errors.Is(err, ErrUnauthenticated) {
				t.Errorf("Verify error = %v, want ErrUnauthenticated", err)
			}
		})
	}
}

func TestInboundVerifierRequiresAppID(t *testing.T) {
	verifier := NewInboundVerifier(InboundConfig{KeysURL: "http://127.0.0.1:1"})

	err := verifier.Verify(context.Background(), "Bearer x.y.z", testServiceURL)
	var configErr *ConfigurationError
	if !errors.As(err, &configErr) || configErr.Field != "client_id" {
		t.Errorf("Verify error = %v, want a client_id ConfigurationError", err)
	}
}
