package botauth

import (
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the access token fields checked after an exchange. Both v1
// (appid) and v2 (azp) identity platform tokens are understood.
type Claims struct {
	jwt.RegisteredClaims
	TenantID        string `json:"tid,omitempty"`
	AppID           string `json:"appid,omitempty"`
	AuthorizedParty string `json:"azp,omitempty"`
}

// ApplicationID returns the client the token was issued to.
func (c *Claims) ApplicationID() string {
	if c.AppID != "" {
		return c.AppID
	}
	return c.AuthorizedParty
}

// Expiry returns the exp claim, if present.
func (c *Claims) Expiry() (time.Time, bool) {
	if c.ExpiresAt == nil {
		return time.Time{}, false
	}
	return c.ExpiresAt.Time, true
}

// Mismatches compares the claims with what the bot asked for and returns
// one line per field that differs.
func (c *Claims) Mismatches(audience, tenantID, clientID string) []string {
	var out []string
	if !slices.Contains(c.Audience, audience) {
		out = append(out, fmt.Sprintf("aud=%v, expected %q", []string(c.Audience), audience))
	}
	if c.TenantID != tenantID {
		out = append(out, fmt.Sprintf("tid=%q, expected %q", c.TenantID, tenantID))
	}
	if appID := c.ApplicationID(); appID != clientID {
		out = append(out, fmt.Sprintf("appid=%q, expected %q", appID, clientID))
	}
	return out
}

// Summary is a loggable view of the claims.
func (c *Claims) Summary() map[string]any {
	summary := map[string]any{
		"aud":   []string(c.Audience),
		"iss":   c.Issuer,
		"tid":   c.TenantID,
		"appid": c.ApplicationID(),
	}
	if exp, ok := c.Expiry(); ok {
		summary["exp"] = exp.Unix()
	}
	return summary
}

// Padding is restored before decoding, so both raw and padded base64url
// segments are accepted.
var claimsParser = jwt.NewParser(jwt.WithPaddingAllowed())

// DecodeClaims reads the payload segment of a JWT without verifying its
// signature. The issuer already authenticated us; the claims are only used
// for expiry and diagnostics.
func DecodeClaims(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := claimsParser.ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("decoding access token claims: %w", err)
	}
	return claims, nil
}
