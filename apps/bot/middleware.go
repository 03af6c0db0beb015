package bot

import (
	"crypto/subtle"
	"strings"

	"github.com/getevo/evo/v2"
	"github.com/iesreza/homa-teams-bot/lib/response"
)

// APIKeyMiddleware guards the admin endpoints.
// Expected header format: Authorization: APIKEY <key>
func APIKeyMiddleware(req *evo.Request) error {
	if config.AdminAPIKey == "" {
		req.WriteResponse(response.NotConfigured("BOT.ADMIN_API_KEY is not configured"))
		return nil
	}

	providedKey, ok := strings.CutPrefix(req.Header("Authorization"), "APIKEY ")
	if !ok || subtle.ConstantTimeCompare([]byte(providedKey), []byte(config.AdminAPIKey)) != 1 {
		req.WriteResponse(response.Error(response.ErrUnauthorized))
		return nil
	}

	return req.Next()
}
