package botauth

import (
	"fmt"
)

// ConfigurationError reports a missing credential or an unresolved tenant.
// It is never worth retrying.
type ConfigurationError struct {
	Field string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("bot credentials: %s is not configured", e.Field)
}

// FailureKind classifies why a token could not be obtained.
type FailureKind string

const (
	// KindTransport means the issuer could not be reached or timed out.
	KindTransport FailureKind = "transport"
	// KindIssuerRejected means the issuer answered with a non-2xx status.
	KindIssuerRejected FailureKind = "issuer_rejected"
	// KindMissingToken means the issuer answered 2xx without an access_token.
	KindMissingToken FailureKind = "missing_access_token"
)

// TokenAcquisitionError is returned when the client-credentials exchange
// fails. StatusCode and Body are set whenever the issuer responded.
type TokenAcquisitionError struct {
	Kind       FailureKind
	TenantID   string
	StatusCode int
	Body       string
	Err        error
}

func (e *TokenAcquisitionError) Error() string {
	switch e.Kind {
	case KindIssuerRejected:
		return fmt.Sprintf("token exchange for tenant %s rejected with status %d: %s", e.TenantID, e.StatusCode, e.Body)
	case KindMissingToken:
		return fmt.Sprintf("token exchange for tenant %s returned no access_token", e.TenantID)
	default:
		return fmt.Sprintf("token exchange for tenant %s failed: %v", e.TenantID, e.Err)
	}
}

func (e *TokenAcquisitionError) Unwrap() error {
	return e.Err
}
