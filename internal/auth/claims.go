package auth

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"
)

// Claims decodes a JWT's payload without verifying the signature. Used only
// for display (whoami) and as an expiry fallback — never for trust decisions.
// Returns nil for anything that doesn't look like a JWT.
func Claims(token string) map[string]any {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil
	}

	var claims map[string]any
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil
	}

	return claims
}

// claimExpiry extracts the exp claim as an absolute time. Zero if absent.
func claimExpiry(token string) time.Time {
	claims := Claims(token)
	if claims == nil {
		return time.Time{}
	}

	exp, ok := claims["exp"].(float64)
	if !ok {
		return time.Time{}
	}

	return time.Unix(int64(exp), 0)
}
