// Package testhelpers provides utilities for testing downtime-engine components.
package testhelpers

import (
	"encoding/base64"
	"fmt"
)

// GenerateTestJWT creates an unsigned (alg: none) token for use when
// signature verification is disabled.
func GenerateTestJWT(sub, issuer string) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))

	payload := fmt.Sprintf(`{"sub":"%s"`, sub)
	if issuer != "" {
		payload += fmt.Sprintf(`,"iss":"%s"`, issuer)
	}
	payload += "}"

	encodedPayload := base64.RawURLEncoding.EncodeToString([]byte(payload))
	return fmt.Sprintf("%s.%s.", header, encodedPayload)
}

// GenerateTestJWTWithBearer returns the token with the "Bearer " prefix.
func GenerateTestJWTWithBearer(sub, issuer string) string {
	return "Bearer " + GenerateTestJWT(sub, issuer)
}
