// Package authhook provides an example onConnect hook that validates a
// bearer token carried in connection_init's payload, grounded in the
// teacher's ConnectionInitPayload{Authorization,Token} fields
// (internal/graphql/subscription/websocket.go). This is supplementary:
// spec.md's Non-goals exclude authentication as a core handler concern,
// but a pluggable example belongs in the ambient stack the same way the
// teacher ships OnConnect as a config field.
package authhook

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/golang-jwt/jwt/v5"

	"graphqlws/internal/session"
)

// ConnectionInitPayload mirrors the fields the legacy protocol's
// connection_init payload is expected to carry for an authenticated demo
// deployment.
type ConnectionInitPayload struct {
	Authorization string `json:"authorization,omitempty"`
	Token         string `json:"token,omitempty"`
}

var errMissingToken = errors.New("authhook: connection_init payload has no token")

// NewJWTConnectHook returns an onConnect hook that rejects any
// connection_init whose payload doesn't carry a token valid under secret.
func NewJWTConnectHook(secret []byte) func(ctx context.Context, connectionParams json.RawMessage, sess *session.Session) error {
	return func(ctx context.Context, connectionParams json.RawMessage, sess *session.Session) error {
		var payload ConnectionInitPayload
		if len(connectionParams) > 0 {
			if err := json.Unmarshal(connectionParams, &payload); err != nil {
				return err
			}
		}

		token := payload.Token
		if token == "" {
			return errMissingToken
		}

		_, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("authhook: unexpected signing method")
			}
			return secret, nil
		})
		return err
	}
}
