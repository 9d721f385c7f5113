// ABOUTME: Identifier resolves the sender of an HTTP request or gRPC call
// ABOUTME: Bearer JWT first, then an optional trusted sender header

package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/grpc/metadata"
)

// ErrMissingCredentials is returned when a request carries no usable identity.
var ErrMissingCredentials = errors.New("missing credentials")

// Identifier extracts the sender from inbound requests.
type Identifier struct {
	tokens       TokenVerifier
	senderHeader string
}

// NewIdentifier builds an Identifier. tokens may be nil when only a trusted
// header is used. senderHeader may be empty to disable header identity.
func NewIdentifier(tokens TokenVerifier, senderHeader string) (*Identifier, error) {
	if tokens == nil && senderHeader == "" {
		return nil, errors.New("identifier needs a token verifier or a sender header")
	}
	return &Identifier{tokens: tokens, senderHeader: senderHeader}, nil
}

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// resolve applies the identity rules to an authorization value and a
// sender header value.
func (id *Identifier) resolve(authorization, sender string) (*AuthContext, error) {
	if authorization != "" && id.tokens != nil {
		token, errMsg := extractBearerToken(authorization)
		if errMsg != "" {
			return nil, fmt.Errorf("%w: %s", ErrInvalidToken, errMsg)
		}
		sub, err := id.tokens.Verify(token)
		if err != nil {
			return nil, err
		}
		return &AuthContext{Sender: sub, Method: MethodToken}, nil
	}

	if id.senderHeader != "" {
		if s := strings.TrimSpace(sender); s != "" {
			return &AuthContext{Sender: s, Method: MethodHeader}, nil
		}
	}
	return nil, ErrMissingCredentials
}

// FromHTTP identifies the sender of r.
func (id *Identifier) FromHTTP(r *http.Request) (*AuthContext, error) {
	var sender string
	if id.senderHeader != "" {
		sender = r.Header.Get(id.senderHeader)
	}
	return id.resolve(r.Header.Get("Authorization"), sender)
}

// FromMetadata identifies the sender of a gRPC call from incoming metadata.
func (id *Identifier) FromMetadata(ctx context.Context) (*AuthContext, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil, ErrMissingCredentials
	}
	var authorization, sender string
	if vals := md.Get("authorization"); len(vals) > 0 {
		authorization = vals[0]
	}
	if id.senderHeader != "" {
		if vals := md.Get(strings.ToLower(id.senderHeader)); len(vals) > 0 {
			sender = vals[0]
		}
	}
	return id.resolve(authorization, sender)
}
