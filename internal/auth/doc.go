// Package auth identifies the sender of each request.
//
// # Identity
//
// A sender is a principal string. It is taken from, in order:
//
//   - a bearer JWT in the Authorization header (HTTP) or "authorization"
//     metadata (gRPC), whose "sub" claim names the sender. Tokens are HS256
//     signed with the configured jwt_secret;
//   - the configured trusted sender header, for deployments behind a proxy
//     that has already authenticated the caller.
//
// An invalid token is rejected even when a sender header is present.
//
// Authentication only establishes who is calling. Whether the sender may act
// is decided by the whitelist registry.
//
// # Middleware
//
//	HTTPAuthMiddleware(id, logger)        // rejects with 401
//	OptionalAuthMiddleware(id)            // anonymous allowed
//	UnaryInterceptor(id, logger, public...) // gRPC
//
// Handlers read the sender with FromContext or MustFromContext.
package auth
