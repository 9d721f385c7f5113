// ABOUTME: gRPC interceptor that resolves the calling sender from metadata
// ABOUTME: Rejects unidentified calls except on an allow-list of public methods

package auth

import (
	"context"
	"log/slog"
	"slices"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// UnaryInterceptor identifies the sender of each unary call. Calls to a
// method listed in public proceed without an identity; every other call
// without one fails with codes.Unauthenticated.
func UnaryInterceptor(id *Identifier, logger *slog.Logger, public ...string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ac, err := id.FromMetadata(ctx)
		switch {
		case err == nil:
			return handler(WithAuth(ctx, ac), req)
		case slices.Contains(public, info.FullMethod):
			return handler(ctx, req)
		}

		if logger != nil {
			logger.Warn("rejected unauthenticated call",
				"method", info.FullMethod,
				"peer_addr", peerAddr(ctx),
				"reason", err.Error(),
			)
		}
		return nil, status.Error(codes.Unauthenticated, "unauthenticated")
	}
}

func peerAddr(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return "unknown"
}
