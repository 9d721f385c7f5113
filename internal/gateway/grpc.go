// ABOUTME: Whitelist gRPC service implementation
// ABOUTME: Decodes JSON payloads and forwards them to the dispatcher

package gateway

import (
	"context"
	"encoding/json"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/2389/whitelist-gateway/internal/auth"
	"github.com/2389/whitelist-gateway/internal/rpc"
)

// whitelistService implements rpc.WhitelistServer.
type whitelistService struct {
	gateway *Gateway
	logger  *slog.Logger
}

func newWhitelistService(gw *Gateway, logger *slog.Logger) *whitelistService {
	return &whitelistService{
		gateway: gw,
		logger:  logger.With("component", "grpc"),
	}
}

func senderFrom(ctx context.Context) (string, error) {
	a := auth.FromContext(ctx)
	if a == nil {
		return "", status.Error(codes.Unauthenticated, "unauthenticated")
	}
	return a.Sender, nil
}

func requestIDFrom(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if vals := md.Get(rpc.MetadataRequestID); len(vals) > 0 {
		return vals[0]
	}
	return ""
}

func marshalValue(v any) (*wrapperspb.BytesValue, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding response: %v", err)
	}
	return wrapperspb.Bytes(data), nil
}

// Execute runs an exec message for the authenticated sender.
func (s *whitelistService) Execute(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	sender, err := senderFrom(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := s.gateway.dispatcher.ExecuteJSON(ctx, sender, requestIDFrom(ctx), in.GetValue())
	if err != nil {
		return nil, toStatus(s.logger, rpc.Whitelist_Execute_FullMethodName, err)
	}
	return marshalValue(resp)
}

// Query answers a query message.
func (s *whitelistService) Query(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	raw, err := s.gateway.dispatcher.QueryJSON(ctx, in.GetValue())
	if err != nil {
		return nil, toStatus(s.logger, rpc.Whitelist_Query_FullMethodName, err)
	}
	return wrapperspb.Bytes(raw), nil
}

// Instantiate creates the registry from an instantiate message.
func (s *whitelistService) Instantiate(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	sender, err := senderFrom(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := s.gateway.dispatcher.InstantiateJSON(ctx, sender, in.GetValue())
	if err != nil {
		return nil, toStatus(s.logger, rpc.Whitelist_Instantiate_FullMethodName, err)
	}
	if err := s.gateway.refreshHealth(ctx); err != nil {
		s.logger.Warn("refreshing health after instantiate", "error", err)
	}
	return marshalValue(resp)
}
