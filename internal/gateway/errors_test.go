package gateway

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"

	"github.com/2389/whitelist-gateway/internal/auth"
	"github.com/2389/whitelist-gateway/internal/contract"
	"github.com/2389/whitelist-gateway/internal/replay"
	"github.com/2389/whitelist-gateway/internal/whitelist"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err      error
		status   int
		code     codes.Code
		internal bool
	}{
		{whitelist.ErrUnauthorized, http.StatusForbidden, codes.PermissionDenied, false},
		{whitelist.ErrFrozen, http.StatusConflict, codes.FailedPrecondition, false},
		{whitelist.ErrInvalidPrincipal, http.StatusBadRequest, codes.InvalidArgument, false},
		{contract.ErrInvalidMessage, http.StatusBadRequest, codes.InvalidArgument, false},
		{whitelist.ErrAlreadyInstantiated, http.StatusConflict, codes.AlreadyExists, false},
		{whitelist.ErrNotInstantiated, http.StatusNotFound, codes.NotFound, false},
		{replay.ErrReplayed, http.StatusConflict, codes.AlreadyExists, false},
		{auth.ErrMissingCredentials, http.StatusUnauthorized, codes.Unauthenticated, false},
		{auth.ErrExpiredToken, http.StatusUnauthorized, codes.Unauthenticated, false},
		{fmt.Errorf("recording execute: %w", assert.AnError), http.StatusInternalServerError, codes.Internal, true},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			c := classify(fmt.Errorf("wrapped: %w", tt.err))
			assert.Equal(t, tt.status, c.httpStatus)
			assert.Equal(t, tt.code, c.grpcCode)
			assert.Equal(t, tt.internal, c.internal)
		})
	}
}
