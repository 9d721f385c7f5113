// ABOUTME: Maps domain errors to HTTP statuses and gRPC codes
// ABOUTME: Client errors carry their message; internal errors are logged and masked

package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/2389/whitelist-gateway/internal/address"
	"github.com/2389/whitelist-gateway/internal/auth"
	"github.com/2389/whitelist-gateway/internal/contract"
	"github.com/2389/whitelist-gateway/internal/replay"
	"github.com/2389/whitelist-gateway/internal/whitelist"
)

// errorClass is how one family of errors is presented to clients.
type errorClass struct {
	httpStatus int
	grpcCode   codes.Code
	code       string
	internal   bool
}

var classInternal = errorClass{
	httpStatus: http.StatusInternalServerError,
	grpcCode:   codes.Internal,
	code:       "internal_error",
	internal:   true,
}

// classify picks the errorClass for err.
func classify(err error) errorClass {
	switch {
	case errors.Is(err, whitelist.ErrUnauthorized):
		return errorClass{http.StatusForbidden, codes.PermissionDenied, "unauthorized", false}
	case errors.Is(err, whitelist.ErrFrozen):
		return errorClass{http.StatusConflict, codes.FailedPrecondition, "frozen", false}
	case errors.Is(err, whitelist.ErrInvalidPrincipal), errors.Is(err, address.ErrInvalid):
		return errorClass{http.StatusBadRequest, codes.InvalidArgument, "invalid_principal", false}
	case errors.Is(err, contract.ErrInvalidMessage):
		return errorClass{http.StatusBadRequest, codes.InvalidArgument, "invalid_message", false}
	case errors.Is(err, whitelist.ErrAlreadyInstantiated):
		return errorClass{http.StatusConflict, codes.AlreadyExists, "already_instantiated", false}
	case errors.Is(err, whitelist.ErrNotInstantiated):
		return errorClass{http.StatusNotFound, codes.NotFound, "not_instantiated", false}
	case errors.Is(err, replay.ErrReplayed):
		return errorClass{http.StatusConflict, codes.AlreadyExists, "replayed", false}
	case errors.Is(err, auth.ErrMissingCredentials), errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken), errors.Is(err, auth.ErrMissingClaim):
		return errorClass{http.StatusUnauthorized, codes.Unauthenticated, "unauthenticated", false}
	default:
		return classInternal
	}
}

// errorResponse is the JSON body of every HTTP error.
type errorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError translates err to an HTTP response.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	c := classify(err)
	body := errorResponse{Error: c.code}
	if c.internal {
		logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	} else {
		body.Description = err.Error()
	}
	writeJSON(w, c.httpStatus, body)
}

// toStatus translates err to a gRPC status error.
func toStatus(logger *slog.Logger, method string, err error) error {
	c := classify(err)
	if c.internal {
		logger.Error("rpc failed", "method", method, "error", err)
		return status.Error(c.grpcCode, "internal error")
	}
	return status.Error(c.grpcCode, err.Error())
}
