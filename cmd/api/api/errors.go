package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/onkernel/imgport/lib/images"
	"github.com/onkernel/imgport/lib/logger"
	"github.com/onkernel/imgport/lib/oapi"
)

// errBadRequest marks request bodies that cannot be decoded.
var errBadRequest = errors.New("bad request")

type errorMapping struct {
	err    error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{errBadRequest, http.StatusBadRequest, "bad_request"},
	{images.ErrNameRequired, http.StatusBadRequest, "bad_request"},
	{images.ErrInvalidName, http.StatusBadRequest, "bad_request"},
	{images.ErrNotLocal, http.StatusBadRequest, "not_local"},
	{images.ErrAuthRequired, http.StatusUnauthorized, "auth_required"},
	{images.ErrAccessDenied, http.StatusForbidden, "access_denied"},
	{images.ErrNotFound, http.StatusNotFound, "image_not_found"},
	{images.ErrTimeout, http.StatusRequestTimeout, "connection_timeout"},
	{images.ErrTooLarge, http.StatusRequestEntityTooLarge, "image_too_large"},
	{images.ErrEngineUnavailable, http.StatusInternalServerError, "engine_unavailable"},
	{images.ErrNetwork, http.StatusServiceUnavailable, "network_error"},
}

// statusFor maps an error to its HTTP status and error code.
func statusFor(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeError writes the mapped error response. Nothing is written when the
// client has already gone away.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	log := logger.FromContext(ctx)
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		log.InfoContext(ctx, "request cancelled by client", "error", err)
		return
	}

	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.ErrorContext(ctx, "request failed", "status", status, "code", code, "error", err)
	} else {
		log.WarnContext(ctx, "request rejected", "status", status, "code", code, "error", err)
	}
	oapi.WriteError(w, status, code, err.Error())
}
