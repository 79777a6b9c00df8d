package hub

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"

	"github.com/google/go-containerregistry/pkg/v1/remote/transport"

	"github.com/onkernel/imgport/lib/images"
)

// classify converts registry and transport failures to images sentinel
// errors, keeping the original message.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if kind := kindOf(err); kind != nil {
		return fmt.Errorf("%w: %v", kind, err)
	}
	return err
}

func kindOf(err error) error {
	var transportErr *transport.Error
	var dnsErr *net.DNSError
	var netErr net.Error

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return images.ErrTimeout
	case errors.As(err, &transportErr):
		return kindOfTransportError(transportErr)
	case errors.As(err, &dnsErr):
		return images.ErrNetwork
	case errors.As(err, &netErr) && netErr.Timeout():
		return images.ErrTimeout
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.ENETUNREACH):
		return images.ErrNetwork
	}
	return nil
}

func kindOfTransportError(err *transport.Error) error {
	for _, d := range err.Errors {
		switch d.Code {
		case transport.UnauthorizedErrorCode:
			return images.ErrAuthRequired
		case transport.DeniedErrorCode:
			return images.ErrAccessDenied
		case transport.NameUnknownErrorCode, transport.ManifestUnknownErrorCode:
			return images.ErrNotFound
		}
	}

	switch err.StatusCode {
	case http.StatusUnauthorized:
		return images.ErrAuthRequired
	case http.StatusForbidden:
		return images.ErrAccessDenied
	case http.StatusNotFound:
		return images.ErrNotFound
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return images.ErrTimeout
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		return images.ErrNetwork
	}
	return nil
}
