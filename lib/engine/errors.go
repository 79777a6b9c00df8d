package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"

	"github.com/onkernel/imgport/lib/images"
)

// classify folds a Docker engine failure into one of the images sentinel
// errors. The original message is kept after the sentinel.
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
	var dnsErr *net.DNSError
	var netErr net.Error
	var streamErr *jsonmessage.JSONError

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return images.ErrTimeout
	case client.IsErrConnectionFailed(err):
		return images.ErrEngineUnavailable
	case errors.As(err, &dnsErr):
		return images.ErrNetwork
	case errors.As(err, &netErr) && netErr.Timeout():
		return images.ErrTimeout
	case errors.As(err, &streamErr) && streamErr.Code != 0:
		if kind := kindOfStatus(streamErr.Code); kind != nil {
			return kind
		}
	case cerrdefs.IsUnauthorized(err):
		return images.ErrAuthRequired
	case cerrdefs.IsPermissionDenied(err):
		return images.ErrAccessDenied
	}

	// Pull failures reported inside the progress stream only carry text.
	if kind := kindOfMessage(err.Error()); kind != nil {
		return kind
	}
	if cerrdefs.IsNotFound(err) {
		return images.ErrNotFound
	}
	return nil
}

func kindOfStatus(code int) error {
	switch code {
	case http.StatusUnauthorized:
		return images.ErrAuthRequired
	case http.StatusForbidden:
		return images.ErrAccessDenied
	case http.StatusNotFound:
		return images.ErrNotFound
	}
	return nil
}

func kindOfMessage(msg string) error {
	msg = strings.ToLower(msg)
	switch {
	case strings.Contains(msg, "pull access denied") && strings.Contains(msg, "docker login"):
		return images.ErrAuthRequired
	case strings.Contains(msg, "pull access denied"):
		return images.ErrAccessDenied
	case strings.Contains(msg, "repository does not exist"),
		strings.Contains(msg, "manifest unknown"),
		strings.Contains(msg, "manifest for") && strings.Contains(msg, "not found"):
		return images.ErrNotFound
	case strings.Contains(msg, "unauthorized"), strings.Contains(msg, "authentication required"):
		return images.ErrAuthRequired
	case strings.Contains(msg, "i/o timeout"), strings.Contains(msg, "tls handshake timeout"):
		return images.ErrTimeout
	case strings.Contains(msg, "no such host"):
		return images.ErrNetwork
	case strings.Contains(msg, "cannot connect to the docker daemon"):
		return images.ErrEngineUnavailable
	}
	return nil
}
