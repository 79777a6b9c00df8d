package hub

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"

	"github.com/google/go-containerregistry/pkg/v1/remote/transport"
	"github.com/stretchr/testify/require"

	"github.com/onkernel/imgport/lib/images"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"deadline", context.DeadlineExceeded, images.ErrTimeout},
		{"dns", &net.DNSError{Err: "no such host", Name: "registry-1.docker.io", IsNotFound: true}, images.ErrNetwork},
		{"unauthorized code", &transport.Error{StatusCode: http.StatusUnauthorized, Errors: []transport.Diagnostic{{Code: transport.UnauthorizedErrorCode}}}, images.ErrAuthRequired},
		{"denied code", &transport.Error{StatusCode: http.StatusForbidden, Errors: []transport.Diagnostic{{Code: transport.DeniedErrorCode}}}, images.ErrAccessDenied},
		{"name unknown", &transport.Error{StatusCode: http.StatusNotFound, Errors: []transport.Diagnostic{{Code: transport.NameUnknownErrorCode}}}, images.ErrNotFound},
		{"bare 404", &transport.Error{StatusCode: http.StatusNotFound}, images.ErrNotFound},
		{"bare 503", &transport.Error{StatusCode: http.StatusServiceUnavailable}, images.ErrNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, classify(tt.err), tt.want)
		})
	}
}

func TestClassifyPassesThroughUnknown(t *testing.T) {
	err := errors.New("something odd")
	require.Same(t, err, classify(err))
	require.Nil(t, classify(nil))
	require.ErrorIs(t, classify(context.Canceled), context.Canceled)
}
