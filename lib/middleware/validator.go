package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	nethttpmiddleware "github.com/oapi-codegen/nethttp-middleware"

	"github.com/onkernel/imgport/lib/oapi"
)

// documentPrefix is the path prefix used in openapi.yaml.
const documentPrefix = "/api"

// LoadSpec parses and validates an OpenAPI document, rebasing its /api paths
// onto prefix.
func LoadSpec(ctx context.Context, data []byte, prefix string) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx

	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("validate openapi document: %w", err)
	}

	prefix = strings.TrimRight(prefix, "/")
	if prefix != documentPrefix {
		paths := openapi3.NewPaths()
		for path, item := range doc.Paths.Map() {
			if rest, ok := strings.CutPrefix(path, documentPrefix+"/"); ok {
				path = prefix + "/" + rest
			}
			paths.Set(path, item)
		}
		doc.Paths = paths
	}
	return doc, nil
}

// ValidateRequests rejects requests whose parameters or bodies do not match
// doc. Only mount it on routes the document describes.
func ValidateRequests(doc *openapi3.T) func(http.Handler) http.Handler {
	return nethttpmiddleware.OapiRequestValidatorWithOptions(doc, &nethttpmiddleware.Options{
		SilenceServersWarning: true,
		ErrorHandler: func(w http.ResponseWriter, message string, statusCode int) {
			oapi.WriteError(w, statusCode, "invalid_request", message)
		},
	})
}
