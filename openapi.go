// Package imgport embeds the service's OpenAPI document.
package imgport

import _ "embed"

//go:embed openapi.yaml
var OpenAPIYAML []byte
