package images

import "errors"

// Failure kinds produced by the engine and registry clients. The API layer
// maps each of these to a single HTTP status.
var (
	ErrNameRequired      = errors.New("image name is required")
	ErrInvalidName       = errors.New("invalid image name")
	ErrNotLocal          = errors.New("image does not exist locally")
	ErrNotFound          = errors.New("image not found")
	ErrAuthRequired      = errors.New("authentication required to pull image")
	ErrAccessDenied      = errors.New("pull access denied")
	ErrTooLarge          = errors.New("image exceeds export size limit")
	ErrTimeout           = errors.New("connection timed out")
	ErrEngineUnavailable = errors.New("cannot reach the docker engine, is it running")
	ErrNetwork           = errors.New("cannot reach the image registry")
)
