package services

import "errors"

// Error kinds. Wrap with fmt.Errorf("%w: ...") and test with errors.Is.
var (
	ErrValidation           = errors.New("validation error")
	ErrNotFound             = errors.New("not found")
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")
	ErrIndexUnavailable     = errors.New("vector index unavailable")
	ErrModelUnavailable     = errors.New("language model unavailable")
	ErrStorage              = errors.New("storage error")
)
