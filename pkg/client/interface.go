package client

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/menta2k/safety-analyzer/pkg/types"
)

// ErrMalformedResponse marks a 2xx upstream response whose body does not
// have the expected envelope
var ErrMalformedResponse = errors.New("malformed upstream response")

// TextGenerator sends one prompt to a text-generation backend using a single
// credential (API key, bearer token or host, depending on the backend)
type TextGenerator interface {
	Name() string
	Generate(ctx context.Context, credential, prompt string) (string, error)
}

// Detector produces raw detections for an encoded image
type Detector interface {
	Detect(ctx context.Context, image []byte) (*types.DetectionSet, error)
}

// StatusError is a non-2xx upstream answer. Body is for server-side logs only.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.Code)
}
