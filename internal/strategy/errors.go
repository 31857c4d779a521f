package strategy

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrUnknownKind       = errors.New("unknown upload strategy")
	ErrAborted           = errors.New("upload aborted")
	ErrMalformedResponse = errors.New("invalid response body")
)

// StatusError is returned when the server answers outside [200,300).
type StatusError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface
func (e *StatusError) Error() string {
	return e.Message
}

// transportError classifies a failed round trip. A cancelled context wins
// over whatever the transport reported.
func transportError(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return ErrAborted
	}
	return fmt.Errorf("network error during upload: %w", err)
}

func malformed(err error) error {
	return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
}
