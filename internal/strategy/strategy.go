// Package strategy implements the pluggable upload transports. A Strategy
// uploads one file and reports what happens as a stream of Events.
package strategy

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/filedrop/uploader/internal/logging"
	"github.com/filedrop/uploader/internal/models"
)

// Default endpoints, resolved against Options.BaseURL.
const (
	DefaultSingleEndpoint    = "/api/upload-single"
	DefaultChunkEndpoint     = "/api/upload-chunk"
	DefaultWebSocketEndpoint = "/api/ws/uploads"

	DefaultChunkSize int64 = 1024 * 1024
)

// Strategy uploads a single file.
//
// Upload sends zero or more Progress events with non-decreasing values,
// then exactly one Succeeded or Failed event, and then returns. It never
// panics on transport failures. The caller must keep receiving from events
// until Upload returns.
type Strategy interface {
	Upload(ctx context.Context, file models.RawFile, events chan<- Event)
}

// Kind selects a Strategy implementation.
type Kind string

const (
	KindStandard  Kind = "standard"
	KindChunked   Kind = "chunked"
	KindWebSocket Kind = "websocket"
)

// Kinds lists every supported kind.
var Kinds = []Kind{KindStandard, KindChunked, KindWebSocket}

// ParseKind parses a kind name.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Options configures New.
type Options struct {
	// BaseURL resolves relative endpoints, e.g. "http://localhost:8089".
	BaseURL string

	// Endpoint overrides the kind's default endpoint.
	Endpoint string

	// ChunkSize is used by the chunked and websocket kinds.
	ChunkSize int64

	HTTPClient *http.Client
	Dialer     *websocket.Dialer
	Logger     logging.Logger
}

// New builds the Strategy for kind.
func New(kind Kind, opts Options) (Strategy, error) {
	switch kind {
	case KindStandard:
		endpoint, err := opts.resolve(DefaultSingleEndpoint, false)
		if err != nil {
			return nil, err
		}
		return NewStandard(endpoint, opts.HTTPClient, opts.Logger), nil

	case KindChunked:
		endpoint, err := opts.resolve(DefaultChunkEndpoint, false)
		if err != nil {
			return nil, err
		}
		return NewChunked(endpoint, opts.ChunkSize, opts.HTTPClient, opts.Logger), nil

	case KindWebSocket:
		endpoint, err := opts.resolve(DefaultWebSocketEndpoint, true)
		if err != nil {
			return nil, err
		}
		return NewWebSocket(endpoint, opts.ChunkSize, opts.Dialer, opts.Logger), nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

func (o Options) resolve(def string, ws bool) (string, error) {
	endpoint := o.Endpoint
	if endpoint == "" {
		endpoint = def
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parsing endpoint %q: %w", endpoint, err)
	}

	if !u.IsAbs() {
		if o.BaseURL == "" {
			return "", fmt.Errorf("endpoint %q is relative and no base URL is set", endpoint)
		}
		base, err := url.Parse(o.BaseURL)
		if err != nil {
			return "", fmt.Errorf("parsing base URL %q: %w", o.BaseURL, err)
		}
		u = base.ResolveReference(u)
	}

	if ws {
		switch u.Scheme {
		case "http":
			u.Scheme = "ws"
		case "https":
			u.Scheme = "wss"
		}
	}

	return u.String(), nil
}

// TotalChunks returns ceil(size / chunkSize).
func TotalChunks(size, chunkSize int64) int {
	if size <= 0 || chunkSize <= 0 {
		return 0
	}
	return int((size + chunkSize - 1) / chunkSize)
}

func orDefaultClient(c *http.Client) *http.Client {
	if c == nil {
		return http.DefaultClient
	}
	return c
}

func orDiscard(l logging.Logger) logging.Logger {
	if l == nil {
		return logging.Discard()
	}
	return l
}
