package upload

import (
	"time"

	"github.com/filedrop/uploader/internal/logging"
)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger used for lifecycle messages.
func WithLogger(l logging.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.log = l
		}
	}
}

// WithClock overrides the time source used for CreatedAt and CompletedAt.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithIDGenerator overrides how file ids are generated. An id already in
// the list is never reused; the generator is called again instead.
func WithIDGenerator(gen func() string) Option {
	return func(c *Coordinator) {
		if gen != nil {
			c.newID = gen
		}
	}
}
