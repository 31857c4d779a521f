package upload

import "context"

type coordinatorKey struct{}

// NewContext returns a copy of ctx carrying c.
func NewContext(ctx context.Context, c *Coordinator) context.Context {
	return context.WithValue(ctx, coordinatorKey{}, c)
}

// FromContext returns the Coordinator stored in ctx. It panics if there is
// none.
func FromContext(ctx context.Context) *Coordinator {
	c, ok := ctx.Value(coordinatorKey{}).(*Coordinator)
	if !ok || c == nil {
		panic("upload: no Coordinator in context")
	}
	return c
}
