package worker

import "context"

// Handler processes one decision event. Returning an error hands the
// message to the worker's retry policy.
type Handler func(ctx context.Context, evt *Event) error

// Middleware wraps a Handler.
type Middleware func(Handler) Handler
