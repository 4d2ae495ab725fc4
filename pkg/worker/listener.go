package worker

import "context"

// Listener hooks into the worker lifecycle. All fields are optional; nil
// hooks are skipped.
type Listener struct {
	OnStart func(ctx context.Context)
	OnExit  func(ctx context.Context)
	// OnMessageStart fires before a decision event is dispatched.
	OnMessageStart func(ctx context.Context, evt *Event)
	// OnMessageFinish fires after the handler returns, err included.
	OnMessageFinish func(ctx context.Context, evt *Event, err error)
	OnError         func(ctx context.Context, evt *Event, err error)
}
