package worker

import "context"

// RetryDecision says what to do with a decision event whose handler failed.
type RetryDecision struct {
	Retry bool
	Nack  bool
}

// RetryPolicy is consulted once per failed handler invocation.
type RetryPolicy interface {
	OnError(ctx context.Context, evt *Event, err error) RetryDecision
}

// NoRetry nacks failed events immediately. Brokers with redelivery (amqp,
// nats) will still requeue nacked messages on their own terms.
type NoRetry struct{}

func (NoRetry) OnError(ctx context.Context, evt *Event, err error) RetryDecision {
	return RetryDecision{Retry: false, Nack: true}
}
