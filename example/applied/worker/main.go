package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	worker "payhooks/pkg/worker"

	_ "github.com/lib/pq"
)

type retryOnce struct{}

type attemptKey struct{}

type attempts struct {
	count int
}

func (retryOnce) OnError(ctx context.Context, evt *worker.Event, err error) worker.RetryDecision {
	if evt == nil {
		return worker.RetryDecision{Retry: false, Nack: true}
	}
	if value := ctx.Value(attemptKey{}); value != nil {
		if state, ok := value.(*attempts); ok && state.count > 0 {
			return worker.RetryDecision{Retry: false, Nack: false}
		}
		if state, ok := value.(*attempts); ok {
			state.count++
		}
	}
	return worker.RetryDecision{Retry: true, Nack: true}
}

func main() {
	configPath := flag.String("config", "config.yaml", "Path to app config")
	driver := flag.String("driver", "", "Override subscriber driver (amqp|nats|kafka|sql|gochannel)")
	flag.Parse()

	log.SetPrefix("payhooks/worker-example ")
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	subCfg, err := worker.LoadSubscriberConfig(*configPath)
	if err != nil {
		log.Fatalf("load subscriber config: %v", err)
	}
	if *driver != "" {
		subCfg.Driver = *driver
		subCfg.Drivers = nil
	}

	sub, err := worker.BuildSubscriber(subCfg)
	if err != nil {
		log.Fatalf("subscriber: %v", err)
	}
	defer func() {
		if err := sub.Close(); err != nil {
			log.Printf("subscriber close: %v", err)
		}
	}()

	wk := worker.New(
		worker.WithSubscriber(sub),
		worker.WithTopics("payments.applied", "payments.error"),
		worker.WithConcurrency(5),
		worker.WithRetry(retryOnce{}),
		worker.WithListener(worker.Listener{
			OnStart: func(ctx context.Context) { log.Println("worker started") },
			OnExit:  func(ctx context.Context) { log.Println("worker stopped") },
			OnError: func(ctx context.Context, evt *worker.Event, err error) {
				log.Printf("worker error: %v", err)
			},
			OnMessageFinish: func(ctx context.Context, evt *worker.Event, err error) {
				log.Printf("finished topic=%s outcome=%s err=%v", evt.Topic, evt.Decision.Outcome, err)
			},
		}),
	)

	wk.HandleTopic("payments.applied", func(ctx context.Context, evt *worker.Event) error {
		if driver := evt.Metadata["driver"]; driver != "" {
			log.Printf("driver=%s topic=%s", driver, evt.Topic)
		}
		log.Printf("credited user=%s days=%d amount=%v payment=%s source=%s",
			evt.Decision.UserID, evt.Decision.Days, evt.Decision.AmountCents,
			evt.Decision.ProviderPaymentID, evt.Decision.IdentitySource)
		return nil
	})

	wk.HandleTopic("payments.error", func(ctx context.Context, evt *worker.Event) error {
		log.Printf("credit failed payment=%s reason=%s", evt.Decision.ProviderPaymentID, evt.Decision.OutcomeReason)
		return nil
	})

	exampleCtx := context.WithValue(ctx, attemptKey{}, &attempts{})
	if err := wk.Run(exampleCtx); err != nil {
		log.Fatal(err)
	}
}
