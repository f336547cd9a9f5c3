package notify

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/errgroup"
)

const dispatchTimeout = 5 * time.Second

// Dispatch fans the post-commit events out to the notifier. It is strictly
// best-effort: every failure is logged and swallowed, so a broker outage can
// never fail or roll back the order that triggered it.
func Dispatch(n Notifier, event OrderCreatedEvent, alerts []LowStockAlert) {
	if n == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := n.OrderCreated(ctx, event); err != nil {
			log.Printf("notify: order created event for %s: %v", event.OrderNumber, err)
		}
		return nil
	})

	for _, alert := range alerts {
		alert := alert
		g.Go(func() error {
			if err := n.LowStock(ctx, alert); err != nil {
				log.Printf("notify: low stock alert for product %d: %v", alert.ProductID, err)
			}
			return nil
		})
	}

	g.Wait()
}

// DispatchAsync hands the events to a background goroutine and returns
// immediately, so the caller never waits on the notifier, whatever its
// implementation does with the publish.
func DispatchAsync(n Notifier, event OrderCreatedEvent, alerts []LowStockAlert) {
	go Dispatch(n, event, alerts)
}
