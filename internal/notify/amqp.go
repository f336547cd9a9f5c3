package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	exchangeType   = "topic"
	publishTimeout = 2 * time.Second
	queueDepth     = 256
)

const (
	routingKeyLowStock     = "inventory.low_stock"
	routingKeyOrderCreated = "orders.created"
)

// SetupConn dials the broker and declares the event exchange.
func SetupConn(url, exchange string) (*amqp.Connection, *amqp.Channel, error) {
	var conn *amqp.Connection
	var err error

	for i := 0; i < 5; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		log.Printf("Failed to connect to RabbitMQ (attempt %d): %v", i+1, err)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("could not connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, nil, fmt.Errorf("could not open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange,     // name
		exchangeType, // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		return nil, nil, fmt.Errorf("could not declare exchange: %w", err)
	}

	return conn, ch, nil
}

type envelope struct {
	routingKey string
	body       []byte
}

// AMQPNotifier publishes events to a topic exchange. Callers never block on
// the broker: events go onto a bounded queue drained by a background
// goroutine, and an event that cannot be queued or published is dropped with
// a log line.
type AMQPNotifier struct {
	ch       *amqp.Channel
	exchange string
	queue    chan envelope
	done     chan struct{}
}

func NewAMQPNotifier(ch *amqp.Channel, exchange string) *AMQPNotifier {
	n := &AMQPNotifier{
		ch:       ch,
		exchange: exchange,
		queue:    make(chan envelope, queueDepth),
		done:     make(chan struct{}),
	}
	go n.drain()
	return n
}

func (n *AMQPNotifier) drain() {
	for env := range n.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		err := n.ch.PublishWithContext(ctx,
			n.exchange,
			env.routingKey,
			false, // mandatory
			false, // immediate
			amqp.Publishing{
				ContentType: "application/json",
				Body:        env.body,
			},
		)
		cancel()
		if err != nil {
			log.Printf("notify: publish %s failed: %v", env.routingKey, err)
		}
	}
	close(n.done)
}

// Close stops accepting events and waits for the queue to flush.
func (n *AMQPNotifier) Close() {
	close(n.queue)
	<-n.done
}

func (n *AMQPNotifier) enqueue(routingKey string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", routingKey, err)
	}

	select {
	case n.queue <- envelope{routingKey: routingKey, body: body}:
		return nil
	default:
		return fmt.Errorf("notify queue full, dropping %s event", routingKey)
	}
}

func (n *AMQPNotifier) LowStock(_ context.Context, alert LowStockAlert) error {
	return n.enqueue(routingKeyLowStock, alert)
}

func (n *AMQPNotifier) OrderCreated(_ context.Context, event OrderCreatedEvent) error {
	return n.enqueue(routingKeyOrderCreated, event)
}
