// README: AMQP publisher: mirrors ride and driver events onto the ride_topic exchange.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const RideExchange = "ride_topic"

type amqpMessage struct {
	Channel   string    `json:"channel"`
	Event     string    `json:"event"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

type AMQPPublisher struct {
	conn     *amqp.Connection
	exchange string

	mu sync.Mutex
	ch *amqp.Channel
}

// NewAMQPPublisher declares the topic exchange and keeps one channel open for publishing.
func NewAMQPPublisher(conn *amqp.Connection) (*AMQPPublisher, error) {
	p := &AMQPPublisher{conn: conn, exchange: RideExchange}
	ch, err := p.openChannel()
	if err != nil {
		return nil, err
	}
	p.ch = ch
	return p, nil
}

func (p *AMQPPublisher) openChannel() (*amqp.Channel, error) {
	ch, err := p.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		p.exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", p.exchange, err)
	}
	return ch, nil
}

// RoutingKey maps "ride:<id>" + "ride_status_update" to "ride.ride_status_update.<id>".
func RoutingKey(channel string, ev Event) string {
	kind, id, ok := strings.Cut(channel, ":")
	if !ok {
		return kind + "." + ev.Name
	}
	return kind + "." + ev.Name + "." + id
}

func (p *AMQPPublisher) Publish(ctx context.Context, channel string, ev Event) error {
	body, err := json.Marshal(amqpMessage{
		Channel:   channel,
		Event:     ev.Name,
		Data:      ev.Data,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil || p.ch.IsClosed() {
		ch, err := p.openChannel()
		if err != nil {
			return err
		}
		p.ch = ch
	}
	err = p.ch.PublishWithContext(ctx,
		p.exchange,
		RoutingKey(channel, ev),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Transient,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", ev.Name, err)
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return nil
	}
	return p.ch.Close()
}
