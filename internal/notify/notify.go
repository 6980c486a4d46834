// Package notify sends payment nudges to other users.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/internal/config"
)

type Result struct {
	Sent   bool   `json:"sent"`
	Reason string `json:"reason,omitempty"`
}

type Dispatcher interface {
	SendNudge(ctx context.Context, targetIdentity, senderName string) Result
}

// Logger only logs the nudge. It stands in when no broker is configured.
type Logger struct {
	Log *zap.Logger
}

func (l Logger) SendNudge(_ context.Context, target, sender string) Result {
	if target == "" {
		return Result{Reason: "no recipient"}
	}
	log := l.Log
	if log == nil {
		log = zap.NewNop()
	}
	log.Info("nudge", zap.String("target", target), zap.String("sender", sender))
	return Result{Sent: true}
}

type Nudge struct {
	Target string    `json:"target"`
	Sender string    `json:"sender"`
	SentAt time.Time `json:"sentAt"`
}

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQP publishes nudges as persistent JSON messages on a durable queue.
type AMQP struct {
	mu     sync.Mutex // channels are not safe for concurrent publishing
	conn   *amqp.Connection
	pub    publisher
	queue  string
	logger *zap.Logger
}

func DialAMQP(url, queue string, logger *zap.Logger) (*AMQP, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("open channel: %w", err), conn.Close())
	}
	q, err := ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("declare queue %s: %w", queue, err), conn.Close())
	}
	return &AMQP{conn: conn, pub: ch, queue: q.Name, logger: logger}, nil
}

func (a *AMQP) SendNudge(ctx context.Context, target, sender string) Result {
	if target == "" {
		return Result{Reason: "no recipient"}
	}
	body, err := json.Marshal(Nudge{Target: target, Sender: sender, SentAt: time.Now().UTC()})
	if err != nil {
		return Result{Reason: err.Error()}
	}

	ctx, cancel := context.WithTimeout(ctx, config.PublishTimeout)
	defer cancel()

	a.mu.Lock()
	err = a.pub.PublishWithContext(ctx, "", a.queue, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Body:         body,
	})
	a.mu.Unlock()

	if err != nil {
		a.logger.Warn("nudge publish failed", zap.String("target", target), zap.Error(err))
		return Result{Reason: "notification service unavailable"}
	}
	return Result{Sent: true}
}

func (a *AMQP) Close() error {
	var err error
	if c, ok := a.pub.(*amqp.Channel); ok {
		err = multierr.Append(err, c.Close())
	}
	if a.conn != nil && !a.conn.IsClosed() {
		err = multierr.Append(err, a.conn.Close())
	}
	if errors.Is(err, amqp.ErrClosed) {
		return nil
	}
	return err
}
