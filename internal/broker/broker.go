// Package broker probes a message broker queue for its ready and unacked
// message counts, tolerating transient broker unavailability by returning
// zero values rather than propagating errors up to the scaling controller.
package broker

import (
	"context"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const probeTimeout = 2 * time.Second

// Probe returns (ready, unacked) for a named queue.
type Probe interface {
	QueueStats(ctx context.Context, queueName string) (ready, unacked int)
}

// AMQPProbe implements Probe against a RabbitMQ-compatible broker, opening
// a connection per call and closing it immediately.
type AMQPProbe struct {
	host   string
	logger *zap.Logger
}

// NewAMQPProbe builds a probe against the broker at host (e.g. "rabbitmq").
func NewAMQPProbe(host string, logger *zap.Logger) *AMQPProbe {
	return &AMQPProbe{host: host, logger: logger}
}

// QueueStats passively declares the queue to read its authoritative ready
// count without side effects. A passive declare cannot see the broker's
// unacked-delivery count (that needs the management HTTP API), so unacked
// is reported as 0.
func (p *AMQPProbe) QueueStats(ctx context.Context, queueName string) (ready, unacked int) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	conn, err := dialWithContext(ctx, p.host)
	if err != nil {
		p.logger.Warn("broker unreachable, reporting empty queue",
			zap.String("queue", queueName), zap.Error(err))
		return 0, 0
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		p.logger.Warn("failed to open broker channel",
			zap.String("queue", queueName), zap.Error(err))
		return 0, 0
	}
	defer ch.Close()

	q, err := ch.QueueDeclarePassive(queueName, true, false, false, false, nil)
	if err != nil {
		p.logger.Warn("queue does not exist or is unreachable",
			zap.String("queue", queueName), zap.Error(err))
		return 0, 0
	}

	return q.Messages, 0
}

func dialWithContext(ctx context.Context, host string) (*amqp.Connection, error) {
	cfg := amqp.Config{Dial: amqp.DefaultDial(probeTimeout)}
	done := make(chan struct{})
	var conn *amqp.Connection
	var err error

	addr := host
	if !strings.Contains(addr, ":") {
		addr += ":5672"
	}

	go func() {
		conn, err = amqp.DialConfig("amqp://"+addr+"/", cfg)
		close(done)
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-done:
		return conn, err
	}
}
