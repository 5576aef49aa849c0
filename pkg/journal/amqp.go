package journal

import (
	"context"

	"github.com/matst80/dataview-sample/pkg/messaging"
	amqp "github.com/rabbitmq/amqp091-go"
)

// AmqpRecorder publishes every entry on the step completed topic.
type AmqpRecorder struct {
	conn   *amqp.Connection
	prefix string
}

func NewAmqpRecorder(conn *amqp.Connection, prefix string) (*AmqpRecorder, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	defer ch.Close()
	if err := messaging.DefineTopic(ch, prefix, messaging.StepCompleted); err != nil {
		return nil, err
	}
	return &AmqpRecorder{conn: conn, prefix: prefix}, nil
}

func (a *AmqpRecorder) Record(_ context.Context, entry Entry) error {
	return messaging.SendChange(a.conn, a.prefix, messaging.StepCompleted, entry)
}
