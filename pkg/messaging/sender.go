package messaging

import (
	"fmt"

	"github.com/matst80/dataview-sample/pkg/common/jsoncompat"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Dial connects to the broker named by cfg.
func Dial(cfg RabbitConfig) (*amqp.Connection, error) {
	conn, err := amqp.DialConfig(cfg.Url, amqp.Config{Vhost: cfg.VHost})
	if err != nil {
		return nil, fmt.Errorf("connect to rabbit: %w", err)
	}
	return conn, nil
}

// DefineTopic declares the topic exchange and its named queue. The queue is
// left unbound; consumers bind their own queues in DeclareBindAndConsume.
func DefineTopic(ch *amqp.Channel, prefix string, topic ChangeTopic) error {
	name := TopicName(prefix, topic)
	if err := ch.ExchangeDeclare(
		name,    // name
		"topic", // type
		true,    // durable
		false,   // auto-delete
		false,   // internal
		false,   // noWait
		nil,     // arguments
	); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(
		name,  // name of the queue
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // noWait
		nil,   // arguments
	); err != nil {
		return err
	}
	return nil
}

// TopicName is both the exchange and the routing key of a topic.
func TopicName(prefix string, topic ChangeTopic) string {
	return fmt.Sprintf("%s_%s", prefix, topic)
}

func SendChange[V any](c *amqp.Connection, prefix string, topic ChangeTopic, data V) error {
	bytes, err := jsoncompat.Marshal(data)
	if err != nil {
		return err
	}
	ch, err := c.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()
	name := TopicName(prefix, topic)
	return ch.Publish(
		name,
		name,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        bytes,
		},
	)
}
