package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/matst80/dataview-sample/pkg/common/jsoncompat"
	"github.com/matst80/dataview-sample/pkg/journal"
	"github.com/matst80/dataview-sample/pkg/messaging"
	amqp "github.com/rabbitmq/amqp091-go"
)

var prefix = flag.String("prefix", messaging.DefaultPrefix, "exchange prefix")
var runFilter = flag.String("run", "", "only print entries of this run id")

func main() {
	_ = godotenv.Load()
	flag.Parse()

	cfg := messaging.RabbitConfig{
		Url:    os.Getenv("RABBIT_URL"),
		VHost:  os.Getenv("RABBIT_HOST"),
		Prefix: *prefix,
	}
	if cfg.Url == "" {
		log.Fatalf("No rabbit url provided")
	}
	conn, err := messaging.Dial(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer conn.Close()
	ch, err := conn.Channel()
	if err != nil {
		log.Fatalf("Failed to open a channel: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = messaging.ListenToTopic(ctx, ch, cfg.TopicPrefix(), messaging.StepCompleted, func(d amqp.Delivery) error {
		var e journal.Entry
		if err := jsoncompat.Unmarshal(d.Body, &e); err != nil {
			return fmt.Errorf("decode step entry: %w", err)
		}
		if *runFilter != "" && e.RunId != *runFilter {
			return nil
		}
		status := "ok"
		if e.Error != "" {
			status = e.Error
		}
		fmt.Printf("%s %s step %2d %-50s rows=%d %s\n", e.At.Format("15:04:05"), e.RunId, e.Step, e.Title, e.Rows, status)
		return nil
	})
	if err != nil {
		log.Fatalf("Failed to listen for step events: %v", err)
	}
	log.Printf("Listening for step events on %s", messaging.TopicName(cfg.TopicPrefix(), messaging.StepCompleted))
	<-ctx.Done()
}
