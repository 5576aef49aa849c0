package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/matst80/dataview-sample/pkg/client"
	"github.com/matst80/dataview-sample/pkg/config"
	"github.com/matst80/dataview-sample/pkg/journal"
	"github.com/matst80/dataview-sample/pkg/localstore"
	"github.com/matst80/dataview-sample/pkg/messaging"
	"github.com/matst80/dataview-sample/pkg/tutorial"
	"github.com/matst80/dataview-sample/pkg/types"
)

var envFile = flag.String("env", ".env", "dotenv file with the service settings")
var dbPath = flag.String("db", "", "sqlite file backing the in-process store, memory only when empty")

func main() {
	flag.Parse()
	if err := run(); err != nil {
		log.Printf("tutorial failed: %v", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(*envFile)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store types.RemoteStore
	var auth tutorial.Authenticator
	if cfg.Local {
		local, closer, err := openLocal(*dbPath)
		if err != nil {
			return err
		}
		defer closer.Close()
		store = local
		log.Printf("Running against the in-process store")
	} else {
		c := client.New(ctx, cfg.Client())
		store, auth = c, c
	}

	recorder, closeJournal := openJournal(ctx, cfg)
	defer closeJournal()

	runner := tutorial.NewRunner(store, cfg.Namespace, os.Stdout)
	runner.Auth = auth
	runner.Journal = recorder
	log.Printf("run id: %s", runner.RunId)
	return runner.Run(ctx)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func openLocal(path string) (types.RemoteStore, io.Closer, error) {
	if path == "" {
		return localstore.NewStore(), nopCloser{}, nil
	}
	s, err := localstore.NewSQLiteStore(path)
	if err != nil {
		return nil, nil, err
	}
	return s, s, nil
}

// openJournal wires whichever journal backends are configured. A backend
// that cannot be reached is skipped.
func openJournal(ctx context.Context, cfg *config.Config) (journal.Recorder, func()) {
	recorders := journal.Multi{}
	closers := make([]func(), 0)
	if cfg.RedisUrl != "" {
		r := journal.NewRedisRecorder(cfg.RedisUrl, cfg.RedisPassword, 0, 0)
		if err := r.Ping(ctx); err != nil {
			log.Printf("Redis journal disabled: %v", err)
			_ = r.Close()
		} else {
			recorders = append(recorders, r)
			closers = append(closers, func() { _ = r.Close() })
			log.Printf("Journal enabled in redis, url: %s", cfg.RedisUrl)
		}
	}
	if cfg.RabbitUrl != "" {
		rabbit := cfg.Rabbit()
		conn, err := messaging.Dial(rabbit)
		if err != nil {
			log.Printf("Amqp journal disabled: %v", err)
		} else if a, err := journal.NewAmqpRecorder(conn, rabbit.TopicPrefix()); err != nil {
			log.Printf("Amqp journal disabled: %v", err)
			_ = conn.Close()
		} else {
			recorders = append(recorders, a)
			closers = append(closers, func() { _ = conn.Close() })
			log.Printf("Journal events published to amqp")
		}
	}
	return recorders, func() {
		for _, c := range closers {
			c()
		}
	}
}
