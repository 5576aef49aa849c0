package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/matst80/dataview-sample/pkg/common"
	"github.com/matst80/dataview-sample/pkg/localstore"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var listenAddress = flag.String("addr", ":8080", "listen address")
var dbPath = flag.String("db", "", "sqlite file to snapshot namespaces to, memory only when empty")

func main() {
	_ = godotenv.Load()
	flag.Parse()

	secret := os.Getenv("DATAVIEW_TOKEN_SECRET")
	if secret == "" {
		log.Printf("DATAVIEW_TOKEN_SECRET not set, using a development secret")
		secret = "dataview-local-development"
	}
	clients := map[string]string{}
	if id := os.Getenv("OCS_CLIENT_ID"); id != "" {
		clients[id] = os.Getenv("OCS_CLIENT_SECRET")
	}
	issuer := localstore.NewTokenIssuer([]byte(secret), os.Getenv("OCS_TENANT"), clients)

	var store localStore = localstore.NewStore()
	hooks := []common.ShutdownHook{}
	if *dbPath != "" {
		s, err := localstore.NewSQLiteStore(*dbPath)
		if err != nil {
			log.Fatalf("Failed to open %s: %v", *dbPath, err)
		}
		log.Printf("Restored namespaces %v from %s", s.Namespaces(), s.Path())
		store = s
		hooks = append(hooks, func(ctx context.Context) error {
			return s.Close()
		})
	}

	mux := http.NewServeMux()
	mux.Handle("/", localstore.NewHandler(store, issuer))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	cfg := common.LoadTimeoutConfig(common.TimeoutConfig{
		ReadHeader: 5 * time.Second,
		Read:       15 * time.Second,
		Write:      30 * time.Second,
		Idle:       60 * time.Second,
		Shutdown:   15 * time.Second,
		Hook:       5 * time.Second,
	})
	server := common.NewServerWithTimeouts(&http.Server{Addr: *listenAddress, Handler: mux}, cfg)

	if err := common.RunServerWithShutdown(context.Background(), server, "local data view service", cfg.Shutdown, cfg.Hook, hooks...); err != nil {
		log.Fatalf("Server stopped: %v", err)
	}
}
