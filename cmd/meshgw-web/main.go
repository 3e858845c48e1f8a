// Command meshgw-web serves the HTTP/WebSocket dashboard described as an
// external collaborator in spec.md §1/§6: a REST API over the gateway
// command surface plus a WebSocket stream of pkg/bus events. The dashboard
// assets themselves (the web UI) are out of scope; this binary is the API
// and event-fan-out shell a real frontend would be built against.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mash-protocol/meshgw/internal/config"
	"github.com/mash-protocol/meshgw/pkg/bus"
	"github.com/mash-protocol/meshgw/pkg/gateway"
	"github.com/mash-protocol/meshgw/pkg/history"
	"github.com/mash-protocol/meshgw/pkg/transport"
)

func main() {
	cfg := config.Default()
	configFile := flag.String("config", "", "configuration file path")
	flag.Parse()

	loaded, err := config.LoadFile(*configFile, cfg)
	if err != nil {
		log.Fatalf("meshgw-web: %v", err)
	}
	cfg = loaded
	config.RegisterFlags(&cfg)
	flag.CommandLine.Parse(os.Args[1:])

	hist, err := openHistory(cfg)
	if err != nil {
		log.Fatalf("meshgw-web: %v", err)
	}
	defer hist.Close()

	protoLogger, closeProtoLogger, err := config.BuildProtocolLogger(cfg)
	if err != nil {
		log.Fatalf("meshgw-web: %v", err)
	}
	defer closeProtoLogger()

	events := bus.New()
	sess := transport.NewSession(stubDriver{}, protoLogger)
	defer sess.Close()
	ctrl := gateway.NewController(sess, events, hist)
	ctrl.SetDebug(cfg.LogLevel == "debug")

	filter := transport.ScanFilter{Address: cfg.ScanAddress}
	if len(cfg.NamePrefixes) > 0 {
		filter.NamePrefixes = cfg.NamePrefixes
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connectCtx, connectCancel := context.WithTimeout(ctx, 30*time.Second)
	err = ctrl.Connect(connectCtx, filter)
	connectCancel()
	if err != nil {
		log.Printf("meshgw-web: connect: %v (serving API against a disconnected session)", err)
	} else {
		go ctrl.Ingest(ctx)
		go ctrl.Supervise(ctx, filter)
		go ctrl.PowerManager().Run(ctx)
	}

	srv := NewServer(ServerConfig{ListenAddr: cfg.WebListenAddr}, ctrl, events)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
		os.Exit(0)
	}()

	log.Printf("meshgw-web: listening on %s", cfg.WebListenAddr)
	if err := srv.ListenAndServe(); err != nil {
		log.Fatalf("meshgw-web: %v", err)
	}
}

func openHistory(cfg config.Config) (history.Sink, error) {
	if cfg.HistoryBackend == "sqlite" {
		return history.NewSQLiteStore(cfg.HistoryPath)
	}
	return history.NoopSink{}, nil
}
