// Command meshgw is a one-shot mesh-gateway CLI: connect, run a command,
// print the result, exit.
//
// Usage:
//
//	meshgw [flags] <command> [node] [args...]
//
// Commands:
//
//	duty <node|ALL> <pct>   Set duty cycle
//	ramp <node>             Start ramp test
//	stop <node>             Stop node
//	read <node>              Request a sensor reading
//	status <node>            Request node status
//	monitor <node>           Start continuous monitor mode
//	raw <text>               Send a raw command frame
//	threshold <mw>           Enable power management at the given threshold
//	threshold off            Disable power management
//	priority <node|clear>    Set or clear the priority node
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/mash-protocol/meshgw/pkg/bus"
	"github.com/mash-protocol/meshgw/pkg/gateway"
	"github.com/mash-protocol/meshgw/pkg/history"
	"github.com/mash-protocol/meshgw/pkg/transport"

	"github.com/mash-protocol/meshgw/internal/config"
)

func main() {
	cfg := config.Default()
	configFile := flag.String("config", "", "configuration file path")
	flag.Parse()

	loaded, err := config.LoadFile(*configFile, cfg)
	if err != nil {
		log.Fatalf("meshgw: %v", err)
	}
	cfg = loaded
	config.RegisterFlags(&cfg)
	flag.CommandLine.Parse(os.Args[1:])

	args := flag.Args()
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: meshgw [flags] <command> [args...]")
		os.Exit(2)
	}

	hist, err := openHistory(cfg)
	if err != nil {
		log.Fatalf("meshgw: %v", err)
	}
	defer hist.Close()

	protoLogger, closeProtoLogger, err := config.BuildProtocolLogger(cfg)
	if err != nil {
		log.Fatalf("meshgw: %v", err)
	}
	defer closeProtoLogger()

	events := bus.New()
	events.Subscribe(bus.ThreadAny, func(e bus.Event) {
		if e.LogLine != nil {
			fmt.Println(e.LogLine.Text)
		}
	})

	sess := transport.NewSession(stubDriver{}, protoLogger)
	defer sess.Close()
	ctrl := gateway.NewController(sess, events, hist)
	ctrl.SetDebug(cfg.LogLevel == "debug")

	filter := transport.ScanFilter{Address: cfg.ScanAddress}
	if len(cfg.NamePrefixes) > 0 {
		filter.NamePrefixes = cfg.NamePrefixes
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := ctrl.Connect(ctx, filter); err != nil {
		log.Fatalf("meshgw: connect: %v", err)
	}
	go ctrl.Ingest(context.Background())

	if err := runCommand(ctx, ctrl, args); err != nil {
		log.Fatalf("meshgw: %v", err)
	}
}

func openHistory(cfg config.Config) (history.Sink, error) {
	switch cfg.HistoryBackend {
	case "sqlite":
		return history.NewSQLiteStore(cfg.HistoryPath)
	default:
		return history.NoopSink{}, nil
	}
}

func runCommand(ctx context.Context, ctrl *gateway.Controller, args []string) error {
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "duty":
		if len(rest) != 2 {
			return fmt.Errorf("usage: duty <node|ALL> <pct>")
		}
		pct, err := strconv.Atoi(rest[1])
		if err != nil {
			return fmt.Errorf("invalid pct: %w", err)
		}
		return ctrl.SetDuty(ctx, rest[0], pct)
	case "ramp":
		return ctrl.StartRamp(ctx, arg0(rest))
	case "stop":
		return ctrl.Stop(ctx, arg0(rest))
	case "read":
		return ctrl.ReadSensor(ctx, arg0(rest))
	case "status":
		return ctrl.ReadStatus(ctx, arg0(rest))
	case "monitor":
		return ctrl.StartMonitor(ctx, arg0(rest))
	case "raw":
		if len(rest) != 1 {
			return fmt.Errorf("usage: raw <text>")
		}
		return ctrl.Raw(ctx, rest[0])
	case "threshold":
		if len(rest) != 1 {
			return fmt.Errorf("usage: threshold <mw|off>")
		}
		if rest[0] == "off" {
			ctrl.PowerManager().Disable(ctx)
			return nil
		}
		mw, err := strconv.ParseFloat(rest[0], 64)
		if err != nil {
			return fmt.Errorf("invalid threshold: %w", err)
		}
		ctrl.PowerManager().SetThreshold(mw)
		return nil
	case "priority":
		if len(rest) != 1 {
			return fmt.Errorf("usage: priority <node|clear>")
		}
		if rest[0] == "clear" {
			ctrl.PowerManager().ClearPriority()
			return nil
		}
		ctrl.PowerManager().SetPriority(rest[0])
		return nil
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func arg0(rest []string) string {
	if len(rest) == 0 {
		return ""
	}
	return rest[0]
}
