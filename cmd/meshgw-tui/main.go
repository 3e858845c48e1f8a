// Command meshgw-tui is an interactive readline-driven shell over
// pkg/gateway. It is the minimal observer-contract consumer described in
// spec.md §6: it subscribes to the event bus on bus.ThreadUI and renders
// log/sensor/state/adjust events to the terminal, forwarding operator
// commands through the controller's command API.
//
// The production TUI widget framework (full-screen layout, live gauges,
// scrollback panes) is out of scope per spec.md §1 — this is the thin
// REPL shell the real thing would sit on top of.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

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
		log.Fatalf("meshgw-tui: %v", err)
	}
	cfg = loaded
	config.RegisterFlags(&cfg)
	flag.CommandLine.Parse(os.Args[1:])

	hist, err := openHistory(cfg)
	if err != nil {
		log.Fatalf("meshgw-tui: %v", err)
	}
	defer hist.Close()

	protoLogger, closeProtoLogger, err := config.BuildProtocolLogger(cfg)
	if err != nil {
		log.Fatalf("meshgw-tui: %v", err)
	}
	defer closeProtoLogger()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "mesh> ",
		HistoryFile:     historyFilePath(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		log.Fatalf("meshgw-tui: readline: %v", err)
	}
	defer rl.Close()

	events := bus.New()
	events.Subscribe(bus.ThreadUI, func(e bus.Event) {
		printEvent(rl.Stdout(), e)
	})

	sess := transport.NewSession(stubDriver{}, protoLogger)
	defer sess.Close()
	ctrl := gateway.NewController(sess, events, hist)
	ctrl.SetDebug(cfg.LogLevel == "debug")

	filter := transport.ScanFilter{Address: cfg.ScanAddress}
	if len(cfg.NamePrefixes) > 0 {
		filter.NamePrefixes = cfg.NamePrefixes
	}

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connectCtx, connectCancel := context.WithTimeout(runCtx, 30*time.Second)
	err = ctrl.Connect(connectCtx, filter)
	connectCancel()
	if err != nil {
		fmt.Fprintf(rl.Stderr(), "connect failed: %v\n", err)
	} else {
		go ctrl.Ingest(runCtx)
		go ctrl.Supervise(runCtx, filter)
		go ctrl.PowerManager().Run(runCtx)
	}

	shell{ctrl: ctrl, rl: rl}.loop(runCtx)
}

func openHistory(cfg config.Config) (history.Sink, error) {
	if cfg.HistoryBackend == "sqlite" {
		return history.NewSQLiteStore(cfg.HistoryPath)
	}
	return history.NoopSink{}, nil
}

func historyFilePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return dir + "/meshgw-tui.history"
}

func printEvent(w io.Writer, e bus.Event) {
	switch {
	case e.LogLine != nil:
		fmt.Fprintln(w, e.LogLine.Text)
	case e.Sensor != nil:
		s := e.Sensor
		fmt.Fprintf(w, "[SENSOR] N%s D:%d%% V:%.2fV I:%.1fmA P:%.0fmW\n", s.NodeID, s.Duty, s.Voltage, s.Current, s.Power)
	case e.State != nil:
		fmt.Fprintf(w, "[STATE] %s -> %s\n", e.State.Entity, e.State.NewState)
	case e.Adjust != nil:
		a := e.Adjust
		fmt.Fprintf(w, "[ADJUST] N%s -> %d%% (share %.0fmW)\n", a.NodeID, a.NewDuty, a.ShareMW)
	}
}

type shell struct {
	ctrl *gateway.Controller
	rl   *readline.Instance
}

func (s shell) loop(ctx context.Context) {
	for {
		line, err := s.rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return
		}
		if err != nil {
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := s.dispatch(ctx, line); err != nil {
			fmt.Fprintln(s.rl.Stderr(), err)
		}
	}
}

func (s shell) dispatch(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	cmd := strings.ToLower(fields[0])
	args := fields[1:]

	switch cmd {
	case "help", "?":
		s.printHelp()
		return nil
	case "quit", "exit":
		os.Exit(0)
		return nil
	case "target":
		if len(args) != 1 {
			return fmt.Errorf("usage: target <node|ALL>")
		}
		s.ctrl.SetTargetNode(args[0])
		return nil
	case "duty":
		if len(args) != 2 {
			return fmt.Errorf("usage: duty <node|ALL> <pct>")
		}
		pct, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid pct: %w", err)
		}
		return s.ctrl.SetDuty(ctx, args[0], pct)
	case "ramp":
		return s.ctrl.StartRamp(ctx, arg0(args))
	case "stop":
		return s.ctrl.Stop(ctx, arg0(args))
	case "read":
		return s.ctrl.ReadSensor(ctx, arg0(args))
	case "status":
		return s.ctrl.ReadStatus(ctx, arg0(args))
	case "monitor":
		return s.ctrl.StartMonitor(ctx, arg0(args))
	case "raw":
		if len(args) != 1 {
			return fmt.Errorf("usage: raw <text>")
		}
		return s.ctrl.Raw(ctx, args[0])
	case "threshold":
		if len(args) != 1 {
			return fmt.Errorf("usage: threshold <mw|off>")
		}
		if args[0] == "off" {
			s.ctrl.PowerManager().Disable(ctx)
			return nil
		}
		mw, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid threshold: %w", err)
		}
		s.ctrl.PowerManager().SetThreshold(mw)
		go s.ctrl.PowerManager().Run(ctx)
		return nil
	case "priority":
		if len(args) != 1 {
			return fmt.Errorf("usage: priority <node|clear>")
		}
		if args[0] == "clear" {
			s.ctrl.PowerManager().ClearPriority()
		} else {
			s.ctrl.PowerManager().SetPriority(args[0])
		}
		return nil
	case "pmstatus":
		fmt.Fprintln(s.rl.Stdout(), s.ctrl.PowerManager().Status())
		return nil
	default:
		return fmt.Errorf("unknown command: %s (type 'help')", cmd)
	}
}

func (s shell) printHelp() {
	fmt.Fprintln(s.rl.Stdout(), `Commands:
  target <node|ALL>        set the default node for commands below
  duty <node|ALL> <pct>    set duty cycle
  ramp <node>              start ramp test
  stop <node>              stop node
  read <node>              request a sensor reading
  status <node>            request node status
  monitor <node>           start continuous monitor mode
  raw <text>               send a raw command frame
  threshold <mw|off>       enable/disable power management
  priority <node|clear>    set or clear the priority node
  pmstatus                 print power manager status
  quit                     exit`)
}

func arg0(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
