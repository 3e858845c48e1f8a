// Command meshgw-log views and summarizes the CBOR protocol logs produced
// by -protocol-log on meshgw/meshgw-tui/meshgw-web.
//
// Usage:
//
//	meshgw-log view [flags] <file.mlog>
//	meshgw-log stats <file.mlog>
//
// Flags for view:
//
//	-layer <transport|notify|gateway>
//	-direction <in|out>
//	-category <message|state|error>
//	-node <id>
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mash-protocol/meshgw/pkg/log"
)

const usage = `meshgw-log - protocol log analyzer

Usage:
  meshgw-log view [flags] <file.mlog>
  meshgw-log stats <file.mlog>

Use "meshgw-log <command> -help" for flag details.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd, args := os.Args[1], os.Args[2:]
	var err error
	switch cmd {
	case "view":
		err = runView(args)
	case "stats":
		err = runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n%s", cmd, usage)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "meshgw-log: %v\n", err)
		os.Exit(1)
	}
}

func runView(args []string) error {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	layerFlag := fs.String("layer", "", "filter by layer (transport, notify, gateway)")
	dirFlag := fs.String("direction", "", "filter by direction (in, out)")
	catFlag := fs.String("category", "", "filter by category (message, state, error)")
	nodeFlag := fs.String("node", "", "filter by node ID")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("log file path required")
	}

	filter := log.Filter{NodeID: *nodeFlag}
	if *layerFlag != "" {
		l, err := parseLayer(*layerFlag)
		if err != nil {
			return err
		}
		filter.Layer = &l
	}
	if *dirFlag != "" {
		d, err := parseDirection(*dirFlag)
		if err != nil {
			return err
		}
		filter.Direction = &d
	}
	if *catFlag != "" {
		c, err := parseCategory(*catFlag)
		if err != nil {
			return err
		}
		filter.Category = &c
	}

	reader, err := log.NewFilteredReader(fs.Arg(0), filter)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read event: %w", err)
		}
		formatEvent(os.Stdout, event)
	}
}

func runStats(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("log file path required")
	}

	reader, err := log.NewReader(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer reader.Close()

	var total int
	byLayer := map[log.Layer]int{}
	byCategory := map[log.Category]int{}
	byKind := map[log.MessageKind]int{}
	conns := map[string]struct{}{}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read event: %w", err)
		}
		total++
		byLayer[event.Layer]++
		byCategory[event.Category]++
		if event.Message != nil {
			byKind[event.Message.Kind]++
		}
		if event.ConnectionID != "" {
			conns[event.ConnectionID] = struct{}{}
		}
	}

	fmt.Printf("Events: %d\n", total)
	fmt.Printf("Connections: %d\n", len(conns))
	fmt.Println("By layer:")
	for l := log.LayerTransport; l <= log.LayerGateway; l++ {
		if n := byLayer[l]; n > 0 {
			fmt.Printf("  %-10s %d\n", l, n)
		}
	}
	fmt.Println("By category:")
	for c := log.CategoryMessage; c <= log.CategoryError; c++ {
		if n := byCategory[c]; n > 0 {
			fmt.Printf("  %-10s %d\n", c, n)
		}
	}
	if len(byKind) > 0 {
		fmt.Println("By message kind:")
		for k := log.MessageKindCommand; k <= log.MessageKindRaw; k++ {
			if n := byKind[k]; n > 0 {
				fmt.Printf("  %-15s %d\n", k, n)
			}
		}
	}
	return nil
}

func formatEvent(w io.Writer, e log.Event) {
	ts := e.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")
	connID := e.ConnectionID
	if len(connID) > 8 {
		connID = connID[:8]
	}
	fmt.Fprintf(w, "%s [conn:%s] %-3s %-10s %s", ts, connID, e.Direction, e.Layer, e.Category)
	if e.NodeID != "" {
		fmt.Fprintf(w, " node=%s", e.NodeID)
	}
	fmt.Fprintln(w)

	switch {
	case e.Frame != nil:
		fmt.Fprintf(w, "  size=%d continuation=%v truncated=%v\n", e.Frame.Size, e.Frame.Continuation, e.Frame.Truncated)
	case e.Message != nil:
		m := e.Message
		fmt.Fprintf(w, "  kind=%s", m.Kind)
		if m.Verb != "" {
			fmt.Fprintf(w, " verb=%s value=%s", m.Verb, m.Value)
		}
		if m.Duty != nil {
			fmt.Fprintf(w, " duty=%d%% v=%.2fV i=%.1fmA p=%.0fmW", *m.Duty, *m.Voltage, *m.Current, *m.Power)
		}
		fmt.Fprintln(w)
		if m.Raw != "" {
			fmt.Fprintf(w, "  raw=%q\n", m.Raw)
		}
	case e.StateChange != nil:
		s := e.StateChange
		if s.OldState != "" {
			fmt.Fprintf(w, "  %s: %s -> %s\n", s.Entity, s.OldState, s.NewState)
		} else {
			fmt.Fprintf(w, "  %s: -> %s\n", s.Entity, s.NewState)
		}
		if s.Reason != "" {
			fmt.Fprintf(w, "  reason=%s\n", s.Reason)
		}
	case e.Error != nil:
		fmt.Fprintf(w, "  layer=%s message=%s", e.Error.Layer, e.Error.Message)
		if e.Error.Context != "" {
			fmt.Fprintf(w, " context=%s", e.Error.Context)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w)
}

func parseLayer(s string) (log.Layer, error) {
	switch strings.ToLower(s) {
	case "transport":
		return log.LayerTransport, nil
	case "notify":
		return log.LayerNotify, nil
	case "gateway":
		return log.LayerGateway, nil
	default:
		return 0, fmt.Errorf("invalid layer: %s (must be transport, notify, or gateway)", s)
	}
}

func parseDirection(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	default:
		return 0, fmt.Errorf("invalid direction: %s (must be in or out)", s)
	}
}

func parseCategory(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "message":
		return log.CategoryMessage, nil
	case "state":
		return log.CategoryState, nil
	case "error":
		return log.CategoryError, nil
	default:
		return 0, fmt.Errorf("invalid category: %s (must be message, state, or error)", s)
	}
}
