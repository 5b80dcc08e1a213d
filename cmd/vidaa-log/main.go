// Command vidaa-log views and analyzes protocol trace files.
//
// Trace files are created by running vidaa-remote with the -protocol-log
// flag.
//
// Usage:
//
//	vidaa-log <command> [flags] <file.vlog>
//
// Commands:
//
//	view     View a trace in human-readable format
//	stats    Show statistics about a trace
//
// Examples:
//
//	# View all events
//	vidaa-log view session.vlog
//
//	# View only inbound messages
//	vidaa-log view -direction in session.vlog
//
//	# View a single topic
//	vidaa-log view -topic /remoteapp/mobile/broadcast/ui_service/state session.vlog
//
//	# Show statistics
//	vidaa-log stats session.vlog
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/enbacode/better-hisense-tv/pkg/log"
)

const usage = `vidaa-log - protocol trace analyzer

Usage:
  vidaa-log <command> [flags] <file.vlog>

Commands:
  view     View a trace in human-readable format
  stats    Show statistics about a trace

Use "vidaa-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	switch cmd := os.Args[1]; cmd {
	case "view":
		runView(os.Args[2:])
	case "stats":
		runStats(os.Args[2:])
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

func runView(args []string) {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	direction := fs.String("direction", "", "Filter by direction (in, out)")
	category := fs.String("category", "", "Filter by category (connect, message, state, error)")
	topic := fs.String("topic", "", "Filter message events by exact topic")
	sessionID := fs.String("session", "", "Filter by transport session ID")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: vidaa-log view [flags] <file.vlog>")
		os.Exit(1)
	}

	filter := log.Filter{SessionID: *sessionID, Topic: *topic}
	if *direction != "" {
		d, err := parseDirection(*direction)
		if err != nil {
			fatal(err)
		}
		filter.Direction = &d
	}
	if *category != "" {
		c, err := parseCategory(*category)
		if err != nil {
			fatal(err)
		}
		filter.Category = &c
	}

	reader, err := log.NewFilteredReader(fs.Arg(0), filter)
	if err != nil {
		fatal(err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			return
		}
		if err != nil {
			fatal(fmt.Errorf("failed to read event: %w", err))
		}
		printEvent(event)
	}
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: vidaa-log stats <file.vlog>")
		os.Exit(1)
	}

	reader, err := log.NewReader(fs.Arg(0))
	if err != nil {
		fatal(err)
	}
	defer reader.Close()

	total := 0
	byCategory := make(map[log.Category]int)
	byTopic := make(map[string]int)
	sessions := make(map[string]struct{})

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			fatal(fmt.Errorf("failed to read event: %w", err))
		}
		total++
		byCategory[event.Category]++
		sessions[event.SessionID] = struct{}{}
		if event.Message != nil {
			byTopic[event.Message.Topic]++
		}
	}

	fmt.Printf("Events:   %d\n", total)
	fmt.Printf("Sessions: %d\n", len(sessions))
	for _, c := range []log.Category{log.CategoryConnect, log.CategoryMessage, log.CategoryState, log.CategoryError} {
		fmt.Printf("  %-8s %d\n", c.String(), byCategory[c])
	}
	if len(byTopic) > 0 {
		fmt.Println("Topics:")
		for topic, n := range byTopic {
			fmt.Printf("  %5d  %s\n", n, topic)
		}
	}
}

func printEvent(event log.Event) {
	ts := event.Timestamp.Format("15:04:05.000")
	switch {
	case event.Connect != nil:
		verb := "connect"
		if event.Connect.Disconnect {
			verb = "disconnect"
		}
		fmt.Printf("%s %s %s %s (%s)\n", ts, event.Direction, verb, event.RemoteAddr, event.Connect.CredentialKind)
	case event.Message != nil:
		fmt.Printf("%s %s %s %s\n", ts, event.Direction, event.Message.Topic, event.Message.Payload)
	case event.StateChange != nil:
		sc := event.StateChange
		fmt.Printf("%s -- %s %s -> %s %s\n", ts, sc.Entity, sc.OldState, sc.NewState, sc.Reason)
	case event.Error != nil:
		fmt.Printf("%s !! %s: %s\n", ts, event.Error.Context, event.Error.Message)
	default:
		fmt.Printf("%s %s %s\n", ts, event.Direction, event.Category)
	}
}

func parseDirection(s string) (log.Direction, error) {
	switch s {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	default:
		return 0, fmt.Errorf("unknown direction %q (want in or out)", s)
	}
}

func parseCategory(s string) (log.Category, error) {
	switch s {
	case "connect":
		return log.CategoryConnect, nil
	case "message":
		return log.CategoryMessage, nil
	case "state":
		return log.CategoryState, nil
	case "error":
		return log.CategoryError, nil
	default:
		return 0, fmt.Errorf("unknown category %q", s)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
