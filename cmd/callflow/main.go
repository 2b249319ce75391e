package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	var err error
	switch os.Args[1] {
	case "run":
		err = runCommand(os.Args[2:])
	case "chat":
		err = chatCommand(os.Args[2:])
	case "serve":
		err = serveCommand(os.Args[2:])
	case "-h", "-help", "--help", "help":
		usage()
		return
	default:
		color.Red("Error: unknown command %q", os.Args[1])
		usage()
		os.Exit(2)
	}
	if err != nil {
		if !errors.Is(err, errReported) {
			color.Red("Error: %v", err)
		}
		os.Exit(1)
	}
}

// errReported fails a command whose error was already shown.
var errReported = errors.New("failed")

func usage() {
	fmt.Fprintf(os.Stderr, `callflow - run conversation workflows and agent squads

Usage:
  %[1]s run   -file <workflow.yaml> [options]   Execute a workflow once
  %[1]s chat  -squad <id> [options]             Talk to a squad on the terminal
  %[1]s serve [options]                         Serve squads over WebSocket with metrics

Run "%[1]s <command> -h" for the options of a command.
`, os.Args[0])
}
