package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/deepnoodle-ai/callflow/conversation"
	"github.com/deepnoodle-ai/callflow/squad"
	"github.com/fatih/color"
)

func chatCommand(args []string) error {
	var (
		squadID    string
		configFile string
		defsDir    string
		sessionID  string
		verbose    bool
	)
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	fs.StringVar(&squadID, "squad", "", "Squad id (required)")
	fs.StringVar(&configFile, "config", "", "Path to a callflow configuration file")
	fs.StringVar(&defsDir, "defs", "", "Definitions directory with workflows/, agents/ and squads/")
	fs.StringVar(&sessionID, "session", "terminal", "Call session id")
	fs.BoolVar(&verbose, "verbose", false, "Enable verbose logging")
	fs.BoolVar(&verbose, "v", false, "Enable verbose logging (shorthand)")
	fs.Parse(args)

	if squadID == "" {
		fs.Usage()
		return fmt.Errorf("squad is required")
	}
	a, err := newApp(configFile, verbose)
	if err != nil {
		return err
	}
	defer a.close()
	if defsDir != "" {
		a.cfg.Store.Dir = defsDir
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	defs, err := a.definitions(ctx)
	if err != nil {
		return err
	}
	orchestrator, err := squad.New(squad.Options{
		Definitions:    defs,
		Provider:       a.provider,
		Contexts:       conversation.NewStore(a.cfg.Squad.HistoryLimit),
		Callbacks:      &transferPrinter{},
		Logger:         a.logger,
		SummaryWindow:  a.cfg.Squad.SummaryWindow,
		TransferWindow: a.cfg.Squad.TransferWindow,
	})
	if err != nil {
		return err
	}

	color.Cyan("Chatting with squad %s. Commands: /status, /end", squadID)
	prompt := color.New(color.FgBlue, color.Bold)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		prompt.Print("you> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/status":
			if status, ok := orchestrator.SessionStatus(sessionID); ok {
				printJSON(status)
			} else {
				color.Yellow("No active session")
			}
			continue
		case "/end", "/quit":
			return endChat(ctx, orchestrator, sessionID)
		}

		reply, err := orchestrator.ProcessMessage(ctx, squadID, line, sessionID)
		if err != nil {
			color.Red("Error: %v", err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		status, _ := orchestrator.SessionStatus(sessionID)
		color.New(color.FgGreen, color.Bold).Printf("%s> ", status.ActiveAgentID)
		fmt.Println(reply)
	}
	return endChat(context.WithoutCancel(ctx), orchestrator, sessionID)
}

func endChat(ctx context.Context, orchestrator *squad.Orchestrator, sessionID string) error {
	summary, err := orchestrator.EndSession(ctx, sessionID)
	if errors.Is(err, squad.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	color.Magenta("Summary: %s", summary)
	return nil
}

// transferPrinter announces transfers between agents.
type transferPrinter struct {
	squad.BaseCallbacks
}

func (p *transferPrinter) OnAssistantTransferred(ctx context.Context, event *squad.TransferEvent) {
	color.Yellow("[transferred from %s to %s: %s]",
		event.Transfer.FromAgentID, event.Transfer.ToAgentID, event.Transfer.Reason)
}
