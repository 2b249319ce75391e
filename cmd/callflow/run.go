package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/deepnoodle-ai/callflow"
	"github.com/deepnoodle-ai/callflow/llm"
	"github.com/fatih/color"
)

type runConfig struct {
	WorkflowFile  string
	ConfigFile    string
	Inputs        stringSlice
	Utterances    stringSlice
	MCPServers    stringSlice
	SessionID     string
	ExecutionsDir string
	LogsDir       string
	RestoreFrom   string
	Timeout       time.Duration
	Verbose       bool
	JSON          bool
	ShowInputs    bool
}

func runCommand(args []string) error {
	var rc runConfig
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	fs.StringVar(&rc.WorkflowFile, "file", "", "Path to the YAML workflow definition file (required)")
	fs.StringVar(&rc.WorkflowFile, "f", "", "Path to the YAML workflow definition file (shorthand)")
	fs.StringVar(&rc.ConfigFile, "config", "", "Path to a callflow configuration file")
	fs.Var(&rc.Inputs, "input", "Initial variable in format key=value (repeatable)")
	fs.Var(&rc.Inputs, "i", "Initial variable in format key=value (shorthand)")
	fs.Var(&rc.Utterances, "say", "User message of the conversation so far (repeatable)")
	fs.Var(&rc.MCPServers, "mcp", "MCP server providing tools, as name=command (repeatable)")
	fs.StringVar(&rc.SessionID, "session", "cli", "Call session id")
	fs.StringVar(&rc.ExecutionsDir, "executions", "", "Directory to store execution checkpoints")
	fs.StringVar(&rc.LogsDir, "logs", "", "Directory to store node logs")
	fs.StringVar(&rc.RestoreFrom, "restore", "", "Continue a stopped execution by id")
	fs.DurationVar(&rc.Timeout, "timeout", 0, "Execution timeout (e.g., 30s, 5m)")
	fs.BoolVar(&rc.Verbose, "verbose", false, "Enable verbose logging")
	fs.BoolVar(&rc.Verbose, "v", false, "Enable verbose logging (shorthand)")
	fs.BoolVar(&rc.JSON, "json", false, "Output the execution result as JSON")
	fs.BoolVar(&rc.ShowInputs, "show-inputs", false, "Show the workflow variables and exit")
	fs.Parse(args)

	if rc.WorkflowFile == "" {
		fs.Usage()
		return fmt.Errorf("workflow file is required")
	}
	if _, err := os.Stat(rc.WorkflowFile); os.IsNotExist(err) {
		return fmt.Errorf("workflow file '%s' not found", rc.WorkflowFile)
	}
	wf, err := callflow.LoadFile(rc.WorkflowFile)
	if err != nil {
		return fmt.Errorf("failed to load workflow: %w", err)
	}
	color.Cyan("Workflow: %s", wf.Name())
	if wf.Description() != "" {
		color.White("Description: %s", wf.Description())
	}
	if rc.ShowInputs {
		showWorkflowVariables(wf)
		return nil
	}
	inputs, err := parseInputs(rc.Inputs)
	if err != nil {
		return err
	}

	a, err := newApp(rc.ConfigFile, rc.Verbose)
	if err != nil {
		return err
	}
	defer a.close()
	if rc.ExecutionsDir != "" {
		a.cfg.Engine.CheckpointDir = rc.ExecutionsDir
		color.Blue("Checkpoints: %s", rc.ExecutionsDir)
	}
	if rc.LogsDir != "" {
		a.cfg.Engine.NodeLogDir = rc.LogsDir
		color.Blue("Node logs: %s", rc.LogsDir)
	}

	ctx := context.Background()
	if rc.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rc.Timeout)
		defer cancel()
		color.Yellow("Timeout: %v", rc.Timeout)
	}

	var formatter callflow.WorkflowFormatter
	if !rc.JSON {
		formatter = newColorFormatter()
	}
	engine, err := a.engine(ctx, rc.MCPServers, nil, formatter)
	if err != nil {
		return err
	}

	session := &callflow.Session{ID: rc.SessionID}
	for _, utterance := range rc.Utterances {
		session.Messages = append(session.Messages, llm.Message{Role: llm.RoleUser, Content: utterance})
	}
	result, runErr := engine.ExecuteWorkflow(ctx, wf, session, callflow.ExecuteOptions{
		Variables:   inputs,
		RestoreFrom: rc.RestoreFrom,
	})
	showExecutionResult(result, runErr, rc.JSON)
	if runErr != nil {
		return errReported
	}
	return nil
}

func showWorkflowVariables(wf *callflow.Workflow) {
	variables := wf.Variables()
	if len(variables) == 0 {
		color.Blue("No variables declared")
		return
	}
	color.Blue("Workflow variables:")
	for _, v := range variables {
		defaultValue := ""
		if v.Default != nil {
			if data, err := json.Marshal(v.Default); err == nil {
				defaultValue = fmt.Sprintf(" [default: %s]", data)
			}
		}
		fmt.Printf("  %s%s\n", v.Name, defaultValue)
		if v.Description != "" {
			fmt.Printf("    %s\n", v.Description)
		}
	}
}

func showExecutionResult(result *callflow.ExecutionResult, err error, asJSON bool) {
	if asJSON {
		out := map[string]any{"execution": result}
		if err != nil {
			out["error"] = err.Error()
		}
		printJSON(out)
		return
	}
	if result == nil {
		color.Red("Error: %v", err)
		return
	}
	fmt.Println()
	color.White("Execution %s finished in %v", result.ExecutionID, result.Elapsed.Round(time.Millisecond))
	color.White("Visited: %v", result.Visited)
	if err != nil {
		color.Red("Error: %v", err)
	} else {
		color.Green("Execution successful!")
	}
	if result.Result != nil && result.Result.Transfer != nil {
		color.Magenta("Transfer to %s", result.Result.Transfer.Destination)
	}
	if len(result.Variables) > 0 {
		color.Magenta("Variables:")
		for key, value := range result.Variables {
			if data, err := json.Marshal(value); err == nil {
				fmt.Printf("  %s: %s\n", key, data)
			} else {
				fmt.Printf("  %s: %v\n", key, value)
			}
		}
	}
}
