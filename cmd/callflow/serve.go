package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/deepnoodle-ai/callflow"
	"github.com/deepnoodle-ai/callflow/conversation"
	"github.com/deepnoodle-ai/callflow/gateway"
	"github.com/deepnoodle-ai/callflow/llm"
	"github.com/deepnoodle-ai/callflow/squad"
	"github.com/deepnoodle-ai/callflow/store"
	"github.com/deepnoodle-ai/callflow/telemetry"
	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
)

func serveCommand(args []string) error {
	var (
		configFile string
		addr       string
		squadID    string
		mcpServers stringSlice
		verbose    bool
	)
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	fs.StringVar(&configFile, "config", "", "Path to a callflow configuration file")
	fs.StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	fs.StringVar(&squadID, "squad", "", "Squad used when a client does not name one")
	fs.Var(&mcpServers, "mcp", "MCP server as name=command, available to workflows (can be repeated)")
	fs.BoolVar(&verbose, "verbose", false, "Enable verbose logging")
	fs.BoolVar(&verbose, "v", false, "Enable verbose logging (shorthand)")
	fs.Parse(args)

	a, err := newApp(configFile, verbose)
	if err != nil {
		return err
	}
	defer a.close()
	if addr != "" {
		a.cfg.Server.Addr = addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	defs, err := a.definitions(ctx)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	collector := telemetry.NewCollector(telemetry.DefaultNamespace, registry)
	tracer := telemetry.NewTracer(nil)

	orchestrator, err := squad.New(squad.Options{
		Definitions:    defs,
		Provider:       a.provider,
		Contexts:       conversation.NewStore(a.cfg.Squad.HistoryLimit),
		Callbacks:      squad.NewCallbackChain(collector, tracer),
		Logger:         a.logger,
		SummaryWindow:  a.cfg.Squad.SummaryWindow,
		TransferWindow: a.cfg.Squad.TransferWindow,
	})
	if err != nil {
		return err
	}
	engine, err := a.engine(ctx, mcpServers, callflow.NewCallbackChain(collector, tracer), nil)
	if err != nil {
		return err
	}
	gw, err := gateway.New(gateway.Options{
		Orchestrator:   orchestrator,
		DefaultSquadID: squadID,
		Logger:         a.logger,
	})
	if err != nil {
		return err
	}

	api := &api{engine: engine, definitions: defs, orchestrator: orchestrator}
	mux := http.NewServeMux()
	mux.Handle("/ws", gw)
	mux.Handle(a.cfg.Server.MetricsPath, telemetry.Handler(registry))
	mux.HandleFunc("GET /sessions", api.sessions)
	mux.HandleFunc("GET /executions", api.listExecutions)
	mux.HandleFunc("POST /executions", api.execute)
	mux.HandleFunc("GET /executions/live", api.liveExecutions)
	mux.HandleFunc("GET /executions/{id}", api.executionStatus)
	mux.HandleFunc("POST /executions/{id}/{action}", api.control)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": gw.ActiveSessions()})
	})

	server := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errs := make(chan error, 1)
	go func() {
		errs <- server.ListenAndServe()
	}()
	color.Green("Listening on %s", a.cfg.Server.Addr)
	a.logger.Info("server started", "addr", a.cfg.Server.Addr, "metrics", a.cfg.Server.MetricsPath)

	select {
	case err := <-errs:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	gw.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// api serves the JSON endpoints next to the WebSocket gateway.
type api struct {
	engine       *callflow.Engine
	definitions  store.Store
	orchestrator *squad.Orchestrator
}

type executeRequest struct {
	WorkflowID string         `json:"workflow_id"`
	SessionID  string         `json:"session_id"`
	Variables  map[string]any `json:"variables"`
	Messages   []llm.Message  `json:"messages"`
}

type executeResponse struct {
	*callflow.ExecutionResult
	Error string `json:"error,omitempty"`
}

func (s *api) execute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.WorkflowID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "workflow_id is required"})
		return
	}
	wf, err := s.definitions.LoadWorkflow(r.Context(), req.WorkflowID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, callflow.ErrDefinitionNotFound) {
			status = http.StatusNotFound
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = gateway.NewCallSessionID()
	}
	session := &callflow.Session{ID: sessionID, Messages: req.Messages}
	result, err := s.engine.ExecuteWorkflow(r.Context(), wf, session, callflow.ExecuteOptions{
		Variables: req.Variables,
	})
	if result == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	resp := executeResponse{ExecutionResult: result}
	status := http.StatusOK
	if err != nil {
		resp.Error = err.Error()
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, resp)
}

func (s *api) listExecutions(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.engine.ListExecutions(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *api) liveExecutions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Executions())
}

func (s *api) executionStatus(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.engine.Status(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// control pauses, resumes or stops a live execution.
func (s *api) control(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var err error
	switch r.PathValue("action") {
	case "pause":
		err = s.engine.Pause(id)
	case "resume":
		err = s.engine.Resume(id)
	case "stop":
		if !s.engine.Stop(id) {
			err = callflow.ErrExecutionNotFound
		}
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown action"})
		return
	}
	if err != nil {
		status := http.StatusConflict
		if errors.Is(err, callflow.ErrExecutionNotFound) {
			status = http.StatusNotFound
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"execution_id": id, "action": r.PathValue("action")})
}

func (s *api) sessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orchestrator.Sessions())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
