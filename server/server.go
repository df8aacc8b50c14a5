package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/logging"
	"github.com/hupe1980/taskmesh/supervisor"
)

// Options configures a Server.
type Options struct {
	Logger logging.Logger

	// ShutdownTimeout bounds the drain period during graceful shutdown.
	ShutdownTimeout time.Duration
}

// Server is the HTTP surface over a supervisor and its registered agents.
type Server struct {
	addr            string
	sup             *supervisor.Supervisor
	logger          logging.Logger
	shutdownTimeout time.Duration

	// baseCtx owns background task dispatches so they survive the request
	// that created them but not the server itself.
	baseCtx context.Context
}

// New creates a server listening on addr once started.
func New(addr string, sup *supervisor.Supervisor, optFns ...func(o *Options)) *Server {
	opts := Options{
		Logger:          logging.NoOpLogger{},
		ShutdownTimeout: 5 * time.Second,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Server{
		addr:            addr,
		sup:             sup,
		logger:          opts.Logger,
		shutdownTimeout: opts.ShutdownTimeout,
		baseCtx:         context.Background(),
	}
}

// Handler returns the route table. Exposed separately from Start so tests
// and embedders can mount it themselves.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/v1/chat", s.handleChat)
	mux.HandleFunc("POST /api/v1/tasks", s.handleCreateTask)
	mux.HandleFunc("GET /api/v1/tasks", s.handleListTasks)
	mux.HandleFunc("GET /api/v1/tasks/{id}", s.handleGetTask)
	mux.HandleFunc("GET /api/v1/agents", s.handleListAgents)
	return mux
}

// Start serves until ctx is cancelled or the listener fails. On cancellation
// in-flight requests get the shutdown timeout to drain.
func (s *Server) Start(ctx context.Context) error {
	s.baseCtx = ctx

	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	s.logger.Info("server.start", "addr", s.addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		s.logger.Info("server.stop", "addr", s.addr)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// ledgerParams are the RunContext fields shared by chat and task requests.
type ledgerParams struct {
	TenantID       string         `json:"tenant_id,omitempty"`
	UserID         string         `json:"user_id,omitempty"`
	Budget         float64        `json:"budget,omitempty"`
	MaxSteps       int            `json:"max_steps,omitempty"`
	TimeoutSeconds float64        `json:"timeout_seconds,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

func (p ledgerParams) runContext() *core.RunContext {
	tenant := p.TenantID
	if tenant == "" {
		tenant = "default"
	}
	user := p.UserID
	if user == "" {
		user = "anonymous"
	}

	return core.NewRunContext(tenant, user, func(o *core.RunContextOptions) {
		o.Budget = p.Budget
		o.MaxSteps = p.MaxSteps
		if p.TimeoutSeconds > 0 {
			o.Timeout = time.Duration(p.TimeoutSeconds * float64(time.Second))
		}
		o.Metadata = p.Metadata
	})
}

type chatRequest struct {
	Message string `json:"message"`
	AgentID string `json:"agent_id,omitempty"`
	ledgerParams
}

type chatResponse struct {
	Response     string  `json:"response"`
	AgentID      string  `json:"agent_id"`
	RequestID    string  `json:"request_id"`
	TokensUsed   int     `json:"tokens_used"`
	CostIncurred float64 `json:"cost_incurred"`
	StepsTaken   int     `json:"steps_taken"`
}

type taskRequest struct {
	Description string `json:"description"`
	ledgerParams
}

type agentInfo struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Capabilities []string `json:"capabilities,omitempty"`
	Tools        int      `json:"tools"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	agent, status, errMsg := s.resolveAgent(req.AgentID)
	if agent == nil {
		writeError(w, status, errMsg)
		return
	}

	runCtx := req.runContext()
	result, err := agent.Process(r.Context(), req.Message, runCtx)
	if err != nil {
		s.logger.Error("server.chat.failed", "agent", agent.Name(), "request_id", runCtx.RequestID, "error", err.Error())
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.logger.Info("server.chat.handled",
		"agent", agent.Name(),
		"request_id", runCtx.RequestID,
		"tokens", runCtx.TokensUsed,
		"duration_ms", time.Since(started).Milliseconds(),
	)

	writeJSON(w, http.StatusOK, chatResponse{
		Response:     result,
		AgentID:      agent.Name(),
		RequestID:    runCtx.RequestID,
		TokensUsed:   runCtx.TokensUsed,
		CostIncurred: runCtx.CostIncurred,
		StepsTaken:   runCtx.StepsTaken,
	})
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Description == "" {
		writeError(w, http.StatusBadRequest, "description is required")
		return
	}

	task := core.NewTask(req.Description)
	runCtx := req.runContext()

	// Track before dispatch so a poll right after the 202 finds the task.
	s.sup.Track(task)
	go func() {
		if _, err := s.sup.Assign(s.baseCtx, task, runCtx); err != nil {
			s.logger.Warn("server.task.dispatch_failed", "task", task.ID, "error", err.Error())
		}
	}()

	s.logger.Info("server.task.accepted", "task", task.ID, "request_id", runCtx.RequestID)

	tracked, _ := s.sup.Task(task.ID)
	writeJSON(w, http.StatusAccepted, tracked)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, ok := s.sup.Task(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown task")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	status := core.TaskStatus(r.URL.Query().Get("status"))
	switch status {
	case "", core.TaskPending, core.TaskInProgress, core.TaskCompleted, core.TaskFailed, core.TaskCancelled:
	default:
		writeError(w, http.StatusBadRequest, "unknown status filter")
		return
	}
	writeJSON(w, http.StatusOK, s.sup.Tasks(status))
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents := s.sup.Agents()
	infos := make([]agentInfo, 0, len(agents))
	for _, a := range agents {
		info := agentInfo{
			Name:         a.Name(),
			Description:  a.Description(),
			Capabilities: a.Capabilities(),
		}
		if tc, ok := a.(interface{ ToolCount() int }); ok {
			info.Tools = tc.ToolCount()
		}
		infos = append(infos, info)
	}
	writeJSON(w, http.StatusOK, infos)
}

// resolveAgent picks the requested agent, or the first registered one when
// the request names none.
func (s *Server) resolveAgent(name string) (core.Agent, int, string) {
	if name == "" {
		agents := s.sup.Agents()
		if len(agents) == 0 {
			return nil, http.StatusServiceUnavailable, "no agents registered"
		}
		return agents[0], 0, ""
	}

	agent, ok := s.sup.Agent(name)
	if !ok {
		return nil, http.StatusNotFound, "unknown agent "+name
	}
	return agent, 0, ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
