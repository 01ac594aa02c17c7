package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/quarrylabs/warden/agent"
	"github.com/quarrylabs/warden/guard"
	"github.com/quarrylabs/warden/llm"
	"github.com/quarrylabs/warden/tools"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the HTTP daemon: task queue plus approval endpoints",
	RunE: func(cmd *cobra.Command, _ []string) error {
		log := newLogger()

		registry := registryFromViper(log)
		g := guardFromViper(log, registry)
		if g != nil {
			defer g.Close()
		}

		client, model, err := llmClientFromViper(cmd.Context())
		if err != nil {
			return err
		}

		viper.SetDefault("daemon.addr", "127.0.0.1:8710")
		viper.SetDefault("daemon.max_queue", 100)
		viper.SetDefault("agent.max_steps", 20)

		d := &daemon{
			log:      log,
			guard:    g,
			registry: registry,
			client:   client,
			model:    model,
			store:    NewTaskStore(viper.GetInt("daemon.max_queue")),
		}
		defer d.store.Close()

		go d.worker(cmd.Context())

		srv := &http.Server{
			Addr:              viper.GetString("daemon.addr"),
			Handler:           d.routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			log.Info("daemon_listening", "addr", srv.Addr)
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
			log.Info("daemon_shutdown")
			shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutCtx)
		}
	},
}

type daemon struct {
	log      *slog.Logger
	guard    *guard.Guard
	registry *tools.Registry
	client   llm.Client
	model    string
	store    *TaskStore
}

func (d *daemon) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/tasks", d.handleSubmitTask)
	mux.HandleFunc("GET /v1/tasks", d.handleListTasks)
	mux.HandleFunc("GET /v1/tasks/{id}", d.handleGetTask)
	mux.HandleFunc("GET /v1/approvals", d.handleListApprovals)
	mux.HandleFunc("POST /v1/approvals/{id}/approve", d.handleApprove)
	mux.HandleFunc("POST /v1/approvals/{id}/reject", d.handleReject)
	return mux
}

func (d *daemon) worker(ctx context.Context) {
	for {
		qt, ok := d.store.Next()
		if !ok {
			return
		}
		d.runTask(ctx, qt)
	}
}

func (d *daemon) runTask(_ context.Context, qt *queuedTask) {
	info := qt.info
	now := time.Now()
	d.store.Update(info.ID, func(i *TaskInfo) {
		i.Status = TaskRunning
		i.StartedAt = &now
	})

	model := info.Model
	if strings.TrimSpace(model) == "" {
		model = d.model
	}
	engine := agent.New(d.client, d.registry, d.guard,
		agent.WithLogger(d.log),
		agent.WithModel(model),
		agent.WithMaxSteps(viper.GetInt("agent.max_steps")),
	)

	final, _, err := engine.Run(qt.ctx, info.Task, agent.RunOptions{
		RunID:   info.ID,
		Channel: "daemon",
	})

	finished := time.Now()
	switch {
	case err != nil:
		d.store.Update(info.ID, func(i *TaskInfo) {
			if qt.ctx.Err() != nil && errors.Is(qt.ctx.Err(), context.Canceled) {
				i.Status = TaskCanceled
			} else {
				i.Status = TaskFailed
			}
			i.Error = err.Error()
			i.FinishedAt = &finished
		})
	case final.Pending:
		pending, _ := final.Output.(agent.PendingOutput)
		d.store.Update(info.ID, func(i *TaskInfo) {
			i.Status = TaskPending
			i.PendingAt = &finished
			i.ApprovalRequestID = pending.ApprovalRequestID
		})
	default:
		d.store.Update(info.ID, func(i *TaskInfo) {
			i.Status = TaskDone
			i.Result = final.Output
			i.FinishedAt = &finished
		})
	}
}

func (d *daemon) handleSubmitTask(w http.ResponseWriter, r *http.Request) {
	var req SubmitTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	task := strings.TrimSpace(req.Task)
	if task == "" {
		httpError(w, http.StatusBadRequest, "missing task")
		return
	}
	var timeout time.Duration
	if strings.TrimSpace(req.Timeout) != "" {
		var err error
		timeout, err = time.ParseDuration(req.Timeout)
		if err != nil {
			httpError(w, http.StatusBadRequest, fmt.Sprintf("invalid timeout: %v", err))
			return
		}
	}

	info, err := d.store.Enqueue(context.Background(), task, strings.TrimSpace(req.Model), timeout)
	if err != nil {
		httpError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, SubmitTaskResponse{ID: info.ID, Status: info.Status})
}

func (d *daemon) handleListTasks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, d.store.List())
}

func (d *daemon) handleGetTask(w http.ResponseWriter, r *http.Request) {
	info, ok := d.store.Get(r.PathValue("id"))
	if !ok {
		httpError(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (d *daemon) handleListApprovals(w http.ResponseWriter, r *http.Request) {
	if d.guard == nil {
		writeJSON(w, http.StatusOK, []guard.ApprovalRequest{})
		return
	}
	writeJSON(w, http.StatusOK, d.guard.PendingApprovals(r.Context()))
}

func (d *daemon) handleApprove(w http.ResponseWriter, r *http.Request) {
	d.resolveApproval(w, r, true)
}

func (d *daemon) handleReject(w http.ResponseWriter, r *http.Request) {
	d.resolveApproval(w, r, false)
}

func (d *daemon) resolveApproval(w http.ResponseWriter, r *http.Request, approve bool) {
	if d.guard == nil {
		httpError(w, http.StatusConflict, "guard is disabled")
		return
	}
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		httpError(w, http.StatusBadRequest, "missing approval id")
		return
	}

	var req resolveApprovalRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	by := strings.TrimSpace(req.By)
	if by == "" {
		by = "daemon-api"
	}

	var res guard.ToolResult
	if approve {
		res = d.guard.ApproveAction(r.Context(), id, by)
	} else {
		res = d.guard.RejectAction(r.Context(), id, by)
	}

	if taskID, ok := d.store.ResolvePendingByApprovalID(id, res.Success, res.Data, res.Error); ok {
		d.log.Info("task_resolved_by_approval", "task_id", taskID, "approval_id", id, "approved", approve)
	}
	writeJSON(w, http.StatusOK, res)
}

func httpError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
