package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xXKillerNoobYT/ticketd/internal/model"
	"github.com/xXKillerNoobYT/ticketd/internal/scheduler"
	"github.com/xXKillerNoobYT/ticketd/internal/store"
	"github.com/xXKillerNoobYT/ticketd/internal/uds"
)

// routerTimeout bounds a single model call made on behalf of a UDS
// request.
const routerTimeout = 120 * time.Second

// registerHandlers registers the UDS control commands.
func (d *Daemon) registerHandlers() {
	d.server.Handle("ping", func(req *uds.Request) *uds.Response {
		return uds.SuccessResponse(map[string]string{"status": "ok"})
	})

	d.server.Handle("refresh", func(req *uds.Request) *uds.Response {
		d.sched.Refresh()
		return uds.SuccessResponse(map[string]string{"status": "refreshed"})
	})

	d.server.Handle("shutdown", func(req *uds.Request) *uds.Response {
		d.logger.Infof("shutdown requested via UDS")
		go d.Shutdown()
		return uds.SuccessResponse(map[string]string{"status": "shutdown_accepted"})
	})

	d.server.Handle("status", d.handleStatus)
	d.server.Handle("details", d.handleDetails)
	d.server.Handle("next", d.handleNext)
	d.server.Handle("done", d.handleDone)
	d.server.Handle("ticket_create", d.handleTicketCreate)
	d.server.Handle("plan", d.handlePlan)
	d.server.Handle("verify", d.handleVerify)
	d.server.Handle("answer", d.handleAnswer)
}

func (d *Daemon) handleStatus(req *uds.Request) *uds.Response {
	return uds.SuccessResponse(d.sched.GetQueueStatus())
}

func (d *Daemon) handleDetails(req *uds.Request) *uds.Response {
	return uds.SuccessResponse(d.sched.GetQueueDetails())
}

// NextResult is the payload for the "next" command. Task is null when
// the queue is empty or the pick lost a race.
type NextResult struct {
	Task *scheduler.QueuedTask `json:"task"`
}

func (d *Daemon) handleNext(req *uds.Request) *uds.Response {
	task, err := d.sched.GetNextTask()
	if err != nil {
		return uds.ErrorResponse(uds.ErrCodeInternal, err.Error())
	}
	return uds.SuccessResponse(NextResult{Task: task})
}

// DoneParams is the payload for the "done" command.
type DoneParams struct {
	ID      string `json:"id"`
	Summary string `json:"summary,omitempty"`
}

func (d *Daemon) handleDone(req *uds.Request) *uds.Response {
	var params DoneParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return uds.ErrorResponse(uds.ErrCodeValidation, fmt.Sprintf("invalid params: %v", err))
	}
	if params.ID == "" {
		return uds.ErrorResponse(uds.ErrCodeValidation, "id is required")
	}

	if err := d.sched.ReportTaskDone(params.ID, params.Summary); err != nil {
		return uds.ErrorResponse(uds.ErrCodeInternal, err.Error())
	}
	return uds.SuccessResponse(map[string]string{"status": "done", "id": params.ID})
}

// TicketCreateParams is the payload for the "ticket_create" command.
type TicketCreateParams struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status,omitempty"`
	Type        string `json:"type,omitempty"`
	Priority    int    `json:"priority,omitempty"`
}

func (d *Daemon) handleTicketCreate(req *uds.Request) *uds.Response {
	var params TicketCreateParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return uds.ErrorResponse(uds.ErrCodeValidation, fmt.Sprintf("invalid params: %v", err))
	}
	if params.Title == "" {
		return uds.ErrorResponse(uds.ErrCodeValidation, "title is required")
	}

	ticket, err := d.st.CreateTicket(store.CreateFields{
		Title:       params.Title,
		Description: params.Description,
		Status:      model.Status(params.Status),
		Type:        params.Type,
		Priority:    params.Priority,
	})
	if err != nil {
		return uds.ErrorResponse(uds.ErrCodeInternal, err.Error())
	}
	return uds.SuccessResponse(ticket)
}

func (d *Daemon) handlePlan(req *uds.Request) *uds.Response {
	if d.routers == nil {
		return uds.ErrorResponse(uds.ErrCodeInternal, "language model not configured")
	}
	ctx, cancel := context.WithTimeout(d.ctx, routerTimeout)
	defer cancel()

	plan, err := d.routers.Planning.PlanNext(ctx)
	if err != nil {
		return uds.ErrorResponse(uds.ErrCodeInternal, err.Error())
	}
	if plan == nil {
		return uds.SuccessResponse(map[string]any{"plan": nil})
	}
	return uds.SuccessResponse(map[string]any{"plan": plan})
}

// VerifyParams is the payload for the "verify" command.
type VerifyParams struct {
	ID     string `json:"id"`
	Report string `json:"report"`
}

func (d *Daemon) handleVerify(req *uds.Request) *uds.Response {
	if d.routers == nil {
		return uds.ErrorResponse(uds.ErrCodeInternal, "language model not configured")
	}
	var params VerifyParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return uds.ErrorResponse(uds.ErrCodeValidation, fmt.Sprintf("invalid params: %v", err))
	}
	if params.ID == "" {
		return uds.ErrorResponse(uds.ErrCodeValidation, "id is required")
	}

	ctx, cancel := context.WithTimeout(d.ctx, routerTimeout)
	defer cancel()

	verdict, err := d.routers.Verification.Verify(ctx, params.ID, params.Report)
	if err != nil {
		return uds.ErrorResponse(uds.ErrCodeInternal, err.Error())
	}
	return uds.SuccessResponse(verdict)
}

// AnswerParams is the payload for the "answer" command.
type AnswerParams struct {
	ID string `json:"id"`
}

func (d *Daemon) handleAnswer(req *uds.Request) *uds.Response {
	if d.routers == nil {
		return uds.ErrorResponse(uds.ErrCodeInternal, "language model not configured")
	}
	var params AnswerParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return uds.ErrorResponse(uds.ErrCodeValidation, fmt.Sprintf("invalid params: %v", err))
	}
	if params.ID == "" {
		return uds.ErrorResponse(uds.ErrCodeValidation, "id is required")
	}

	ctx, cancel := context.WithTimeout(d.ctx, routerTimeout)
	defer cancel()

	// One response frame per request, so the answer is delivered whole.
	text, err := d.routers.Answer.Answer(ctx, params.ID, nil)
	if err != nil {
		return uds.ErrorResponse(uds.ErrCodeInternal, err.Error())
	}
	return uds.SuccessResponse(map[string]string{"id": params.ID, "answer": text})
}
