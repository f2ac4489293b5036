package agents

import (
	"context"
	"fmt"
)

const planningSystemPrompt = `You are a senior software engineer drafting an implementation plan for a single ticket.

Produce a short, concrete plan:
- Numbered steps, each a specific change or command.
- Call out files or components likely involved.
- Note any risk worth checking before starting.

Keep it under 300 words. Plain text, no markdown headings.`

// Plan is a drafted implementation plan for one picked task.
type Plan struct {
	TaskID string `json:"task_id"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

// PlanningRouter picks the next task and drafts a plan for it.
type PlanningRouter struct {
	deps
}

// PlanNext atomically claims the next pending task and asks the model
// for an implementation plan. Returns (nil, nil) when the queue is empty
// or the pick lost a race; the caller simply tries again later.
func (r *PlanningRouter) PlanNext(ctx context.Context) (*Plan, error) {
	task, err := r.sched.GetNextTask()
	if err != nil {
		return nil, fmt.Errorf("plan next: %w", err)
	}
	if task == nil {
		return nil, nil
	}

	ticket, err := r.st.GetTicket(task.ID)
	if err != nil || ticket == nil {
		// The pick already succeeded; plan from the queue snapshot.
		r.logger.Warnf("plan_ticket_lookup_failed id=%s error=%v", task.ID, err)
	}

	prompt := "Draft an implementation plan for this ticket:\n\n"
	if ticket != nil {
		prompt += ticketContext(ticket)
	} else {
		prompt += "Title: " + task.Title + "\n"
	}

	body, err := r.lm.Complete(ctx, llmRequest(planningSystemPrompt, prompt))
	if err != nil {
		r.logger.Errorf("plan_completion_failed id=%s error=%v", task.ID, err)
		return nil, fmt.Errorf("draft plan for %s: %w", task.ID, err)
	}

	r.logger.Infof("plan_drafted id=%s title=%q", task.ID, task.Title)
	return &Plan{TaskID: task.ID, Title: task.Title, Body: body}, nil
}
