package agents

import (
	"context"
	"encoding/json"
	"fmt"
)

const verificationSystemPrompt = `You are reviewing whether a completed ticket actually satisfies what it asked for.

You will receive the ticket and a report of the work done. Judge strictly: pass only when the report plausibly covers everything the ticket requires.

Return your answer as JSON with this exact structure:
{
  "pass": true,
  "summary": "<one or two sentences on what was verified or what is missing>"
}

Return ONLY the JSON object. No markdown fences, no commentary outside the JSON.`

// Verdict is the outcome of verifying one ticket's reported work.
type Verdict struct {
	TaskID  string `json:"task_id"`
	Pass    bool   `json:"pass"`
	Summary string `json:"summary"`
}

// VerificationRouter judges reported work and closes passing tickets.
type VerificationRouter struct {
	deps
}

// Verify asks the model whether the report satisfies the ticket. A
// passing verdict marks the ticket done through the scheduler; a failing
// one leaves it untouched for rework.
func (r *VerificationRouter) Verify(ctx context.Context, id, report string) (*Verdict, error) {
	ticket, err := r.st.GetTicket(id)
	if err != nil {
		r.logger.Errorf("verify_ticket_lookup_failed id=%s error=%v", id, err)
		return nil, fmt.Errorf("verify %s: ticket lookup failed", id)
	}
	if ticket == nil {
		return nil, fmt.Errorf("verify %s: ticket not found", id)
	}

	prompt := fmt.Sprintf("## Ticket\n\n%s\n## Work report\n\n%s\n", ticketContext(ticket), report)
	raw, err := r.lm.Complete(ctx, llmRequest(verificationSystemPrompt, prompt))
	if err != nil {
		r.logger.Errorf("verify_completion_failed id=%s error=%v", id, err)
		return nil, fmt.Errorf("verify %s: %w", id, err)
	}

	var parsed struct {
		Pass    bool   `json:"pass"`
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal([]byte(stripJSONFences(raw)), &parsed); err != nil {
		return nil, fmt.Errorf("verify %s: parse verdict: %w", id, err)
	}

	verdict := &Verdict{TaskID: id, Pass: parsed.Pass, Summary: parsed.Summary}
	if !verdict.Pass {
		r.logger.Warnf("verify_failed id=%s summary=%q", id, verdict.Summary)
		return verdict, nil
	}

	if err := r.sched.ReportTaskDone(id, verdict.Summary); err != nil {
		return nil, fmt.Errorf("verify %s: %w", id, err)
	}
	r.logger.Infof("verify_passed id=%s", id)
	return verdict, nil
}
