// Package agents implements the role-specific routers that consume the
// scheduler's public contract: Planning drafts implementation plans for
// picked tasks, Verification judges completed work, and Answer streams
// replies to question tickets.
package agents

import (
	"strings"

	"github.com/xXKillerNoobYT/ticketd/internal/llm"
	"github.com/xXKillerNoobYT/ticketd/internal/logging"
	"github.com/xXKillerNoobYT/ticketd/internal/model"
	"github.com/xXKillerNoobYT/ticketd/internal/scheduler"
	"github.com/xXKillerNoobYT/ticketd/internal/store"
)

// deps is the shared wiring for all routers.
type deps struct {
	sched  *scheduler.Scheduler
	st     store.Store
	lm     llm.Client
	logger *logging.Logger
}

// Routers bundles the three role facades built over one scheduler.
type Routers struct {
	Planning     *PlanningRouter
	Verification *VerificationRouter
	Answer       *AnswerRouter
}

// NewRouters constructs the full router set.
func NewRouters(sched *scheduler.Scheduler, st store.Store, lm llm.Client, logger *logging.Logger) *Routers {
	return &Routers{
		Planning:     &PlanningRouter{deps{sched, st, lm, logger.WithComponent("planning")}},
		Verification: &VerificationRouter{deps{sched, st, lm, logger.WithComponent("verification")}},
		Answer:       &AnswerRouter{deps{sched, st, lm, logger.WithComponent("answer")}},
	}
}

func llmRequest(system, prompt string) llm.Request {
	return llm.Request{System: system, Prompt: prompt}
}

// ticketContext renders the ticket fields a prompt needs.
func ticketContext(t *model.Ticket) string {
	var b strings.Builder
	b.WriteString("Title: " + t.Title + "\n")
	if t.Description != "" {
		b.WriteString("Description: " + t.Description + "\n")
	}
	b.WriteString("Status: " + string(t.Status) + "\n")
	return b.String()
}

// stripJSONFences removes markdown code fences models sometimes add
// around JSON answers.
func stripJSONFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		}
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	return s
}
