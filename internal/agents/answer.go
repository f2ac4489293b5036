package agents

import (
	"context"
	"fmt"
)

const answerSystemPrompt = `You are answering a question raised as a ticket in a software project.

Answer directly and concretely. If the question cannot be answered from the ticket alone, say what information is missing instead of guessing.`

// AnswerRouter streams model answers for question tickets.
type AnswerRouter struct {
	deps
}

// Answer streams a reply for the ticket's question, forwarding deltas to
// onDelta as they arrive, and returns the full assembled text.
func (r *AnswerRouter) Answer(ctx context.Context, id string, onDelta func(text string)) (string, error) {
	ticket, err := r.st.GetTicket(id)
	if err != nil {
		r.logger.Errorf("answer_ticket_lookup_failed id=%s error=%v", id, err)
		return "", fmt.Errorf("answer %s: ticket lookup failed", id)
	}
	if ticket == nil {
		return "", fmt.Errorf("answer %s: ticket not found", id)
	}

	text, err := r.lm.Stream(ctx, llmRequest(answerSystemPrompt, ticketContext(ticket)), onDelta)
	if err != nil {
		r.logger.Errorf("answer_stream_failed id=%s error=%v", id, err)
		return "", fmt.Errorf("answer %s: %w", id, err)
	}

	r.logger.Infof("answered id=%s chars=%d", id, len(text))
	return text, nil
}
