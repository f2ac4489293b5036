package agents

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xXKillerNoobYT/ticketd/internal/events"
	"github.com/xXKillerNoobYT/ticketd/internal/llm"
	"github.com/xXKillerNoobYT/ticketd/internal/logging"
	"github.com/xXKillerNoobYT/ticketd/internal/model"
	"github.com/xXKillerNoobYT/ticketd/internal/scheduler"
	"github.com/xXKillerNoobYT/ticketd/internal/store"
)

// memStore is a minimal in-memory Store for router tests.
type memStore struct {
	tickets []model.Ticket
	getErr  error
}

func (m *memStore) ListTickets() ([]model.Ticket, error) {
	out := make([]model.Ticket, len(m.tickets))
	copy(out, m.tickets)
	return out, nil
}

func (m *memStore) GetTicket(id string) (*model.Ticket, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	for i := range m.tickets {
		if m.tickets[i].ID == id {
			t := m.tickets[i]
			return &t, nil
		}
	}
	return nil, nil
}

func (m *memStore) CreateTicket(fields store.CreateFields) (model.Ticket, error) {
	t := model.Ticket{ID: fields.ID, Title: fields.Title, Status: fields.Status, Version: 1}
	m.tickets = append(m.tickets, t)
	return t, nil
}

func (m *memStore) UpdateTicket(id string, patch model.TicketPatch) (*model.Ticket, error) {
	return m.apply(id, -1, patch)
}

func (m *memStore) UpdateTicketCAS(id string, version int64, patch model.TicketPatch) (*model.Ticket, error) {
	return m.apply(id, version, patch)
}

func (m *memStore) apply(id string, expect int64, patch model.TicketPatch) (*model.Ticket, error) {
	for i := range m.tickets {
		if m.tickets[i].ID != id {
			continue
		}
		t := &m.tickets[i]
		if expect >= 0 && t.Version != expect {
			return nil, store.ErrVersionConflict
		}
		if patch.Status != nil {
			t.Status = *patch.Status
		}
		if patch.Description != nil {
			t.Description = *patch.Description
		}
		t.Version++
		out := *t
		return &out, nil
	}
	return nil, nil
}

func (m *memStore) OnChange(fn func()) func() { return func() {} }
func (m *memStore) Close() error              { return nil }

// scriptedLLM returns canned responses and records prompts.
type scriptedLLM struct {
	response string
	err      error
	prompts  []llm.Request
}

func (s *scriptedLLM) Complete(ctx context.Context, req llm.Request) (string, error) {
	s.prompts = append(s.prompts, req)
	return s.response, s.err
}

func (s *scriptedLLM) Stream(ctx context.Context, req llm.Request, onDelta func(string)) (string, error) {
	s.prompts = append(s.prompts, req)
	if s.err != nil {
		return "", s.err
	}
	for _, word := range strings.SplitAfter(s.response, " ") {
		if onDelta != nil {
			onDelta(word)
		}
	}
	return s.response, nil
}

func newTestRouters(t *testing.T, ms *memStore, lm llm.Client) *Routers {
	t.Helper()
	logger := logging.New(&bytes.Buffer{}, "agents", logging.LevelDebug)
	bus := events.NewBus(logger)
	sched := scheduler.New(ms, bus, logger.WithComponent("scheduler"))
	sched.Initialize(model.SchedulerConfig{})
	return NewRouters(sched, ms, lm, logger)
}

func TestPlanNext_DraftsPlanForPickedTask(t *testing.T) {
	ms := &memStore{tickets: []model.Ticket{
		{ID: "T1", Title: "add retry loop", Description: "wrap the client call", Status: model.StatusOpen, Version: 1},
	}}
	lm := &scriptedLLM{response: "1. Wrap the call.\n2. Add a test."}
	r := newTestRouters(t, ms, lm)

	plan, err := r.Planning.PlanNext(context.Background())
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.Equal(t, "T1", plan.TaskID)
	assert.Equal(t, "add retry loop", plan.Title)
	assert.Contains(t, plan.Body, "Wrap the call")

	require.Len(t, lm.prompts, 1)
	assert.Contains(t, lm.prompts[0].Prompt, "add retry loop")
	assert.Contains(t, lm.prompts[0].Prompt, "wrap the client call")

	// The pick went through the scheduler: ticket is now in-progress.
	got, _ := ms.GetTicket("T1")
	assert.Equal(t, model.StatusInProgress, got.Status)
}

func TestPlanNext_EmptyQueue(t *testing.T) {
	r := newTestRouters(t, &memStore{}, &scriptedLLM{})

	plan, err := r.Planning.PlanNext(context.Background())
	require.NoError(t, err)
	assert.Nil(t, plan)
}

func TestPlanNext_LLMFailureWrapped(t *testing.T) {
	ms := &memStore{tickets: []model.Ticket{
		{ID: "T1", Title: "a", Status: model.StatusOpen, Version: 1},
	}}
	lm := &scriptedLLM{err: errors.New("model overloaded")}
	r := newTestRouters(t, ms, lm)

	_, err := r.Planning.PlanNext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "T1")
}

func TestVerify_PassClosesTicket(t *testing.T) {
	ms := &memStore{tickets: []model.Ticket{
		{ID: "T1", Title: "fix the flake", Status: model.StatusInProgress, Version: 1},
	}}
	lm := &scriptedLLM{response: `{"pass": true, "summary": "flake reproduced and fixed"}`}
	r := newTestRouters(t, ms, lm)

	verdict, err := r.Verification.Verify(context.Background(), "T1", "retried 100x, no failures")
	require.NoError(t, err)
	require.True(t, verdict.Pass)

	got, _ := ms.GetTicket("T1")
	assert.Equal(t, model.StatusDone, got.Status)
	assert.Equal(t, "flake reproduced and fixed", got.Description)
}

func TestVerify_FailLeavesTicketUntouched(t *testing.T) {
	ms := &memStore{tickets: []model.Ticket{
		{ID: "T1", Title: "fix the flake", Status: model.StatusInProgress, Version: 1},
	}}
	lm := &scriptedLLM{response: "```json\n{\"pass\": false, \"summary\": \"no test added\"}\n```"}
	r := newTestRouters(t, ms, lm)

	verdict, err := r.Verification.Verify(context.Background(), "T1", "changed the code")
	require.NoError(t, err)
	assert.False(t, verdict.Pass)
	assert.Equal(t, "no test added", verdict.Summary)

	got, _ := ms.GetTicket("T1")
	assert.Equal(t, model.StatusInProgress, got.Status)
}

func TestVerify_UnknownTicket(t *testing.T) {
	r := newTestRouters(t, &memStore{}, &scriptedLLM{})

	_, err := r.Verification.Verify(context.Background(), "missing", "report")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestVerify_StoreErrorStaysOpaque(t *testing.T) {
	ms := &memStore{getErr: errors.New("yaml: line 3: mapping values are not allowed")}
	r := newTestRouters(t, ms, &scriptedLLM{})

	_, err := r.Verification.Verify(context.Background(), "T1", "report")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "yaml")
}

func TestVerify_MalformedVerdict(t *testing.T) {
	ms := &memStore{tickets: []model.Ticket{
		{ID: "T1", Title: "a", Status: model.StatusInProgress, Version: 1},
	}}
	lm := &scriptedLLM{response: "looks good to me!"}
	r := newTestRouters(t, ms, lm)

	_, err := r.Verification.Verify(context.Background(), "T1", "report")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse verdict")
}

func TestAnswer_StreamsAndAssembles(t *testing.T) {
	ms := &memStore{tickets: []model.Ticket{
		{ID: "Q1", Title: "why does startup take 30s?", Status: model.StatusOpen, Version: 1},
	}}
	lm := &scriptedLLM{response: "the watcher rescans every file"}
	r := newTestRouters(t, ms, lm)

	var deltas []string
	text, err := r.Answer.Answer(context.Background(), "Q1", func(s string) {
		deltas = append(deltas, s)
	})
	require.NoError(t, err)
	assert.Equal(t, "the watcher rescans every file", text)
	assert.Equal(t, text, strings.Join(deltas, ""))
}

func TestAnswer_UnknownTicket(t *testing.T) {
	r := newTestRouters(t, &memStore{}, &scriptedLLM{})

	_, err := r.Answer.Answer(context.Background(), "missing", nil)
	require.Error(t, err)
}
