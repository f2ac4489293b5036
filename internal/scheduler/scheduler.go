package scheduler

import (
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/xXKillerNoobYT/ticketd/internal/events"
	"github.com/xXKillerNoobYT/ticketd/internal/logging"
	"github.com/xXKillerNoobYT/ticketd/internal/model"
	"github.com/xXKillerNoobYT/ticketd/internal/store"
	"github.com/xXKillerNoobYT/ticketd/internal/telemetry"
)

// DefaultPickTimeout is the idle threshold for escalating picked tasks
// when the configured value is unusable.
const DefaultPickTimeout = 30 * time.Second

// escalationPrefix marks tickets created by the timeout sweep.
const escalationPrefix = "P1 BLOCKED: "

// blockedP1Pattern matches titles carrying a P1 marker at the very
// beginning (not merely contained), case-insensitive.
var blockedP1Pattern = regexp.MustCompile(`(?i)^(p1 blocked:|p1:|\[p1\])`)

// ErrNotInitialized is returned when the consumer-facing operations run
// before Initialize. This is a programming error, the one category that
// surfaces as an error instead of a logged safe default.
var ErrNotInitialized = errors.New("scheduler not initialized")

// QueueStatus is the cheap inspection summary.
type QueueStatus struct {
	PendingCount   int `json:"pending_count"`
	BlockedP1Count int `json:"blocked_p1_count"`
}

// QueueDetails is the verbose inspection snapshot.
type QueueDetails struct {
	PendingTitles   []string   `json:"pending_titles"`
	PickedTitles    []string   `json:"picked_titles"`
	BlockedP1Titles []string   `json:"blocked_p1_titles"`
	LastPickedTitle string     `json:"last_picked_title,omitempty"`
	LastPickedAt    *time.Time `json:"last_picked_at,omitempty"`
}

// Scheduler is the single long-lived task-queue core. One instance is
// constructed per process and injected into every agent router; there is
// no ambient global. All state behind mu; store calls that confirm a
// mutation complete before the in-memory state changes.
type Scheduler struct {
	st     store.Store
	bus    *events.Bus
	logger *logging.Logger

	// now is injectable for the sweep tests.
	now func() time.Time

	mu          sync.Mutex
	initialized bool
	pickTimeout time.Duration
	manualMode  bool

	queue              *taskQueue
	lastPickedTitle    string
	lastPickedAt       *time.Time
	blockedEscalations map[string]bool

	unsubscribeStore func()
}

// New constructs an uninitialized Scheduler. Call Initialize before use.
func New(st store.Store, bus *events.Bus, logger *logging.Logger) *Scheduler {
	return &Scheduler{
		st:                 st,
		bus:                bus,
		logger:             logger,
		now:                time.Now,
		queue:              newTaskQueue(),
		blockedEscalations: make(map[string]bool),
	}
}

// Initialize reads configuration, subscribes to store change
// notifications, and performs the initial queue build. Idempotent: a
// second call logs a warning and does nothing. Configuration problems
// fall back to documented defaults with a warning, never an error.
func (s *Scheduler) Initialize(cfg model.SchedulerConfig) {
	s.mu.Lock()
	if s.initialized {
		s.mu.Unlock()
		s.logger.Warnf("initialize_skipped reason=already_initialized")
		return
	}

	timeout := time.Duration(cfg.PickTimeoutSec) * time.Second
	if cfg.PickTimeoutSec < 0 {
		s.logger.Warnf("config_fallback pick_timeout_sec=%d using_default=%s",
			cfg.PickTimeoutSec, DefaultPickTimeout)
		timeout = DefaultPickTimeout
	} else if cfg.PickTimeoutSec == 0 {
		timeout = DefaultPickTimeout
	}
	s.pickTimeout = timeout
	s.manualMode = cfg.ManualMode
	s.initialized = true
	s.mu.Unlock()

	// Every store notification triggers a full refresh. The store fires
	// listeners synchronously from its own write path, so the refresh
	// runs on its own goroutine to keep the store's writers unblocked.
	s.unsubscribeStore = s.st.OnChange(func() {
		go s.Refresh()
	})

	s.logger.Infof("initialized pick_timeout=%s manual_mode=%v", s.pickTimeout, s.manualMode)
	s.initialLoad()
}

// initialLoad builds the pending queue from scratch. Unlike Refresh it
// replaces the queue wholesale, which is safe exactly once: nothing has
// been handed out yet.
func (s *Scheduler) initialLoad() {
	tickets, err := s.st.ListTickets()
	if err != nil {
		telemetry.RefreshFailures.Inc()
		s.logger.Errorf("initial_load_failed error=%v (starting with an empty queue)", err)
		return
	}

	s.mu.Lock()
	loadable := make([]model.Ticket, 0, len(tickets))
	for i := range tickets {
		t := &tickets[i]
		if s.manualMode && t.Status == model.StatusOpen && t.Type == model.TypeAIToHuman {
			s.parkManualTicket(t)
			continue
		}
		loadable = append(loadable, *t)
	}
	s.queue.load(loadable)
	s.updateGauges()
	pending := s.queue.pendingLen()
	s.mu.Unlock()

	s.logger.Debugf("initial_load pending=%d", pending)
	if pending > 0 {
		s.bus.Publish(events.EventQueueChanged)
	}
}

// Refresh reconciles the in-memory queue with the store's current truth:
// newly observed schedulable tickets are appended in listing order,
// entries whose ticket left open/in-progress are dropped from both sets,
// and picked entries are never demoted back to pending. A listing failure
// leaves the prior state untouched.
func (s *Scheduler) Refresh() {
	tickets, err := s.st.ListTickets()
	if err != nil {
		telemetry.RefreshFailures.Inc()
		s.logger.Errorf("refresh_failed error=%v (keeping prior queue state)", err)
		return
	}

	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return
	}

	changed := false
	current := make(map[string]*model.Ticket, len(tickets))
	for i := range tickets {
		t := &tickets[i]
		current[t.ID] = t

		if !t.Status.Schedulable() {
			continue
		}
		if s.manualMode && t.Status == model.StatusOpen && t.Type == model.TypeAIToHuman && !s.queue.contains(t.ID) {
			s.parkManualTicket(t)
			continue
		}
		if s.queue.contains(t.ID) {
			// Re-sync snapshots so a stale version from a lost pick race
			// heals without counting as a membership change.
			if entry := s.queue.pendingEntry(t.ID); entry != nil {
				entry.Title = t.Title
				entry.Version = t.Version
			}
			continue
		}
		s.queue.enqueue(t)
		changed = true
	}

	for _, id := range s.trackedIDs() {
		t, ok := current[id]
		if ok && t.Status.Schedulable() {
			continue
		}
		if s.queue.removeIfPresent(id) {
			delete(s.blockedEscalations, id)
			changed = true
		}
	}

	s.updateGauges()
	s.mu.Unlock()

	if changed {
		s.logger.Debugf("refresh_applied pending=%d picked=%d", s.PendingCount(), s.PickedCount())
		s.bus.Publish(events.EventQueueChanged)
	}
}

// parkManualTicket moves an unrouted ai_to_human ticket to pending so it
// waits for human promotion. Store failures are logged; the ticket is
// simply not enqueued this cycle and is retried on the next refresh.
// Caller holds mu.
func (s *Scheduler) parkManualTicket(t *model.Ticket) {
	if _, err := s.st.UpdateTicket(t.ID, model.StatusPatch(model.StatusPending)); err != nil {
		s.logger.Warnf("manual_gate_park_failed id=%s error=%v", t.ID, err)
		return
	}
	s.logger.Infof("manual_gate_parked id=%s title=%q", t.ID, t.Title)
}

func (s *Scheduler) trackedIDs() []string {
	ids := make([]string, 0, s.queue.pendingLen()+s.queue.pickedLen())
	for _, task := range s.queue.pending {
		ids = append(ids, task.ID)
	}
	for id := range s.queue.picked {
		ids = append(ids, id)
	}
	return ids
}

// GetNextTask atomically hands out the head of the pending queue, or
// (nil, nil) when there is nothing to do. The timeout sweep runs first so
// stalled work is escalated before fresh work is allocated. A pick is
// only committed in memory once the store's conditional update succeeds;
// any store rejection requeues the task at the front unchanged.
func (s *Scheduler) GetNextTask() (*QueuedTask, error) {
	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return nil, fmt.Errorf("get next task: %w", ErrNotInitialized)
	}

	escalated := s.sweepStalledLocked()

	task := s.queue.dequeueFront()
	if task == nil {
		s.updateGauges()
		s.mu.Unlock()
		if escalated {
			s.bus.Publish(events.EventQueueChanged)
		}
		return nil, nil
	}

	updated, err := s.st.UpdateTicketCAS(task.ID, task.Version, model.StatusPatch(model.StatusInProgress))
	if err != nil || updated == nil {
		s.queue.requeueFront(task)
		s.updateGauges()
		s.mu.Unlock()

		telemetry.PickConflicts.Inc()
		switch {
		case err != nil && errors.Is(err, store.ErrVersionConflict):
			s.logger.Warnf("pick_conflict id=%s version=%d (requeued at head)", task.ID, task.Version)
		case err != nil:
			s.logger.Warnf("pick_failed id=%s error=%v (requeued at head)", task.ID, err)
		default:
			s.logger.Warnf("pick_missing id=%s (requeued at head, refresh will drop it)", task.ID)
		}
		if escalated {
			s.bus.Publish(events.EventQueueChanged)
		}
		return nil, nil
	}

	now := s.now()
	task.Version = updated.Version
	s.queue.markPicked(task, now)
	s.lastPickedTitle = task.Title
	s.lastPickedAt = &now
	s.updateGauges()
	picked := *task
	s.mu.Unlock()

	telemetry.PicksTotal.Inc()
	s.logger.Infof("pick id=%s title=%q", picked.ID, picked.Title)
	s.bus.Publish(events.EventQueueChanged)
	return &picked, nil
}

// sweepStalledLocked escalates picked tasks idle past the timeout into
// new blocked tickets. The original ticket is left as-is so its history
// survives; the escalation is a separate ticket. Creation failures are
// logged and retried on the next sweep. Caller holds mu; reports whether
// any escalation was created.
func (s *Scheduler) sweepStalledLocked() bool {
	escalated := false
	now := s.now()

	for id, task := range s.queue.picked {
		if task.LastPickedAt == nil {
			continue
		}
		idle := now.Sub(*task.LastPickedAt)
		if idle <= s.pickTimeout || s.blockedEscalations[id] {
			continue
		}

		_, err := s.st.CreateTicket(store.CreateFields{
			Title:    escalationPrefix + task.Title,
			Status:   model.StatusBlocked,
			Priority: 1,
			Description: fmt.Sprintf(
				"Task %q (ticket %s) has been in progress for %s without completing and needs attention.",
				task.Title, id, idle.Round(time.Second)),
		})
		if err != nil {
			// Not recorded as handled, so the next sweep retries.
			s.logger.Errorf("escalation_create_failed id=%s error=%v", id, err)
			continue
		}

		s.blockedEscalations[id] = true
		escalated = true
		telemetry.EscalationsTotal.Inc()
		s.logger.Warnf("escalated id=%s idle=%s", id, idle.Round(time.Second))
	}
	return escalated
}

// ReportTaskDone marks a ticket completed and evicts it from the picked
// set. Store failures are logged and leave in-memory state untouched; the
// next refresh reconciles.
func (s *Scheduler) ReportTaskDone(id, summary string) error {
	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return fmt.Errorf("report task done: %w", ErrNotInitialized)
	}

	patch := model.StatusPatch(model.StatusDone)
	if summary != "" {
		patch.Description = &summary
	}
	updated, err := s.st.UpdateTicket(id, patch)
	if err != nil {
		s.mu.Unlock()
		s.logger.Errorf("report_done_failed id=%s error=%v", id, err)
		return nil
	}
	if updated == nil {
		s.logger.Warnf("report_done_missing id=%s", id)
	}

	removed := s.queue.removeIfPresent(id)
	delete(s.blockedEscalations, id)
	s.updateGauges()
	s.mu.Unlock()

	if removed {
		s.logger.Infof("task_done id=%s", id)
		s.bus.Publish(events.EventQueueChanged)
	}
	return nil
}

// GetQueueStatus reports the pending count and how many blocked tickets
// carry a P1 marker at the start of their title. Store failures degrade
// to zero counts with a logged error; nothing is returned to the caller.
func (s *Scheduler) GetQueueStatus() QueueStatus {
	s.mu.Lock()
	status := QueueStatus{PendingCount: s.queue.pendingLen()}
	s.mu.Unlock()

	tickets, err := s.st.ListTickets()
	if err != nil {
		s.logger.Errorf("queue_status_list_failed error=%v", err)
		return status
	}
	for i := range tickets {
		if isBlockedP1(&tickets[i]) {
			status.BlockedP1Count++
		}
	}
	return status
}

// GetQueueDetails returns the verbose snapshot: pending/picked titles,
// blocked-P1 titles, and the most recent pick.
func (s *Scheduler) GetQueueDetails() QueueDetails {
	s.mu.Lock()
	details := QueueDetails{
		PendingTitles:   s.queue.pendingTitles(),
		PickedTitles:    s.queue.pickedTitles(),
		LastPickedTitle: s.lastPickedTitle,
		LastPickedAt:    s.lastPickedAt,
	}
	s.mu.Unlock()

	tickets, err := s.st.ListTickets()
	if err != nil {
		s.logger.Errorf("queue_details_list_failed error=%v", err)
		return details
	}
	for i := range tickets {
		if isBlockedP1(&tickets[i]) {
			details.BlockedP1Titles = append(details.BlockedP1Titles, tickets[i].Title)
		}
	}
	return details
}

func isBlockedP1(t *model.Ticket) bool {
	return t.Status == model.StatusBlocked && blockedP1Pattern.MatchString(t.Title)
}

// OnQueueChange subscribes to queue-change notifications. Returns an
// unsubscribe function.
func (s *Scheduler) OnQueueChange(fn events.Listener) func() {
	return s.bus.Subscribe(fn)
}

// PendingCount reports the pending queue length.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.pendingLen()
}

// PickedCount reports the number of in-flight picks.
func (s *Scheduler) PickedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.pickedLen()
}

// ResetForTests clears all in-memory state, including the initialized
// flag. Test-only; production instances live for the process.
func (s *Scheduler) ResetForTests() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unsubscribeStore != nil {
		s.unsubscribeStore()
		s.unsubscribeStore = nil
	}
	s.queue.reset()
	s.blockedEscalations = make(map[string]bool)
	s.lastPickedTitle = ""
	s.lastPickedAt = nil
	s.initialized = false
	s.updateGauges()
}

// updateGauges mirrors queue sizes into telemetry. Caller holds mu.
func (s *Scheduler) updateGauges() {
	telemetry.QueueDepthGauge.Set(float64(s.queue.pendingLen()))
	telemetry.PickedInFlight.Set(float64(s.queue.pickedLen()))
}
