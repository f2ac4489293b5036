package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/xXKillerNoobYT/ticketd/internal/logging"
	"github.com/xXKillerNoobYT/ticketd/internal/model"
	"github.com/xXKillerNoobYT/ticketd/internal/yamlutil"
)

const ticketsSchemaVersion = 1

// ticketsDoc is the on-disk document shape.
type ticketsDoc struct {
	SchemaVersion int            `yaml:"schema_version"`
	Tickets       []model.Ticket `yaml:"tickets"`
}

// FileStore keeps all tickets in a single YAML file written atomically.
// The file is independently mutable: humans and other agents edit it
// directly, so every read reloads from disk and an fsnotify watcher turns
// external writes into change notifications.
type FileStore struct {
	path   string
	mu     sync.Mutex
	logger *logging.Logger

	listenerMu sync.Mutex
	listeners  []*changeListener
	nextID     int

	watcher       *fsnotify.Watcher
	debounce      time.Duration
	debounceMu    sync.Mutex
	debounceTimer *time.Timer
	watchDone     chan struct{}
	closeOnce     sync.Once
}

type changeListener struct {
	id int
	fn func()
}

// NewFileStore opens (creating if absent) the tickets file and starts
// watching it for external edits.
func NewFileStore(path string, debounceSec float64, logger *logging.Logger) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("ensure store dir: %w", err)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		doc := ticketsDoc{SchemaVersion: ticketsSchemaVersion}
		if err := yamlutil.AtomicWrite(path, doc); err != nil {
			return nil, fmt.Errorf("init tickets file: %w", err)
		}
	}

	if debounceSec <= 0 {
		debounceSec = 0.5
	}

	fs := &FileStore{
		path:      path,
		logger:    logger,
		debounce:  time.Duration(debounceSec * float64(time.Second)),
		watchDone: make(chan struct{}),
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}
	fs.watcher = watcher
	go fs.watchLoop()

	return fs, nil
}

// watchLoop turns filesystem writes to the tickets file into debounced
// change notifications. Temp files from our own atomic writes are skipped;
// the rename that lands them still hits the real filename.
func (fs *FileStore) watchLoop() {
	base := filepath.Base(fs.path)
	for {
		select {
		case <-fs.watchDone:
			return
		case event, ok := <-fs.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				fs.logger.Debugf("file_event op=%s file=%s", event.Op, base)
				fs.debounceNotify()
			}
		case err, ok := <-fs.watcher.Errors:
			if !ok {
				return
			}
			fs.logger.Errorf("fsnotify error=%v", err)
		}
	}
}

func (fs *FileStore) debounceNotify() {
	fs.debounceMu.Lock()
	defer fs.debounceMu.Unlock()

	if fs.debounceTimer != nil {
		fs.debounceTimer.Stop()
	}
	fs.debounceTimer = time.AfterFunc(fs.debounce, fs.notifyListeners)
}

func (fs *FileStore) notifyListeners() {
	fs.listenerMu.Lock()
	snapshot := make([]*changeListener, len(fs.listeners))
	copy(snapshot, fs.listeners)
	fs.listenerMu.Unlock()

	for _, l := range snapshot {
		l.fn()
	}
}

// OnChange registers a change listener and returns an unsubscribe func.
func (fs *FileStore) OnChange(fn func()) func() {
	fs.listenerMu.Lock()
	defer fs.listenerMu.Unlock()

	l := &changeListener{id: fs.nextID, fn: fn}
	fs.nextID++
	fs.listeners = append(fs.listeners, l)

	return func() {
		fs.listenerMu.Lock()
		defer fs.listenerMu.Unlock()
		for i, cur := range fs.listeners {
			if cur.id == l.id {
				fs.listeners = append(fs.listeners[:i], fs.listeners[i+1:]...)
				return
			}
		}
	}
}

// Close stops the file watcher. Pending debounced notifications may still
// fire; listeners must tolerate late calls.
func (fs *FileStore) Close() error {
	var err error
	fs.closeOnce.Do(func() {
		close(fs.watchDone)
		err = fs.watcher.Close()
	})
	return err
}

func (fs *FileStore) load() (ticketsDoc, error) {
	var doc ticketsDoc
	data, err := os.ReadFile(fs.path)
	if err != nil {
		if os.IsNotExist(err) {
			doc.SchemaVersion = ticketsSchemaVersion
			return doc, nil
		}
		return doc, fmt.Errorf("read tickets file: %w", err)
	}
	if err := yamlv3.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("parse tickets file: %w", err)
	}
	return doc, nil
}

func (fs *FileStore) save(doc ticketsDoc) error {
	return yamlutil.AtomicWrite(fs.path, doc)
}

// ListTickets returns all tickets in file order.
func (fs *FileStore) ListTickets() ([]model.Ticket, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	doc, err := fs.load()
	if err != nil {
		return nil, err
	}
	return doc.Tickets, nil
}

// GetTicket returns the ticket with the given id, or (nil, nil).
func (fs *FileStore) GetTicket(id string) (*model.Ticket, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	doc, err := fs.load()
	if err != nil {
		return nil, err
	}
	for i := range doc.Tickets {
		if doc.Tickets[i].ID == id {
			t := doc.Tickets[i]
			return &t, nil
		}
	}
	return nil, nil
}

// CreateTicket appends a new ticket and fires change listeners.
func (fs *FileStore) CreateTicket(fields CreateFields) (model.Ticket, error) {
	fs.mu.Lock()

	doc, err := fs.load()
	if err != nil {
		fs.mu.Unlock()
		return model.Ticket{}, err
	}

	id := fields.ID
	if id == "" {
		id = uuid.New().String()
	}
	for i := range doc.Tickets {
		if doc.Tickets[i].ID == id {
			fs.mu.Unlock()
			return model.Ticket{}, fmt.Errorf("ticket %s already exists", id)
		}
	}

	status := fields.Status
	if status == "" {
		status = model.StatusOpen
	}
	if !status.Valid() {
		fs.mu.Unlock()
		return model.Ticket{}, fmt.Errorf("invalid status %q", status)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	ticket := model.Ticket{
		ID:          id,
		Title:       fields.Title,
		Description: fields.Description,
		Status:      status,
		Type:        fields.Type,
		Priority:    fields.Priority,
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     1,
	}
	doc.Tickets = append(doc.Tickets, ticket)

	if err := fs.save(doc); err != nil {
		fs.mu.Unlock()
		return model.Ticket{}, err
	}
	fs.mu.Unlock()

	fs.logger.Infof("ticket_create id=%s status=%s title=%q", ticket.ID, ticket.Status, ticket.Title)
	fs.notifyListeners()
	return ticket, nil
}

// UpdateTicket applies a partial update. Returns (nil, nil) if no ticket
// has the given id.
func (fs *FileStore) UpdateTicket(id string, patch model.TicketPatch) (*model.Ticket, error) {
	return fs.update(id, -1, patch)
}

// UpdateTicketCAS applies a partial update only if the ticket's version
// matches the snapshot; otherwise ErrVersionConflict.
func (fs *FileStore) UpdateTicketCAS(id string, version int64, patch model.TicketPatch) (*model.Ticket, error) {
	return fs.update(id, version, patch)
}

// update is the shared conditional-update path. expectVersion < 0 skips
// the version check. Lock scope covers load-mutate-save, which makes the
// version check atomic with respect to in-process writers; external file
// edits are serialized by the atomic rename.
func (fs *FileStore) update(id string, expectVersion int64, patch model.TicketPatch) (*model.Ticket, error) {
	fs.mu.Lock()

	doc, err := fs.load()
	if err != nil {
		fs.mu.Unlock()
		return nil, err
	}

	idx := -1
	for i := range doc.Tickets {
		if doc.Tickets[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		fs.mu.Unlock()
		return nil, nil
	}

	t := &doc.Tickets[idx]
	if expectVersion >= 0 && t.Version != expectVersion {
		current := t.Version
		fs.mu.Unlock()
		return nil, fmt.Errorf("ticket %s at version %d, expected %d: %w",
			id, current, expectVersion, ErrVersionConflict)
	}

	if patch.Status != nil && *patch.Status != t.Status {
		if !patch.Status.Valid() {
			fs.mu.Unlock()
			return nil, fmt.Errorf("invalid status %q", *patch.Status)
		}
		// External edits do not follow the lifecycle, so violations are
		// logged rather than rejected.
		if err := model.ValidateTransition(t.Status, *patch.Status); err != nil {
			fs.logger.Warnf("lifecycle_violation id=%s %v", id, err)
		}
		t.Status = *patch.Status
	}
	if patch.Title != nil {
		t.Title = *patch.Title
	}
	if patch.Description != nil {
		t.Description = *patch.Description
	}
	if patch.Type != nil {
		t.Type = *patch.Type
	}
	if patch.Priority != nil {
		t.Priority = *patch.Priority
	}
	t.Version++
	t.UpdatedAt = time.Now().UTC().Format(time.RFC3339)

	if err := fs.save(doc); err != nil {
		fs.mu.Unlock()
		return nil, err
	}
	updated := *t
	fs.mu.Unlock()

	fs.logger.Debugf("ticket_update id=%s status=%s version=%d", updated.ID, updated.Status, updated.Version)
	fs.notifyListeners()
	return &updated, nil
}

// Path returns the backing file location (for status reporting).
func (fs *FileStore) Path() string {
	return fs.path
}
