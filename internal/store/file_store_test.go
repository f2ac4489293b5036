package store

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xXKillerNoobYT/ticketd/internal/logging"
	"github.com/xXKillerNoobYT/ticketd/internal/model"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tickets.yaml")
	fs, err := NewFileStore(path, 0.05, logging.New(&bytes.Buffer{}, "store", logging.LevelDebug))
	require.NoError(t, err)
	t.Cleanup(func() { _ = fs.Close() })
	return fs
}

func TestCreateTicket_Defaults(t *testing.T) {
	fs := newTestStore(t)

	ticket, err := fs.CreateTicket(CreateFields{Title: "fix login"})
	require.NoError(t, err)

	assert.NotEmpty(t, ticket.ID)
	assert.Equal(t, model.StatusOpen, ticket.Status)
	assert.Equal(t, int64(1), ticket.Version)
	assert.NotEmpty(t, ticket.CreatedAt)
	assert.Equal(t, ticket.CreatedAt, ticket.UpdatedAt)
}

func TestCreateTicket_DuplicateID(t *testing.T) {
	fs := newTestStore(t)

	_, err := fs.CreateTicket(CreateFields{ID: "T1", Title: "first"})
	require.NoError(t, err)

	_, err = fs.CreateTicket(CreateFields{ID: "T1", Title: "second"})
	assert.Error(t, err)
}

func TestListTickets_PreservesOrder(t *testing.T) {
	fs := newTestStore(t)

	for _, id := range []string{"T1", "T2", "T3"} {
		_, err := fs.CreateTicket(CreateFields{ID: id, Title: "ticket " + id})
		require.NoError(t, err)
	}

	tickets, err := fs.ListTickets()
	require.NoError(t, err)
	require.Len(t, tickets, 3)
	assert.Equal(t, "T1", tickets[0].ID)
	assert.Equal(t, "T2", tickets[1].ID)
	assert.Equal(t, "T3", tickets[2].ID)
}

func TestUpdateTicket_VersionIncrements(t *testing.T) {
	fs := newTestStore(t)

	_, err := fs.CreateTicket(CreateFields{ID: "T1", Title: "a"})
	require.NoError(t, err)

	patch := model.StatusPatch(model.StatusInProgress)
	updated, err := fs.UpdateTicket("T1", patch)
	require.NoError(t, err)
	require.NotNil(t, updated)

	assert.Equal(t, model.StatusInProgress, updated.Status)
	assert.Equal(t, int64(2), updated.Version)
}

func TestUpdateTicket_NotFound(t *testing.T) {
	fs := newTestStore(t)

	updated, err := fs.UpdateTicket("missing", model.StatusPatch(model.StatusDone))
	require.NoError(t, err)
	assert.Nil(t, updated)
}

func TestUpdateTicketCAS_Conflict(t *testing.T) {
	fs := newTestStore(t)

	created, err := fs.CreateTicket(CreateFields{ID: "T1", Title: "a"})
	require.NoError(t, err)

	// A concurrent edit bumps the version past the snapshot.
	_, err = fs.UpdateTicket("T1", model.TicketPatch{Title: strPtr("renamed")})
	require.NoError(t, err)

	_, err = fs.UpdateTicketCAS("T1", created.Version, model.StatusPatch(model.StatusInProgress))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrVersionConflict))

	// The losing writer must not have mutated anything.
	current, err := fs.GetTicket("T1")
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, model.StatusOpen, current.Status)
}

func TestUpdateTicketCAS_Success(t *testing.T) {
	fs := newTestStore(t)

	created, err := fs.CreateTicket(CreateFields{ID: "T1", Title: "a"})
	require.NoError(t, err)

	updated, err := fs.UpdateTicketCAS("T1", created.Version, model.StatusPatch(model.StatusInProgress))
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, model.StatusInProgress, updated.Status)
	assert.Equal(t, created.Version+1, updated.Version)
}

func TestOnChange_FiresOnWrite(t *testing.T) {
	fs := newTestStore(t)

	changes := make(chan struct{}, 8)
	unsub := fs.OnChange(func() {
		select {
		case changes <- struct{}{}:
		default:
		}
	})
	defer unsub()

	_, err := fs.CreateTicket(CreateFields{ID: "T1", Title: "a"})
	require.NoError(t, err)

	select {
	case <-changes:
	case <-time.After(2 * time.Second):
		t.Fatal("expected change notification after create")
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tickets.yaml")
	logger := logging.New(&bytes.Buffer{}, "store", logging.LevelDebug)

	fs, err := NewFileStore(path, 0.05, logger)
	require.NoError(t, err)
	_, err = fs.CreateTicket(CreateFields{ID: "T1", Title: "survives"})
	require.NoError(t, err)
	require.NoError(t, fs.Close())

	reopened, err := NewFileStore(path, 0.05, logger)
	require.NoError(t, err)
	defer reopened.Close()

	tickets, err := reopened.ListTickets()
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.Equal(t, "survives", tickets[0].Title)
}

func strPtr(s string) *string { return &s }
