package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/fieldsync/internal/client/models"
	"github.com/dmitrijs2005/fieldsync/internal/client/status"
	"github.com/dmitrijs2005/fieldsync/internal/common"
	"github.com/dmitrijs2005/fieldsync/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var room = models.Scope{IncidentID: 1, RoomID: 10}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "data", "client.db"), logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func markup(owner, body string) *models.Entity {
	return &models.Entity{
		Category: models.CategoryMarkup,
		Scope:    room,
		Owner:    owner,
		Payload:  json.RawMessage(body),
	}
}

func TestOpen_RunsMigrationsTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.db")
	ctx := context.Background()

	s1, err := Open(ctx, path, logging.NewNopLogger())
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(ctx, path, logging.NewNopLogger())
	require.NoError(t, err)
	require.NoError(t, s2.Close())
}

func TestCreate_StoresWaitingToSend(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e, err := s.Create(ctx, markup("alice", `{"a":1}`))
	require.NoError(t, err)
	assert.NotZero(t, e.ID)
	assert.Equal(t, status.WaitingToSend, e.Status)

	got, err := s.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, status.WaitingToSend, got.Status)
	assert.JSONEq(t, `{"a":1}`, string(got.Payload))
	assert.False(t, got.LastUpdate.IsZero())
}

func TestCreate_DropsRoomForIncidentWideCategory(t *testing.T) {
	s := newTestStore(t)
	e, err := s.Create(context.Background(), &models.Entity{Category: models.CategoryReport, Scope: room})
	require.NoError(t, err)
	assert.Equal(t, models.Scope{IncidentID: 1}, e.Scope)
	assert.JSONEq(t, `{}`, string(e.Payload))
}

func TestGetPending_ByOwnerAndKind(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.Create(ctx, markup("alice", `{}`))
	require.NoError(t, err)
	_, err = s.Create(ctx, markup("bob", `{}`))
	require.NoError(t, err)

	posts, err := s.GetPending(ctx, "alice", models.OpPost)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, a.ID, posts[0].ID)

	updates, err := s.GetPending(ctx, "alice", models.OpUpdate)
	require.NoError(t, err)
	assert.Empty(t, updates)
}

func TestTransition_PushLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e, err := s.Create(ctx, markup("alice", `{}`))
	require.NoError(t, err)

	_, _, err = s.Transition(ctx, e.ID, status.PostStarted, nil)
	require.NoError(t, err)

	got, step, err := s.Transition(ctx, e.ID, status.PostSucceeded, func(e *models.Entity) {
		e.RemoteID = "42"
	})
	require.NoError(t, err)
	assert.Equal(t, status.Received, step.Status)
	assert.Equal(t, e.ID, got.ID)

	stored, err := s.GetByRemoteID(ctx, models.CategoryMarkup, "42")
	require.NoError(t, err)
	assert.Equal(t, e.ID, stored.ID)
	assert.Equal(t, status.Received, stored.Status)

	pending, err := s.GetPending(ctx, "alice", models.OpPost)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestTransition_EditDuringPostKeepsUpdate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e, err := s.Create(ctx, markup("alice", `{"v":1}`))
	require.NoError(t, err)
	_, _, err = s.Transition(ctx, e.ID, status.PostStarted, nil)
	require.NoError(t, err)
	_, _, err = s.Transition(ctx, e.ID, status.Edit, func(e *models.Entity) {
		e.Payload = json.RawMessage(`{"v":2}`)
	})
	require.NoError(t, err)

	got, _, err := s.Transition(ctx, e.ID, status.PostSucceeded, func(e *models.Entity) {
		e.RemoteID = "7"
	})
	require.NoError(t, err)
	assert.Equal(t, status.Update, got.Status)
	assert.Equal(t, "7", got.RemoteID)
	assert.JSONEq(t, `{"v":2}`, string(got.Payload))
}

func TestTransition_RemoveUnsentDeletesRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e, err := s.Create(ctx, markup("alice", `{}`))
	require.NoError(t, err)

	_, step, err := s.Transition(ctx, e.ID, status.Remove, nil)
	require.NoError(t, err)
	assert.True(t, step.Remove)

	_, err = s.Get(ctx, e.ID)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestTransition_IllegalLeavesRowUnchanged(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e, err := s.Create(ctx, markup("alice", `{"v":1}`))
	require.NoError(t, err)

	_, _, err = s.Transition(ctx, e.ID, status.UpdateSucceeded, func(e *models.Entity) {
		e.Payload = json.RawMessage(`{"v":9}`)
	})
	assert.ErrorIs(t, err, status.ErrIllegalTransition)

	got, err := s.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, status.WaitingToSend, got.Status)
	assert.JSONEq(t, `{"v":1}`, string(got.Payload))
}

func TestTransition_MissingEntity(t *testing.T) {
	s := newTestStore(t)
	_, _, err := s.Transition(context.Background(), 99, status.Edit, nil)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestReceive_InsertsThenReplacesInPlace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seq := time.UnixMilli(1_700_000_000_000).UTC()
	applied, err := s.Receive(ctx, models.Entity{
		RemoteID: "r1", Category: models.CategoryMarkup, Scope: room,
		Owner: "bob", Payload: json.RawMessage(`{"v":1}`), SeqTime: seq,
	})
	require.NoError(t, err)
	assert.True(t, applied)

	first, err := s.GetByRemoteID(ctx, models.CategoryMarkup, "r1")
	require.NoError(t, err)
	assert.Equal(t, status.Received, first.Status)

	applied, err = s.Receive(ctx, models.Entity{
		RemoteID: "r1", Category: models.CategoryMarkup, Scope: room,
		Owner: "bob", Payload: json.RawMessage(`{"v":2}`), SeqTime: seq.Add(time.Second),
	})
	require.NoError(t, err)
	assert.True(t, applied)

	second, err := s.GetByRemoteID(ctx, models.CategoryMarkup, "r1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.JSONEq(t, `{"v":2}`, string(second.Payload))
	assert.True(t, second.SeqTime.Equal(seq.Add(time.Second)))
}

func TestReceive_PendingLocalChangeWins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Receive(ctx, models.Entity{
		RemoteID: "r7", Category: models.CategoryMarkup, Scope: room,
		Owner: "alice", Payload: json.RawMessage(`{"v":"server-1"}`),
	})
	require.NoError(t, err)
	e, err := s.GetByRemoteID(ctx, models.CategoryMarkup, "r7")
	require.NoError(t, err)

	_, _, err = s.Transition(ctx, e.ID, status.Edit, func(e *models.Entity) {
		e.Payload = json.RawMessage(`{"v":"local"}`)
	})
	require.NoError(t, err)

	applied, err := s.Receive(ctx, models.Entity{
		RemoteID: "r7", Category: models.CategoryMarkup, Scope: room,
		Owner: "alice", Payload: json.RawMessage(`{"v":"server-2"}`),
	})
	require.NoError(t, err)
	assert.False(t, applied)

	got, err := s.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, status.Update, got.Status)
	assert.JSONEq(t, `{"v":"local"}`, string(got.Payload))
}

func TestReceive_RequiresRemoteID(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Receive(context.Background(), models.Entity{Category: models.CategoryMarkup})
	assert.ErrorIs(t, err, common.ErrorValidation)
}

func TestRemoveRemote(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Receive(ctx, models.Entity{RemoteID: "gone", Category: models.CategoryMarkup, Scope: room})
	require.NoError(t, err)

	removed, err := s.RemoveRemote(ctx, models.CategoryMarkup, "gone")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.RemoveRemote(ctx, models.CategoryMarkup, "gone")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestInFlightAndQueryByContext(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e, err := s.Create(ctx, markup("alice", `{}`))
	require.NoError(t, err)
	_, _, err = s.Transition(ctx, e.ID, status.PostStarted, nil)
	require.NoError(t, err)
	_, err = s.Create(ctx, &models.Entity{Category: models.CategoryReport, Scope: room, Owner: "alice"})
	require.NoError(t, err)
	_, err = s.Create(ctx, &models.Entity{Category: models.CategoryMarkup, Scope: models.Scope{IncidentID: 1, RoomID: 11}})
	require.NoError(t, err)

	inflight, err := s.InFlight(ctx)
	require.NoError(t, err)
	require.Len(t, inflight, 1)
	assert.Equal(t, e.ID, inflight[0].ID)

	all, err := s.QueryByContext(ctx, 1, 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestPullCursor_ScopedByCategory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// reports are incident wide, so the room is ignored
	require.NoError(t, s.AdvancePullCursor(ctx, models.CategoryReport, room, time.UnixMilli(4_000)))
	got, err := s.PullCursor(ctx, models.CategoryReport, models.Scope{IncidentID: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(4_000), got.UnixMilli())

	got, err = s.PullCursor(ctx, models.CategoryMarkup, room)
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestWipe_ClearsEntitiesKeepsMetadata(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, markup("alice", `{}`))
	require.NoError(t, err)
	require.NoError(t, s.Metadata().Set(ctx, "user", "alice"))
	require.NoError(t, s.AdvancePullCursor(ctx, models.CategoryMarkup, room, time.UnixMilli(4_000)))

	require.NoError(t, s.Wipe(ctx))

	rows, err := s.Query(ctx, models.CategoryMarkup, room)
	require.NoError(t, err)
	assert.Empty(t, rows)
	v, ok, err := s.Metadata().Get(ctx, "user")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "alice", v)

	cursor, err := s.PullCursor(ctx, models.CategoryMarkup, room)
	require.NoError(t, err)
	assert.True(t, cursor.IsZero())
}

func TestWatch_InitialSnapshotThenChanges(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := s.Watch(ctx, models.CategoryMarkup, room)

	select {
	case snap := <-ch:
		assert.Empty(t, snap)
	case <-time.After(2 * time.Second):
		t.Fatal("no initial snapshot")
	}

	_, err := s.Create(context.Background(), markup("alice", `{}`))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		select {
		case snap := <-ch:
			return len(snap) == 1
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatch_SlowReaderSeesLatest(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := s.Watch(ctx, models.CategoryMarkup, room)
	for i := 0; i < 5; i++ {
		_, err := s.Create(context.Background(), markup("alice", `{}`))
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		select {
		case snap := <-ch:
			return len(snap) == 5
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatch_OtherScopeNotNotified(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := s.Watch(ctx, models.CategoryMarkup, room)
	<-ch

	_, err := s.Create(context.Background(), &models.Entity{
		Category: models.CategoryMarkup, Scope: models.Scope{IncidentID: 1, RoomID: 99},
	})
	require.NoError(t, err)

	select {
	case snap := <-ch:
		t.Fatalf("unexpected snapshot %v", snap)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWatch_ClosesOnCancel(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	ch := s.Watch(ctx, models.CategoryMarkup, room)
	<-ch
	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}
