package services

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/fieldsync/internal/common"
	"github.com/dmitrijs2005/fieldsync/internal/server/models"
	"github.com/dmitrijs2005/fieldsync/internal/server/repositories/repomanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecordService(t *testing.T, now time.Time) *RecordService {
	t.Helper()
	s := NewRecordService(nil, repomanager.NewMemoryRepositoryManager())
	s.now = func() time.Time { return now }
	return s
}

func TestRecordService_SeqTimeNeverRepeats(t *testing.T) {
	now := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)
	s := newRecordService(t, now)
	ctx := context.Background()

	a, err := s.Push(ctx, "alice", models.Record{Category: "markup", IncidentID: 1, Payload: []byte(`{}`)})
	require.NoError(t, err)
	b, err := s.Push(ctx, "alice", models.Record{Category: "markup", IncidentID: 1, Payload: []byte(`{}`)})
	require.NoError(t, err)

	assert.True(t, a.SeqTime.Equal(now))
	assert.True(t, b.SeqTime.After(a.SeqTime))

	// a clock running backwards does not move seq times back
	s.now = func() time.Time { return now.Add(-time.Hour) }
	c, err := s.Push(ctx, "alice", models.Record{Category: "markup", IncidentID: 1, Payload: []byte(`{}`)})
	require.NoError(t, err)
	assert.True(t, c.SeqTime.After(b.SeqTime))
}

func TestRecordService_PushSetsOwnerAndID(t *testing.T) {
	s := newRecordService(t, time.Now())
	rec, err := s.Push(context.Background(), "alice", models.Record{
		ID: "client-chosen", Category: "hazards", IncidentID: 3, RoomID: 9, Owner: "mallory", Payload: []byte(`{"k":"v"}`),
	})
	require.NoError(t, err)
	assert.NotEqual(t, "client-chosen", rec.ID)
	assert.Equal(t, "alice", rec.Owner)
	assert.Equal(t, int64(9), rec.RoomID)
}

func TestRecordService_Validation(t *testing.T) {
	s := newRecordService(t, time.Now())
	ctx := context.Background()

	tests := []struct {
		name string
		rec  models.Record
	}{
		{name: "no category", rec: models.Record{Payload: []byte(`{}`)}},
		{name: "array payload", rec: models.Record{Category: "markup", Payload: []byte(`[1]`)}},
		{name: "broken payload", rec: models.Record{Category: "markup", Payload: []byte(`{"a":`)}},
		{name: "negative scope", rec: models.Record{Category: "markup", IncidentID: -1, Payload: []byte(`{}`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Push(ctx, "alice", tt.rec)
			assert.ErrorIs(t, err, common.ErrorValidation)
		})
	}

	_, err := s.Update(ctx, models.Record{Category: "markup", Payload: []byte(`{}`)})
	assert.ErrorIs(t, err, common.ErrorValidation)
	assert.ErrorIs(t, s.Delete(ctx, "markup", ""), common.ErrorValidation)
	_, err = s.Pull(ctx, models.RecordQuery{})
	assert.ErrorIs(t, err, common.ErrorValidation)
}

func TestRecordService_UpdateDeletePull(t *testing.T) {
	base := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)
	s := newRecordService(t, base)
	ctx := context.Background()

	kept, err := s.Push(ctx, "alice", models.Record{Category: "markup", IncidentID: 1, RoomID: 2, Payload: []byte(`{"v":1}`)})
	require.NoError(t, err)
	gone, err := s.Push(ctx, "alice", models.Record{Category: "markup", IncidentID: 1, RoomID: 2, Payload: []byte(`{"v":1}`)})
	require.NoError(t, err)
	_, err = s.Push(ctx, "alice", models.Record{Category: "markup", IncidentID: 1, RoomID: 3, Payload: []byte(`{}`)})
	require.NoError(t, err)

	upd, err := s.Update(ctx, models.Record{ID: kept.ID, Category: "markup", Payload: []byte(`{"v":2}`)})
	require.NoError(t, err)
	assert.Equal(t, "alice", upd.Owner)
	assert.Equal(t, int64(2), upd.RoomID)
	assert.True(t, upd.SeqTime.After(kept.SeqTime))

	require.NoError(t, s.Delete(ctx, "markup", gone.ID))
	assert.ErrorIs(t, s.Delete(ctx, "markup", gone.ID), common.ErrorNotFound)
	_, err = s.Update(ctx, models.Record{ID: gone.ID, Category: "markup", Payload: []byte(`{}`)})
	assert.ErrorIs(t, err, common.ErrorNotFound)

	res, err := s.Pull(ctx, models.RecordQuery{Category: "markup", IncidentID: 1, RoomID: 2})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, kept.ID, res.Records[0].ID)
	assert.JSONEq(t, `{"v":2}`, string(res.Records[0].Payload))
	assert.Equal(t, []string{gone.ID}, res.Deleted)

	res, err = s.Pull(ctx, models.RecordQuery{Category: "markup", IncidentID: 1, RoomID: 2, Since: upd.SeqTime})
	require.NoError(t, err)
	assert.Empty(t, res.Records)
	assert.Equal(t, []string{gone.ID}, res.Deleted)
	// the tombstone is the newest change
	assert.True(t, res.Until.After(upd.SeqTime))

	res, err = s.Pull(ctx, models.RecordQuery{Category: "markup", IncidentID: 1, RoomID: 2, Since: res.Until})
	require.NoError(t, err)
	assert.Empty(t, res.Records)
	assert.Empty(t, res.Deleted)
	assert.True(t, res.Until.IsZero())
}
