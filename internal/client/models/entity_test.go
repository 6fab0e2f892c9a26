package models

import (
	"encoding/json"
	"testing"

	"github.com/dmitrijs2005/fieldsync/internal/client/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory(" Markup ")
	require.NoError(t, err)
	assert.Equal(t, CategoryMarkup, c)

	_, err = ParseCategory("weather")
	require.Error(t, err)
}

func TestCategories_ReturnsCopy(t *testing.T) {
	a := Categories()
	a[0] = "mutated"
	assert.Equal(t, CategoryCollabroom, Categories()[0])
}

func TestScope_ForCategory(t *testing.T) {
	s := Scope{IncidentID: 3, RoomID: 9}
	assert.Equal(t, s, s.ForCategory(CategoryMarkup))
	assert.Equal(t, Scope{IncidentID: 3}, s.ForCategory(CategoryReport))
	assert.Equal(t, Scope{IncidentID: 3}, s.ForCategory(CategoryTrackingLayer))
	assert.Equal(t, "3/9", s.String())
}

func TestEntity_CloneIsDeep(t *testing.T) {
	e := &Entity{ID: 1, Status: status.Update, Payload: json.RawMessage(`{"a":1}`)}
	c := e.Clone()
	c.Payload[2] = 'b'
	c.Status = status.Updating

	assert.Equal(t, `{"a":1}`, string(e.Payload))
	assert.Equal(t, status.Update, e.Status)
}

func TestOpKinds_DeletesFirst(t *testing.T) {
	assert.Equal(t, []OpKind{OpDelete, OpPost, OpUpdate}, OpKinds())
}

func TestOpKind_PendingAndEvents(t *testing.T) {
	assert.Equal(t, status.WaitingToSend, OpPost.Pending())
	assert.Equal(t, status.Update, OpUpdate.Pending())
	assert.Equal(t, status.Delete, OpDelete.Pending())

	started, ok, failed := OpUpdate.Events()
	assert.Equal(t, status.UpdateStarted, started)
	assert.Equal(t, status.UpdateSucceeded, ok)
	assert.Equal(t, status.UpdateFailed, failed)
}

func TestKindFor(t *testing.T) {
	for _, k := range OpKinds() {
		got, ok := KindFor(k.Pending())
		assert.True(t, ok)
		assert.Equal(t, k, got)
	}
	for _, s := range []status.SendStatus{status.Sent, status.Updating, status.Deleting, status.Received, status.Saved} {
		_, ok := KindFor(s)
		assert.False(t, ok, s.String())
	}
}
