package status

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var stored = []SendStatus{WaitingToSend, Sent, Received, Update, Delete, Deleting, Updating, Saved}

func TestSendStatus_IdsMatchPersistedValues(t *testing.T) {
	want := map[SendStatus]uint8{
		WaitingToSend: 0, Sent: 1, Received: 2, Update: 3,
		Delete: 4, Deleting: 5, Updating: 6, Saved: 7,
	}
	for s, id := range want {
		assert.Equal(t, id, uint8(s), s.String())
		assert.True(t, s.Valid())
	}
	assert.False(t, Unknown.Valid())
	assert.False(t, SendStatus(8).Valid())
}

func TestSendStatus_String(t *testing.T) {
	assert.Equal(t, "WAITING_TO_SEND", WaitingToSend.String())
	assert.Equal(t, "UPDATING", Updating.String())
	assert.Equal(t, "SendStatus(42)", SendStatus(42).String())
}

func TestParse(t *testing.T) {
	for _, s := range stored {
		got, err := Parse(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}

	got, err := Parse(" update ")
	require.NoError(t, err)
	assert.Equal(t, Update, got)

	got, err = Parse("7")
	require.NoError(t, err)
	assert.Equal(t, Saved, got)

	for _, bad := range []string{"UNKNOWN", "255", "-1", "lost"} {
		_, err := Parse(bad)
		assert.ErrorIs(t, err, ErrUnknownStatus, bad)
	}
}

func TestIsPendingAndInFlight(t *testing.T) {
	pending := map[SendStatus]bool{
		WaitingToSend: true, Sent: true, Update: true, Updating: true,
		Delete: true, Deleting: true, Received: false, Saved: false,
	}
	for s, want := range pending {
		assert.Equal(t, want, s.IsPending(), s.String())
	}

	for _, s := range stored {
		want := s == Sent || s == Updating || s == Deleting
		assert.Equal(t, want, s.InFlight(), s.String())
	}
}
