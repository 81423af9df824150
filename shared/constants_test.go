package shared

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeatID(t *testing.T) {
	assert.Equal(t, "A1", SeatID(0, 0))
	assert.Equal(t, "A12", SeatID(0, 11))
	assert.Equal(t, "C4", SeatID(2, 3))
	assert.Equal(t, "J10", SeatID(9, 9))
}

func TestSeatEventSubject(t *testing.T) {
	assert.Equal(t, "seats.show-1.locked", SeatEventSubject("locked", "show-1"))
	assert.Equal(t, "seats.show-1.unlocked", SeatEventSubject("unlocked", "show-1"))
	assert.Equal(t, "seats.show-1.unlocked", SeatEventSubject("expired", "show-1"))
	assert.Equal(t, "seats.show-1.booked", SeatEventSubject("booked", "show-1"))
	assert.Equal(t, "", SeatEventSubject("bogus", "show-1"))
}

func TestNewEnvelope(t *testing.T) {
	env, err := NewEnvelope(MessageTypeSeatSelected, SelectionPayload{
		SessionID: "show-1",
		SeatIDs:   []string{"A1", "A2"},
	})
	require.NoError(t, err)
	assert.Equal(t, MessageTypeSeatSelected, env.Type)
	assert.NotEmpty(t, env.Timestamp)

	var p SelectionPayload
	require.NoError(t, json.Unmarshal(env.Data, &p))
	assert.Equal(t, "show-1", p.SessionID)
	assert.Equal(t, []string{"A1", "A2"}, p.SeatIDs)
}

func TestKeyHelpers(t *testing.T) {
	assert.Equal(t, "session:show-1:seats", SessionSeatsKey("show-1"))
	assert.Equal(t, "session:show-1:config", SessionConfigKey("show-1"))
	assert.Equal(t, "session:show-1:seat:A1:lock", SeatLockKey("show-1", "A1"))
}
