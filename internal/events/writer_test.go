package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	evt, err := New(now, CrewJoined, 3, 42, Payload{"crew_count": 2})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01T11:00:00Z", evt.TS)
	assert.Equal(t, int64(3), evt.MissionID)
	assert.Equal(t, int64(42), evt.ActorID)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(evt.Payload), &payload))
	assert.EqualValues(t, 2, payload["crew_count"])

	evt, err = New(now, MissionCreated, 1, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", evt.Payload)
}
