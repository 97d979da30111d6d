package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	cases := map[string]Status{
		"Open":        StatusOpen,
		"open":        StatusOpen,
		"InProgress":  StatusInProgress,
		"in_progress": StatusInProgress,
		"in-progress": StatusInProgress,
		" Completed ": StatusCompleted,
		"FAILED":      StatusFailed,
	}
	for in, want := range cases {
		got, err := ParseStatus(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"", "Closed", "Cancelled", "Open!"} {
		_, err := ParseStatus(bad)
		assert.Error(t, err, bad)
	}
}

func TestStatusValid(t *testing.T) {
	for _, st := range Statuses() {
		assert.True(t, st.Valid(), st)
	}
	assert.False(t, Status("open").Valid())
	assert.False(t, Status("Archived").Valid())
}

func TestCanTransition(t *testing.T) {
	allowed := map[[2]Status]bool{
		{StatusOpen, StatusInProgress}:      true,
		{StatusFailed, StatusInProgress}:    true,
		{StatusInProgress, StatusCompleted}: true,
		{StatusInProgress, StatusFailed}:    true,
	}
	for _, from := range Statuses() {
		for _, to := range Statuses() {
			assert.Equal(t, allowed[[2]Status{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestCompletedIsTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	for _, to := range Statuses() {
		assert.False(t, CanTransition(StatusCompleted, to))
	}
	assert.False(t, StatusCompleted.RosterOpen())
	assert.False(t, StatusInProgress.RosterOpen())
	assert.True(t, StatusFailed.RosterOpen())
	assert.True(t, StatusOpen.Startable())
}
