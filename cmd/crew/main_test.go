package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crewline/internal/engine"
)

func TestParseID(t *testing.T) {
	id, err := parseID(" 42 ", "mission")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, raw := range []string{"", "0", "-3", "abc"} {
		_, err := parseID(raw, "mission")
		assert.Error(t, err, raw)
	}
}

func TestExitCode(t *testing.T) {
	business := &engine.Error{Kind: engine.KindCapacityExceeded, Op: "join", MissionID: 1}
	assert.Equal(t, 2, exitCode(business))
	assert.Equal(t, 2, exitCode(fmt.Errorf("wrapped: %w", business)))
	assert.Equal(t, 1, exitCode(&engine.Error{Kind: engine.KindPersistence, Op: "join", Err: errors.New("disk")}))
	assert.Equal(t, 1, exitCode(errors.New("flag parse")))
}
