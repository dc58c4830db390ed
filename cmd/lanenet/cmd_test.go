package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lanenet "github.com/yulon/go-lanenet"
	"github.com/yulon/go-lanenet/sim"
)

func TestReadCommands(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmds := make(chan string)
	done := make(chan error, 1)
	go func() {
		done <- readCommands(ctx, strings.NewReader("spawn Fire_vizard\nstats\n"), cmds)
	}()

	assert.Equal(t, "spawn Fire_vizard", <-cmds)
	assert.Equal(t, "stats", <-cmds)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("reader did not stop")
	}
}

func TestRunCommand(t *testing.T) {
	sess := lanenet.NewSession(lanenet.RoleHost)
	defer sess.Close()
	log := zerolog.Nop()

	// an idle session refuses spawns without ending the loop
	require.NoError(t, runCommand(sess, "spawn Fire_vizard", log))
	require.NoError(t, runCommand(sess, "spawn", log))
	require.NoError(t, runCommand(sess, "stats", log))
	require.NoError(t, runCommand(sess, "state", log))
	require.NoError(t, runCommand(sess, "", log))
	require.NoError(t, runCommand(sess, "dance", log))
	assert.Empty(t, sess.State().Units)

	assert.ErrorIs(t, runCommand(sess, "quit", log), errQuit)
	assert.ErrorIs(t, runCommand(sess, "q", log), errQuit)
}

func TestPrintResult(t *testing.T) {
	var buf bytes.Buffer
	printResult(&buf, lanenet.MatchResult{
		SessionID: uuid.New(),
		Outcome:   sim.OutcomeLeftWins,
		Duration:  92400 * time.Millisecond,
		LeftHP:    310,
		Peer:      "10.0.0.7:5555",
		EndedAt:   time.Now(),
	})
	assert.Contains(t, buf.String(), "Left Team Wins!")
	assert.Contains(t, buf.String(), "1m32s")
	assert.Contains(t, buf.String(), "10.0.0.7:5555")
}

func TestSetupLogging(t *testing.T) {
	prev := zerolog.GlobalLevel()
	defer zerolog.SetGlobalLevel(prev)

	setupLogging("warn", nil)
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
	setupLogging("bogus", nil)
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
