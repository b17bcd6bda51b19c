package session_test

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibepruner/vibepruner/internal/session"
	"github.com/vibepruner/vibepruner/pkg/model"
)

func TestCoordinator_HandleSignal(t *testing.T) {
	wd, project := newTestWorkdir(t)
	mgr := session.NewManager(wd)

	_, err := mgr.StartSession(project, session.StartOptions{})
	require.NoError(t, err)

	coord := session.NewCoordinator(mgr)
	var order []string
	coord.RegisterHandler(func() { order = append(order, "first") })
	coord.RegisterHandler(func() { order = append(order, "second") })

	coord.HandleSignal("interrupt")

	// The interrupted flag hits disk before the handlers run.
	data, err := os.ReadFile(wd.SessionPath())
	require.NoError(t, err)
	var onDisk model.Session
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.True(t, onDisk.Interrupted)
	assert.Equal(t, "interrupt", onDisk.InterruptSignal)

	assert.Equal(t, []string{"first", "second"}, order)

	require.NoError(t, mgr.EndSession(model.SessionInterrupted))
}

func TestCoordinator_PanickingHandlerDoesNotStopOthers(t *testing.T) {
	wd, project := newTestWorkdir(t)
	mgr := session.NewManager(wd)

	_, err := mgr.StartSession(project, session.StartOptions{})
	require.NoError(t, err)
	defer mgr.EndSession(model.SessionInterrupted)

	coord := session.NewCoordinator(mgr)
	var ran bool
	coord.RegisterHandler(func() { panic("boom") })
	coord.RegisterHandler(func() { ran = true })

	coord.HandleSignal("terminated")
	assert.True(t, ran)
}

func TestCoordinator_CleanupEndsActiveSession(t *testing.T) {
	wd, project := newTestWorkdir(t)
	mgr := session.NewManager(wd)

	sess, err := mgr.StartSession(project, session.StartOptions{})
	require.NoError(t, err)
	id := sess.ID

	coord := session.NewCoordinator(mgr)
	coord.Cleanup()

	assert.False(t, mgr.Active())
	sessions, err := mgr.ListSessions()
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, id, sessions[0].ID)
	assert.Equal(t, model.SessionInterrupted, sessions[0].Status)

	// Idempotent when nothing is running.
	coord.Cleanup()
}
