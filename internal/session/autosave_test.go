package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/rubrix-app/rubrix-api/internal/models"
)

type recordingSaver struct {
	mu     sync.Mutex
	states []*models.GradingSessionState
}

func (r *recordingSaver) Save(_ context.Context, state *models.GradingSessionState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
	return nil
}

func (r *recordingSaver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}

func (r *recordingSaver) last() *models.GradingSessionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.states) == 0 {
		return nil
	}
	return r.states[len(r.states)-1]
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func waitFor(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.True(t, condition())
}

func TestAutosaverSavesOnlyWhenDirty(t *testing.T) {
	machine := New(gridRubric())
	saver := &recordingSaver{}
	autosaver := NewAutosaver(machine, saver, 20*time.Millisecond, testLogger())

	autosaver.Start()
	defer autosaver.Stop()

	// Clean machine: the timer fires but nothing is written.
	time.Sleep(70 * time.Millisecond)
	require.Equal(t, 0, saver.count())

	require.NoError(t, machine.Commit(select1("Anna", "row1", "c2")))
	waitFor(t, time.Second, func() bool { return saver.count() >= 1 })

	// Dirty flag was consumed; no further saves without new activity.
	saved := saver.count()
	time.Sleep(70 * time.Millisecond)
	require.Equal(t, saved, saver.count())
}

func TestAutosaverReadsLiveStateAtFireTime(t *testing.T) {
	machine := New(gridRubric())
	saver := &recordingSaver{}
	autosaver := NewAutosaver(machine, saver, 20*time.Millisecond, testLogger())

	require.NoError(t, machine.Commit(select1("Anna", "row1", "c2")))
	require.NoError(t, machine.Commit(select1("Bram", "row1", "c3")))

	autosaver.Start()
	defer autosaver.Stop()

	waitFor(t, time.Second, func() bool { return saver.count() >= 1 })
	require.Equal(t, []string{"Anna", "Bram"}, saver.last().StudentOrder, "snapshot reflects all activity before the tick")
}

func TestAutosaverFlushForcesImmediateSave(t *testing.T) {
	machine := New(gridRubric())
	saver := &recordingSaver{}
	autosaver := NewAutosaver(machine, saver, time.Hour, testLogger())

	require.NoError(t, machine.Commit(select1("Anna", "row1", "c2")))
	require.NoError(t, autosaver.Flush(context.Background()))

	require.Equal(t, 1, saver.count())
	require.False(t, machine.ConsumeDirty(), "flush consumes the dirty flag")
}

type failingSaver struct {
	recordingSaver
	failures int
}

func (f *failingSaver) Save(ctx context.Context, state *models.GradingSessionState) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("storage unavailable")
	}
	return f.recordingSaver.Save(ctx, state)
}

func TestAutosaverFlushFailureKeepsStateDirty(t *testing.T) {
	machine := New(gridRubric())
	saver := &failingSaver{failures: 1}
	autosaver := NewAutosaver(machine, saver, time.Hour, testLogger())

	require.NoError(t, machine.Commit(select1("Anna", "row1", "c2")))
	require.Error(t, autosaver.Flush(context.Background()))

	require.True(t, machine.ConsumeDirty(), "failed flush leaves the snapshot pending for the timer")
}

func TestAutosaverStopIsIdempotent(t *testing.T) {
	machine := New(gridRubric())
	autosaver := NewAutosaver(machine, &recordingSaver{}, 10*time.Millisecond, testLogger())

	autosaver.Start()
	autosaver.Stop()
	autosaver.Stop()
}
