package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rubrix-app/rubrix-api/internal/models"
	"github.com/rubrix-app/rubrix-api/internal/store"
)

// Saver persists session snapshots.
type Saver interface {
	Save(ctx context.Context, state *models.GradingSessionState) error
}

// Autosaver periodically persists a machine's snapshot. The timer only
// fires a save when the machine is dirty, and it reads the live machine at
// fire time rather than a snapshot captured at registration, so long
// intervals never persist stale data. Commits additionally force an
// immediate save independent of the timer.
type Autosaver struct {
	machine  *Machine
	saver    Saver
	interval time.Duration
	logger   zerolog.Logger

	mu      sync.Mutex
	saveCtx context.Context
	stop    chan struct{}
	done    chan struct{}
}

// NewAutosaver constructs the scheduler. The context supplied to Start and
// refreshed by Bind carries the auth status and privacy key the store needs.
func NewAutosaver(machine *Machine, saver Saver, interval time.Duration, logger zerolog.Logger) *Autosaver {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Autosaver{
		machine:  machine,
		saver:    saver,
		interval: interval,
		logger:   logger.With().Str("component", "autosaver").Logger(),
		saveCtx:  context.Background(),
	}
}

// Bind refreshes the context used for timer-driven saves. Called on every
// request touching the session so the latest auth status and privacy key
// are in effect when the timer fires.
func (a *Autosaver) Bind(ctx context.Context) {
	a.mu.Lock()
	a.saveCtx = context.WithoutCancel(ctx)
	a.mu.Unlock()
}

// Start launches the autosave loop. It returns immediately; Stop shuts the
// loop down.
func (a *Autosaver) Start() {
	a.mu.Lock()
	if a.stop != nil {
		a.mu.Unlock()
		return
	}
	a.stop = make(chan struct{})
	a.done = make(chan struct{})
	stop, done := a.stop, a.done
	a.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				a.saveIfDirty()
			}
		}
	}()
}

// Stop terminates the autosave loop and waits for it to exit.
func (a *Autosaver) Stop() {
	a.mu.Lock()
	stop, done := a.stop, a.done
	a.stop = nil
	a.done = nil
	a.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}

func (a *Autosaver) saveIfDirty() {
	if !a.machine.ConsumeDirty() {
		return
	}

	a.mu.Lock()
	ctx := a.saveCtx
	a.mu.Unlock()

	if err := a.saver.Save(ctx, a.machine.Snapshot()); err != nil {
		// Progress not saved is a user-visible warning, never a crash.
		if errors.Is(err, store.ErrPrivacyKeyMissing) {
			a.logger.Warn().Msg("autosave skipped: privacy key missing")
			return
		}
		a.logger.Warn().Err(err).Msg("autosave failed")
	}
}

// Flush forces an immediate save of the live state, independent of the
// timer. Callers use it right after a unit commit. When the save fails the
// dirty flag is restored so the timer retries the snapshot.
func (a *Autosaver) Flush(ctx context.Context) error {
	a.machine.ConsumeDirty()
	if err := a.saver.Save(ctx, a.machine.Snapshot()); err != nil {
		a.machine.dirty.Store(true)
		return err
	}
	return nil
}
