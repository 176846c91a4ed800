package server

import (
	"context"
	"sync"
	"time"

	"demixer/config"
	"demixer/core/playback"
	"demixer/core/separation"
	"demixer/core/session"
	"demixer/logger"
	"demixer/model"
)

// playerTick is how often mounted transports advance their clocks.
const playerTick = 500 * time.Millisecond

// studio bundles the per-user core components for the lifetime of a login:
// session facade, job controller, multi-stem player and the progress hub
// feeding websocket subscribers.
type studio struct {
	sess   *session.Session
	ctrl   *separation.Controller
	player *playback.Synchronizer
	hub    *progressHub

	mu        sync.Mutex
	cancelJob context.CancelFunc
	stopTick  chan struct{}
}

// beginRun hands the controller to a fresh runner goroutine, cancelling
// any previous one. The runner is the tick source for Advance.
func (st *studio) beginRun(runner *separation.Runner) {
	st.mu.Lock()
	if st.cancelJob != nil {
		st.cancelJob()
	}
	ctx, cancel := context.WithCancel(context.Background())
	st.cancelJob = cancel
	st.mu.Unlock()

	go func() {
		defer cancel()
		if err := runner.Drive(ctx, st.ctrl); err != nil && ctx.Err() == nil {
			logger.Warn("job runner stopped", logger.ErrorField(err))
		}
	}()
}

// close stops the runner and the player clock and tears the session down.
func (st *studio) close() {
	st.mu.Lock()
	if st.cancelJob != nil {
		st.cancelJob()
		st.cancelJob = nil
	}
	if st.stopTick != nil {
		close(st.stopTick)
		st.stopTick = nil
	}
	st.mu.Unlock()

	st.player.Unload()
	st.hub.closeAll()
	st.sess.Close()
}

// StudioManager owns one studio per logged-in user, created lazily on the
// first authenticated request and dropped on logout.
type StudioManager struct {
	mu       sync.Mutex
	studios  map[int64]*studio
	kv       session.KeyValuePersistence
	backend  separation.Backend
	progress separation.ProgressSource
}

// NewStudioManager wires the shared collaborators every studio uses.
func NewStudioManager(kv session.KeyValuePersistence, backend separation.Backend, progress separation.ProgressSource) *StudioManager {
	return &StudioManager{
		studios:  make(map[int64]*studio),
		kv:       kv,
		backend:  backend,
		progress: progress,
	}
}

// StudioFor returns the user's studio, opening one if needed.
func (m *StudioManager) StudioFor(ctx context.Context, user *model.User, plan config.Plan) *studio {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st, ok := m.studios[user.ID]; ok {
		return st
	}

	st := &studio{
		sess:     session.Open(ctx, user, plan, m.kv),
		player:   playback.NewSynchronizer(),
		hub:      newProgressHub(),
		stopTick: make(chan struct{}),
	}
	st.ctrl = separation.NewController(st.sess, m.backend, m.progress)
	st.ctrl.SetUpdateCallback(st.hub.broadcast)

	// Player clock: transports only move while playing, so an idle studio
	// costs one timer.
	go func(stop <-chan struct{}) {
		ticker := time.NewTicker(playerTick)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				st.player.Tick(playerTick.Seconds())
			}
		}
	}(st.stopTick)

	m.studios[user.ID] = st
	logger.Info("studio opened", logger.Int64("userId", user.ID))
	return st
}

// Drop tears down a user's studio on logout or plan change.
func (m *StudioManager) Drop(userID int64) {
	m.mu.Lock()
	st, ok := m.studios[userID]
	delete(m.studios, userID)
	m.mu.Unlock()

	if ok {
		st.close()
		logger.Info("studio closed", logger.Int64("userId", userID))
	}
}

// DropAll tears down every studio; used on server shutdown.
func (m *StudioManager) DropAll() {
	m.mu.Lock()
	studios := m.studios
	m.studios = make(map[int64]*studio)
	m.mu.Unlock()

	for _, st := range studios {
		st.close()
	}
}
