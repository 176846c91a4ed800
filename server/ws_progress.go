package server

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"demixer/core/auth"
	"demixer/logger"
	"demixer/model"
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// progressHub fans job updates out to websocket subscribers. Slow readers
// drop updates rather than stalling the runner.
type progressHub struct {
	mu     sync.Mutex
	subs   map[chan model.JobUpdate]struct{}
	closed bool
}

func newProgressHub() *progressHub {
	return &progressHub{subs: make(map[chan model.JobUpdate]struct{})}
}

// subscribe registers a listener and returns its channel plus the
// unsubscribe function.
func (h *progressHub) subscribe() (chan model.JobUpdate, func()) {
	ch := make(chan model.JobUpdate, 16)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
}

// broadcast delivers an update to every subscriber without blocking.
func (h *progressHub) broadcast(u model.JobUpdate) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- u:
		default:
		}
	}
}

// closeAll disconnects every subscriber; used on studio teardown.
func (h *progressHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		close(ch)
	}
	h.subs = make(map[chan model.JobUpdate]struct{})
	h.closed = true
}

// JobProgressHandler streams job updates over a websocket. Browsers cannot
// set an Authorization header on a websocket, so the token rides in the
// query string.
func (h *APIHandler) JobProgressHandler(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.ParseToken(r.URL.Query().Get("token"))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "invalid token")
		return
	}

	user, err := h.userRepo.GetUserByID(claims.UserID)
	if err != nil || user == nil {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "unknown user")
		return
	}
	st := h.studios.StudioFor(r.Context(), user, h.catalog.Plan(user.PlanID))

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", logger.ErrorField(err))
		return
	}
	defer conn.Close()

	updates, unsubscribe := st.hub.subscribe()
	defer unsubscribe()

	// Send the current state first so a late subscriber isn't blind until
	// the next tick.
	if job := st.ctrl.Job(); job != nil {
		snapshot := model.JobUpdate{
			JobID:    job.ID,
			State:    job.State,
			Progress: job.Progress,
			Error:    job.Error,
		}
		if err := conn.WriteJSON(snapshot); err != nil {
			return
		}
		if job.State.Terminal() {
			return
		}
	}

	for update := range updates {
		if err := conn.WriteJSON(update); err != nil {
			logger.Warn("websocket write failed", logger.ErrorField(err))
			return
		}
		if update.State.Terminal() {
			return
		}
	}
}
