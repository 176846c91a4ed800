package playback

import (
	"errors"
	"sync"

	"demixer/model"
)

// ErrTrackNotLoaded is returned when a transport is requested for a track
// that is not mounted.
var ErrTrackNotLoaded = errors.New("track not loaded in player")

// Synchronizer presents N independently-clocked transports as one coherent
// multi-stem player. It owns nothing but the track list it was loaded with.
type Synchronizer struct {
	mu         sync.Mutex
	transports map[string]*Transport
	order      []string // track order as produced by the backend
}

// NewSynchronizer creates an empty player.
func NewSynchronizer() *Synchronizer {
	return &Synchronizer{transports: make(map[string]*Transport)}
}

// Load mounts the given tracks, replacing whatever was loaded before.
// Previous transports are discarded along with their transient state.
func (s *Synchronizer) Load(tracks []model.Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transports = make(map[string]*Transport, len(tracks))
	s.order = make([]string, 0, len(tracks))
	for _, track := range tracks {
		s.transports[track.ID] = NewTransport(track)
		s.order = append(s.order, track.ID)
	}
}

// Unload dismounts all tracks.
func (s *Synchronizer) Unload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transports = make(map[string]*Transport)
	s.order = nil
}

// Transport returns the transport for a mounted track.
func (s *Synchronizer) Transport(trackID string) (*Transport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transports[trackID]
	if !ok {
		return nil, ErrTrackNotLoaded
	}
	return t, nil
}

// Tick advances every playing transport by dt seconds. Transports remain
// independent; one reaching its end does not disturb the others.
func (s *Synchronizer) Tick(dt float64) {
	for _, t := range s.all() {
		t.Tick(dt)
	}
}

// States returns the playback state of every mounted track in backend
// order.
func (s *Synchronizer) States() []model.PlaybackState {
	transports := s.all()
	states := make([]model.PlaybackState, 0, len(transports))
	for _, t := range transports {
		states = append(states, t.State())
	}
	return states
}

// all snapshots the transports in order so per-track locks are taken
// without holding the player lock.
func (s *Synchronizer) all() []*Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Transport, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.transports[id])
	}
	return out
}
