// Package playback implements the per-track transport and the multi-stem
// synchronizer built from a completed job's output. Each track is
// independently controllable (solo-listening to one stem is a product
// choice), but every transport obeys the same contract.
package playback

import (
	"sync"

	"demixer/model"
)

// DefaultVolume is the volume a freshly mounted track starts at.
const DefaultVolume = 0.8

// Transport is the play/pause/seek/volume surface for one track. There is
// no shared clock between transports; each owns its own state.
type Transport struct {
	mu    sync.Mutex
	track model.Track
	state model.PlaybackState
}

// NewTransport mounts a track for playback. Duration starts unknown (0)
// until SetDuration delivers the loaded metadata.
func NewTransport(track model.Track) *Transport {
	return &Transport{
		track: track,
		state: model.PlaybackState{
			TrackID: track.ID,
			Volume:  DefaultVolume,
		},
	}
}

// Track returns the mounted track.
func (t *Transport) Track() model.Track {
	return t.track
}

// Play starts playback. Playing from the end restarts at zero, consistent
// with the reset performed on natural end-of-media.
func (t *Transport) Play() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.DurationSeconds > 0 && t.state.PositionSeconds >= t.state.DurationSeconds {
		t.state.PositionSeconds = 0
	}
	t.state.IsPlaying = true
}

// Pause stops playback, keeping the position.
func (t *Transport) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.IsPlaying = false
}

// Seek clamps the target into [0, duration] and moves the position without
// touching the play state. While duration is unknown seeking is a no-op.
func (t *Transport) Seek(seconds float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.DurationSeconds == 0 {
		return
	}
	if seconds < 0 {
		seconds = 0
	}
	if seconds > t.state.DurationSeconds {
		seconds = t.state.DurationSeconds
	}
	t.state.PositionSeconds = seconds
}

// SetVolume clamps into [0,1] and applies immediately, independent of play
// state.
func (t *Transport) SetVolume(volume float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if volume < 0 {
		volume = 0
	}
	if volume > 1 {
		volume = 1
	}
	t.state.Volume = volume
}

// SetDuration delivers asynchronously loaded metadata. Duration never
// shrinks below the current position; a bogus non-positive value keeps the
// duration unknown.
func (t *Transport) SetDuration(seconds float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if seconds <= 0 {
		return
	}
	t.state.DurationSeconds = seconds
	if t.state.PositionSeconds > seconds {
		t.state.PositionSeconds = seconds
	}
}

// Tick advances the position by dt seconds while playing. Reaching the end
// does not pause mid-track: it forces isPlaying false and resets the
// position to zero so a replay always starts clean.
func (t *Transport) Tick(dt float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	// Position stays pinned at zero until metadata arrives.
	if !t.state.IsPlaying || dt <= 0 || t.state.DurationSeconds == 0 {
		return
	}
	t.state.PositionSeconds += dt
	if t.state.PositionSeconds >= t.state.DurationSeconds {
		t.state.IsPlaying = false
		t.state.PositionSeconds = 0
	}
}

// State returns a copy of the current playback state.
func (t *Transport) State() model.PlaybackState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}
