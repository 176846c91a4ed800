package model

// PlaybackState is the transient transport state for one mounted track.
// Not persisted; it exists only while the track is loaded in a player.
type PlaybackState struct {
	TrackID         string  `json:"trackId"`
	PositionSeconds float64 `json:"positionSeconds"`
	DurationSeconds float64 `json:"durationSeconds"`
	IsPlaying       bool    `json:"isPlaying"`
	Volume          float64 `json:"volume"` // 0..1
}

// Progress returns playback completion in [0,1]. Unknown duration reads as
// zero, never NaN.
func (s PlaybackState) Progress() float64 {
	if s.DurationSeconds <= 0 {
		return 0
	}
	return s.PositionSeconds / s.DurationSeconds
}
