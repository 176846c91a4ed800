package model

// StemCategory classifies a separated track. It drives presentation only.
type StemCategory string

const (
	StemVocals StemCategory = "vocals"
	StemDrums  StemCategory = "drums"
	StemBass   StemCategory = "bass"
	StemOther  StemCategory = "other"
)

// Track is one derived audio stem produced by a completed job. Immutable
// once the backend returns it.
type Track struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	MediaRef string       `json:"mediaRef"` // object-storage key, served via /media/
	Category StemCategory `json:"category"`
	Duration float64      `json:"duration"` // seconds, as reported by the backend
}
