package separation

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"demixer/model"
)

// Backend produces the separated stems for an accepted asset. Invoked
// exactly once per job, when progress reaches 100.
type Backend interface {
	Run(ctx context.Context, asset model.Asset) ([]model.Track, error)
}

// stemSet is the fixed four-stem output of the simulator.
var stemSet = []struct {
	name     string
	category model.StemCategory
}{
	{"Vocals", model.StemVocals},
	{"Drums", model.StemDrums},
	{"Bass", model.StemBass},
	{"Other", model.StemOther},
}

// Simulator stands in for the real separation engine. It always succeeds
// and returns one track per stem, with media refs under the asset's
// object-storage prefix.
type Simulator struct {
	// StemDuration is reported as each track's duration. The transport
	// still treats duration as unknown until its metadata callback fires.
	StemDuration float64
}

// NewSimulator creates a simulator reporting 3-minute stems.
func NewSimulator() *Simulator {
	return &Simulator{StemDuration: 180}
}

// Run returns the fixed four-track set.
func (s *Simulator) Run(_ context.Context, asset model.Asset) ([]model.Track, error) {
	tracks := make([]model.Track, 0, len(stemSet))
	for _, stem := range stemSet {
		tracks = append(tracks, model.Track{
			ID:       uuid.NewString(),
			Name:     stem.name,
			MediaRef: fmt.Sprintf("stems/%s/%s.mp3", asset.ObjectKey, stem.category),
			Category: stem.category,
			Duration: s.StemDuration,
		})
	}
	return tracks, nil
}
