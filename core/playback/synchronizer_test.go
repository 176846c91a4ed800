package playback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"demixer/model"
)

func stemTracks() []model.Track {
	return []model.Track{
		{ID: "vocals", Name: "Vocals", Category: model.StemVocals},
		{ID: "drums", Name: "Drums", Category: model.StemDrums},
		{ID: "bass", Name: "Bass", Category: model.StemBass},
		{ID: "other", Name: "Other", Category: model.StemOther},
	}
}

func TestLoadMountsTracksInOrder(t *testing.T) {
	player := NewSynchronizer()
	player.Load(stemTracks())

	states := player.States()
	require.Len(t, states, 4)
	assert.Equal(t, "vocals", states[0].TrackID)
	assert.Equal(t, "drums", states[1].TrackID)
	assert.Equal(t, "bass", states[2].TrackID)
	assert.Equal(t, "other", states[3].TrackID)

	for _, state := range states {
		assert.False(t, state.IsPlaying)
		assert.Equal(t, DefaultVolume, state.Volume)
	}
}

func TestTransportLookup(t *testing.T) {
	player := NewSynchronizer()
	player.Load(stemTracks())

	transport, err := player.Transport("drums")
	require.NoError(t, err)
	assert.Equal(t, "drums", transport.Track().ID)

	_, err = player.Transport("piano")
	assert.ErrorIs(t, err, ErrTrackNotLoaded)
}

// One track's transport actions must never leak into another's state.
func TestTracksAreIndependent(t *testing.T) {
	player := NewSynchronizer()
	player.Load(stemTracks())

	vocals, err := player.Transport("vocals")
	require.NoError(t, err)
	drums, err := player.Transport("drums")
	require.NoError(t, err)

	vocals.SetDuration(100)
	drums.SetDuration(100)
	vocals.Play()
	vocals.SetVolume(0.1)

	player.Tick(5)

	assert.Equal(t, 5.0, vocals.State().PositionSeconds)
	assert.True(t, vocals.State().IsPlaying)

	drumsState := drums.State()
	assert.Zero(t, drumsState.PositionSeconds)
	assert.False(t, drumsState.IsPlaying)
	assert.Equal(t, DefaultVolume, drumsState.Volume)
}

func TestTickEndOfOneTrackLeavesOthersPlaying(t *testing.T) {
	player := NewSynchronizer()
	player.Load(stemTracks())

	vocals, _ := player.Transport("vocals")
	drums, _ := player.Transport("drums")
	vocals.SetDuration(3)
	drums.SetDuration(100)
	vocals.Play()
	drums.Play()

	player.Tick(5)

	assert.False(t, vocals.State().IsPlaying)
	assert.Zero(t, vocals.State().PositionSeconds)
	assert.True(t, drums.State().IsPlaying)
	assert.Equal(t, 5.0, drums.State().PositionSeconds)
}

func TestLoadReplacesPreviousSet(t *testing.T) {
	player := NewSynchronizer()
	player.Load(stemTracks())

	vocals, err := player.Transport("vocals")
	require.NoError(t, err)
	vocals.SetDuration(100)
	vocals.Seek(50)

	player.Load([]model.Track{{ID: "vocals", Name: "Vocals", Category: model.StemVocals}})

	fresh, err := player.Transport("vocals")
	require.NoError(t, err)
	assert.Zero(t, fresh.State().PositionSeconds, "reloading discards transient state")
	assert.Len(t, player.States(), 1)
}

func TestUnload(t *testing.T) {
	player := NewSynchronizer()
	player.Load(stemTracks())

	player.Unload()

	assert.Empty(t, player.States())
	_, err := player.Transport("vocals")
	assert.ErrorIs(t, err, ErrTrackNotLoaded)
}
