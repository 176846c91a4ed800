package separation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"demixer/config"
	"demixer/core/session"
	"demixer/model"
)

// memoryKV keeps session snapshots in a map so controller tests run without
// redis or a database.
type memoryKV struct {
	mu      sync.Mutex
	records map[string][]byte
}

func newMemoryKV() *memoryKV {
	return &memoryKV{records: make(map[string][]byte)}
}

func (m *memoryKV) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.records[key]
	if !ok {
		return nil, session.ErrNotFound
	}
	return data, nil
}

func (m *memoryKV) Save(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[key] = append([]byte(nil), value...)
	return nil
}

// stepSource advances progress by a fixed amount per tick.
type stepSource struct{ step float64 }

func (s stepSource) Next() float64 { return s.step }

// countingBackend wraps the simulator and counts invocations.
type countingBackend struct {
	mu    sync.Mutex
	calls int
	inner Backend
}

func (b *countingBackend) Run(ctx context.Context, asset model.Asset) ([]model.Track, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	return b.inner.Run(ctx, asset)
}

func (b *countingBackend) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

// blockingBackend parks inside Run until released, to widen the window a
// real separation engine would have.
type blockingBackend struct {
	entered chan struct{}
	release chan struct{}
}

func newBlockingBackend() *blockingBackend {
	return &blockingBackend{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (b *blockingBackend) Run(ctx context.Context, asset model.Asset) ([]model.Track, error) {
	close(b.entered)
	<-b.release
	return NewSimulator().Run(ctx, asset)
}

type failingBackend struct{}

func (failingBackend) Run(context.Context, model.Asset) ([]model.Track, error) {
	return nil, errors.New("engine unavailable")
}

func newTestSession(credits int) *session.Session {
	user := &model.User{ID: 7, Username: "ada", PlanID: "free"}
	plan := config.Plan{ID: "free", Name: "Free", Credits: credits}
	return session.Open(context.Background(), user, plan, newMemoryKV())
}

func testAsset() model.Asset {
	return model.Asset{
		Name:        "song.mp3",
		ObjectKey:   "assets/7/song.mp3",
		Size:        1024,
		ContentType: "audio/mpeg",
	}
}

func TestSubmitRequiresIdentity(t *testing.T) {
	sess := newTestSession(3)
	sess.Close()

	ctrl := NewController(sess, NewSimulator(), stepSource{step: 50})
	_, err := ctrl.Submit(testAsset())
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestSubmitDebitsOneCredit(t *testing.T) {
	sess := newTestSession(3)
	ctrl := NewController(sess, NewSimulator(), stepSource{step: 50})

	job, err := ctrl.Submit(testAsset())
	require.NoError(t, err)

	assert.Equal(t, model.JobRunning, job.State)
	assert.Equal(t, "song.mp3", job.SourceAssetName)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, 2, sess.Ledger().Remaining())
}

func TestSubmitWithExhaustedQuota(t *testing.T) {
	sess := newTestSession(0)
	ctrl := NewController(sess, NewSimulator(), stepSource{step: 50})

	_, err := ctrl.Submit(testAsset())

	var quotaErr *QuotaExhaustedError
	require.ErrorAs(t, err, &quotaErr)
	assert.Equal(t, 0, quotaErr.Remaining)
	assert.Equal(t, 1, quotaErr.Needed)
	assert.Nil(t, ctrl.Job(), "rejected submission must not create a job")
}

func TestSubmitDiscardsPreviousJob(t *testing.T) {
	sess := newTestSession(3)
	ctrl := NewController(sess, NewSimulator(), stepSource{step: 50})

	first, err := ctrl.Submit(testAsset())
	require.NoError(t, err)
	second, err := ctrl.Submit(testAsset())
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, second.ID, ctrl.Job().ID)
	assert.Equal(t, 1, sess.Ledger().Remaining(), "each submission costs a credit")
}

func TestAdvanceDrivesJobToCompletion(t *testing.T) {
	ctx := context.Background()
	sess := newTestSession(3)
	backend := &countingBackend{inner: NewSimulator()}
	ctrl := NewController(sess, backend, stepSource{step: 40})

	_, err := ctrl.Submit(testAsset())
	require.NoError(t, err)

	delta, err := ctrl.Advance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 40.0, delta)
	assert.Equal(t, 40.0, ctrl.Job().Progress)

	_, err = ctrl.Advance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 80.0, ctrl.Job().Progress)

	_, err = ctrl.Advance(ctx)
	require.NoError(t, err)

	job := ctrl.Job()
	assert.Equal(t, model.JobCompleted, job.State)
	assert.Equal(t, 100.0, job.Progress, "progress clamps at 100")
	require.Len(t, job.ResultTracks, 4)
	assert.Equal(t, 1, backend.count(), "backend runs exactly once per job")

	categories := make([]model.StemCategory, 0, 4)
	for _, track := range job.ResultTracks {
		categories = append(categories, track.Category)
	}
	assert.Equal(t, []model.StemCategory{
		model.StemVocals, model.StemDrums, model.StemBass, model.StemOther,
	}, categories)

	// Completed jobs ignore further ticks.
	delta, err = ctrl.Advance(ctx)
	require.NoError(t, err)
	assert.Zero(t, delta)
	assert.Equal(t, 1, backend.count())
}

func TestAdvanceWithoutJobIsNoOp(t *testing.T) {
	ctrl := NewController(newTestSession(3), NewSimulator(), stepSource{step: 40})

	delta, err := ctrl.Advance(context.Background())
	require.NoError(t, err)
	assert.Zero(t, delta)
}

func TestCancelStopsRunningJob(t *testing.T) {
	ctx := context.Background()
	sess := newTestSession(3)
	ctrl := NewController(sess, NewSimulator(), stepSource{step: 40})

	_, err := ctrl.Submit(testAsset())
	require.NoError(t, err)
	require.NoError(t, ctrl.Cancel())

	job := ctrl.Job()
	assert.Equal(t, model.JobCancelled, job.State)
	assert.Equal(t, 2, sess.Ledger().Remaining(), "cancellation does not refund the credit")

	// A tick dispatched before the cancel landed must change nothing.
	delta, err := ctrl.Advance(ctx)
	require.NoError(t, err)
	assert.Zero(t, delta)
	assert.Equal(t, model.JobCancelled, ctrl.Job().State)

	var stateErr *InvalidStateError
	require.ErrorAs(t, ctrl.Cancel(), &stateErr)
	assert.Equal(t, model.JobCancelled, stateErr.State)
}

// A cancel landing while the backend is mid-run must stand: the in-flight
// completion drops its result instead of resurrecting the job.
func TestCancelDuringBackendRunStands(t *testing.T) {
	sess := newTestSession(3)
	backend := newBlockingBackend()
	ctrl := NewController(sess, backend, stepSource{step: 100})

	_, err := ctrl.Submit(testAsset())
	require.NoError(t, err)

	advanced := make(chan struct{})
	go func() {
		defer close(advanced)
		_, _ = ctrl.Advance(context.Background())
	}()

	<-backend.entered
	require.NoError(t, ctrl.Cancel())
	assert.Equal(t, model.JobCancelled, ctrl.Job().State)

	close(backend.release)
	<-advanced

	job := ctrl.Job()
	assert.Equal(t, model.JobCancelled, job.State, "completion must not overwrite a cancelled job")
	assert.Empty(t, job.ResultTracks)
}

// A logout racing a submit must fail cleanly, never panic on torn-down
// session state.
func TestSubmitRacingLogout(t *testing.T) {
	for i := 0; i < 100; i++ {
		sess := newTestSession(3)
		ctrl := NewController(sess, NewSimulator(), stepSource{step: 50})

		closed := make(chan struct{})
		go func() {
			defer close(closed)
			sess.Close()
		}()

		_, err := ctrl.Submit(testAsset())
		if err != nil {
			assert.ErrorIs(t, err, ErrUnauthenticated)
		}
		<-closed
	}
}

func TestCancelWithoutJob(t *testing.T) {
	ctrl := NewController(newTestSession(3), NewSimulator(), stepSource{step: 40})

	var stateErr *InvalidStateError
	require.ErrorAs(t, ctrl.Cancel(), &stateErr)
	assert.Equal(t, model.JobIdle, stateErr.State)
}

func TestBackendFailureKeepsCreditSpent(t *testing.T) {
	ctx := context.Background()
	sess := newTestSession(3)
	ctrl := NewController(sess, failingBackend{}, stepSource{step: 100})

	_, err := ctrl.Submit(testAsset())
	require.NoError(t, err)

	_, err = ctrl.Advance(ctx)
	var backendErr *BackendError
	require.ErrorAs(t, err, &backendErr)

	job := ctrl.Job()
	assert.Equal(t, model.JobFailed, job.State)
	assert.Equal(t, "engine unavailable", job.Error)
	assert.Empty(t, job.ResultTracks)
	assert.Equal(t, 2, sess.Ledger().Remaining(), "failed attempts are still metered")
}

func TestPersistCompletedJob(t *testing.T) {
	ctx := context.Background()
	sess := newTestSession(3)
	ctrl := NewController(sess, NewSimulator(), stepSource{step: 100})

	_, err := ctrl.Submit(testAsset())
	require.NoError(t, err)
	_, err = ctrl.Advance(ctx)
	require.NoError(t, err)

	project, err := ctrl.Persist(ctx, "My Mix", "")
	require.NoError(t, err)
	assert.Equal(t, "My Mix", project.Name)
	assert.Equal(t, "song.mp3", project.SourceAssetName)
	assert.Len(t, project.Tracks, 4)

	// Replaying the save with the returned id is a no-op.
	again, err := ctrl.Persist(ctx, "My Mix", project.ID)
	require.NoError(t, err)
	assert.Equal(t, project.ID, again.ID)
	assert.Len(t, sess.Projects(), 1)

	// A save without an id appends a fresh project, listed first.
	second, err := ctrl.Persist(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, "song.mp3", second.Name, "empty name falls back to the source file")

	projects := sess.Projects()
	require.Len(t, projects, 2)
	assert.Equal(t, second.ID, projects[0].ID)
}

func TestPersistRequiresCompletedState(t *testing.T) {
	ctx := context.Background()
	ctrl := NewController(newTestSession(3), NewSimulator(), stepSource{step: 10})

	var stateErr *InvalidStateError
	_, err := ctrl.Persist(ctx, "x", "")
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, model.JobIdle, stateErr.State)

	_, err = ctrl.Submit(testAsset())
	require.NoError(t, err)
	_, err = ctrl.Persist(ctx, "x", "")
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, model.JobRunning, stateErr.State)
}

func TestUpdateCallbackSeesLifecycle(t *testing.T) {
	ctx := context.Background()
	ctrl := NewController(newTestSession(3), NewSimulator(), stepSource{step: 60})

	var mu sync.Mutex
	var updates []model.JobUpdate
	ctrl.SetUpdateCallback(func(u model.JobUpdate) {
		mu.Lock()
		updates = append(updates, u)
		mu.Unlock()
	})

	_, err := ctrl.Submit(testAsset())
	require.NoError(t, err)
	_, err = ctrl.Advance(ctx)
	require.NoError(t, err)
	_, err = ctrl.Advance(ctx)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, updates, 3)
	assert.Equal(t, model.JobRunning, updates[0].State)
	assert.Equal(t, 60.0, updates[1].Progress)
	assert.Equal(t, model.JobCompleted, updates[2].State)
	assert.Equal(t, 100.0, updates[2].Progress)
}
