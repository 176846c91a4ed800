package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"demixer/config"
	"demixer/model"
)

// memoryKV is the in-memory KeyValuePersistence used by tests.
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
		return nil, ErrNotFound
	}
	return data, nil
}

func (m *memoryKV) Save(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[key] = append([]byte(nil), value...)
	return nil
}

func testUser() *model.User {
	return &model.User{ID: 42, Username: "ada", PlanID: "free"}
}

func testPlan() config.Plan {
	return config.Plan{ID: "free", Name: "Free", Credits: 3}
}

func TestOpenWithoutSnapshotUsesPlanDefaults(t *testing.T) {
	sess := Open(context.Background(), testUser(), testPlan(), newMemoryKV())

	assert.Equal(t, 3, sess.Ledger().Total())
	assert.Equal(t, 3, sess.Ledger().Remaining())
	assert.Empty(t, sess.Projects())
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := newMemoryKV()

	sess := Open(ctx, testUser(), testPlan(), kv)
	_, err := sess.Ledger().Debit()
	require.NoError(t, err)

	sess.AppendProject(model.Project{ID: "p1", Name: "First", CreatedAt: time.Now()})
	sess.AppendProject(model.Project{ID: "p2", Name: "Second", CreatedAt: time.Now()})
	require.NoError(t, sess.Save(ctx))

	restored := Open(ctx, testUser(), testPlan(), kv)
	assert.Equal(t, 2, restored.Ledger().Remaining(), "spent credits survive a reopen")
	assert.Equal(t, 3, restored.Ledger().Total())

	projects := restored.Projects()
	require.Len(t, projects, 2)
	assert.Equal(t, "p2", projects[0].ID, "most recent project listed first")
	assert.Equal(t, "p1", projects[1].ID)
}

func TestOpenCorruptSnapshotFallsBack(t *testing.T) {
	ctx := context.Background()
	kv := newMemoryKV()
	require.NoError(t, kv.Save(ctx, "session:42", []byte("{not json")))

	sess := Open(ctx, testUser(), testPlan(), kv)
	assert.Equal(t, 3, sess.Ledger().Remaining())
	assert.Empty(t, sess.Projects())
}

func TestAppendProjectPrepends(t *testing.T) {
	sess := Open(context.Background(), testUser(), testPlan(), newMemoryKV())
	sess.AppendProject(model.Project{ID: "a"})
	sess.AppendProject(model.Project{ID: "b"})
	sess.AppendProject(model.Project{ID: "c"})

	projects := sess.Projects()
	require.Len(t, projects, 3)
	assert.Equal(t, "c", projects[0].ID)
	assert.Equal(t, "b", projects[1].ID)
	assert.Equal(t, "a", projects[2].ID)

	found, ok := sess.FindProject("b")
	require.True(t, ok)
	assert.Equal(t, "b", found.ID)

	_, ok = sess.FindProject("missing")
	assert.False(t, ok)
}

func TestProjectsReturnsCopy(t *testing.T) {
	sess := Open(context.Background(), testUser(), testPlan(), newMemoryKV())
	sess.AppendProject(model.Project{ID: "a", Name: "original"})

	projects := sess.Projects()
	projects[0].Name = "mutated"

	assert.Equal(t, "original", sess.Projects()[0].Name)
}

func TestResetLedgerGrantsNewAllotment(t *testing.T) {
	ctx := context.Background()
	kv := newMemoryKV()

	sess := Open(ctx, testUser(), testPlan(), kv)
	_, err := sess.Ledger().Debit()
	require.NoError(t, err)
	sess.AppendProject(model.Project{ID: "p1"})

	sess.ResetLedger(config.Plan{ID: "pro", Credits: 30})
	require.NoError(t, sess.Save(ctx))

	assert.Equal(t, 30, sess.Ledger().Remaining())
	assert.Len(t, sess.Projects(), 1, "plan change keeps projects")

	restored := Open(ctx, testUser(), config.Plan{ID: "pro", Credits: 30}, kv)
	assert.Equal(t, 30, restored.Ledger().Remaining(), "new allotment survives a reopen")
}

func TestCloseTearsDownSession(t *testing.T) {
	sess := Open(context.Background(), testUser(), testPlan(), newMemoryKV())
	sess.Close()

	assert.Nil(t, sess.Identity())
	assert.ErrorIs(t, sess.Save(context.Background()), ErrNoIdentity)
}

func TestAdmissionIsAtomicWithTeardown(t *testing.T) {
	sess := Open(context.Background(), testUser(), testPlan(), newMemoryKV())

	identity, ledger, err := sess.Admission()
	require.NoError(t, err)
	assert.Equal(t, int64(42), identity.ID)
	require.NotNil(t, ledger)
	assert.Equal(t, 3, ledger.Remaining())

	sess.Close()

	_, _, err = sess.Admission()
	assert.ErrorIs(t, err, ErrNoIdentity)
}
