package separation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"demixer/model"
)

func TestRunnerDrivesJobToTerminalState(t *testing.T) {
	sess := newTestSession(3)
	backend := &countingBackend{inner: NewSimulator()}
	ctrl := NewController(sess, backend, stepSource{step: 25})

	_, err := ctrl.Submit(testAsset())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, NewRunner(time.Millisecond).Drive(ctx, ctrl))

	job := ctrl.Job()
	assert.Equal(t, model.JobCompleted, job.State)
	assert.Equal(t, 100.0, job.Progress)
	assert.Equal(t, 1, backend.count())
}

func TestRunnerStopsOnCancelledContext(t *testing.T) {
	ctrl := NewController(newTestSession(3), NewSimulator(), stepSource{step: 1})
	_, err := ctrl.Submit(testAsset())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = NewRunner(time.Millisecond).Drive(ctx, ctrl)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunnerReturnsWhenNoJob(t *testing.T) {
	ctrl := NewController(newTestSession(3), NewSimulator(), stepSource{step: 1})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	assert.NoError(t, NewRunner(time.Millisecond).Drive(ctx, ctrl))
}
