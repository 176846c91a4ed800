// Package separation owns the job lifecycle: admission against the credit
// ledger, simulated progress, backend invocation on completion, and
// persistence of finished work as projects.
package separation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"demixer/core/session"
	"demixer/logger"
	"demixer/model"
)

// Controller drives one job at a time through
// Idle → Admitted → Running → Completed | Failed | Cancelled.
// A new Submit discards the previous job, whatever its state; persisted
// projects are the only completed form that survives.
type Controller struct {
	mu       sync.Mutex
	sess     *session.Session
	backend  Backend
	progress ProgressSource
	job      *model.Job
	onUpdate func(model.JobUpdate)
}

// NewController wires a controller to a session, backend and progress
// source.
func NewController(sess *session.Session, backend Backend, progress ProgressSource) *Controller {
	if progress == nil {
		progress = NewRandomSource()
	}
	return &Controller{sess: sess, backend: backend, progress: progress}
}

// SetUpdateCallback registers the observer notified after every state or
// progress change. Must be set before the runner starts ticking.
func (c *Controller) SetUpdateCallback(fn func(model.JobUpdate)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUpdate = fn
}

// Submit admits the asset as a new job. Admission check and the one-credit
// debit are a single atomic step: the debit itself is the check, so no two
// concurrent submissions can spend the same credit, and no job reaches
// Running without a committed debit.
func (c *Controller) Submit(asset model.Asset) (*model.Job, error) {
	// Identity and ledger come out of the session in one atomic read so a
	// logout racing this call cannot leave us holding a torn-down ledger.
	_, ledger, err := c.sess.Admission()
	if err != nil {
		return nil, ErrUnauthenticated
	}

	if _, err := ledger.Debit(); err != nil {
		return nil, &QuotaExhaustedError{Remaining: ledger.Remaining(), Needed: 1}
	}

	c.mu.Lock()
	c.job = &model.Job{
		ID:              uuid.NewString(),
		SourceAssetRef:  asset.ObjectKey,
		SourceAssetName: asset.Name,
		State:           model.JobAdmitted,
		CreatedAt:       time.Now(),
	}
	// Admission commits straight into Running inside this critical
	// section; the Admitted state never escapes the lock.
	c.job.State = model.JobRunning
	job := *c.job
	update := c.update()
	c.mu.Unlock()

	logger.Info("job admitted",
		logger.String("jobId", job.ID),
		logger.String("asset", asset.Name),
		logger.Int("creditsRemaining", ledger.Remaining()))

	c.notify(update)
	return &job, nil
}

// Advance moves a running job forward by one bounded random increment and
// returns the delta. Once progress reaches 100 it clamps, invokes the
// backend exactly once, and lands in Completed or Failed. Called from any
// other state it is a no-op: a tick already dispatched when the job was
// cancelled must not mutate anything on arrival.
func (c *Controller) Advance(ctx context.Context) (float64, error) {
	c.mu.Lock()
	if c.job == nil || c.job.State != model.JobRunning {
		c.mu.Unlock()
		return 0, nil
	}

	delta := c.progress.Next()
	c.job.Progress += delta
	if c.job.Progress < 100 {
		update := c.update()
		c.mu.Unlock()
		c.notify(update)
		return delta, nil
	}

	c.job.Progress = 100
	asset := model.Asset{ObjectKey: c.job.SourceAssetRef, Name: c.job.SourceAssetName}
	jobID := c.job.ID
	c.mu.Unlock()

	// Backend runs outside the lock so Cancel stays responsive during a
	// long separation.
	tracks, err := c.backend.Run(ctx, asset)

	c.mu.Lock()
	if c.job == nil || c.job.ID != jobID || c.job.State != model.JobRunning {
		// Discarded by a newer submission or cancelled while the backend
		// ran; the terminal state stands and the result is dropped.
		c.mu.Unlock()
		return delta, nil
	}
	if err != nil {
		c.job.State = model.JobFailed
		c.job.Error = err.Error()
		update := c.update()
		c.mu.Unlock()
		logger.Warn("separation backend failed",
			logger.String("jobId", jobID), logger.ErrorField(err))
		c.notify(update)
		// The debited credit is not refunded: attempts are metered.
		return delta, &BackendError{Reason: err.Error()}
	}
	c.job.ResultTracks = tracks
	c.job.State = model.JobCompleted
	update := c.update()
	c.mu.Unlock()

	logger.Info("job completed",
		logger.String("jobId", jobID), logger.Int("tracks", len(tracks)))
	c.notify(update)
	return delta, nil
}

// Cancel stops an admitted or running job. The credit is not refunded.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	if c.job == nil || !c.job.State.Active() {
		state := model.JobIdle
		if c.job != nil {
			state = c.job.State
		}
		c.mu.Unlock()
		return &InvalidStateError{Op: "cancel", State: state}
	}
	c.job.State = model.JobCancelled
	update := c.update()
	c.mu.Unlock()

	logger.Info("job cancelled", logger.String("jobId", update.JobID))
	c.notify(update)
	return nil
}

// Persist saves the completed job as a project. With an empty projectID
// every call appends a fresh project; passing an ID returned by a previous
// call makes the operation a no-op, so a double-clicked save never
// duplicates data.
func (c *Controller) Persist(ctx context.Context, name, projectID string) (*model.Project, error) {
	c.mu.Lock()
	if c.job == nil || c.job.State != model.JobCompleted {
		state := model.JobIdle
		if c.job != nil {
			state = c.job.State
		}
		c.mu.Unlock()
		return nil, &InvalidStateError{Op: "persist", State: state}
	}

	if projectID != "" {
		if existing, ok := c.sess.FindProject(projectID); ok {
			c.mu.Unlock()
			return &existing, nil
		}
	}

	if name == "" {
		name = c.job.SourceAssetName
	}
	project := model.Project{
		ID:              uuid.NewString(),
		Name:            name,
		SourceAssetName: c.job.SourceAssetName,
		CreatedAt:       time.Now(),
		Tracks:          append([]model.Track(nil), c.job.ResultTracks...),
	}
	c.mu.Unlock()

	c.sess.AppendProject(project)
	if err := c.sess.Save(ctx); err != nil {
		logger.Error("failed to persist session after project save",
			logger.String("projectId", project.ID), logger.ErrorField(err))
		return nil, err
	}

	logger.Info("project saved",
		logger.String("projectId", project.ID), logger.String("name", project.Name))
	return &project, nil
}

// Job returns a copy of the current job, or nil before the first Submit.
func (c *Controller) Job() *model.Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.job == nil {
		return nil
	}
	job := *c.job
	return &job
}

func (c *Controller) update() model.JobUpdate {
	return model.JobUpdate{
		JobID:    c.job.ID,
		State:    c.job.State,
		Progress: c.job.Progress,
		Error:    c.job.Error,
	}
}

// notify delivers an update outside the controller lock.
func (c *Controller) notify(u model.JobUpdate) {
	c.mu.Lock()
	fn := c.onUpdate
	c.mu.Unlock()
	if fn != nil {
		fn(u)
	}
}
