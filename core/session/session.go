// Package session composes an authenticated identity, its credit ledger and
// its saved projects into the single surface the job controller and the
// profile endpoints read and mutate.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"demixer/config"
	"demixer/core/quota"
	"demixer/logger"
	"demixer/model"
)

// ErrNotFound is returned by KeyValuePersistence implementations when no
// record exists for a key.
var ErrNotFound = errors.New("record not found")

// ErrNoIdentity is returned when an operation needs a live session after
// teardown.
var ErrNoIdentity = errors.New("no identity bound to session")

// KeyValuePersistence abstracts where session snapshots live. The server
// wires a redis cache layered over a database row; tests use an in-memory
// map.
type KeyValuePersistence interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, value []byte) error
}

// Snapshot is the one record stored per identity: quota plus projects,
// serialized as a single JSON blob.
type Snapshot struct {
	Quota    quota.Snapshot  `json:"quota"`
	Projects []model.Project `json:"projects"`
}

// Session owns the mutable per-user state for the duration of a login.
type Session struct {
	mu       sync.Mutex
	identity *model.User
	ledger   *quota.Ledger
	projects []model.Project // most recent first
	kv       KeyValuePersistence
}

// Open builds a session for the user, restoring quota and projects from the
// persisted snapshot. A missing or unreadable snapshot falls back to the
// plan's nominal allotment and an empty project list rather than failing.
func Open(ctx context.Context, user *model.User, plan config.Plan, kv KeyValuePersistence) *Session {
	s := &Session{
		identity: user,
		ledger:   quota.NewLedger(plan.Credits, plan.Credits),
		kv:       kv,
	}

	data, err := kv.Load(ctx, snapshotKey(user.ID))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logger.Warn("session snapshot unreadable, using plan defaults",
				logger.Int64("userId", user.ID), logger.ErrorField(err))
		}
		return s
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		logger.Warn("session snapshot corrupt, using plan defaults",
			logger.Int64("userId", user.ID), logger.ErrorField(err))
		return s
	}

	s.ledger = quota.NewLedger(snap.Quota.Total, snap.Quota.Remaining)
	s.projects = snap.Projects
	return s
}

func snapshotKey(userID int64) string {
	return fmt.Sprintf("session:%d", userID)
}

// Identity returns the bound user, or nil after teardown.
func (s *Session) Identity() *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Admission returns the identity and ledger as one atomic read. A teardown
// racing the caller yields ErrNoIdentity instead of a live identity paired
// with a nil ledger.
func (s *Session) Admission() (*model.User, *quota.Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return nil, nil, ErrNoIdentity
	}
	return s.identity, s.ledger, nil
}

// Ledger returns the credit ledger for this identity.
func (s *Session) Ledger() *quota.Ledger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger
}

// Projects returns the saved projects, most recent first, as a copy.
func (s *Session) Projects() []model.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Project, len(s.projects))
	copy(out, s.projects)
	return out
}

// FindProject looks a project up by ID.
func (s *Session) FindProject(id string) (model.Project, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.projects {
		if p.ID == id {
			return p, true
		}
	}
	return model.Project{}, false
}

// AppendProject prepends the project so listings read most-recent-first.
// Existing entries are never reordered or removed.
func (s *Session) AppendProject(p model.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects = append([]model.Project{p}, s.projects...)
}

// ResetLedger replaces the ledger with the plan's full allotment, used when
// the identity moves to a new plan. Projects are untouched. Callers must
// Save afterwards or the stored snapshot will resurrect the old quota.
func (s *Session) ResetLedger(plan config.Plan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger = quota.NewLedger(plan.Credits, plan.Credits)
}

// Save writes the current snapshot through the persistence layer.
func (s *Session) Save(ctx context.Context) error {
	s.mu.Lock()
	if s.identity == nil {
		s.mu.Unlock()
		return ErrNoIdentity
	}
	snap := Snapshot{
		Quota:    s.ledger.Snapshot(),
		Projects: append([]model.Project(nil), s.projects...),
	}
	key := snapshotKey(s.identity.ID)
	s.mu.Unlock()

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal session snapshot: %w", err)
	}
	if err := s.kv.Save(ctx, key, data); err != nil {
		return fmt.Errorf("failed to persist session snapshot: %w", err)
	}
	return nil
}

// Close tears the session down on logout. Dependent components hold a
// reference to the session, not copies of its fields, so they observe the
// teardown immediately.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = nil
	s.ledger = nil
	s.projects = nil
}
