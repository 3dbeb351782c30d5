package sessionrepofakes

import (
	"context"
	"encoding/json"
	"sync"

	apperrors "github.com/jrsteele09/rhr-session/internal/errors"
	"github.com/jrsteele09/rhr-session/session"
)

var _ session.Repo = (*FakeSessionRepo)(nil)

// FakeSessionRepo keeps the record as JSON in memory so tests observe
// exactly what would have been persisted.
type FakeSessionRepo struct {
	lock    sync.Mutex
	record  []byte
	saves   int
	saveErr error
	loadErr error
}

func NewFakeSessionRepo() *FakeSessionRepo {
	return &FakeSessionRepo{}
}

// WithRecord seeds the repo with a persisted session.
func (r *FakeSessionRepo) WithRecord(s *session.Session) *FakeSessionRepo {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.record, _ = json.Marshal(s)
	return r
}

// FailSaves makes every following Save return err (nil restores success).
func (r *FakeSessionRepo) FailSaves(err error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.saveErr = err
}

// FailLoads makes Load return err.
func (r *FakeSessionRepo) FailLoads(err error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.loadErr = err
}

func (r *FakeSessionRepo) Load(_ context.Context) (*session.Session, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.loadErr != nil {
		return nil, r.loadErr
	}
	if r.record == nil {
		return nil, apperrors.ErrSessionNotFound
	}
	var s session.Session
	if err := json.Unmarshal(r.record, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *FakeSessionRepo) Save(_ context.Context, s *session.Session) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	r.record = data
	r.saves++
	return nil
}

// Persisted returns the last saved session, or nil.
func (r *FakeSessionRepo) Persisted() *session.Session {
	s, err := r.Load(context.Background())
	if err != nil {
		return nil
	}
	return s
}

// Saves returns the number of successful writes.
func (r *FakeSessionRepo) Saves() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.saves
}
