package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"scip/internal/anchor"
	"scip/internal/models"
	"scip/internal/repository"
)

type fakeAnchorer struct {
	mu    sync.Mutex
	calls int
	token string
	err   error
	block bool
}

func (f *fakeAnchorer) Anchor(ctx context.Context, fp string) (anchor.Receipt, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return anchor.Receipt{}, &anchor.Error{Backend: "fake", Kind: anchor.KindTimeout, Err: ctx.Err()}
	}
	if f.err != nil {
		return anchor.Receipt{}, f.err
	}
	return anchor.Receipt{Token: f.token, Backend: "fake", AnchoredAt: time.Now()}, nil
}

func (f *fakeAnchorer) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeEvaluationRepo keeps records in insertion order.
type fakeEvaluationRepo struct {
	mu        sync.Mutex
	records   []*models.EvaluationRecord
	creates   int
	err       error
	createCtx context.Context
	onCreate  func(ctx context.Context)
}

func (f *fakeEvaluationRepo) Create(ctx context.Context, rec *models.EvaluationRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	f.createCtx = ctx
	if f.onCreate != nil {
		f.onCreate(ctx)
	}
	if f.err != nil {
		return f.err
	}
	rec.ID = "rec-" + string(rune('a'+len(f.records)))
	rec.Seq = int64(len(f.records) + 1)
	rec.CreatedAt = time.Now().UTC()
	cp := *rec
	f.records = append(f.records, &cp)
	return nil
}

func (f *fakeEvaluationRepo) ListByActor(_ context.Context, actorID string, limit int) ([]*models.EvaluationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := []*models.EvaluationRecord{}
	for i := len(f.records) - 1; i >= 0 && len(out) < limit; i-- {
		if f.records[i].ActorID == actorID {
			out = append(out, f.records[i])
		}
	}
	return out, nil
}

func (f *fakeEvaluationRepo) ListChain(_ context.Context, actorID string) ([]*models.EvaluationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := []*models.EvaluationRecord{}
	for _, rec := range f.records {
		if rec.ActorID == actorID {
			out = append(out, rec)
		}
	}
	return out, nil
}

type fakeAuthRepo struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func newFakeAuthRepo() *fakeAuthRepo {
	return &fakeAuthRepo{users: map[string]*models.User{}}
}

func (f *fakeAuthRepo) CreateUser(_ context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[user.Email]; ok {
		return repository.ErrDuplicate
	}
	user.ID = "user-" + user.Email
	user.CreatedAt = time.Now()
	cp := *user
	f.users[user.Email] = &cp
	return nil
}

func (f *fakeAuthRepo) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[email]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeAuthRepo) GetUserByID(_ context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, repository.ErrNotFound
}

var errDiskFull = errors.New("disk full")
