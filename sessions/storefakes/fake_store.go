package storefakes

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-baas-sdk/sessions"
)

var _ sessions.Store = (*FakeStore)(nil)

// FakeStore is an in-memory Store that counts calls and can be forced to
// fail, for exercising error paths in lifecycle tests.
type FakeStore struct {
	lock       sync.Mutex
	inner      *sessions.InMemoryStore
	SetErr     error
	GetCalls   int
	SetCalls   int
	ClearCalls int
}

// NewFakeStore creates a FakeStore using the default codec.
func NewFakeStore() *FakeStore {
	return &FakeStore{inner: sessions.NewInMemoryStore(sessions.DefaultCodec())}
}

func (f *FakeStore) GetActive(ctx context.Context, key string) (*sessions.Session, error) {
	f.lock.Lock()
	f.GetCalls++
	f.lock.Unlock()
	return f.inner.GetActive(ctx, key)
}

func (f *FakeStore) SetActive(ctx context.Context, key string, session *sessions.Session) (*sessions.Session, error) {
	f.lock.Lock()
	if session == nil {
		f.ClearCalls++
	} else {
		f.SetCalls++
	}
	err := f.SetErr
	f.lock.Unlock()

	if err != nil {
		return nil, err
	}
	return f.inner.SetActive(ctx, key, session)
}

func (f *FakeStore) GetActiveIdentity(ctx context.Context, key string) (*sessions.ActiveIdentity, error) {
	return f.inner.GetActiveIdentity(ctx, key)
}

func (f *FakeStore) SetActiveIdentity(ctx context.Context, key string, identity *sessions.ActiveIdentity) error {
	return f.inner.SetActiveIdentity(ctx, key, identity)
}
