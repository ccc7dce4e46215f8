package docstore

import (
	"context"
	"time"
)

type timeoutStore struct {
	Store
	d time.Duration
}

// WithTimeout limita cada chamada ao Store a d. Subscribe não é afetado.
func WithTimeout(s Store, d time.Duration) Store {
	if d <= 0 {
		return s
	}
	return &timeoutStore{Store: s, d: d}
}

func (t *timeoutStore) Get(ctx context.Context, collection, id string) (Record, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.Store.Get(ctx, collection, id)
}

func (t *timeoutStore) Query(ctx context.Context, collection string, q Query) ([]Record, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.Store.Query(ctx, collection, q)
}

func (t *timeoutStore) Set(ctx context.Context, collection, id string, doc any) error {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.Store.Set(ctx, collection, id, doc)
}

func (t *timeoutStore) Add(ctx context.Context, collection string, doc any) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.Store.Add(ctx, collection, doc)
}

func (t *timeoutStore) Update(ctx context.Context, collection, id string, fields Fields) error {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.Store.Update(ctx, collection, id, fields)
}

func (t *timeoutStore) Delete(ctx context.Context, collection, id string) error {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.Store.Delete(ctx, collection, id)
}
