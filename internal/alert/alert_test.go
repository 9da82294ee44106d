package alert

import (
	"bytes"
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct{}

func (failingStore) Save(context.Context, Alert) error { return errors.New("db down") }

func TestRaisePersistsAndLogs(t *testing.T) {
	var buf bytes.Buffer
	store := &MemoryStore{}
	r := NewReporter(store, zerolog.New(&buf))

	a := r.Raise(context.Background(), KindIntegrity, "o1", "commit_stock", errors.New("reserved < qty"))

	require.Len(t, store.List(), 1)
	assert.Equal(t, a, store.List()[0])
	assert.Equal(t, "reserved < qty", a.Detail)
	assert.Len(t, store.ByKind(KindIntegrity), 1)
	assert.Empty(t, store.ByKind(KindRefundRequired))
	assert.Contains(t, buf.String(), `"kind":"integrity"`)
	assert.Contains(t, buf.String(), `"order_id":"o1"`)
}

func TestRaiseSurvivesStoreFailure(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(failingStore{}, zerolog.New(&buf))

	a := r.Raise(context.Background(), KindStateConflict, "o2", "payment_event", nil)
	assert.Equal(t, KindStateConflict, a.Kind)
	assert.Contains(t, buf.String(), "persist alert")
}

func TestRaiseWithoutStore(t *testing.T) {
	r := NewReporter(nil, zerolog.Nop())
	a := r.Raise(context.Background(), KindUnknownOrder, "o3", "payment_event", nil)
	assert.NotEmpty(t, a.ID)
}
