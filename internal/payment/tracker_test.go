package payment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTracker(t *testing.T) (*Tracker, *MemoryStore, context.Context) {
	t.Helper()
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Insert(ctx, Open("o1", decimal.RequireFromString("90.00"), time.Now())))
	return NewTracker(store, zerolog.Nop()), store, ctx
}

func TestRecordSuccess(t *testing.T) {
	tr, _, ctx := newTracker(t)

	p, changed, err := tr.RecordResult(ctx, "o1", true, "tx-1")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, StatusSuccess, p.Status)
	require.NotNil(t, p.TransactionRef)
	assert.Equal(t, "tx-1", *p.TransactionRef)
	assert.NotNil(t, p.PaidAt)
}

func TestRecordFailureLeavesPaidAtUnset(t *testing.T) {
	tr, _, ctx := newTracker(t)

	p, changed, err := tr.RecordResult(ctx, "o1", false, "tx-9")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, StatusFailed, p.Status)
	assert.Nil(t, p.PaidAt)
}

func TestRecordRepeatIsNoop(t *testing.T) {
	tr, _, ctx := newTracker(t)
	first, _, err := tr.RecordResult(ctx, "o1", true, "tx-1")
	require.NoError(t, err)

	again, changed, err := tr.RecordResult(ctx, "o1", true, "tx-1")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, first, again)
}

func TestRecordConflictIsAlreadyFinalized(t *testing.T) {
	tr, _, ctx := newTracker(t)
	_, _, err := tr.RecordResult(ctx, "o1", true, "tx-1")
	require.NoError(t, err)

	p, changed, err := tr.RecordResult(ctx, "o1", false, "tx-2")
	assert.True(t, errors.Is(err, ErrAlreadyFinalized))
	assert.False(t, changed)
	assert.Equal(t, StatusSuccess, p.Status)
}

func TestAbandonThenLateSuccessConflicts(t *testing.T) {
	tr, _, ctx := newTracker(t)

	p, err := tr.MarkAbandoned(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, p.Status)

	_, err = tr.MarkAbandoned(ctx, "o1")
	assert.NoError(t, err)

	_, _, err = tr.RecordResult(ctx, "o1", true, "tx-late")
	assert.True(t, errors.Is(err, ErrAlreadyFinalized))

	_, changed, err := tr.RecordResult(ctx, "o1", false, "")
	assert.NoError(t, err)
	assert.False(t, changed)
}

func TestRefund(t *testing.T) {
	tr, _, ctx := newTracker(t)

	_, err := tr.Refund(ctx, "o1", "rf-1")
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	_, _, err = tr.RecordResult(ctx, "o1", true, "tx-1")
	require.NoError(t, err)
	p, err := tr.Refund(ctx, "o1", "rf-1")
	require.NoError(t, err)
	assert.Equal(t, StatusRefunded, p.Status)

	// a redelivered success after the refund is still a repeat
	_, changed, err := tr.RecordResult(ctx, "o1", true, "tx-1")
	assert.NoError(t, err)
	assert.False(t, changed)
}

func TestUnknownOrder(t *testing.T) {
	tr, _, ctx := newTracker(t)
	_, _, err := tr.RecordResult(ctx, "missing", true, "tx")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDuplicateInsert(t *testing.T) {
	_, store, ctx := newTracker(t)
	err := store.Insert(ctx, Open("o1", decimal.NewFromInt(1), time.Now()))
	assert.True(t, errors.Is(err, ErrDuplicate))
}

func TestConcurrentResultsFinalizeOnce(t *testing.T) {
	tr, _, ctx := newTracker(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	changes := 0
	start := make(chan struct{})
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(ok bool) {
			defer wg.Done()
			<-start
			_, changed, _ := tr.RecordResult(ctx, "o1", ok, "tx")
			if changed {
				mu.Lock()
				changes++
				mu.Unlock()
			}
		}(i%2 == 0)
	}
	close(start)
	wg.Wait()
	assert.Equal(t, 1, changes)
}
