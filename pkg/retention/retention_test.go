package retention

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDaysAgo(t *testing.T) {
	now := int64(1000 * 24 * 60 * 60 * 1000)
	got := daysAgo(now, 10)
	assert.Equal(t, now-10*24*60*60*1000, got)
}

func TestDeleteInBatchesStopsWhenBatchNotFull(t *testing.T) {
	s := &Service{}
	calls := 0
	s.deleteInBatches(context.Background(), "widgets", 10, func(cutoff int64, limit int) (int64, error) {
		calls++
		if calls == 1 {
			return 10, nil
		}
		return 3, nil
	}, 0)
	assert.Equal(t, 2, calls)
}

func TestDeleteInBatchesStopsOnError(t *testing.T) {
	s := &Service{}
	calls := 0
	s.deleteInBatches(context.Background(), "widgets", 10, func(cutoff int64, limit int) (int64, error) {
		calls++
		return 0, errors.New("boom")
	}, 0)
	assert.Equal(t, 1, calls)
}

func TestDeleteInBatchesStopsWhenContextCancelled(t *testing.T) {
	s := &Service{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	s.deleteInBatches(ctx, "widgets", 10, func(cutoff int64, limit int) (int64, error) {
		calls++
		return 10, nil
	}, 0)
	assert.Equal(t, 1, calls)
}
