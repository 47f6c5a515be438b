package history

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)

func TestNewRecords(t *testing.T) {
	ok := NewSuccess("o1", "VWRL", base, 50, 200, 0.25, PriceSourceLive)
	assert.NotEmpty(t, ok.ID)
	assert.True(t, ok.Success)
	assert.Empty(t, ok.ErrorReason)
	assert.Equal(t, 0.25, ok.SharesAcquired)
	assert.Equal(t, 200.0, ok.PricePerShare)

	failed := NewFailure("o1", "VWRL", base, 50, InsufficientFunds)
	assert.NotEmpty(t, failed.ID)
	assert.NotEqual(t, ok.ID, failed.ID)
	assert.False(t, failed.Success)
	assert.Equal(t, InsufficientFunds, failed.ErrorReason)
	assert.Zero(t, failed.PricePerShare)
	assert.Zero(t, failed.SharesAcquired)
}

func TestLog_AppendAndQuery(t *testing.T) {
	l := NewLog(zerolog.Nop())

	l.Append(NewFailure("a", "X", base, 20, PriceUnavailable))
	l.Append(NewSuccess("b", "Y", base.Add(time.Minute), 30, 10, 3, PriceSourceLive))
	l.Append(NewSuccess("a", "X", base.Add(2*time.Minute), 20, 4, 5, PriceSourceLive))

	require.Equal(t, 3, l.Len())

	all := l.All()
	assert.Equal(t, "a", all[0].OrderID)
	assert.Equal(t, "b", all[1].OrderID)
	assert.Equal(t, "a", all[2].OrderID)

	forA := l.ForOrder("a")
	require.Len(t, forA, 2)
	assert.True(t, forA[0].Success, "newest first")
	assert.False(t, forA[1].Success)

	assert.Empty(t, l.ForOrder("missing"))

	recent := l.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, all[2].ID, recent[0].ID)
	assert.Equal(t, all[1].ID, recent[1].ID)

	assert.Len(t, l.Recent(0), 3)
	assert.Len(t, l.Recent(100), 3)
}

func TestLog_AppendAssignsID(t *testing.T) {
	l := NewLog(zerolog.Nop())
	rec := l.Append(ExecutionRecord{OrderID: "a", Success: true, ErrorReason: LedgerRejected})
	assert.NotEmpty(t, rec.ID)
	assert.Empty(t, rec.ErrorReason, "successful records carry no reason")
}

func TestLog_ReturnsCopies(t *testing.T) {
	l := NewLog(zerolog.Nop())
	l.Append(NewSuccess("a", "X", base, 20, 4, 5, PriceSourceLive))

	all := l.All()
	all[0].Amount = 999
	assert.Equal(t, 20.0, l.All()[0].Amount)
}

func TestLog_SnapshotRestorePreservesOrder(t *testing.T) {
	l := NewLog(zerolog.Nop())
	for i := 0; i < 10; i++ {
		l.Append(NewSuccess(fmt.Sprintf("o%d", i%3), "X", base.Add(time.Duration(i)*time.Hour), 10, 1, 10, PriceSourceLive))
	}

	restored := NewLog(zerolog.Nop())
	restored.Restore(l.Snapshot())
	assert.Equal(t, l.All(), restored.All())
}

func TestLog_ConcurrentAppend(t *testing.T) {
	l := NewLog(zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l.Append(NewFailure(fmt.Sprintf("o%d", i%5), "X", base, 10, PriceUnavailable))
			_ = l.Recent(5)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 100, l.Len())
	assert.Len(t, l.ForOrder("o0"), 20)
}

func TestLog_Summarize(t *testing.T) {
	l := NewLog(zerolog.Nop())
	l.Append(NewSuccess("a", "X", base, 100, 100, 1, PriceSourceLive))
	l.Append(NewSuccess("a", "X", base.AddDate(0, 0, 7), 100, 50, 2, PriceSourceLive))
	l.Append(NewFailure("a", "X", base.AddDate(0, 0, 14), 100, PriceUnavailable))
	l.Append(NewSuccess("b", "Y", base, 10, 1, 10, PriceSourceLive))
	l.Append(NewFailure("a", "X", base.AddDate(0, 0, 14).Add(time.Hour), 100, InsufficientFunds))

	s := l.Summarize("a")
	assert.Equal(t, "a", s.OrderID)
	assert.Equal(t, 4, s.Attempts)
	assert.Equal(t, 2, s.Successes)
	assert.Equal(t, 2, s.Failures)
	assert.Equal(t, 2, s.ConsecutiveFailures)
	assert.Equal(t, InsufficientFunds, s.LastFailureReason)
	require.NotNil(t, s.LastSuccessAt)
	assert.True(t, base.AddDate(0, 0, 7).Equal(*s.LastSuccessAt))
	assert.InDelta(t, 200.0, s.TotalInvested, 1e-9)
	assert.InDelta(t, 3.0, s.TotalShares, 1e-9)
	// (100*1 + 50*2) / 3
	assert.InDelta(t, 200.0/3.0, s.AveragePrice, 1e-9)
	// sample std dev of {100, 50}
	assert.InDelta(t, 35.355339, s.PriceStdDev, 1e-6)
}

func TestLog_SummarizeEdgeCases(t *testing.T) {
	l := NewLog(zerolog.Nop())

	empty := l.Summarize("none")
	assert.Zero(t, empty.Attempts)
	assert.Zero(t, empty.AveragePrice)
	assert.Nil(t, empty.LastSuccessAt)

	l.Append(NewSuccess("one", "X", base, 10, 5, 2, PriceSourceLive))
	single := l.Summarize("one")
	assert.Equal(t, 5.0, single.AveragePrice)
	assert.Zero(t, single.PriceStdDev)
	assert.Zero(t, single.ConsecutiveFailures)

	l.Append(NewFailure("fail", "X", base, 10, PriceUnavailable))
	l.Append(NewFailure("fail", "X", base, 10, PriceUnavailable))
	failing := l.Summarize("fail")
	assert.Equal(t, 2, failing.ConsecutiveFailures)
	assert.Zero(t, failing.Successes)
	assert.Zero(t, failing.AveragePrice)
}
