package quotes

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"portfolio-tracker/internal/valuation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockSource is a mock implementation of the Source interface.
type MockSource struct {
	mock.Mock
}

func (m *MockSource) GetQuote(ctx context.Context, symbol string) (valuation.Quote, error) {
	args := m.Called(symbol)
	return args.Get(0).(valuation.Quote), args.Error(1)
}

// sourceFunc lets a test control timing directly.
type sourceFunc func(ctx context.Context, symbol string) (valuation.Quote, error)

func (f sourceFunc) GetQuote(ctx context.Context, symbol string) (valuation.Quote, error) {
	return f(ctx, symbol)
}

func newFetcher(source Source) *BatchFetcher {
	return NewBatchFetcher(source, zap.NewNop(), time.Second, 4)
}

func TestFetchAll_PartialBatch(t *testing.T) {
	source := new(MockSource)
	source.On("GetQuote", "AAPL").Return(valuation.Quote{Symbol: "AAPL", Price: 150}, nil)
	source.On("GetQuote", "ZZZZINVALID").Return(valuation.Quote{}, fmt.Errorf("lookup: %w", ErrSymbolNotFound))

	quotes, err := newFetcher(source).FetchAll(context.Background(), []string{"AAPL", "ZZZZINVALID"})

	require.NoError(t, err)
	assert.Len(t, quotes, 1)
	assert.Equal(t, 150.0, quotes["AAPL"].Price)
	_, ok := quotes["ZZZZINVALID"]
	assert.False(t, ok)
	source.AssertExpectations(t)
}

func TestFetch_DedupesAndNormalises(t *testing.T) {
	source := new(MockSource)
	source.On("GetQuote", "AAPL").Return(valuation.Quote{Symbol: "aapl", Price: 150}, nil).Once()
	source.On("GetQuote", "MSFT").Return(valuation.Quote{Symbol: "MSFT", Price: 400}, nil).Once()

	batch, err := newFetcher(source).Fetch(context.Background(), []string{"aapl", " AAPL ", "MSFT", ""})

	require.NoError(t, err)
	assert.Len(t, batch.Quotes, 2)
	assert.Equal(t, "AAPL", batch.Quotes["AAPL"].Symbol)
	assert.Empty(t, batch.Failures)
	source.AssertExpectations(t)
}

func TestFetch_Empty(t *testing.T) {
	source := new(MockSource)

	batch, err := newFetcher(source).Fetch(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, batch.Quotes)
	assert.Empty(t, batch.Missing())
	source.AssertNotCalled(t, "GetQuote", mock.Anything)
}

func TestFetch_RateLimitedIsPerSymbol(t *testing.T) {
	source := new(MockSource)
	source.On("GetQuote", "AAPL").Return(valuation.Quote{}, ErrRateLimited)
	source.On("GetQuote", "MSFT").Return(valuation.Quote{}, ErrRateLimited)

	batch, err := newFetcher(source).Fetch(context.Background(), []string{"AAPL", "MSFT"})

	require.NoError(t, err)
	assert.Empty(t, batch.Quotes)
	assert.Equal(t, []string{"AAPL", "MSFT"}, batch.Missing())
}

func TestFetch_InvalidQuoteIsAMiss(t *testing.T) {
	source := new(MockSource)
	source.On("GetQuote", "AAPL").Return(valuation.Quote{Symbol: "AAPL", Price: -1}, nil)
	source.On("GetQuote", "MSFT").Return(valuation.Quote{Symbol: "MSFT", Price: 400}, nil)

	batch, err := newFetcher(source).Fetch(context.Background(), []string{"AAPL", "MSFT"})

	require.NoError(t, err)
	assert.ErrorIs(t, batch.Failures["AAPL"], ErrInvalidQuote)
	assert.Contains(t, batch.Quotes, "MSFT")
}

func TestFetch_TotalTransportFailure(t *testing.T) {
	source := new(MockSource)
	source.On("GetQuote", mock.Anything).Return(valuation.Quote{}, fmt.Errorf("dial tcp: %w", ErrUpstreamUnavailable))

	_, err := newFetcher(source).Fetch(context.Background(), []string{"AAPL", "MSFT", "GOOG"})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestFetch_MixedFailuresAreNotTotal(t *testing.T) {
	source := new(MockSource)
	source.On("GetQuote", "AAPL").Return(valuation.Quote{}, ErrUpstreamUnavailable)
	source.On("GetQuote", "ZZZZ").Return(valuation.Quote{}, ErrSymbolNotFound)

	batch, err := newFetcher(source).Fetch(context.Background(), []string{"AAPL", "ZZZZ"})

	require.NoError(t, err)
	assert.Len(t, batch.Failures, 2)
}

func TestFetch_PerSymbolTimeout(t *testing.T) {
	source := sourceFunc(func(ctx context.Context, symbol string) (valuation.Quote, error) {
		if symbol == "SLOW" {
			// ignores ctx on purpose
			time.Sleep(2 * time.Second)
		}
		return valuation.Quote{Symbol: symbol, Price: 10}, nil
	})
	fetcher := NewBatchFetcher(source, zap.NewNop(), 50*time.Millisecond, 4)

	start := time.Now()
	batch, err := fetcher.Fetch(context.Background(), []string{"FAST", "SLOW"})

	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Contains(t, batch.Quotes, "FAST")
	assert.ErrorIs(t, batch.Failures["SLOW"], context.DeadlineExceeded)
}

func TestFetch_AllTimeoutsAreTotalFailure(t *testing.T) {
	source := sourceFunc(func(ctx context.Context, symbol string) (valuation.Quote, error) {
		<-ctx.Done()
		return valuation.Quote{}, ctx.Err()
	})
	fetcher := NewBatchFetcher(source, zap.NewNop(), 20*time.Millisecond, 2)

	_, err := fetcher.Fetch(context.Background(), []string{"A", "B", "C"})

	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestFetch_Cancelled(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	source := sourceFunc(func(ctx context.Context, symbol string) (valuation.Quote, error) {
		<-release
		return valuation.Quote{Symbol: symbol, Price: 1}, nil
	})
	fetcher := NewBatchFetcher(source, zap.NewNop(), 0, 2)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	batch, err := fetcher.Fetch(ctx, []string{"A", "B", "C"})

	assert.Nil(t, batch)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestFetch_BoundsConcurrency(t *testing.T) {
	var inFlight, peak int32
	source := sourceFunc(func(ctx context.Context, symbol string) (valuation.Quote, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return valuation.Quote{Symbol: symbol, Price: 1}, nil
	})
	fetcher := NewBatchFetcher(source, zap.NewNop(), time.Second, 2)

	symbols := make([]string, 0, 10)
	for i := 0; i < 10; i++ {
		symbols = append(symbols, fmt.Sprintf("S%d", i))
	}
	batch, err := fetcher.Fetch(context.Background(), symbols)

	require.NoError(t, err)
	assert.Len(t, batch.Quotes, 10)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestDistinct(t *testing.T) {
	assert.Equal(t, []string{"AAPL", "BRK.B", "MSFT"}, Distinct([]string{"msft", "AAPL", "brk.b", " aapl", "  "}))
	assert.Empty(t, Distinct(nil))
}
