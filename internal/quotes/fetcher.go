package quotes

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"portfolio-tracker/internal/valuation"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Batch is the settled outcome of fetching a set of symbols.
type Batch struct {
	Quotes   map[string]valuation.Quote
	Failures map[string]error
}

// Missing returns the symbols that could not be fetched, sorted.
func (b *Batch) Missing() []string {
	missing := make([]string, 0, len(b.Failures))
	for symbol := range b.Failures {
		missing = append(missing, symbol)
	}
	sort.Strings(missing)
	return missing
}

// BatchFetcher fans quote requests out over a Source.
type BatchFetcher struct {
	source      Source
	logger      *zap.Logger
	timeout     time.Duration
	concurrency int64
}

// NewBatchFetcher creates a fetcher issuing at most concurrency requests at
// once, each bounded by timeout. A zero timeout leaves requests bounded only
// by the caller's context.
//
// A request that times out frees its slot immediately. If the source ignores
// its context the abandoned call keeps running, so concurrency bounds the
// requests being waited on, not every call still in flight at the source.
func NewBatchFetcher(source Source, logger *zap.Logger, timeout time.Duration, concurrency int) *BatchFetcher {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &BatchFetcher{
		source:      source,
		logger:      logger.Named("quotes"),
		timeout:     timeout,
		concurrency: int64(concurrency),
	}
}

type fetchResult struct {
	symbol string
	quote  valuation.Quote
	err    error
}

// FetchAll returns the quotes of every symbol that could be fetched.
func (f *BatchFetcher) FetchAll(ctx context.Context, symbols []string) (map[string]valuation.Quote, error) {
	batch, err := f.Fetch(ctx, symbols)
	if err != nil {
		return nil, err
	}
	return batch.Quotes, nil
}

// Fetch requests every distinct symbol concurrently and waits for all of
// them to settle. Per-symbol failures are recorded in Batch.Failures and do
// not fail the call. ErrSourceUnavailable is returned only when every symbol
// failed at the transport level. If ctx ends first, ctx.Err() is returned
// and outstanding requests are abandoned.
func (f *BatchFetcher) Fetch(ctx context.Context, symbols []string) (*Batch, error) {
	distinct := Distinct(symbols)
	batch := &Batch{
		Quotes:   make(map[string]valuation.Quote, len(distinct)),
		Failures: make(map[string]error),
	}
	if len(distinct) == 0 {
		return batch, nil
	}

	sem := semaphore.NewWeighted(f.concurrency)
	// Buffered so abandoned goroutines never block on send.
	results := make(chan fetchResult, len(distinct))

	var wg sync.WaitGroup
	for _, s := range distinct {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				results <- fetchResult{symbol: symbol, err: err}
				return
			}
			defer sem.Release(1)

			q, err := f.fetchOne(ctx, symbol)
			results <- fetchResult{symbol: symbol, quote: q, err: err}
		}(s)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	for settled := false; !settled; {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case r, ok := <-results:
			if !ok {
				settled = true
				break
			}
			if r.err != nil {
				batch.Failures[r.symbol] = r.err
				f.logger.Debug("Quote fetch failed", zap.String("symbol", r.symbol), zap.Error(r.err))
				continue
			}
			batch.Quotes[r.symbol] = r.quote
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(batch.Failures) > 0 {
		f.logger.Warn("Some quotes could not be fetched",
			zap.Int("requested", len(distinct)),
			zap.Int("failed", len(batch.Failures)),
			zap.Strings("symbols", batch.Missing()),
		)
	}

	if len(batch.Quotes) == 0 && allTransportFailures(batch.Failures) {
		first := batch.Failures[batch.Missing()[0]]
		return nil, fmt.Errorf("%w: all %d symbols failed: %v", ErrSourceUnavailable, len(distinct), first)
	}
	return batch, nil
}

// fetchOne fetches a single symbol, giving up after f.timeout even if the
// source ignores its context.
func (f *BatchFetcher) fetchOne(ctx context.Context, symbol string) (valuation.Quote, error) {
	fctx := ctx
	if f.timeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	done := make(chan fetchResult, 1)
	go func() {
		q, err := f.source.GetQuote(fctx, symbol)
		done <- fetchResult{symbol: symbol, quote: q, err: err}
	}()

	var r fetchResult
	select {
	case r = <-done:
	case <-fctx.Done():
		r = fetchResult{symbol: symbol, err: fctx.Err()}
	}

	if r.err != nil {
		// A source that answered with a rate limit keeps that answer even if
		// the per-symbol deadline passed meanwhile.
		if ctx.Err() == nil && errors.Is(fctx.Err(), context.DeadlineExceeded) && !errors.Is(r.err, ErrRateLimited) {
			return valuation.Quote{}, fmt.Errorf("quote %s timed out after %s: %w", symbol, f.timeout, context.DeadlineExceeded)
		}
		return valuation.Quote{}, r.err
	}

	if err := Validate(r.quote); err != nil {
		return valuation.Quote{}, err
	}
	q := r.quote
	q.Symbol = symbol
	return q, nil
}

func allTransportFailures(failures map[string]error) bool {
	if len(failures) == 0 {
		return false
	}
	for _, err := range failures {
		if !isTransportFailure(err) {
			return false
		}
	}
	return true
}

// Distinct normalises symbols and removes blanks and duplicates. The result
// is sorted.
func Distinct(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = NormalizeSymbol(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
