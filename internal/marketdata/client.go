package marketdata

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"portfolio-tracker/internal/config"
	"portfolio-tracker/internal/quotes"
	"portfolio-tracker/internal/valuation"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// API is the market-data surface used by the HTTP layer.
type API interface {
	GetQuote(ctx context.Context, symbol string) (valuation.Quote, error)
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
	GetProfile(ctx context.Context, symbol string) (*Profile, error)
	GetNews(ctx context.Context, symbols []string, limit int) ([]Article, error)
}

// Client is a client for a Financial Modeling Prep style JSON API.
type Client struct {
	client     *resty.Client
	apiKey     string
	logger     *zap.Logger
	limiter    *rate.Limiter
	maxRetries int
	backoff    func(attempt int) time.Duration
}

// ensure Client implements the interfaces
var (
	_ API           = (*Client)(nil)
	_ quotes.Source = (*Client)(nil)
)

// NewClient creates a new market-data client.
func NewClient(cfg *config.MarketData, logger *zap.Logger) *Client {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")

	if cfg.ApiKey == "" {
		logger.Warn("Market data API key is not set, requests will likely be rejected")
	}

	maxRetries := cfg.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}

	return &Client{
		client:     client,
		apiKey:     cfg.ApiKey,
		logger:     logger.Named("marketdata"),
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst),
		maxRetries: maxRetries,
		backoff:    exponentialBackoff,
	}
}

// exponentialBackoff waits 1s, 2s, 4s, ...
func exponentialBackoff(attempt int) time.Duration {
	return time.Duration(math.Pow(2, float64(attempt))) * time.Second
}

// newRequest prepares a request carrying the API key.
func (c *Client) newRequest(ctx context.Context) *resty.Request {
	req := c.client.R().
		SetContext(ctx).
		ForceContentType("application/json")
	if c.apiKey != "" {
		req.SetQueryParam("apikey", c.apiKey)
	}
	return req
}

// doRequest executes req with rate limiting and retries. Errors are mapped
// onto the quotes error taxonomy.
func (c *Client) doRequest(ctx context.Context, method, path string, req *resty.Request) (*resty.Response, error) {
	var lastErr error

	for i := 0; i < c.maxRetries; i++ {
		// Wait for the rate limiter. It fails early when the wait would pass
		// ctx's deadline, which is local throttling rather than an upstream
		// failure.
		if err := c.limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("%w: %v", quotes.ErrRateLimited, err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("path", path))
		resp, err := req.Execute(method, path)

		var retryAfter time.Duration
		switch {
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			lastErr = fmt.Errorf("%w: %v", quotes.ErrUpstreamUnavailable, err)
		case !resp.IsError():
			return resp, nil
		case resp.StatusCode() == http.StatusNotFound:
			return nil, fmt.Errorf("%w: %s", quotes.ErrSymbolNotFound, path)
		case resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden:
			return nil, fmt.Errorf("%w: request rejected with status %s", quotes.ErrUpstreamUnavailable, resp.Status())
		case resp.StatusCode() == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("%w: status %s", quotes.ErrRateLimited, resp.Status())
			if seconds, err := strconv.Atoi(resp.Header().Get("Retry-After")); err == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		case resp.StatusCode() >= http.StatusInternalServerError:
			lastErr = fmt.Errorf("%w: status %s", quotes.ErrUpstreamUnavailable, resp.Status())
		default:
			return nil, fmt.Errorf("request failed with status %s: %s", resp.Status(), resp.String())
		}

		if i == c.maxRetries-1 {
			break
		}
		if retryAfter == 0 {
			retryAfter = c.backoff(i)
		}

		c.logger.Warn("Request failed, retrying...",
			zap.String("path", path),
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(lastErr),
		)

		// A throttled request that cannot wait out its Retry-After stays a
		// rate limit rather than turning into a timeout.
		throttled := errors.Is(lastErr, quotes.ErrRateLimited)
		if deadline, ok := ctx.Deadline(); ok && throttled && time.Until(deadline) < retryAfter {
			return nil, fmt.Errorf("%w (retry after %s exceeds deadline)", lastErr, retryAfter)
		}

		select {
		case <-time.After(retryAfter):
		case <-ctx.Done():
			if throttled {
				return nil, fmt.Errorf("%w (%v)", lastErr, ctx.Err())
			}
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", c.maxRetries, lastErr)
}

// quoteResponse is the wire shape of one /quote entry.
type quoteResponse struct {
	Symbol            string   `json:"symbol"`
	Name              string   `json:"name"`
	Price             *float64 `json:"price"`
	Change            float64  `json:"change"`
	ChangesPercentage float64  `json:"changesPercentage"`
	Volume            *float64 `json:"volume"`
	MarketCap         *float64 `json:"marketCap"`
}

// toQuote coerces the wire shape into a validated Quote.
func (r quoteResponse) toQuote() (valuation.Quote, error) {
	if r.Price == nil {
		return valuation.Quote{}, fmt.Errorf("%w: %s has no price", quotes.ErrInvalidQuote, r.Symbol)
	}
	q := valuation.Quote{
		Symbol:            quotes.NormalizeSymbol(r.Symbol),
		Price:             *r.Price,
		Change:            r.Change,
		ChangesPercentage: r.ChangesPercentage,
		MarketCap:         r.MarketCap,
	}
	if r.Volume != nil {
		v := int64(*r.Volume)
		q.Volume = &v
	}
	if err := quotes.Validate(q); err != nil {
		return valuation.Quote{}, err
	}
	return q, nil
}

// GetQuote fetches the current quote for symbol.
func (c *Client) GetQuote(ctx context.Context, symbol string) (valuation.Quote, error) {
	symbol = quotes.NormalizeSymbol(symbol)
	if symbol == "" {
		return valuation.Quote{}, fmt.Errorf("%w: empty symbol", quotes.ErrSymbolNotFound)
	}

	var result []quoteResponse
	req := c.newRequest(ctx).SetResult(&result)

	if _, err := c.doRequest(ctx, http.MethodGet, "/quote/"+url.PathEscape(symbol), req); err != nil {
		return valuation.Quote{}, fmt.Errorf("failed to get quote for %s: %w", symbol, err)
	}

	for _, r := range result {
		if quotes.NormalizeSymbol(r.Symbol) == symbol {
			return r.toQuote()
		}
	}
	return valuation.Quote{}, fmt.Errorf("%w: %s", quotes.ErrSymbolNotFound, symbol)
}

// SearchResult is a symbol matching a search query.
type SearchResult struct {
	Symbol            string `json:"symbol"`
	Name              string `json:"name"`
	Currency          string `json:"currency"`
	StockExchange     string `json:"stockExchange"`
	ExchangeShortName string `json:"exchangeShortName"`
}

// Search looks up symbols and company names matching query.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []SearchResult{}, nil
	}
	if limit <= 0 {
		limit = 10
	}

	var result []SearchResult
	req := c.newRequest(ctx).
		SetQueryParam("query", query).
		SetQueryParam("limit", strconv.Itoa(limit)).
		SetResult(&result)

	if _, err := c.doRequest(ctx, http.MethodGet, "/search", req); err != nil {
		return nil, fmt.Errorf("failed to search %q: %w", query, err)
	}
	if result == nil {
		result = []SearchResult{}
	}
	return result, nil
}

// Profile describes a listed company.
type Profile struct {
	Symbol      string  `json:"symbol"`
	CompanyName string  `json:"companyName"`
	Price       float64 `json:"price"`
	Currency    string  `json:"currency"`
	Exchange    string  `json:"exchangeShortName"`
	Industry    string  `json:"industry"`
	Sector      string  `json:"sector"`
	Country     string  `json:"country"`
	CEO         string  `json:"ceo"`
	Website     string  `json:"website"`
	Image       string  `json:"image"`
	Description string  `json:"description"`
	MarketCap   float64 `json:"mktCap"`
}

// GetProfile fetches the company profile for symbol.
func (c *Client) GetProfile(ctx context.Context, symbol string) (*Profile, error) {
	symbol = quotes.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("%w: empty symbol", quotes.ErrSymbolNotFound)
	}

	var result []Profile
	req := c.newRequest(ctx).SetResult(&result)

	if _, err := c.doRequest(ctx, http.MethodGet, "/profile/"+url.PathEscape(symbol), req); err != nil {
		return nil, fmt.Errorf("failed to get profile for %s: %w", symbol, err)
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("%w: %s", quotes.ErrSymbolNotFound, symbol)
	}
	return &result[0], nil
}

// Article is a news item about one symbol.
type Article struct {
	Symbol        string `json:"symbol"`
	PublishedDate string `json:"publishedDate"`
	Title         string `json:"title"`
	Image         string `json:"image"`
	Site          string `json:"site"`
	Text          string `json:"text"`
	URL           string `json:"url"`
}

// GetNews fetches recent articles for symbols, or general market news when
// symbols is empty.
func (c *Client) GetNews(ctx context.Context, symbols []string, limit int) ([]Article, error) {
	if limit <= 0 {
		limit = 20
	}

	var result []Article
	req := c.newRequest(ctx).
		SetQueryParam("limit", strconv.Itoa(limit)).
		SetResult(&result)
	if tickers := quotes.Distinct(symbols); len(tickers) > 0 {
		req.SetQueryParam("tickers", strings.Join(tickers, ","))
	}

	if _, err := c.doRequest(ctx, http.MethodGet, "/stock_news", req); err != nil {
		if errors.Is(err, quotes.ErrSymbolNotFound) {
			return []Article{}, nil
		}
		return nil, fmt.Errorf("failed to get news: %w", err)
	}
	if result == nil {
		result = []Article{}
	}
	return result, nil
}
