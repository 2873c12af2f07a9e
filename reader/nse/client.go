package nse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"optionflow/config"
	"optionflow/internal/symbols"
	"optionflow/logger"
	"optionflow/models"
)

var (
	// ErrEmptyChain is returned when NSE answers with no strike entries,
	// which it does outside market hours or for a stale session.
	ErrEmptyChain = errors.New("nse returned an empty option chain")
	// ErrCircuitOpen is returned while the breaker rejects calls.
	ErrCircuitOpen = errors.New("nse circuit breaker open")
)

// StatusError reports a non-200 answer from NSE.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("nse %s: unexpected status %d", e.URL, e.StatusCode)
}

func (e *StatusError) sessionExpired() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// Client downloads option chains. NSE only serves the API to a browser-like
// session, so the client primes cookies from the home page first and again
// whenever the API answers 401 or 403.
type Client struct {
	http    *http.Client
	cfg     config.NSESourceConfig
	retry   config.RetryConfig
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	log     *logger.Log
	primeMu sync.Mutex
	primed  bool
	sleep   func(context.Context, time.Duration) error
}

// NewClient builds a client from the reader and NSE source sections.
func NewClient(cfg *config.Config) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	src := cfg.Source.NSE
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        src.ConnectionPool.MaxIdleConns,
		MaxIdleConnsPerHost: src.ConnectionPool.MaxIdleConns,
		MaxConnsPerHost:     src.ConnectionPool.MaxConnsPerHost,
		IdleConnTimeout:     src.ConnectionPool.IdleConnTimeout,
	}

	burst := cfg.Reader.RateLimit.BurstSize
	if burst <= 0 {
		burst = 1
	}

	cbCfg := cfg.Reader.CircuitBreaker
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "nse",
		MaxRequests: uint32(max(cbCfg.HalfOpenMaxRequests, 1)),
		Timeout:     cbCfg.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return cbCfg.FailureThreshold > 0 && counts.ConsecutiveFailures >= uint32(cbCfg.FailureThreshold)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.GetLogger().WithComponent("nse_client").WithFields(logger.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("circuit breaker state changed")
		},
	})

	return &Client{
		http:    &http.Client{Transport: transport, Timeout: cfg.Reader.Timeout, Jar: jar},
		cfg:     src,
		retry:   cfg.Reader.Retry,
		limiter: rate.NewLimiter(rate.Limit(cfg.Reader.RateLimit.RequestsPerSecond), burst),
		breaker: breaker,
		log:     logger.GetLogger(),
		sleep:   sleepContext,
	}, nil
}

// Fetch downloads and decodes the option chain for symbol, retrying
// transient failures with exponential backoff.
func (c *Client) Fetch(ctx context.Context, symbol string) (*models.RawChain, error) {
	chain, _, err := c.fetch(ctx, symbol)
	return chain, err
}

// FetchRaw is Fetch without decoding for the caller. On ErrEmptyChain the
// payload is still returned so downstream can report the empty cycle.
func (c *Client) FetchRaw(ctx context.Context, symbol string) ([]byte, error) {
	_, body, err := c.fetch(ctx, symbol)
	return body, err
}

func (c *Client) fetch(ctx context.Context, symbol string) (*models.RawChain, []byte, error) {
	symbol = symbols.ToNSE(symbol)
	log := c.log.WithComponent("nse_client").WithFields(logger.Fields{"symbol": symbol})

	b := &backoff.Backoff{
		Min:    c.retry.BaseDelay,
		Max:    c.retry.MaxDelay,
		Factor: c.retry.BackoffMultiplier,
		Jitter: true,
	}

	attempts := max(c.retry.MaxAttempts, 1)
	var (
		lastErr  error
		lastBody []byte
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		chain, body, err := c.fetchOnce(ctx, symbol)
		if err == nil {
			return chain, body, nil
		}
		lastErr, lastBody = err, body

		if !retryable(err) || attempt == attempts {
			break
		}

		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.sessionExpired() {
			c.resetSession()
		}

		wait := b.Duration()
		log.WithError(err).WithFields(logger.Fields{
			"attempt": attempt,
			"wait_ms": wait.Milliseconds(),
		}).Warn("option chain fetch failed; retrying")

		if err := c.sleep(ctx, wait); err != nil {
			return nil, nil, err
		}
	}
	return nil, lastBody, lastErr
}

func (c *Client) fetchOnce(ctx context.Context, symbol string) (*models.RawChain, []byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, err
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		if err := c.prime(ctx); err != nil {
			return nil, err
		}
		return c.get(ctx, c.chainURL(symbol))
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		return nil, nil, err
	}

	body := out.([]byte)
	var chain models.RawChain
	if err := json.Unmarshal(body, &chain); err != nil {
		return nil, nil, fmt.Errorf("decode option chain for %s: %w", symbol, err)
	}
	if len(chain.Records.Data) == 0 {
		return nil, body, ErrEmptyChain
	}
	return &chain, body, nil
}

func (c *Client) chainURL(symbol string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/" + symbols.ChainPath(symbol)
}

// prime loads the NSE home page once per session so the jar holds the
// cookies the API checks.
func (c *Client) prime(ctx context.Context) error {
	c.primeMu.Lock()
	defer c.primeMu.Unlock()
	if c.primed || c.cfg.HomeURL == "" {
		return nil
	}
	if _, err := c.get(ctx, c.cfg.HomeURL); err != nil {
		return fmt.Errorf("prime nse session: %w", err)
	}
	c.primed = true
	c.log.WithComponent("nse_client").Debug("nse session primed")
	return nil
}

func (c *Client) resetSession() {
	c.primeMu.Lock()
	c.primed = false
	c.primeMu.Unlock()
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	if c.cfg.Referer != "" {
		req.Header.Set("Referer", c.cfg.Referer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: url}
	}
	return body, nil
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrCircuitOpen) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.sessionExpired() || statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
	}
	return true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
