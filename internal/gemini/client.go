package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ironsheep/image-gen-mcp/internal/config"
	"github.com/ironsheep/image-gen-mcp/internal/metrics"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Client runs the outbound generateContent pipeline. It holds no per-call
// state and is safe for concurrent use.
type Client struct {
	apiKey     string
	endpoint   string
	timeout    time.Duration
	maxRetries int
	baseDelay  time.Duration
	maxJitter  time.Duration
	modalities []string

	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
	metrics    *metrics.Collector

	sleep    func(ctx context.Context, d time.Duration) error
	jitter   func(max time.Duration) time.Duration
	readFile func(path string) ([]byte, error)
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithSleep replaces the backoff wait. Tests pass a no-op.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = sleep }
}

// WithJitter replaces the random jitter source.
func WithJitter(jitter func(max time.Duration) time.Duration) Option {
	return func(c *Client) { c.jitter = jitter }
}

// WithFileReader replaces os.ReadFile for path inputs.
func WithFileReader(readFile func(path string) ([]byte, error)) Option {
	return func(c *Client) { c.readFile = readFile }
}

// WithMetrics records every attempt and retry on m.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient builds a Client from the process configuration.
func NewClient(cfg config.Config, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{
		apiKey:     cfg.APIKey,
		endpoint:   cfg.Endpoint,
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.BaseDelay,
		maxJitter:  cfg.MaxJitter,
		modalities: cfg.ResponseModalities,
		httpClient: &http.Client{},
		logger:     logger.Named("gemini"),
		sleep:      sleepContext,
		jitter:     uniformJitter,
		readFile:   os.ReadFile,
	}

	if cfg.RateLimitRPM > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPM)/60.0, cfg.RateLimitRPM)
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// state is a node of the retry state machine.
type state int

const (
	stateAttempting state = iota
	stateSucceeded
	stateFailed
)

// Execute resolves the inputs, sends the request with bounded retry and
// returns every image of the first candidate.
//
// Transitions after attempt n:
//
//	err == nil                          -> Succeeded
//	retryable (429, 5xx, timeout, I/O)  -> Attempting(n+1) if n < MaxRetries
//	anything else                       -> FailedPermanently
func (c *Client) Execute(ctx context.Context, prompt string, images []ImageInput) ([]Image, error) {
	if strings.TrimSpace(c.apiKey) == "" {
		return nil, &Error{Kind: KindCredential, Message: "API key is not configured (set " + config.EnvAPIKey + ")"}
	}

	inline, err := ResolveInputs(images, c.readFile)
	if err != nil {
		return nil, err
	}

	req := BuildRequest(prompt, inline)
	if len(c.modalities) > 0 {
		req.GenerationConfig = &GenerationConfig{ResponseModalities: c.modalities}
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, &Error{Kind: KindInput, Message: "failed to encode request", Err: err}
	}

	target, err := c.requestURL()
	if err != nil {
		return nil, err
	}

	log := c.logger.With(
		zap.String("request_id", uuid.NewString()),
		zap.Int("images", len(images)),
		zap.Int("payload_bytes", len(payload)),
	)

	for n := 0; ; n++ {
		result, err := c.attempt(ctx, target, payload)

		switch c.transition(n, err) {
		case stateSucceeded:
			c.metrics.RecordAttempt(metrics.AttemptSuccess)
			log.Info("generation succeeded", zap.Int("attempt", n+1), zap.Int("results", len(result)))
			return result, nil
		case stateFailed:
			c.metrics.RecordAttempt(metrics.AttemptFailed)
			err = c.terminal(n, err)
			log.Warn("generation failed", zap.Int("attempt", n+1), zap.Error(err))
			return nil, err
		}

		c.metrics.RecordAttempt(metrics.AttemptRetryable)
		c.metrics.RecordRetry()
		delay := c.backoff(n)
		log.Debug("retrying after transient failure",
			zap.Int("attempt", n+1),
			zap.Int("max_retries", c.maxRetries),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, &Error{Kind: KindPermanent, Message: "retry cancelled", Err: err}
		}
	}
}

func (c *Client) transition(n int, err error) state {
	switch {
	case err == nil:
		return stateSucceeded
	case IsRetryable(err) && n < c.maxRetries:
		return stateAttempting
	default:
		return stateFailed
	}
}

// terminal shapes the error surfaced once the machine stops. A transient
// failure that used up the budget becomes permanent; a timeout keeps its kind
// so the message still names the configured limit.
func (c *Client) terminal(n int, err error) error {
	var e *Error
	if !errors.As(err, &e) {
		return &Error{Kind: KindPermanent, Message: "unexpected failure", Err: err}
	}
	if !IsRetryable(err) {
		return err
	}

	attempts := n + 1
	if e.Kind == KindTimeout {
		if attempts == 1 {
			return err
		}
		return &Error{
			Kind:    KindTimeout,
			Message: fmt.Sprintf("request timed out after %s on each of %d attempts", c.timeout, attempts),
			Err:     e.Err,
		}
	}
	return &Error{
		Kind:       KindPermanent,
		StatusCode: e.StatusCode,
		Body:       e.Body,
		Message:    fmt.Sprintf("retry budget exhausted after %d attempt(s): %s", attempts, e.Message),
		Err:        e.Err,
	}
}

// maxBackoff caps the exponential part of a single retry delay.
const maxBackoff = 5 * time.Minute

// backoff returns BaseDelay*2^n plus a uniform jitter in [0, MaxJitter]. The
// doubling stops at maxBackoff, or at BaseDelay if that is larger.
func (c *Client) backoff(n int) time.Duration {
	limit := max(c.baseDelay, maxBackoff)
	d := c.baseDelay
	for i := 0; i < n && d < limit; i++ {
		d *= 2
	}
	return min(d, limit) + c.jitter(c.maxJitter)
}

func (c *Client) requestURL() (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", &Error{Kind: KindPermanent, Message: "invalid endpoint URL", Err: err}
	}
	q := u.Query()
	q.Set("key", c.apiKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// attempt performs one HTTP round trip under the per-attempt deadline.
func (c *Client) attempt(ctx context.Context, target string, payload []byte) ([]Image, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &Error{Kind: KindPermanent, Message: "rate limiter wait aborted", Err: err}
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return nil, &Error{Kind: KindPermanent, Message: "failed to create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.transportError(ctx, attemptCtx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.transportError(ctx, attemptCtx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(resp.StatusCode, body)
	}
	return DecodeResponse(body)
}

func (c *Client) transportError(parent, attemptCtx context.Context, err error) error {
	if parent.Err() != nil {
		return &Error{Kind: KindPermanent, Message: "request cancelled", Err: parent.Err()}
	}
	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return &Error{
			Kind:    KindTimeout,
			Message: fmt.Sprintf("request timed out after %s", c.timeout),
			Err:     c.redact(err),
		}
	}
	return &Error{Kind: KindTransient, Message: "request failed", Err: c.redact(err)}
}

// redact keeps the API key out of *url.Error messages.
func (c *Client) redact(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return fmt.Errorf("%s %s: %w", uerr.Op, redactKey(uerr.URL), uerr.Err)
	}
	return err
}

func redactKey(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<endpoint>"
	}
	q := u.Query()
	if q.Has("key") {
		q.Set("key", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// statusError classifies a non-2xx response.
func statusError(code int, body []byte) error {
	kind := KindPermanent
	if isRetryableStatus(code) {
		kind = KindTransient
	}

	msg := fmt.Sprintf("provider returned %s", http.StatusText(code))
	if m := gjson.GetBytes(body, "error.message"); m.Exists() && m.String() != "" {
		msg = fmt.Sprintf("provider returned %s: %s", http.StatusText(code), m.String())
	}

	return &Error{
		Kind:       kind,
		StatusCode: code,
		Body:       truncate(string(body), maxBodyInError),
		Message:    msg,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func uniformJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(max) + 1))
}
