package sink

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hazyhaar/chatmd/assemble"
)

// Webhook headers carrying document metadata next to the Markdown body.
const (
	HeaderFilename = "X-Chatmd-Filename"
	HeaderExportID = "X-Chatmd-Export-Id"
	HeaderRole     = "X-Chatmd-Role"
	HeaderMessages = "X-Chatmd-Messages"
)

// Webhook POSTs each document's Markdown to a URL with retry and
// exponential backoff. Requests are paced by a token bucket.
type Webhook struct {
	url        string
	client     *http.Client
	maxRetries int
	backoff    time.Duration
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// WebhookOption configures a Webhook sink.
type WebhookOption func(*Webhook)

// WithWebhookRetries sets the maximum number of retries. Default: 3.
func WithWebhookRetries(n int) WebhookOption {
	return func(w *Webhook) { w.maxRetries = n }
}

// WithWebhookBackoff sets the first retry delay; later ones double. Default: 1s.
func WithWebhookBackoff(d time.Duration) WebhookOption {
	return func(w *Webhook) { w.backoff = d }
}

// WithWebhookRate caps requests per second. Zero or negative disables pacing.
func WithWebhookRate(perSecond float64, burst int) WebhookOption {
	return func(w *Webhook) {
		if perSecond <= 0 {
			w.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		w.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithWebhookClient replaces the HTTP client.
func WithWebhookClient(c *http.Client) WebhookOption {
	return func(w *Webhook) { w.client = c }
}

// WithWebhookLogger sets a custom logger.
func WithWebhookLogger(l *slog.Logger) WebhookOption {
	return func(w *Webhook) { w.logger = l }
}

// NewWebhook creates a Webhook sink targeting the given URL.
func NewWebhook(target string, opts ...WebhookOption) *Webhook {
	w := &Webhook{
		url:        target,
		client:     &http.Client{Timeout: 10 * time.Second},
		maxRetries: 3,
		backoff:    time.Second,
		limiter:    rate.NewLimiter(rate.Limit(5), 5),
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

func (w *Webhook) Deliver(ctx context.Context, doc assemble.Document) error {
	var lastErr error
	for attempt := 0; attempt <= w.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(w.backoff << uint(attempt-1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if w.limiter != nil {
			if err := w.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, strings.NewReader(doc.Content))
		if err != nil {
			return fmt.Errorf("webhook: new request: %w", err)
		}
		mime := doc.MIME
		if mime == "" {
			mime = assemble.MIME
		}
		req.Header.Set("Content-Type", mime+"; charset=utf-8")
		// Filenames may be non-ASCII; header values stay in the ASCII range.
		req.Header.Set(HeaderFilename, url.PathEscape(doc.Filename))
		req.Header.Set(HeaderMessages, strconv.Itoa(doc.Messages))
		if doc.ID != "" {
			req.Header.Set(HeaderExportID, doc.ID)
		}
		if doc.Role != "" {
			req.Header.Set(HeaderRole, string(doc.Role))
		}

		resp, err := w.client.Do(req)
		if err != nil {
			lastErr = err
			w.logger.Warn("webhook: request failed", "attempt", attempt+1, "error", err)
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("webhook: status %d", resp.StatusCode)
		// Client errors will not improve on retry.
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return lastErr
		}
		w.logger.Warn("webhook: bad status", "attempt", attempt+1, "status", resp.StatusCode)
	}
	return fmt.Errorf("webhook: all retries exhausted: %w", lastErr)
}

func (w *Webhook) Close() error { return nil }
