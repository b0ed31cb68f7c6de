// Package notify tells the backend where the published HLS playlists live.
package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"hlsworker/logger"
	"hlsworker/metrics"
)

// MasterResolution labels the master playlist entry in a Payload.
const MasterResolution = "MASTER"

const (
	DefaultMaxAttempts = 5
	DefaultTimeout     = 30 * time.Second
	DefaultBackoffUnit = time.Second
)

// ErrRetriesExhausted is wrapped by every error returned after the last attempt failed.
var ErrRetriesExhausted = errors.New("notification retries exhausted")

// Variant is one playlist entry of the payload.
type Variant struct {
	Resolution string `json:"resolution"`
	URL        string `json:"url"`
}

// Payload is the JSON body sent to the backend.
type Payload struct {
	HLSVariants []Variant `json:"hlsVariants"`
}

// NewPayload puts the master playlist first, followed by the variants in order.
// Without variants the payload is empty.
func NewPayload(masterURL string, variants []Variant) Payload {
	if len(variants) == 0 {
		return Payload{}
	}
	out := make([]Variant, 0, len(variants)+1)
	out = append(out, Variant{Resolution: MasterResolution, URL: masterURL})
	out = append(out, variants...)
	return Payload{HLSVariants: out}
}

// Empty reports whether there is nothing to send.
func (p Payload) Empty() bool { return len(p.HLSVariants) == 0 }

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend returned non-2xx status: %d", e.StatusCode)
	}
	return fmt.Sprintf("backend returned non-2xx status: %d: %s", e.StatusCode, e.Body)
}

// ExhaustedError carries the final failure after MaxAttempts.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%v after %d attempts: %v", ErrRetriesExhausted, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() []error { return []error{ErrRetriesExhausted, e.Last} }

// Notifier performs the backend update with retries.
type Notifier struct {
	Client      *http.Client
	MaxAttempts int
	// BackoffUnit is multiplied by 2^attempt between attempts.
	BackoffUnit time.Duration
	// Sleep waits between attempts; tests replace it to observe delays.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Options configures New.
type Options struct {
	Timeout     time.Duration
	MaxAttempts int
	BackoffUnit time.Duration
	// Insecure skips TLS certificate verification. Only set for development.
	Insecure bool
}

// New returns a Notifier with its own HTTP client.
func New(opts Options) *Notifier {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.Insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // development backends use self-signed certificates
	}
	return &Notifier{
		Client:      &http.Client{Timeout: opts.Timeout, Transport: transport},
		MaxAttempts: opts.MaxAttempts,
		BackoffUnit: opts.BackoffUnit,
	}
}

// Backoff returns the wait after the zero-indexed attempt: 2^attempt units.
func Backoff(unit time.Duration, attempt int) time.Duration {
	return unit * time.Duration(1<<uint(attempt))
}

// Notify sends payload to endpoint with PUT. An empty payload is a no-op.
// After the last failed attempt the error wraps ErrRetriesExhausted.
func (n *Notifier) Notify(ctx context.Context, endpoint string, payload Payload) error {
	if payload.Empty() {
		logger.Debug("no variants to report, skipping backend notification")
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification payload: %w", err)
	}

	attempts := n.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	unit := n.BackoffUnit
	if unit <= 0 {
		unit = DefaultBackoffUnit
	}
	sleep := n.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		logger.Infof("attempt %d of %d to update backend at %s", attempt+1, attempts, endpoint)

		status, err := n.put(ctx, endpoint, body)
		if err == nil {
			metrics.NotifyAttempts.WithLabelValues("success").Inc()
			logger.Infof("backend accepted %d playlist entries (status %d)", len(payload.HLSVariants), status)
			return nil
		}
		lastErr = err

		if isTimeout(err) {
			metrics.NotifyAttempts.WithLabelValues("timeout").Inc()
			logger.Warnf("attempt %d timed out: %v", attempt+1, err)
		} else {
			metrics.NotifyAttempts.WithLabelValues("error").Inc()
			logger.Errorf("attempt %d failed: %v", attempt+1, err)
		}

		if attempt == attempts-1 {
			break
		}
		if err := sleep(ctx, Backoff(unit, attempt)); err != nil {
			return fmt.Errorf("notification interrupted: %w", err)
		}
	}

	return &ExhaustedError{Attempts: attempts, Last: lastErr}
}

func (n *Notifier) put(ctx context.Context, endpoint string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "hlsworker/1.0")

	client := n.Client
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("notification request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
	}
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
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
