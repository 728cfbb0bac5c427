package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"portfolio-backend/internal/shared/metrics"
	"portfolio-backend/internal/shared/telemetry"
)

const retryBaseDelay = 300 * time.Millisecond

type retrying struct {
	base  Provider
	delay time.Duration
}

// WithRetry retries a call once after a short delay when the failure looks transient.
func WithRetry(base Provider) Provider {
	return retrying{base: base, delay: retryBaseDelay}
}

func (r retrying) Generate(ctx context.Context, req Request) (string, error) {
	metrics.IncLLMCall()
	out, err := r.base.Generate(ctx, req)
	if err == nil || !ShouldRetry(err) || ctx.Err() != nil {
		return out, err
	}

	metrics.IncLLMRetry()
	telemetry.Warn("llm.retry", map[string]any{
		"attempt": 1,
		"model":   req.Model,
		"error":   SanitizeError(err),
	})
	select {
	case <-time.After(r.delay):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	metrics.IncLLMCall()
	return r.base.Generate(ctx, req)
}

type timeout struct {
	base Provider
	d    time.Duration
}

// WithTimeout bounds every call with d. A call that runs out of time fails
// with an error wrapping context.DeadlineExceeded.
func WithTimeout(base Provider, d time.Duration) Provider {
	if d <= 0 {
		return base
	}
	return timeout{base: base, d: d}
}

func (t timeout) Generate(ctx context.Context, req Request) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()

	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := t.base.Generate(callCtx, req)
		done <- result{out: out, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return "", fmt.Errorf("llm call timeout after %s: %w", t.d, context.DeadlineExceeded)
		}
		return res.out, res.err
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("llm call timeout after %s: %w", t.d, context.DeadlineExceeded)
	}
}

// ShouldRetry reports whether err looks like a transient provider failure.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotConfigured) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "http status 5") || strings.Contains(msg, "server_error") || strings.Contains(msg, "overloaded") {
		return true
	}
	if strings.Contains(msg, "http status 429") || strings.Contains(msg, "rate_limit") {
		return true
	}
	if strings.Contains(msg, "timeout") && (strings.Contains(msg, "openai") || strings.Contains(msg, "anthropic") || strings.Contains(msg, "llm") || strings.Contains(msg, "client.timeout")) {
		return true
	}
	if strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection closed") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "tls handshake timeout") ||
		strings.Contains(msg, "eof") {
		return true
	}
	return false
}

// SanitizeError shortens provider errors for logs and drops anything that looks like a key.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	fields := strings.Fields(msg)
	for i, f := range fields {
		if strings.HasPrefix(f, "sk-") || strings.HasPrefix(f, "Bearer") {
			fields[i] = "[redacted]"
		}
	}
	msg = strings.Join(fields, " ")
	if len(msg) > 300 {
		msg = msg[:300] + "..."
	}
	return msg
}
