// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package alerting

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// DefaultHTTPTimeout bounds every webhook call.
const DefaultHTTPTimeout = 10 * time.Second

// maxErrorBody caps how much of a failed response is kept in Result.Reason.
const maxErrorBody = 1024

// poster is the HTTP plumbing shared by webhook-style channels.
type poster struct {
	client *http.Client
}

func newPoster(client *http.Client, timeout time.Duration) poster {
	if client == nil {
		if timeout <= 0 {
			timeout = DefaultHTTPTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return poster{client: client}
}

// postJSON sends payload as a JSON body.
func (p poster) postJSON(ctx context.Context, endpoint string, payload any, headers map[string]string) Result {
	body, err := json.Marshal(payload)
	if err != nil {
		return permanent(0, "marshal payload: %v", err)
	}
	h := map[string]string{"Content-Type": "application/json"}
	for k, v := range headers {
		h[k] = v
	}
	return p.do(ctx, endpoint, bytes.NewReader(body), h)
}

// postForm sends values as application/x-www-form-urlencoded.
func (p poster) postForm(ctx context.Context, endpoint string, values url.Values) Result {
	return p.do(ctx, endpoint, strings.NewReader(values.Encode()),
		map[string]string{"Content-Type": "application/x-www-form-urlencoded"})
}

func (p poster) do(ctx context.Context, endpoint string, body io.Reader, headers map[string]string) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return permanent(0, "create request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()
	return resultFromResponse(resp)
}

// resultFromResponse maps an HTTP response onto a Result. 2xx is delivered,
// 408, 429 and 5xx are transient, everything else is permanent.
func resultFromResponse(resp *http.Response) Result {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return delivered(resp.StatusCode)
	}

	msg, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		msg = []byte("(failed to read response)")
	}
	reason := strings.TrimSpace(string(msg))
	if reason == "" {
		reason = http.StatusText(resp.StatusCode)
	}

	if !transientStatus(resp.StatusCode) {
		return permanent(resp.StatusCode, "%s", reason)
	}
	r := transient(resp.StatusCode, "%s", reason)
	r.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
	return r
}

func transientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500
}

// classifyTransportError treats network failures as transient. A cancelled
// context is reported as transient too; the retry loop stops on its own.
func classifyTransportError(err error) Result {
	var uerr *url.Error
	if errors.As(err, &uerr) && strings.Contains(uerr.Err.Error(), "unsupported protocol scheme") {
		return permanent(0, "%v", err)
	}
	return transient(0, "%v", err)
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// messageText is the title and body as one plain-text block.
func messageText(msg Message) string {
	if msg.Title == "" {
		return msg.Body
	}
	return msg.Title + "\n" + msg.Body
}
