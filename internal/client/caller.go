package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/course-ledger/internal/models"
	appErrors "github.com/noah-isme/course-ledger/pkg/errors"
	"github.com/noah-isme/course-ledger/pkg/middleware/requestid"
)

const maxResponseBytes = 1 << 20

// Outcome labels recorded for each dependency call.
const (
	OutcomeOK          = "ok"
	OutcomeNotFound    = "not_found"
	OutcomeDenied      = "denied"
	OutcomeTimeout     = "timeout"
	OutcomeUnavailable = "unavailable"
	OutcomeMalformed   = "malformed"
)

// Observer receives timings for every dependency call.
type Observer interface {
	ObserveDependency(dependency, operation, outcome string, duration time.Duration)
}

// Options carries collaborators shared by every client.
type Options struct {
	HTTPClient *http.Client
	Observer   Observer
	Logger     *zap.Logger
}

// caller issues single-shot read-through requests. It never retries and keeps
// no state between calls.
type caller struct {
	dependency string
	baseURL    string
	timeout    time.Duration
	http       *http.Client
	observer   Observer
	logger     *zap.Logger
}

func newCaller(dependency, baseURL string, timeout time.Duration, opts Options) *caller {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &caller{
		dependency: dependency,
		baseURL:    strings.TrimRight(baseURL, "/"),
		timeout:    timeout,
		http:       httpClient,
		observer:   opts.Observer,
		logger:     logger.With(zap.String("dependency", dependency)),
	}
}

// get fetches path and decodes the JSON body into out. A 404 (or 400, an
// unresolvable reference) becomes notFound, 401/403 become NotAuthorized and
// every other failure becomes DependencyUnavailable.
func (c *caller) get(ctx context.Context, operation, path string, principal *models.Principal, notFound *appErrors.Error, out interface{}) error {
	start := time.Now()
	outcome, err := c.do(ctx, path, principal, notFound, out)
	duration := time.Since(start)
	if c.observer != nil {
		c.observer.ObserveDependency(c.dependency, operation, outcome, duration)
	}
	if err != nil && outcome != OutcomeNotFound {
		c.logger.Warn("dependency call failed",
			zap.String("operation", operation),
			zap.String("outcome", outcome),
			zap.String("request_id", requestid.FromContext(ctx)),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
	}
	return err
}

func (c *caller) do(ctx context.Context, path string, principal *models.Principal, notFound *appErrors.Error, out interface{}) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return OutcomeUnavailable, c.unavailable(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if principal != nil && principal.Credential != "" {
		req.Header.Set("Authorization", "Bearer "+principal.Credential)
	}
	if id := requestid.FromContext(ctx); id != "" {
		req.Header.Set(requestid.HeaderKey, id)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return OutcomeTimeout, c.unavailable(err, fmt.Sprintf("timed out after %s", c.timeout))
		}
		return OutcomeUnavailable, c.unavailable(err, "unreachable")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest:
		drain(resp.Body)
		return OutcomeNotFound, appErrors.Clone(notFound, "")
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		drain(resp.Body)
		return OutcomeDenied, appErrors.Clone(appErrors.ErrNotAuthorized, fmt.Sprintf("%s denied the request", c.dependency))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		drain(resp.Body)
		return OutcomeUnavailable, c.unavailable(fmt.Errorf("status %d", resp.StatusCode), "returned an error")
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return OutcomeTimeout, c.unavailable(err, fmt.Sprintf("timed out after %s", c.timeout))
		}
		return OutcomeUnavailable, c.unavailable(err, "read failed")
	}
	if err := json.Unmarshal(body, out); err != nil {
		return OutcomeMalformed, c.unavailable(err, "returned a malformed body")
	}
	return OutcomeOK, nil
}

func (c *caller) unavailable(cause error, detail string) *appErrors.Error {
	return appErrors.CloneWrap(appErrors.ErrDependencyUnavailable, cause, fmt.Sprintf("%s %s", c.dependency, detail))
}

func drain(body io.Reader) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, maxResponseBytes))
}

func escape(segment string) string {
	return url.PathEscape(segment)
}

// flexString accepts either a JSON string or an object carrying an id, as
// returned by services that sometimes populate references.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '{' {
		var ref struct {
			ID    string `json:"id"`
			Mongo string `json:"_id"`
		}
		if err := json.Unmarshal(data, &ref); err != nil {
			return err
		}
		*f = flexString(firstNonEmpty(ref.ID, ref.Mongo))
		return nil
	}
	if string(data) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexString(s)
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
