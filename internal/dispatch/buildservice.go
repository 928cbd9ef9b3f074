package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"git.home.luguber.info/inful/buildrelay/internal/errors"
	"git.home.luguber.info/inful/buildrelay/internal/retry"
)

// BuildService invokes the external site builder and returns its build id.
type BuildService interface {
	StartBuild(ctx context.Context, bc BuildContext) (buildID string, err error)
}

// HTTPBuildService posts the build context to a configured endpoint.
// Transient failures (network errors, 5xx) are retried per policy.
type HTTPBuildService struct {
	endpoint string
	token    string
	client   *http.Client
	policy   retry.Policy
}

// NewHTTPBuildService constructs the client with a bounded request timeout
// and the default retry policy.
func NewHTTPBuildService(endpoint, token string, timeout time.Duration) *HTTPBuildService {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPBuildService{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: timeout},
		policy:   retry.DefaultPolicy(),
	}
}

// WithRetryPolicy overrides the transient-failure retry policy.
func (s *HTTPBuildService) WithRetryPolicy(p retry.Policy) *HTTPBuildService {
	s.policy = p
	return s
}

type buildResponse struct {
	BuildID string `json:"buildId"`
}

// StartBuild invokes the build service, retrying transient failures.
func (s *HTTPBuildService) StartBuild(ctx context.Context, bc BuildContext) (string, error) {
	body, err := json.Marshal(bc)
	if err != nil {
		return "", errors.WrapError(err, errors.CategoryBuild, "marshal build context").Build()
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		buildID, transient, err := s.post(ctx, body)
		if err == nil {
			return buildID, nil
		}
		lastErr = err
		if !transient || attempt >= s.policy.MaxRetries {
			return "", lastErr
		}
		select {
		case <-ctx.Done():
			return "", errors.WrapError(ctx.Err(), errors.CategoryBuild, "build request cancelled").Build()
		case <-time.After(s.policy.Delay(attempt + 1)):
		}
	}
}

// post performs one build request. transient marks failures worth retrying.
func (s *HTTPBuildService) post(ctx context.Context, body []byte) (buildID string, transient bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", false, errors.WrapError(err, errors.CategoryBuild, "create build request").Build()
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", true, errors.WrapError(err, errors.CategoryBuild, "invoke build service").
			WithContext("endpoint", s.endpoint).Retryable().Build()
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", resp.StatusCode >= 500, errors.BuildError("build service returned non-success status").
			WithContext("status", resp.StatusCode).
			WithContext("endpoint", s.endpoint).Build()
	}

	var br buildResponse
	if err := json.NewDecoder(resp.Body).Decode(&br); err != nil {
		return "", false, errors.WrapError(err, errors.CategoryBuild, "decode build response").Build()
	}
	if br.BuildID == "" {
		return "", false, errors.BuildError("build service response missing buildId").Build()
	}
	return br.BuildID, false, nil
}
