package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"beeftrace/pkg/platform/sentinel"
)

// Remote is the HTTP surface of the durable cache mirror.
type Remote interface {
	Get(ctx context.Context, entityType, id string) (json.RawMessage, error)
	List(ctx context.Context, entityType string) (map[string]json.RawMessage, error)
	ListByOwner(ctx context.Context, entityType, ownerAddr string) (map[string]json.RawMessage, error)
	BulkUpsert(ctx context.Context, entityType string, data map[string]json.RawMessage) error
	Health(ctx context.Context) error
}

// errServerFault marks a 500 from the mirror. One 500 is authoritative about
// mirror health, so the store trips its breaker immediately instead of
// retrying.
type errServerFault struct{ status int }

func (e *errServerFault) Error() string { return fmt.Sprintf("mirror server fault: HTTP %d", e.status) }

// errTransient marks gateway-class statuses and transport failures. Worth
// one retry; if it persists the store records the failure against its
// breaker.
type errTransient struct{ cause error }

func (e *errTransient) Error() string { return "mirror transient failure: " + e.cause.Error() }
func (e *errTransient) Unwrap() error { return e.cause }

// HTTPRemote talks to the mirror service. Gateway-class failures (502/503/
// 504 and transport errors) get one retry after a fixed pause.
type HTTPRemote struct {
	baseURL string
	client  *http.Client

	retryPause time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewHTTPRemote builds a mirror client against baseURL.
func NewHTTPRemote(baseURL string, client *http.Client) *HTTPRemote {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPRemote{
		baseURL:    baseURL,
		client:     client,
		retryPause: time.Second,
		sleep: func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				return nil
			}
		},
	}
}

func (r *HTTPRemote) Get(ctx context.Context, entityType, id string) (json.RawMessage, error) {
	env, err := r.do(ctx, http.MethodGet, fmt.Sprintf("/entities/%s/%s", entityType, id), nil)
	if err != nil {
		return nil, err
	}
	if !env.Success || env.Data == nil {
		return nil, sentinel.ErrNotFound
	}
	return env.Data, nil
}

func (r *HTTPRemote) List(ctx context.Context, entityType string) (map[string]json.RawMessage, error) {
	env, err := r.do(ctx, http.MethodGet, "/entities/"+entityType, nil)
	if err != nil {
		return nil, err
	}
	return decodeMap(env)
}

func (r *HTTPRemote) ListByOwner(ctx context.Context, entityType, ownerAddr string) (map[string]json.RawMessage, error) {
	env, err := r.do(ctx, http.MethodGet, fmt.Sprintf("/entities/%s/owner/%s", entityType, ownerAddr), nil)
	if err != nil {
		return nil, err
	}
	return decodeMap(env)
}

func (r *HTTPRemote) BulkUpsert(ctx context.Context, entityType string, data map[string]json.RawMessage) error {
	body, err := json.Marshal(BulkUpsertRequest{EntityType: entityType, Data: data})
	if err != nil {
		return fmt.Errorf("encode bulk upsert: %w", err)
	}
	env, err := r.do(ctx, http.MethodPost, "/bulk-upsert", body)
	if err != nil {
		return err
	}
	if !env.Success {
		return fmt.Errorf("bulk upsert %s: %s", entityType, env.Error)
	}
	return nil
}

func (r *HTTPRemote) Health(ctx context.Context) error {
	env, err := r.do(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	var h Health
	if env.Data != nil {
		if err := json.Unmarshal(env.Data, &h); err != nil {
			return fmt.Errorf("decode health: %w", err)
		}
	}
	if h.Status != "healthy" {
		return fmt.Errorf("mirror unhealthy: %q", h.Status)
	}
	return nil
}

func (r *HTTPRemote) do(ctx context.Context, method, path string, body []byte) (Envelope, error) {
	env, err := r.once(ctx, method, path, body)
	if err == nil {
		return env, nil
	}
	var transient *errTransient
	if errors.As(err, &transient) {
		if serr := r.sleep(ctx, r.retryPause); serr != nil {
			return Envelope{}, err
		}
		return r.once(ctx, method, path, body)
	}
	return Envelope{}, err
}

func (r *HTTPRemote) once(ctx context.Context, method, path string, body []byte) (Envelope, error) {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return Envelope{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return Envelope{}, &errTransient{cause: fmt.Errorf("mirror request %s %s: %w", method, path, err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusInternalServerError:
		return Envelope{}, &errServerFault{status: resp.StatusCode}
	case resp.StatusCode == http.StatusNotFound:
		return Envelope{}, sentinel.ErrNotFound
	case resp.StatusCode == http.StatusBadGateway,
		resp.StatusCode == http.StatusServiceUnavailable,
		resp.StatusCode == http.StatusGatewayTimeout:
		return Envelope{}, &errTransient{cause: fmt.Errorf("mirror request %s %s: HTTP %d", method, path, resp.StatusCode)}
	case resp.StatusCode >= 300:
		return Envelope{}, fmt.Errorf("mirror request %s %s: HTTP %d", method, path, resp.StatusCode)
	}

	var env Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return Envelope{}, fmt.Errorf("decode mirror response: %w", err)
	}
	return env, nil
}

func decodeMap(env Envelope) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage)
	if env.Data == nil {
		return out, nil
	}
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return nil, fmt.Errorf("decode entity map: %w", err)
	}
	return out, nil
}
