package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"socialclient/logger"
	"socialclient/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	refreshPath       = "/api/auth/refresh"
	refreshPathSuffix = "/auth/refresh"
	maxRefreshWaiters = 1024
	requestIDHeader   = "X-Request-ID"
)

var errNoRefreshToken = errors.New("no refresh token stored")

type RefreshState int

const (
	StateIdle RefreshState = iota
	StateRefreshing
	StateLoggedOut
)

func (s RefreshState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRefreshing:
		return "refreshing"
	case StateLoggedOut:
		return "logged_out"
	}
	return "unknown"
}

// SessionTerminator tears the session down after a failed refresh.
type SessionTerminator interface {
	ForceLogout(ctx context.Context, reason error)
}

type refreshResult struct {
	token string
	err   error
}

// RefreshTransport attaches the access token to outgoing requests and
// recovers from 401 responses with a single shared token refresh.
//
// While a refresh is running every other 401 waits for its outcome instead
// of starting another one. Each request is replayed at most once.
type RefreshTransport struct {
	base          http.RoundTripper
	store         *CredentialStore
	refreshURL    string
	refreshClient *http.Client
	timeout       time.Duration

	terminator SessionTerminator
	events     EventSink

	mu      sync.Mutex
	state   RefreshState
	waiters []chan refreshResult
}

func NewRefreshTransport(base http.RoundTripper, store *CredentialStore, baseURL string, timeout time.Duration) *RefreshTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &RefreshTransport{
		base:       base,
		store:      store,
		refreshURL: strings.TrimRight(baseURL, "/") + refreshPath,
		// the refresh call must never pass through this transport again
		refreshClient: &http.Client{Transport: base},
		timeout:       timeout,
		events:        NopEventSink{},
	}
}

func (t *RefreshTransport) SetTerminator(term SessionTerminator) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.terminator = term
}

func (t *RefreshTransport) SetEventSink(sink EventSink) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if sink == nil {
		sink = NopEventSink{}
	}
	t.events = sink
}

func (t *RefreshTransport) State() RefreshState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Reset moves a logged out machine back to idle. It is called after login.
func (t *RefreshTransport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StateLoggedOut {
		t.state = StateIdle
		logger.Log.Debug("refresh state reset", zap.String("state", t.state.String()))
	}
}

func isRefreshRequest(req *http.Request) bool {
	return strings.HasSuffix(strings.TrimRight(req.URL.Path, "/"), refreshPathSuffix)
}

func (t *RefreshTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if isRefreshRequest(req) {
		return t.base.RoundTrip(req)
	}
	body, err := bufferBody(req)
	if err != nil {
		return nil, err
	}
	requestID := req.Header.Get(requestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	token, err := t.store.AccessToken(req.Context())
	if err != nil {
		return nil, err
	}
	resp, err := t.send(req, body, requestID, token)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	return t.recoverUnauthorized(req, body, requestID, token, resp)
}

func (t *RefreshTransport) send(req *http.Request, body []byte, requestID, token string) (*http.Response, error) {
	out := req.Clone(req.Context())
	if body != nil {
		out.Body = io.NopCloser(bytes.NewReader(body))
		out.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
		out.ContentLength = int64(len(body))
	}
	if token != "" {
		out.Header.Set("Authorization", "Bearer "+token)
	} else {
		out.Header.Del("Authorization")
	}
	out.Header.Set(requestIDHeader, requestID)
	return t.base.RoundTrip(out)
}

// recoverUnauthorized handles a 401 for a request that has not been retried yet.
func (t *RefreshTransport) recoverUnauthorized(req *http.Request, body []byte, requestID, usedToken string, resp *http.Response) (*http.Response, error) {
	ctx := req.Context()
	if usedToken == "" {
		// nothing was attached, so the 401 is the server's answer and not an expiry
		return resp, nil
	}

	t.mu.Lock()
	switch t.state {
	case StateLoggedOut:
		t.mu.Unlock()
		return resp, nil

	case StateRefreshing:
		if len(t.waiters) >= maxRefreshWaiters {
			t.mu.Unlock()
			drain(resp)
			return nil, ErrRefreshQueueFull
		}
		ch := make(chan refreshResult, 1)
		t.waiters = append(t.waiters, ch)
		refreshQueueDepth.Set(float64(len(t.waiters)))
		t.mu.Unlock()
		drain(resp)

		logger.Log.Debug("request queued behind refresh", zap.String("request_id", requestID))
		select {
		case res := <-ch:
			if res.err != nil {
				return nil, res.err
			}
			return t.send(req, body, requestID, res.token)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	// A refresh finished between sending this request and reading its 401.
	current, err := t.store.AccessToken(ctx)
	if err == nil && current != "" && current != usedToken {
		t.mu.Unlock()
		drain(resp)
		return t.send(req, body, requestID, current)
	}

	t.state = StateRefreshing
	t.mu.Unlock()
	original := bufferResponse(resp)
	logger.Log.Debug("token refresh started", zap.String("request_id", requestID))

	token, err := t.refresh(ctx)
	if errors.Is(err, errNoRefreshToken) {
		// the caller gets the server's own 401 once the session is gone
		t.fail(ctx, err)
		return original, nil
	}
	if err != nil {
		return nil, t.fail(ctx, err)
	}
	t.release(ctx, token)
	return t.send(req, body, requestID, token)
}

func (t *RefreshTransport) refresh(ctx context.Context) (string, error) {
	refreshToken, err := t.store.RefreshToken(ctx)
	if err != nil {
		return "", err
	}
	if refreshToken == "" {
		return "", errNoRefreshToken
	}

	// the leader's caller going away must not abort the refresh for everyone queued
	rctx := context.WithoutCancel(ctx)
	if t.timeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(rctx, t.timeout)
		defer cancel()
	}

	payload, err := json.Marshal(models.RefreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(rctx, http.MethodPost, t.refreshURL, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := t.refreshClient.Do(req)
	if err != nil {
		recordAPICall(http.MethodPost, refreshPath, 0, time.Since(start))
		return "", fmt.Errorf("refresh request failed: %w", err)
	}
	defer resp.Body.Close()
	recordAPICall(http.MethodPost, refreshPath, resp.StatusCode, time.Since(start))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read refresh response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", decodeAPIError(resp.StatusCode, raw)
	}
	var pair models.TokenPair
	if err := json.Unmarshal(raw, &pair); err != nil {
		return "", fmt.Errorf("failed to decode refresh response: %w", err)
	}
	if err := t.store.SetTokens(rctx, pair); err != nil {
		return "", err
	}
	return pair.AccessToken, nil
}

func (t *RefreshTransport) release(ctx context.Context, token string) {
	t.mu.Lock()
	waiters := t.waiters
	t.waiters = nil
	t.state = StateIdle
	events := t.events
	t.mu.Unlock()

	refreshQueueDepth.Set(0)
	tokenRefreshTotal.WithLabelValues("success").Inc()
	logger.Log.Debug("token refreshed", zap.Int("released", len(waiters)))

	for _, ch := range waiters {
		ch <- refreshResult{token: token}
	}
	publishEvent(ctx, events, ClientEvent{Kind: EventTokenRefreshed})
}

// fail rejects every waiter and ends the session. Only the leader calls it.
func (t *RefreshTransport) fail(ctx context.Context, cause error) error {
	err := fmt.Errorf("%w: %w", ErrSessionExpired, cause)

	t.mu.Lock()
	waiters := t.waiters
	t.waiters = nil
	t.state = StateLoggedOut
	term := t.terminator
	t.mu.Unlock()

	refreshQueueDepth.Set(0)
	tokenRefreshTotal.WithLabelValues("failure").Inc()
	logger.Log.Error("token refresh failed", zap.Error(cause), zap.Int("rejected", len(waiters)))

	for _, ch := range waiters {
		ch <- refreshResult{err: err}
	}
	if term != nil {
		term.ForceLogout(context.WithoutCancel(ctx), cause)
	}
	return err
}

func bufferBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	defer req.Body.Close()
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to buffer request body: %w", err)
	}
	return body, nil
}

// bufferResponse reads a small response into memory so it can be handed
// back after the connection is released.
func bufferResponse(resp *http.Response) *http.Response {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(raw))
	resp.ContentLength = int64(len(raw))
	return resp
}

func drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}

func publishEvent(ctx context.Context, sink EventSink, event ClientEvent) {
	if sink == nil {
		return
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := sink.Publish(pctx, event); err != nil {
		logger.Log.Warn("failed to publish client event", zap.String("kind", event.Kind), zap.Error(err))
	}
}

var _ http.RoundTripper = (*RefreshTransport)(nil)
