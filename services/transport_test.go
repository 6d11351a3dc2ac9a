package services

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"socialclient/models"
	"socialclient/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func textResponse(req *http.Request, status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    req,
	}
}

func TestConcurrentUnauthorizedSharesOneRefresh(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	oldToken, err := h.client.Store.AccessToken(context.Background())
	require.NoError(t, err)
	h.backend.expireAccess()
	gate := h.backend.holdRefresh()

	const callers = 10
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.client.API.PostLikers(context.Background(), 1)
			errs <- err
		}()
	}

	tr := h.client.Transport
	require.Eventually(t, func() bool {
		tr.mu.Lock()
		defer tr.mu.Unlock()
		return tr.state == StateRefreshing && len(tr.waiters) == callers-1
	}, 3*time.Second, 5*time.Millisecond)
	close(gate)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.EqualValues(t, 1, h.backend.refreshCalls.Load())
	assert.Equal(t, StateIdle, tr.State())
	assert.Zero(t, h.nav.count())

	pair, err := h.client.Store.Tokens(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.NotEqual(t, oldToken, pair.AccessToken)

	// every caller was replayed once, all with the one refreshed token
	var stale, fresh int
	for _, tok := range h.backend.tokensSeen() {
		switch tok {
		case oldToken:
			stale++
		case pair.AccessToken:
			fresh++
		default:
			t.Errorf("unexpected token %q", tok)
		}
	}
	assert.Equal(t, callers, stale)
	assert.Equal(t, callers, fresh)
}

func TestRefreshFailureTearsDownOnce(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.backend.expireAccess()
	h.backend.setRefreshStatus(http.StatusUnauthorized)
	gate := h.backend.holdRefresh()

	const callers = 5
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.client.API.PostLikers(context.Background(), 7)
			errs <- err
		}()
	}
	tr := h.client.Transport
	require.Eventually(t, func() bool {
		tr.mu.Lock()
		defer tr.mu.Unlock()
		return len(tr.waiters) == callers-1
	}, 3*time.Second, 5*time.Millisecond)
	close(gate)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.ErrorIs(t, err, ErrSessionExpired)
		assert.True(t, IsKind(err, KindSessionExpired))
	}
	assert.EqualValues(t, 1, h.backend.refreshCalls.Load())
	assert.Equal(t, 1, h.nav.count())
	assert.Equal(t, StateLoggedOut, tr.State())
	assert.False(t, h.client.Session.IsAuthenticated())

	pair, err := h.client.Store.Tokens(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pair.AccessToken)
	assert.Empty(t, pair.RefreshToken)
	user, err := h.client.Store.User(context.Background())
	require.NoError(t, err)
	assert.Nil(t, user)

	// logged out: a 401 goes straight to the caller
	_, err = h.client.API.PostLikers(context.Background(), 7)
	assert.True(t, IsKind(err, KindUnauthenticated))
	assert.EqualValues(t, 1, h.backend.refreshCalls.Load())
	assert.Equal(t, 1, h.nav.count())
}

func TestLoginResetsLoggedOutState(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.backend.expireAccess()
	h.backend.setRefreshStatus(http.StatusUnauthorized)
	_, err := h.client.API.PostLikers(context.Background(), 1)
	require.ErrorIs(t, err, ErrSessionExpired)
	require.Equal(t, StateLoggedOut, h.client.Transport.State())

	h.backend.setRefreshStatus(0)
	h.login(t)
	assert.Equal(t, StateIdle, h.client.Transport.State())

	h.backend.expireAccess()
	_, err = h.client.API.PostLikers(context.Background(), 1)
	assert.NoError(t, err)
	assert.EqualValues(t, 2, h.backend.refreshCalls.Load())
}

func TestRefreshTimeoutEndsSession(t *testing.T) {
	h := newHarness(t)
	h.client.Transport.timeout = 50 * time.Millisecond
	h.login(t)
	h.backend.expireAccess()
	h.backend.setRefreshDelay(300 * time.Millisecond)

	_, err := h.client.API.PostLikers(context.Background(), 1)
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, StateLoggedOut, h.client.Transport.State())
	assert.Equal(t, 1, h.nav.count())
}

func TestReplayResendsRequestBody(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.backend.expireAccess()

	resp, err := h.client.API.CreateComment(context.Background(), 42, h.backend.user.ID, "hello there", nil)
	require.NoError(t, err)
	assert.Equal(t, "hello there", resp.CommentText)
	assert.Contains(t, h.backend.lastBody("/api/v1/posts/42/comments"), `"commentText":"hello there"`)
	assert.EqualValues(t, 1, h.backend.refreshCalls.Load())
}

func TestMissingRefreshTokenTearsDown(t *testing.T) {
	kv := storage.NewMemoryStore()
	store := NewCredentialStore(kv)
	require.NoError(t, kv.SetMany(context.Background(), map[string]string{keyAccessToken: "stale"}))

	var refreshCalled bool
	base := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if isRefreshRequest(req) {
			refreshCalled = true
		}
		return textResponse(req, http.StatusUnauthorized, `{"message":"Unauthorized"}`), nil
	})
	term := &recordingTerminator{}
	tr := NewRefreshTransport(base, store, "http://backend", time.Second)
	tr.SetTerminator(term)

	req, _ := http.NewRequest(http.MethodGet, "http://backend/api/v1/newsfeed", nil)
	resp, err := tr.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":"Unauthorized"}`, string(raw))
	assert.False(t, refreshCalled)
	assert.Equal(t, StateLoggedOut, tr.State())
	assert.Equal(t, 1, term.calls)
	assert.ErrorIs(t, term.reason, errNoRefreshToken)
}

func TestAnonymousUnauthorizedPassesThrough(t *testing.T) {
	store := NewCredentialStore(storage.NewMemoryStore())

	var refreshCalled bool
	base := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if isRefreshRequest(req) {
			refreshCalled = true
		}
		assert.Empty(t, req.Header.Get("Authorization"))
		return textResponse(req, http.StatusUnauthorized, `{"message":"Invalid email or password"}`), nil
	})
	term := &recordingTerminator{}
	tr := NewRefreshTransport(base, store, "http://backend", time.Second)
	tr.SetTerminator(term)

	for i := 0; i < 2; i++ {
		req, _ := http.NewRequest(http.MethodPost, "http://backend/api/auth/login", strings.NewReader(`{}`))
		resp, err := tr.RoundTrip(req)
		require.NoError(t, err)
		raw, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Contains(t, string(raw), "Invalid email or password")
		assert.Equal(t, StateIdle, tr.State())
	}
	assert.False(t, refreshCalled)
	assert.Zero(t, term.calls)
}

func TestStaleTokenReplaysWithoutRefresh(t *testing.T) {
	kv := storage.NewMemoryStore()
	store := NewCredentialStore(kv)
	ctx := context.Background()
	require.NoError(t, store.SetTokens(ctx, models.TokenPair{AccessToken: "old", RefreshToken: "r1"}))

	var authHeaders []string
	var refreshes int
	base := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if isRefreshRequest(req) {
			refreshes++
			return textResponse(req, http.StatusOK, `{"accessToken":"x","refreshToken":"y"}`), nil
		}
		auth := req.Header.Get("Authorization")
		authHeaders = append(authHeaders, auth)
		if auth == "Bearer old" {
			// another caller rotated the pair while this request was on the wire
			require.NoError(t, store.SetTokens(ctx, models.TokenPair{AccessToken: "new", RefreshToken: "r2"}))
			return textResponse(req, http.StatusUnauthorized, `{}`), nil
		}
		return textResponse(req, http.StatusOK, `[]`), nil
	})
	tr := NewRefreshTransport(base, store, "http://backend", time.Second)

	req, _ := http.NewRequest(http.MethodGet, "http://backend/api/v1/posts/1/likes", nil)
	resp, err := tr.RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"Bearer old", "Bearer new"}, authHeaders)
	assert.Zero(t, refreshes)
}

func TestReplayIsAttemptedOnce(t *testing.T) {
	store := NewCredentialStore(storage.NewMemoryStore())
	ctx := context.Background()
	require.NoError(t, store.SetTokens(ctx, models.TokenPair{AccessToken: "a1", RefreshToken: "r1"}))

	var calls, refreshes int
	base := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if isRefreshRequest(req) {
			refreshes++
			return textResponse(req, http.StatusOK, `{"accessToken":"a2","refreshToken":"r2"}`), nil
		}
		calls++
		return textResponse(req, http.StatusUnauthorized, `{"message":"nope"}`), nil
	})
	tr := NewRefreshTransport(base, store, "http://backend", time.Second)

	req, _ := http.NewRequest(http.MethodGet, "http://backend/api/v1/newsfeed", nil)
	resp, err := tr.RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, refreshes)
	assert.Equal(t, StateIdle, tr.State())
}

func TestRefreshEndpointIsNotIntercepted(t *testing.T) {
	store := NewCredentialStore(storage.NewMemoryStore())
	var seen []string
	base := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		seen = append(seen, req.URL.Path+" "+req.Header.Get("Authorization"))
		return textResponse(req, http.StatusUnauthorized, `{}`), nil
	})
	tr := NewRefreshTransport(base, store, "http://backend", time.Second)

	req, _ := http.NewRequest(http.MethodPost, "http://backend/api/auth/refresh", nil)
	resp, err := tr.RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, []string{"/api/auth/refresh "}, seen)
	assert.Equal(t, StateIdle, tr.State())
}

func TestRequestIDIsStableAcrossReplay(t *testing.T) {
	store := NewCredentialStore(storage.NewMemoryStore())
	ctx := context.Background()
	require.NoError(t, store.SetTokens(ctx, models.TokenPair{AccessToken: "a1", RefreshToken: "r1"}))

	var ids []string
	base := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if isRefreshRequest(req) {
			return textResponse(req, http.StatusOK, `{"accessToken":"a2","refreshToken":"r2"}`), nil
		}
		ids = append(ids, req.Header.Get(requestIDHeader))
		if req.Header.Get("Authorization") == "Bearer a1" {
			return textResponse(req, http.StatusUnauthorized, `{}`), nil
		}
		return textResponse(req, http.StatusOK, `{}`), nil
	})
	tr := NewRefreshTransport(base, store, "http://backend", time.Second)
	req, _ := http.NewRequest(http.MethodGet, "http://backend/api/v1/newsfeed", nil)
	_, err := tr.RoundTrip(req)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.NotEmpty(t, ids[0])
	assert.Equal(t, ids[0], ids[1])
}

type recordingTerminator struct {
	calls  int
	reason error
}

func (r *recordingTerminator) ForceLogout(_ context.Context, reason error) {
	r.calls++
	r.reason = reason
}

func TestRefreshStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "refreshing", StateRefreshing.String())
	assert.Equal(t, "logged_out", StateLoggedOut.String())
	assert.True(t, errors.Is(ErrSessionExpired, ErrSessionExpired))
}
