package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"socialclient/config"
	"socialclient/models"
	"socialclient/storage"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// fakeBackend is a gin server speaking the backend API with HS256 tokens.
type fakeBackend struct {
	t      *testing.T
	server *httptest.Server
	secret []byte

	mu            sync.Mutex
	user          models.UserProfile
	password      string
	validAccess   map[string]bool
	refreshToken  string
	refreshStatus int
	refreshDelay  time.Duration
	refreshGate   chan struct{}
	likeStatus    int
	posts         map[models.FeedKind][]models.PostResponse
	postLikes     map[int64]bool
	lastBodies    map[string]string
	seenTokens    []string

	refreshCalls atomic.Int32
	unauthorized atomic.Int32
	requests     atomic.Int32
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	gin.SetMode(gin.TestMode)

	email := gofakeit.Email()
	b := &fakeBackend{
		t:      t,
		secret: []byte(gofakeit.Password(true, true, true, false, false, 32)),
		user: models.UserProfile{
			ID:       gofakeit.Int64()&0xffff + 1,
			Username: gofakeit.LetterN(8),
			FullName: gofakeit.Name(),
			Email:    &email,
		},
		password:    "Passw0rd!",
		validAccess: map[string]bool{},
		posts:       map[models.FeedKind][]models.PostResponse{},
		postLikes:   map[int64]bool{},
		lastBodies:  map[string]string{},
	}

	r := gin.New()
	r.POST("/api/auth/login", b.login)
	r.POST("/api/auth/refresh", b.refresh)

	api := r.Group("/api", b.requireToken)
	api.GET("/posts/feed/trending", b.feed(models.FeedTrending))
	api.GET("/v1/newsfeed", b.feed(models.FeedFollowing))
	api.POST("/v1/posts/:id/likes", b.setLike(true))
	api.DELETE("/v1/posts/:id/likes", b.setLike(false))
	api.GET("/v1/posts/:id/likes", b.likers)
	api.POST("/v1/posts/:id/comments", b.echoBody)

	b.server = httptest.NewServer(r)
	t.Cleanup(b.server.Close)
	return b
}

func (b *fakeBackend) issue() models.TokenPair {
	claims := jwt.MapClaims{
		"user_id": b.user.ID,
		"jti":     uuid.NewString(),
		"exp":     time.Now().Add(time.Hour).Unix(),
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.secret)
	require.NoError(b.t, err)
	pair := models.TokenPair{AccessToken: access, RefreshToken: uuid.NewString()}
	b.validAccess[access] = true
	b.refreshToken = pair.RefreshToken
	return pair
}

// expireAccess invalidates every access token issued so far.
func (b *fakeBackend) expireAccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.validAccess = map[string]bool{}
}

func (b *fakeBackend) setRefreshStatus(status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshStatus = status
}

func (b *fakeBackend) setRefreshDelay(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshDelay = d
}

func (b *fakeBackend) holdRefresh() chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshGate = make(chan struct{})
	return b.refreshGate
}

func (b *fakeBackend) setLikeStatus(status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.likeStatus = status
}

func (b *fakeBackend) setPosts(kind models.FeedKind, posts []models.PostResponse) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.posts[kind] = posts
}

func (b *fakeBackend) tokensSeen() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.seenTokens...)
}

func (b *fakeBackend) lastBody(path string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastBodies[path]
}

func (b *fakeBackend) login(c *gin.Context) {
	var in models.LoginRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if in.Password != b.password {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid email or password"})
		return
	}
	pair := b.issue()
	user := b.user
	c.JSON(http.StatusOK, models.LoginResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken, User: &user})
}

func (b *fakeBackend) refresh(c *gin.Context) {
	b.refreshCalls.Add(1)
	b.mu.Lock()
	gate, delay, status := b.refreshGate, b.refreshDelay, b.refreshStatus
	b.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if delay > 0 {
		time.Sleep(delay)
	}

	var in models.RefreshRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if status != 0 {
		c.JSON(status, gin.H{"message": "Refresh token expired"})
		return
	}
	if in.RefreshToken != b.refreshToken {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid refresh token"})
		return
	}
	pair := b.issue()
	c.JSON(http.StatusOK, pair)
}

func (b *fakeBackend) requireToken(c *gin.Context) {
	b.requests.Add(1)
	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	b.mu.Lock()
	ok := b.validAccess[token]
	b.seenTokens = append(b.seenTokens, token)
	b.mu.Unlock()
	if !ok {
		b.unauthorized.Add(1)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
		return
	}
	c.Next()
}

func (b *fakeBackend) feed(kind models.FeedKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		b.mu.Lock()
		posts := append([]models.PostResponse(nil), b.posts[kind]...)
		b.mu.Unlock()
		size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))
		c.JSON(http.StatusOK, models.Page[models.PostResponse]{
			Content:          posts,
			TotalPages:       1,
			TotalElements:    len(posts),
			Size:             size,
			NumberOfElements: len(posts),
			First:            true,
			Last:             true,
			Empty:            len(posts) == 0,
		})
	}
}

func (b *fakeBackend) setLike(liked bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := strconv.ParseInt(c.Param("id"), 10, 64)
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.likeStatus != 0 {
			c.JSON(b.likeStatus, gin.H{"message": "like service unavailable"})
			return
		}
		b.postLikes[id] = liked
		c.Status(http.StatusOK)
	}
}

func (b *fakeBackend) likers(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c.JSON(http.StatusOK, []models.UserSummary{{ID: b.user.ID, Username: b.user.Username}})
}

func (b *fakeBackend) echoBody(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	b.mu.Lock()
	b.lastBodies[c.Request.URL.Path] = string(raw)
	b.mu.Unlock()
	var in models.CreateCommentRequest
	_ = json.Unmarshal(raw, &in)
	c.JSON(http.StatusCreated, models.CommentResponse{
		ID:          gofakeit.Int64()&0xffff + 1,
		PostID:      in.PostID,
		CommentText: in.CommentText,
		User:        models.AuthorResponse{ID: in.UserID},
	})
}

// capturingNavigator counts login redirects.
type capturingNavigator struct {
	mu      sync.Mutex
	reasons []string
}

func (n *capturingNavigator) RedirectToLogin(reason string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reasons = append(n.reasons, reason)
}

func (n *capturingNavigator) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.reasons)
}

type harness struct {
	backend *fakeBackend
	client  *Client
	nav     *capturingNavigator
	notices *NoticeRecorder
	kv      *storage.MemoryStore
	conf    *config.ConfigSchema
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	backend := newFakeBackend(t)
	conf := config.Default()
	conf.API.BaseURL = backend.server.URL
	conf.API.Timeout = 5 * time.Second
	conf.API.RefreshTimeout = 2 * time.Second

	h := &harness{
		backend: backend,
		nav:     &capturingNavigator{},
		notices: &NoticeRecorder{},
		kv:      storage.NewMemoryStore(),
		conf:    conf,
	}
	client, err := NewClient(context.Background(), conf, Options{
		KV:        h.kv,
		Navigator: h.nav,
		Notifier:  h.notices,
	})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	h.client = client
	return h
}

func (h *harness) login(t *testing.T) {
	t.Helper()
	email := ""
	if h.backend.user.Email != nil {
		email = *h.backend.user.Email
	}
	_, err := h.client.Session.Login(context.Background(), models.LoginRequest{Email: email, Password: h.backend.password})
	require.NoError(t, err)
}
