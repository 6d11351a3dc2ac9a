package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"socialclient/logger"
	"socialclient/models"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Navigator moves the user interface to the login entry point.
type Navigator interface {
	RedirectToLogin(reason string)
}

type NavigatorFunc func(reason string)

func (f NavigatorFunc) RedirectToLogin(reason string) { f(reason) }

type authAPI interface {
	Login(ctx context.Context, in models.LoginRequest) (*models.LoginResponse, error)
	Register(ctx context.Context, in models.RegisterRequest) (*models.RegisterResponse, error)
	Verify(ctx context.Context, code string) (*models.VerifyResponse, error)
}

// Session is the authenticated-user handle shared by every engine.
type Session struct {
	store    *CredentialStore
	api      authAPI
	nav      Navigator
	notifier Notifier
	events   EventSink
	validate *validator.Validate

	mu            sync.RWMutex
	user          *models.UserProfile
	authenticated bool
	justLoggedOut bool
	subscribers   map[int]func(ClientEvent)
	nextSubID     int
}

func NewSession(store *CredentialStore, api authAPI, nav Navigator, notifier Notifier, events EventSink) *Session {
	if nav == nil {
		nav = NavigatorFunc(func(string) {})
	}
	if events == nil {
		events = NopEventSink{}
	}
	return &Session{
		store:       store,
		api:         api,
		nav:         nav,
		notifier:    notifier,
		events:      events,
		validate:    newValidator(),
		subscribers: map[int]func(ClientEvent){},
	}
}

// Hydrate restores the persisted session. A store holding only one of
// the two tokens is treated as logged out and cleaned up.
func (s *Session) Hydrate(ctx context.Context) error {
	stored, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	if !stored.LoggedIn() {
		if stored.AccessToken != "" || stored.RefreshToken != "" || stored.User != nil {
			logger.Log.Warn("discarding incomplete stored session")
			if err := s.store.ClearSession(ctx); err != nil {
				return err
			}
		}
		s.setState(nil, false)
		return nil
	}
	s.setState(stored.User, true)
	logger.Log.Debug("session hydrated", zap.Bool("has_user", stored.User != nil))
	return nil
}

func (s *Session) Login(ctx context.Context, in models.LoginRequest) (*models.UserProfile, error) {
	if err := validateInput(s.validate, in); err != nil {
		return nil, err
	}
	resp, err := s.api.Login(ctx, in)
	if err != nil {
		logger.Log.Error("login failed", zap.Error(err))
		notify(s.notifier, NoticeError, ErrorMessage(err, "Login failed"))
		return nil, err
	}
	pair := models.TokenPair{AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken}
	if err := s.store.SaveLogin(ctx, pair, resp.User); err != nil {
		logger.Log.Error("failed to persist login", zap.Error(err))
		notify(s.notifier, NoticeError, "Login failed")
		return nil, err
	}
	s.setState(resp.User, true)

	ev := ClientEvent{Kind: EventLogin}
	if resp.User != nil {
		ev.UserID = resp.User.ID
	}
	s.emit(ctx, ev)
	notify(s.notifier, NoticeSuccess, "Logged in")
	return s.CurrentUser(), nil
}

// Register creates an account. It does not log the user in.
func (s *Session) Register(ctx context.Context, in models.RegisterRequest) (string, error) {
	if err := validateInput(s.validate, in); err != nil {
		return "", err
	}
	resp, err := s.api.Register(ctx, in)
	if err != nil {
		logger.Log.Error("registration failed", zap.Error(err))
		notify(s.notifier, NoticeError, ErrorMessage(err, "Registration failed"))
		return "", err
	}
	msg := resp.Message
	if msg == "" {
		msg = "Registration successful, check your email to verify the account"
	}
	notify(s.notifier, NoticeSuccess, msg)
	return msg, nil
}

func (s *Session) Verify(ctx context.Context, code string) (*models.VerifyResponse, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, &ValidationError{Fields: map[string]string{"code": "verification code is required"}}
	}
	resp, err := s.api.Verify(ctx, code)
	if err != nil {
		logger.Log.Error("verification failed", zap.Error(err))
		notify(s.notifier, NoticeError, ErrorMessage(err, "Verification failed"))
		return nil, err
	}
	return resp, nil
}

// Logout ends the session by user request.
func (s *Session) Logout(ctx context.Context) error {
	err := s.store.ClearSession(ctx)
	if err != nil {
		logger.Log.Error("failed to clear session", zap.Error(err))
	}
	s.mu.Lock()
	uid := s.userIDLocked()
	s.user = nil
	s.authenticated = false
	s.justLoggedOut = true
	s.mu.Unlock()

	s.emit(ctx, ClientEvent{Kind: EventLogout, UserID: uid})
	s.nav.RedirectToLogin("logout")
	return err
}

// ForceLogout tears the session down after the refresh token was rejected.
func (s *Session) ForceLogout(ctx context.Context, reason error) {
	if err := s.store.ClearSession(ctx); err != nil {
		logger.Log.Error("failed to clear session", zap.Error(err))
	}
	s.mu.Lock()
	uid := s.userIDLocked()
	s.setStateLocked(nil, false)
	s.mu.Unlock()

	ev := ClientEvent{Kind: EventExpired, UserID: uid}
	if reason != nil {
		ev.Reason = reason.Error()
	}
	s.emit(ctx, ev)
	notify(s.notifier, NoticeInfo, "Your session has expired, please log in again")
	s.nav.RedirectToLogin("session expired")
}

func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated
}

// CurrentUser returns a copy of the cached profile, or nil.
func (s *Session) CurrentUser() *models.UserProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// UserID resolves the numeric id of the current user from the cached
// profile, falling back to the claims of the stored access token.
func (s *Session) UserID(ctx context.Context) (int64, bool) {
	s.mu.RLock()
	authenticated := s.authenticated
	var id int64
	if s.user != nil {
		id = s.user.ID
	}
	s.mu.RUnlock()
	if !authenticated {
		return 0, false
	}
	if id > 0 {
		return id, true
	}
	token, err := s.store.AccessToken(ctx)
	if err != nil || token == "" {
		return 0, false
	}
	return userIDFromToken(token)
}

// RequireAuth guards operations that need a logged in user.
func (s *Session) RequireAuth() error {
	s.mu.Lock()
	if s.authenticated {
		s.mu.Unlock()
		return nil
	}
	quiet := s.justLoggedOut
	s.justLoggedOut = false
	s.mu.Unlock()

	if !quiet {
		notify(s.notifier, NoticeInfo, "You need to log in to continue")
	}
	s.nav.RedirectToLogin("authentication required")
	return ErrNotAuthenticated
}

// UpdateUser replaces the cached profile when it belongs to the current user.
func (s *Session) UpdateUser(ctx context.Context, user *models.UserProfile) error {
	if user == nil {
		return nil
	}
	s.mu.RLock()
	current := s.user
	authenticated := s.authenticated
	s.mu.RUnlock()
	if !authenticated {
		return nil
	}
	if current != nil && current.ID != 0 && current.ID != user.ID {
		return nil
	}
	if current == nil {
		if id, ok := s.UserID(ctx); !ok || id != user.ID {
			return nil
		}
	}
	if err := s.store.SetUser(ctx, user); err != nil {
		return err
	}
	u := *user
	s.mu.Lock()
	s.user = &u
	s.mu.Unlock()
	return nil
}

// Subscribe registers fn for session events and returns its cancel func.
func (s *Session) Subscribe(fn func(ClientEvent)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
	}
}

func (s *Session) emit(ctx context.Context, ev ClientEvent) {
	s.mu.RLock()
	subs := make([]func(ClientEvent), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.mu.RUnlock()

	publishEvent(ctx, s.events, ev)
	for _, fn := range subs {
		fn(ev)
	}
}

func (s *Session) setState(user *models.UserProfile, authenticated bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setStateLocked(user, authenticated)
}

func (s *Session) setStateLocked(user *models.UserProfile, authenticated bool) {
	if user != nil {
		u := *user
		user = &u
	}
	s.user = user
	s.authenticated = authenticated
	if authenticated {
		s.justLoggedOut = false
	}
}

func (s *Session) userIDLocked() int64 {
	if s.user == nil {
		return 0
	}
	return s.user.ID
}

var userIDClaims = []string{"userId", "user_id", "id", "sub"}

// userIDFromToken reads a numeric user id from the token claims. The
// signature is not checked; the server is the authority on validity.
func userIDFromToken(token string) (int64, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return 0, false
	}
	for _, name := range userIDClaims {
		switch v := claims[name].(type) {
		case float64:
			if v > 0 {
				return int64(v), true
			}
		case string:
			if id, err := strconv.ParseInt(v, 10, 64); err == nil && id > 0 {
				return id, true
			}
		}
	}
	return 0, false
}

var _ SessionTerminator = (*Session)(nil)
