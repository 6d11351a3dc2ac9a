package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"socialclient/models"
	"socialclient/storage"
)

const (
	keyAccessToken  = "accessToken"
	keyRefreshToken = "refreshToken"
	keyUser         = "user"
	keyDarkMode     = "darkMode"
)

var ErrIncompleteTokenPair = errors.New("access and refresh tokens must be written together")

// CredentialStore keeps the token pair and the cached profile in a KV backend.
// The two tokens are always written and removed as one unit.
type CredentialStore struct {
	mu sync.RWMutex
	kv storage.KV
}

func NewCredentialStore(kv storage.KV) *CredentialStore {
	return &CredentialStore{kv: kv}
}

func (s *CredentialStore) Tokens(ctx context.Context) (models.TokenPair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens(ctx)
}

func (s *CredentialStore) tokens(ctx context.Context) (models.TokenPair, error) {
	var pair models.TokenPair
	access, _, err := s.kv.Get(ctx, keyAccessToken)
	if err != nil {
		return pair, fmt.Errorf("failed to read access token: %w", err)
	}
	refresh, _, err := s.kv.Get(ctx, keyRefreshToken)
	if err != nil {
		return pair, fmt.Errorf("failed to read refresh token: %w", err)
	}
	pair.AccessToken = access
	pair.RefreshToken = refresh
	return pair, nil
}

func (s *CredentialStore) AccessToken(ctx context.Context) (string, error) {
	pair, err := s.Tokens(ctx)
	return pair.AccessToken, err
}

func (s *CredentialStore) RefreshToken(ctx context.Context) (string, error) {
	pair, err := s.Tokens(ctx)
	return pair.RefreshToken, err
}

// SetTokens replaces both tokens. A pair with an empty member is rejected.
func (s *CredentialStore) SetTokens(ctx context.Context, pair models.TokenPair) error {
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		return ErrIncompleteTokenPair
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kv.SetMany(ctx, map[string]string{
		keyAccessToken:  pair.AccessToken,
		keyRefreshToken: pair.RefreshToken,
	})
}

// SaveLogin stores the token pair together with the profile returned by login.
func (s *CredentialStore) SaveLogin(ctx context.Context, pair models.TokenPair, user *models.UserProfile) error {
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		return ErrIncompleteTokenPair
	}
	values := map[string]string{
		keyAccessToken:  pair.AccessToken,
		keyRefreshToken: pair.RefreshToken,
	}
	if user != nil {
		raw, err := json.Marshal(user)
		if err != nil {
			return fmt.Errorf("failed to encode user: %w", err)
		}
		values[keyUser] = string(raw)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if user == nil {
		if err := s.kv.Delete(ctx, keyUser); err != nil {
			return err
		}
	}
	return s.kv.SetMany(ctx, values)
}

func (s *CredentialStore) User(ctx context.Context) (*models.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user(ctx)
}

func (s *CredentialStore) user(ctx context.Context) (*models.UserProfile, error) {
	raw, ok, err := s.kv.Get(ctx, keyUser)
	if err != nil {
		return nil, fmt.Errorf("failed to read user: %w", err)
	}
	if !ok || raw == "" {
		return nil, nil
	}
	var user models.UserProfile
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return nil, fmt.Errorf("failed to decode stored user: %w", err)
	}
	return &user, nil
}

// SetUser replaces the cached profile; nil removes it.
func (s *CredentialStore) SetUser(ctx context.Context, user *models.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user == nil {
		return s.kv.Delete(ctx, keyUser)
	}
	raw, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to encode user: %w", err)
	}
	return s.kv.SetMany(ctx, map[string]string{keyUser: string(raw)})
}

// Load reads the persisted session. A stored profile that cannot be decoded
// is dropped rather than failing the whole load.
func (s *CredentialStore) Load(ctx context.Context) (models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pair, err := s.tokens(ctx)
	if err != nil {
		return models.Session{}, err
	}
	user, err := s.user(ctx)
	if err != nil && !isDecodeError(err) {
		return models.Session{}, err
	}
	return models.Session{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		User:         user,
	}, nil
}

// ClearSession removes tokens and profile. Preferences survive.
func (s *CredentialStore) ClearSession(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kv.Delete(ctx, keyAccessToken, keyRefreshToken, keyUser)
}

func (s *CredentialStore) DarkMode(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok, err := s.kv.Get(ctx, keyDarkMode)
	if err != nil || !ok {
		return false, err
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, nil
	}
	return v, nil
}

func (s *CredentialStore) SetDarkMode(ctx context.Context, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kv.SetMany(ctx, map[string]string{keyDarkMode: strconv.FormatBool(enabled)})
}

func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}
