// Package session holds the state of the signed-in user of this device:
// device id, tokens, the attempting-login flag and the selected incident and
// room. Every change is persisted through the metadata repository.
package session

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/dmitrijs2005/fieldsync/internal/client/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	keyDeviceID        = "device_id"
	keyUsername        = "username"
	keyAccessToken     = "access_token"
	keyRefreshToken    = "refresh_token"
	keyIncidentID      = "incident_id"
	keyRoomID          = "room_id"
	keyAttemptingLogin = "attempting_login"
)

// KV is the subset of the metadata repository a session needs.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	SetMany(ctx context.Context, values map[string]string) error
	Delete(ctx context.Context, keys ...string) error
}

type Session struct {
	mu   sync.RWMutex
	repo KV
	now  func() time.Time

	deviceID        string
	username        string
	accessToken     string
	refreshToken    string
	incidentID      int64
	roomID          int64
	attemptingLogin bool
}

// Load restores the session from repo. A device id is generated and stored
// the first time.
func Load(ctx context.Context, repo KV) (*Session, error) {
	s := &Session{repo: repo, now: time.Now}

	get := func(key string) (string, error) {
		v, _, err := repo.Get(ctx, key)
		return v, err
	}

	var err error
	if s.deviceID, err = get(keyDeviceID); err != nil {
		return nil, err
	}
	if s.username, err = get(keyUsername); err != nil {
		return nil, err
	}
	if s.accessToken, err = get(keyAccessToken); err != nil {
		return nil, err
	}
	if s.refreshToken, err = get(keyRefreshToken); err != nil {
		return nil, err
	}

	for key, dst := range map[string]*int64{keyIncidentID: &s.incidentID, keyRoomID: &s.roomID} {
		v, err := get(key)
		if err != nil {
			return nil, err
		}
		if v == "" {
			continue
		}
		if *dst, err = strconv.ParseInt(v, 10, 64); err != nil {
			return nil, fmt.Errorf("session %s: %w", key, err)
		}
	}

	v, err := get(keyAttemptingLogin)
	if err != nil {
		return nil, err
	}
	s.attemptingLogin = v == "true"

	if s.deviceID == "" {
		s.deviceID = uuid.NewString()
		if err := repo.SetMany(ctx, map[string]string{keyDeviceID: s.deviceID}); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// SetClock replaces the time source used for token expiry checks.
func (s *Session) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Session) DeviceID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deviceID
}

// Username is also the owner recorded on locally created entities.
func (s *Session) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username
}

func (s *Session) Tokens() (access, refresh string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken, s.refreshToken
}

// SignIn stores the tokens issued by a successful login and clears the
// attempting-login flag.
func (s *Session) SignIn(ctx context.Context, username, access, refresh string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.SetMany(ctx, map[string]string{
		keyUsername:        username,
		keyAccessToken:     access,
		keyRefreshToken:    refresh,
		keyAttemptingLogin: "false",
	}); err != nil {
		return err
	}
	s.username, s.accessToken, s.refreshToken = username, access, refresh
	s.attemptingLogin = false
	return nil
}

// UpdateTokens stores a refreshed token pair.
func (s *Session) UpdateTokens(ctx context.Context, access, refresh string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.SetMany(ctx, map[string]string{
		keyAccessToken:  access,
		keyRefreshToken: refresh,
	}); err != nil {
		return err
	}
	s.accessToken, s.refreshToken = access, refresh
	return nil
}

func (s *Session) AttemptingLogin() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.attemptingLogin
}

func (s *Session) SetAttemptingLogin(ctx context.Context, v bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.SetMany(ctx, map[string]string{keyAttemptingLogin: strconv.FormatBool(v)}); err != nil {
		return err
	}
	s.attemptingLogin = v
	return nil
}

// Scope is the currently selected incident and room.
func (s *Session) Scope() models.Scope {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.Scope{IncidentID: s.incidentID, RoomID: s.roomID}
}

// SelectIncident switches incident and leaves any room.
func (s *Session) SelectIncident(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.SetMany(ctx, map[string]string{
		keyIncidentID: strconv.FormatInt(id, 10),
		keyRoomID:     "0",
	}); err != nil {
		return err
	}
	s.incidentID, s.roomID = id, 0
	return nil
}

func (s *Session) SelectRoom(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.SetMany(ctx, map[string]string{keyRoomID: strconv.FormatInt(id, 10)}); err != nil {
		return err
	}
	s.roomID = id
	return nil
}

// IsAuthenticated reports whether a token is present and the refresh token
// (or the access token when there is none) has not expired. Tokens that do
// not carry an expiry are taken at face value.
func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	token := s.refreshToken
	if token == "" {
		token = s.accessToken
	}
	if token == "" {
		return false
	}

	exp, ok := expiry(token)
	if !ok {
		return true
	}
	return s.now().Before(exp)
}

func expiry(token string) (time.Time, bool) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// Clear signs out. The device id and the selected incident survive.
func (s *Session) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.Delete(ctx, keyUsername, keyAccessToken, keyRefreshToken, keyAttemptingLogin); err != nil {
		return err
	}
	s.username, s.accessToken, s.refreshToken = "", "", ""
	s.attemptingLogin = false
	return nil
}
