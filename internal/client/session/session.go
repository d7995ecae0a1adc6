// Package session holds the signed-in user's credentials and builds the
// Authorization header for privileged requests.
package session

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"pollctl/pkg/protocol"

	"golang.org/x/sync/singleflight"
)

// refreshTimeout bounds a shared refresh, which outlives any one caller's
// cancellation.
const refreshTimeout = 15 * time.Second

// Refresher exchanges a refresh token for a new access token.
type Refresher interface {
	Refresh(ctx context.Context, refresh string) (string, error)
}

// Session is created once at program start and passed to the API client.
type Session struct {
	mu     sync.Mutex
	store  Store
	values Values

	refresh singleflight.Group
}

// New loads the persisted session from store.
func New(store Store) (*Session, error) {
	values, err := store.Load()
	if err != nil {
		return nil, err
	}
	return &Session{store: store, values: values}, nil
}

// CurrentUser returns the stored user, or nil when signed out. It only
// reads local state.
func (s *Session) CurrentUser() *protocol.User {
	s.mu.Lock()
	raw := s.values.User
	s.mu.Unlock()

	if raw == "" {
		return nil
	}
	var u protocol.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil || u.Validate() != nil {
		return nil
	}
	return &u
}

func (s *Session) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values.Access
}

func (s *Session) RefreshToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values.Refresh
}

// SignIn replaces the whole session.
func (s *Session) SignIn(user *protocol.User, access, refresh string) error {
	encoded, err := json.Marshal(user)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	v := Values{Access: access, Refresh: refresh, User: string(encoded)}
	if err := s.store.Save(v); err != nil {
		return err
	}
	s.values = v
	return nil
}

// Clear drops all three values. The in-memory session is cleared even if
// the store fails.
func (s *Session) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = Values{}
	return s.store.Clear()
}

// AuthorizedHeader returns the Authorization header value for a privileged
// request, or "" when there is no access token. With a refresh token
// present it first performs one refresh; concurrent callers share it. A
// failed refresh leaves the session untouched and the request goes out
// with whatever token is stored. The refresh keeps ctx's values but not its
// cancellation, so one caller giving up does not fail the others.
func (s *Session) AuthorizedHeader(ctx context.Context, r Refresher) string {
	if refresh := s.RefreshToken(); refresh != "" && r != nil {
		s.refresh.Do(refresh, func() (interface{}, error) {
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
			defer cancel()
			access, err := r.Refresh(rctx, refresh)
			if err != nil {
				return nil, err
			}
			s.storeAccess(refresh, access)
			return access, nil
		})
	}

	if access := s.AccessToken(); access != "" {
		return "Bearer " + access
	}
	return ""
}

// storeAccess keeps a refreshed access token unless the session changed
// (logout or another sign-in) while the refresh was in flight.
func (s *Session) storeAccess(refresh, access string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.values.Refresh != refresh {
		return
	}
	v := s.values
	v.Access = access
	if err := s.store.Save(v); err != nil {
		log.Printf("Failed to persist refreshed access token: %v", err)
	}
	s.values = v
}
