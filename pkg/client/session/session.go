// Package session owns the authenticated identity of a client process.
// Login and Logout are the only mutators; everything else observes.
package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"rentmarket/pkg/models"
)

// State is what a Store persists.
type State struct {
	Token string       `json:"token"`
	User  *models.User `json:"user,omitempty"`
}

type Store interface {
	Load() (State, error)
	Save(State) error
	Clear() error
}

// Snapshot is delivered to observers after every change.
type Snapshot struct {
	Token string
	User  *models.User
}

func (s Snapshot) Authenticated() bool {
	return s.Token != "" && s.User != nil
}

type Session struct {
	mu    sync.Mutex
	store Store
	user  *models.User

	subMu sync.Mutex
	subs  map[int]func(Snapshot)
	next  int
}

// New restores the session from store. A store that cannot be read starts
// logged out.
func New(store Store) *Session {
	s := &Session{store: store, subs: make(map[int]func(Snapshot))}
	if st, err := store.Load(); err == nil && st.Token != "" {
		s.user = st.User
	}
	return s
}

// Token reads the store on every call so a rotated token is seen immediately.
func (s *Session) Token() string {
	st, err := s.store.Load()
	if err != nil {
		return ""
	}
	return st.Token
}

func (s *Session) User() *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

func (s *Session) Snapshot() Snapshot {
	return Snapshot{Token: s.Token(), User: s.User()}
}

func (s *Session) Authenticated() bool {
	return s.Snapshot().Authenticated()
}

func (s *Session) Login(token string, user models.User) error {
	if token == "" {
		return errors.New("empty token")
	}
	u := user

	s.mu.Lock()
	if err := s.store.Save(State{Token: token, User: &u}); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("save session: %w", err)
	}
	s.user = &u
	s.mu.Unlock()

	s.notify()
	return nil
}

// Logout clears the token and user. Observers are notified before it returns,
// and only when something was actually cleared.
func (s *Session) Logout() error {
	s.mu.Lock()
	had := s.user != nil
	if !had {
		if st, err := s.store.Load(); err == nil && st.Token != "" {
			had = true
		}
	}
	s.user = nil
	err := s.store.Clear()
	s.mu.Unlock()

	if had {
		s.notify()
	}
	if err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// Subscription is returned by Subscribe; Close stops delivery.
type Subscription interface {
	Close()
}

type subscription struct {
	once  sync.Once
	close func()
}

func (s *subscription) Close() {
	s.once.Do(s.close)
}

// Subscribe registers fn for every future change. Observers run synchronously
// in subscription order.
func (s *Session) Subscribe(fn func(Snapshot)) Subscription {
	s.subMu.Lock()
	id := s.next
	s.next++
	s.subs[id] = fn
	s.subMu.Unlock()

	return &subscription{close: func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}}
}

func (s *Session) notify() {
	s.subMu.Lock()
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Snapshot), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.subs[id])
	}
	s.subMu.Unlock()

	snap := s.Snapshot()
	for _, fn := range fns {
		fn(snap)
	}
}
