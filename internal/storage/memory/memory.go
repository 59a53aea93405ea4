// Package memory implements the storage contracts with an in-process,
// exclusive-writer map -- the "neutral", contract-privileging
// implementation called for by the spec's design notes: no implementation,
// including this one, gets special treatment from the session-store
// contract.
package memory

import (
	"context"
	"crypto/rand"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	warden "github.com/eugener/warden/internal"
)

// TokenSize is the number of random bytes used for a freshly minted
// session token (160 bits, per the spec's minimum).
const TokenSize = 20

// Store is an in-memory implementation of storage.Store. All mutation goes
// through mu (single writer, many concurrent readers), matching the
// concurrency discipline the spec requires of the session store contract.
type Store struct {
	mu sync.RWMutex

	sessions    map[sessionKey]*warden.Session
	nextSession map[string]int64 // userID -> next session id counter

	users       map[string]*warden.User // userID -> user
	usersByName map[string]string       // name -> userID

	accounts     map[string]*warden.Account // accountID -> account
	accountByKey map[accountKey]string      // (service,name) -> accountID
}

type sessionKey struct {
	userID    string
	sessionID string
}

type accountKey struct {
	service string
	name    string
}

// New returns an empty in-memory Store.
func New() *Store {
	return &Store{
		sessions:     make(map[sessionKey]*warden.Session),
		nextSession:  make(map[string]int64),
		users:        make(map[string]*warden.User),
		usersByName:  make(map[string]string),
		accounts:     make(map[string]*warden.Account),
		accountByKey: make(map[accountKey]string),
	}
}

// --- SessionStore ---

func (s *Store) FindByUserAndCtime(_ context.Context, userID string, ctime int64) (*warden.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := time.UnixMilli(ctime)
	for k, sess := range s.sessions {
		if k.userID == userID && sess.CreatedAt.Equal(want) {
			return cloneSession(sess), nil
		}
	}
	return nil, warden.ErrNotFound
}

func (s *Store) Get(_ context.Context, userID, sessionID string) (*warden.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionKey{userID, sessionID}]
	if !ok {
		return nil, warden.ErrNotFound
	}
	return cloneSession(sess), nil
}

func (s *Store) Put(_ context.Context, session *warden.Session) (*warden.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := cloneSession(session)
	if sess.SessionID == "" {
		s.nextSession[sess.UserID]++
		sess.SessionID = strconv.FormatInt(s.nextSession[sess.UserID], 10)
	}
	s.sessions[sessionKey{sess.UserID, sess.SessionID}] = sess
	return cloneSession(sess), nil
}

func (s *Store) Delete(_ context.Context, userID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionKey{userID, sessionID})
	return nil
}

func (s *Store) ListByUser(_ context.Context, userID string) ([]*warden.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*warden.Session
	for k, sess := range s.sessions {
		if k.userID == userID {
			out = append(out, cloneSession(sess))
		}
	}
	return out, nil
}

func (s *Store) DeleteAll(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.sessions {
		if k.userID == userID {
			delete(s.sessions, k)
		}
	}
	return nil
}

func (s *Store) NewForUser(_ context.Context, userID string, ctime int64, clientPublicKey [32]byte) (*warden.Session, error) {
	token := make([]byte, TokenSize)
	if _, err := rand.Read(token); err != nil {
		return nil, fmt.Errorf("memory: generate session token: %w", err)
	}
	createdAt := time.UnixMilli(ctime)
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSession[userID]++
	sess := &warden.Session{
		UserID:          userID,
		SessionID:       strconv.FormatInt(s.nextSession[userID], 10),
		ClientPublicKey: clientPublicKey,
		Token:           token,
		Serial:          1,
		CreatedAt:       createdAt,
		AccessedAt:      now,
	}
	s.sessions[sessionKey{userID, sess.SessionID}] = sess
	return cloneSession(sess), nil
}

func cloneSession(s *warden.Session) *warden.Session {
	cp := *s
	cp.Token = append([]byte(nil), s.Token...)
	return &cp
}

// --- UserStore ---

func (s *Store) GetUser(_ context.Context, userID string) (*warden.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, warden.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Store) GetByName(_ context.Context, name string) (*warden.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.usersByName[name]
	if !ok {
		return nil, warden.ErrNotFound
	}
	cp := *s.users[id]
	return &cp, nil
}

func (s *Store) CreateUser(_ context.Context, user *warden.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.usersByName[user.Name]; exists {
		return warden.ErrConflict
	}
	if user.UserID == "" {
		user.UserID = uuid.Must(uuid.NewV7()).String()
	}
	cp := *user
	s.users[user.UserID] = &cp
	s.usersByName[user.Name] = user.UserID
	return nil
}

func (s *Store) UpdateUser(_ context.Context, user *warden.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.UserID]; !ok {
		return warden.ErrNotFound
	}
	cp := *user
	s.users[user.UserID] = &cp
	s.usersByName[user.Name] = user.UserID
	return nil
}

// --- AccountStore ---

func (s *Store) GetByServiceAndName(_ context.Context, service, name string) (*warden.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.accountByKey[accountKey{service, name}]
	if !ok {
		return nil, warden.ErrNotFound
	}
	cp := *s.accounts[id]
	return &cp, nil
}

func (s *Store) CreateAccount(_ context.Context, account *warden.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := accountKey{account.Service, account.Name}
	if _, exists := s.accountByKey[key]; exists {
		return warden.ErrConflict
	}
	if account.AccountID == "" {
		account.AccountID = uuid.Must(uuid.NewV7()).String()
	}
	cp := *account
	s.accounts[account.AccountID] = &cp
	s.accountByKey[key] = account.AccountID
	return nil
}

func (s *Store) UpdateAccount(_ context.Context, account *warden.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[account.AccountID]; !ok {
		return warden.ErrNotFound
	}
	cp := *account
	s.accounts[account.AccountID] = &cp
	s.accountByKey[accountKey{account.Service, account.Name}] = account.AccountID
	return nil
}

func (s *Store) Close() error { return nil }
