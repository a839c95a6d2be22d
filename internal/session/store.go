package session

import (
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken is returned by Get for tokens that fail signature or claim
// validation.
var ErrInvalidToken = errors.New("invalid session token")

// Store is the in-memory session host. Sessions are addressed by an
// HMAC-signed token handed to the browser as a cookie; the signature keeps
// clients from forging or guessing session IDs.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	secret   []byte
	ttl      time.Duration
}

type entry struct {
	state    *State
	lastSeen time.Time
}

// NewStore creates a Store. Pass a nil secret to generate an ephemeral one,
// which invalidates all sessions on restart (the original console behaved the
// same way).
func NewStore(secret []byte, ttl time.Duration) *Store {
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			panic(fmt.Sprintf("session secret: %v", err))
		}
	}
	return &Store{
		sessions: make(map[string]*entry),
		secret:   secret,
		ttl:      ttl,
	}
}

// Issue creates a fresh session and returns its signed token and state.
func (st *Store) Issue() (string, *State, error) {
	sid := uuid.NewString()
	now := time.Now()

	claims := jwt.MapClaims{
		"sid": sid,
		"iat": now.Unix(),
		"exp": now.Add(st.ttl).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(st.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign session token: %w", err)
	}

	state := &State{}
	st.mu.Lock()
	st.sessions[sid] = &entry{state: state, lastSeen: now}
	st.mu.Unlock()
	return token, state, nil
}

// Get verifies the token and returns the session state it addresses.
// A validly signed token whose session has been pruned yields ErrInvalidToken;
// the caller should issue a new session.
func (st *Store) Get(token string) (*State, error) {
	sid, err := st.verify(token)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	e, ok := st.sessions[sid]
	if !ok {
		return nil, ErrInvalidToken
	}
	e.lastSeen = time.Now()
	return e.state, nil
}

// Evict removes sessions idle longer than the store TTL. Returns the number
// removed. Safe to call from a background goroutine.
func (st *Store) Evict() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	n := 0
	for sid, e := range st.sessions {
		if time.Since(e.lastSeen) > st.ttl {
			delete(st.sessions, sid)
			n++
		}
	}
	return n
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// verify checks the token signature and expiry and extracts the session ID.
func (st *Store) verify(token string) (string, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return st.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	sid, _ := claims["sid"].(string)
	if sid == "" {
		return "", ErrInvalidToken
	}
	return sid, nil
}
