package web

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-while/go-easyweb/internal/config"
	"github.com/go-while/go-easyweb/internal/database"
	"github.com/gorilla/securecookie"
)

const sessionContextKey = "easyweb.session"

// Session is the per-request view of a stored session.
// A new session is only stored once something was set on it.
type Session struct {
	mu        sync.Mutex
	id        string
	data      map[string]any
	isNew     bool
	modified  bool
	destroyed bool

	c   *gin.Context
	mgr *sessionManager
}

// ID returns the session ID, empty for a new session nothing was set on
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// IsNew reports whether the session did not exist before this request
func (s *Session) IsNew() bool {
	return s.isNew
}

// Get returns a session value. Numbers stored earlier come back as float64.
func (s *Session) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok
}

// Set stores a value. The cookie of a new session is sent with the first Set.
func (s *Session) Set(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return errors.New("session destroyed")
	}
	if s.id == "" {
		sid, err := database.GenerateSecureSessionID()
		if err != nil {
			return err
		}
		s.id = sid
		s.mgr.writeCookie(s.c, sid)
	}
	s.data[key] = value
	s.modified = true
	return nil
}

// Delete removes a value
func (s *Session) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; ok {
		delete(s.data, key)
		s.modified = true
	}
}

// Destroy removes the session from the store and clears the cookie
func (s *Session) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destroyed = true
	s.data = map[string]any{}
	clearSessionCookie(s.c, s.mgr.cfg.CookieName)
}

// GetSession returns the session of the request, or nil without UseSession
func GetSession(c *gin.Context) *Session {
	v, ok := c.Get(sessionContextKey)
	if !ok {
		return nil
	}
	sess, _ := v.(*Session)
	return sess
}

type sessionManager struct {
	db    *database.Database
	cfg   config.SessionConfig
	codec *securecookie.SecureCookie
}

func newSessionManager(db *database.Database, cfg config.SessionConfig) *sessionManager {
	codec := securecookie.New([]byte(cfg.Secret), nil)
	codec.MaxAge(int(cfg.Expiry.Seconds()))
	return &sessionManager{db: db, cfg: cfg, codec: codec}
}

// encode signs and timestamps the session ID for the cookie
func (m *sessionManager) encode(sid string) (string, error) {
	return m.codec.Encode(m.cfg.CookieName, sid)
}

// decode verifies a cookie value and returns the session ID
func (m *sessionManager) decode(value string) (string, bool) {
	var sid string
	if err := m.codec.Decode(m.cfg.CookieName, value, &sid); err != nil || sid == "" {
		return "", false
	}
	return sid, true
}

func (m *sessionManager) writeCookie(c *gin.Context, sid string) {
	value, err := m.encode(sid)
	if err != nil {
		log.Printf("[SESSION]: Failed to encode session cookie: %v", err)
		return
	}
	setSessionCookie(c, m.cfg.CookieName, value, m.cfg.Expiry)
}

// middleware loads the session before the handlers and stores it afterwards
func (m *sessionManager) middleware(c *gin.Context) {
	sess := m.load(c)
	c.Set(sessionContextKey, sess)
	c.Next()
	m.save(c, sess)
}

func (m *sessionManager) load(c *gin.Context) *Session {
	sess := &Session{data: map[string]any{}, isNew: true, c: c, mgr: m}

	value, err := c.Cookie(m.cfg.CookieName)
	if err != nil || value == "" {
		return sess
	}
	sid, ok := m.decode(value)
	if !ok {
		log.Printf("[SESSION]: Ignoring invalid or expired session cookie from %s", c.ClientIP())
		return sess
	}

	rec, err := m.db.GetSession(c.Request.Context(), sid)
	if err != nil {
		if !errors.Is(err, database.ErrSessionNotFound) {
			log.Printf("[SESSION]: Failed to load session: %v", err)
		}
		return sess
	}
	sess.id = rec.ID
	sess.data = rec.Data
	sess.isNew = false
	// rolling expiry, the browser gets a fresh cookie with every request
	m.writeCookie(c, sid)
	return sess
}

func (m *sessionManager) save(c *gin.Context, sess *Session) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	// the response is out already, finish the write even if the client went away
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), 5*time.Second)
	defer cancel()

	var err error
	switch {
	case sess.destroyed:
		if sess.id != "" {
			err = m.db.DestroySession(ctx, sess.id)
		}
	case sess.modified:
		err = m.db.SetSession(ctx, sess.id, sess.data, time.Now().Add(m.cfg.Expiry))
	case !sess.isNew:
		err = m.db.TouchSession(ctx, sess.id, time.Now().Add(m.cfg.Expiry))
	}
	if err != nil {
		log.Printf("[SESSION]: Failed to save session: %v", err)
	}
}
