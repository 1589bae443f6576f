package twin

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"sync"
)

const (
	SessionCookieName = "session_id"
	sessionIDLength   = 32
)

type uiSession struct {
	principal Principal
	flash     string
}

// sessionStore keeps UI login sessions in memory.
type sessionStore struct {
	mu   sync.Mutex
	byID map[string]*uiSession
}

func newSessionStore() *sessionStore {
	return &sessionStore{byID: make(map[string]*uiSession)}
}

func (st *sessionStore) create(p Principal) (string, error) {
	id, err := generateSessionID()
	if err != nil {
		return "", err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.byID[id] = &uiSession{principal: p}
	return id, nil
}

func (st *sessionStore) get(id string) (Principal, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	sess, ok := st.byID[id]
	if !ok {
		return Principal{}, false
	}
	return sess.principal, true
}

func (st *sessionStore) setFlash(id, msg string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if sess, ok := st.byID[id]; ok {
		sess.flash = msg
	}
}

// popFlash returns and clears the pending flash message.
func (st *sessionStore) popFlash(id string) string {
	st.mu.Lock()
	defer st.mu.Unlock()
	sess, ok := st.byID[id]
	if !ok {
		return ""
	}
	msg := sess.flash
	sess.flash = ""
	return msg
}

func (st *sessionStore) delete(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.byID, id)
}

func (st *sessionStore) reset() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.byID = make(map[string]*uiSession)
}

func generateSessionID() (string, error) {
	b := make([]byte, sessionIDLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session ID: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func sessionIDFromRequest(r *http.Request) string {
	c, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

func setSessionCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
