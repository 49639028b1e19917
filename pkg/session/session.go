// Package session issues and resolves the anonymous cart session id carried
// in the cart-session-id cookie or an Authorization bearer header.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/angelmondragon/watercolor-storefront/pkg/config"
)

const (
	DefaultCookieName = "cart-session-id"
	DefaultTTL        = 30 * 24 * time.Hour

	idBytes = 32
)

var idPattern = regexp.MustCompile(`^[a-f0-9]{64}$`)

// Generate returns a new 64 character lowercase hex session id.
func Generate() (string, error) {
	buf := make([]byte, idBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating session id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Valid reports whether id is a well-formed session id.
func Valid(id string) bool {
	return idPattern.MatchString(id)
}

// Manager reads and writes the session cookie.
type Manager struct {
	cookieName string
	ttl        time.Duration
	secure     bool
}

func NewManager(cfg config.SessionConfig) *Manager {
	name := strings.TrimSpace(cfg.CookieName)
	if name == "" {
		name = DefaultCookieName
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{cookieName: name, ttl: ttl, secure: cfg.SecureCookie}
}

func (m *Manager) CookieName() string {
	return m.cookieName
}

// FromRequest resolves the session id. A valid bearer value wins over the cookie.
func (m *Manager) FromRequest(r *http.Request) string {
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			if token := strings.TrimSpace(parts[1]); Valid(token) {
				return token
			}
		}
	}
	cookie, err := r.Cookie(m.cookieName)
	if err != nil {
		return ""
	}
	if !Valid(cookie.Value) {
		return ""
	}
	return cookie.Value
}

func (m *Manager) SetCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(m.ttl / time.Second),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (m *Manager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// GetOrCreate returns the request's session id, minting one and setting the
// cookie when absent. created reports whether a new id was issued.
func (m *Manager) GetOrCreate(w http.ResponseWriter, r *http.Request) (id string, created bool, err error) {
	if id = m.FromRequest(r); id != "" {
		return id, false, nil
	}
	id, err = Generate()
	if err != nil {
		return "", false, err
	}
	m.SetCookie(w, id)
	return id, true, nil
}
