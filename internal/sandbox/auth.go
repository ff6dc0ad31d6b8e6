package sandbox

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/lojaerp/erp-console/internal/platform/httpx"
)

type ctxKey int

const usernameKey ctxKey = iota

// Auth issues and checks bearer tokens.
type Auth struct {
	mu     sync.RWMutex
	users  map[string][]byte
	tokens map[string]string
}

// NewAuth hashes the given username/password pairs with bcrypt.
func NewAuth(users map[string]string) (*Auth, error) {
	a := &Auth{users: map[string][]byte{}, tokens: map[string]string{}}
	for name, password := range users {
		if err := a.AddUser(name, password); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// AddUser registers or replaces a user.
func (a *Auth) AddUser(username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.users[username] = hash
	return nil
}

// Login checks credentials and returns a fresh token.
func (a *Auth) Login(username, password string) (string, error) {
	a.mu.RLock()
	hash, ok := a.users[username]
	a.mu.RUnlock()
	if !ok || bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
		return "", httpx.Errorf(httpx.ErrUnauthorized, "Credenciais inválidas")
	}
	token := uuid.NewString()
	a.mu.Lock()
	a.tokens[token] = username
	a.mu.Unlock()
	return token, nil
}

// Expire revokes token, so its next request gets 401.
func (a *Auth) Expire(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.tokens, token)
}

// ExpireAll revokes every token.
func (a *Auth) ExpireAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.tokens)
}

func (a *Auth) lookup(token string) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	user, ok := a.tokens[token]
	return user, ok
}

// Middleware rejects requests without a live bearer token.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			httpx.RespondError(w, httpx.Errorf(httpx.ErrUnauthorized, "Token ausente"))
			return
		}
		user, ok := a.lookup(token)
		if !ok {
			httpx.RespondError(w, httpx.Errorf(httpx.ErrUnauthorized, "Token inválido ou expirado"))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), usernameKey, user)))
	})
}

// UsernameFromContext returns the authenticated user of a request.
func UsernameFromContext(ctx context.Context) string {
	user, _ := ctx.Value(usernameKey).(string)
	return user
}
