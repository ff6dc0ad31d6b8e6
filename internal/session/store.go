package session

import "context"

// Persisted keys. Both must be present for a session to be restored.
const (
	TokenKey = "auth_token"
	UserKey  = "auth_user"
)

// Store is the persistent key/value storage holding the session between
// process runs.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

type storedUser struct {
	Username string `json:"username"`
}
