// Package lock serializes batch execution per session. Batches for one
// session must run one at a time in strictly increasing order; the lock
// turns a concurrent invocation into ErrSessionBusy instead of a race.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/post-importer/internal/logger"
	"github.com/jonesrussell/post-importer/internal/models"
)

const keyPrefix = "importer:session-lock:"

// releaseScript deletes the lock only when the caller still owns it, so a
// slow batch whose lock expired cannot release a successor's lock.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// SessionLock is a Redis-backed per-session mutex with a TTL safety net.
type SessionLock struct {
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

// New creates a session lock manager. ttl bounds how long a crashed batch
// can keep a session locked.
func New(client *redis.Client, ttl time.Duration, log logger.Logger) *SessionLock {
	return &SessionLock{client: client, ttl: ttl, logger: log}
}

// Acquire takes the lock for sessionID and returns an owner token for
// Release. Returns models.ErrSessionBusy when another batch holds it.
func (l *SessionLock) Acquire(ctx context.Context, sessionID string) (string, error) {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, keyPrefix+sessionID, token, l.ttl).Result()
	if err != nil {
		return "", fmt.Errorf("acquire session lock: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("session %q: %w", sessionID, models.ErrSessionBusy)
	}

	l.logger.Debug("session lock acquired",
		logger.String("session_id", sessionID))
	return token, nil
}

// Release gives the lock back. A token that no longer owns the lock is a
// no-op; the TTL already handed the session to someone else.
func (l *SessionLock) Release(ctx context.Context, sessionID, token string) error {
	if err := l.client.Eval(ctx, releaseScript, []string{keyPrefix + sessionID}, token).Err(); err != nil {
		return fmt.Errorf("release session lock: %w", err)
	}

	l.logger.Debug("session lock released",
		logger.String("session_id", sessionID))
	return nil
}
