// Package runlock keeps two scheduled runs from overlapping.
package runlock

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// ErrHeld is returned by Run when another process holds the lock.
var ErrHeld = errors.New("another run is in progress")

// Lock is a non-blocking single-flight guard.
type Lock interface {
	// Acquire tries to take the lock and reports whether it succeeded.
	Acquire(ctx context.Context) (bool, error)
	// Release gives the lock back if this instance still owns it.
	Release(ctx context.Context) error
}

// Run executes fn while holding l. The lock is released even when ctx is cancelled.
func Run(ctx context.Context, l Lock, fn func(context.Context) error) error {
	ok, err := l.Acquire(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrHeld
	}
	defer func() { _ = l.Release(context.WithoutCancel(ctx)) }()
	return fn(ctx)
}

// Nop always acquires. It is used when locking is disabled.
type Nop struct{}

func (Nop) Acquire(context.Context) (bool, error) { return true, nil }
func (Nop) Release(context.Context) error { return nil }

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Redis locks with SET NX and a TTL so a crashed run cannot hold the lock forever.
type Redis struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

// NewRedis creates a lock on "lock:<name>". Each instance has its own ownership token.
func NewRedis(client *redis.Client, name string, ttl time.Duration) *Redis {
	return &Redis{
		client: client,
		key:    fmt.Sprintf("lock:%s", name),
		token:  uuid.NewString(),
		ttl:    ttl,
	}
}

func (l *Redis) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", l.key, err)
	}
	return ok, nil
}

func (l *Redis) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.key, err)
	}
	return nil
}

// Postgres uses a session-level advisory lock. The lock lives on one pooled
// connection, which is held until Release.
type Postgres struct {
	pool   *pgxpool.Pool
	lockID int64
	conn   *pgxpool.Conn
}

// NewPostgres derives the advisory lock id from name.
func NewPostgres(pool *pgxpool.Pool, name string) *Postgres {
	return &Postgres{pool: pool, lockID: LockID(name)}
}

// LockID hashes a lock name into the advisory lock key space.
func LockID(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum64())
}

func (l *Postgres) Acquire(ctx context.Context) (bool, error) {
	if l.conn != nil {
		return false, fmt.Errorf("advisory lock %d already acquired by this instance", l.lockID)
	}
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to acquire connection for advisory lock: %w", err)
	}

	var ok bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&ok); err != nil {
		conn.Release()
		return false, fmt.Errorf("failed to take advisory lock: %w", err)
	}
	if !ok {
		conn.Release()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

func (l *Postgres) Release(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}
	defer func() {
		l.conn.Release()
		l.conn = nil
	}()
	if _, err := l.conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", l.lockID); err != nil {
		return fmt.Errorf("failed to release advisory lock: %w", err)
	}
	return nil
}
