// ABOUTME: Redis implementation of the Store interface using go-redis
// ABOUTME: Admins live in a lex-ordered ZSET; Update uses WATCH/MULTI with bounded retry

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultRedisPrefix namespaces every key the store touches.
	DefaultRedisPrefix = "whitelist:"

	redisMaxTxRetries = 3

	// maxAuditScan bounds how many audit records ListAuditLog inspects.
	maxAuditScan = 10000
)

// RedisStore implements Store on top of a Redis server.
type RedisStore struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// Compile-time interface check.
var _ Store = (*RedisStore)(nil)

// OpenRedis parses url, connects and pings the server.
func OpenRedis(ctx context.Context, url, prefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewRedisStore(client, prefix), nil
}

// NewRedisStore wraps an existing client. An empty prefix uses DefaultRedisPrefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		logger: slog.Default().With("component", "store", "backend", "redis"),
	}
}

func (s *RedisStore) adminsKey() string { return s.prefix + "admins" }
func (s *RedisStore) stateKey() string  { return s.prefix + "state" }
func (s *RedisStore) auditKey() string  { return s.prefix + "audit" }

// Health pings the server.
func (s *RedisStore) Health(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	s.logger.Info("closing Redis store")
	return s.client.Close()
}

// View runs fn against a consistent snapshot of the admin set and state.
// Reads go to the server under WATCH and are confirmed by an EXEC; if another
// client wrote a watched key meanwhile, fn runs again. fn must tolerate being
// re-run. Writes fail with ErrReadOnly.
func (s *RedisStore) View(ctx context.Context, fn func(tx Tx) error) error {
	return s.watch(ctx, "view", func(rtx *redis.Tx) error {
		if err := fn(s.newTx(rtx, true)); err != nil {
			return err
		}
		// An EXEC with nothing to write still fails if a watched key moved.
		_, err := rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Ping(ctx)
			return nil
		})
		return err
	})
}

// Update runs fn under WATCH on every key the store owns, then applies the
// buffered writes in one MULTI/EXEC. A lost race re-runs fn; after
// redisMaxTxRetries losses ErrConflict is returned.
func (s *RedisStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	return s.watch(ctx, "update", func(rtx *redis.Tx) error {
		tx := s.newTx(rtx, false)
		if err := fn(tx); err != nil {
			return err
		}
		if tx.empty() {
			return nil
		}
		_, err := rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			return tx.flush(ctx, pipe)
		})
		return err
	})
}

// watch runs body under WATCH on the admin and state keys, retrying lost
// races up to redisMaxTxRetries times before returning ErrConflict.
func (s *RedisStore) watch(ctx context.Context, op string, body func(*redis.Tx) error) error {
	for attempt := 0; attempt < redisMaxTxRetries; attempt++ {
		err := s.client.Watch(ctx, body, s.adminsKey(), s.stateKey())
		if errors.Is(err, redis.TxFailedErr) {
			s.logger.Debug("transaction conflict, retrying", "op", op, "attempt", attempt+1)
			continue
		}
		return err
	}
	return ErrConflict
}

// ListAuditLog returns audit entries newest first.
func (s *RedisStore) ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	limit := normalizeAuditLimit(f.Limit)

	raw, err := s.client.LRange(ctx, s.auditKey(), 0, maxAuditScan-1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading audit log: %w", err)
	}

	entries := []AuditEntry{}
	for _, item := range raw {
		var rec redisAuditRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, fmt.Errorf("unmarshaling audit entry: %w", err)
		}
		e := rec.entry()
		if !f.matches(&e) {
			continue
		}
		entries = append(entries, e)
		if len(entries) >= limit {
			break
		}
	}
	return entries, nil
}

// redisAuditRecord is the JSON form pushed onto the audit list.
type redisAuditRecord struct {
	ID        string         `json:"id"`
	Actor     string         `json:"actor"`
	Action    AuditAction    `json:"action"`
	Timestamp time.Time      `json:"ts"`
	Detail    map[string]any `json:"detail,omitempty"`
}

func (r redisAuditRecord) entry() AuditEntry {
	return AuditEntry{
		ID:        r.ID,
		Actor:     r.Actor,
		Action:    r.Action,
		Timestamp: r.Timestamp,
		Detail:    r.Detail,
	}
}

// redisTx reads through to Redis and buffers writes until commit. Reads
// consult the buffer first so a transaction sees its own writes.
type redisTx struct {
	store    *RedisStore
	reader   redis.Cmdable
	readOnly bool

	admins map[string]bool // true = add, false = remove
	state  map[string]string
	audit  []string
}

func (s *RedisStore) newTx(reader redis.Cmdable, readOnly bool) *redisTx {
	return &redisTx{
		store:    s,
		reader:   reader,
		readOnly: readOnly,
		admins:   make(map[string]bool),
		state:    make(map[string]string),
	}
}

func (t *redisTx) empty() bool {
	return len(t.admins) == 0 && len(t.state) == 0 && len(t.audit) == 0
}

func (t *redisTx) writable() error {
	if t.readOnly {
		return ErrReadOnly
	}
	return nil
}

// flush queues every buffered write onto pipe. Admin changes are applied in
// key order so the command stream is deterministic.
func (t *redisTx) flush(ctx context.Context, pipe redis.Pipeliner) error {
	for _, p := range slices.Sorted(maps.Keys(t.admins)) {
		if t.admins[p] {
			pipe.ZAdd(ctx, t.store.adminsKey(), redis.Z{Score: 0, Member: p})
		} else {
			pipe.ZRem(ctx, t.store.adminsKey(), p)
		}
	}
	if len(t.state) > 0 {
		pipe.HSet(ctx, t.store.stateKey(), t.state)
	}
	for _, rec := range t.audit {
		pipe.LPush(ctx, t.store.auditKey(), rec)
	}
	return nil
}

func (t *redisTx) HasAdmin(ctx context.Context, principal string) (bool, error) {
	if add, ok := t.admins[principal]; ok {
		return add, nil
	}
	_, err := t.reader.ZScore(ctx, t.store.adminsKey(), principal).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking admin: %w", err)
	}
	return true, nil
}

func (t *redisTx) ListAdmins(ctx context.Context) ([]string, error) {
	// Every member has score 0, so lex range order is byte order.
	stored, err := t.reader.ZRangeByLex(ctx, t.store.adminsKey(), &redis.ZRangeBy{
		Min: "-",
		Max: "+",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("listing admins: %w", err)
	}
	if len(t.admins) == 0 {
		if stored == nil {
			stored = []string{}
		}
		return stored, nil
	}

	set := make(map[string]struct{}, len(stored))
	for _, p := range stored {
		set[p] = struct{}{}
	}
	for p, add := range t.admins {
		if add {
			set[p] = struct{}{}
		} else {
			delete(set, p)
		}
	}
	admins := slices.Sorted(maps.Keys(set))
	if admins == nil {
		admins = []string{}
	}
	return admins, nil
}

func (t *redisTx) AddAdmin(ctx context.Context, principal string) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.admins[principal] = true
	return nil
}

func (t *redisTx) RemoveAdmin(ctx context.Context, principal string) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.admins[principal] = false
	return nil
}

func (t *redisTx) getState(ctx context.Context, field string) (string, error) {
	if v, ok := t.state[field]; ok {
		return v, nil
	}
	v, err := t.reader.HGet(ctx, t.store.stateKey(), field).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", field, err)
	}
	return v, nil
}

func (t *redisTx) setState(field, value string) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.state[field] = value
	return nil
}

func (t *redisTx) GetMutable(ctx context.Context) (bool, error) {
	value, err := t.getState(ctx, "mutable")
	if err != nil {
		return false, err
	}
	mutable, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("parsing mutable flag %q: %w", value, err)
	}
	return mutable, nil
}

func (t *redisTx) SetMutable(ctx context.Context, mutable bool) error {
	return t.setState("mutable", strconv.FormatBool(mutable))
}

func (t *redisTx) GetContractVersion(ctx context.Context) (*ContractVersion, error) {
	contract, err := t.getState(ctx, "contract")
	if err != nil {
		return nil, err
	}
	version, err := t.getState(ctx, "version")
	if err != nil {
		return nil, err
	}
	return &ContractVersion{Contract: contract, Version: version}, nil
}

func (t *redisTx) SetContractVersion(ctx context.Context, v *ContractVersion) error {
	if err := t.setState("contract", v.Contract); err != nil {
		return err
	}
	return t.setState("version", v.Version)
}

func (t *redisTx) AppendAuditLog(ctx context.Context, e *AuditEntry) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, err := prepareAuditEntry(e); err != nil {
		return err
	}
	data, err := json.Marshal(redisAuditRecord{
		ID:        e.ID,
		Actor:     e.Actor,
		Action:    e.Action,
		Timestamp: e.Timestamp.UTC(),
		Detail:    e.Detail,
	})
	if err != nil {
		return fmt.Errorf("marshaling audit entry: %w", err)
	}
	t.audit = append(t.audit, string(data))
	return nil
}
