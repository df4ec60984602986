package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrNotFound is returned by backends when no entry exists at any scope.
var ErrNotFound = errors.New("config entry not found")

// Entry is one stored configuration row.
type Entry struct {
	Key      string
	Scope    string // "fitting", "bicycle", "user" or "global"
	ScopeID  *int64 // nil only for global scope
	Value    string // raw stored form
	DataType string
}

// Resolved is a backend resolution result: the raw winning value, the scope
// it came from, and the data_type that entry declares. The data type must
// belong to the selected entry itself so that entries at scopes outside the
// resolution context cannot influence how the winner is parsed.
type Resolved struct {
	Value    string
	Scope    string
	DataType string
}

// Backend is the external config storage collaborator.
type Backend interface {
	// Resolve returns the highest-precedence entry for the key whose scope
	// matches the given identifiers, or ErrNotFound.
	// Precedence is fitting > bicycle > user > global.
	Resolve(ctx context.Context, key string, fittingID, bicycleID, userID *int64) (*Resolved, error)

	// Upsert writes an entry, replacing any prior value for
	// (key, scope, scope_id).
	Upsert(ctx context.Context, e Entry) error

	// Entries returns every stored entry for the key across all scopes.
	Entries(ctx context.Context, key string) ([]Entry, error)
}

// Context identifies the scopes a resolution applies to.
type Context struct {
	UserID    *int64
	BicycleID *int64
	FittingID *int64
}

// Resolver resolves configuration values with scoped precedence and an
// in-memory TTL cache. Safe for concurrent use; concurrent misses for the
// same key collapse to a single backend fetch.
type Resolver struct {
	backend Backend
	logger  *slog.Logger

	ttl     time.Duration // positive-result lifetime
	nullTTL time.Duration // miss lifetime, short so new config shows up

	mu    sync.RWMutex
	cache map[string]cacheEntry
	group singleflight.Group
}

type cacheEntry struct {
	value   *Value // nil means a cached miss
	expires time.Time
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithTTL sets the positive-result cache lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(r *Resolver) { r.ttl = ttl }
}

// WithNullTTL sets the cached-miss lifetime. Misses must not be cached
// indefinitely since configuration can be created later.
func WithNullTTL(ttl time.Duration) Option {
	return func(r *Resolver) { r.nullTTL = ttl }
}

// WithLogger sets the logger used for fallback and parse-failure events.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// NewResolver creates a resolver over the given backend.
func NewResolver(backend Backend, opts ...Option) *Resolver {
	r := &Resolver{
		backend: backend,
		logger:  slog.Default(),
		ttl:     5 * time.Minute,
		nullTTL: 30 * time.Second,
		cache:   make(map[string]cacheEntry),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// GetValue resolves key for the given scope context. When no entry exists at
// any scope, or the backend fails, def is returned. Backend failures and
// parse failures are logged, never propagated; configuration is best-effort.
func (r *Resolver) GetValue(ctx context.Context, key string, rc Context, def Value) Value {
	v, ok := r.lookup(ctx, key, rc)
	if !ok {
		return def
	}
	return v
}

// GetValueOK is GetValue with an explicit found flag instead of a default.
func (r *Resolver) GetValueOK(ctx context.Context, key string, rc Context) (Value, bool) {
	return r.lookup(ctx, key, rc)
}

// Float64 resolves a numeric key, falling back to def when the key is
// missing or not numeric.
func (r *Resolver) Float64(ctx context.Context, key string, rc Context, def float64) float64 {
	v, ok := r.lookup(ctx, key, rc)
	if !ok {
		return def
	}
	f, isNum := v.Float64()
	if !isNum {
		return def
	}
	return f
}

// Bool resolves a boolean key, falling back to def.
func (r *Resolver) Bool(ctx context.Context, key string, rc Context, def bool) bool {
	v, ok := r.lookup(ctx, key, rc)
	if !ok {
		return def
	}
	b, isBool := v.BoolVal()
	if !isBool {
		return def
	}
	return b
}

func (r *Resolver) lookup(ctx context.Context, key string, rc Context) (Value, bool) {
	ck := cacheKey(key, rc)

	r.mu.RLock()
	ce, hit := r.cache[ck]
	r.mu.RUnlock()
	if hit && time.Now().Before(ce.expires) {
		if ce.value == nil {
			return Value{}, false
		}
		return *ce.value, true
	}

	// Collapse concurrent misses for the same cache key to one fetch.
	res, err, _ := r.group.Do(ck, func() (any, error) {
		return r.fetch(ctx, key, rc, ck)
	})
	if err != nil {
		// Degrade to the caller's default; config lookups are best-effort.
		r.logger.Warn("config resolution failed, using default",
			"key", key, "error", err)
		return Value{}, false
	}
	v := res.(*Value)
	if v == nil {
		return Value{}, false
	}
	return *v, true
}

// fetch resolves through the backend and populates the cache.
func (r *Resolver) fetch(ctx context.Context, key string, rc Context, ck string) (*Value, error) {
	resolved, err := r.backend.Resolve(ctx, key, rc.FittingID, rc.BicycleID, rc.UserID)
	if errors.Is(err, ErrNotFound) {
		r.put(ck, nil, r.nullTTL)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	v, err := ParseValue(resolved.Value, resolved.DataType)
	if err != nil {
		// A malformed stored value must not crash dependent computations:
		// keep the raw string and report the failure.
		r.logger.Warn("config value does not match declared type, keeping raw string",
			"key", key, "data_type", resolved.DataType, "raw", resolved.Value, "error", err)
		v = Text(resolved.Value)
	}

	r.put(ck, &v, r.ttl)
	return &v, nil
}

func (r *Resolver) put(ck string, v *Value, ttl time.Duration) {
	r.mu.Lock()
	r.cache[ck] = cacheEntry{value: v, expires: time.Now().Add(ttl)}
	r.mu.Unlock()
}

// SetUserConfig writes a user-scoped override, replacing any prior value for
// the key at that scope. The affected cache entries are invalidated.
func (r *Resolver) SetUserConfig(ctx context.Context, key string, value Value, userID int64) error {
	uid := userID
	err := r.backend.Upsert(ctx, Entry{
		Key:      key,
		Scope:    "user",
		ScopeID:  &uid,
		Value:    value.Serialize(),
		DataType: value.DataType(),
	})
	if err != nil {
		return fmt.Errorf("writing user config %q: %w", key, err)
	}
	r.ClearCache()
	return nil
}

// SetGlobalConfig writes a global-scoped entry.
func (r *Resolver) SetGlobalConfig(ctx context.Context, key string, value Value) error {
	err := r.backend.Upsert(ctx, Entry{
		Key:      key,
		Scope:    "global",
		Value:    value.Serialize(),
		DataType: value.DataType(),
	})
	if err != nil {
		return fmt.Errorf("writing global config %q: %w", key, err)
	}
	r.ClearCache()
	return nil
}

// ClearCache drops every cached value. Primarily for test isolation and
// after writes.
func (r *Resolver) ClearCache() {
	r.mu.Lock()
	r.cache = make(map[string]cacheEntry)
	r.mu.Unlock()
}

func cacheKey(key string, rc Context) string {
	return fmt.Sprintf("%s|%s|%s|%s",
		key, idPart(rc.FittingID), idPart(rc.BicycleID), idPart(rc.UserID))
}

func idPart(id *int64) string {
	if id == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *id)
}
