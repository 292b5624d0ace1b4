// registry.go
//
// Named-connection registry.
//
// Context
// -------
// Every query runs against a named connection.  Entries arrive three
// ways, checked in this order at lookup time:
//
//  1. Explicit registration — Add, or a parsed config file.
//  2. Legacy env fallback   — RECORDSET_DRIVER, RECORDSET_DSN,
//     RECORDSET_USER, RECORDSET_PASSWORD, and RECORDSET_OPTIONS__<KEY>
//     overlays, consulted only for the "default" name and only when no
//     explicit entry exists.
//
// Entries are validated with go-playground/validator on the way in and
// are immutable once stored; re-registering a name overwrites whole.
// Passwords may be Vault references (`vault:<mount>/<path>#<key>`),
// resolved lazily at pool-open time when a Vault client is attached.
//
// Notes
// -----
// • Guarded by an RWMutex; the registry is process-wide mutable state.
// • Reset exists for tests and ops tooling, not for request paths.
// • Oxford commas, two spaces after periods.
package recordset

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env"
	koanf "github.com/knadh/koanf/v2"
	"go.uber.org/zap"

	"github.com/yanizio/recordset/internal/vault"
)

// envPrefix is the legacy fallback namespace.
const envPrefix = "RECORDSET_"

var v = validator.New()

// Connection is one registry entry.  Driver selects both the database/sql
// driver and the schema-introspection strategy.
type Connection struct {
	Name     string            `koanf:"-"`
	Driver   string            `koanf:"driver" validate:"required,oneof=mysql postgres sqlite"`
	DSN      string            `koanf:"dsn" validate:"required"`
	User     string            `koanf:"user"`
	Password string            `koanf:"password"`
	Options  map[string]string `koanf:"options"`
}

// clone returns a deep copy so callers can never mutate stored state.
func (c Connection) clone() Connection {
	out := c
	if c.Options != nil {
		out.Options = make(map[string]string, len(c.Options))
		for k, val := range c.Options {
			out.Options[k] = val
		}
	}
	return out
}

// Registry stores named connections.  Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Connection

	vaultCli *vault.Client
	vaultTTL time.Duration
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]Connection)}
}

// Add validates and stores a connection, overwriting any entry with the
// same name.  The entry is immediately usable.
func (r *Registry) Add(c Connection) error {
	if c.Name == "" {
		c.Name = DefaultConnection
	}
	if err := v.Struct(&c); err != nil {
		return fmt.Errorf("recordset: connection %q: %w", c.Name, err)
	}

	r.mu.Lock()
	r.conns[c.Name] = c.clone()
	r.mu.Unlock()

	zap.S().Debugw("connection registered", "name", c.Name, "driver", c.Driver)
	return nil
}

// Get returns a copy of the named entry.  For "default" with no explicit
// entry, the legacy env fallback is consulted before giving up with
// ErrNotConfigured.
func (r *Registry) Get(name string) (Connection, error) {
	r.mu.RLock()
	c, ok := r.conns[name]
	r.mu.RUnlock()
	if ok {
		return c.clone(), nil
	}

	if name == DefaultConnection {
		if c, ok := legacyEnvConnection(); ok {
			return c, nil
		}
	}
	return Connection{}, fmt.Errorf("%w: %q", ErrNotConfigured, name)
}

// Has reports whether an explicit entry exists (the env fallback does
// not count).
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[name]
	return ok
}

// Names returns the registered connection names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.conns))
	for n := range r.conns {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Reset drops every entry.  Test and ops utility.
func (r *Registry) Reset() {
	r.mu.Lock()
	r.conns = make(map[string]Connection)
	r.mu.Unlock()
}

// UseVault attaches a Vault client for `vault:` password references.
// ttl controls per-reference caching inside the client.
func (r *Registry) UseVault(c *vault.Client, ttl time.Duration) {
	r.mu.Lock()
	r.vaultCli = c
	r.vaultTTL = ttl
	r.mu.Unlock()
}

// resolvePassword turns a Vault reference into the real secret.  Plain
// passwords pass through untouched.
func (r *Registry) resolvePassword(ctx context.Context, c Connection) (string, error) {
	if !vault.IsRef(c.Password) {
		return c.Password, nil
	}

	r.mu.RLock()
	cli, ttl := r.vaultCli, r.vaultTTL
	r.mu.RUnlock()
	if cli == nil {
		return "", fmt.Errorf("recordset: connection %q has a vault password but no vault client is attached", c.Name)
	}
	pw, err := cli.Resolve(ctx, c.Password, ttl)
	if err != nil {
		return "", fmt.Errorf("recordset: connection %q: %w", c.Name, err)
	}
	return pw, nil
}

// legacyEnvConnection builds a "default" entry from RECORDSET_* env vars.
// Returns false when no DSN is present.
func legacyEnvConnection() (Connection, bool) {
	k := koanf.New(".")
	// RECORDSET_OPTIONS__PARSE_TIME → options.parse_time, matching the
	// double-underscore nesting convention used elsewhere in this stack.
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(s, envPrefix), "__", "."))
	}), nil); err != nil {
		return Connection{}, false
	}

	var c Connection
	if err := k.Unmarshal("", &c); err != nil {
		return Connection{}, false
	}
	c.Name = DefaultConnection
	if err := v.Struct(&c); err != nil {
		return Connection{}, false
	}
	zap.S().Debugw("using legacy env fallback connection", "driver", c.Driver)
	return c, true
}
