// internal/vault/vault.go
//
// Vault client wrapper for recordset.
//
// Context
// -------
//   - Connection passwords in a registry entry may be written as
//     `vault:<mount>/<path>#<key>` instead of plaintext.  The registry
//     resolves such references through this wrapper at first use, so
//     secrets stay out of flat files and process listings.
//   - Concurrency-safe; per-reference caching with TTL keeps repeated
//     pool opens from hammering Vault.
//
// Public workflow
// ---------------
//  1. cli, err := vault.New(ctx)                  // during boot.
//  2. pw,  err := cli.Resolve(ctx, ref, ttl)      // from the registry.
//
// Notes
// -----
// • VAULT_ADDR and VAULT_TOKEN are read from the environment, as the
//   Vault SDK documents.
// • Oxford commas, two spaces after periods.
package vault

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	vault "github.com/hashicorp/vault/api"
)

// RefPrefix marks a registry password as a Vault reference.
const RefPrefix = "vault:"

// IsRef reports whether s looks like a Vault reference.
func IsRef(s string) bool { return strings.HasPrefix(s, RefPrefix) }

// Client is safe for concurrent use.  Zero value is invalid; construct
// with New.
type Client struct {
	api *vault.Client

	cacheMu sync.RWMutex
	cache   map[string]cached // ref → value + expiry
}

type cached struct {
	val string
	exp time.Time
}

// New constructs a Vault client from the standard environment.
func New(_ context.Context) (*Client, error) {
	cfg := vault.DefaultConfig()
	if err := cfg.ReadEnvironment(); err != nil {
		return nil, fmt.Errorf("vault env cfg: %w", err)
	}

	apiCli, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault api: %w", err)
	}
	if tok := os.Getenv("VAULT_TOKEN"); tok != "" {
		apiCli.SetToken(tok)
	}

	return &Client{api: apiCli, cache: make(map[string]cached)}, nil
}

// Resolve turns `vault:<mount>/<path>#<key>` into the secret value.  If
// ttl > 0 the result is cached for that duration.
func (c *Client) Resolve(ctx context.Context, ref string, ttl time.Duration) (string, error) {
	if !IsRef(ref) {
		return "", fmt.Errorf("not a vault reference: %q", ref)
	}
	body := strings.TrimPrefix(ref, RefPrefix)
	hash := strings.LastIndexByte(body, '#')
	if hash <= 0 || hash == len(body)-1 {
		return "", fmt.Errorf("malformed vault reference %q, want vault:<mount>/<path>#<key>", ref)
	}
	secretPath, key := body[:hash], body[hash+1:]

	if ttl > 0 {
		c.cacheMu.RLock()
		if cv, ok := c.cache[ref]; ok && time.Now().Before(cv.exp) {
			c.cacheMu.RUnlock()
			return cv.val, nil
		}
		c.cacheMu.RUnlock()
	}

	mount, rel := splitMount(secretPath)
	if mount == "" || rel == "" {
		return "", errors.New("vault reference needs both mount and path")
	}
	sec, err := c.api.KVv2(mount).Get(ctx, rel)
	if err != nil {
		return "", fmt.Errorf("vault get %s: %w", secretPath, err)
	}

	raw, ok := sec.Data[key]
	if !ok {
		return "", fmt.Errorf("key %q not found in secret %q", key, secretPath)
	}
	sval, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("value at %s#%s is not a string", secretPath, key)
	}

	if ttl > 0 {
		c.cacheMu.Lock()
		c.cache[ref] = cached{val: sval, exp: time.Now().Add(ttl)}
		c.cacheMu.Unlock()
	}
	return sval, nil
}

func splitMount(p string) (mount, rel string) {
	parts := strings.SplitN(p, "/", 2)
	mount = parts[0]
	if len(parts) == 2 {
		rel = parts[1]
	}
	return
}
