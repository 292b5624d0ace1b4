// internal/vault/vault_test.go
//
// Reference parsing; network paths are exercised in integration
// environments, not here.
//
// Run: go test ./internal/vault -v

package vault

import (
	"context"
	"testing"
	"time"
)

func TestIsRef(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"vault:secret/db#password", true},
		{"vault:", true},
		{"s3cret", false},
		{"", false},
		{"VAULT:secret/db#password", false},
	}
	for _, c := range cases {
		if got := IsRef(c.in); got != c.want {
			t.Errorf("IsRef(%q) = %t; want %t", c.in, got, c.want)
		}
	}
}

func TestResolveRejectsMalformedRefsBeforeNetwork(t *testing.T) {
	cli := &Client{cache: make(map[string]cached)}
	ctx := context.Background()

	for _, ref := range []string{
		"plaintext",            // not a reference at all
		"vault:#password",      // empty path
		"vault:secret/db#",     // empty key
		"vault:secret-db-pass", // no key separator
	} {
		if _, err := cli.Resolve(ctx, ref, time.Minute); err == nil {
			t.Errorf("Resolve(%q) should fail before touching the network", ref)
		}
	}
}

func TestResolveServesFromCache(t *testing.T) {
	cli := &Client{cache: map[string]cached{
		"vault:secret/db#password": {val: "hunter2", exp: time.Now().Add(time.Hour)},
	}}

	got, err := cli.Resolve(context.Background(), "vault:secret/db#password", time.Hour)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "hunter2" {
		t.Fatalf("Resolve = %q; want cached value", got)
	}
}

func TestSplitMount(t *testing.T) {
	mount, rel := splitMount("secret/db/primary")
	if mount != "secret" || rel != "db/primary" {
		t.Fatalf("splitMount = %q, %q", mount, rel)
	}
	mount, rel = splitMount("secret")
	if mount != "secret" || rel != "" {
		t.Fatalf("splitMount = %q, %q", mount, rel)
	}
}
