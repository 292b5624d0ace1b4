// config.go
//
// Connection-file loader.
//
// Context
// -------
// Two on-disk formats feed the registry through one Koanf pipeline:
//
//   - connections.ini  — the canonical INI dialect (below).
//   - connections.yaml — the same entry shape in YAML, for operators
//     who already keep the rest of their config in YAML.
//
// INI dialect:
//
//	# comment
//	; also a comment
//	[connectionName]
//	DRIVER=mysql
//	DSN="tcp(db1:3306)/app"
//	USER=app
//	PASSWORD=vault:secret/db#password
//	OPTIONS[parseTime]=true
//
// Section names must pass identifier validation.  Values keep their text
// verbatim except that one pair of matching surrounding quotes ("…" or
// '…') is stripped.  OPTIONS[X]=Y pairs build the nested options map
// with X stored verbatim.
//
// Search order when no explicit path is given: $RECORDSET_CONFIG, then
// conf/connections.{ini,yaml}, then ./connections.{ini,yaml}.  Absence
// is not an error; connections can still arrive programmatically or via
// the env fallback.
//
// Notes
// -----
// • The INI dialect is implemented as a koanf.Parser so both formats
//   share the file provider, unmarshal, and validation path.
// • Oxford commas, two spaces after periods.
package recordset

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	koanf "github.com/knadh/koanf/v2"
	"go.uber.org/zap"

	"github.com/yanizio/recordset/internal/ident"
)

// configEnvVar names the explicit-path override.
const configEnvVar = "RECORDSET_CONFIG"

// LoadConfig loads a connection file into the registry.  path == ""
// walks the search order; a missing file resolves to a silent no-op.
func (db *DB) LoadConfig(path string) error {
	if path != "" {
		return db.reg.LoadFile(path)
	}
	for _, candidate := range configSearchPaths() {
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		return db.reg.LoadFile(candidate)
	}
	zap.S().Debugw("no connection file found; registry left as-is")
	return nil
}

func configSearchPaths() []string {
	var out []string
	if p := os.Getenv(configEnvVar); p != "" {
		out = append(out, p)
	}
	for _, dir := range []string{"conf", "."} {
		for _, name := range []string{"connections.ini", "connections.yaml", "connections.yml"} {
			out = append(out, filepath.Join(dir, name))
		}
	}
	return out
}

// LoadFile parses one connection file (INI or YAML by extension) and
// registers every section.  Fails on the first invalid entry.
func (r *Registry) LoadFile(path string) error {
	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = kyaml.Parser()
	default:
		parser = iniParser{}
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), parser); err != nil {
		zap.S().Errorw("connection file load failed", "file", path, "err", err)
		return fmt.Errorf("recordset: load %s: %w", path, err)
	}

	var entries map[string]Connection
	if err := k.Unmarshal("", &entries); err != nil {
		return fmt.Errorf("recordset: parse %s: %w", path, err)
	}

	names := make([]string, 0, len(entries))
	for name, c := range entries {
		c.Name = name
		if err := r.Add(c); err != nil {
			return err
		}
		names = append(names, name)
	}
	zap.S().Infow("connection file loaded", "file", path, "connections", len(names))
	return nil
}

//
// INI parser (koanf.Parser implementation)
//

type iniParser struct{}

// Unmarshal turns the INI dialect into the nested map Koanf expects:
// {section: {key: value, options: {optKey: optValue}}}.
func (iniParser) Unmarshal(b []byte) (map[string]any, error) {
	out := make(map[string]any)
	var section map[string]any

	for n, raw := range strings.Split(string(b), "\n") {
		line := strings.TrimSpace(strings.TrimSuffix(raw, "\r"))
		switch {
		case line == "", strings.HasPrefix(line, "#"), strings.HasPrefix(line, ";"):
			continue

		case strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]"):
			name := line[1 : len(line)-1]
			if _, err := ident.Name(name); err != nil {
				return nil, fmt.Errorf("line %d: section %w", n+1, err)
			}
			section = make(map[string]any)
			out[name] = section

		default:
			eq := strings.IndexByte(line, '=')
			if eq < 1 {
				return nil, fmt.Errorf("line %d: expected KEY=VALUE, got %q", n+1, line)
			}
			if section == nil {
				return nil, fmt.Errorf("line %d: key %q outside of any [section]", n+1, line[:eq])
			}
			key := strings.TrimSpace(line[:eq])
			val := stripQuotes(strings.TrimSpace(line[eq+1:]))

			if optKey, ok := optionsKey(key); ok {
				opts, _ := section["options"].(map[string]any)
				if opts == nil {
					opts = make(map[string]any)
					section["options"] = opts
				}
				opts[optKey] = val
				continue
			}
			section[strings.ToLower(key)] = val
		}
	}
	return out, nil
}

// Marshal renders the map back to the INI dialect.  Used only for
// round-tripping in tooling; ordering is not preserved.
func (iniParser) Marshal(m map[string]any) ([]byte, error) {
	var b strings.Builder
	for name, raw := range m {
		section, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "[%s]\n", name)
		for k, val := range section {
			if k == "options" {
				opts, _ := val.(map[string]any)
				for ok, ov := range opts {
					fmt.Fprintf(&b, "OPTIONS[%s]=%v\n", ok, ov)
				}
				continue
			}
			fmt.Fprintf(&b, "%s=%v\n", strings.ToUpper(k), val)
		}
		b.WriteByte('\n')
	}
	return []byte(b.String()), nil
}

// optionsKey extracts X from OPTIONS[X], case-insensitive on the prefix.
func optionsKey(key string) (string, bool) {
	up := strings.ToUpper(key)
	if !strings.HasPrefix(up, "OPTIONS[") || !strings.HasSuffix(key, "]") {
		return "", false
	}
	inner := key[len("OPTIONS[") : len(key)-1]
	if inner == "" {
		return "", false
	}
	return inner, true
}

// stripQuotes removes one pair of matching surrounding quotes.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
