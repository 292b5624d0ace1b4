// cmd/rsctl/main.go
//
// recordset control tool.
//
// Command surface
// ---------------
//
//	rsctl ping                      — open the connection and verify it.
//	rsctl schema <table>            — print introspected column metadata.
//	rsctl count <table>             — row count.
//	rsctl list <table>              — identity values, honoring --limit,
//	                                  --offset, and --order-by.
//	rsctl demo <table>              — CRUD round trip: insert, update,
//	                                  reload, delete one throwaway row.
//
// Flags: --config (connection file path, default search order when
// empty), --conn (connection name, default "default"), --metrics-addr
// (serve Prometheus /metrics while the command runs, off when empty).
//
// Large comment blocks are framed by blank “//” lines; inline comments
// use a single “//”.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/yanizio/recordset"
	"github.com/yanizio/recordset/internal/logger"
)

// runningInTTY returns true when stdout is a character device.
func runningInTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func init() { _ = godotenv.Load() }

func main() {
	var (
		configPath  = pflag.String("config", "", "connection file (empty = default search order)")
		connName    = pflag.String("conn", recordset.DefaultConnection, "connection name")
		metricsAddr = pflag.String("metrics-addr", "", "serve Prometheus metrics on this address while running")
		limit       = pflag.Int("limit", 25, "max rows for list")
		offset      = pflag.Int("offset", 0, "row offset for list")
		orderBy     = pflag.String("order-by", "", "order column for list")
		orderDir    = pflag.String("order-dir", "ASC", "order direction for list")
	)
	pflag.Parse()

	if _, err := logger.New("logs", runningInTTY()); err != nil {
		fmt.Fprintln(os.Stderr, "rsctl: logger:", err)
		os.Exit(1)
	}
	defer func() { _ = zap.S().Sync() }()

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				zap.S().Errorw("metrics listener", "err", err)
			}
		}()
	}

	db, err := recordset.Open(*configPath)
	if err != nil {
		fatal(err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	args := pflag.Args()
	if len(args) == 0 {
		usage()
	}

	switch args[0] {
	case "ping":
		if err := db.Ping(ctx, *connName); err != nil {
			fatal(err)
		}
		fmt.Println("ok")

	case "schema":
		if len(args) < 2 {
			usage()
		}
		cols, err := db.TableSchema(ctx, *connName, args[1])
		if err != nil {
			fatal(err)
		}
		names := make([]string, 0, len(cols))
		for n := range cols {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			c := cols[n]
			fmt.Printf("%-24s %-16s %-8s null=%-5t pk=%t", n, c.DialectType, c.Semantic, c.Nullable, c.PrimaryKey)
			if c.MaxLength > 0 {
				fmt.Printf(" max=%d", c.MaxLength)
			}
			fmt.Println()
		}

	case "count":
		if len(args) < 2 {
			usage()
		}
		tbl, err := db.Table(args[1], recordset.WithConnection(*connName))
		if err != nil {
			fatal(err)
		}
		n, err := tbl.Count(ctx, recordset.ListOptions{})
		if err != nil {
			fatal(err)
		}
		fmt.Println(n)

	case "list":
		if len(args) < 2 {
			usage()
		}
		tbl, err := db.Table(args[1], recordset.WithConnection(*connName))
		if err != nil {
			fatal(err)
		}
		recs, err := tbl.All(ctx, recordset.ListOptions{
			OrderBy:  *orderBy,
			OrderDir: *orderDir,
			Limit:    *limit,
			Offset:   *offset,
		})
		if err != nil {
			fatal(err)
		}
		for _, r := range recs {
			fmt.Println(r.ID())
		}

	case "demo":
		if len(args) < 2 {
			usage()
		}
		tbl, err := db.Table(args[1], recordset.WithConnection(*connName))
		if err != nil {
			fatal(err)
		}
		if err := runDemo(ctx, tbl); err != nil {
			fatal(err)
		}
		fmt.Println("demo ok")

	default:
		usage()
	}
}

// runDemo exercises the full record lifecycle against a throwaway row
// with name and email columns.
func runDemo(ctx context.Context, tbl *recordset.Table) error {
	rec := tbl.New()
	if err := rec.SetMulti(ctx, map[string]any{
		"name":  "rsctl demo",
		"email": fmt.Sprintf("demo+%d@example.invalid", time.Now().UnixNano()),
	}); err != nil {
		return err
	}
	if err := rec.Save(ctx); err != nil {
		return err
	}
	fmt.Println("inserted id", rec.ID())

	if err := rec.Set(ctx, "name", "rsctl demo (updated)"); err != nil {
		return err
	}
	if err := rec.Save(ctx); err != nil {
		return err
	}

	fresh, err := rec.Fresh(ctx)
	if err != nil {
		return err
	}
	if fresh == nil || fresh.GetString("name") != "rsctl demo (updated)" {
		return fmt.Errorf("reload mismatch after update")
	}
	return rec.Delete(ctx)
}

func fatal(err error) {
	zap.S().Errorw("rsctl", "err", err)
	fmt.Fprintln(os.Stderr, "rsctl:", err)
	os.Exit(1)
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: rsctl [flags] ping | schema <table> | count <table> | list <table> | demo <table>")
	pflag.PrintDefaults()
	os.Exit(2)
}
