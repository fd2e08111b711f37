// Command ck is a reference client for the ClassKeeper offline sync core.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/classkeeper/classkeeper/internal/connectivity"
	"github.com/classkeeper/classkeeper/internal/engine"
	"github.com/classkeeper/classkeeper/internal/metrics"
	"github.com/classkeeper/classkeeper/internal/model"
	"github.com/classkeeper/classkeeper/internal/remote/httpapi"
	"github.com/classkeeper/classkeeper/internal/store/sqlite"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "classkeeper")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "classkeeper")
}

func defaultDBPath() string { return filepath.Join(cfgDir(), "classkeeper.db") }

func usage() {
	fmt.Fprintf(os.Stderr, `ck CLI
Usage:
  ck [-db file] [-addr URL] [-user id] [-token tok] [-offline] [-v] <cmd> [args]

Commands:
  version
  status
  list       -type assignment|submission
  queue
  save       -type T -id ID -file fields.json [-action create|update]
  sync
  conflicts
  resolve    -id ID -mode local|server|merge [-file merged.json]
  run        [-listen :8090]                 (long-running, serves /metrics)
`)
	os.Exit(2)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// readFields loads a JSON field bag from a file ('-'=stdin).
func readFields(p string) (map[string]any, error) {
	var b []byte
	var err error
	if p == "-" {
		b, err = io.ReadAll(os.Stdin)
	} else {
		b, err = os.ReadFile(p)
	}
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, fmt.Errorf("parse %s: %w", p, err)
	}
	return fields, nil
}

func parseType(s string) (model.RecordType, error) {
	t := model.RecordType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown record type %q (assignment|submission)", s)
	}
	return t, nil
}

// main dispatches subcommands over a shared engine built from global flags.
func main() {
	dbPath := flag.String("db", defaultDBPath(), "local store path")
	addr := flag.String("addr", "http://localhost:8080", "remote authority base URL")
	user := flag.String("user", "", "student id (scopes submission refresh)")
	token := flag.String("token", "", "bearer token for the remote authority")
	offline := flag.Bool("offline", false, "treat connectivity as down")
	verbose := flag.Bool("v", false, "structured logging to stderr")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd := flag.Arg(0)

	if cmd == "version" {
		fmt.Printf("ck %s (%s)\n", version, buildDate)
		return
	}

	logger := zap.NewNop()
	if *verbose || cmd == "run" {
		l, err := zap.NewProduction()
		if err != nil {
			fail(err)
		}
		logger = l
		defer func() { _ = logger.Sync() }()
	}

	ctx := context.Background()
	if cmd != "run" {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 60*time.Second)
		defer cancel()
	}

	_ = os.MkdirAll(filepath.Dir(*dbPath), 0o700)
	st, err := sqlite.Open(ctx, *dbPath)
	if err != nil {
		fail(err)
	}
	defer st.Close()

	var remoteOpts []httpapi.Option
	if *token != "" {
		tok := *token
		remoteOpts = append(remoteOpts, httpapi.WithTokenSource(
			func(context.Context) (string, error) { return tok, nil }))
	}
	if *verbose || cmd == "run" {
		remoteOpts = append(remoteOpts, httpapi.WithLogger(logger))
	}
	auth := httpapi.New(*addr, remoteOpts...)

	mon := connectivity.New(!*offline, logger)

	engOpts := []engine.Option{engine.WithLogger(logger)}
	if *user != "" {
		engOpts = append(engOpts, engine.WithUserID(*user))
	}
	var met *metrics.Metrics
	if cmd == "run" {
		met = metrics.New(prometheus.DefaultRegisterer)
		engOpts = append(engOpts, engine.WithMetrics(met))
	}
	eng, err := engine.New(ctx, st, auth, mon, engOpts...)
	if err != nil {
		fail(err)
	}

	switch cmd {

	case "status":
		printJSON(eng.Status())

	case "list":
		fs := flag.NewFlagSet("list", flag.ExitOnError)
		typ := fs.String("type", "", "record type")
		_ = fs.Parse(flag.Args()[1:])
		t, err := parseType(*typ)
		if err != nil {
			fail(err)
		}
		recs, err := eng.GetOffline(ctx, t, nil)
		if err != nil {
			fail(err)
		}
		printJSON(recs)

	case "queue":
		items, err := st.ListQueue(ctx)
		if err != nil {
			fail(err)
		}
		printJSON(items)

	case "save":
		fs := flag.NewFlagSet("save", flag.ExitOnError)
		typ := fs.String("type", "", "record type")
		id := fs.String("id", "", "record id")
		file := fs.String("file", "", "fields JSON ('-'=stdin)")
		action := fs.String("action", "create", "create|update")
		_ = fs.Parse(flag.Args()[1:])
		t, err := parseType(*typ)
		if err != nil {
			fail(err)
		}
		if *id == "" || *file == "" {
			fail(errors.New("need -id and -file"))
		}
		fields, err := readFields(*file)
		if err != nil {
			fail(err)
		}
		rec := model.Record{ID: *id, Fields: fields}
		if err := eng.SaveOffline(ctx, t, rec, model.Action(*action)); err != nil {
			fail(err)
		}
		printJSON(eng.Status())

	case "sync":
		if err := eng.SyncNow(ctx); err != nil {
			fail(err)
		}
		printJSON(eng.Status())
		if n := len(eng.Conflicts()); n > 0 {
			fmt.Fprintf(os.Stderr, "%d conflict(s) need resolution; see 'ck conflicts'\n", n)
		}

	case "conflicts":
		printJSON(eng.Conflicts())

	case "resolve":
		fs := flag.NewFlagSet("resolve", flag.ExitOnError)
		id := fs.String("id", "", "conflict id (= record id)")
		mode := fs.String("mode", "", "local|server|merge")
		file := fs.String("file", "", "merged fields JSON (merge only)")
		_ = fs.Parse(flag.Args()[1:])
		if *id == "" || *mode == "" {
			fail(errors.New("need -id and -mode"))
		}
		var merged *model.Record
		if *file != "" {
			fields, err := readFields(*file)
			if err != nil {
				fail(err)
			}
			merged = &model.Record{ID: *id, Fields: fields}
		}
		if err := eng.Resolve(ctx, *id, model.Resolution(*mode), merged); err != nil {
			fail(err)
		}
		fmt.Println("ok")

	case "run":
		fs := flag.NewFlagSet("run", flag.ExitOnError)
		listen := fs.String("listen", ":8090", "admin/metrics listen address")
		_ = fs.Parse(flag.Args()[1:])
		if err := run(ctx, logger, eng, mon, *listen); err != nil {
			fail(err)
		}

	default:
		usage()
	}
}

// run keeps the engine alive, serving status and Prometheus metrics until
// SIGINT/SIGTERM. Connectivity signals arrive via the admin endpoint, standing
// in for platform network events.
func run(ctx context.Context, logger *zap.Logger, eng *engine.Engine, mon *connectivity.Monitor, listen string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("listen", listen),
	)

	eng.Subscribe(func(s model.SyncStatus) {
		logger.Info("sync status",
			zap.Bool("online", s.IsOnline),
			zap.Bool("syncing", s.IsSyncing),
			zap.Int("pending", s.PendingItems),
			zap.Int("errors", len(s.SyncErrors)),
		)
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("GET /status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(eng.Status())
	})
	mux.HandleFunc("GET /conflicts", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(eng.Conflicts())
	})
	mux.HandleFunc("POST /connectivity", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("online") {
		case "true":
			mon.SetOnline(true)
		case "false":
			mon.SetOnline(false)
		default:
			http.Error(w, "need online=true|false", http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /sync", func(w http.ResponseWriter, r *http.Request) {
		if err := eng.SyncNow(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	srv := &http.Server{Addr: listen, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("admin listening", zap.String("addr", listen))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shCtx)
}
