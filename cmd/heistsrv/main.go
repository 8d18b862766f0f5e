package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vctt94/bisonbotkit/logging"

	"github.com/vctt94/heistparty/pkg/server"
)

func main() {
	var (
		dbPath      string
		replayPath  string
		host        string
		port        int
		seed        int64
		graceSecs   int
		debugLevel  string
		nextHeistMs int
	)
	flag.StringVar(&dbPath, "db", "", "Path to SQLite database file (created if missing)")
	flag.StringVar(&replayPath, "replay", "", "Path to JSON-lines replay log (empty to disable)")
	flag.StringVar(&host, "host", "127.0.0.1", "Host to listen on")
	flag.IntVar(&port, "port", 8080, "Port to listen on")
	flag.Int64Var(&seed, "seed", 0, "Deterministic RNG seed for decks (0 = random)")
	flag.IntVar(&graceSecs, "grace", 60, "Reconnection grace window in seconds")
	flag.StringVar(&debugLevel, "debuglevel", "info", "Logging level: trace, debug, info, warn, error")
	flag.IntVar(&nextHeistMs, "nextheistms", 5000, "Delay between heists in milliseconds")
	flag.Parse()

	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "heistparty.sqlite")
	}

	db, err := server.NewDatabase(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init db: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	logBackend, _ := logging.NewLogBackend(logging.LogConfig{DebugLevel: debugLevel})
	log := logBackend.Logger("MAIN")

	var replay server.ReplaySink
	if replayPath != "" {
		replay, err = server.NewFileReplaySink(replayPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open replay log: %v\n", err)
			os.Exit(1)
		}
	}

	srv := server.NewServer(server.ServerConfig{
		DB:             db,
		LogBackend:     logBackend,
		Replay:         replay,
		Seed:           seed,
		GraceWindow:    time.Duration(graceSecs) * time.Second,
		NextHeistDelay: time.Duration(nextHeistMs) * time.Millisecond,
	})
	defer srv.Stop()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", srv.ServeWS)

	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	httpSrv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		log.Infof("listening on %s", addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "serve error: %v\n", err)
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Infof("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(ctx)
}
