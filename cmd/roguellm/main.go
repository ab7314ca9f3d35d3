// Command roguellm serves LLM-generated roguelike games over HTTP and
// WebSocket.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tatianab/roguellm/internal/config"
	"github.com/tatianab/roguellm/internal/definitions"
	"github.com/tatianab/roguellm/internal/game"
	"github.com/tatianab/roguellm/internal/gateway"
	"github.com/tatianab/roguellm/internal/server"
	"github.com/tatianab/roguellm/internal/session"
	"github.com/tatianab/roguellm/internal/store/backup"
	"github.com/tatianab/roguellm/internal/store/sqlite"
	"github.com/tatianab/roguellm/internal/telemetry"
)

const shutdownTimeout = 30 * time.Second

func main() {
	log.SetPrefix("[roguellm] ")
	cfg, err := config.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := telemetry.Run(ctx, "roguellm", cfg.OTelEndpoint, func(ctx context.Context) error {
		return run(ctx, cfg)
	}); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	if err := cfg.RequireAPIKey(); err != nil {
		return err
	}
	rules, err := config.LoadRules(cfg.RulesPath)
	if err != nil {
		return err
	}

	st, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	sched, err := newScheduler(ctx, cfg, st)
	if err != nil {
		return err
	}
	if sched != nil {
		st.SetNotifier(sched)
		go sched.Run(ctx)
	}

	llm, err := gateway.NewGemini(ctx, cfg.GeminiAPIKey, cfg.LowModel, cfg.HighModel)
	if err != nil {
		return err
	}
	defer llm.Close()
	gw := gateway.New(llm)

	defs, err := definitions.New(st, gw)
	if err != nil {
		return err
	}
	builder, err := game.NewBuilder(st, gw)
	if err != nil {
		return err
	}
	reg := session.NewRegistry(defs, builder, gw, session.Options{
		Rules:         rules,
		CreateTimeout: cfg.SessionCreateTimeout,
		IdleTTL:       cfg.SessionIdleTTL,
	})
	go reg.Run(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.New(reg).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s", cfg.Addr)
		errc <- srv.ListenAndServe()
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Printf("shutting down")
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	if err := reg.Close(shutdownCtx); err != nil {
		log.Printf("session shutdown: %v", err)
	}
	if sched != nil {
		if err := sched.Flush(shutdownCtx); err != nil {
			log.Printf("final backup: %v", err)
		}
	}
	return serveErr
}

// newScheduler returns a backup scheduler for the configured destination,
// or nil when backups are disabled.
func newScheduler(ctx context.Context, cfg config.Config, st *sqlite.Store) (*backup.Scheduler, error) {
	var up backup.Uploader
	switch {
	case cfg.BackupBucket != "":
		gcs, err := backup.NewGCSUploader(ctx, cfg.BackupBucket)
		if err != nil {
			return nil, err
		}
		up = gcs
	case cfg.BackupDir != "":
		up = backup.DirUploader{Dir: cfg.BackupDir}
	default:
		return nil, nil
	}
	return backup.NewScheduler(st, up, cfg.BackupInterval), nil
}
