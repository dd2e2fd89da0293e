package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"workdeck/internal/api"
	"workdeck/internal/notify"
	"workdeck/internal/retention"
	"workdeck/internal/store"
	"workdeck/internal/tasks"
)

func main() {
	var (
		addr         = flag.String("addr", ":8080", "HTTP bind address")
		dbPath       = flag.String("db", "workdeck.db", "SQLite DB path")
		notifyMin    = flag.Int("notify-min", 5, "minimum notification workers")
		notifyMax    = flag.Int("notify-max", 10, "maximum notification workers")
		notifyQueue  = flag.Int("notify-queue", 100, "notification queue capacity")
		drainTimeout = flag.Duration("drain-timeout", 60*time.Second, "notification drain window on shutdown")
		purgeCron    = flag.String("purge-cron", "", "cron schedule for purging old completed tasks (empty disables)")
		purgeAge     = flag.Duration("purge-age", 30*24*time.Hour, "age after which completed tasks are purged")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})

	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", *dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("open db")
	}
	defer db.Close()
	db.SetMaxOpenConns(1) // SQLite single writer

	if err := store.EnsureSchema(db); err != nil {
		log.Fatal().Err(err).Msg("ensure schema")
	}
	repo := store.NewSQLiteRepo(db)

	dispatcher := notify.NewDispatcher(notify.EmailLogSender{}, notify.Config{
		MinWorkers:      *notifyMin,
		MaxWorkers:      *notifyMax,
		QueueCapacity:   *notifyQueue,
		ShutdownTimeout: *drainTimeout,
	})
	taskSvc := tasks.NewService(repo, dispatcher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *purgeCron != "" {
		sweeper, err := retention.New(repo, *purgeCron, *purgeAge)
		if err != nil {
			log.Fatal().Err(err).Str("cron", *purgeCron).Msg("invalid purge schedule")
		}
		go sweeper.Run(ctx)
	}

	srv := &http.Server{Addr: *addr, Handler: api.NewServer(repo, taskSvc)}
	go func() {
		log.Info().Str("addr", *addr).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	log.Info().Msg("shutting down")

	ctxTimeout, cancelTimeout := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelTimeout()
	_ = srv.Shutdown(ctxTimeout)
	cancel()

	// Drain queued notifications before exit.
	if err := dispatcher.Shutdown(context.Background()); err != nil {
		log.Warn().Err(err).Msg("notification dispatcher did not drain cleanly")
	}
}
