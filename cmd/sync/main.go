package main

import (
    "context"
    stdlog "log"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/joho/godotenv"

    "github.com/wonohe/backlog-toggl-integrate/internal/adapters/backlog"
    "github.com/wonohe/backlog-toggl-integrate/internal/adapters/toggl"
    "github.com/wonohe/backlog-toggl-integrate/internal/config"
    httpapi "github.com/wonohe/backlog-toggl-integrate/internal/http"
    "github.com/wonohe/backlog-toggl-integrate/internal/jobs"
    "github.com/wonohe/backlog-toggl-integrate/internal/logger"
    "github.com/wonohe/backlog-toggl-integrate/internal/notify"
    "github.com/wonohe/backlog-toggl-integrate/internal/repo"
    "github.com/wonohe/backlog-toggl-integrate/internal/services"
)

func main() {
    _ = godotenv.Load()
    cfg, err := config.Load()
    if err != nil { stdlog.Fatal(err) }
    log := logger.New(cfg)
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()

    // DB
    db := repo.MustOpen(ctx, cfg, log)
    defer db.Close()
    repository := repo.NewRepository(db, log)

    // Adapters
    tc := toggl.NewClient(cfg, log)
    bc := backlog.NewClient(cfg, log)
    tg := notify.NewTelegram(cfg, log)

    // Service
    svc := services.New(cfg, log, repository, tc, bc, tg)

    // Cron
    cr, err := jobs.NewCron(cfg, log, svc)
    if err != nil { log.Fatal().Err(err).Msg("cron setup failed") }
    cr.Start()
    defer cr.Stop()

    // HTTP server (Gin)
    router := httpapi.NewRouter(cfg, log, svc)

    errCh := make(chan error, 1)
    go func() { errCh <- router.Run(cfg.HTTPAddr) }()
    log.Info().Str("addr", cfg.HTTPAddr).Str("cron", cfg.SyncCron).Msg("backlog-toggl sync up")

    sigCh := make(chan os.Signal, 1)
    signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

    select {
    case <-sigCh:
        log.Info().Msg("shutting down...")
    case err := <-errCh:
        if err != nil { log.Error().Err(err).Msg("http server error") }
    }

    time.Sleep(500 * time.Millisecond)
}
