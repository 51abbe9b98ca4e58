package jobs

import (
    "context"
    "fmt"
    "time"

    "github.com/robfig/cron/v3"
    "github.com/rs/zerolog"

    "github.com/wonohe/backlog-toggl-integrate/internal/config"
)

type service interface { RunSync(ctx context.Context) error }

type Cron struct {
    cfg config.Config
    log zerolog.Logger
    svc service
    c   *cron.Cron
}

// NewCron schedules the daily sync. A malformed spec is a startup error, not
// a silently empty schedule. Concurrent-run protection lives inside RunSync
// itself so the manual trigger goes through the same guard.
func NewCron(cfg config.Config, log zerolog.Logger, svc service) (*Cron, error) {
    loc, _ := time.LoadLocation(cfg.TZ)
    c := cron.New(cron.WithLocation(loc), cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow)))
    cr := &Cron{cfg: cfg, log: log, svc: svc, c: c}
    if _, err := c.AddFunc(cfg.SyncCron, cr.daily); err != nil {
        return nil, fmt.Errorf("jobs: invalid SYNC_CRON %q: %w", cfg.SyncCron, err)
    }
    return cr, nil
}

func (cr *Cron) Start(){ cr.c.Start() }
func (cr *Cron) Stop(){ cr.c.Stop() }

func (cr *Cron) daily(){
    ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute); defer cancel()
    cr.log.Info().Msg("cron: daily toggl sync")
    if err := cr.svc.RunSync(ctx); err != nil { cr.log.Error().Err(err).Msg("cron: sync failed") }
}
