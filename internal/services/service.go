package services

import (
    "context"
    "fmt"
    "math"

    "github.com/rs/zerolog"

    "github.com/wonohe/backlog-toggl-integrate/internal/config"
    "github.com/wonohe/backlog-toggl-integrate/internal/domain"
    "github.com/wonohe/backlog-toggl-integrate/internal/repo"
)

type TogglClient interface {
    Fetch(ctx context.Context) ([]domain.TimeEntry, error)
}

type BacklogClient interface {
    // GetIssue returns (nil, nil) when the issue does not exist.
    GetIssue(ctx context.Context, key string) (*domain.Issue, error)
    Patch(ctx context.Context, key string, actualHours float64, comment string) error
}

type Store interface {
    DeleteWindow(ctx context.Context, pastDays int) error
    UpsertEntries(ctx context.Context, entries []domain.TimeEntry) error
    SummarizeByIssue(ctx context.Context) ([]domain.IssueHours, error)
    StartRun(ctx context.Context) (int64, error)
    FinishRun(ctx context.Context, id int64, fetched, checked, patched int, success bool, errStr string) error
    GetLastRun(ctx context.Context) (*repo.LastRun, error)
    TryAdvisoryLock(ctx context.Context, key int64) (bool, error)
    AdvisoryUnlock(ctx context.Context, key int64) error
}

type Notifier interface {
    SendMessage(ctx context.Context, text string) error
}

type Service struct {
    cfg     config.Config
    log     zerolog.Logger
    store   Store
    toggl   TogglClient
    backlog BacklogClient
    notify  Notifier
}

func New(cfg config.Config, log zerolog.Logger, store Store, toggl TogglClient, backlog BacklogClient, notify Notifier) *Service {
    return &Service{cfg: cfg, log: log, store: store, toggl: toggl, backlog: backlog, notify: notify}
}

// syncLockKey guards the whole run: cron and the manual HTTP trigger both
// come through RunSync, so two overlapping triggers never interleave their
// delete/insert batches.
const syncLockKey int64 = 515151

// RunSync is one reconciliation pass: fetch the window from Toggl, reload the
// store, aggregate per issue, and patch every Backlog issue whose recorded
// hours disagree with timer-derived hours beyond what manual edits explain.
// Strictly sequential; the first error on a non-skippable path aborts the
// rest of the run.
func (s *Service) RunSync(ctx context.Context) error {
    ok, err := s.store.TryAdvisoryLock(ctx, syncLockKey)
    if err != nil { s.log.Error().Err(err).Msg("sync: lock error"); return err }
    if !ok { s.log.Info().Msg("sync: already running elsewhere"); return nil }
    defer func(){ _ = s.store.AdvisoryUnlock(context.Background(), syncLockKey) }()

    runID, err := s.store.StartRun(ctx)
    if err != nil { s.log.Error().Err(err).Msg("sync: start run record failed") }
    s.log.Info().Msg("sync: start")

    fetched, checked, patched := 0, 0, 0
    fail := func(err error) error {
        s.log.Error().Err(err).Msg("sync: failed")
        if runID != 0 {
            if ferr := s.store.FinishRun(ctx, runID, fetched, checked, patched, false, err.Error()); ferr != nil {
                s.log.Error().Err(ferr).Msg("sync: finish run record failed")
            }
        }
        if s.notify != nil {
            _ = s.notify.SendMessage(ctx, fmt.Sprintf("toggl sync failed: %v", err))
        }
        return err
    }

    entries, err := s.toggl.Fetch(ctx)
    if err != nil { return fail(err) }
    fetched = len(entries)
    s.log.Info().Int("entries", fetched).Msg("sync: toggl entries fetched")

    if err := s.store.DeleteWindow(ctx, s.cfg.TogglPastDays); err != nil { return fail(err) }
    if err := s.store.UpsertEntries(ctx, entries); err != nil { return fail(err) }

    sums, err := s.store.SummarizeByIssue(ctx)
    if err != nil { return fail(err) }

    for _, sum := range sums {
        issue, err := s.backlog.GetIssue(ctx, sum.IssueKey)
        if err != nil { return fail(err) }
        if issue == nil { continue }
        checked++
        if issue.ActualHours == nil || *issue.ActualHours == 0 {
            s.log.Info().Str("key", sum.IssueKey).Msg("sync: no actual hours recorded, skipping")
            continue
        }
        timerPart := *issue.ActualHours - issue.ManualHours
        s.log.Info().Str("key", sum.IssueKey).
            Float64("sum_hours", sum.Hours).
            Float64("actual_hours", *issue.ActualHours).
            Float64("manual_hours", issue.ManualHours).
            Msg("sync: comparing")
        if isclose(sum.Hours, timerPart) { continue }
        newHours := round2(issue.ManualHours + sum.Hours)
        comment := fmt.Sprintf("%s manual %.2fh / timer %.2fh", s.cfg.BacklogComment, issue.ManualHours, sum.Hours)
        if err := s.backlog.Patch(ctx, sum.IssueKey, newHours, comment); err != nil { return fail(err) }
        patched++
    }

    if runID != 0 {
        if err := s.store.FinishRun(ctx, runID, fetched, checked, patched, true, ""); err != nil {
            s.log.Error().Err(err).Msg("sync: finish run record failed")
        }
    }
    s.log.Info().Int("entries", fetched).Int("checked", checked).Int("patched", patched).Msg("sync: done")
    if s.notify != nil && patched > 0 {
        _ = s.notify.SendMessage(ctx, fmt.Sprintf("toggl sync: %d entries, %d issues patched", fetched, patched))
    }
    return nil
}

// GetLastRun reports the most recent sync run; nil before the first one.
func (s *Service) GetLastRun(ctx context.Context) (any, error) {
    lr, err := s.store.GetLastRun(ctx)
    if err != nil { return nil, err }
    if lr == nil { return nil, nil }
    return lr, nil
}

// isclose mirrors a relative-tolerance float comparison: equal when the
// difference is within 1e-9 of the larger magnitude.
func isclose(a, b float64) bool {
    return math.Abs(a-b) <= 1e-9*math.Max(math.Abs(a), math.Abs(b))
}

func round2(f float64) float64 { return math.Round(f*100) / 100 }
