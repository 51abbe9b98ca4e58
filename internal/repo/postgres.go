package repo

import (
    "context"
    "errors"
    "fmt"
    "math"
    "time"

    "github.com/jackc/pgx/v5"
    "github.com/jackc/pgx/v5/pgxpool"
    "github.com/rs/zerolog"

    "github.com/wonohe/backlog-toggl-integrate/internal/config"
    "github.com/wonohe/backlog-toggl-integrate/internal/domain"
)

// StoreError wraps any database failure. The transaction that produced it has
// already been rolled back; previously committed operations stay intact.
type StoreError struct {
    Op  string
    Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("store: %s: %v", e.Op, e.Err) }
func (e *StoreError) Unwrap() error { return e.Err }

type DB struct {
    Pool *pgxpool.Pool
    log  zerolog.Logger
}

func MustOpen(ctx context.Context, cfg config.Config, log zerolog.Logger) *DB {
    pool, err := pgxpool.New(ctx, cfg.DBDSN)
    if err != nil { log.Fatal().Err(err).Msg("db connect failed") }
    ctx2, cancel := context.WithTimeout(ctx, 10*time.Second); defer cancel()
    if err := pool.Ping(ctx2); err != nil { log.Fatal().Err(err).Msg("db ping failed") }
    return &DB{Pool: pool, log: log}
}

func (d *DB) Close() { d.Pool.Close() }

type Repository struct {
    db  *DB
    log zerolog.Logger
}

func NewRepository(d *DB, log zerolog.Logger) *Repository { return &Repository{db: d, log: log} }

func (r *Repository) TryAdvisoryLock(ctx context.Context, key int64) (bool, error) {
    var ok bool
    err := r.db.Pool.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&ok)
    return ok, err
}

func (r *Repository) AdvisoryUnlock(ctx context.Context, key int64) error {
    var ok bool
    err := r.db.Pool.QueryRow(ctx, "SELECT pg_advisory_unlock($1)", key).Scan(&ok)
    if !ok && err == nil { return errors.New("advisory unlock returned false") }
    return err
}

// DeleteWindow clears every entry whose start time falls inside the rolling
// window (newer than pastDays days ago, truncated to a day boundary), so the
// next insert-batch fully supersedes it. One transaction, rollback on failure.
func (r *Repository) DeleteWindow(ctx context.Context, pastDays int) error {
    tx, err := r.db.Pool.Begin(ctx)
    if err != nil { return &StoreError{Op: "delete window", Err: err} }
    defer tx.Rollback(ctx)
    const q = `DELETE FROM toggl_report WHERE start_time > date_trunc('day', now() - make_interval(days => $1))`
    tag, err := tx.Exec(ctx, q, pastDays)
    if err != nil { return &StoreError{Op: "delete window", Err: err} }
    if err := tx.Commit(ctx); err != nil { return &StoreError{Op: "delete window", Err: err} }
    r.log.Info().Int64("rows", tag.RowsAffected()).Int("past_days", pastDays).Msg("store: window cleared")
    return nil
}

// UpsertEntries inserts the batch, deleting any existing row with the same
// toggl id first. Delete-then-insert is deliberate over ON CONFLICT: it keeps
// the SQL dialect-agnostic and makes supersede-on-refetch explicit. The whole
// batch shares one transaction; any failure rolls back all of it.
func (r *Repository) UpsertEntries(ctx context.Context, entries []domain.TimeEntry) error {
    if len(entries) == 0 { return nil }
    tx, err := r.db.Pool.Begin(ctx)
    if err != nil { return &StoreError{Op: "upsert entries", Err: err} }
    defer tx.Rollback(ctx)

    batch := &pgx.Batch{}
    const del = `DELETE FROM toggl_report WHERE toggl_id = $1`
    const ins = `INSERT INTO toggl_report (toggl_id, pid, tid, uid, user_name, description,
        start_time, end_time, updated, dur, backlog_issue_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`
    for _, e := range entries {
        batch.Queue(del, e.ID)
        batch.Queue(ins, e.ID, e.ProjectID, e.TaskID, e.UserID, e.UserName, e.Description,
            e.Start, e.End, e.Updated, e.DurationMS, e.IssueKey)
    }
    br := tx.SendBatch(ctx, batch)
    for i := 0; i < batch.Len(); i++ {
        if _, err := br.Exec(); err != nil {
            br.Close()
            return &StoreError{Op: "upsert entries", Err: err}
        }
    }
    if err := br.Close(); err != nil { return &StoreError{Op: "upsert entries", Err: err} }
    if err := tx.Commit(ctx); err != nil { return &StoreError{Op: "upsert entries", Err: err} }
    r.log.Info().Int("entries", len(entries)).Msg("store: entries upserted")
    return nil
}

// SummarizeByIssue groups persisted entries by issue key and sums their
// durations; hours is the millisecond sum over 3,600,000 rounded to two
// decimals.
func (r *Repository) SummarizeByIssue(ctx context.Context) ([]domain.IssueHours, error) {
    const q = `SELECT backlog_issue_key, SUM(dur) AS sum_dur FROM toggl_report
        WHERE backlog_issue_key IS NOT NULL GROUP BY backlog_issue_key`
    rows, err := r.db.Pool.Query(ctx, q)
    if err != nil { return nil, &StoreError{Op: "summarize", Err: err} }
    defer rows.Close()
    var out []domain.IssueHours
    for rows.Next() {
        var ih domain.IssueHours
        if err := rows.Scan(&ih.IssueKey, &ih.DurationMS); err != nil {
            return nil, &StoreError{Op: "summarize", Err: err}
        }
        ih.Hours = math.Round(float64(ih.DurationMS)/(60*60*1000)*100) / 100
        out = append(out, ih)
    }
    if err := rows.Err(); err != nil { return nil, &StoreError{Op: "summarize", Err: err} }
    return out, nil
}

// Sync runs

func (r *Repository) StartRun(ctx context.Context) (int64, error) {
    const q = `INSERT INTO sync_runs(started_at, success) VALUES(now(), false) RETURNING id`
    var id int64
    if err := r.db.Pool.QueryRow(ctx, q).Scan(&id); err != nil { return 0, err }
    return id, nil
}

func (r *Repository) FinishRun(ctx context.Context, id int64, fetched, checked, patched int, success bool, errStr string) error {
    const q = `UPDATE sync_runs SET finished_at=now(), entries_fetched=$2, issues_checked=$3,
        issues_patched=$4, success=$5, error=$6 WHERE id=$1`
    _, err := r.db.Pool.Exec(ctx, q, id, fetched, checked, patched, success, errStr)
    return err
}

type LastRun struct {
    StartedAt      time.Time  `json:"started_at"`
    FinishedAt     *time.Time `json:"finished_at"`
    EntriesFetched int        `json:"entries_fetched"`
    IssuesChecked  int        `json:"issues_checked"`
    IssuesPatched  int        `json:"issues_patched"`
    Success        bool       `json:"success"`
    Error          string     `json:"error"`
}

func (r *Repository) GetLastRun(ctx context.Context) (*LastRun, error) {
    const q = `SELECT started_at, finished_at,
        coalesce(entries_fetched,0), coalesce(issues_checked,0), coalesce(issues_patched,0),
        coalesce(success,false), coalesce(error,'')
        FROM sync_runs ORDER BY id DESC LIMIT 1`
    row := r.db.Pool.QueryRow(ctx, q)
    lr := &LastRun{}
    if err := row.Scan(&lr.StartedAt, &lr.FinishedAt, &lr.EntriesFetched, &lr.IssuesChecked, &lr.IssuesPatched, &lr.Success, &lr.Error); err != nil {
        if errors.Is(err, pgx.ErrNoRows) { return nil, nil }
        return nil, err
    }
    return lr, nil
}
