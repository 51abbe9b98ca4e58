package toggl

import (
    "context"
    "encoding/json"
    "fmt"
    "net/http"
    "net/url"
    "regexp"
    "strings"
    "time"

    "github.com/rs/zerolog"

    "github.com/wonohe/backlog-toggl-integrate/internal/config"
    "github.com/wonohe/backlog-toggl-integrate/internal/domain"
)

// APIError is a Timer-Service failure: identity lookup, report fetch, or a
// report row that breaks the issue-key invariant. Always fatal to the run.
type APIError struct {
    Op  string
    Err error
}

func (e *APIError) Error() string { return fmt.Sprintf("toggl: %s: %v", e.Op, e.Err) }
func (e *APIError) Unwrap() error { return e.Err }

const reportPageSize = 50

type Client struct {
    baseURL    string
    token      string
    pastDays   int
    projectKey string
    keyRe      *regexp.Regexp
    http       *http.Client
    log        zerolog.Logger

    workspaceID int64
    email       string
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
    return &Client{
        baseURL:    strings.TrimRight(cfg.TogglBaseURL, "/"),
        token:      cfg.TogglAPIToken,
        pastDays:   cfg.TogglPastDays,
        projectKey: cfg.BacklogProjectKey,
        keyRe:      regexp.MustCompile(`(?i)` + regexp.QuoteMeta(cfg.BacklogProjectKey) + `-\d+`),
        http:       &http.Client{Timeout: cfg.HTTPTimeout},
        log:        log,
    }
}

type reportEntry struct {
    ID          int64     `json:"id"`
    PID         int64     `json:"pid"`
    TID         int64     `json:"tid"`
    UID         int64     `json:"uid"`
    User        string    `json:"user"`
    Description string    `json:"description"`
    Start       time.Time `json:"start"`
    End         time.Time `json:"end"`
    Updated     time.Time `json:"updated"`
    Dur         int64     `json:"dur"`
}

// Fetch pulls the detailed report for the rolling window, paging until an
// empty page, and derives each entry's Backlog issue key from its
// description. A row whose description carries no key match fails the whole
// fetch: the store must never see an entry without a key.
func (c *Client) Fetch(ctx context.Context) ([]domain.TimeEntry, error) {
    if err := c.ensureIdentity(ctx); err != nil { return nil, err }

    now := time.Now()
    since := now.AddDate(0, 0, -c.pastDays).Format("2006-01-02")
    until := now.Format("2006-01-02")

    var raw []reportEntry
    for page := 1; ; page++ {
        q := url.Values{}
        q.Set("user_agent", c.email)
        q.Set("workspace_id", fmt.Sprint(c.workspaceID))
        q.Set("description", c.projectKey+"-")
        q.Set("since", since)
        q.Set("until", until)
        q.Set("page", fmt.Sprint(page))
        var res struct {
            Data []reportEntry `json:"data"`
        }
        if err := c.get(ctx, "/reports/api/v2/details?"+q.Encode(), &res); err != nil {
            return nil, &APIError{Op: "detailed report", Err: err}
        }
        c.log.Info().Int("page", page).Int("rows", len(res.Data)).Str("since", since).Str("until", until).Msg("toggl: report page")
        if len(res.Data) == 0 { break }
        raw = append(raw, res.Data...)
    }

    entries := make([]domain.TimeEntry, 0, len(raw))
    for _, r := range raw {
        key := c.keyRe.FindString(r.Description)
        if key == "" {
            return nil, &APIError{Op: "issue key", Err: fmt.Errorf("entry %d has no %s-<n> reference in description %q", r.ID, c.projectKey, r.Description)}
        }
        entries = append(entries, domain.TimeEntry{
            ID:          r.ID,
            ProjectID:   r.PID,
            TaskID:      r.TID,
            UserID:      r.UID,
            UserName:    r.User,
            Description: r.Description,
            Start:       r.Start,
            End:         r.End,
            Updated:     r.Updated,
            DurationMS:  r.Dur,
            IssueKey:    strings.ToUpper(key),
        })
    }
    return entries, nil
}

// ensureIdentity resolves the workspace id and account email the report API
// requires. Both are cached for the client's lifetime.
func (c *Client) ensureIdentity(ctx context.Context) error {
    if c.workspaceID != 0 && c.email != "" { return nil }
    var workspaces []struct {
        ID int64 `json:"id"`
    }
    if err := c.get(ctx, "/api/v8/workspaces", &workspaces); err != nil {
        return &APIError{Op: "workspaces", Err: err}
    }
    if len(workspaces) == 0 || workspaces[0].ID == 0 {
        return &APIError{Op: "workspaces", Err: fmt.Errorf("workspace id not found")}
    }
    var me struct {
        Data struct {
            Email string `json:"email"`
        } `json:"data"`
    }
    if err := c.get(ctx, "/api/v8/me", &me); err != nil {
        return &APIError{Op: "me", Err: err}
    }
    if me.Data.Email == "" {
        return &APIError{Op: "me", Err: fmt.Errorf("email not found")}
    }
    c.workspaceID = workspaces[0].ID
    c.email = me.Data.Email
    c.log.Info().Int64("workspace_id", c.workspaceID).Str("email", c.email).Msg("toggl: identity resolved")
    return nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
    req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
    if err != nil { return err }
    req.SetBasicAuth(c.token, "api_token")
    resp, err := c.http.Do(req)
    if err != nil { return err }
    defer resp.Body.Close()
    if resp.StatusCode != http.StatusOK {
        return fmt.Errorf("status=%d", resp.StatusCode)
    }
    return json.NewDecoder(resp.Body).Decode(out)
}
