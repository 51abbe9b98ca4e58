package backlog

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "io"
    "net/http"
    "net/url"
    "strings"

    "github.com/rs/zerolog"

    "github.com/wonohe/backlog-toggl-integrate/internal/config"
    "github.com/wonohe/backlog-toggl-integrate/internal/domain"
)

// APIError is an Issue-Service failure on a path that must not be tolerated:
// comment pagination or the actual-hours patch. A failed issue lookup is not
// one of these; GetIssue signals that with a nil issue instead.
type APIError struct {
    Op  string
    Key string
    Err error
}

func (e *APIError) Error() string { return fmt.Sprintf("backlog: %s %s: %v", e.Op, e.Key, e.Err) }
func (e *APIError) Unwrap() error { return e.Err }

type Client struct {
    baseURL   string
    apiKey    string
    marker    string
    pageCount int
    http      *http.Client
    log       zerolog.Logger
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
    return &Client{
        baseURL:   strings.TrimRight(cfg.BacklogBaseURL, "/"),
        apiKey:    cfg.BacklogAPIKey,
        marker:    cfg.BacklogComment,
        pageCount: cfg.BacklogCommentCount,
        http:      &http.Client{Timeout: cfg.HTTPTimeout},
        log:       log,
    }
}

type rawChange struct {
    Field         string `json:"field"`
    OriginalValue string `json:"originalValue"`
    NewValue      string `json:"newValue"`
}

type rawComment struct {
    ID        int64       `json:"id"`
    Content   string      `json:"content"`
    ChangeLog []rawChange `json:"changeLog"`
}

// GetIssue fetches the issue and, only when it has actual hours recorded,
// its full comment history. A non-200 lookup returns (nil, nil): issues that
// don't exist are skipped by the caller, not treated as failures.
func (c *Client) GetIssue(ctx context.Context, key string) (*domain.Issue, error) {
    u := fmt.Sprintf("%s/api/v2/issues/%s?apiKey=%s", c.baseURL, url.PathEscape(key), url.QueryEscape(c.apiKey))
    req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
    if err != nil { return nil, &APIError{Op: "get issue", Key: key, Err: err} }
    resp, err := c.http.Do(req)
    if err != nil { return nil, &APIError{Op: "get issue", Key: key, Err: err} }
    defer resp.Body.Close()
    if resp.StatusCode != http.StatusOK {
        c.log.Info().Str("key", key).Int("status", resp.StatusCode).Msg("backlog: issue not found")
        return nil, nil
    }
    var res struct {
        IssueKey    string   `json:"issueKey"`
        ActualHours *float64 `json:"actualHours"`
    }
    if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
        return nil, &APIError{Op: "get issue", Key: key, Err: err}
    }

    issue := &domain.Issue{Key: res.IssueKey, ActualHours: res.ActualHours}
    if res.ActualHours == nil || *res.ActualHours == 0 {
        // No hours recorded (zero counts as unrecorded): the comment
        // history cannot matter, so skip the calls entirely.
        return issue, nil
    }
    comments, err := c.comments(ctx, res.IssueKey)
    if err != nil { return nil, err }
    issue.Comments = comments
    issue.ManualHours = ManualHours(comments, c.marker)
    return issue, nil
}

// comments pages ascending by comment id, continuing while a page comes back
// full.
func (c *Client) comments(ctx context.Context, key string) ([]domain.Comment, error) {
    var out []domain.Comment
    minID := int64(1)
    for {
        u := fmt.Sprintf("%s/api/v2/issues/%s/comments?apiKey=%s&count=%d&order=asc&minId=%d",
            c.baseURL, url.PathEscape(key), url.QueryEscape(c.apiKey), c.pageCount, minID)
        req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
        if err != nil { return nil, &APIError{Op: "get comments", Key: key, Err: err} }
        resp, err := c.http.Do(req)
        if err != nil { return nil, &APIError{Op: "get comments", Key: key, Err: err} }
        var page []rawComment
        decErr := json.NewDecoder(resp.Body).Decode(&page)
        resp.Body.Close()
        if resp.StatusCode != http.StatusOK {
            return nil, &APIError{Op: "get comments", Key: key, Err: fmt.Errorf("status=%d", resp.StatusCode)}
        }
        if decErr != nil { return nil, &APIError{Op: "get comments", Key: key, Err: decErr} }
        for _, rc := range page {
            cm := domain.Comment{ID: rc.ID, Content: rc.Content}
            for _, ch := range rc.ChangeLog {
                cm.Changes = append(cm.Changes, domain.ChangeEvent{
                    Field:         ch.Field,
                    OriginalValue: ch.OriginalValue,
                    NewValue:      ch.NewValue,
                })
            }
            out = append(out, cm)
        }
        if len(page) < c.pageCount { break }
        minID = page[len(page)-1].ID
    }
    c.log.Info().Str("key", key).Int("comments", len(out)).Msg("backlog: comments fetched")
    return out, nil
}

// Patch writes the corrected actual hours plus an explanatory comment back to
// the issue. Not retried; the caller decides what a failure aborts.
func (c *Client) Patch(ctx context.Context, key string, actualHours float64, comment string) error {
    u := fmt.Sprintf("%s/api/v2/issues/%s?apiKey=%s", c.baseURL, url.PathEscape(key), url.QueryEscape(c.apiKey))
    body, _ := json.Marshal(map[string]any{"actualHours": actualHours, "comment": comment})
    req, err := http.NewRequestWithContext(ctx, http.MethodPatch, u, bytes.NewReader(body))
    if err != nil { return &APIError{Op: "patch", Key: key, Err: err} }
    req.Header.Set("Content-Type", "application/json")
    resp, err := c.http.Do(req)
    if err != nil { return &APIError{Op: "patch", Key: key, Err: err} }
    defer resp.Body.Close()
    if resp.StatusCode != http.StatusOK {
        b, _ := io.ReadAll(resp.Body)
        return &APIError{Op: "patch", Key: key, Err: fmt.Errorf("status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(b)))}
    }
    c.log.Info().Str("key", key).Float64("actual_hours", actualHours).Msg("backlog: issue patched")
    return nil
}
