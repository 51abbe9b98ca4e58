package toggl

import (
    "context"
    "errors"
    "fmt"
    "net/http"
    "net/http/httptest"
    "testing"
    "time"

    "github.com/rs/zerolog"

    "github.com/wonohe/backlog-toggl-integrate/internal/config"
)

func testClient(t *testing.T, handler http.Handler) *Client {
    t.Helper()
    srv := httptest.NewServer(handler)
    t.Cleanup(srv.Close)
    cfg := config.Config{
        TogglBaseURL:      srv.URL,
        TogglAPIToken:     "tok",
        TogglPastDays:     6,
        BacklogProjectKey: "ABC",
        HTTPTimeout:       5 * time.Second,
    }
    return NewClient(cfg, zerolog.Nop())
}

func identity(w http.ResponseWriter, r *http.Request) bool {
    switch r.URL.Path {
    case "/api/v8/workspaces":
        fmt.Fprint(w, `[{"id":777}]`)
        return true
    case "/api/v8/me":
        fmt.Fprint(w, `{"data":{"email":"dev@example.com"}}`)
        return true
    }
    return false
}

func TestFetch_PagesUntilEmptyAndDerivesKeys(t *testing.T) {
    c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if identity(w, r) { return }
        if r.URL.Query().Get("workspace_id") != "777" {
            t.Errorf("expected workspace_id=777, got %q", r.URL.Query().Get("workspace_id"))
        }
        if r.URL.Query().Get("user_agent") != "dev@example.com" {
            t.Errorf("expected user_agent set to account email")
        }
        switch r.URL.Query().Get("page") {
        case "1":
            fmt.Fprint(w, `{"data":[
                {"id":1,"pid":5,"uid":9,"user":"dev","description":"fixing abc-12 login","start":"2026-08-30T09:00:00+09:00","end":"2026-08-30T10:00:00+09:00","updated":"2026-08-30T10:00:00+09:00","dur":3600000},
                {"id":2,"pid":5,"uid":9,"user":"dev","description":"ABC-12 review then ABC-99","start":"2026-08-30T11:00:00+09:00","end":"2026-08-30T11:30:00+09:00","updated":"2026-08-30T11:30:00+09:00","dur":1800000}]}`)
        case "2":
            fmt.Fprint(w, `{"data":[]}`)
        default:
            t.Errorf("unexpected page %q", r.URL.Query().Get("page"))
            fmt.Fprint(w, `{"data":[]}`)
        }
    }))
    entries, err := c.Fetch(context.Background())
    if err != nil { t.Fatalf("unexpected error: %v", err) }
    if len(entries) != 2 { t.Fatalf("expected 2 entries, got %d", len(entries)) }
    // case-insensitive match, uppercased
    if entries[0].IssueKey != "ABC-12" { t.Fatalf("expected ABC-12, got %q", entries[0].IssueKey) }
    // first match wins when the description holds several keys
    if entries[1].IssueKey != "ABC-12" { t.Fatalf("expected first match ABC-12, got %q", entries[1].IssueKey) }
    if entries[0].DurationMS != 3600000 { t.Fatalf("duration must stay integer milliseconds") }
}

func TestFetch_EntryWithoutKeyFailsTheFetch(t *testing.T) {
    c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if identity(w, r) { return }
        if r.URL.Query().Get("page") == "1" {
            fmt.Fprint(w, `{"data":[{"id":3,"description":"lunch break","start":"2026-08-30T12:00:00+09:00","end":"2026-08-30T13:00:00+09:00","updated":"2026-08-30T13:00:00+09:00","dur":3600000}]}`)
            return
        }
        fmt.Fprint(w, `{"data":[]}`)
    }))
    _, err := c.Fetch(context.Background())
    if err == nil { t.Fatalf("entry without an issue key must fail the fetch") }
    var apiErr *APIError
    if !errors.As(err, &apiErr) { t.Fatalf("expected *APIError, got %T", err) }
}

func TestFetch_EmptyWorkspaceListFails(t *testing.T) {
    c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if r.URL.Path == "/api/v8/workspaces" {
            fmt.Fprint(w, `[]`)
            return
        }
        fmt.Fprint(w, `{}`)
    }))
    _, err := c.Fetch(context.Background())
    if err == nil { t.Fatalf("expected workspace lookup failure") }
}

func TestFetch_MissingEmailFails(t *testing.T) {
    c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        switch r.URL.Path {
        case "/api/v8/workspaces":
            fmt.Fprint(w, `[{"id":777}]`)
        case "/api/v8/me":
            fmt.Fprint(w, `{"data":{}}`)
        default:
            t.Errorf("report endpoint must not be reached without identity")
        }
    }))
    _, err := c.Fetch(context.Background())
    if err == nil { t.Fatalf("expected email lookup failure") }
}
