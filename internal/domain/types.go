package domain

import "time"

// TimeEntry is one row of the Toggl detailed report with the Backlog issue
// key already extracted from its description. Duration stays integer
// milliseconds as delivered by the report API.
type TimeEntry struct {
    ID          int64
    ProjectID   int64
    TaskID      int64
    UserID      int64
    UserName    string
    Description string
    Start       time.Time
    End         time.Time
    Updated     time.Time
    DurationMS  int64
    IssueKey    string
}

// IssueHours is the per-issue aggregate over the persisted window.
type IssueHours struct {
    IssueKey   string
    DurationMS int64
    Hours      float64
}

// ChangeEvent is a single field change recorded on a Backlog comment.
type ChangeEvent struct {
    Field         string
    OriginalValue string
    NewValue      string
}

type Comment struct {
    ID      int64
    Content string
    Changes []ChangeEvent
}

// Issue is the slice of a Backlog issue the pipeline reconciles against.
// ActualHours is nil when the issue never had hours recorded; ManualHours is
// the portion of ActualHours attributable to direct human edits.
type Issue struct {
    Key         string
    ActualHours *float64
    ManualHours float64
    Comments    []Comment
}
