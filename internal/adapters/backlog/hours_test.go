package backlog

import (
    "testing"

    "github.com/wonohe/backlog-toggl-integrate/internal/domain"
)

const marker = "[toggl-sync]"

func TestManualHours_EmptyHistoryIsZero(t *testing.T) {
    if got := ManualHours(nil, marker); got != 0.0 {
        t.Fatalf("expected 0.0, got %v", got)
    }
}

func TestManualHours_MarkerCommentsAreSkipped(t *testing.T) {
    comments := []domain.Comment{
        {Content: marker + " manual 0.00h / timer 1.50h", Changes: []domain.ChangeEvent{
            {Field: "actualHours", OriginalValue: "1.0", NewValue: "1.5"},
        }},
        {Content: marker, Changes: []domain.ChangeEvent{
            {Field: "actualHours", OriginalValue: "1.5", NewValue: "3.0"},
        }},
    }
    if got := ManualHours(comments, marker); got != 0.0 {
        t.Fatalf("pipeline-authored comments must not count, got %v", got)
    }
}

func TestManualHours_MixedHistorySumsOnlyHumanEdits(t *testing.T) {
    comments := []domain.Comment{
        // human sets hours 0 -> 2
        {Content: "did some work", Changes: []domain.ChangeEvent{
            {Field: "actualHours", OriginalValue: "", NewValue: "2"},
        }},
        // pipeline write, ignored
        {Content: marker + " manual 2.00h / timer 1.00h", Changes: []domain.ChangeEvent{
            {Field: "actualHours", OriginalValue: "2", NewValue: "3"},
        }},
        // human bumps 3 -> 3.5; unrelated field ignored
        {Content: "", Changes: []domain.ChangeEvent{
            {Field: "status", OriginalValue: "Open", NewValue: "Closed"},
            {Field: "actualHours", OriginalValue: "3", NewValue: "3.5"},
        }},
    }
    if got := ManualHours(comments, marker); got != 2.5 {
        t.Fatalf("expected 2.5, got %v", got)
    }
}

func TestManualHours_MissingValuesReadAsZero(t *testing.T) {
    comments := []domain.Comment{
        {Content: "cleared", Changes: []domain.ChangeEvent{
            {Field: "actualHours", OriginalValue: "4", NewValue: ""},
        }},
    }
    if got := ManualHours(comments, marker); got != -4.0 {
        t.Fatalf("expected -4.0, got %v", got)
    }
}

func TestManualHours_RoundsToTwoDecimals(t *testing.T) {
    comments := []domain.Comment{
        {Content: "x", Changes: []domain.ChangeEvent{
            {Field: "actualHours", OriginalValue: "0", NewValue: "0.1"},
        }},
        {Content: "y", Changes: []domain.ChangeEvent{
            {Field: "actualHours", OriginalValue: "0.1", NewValue: "0.305"},
        }},
    }
    if got := ManualHours(comments, marker); got != 0.31 {
        t.Fatalf("expected 0.31, got %v", got)
    }
}
