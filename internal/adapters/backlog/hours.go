package backlog

import (
    "math"
    "strconv"
    "strings"

    "github.com/wonohe/backlog-toggl-integrate/internal/domain"
)

// ManualHours derives the portion of an issue's actual hours that humans
// typed in directly. Comments whose content starts with the pipeline's own
// marker are its previous writes and are skipped entirely; every other
// comment contributes new−original for each actualHours change, with absent
// values read as 0. The sign convention is accumulated as-is across the full
// history; it encodes how Backlog reports edits and must not be reordered.
func ManualHours(comments []domain.Comment, marker string) float64 {
    total := 0.0
    for _, cm := range comments {
        if cm.Content != "" && strings.HasPrefix(cm.Content, marker) { continue }
        for _, ch := range cm.Changes {
            if ch.Field != "actualHours" { continue }
            total += parseHours(ch.NewValue) - parseHours(ch.OriginalValue)
        }
    }
    return round2(total)
}

func parseHours(s string) float64 {
    s = strings.TrimSpace(s)
    if s == "" { return 0 }
    f, err := strconv.ParseFloat(s, 64)
    if err != nil { return 0 }
    return f
}

func round2(f float64) float64 { return math.Round(f*100) / 100 }
