package config

import (
    "fmt"
    "log"
    "os"
    "strconv"
    "strings"
    "time"
)

type Config struct {
    AppEnv   string
    TZ       string
    HTTPAddr string

    DBDSN string

    TogglBaseURL  string
    TogglAPIToken string
    TogglPastDays int

    BacklogBaseURL      string
    BacklogAPIKey       string
    BacklogProjectKey   string
    BacklogComment      string
    BacklogCommentCount int

    TelegramToken  string
    TelegramChatID int64

    SyncCron    string
    HTTPTimeout time.Duration
}

func getenv(key, def string) string {
    v := os.Getenv(key)
    if v == "" { return def }
    return v
}

func atoi(key string, def int) int {
    v := os.Getenv(key)
    if v == "" { return def }
    i, err := strconv.Atoi(v)
    if err != nil { return def }
    return i
}

func dur(key string, def time.Duration) time.Duration {
    v := os.Getenv(key)
    if v == "" { return def }
    d, err := time.ParseDuration(v)
    if err != nil { return def }
    return d
}

func i64(key string) int64 {
    v := os.Getenv(key)
    if v == "" { return 0 }
    n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
    if err != nil { return 0 }
    return n
}

// Load builds the process configuration from the environment once at startup.
// Keys the pipeline cannot run without are validated here; a missing one is a
// fatal startup condition, not something business logic discovers mid-run.
func Load() (Config, error) {
    cfg := Config{
        AppEnv:   getenv("APP_ENV", "dev"),
        TZ:       getenv("APP_TZ", "Asia/Tokyo"),
        HTTPAddr: getenv("HTTP_ADDR", ":8080"),

        DBDSN: os.Getenv("DB_DSN"),

        TogglBaseURL:  os.Getenv("TOGGL_BASE_URL"),
        TogglAPIToken: os.Getenv("TOGGL_API_TOKEN"),
        TogglPastDays: atoi("TOGGL_PAST_DAYS", 6),

        BacklogBaseURL:      os.Getenv("BACKLOG_BASE_URL"),
        BacklogAPIKey:       os.Getenv("BACKLOG_APIKEY"),
        BacklogProjectKey:   os.Getenv("BACKLOG_PRJ_KEY"),
        BacklogComment:      os.Getenv("BACKLOG_COMMENT"),
        BacklogCommentCount: atoi("BACKLOG_COMMENT_COUNT", 20),

        TelegramToken:  getenv("TELEGRAM_BOT_TOKEN", ""),
        TelegramChatID: i64("TELEGRAM_CHAT_ID"),

        SyncCron:    getenv("SYNC_CRON", "0 23 * * *"),
        HTTPTimeout: dur("HTTP_TIMEOUT", 15*time.Second),
    }

    var missing []string
    for _, kv := range [][2]string{
        {"DB_DSN", cfg.DBDSN},
        {"TOGGL_BASE_URL", cfg.TogglBaseURL},
        {"TOGGL_API_TOKEN", cfg.TogglAPIToken},
        {"BACKLOG_BASE_URL", cfg.BacklogBaseURL},
        {"BACKLOG_APIKEY", cfg.BacklogAPIKey},
        {"BACKLOG_PRJ_KEY", cfg.BacklogProjectKey},
        {"BACKLOG_COMMENT", cfg.BacklogComment},
    } {
        if strings.TrimSpace(kv[1]) == "" { missing = append(missing, kv[0]) }
    }
    if len(missing) > 0 {
        return Config{}, fmt.Errorf("config: missing required env: %s", strings.Join(missing, ", "))
    }
    if cfg.TogglPastDays <= 0 { return Config{}, fmt.Errorf("config: TOGGL_PAST_DAYS must be positive") }
    if cfg.BacklogCommentCount <= 0 { return Config{}, fmt.Errorf("config: BACKLOG_COMMENT_COUNT must be positive") }

    if loc, err := time.LoadLocation(cfg.TZ); err == nil {
        time.Local = loc
    } else {
        log.Printf("warning: cannot load TZ %s: %v", cfg.TZ, err)
    }
    return cfg, nil
}
