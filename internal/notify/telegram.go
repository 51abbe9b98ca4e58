package notify

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "io"
    "net/http"
    "time"

    "github.com/rs/zerolog"

    "github.com/wonohe/backlog-toggl-integrate/internal/config"
)

// Telegram posts sync run outcomes to a chat. A client without token or chat
// id is a no-op, so wiring it is always safe.
type Telegram struct {
    token  string
    chatID int64
    http   *http.Client
    log    zerolog.Logger
}

func NewTelegram(cfg config.Config, log zerolog.Logger) *Telegram {
    return &Telegram{token: cfg.TelegramToken, chatID: cfg.TelegramChatID, http: &http.Client{Timeout: 10 * time.Second}, log: log}
}

func (t *Telegram) SendMessage(ctx context.Context, text string) error {
    if t.token == "" || t.chatID == 0 { return nil }
    url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.token)
    body := map[string]any{"chat_id": t.chatID, "text": text, "disable_web_page_preview": true}
    b, _ := json.Marshal(body)
    req, _ := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(b))
    req.Header.Set("Content-Type", "application/json")
    resp, err := t.http.Do(req)
    if err != nil { return err }
    defer resp.Body.Close()
    if resp.StatusCode >= 300 {
        bodyBytes, _ := io.ReadAll(resp.Body)
        return fmt.Errorf("telegram sendMessage status=%d body=%s", resp.StatusCode, string(bodyBytes))
    }
    return nil
}
