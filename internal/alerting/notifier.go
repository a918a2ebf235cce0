package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Notification 封装训练结果通知上下文。
type Notification struct {
	FinishedAt   time.Time
	Status       string
	Kind         string
	WindowSize   int
	Symbols      int
	Examples     int
	TrainSize    int
	TestSize     int
	RMSE         float64
	MAE          float64
	Duration     time.Duration
	ArtifactPath string
	Error        string
}

// Notifier 定义通知输送接口。
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 通知器。
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "notify_telegram").Logger(),
	}
}

// Notify 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	var result telegramResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&result)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if decodeErr == nil && result.Description != "" {
			return fmt.Errorf("telegram 响应码异常: %d: %s", resp.StatusCode, result.Description)
		}
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}
	if decodeErr == nil && !result.OK {
		if result.Description != "" {
			return fmt.Errorf("telegram 返回 ok=false: %s", result.Description)
		}
		return fmt.Errorf("telegram 返回 ok=false")
	}

	n.logger.Info().
		Str("status", note.Status).
		Str("kind", note.Kind).
		Msg("训练通知已发送 (Telegram)")
	return nil
}

// telegramResponse 是 Bot API 的通用响应包。
type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func renderMessage(note Notification) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("[Stock Predictor] training %s\n", note.Status))
	if !note.FinishedAt.IsZero() {
		b.WriteString(fmt.Sprintf("Finished: %s UTC\n", note.FinishedAt.UTC().Format(time.RFC3339)))
	}
	b.WriteString(fmt.Sprintf("Model: %s (window %d)\n", note.Kind, note.WindowSize))
	if note.Error != "" {
		b.WriteString(fmt.Sprintf("Error: %s\n", note.Error))
		return b.String()
	}
	b.WriteString(fmt.Sprintf("Symbols: %d, examples: %d (train %d / test %d)\n", note.Symbols, note.Examples, note.TrainSize, note.TestSize))
	b.WriteString(fmt.Sprintf("RMSE: %.4f  MAE: %.4f\n", note.RMSE, note.MAE))
	b.WriteString(fmt.Sprintf("Duration: %s\n", note.Duration.Round(time.Millisecond)))
	if note.ArtifactPath != "" {
		b.WriteString(fmt.Sprintf("Artifact: %s\n", note.ArtifactPath))
	}
	return b.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
