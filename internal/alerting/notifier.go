package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pothole-detector/internal/detection"
)

// Notification 封装告警上下文。
type Notification struct {
	DetectedAt time.Time
	Severity   detection.Severity
	Magnitude  decimal.Decimal
	Threshold  decimal.Decimal
	// Total is the running detection count including this one.
	Total         int64
	Location      *detection.Location
	Channels      []string
	// AdditionalMsg is free text appended by every channel, e.g. a test marker.
	AdditionalMsg string
}

// Title is the one-line user-facing summary.
func (n Notification) Title() string {
	return fmt.Sprintf("%s pothole detected (Threshold: %s). Total: %d",
		n.Severity, n.Threshold.StringFixed(0), n.Total)
}

// Notifier 定义告警输送接口。
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// LogNotifier writes notifications to the structured log.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier builds a notifier backed by logger.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "alert_log").Logger()}
}

// Notify logs the notification at warn level.
func (n *LogNotifier) Notify(_ context.Context, note Notification) error {
	evt := n.logger.Warn().
		Time("detected_at", note.DetectedAt).
		Str("severity", string(note.Severity)).
		Str("magnitude", note.Magnitude.StringFixed(2)).
		Int64("total", note.Total)
	if note.Location != nil {
		evt = evt.Float64("latitude", note.Location.Latitude).Float64("longitude", note.Location.Longitude)
	}
	if note.AdditionalMsg != "" {
		evt = evt.Str("note", note.AdditionalMsg)
	}
	evt.Msg(note.Title())
	return nil
}

// MultiNotifier fans a notification out to every channel. All channels are
// attempted; failures are joined.
type MultiNotifier []Notifier

// Notify delivers to each notifier in order.
func (m MultiNotifier) Notify(ctx context.Context, note Notification) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, note); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
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
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
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

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram 返回 ok=false")
		}
	}

	n.logger.Info().Time("detected_at", note.DetectedAt).
		Str("severity", string(note.Severity)).
		Int64("total", note.Total).
		Msg("告警已发送 (Telegram)")
	return nil
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString("[Pothole Alert]\n")
	builder.WriteString(note.Title())
	builder.WriteString("\n")
	builder.WriteString(fmt.Sprintf("Detected: %s\n", note.DetectedAt.Format("2006-01-02 15:04:05")))
	builder.WriteString(fmt.Sprintf("Magnitude: %s\n", note.Magnitude.StringFixed(2)))
	if note.Location != nil {
		builder.WriteString(fmt.Sprintf("Location: %g, %g\n", note.Location.Latitude, note.Location.Longitude))
	} else {
		builder.WriteString("Location: Not available\n")
	}
	if len(note.Channels) > 0 {
		builder.WriteString(fmt.Sprintf("Channels: %s\n", strings.Join(note.Channels, ",")))
	}
	if note.AdditionalMsg != "" {
		builder.WriteString(note.AdditionalMsg)
		builder.WriteString("\n")
	}
	return builder.String()
}

var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = MultiNotifier(nil)
)
