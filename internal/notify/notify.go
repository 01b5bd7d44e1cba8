// Package notify provides notification functionality for the alert engine.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"bist-sentinel/internal/config"
	"bist-sentinel/internal/models"
	"bist-sentinel/internal/security"
)

// Notifier defines the interface for sending notifications.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
	SendDecision(ctx context.Context, dec *models.Decision) error
	SendPositionEvent(ctx context.Context, ev models.PositionEvent) error
	SendAlarm(ctx context.Context, alarm models.ThresholdAlarm, price float64) error
	SendDailySummary(ctx context.Context, summary *DailySummary) error
	SendError(ctx context.Context, err error, context string) error
}

// NotificationChannel defines the interface for a notification channel.
type NotificationChannel interface {
	Name() string
	Send(ctx context.Context, n Notification) error
	IsEnabled() bool
}

// Notification represents a notification message.
type Notification struct {
	Type      NotificationType
	Title     string
	Message   string
	Data      map[string]interface{}
	Timestamp time.Time
}

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationDecision NotificationType = "decision"
	NotificationPosition NotificationType = "position"
	NotificationAlarm    NotificationType = "alarm"
	NotificationError    NotificationType = "error"
	NotificationSummary  NotificationType = "summary"
	NotificationInfo     NotificationType = "info"
)

// NotificationLevel represents the notification level filter.
type NotificationLevel string

const (
	LevelAll        NotificationLevel = "all"
	LevelTradesOnly NotificationLevel = "trades_only"
	LevelErrorsOnly NotificationLevel = "errors_only"
)

// DailySummary represents one day of engine activity.
type DailySummary struct {
	Date          string
	Decisions     map[models.Action]int
	ClosedTrades  int
	PartialExits  int
	Wins          int
	Losses        int
	RealizedPnL   float64
	OpenPositions int
	UsedRisk      float64
	RiskBudget    float64
}

// MultiNotifier sends notifications to multiple channels.
type MultiNotifier struct {
	channels []NotificationChannel
	level    NotificationLevel
	mu       sync.RWMutex
}

// formatTRY formats a currency value with Turkish digit grouping:
// dots between thousands groups, comma before the decimals.
func formatTRY(amount float64) string {
	negative := amount < 0
	if negative {
		amount = -amount
	}

	str := fmt.Sprintf("%.2f", amount)
	parts := strings.Split(str, ".")
	intPart := parts[0]
	decPart := parts[1]

	var groups []string
	for len(intPart) > 3 {
		groups = append([]string{intPart[len(intPart)-3:]}, groups...)
		intPart = intPart[:len(intPart)-3]
	}
	groups = append([]string{intPart}, groups...)

	result := "₺" + strings.Join(groups, ".") + "," + decPart
	if negative {
		result = "-" + result
	}
	return result
}

// NewMultiNotifier creates a new MultiNotifier with the given configuration.
func NewMultiNotifier(cfg *config.NotificationConfig) *MultiNotifier {
	mn := &MultiNotifier{
		channels: make([]NotificationChannel, 0),
		level:    NotificationLevel(cfg.Level),
	}

	if mn.level == "" {
		mn.level = LevelAll
	}

	// Add enabled channels
	if cfg.Webhook.Enabled {
		mn.channels = append(mn.channels, NewWebhookNotifier(cfg.Webhook))
	}
	if cfg.Telegram.Enabled {
		mn.channels = append(mn.channels, NewTelegramNotifier(cfg.Telegram))
	}

	return mn
}

// AddChannel adds a notification channel.
func (mn *MultiNotifier) AddChannel(ch NotificationChannel) {
	mn.mu.Lock()
	defer mn.mu.Unlock()
	mn.channels = append(mn.channels, ch)
}

// shouldSend checks if a notification should be sent based on the level filter.
func (mn *MultiNotifier) shouldSend(notifType NotificationType) bool {
	switch mn.level {
	case LevelTradesOnly:
		return notifType == NotificationDecision || notifType == NotificationPosition
	case LevelErrorsOnly:
		return notifType == NotificationError
	default:
		return true
	}
}

// Send sends a notification to all enabled channels.
func (mn *MultiNotifier) Send(ctx context.Context, n Notification) error {
	if !mn.shouldSend(n.Type) {
		return nil
	}

	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	mn.mu.RLock()
	channels := mn.channels
	mn.mu.RUnlock()

	var errs []string
	for _, ch := range channels {
		if ch.IsEnabled() {
			if err := ch.Send(ctx, n); err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", ch.Name(), err))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// SendDecision sends a decision alert.
func (mn *MultiNotifier) SendDecision(ctx context.Context, dec *models.Decision) error {
	var emoji string
	switch dec.Action {
	case models.ActionBuy:
		emoji = "🟢"
	case models.ActionSell:
		emoji = "🔴"
	default:
		emoji = "⚪"
	}

	title := fmt.Sprintf("%s %s: %s", emoji, dec.Action, dec.Symbol)

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Score: %d (%s)\n", dec.Score, dec.Preset))
	sb.WriteString(fmt.Sprintf("Price: %s\n", formatTRY(dec.Price)))

	if lv := dec.Levels; lv != nil {
		sb.WriteString(fmt.Sprintf("Entry: %s - %s\n", formatTRY(lv.EntryLow), formatTRY(lv.EntryHigh)))
		sb.WriteString(fmt.Sprintf("Stop: %s | T1: %s | T2: %s (RR %.1f)\n",
			formatTRY(lv.Stop), formatTRY(lv.Target1), formatTRY(lv.Target2), lv.RiskReward))
		sb.WriteString(fmt.Sprintf("Lot: %d (risk %s)\n", lv.Lot, formatTRY(lv.RiskAmount)))
	}
	if dec.RiskControls.Blocked() {
		sb.WriteString(fmt.Sprintf("Blocked: %s\n", dec.RiskControls.BlockReason))
	}
	if len(dec.Reasons) > 0 {
		sb.WriteString("Reasons:\n")
		for _, r := range dec.Reasons {
			sb.WriteString("• " + r + "\n")
		}
	}

	data := map[string]interface{}{
		"symbol": dec.Symbol,
		"action": dec.Action,
		"score":  dec.Score,
		"price":  dec.Price,
		"preset": dec.Preset,
	}
	if dec.Levels != nil {
		data["levels"] = dec.Levels
	}

	return mn.Send(ctx, Notification{
		Type:    NotificationDecision,
		Title:   title,
		Message: strings.TrimRight(sb.String(), "\n"),
		Data:    data,
	})
}

// SendPositionEvent sends a position lifecycle notification.
func (mn *MultiNotifier) SendPositionEvent(ctx context.Context, ev models.PositionEvent) error {
	var title string
	switch ev.Type {
	case models.EventOpen:
		title = fmt.Sprintf("📈 Position Opened: %s", ev.Symbol)
	case models.EventPartialTP1:
		title = fmt.Sprintf("💰 Partial Take-Profit: %s", ev.Symbol)
	default:
		title = fmt.Sprintf("🔔 Position Closed: %s (%s)", ev.Symbol, ev.Reason)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Price: %s\nLot: %d\n", formatTRY(ev.Price), ev.Lot))
	if ev.Type != models.EventOpen {
		sb.WriteString(fmt.Sprintf("P&L: %s\n", formatTRY(ev.PnL)))
	}
	if ev.Note != "" {
		sb.WriteString(ev.Note + "\n")
	}

	return mn.Send(ctx, Notification{
		Type:    NotificationPosition,
		Title:   title,
		Message: strings.TrimRight(sb.String(), "\n"),
		Data: map[string]interface{}{
			"symbol": ev.Symbol,
			"type":   ev.Type,
			"reason": ev.Reason,
			"price":  ev.Price,
			"lot":    ev.Lot,
			"pnl":    ev.PnL,
		},
	})
}

// SendAlarm sends a threshold alarm notification.
func (mn *MultiNotifier) SendAlarm(ctx context.Context, alarm models.ThresholdAlarm, price float64) error {
	emoji := "📉"
	if alarm.Direction == models.AlarmAbove {
		emoji = "📈"
	}

	title := fmt.Sprintf("%s Alarm: %s", emoji, alarm.Symbol)
	message := fmt.Sprintf("Price %s crossed %s the %s level at %s",
		formatTRY(price), alarm.Direction, alarm.Symbol, formatTRY(alarm.Level))

	return mn.Send(ctx, Notification{
		Type:    NotificationAlarm,
		Title:   title,
		Message: message,
		Data: map[string]interface{}{
			"symbol":    alarm.Symbol,
			"direction": alarm.Direction,
			"level":     alarm.Level,
			"price":     price,
		},
	})
}

// SendDailySummary sends a daily summary notification.
func (mn *MultiNotifier) SendDailySummary(ctx context.Context, summary *DailySummary) error {
	pnlEmoji := "📊"
	if summary.RealizedPnL > 0 {
		pnlEmoji = "💰"
	} else if summary.RealizedPnL < 0 {
		pnlEmoji = "📉"
	}

	title := fmt.Sprintf("%s Daily Summary - %s", pnlEmoji, summary.Date)

	winRate := 0.0
	if n := summary.Wins + summary.Losses; n > 0 {
		winRate = float64(summary.Wins) / float64(n) * 100
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Decisions: %d BUY / %d SELL / %d HOLD\n",
		summary.Decisions[models.ActionBuy], summary.Decisions[models.ActionSell],
		summary.Decisions[models.ActionHold]))
	sb.WriteString(fmt.Sprintf("Closed: %d (%d partial exits)\n", summary.ClosedTrades, summary.PartialExits))
	sb.WriteString(fmt.Sprintf("Wins: %d | Losses: %d | Win Rate: %.1f%%\n", summary.Wins, summary.Losses, winRate))
	sb.WriteString(fmt.Sprintf("Realized P&L: %s\n", formatTRY(summary.RealizedPnL)))
	sb.WriteString(fmt.Sprintf("Open Positions: %d\n", summary.OpenPositions))
	sb.WriteString(fmt.Sprintf("Risk Used: %s of %s", formatTRY(summary.UsedRisk), formatTRY(summary.RiskBudget)))

	return mn.Send(ctx, Notification{
		Type:    NotificationSummary,
		Title:   title,
		Message: sb.String(),
		Data: map[string]interface{}{
			"date":          summary.Date,
			"closed_trades": summary.ClosedTrades,
			"wins":          summary.Wins,
			"losses":        summary.Losses,
			"realized_pnl":  summary.RealizedPnL,
		},
	})
}

// SendError sends an error notification.
func (mn *MultiNotifier) SendError(ctx context.Context, err error, errContext string) error {
	title := "❌ Error Occurred"
	message := fmt.Sprintf("Context: %s\nError: %v\nTime: %s",
		errContext, err, time.Now().Format("15:04:05"))

	return mn.Send(ctx, Notification{
		Type:    NotificationError,
		Title:   title,
		Message: message,
		Data: map[string]interface{}{
			"context": errContext,
			"error":   err.Error(),
		},
	})
}

// WebhookNotifier sends notifications via HTTP webhook.
type WebhookNotifier struct {
	url     string
	enabled bool
	client  *http.Client
}

// NewWebhookNotifier creates a new WebhookNotifier.
func NewWebhookNotifier(cfg config.WebhookConfig) *WebhookNotifier {
	return &WebhookNotifier{
		url:     cfg.URL,
		enabled: cfg.Enabled && cfg.URL != "",
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Name returns the name of the notifier.
func (w *WebhookNotifier) Name() string {
	return "webhook"
}

// IsEnabled returns whether the notifier is enabled.
func (w *WebhookNotifier) IsEnabled() bool {
	return w.enabled
}

// Send sends a notification via webhook.
func (w *WebhookNotifier) Send(ctx context.Context, n Notification) error {
	if !w.enabled {
		return nil
	}

	payload := map[string]interface{}{
		"type":      n.Type,
		"title":     n.Title,
		"message":   n.Message,
		"data":      n.Data,
		"timestamp": n.Timestamp.Format(time.RFC3339),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "BISTSentinel/1.0")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending webhook: %w", security.RedactError(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}

// TelegramNotifier sends notifications via Telegram bot.
type TelegramNotifier struct {
	botToken string
	chatID   string
	apiBase  string
	enabled  bool
	client   *http.Client
}

// NewTelegramNotifier creates a new TelegramNotifier.
func NewTelegramNotifier(cfg config.TelegramConfig) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: cfg.BotToken,
		chatID:   cfg.ChatID,
		apiBase:  "https://api.telegram.org",
		enabled:  cfg.Enabled && cfg.BotToken != "" && cfg.ChatID != "",
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Name returns the name of the notifier.
func (t *TelegramNotifier) Name() string {
	return "telegram"
}

// IsEnabled returns whether the notifier is enabled.
func (t *TelegramNotifier) IsEnabled() bool {
	return t.enabled
}

// Send sends a notification via Telegram.
func (t *TelegramNotifier) Send(ctx context.Context, n Notification) error {
	if !t.enabled {
		return nil
	}

	// Format message for Telegram (using HTML parse mode)
	text := fmt.Sprintf("<b>%s</b>\n\n%s", escapeHTML(n.Title), escapeHTML(n.Message))

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.botToken)

	payload := map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "HTML",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling telegram payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating telegram request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		// The bot token sits in the request path, keep it out of the chain.
		return fmt.Errorf("sending telegram message: %w", security.RedactError(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}

	return nil
}

// escapeHTML escapes HTML special characters for Telegram.
func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

// NoOpNotifier is a notifier that does nothing (for testing or disabled notifications).
type NoOpNotifier struct{}

// NewNoOpNotifier creates a new NoOpNotifier.
func NewNoOpNotifier() *NoOpNotifier {
	return &NoOpNotifier{}
}

// Send does nothing.
func (n *NoOpNotifier) Send(ctx context.Context, notif Notification) error {
	return nil
}

// SendDecision does nothing.
func (n *NoOpNotifier) SendDecision(ctx context.Context, dec *models.Decision) error {
	return nil
}

// SendPositionEvent does nothing.
func (n *NoOpNotifier) SendPositionEvent(ctx context.Context, ev models.PositionEvent) error {
	return nil
}

// SendAlarm does nothing.
func (n *NoOpNotifier) SendAlarm(ctx context.Context, alarm models.ThresholdAlarm, price float64) error {
	return nil
}

// SendDailySummary does nothing.
func (n *NoOpNotifier) SendDailySummary(ctx context.Context, summary *DailySummary) error {
	return nil
}

// SendError does nothing.
func (n *NoOpNotifier) SendError(ctx context.Context, err error, context string) error {
	return nil
}
