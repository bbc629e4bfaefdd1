package notifier

import (
	"bytes"
	"fmt"
	"net/http"
	"net/smtp"
	"strconv"
	"sync"
	"time"

	"lyrics-sync-go/config"
	"lyrics-sync-go/logcolors"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

// Notifier delivers an alert to an operator
type Notifier interface {
	Name() string
	Send(subject, message string) error
}

var httpClient = &http.Client{Timeout: 10 * time.Second}

// =============================================================================
// EMAIL NOTIFIER
// =============================================================================

type EmailNotifier struct {
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	FromEmail    string
	ToEmail      string
}

func (e *EmailNotifier) Name() string { return "email" }

func (e *EmailNotifier) Send(subject, message string) error {
	auth := smtp.PlainAuth("", e.SMTPUsername, e.SMTPPassword, e.SMTPHost)

	msg := []byte(fmt.Sprintf("From: %s\r\n"+
		"To: %s\r\n"+
		"Subject: %s\r\n"+
		"\r\n"+
		"%s\r\n", e.FromEmail, e.ToEmail, subject, message))

	addr := e.SMTPHost + ":" + e.SMTPPort
	if err := smtp.SendMail(addr, auth, e.FromEmail, []string{e.ToEmail}, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	log.Infof("%s Email notification sent to %s", logcolors.LogNotifier, e.ToEmail)
	return nil
}

// =============================================================================
// TELEGRAM NOTIFIER
// =============================================================================

type TelegramNotifier struct {
	BotToken    string
	ChatID      string
	APIEndpoint string // Default: tgbotapi.APIEndpoint

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

func (t *TelegramNotifier) Name() string { return "telegram" }

// client connects on first use; the constructor calls getMe
func (t *TelegramNotifier) client() (*tgbotapi.BotAPI, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.bot != nil {
		return t.bot, nil
	}
	endpoint := t.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	bot, err := tgbotapi.NewBotAPIWithClient(t.BotToken, endpoint, httpClient)
	if err != nil {
		return nil, fmt.Errorf("failed to connect telegram bot: %w", err)
	}
	t.bot = bot
	return bot, nil
}

func (t *TelegramNotifier) Send(subject, message string) error {
	chatID, err := strconv.ParseInt(t.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", t.ChatID, err)
	}

	bot, err := t.client()
	if err != nil {
		return err
	}

	text := fmt.Sprintf("*%s*\n\n%s",
		tgbotapi.EscapeText(tgbotapi.ModeMarkdown, subject),
		tgbotapi.EscapeText(tgbotapi.ModeMarkdown, message))
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}

	log.Infof("%s Telegram notification sent to chat %s", logcolors.LogNotifier, t.ChatID)
	return nil
}

// =============================================================================
// NTFY.SH NOTIFIER
// =============================================================================

type NtfyNotifier struct {
	Topic  string
	Server string // Default: https://ntfy.sh
}

func (n *NtfyNotifier) Name() string { return "ntfy" }

func (n *NtfyNotifier) Send(subject, message string) error {
	server := n.Server
	if server == "" {
		server = "https://ntfy.sh"
	}

	req, err := http.NewRequest(http.MethodPost, server+"/"+n.Topic, bytes.NewBufferString(message))
	if err != nil {
		return fmt.Errorf("failed to create ntfy request: %w", err)
	}
	req.Header.Set("Title", subject)
	req.Header.Set("Priority", "high")
	req.Header.Set("Tags", "musical_note")

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ntfy returned status %d", resp.StatusCode)
	}

	log.Infof("%s Ntfy notification sent to topic %s", logcolors.LogNotifier, n.Topic)
	return nil
}

// FromConfig builds every notifier whose settings are present
func FromConfig(conf config.Config) []Notifier {
	c := conf.Notifiers
	var notifiers []Notifier

	if c.SMTPHost != "" {
		notifiers = append(notifiers, &EmailNotifier{
			SMTPHost:     c.SMTPHost,
			SMTPPort:     c.SMTPPort,
			SMTPUsername: c.SMTPUsername,
			SMTPPassword: c.SMTPPassword,
			FromEmail:    c.FromEmail,
			ToEmail:      c.ToEmail,
		})
	}
	if c.TelegramBotToken != "" {
		notifiers = append(notifiers, &TelegramNotifier{
			BotToken: c.TelegramBotToken,
			ChatID:   c.TelegramChatID,
		})
	}
	if c.NtfyTopic != "" {
		notifiers = append(notifiers, &NtfyNotifier{
			Topic:  c.NtfyTopic,
			Server: c.NtfyServer,
		})
	}

	for _, n := range notifiers {
		log.Infof("%s %s notifier enabled", logcolors.LogNotifier, n.Name())
	}
	return notifiers
}
