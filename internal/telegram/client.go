// Package telegram provides a client for sending notifications via Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Client handles Telegram notifications.
type Client struct {
	bot            *tgbotapi.BotAPI
	sender         messageSender
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
	sleep          func(time.Duration)
}

type messageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// NewClient creates a new Telegram client.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		sender:         bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
		sleep:          time.Sleep,
	}, nil
}

// ListenForCommands starts a goroutine that polls for Telegram updates and handles bot commands.
// It returns immediately; the goroutine stops when ctx is cancelled.
// status supplies the reply to /status.
func (c *Client) ListenForCommands(ctx context.Context, status func() string) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil && update.Message.IsCommand() {
					c.handleCommand(update.Message, status)
				}
			}
		}
	}()
}

func (c *Client) handleCommand(msg *tgbotapi.Message, status func() string) {
	if reply, ok := commandReply(msg.Command(), status); ok {
		c.bot.Send(tgbotapi.NewMessage(msg.Chat.ID, reply)) //nolint:errcheck
	}
}

func commandReply(command string, status func() string) (string, bool) {
	switch command {
	case "ping":
		return "Pong", true
	case "status":
		if status == nil {
			return "No cycle has completed yet", true
		}
		return status(), true
	}
	return "", false
}

// send delivers msg with linear-backoff retry. No delay follows the final
// attempt.
func (c *Client) send(msg tgbotapi.MessageConfig) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if i > 0 {
			c.sleep(c.retryDelayBase * time.Duration(i))
		}
		if _, err := c.sender.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

func (c *Client) sendMarkdownV2(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = "MarkdownV2"
	return c.send(msg)
}

// SendText sends a plain-text message, used for signal alerts so the
// Telegram and console renderings match.
func (c *Client) SendText(text string) error {
	return c.send(tgbotapi.NewMessage(c.chatID, text))
}

// SendError sends a monitoring error notification.
// Call this only on the first occurrence of a consecutive error sequence.
func (c *Client) SendError(cycleErr error) error {
	return c.sendMarkdownV2(formatError(cycleErr))
}

// SendRecovery sends a recovery notification after consecutive failures.
func (c *Client) SendRecovery(failureCount int) error {
	return c.sendMarkdownV2(formatRecovery(failureCount))
}

// SendStartup announces the running configuration.
func (c *Client) SendStartup(summary string) error {
	return c.sendMarkdownV2(formatStartup(summary))
}

func formatError(cycleErr error) string {
	return fmt.Sprintf("⚠️ *Monitoring error*\n`%s`", escapeMarkdownV2(cycleErr.Error()))
}

func formatRecovery(failureCount int) string {
	return fmt.Sprintf("✅ *Monitoring recovered* after %d consecutive failure\\(s\\)", failureCount)
}

func formatStartup(summary string) string {
	return fmt.Sprintf("🚀 *Volume spike monitor started*\n%s", escapeMarkdownV2(summary))
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
