package telegram

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func TestEscapeMarkdownV2(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello World"},
		{"Hello_World", "Hello\\_World"},
		{"Test*bold*", "Test\\*bold\\*"},
		{"Price: $100.50", "Price: $100\\.50"},
		{"[link](url)", "\\[link\\]\\(url\\)"},
		{"~strikethrough~", "\\~strikethrough\\~"},
		{"`code`", "\\`code\\`"},
		{">blockquote", "\\>blockquote"},
		{"#header", "\\#header"},
		{"+plus-minus", "\\+plus\\-minus"},
		{"=equal|pipe", "\\=equal\\|pipe"},
		{"{brace}", "\\{brace\\}"},
		{"end!", "end\\!"},
		{"", ""},
		{"_*[]()~`>#+-=|{}.!", "\\_\\*\\[\\]\\(\\)\\~\\`\\>\\#\\+\\-\\=\\|\\{\\}\\.\\!"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := escapeMarkdownV2(tt.input)
			if result != tt.expected {
				t.Errorf("escapeMarkdownV2(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNewClient_InvalidChatID(t *testing.T) {
	// Chat ID is parsed before the bot token is checked, so no network call
	// is made here.
	_, err := NewClient("", "not-a-number", 3, time.Second)
	if err == nil {
		t.Fatal("Expected error for invalid chat ID, got nil")
	}
	if !strings.Contains(err.Error(), "invalid chat ID") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFormatError(t *testing.T) {
	got := formatError(errors.New("fetch failed: 502"))
	want := "⚠️ *Monitoring error*\n`fetch failed: 502`"
	if got != want {
		t.Errorf("formatError = %q, want %q", got, want)
	}
}

func TestFormatRecovery(t *testing.T) {
	got := formatRecovery(3)
	if !strings.Contains(got, "after 3 consecutive failure\\(s\\)") {
		t.Errorf("formatRecovery = %q", got)
	}
}

func TestFormatStartup(t *testing.T) {
	got := formatStartup("Volume: sigma>=2.0, 20 periods")
	if !strings.HasPrefix(got, "🚀 *Volume spike monitor started*\n") {
		t.Errorf("missing header: %q", got)
	}
	if !strings.Contains(got, "sigma\\>\\=2\\.0") {
		t.Errorf("summary not escaped: %q", got)
	}
}

func TestCommandReply(t *testing.T) {
	tests := []struct {
		command string
		status  func() string
		want    string
		ok      bool
	}{
		{"ping", nil, "Pong", true},
		{"status", func() string { return "cycle 4: 2 signals" }, "cycle 4: 2 signals", true},
		{"status", nil, "No cycle has completed yet", true},
		{"unknown", nil, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			got, ok := commandReply(tt.command, tt.status)
			if got != tt.want || ok != tt.ok {
				t.Errorf("commandReply(%q) = (%q, %v), want (%q, %v)", tt.command, got, ok, tt.want, tt.ok)
			}
		})
	}
}

type flakySender struct {
	failures int
	calls    int
}

func (f *flakySender) Send(tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.calls++
	if f.calls <= f.failures {
		return tgbotapi.Message{}, errors.New("Too Many Requests: retry after 1")
	}
	return tgbotapi.Message{}, nil
}

func newRetryClient(sender messageSender, sleeps *[]time.Duration) *Client {
	return &Client{
		sender:         sender,
		chatID:         1,
		maxRetries:     3,
		retryDelayBase: time.Second,
		sleep:          func(d time.Duration) { *sleeps = append(*sleeps, d) },
	}
}

func TestSend_NoDelayAfterFinalAttempt(t *testing.T) {
	var sleeps []time.Duration
	sender := &flakySender{failures: 10}
	c := newRetryClient(sender, &sleeps)

	err := c.SendText("hello")
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if sender.calls != 3 {
		t.Errorf("calls = %d, want 3", sender.calls)
	}
	want := []time.Duration{time.Second, 2 * time.Second}
	if !reflect.DeepEqual(sleeps, want) {
		t.Errorf("sleeps = %v, want %v", sleeps, want)
	}
}

func TestSend_RecoversOnRetry(t *testing.T) {
	var sleeps []time.Duration
	sender := &flakySender{failures: 1}
	c := newRetryClient(sender, &sleeps)

	if err := c.SendText("hello"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if sender.calls != 2 {
		t.Errorf("calls = %d, want 2", sender.calls)
	}
	if !reflect.DeepEqual(sleeps, []time.Duration{time.Second}) {
		t.Errorf("sleeps = %v, want [1s]", sleeps)
	}
}
