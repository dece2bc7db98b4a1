package alerts

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/deepstock/internal/common"
	"github.com/ternarybob/deepstock/internal/httpclient"
	"github.com/ternarybob/deepstock/internal/models"
)

// telegramMaxMessage stays under the Bot API limit of 4096 characters
const telegramMaxMessage = 4000

// TelegramChannel posts alerts through the Telegram Bot API in HTML parse mode
type TelegramChannel struct {
	client *httpclient.Client
	token  string
	chatID string
	logger arbor.ILogger
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// NewTelegramChannel creates a Telegram channel
func NewTelegramChannel(cfg common.TelegramConfig, logger arbor.ILogger, opts ...httpclient.ClientOption) *TelegramChannel {
	opts = append([]httpclient.ClientOption{
		httpclient.WithLogger(logger),
		httpclient.WithRateLimit(1),
		httpclient.WithUserAgent(common.UserAgent()),
	}, opts...)

	return &TelegramChannel{
		client: httpclient.NewClient("telegram", strings.TrimRight(cfg.BaseURL, "/")+"/bot"+cfg.BotToken, opts...),
		token:  cfg.BotToken,
		chatID: cfg.ChatID,
		logger: logger,
	}
}

func (t *TelegramChannel) Name() string {
	return "telegram"
}

// Send posts the alert, split into chunks on line boundaries when too long.
// The first failing chunk aborts the send.
func (t *TelegramChannel) Send(ctx context.Context, alert *models.Alert) error {
	chunks := SplitMessage(alert.HTML, telegramMaxMessage)
	for i, chunk := range chunks {
		var resp sendMessageResponse
		err := t.client.PostJSON(ctx, "/sendMessage", sendMessageRequest{
			ChatID:                t.chatID,
			Text:                  chunk,
			ParseMode:             "HTML",
			DisableWebPagePreview: true,
		}, &resp)
		if err != nil {
			return t.redact(fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err))
		}
		if !resp.OK {
			return fmt.Errorf("telegram API error: %s", orDefault(resp.Description, "unknown"))
		}
	}

	t.logger.Info().
		Str("chat_id", t.chatID).
		Str("kind", string(alert.Kind)).
		Int("chunks", len(chunks)).
		Msg("Sent Telegram alert")
	return nil
}

// redact keeps the bot token out of errors and logs
func (t *TelegramChannel) redact(err error) error {
	if t.token == "" || !strings.Contains(err.Error(), t.token) {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(err.Error(), t.token, "<token>"), err: err}
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

// SplitMessage splits text into chunks of at most limit bytes, preferring to break
// at the last newline before the limit.
func SplitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	for text != "" {
		if len(text) <= limit {
			chunks = append(chunks, text)
			break
		}

		split := strings.LastIndex(text[:limit], "\n")
		if split <= 0 {
			split = safeCut(text, limit)
		}
		chunks = append(chunks, text[:split])
		text = strings.TrimLeft(text[split:], "\n")
	}
	return chunks
}

// safeCut backs off to a UTF-8 rune boundary at or before limit
func safeCut(text string, limit int) int {
	cut := limit
	for cut > 0 && !isRuneStart(text[cut]) {
		cut--
	}
	if cut == 0 {
		return limit
	}
	return cut
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
