package adapter

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	kit "reviewbot/internal/transport"
	logx "reviewbot/pkg/logx"
)

// Config configures a send-only Telegram bot.
type Config struct {
	Token string
	// URL overrides the Bot API endpoint (tests, local bot API servers).
	URL string
	// Offline skips the getMe call on construction.
	Offline bool
	// Client is the HTTP client used for Bot API calls. Nil uses a client with
	// a generous timeout; the transport's own defaults apply to every send.
	Client *http.Client
}

// Adapter is a send-only Telegram bot. The process never consumes updates,
// so no poller is started.
type Adapter struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	b, err := tele.NewBot(tele.Settings{
		URL:     cfg.URL,
		Token:   cfg.Token,
		Client:  client,
		Offline: cfg.Offline,
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{cfg: cfg, log: log, bot: b}
	if !cfg.Offline && b.Me != nil {
		a.log.Info("telegram bot ready", logx.String("username", b.Me.Username))
	}
	return a, nil
}

// recipient lets telebot address chats by their textual id ("123", "-100..", "@name").
type recipient string

func (r recipient) Recipient() string { return string(r) }

const telegramTextLimit = 4000

// splitTelegramText splits long messages into chunks that are safe to send to Telegram.
// It prefers newline boundaries.
func splitTelegramText(s string, limit int) []string {
	if limit <= 0 {
		limit = telegramTextLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := min(start+limit, len(rs))

		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				// Avoid extremely small chunks.
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}

		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))

		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}

// SendText sends text to the target chat, splitting it when it exceeds the
// Telegram message limit. The reference of the first message is returned.
func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	if to.IsZero() {
		return kit.MessageRef{}, errors.New("telegram: empty chat id")
	}

	chat := recipient(strings.TrimSpace(to.ChatID))

	var first kit.MessageRef
	for i, chunk := range splitTelegramText(text, telegramTextLimit) {
		if ctx != nil {
			if err := ctx.Err(); err != nil {
				return first, err
			}
		}

		msg, err := a.bot.Send(chat, chunk, &tele.SendOptions{
			ParseMode:             opt.ParseMode,
			DisableWebPagePreview: opt.DisablePreview,
			ThreadID:              to.ThreadID,
		})
		if err != nil {
			return first, err
		}
		if i == 0 {
			first = kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}
		}
	}

	a.log.Debug("message sent", logx.String("chat_id", to.ChatID), logx.Int("message_id", first.MessageID))
	return first, nil
}
