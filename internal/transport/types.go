package transport

import "context"

// ChatTarget addresses a chat on the messaging platform.
// ChatID is kept as text so both numeric ids and "@channel" names work.
type ChatTarget struct {
	ChatID   string
	ThreadID int // telegram forum topic thread id (0 if none)
}

func (t ChatTarget) IsZero() bool { return t.ChatID == "" }

type MessageRef struct {
	ChatID    string
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Sender delivers a text message to a chat. Implementations do not retry.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}
