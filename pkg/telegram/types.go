package telegram

import "strconv"

// Update is one inbound event from the Bot API. UpdateID is unique and
// monotonically increasing per bot, which makes it a natural idempotency key
// for webhook deliveries.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

// Message is an inbound or outbound chat message.
type Message struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from,omitempty"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text,omitempty"`
}

// User is a Telegram account.
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	Username  string `json:"username,omitempty"`
}

// Chat is the conversation a message belongs to.
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// SenderID returns the sender's id as a string, or "" for channel posts and
// other updates without a sender.
func (u Update) SenderID() string {
	if u.Message == nil || u.Message.From == nil {
		return ""
	}
	return strconv.FormatInt(u.Message.From.ID, 10)
}

// ChatID returns the chat id as a string, or "".
func (u Update) ChatID() string {
	if u.Message == nil {
		return ""
	}
	return strconv.FormatInt(u.Message.Chat.ID, 10)
}
