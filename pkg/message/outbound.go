package message

// OutboundMessage is a message to be delivered through a channel.
// Channel names the target channel module; the dispatcher routes on it.
type OutboundMessage struct {
	Channel   string  `json:"channel,omitempty"`
	Chat      Chat    `json:"chat"`
	ThreadID  string  `json:"thread_id,omitempty"`
	ReplyToID string  `json:"reply_to_id,omitempty"`
	Blocks    []Block `json:"blocks"`
	Hints     Hints   `json:"hints,omitzero"`
}

// Hints carries optional delivery options a channel may honor.
// The zero value means no hints.
type Hints struct {
	DisablePreview      bool   `json:"disable_preview,omitempty"`
	DisableNotification bool   `json:"disable_notification,omitempty"`
	ParseMode           string `json:"parse_mode,omitempty"`
}

// Reply builds an outbound text message answering an inbound one,
// preserving channel, thread, and reply linkage.
func Reply(to InboundMessage, text string) OutboundMessage {
	return OutboundMessage{
		Channel:   to.Channel,
		Chat:      to.Chat,
		ThreadID:  to.ThreadID,
		ReplyToID: to.ID,
		Blocks:    []Block{TextBlock(text)},
	}
}

// Text builds an outbound message with a single text block.
func Text(chat Chat, text string) OutboundMessage {
	return OutboundMessage{
		Chat:   chat,
		Blocks: []Block{TextBlock(text)},
	}
}

// TextContent returns the concatenated text of all text blocks.
func (m *OutboundMessage) TextContent() string {
	return joinText(m.Blocks)
}

// HasAttachment reports whether the message carries media blocks.
func (m *OutboundMessage) HasAttachment() bool {
	return hasAttachment(m.Blocks)
}
