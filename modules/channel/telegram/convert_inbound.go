package telegram

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/heraldbot/herald/pkg/message"
)

// fileIDRef returns a reference URI for a Telegram file_id. It is NOT a
// download URL; consumers must resolve it through Client.GetFile and
// Client.FileURL. The tg://file_id/ scheme signals this.
func fileIDRef(fileID string) string {
	return "tg://file_id/" + fileID
}

// convertInbound transforms a Telegram Update into a platform-agnostic
// InboundMessage.
func convertInbound(update *Update, botUsername, channelName string) (message.InboundMessage, error) {
	msg := extractMessage(update)
	if msg == nil {
		return message.InboundMessage{}, fmt.Errorf("telegram: update %d contains no message", update.UpdateID)
	}

	raw, err := json.Marshal(update)
	if err != nil {
		return message.InboundMessage{}, fmt.Errorf("telegram: marshal update: %w", err)
	}

	inbound := message.InboundMessage{
		ID:        strconv.Itoa(msg.MessageID),
		Timestamp: time.Unix(int64(msg.Date), 0),
		Channel:   channelName,
		Sender:    convertSender(msg.From),
		Chat:      convertChat(msg.Chat),
		Raw:       raw,
	}

	if msg.MessageThreadID != 0 {
		inbound.ThreadID = strconv.Itoa(msg.MessageThreadID)
	}
	if msg.ReplyToMessage != nil {
		inbound.ReplyToID = strconv.Itoa(msg.ReplyToMessage.MessageID)
	}

	inbound.Blocks = convertBlocks(msg)
	inbound.Mentions = extractMentions(msg, botUsername)

	return inbound, nil
}

// extractMessage returns the actual message from an Update, checking
// Message, EditedMessage, and ChannelPost in order.
func extractMessage(update *Update) *Message {
	if update.Message != nil {
		return update.Message
	}
	if update.EditedMessage != nil {
		return update.EditedMessage
	}
	return update.ChannelPost
}

// convertSender maps a Telegram User to a platform-agnostic Sender.
func convertSender(user *User) message.Sender {
	if user == nil {
		return message.Sender{}
	}
	displayName := user.FirstName
	if user.LastName != "" {
		displayName += " " + user.LastName
	}
	return message.Sender{
		ID:          strconv.FormatInt(user.ID, 10),
		Username:    user.Username,
		DisplayName: displayName,
		IsBot:       user.IsBot,
	}
}

// convertChat maps a Telegram Chat to a platform-agnostic Chat.
func convertChat(chat Chat) message.Chat {
	return message.Chat{
		ID:    strconv.FormatInt(chat.ID, 10),
		Kind:  mapChatKind(chat.Type),
		Title: chat.Title,
	}
}

// mapChatKind converts Telegram chat type strings to message.ChatKind.
func mapChatKind(tgType string) message.ChatKind {
	switch tgType {
	case "private":
		return message.KindDM
	case "group", "supergroup":
		return message.KindGroup
	case "channel":
		return message.KindBroadcast
	default:
		return message.KindGroup
	}
}

// convertBlocks builds content blocks from a Telegram message. Media
// URLs use a tg://file_id/ reference resolved lazily via GetFile.
func convertBlocks(msg *Message) []message.Block {
	var blocks []message.Block

	switch {
	case len(msg.Photo) > 0:
		largest := msg.Photo[len(msg.Photo)-1]
		blocks = append(blocks, message.ImageBlock(fileIDRef(largest.FileID), ""))
	case msg.Audio != nil:
		blocks = append(blocks, message.AudioBlock(fileIDRef(msg.Audio.FileID), msg.Audio.MIMEType, false))
	case msg.Voice != nil:
		blocks = append(blocks, message.AudioBlock(fileIDRef(msg.Voice.FileID), msg.Voice.MIMEType, true))
	case msg.Document != nil:
		blocks = append(blocks, message.FileBlock(fileIDRef(msg.Document.FileID), msg.Document.MIMEType, msg.Document.FileName))
	case msg.Location != nil:
		blocks = append(blocks, message.LocationBlock(msg.Location.Latitude, msg.Location.Longitude))
	case msg.Sticker != nil:
		blocks = append(blocks, convertSticker(msg.Sticker))
	}

	// Caption rides as a text block after the media block.
	if msg.Caption != "" {
		blocks = append(blocks, message.TextBlock(msg.Caption))
	}

	if len(blocks) == 0 && msg.Text != "" {
		blocks = append(blocks, message.TextBlock(msg.Text))
	}

	return blocks
}

// convertSticker creates a raw block from a Telegram Sticker.
func convertSticker(sticker *Sticker) message.Block {
	data, _ := json.Marshal(struct {
		SetName string `json:"set_name,omitempty"`
		Emoji   string `json:"emoji,omitempty"`
		FileID  string `json:"file_id"`
	}{
		SetName: sticker.SetName,
		Emoji:   sticker.Emoji,
		FileID:  sticker.FileID,
	})

	block := message.RawBlock(data)
	block.Emoji = sticker.Emoji
	return block
}

// extractMentions scans message entities for mentions and detects
// whether the bot itself was addressed.
func extractMentions(msg *Message, botUsername string) message.Mentions {
	entities := msg.Entities
	if entities == nil {
		entities = msg.CaptionEntities
	}
	if len(entities) == 0 {
		return message.Mentions{}
	}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}

	var mentions message.Mentions

	for _, ent := range entities {
		switch ent.Type {
		case "mention":
			// @username mentions carry the username in the text itself.
			username := extractEntityText(text, ent.Offset, ent.Length)
			username = strings.TrimPrefix(username, "@")
			if username != "" {
				mentions.UserIDs = append(mentions.UserIDs, username)
				if strings.EqualFold(username, botUsername) {
					mentions.Bot = true
				}
			}
		case "text_mention":
			// Mentions of users without a username carry the User object.
			if ent.User != nil {
				mentions.UserIDs = append(mentions.UserIDs, strconv.FormatInt(ent.User.ID, 10))
			}
		}
	}

	return mentions
}

// extractEntityText slices text using UTF-16 code unit offsets, which is
// what Telegram uses for entity positions. Converting through UTF-16
// keeps offsets correct when the text contains non-BMP characters.
func extractEntityText(text string, offset, length int) string {
	encoded := utf16.Encode([]rune(text))
	if offset >= len(encoded) {
		return ""
	}
	end := offset + length
	if end > len(encoded) {
		end = len(encoded)
	}
	return string(utf16.Decode(encoded[offset:end]))
}
