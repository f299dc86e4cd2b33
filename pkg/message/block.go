package message

import "encoding/json"

// BlockKind discriminates the variant stored in a Block.
type BlockKind string

// Supported block kinds.
const (
	KindText     BlockKind = "text"
	KindImage    BlockKind = "image"
	KindAudio    BlockKind = "audio"
	KindFile     BlockKind = "file"
	KindLocation BlockKind = "location"
	KindReaction BlockKind = "reaction"
	KindRaw      BlockKind = "raw"
)

// Block is a flat union holding one piece of message content.
// Kind selects which fields are meaningful; the rest stay zero.
type Block struct {
	Kind     BlockKind       `json:"kind"`
	Text     string          `json:"text,omitempty"`
	URL      string          `json:"url,omitempty"`
	MIMEType string          `json:"mime_type,omitempty"`
	FileName string          `json:"file_name,omitempty"`
	Caption  string          `json:"caption,omitempty"`
	Voice    bool            `json:"voice,omitempty"`
	Lat      *float64        `json:"lat,omitempty"`
	Lon      *float64        `json:"lon,omitempty"`
	Emoji    string          `json:"emoji,omitempty"`
	Raw      json.RawMessage `json:"raw,omitempty"`
}

// TextBlock builds a text block.
func TextBlock(text string) Block {
	return Block{Kind: KindText, Text: text}
}

// ImageBlock builds an image block referencing downloadable content.
func ImageBlock(url, mimeType string) Block {
	return Block{Kind: KindImage, URL: url, MIMEType: mimeType}
}

// AudioBlock builds an audio block. voice marks Telegram-style voice notes.
func AudioBlock(url, mimeType string, voice bool) Block {
	return Block{Kind: KindAudio, URL: url, MIMEType: mimeType, Voice: voice}
}

// FileBlock builds a document block.
func FileBlock(url, mimeType, fileName string) Block {
	return Block{Kind: KindFile, URL: url, MIMEType: mimeType, FileName: fileName}
}

// LocationBlock builds a location block.
func LocationBlock(lat, lon float64) Block {
	return Block{Kind: KindLocation, Lat: &lat, Lon: &lon}
}

// ReactionBlock builds an emoji reaction block.
func ReactionBlock(emoji string) Block {
	return Block{Kind: KindReaction, Emoji: emoji}
}

// RawBlock builds a block carrying opaque channel-specific JSON.
// The payload is copied so callers may reuse their buffer.
func RawBlock(data json.RawMessage) Block {
	cp := make(json.RawMessage, len(data))
	copy(cp, data)
	return Block{Kind: KindRaw, Raw: cp}
}

// joinText concatenates the text of all text blocks, newline separated.
func joinText(blocks []Block) string {
	var out string
	for _, b := range blocks {
		if b.Kind != KindText || b.Text == "" {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += b.Text
	}
	return out
}

// hasAttachment reports whether any block carries media content.
func hasAttachment(blocks []Block) bool {
	for _, b := range blocks {
		switch b.Kind {
		case KindImage, KindAudio, KindFile, KindLocation:
			return true
		}
	}
	return false
}
