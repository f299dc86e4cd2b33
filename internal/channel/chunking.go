package channel

import (
	"strings"

	"github.com/heraldbot/herald/pkg/message"
)

// ChunkConfig controls how outbound messages are split when they exceed
// a platform's maximum message length.
type ChunkConfig struct {
	// MaxLength is the maximum number of bytes per chunk.
	// A value <= 0 means no splitting.
	MaxLength int

	// PreserveBlocks keeps fenced code blocks intact when the whole
	// block fits within MaxLength. Oversized blocks still get split.
	PreserveBlocks bool
}

// SplitMessage splits an outbound message into messages that each
// respect cfg.MaxLength. Non-text blocks ride along on the first chunk.
// A message that already fits comes back as a single-element slice.
func SplitMessage(msg message.OutboundMessage, cfg ChunkConfig) []message.OutboundMessage {
	if cfg.MaxLength <= 0 {
		return []message.OutboundMessage{msg}
	}

	var textParts []string
	var nonText []message.Block
	for _, b := range msg.Blocks {
		if b.Kind == message.KindText {
			textParts = append(textParts, b.Text)
		} else {
			nonText = append(nonText, b)
		}
	}

	fullText := strings.Join(textParts, "\n")
	if len(fullText) <= cfg.MaxLength {
		return []message.OutboundMessage{msg}
	}

	chunks := splitText(fullText, cfg)

	var result []message.OutboundMessage
	for i, chunk := range chunks {
		out := message.OutboundMessage{
			Channel:   msg.Channel,
			Chat:      msg.Chat,
			ThreadID:  msg.ThreadID,
			ReplyToID: msg.ReplyToID,
			Hints:     msg.Hints,
		}

		var blocks []message.Block
		if i == 0 {
			blocks = append(blocks, nonText...)
		}
		blocks = append(blocks, message.TextBlock(chunk))
		out.Blocks = blocks

		result = append(result, out)
	}

	return result
}

// segment is a run of lines. Fenced segments are packed atomically when
// they fit within the limit.
type segment struct {
	text   string
	fenced bool
}

// splitText breaks text into chunks of at most cfg.MaxLength bytes,
// splitting at line boundaries where possible.
func splitText(text string, cfg ChunkConfig) []string {
	var segs []segment
	if cfg.PreserveBlocks {
		segs = fenceSegments(text)
	} else {
		segs = []segment{{text: text}}
	}
	return packSegments(segs, cfg.MaxLength)
}

// fenceSegments partitions text into plain runs and fenced code blocks.
// The opening and closing ``` lines belong to the block. An unterminated
// fence runs to the end of the text.
func fenceSegments(text string) []segment {
	lines := strings.Split(text, "\n")

	var segs []segment
	var cur []string
	fenced := false

	flush := func() {
		if len(cur) > 0 {
			segs = append(segs, segment{text: strings.Join(cur, "\n"), fenced: fenced})
			cur = nil
		}
	}

	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			if !fenced {
				flush()
				fenced = true
				cur = append(cur, line)
			} else {
				cur = append(cur, line)
				flush()
				fenced = false
			}
			continue
		}
		cur = append(cur, line)
	}
	flush()
	return segs
}

// packSegments greedily packs segments into chunks. A fenced segment
// that fits within maxLen is placed whole, starting a new chunk if
// needed; everything else splits at line boundaries, with single
// oversized lines hard-split.
func packSegments(segs []segment, maxLen int) []string {
	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, strings.TrimRight(current.String(), "\n"))
			current.Reset()
		}
	}

	for _, seg := range segs {
		if seg.fenced && len(seg.text) <= maxLen {
			if current.Len()+len(seg.text)+1 > maxLen {
				flush()
			}
			current.WriteString(seg.text)
			current.WriteString("\n")
			continue
		}

		for _, line := range strings.Split(seg.text, "\n") {
			lineWithNewline := line + "\n"
			if current.Len()+len(lineWithNewline) > maxLen {
				flush()
				if len(lineWithNewline) > maxLen {
					chunks = append(chunks, forceSplit(line, maxLen)...)
					continue
				}
			}
			current.WriteString(lineWithNewline)
		}
	}

	flush()
	return chunks
}

// forceSplit breaks a single long line into pieces of at most maxLen bytes.
func forceSplit(line string, maxLen int) []string {
	var parts []string
	for len(line) > maxLen {
		parts = append(parts, line[:maxLen])
		line = line[maxLen:]
	}
	if len(line) > 0 {
		parts = append(parts, line)
	}
	return parts
}
