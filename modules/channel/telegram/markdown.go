package telegram

import "strings"

// markdownV2SpecialChars escapes every character MarkdownV2 treats as
// markup: _ * [ ] ( ) ~ ` > # + - = | { } . !
var markdownV2SpecialChars = strings.NewReplacer(
	`_`, `\_`,
	`*`, `\*`,
	`[`, `\[`,
	`]`, `\]`,
	`(`, `\(`,
	`)`, `\)`,
	`~`, `\~`,
	"`", "\\`",
	`>`, `\>`,
	`#`, `\#`,
	`+`, `\+`,
	`-`, `\-`,
	`=`, `\=`,
	`|`, `\|`,
	`{`, `\{`,
	`}`, `\}`,
	`.`, `\.`,
	`!`, `\!`,
)

// EscapeMarkdownV2 escapes all special characters for Telegram's
// MarkdownV2 parse mode.
func EscapeMarkdownV2(text string) string {
	return markdownV2SpecialChars.Replace(text)
}

// FormatMarkdownV2 converts standard markdown to Telegram MarkdownV2.
// It preserves `code`, fenced code blocks, and __underline__, rewrites
// **bold** to *bold*, and escapes everything else.
func FormatMarkdownV2(text string) string {
	lines := strings.Split(text, "\n")
	var result strings.Builder
	inCodeBlock := false

	for i, line := range lines {
		if i > 0 {
			result.WriteByte('\n')
		}

		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inCodeBlock = !inCodeBlock
			result.WriteString(line)
			continue
		}

		if inCodeBlock {
			result.WriteString(line)
			continue
		}

		result.WriteString(formatLine(line))
	}

	return result.String()
}

// formatLine converts a single line outside of a code fence.
func formatLine(line string) string {
	var result strings.Builder
	runes := []rune(line)
	n := len(runes)
	i := 0

	for i < n {
		// Inline code passes through unescaped.
		if runes[i] == '`' {
			end := findClosing(runes, i+1, '`')
			if end > 0 {
				result.WriteString(string(runes[i : end+1]))
				i = end + 1
				continue
			}
		}

		// **bold** becomes *bold*; MarkdownV2 bolds on a single asterisk.
		if i+1 < n && runes[i] == '*' && runes[i+1] == '*' {
			end := findDoubleClosing(runes, i+2, '*')
			if end > 0 {
				inner := string(runes[i+2 : end])
				result.WriteByte('*')
				result.WriteString(EscapeMarkdownV2(inner))
				result.WriteByte('*')
				i = end + 2
				continue
			}
		}

		// __underline__ keeps its double underscores.
		if i+1 < n && runes[i] == '_' && runes[i+1] == '_' {
			end := findDoubleClosing(runes, i+2, '_')
			if end > 0 {
				inner := string(runes[i+2 : end])
				result.WriteString("__")
				result.WriteString(EscapeMarkdownV2(inner))
				result.WriteString("__")
				i = end + 2
				continue
			}
		}

		result.WriteString(EscapeMarkdownV2(string(runes[i])))
		i++
	}

	return result.String()
}

// findClosing finds the index of the closing delimiter starting from
// start, or -1 if there is none.
func findClosing(runes []rune, start int, delim rune) int {
	for i := start; i < len(runes); i++ {
		if runes[i] == delim {
			return i
		}
	}
	return -1
}

// findDoubleClosing finds a two-character closing delimiter (** or __)
// starting from start. Returns the index of its first character, or -1.
func findDoubleClosing(runes []rune, start int, delim rune) int {
	for i := start; i < len(runes)-1; i++ {
		if runes[i] == delim && runes[i+1] == delim {
			return i
		}
	}
	return -1
}
