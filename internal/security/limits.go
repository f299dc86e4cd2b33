package security

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Payload limits applied to raw inbound messages before parsing.
const (
	DefaultMaxMessageBytes = 512 << 10 // 512 KiB
	DefaultMaxJSONDepth    = 24
)

// Payload check errors.
var (
	ErrMessageTooLarge = errors.New("message exceeds maximum size")
	ErrJSONTooDeep     = errors.New("JSON nesting exceeds maximum depth")
	ErrInvalidJSON     = errors.New("invalid JSON")
)

// CheckMessageSize checks that data does not exceed limit bytes.
// A non-positive limit means DefaultMaxMessageBytes.
func CheckMessageSize(data []byte, limit int) error {
	if limit <= 0 {
		limit = DefaultMaxMessageBytes
	}
	if len(data) > limit {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrMessageTooLarge, len(data), limit)
	}
	return nil
}

// CheckJSONDepth checks that the JSON in data nests no deeper than limit
// levels, guarding the parsers behind webhook and update payloads against
// JSON bombs. A non-positive limit means DefaultMaxJSONDepth. Empty data
// passes.
func CheckJSONDepth(data []byte, limit int) error {
	if limit <= 0 {
		limit = DefaultMaxJSONDepth
	}
	if len(data) == 0 {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	depth := 0

	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("%w: %w", ErrInvalidJSON, err)
		}

		switch tok {
		case json.Delim('{'), json.Delim('['):
			depth++
			if depth > limit {
				return fmt.Errorf("%w: depth %d (max %d)", ErrJSONTooDeep, depth, limit)
			}
		case json.Delim('}'), json.Delim(']'):
			depth--
		}
	}
}
