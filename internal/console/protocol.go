package console

import (
	"encoding/json"
	"time"
)

// MessageType identifies the kind of WebSocket message in the console
// protocol.
type MessageType string

// Protocol message types exchanged over the console connection.
const (
	MsgHello     MessageType = "hello"
	MsgHelloAck  MessageType = "hello_ack"
	MsgPing      MessageType = "ping"
	MsgPong      MessageType = "pong"
	MsgChat      MessageType = "chat"
	MsgChatReply MessageType = "chat_reply"
	MsgTail      MessageType = "tail"
	MsgTailLines MessageType = "tail_lines"
	MsgError     MessageType = "error"
)

// Envelope is the wire format for all console messages. Replies carry
// the ID of the message they answer.
type Envelope struct {
	Type    MessageType     `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	TS      time.Time       `json:"ts"`
}

// HelloPayload is sent by the client as the first message.
type HelloPayload struct {
	Client  string `json:"client"`
	Version string `json:"version,omitempty"`
}

// HelloAckPayload is the server's answer to a hello.
type HelloAckPayload struct {
	Server  string `json:"server"`
	Version string `json:"version"`
}

// ChatPayload carries an operator message for the agent.
type ChatPayload struct {
	Text string `json:"text"`
}

// ChatReplyPayload carries an agent reply back to the operator.
type ChatReplyPayload struct {
	Text string `json:"text"`
}

// TailPayload requests recent log lines.
type TailPayload struct {
	Lines int `json:"lines,omitempty"`
}

// TailLinesPayload returns recent log lines, oldest first.
type TailLinesPayload struct {
	Lines []string `json:"lines"`
}

// ErrorPayload reports a protocol or processing error.
type ErrorPayload struct {
	Message string `json:"message"`
}
