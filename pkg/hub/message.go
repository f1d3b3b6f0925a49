// Package hub fans out viewer messages (JPEG frames and JSON updates) to
// websocket clients over channels.
package hub

import "github.com/gofiber/websocket/v2"

// MessageType is the payload kind of a viewer message.
type MessageType int

const (
	JSONMessage MessageType = iota
	BinaryMessage
)

// Message is one payload queued for every client of a hub.
type Message struct {
	Type MessageType
	Data []byte
}

// NewJSONMessage wraps pre-encoded JSON.
func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}

// NewBinaryMessage wraps an encoded frame.
func NewBinaryMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data}
}

// wsType is the websocket opcode the message is written with.
func (m Message) wsType() int {
	if m.Type == BinaryMessage {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}
