// Package hub provides a channel-based websocket broadcast hub. The
// kiosk runs one hub for status updates (JSON) and one for camera
// preview frames (binary JPEG).
package hub

// MessageType indicates the websocket message format.
type MessageType int

const (
	// JSONMessage carries a JSON-encoded status update.
	JSONMessage MessageType = iota
	// BinaryMessage carries raw binary data (JPEG preview frames).
	BinaryMessage
)

// Message is a payload queued for broadcast to all clients.
type Message struct {
	Type MessageType
	Data []byte
}

func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}

func NewBinaryMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data}
}
