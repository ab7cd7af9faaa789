// Package message defines the chat message entity, its delivery-status
// lifecycle and the orderings used to render timelines.
package message

import (
	"github.com/google/uuid"

	"github.com/opd-ai/dtchat/chattime"
	"github.com/opd-ai/dtchat/transport"
	"github.com/opd-ai/dtchat/wire"
)

// Status is the delivery state of a message. Outbound messages move
// Sending -> Sent -> ReceivedByPeer; Failed is terminal from any prior
// outbound state. Inbound messages start and stay at Received.
type Status uint8

const (
	// StatusSending means the message was handed to the transport and no
	// completion has arrived yet.
	StatusSending Status = iota
	// StatusSent means the local transport confirmed transmission.
	StatusSent
	// StatusReceivedByPeer means the remote acknowledged the message.
	StatusReceivedByPeer
	// StatusFailed means the transport reported a send or connection failure.
	StatusFailed
	// StatusReceived marks an inbound message.
	StatusReceived
)

// String returns a human-readable status name.
func (s Status) String() string {
	switch s {
	case StatusSending:
		return "sending"
	case StatusSent:
		return "sent"
	case StatusReceivedByPeer:
		return "received by peer"
	case StatusFailed:
		return "failed"
	case StatusReceived:
		return "received"
	default:
		return "unknown"
	}
}

// Content is the message body: exactly one of Text or File.
type Content interface {
	isContent()
}

// Text is a plain text body.
type Text struct {
	Text string
}

// File is a named file body.
type File struct {
	Name string
	Data []byte
}

func (Text) isContent() {}
func (File) isContent() {}

// ChatMessage is one message in a room, local or remote in origin.
//
// SendTime is when the origin created the message (for inbound messages,
// the instant the sender claims). SendCompleted is set when the local
// transport confirms transmission. ReceiveTime is set from the ACK's
// embedded timestamp for outbound messages, and from the local arrival
// clock for inbound ones. PredictedArrival is advisory and may stay unset.
type ChatMessage struct {
	UUID       string
	SenderUUID string
	RoomUUID   string
	Content    Content

	// SourceEndpoint is the sender's transport address, carried on the
	// wire so the recipient knows where to send the ACK.
	SourceEndpoint transport.Endpoint

	SendTime         chattime.Time
	SendCompleted    chattime.Time
	PredictedArrival chattime.Time
	ReceiveTime      chattime.Time

	Status Status
}

// NewUUID returns a fresh random message identity.
func NewUUID() string {
	return uuid.NewString()
}

// NewToSend builds an outbound message stamped with the current instant.
func NewToSend(senderUUID, roomUUID string, content Content, source transport.Endpoint) *ChatMessage {
	return &ChatMessage{
		UUID:           NewUUID(),
		SenderUUID:     senderUUID,
		RoomUUID:       roomUUID,
		Content:        content,
		SourceEndpoint: source,
		SendTime:       chattime.Now(),
		Status:         StatusSending,
	}
}

// NewReceived builds an inbound message from a decoded Text or File
// envelope. It reports false when the envelope's timestamp or source
// endpoint cannot be parsed, or when the payload is an ACK.
func NewReceived(env *wire.Envelope) (*ChatMessage, bool) {
	var content Content
	switch p := env.Payload.(type) {
	case wire.TextPayload:
		content = Text{Text: p.Text}
	case wire.FilePayload:
		content = File{Name: p.Name, Data: p.Data}
	default:
		return nil, false
	}

	sent, ok := chattime.FromUnixMilli(env.TimestampMilli)
	if !ok {
		return nil, false
	}
	source, err := transport.ParseEndpoint(env.SourceEndpoint)
	if err != nil {
		return nil, false
	}

	return &ChatMessage{
		UUID:           env.UUID,
		SenderUUID:     env.SenderUUID,
		RoomUUID:       env.RoomUUID,
		Content:        content,
		SourceEndpoint: source,
		SendTime:       sent,
		SendCompleted:  sent,
		ReceiveTime:    chattime.Now(),
		Status:         StatusReceived,
	}, true
}

// PayloadSize returns the content size in bytes, used for delivery-time
// prediction.
func (m *ChatMessage) PayloadSize() int {
	switch c := m.Content.(type) {
	case Text:
		return len(c.Text)
	case File:
		return len(c.Data)
	default:
		return 0
	}
}
