package dtchat

import (
	"github.com/opd-ai/dtchat/message"
	"github.com/opd-ai/dtchat/transport"
)

// Event is a notification raised by the chat engine. The concrete types
// below form a closed set; error conditions additionally implement
// ErrorEvent. No event is fatal: the engine reports and keeps going.
type Event interface {
	isEvent()
}

// ErrorEvent marks events that report a failure.
type ErrorEvent interface {
	Event
	isErrorEvent()
}

// Started reports that the engine bound its transport, with the
// delivery-time prediction mode in effect.
type Started struct {
	Prediction string
}

// MessageSending reports a locally created message handed to the transport.
type MessageSending struct {
	Message *message.ChatMessage
}

// MessageReceived reports an inbound message persisted to the store.
type MessageReceived struct {
	Message *message.ChatMessage
}

// MessageSent reports a transport-confirmed transmission.
type MessageSent struct {
	Message *message.ChatMessage
}

// AckSent reports that an acknowledgement for an inbound message was
// handed to the transport.
type AckSent struct {
	MessageUUID string
	AckUUID     string
	To          transport.Endpoint
}

// AckReceived reports that a remote acknowledged one of our messages.
type AckReceived struct {
	Message *message.ChatMessage
}

// ProtocolDecodeError reports malformed inbound wire data.
type ProtocolDecodeError struct {
	Detail string
}

// ProtocolEncodeError reports an envelope that could not be serialised.
type ProtocolEncodeError struct {
	Detail string
}

// MessageNotFoundError reports a status transition for a message the store
// does not hold.
type MessageNotFoundError struct {
	Detail string
}

// InternalError reports an engine-level inconsistency, e.g. no local
// endpoint for the requested transport kind.
type InternalError struct {
	Detail string
}

// HostError reports a transport-level failure that failed a message.
type HostError struct {
	Endpoint transport.Endpoint
	Detail   string
}

// TransportInfo forwards an informational transport event.
type TransportInfo struct {
	Event transport.Event
}

// TransportError forwards a transport fault that did not resolve to a
// tracked message.
type TransportError struct {
	Event transport.Event
}

func (Started) isEvent()              {}
func (MessageSending) isEvent()       {}
func (MessageReceived) isEvent()      {}
func (MessageSent) isEvent()          {}
func (AckSent) isEvent()              {}
func (AckReceived) isEvent()          {}
func (ProtocolDecodeError) isEvent()  {}
func (ProtocolEncodeError) isEvent()  {}
func (MessageNotFoundError) isEvent() {}
func (InternalError) isEvent()        {}
func (HostError) isEvent()            {}
func (TransportInfo) isEvent()        {}
func (TransportError) isEvent()       {}

func (ProtocolDecodeError) isErrorEvent()  {}
func (ProtocolEncodeError) isErrorEvent()  {}
func (MessageNotFoundError) isErrorEvent() {}
func (InternalError) isErrorEvent()        {}
func (HostError) isErrorEvent()            {}
func (TransportError) isErrorEvent()       {}

// Observer receives engine events.
//
// Events are delivered synchronously, in registration order, while the
// engine holds its own lock: an observer must not call back into the
// engine from OnEvent, and long work should be deferred to another
// goroutine.
type Observer interface {
	OnEvent(Event)
}

// notify fans an event out to every registered observer in order.
func (c *Chat) notify(ev Event) {
	for _, obs := range c.observers {
		obs.OnEvent(ev)
	}
}
