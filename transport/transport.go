// Package transport defines peer endpoints, the asynchronous socket-engine
// contract the chat engine consumes, and a TCP/UDP implementation of it.
//
// The engine never blocks on the network: listeners are started
// asynchronously and sends are fire-and-forget, with completion, failure and
// reception reported later through Observer callbacks on the engine's own
// goroutines. Callbacks carry the caller-supplied correlation token so that
// a completion can be routed back to the message that produced it.
package transport

// Event is a notification raised by an Engine. The concrete types below
// form a closed set; consumers switch exhaustively over them.
type Event interface {
	isEvent()
}

// DataReceived reports bytes that arrived on a listener.
type DataReceived struct {
	Data []byte
	From Endpoint
}

// DataSending reports that an asynchronous send was accepted for delivery.
type DataSending struct {
	Token string
	To    Endpoint
	Bytes int
}

// DataSent reports that an asynchronous send completed.
type DataSent struct {
	Token     string
	To        Endpoint
	BytesSent int
}

// ListenerStarted reports that a listener is accepting traffic.
type ListenerStarted struct {
	Endpoint Endpoint
}

// Established reports a new stream connection to a remote.
type Established struct {
	Remote Endpoint
}

// Closed reports that a stream connection went away.
type Closed struct {
	Remote Endpoint
}

// ConnectionFailed reports that a remote could not be reached. Token
// identifies the send that triggered the attempt, if any.
type ConnectionFailed struct {
	Endpoint Endpoint
	Reason   string
	Token    string
}

// SendFailed reports that a send was accepted but could not be written.
type SendFailed struct {
	Endpoint Endpoint
	Reason   string
	Token    string
}

// ReceiveFailed reports a read error on a listener.
type ReceiveFailed struct {
	Endpoint Endpoint
	Reason   string
}

// SocketError reports a listener or socket level fault.
type SocketError struct {
	Endpoint Endpoint
	Reason   string
}

func (DataReceived) isEvent()     {}
func (DataSending) isEvent()      {}
func (DataSent) isEvent()         {}
func (ListenerStarted) isEvent()  {}
func (Established) isEvent()      {}
func (Closed) isEvent()           {}
func (ConnectionFailed) isEvent() {}
func (SendFailed) isEvent()       {}
func (ReceiveFailed) isEvent()    {}
func (SocketError) isEvent()      {}

// Observer receives Engine events. Implementations are invoked from the
// engine's worker goroutines and must not block.
type Observer interface {
	OnTransportEvent(Event)
}

// Engine is the asynchronous socket engine the chat layer drives.
// Both methods return immediately; results surface as Observer events.
type Engine interface {
	// StartListener begins accepting traffic on a local endpoint.
	StartListener(local Endpoint)

	// Send transmits data from a local endpoint to a remote one. The token
	// is echoed back in the DataSent / SendFailed / ConnectionFailed event
	// that resolves the attempt.
	Send(local, remote Endpoint, data []byte, token string)

	// Close releases all listeners and connections.
	Close() error
}
