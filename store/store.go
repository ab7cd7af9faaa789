// Package store defines the persistence contract the chat engine consumes
// (peers, rooms, messages, status transitions) and ships an in-memory and a
// SQLite-backed implementation of it.
package store

import (
	"github.com/opd-ai/dtchat/chattime"
	"github.com/opd-ai/dtchat/message"
	"github.com/opd-ai/dtchat/transport"
)

// Peer is a chat participant. Peers are immutable after construction and
// owned by the store.
type Peer struct {
	UUID      string
	Name      string
	Color     string
	Endpoints []transport.Endpoint
}

// EndpointOfKind returns the peer's endpoint for the given transport kind.
func (p Peer) EndpointOfKind(kind transport.Kind) (transport.Endpoint, bool) {
	for _, ep := range p.Endpoints {
		if ep.Kind == kind {
			return ep, true
		}
	}
	return transport.Endpoint{}, false
}

// Participant binds a room member to the endpoint room messages addressed
// to that member should use.
type Participant struct {
	PeerUUID string
	Endpoint transport.Endpoint
}

// Room is a named multicast group. A room is usable for sending only if the
// local peer appears among its participants.
type Room struct {
	UUID         string
	Name         string
	Participants []Participant
}

// HasParticipant reports whether the peer is registered in the room.
func (r Room) HasParticipant(peerUUID string) bool {
	for _, p := range r.Participants {
		if p.PeerUUID == peerUUID {
			return true
		}
	}
	return false
}

// markKind discriminates MarkIntent variants.
type markKind uint8

const (
	markAcked markKind = iota
	markSent
	markFailed
)

// MarkIntent is a requested status transition for a stored message.
type MarkIntent struct {
	kind markKind
	at   chattime.Time
}

// MarkAcked transitions a message to ReceivedByPeer, recording the ACK's
// embedded timestamp as the receive time.
func MarkAcked(at chattime.Time) MarkIntent {
	return MarkIntent{kind: markAcked, at: at}
}

// MarkSent records when the local transport confirmed transmission and
// transitions the message to Sent, unless the peer's ACK already arrived:
// ReceivedByPeer is terminal and a late completion never regresses it.
func MarkSent(at chattime.Time) MarkIntent {
	return MarkIntent{kind: markSent, at: at}
}

// MarkFailed transitions a message to Failed.
func MarkFailed() MarkIntent {
	return MarkIntent{kind: markFailed}
}

// apply mutates m according to the intent.
func (i MarkIntent) apply(m *message.ChatMessage) {
	switch i.kind {
	case markAcked:
		m.ReceiveTime = i.at
		m.Status = message.StatusReceivedByPeer
	case markSent:
		m.SendCompleted = i.at
		if m.Status != message.StatusReceivedByPeer {
			m.Status = message.StatusSent
		}
	case markFailed:
		m.Status = message.StatusFailed
	}
}

// Store is the persistence contract the engine consumes. Implementations
// are synchronous; absence is signalled through the bool/ok returns rather
// than errors.
type Store interface {
	// LocalPeer returns the local identity.
	LocalPeer() Peer

	// OtherPeers returns all known remote peers keyed by uuid.
	OtherPeers() map[string]Peer

	// Rooms returns all known rooms keyed by uuid.
	Rooms() map[string]Room

	// AddMessage persists a message, reporting whether it was accepted.
	AddMessage(m *message.ChatMessage) bool

	// MarkAs applies a status transition and returns the updated message,
	// or nil if the uuid is unknown.
	MarkAs(uuid string, intent MarkIntent) *message.ChatMessage

	// LastMessages returns up to n most recent messages in storage order.
	LastMessages(n int) []*message.ChatMessage

	// AllMessages returns every stored message in storage order.
	AllMessages() []*message.ChatMessage
}
