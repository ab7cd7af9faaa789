// Package dtchat implements a peer-to-peer messaging engine for
// delay-tolerant, multi-transport networks.
//
// Participants exchange text and file messages over TCP, UDP or a
// Bundle-Protocol transport, with application-level acknowledgement,
// per-message delivery-time prediction and room fan-out. The engine turns
// the transport's unreliable, asynchronous primitives into tracked message
// states and reconciles inbound wire events with outbound intent.
//
// Example:
//
//	chat := dtchat.New(db, predict.Disabled())
//	chat.AddObserver(myObserver)
//	chat.Start(transport.NewSocketEngine(chat))
//
//	uuid := chat.SendToPeer(message.Text{Text: "hi"}, roomID, peerID, peerEndpoint, false)
//	// delivery progress arrives as events: MessageSending, MessageSent, AckReceived
package dtchat

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/dtchat/chattime"
	"github.com/opd-ai/dtchat/message"
	"github.com/opd-ai/dtchat/predict"
	"github.com/opd-ai/dtchat/store"
	"github.com/opd-ai/dtchat/transport"
	"github.com/opd-ai/dtchat/wire"
)

// pendingKind discriminates what a pending send token correlates to.
type pendingKind uint8

const (
	pendingText pendingKind = iota
	pendingAck
)

// pendingSend bridges a transport completion token back to a message.
// For acks, originalUUID records the message being acknowledged; its
// completion needs no further state change.
type pendingSend struct {
	kind         pendingKind
	originalUUID string
}

// RoomMessage groups the per-recipient message copies produced by one
// logical room send. It is a correlation record, not persisted state.
type RoomMessage struct {
	UUID         string
	RoomUUID     string
	MessageUUIDs []string
}

// Chat is the protocol engine. All state is guarded by a single mutex:
// local API calls and transport callbacks for the same send token must be
// serialized so pending-send removal stays atomic.
type Chat struct {
	mu         sync.Mutex
	db         store.Store
	observers  []Observer
	engine     transport.Engine
	pending    map[string]pendingSend
	prediction predict.State
	clock      chattime.Provider
}

// New builds an engine over the given store with the given prediction mode.
func New(db store.Store, prediction predict.State) *Chat {
	return &Chat{
		db:         db,
		pending:    make(map[string]pendingSend),
		prediction: prediction,
		clock:      chattime.SystemProvider{},
	}
}

// AddObserver registers a listener for engine events.
func (c *Chat) AddObserver(obs Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, obs)
}

// Start binds the transport and begins listening on every local endpoint.
// Start-once: restarting an engine is not supported.
func (c *Chat) Start(engine transport.Engine) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.engine = engine
	for _, ep := range c.db.LocalPeer().Endpoints {
		engine.StartListener(ep)
	}
	c.notify(Started{Prediction: c.prediction.String()})
}

// SendToPeer sends content to a single peer at the given endpoint and
// returns the new message's uuid. The transport outcome arrives later as
// events; the returned uuid is valid regardless.
//
// When wantPrediction is set and both sides expose a Bundle-Protocol
// endpoint, a delivery-time estimate is attached to the stored message.
// Prediction failure never affects the send.
func (c *Chat) SendToPeer(content message.Content, roomUUID, peerUUID string, dest transport.Endpoint, wantPrediction bool) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendToPeerLocked(content, roomUUID, peerUUID, dest, wantPrediction)
}

func (c *Chat) sendToPeerLocked(content message.Content, roomUUID, peerUUID string, dest transport.Endpoint, wantPrediction bool) string {
	local := c.db.LocalPeer()
	source, haveSource := local.EndpointOfKind(dest.Kind)

	msg := message.NewToSend(local.UUID, roomUUID, content, source)
	c.pending[msg.UUID] = pendingSend{kind: pendingText}

	var encoded []byte
	switch {
	case !haveSource:
		// No fallback across transport kinds: the send is skipped and the
		// message stays Sending until the caller intervenes.
		c.notify(InternalError{Detail: fmt.Sprintf(
			"no local %s endpoint to reach %s", dest.Kind, dest)})
	case c.engine == nil:
		logrus.WithField("uuid", msg.UUID).Warn("send before engine start, message stored only")
	default:
		var err error
		encoded, err = wire.Encode(envelopeFor(msg))
		if err != nil {
			c.notify(ProtocolEncodeError{Detail: fmt.Sprintf("failed to encode message: %v", err)})
		} else {
			c.engine.Send(source, dest, encoded, msg.UUID)
		}
	}

	if wantPrediction && encoded != nil {
		c.predictArrival(msg, local, peerUUID, float64(len(encoded)))
	}

	c.db.AddMessage(msg)
	c.notify(MessageSending{Message: msg})
	return msg.UUID
}

// predictArrival attaches a delivery-time estimate when the oracle is
// enabled and both peers expose Bundle-Protocol endpoints. Failures are
// deliberately silent.
func (c *Chat) predictArrival(msg *message.ChatMessage, local store.Peer, peerUUID string, sizeBytes float64) {
	oracle, enabled := c.prediction.Oracle()
	if !enabled {
		return
	}
	localBP, ok := local.EndpointOfKind(transport.KindBP)
	if !ok {
		return
	}
	peer, ok := c.db.OtherPeers()[peerUUID]
	if !ok {
		return
	}
	remoteBP, ok := peer.EndpointOfKind(transport.KindBP)
	if !ok {
		return
	}

	arrival, err := oracle.Predict(localBP.Address, remoteBP.Address, sizeBytes)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"uuid":  msg.UUID,
			"error": err,
		}).Debug("no delivery estimate")
		return
	}
	msg.PredictedArrival = arrival
}

// SendToRoom fans content out to every other participant of the room,
// each at the endpoint their room registration names. It returns nil when
// the room is unknown, the local peer is not a participant, or there is
// nobody else to send to.
func (c *Chat) SendToRoom(content message.Content, roomUUID string, wantPrediction bool) *RoomMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	room, ok := c.db.Rooms()[roomUUID]
	if !ok {
		return nil
	}
	local := c.db.LocalPeer()
	if !room.HasParticipant(local.UUID) {
		return nil
	}

	rm := &RoomMessage{UUID: message.NewUUID(), RoomUUID: roomUUID}
	for _, p := range room.Participants {
		if p.PeerUUID == local.UUID {
			continue
		}
		uuid := c.sendToPeerLocked(content, roomUUID, p.PeerUUID, p.Endpoint, wantPrediction)
		rm.MessageUUIDs = append(rm.MessageUUIDs, uuid)
	}
	if len(rm.MessageUUIDs) == 0 {
		return nil
	}
	return rm
}

// Timeline returns all stored messages ordered by the given strategy.
func (c *Chat) Timeline(strategy message.SortStrategy) []*message.ChatMessage {
	msgs := c.db.AllMessages()
	message.SortBy(msgs, strategy)
	return msgs
}

// OnTransportEvent implements transport.Observer: it reconciles the
// transport's asynchronous callbacks with pending outbound intent.
func (c *Chat) OnTransportEvent(ev transport.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch e := ev.(type) {
	case transport.DataReceived:
		c.notify(TransportInfo{Event: e})
		c.handleInboundLocked(e.Data)
	case transport.DataSent:
		c.notify(TransportInfo{Event: e})
		c.markAsSentLocked(e.Token)
	case transport.ConnectionFailed:
		c.markPendingFailedLocked(e, e.Endpoint, e.Token, e.Reason)
	case transport.SendFailed:
		c.markPendingFailedLocked(e, e.Endpoint, e.Token, e.Reason)
	case transport.ReceiveFailed, transport.SocketError:
		c.notify(TransportError{Event: e})
	default:
		c.notify(TransportInfo{Event: e})
	}
}

// handleInboundLocked decodes a frame and dispatches on its payload.
func (c *Chat) handleInboundLocked(data []byte) {
	env, err := wire.Decode(data)
	if err != nil {
		c.notify(ProtocolDecodeError{Detail: fmt.Sprintf("envelope decode error: %v", err)})
		return
	}

	switch p := env.Payload.(type) {
	case wire.TextPayload, wire.FilePayload:
		msg, ok := message.NewReceived(env)
		if !ok {
			c.notify(ProtocolDecodeError{Detail: fmt.Sprintf(
				"unusable envelope %s: bad timestamp or source endpoint %q",
				env.UUID, env.SourceEndpoint)})
			return
		}
		c.db.AddMessage(msg)
		c.notify(MessageReceived{Message: msg})
		c.sendAckLocked(msg, msg.SourceEndpoint)
	case wire.AckPayload:
		ts, ok := chattime.FromUnixMilli(env.TimestampMilli)
		if !ok {
			c.notify(ProtocolDecodeError{Detail: fmt.Sprintf(
				"ack %s carries invalid timestamp %d", env.UUID, env.TimestampMilli)})
			return
		}
		c.markAsAckedLocked(p.MessageUUID, ts)
	}
}

// sendAckLocked acknowledges an inbound message back to the endpoint its
// envelope named.
func (c *Chat) sendAckLocked(forMsg *message.ChatMessage, target transport.Endpoint) {
	local := c.db.LocalPeer()
	source, ok := local.EndpointOfKind(target.Kind)
	if !ok {
		c.notify(InternalError{Detail: fmt.Sprintf(
			"no local %s endpoint to ack %s", target.Kind, forMsg.UUID)})
		return
	}

	ackUUID := message.NewUUID()
	env := &wire.Envelope{
		UUID:           ackUUID,
		SenderUUID:     local.UUID,
		RoomUUID:       forMsg.RoomUUID,
		TimestampMilli: c.clock.Now().UnixMilli(),
		SourceEndpoint: source.String(),
		Payload:        wire.AckPayload{MessageUUID: forMsg.UUID},
	}
	c.pending[ackUUID] = pendingSend{kind: pendingAck, originalUUID: forMsg.UUID}

	data, err := wire.Encode(env)
	if err != nil {
		c.notify(ProtocolEncodeError{Detail: fmt.Sprintf("failed to encode ack: %v", err)})
		return
	}
	if c.engine == nil {
		logrus.WithField("uuid", forMsg.UUID).Warn("ack skipped, engine not started")
		return
	}
	c.engine.Send(source, target, data, ackUUID)
	c.notify(AckSent{MessageUUID: forMsg.UUID, AckUUID: ackUUID, To: target})
}

// markAsAckedLocked transitions a message to ReceivedByPeer using the
// ACK's embedded timestamp, not the local clock.
func (c *Chat) markAsAckedLocked(messageUUID string, ackTime chattime.Time) {
	updated := c.db.MarkAs(messageUUID, store.MarkAcked(ackTime))
	if updated == nil {
		c.notify(MessageNotFoundError{Detail: fmt.Sprintf(
			"received ack for unknown message %s", messageUUID)})
		return
	}
	c.notify(AckReceived{Message: updated})
}

// markAsSentLocked resolves a transport completion. An unknown token is
// silently ignored; an ack completion needs no state change.
func (c *Chat) markAsSentLocked(token string) {
	entry, ok := c.pending[token]
	if !ok {
		return
	}
	delete(c.pending, token)
	if entry.kind == pendingAck {
		return
	}

	updated := c.db.MarkAs(token, store.MarkSent(c.clock.Now()))
	if updated == nil {
		c.notify(MessageNotFoundError{Detail: fmt.Sprintf(
			"send completed for unknown message %s", token)})
		return
	}
	c.notify(MessageSent{Message: updated})
}

// markPendingFailedLocked resolves a transport failure. Ack failures are
// dropped (there is no retry path for acks); text failures fail the
// message and surface exactly one error event. A failure that matches no
// pending send is forwarded as a plain transport error.
func (c *Chat) markPendingFailedLocked(ev transport.Event, endpoint transport.Endpoint, token, reason string) {
	entry, ok := c.pending[token]
	if !ok {
		c.notify(TransportError{Event: ev})
		return
	}
	delete(c.pending, token)
	if entry.kind == pendingAck {
		logrus.WithFields(logrus.Fields{
			"ack":    token,
			"for":    entry.originalUUID,
			"reason": reason,
		}).Debug("ack delivery failed, dropped")
		return
	}

	updated := c.db.MarkAs(token, store.MarkFailed())
	if updated == nil {
		c.notify(MessageNotFoundError{Detail: fmt.Sprintf(
			"send failed for unknown message %s", token)})
		return
	}
	c.notify(HostError{Endpoint: endpoint, Detail: fmt.Sprintf(
		"message %s failed: %s", token, reason)})
}

// envelopeFor renders an outbound message as a wire envelope.
func envelopeFor(m *message.ChatMessage) *wire.Envelope {
	env := &wire.Envelope{
		UUID:           m.UUID,
		SenderUUID:     m.SenderUUID,
		RoomUUID:       m.RoomUUID,
		TimestampMilli: m.SendTime.UnixMilli(),
		SourceEndpoint: m.SourceEndpoint.String(),
	}
	switch content := m.Content.(type) {
	case message.Text:
		env.Payload = wire.TextPayload{Text: content.Text}
	case message.File:
		env.Payload = wire.FilePayload{Name: content.Name, Data: content.Data}
	}
	return env
}
