package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/dtchat/transport"
	"github.com/opd-ai/dtchat/wire"
)

func validEnvelope(p wire.Payload) *wire.Envelope {
	return &wire.Envelope{
		UUID:           "msg-1",
		SenderUUID:     "peer-2",
		RoomUUID:       "room-1",
		TimestampMilli: 1700000000123,
		SourceEndpoint: "udp 10.0.0.2:7001",
		Payload:        p,
	}
}

func TestNewToSend(t *testing.T) {
	source := transport.Endpoint{Kind: transport.KindTCP, Address: "127.0.0.1:7000"}
	m := NewToSend("peer-1", "room-1", Text{Text: "hi"}, source)

	assert.NotEmpty(t, m.UUID)
	assert.Equal(t, "peer-1", m.SenderUUID)
	assert.Equal(t, "room-1", m.RoomUUID)
	assert.Equal(t, StatusSending, m.Status)
	assert.False(t, m.SendTime.IsZero())
	assert.True(t, m.SendCompleted.IsZero())
	assert.True(t, m.ReceiveTime.IsZero())
	assert.True(t, m.SourceEndpoint.Equal(source))

	other := NewToSend("peer-1", "room-1", Text{Text: "hi"}, source)
	assert.NotEqual(t, m.UUID, other.UUID, "each message gets a distinct uuid")
}

func TestNewReceived(t *testing.T) {
	t.Run("text envelope", func(t *testing.T) {
		m, ok := NewReceived(validEnvelope(wire.TextPayload{Text: "bonjour"}))
		require.True(t, ok)

		assert.Equal(t, "msg-1", m.UUID)
		assert.Equal(t, StatusReceived, m.Status)
		assert.Equal(t, int64(1700000000123), m.SendTime.UnixMilli())
		assert.True(t, m.SendTime.Equal(m.SendCompleted),
			"inbound messages count as completed at the claimed send instant")
		assert.False(t, m.ReceiveTime.IsZero(), "arrival instant is stamped locally")
		assert.Equal(t, Text{Text: "bonjour"}, m.Content)
		assert.Equal(t, transport.KindUDP, m.SourceEndpoint.Kind)
	})

	t.Run("file envelope", func(t *testing.T) {
		m, ok := NewReceived(validEnvelope(wire.FilePayload{Name: "a.bin", Data: []byte{1}}))
		require.True(t, ok)
		assert.Equal(t, File{Name: "a.bin", Data: []byte{1}}, m.Content)
	})

	t.Run("bad timestamp rejected", func(t *testing.T) {
		env := validEnvelope(wire.TextPayload{Text: "x"})
		env.TimestampMilli = -5
		_, ok := NewReceived(env)
		assert.False(t, ok)
	})

	t.Run("bad source endpoint rejected", func(t *testing.T) {
		env := validEnvelope(wire.TextPayload{Text: "x"})
		env.SourceEndpoint = "carrier-pigeon somewhere"
		_, ok := NewReceived(env)
		assert.False(t, ok)
	})

	t.Run("ack payload rejected", func(t *testing.T) {
		_, ok := NewReceived(validEnvelope(wire.AckPayload{MessageUUID: "m"}))
		assert.False(t, ok)
	})
}

func TestPayloadSize(t *testing.T) {
	assert.Equal(t, 5, (&ChatMessage{Content: Text{Text: "hello"}}).PayloadSize())
	assert.Equal(t, 3, (&ChatMessage{Content: File{Name: "n", Data: []byte{1, 2, 3}}}).PayloadSize())
	assert.Equal(t, 0, (&ChatMessage{}).PayloadSize())
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "sending", StatusSending.String())
	assert.Equal(t, "received by peer", StatusReceivedByPeer.String())
	assert.Equal(t, "unknown", Status(250).String())
}
