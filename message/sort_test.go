package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/dtchat/chattime"
)

func at(ms int64) chattime.Time {
	t, _ := chattime.FromUnixMilli(ms)
	return t
}

func msg(uuid, sender string, sendMs int64, receiveMs int64) *ChatMessage {
	m := &ChatMessage{
		UUID:       uuid,
		SenderUUID: sender,
		Content:    Text{Text: uuid},
		SendTime:   at(sendMs),
	}
	if receiveMs > 0 {
		m.ReceiveTime = at(receiveMs)
	}
	return m
}

func TestStandardCompare(t *testing.T) {
	t.Run("orders by send time", func(t *testing.T) {
		a := msg("a", "p1", 1000, 0)
		b := msg("b", "p2", 2000, 0)
		assert.Equal(t, -1, StandardCompare(a, b))
		assert.Equal(t, 1, StandardCompare(b, a))
	})

	t.Run("ties broken by receive time", func(t *testing.T) {
		a := msg("a", "p1", 1000, 3000)
		b := msg("b", "p2", 1000, 2000)
		assert.Equal(t, 1, StandardCompare(a, b))
	})

	t.Run("antisymmetry", func(t *testing.T) {
		msgs := []*ChatMessage{
			msg("a", "p1", 1000, 0),
			msg("b", "p2", 1000, 2000),
			msg("c", "p1", 1000, 2000),
			msg("d", "p3", 500, 0),
		}
		for _, a := range msgs {
			for _, b := range msgs {
				assert.Equal(t, -StandardCompare(b, a), StandardCompare(a, b),
					"standard_cmp(%s,%s) must mirror standard_cmp(%s,%s)", a.UUID, b.UUID, b.UUID, a.UUID)
			}
		}
	})
}

func TestRelativeCompare(t *testing.T) {
	// The viewer's message was sent before the other one but acknowledged
	// after it: the relative order flips against the standard order.
	mine := msg("mine", "viewer", 1000, 5000)
	theirs := msg("theirs", "other", 2000, 0)

	t.Run("viewer messages anchor on receive time", func(t *testing.T) {
		assert.Equal(t, -1, StandardCompare(mine, theirs))
		assert.Equal(t, 1, RelativeCompare(mine, theirs, "viewer"))
	})

	t.Run("other viewers keep send-time anchors", func(t *testing.T) {
		assert.Equal(t, -1, RelativeCompare(mine, theirs, "third-party"))
	})

	t.Run("viewer message without ack falls back to send time", func(t *testing.T) {
		unacked := msg("unacked", "viewer", 1000, 0)
		assert.Equal(t, -1, RelativeCompare(unacked, theirs, "viewer"))
	})
}

func TestInsertSorted(t *testing.T) {
	t.Run("keeps the slice ordered", func(t *testing.T) {
		var timeline []*ChatMessage
		for _, m := range []*ChatMessage{
			msg("c", "p1", 3000, 0),
			msg("a", "p1", 1000, 0),
			msg("b", "p1", 2000, 0),
		} {
			timeline = InsertSorted(timeline, m, Standard())
		}
		require.Len(t, timeline, 3)
		assert.Equal(t, []string{"a", "b", "c"},
			[]string{timeline[0].UUID, timeline[1].UUID, timeline[2].UUID})
	})

	t.Run("equal keys preserve insertion order", func(t *testing.T) {
		var timeline []*ChatMessage
		first := msg("first", "p1", 1000, 0)
		second := msg("second", "p2", 1000, 0)
		timeline = InsertSorted(timeline, first, Standard())
		timeline = InsertSorted(timeline, second, Standard())

		assert.Equal(t, "first", timeline[0].UUID)
		assert.Equal(t, "second", timeline[1].UUID)
	})

	t.Run("relative strategy", func(t *testing.T) {
		mine := msg("mine", "viewer", 1000, 5000)
		theirs := msg("theirs", "other", 2000, 0)

		var timeline []*ChatMessage
		timeline = InsertSorted(timeline, mine, Relative("viewer"))
		timeline = InsertSorted(timeline, theirs, Relative("viewer"))
		assert.Equal(t, "theirs", timeline[0].UUID)
	})
}

func TestSortBy(t *testing.T) {
	mine := msg("mine", "viewer", 1000, 5000)
	theirs := msg("theirs", "other", 2000, 0)
	later := msg("later", "other", 9000, 0)

	view := []*ChatMessage{later, mine, theirs}

	SortBy(view, Standard())
	assert.Equal(t, "mine", view[0].UUID)

	SortBy(view, Relative("viewer"))
	assert.Equal(t, []string{"theirs", "mine", "later"},
		[]string{view[0].UUID, view[1].UUID, view[2].UUID})
}
