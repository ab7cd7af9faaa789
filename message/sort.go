package message

import (
	"sort"

	"github.com/opd-ai/dtchat/chattime"
)

// SortStrategy selects one of the two total orders over a timeline.
type SortStrategy struct {
	viewerUUID string
	relative   bool
}

// Standard orders every message by the canonical, observer-independent
// timeline.
func Standard() SortStrategy {
	return SortStrategy{}
}

// Relative orders messages from the given viewer's perspective: the
// viewer's own messages anchor on their acknowledgement time, everything
// else on the remote sender's claimed send time.
func Relative(viewerUUID string) SortStrategy {
	return SortStrategy{viewerUUID: viewerUUID, relative: true}
}

// Compare applies the strategy's comparator.
func (s SortStrategy) Compare(a, b *ChatMessage) int {
	if s.relative {
		return RelativeCompare(a, b, s.viewerUUID)
	}
	return StandardCompare(a, b)
}

// StandardCompare orders by send time, breaking ties with receive time
// (falling back to send time when unset). It returns -1, 0 or +1.
func StandardCompare(a, b *ChatMessage) int {
	if c := a.SendTime.Compare(b.SendTime); c != 0 {
		return c
	}
	return receiveOrSend(a).Compare(receiveOrSend(b))
}

// RelativeCompare orders from viewerUUID's perspective: a message authored
// by the viewer anchors on its receive time (when it was learned to have
// landed), any other message on its send time.
func RelativeCompare(a, b *ChatMessage, viewerUUID string) int {
	return anchor(a, viewerUUID).Compare(anchor(b, viewerUUID))
}

func receiveOrSend(m *ChatMessage) chattime.Time {
	if !m.ReceiveTime.IsZero() {
		return m.ReceiveTime
	}
	return m.SendTime
}

func anchor(m *ChatMessage, viewerUUID string) chattime.Time {
	if m.SenderUUID == viewerUUID {
		return receiveOrSend(m)
	}
	return m.SendTime
}

// InsertSorted inserts m into an already-sorted slice, keeping it sorted
// under the strategy. Equal keys preserve insertion order: the new message
// lands after existing equals.
func InsertSorted(msgs []*ChatMessage, m *ChatMessage, strategy SortStrategy) []*ChatMessage {
	idx := sort.Search(len(msgs), func(i int) bool {
		return strategy.Compare(msgs[i], m) > 0
	})
	msgs = append(msgs, nil)
	copy(msgs[idx+1:], msgs[idx:])
	msgs[idx] = m
	return msgs
}

// SortBy re-sorts a view in place. The sort is stable: equal keys preserve
// their relative order.
func SortBy(msgs []*ChatMessage, strategy SortStrategy) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return strategy.Compare(msgs[i], msgs[j]) < 0
	})
}
