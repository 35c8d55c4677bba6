package chat

import "github.com/samber/lo"

// ReceiptTracker records acknowledgments and drives delivery state.
type ReceiptTracker struct {
	rooms    *RoomRegistry
	messages *MessageStore
}

// NewReceiptTracker returns a tracker over the logs of messages.
func NewReceiptTracker(rooms *RoomRegistry, messages *MessageStore) *ReceiptTracker {
	return &ReceiptTracker{rooms: rooms, messages: messages}
}

// MarkDelivered moves a freshly appended message to Delivered. Delivered
// means the server accepted and fanned it out, not that every peer got it.
func (t *ReceiptTracker) MarkDelivered(msg *Message) bool {
	return msg.advance(Delivered)
}

// Acknowledge records that by received message id in room. It reports true
// only when this acknowledgment made the message Read, which happens once
// the receipts cover everyone who is a member of the room right now. A
// message that has been evicted, or a room that is gone, is a no-op.
func (t *ReceiptTracker) Acknowledge(room, id, by string) (*Message, bool) {
	msg, ok := t.messages.Find(room, id)
	if !ok {
		return nil, false
	}
	msg.receipts[by] = struct{}{}

	r, ok := t.rooms.Get(room)
	if !ok {
		return msg, false
	}
	if !lo.Every(lo.Keys(msg.receipts), r.members) {
		return msg, false
	}
	return msg, msg.advance(Read)
}
