package chat

import "github.com/andy6609/tickchat/internal/protocol"

// SendTo queues ev for slot i. It reports false when the slot is blank or its
// outbox is full.
func (t *Table) SendTo(i int, ev protocol.Event) bool {
	p := t.peerAt(i)
	if p == nil {
		return false
	}
	return p.send(ev)
}

// RelayFrom delivers ev to every slot past the username request except the
// sender, in ascending slot order. Slots that were not writable in the last
// snapshot miss the event. It returns the number of deliveries.
func (t *Table) RelayFrom(sender int, ev protocol.Event) int {
	delivered := 0
	for i := ServerSlot + 1; i < len(t.slots); i++ {
		s := &t.slots[i]
		if i == sender || s.state < StateAwaitingUsername || s.peer == nil {
			continue
		}
		if !s.writable || !s.peer.send(ev) {
			DroppedRelays.Inc()
			continue
		}
		delivered++
	}
	return delivered
}

// RelayMessageFrom broadcasts text as "<username>: <text>" on behalf of
// sender, cut to the table's maximum content length.
func (t *Table) RelayMessageFrom(sender int, text string) int {
	name, ok := t.Username(sender)
	if !ok {
		return 0
	}
	text = Sanitize(text)
	if text == "" {
		return 0
	}
	content := truncateUTF8(name+": "+text, t.maxContent)
	return t.RelayFrom(sender, protocol.NewTextEvent(protocol.CodeMessage, sender, content))
}

// userListEvent builds the list of Active users for a newcomer. ok is false
// when nobody is Active.
func (t *Table) userListEvent() (protocol.Event, bool) {
	names := t.ActiveUsernames()
	if len(names) == 0 {
		return protocol.Event{}, false
	}
	return protocol.Event{
		Code:       protocol.CodeUserList,
		Originator: protocol.ServerOriginator,
		Content:    protocol.EncodeUserList(names),
	}, true
}
