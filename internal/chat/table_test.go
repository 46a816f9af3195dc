package chat

import (
	"bytes"
	"errors"
	"net"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/andy6609/tickchat/internal/protocol"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.InitialCapacity = 4
	cfg.GrowthFactor = 1.8
	cfg.OutboxSize = 8
	return cfg
}

// idlePeer returns a peer whose pumps are not running, so everything sent to
// it stays in its outbox.
func idlePeer(t *testing.T, cfg Config) *peer {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return newPeer(server, cfg)
}

func nonBlank(tb *Table) int {
	n := 0
	for i := range tb.slots {
		if !tb.slots[i].blank() {
			n++
		}
	}
	return n
}

// frames drains and decodes every frame queued on p.
func frames(t *testing.T, p *peer) []protocol.Event {
	t.Helper()
	var out []protocol.Event
	for {
		select {
		case frame, ok := <-p.out:
			if !ok {
				return out
			}
			ev, err := protocol.NewDecoder(bytes.NewReader(frame), 0).Decode()
			if err != nil {
				t.Fatalf("decode queued frame: %v", err)
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func activate(tb *Table, slot int, name string) {
	tb.setUsername(slot, name)
	tb.SetState(slot, StateActive)
}

func TestTable_NewTableReservesServerSlot(t *testing.T) {
	tb := NewTable(testConfig())
	if tb.Size() != 4 || tb.Count() != 1 {
		t.Fatalf("size=%d count=%d, want 4 and 1", tb.Size(), tb.Count())
	}
	if tb.State(ServerSlot) != StateServer {
		t.Fatalf("slot 0 state = %s", tb.State(ServerSlot))
	}
}

func TestTable_CountMatchesNonBlankSlots(t *testing.T) {
	cfg := testConfig()
	tb := NewTable(cfg)

	ops := []struct {
		add   bool
		close int
	}{
		{add: true}, {add: true}, {add: true}, {close: 2}, {add: true},
		{add: true}, {close: 1}, {close: 1}, {close: 0}, {close: 99},
		{add: true}, {add: true}, {close: 3}, {close: 5},
	}
	for i, op := range ops {
		if op.add {
			if _, err := tb.Add(idlePeer(t, cfg)); err != nil {
				t.Fatalf("op %d: add: %v", i, err)
			}
		} else {
			tb.Close(op.close)
		}
		if got := nonBlank(tb); got != tb.Count() {
			t.Fatalf("op %d: count=%d, non-blank slots=%d", i, tb.Count(), got)
		}
		if tb.Count() > tb.Size() {
			t.Fatalf("op %d: count %d exceeds size %d", i, tb.Count(), tb.Size())
		}
	}
}

func TestTable_AddReusesLowestBlankSlot(t *testing.T) {
	cfg := testConfig()
	tb := NewTable(cfg)
	for want := 1; want <= 3; want++ {
		got, err := tb.Add(idlePeer(t, cfg))
		if err != nil || got != want {
			t.Fatalf("add = %d, %v; want %d", got, err, want)
		}
	}
	tb.Close(2)

	got, err := tb.Add(idlePeer(t, cfg))
	if err != nil || got != 2 {
		t.Fatalf("add after close = %d, %v; want 2", got, err)
	}
	if tb.State(2) != StateConnected {
		t.Fatalf("new slot state = %s", tb.State(2))
	}
}

func TestTable_GrowthScalesSizeAndPreservesSlots(t *testing.T) {
	cfg := testConfig()
	tb := NewTable(cfg)

	var peers []*peer
	for i := 0; i < 3; i++ {
		p := idlePeer(t, cfg)
		peers = append(peers, p)
		if _, err := tb.Add(p); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	activate(tb, 1, "alice")
	if tb.Count() != tb.Size() {
		t.Fatalf("table should be at capacity: count=%d size=%d", tb.Count(), tb.Size())
	}

	oldSize := tb.Size()
	slot, err := tb.Add(idlePeer(t, cfg))
	if err != nil {
		t.Fatalf("add at capacity: %v", err)
	}
	if want := int(float64(oldSize) * cfg.GrowthFactor); tb.Size() != want {
		t.Fatalf("size after growth = %d, want %d", tb.Size(), want)
	}
	if slot != 4 {
		t.Fatalf("new connection slot = %d, want 4", slot)
	}
	for i, p := range peers {
		if tb.slots[i+1].peer != p {
			t.Fatalf("slot %d lost its peer across growth", i+1)
		}
	}
	if name, ok := tb.Username(1); !ok || name != "alice" {
		t.Fatalf("slot 1 username = %q, %v", name, ok)
	}
	for i := slot + 1; i < tb.Size(); i++ {
		if !tb.slots[i].blank() {
			t.Fatalf("grown slot %d is not blank", i)
		}
	}
}

func TestTable_GrowthFactorOneStillGrows(t *testing.T) {
	cfg := testConfig()
	cfg.InitialCapacity = 2
	cfg.GrowthFactor = 1
	tb := NewTable(cfg)
	for i := 0; i < 3; i++ {
		if _, err := tb.Add(idlePeer(t, cfg)); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}
	if tb.Size() != 4 {
		t.Fatalf("size = %d, want 4", tb.Size())
	}
}

func TestTable_AddFailsWithoutMutatingWhenCapped(t *testing.T) {
	cfg := testConfig()
	cfg.InitialCapacity = 3
	cfg.MaxSlots = 3
	tb := NewTable(cfg)
	for i := 0; i < 2; i++ {
		if _, err := tb.Add(idlePeer(t, cfg)); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}

	_, err := tb.Add(idlePeer(t, cfg))
	if !errors.Is(err, ErrTableFull) {
		t.Fatalf("expected ErrTableFull, got %v", err)
	}
	if tb.Size() != 3 || tb.Count() != 3 {
		t.Fatalf("size=%d count=%d after failed add", tb.Size(), tb.Count())
	}
}

func TestTable_CloseIsIdempotent(t *testing.T) {
	cfg := testConfig()
	tb := NewTable(cfg)
	slot, _ := tb.Add(idlePeer(t, cfg))
	activate(tb, slot, "alice")

	tb.Close(slot)
	count := tb.Count()
	tb.Close(slot)
	tb.Close(ServerSlot)
	tb.Close(-1)
	tb.Close(tb.Size())

	if tb.Count() != count || count != 1 {
		t.Fatalf("count = %d, want 1", tb.Count())
	}
	if _, ok := tb.Username(slot); ok {
		t.Fatal("username survived close")
	}
	if tb.State(slot) != StateUninitialized {
		t.Fatalf("closed slot state = %s", tb.State(slot))
	}
	if tb.State(ServerSlot) != StateServer {
		t.Fatal("slot 0 must not be closable")
	}
}

func TestTable_PollSnapshotsReadiness(t *testing.T) {
	cfg := testConfig()
	cfg.OutboxSize = 1
	tb := NewTable(cfg)
	p := idlePeer(t, cfg)
	slot, _ := tb.Add(p)

	tb.Poll()
	if tb.Readable(slot) || !tb.Writable(slot) {
		t.Fatalf("fresh peer: readable=%v writable=%v", tb.Readable(slot), tb.Writable(slot))
	}

	p.inbox <- inbound{event: protocol.Event{Code: protocol.CodeMessage}}
	p.send(protocol.Event{Code: protocol.CodeMessage})

	// The snapshot does not change until the next poll.
	if tb.Readable(slot) || !tb.Writable(slot) {
		t.Fatal("snapshot changed without a poll")
	}
	tb.Poll()
	if !tb.Readable(slot) || tb.Writable(slot) {
		t.Fatalf("after poll: readable=%v writable=%v", tb.Readable(slot), tb.Writable(slot))
	}
	if tb.Readable(2) || tb.Writable(2) {
		t.Fatal("blank slot reported ready")
	}
}

func TestTable_RelayFromReachesOnlyEligibleWritableSlots(t *testing.T) {
	cfg := testConfig()
	cfg.InitialCapacity = 8
	cfg.OutboxSize = 1
	tb := NewTable(cfg)

	peers := map[int]*peer{}
	for i := 1; i <= 5; i++ {
		p := idlePeer(t, cfg)
		slot, err := tb.Add(p)
		if err != nil {
			t.Fatalf("add: %v", err)
		}
		peers[slot] = p
	}
	activate(tb, 1, "alice")
	activate(tb, 2, "bob")
	tb.SetState(3, StateAwaitingUsername)
	activate(tb, 4, "carol")
	// Carol's outbox is full; slot 5 never got past Connected.
	peers[4].send(protocol.Event{Code: protocol.CodeUserJoin})

	tb.Poll()
	ev := protocol.NewTextEvent(protocol.CodeMessage, 1, "alice: hi")
	if n := tb.RelayFrom(1, ev); n != 2 {
		t.Fatalf("delivered = %d, want 2", n)
	}

	for slot, want := range map[int]int{1: 0, 2: 1, 3: 1, 5: 0} {
		got := frames(t, peers[slot])
		if len(got) != want {
			t.Fatalf("slot %d got %d frames, want %d", slot, len(got), want)
		}
		if want == 1 {
			if diff := cmp.Diff(ev, got[0]); diff != "" {
				t.Fatalf("slot %d event mismatch (-want +got):\n%s", slot, diff)
			}
		}
	}
	if got := frames(t, peers[4]); len(got) != 1 || got[0].Code != protocol.CodeUserJoin {
		t.Fatalf("carol should only hold her earlier frame, got %v", got)
	}
}

func TestTable_RelayMessageFromPrefixesUsername(t *testing.T) {
	cfg := testConfig()
	tb := NewTable(cfg)
	alice, bob := idlePeer(t, cfg), idlePeer(t, cfg)
	tb.Add(alice)
	tb.Add(bob)
	activate(tb, 1, "alice")
	activate(tb, 2, "bob")
	tb.Poll()

	tb.RelayMessageFrom(1, "h\x07i")

	want := []protocol.Event{protocol.NewTextEvent(protocol.CodeMessage, 1, "alice: hi")}
	if diff := cmp.Diff(want, frames(t, bob)); diff != "" {
		t.Fatalf("bob mismatch (-want +got):\n%s", diff)
	}
	if got := frames(t, alice); len(got) != 0 {
		t.Fatalf("sender received its own message: %v", got)
	}
}

func TestTable_RelayMessageFromTruncatesToMaxContent(t *testing.T) {
	cfg := testConfig()
	cfg.MaxContentLength = 10
	tb := NewTable(cfg)
	bob := idlePeer(t, cfg)
	tb.Add(idlePeer(t, cfg))
	tb.Add(bob)
	activate(tb, 1, "alice")
	activate(tb, 2, "bob")
	tb.Poll()

	tb.RelayMessageFrom(1, "hello there")

	got := frames(t, bob)
	if len(got) != 1 || string(got[0].Content) != "alice: hel" {
		t.Fatalf("truncated message = %v", got)
	}
}

func TestTable_ShutdownNotifiesAndClosesEverySlot(t *testing.T) {
	cfg := testConfig()
	tb := NewTable(cfg)
	a, b := idlePeer(t, cfg), idlePeer(t, cfg)
	tb.Add(a)
	tb.Add(b)
	activate(tb, 1, "alice")

	tb.Shutdown()

	if tb.Count() != 1 {
		t.Fatalf("count after shutdown = %d, want 1", tb.Count())
	}
	for _, p := range []*peer{a, b} {
		got := frames(t, p)
		if len(got) != 1 || got[0].Code != protocol.CodeServerShutdown {
			t.Fatalf("shutdown frames = %v", got)
		}
	}
}

func TestTable_UserListHoldsActiveNamesInSlotOrder(t *testing.T) {
	cfg := testConfig()
	tb := NewTable(cfg)
	if _, ok := tb.userListEvent(); ok {
		t.Fatal("empty table should not build a user list")
	}
	for i := 0; i < 3; i++ {
		tb.Add(idlePeer(t, cfg))
	}
	activate(tb, 3, "carol")
	activate(tb, 1, "alice")

	ev, ok := tb.userListEvent()
	if !ok {
		t.Fatal("expected a user list")
	}
	if diff := cmp.Diff([]string{"alice", "carol"}, protocol.DecodeUserList(ev.Content)); diff != "" {
		t.Fatalf("user list mismatch (-want +got):\n%s", diff)
	}
}
