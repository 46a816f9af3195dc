package chat

// listenHandle is what slot 0 holds: something that can report a pending
// connection without blocking.
type listenHandle interface {
	pending() bool
}

// Table is the growable connection table. Slot indices are stable for the
// table's lifetime and double as originator ids. A Table is owned by one
// goroutine and is not safe for concurrent use.
type Table struct {
	slots      []Slot
	count      int
	growth     float64
	maxSlots   int
	maxContent int
	listener   listenHandle
}

// NewTable returns a table of cfg.InitialCapacity slots with slot 0 taken by
// the server role.
func NewTable(cfg Config) *Table {
	cfg = cfg.Sanitize()
	t := &Table{
		slots:      make([]Slot, cfg.InitialCapacity),
		growth:     cfg.GrowthFactor,
		maxSlots:   cfg.MaxSlots,
		maxContent: cfg.MaxContentLength,
	}
	t.slots[ServerSlot] = Slot{username: serverUsername, named: true, state: StateServer}
	t.count = 1
	return t
}

// Size is the current capacity.
func (t *Table) Size() int { return len(t.slots) }

// Count is the number of non-blank slots, including slot 0.
func (t *Table) Count() int { return t.count }

func (t *Table) valid(i int) bool { return i >= 0 && i < len(t.slots) }

// Poll takes a fresh readiness snapshot of every slot without blocking.
func (t *Table) Poll() {
	for i := range t.slots {
		s := &t.slots[i]
		s.readable, s.writable = false, false
		switch {
		case i == ServerSlot:
			s.readable = t.listener != nil && t.listener.pending()
		case s.peer != nil:
			s.readable = s.peer.pending()
			s.writable = s.peer.ready()
		}
	}
}

func (t *Table) Readable(i int) bool { return t.valid(i) && t.slots[i].readable }

func (t *Table) Writable(i int) bool { return t.valid(i) && t.slots[i].writable }

func (t *Table) State(i int) State {
	if !t.valid(i) {
		return StateUninitialized
	}
	return t.slots[i].state
}

func (t *Table) SetState(i int, s State) {
	if i <= ServerSlot || i >= len(t.slots) || t.slots[i].blank() {
		return
	}
	t.slots[i].state = s
}

// Username returns the name stored in slot i, if one was set.
func (t *Table) Username(i int) (string, bool) {
	if !t.valid(i) || !t.slots[i].named {
		return "", false
	}
	return t.slots[i].username, true
}

func (t *Table) setUsername(i int, name string) {
	t.slots[i].username = name
	t.slots[i].named = true
}

func (t *Table) peerAt(i int) *peer {
	if i <= ServerSlot || i >= len(t.slots) {
		return nil
	}
	return t.slots[i].peer
}

// ActiveUsernames lists the names of Active users in slot order.
func (t *Table) ActiveUsernames() []string {
	var names []string
	for i := ServerSlot + 1; i < len(t.slots); i++ {
		if t.slots[i].state == StateActive {
			names = append(names, t.slots[i].username)
		}
	}
	return names
}

func (t *Table) usernameTaken(name string) bool {
	for i := ServerSlot + 1; i < len(t.slots); i++ {
		if t.slots[i].state == StateActive && t.slots[i].username == name {
			return true
		}
	}
	return false
}

// Add places p in the lowest blank slot, growing the table first when every
// slot is taken. On ErrTableFull the table is unchanged.
func (t *Table) Add(p *peer) (int, error) {
	if t.count >= len(t.slots) {
		if err := t.grow(); err != nil {
			return 0, err
		}
	}
	for i := ServerSlot + 1; i < len(t.slots); i++ {
		if t.slots[i].blank() {
			t.slots[i] = Slot{peer: p, state: StateConnected}
			t.count++
			return i, nil
		}
	}
	return 0, ErrTableFull
}

func (t *Table) grow() error {
	size := len(t.slots)
	newSize := int(float64(size) * t.growth)
	if newSize <= size {
		newSize = size + 1
	}
	if t.maxSlots > 0 && newSize > t.maxSlots {
		newSize = t.maxSlots
	}
	if newSize <= size {
		return ErrTableFull
	}
	slots := make([]Slot, newSize)
	copy(slots, t.slots)
	t.slots = slots
	return nil
}

// Close shuts the connection in slot i and blanks the slot. Slot 0, out of
// range indices and blank slots are ignored.
func (t *Table) Close(i int) {
	if i <= ServerSlot || i >= len(t.slots) || t.slots[i].blank() {
		return
	}
	if p := t.slots[i].peer; p != nil {
		p.close()
	}
	t.slots[i] = Slot{}
	t.count--
}

// Shutdown notifies every initialized slot that the server is going away and
// closes it. A peer that cannot take the notification is closed regardless.
func (t *Table) Shutdown() {
	for i := ServerSlot + 1; i < len(t.slots); i++ {
		if t.slots[i].state <= StateUninitialized {
			continue
		}
		if p := t.slots[i].peer; p != nil && p.ready() {
			p.send(shutdownEvent)
		}
		t.Close(i)
	}
}

// pendingInput reports whether any slot has queued input. It looks at the
// live handles, not the snapshot.
func (t *Table) pendingInput() bool {
	if t.listener != nil && t.listener.pending() {
		return true
	}
	for i := ServerSlot + 1; i < len(t.slots); i++ {
		if p := t.slots[i].peer; p != nil && p.pending() {
			return true
		}
	}
	return false
}
