package mqtt

// queuedMsg is a serialized message waiting for the broker.
type queuedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// backlog is a fixed-capacity FIFO of messages published while offline.
// When full the oldest message is overwritten. Not safe for concurrent use.
type backlog struct {
	msgs    []queuedMsg
	next    int // write position
	count   int
	dropped int // overwritten since the last drain
}

func newBacklog(capacity int) *backlog {
	return &backlog{msgs: make([]queuedMsg, capacity)}
}

// push appends msg and reports whether an older message was lost.
func (b *backlog) push(msg queuedMsg) bool {
	if len(b.msgs) == 0 {
		b.dropped++
		return true
	}
	full := b.count == len(b.msgs)
	b.msgs[b.next] = msg
	b.next = (b.next + 1) % len(b.msgs)
	if full {
		b.dropped++
	} else {
		b.count++
	}
	return full
}

// drain returns queued messages oldest first and empties the backlog.
func (b *backlog) drain() []queuedMsg {
	if b.count == 0 {
		return nil
	}
	out := make([]queuedMsg, 0, b.count)
	start := (b.next - b.count + len(b.msgs)) % len(b.msgs)
	for i := 0; i < b.count; i++ {
		out = append(out, b.msgs[(start+i)%len(b.msgs)])
	}
	b.next, b.count, b.dropped = 0, 0, 0
	return out
}

func (b *backlog) len() int {
	return b.count
}
