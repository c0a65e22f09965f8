package async

// Deferred is a queue of continuations that run at the start of the next
// tick. Work deferred while the queue drains lands in the following tick, so
// "wait one tick" always means exactly one Drain.
type Deferred struct {
	queue []func()
}

// Defer schedules fn for the next Drain.
func (d *Deferred) Defer(fn func()) {
	d.queue = append(d.queue, fn)
}

// Drain runs everything queued before the call and returns how many actions
// ran.
func (d *Deferred) Drain() int {
	pending := d.queue
	d.queue = nil
	for _, fn := range pending {
		fn()
	}
	return len(pending)
}

// Len returns the number of queued actions.
func (d *Deferred) Len() int { return len(d.queue) }

// Reset drops every queued action.
func (d *Deferred) Reset() { d.queue = nil }
