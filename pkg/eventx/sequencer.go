package eventx

import "sync"

// Sequencer replays events to a target emitter in a declared logical
// order even when they are handed to it in the opposite wire order.
//
// A sequence declares an ordered list of event names. While the
// sequence is active, an occurrence of a later-named event is buffered
// until every earlier-named event has been observed at least once; as
// soon as the missing earlier event arrives, buffered events are
// flushed in their original receipt order. Events that belong to no
// active sequence pass through immediately.
type Sequencer struct {
	target *Emitter

	mu        sync.Mutex
	sequences map[string]*sequence
}

type sequence struct {
	order  []string
	seen   map[string]bool
	buffer []pendingEvent
}

type pendingEvent struct {
	name    string
	payload any
}

// NewSequencer creates a sequencer that forwards to target.
func NewSequencer(target *Emitter) *Sequencer {
	return &Sequencer{
		target:    target,
		sequences: make(map[string]*sequence),
	}
}

// AddSequence activates an ordering rule under the given name. Calling
// it again with the same name resets the rule (seen state and buffered
// events are discarded into the target first, in receipt order).
func (s *Sequencer) AddSequence(name string, orderedEvents []string) {
	s.mu.Lock()
	prev := s.sequences[name]
	order := make([]string, len(orderedEvents))
	copy(order, orderedEvents)
	s.sequences[name] = &sequence{
		order: order,
		seen:  make(map[string]bool),
	}
	var flush []pendingEvent
	if prev != nil {
		flush = prev.takeBuffered()
	}
	s.mu.Unlock()

	for _, ev := range flush {
		s.target.Emit(ev.name, ev.payload)
	}
}

// RemoveSequence deactivates the named rule. Any events it was holding
// back are flushed to the target in receipt order; nothing is dropped.
func (s *Sequencer) RemoveSequence(name string) {
	s.mu.Lock()
	seq := s.sequences[name]
	delete(s.sequences, name)
	var flush []pendingEvent
	if seq != nil {
		flush = seq.takeBuffered()
	}
	s.mu.Unlock()

	for _, ev := range flush {
		s.target.Emit(ev.name, ev.payload)
	}
}

// Emit hands an event to the sequencer. It is either forwarded to the
// target immediately or buffered until its ordering prerequisites have
// been observed.
func (s *Sequencer) Emit(event string, payload any) {
	s.mu.Lock()
	seq := s.sequenceFor(event)
	if seq == nil {
		s.mu.Unlock()
		s.target.Emit(event, payload)
		return
	}

	if seq.blocked(event) {
		seq.buffer = append(seq.buffer, pendingEvent{name: event, payload: payload})
		s.mu.Unlock()
		return
	}

	seq.seen[event] = true
	release := seq.drainEligible()
	s.mu.Unlock()

	s.target.Emit(event, payload)
	for _, ev := range release {
		s.target.Emit(ev.name, ev.payload)
	}
}

// sequenceFor returns the active sequence that names event, if any.
// Callers must hold s.mu.
func (s *Sequencer) sequenceFor(event string) *sequence {
	for _, seq := range s.sequences {
		for _, name := range seq.order {
			if name == event {
				return seq
			}
		}
	}
	return nil
}

func (q *sequence) takeBuffered() []pendingEvent {
	out := q.buffer
	q.buffer = nil
	return out
}

// blocked reports whether event must wait for an earlier-named event in
// the declared order that has not been observed yet.
func (q *sequence) blocked(event string) bool {
	for _, name := range q.order {
		if name == event {
			return false
		}
		if !q.seen[name] {
			return true
		}
	}
	return false
}

// drainEligible removes and returns, in receipt order, every buffered
// event whose prerequisites are now satisfied, marking each as seen so
// later buffered entries can unblock in turn.
func (q *sequence) drainEligible() []pendingEvent {
	var out []pendingEvent
	for {
		released := false
		for i, ev := range q.buffer {
			if !q.blocked(ev.name) {
				q.seen[ev.name] = true
				out = append(out, ev)
				q.buffer = append(q.buffer[:i:i], q.buffer[i+1:]...)
				released = true
				break
			}
		}
		if !released {
			return out
		}
	}
}
