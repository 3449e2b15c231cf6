package eventx

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type recorded struct {
	name    string
	payload any
}

func recordAll(t *testing.T, e *Emitter, events ...string) *[]recorded {
	t.Helper()
	var log []recorded
	for _, name := range events {
		name := name
		e.On(name, func(p any) { log = append(log, recorded{name: name, payload: p}) })
	}
	return &log
}

func TestSequencerReordersOutOfOrderPair(t *testing.T) {
	t.Parallel()

	e := NewEmitter(nil)
	log := recordAll(t, e, "A", "B")

	s := NewSequencer(e)
	s.AddSequence("pair", []string{"A", "B"})

	// Wire order is B then A; observers must see A then B.
	s.Emit("B", 2)
	require.Empty(t, *log, "B is held back until A arrives")

	s.Emit("A", 1)
	require.Equal(t, []recorded{{"A", 1}, {"B", 2}}, *log)
}

func TestSequencerPassesInOrderPairThrough(t *testing.T) {
	t.Parallel()

	e := NewEmitter(nil)
	log := recordAll(t, e, "A", "B")

	s := NewSequencer(e)
	s.AddSequence("pair", []string{"A", "B"})

	s.Emit("A", 1)
	s.Emit("B", 2)
	require.Equal(t, []recorded{{"A", 1}, {"B", 2}}, *log)
}

func TestSequencerNonParticipantPassesThrough(t *testing.T) {
	t.Parallel()

	e := NewEmitter(nil)
	log := recordAll(t, e, "A", "B", "C")

	s := NewSequencer(e)
	s.AddSequence("pair", []string{"A", "B"})

	s.Emit("B", nil)
	s.Emit("C", nil)
	require.Equal(t, []recorded{{"C", nil}}, *log, "C is not part of the sequence")
}

func TestSequencerGeneralizesBeyondTwoEvents(t *testing.T) {
	t.Parallel()

	e := NewEmitter(nil)
	log := recordAll(t, e, "A", "B", "C")

	s := NewSequencer(e)
	s.AddSequence("triple", []string{"A", "B", "C"})

	s.Emit("C", nil)
	s.Emit("B", nil)
	require.Empty(t, *log)

	s.Emit("A", nil)
	require.Equal(t, []recorded{{"A", nil}, {"B", nil}, {"C", nil}}, *log)
}

func TestSequencerDuplicateLaterEventsFlushInReceiptOrder(t *testing.T) {
	t.Parallel()

	e := NewEmitter(nil)
	log := recordAll(t, e, "A", "B")

	s := NewSequencer(e)
	s.AddSequence("pair", []string{"A", "B"})

	s.Emit("B", 1)
	s.Emit("B", 2)
	s.Emit("A", 0)
	require.Equal(t, []recorded{{"A", 0}, {"B", 1}, {"B", 2}}, *log)
}

func TestSequencerRemoveSequenceFlushesBuffered(t *testing.T) {
	t.Parallel()

	e := NewEmitter(nil)
	log := recordAll(t, e, "A", "B")

	s := NewSequencer(e)
	s.AddSequence("pair", []string{"A", "B"})

	s.Emit("B", 1)
	require.Empty(t, *log)

	// Dropping the rule must not drop the event.
	s.RemoveSequence("pair")
	require.Equal(t, []recorded{{"B", 1}}, *log)

	// With no rule active the pair bypasses sequencing entirely.
	s.Emit("B", 2)
	s.Emit("A", 3)
	require.Equal(t, []recorded{{"B", 1}, {"B", 2}, {"A", 3}}, *log)
}
