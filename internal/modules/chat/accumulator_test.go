package chat

import (
	"reflect"
	"testing"

	"travelflow/internal/ai"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to TurnState
		want     bool
	}{
		{TurnIdle, TurnStreaming, true},
		{TurnIdle, TurnFailed, true},
		{TurnStreaming, TurnSettled, true},
		{TurnStreaming, TurnFailed, true},
		// terminal states have no outgoing transitions
		{TurnSettled, TurnStreaming, false},
		{TurnSettled, TurnFailed, false},
		{TurnFailed, TurnStreaming, false},
		// settling requires a stream
		{TurnIdle, TurnSettled, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestAccumulatorConcatenatesInArrivalOrder(t *testing.T) {
	place := ai.PlaceSource{URI: "https://maps.example/1", Title: "Cafe"}
	web := ai.WebSource{URI: "https://web.example/1", Title: "Guide"}
	chunks := []ai.StreamChunk{
		{Text: "Hel"},
		{Text: "lo", Grounding: []ai.GroundingChunk{web}},
		{Grounding: []ai.GroundingChunk{place, place}},
		{Text: "!"},
	}
	wantInProgress := []bool{false, false, false, false}

	acc := NewAccumulator()
	if err := acc.Begin(Message{ID: "m1", Role: RoleModel}); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if !acc.Snapshot().InProgress {
		t.Fatal("placeholder must start in progress")
	}

	for i, c := range chunks {
		snap, err := acc.Apply(c)
		if err != nil {
			t.Fatalf("apply %d: %v", i, err)
		}
		if snap.InProgress != wantInProgress[i] {
			t.Errorf("after chunk %d in_progress = %v, want %v", i, snap.InProgress, wantInProgress[i])
		}
	}
	if err := acc.Settle(); err != nil {
		t.Fatalf("settle: %v", err)
	}

	final := acc.Snapshot()
	if final.Text != "Hello!" {
		t.Errorf("text = %q, want Hello!", final.Text)
	}
	want := ai.GroundingList{web, place, place}
	if !reflect.DeepEqual(final.Grounding, want) {
		t.Errorf("grounding = %#v, want %#v", final.Grounding, want)
	}
}

func TestAccumulatorGroundingOnlyKeepsInProgress(t *testing.T) {
	acc := NewAccumulator()
	_ = acc.Begin(Message{ID: "m1", Role: RoleModel})

	snap, _ := acc.Apply(ai.StreamChunk{Grounding: []ai.GroundingChunk{ai.WebSource{URI: "u"}}})
	if !snap.InProgress {
		t.Error("grounding-only chunk before any text must keep in_progress set")
	}
	snap, _ = acc.Apply(ai.StreamChunk{Text: ""})
	if !snap.InProgress {
		t.Error("empty text delta must keep in_progress set")
	}
	snap, _ = acc.Apply(ai.StreamChunk{Text: "Hi"})
	if snap.InProgress {
		t.Error("first non-empty text must clear in_progress")
	}
}

func TestAccumulatorFrozenAfterTerminalState(t *testing.T) {
	acc := NewAccumulator()
	_ = acc.Begin(Message{ID: "m1", Role: RoleModel})
	_, _ = acc.Apply(ai.StreamChunk{Text: "Par"})
	if err := acc.Fail(); err != nil {
		t.Fatalf("fail: %v", err)
	}

	if _, err := acc.Apply(ai.StreamChunk{Text: "tial"}); err != ErrInvalidTransition {
		t.Errorf("expected ErrInvalidTransition after failure, got %v", err)
	}
	if got := acc.Snapshot().Text; got != "Par" {
		t.Errorf("text mutated after failure: %q", got)
	}
	if err := acc.Settle(); err != ErrInvalidTransition {
		t.Errorf("expected ErrInvalidTransition settling a failed turn, got %v", err)
	}
}

func TestAccumulatorSnapshotDoesNotAlias(t *testing.T) {
	acc := NewAccumulator()
	_ = acc.Begin(Message{ID: "m1", Role: RoleModel})
	snap, _ := acc.Apply(ai.StreamChunk{Grounding: []ai.GroundingChunk{ai.WebSource{URI: "a"}}})
	_, _ = acc.Apply(ai.StreamChunk{Grounding: []ai.GroundingChunk{ai.WebSource{URI: "b"}}})
	if len(snap.Grounding) != 1 {
		t.Errorf("earlier snapshot changed: %#v", snap.Grounding)
	}
}

func TestSnapshotSlotSupersedes(t *testing.T) {
	slot := newSnapshotSlot()
	slot.publish(Message{Text: "H"})
	slot.publish(Message{Text: "He"})
	slot.publish(Message{Text: "Hel"})

	got := <-slot.ch
	if got.Text != "Hel" {
		t.Errorf("expected latest snapshot Hel, got %q", got.Text)
	}
	select {
	case m := <-slot.ch:
		t.Errorf("expected empty slot, got %q", m.Text)
	default:
	}
}
