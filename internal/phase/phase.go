// Package phase tracks protocol state-machine progress for consumption by
// a presentation layer, replacing per-call progress callbacks with a
// pollable current phase and an optional subscription stream.
package phase

import "sync"

// Phase names a protocol state. The empty phase means idle.
type Phase string

const (
	Idle                  Phase = ""
	CheckingAccess        Phase = "checking_access"
	FetchingChallenge     Phase = "fetching_challenge"
	AwaitingUserGesture   Phase = "awaiting_user_gesture"
	SubmittingAttestation Phase = "submitting_attestation"
	SubmittingAssertion   Phase = "submitting_assertion"
	Done                  Phase = "done"
	Failed                Phase = "failed"
)

// Tracker records the current phase and fans transitions out to
// subscribers. Slow subscribers drop intermediate transitions rather than
// blocking the protocol.
type Tracker struct {
	mu      sync.Mutex
	current Phase
	subs    []chan Phase
}

// NewTracker creates an idle tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Set records a transition and notifies subscribers.
func (t *Tracker) Set(p Phase) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.current = p
	for _, ch := range t.subs {
		select {
		case ch <- p:
		default:
		}
	}
}

// Current returns the phase as of the last transition.
func (t *Tracker) Current() Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Subscribe returns a buffered channel of transitions and a cancel
// function that closes it.
func (t *Tracker) Subscribe() (<-chan Phase, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch := make(chan Phase, 16)
	t.subs = append(t.subs, ch)

	cancel := func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, sub := range t.subs {
			if sub == ch {
				t.subs = append(t.subs[:i], t.subs[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, cancel
}
