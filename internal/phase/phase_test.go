package phase

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrackerCurrent(t *testing.T) {
	tr := NewTracker()
	assert.Equal(t, Idle, tr.Current())

	tr.Set(FetchingChallenge)
	assert.Equal(t, FetchingChallenge, tr.Current())

	tr.Set(Done)
	assert.Equal(t, Done, tr.Current())
}

func TestTrackerSubscribe(t *testing.T) {
	tr := NewTracker()
	ch, cancel := tr.Subscribe()
	defer cancel()

	tr.Set(CheckingAccess)
	tr.Set(Done)

	assert.Equal(t, CheckingAccess, <-ch)
	assert.Equal(t, Done, <-ch)
}

func TestTrackerCancelStopsDelivery(t *testing.T) {
	tr := NewTracker()
	ch, cancel := tr.Subscribe()
	cancel()

	tr.Set(Done)

	_, open := <-ch
	assert.False(t, open)
}

func TestTrackerSlowSubscriberDoesNotBlock(t *testing.T) {
	tr := NewTracker()
	_, cancel := tr.Subscribe()
	defer cancel()

	// Overflow the buffer; Set must not block.
	for i := 0; i < 100; i++ {
		tr.Set(FetchingChallenge)
	}
	assert.Equal(t, FetchingChallenge, tr.Current())
}
