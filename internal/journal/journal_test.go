package journal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gitlab.com/ConsignEx/escrowrouter/internal/lib"
	"gitlab.com/ConsignEx/escrowrouter/internal/testlib"
)

func TestJournalSequenceMonotonic(t *testing.T) {
	j := NewJournal(100, &lib.LoggerMock{})

	repeats := 50
	testlib.RepeatConcurrent(t, repeats, func(t *testing.T) {
		j.Append(Event{Kind: EventDealSigned, DealID: "0x01"})
	})

	events := j.Last(repeats)
	require.Len(t, events, repeats)

	seen := make(map[uint64]struct{})
	for _, e := range events {
		_, dup := seen[e.Seq]
		require.False(t, dup, "sequence %d assigned twice", e.Seq)
		seen[e.Seq] = struct{}{}
		require.False(t, e.At.IsZero())
	}
}

func TestJournalCapacity(t *testing.T) {
	j := NewJournal(3, &lib.LoggerMock{})

	for i := 0; i < 10; i++ {
		j.Append(Event{Kind: EventDealLocked, DealID: "0x01"})
	}

	events := j.Last(10)
	require.Len(t, events, 3)
	require.Equal(t, uint64(8), events[0].Seq)
	require.Equal(t, uint64(10), events[2].Seq)
}

func TestJournalDealEventsFiltered(t *testing.T) {
	j := NewJournal(100, &lib.LoggerMock{})

	hashA := lib.GetRandomHash()
	hashB := lib.GetRandomHash()

	j.Append(Event{Kind: EventDealLocked, DealID: hashA.Hex()})
	j.Append(Event{Kind: EventDealLocked, DealID: hashB.Hex()})
	j.Append(Event{Kind: EventDealSigned, DealID: hashA.Hex()})

	events := j.DealEvents(hashA)
	require.Len(t, events, 2)
	require.Equal(t, EventDealLocked, events[0].Kind)
	require.Equal(t, EventDealSigned, events[1].Kind)
}

func TestJournalSubscribeReceivesInOrder(t *testing.T) {
	j := NewJournal(100, &lib.LoggerMock{})

	sub := j.Subscribe()
	defer sub.Unsubscribe()

	go func() {
		for i := 0; i < 5; i++ {
			j.Append(Event{Kind: EventDealSigned, DealID: "0x01"})
		}
	}()

	var last uint64
	for i := 0; i < 5; i++ {
		select {
		case raw := <-sub.Events():
			e := raw.(Event)
			require.Greater(t, e.Seq, last)
			last = e.Seq
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestJournalSlowSubscriberDoesNotBlock(t *testing.T) {
	j := NewJournal(1000, &lib.LoggerMock{})

	sub := j.Subscribe()
	defer sub.Unsubscribe()

	// nobody reads sub, writer must still make progress
	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*3; i++ {
			j.Append(Event{Kind: EventDealSigned, DealID: "0x01"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("writer blocked on slow subscriber")
	}
}
