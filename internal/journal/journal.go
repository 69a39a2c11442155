package journal

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gammazero/deque"
	"gitlab.com/ConsignEx/escrowrouter/internal/interfaces"
	"gitlab.com/ConsignEx/escrowrouter/internal/lib"
	"go.uber.org/atomic"
)

type EventKind string

const (
	EventDealLocked    EventKind = "deal.locked"
	EventDealSigned    EventKind = "deal.signed"
	EventDealFinalized EventKind = "deal.finalized"
	EventPayoutFailed  EventKind = "deal.payout_failed"
)

// Role values used in events and metric labels
const (
	RoleBuyer    = "buyer"
	RoleProducer = "producer"
	RoleCarrier  = "carrier"
	RoleArbiter  = "arbiter"
)

// Event is one entry of the append-only transition log. Amounts are
// decimal strings so the event serializes safely to JSON.
type Event struct {
	Seq            uint64    `json:"seq"`
	Kind           EventKind `json:"kind"`
	DealID         string    `json:"dealId"`
	Actor          string    `json:"actor,omitempty"`
	Role           string    `json:"role,omitempty"`
	Mask           uint8     `json:"mask"`
	ProducerAmount string    `json:"producerAmount,omitempty"`
	CarrierAmount  string    `json:"carrierAmount,omitempty"`
	Fee            string    `json:"fee,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	At             time.Time `json:"at"`
}

const subscriberBuffer = 64

// Journal is a bounded in-process log of deal transitions with live
// fan-out. Slow subscribers lose events rather than block the writer.
type Journal struct {
	// config
	capacity int

	// state
	seq    atomic.Uint64
	events *deque.Deque[Event]
	subs   map[int]chan Event
	nextID int
	mutex  sync.RWMutex

	// deps
	log interfaces.ILogger
}

const defaultCapacity = 4096

func NewJournal(capacity int, log interfaces.ILogger) *Journal {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Journal{
		capacity: capacity,
		events:   deque.New[Event](),
		subs:     make(map[int]chan Event),
		log:      log,
	}
}

// Append stamps the event with a sequence number and timestamp, records
// it and delivers it to all current subscribers. Returns the stamped
// event.
func (j *Journal) Append(e Event) Event {
	e.Seq = j.seq.Inc()
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	j.mutex.Lock()
	j.events.PushBack(e)
	for j.events.Len() > j.capacity {
		j.events.PopFront()
	}
	for id, ch := range j.subs {
		select {
		case ch <- e:
		default:
			j.log.Warnf("journal subscriber %d is slow, dropping event %d", id, e.Seq)
		}
	}
	j.mutex.Unlock()

	return e
}

// DealEvents returns the retained events for one deal, oldest first
func (j *Journal) DealEvents(dealID common.Hash) []Event {
	id := dealID.Hex()

	j.mutex.RLock()
	defer j.mutex.RUnlock()

	var out []Event
	for i := 0; i < j.events.Len(); i++ {
		if e := j.events.At(i); e.DealID == id {
			out = append(out, e)
		}
	}
	return out
}

// Last returns up to n most recent events, oldest first
func (j *Journal) Last(n int) []Event {
	j.mutex.RLock()
	defer j.mutex.RUnlock()

	if n > j.events.Len() {
		n = j.events.Len()
	}
	out := make([]Event, 0, n)
	for i := j.events.Len() - n; i < j.events.Len(); i++ {
		out = append(out, j.events.At(i))
	}
	return out
}

// Subscribe returns a live subscription over future events. Unsubscribe
// must be called to release it.
func (j *Journal) Subscribe() *lib.Subscription {
	buf := make(chan Event, subscriberBuffer)

	j.mutex.Lock()
	id := j.nextID
	j.nextID++
	j.subs[id] = buf
	j.mutex.Unlock()

	sink := make(chan interface{})
	return lib.NewSubscription(func(quit <-chan struct{}) error {
		defer func() {
			j.mutex.Lock()
			delete(j.subs, id)
			j.mutex.Unlock()
			close(sink)
		}()

		for {
			select {
			case <-quit:
				return nil
			case e := <-buf:
				select {
				case <-quit:
					return nil
				case sink <- e:
				}
			}
		}
	}, sink)
}
