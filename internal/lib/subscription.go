package lib

import "sync"

// Subscription runs a producer function in a background goroutine and
// exposes its event stream and terminal error, following the semantics
// of ethereum event.Subscription.
type Subscription struct {
	sink chan interface{}
	quit chan struct{}
	err  chan error
	once sync.Once
}

// NewSubscription starts run in a new goroutine. The producer should
// deliver events into sink and return when quit is closed. The error
// returned by run is available on Err.
func NewSubscription(run func(quit <-chan struct{}) error, sink chan interface{}) *Subscription {
	s := &Subscription{
		sink: sink,
		quit: make(chan struct{}),
		err:  make(chan error, 1),
	}

	go func() {
		err := run(s.quit)
		if err != nil {
			s.err <- err
		}
		close(s.err)
	}()

	return s
}

func (s *Subscription) Events() <-chan interface{} {
	return s.sink
}

// Err yields the error the producer returned, closed after the producer
// exits.
func (s *Subscription) Err() <-chan error {
	return s.err
}

// Unsubscribe signals the producer to stop and waits for it to exit.
// Safe to call multiple times.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		close(s.quit)
	})
	<-s.err
}
