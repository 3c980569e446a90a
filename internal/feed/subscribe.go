package feed

import "sync"

type subscription struct {
	onUpdate func([]Record)
	onError  func(error)
	wake     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func (s *subscription) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscription) stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

func (s *subscription) stopped() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Subscribe registers callbacks for the feed's full state. onUpdate is called
// right away with the current state and again after every change; updates
// that arrive while a callback runs are coalesced into the latest state.
// Callbacks for one subscription never run concurrently. onError is called at
// most once, when the feed closes, and ends the subscription.
//
// The returned function unsubscribes. It is safe to call more than once and
// from inside a callback. A callback already running when it is called may
// still complete; none is started afterwards.
func (f *Feed) Subscribe(onUpdate func([]Record), onError func(error)) func() {
	s := &subscription{
		onUpdate: onUpdate,
		onError:  onError,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}

	f.mu.Lock()
	closed := f.closed
	id := f.nextSub
	f.nextSub++
	if !closed {
		f.subs[id] = s
	}
	f.mu.Unlock()

	s.notify()
	go f.deliver(s)

	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
		s.stop()
	}
}

func (f *Feed) deliver(s *subscription) {
	var delivered uint64
	first := true
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}
		if s.stopped() {
			return
		}

		state, version, closed := f.snapshot()
		if closed {
			if s.onError != nil {
				s.onError(ErrClosed)
			}
			s.stop()
			return
		}
		if !first && version == delivered {
			continue
		}
		first = false
		delivered = version
		if s.stopped() {
			return
		}
		if s.onUpdate != nil {
			s.onUpdate(state)
		}
	}
}
