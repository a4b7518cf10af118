package common

import (
	"sync"

	"github.com/google/uuid"
)

// SubscriptionChanSize bounds the number of undelivered events held for each
// subscriber
const SubscriptionChanSize = 16

// SubscriptionTarget defines the interface between a subscription and its
// target object
type SubscriptionTarget interface {
	NewSubscription() (*Subscription, error)
	CloseSubscription(*Subscription) error
}

// Subscription exposes an event channel for consumers, and attaches to a
// SubscriptionTarget, that will feed it with events
type Subscription struct {
	events   chan interface{}
	quitChan chan struct{}
	id       uuid.UUID
	target   SubscriptionTarget
	mu       sync.RWMutex
}

// ID returns the unique ID for this subscription
func (s *Subscription) ID() string {
	return s.id.String()
}

// Events returns a chan reader for reading events published to this
// subscription
func (s *Subscription) Events() <-chan interface{} {
	return s.events
}

// Write pushes an event onto the events channel without blocking.  When the
// subscriber has fallen behind by SubscriptionChanSize events the event is
// dropped and ErrSubscriberFull is returned.
func (s *Subscription) Write(event interface{}) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	select {
	case <-s.quitChan:
		return ErrClosed
	default:
	}
	select {
	case s.events <- event:
		return nil
	default:
		return ErrSubscriberFull
	}
}

// Close cleans up resources and notifies the target that the subscription
// should no longer be used.
func (s *Subscription) Close() error {
	s.mu.Lock()
	select {
	case <-s.quitChan:
		s.mu.Unlock()
		Log.Warnf(`subscription already closed`)
		return ErrClosed
	default:
		close(s.quitChan)
		close(s.events)
	}
	s.mu.Unlock()
	return s.target.CloseSubscription(s)
}

// NewSubscription returns a *Subscription attached to the specified target
func NewSubscription(target SubscriptionTarget) *Subscription {
	return &Subscription{
		events:   make(chan interface{}, SubscriptionChanSize),
		quitChan: make(chan struct{}),
		id:       uuid.New(),
		target:   target,
	}
}

// Subscriptions is a set of subscriptions that events are fanned out to.  The
// zero value is ready to use.
type Subscriptions struct {
	subs map[string]*Subscription
	sync.RWMutex
}

// Add registers sub.
func (s *Subscriptions) Add(sub *Subscription) {
	s.Lock()
	if s.subs == nil {
		s.subs = make(map[string]*Subscription)
	}
	s.subs[sub.ID()] = sub
	s.Unlock()
}

// Remove unregisters sub, returning ErrNotFound if it was not registered.
func (s *Subscriptions) Remove(sub *Subscription) error {
	s.Lock()
	defer s.Unlock()
	if _, ok := s.subs[sub.ID()]; !ok {
		return ErrNotFound
	}
	delete(s.subs, sub.ID())
	return nil
}

// Len returns the number of registered subscriptions.
func (s *Subscriptions) Len() int {
	s.RLock()
	defer s.RUnlock()
	return len(s.subs)
}

// Publish pushes event to every subscription.  A full or closed subscriber
// never blocks the publisher; the failure is logged and the remaining
// subscribers still receive the event.
func (s *Subscriptions) Publish(event interface{}) {
	s.RLock()
	subs := make([]*Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.RUnlock()

	for _, sub := range subs {
		if err := sub.Write(event); err != nil {
			Log.Warnf("Dropped %T for subscription %s: %v", event, sub.ID(), err)
		}
	}
}

// CloseAll closes every registered subscription.
func (s *Subscriptions) CloseAll() {
	s.RLock()
	subs := make([]*Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.RUnlock()

	for _, sub := range subs {
		_ = sub.Close()
	}
}
