package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/muurk/pettracer/internal/protocol"
)

// Destinations used by the live channel.
const (
	DestinationMessages   = "/user/queue/messages"
	DestinationPortal     = "/user/queue/portal"
	DestinationActivate   = "/app/subscribe"
	DestinationDeactivate = "/app/unsubscribe"
)

// DefaultDestinations is the fixed set of topics subscribed on every
// connection.
var DefaultDestinations = []string{DestinationMessages, DestinationPortal}

// SubscriptionState tracks whether a subscription has seen traffic.
type SubscriptionState int

const (
	SubscriptionPending SubscriptionState = iota
	SubscriptionActive
)

// String returns the lower-case state name
func (s SubscriptionState) String() string {
	switch s {
	case SubscriptionPending:
		return "pending"
	case SubscriptionActive:
		return "active"
	default:
		return fmt.Sprintf("subscription_state(%d)", int(s))
	}
}

// Subscription is one SUBSCRIBE issued on the current connection.
type Subscription struct {
	ID          string
	Destination string
	State       SubscriptionState
	CreatedAt   time.Time
	ActivatedAt time.Time
}

// Sender writes frames to the connection. *Transport implements it.
type Sender interface {
	Send(frames ...*protocol.Frame) error
}

// SubscriptionObserver is called when a subscription becomes Active.
type SubscriptionObserver func(Subscription)

// DeviceIDsPayload is the body of the activation and deactivation commands.
type DeviceIDsPayload struct {
	DeviceIDs []int `json:"deviceIds"`
}

// Subscriptions tracks the subscriptions of one connection. Ids are
// sub-0, sub-1, ... in issue order and are never reused on that connection.
type Subscriptions struct {
	mu        sync.Mutex
	next      int
	records   []*Subscription
	observers []SubscriptionObserver

	now func() time.Time
}

// NewSubscriptions returns an empty manager for a new connection.
func NewSubscriptions() *Subscriptions {
	return &Subscriptions{now: time.Now}
}

// Observe registers fn for Pending to Active transitions.
func (s *Subscriptions) Observe(fn SubscriptionObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// Subscribe sends one SUBSCRIBE per destination and records each as Pending.
func (s *Subscriptions) Subscribe(sender Sender, destinations ...string) ([]Subscription, error) {
	out := make([]Subscription, 0, len(destinations))
	for _, dest := range destinations {
		s.mu.Lock()
		id := fmt.Sprintf("sub-%d", s.next)
		s.next++
		s.mu.Unlock()

		if err := sender.Send(protocol.NewSubscribe(id, dest)); err != nil {
			return out, fmt.Errorf("subscribe %s: %w", dest, err)
		}

		rec := &Subscription{
			ID:          id,
			Destination: dest,
			State:       SubscriptionPending,
			CreatedAt:   s.now(),
		}
		s.mu.Lock()
		s.records = append(s.records, rec)
		s.mu.Unlock()
		out = append(out, *rec)
	}
	return out, nil
}

// Activate tells the server which devices to stream. Without it no MESSAGE
// frames arrive on any subscription.
func (s *Subscriptions) Activate(sender Sender, deviceIDs []int) error {
	return sendDeviceIDs(sender, DestinationActivate, deviceIDs)
}

// Deactivate tells the server to stop streaming the given devices.
func (s *Subscriptions) Deactivate(sender Sender, deviceIDs []int) error {
	if len(deviceIDs) == 0 {
		return nil
	}
	return sendDeviceIDs(sender, DestinationDeactivate, deviceIDs)
}

func sendDeviceIDs(sender Sender, destination string, deviceIDs []int) error {
	frame, err := protocol.NewSend(destination, DeviceIDsPayload{DeviceIDs: NormalizeDeviceIDs(deviceIDs)})
	if err != nil {
		return err
	}
	if err := sender.Send(frame); err != nil {
		return fmt.Errorf("send %s: %w", destination, err)
	}
	return nil
}

// Match finds the subscription a MESSAGE belongs to, by subscription header
// and then by destination, and marks it Active on first traffic.
func (s *Subscriptions) Match(frame *protocol.Frame) (Subscription, bool) {
	s.mu.Lock()
	rec := s.find(frame.Subscription(), frame.Destination())
	if rec == nil {
		s.mu.Unlock()
		return Subscription{}, false
	}

	activated := rec.State == SubscriptionPending
	if activated {
		rec.State = SubscriptionActive
		rec.ActivatedAt = s.now()
	}
	snapshot := *rec
	observers := append([]SubscriptionObserver(nil), s.observers...)
	s.mu.Unlock()

	if activated {
		for _, fn := range observers {
			fn(snapshot)
		}
	}
	return snapshot, true
}

func (s *Subscriptions) find(id, destination string) *Subscription {
	if id != "" {
		for _, rec := range s.records {
			if rec.ID == id {
				return rec
			}
		}
	}
	if destination != "" {
		for _, rec := range s.records {
			if rec.Destination == destination {
				return rec
			}
		}
	}
	return nil
}

// Records returns a copy of all subscriptions in issue order.
func (s *Subscriptions) Records() []Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Subscription, len(s.records))
	for i, rec := range s.records {
		out[i] = *rec
	}
	return out
}
