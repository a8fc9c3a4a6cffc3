// Package events is the in-process system event bus. Hosts publish requests
// such as navigation from inside lifecycle callbacks; the UI and the headless
// runner subscribe to act on them.
package events

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Topic names a class of events.
type Topic string

const (
	// TopicNavigate carries a Navigate payload.
	TopicNavigate Topic = "navigate"
	// TopicNotice carries a Notice payload.
	TopicNotice Topic = "notice"
)

// Event is one published message.
type Event struct {
	Topic   Topic
	Payload any
	Time    time.Time
}

// Navigate asks the UI to show a subject under a route.
type Navigate struct {
	Subject string
	Route   map[string]string
	Reason  string
}

// Notice is a short user-facing message.
type Notice struct {
	Text string
}

// Handler processes an event.
type Handler func(Event)

type subscription struct {
	id      string
	seq     uint64
	topic   Topic
	handler Handler
}

// Bus dispatches events to subscribers synchronously, in subscription order.
//
// Thread Safety: Bus is safe for concurrent use. Handlers run without the bus
// lock held, so they may publish or unsubscribe.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]*subscription
	seq    uint64
	logger *slog.Logger
	now    func() time.Time
}

// NewBus creates a bus. A nil logger uses slog.Default().
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subs:   make(map[string]*subscription),
		logger: logger,
		now:    time.Now,
	}
}

// Subscribe registers handler for topic and returns a function that removes it.
func (b *Bus) Subscribe(topic Topic, handler Handler) func() {
	if handler == nil {
		return func() {}
	}
	b.mu.Lock()
	b.seq++
	sub := &subscription{id: uuid.NewString(), seq: b.seq, topic: topic, handler: handler}
	b.subs[sub.id] = sub
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, sub.id)
		b.mu.Unlock()
	}
}

// Publish delivers payload to every handler subscribed to topic and returns
// how many ran. A panicking handler is logged and does not stop the others.
func (b *Bus) Publish(topic Topic, payload any) int {
	b.mu.RLock()
	subs := make([]*subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.topic == topic {
			subs = append(subs, sub)
		}
	}
	b.mu.RUnlock()
	sort.Slice(subs, func(i, j int) bool { return subs[i].seq < subs[j].seq })

	ev := Event{Topic: topic, Payload: payload, Time: b.now()}
	for _, sub := range subs {
		b.safeInvoke(sub, ev)
	}
	return len(subs)
}

func (b *Bus) safeInvoke(sub *subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				slog.String("subscription", sub.id),
				slog.String("topic", string(ev.Topic)),
				slog.Any("panic", r),
			)
		}
	}()
	sub.handler(ev)
}
